/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package alerting

import (
	"fmt"
	"time"

	"github.com/vlanvision/vlanvision/pkg/models"
)

// Default thresholds for the built-in rules.
const (
	defaultErrorRateWarn = 1.0
	defaultErrorRateCrit = 5.0
	defaultUtilHigh      = 0.80
	defaultUtilCrit      = 0.95
)

// Violation is one rule firing against one device (and optionally one of its
// interfaces) during an evaluation pass.
type Violation struct {
	DeviceID      string
	InterfaceName string
	Severity      models.Severity
	Message       string
	Value         float64
	Threshold     float64
}

// Rule inspects one device per evaluation pass. Rules that track rates keep
// per-interface sample windows; the evaluator serializes calls, so rules need
// no locking of their own.
type Rule interface {
	Name() string
	Evaluate(at time.Time, dev *models.Device) []Violation
}

// DefaultRules returns the built-in rule set. windowSize bounds the sample
// history kept by rate rules.
func DefaultRules(windowSize int) []Rule {
	return []Rule{
		&deviceStatusRule{
			name:     "device_down",
			status:   models.DeviceStatusDown,
			severity: models.SeverityCritical,
		},
		&deviceStatusRule{
			name:     "device_degraded",
			status:   models.DeviceStatusDegraded,
			severity: models.SeverityHigh,
		},
		&errorRateRule{
			warn:       defaultErrorRateWarn,
			crit:       defaultErrorRateCrit,
			windowSize: windowSize,
			windows:    make(map[string]*sampleWindow),
		},
		&utilizationRule{
			high: defaultUtilHigh,
			crit: defaultUtilCrit,
		},
	}
}

type deviceStatusRule struct {
	name     string
	status   models.DeviceStatus
	severity models.Severity
}

func (r *deviceStatusRule) Name() string { return r.name }

func (r *deviceStatusRule) Evaluate(_ time.Time, dev *models.Device) []Violation {
	if dev.Status != r.status {
		return nil
	}

	return []Violation{{
		DeviceID: dev.ID,
		Severity: r.severity,
		Message:  fmt.Sprintf("device %s (%s) is %s after %d missed probes", dev.Hostname, dev.IP, dev.Status, dev.Misses),
		Value:    float64(dev.Misses),
	}}
}

// errorRateRule fires when an interface's combined in+out error counter grows
// faster than the warn threshold, escalating to critical past crit.
type errorRateRule struct {
	warn       float64
	crit       float64
	windowSize int
	windows    map[string]*sampleWindow
}

func (r *errorRateRule) Name() string { return "interface_error_rate" }

func (r *errorRateRule) Evaluate(at time.Time, dev *models.Device) []Violation {
	var out []Violation

	for i := range dev.Interfaces {
		iface := &dev.Interfaces[i]

		key := dev.ID + "/" + iface.Name
		win := r.windows[key]

		if win == nil {
			win = newSampleWindow(r.windowSize)
			r.windows[key] = win
		}

		win.Add(at, float64(iface.InErrors+iface.OutErrors))

		rate, ok := win.RatePerSecond()
		if !ok || rate < r.warn {
			continue
		}

		severity := models.SeverityHigh
		threshold := r.warn

		if rate >= r.crit {
			severity = models.SeverityCritical
			threshold = r.crit
		}

		out = append(out, Violation{
			DeviceID:      dev.ID,
			InterfaceName: iface.Name,
			Severity:      severity,
			Message:       fmt.Sprintf("interface %s on %s reporting %.1f errors/s", iface.Name, dev.IP, rate),
			Value:         rate,
			Threshold:     threshold,
		})
	}

	return out
}

type utilizationRule struct {
	high float64
	crit float64
}

func (r *utilizationRule) Name() string { return "interface_utilization" }

func (r *utilizationRule) Evaluate(_ time.Time, dev *models.Device) []Violation {
	var out []Violation

	for i := range dev.Interfaces {
		iface := &dev.Interfaces[i]
		if iface.Utilization < r.high {
			continue
		}

		severity := models.SeverityHigh
		threshold := r.high

		if iface.Utilization >= r.crit {
			severity = models.SeverityCritical
			threshold = r.crit
		}

		out = append(out, Violation{
			DeviceID:      dev.ID,
			InterfaceName: iface.Name,
			Severity:      severity,
			Message:       fmt.Sprintf("interface %s on %s at %.0f%% utilization", iface.Name, dev.IP, iface.Utilization*100),
			Value:         iface.Utilization,
			Threshold:     threshold,
		})
	}

	return out
}
