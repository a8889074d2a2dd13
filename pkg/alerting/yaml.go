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
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vlanvision/vlanvision/pkg/models"
)

// ruleFile is the schema of a rules.yaml document.
type ruleFile struct {
	Rules []customRuleSpec `yaml:"rules"`
}

type customRuleSpec struct {
	Name      string  `yaml:"name"`
	Metric    string  `yaml:"metric"`
	Op        string  `yaml:"op"`
	Threshold float64 `yaml:"threshold"`
	Severity  string  `yaml:"severity"`
	Window    int     `yaml:"window"`
}

const (
	metricUtilization = "interface_utilization"
	metricErrorRate   = "interface_error_rate"
	metricMisses      = "device_misses"
)

// LoadRulesFile parses custom threshold rules from a YAML file. An empty path
// returns no rules.
func LoadRulesFile(path string) ([]Rule, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	return ParseRules(data)
}

// ParseRules builds rules from a YAML document.
func ParseRules(data []byte) ([]Rule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing rules yaml: %w", err)
	}

	rules := make([]Rule, 0, len(file.Rules))

	for i := range file.Rules {
		spec := &file.Rules[i]

		rule, err := buildCustomRule(spec)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", spec.Name, err)
		}

		rules = append(rules, rule)
	}

	return rules, nil
}

func buildCustomRule(spec *customRuleSpec) (Rule, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("missing name")
	}

	switch spec.Metric {
	case metricUtilization, metricErrorRate, metricMisses:
	default:
		return nil, fmt.Errorf("unknown metric %q", spec.Metric)
	}

	switch spec.Op {
	case "", ">=", ">", "<=", "<":
	default:
		return nil, fmt.Errorf("unknown op %q", spec.Op)
	}

	severity := models.Severity(spec.Severity)

	switch severity {
	case models.SeverityInfo, models.SeverityLow, models.SeverityMedium,
		models.SeverityHigh, models.SeverityCritical:
	case "":
		severity = models.SeverityMedium
	default:
		return nil, fmt.Errorf("unknown severity %q", spec.Severity)
	}

	rule := &customRule{
		name:      spec.Name,
		metric:    spec.Metric,
		op:        spec.Op,
		threshold: spec.Threshold,
		severity:  severity,
	}

	if rule.op == "" {
		rule.op = ">="
	}

	if spec.Metric == metricErrorRate {
		rule.windowSize = spec.Window
		if rule.windowSize == 0 {
			rule.windowSize = 10
		}

		rule.windows = make(map[string]*sampleWindow)
	}

	return rule, nil
}

// customRule is one user-defined threshold comparison from rules.yaml.
type customRule struct {
	name      string
	metric    string
	op        string
	threshold float64
	severity  models.Severity

	windowSize int
	windows    map[string]*sampleWindow
}

func (r *customRule) Name() string { return r.name }

func (r *customRule) Evaluate(at time.Time, dev *models.Device) []Violation {
	switch r.metric {
	case metricMisses:
		if !r.compare(float64(dev.Misses)) {
			return nil
		}

		return []Violation{{
			DeviceID:  dev.ID,
			Severity:  r.severity,
			Message:   fmt.Sprintf("%s: device %s misses %d %s %g", r.name, dev.IP, dev.Misses, r.op, r.threshold),
			Value:     float64(dev.Misses),
			Threshold: r.threshold,
		}}
	case metricUtilization:
		return r.perInterface(dev, func(iface *models.Interface) (float64, bool) {
			return iface.Utilization, true
		})
	case metricErrorRate:
		return r.perInterface(dev, func(iface *models.Interface) (float64, bool) {
			key := dev.ID + "/" + iface.Name

			win := r.windows[key]
			if win == nil {
				win = newSampleWindow(r.windowSize)
				r.windows[key] = win
			}

			win.Add(at, float64(iface.InErrors+iface.OutErrors))

			return win.RatePerSecond()
		})
	}

	return nil
}

func (r *customRule) perInterface(dev *models.Device, metric func(*models.Interface) (float64, bool)) []Violation {
	var out []Violation

	for i := range dev.Interfaces {
		iface := &dev.Interfaces[i]

		value, ok := metric(iface)
		if !ok || !r.compare(value) {
			continue
		}

		out = append(out, Violation{
			DeviceID:      dev.ID,
			InterfaceName: iface.Name,
			Severity:      r.severity,
			Message:       fmt.Sprintf("%s: interface %s on %s %s %g (value %.2f)", r.name, iface.Name, dev.IP, r.op, r.threshold, value),
			Value:         value,
			Threshold:     r.threshold,
		})
	}

	return out
}

func (r *customRule) compare(value float64) bool {
	switch r.op {
	case ">":
		return value > r.threshold
	case "<=":
		return value <= r.threshold
	case "<":
		return value < r.threshold
	default:
		return value >= r.threshold
	}
}
