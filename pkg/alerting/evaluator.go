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

// Package alerting evaluates threshold rules against registry snapshots and
// tracks alert lifecycles with hysteresis, so a flapping device produces one
// alert episode instead of a stream of opens and closes.
package alerting

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

var ErrAlertNotFound = errors.New("alert not found")

// closedRetention bounds how many closed alerts are kept for the API.
const closedRetention = 200

// Evaluator runs the rule set against device snapshots. One alert exists per
// rule+device(+interface) key: a firing key refreshes its open alert, and a
// quiet key closes its alert only after closeThreshold consecutive clean
// passes.
type Evaluator struct {
	mu             sync.Mutex
	rules          []Rule
	open           map[string]*models.Alert
	cleanStreak    map[string]int
	closed         []*models.Alert
	closeThreshold int
	logger         logger.Logger
	now            func() time.Time
}

func NewEvaluator(rules []Rule, closeThreshold int, log logger.Logger) *Evaluator {
	if closeThreshold < 1 {
		closeThreshold = 1
	}

	return &Evaluator{
		rules:          rules,
		open:           make(map[string]*models.Alert),
		cleanStreak:    make(map[string]int),
		closeThreshold: closeThreshold,
		logger:         log,
		now:            time.Now,
	}
}

// Evaluate runs every rule over the snapshot and reconciles the alert table.
// It returns the deltas this pass produced, in a deterministic order.
func (e *Evaluator) Evaluate(devices []models.Device) []models.AlertDelta {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	firing := make(map[string]Violation)

	for _, rule := range e.rules {
		for i := range devices {
			for _, v := range rule.Evaluate(now, &devices[i]) {
				// First violation for a key wins within a pass.
				key := alertKey(rule.Name(), v.DeviceID, v.InterfaceName)
				if _, dup := firing[key]; !dup {
					firing[key] = v
				}
			}
		}
	}

	var deltas []models.AlertDelta

	keys := make([]string, 0, len(firing))
	for key := range firing {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		v := firing[key]
		delete(e.cleanStreak, key)

		if existing, ok := e.open[key]; ok {
			existing.LastSeen = now
			existing.Severity = v.Severity
			existing.Message = v.Message
			existing.Value = v.Value
			existing.Threshold = v.Threshold

			deltas = append(deltas, models.AlertDelta{Kind: models.AlertRefreshed, Alert: *existing})

			continue
		}

		alert := &models.Alert{
			ID:            uuid.New().String(),
			RuleName:      ruleNameFromKey(key),
			DeviceID:      v.DeviceID,
			InterfaceName: v.InterfaceName,
			Severity:      v.Severity,
			Message:       v.Message,
			Value:         v.Value,
			Threshold:     v.Threshold,
			State:         models.AlertStateOpen,
			FirstFired:    now,
			LastSeen:      now,
		}

		e.open[key] = alert
		deltas = append(deltas, models.AlertDelta{Kind: models.AlertOpened, Alert: *alert})

		e.logger.Info().
			Str("rule", alert.RuleName).
			Str("device_id", alert.DeviceID).
			Str("severity", string(alert.Severity)).
			Msg("Alert opened")
	}

	// Quiet keys accumulate clean passes toward closure.
	openKeys := make([]string, 0, len(e.open))
	for key := range e.open {
		openKeys = append(openKeys, key)
	}

	sort.Strings(openKeys)

	for _, key := range openKeys {
		if _, stillFiring := firing[key]; stillFiring {
			continue
		}

		e.cleanStreak[key]++
		if e.cleanStreak[key] < e.closeThreshold {
			continue
		}

		alert := e.open[key]
		alert.State = models.AlertStateClosed
		alert.ClosedAt = now

		delete(e.open, key)
		delete(e.cleanStreak, key)
		e.retainClosed(alert)

		deltas = append(deltas, models.AlertDelta{Kind: models.AlertClosed, Alert: *alert})

		e.logger.Info().
			Str("rule", alert.RuleName).
			Str("device_id", alert.DeviceID).
			Msg("Alert closed")
	}

	return deltas
}

// Acknowledge flags an open alert as seen by an operator. It does not close
// the alert; only clean evaluations do that.
func (e *Evaluator) Acknowledge(alertID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, alert := range e.open {
		if alert.ID == alertID {
			alert.Acknowledged = true
			return nil
		}
	}

	return ErrAlertNotFound
}

// Alerts returns open alerts followed by retained closed ones, newest first
// within each group.
func (e *Evaluator) Alerts() []models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Alert, 0, len(e.open)+len(e.closed))

	for _, alert := range e.open {
		out = append(out, *alert)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstFired.Equal(out[j].FirstFired) {
			return out[i].FirstFired.After(out[j].FirstFired)
		}

		return out[i].ID < out[j].ID
	})

	for i := len(e.closed) - 1; i >= 0; i-- {
		out = append(out, *e.closed[i])
	}

	return out
}

// OpenCount reports how many alerts are currently open.
func (e *Evaluator) OpenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.open)
}

func (e *Evaluator) retainClosed(alert *models.Alert) {
	e.closed = append(e.closed, alert)
	if len(e.closed) > closedRetention {
		e.closed = e.closed[len(e.closed)-closedRetention:]
	}
}

const keySep = "\x1f"

func alertKey(rule, deviceID, ifaceName string) string {
	return rule + keySep + deviceID + keySep + ifaceName
}

func ruleNameFromKey(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == keySep[0] {
			return key[:i]
		}
	}

	return key
}
