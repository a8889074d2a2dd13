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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

func downDevice(id string) models.Device {
	return models.Device{ID: id, IP: "10.0.0.1", Hostname: "sw1", Status: models.DeviceStatusDown, Misses: 3}
}

func upDevice(id string) models.Device {
	return models.Device{ID: id, IP: "10.0.0.1", Hostname: "sw1", Status: models.DeviceStatusUp}
}

func newTestEvaluator(closeThreshold int) *Evaluator {
	e := NewEvaluator(DefaultRules(10), closeThreshold, logger.NewTestLogger())

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	e.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * 30 * time.Second)
	}

	return e
}

func deltaKinds(deltas []models.AlertDelta) []models.AlertDeltaKind {
	kinds := make([]models.AlertDeltaKind, len(deltas))
	for i, d := range deltas {
		kinds[i] = d.Kind
	}

	return kinds
}

func TestDeviceDownOpensOnce(t *testing.T) {
	e := newTestEvaluator(3)

	deltas := e.Evaluate([]models.Device{downDevice("d1")})
	require.Len(t, deltas, 1)
	assert.Equal(t, models.AlertOpened, deltas[0].Kind)
	assert.Equal(t, "device_down", deltas[0].Alert.RuleName)
	assert.Equal(t, models.SeverityCritical, deltas[0].Alert.Severity)

	// Still down: the same alert refreshes, no second open.
	deltas = e.Evaluate([]models.Device{downDevice("d1")})
	require.Len(t, deltas, 1)
	assert.Equal(t, models.AlertRefreshed, deltas[0].Kind)
	assert.Equal(t, 1, e.OpenCount())
}

func TestCloseRequiresConsecutiveCleanPasses(t *testing.T) {
	const m = 3

	e := newTestEvaluator(m)

	e.Evaluate([]models.Device{downDevice("d1")})

	// m-1 clean passes: still open.
	for i := 0; i < m-1; i++ {
		deltas := e.Evaluate([]models.Device{upDevice("d1")})
		assert.Empty(t, deltas, "clean pass %d must not close yet", i+1)
		assert.Equal(t, 1, e.OpenCount())
	}

	deltas := e.Evaluate([]models.Device{upDevice("d1")})
	require.Len(t, deltas, 1)
	assert.Equal(t, models.AlertClosed, deltas[0].Kind)
	assert.Zero(t, e.OpenCount())
}

// A device flapping faster than the close threshold keeps one alert episode
// open instead of emitting open/close pairs.
func TestFlappingKeepsSingleAlert(t *testing.T) {
	e := newTestEvaluator(3)

	opened := e.Evaluate([]models.Device{downDevice("d1")})
	require.Len(t, opened, 1)

	originalID := opened[0].Alert.ID

	for i := 0; i < 5; i++ {
		// One clean pass, then down again before the streak reaches 3.
		assert.Empty(t, e.Evaluate([]models.Device{upDevice("d1")}))

		deltas := e.Evaluate([]models.Device{downDevice("d1")})
		require.Len(t, deltas, 1)
		assert.Equal(t, models.AlertRefreshed, deltas[0].Kind)
		assert.Equal(t, originalID, deltas[0].Alert.ID)
	}

	assert.Equal(t, 1, e.OpenCount())
}

func TestDedupByRuleDeviceInterface(t *testing.T) {
	e := newTestEvaluator(3)

	dev := upDevice("d1")
	dev.Interfaces = []models.Interface{
		{Name: "Gi0/1", Utilization: 0.85},
		{Name: "Gi0/2", Utilization: 0.97},
	}

	deltas := e.Evaluate([]models.Device{dev})
	require.Len(t, deltas, 2, "each interface gets its own alert")

	bySeverity := map[models.Severity]string{}
	for _, d := range deltas {
		assert.Equal(t, "interface_utilization", d.Alert.RuleName)
		bySeverity[d.Alert.Severity] = d.Alert.InterfaceName
	}

	assert.Equal(t, "Gi0/1", bySeverity[models.SeverityHigh])
	assert.Equal(t, "Gi0/2", bySeverity[models.SeverityCritical])
}

func TestErrorRateRule(t *testing.T) {
	e := newTestEvaluator(3)

	mkDev := func(errs uint64) models.Device {
		dev := upDevice("d1")
		dev.Interfaces = []models.Interface{{Name: "Gi0/1", InErrors: errs}}

		return dev
	}

	// First sample establishes the baseline; no rate yet.
	assert.Empty(t, e.Evaluate([]models.Device{mkDev(0)}))

	// 300 errors in 30s = 10/s, past the critical threshold.
	deltas := e.Evaluate([]models.Device{mkDev(300)})
	require.Len(t, deltas, 1)
	assert.Equal(t, "interface_error_rate", deltas[0].Alert.RuleName)
	assert.Equal(t, models.SeverityCritical, deltas[0].Alert.Severity)
	assert.InDelta(t, 10.0, deltas[0].Alert.Value, 0.01)
}

func TestAcknowledge(t *testing.T) {
	e := newTestEvaluator(3)

	deltas := e.Evaluate([]models.Device{downDevice("d1")})
	require.Len(t, deltas, 1)

	require.NoError(t, e.Acknowledge(deltas[0].Alert.ID))
	assert.ErrorIs(t, e.Acknowledge("missing"), ErrAlertNotFound)

	alerts := e.Alerts()
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Acknowledged)
	assert.Equal(t, models.AlertStateOpen, alerts[0].State, "ack does not close")
}

func TestAlertsListsClosedHistory(t *testing.T) {
	e := newTestEvaluator(1)

	e.Evaluate([]models.Device{downDevice("d1")})
	e.Evaluate([]models.Device{upDevice("d1")})

	alerts := e.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertStateClosed, alerts[0].State)
	assert.False(t, alerts[0].ClosedAt.IsZero())
}

func TestParseRules(t *testing.T) {
	doc := []byte(`
rules:
  - name: hot_links
    metric: interface_utilization
    op: ">="
    threshold: 0.5
    severity: medium
  - name: lossy_links
    metric: interface_error_rate
    threshold: 0.1
    severity: high
    window: 5
`)

	rules, err := ParseRules(doc)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "hot_links", rules[0].Name())

	dev := upDevice("d1")
	dev.Interfaces = []models.Interface{{Name: "Gi0/1", Utilization: 0.6}}

	violations := rules[0].Evaluate(time.Now(), &dev)
	require.Len(t, violations, 1)
	assert.Equal(t, models.SeverityMedium, violations[0].Severity)
}

func TestParseRulesRejectsBadSpecs(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown metric", "rules:\n  - name: x\n    metric: bogus\n"},
		{"unknown op", "rules:\n  - name: x\n    metric: device_misses\n    op: '!='\n"},
		{"unknown severity", "rules:\n  - name: x\n    metric: device_misses\n    severity: shrug\n"},
		{"missing name", "rules:\n  - metric: device_misses\n"},
		{"not yaml", "rules: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
