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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlanvision/vlanvision/pkg/alerting"
	"github.com/vlanvision/vlanvision/pkg/discovery"
	"github.com/vlanvision/vlanvision/pkg/events"
	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
	"github.com/vlanvision/vlanvision/pkg/probe"
	"github.com/vlanvision/vlanvision/pkg/registry"
	"github.com/vlanvision/vlanvision/pkg/topology"
)

// stubProber answers every target with a bare result.
type stubProber struct{}

func (stubProber) Technique() models.ProbeTechnique { return models.TechniqueARP }

func (stubProber) Probe(_ context.Context, target string) (*models.ProbeResult, error) {
	return &models.ProbeResult{Target: target, Technique: models.TechniqueARP, Timestamp: time.Now()}, nil
}

type apiFixture struct {
	server    *APIServer
	registry  *registry.Registry
	evaluator *alerting.Evaluator
	engine    *discovery.Engine
}

func newAPIFixture(t *testing.T, options ...func(*APIServer)) *apiFixture {
	t.Helper()

	log := logger.NewTestLogger()
	reg := registry.NewRegistry(3, log)
	eval := alerting.NewEvaluator(alerting.DefaultRules(10), 3, log)
	hub := events.NewHub(log)

	pool := probe.NewPool(map[models.ProbeTechnique]probe.Prober{
		models.TechniqueARP: stubProber{},
	}, 4, log)

	cfg := models.DiscoveryConfig{
		Interval:       models.Duration(time.Hour),
		JobTimeout:     models.Duration(5 * time.Second),
		MaxConcurrent:  4,
		MissThreshold:  3,
		Techniques:     []models.ProbeTechnique{models.TechniqueARP},
		RetentionAge:   models.Duration(time.Hour),
		RetentionCount: 100,
	}

	engine := discovery.NewEngine(cfg, discovery.Deps{
		Pool:      pool,
		Registry:  reg,
		Topology:  topology.NewBuilder(log),
		Evaluator: eval,
		Publisher: hub,
		Logger:    log,
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		engine.Stop(ctx)
		_ = hub.Close()
	})

	options = append([]func(*APIServer){
		WithEngine(engine),
		WithRegistry(reg),
		WithEvaluator(eval),
		WithEventHub(hub),
		WithLogger(log),
	}, options...)

	return &apiFixture{
		server:    NewAPIServer(options...),
		registry:  reg,
		evaluator: eval,
		engine:    engine,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()

	f.server.Router().ServeHTTP(rr, req)

	return rr
}

func (f *apiFixture) seedDevice(t *testing.T, ip, mac, hostname string) *models.Device {
	t.Helper()

	dev, err := f.registry.Reconcile(&models.ProbeResult{
		Target:   ip,
		MAC:      mac,
		Hostname: hostname,
	})
	require.NoError(t, err)

	return dev
}

func TestGetDevicesEmpty(t *testing.T) {
	fx := newAPIFixture(t)

	rr := fx.do(t, http.MethodGet, "/api/network/devices", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"devices":[]}`, rr.Body.String())
}

func TestGetDevicesShape(t *testing.T) {
	fx := newAPIFixture(t)
	fx.seedDevice(t, "192.168.1.1", "AA:BB:CC:00:00:01", "sw1")

	rr := fx.do(t, http.MethodGet, "/api/network/devices", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Devices []map[string]interface{} `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Devices, 1)

	dev := body.Devices[0]
	assert.NotEmpty(t, dev["id"])
	assert.Equal(t, "192.168.1.1", dev["ip_address"])
	assert.Equal(t, "AA:BB:CC:00:00:01", dev["mac_address"])
	assert.Equal(t, "sw1", dev["hostname"])
	assert.Equal(t, "up", dev["status"])
	assert.Contains(t, dev, "device_type")
}

func TestGetDeviceByID(t *testing.T) {
	fx := newAPIFixture(t)
	dev := fx.seedDevice(t, "192.168.1.1", "AA:BB:CC:00:00:01", "sw1")

	rr := fx.do(t, http.MethodGet, "/api/network/devices/"+dev.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = fx.do(t, http.MethodGet, "/api/network/devices/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPutDeviceVLAN(t *testing.T) {
	fx := newAPIFixture(t)
	dev := fx.seedDevice(t, "192.168.1.1", "AA:BB:CC:00:00:01", "sw1")

	vlan := 20
	rr := fx.do(t, http.MethodPut, "/api/network/devices/"+dev.ID+"/vlan", vlanAssignment{VLANID: &vlan})
	require.Equal(t, http.StatusOK, rr.Code)

	var updated models.Device
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	require.NotNil(t, updated.VLANID)
	assert.Equal(t, 20, *updated.VLANID)

	// null clears the assignment.
	rr = fx.do(t, http.MethodPut, "/api/network/devices/"+dev.ID+"/vlan", vlanAssignment{})
	require.Equal(t, http.StatusOK, rr.Code)

	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	assert.Nil(t, updated.VLANID)

	rr = fx.do(t, http.MethodPut, "/api/network/devices/unknown/vlan", vlanAssignment{VLANID: &vlan})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRetireDevice(t *testing.T) {
	fx := newAPIFixture(t)
	dev := fx.seedDevice(t, "192.168.1.1", "AA:BB:CC:00:00:01", "sw1")

	rr := fx.do(t, http.MethodPost, "/api/network/devices/"+dev.ID+"/retire", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	// Retiring twice conflicts.
	rr = fx.do(t, http.MethodPost, "/api/network/devices/"+dev.ID+"/retire", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = fx.do(t, http.MethodGet, "/api/network/devices", nil)
	assert.JSONEq(t, `{"devices":[]}`, rr.Body.String())
}

func TestPostDiscover(t *testing.T) {
	fx := newAPIFixture(t)

	rr := fx.do(t, http.MethodPost, "/api/network/discover", map[string]string{"network_range": "192.168.1.0/30"})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp discoverResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "queued", resp.Status)

	// Overlapping request coalesces while the job is still pending.
	rr = fx.do(t, http.MethodPost, "/api/network/discover", map[string]string{"network_range": "192.168.1.0/30"})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var second discoverResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &second))
	assert.Equal(t, resp.JobID, second.JobID)
	assert.Equal(t, "coalesced", second.Status)
}

func TestPostDiscoverInvalidRange(t *testing.T) {
	fx := newAPIFixture(t)

	rr := fx.do(t, http.MethodPost, "/api/network/discover", map[string]string{"network_range": "not-a-cidr"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = fx.do(t, http.MethodPost, "/api/network/discover", map[string]string{"network_range": "10.0.0.0/8"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/network/discover", bytes.NewReader([]byte("{broken")))
	rr = httptest.NewRecorder()
	fx.server.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestJobEndpoints(t *testing.T) {
	fx := newAPIFixture(t)

	rr := fx.do(t, http.MethodPost, "/api/network/discover", map[string]string{"network_range": "10.0.0.0/30"})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp discoverResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	rr = fx.do(t, http.MethodGet, "/api/network/jobs/"+resp.JobID, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var job models.DiscoveryJob
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))
	assert.Equal(t, "10.0.0.0/30", job.NetworkRange)

	rr = fx.do(t, http.MethodGet, "/api/network/jobs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), resp.JobID)

	// The engine was never started, so the job is still pending: cancelable.
	rr = fx.do(t, http.MethodDelete, "/api/network/jobs/"+resp.JobID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = fx.do(t, http.MethodDelete, "/api/network/jobs/"+resp.JobID, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = fx.do(t, http.MethodGet, "/api/network/jobs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetTopology(t *testing.T) {
	fx := newAPIFixture(t)

	rr := fx.do(t, http.MethodGet, "/api/network/topology", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var graph models.Graph
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &graph))
	assert.Empty(t, graph.Nodes)

	rr = fx.do(t, http.MethodGet, "/api/network/topology?format=dot", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/vnd.graphviz", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "graph network {")
}

func TestGetVLANs(t *testing.T) {
	fx := newAPIFixture(t)
	dev := fx.seedDevice(t, "192.168.1.1", "AA:BB:CC:00:00:01", "sw1")

	require.NoError(t, fx.registry.AssignVLAN(dev.ID, 10))

	rr := fx.do(t, http.MethodGet, "/api/network/vlans", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		VLANs []models.VLANGroup `json:"vlans"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.VLANs, 1)
	assert.Equal(t, 10, body.VLANs[0].VLANID)
}

func TestAlertEndpoints(t *testing.T) {
	fx := newAPIFixture(t)

	deltas := fx.evaluator.Evaluate([]models.Device{
		{ID: "d1", IP: "10.0.0.1", Status: models.DeviceStatusDown, Misses: 3},
	})
	require.Len(t, deltas, 1)

	rr := fx.do(t, http.MethodGet, "/api/network/alerts", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "device_down")

	alertID := deltas[0].Alert.ID

	rr = fx.do(t, http.MethodPost, "/api/network/alerts/"+alertID+"/acknowledge", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = fx.do(t, http.MethodPost, "/api/network/alerts/unknown/acknowledge", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetStatus(t *testing.T) {
	fx := newAPIFixture(t)
	fx.seedDevice(t, "192.168.1.1", "AA:BB:CC:00:00:01", "sw1")

	rr := fx.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Engine.Devices)
}

func TestAPIKeyGuardsNetworkRoutes(t *testing.T) {
	fx := newAPIFixture(t, WithAPIKey("sekrit"))

	rr := fx.do(t, http.MethodGet, "/api/network/devices", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/network/devices", http.NoBody)
	req.Header.Set("X-API-Key", "sekrit")

	rr = httptest.NewRecorder()
	fx.server.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Status stays open for health checks.
	rr = fx.do(t, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBackupNotConfigured(t *testing.T) {
	fx := newAPIFixture(t)
	dev := fx.seedDevice(t, "192.168.1.1", "AA:BB:CC:00:00:01", "sw1")

	rr := fx.do(t, http.MethodPost, "/api/network/devices/"+dev.ID+"/backup", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
