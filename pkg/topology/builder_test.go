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

package topology

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

func vlanDevice(id, ip, hostname string, vlan int) models.Device {
	return models.Device{
		ID:       id,
		IP:       ip,
		Hostname: hostname,
		Status:   models.DeviceStatusUp,
		Type:     models.DeviceTypeSwitch,
		VLANID:   &vlan,
	}
}

func newTestBuilder() *Builder {
	b := NewBuilder(logger.NewTestLogger())
	b.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }

	return b
}

func TestRebuildSameVLANPairwise(t *testing.T) {
	tests := []struct {
		name      string
		devices   []models.Device
		wantEdges int
	}{
		{
			name: "two members one edge",
			devices: []models.Device{
				vlanDevice("a", "10.0.0.1", "a", 10),
				vlanDevice("b", "10.0.0.2", "b", 10),
			},
			wantEdges: 1,
		},
		{
			name: "three members complete triangle",
			devices: []models.Device{
				vlanDevice("a", "10.0.0.1", "a", 10),
				vlanDevice("b", "10.0.0.2", "b", 10),
				vlanDevice("c", "10.0.0.3", "c", 10),
			},
			wantEdges: 3,
		},
		{
			name: "single member no edge",
			devices: []models.Device{
				vlanDevice("a", "10.0.0.1", "a", 10),
			},
			wantEdges: 0,
		},
		{
			name: "separate vlans do not connect",
			devices: []models.Device{
				vlanDevice("a", "10.0.0.1", "a", 10),
				vlanDevice("b", "10.0.0.2", "b", 20),
			},
			wantEdges: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := newTestBuilder().Rebuild(tt.devices, nil)
			assert.Len(t, graph.Edges, tt.wantEdges)

			for _, edge := range graph.Edges {
				assert.Equal(t, models.EdgeKindSameVLAN, edge.Kind)
				assert.Equal(t, "vlan:10", edge.Source)
				assert.Less(t, edge.A, edge.B, "edges must be canonical pairs")
			}
		})
	}
}

func TestRebuildLinkLayerResolution(t *testing.T) {
	devices := []models.Device{
		{ID: "sw1", IP: "10.0.0.1", Hostname: "core-sw", Status: models.DeviceStatusUp},
		{ID: "sw2", IP: "10.0.0.2", Hostname: "edge-sw", Status: models.DeviceStatusUp},
		{ID: "sw3", IP: "10.0.0.3", Hostname: "dist-sw", Status: models.DeviceStatusUp},
	}

	neighbors := []models.NeighborEntry{
		// Resolves by management address.
		{LocalIP: "10.0.0.1", Protocol: "cdp", DeviceID: "whatever", MgmtAddr: "10.0.0.2"},
		// Falls back to system name, FQDN vs short hostname.
		{LocalIP: "10.0.0.1", Protocol: "lldp", DeviceID: "DIST-SW.example.net"},
		// Unresolvable remote is skipped.
		{LocalIP: "10.0.0.2", Protocol: "cdp", DeviceID: "stranger", MgmtAddr: "172.16.0.9"},
		// Unknown local end is skipped.
		{LocalIP: "10.9.9.9", Protocol: "cdp", MgmtAddr: "10.0.0.1"},
	}

	graph := newTestBuilder().Rebuild(devices, neighbors)

	require.Len(t, graph.Edges, 2)

	assert.Equal(t, "sw1", graph.Edges[0].A)
	assert.Equal(t, "sw2", graph.Edges[0].B)
	assert.Equal(t, models.EdgeKindLinkLayer, graph.Edges[0].Kind)
	assert.Equal(t, "cdp", graph.Edges[0].Source)

	assert.Equal(t, "sw1", graph.Edges[1].A)
	assert.Equal(t, "sw3", graph.Edges[1].B)
	assert.Equal(t, "lldp", graph.Edges[1].Source)
}

func TestRebuildDeduplicatesByPairAndKind(t *testing.T) {
	devices := []models.Device{
		vlanDevice("a", "10.0.0.1", "a", 10),
		vlanDevice("b", "10.0.0.2", "b", 10),
	}

	// The same adjacency reported from both ends.
	neighbors := []models.NeighborEntry{
		{LocalIP: "10.0.0.1", Protocol: "cdp", MgmtAddr: "10.0.0.2"},
		{LocalIP: "10.0.0.2", Protocol: "cdp", MgmtAddr: "10.0.0.1"},
	}

	graph := newTestBuilder().Rebuild(devices, neighbors)

	// One same-vlan edge plus one link-layer edge: same pair, distinct kinds.
	require.Len(t, graph.Edges, 2)
	assert.NotEqual(t, graph.Edges[0].Kind, graph.Edges[1].Kind)
}

func TestRebuildDeterministic(t *testing.T) {
	devices := []models.Device{
		vlanDevice("c", "10.0.0.3", "c", 10),
		vlanDevice("a", "10.0.0.1", "a", 10),
		vlanDevice("b", "10.0.0.2", "b", 10),
	}

	neighbors := []models.NeighborEntry{
		{LocalIP: "10.0.0.3", Protocol: "lldp", MgmtAddr: "10.0.0.1"},
	}

	b := newTestBuilder()

	first, err := ExportJSON(b.Rebuild(devices, neighbors))
	require.NoError(t, err)

	second, err := ExportJSON(b.Rebuild(devices, neighbors))
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical input must produce byte-identical graphs")
}

func TestRebuildExcludesRetiredDevices(t *testing.T) {
	vlan := 10
	devices := []models.Device{
		vlanDevice("a", "10.0.0.1", "a", vlan),
		{ID: "gone", IP: "10.0.0.2", Status: models.DeviceStatusRetired, VLANID: &vlan},
	}

	graph := newTestBuilder().Rebuild(devices, nil)

	assert.Len(t, graph.Nodes, 1)
	assert.Empty(t, graph.Edges)
}

func TestExportDOT(t *testing.T) {
	devices := []models.Device{
		vlanDevice("a", "10.0.0.1", "core", 10),
		vlanDevice("b", "10.0.0.2", "edge", 10),
	}

	dot := string(ExportDOT(newTestBuilder().Rebuild(devices, nil)))

	assert.Contains(t, dot, "graph network {")
	assert.Contains(t, dot, `"a" [label="core"`)
	assert.Contains(t, dot, `"a" -- "b" [style=dashed`)
}
