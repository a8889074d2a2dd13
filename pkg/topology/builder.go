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

// Package topology derives a device graph from the registry snapshot and the
// link-layer neighbor tables collected by probes. The graph is rebuilt
// wholesale on every call; no prior state is consulted.
package topology

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

const (
	confidenceLow  = "low"
	confidenceHigh = "high"
)

// Builder turns device snapshots into topology graphs. It carries no state
// between rebuilds beyond the clock and logger.
type Builder struct {
	logger logger.Logger
	now    func() time.Time
}

func NewBuilder(log logger.Logger) *Builder {
	return &Builder{
		logger: log,
		now:    time.Now,
	}
}

// Rebuild derives a fresh graph from the given devices and neighbor entries.
// Two edge sources are unioned:
//
//   - same-vlan: every VLAN group with two or more members contributes the
//     complete pairwise edge set. Co-membership is an approximation of
//     connectivity, so these edges carry low confidence.
//   - link-layer-neighbor: CDP/LLDP entries whose remote end resolves to a
//     known device, matched by management address first and system name
//     second. These carry high confidence.
//
// Edges are canonicalized (endpoint IDs in lexicographic order), deduplicated
// by endpoint pair plus kind, and sorted, so identical input yields an
// identical graph.
func (b *Builder) Rebuild(devices []models.Device, neighbors []models.NeighborEntry) *models.Graph {
	graph := &models.Graph{
		GeneratedAt: b.now(),
		Nodes:       make([]models.GraphNode, 0, len(devices)),
		Edges:       []models.TopologyEdge{},
	}

	byIP := make(map[string]string, len(devices))
	byName := make(map[string]string, len(devices))
	vlanMembers := make(map[int][]string)

	for i := range devices {
		dev := &devices[i]
		if dev.Status == models.DeviceStatusRetired {
			continue
		}

		graph.Nodes = append(graph.Nodes, models.GraphNode{
			ID:       dev.ID,
			Hostname: dev.Hostname,
			IP:       dev.IP,
			Type:     dev.Type,
			Status:   dev.Status,
			VLANID:   dev.VLANID,
		})

		if dev.IP != "" {
			byIP[dev.IP] = dev.ID
		}

		if dev.Hostname != "" {
			byName[strings.ToLower(shortName(dev.Hostname))] = dev.ID
		}

		if dev.VLANID != nil {
			vlanMembers[*dev.VLANID] = append(vlanMembers[*dev.VLANID], dev.ID)
		}
	}

	sort.Slice(graph.Nodes, func(i, j int) bool { return graph.Nodes[i].ID < graph.Nodes[j].ID })

	seen := make(map[edgeKey]struct{})

	for vlanID, members := range vlanMembers {
		if len(members) < 2 {
			continue
		}

		sort.Strings(members)

		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				addEdge(graph, seen, members[i], members[j], models.TopologyEdge{
					Kind:       models.EdgeKindSameVLAN,
					Source:     fmt.Sprintf("vlan:%d", vlanID),
					Confidence: confidenceLow,
				})
			}
		}
	}

	for i := range neighbors {
		nb := &neighbors[i]

		localID, ok := byIP[nb.LocalIP]
		if !ok {
			continue
		}

		remoteID := resolveRemote(nb, byIP, byName)
		if remoteID == "" || remoteID == localID {
			continue
		}

		addEdge(graph, seen, localID, remoteID, models.TopologyEdge{
			Kind:       models.EdgeKindLinkLayer,
			Source:     nb.Protocol,
			Confidence: confidenceHigh,
		})
	}

	sortEdges(graph.Edges)

	b.logger.Debug().
		Int("nodes", len(graph.Nodes)).
		Int("edges", len(graph.Edges)).
		Msg("Rebuilt topology graph")

	return graph
}

type edgeKey struct {
	a, b string
	kind models.EdgeKind
}

func addEdge(graph *models.Graph, seen map[edgeKey]struct{}, a, b string, tmpl models.TopologyEdge) {
	if b < a {
		a, b = b, a
	}

	key := edgeKey{a: a, b: b, kind: tmpl.Kind}
	if _, dup := seen[key]; dup {
		return
	}

	seen[key] = struct{}{}

	tmpl.A = a
	tmpl.B = b
	graph.Edges = append(graph.Edges, tmpl)
}

// resolveRemote maps a neighbor table entry to a device ID. Management
// address is authoritative when present; the advertised system name is the
// fallback, compared case-insensitively on the first DNS label.
func resolveRemote(nb *models.NeighborEntry, byIP, byName map[string]string) string {
	if nb.MgmtAddr != "" {
		if id, ok := byIP[nb.MgmtAddr]; ok {
			return id
		}
	}

	if nb.DeviceID != "" {
		if id, ok := byName[strings.ToLower(shortName(nb.DeviceID))]; ok {
			return id
		}
	}

	return ""
}

// shortName strips the domain from an FQDN. CDP advertises FQDNs while
// hostnames learned over SNMP are often unqualified.
func shortName(name string) string {
	if idx := strings.IndexByte(name, '.'); idx > 0 {
		return name[:idx]
	}

	return name
}

func sortEdges(edges []models.TopologyEdge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A < edges[j].A
		}

		if edges[i].B != edges[j].B {
			return edges[i].B < edges[j].B
		}

		return edges[i].Kind < edges[j].Kind
	})
}
