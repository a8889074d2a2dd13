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

package models

import "time"

// EdgeKind identifies how a topology edge was derived.
type EdgeKind string

const (
	// EdgeKindSameVLAN is the pairwise co-membership approximation: devices in
	// one VLAN group are connected pairwise. Co-membership does not imply
	// physical adjacency; the kind and low confidence tag make that explicit.
	EdgeKindSameVLAN EdgeKind = "same-vlan"
	// EdgeKindLinkLayer is a direct adjacency learned from a CDP or LLDP
	// neighbor table.
	EdgeKindLinkLayer EdgeKind = "link-layer-neighbor"
)

// TopologyEdge is an unordered pair of device IDs plus the derivation kind.
// A and B are stored in lexicographic order so edges compare as sets.
type TopologyEdge struct {
	A          string   `json:"a"`
	B          string   `json:"b"`
	Kind       EdgeKind `json:"kind"`
	Source     string   `json:"source"`
	Confidence string   `json:"confidence"`
}

// GraphNode is the device projection carried in a topology graph.
type GraphNode struct {
	ID       string       `json:"id"`
	Hostname string       `json:"hostname,omitempty"`
	IP       string       `json:"ip_address"`
	Type     DeviceType   `json:"device_type"`
	Status   DeviceStatus `json:"status"`
	VLANID   *int         `json:"vlan_id,omitempty"`
}

// Graph is the derived topology. It is rebuilt wholesale: no edge survives a
// rebuild unless re-derived. The graph is a pure data artifact; rendering is
// strictly a downstream consumer.
type Graph struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Nodes       []GraphNode    `json:"nodes"`
	Edges       []TopologyEdge `json:"edges"`
}
