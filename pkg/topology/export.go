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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vlanvision/vlanvision/pkg/models"
)

// ExportJSON renders the graph as indented JSON.
func ExportJSON(graph *models.Graph) ([]byte, error) {
	return json.MarshalIndent(graph, "", "  ")
}

// ExportDOT renders the graph in Graphviz DOT form for external visualizers.
// Node labels prefer hostname, falling back to IP; same-vlan edges are drawn
// dashed to distinguish the approximation from learned adjacency.
func ExportDOT(graph *models.Graph) []byte {
	var sb strings.Builder

	sb.WriteString("graph network {\n")
	sb.WriteString("  layout=neato;\n")
	sb.WriteString("  overlap=false;\n")

	for i := range graph.Nodes {
		node := &graph.Nodes[i]

		label := node.Hostname
		if label == "" {
			label = node.IP
		}

		fmt.Fprintf(&sb, "  %q [label=%q, shape=%s];\n", node.ID, label, dotShape(node.Type))
	}

	for i := range graph.Edges {
		edge := &graph.Edges[i]

		style := "solid"
		if edge.Kind == models.EdgeKindSameVLAN {
			style = "dashed"
		}

		fmt.Fprintf(&sb, "  %q -- %q [style=%s, tooltip=%q];\n", edge.A, edge.B, style, string(edge.Kind))
	}

	sb.WriteString("}\n")

	return []byte(sb.String())
}

func dotShape(t models.DeviceType) string {
	switch t {
	case models.DeviceTypeRouter:
		return "diamond"
	case models.DeviceTypeSwitch:
		return "box"
	case models.DeviceTypeFirewall:
		return "octagon"
	case models.DeviceTypeServer:
		return "cylinder"
	default:
		return "ellipse"
	}
}
