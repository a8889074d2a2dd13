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

// EventType names the engine events visible to external consumers.
type EventType string

const (
	EventDeviceUpdated   EventType = "network.device.updated"
	EventAlertChanged    EventType = "network.alert.changed"
	EventJobCompleted    EventType = "network.job.completed"
	EventTopologyRebuilt EventType = "network.topology.rebuilt"
)

// CloudEvent is a CloudEvents v1.0 envelope. Events are serialized as JSON
// both on the NATS stream and over the websocket.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// DeviceEvent is the payload for EventDeviceUpdated.
type DeviceEvent struct {
	Device    Device       `json:"device"`
	OldStatus DeviceStatus `json:"old_status,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// AlertEvent is the payload for EventAlertChanged.
type AlertEvent struct {
	Delta     AlertDelta `json:"delta"`
	Timestamp time.Time  `json:"timestamp"`
}

// JobEvent is the payload for EventJobCompleted.
type JobEvent struct {
	Job       DiscoveryJob `json:"job"`
	Timestamp time.Time    `json:"timestamp"`
}

// TopologyEvent is the payload for EventTopologyRebuilt.
type TopologyEvent struct {
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	Timestamp time.Time `json:"timestamp"`
}
