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

// Severity levels for alerts, lowest to highest.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertState is open or closed. An open alert stays open while its rule keeps
// firing; it closes only after the configured number of consecutive clean
// evaluations.
type AlertState string

const (
	AlertStateOpen   AlertState = "open"
	AlertStateClosed AlertState = "closed"
)

// Alert is one violation episode for a rule+device(+interface) key. Repeated
// violations of the same key refresh LastSeen on the existing alert instead
// of opening a second one.
type Alert struct {
	ID            string     `json:"id"`
	RuleName      string     `json:"rule_name"`
	DeviceID      string     `json:"device_id"`
	InterfaceName string     `json:"interface_name,omitempty"`
	Severity      Severity   `json:"severity"`
	Message       string     `json:"message"`
	Value         float64    `json:"value"`
	Threshold     float64    `json:"threshold"`
	State         AlertState `json:"state"`
	Acknowledged  bool       `json:"acknowledged"`
	FirstFired    time.Time  `json:"first_fired"`
	LastSeen      time.Time  `json:"last_seen"`
	ClosedAt      time.Time  `json:"closed_at,omitempty"`
}

// AlertDeltaKind describes what one evaluation pass did to an alert.
type AlertDeltaKind string

const (
	AlertOpened    AlertDeltaKind = "opened"
	AlertRefreshed AlertDeltaKind = "refreshed"
	AlertClosed    AlertDeltaKind = "closed"
)

// AlertDelta is one change produced by an evaluation pass.
type AlertDelta struct {
	Kind  AlertDeltaKind `json:"kind"`
	Alert Alert          `json:"alert"`
}
