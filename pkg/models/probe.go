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

// ProbeTechnique identifies a single discovery technique.
type ProbeTechnique string

const (
	TechniqueSNMP      ProbeTechnique = "snmp"
	TechniqueARP       ProbeTechnique = "arp"
	TechniqueNeighbors ProbeTechnique = "neighbors"
	TechniquePorts     ProbeTechnique = "ports"
)

// ProbeErrorKind is the closed taxonomy of probe failures.
type ProbeErrorKind string

const (
	// ProbeErrUnreachable: no response within the timeout. Recorded against
	// the miss counter, escalated only once the threshold is crossed.
	ProbeErrUnreachable ProbeErrorKind = "unreachable"
	// ProbeErrTimeout is treated identically to unreachable by the registry
	// state machine; it is kept distinct for job outcome reporting.
	ProbeErrTimeout ProbeErrorKind = "timeout"
	// ProbeErrAuthFailure: the target answered but rejected credentials
	// (bad SNMP community). Surfaced immediately as a job-level warning since
	// retrying cannot help.
	ProbeErrAuthFailure ProbeErrorKind = "auth_failure"
	// ProbeErrMalformed: the target returned data the probe cannot parse.
	// Logged with payload context; the device keeps its prior known state.
	ProbeErrMalformed ProbeErrorKind = "malformed_response"
)

// ProbeResult carries whatever attributes one technique observed for one
// address. Fields a technique cannot observe stay zero: an ARP result has
// only the MAC, an SNMP result has system info and interfaces, a neighbor
// result has only Neighbors.
type ProbeResult struct {
	Target      string            `json:"target"`
	Technique   ProbeTechnique    `json:"technique"`
	MAC         string            `json:"mac,omitempty"`
	Hostname    string            `json:"hostname,omitempty"`
	SysDescr    string            `json:"sys_descr,omitempty"`
	SysObjectID string            `json:"sys_object_id,omitempty"`
	Location    string            `json:"location,omitempty"`
	Uptime      time.Duration     `json:"uptime,omitempty"`
	VLANID      *int              `json:"vlan_id,omitempty"`
	OpenPorts   []int             `json:"open_ports,omitempty"`
	Interfaces  []Interface       `json:"interfaces,omitempty"`
	Neighbors   []NeighborEntry   `json:"neighbors,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// NeighborEntry is one link-layer adjacency learned from a CDP or LLDP table
// on the probed device.
type NeighborEntry struct {
	LocalIP      string `json:"local_ip"`
	LocalIfIndex int    `json:"local_if_index"`
	Protocol     string `json:"protocol"`
	DeviceID     string `json:"device_id"`
	Port         string `json:"port"`
	Platform     string `json:"platform,omitempty"`
	MgmtAddr     string `json:"mgmt_addr,omitempty"`
}
