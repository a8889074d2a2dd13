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

import (
	"strings"
	"time"
)

// DeviceType classifies a discovered device. The set is closed: probe
// evidence that matches no known class maps to DeviceTypeUnknown, never to a
// new ad hoc value.
type DeviceType string

const (
	DeviceTypeSwitch      DeviceType = "switch"
	DeviceTypeRouter      DeviceType = "router"
	DeviceTypeFirewall    DeviceType = "firewall"
	DeviceTypeServer      DeviceType = "server"
	DeviceTypeAccessPoint DeviceType = "access_point"
	DeviceTypeUnknown     DeviceType = "unknown"
)

// DeviceStatus is the reachability state of a device.
type DeviceStatus string

const (
	// DeviceStatusUnknown means the device has never been successfully probed.
	DeviceStatusUnknown DeviceStatus = "unknown"
	// DeviceStatusUp means the most recent probe succeeded.
	DeviceStatusUp DeviceStatus = "up"
	// DeviceStatusDegraded means the device has missed at least one probe but
	// fewer than the configured miss threshold.
	DeviceStatusDegraded DeviceStatus = "degraded"
	// DeviceStatusDown means the device has missed the threshold number of
	// consecutive probes.
	DeviceStatusDown DeviceStatus = "down"
	// DeviceStatusRetired is terminal. It is reached only through an operator
	// retire or the long-unseen sweep, never automatically from down.
	DeviceStatusRetired DeviceStatus = "retired"
)

// Device is a single entry in the device registry. The ID is assigned at
// first sighting and never reused; identity follows the MAC address when one
// is known, so a device that changes IP keeps its record.
type Device struct {
	ID           string            `json:"id"`
	IP           string            `json:"ip_address"`
	MAC          string            `json:"mac_address,omitempty"`
	Hostname     string            `json:"hostname,omitempty"`
	Type         DeviceType        `json:"device_type"`
	Status       DeviceStatus      `json:"status"`
	VLANID       *int              `json:"vlan_id,omitempty"`
	Manufacturer string            `json:"manufacturer,omitempty"`
	SysDescr     string            `json:"sys_descr,omitempty"`
	Location     string            `json:"location,omitempty"`
	PreviousIPs  []string          `json:"previous_ips,omitempty"`
	Misses       int               `json:"-"`
	FirstSeen    time.Time         `json:"first_seen"`
	LastSeen     time.Time         `json:"last_seen"`
	Interfaces   []Interface       `json:"interfaces,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Interface is a network interface owned by exactly one device. It is
// destroyed with its owning device and replaced wholesale on each successful
// SNMP poll.
type Interface struct {
	DeviceID    string  `json:"device_id"`
	Index       int     `json:"index"`
	Name        string  `json:"name"`
	OperStatus  string  `json:"oper_status"`
	SpeedBps    uint64  `json:"speed_bps,omitempty"`
	MAC         string  `json:"mac_address,omitempty"`
	InOctets    uint64  `json:"in_octets"`
	OutOctets   uint64  `json:"out_octets"`
	InErrors    uint64  `json:"in_errors"`
	OutErrors   uint64  `json:"out_errors"`
	Utilization float64 `json:"utilization"`
}

// VLANGroup is a derived view: one VLAN ID and the devices currently assigned
// to it. Groups are recomputed from Device.VLANID on every registry snapshot
// and are never independently authoritative.
type VLANGroup struct {
	VLANID    int      `json:"vlan_id"`
	DeviceIDs []string `json:"device_ids"`
}

// NormalizeMAC canonicalizes a MAC address for identity comparison. Returns
// an empty string for input that is not a plausible MAC.
func NormalizeMAC(mac string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(mac))
	cleaned = strings.ReplaceAll(cleaned, "-", ":")
	cleaned = strings.ReplaceAll(cleaned, ".", "")

	if !strings.Contains(cleaned, ":") && len(cleaned) == 12 {
		var b strings.Builder

		for i := 0; i < 12; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}

			b.WriteString(cleaned[i : i+2])
		}

		cleaned = b.String()
	}

	if len(cleaned) != 17 {
		return ""
	}

	for i, c := range cleaned {
		if (i+1)%3 == 0 {
			if c != ':' {
				return ""
			}

			continue
		}

		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return ""
		}
	}

	return cleaned
}
