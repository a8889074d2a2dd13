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

package probe

import (
	"strings"

	"github.com/vlanvision/vlanvision/pkg/models"
)

// vendorPattern maps substrings of sysDescr onto a manufacturer.
type vendorPattern struct {
	manufacturer string
	patterns     []string
}

// Ordered so more specific vendors win over generic ones.
var vendorPatterns = []vendorPattern{
	{"Cisco", []string{"cisco", "ios", "catalyst", "nexus"}},
	{"Juniper", []string{"juniper", "junos"}},
	{"Arista", []string{"arista", "eos"}},
	{"Fortinet", []string{"fortinet", "fortigate"}},
	{"Palo Alto", []string{"palo alto", "pan-os"}},
	{"Check Point", []string{"check point", "gaia"}},
	{"Ubiquiti", []string{"ubiquiti", "unifi", "edgeos"}},
	{"Ruckus", []string{"ruckus"}},
	{"MikroTik", []string{"mikrotik", "routeros"}},
	{"HP", []string{"procurve", "aruba", "hewlett"}},
	{"Dell", []string{"force10", "powerconnect", "dell"}},
	{"Microsoft", []string{"windows"}},
	{"Linux", []string{"linux"}},
}

// Classify derives the device class and manufacturer from probe evidence.
// The type set is closed: evidence that matches nothing yields
// DeviceTypeUnknown, never a new ad hoc value.
func Classify(sysDescr string, openPorts []int) (models.DeviceType, string) {
	descr := strings.ToLower(sysDescr)

	if descr != "" {
		if t, manufacturer := classifyByDescription(descr); t != models.DeviceTypeUnknown {
			return t, manufacturer
		}
	}

	return classifyByPorts(openPorts), ""
}

func classifyByDescription(descr string) (models.DeviceType, string) {
	for _, vendor := range vendorPatterns {
		for _, pattern := range vendor.patterns {
			if !strings.Contains(descr, pattern) {
				continue
			}

			return typeForDescription(descr, vendor.manufacturer), vendor.manufacturer
		}
	}

	return models.DeviceTypeUnknown, ""
}

func typeForDescription(descr, manufacturer string) models.DeviceType {
	switch {
	case strings.Contains(descr, "switch"), strings.Contains(descr, "catalyst"),
		strings.Contains(descr, "nexus"), strings.Contains(descr, "procurve"):
		return models.DeviceTypeSwitch
	case strings.Contains(descr, "router"), strings.Contains(descr, "ios xr"),
		strings.Contains(descr, "routeros"):
		return models.DeviceTypeRouter
	case strings.Contains(descr, "firewall"), strings.Contains(descr, "asa"),
		strings.Contains(descr, "pix"), strings.Contains(descr, "fortigate"),
		strings.Contains(descr, "pan-os"):
		return models.DeviceTypeFirewall
	case strings.Contains(descr, "access point"), strings.Contains(descr, "unifi"),
		strings.Contains(descr, " ap"):
		return models.DeviceTypeAccessPoint
	case strings.Contains(descr, "windows"), strings.Contains(descr, "linux"),
		strings.Contains(descr, "server"):
		return models.DeviceTypeServer
	default:
		return fallbackTypeForVendor(manufacturer)
	}
}

// fallbackTypeForVendor picks the class a vendor most commonly ships when the
// description names the vendor but not the role.
func fallbackTypeForVendor(manufacturer string) models.DeviceType {
	switch manufacturer {
	case "Cisco", "Arista", "HP", "Dell":
		return models.DeviceTypeSwitch
	case "Juniper", "MikroTik":
		return models.DeviceTypeRouter
	case "Fortinet", "Palo Alto", "Check Point":
		return models.DeviceTypeFirewall
	case "Ubiquiti", "Ruckus":
		return models.DeviceTypeAccessPoint
	case "Microsoft", "Linux":
		return models.DeviceTypeServer
	default:
		return models.DeviceTypeUnknown
	}
}

// classifyByPorts is the last-resort heuristic for hosts with no usable
// system description.
func classifyByPorts(openPorts []int) models.DeviceType {
	if len(openPorts) == 0 {
		return models.DeviceTypeUnknown
	}

	open := make(map[int]bool, len(openPorts))
	for _, p := range openPorts {
		open[p] = true
	}

	switch {
	case open[161] && open[23]:
		// An SNMP agent next to a telnet console is nearly always managed
		// network gear.
		return models.DeviceTypeSwitch
	case open[3389] || open[445]:
		return models.DeviceTypeServer
	case open[22] && (open[80] || open[443]):
		return models.DeviceTypeServer
	default:
		return models.DeviceTypeUnknown
	}
}
