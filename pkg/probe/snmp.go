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
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

// System group.
const (
	oidSysDescr    = ".1.3.6.1.2.1.1.1.0"
	oidSysObjectID = ".1.3.6.1.2.1.1.2.0"
	oidSysUptime   = ".1.3.6.1.2.1.1.3.0"
	oidSysName     = ".1.3.6.1.2.1.1.5.0"
	oidSysLocation = ".1.3.6.1.2.1.1.6.0"
)

// ifTable columns.
const (
	oidIfTable       = ".1.3.6.1.2.1.2.2.1"
	oidIfDescr       = ".1.3.6.1.2.1.2.2.1.2"
	oidIfSpeed       = ".1.3.6.1.2.1.2.2.1.5"
	oidIfPhysAddress = ".1.3.6.1.2.1.2.2.1.6"
	oidIfOperStatus  = ".1.3.6.1.2.1.2.2.1.8"
	oidIfInOctets    = ".1.3.6.1.2.1.2.2.1.10"
	oidIfInErrors    = ".1.3.6.1.2.1.2.2.1.14"
	oidIfOutOctets   = ".1.3.6.1.2.1.2.2.1.16"
	oidIfOutErrors   = ".1.3.6.1.2.1.2.2.1.20"
)

// Cisco VLAN tables: vtpVlanState enumerates the VLANs the device knows
// about, vmVlan gives per-port access VLAN membership.
const (
	oidVtpVlanState = ".1.3.6.1.4.1.9.9.46.1.3.1.1.2"
	oidVmVlan       = ".1.3.6.1.4.1.9.9.68.1.2.2.1.2"
)

// SNMPProber queries the system group, the interface table, and VLAN
// membership of one target over SNMP.
type SNMPProber struct {
	settings models.SNMPSettings
	timeout  time.Duration
	logger   logger.Logger
}

// NewSNMPProber creates an SNMP prober with the given credentials.
func NewSNMPProber(settings models.SNMPSettings, timeout time.Duration, log logger.Logger) *SNMPProber {
	return &SNMPProber{
		settings: settings,
		timeout:  timeout,
		logger:   log,
	}
}

func (*SNMPProber) Technique() models.ProbeTechnique {
	return models.TechniqueSNMP
}

// Probe queries one target. On any failure it returns a *ProbeError; a host
// that does not answer SNMP at all is unreachable, not broken.
func (p *SNMPProber) Probe(ctx context.Context, target string) (*models.ProbeResult, error) {
	client, err := newSNMPClient(ctx, target, p.settings, p.timeout)
	if err != nil {
		return nil, NewProbeError(target, models.TechniqueSNMP, classifySNMPFailure(err), err)
	}

	if err := client.Connect(); err != nil {
		return nil, NewProbeError(target, models.TechniqueSNMP, classifySNMPFailure(err), err)
	}
	defer p.closeClient(client)

	result := &models.ProbeResult{
		Target:    target,
		Technique: models.TechniqueSNMP,
		Metadata:  make(map[string]string),
		Timestamp: time.Now(),
	}

	if err := p.querySysInfo(client, result); err != nil {
		return nil, err
	}

	if err := p.queryInterfaces(client, result); err != nil {
		// System info came back, so the agent is alive. Interface table
		// trouble degrades the result, it does not fail the probe.
		p.logger.Debug().Err(err).Str("target", target).Msg("interface table walk failed")
	}

	p.queryVLANs(client, result)

	return result, nil
}

func (p *SNMPProber) closeClient(client *gosnmp.GoSNMP) {
	if client.Conn == nil {
		return
	}

	if err := client.Conn.Close(); err != nil {
		p.logger.Debug().Err(err).Msg("failed to close SNMP connection")
	}
}

// querySysInfo fetches the system group and fills identity attributes.
func (p *SNMPProber) querySysInfo(client *gosnmp.GoSNMP, result *models.ProbeResult) error {
	oids := []string{oidSysDescr, oidSysObjectID, oidSysUptime, oidSysName, oidSysLocation}

	packet, err := client.Get(oids)
	if err != nil {
		return NewProbeError(result.Target, models.TechniqueSNMP, classifySNMPFailure(err), err)
	}

	if packet.Error != gosnmp.NoError {
		err := fmt.Errorf("SNMP error status %d at index %d", packet.Error, packet.ErrorIndex)
		return NewProbeError(result.Target, models.TechniqueSNMP, models.ProbeErrMalformed, err)
	}

	for _, v := range packet.Variables {
		if v.Type == gosnmp.NoSuchObject || v.Type == gosnmp.NoSuchInstance {
			continue
		}

		switch v.Name {
		case oidSysDescr:
			result.SysDescr = pduString(v)
		case oidSysObjectID:
			if v.Type == gosnmp.ObjectIdentifier {
				result.SysObjectID = fmt.Sprintf("%v", v.Value)
			}
		case oidSysUptime:
			if v.Type == gosnmp.TimeTicks {
				result.Uptime = time.Duration(gosnmp.ToBigInt(v.Value).Int64()) * 10 * time.Millisecond
			}
		case oidSysName:
			result.Hostname = pduString(v)
		case oidSysLocation:
			result.Location = pduString(v)
		}
	}

	if result.SysDescr == "" && result.Hostname == "" {
		err := fmt.Errorf("system group returned no usable values")
		return NewProbeError(result.Target, models.TechniqueSNMP, models.ProbeErrMalformed, err)
	}

	return nil
}

// queryInterfaces walks the ifTable and replaces the result's interface set.
func (p *SNMPProber) queryInterfaces(client *gosnmp.GoSNMP, result *models.ProbeResult) error {
	ifMap := make(map[int]*models.Interface)

	err := client.BulkWalk(oidIfTable, func(pdu gosnmp.SnmpPDU) error {
		column, index, ok := splitColumnIndex(pdu.Name, oidIfTable)
		if !ok {
			return nil
		}

		iface, exists := ifMap[index]
		if !exists {
			iface = &models.Interface{Index: index, OperStatus: "unknown"}
			ifMap[index] = iface
		}

		switch column {
		case "2": // ifDescr
			iface.Name = pduString(pdu)
		case "5": // ifSpeed
			iface.SpeedBps = gosnmp.ToBigInt(pdu.Value).Uint64()
		case "6": // ifPhysAddress
			iface.MAC = physAddress(pdu)
		case "8": // ifOperStatus
			if gosnmp.ToBigInt(pdu.Value).Int64() == 1 {
				iface.OperStatus = "up"
			} else {
				iface.OperStatus = "down"
			}
		case "10":
			iface.InOctets = gosnmp.ToBigInt(pdu.Value).Uint64()
		case "14":
			iface.InErrors = gosnmp.ToBigInt(pdu.Value).Uint64()
		case "16":
			iface.OutOctets = gosnmp.ToBigInt(pdu.Value).Uint64()
		case "20":
			iface.OutErrors = gosnmp.ToBigInt(pdu.Value).Uint64()
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("ifTable walk: %w", err)
	}

	indexes := make([]int, 0, len(ifMap))
	for idx := range ifMap {
		indexes = append(indexes, idx)
	}

	sort.Ints(indexes)

	for _, idx := range indexes {
		iface := ifMap[idx]

		result.Interfaces = append(result.Interfaces, *iface)

		// First physical address doubles as the device MAC when ARP has not
		// supplied one.
		if result.MAC == "" && iface.MAC != "" {
			result.MAC = iface.MAC
		}
	}

	return nil
}

// queryVLANs walks the Cisco VLAN tables. The vtpVlanState inventory lands in
// metadata; when every access port reports the same vmVlan membership that
// VLAN is taken as the device's own. Non-Cisco devices simply fail the walk
// and keep a nil VLAN.
func (p *SNMPProber) queryVLANs(client *gosnmp.GoSNMP, result *models.ProbeResult) {
	var vlans []string

	_ = client.BulkWalk(oidVtpVlanState, func(pdu gosnmp.SnmpPDU) error {
		// Index is <mgmtDomain>.<vlanID>.
		parts := strings.Split(strings.TrimPrefix(pdu.Name, oidVtpVlanState+"."), ".")
		if len(parts) == 2 {
			vlans = append(vlans, parts[1])
		}

		return nil
	})

	if len(vlans) > 0 {
		result.Metadata["vlans"] = strings.Join(vlans, ",")
	}

	memberships := make(map[int]struct{})

	_ = client.BulkWalk(oidVmVlan, func(pdu gosnmp.SnmpPDU) error {
		memberships[int(gosnmp.ToBigInt(pdu.Value).Int64())] = struct{}{}
		return nil
	})

	if len(memberships) == 1 {
		for vlan := range memberships {
			v := vlan
			result.VLANID = &v
		}
	}
}

// newSNMPClient builds a gosnmp client honoring both the per-probe timeout
// and any earlier context deadline.
func newSNMPClient(ctx context.Context, target string, settings models.SNMPSettings, timeout time.Duration) (*gosnmp.GoSNMP, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	version := gosnmp.Version2c

	switch strings.ToLower(settings.Version) {
	case "v1", "1":
		version = gosnmp.Version1
	case "v3", "3":
		version = gosnmp.Version3
	}

	port := settings.Port
	if port == 0 {
		port = 161
	}

	retries := settings.Retries
	if retries < 0 {
		retries = 0
	}

	return &gosnmp.GoSNMP{
		Target:    target,
		Port:      port,
		Community: settings.Community,
		Version:   version,
		Timeout:   timeout,
		Retries:   retries,
		MaxOids:   gosnmp.MaxOids,
	}, nil
}

func pduString(pdu gosnmp.SnmpPDU) string {
	if pdu.Type != gosnmp.OctetString {
		return ""
	}

	b, ok := pdu.Value.([]byte)
	if !ok {
		return ""
	}

	return strings.TrimSpace(string(b))
}

// physAddress renders an OctetString MAC as colon-separated hex.
func physAddress(pdu gosnmp.SnmpPDU) string {
	b, ok := pdu.Value.([]byte)
	if !ok || len(b) != 6 {
		return ""
	}

	mac := net.HardwareAddr(b).String()

	return models.NormalizeMAC(mac)
}

// splitColumnIndex splits an ifTable PDU name into column and row index.
func splitColumnIndex(name, tableOID string) (column string, index int, ok bool) {
	suffix := strings.TrimPrefix(name, tableOID+".")
	parts := strings.SplitN(suffix, ".", 2)

	if len(parts) != 2 {
		return "", 0, false
	}

	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, false
	}

	return parts[0], idx, true
}
