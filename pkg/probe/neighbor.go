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

// CDP cache table columns (CISCO-CDP-MIB).
const (
	oidCDPCacheAddress    = ".1.3.6.1.4.1.9.9.23.1.2.1.1.4"
	oidCDPCacheDeviceID   = ".1.3.6.1.4.1.9.9.23.1.2.1.1.6"
	oidCDPCacheDevicePort = ".1.3.6.1.4.1.9.9.23.1.2.1.1.7"
	oidCDPCachePlatform   = ".1.3.6.1.4.1.9.9.23.1.2.1.1.8"
)

// LLDP remote table columns (LLDP-MIB).
const (
	oidLLDPRemChassisID = ".1.0.8802.1.1.2.1.4.1.1.5"
	oidLLDPRemPortID    = ".1.0.8802.1.1.2.1.4.1.1.7"
	oidLLDPRemPortDesc  = ".1.0.8802.1.1.2.1.4.1.1.8"
	oidLLDPRemSysName   = ".1.0.8802.1.1.2.1.4.1.1.9"
)

// NeighborProber walks the CDP cache, then the LLDP remote table, of one
// target and yields link-layer adjacencies. Devices that speak neither
// protocol are a normal outcome and report unreachable, not an error worth
// escalating.
type NeighborProber struct {
	settings models.SNMPSettings
	timeout  time.Duration
	logger   logger.Logger
}

// NewNeighborProber creates a CDP/LLDP prober.
func NewNeighborProber(settings models.SNMPSettings, timeout time.Duration, log logger.Logger) *NeighborProber {
	return &NeighborProber{
		settings: settings,
		timeout:  timeout,
		logger:   log,
	}
}

func (*NeighborProber) Technique() models.ProbeTechnique {
	return models.TechniqueNeighbors
}

func (p *NeighborProber) Probe(ctx context.Context, target string) (*models.ProbeResult, error) {
	client, err := newSNMPClient(ctx, target, p.settings, p.timeout)
	if err != nil {
		return nil, NewProbeError(target, models.TechniqueNeighbors, classifySNMPFailure(err), err)
	}

	if err := client.Connect(); err != nil {
		return nil, NewProbeError(target, models.TechniqueNeighbors, classifySNMPFailure(err), err)
	}

	defer func() {
		if client.Conn != nil {
			_ = client.Conn.Close()
		}
	}()

	result := &models.ProbeResult{
		Target:    target,
		Technique: models.TechniqueNeighbors,
		Timestamp: time.Now(),
	}

	neighbors, cdpErr := p.queryCDP(client, target)
	if cdpErr != nil || len(neighbors) == 0 {
		lldpNeighbors, lldpErr := p.queryLLDP(client, target)
		if lldpErr != nil && cdpErr != nil {
			// Neither table answered; the agent itself may still be fine, but
			// this probe observed nothing.
			return nil, NewProbeError(target, models.TechniqueNeighbors, classifySNMPFailure(cdpErr), cdpErr)
		}

		neighbors = append(neighbors, lldpNeighbors...)
	}

	result.Neighbors = neighbors

	return result, nil
}

// queryCDP walks the CDP cache table. Rows are indexed <ifIndex>.<deviceIdx>.
func (p *NeighborProber) queryCDP(client *gosnmp.GoSNMP, target string) ([]models.NeighborEntry, error) {
	rows := make(map[string]*models.NeighborEntry)

	walk := func(oid string, apply func(entry *models.NeighborEntry, pdu gosnmp.SnmpPDU)) error {
		return client.BulkWalk(oid, func(pdu gosnmp.SnmpPDU) error {
			index := strings.TrimPrefix(pdu.Name, oid+".")

			entry, ok := rows[index]
			if !ok {
				entry = &models.NeighborEntry{
					LocalIP:      target,
					LocalIfIndex: leadingIfIndex(index),
					Protocol:     "cdp",
				}
				rows[index] = entry
			}

			apply(entry, pdu)

			return nil
		})
	}

	if err := walk(oidCDPCacheDeviceID, func(e *models.NeighborEntry, pdu gosnmp.SnmpPDU) {
		e.DeviceID = pduString(pdu)
	}); err != nil {
		return nil, fmt.Errorf("CDP cache walk: %w", err)
	}

	_ = walk(oidCDPCacheDevicePort, func(e *models.NeighborEntry, pdu gosnmp.SnmpPDU) {
		e.Port = pduString(pdu)
	})
	_ = walk(oidCDPCachePlatform, func(e *models.NeighborEntry, pdu gosnmp.SnmpPDU) {
		e.Platform = pduString(pdu)
	})
	_ = walk(oidCDPCacheAddress, func(e *models.NeighborEntry, pdu gosnmp.SnmpPDU) {
		e.MgmtAddr = cdpAddress(pdu)
	})

	return collectNeighborRows(rows), nil
}

// queryLLDP walks the LLDP remote systems table. Rows are indexed
// <timeMark>.<localPort>.<remIndex>.
func (p *NeighborProber) queryLLDP(client *gosnmp.GoSNMP, target string) ([]models.NeighborEntry, error) {
	rows := make(map[string]*models.NeighborEntry)

	walk := func(oid string, apply func(entry *models.NeighborEntry, pdu gosnmp.SnmpPDU)) error {
		return client.BulkWalk(oid, func(pdu gosnmp.SnmpPDU) error {
			index := strings.TrimPrefix(pdu.Name, oid+".")

			entry, ok := rows[index]
			if !ok {
				entry = &models.NeighborEntry{
					LocalIP:      target,
					LocalIfIndex: lldpLocalPort(index),
					Protocol:     "lldp",
				}
				rows[index] = entry
			}

			apply(entry, pdu)

			return nil
		})
	}

	if err := walk(oidLLDPRemSysName, func(e *models.NeighborEntry, pdu gosnmp.SnmpPDU) {
		e.DeviceID = pduString(pdu)
	}); err != nil {
		return nil, fmt.Errorf("LLDP remote table walk: %w", err)
	}

	_ = walk(oidLLDPRemPortID, func(e *models.NeighborEntry, pdu gosnmp.SnmpPDU) {
		e.Port = pduString(pdu)
	})
	_ = walk(oidLLDPRemPortDesc, func(e *models.NeighborEntry, pdu gosnmp.SnmpPDU) {
		if e.Port == "" {
			e.Port = pduString(pdu)
		}
	})
	_ = walk(oidLLDPRemChassisID, func(e *models.NeighborEntry, pdu gosnmp.SnmpPDU) {
		if mac := physAddress(pdu); mac != "" && e.DeviceID == "" {
			e.DeviceID = mac
		}
	})

	return collectNeighborRows(rows), nil
}

func collectNeighborRows(rows map[string]*models.NeighborEntry) []models.NeighborEntry {
	indexes := make([]string, 0, len(rows))
	for idx := range rows {
		indexes = append(indexes, idx)
	}

	sort.Strings(indexes)

	entries := make([]models.NeighborEntry, 0, len(rows))

	for _, idx := range indexes {
		entry := rows[idx]
		if entry.DeviceID == "" && entry.MgmtAddr == "" {
			continue
		}

		entries = append(entries, *entry)
	}

	return entries
}

func leadingIfIndex(index string) int {
	parts := strings.SplitN(index, ".", 2)

	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}

	return n
}

func lldpLocalPort(index string) int {
	parts := strings.Split(index, ".")
	if len(parts) < 2 {
		return 0
	}

	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}

	return n
}

// cdpAddress decodes cdpCacheAddress, a 4-byte OctetString for IPv4.
func cdpAddress(pdu gosnmp.SnmpPDU) string {
	b, ok := pdu.Value.([]byte)
	if !ok || len(b) != 4 {
		return ""
	}

	return net.IP(b).String()
}
