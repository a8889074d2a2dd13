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

package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
)

func newTestRegistry(missThreshold int) *Registry {
	return NewRegistry(missThreshold, logger.NewTestLogger())
}

func snmpResult(ip, mac, hostname string) *models.ProbeResult {
	return &models.ProbeResult{
		Target:    ip,
		Technique: models.TechniqueSNMP,
		MAC:       mac,
		Hostname:  hostname,
		Timestamp: time.Now(),
	}
}

func TestReconcileCreatesDevice(t *testing.T) {
	r := newTestRegistry(3)

	dev, err := r.Reconcile(snmpResult("192.168.1.1", "AA:BB:CC:00:00:01", "sw1"))
	require.NoError(t, err)

	assert.NotEmpty(t, dev.ID)
	assert.Equal(t, "192.168.1.1", dev.IP)
	assert.Equal(t, "AA:BB:CC:00:00:01", dev.MAC)
	assert.Equal(t, "sw1", dev.Hostname)
	assert.Equal(t, models.DeviceStatusUp, dev.Status)
	assert.Equal(t, 1, r.Count())
}

func TestReconcileRejectsBadInput(t *testing.T) {
	r := newTestRegistry(3)

	_, err := r.Reconcile(nil)
	assert.ErrorIs(t, err, ErrNilResult)

	_, err = r.Reconcile(&models.ProbeResult{})
	assert.ErrorIs(t, err, ErrEmptyTarget)
}

// MAC-keyed upsert is idempotent: any sequence of results carrying the same
// MAC leaves exactly one record, whatever the interleaving of IPs.
func TestReconcileMACUpsertIdempotence(t *testing.T) {
	r := newTestRegistry(3)

	const mac = "AA:BB:CC:00:00:01"

	sequences := []string{
		"10.0.0.1", "10.0.0.1", "10.0.0.2", "10.0.0.1", "10.0.0.3", "10.0.0.3",
	}

	var firstID string

	for i, ip := range sequences {
		dev, err := r.Reconcile(snmpResult(ip, mac, "sw1"))
		require.NoError(t, err)

		if i == 0 {
			firstID = dev.ID
		}

		assert.Equal(t, firstID, dev.ID, "result %d must map to the original record", i)
		assert.Equal(t, 1, r.Count())
	}

	dev, ok := r.GetDevice(firstID)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.3", dev.IP)
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, dev.PreviousIPs)
}

// A MAC arriving at a known IP upgrades the record in place.
func TestReconcileIPMatchAdoptsMAC(t *testing.T) {
	r := newTestRegistry(3)

	first, err := r.Reconcile(&models.ProbeResult{Target: "10.0.0.9", Technique: models.TechniqueARP})
	require.NoError(t, err)
	assert.Empty(t, first.MAC)

	second, err := r.Reconcile(snmpResult("10.0.0.9", "DE:AD:BE:EF:00:09", "host9"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "DE:AD:BE:EF:00:09", second.MAC)
	assert.Equal(t, 1, r.Count())
}

// A device that moves onto an address another active record still holds
// displaces that record: the address keeps exactly one active owner.
func TestReconcileDisplacesPreviousIPOwner(t *testing.T) {
	r := newTestRegistry(3)

	a, err := r.Reconcile(snmpResult("10.0.0.1", "AA:BB:CC:00:00:0A", "a"))
	require.NoError(t, err)

	b, err := r.Reconcile(snmpResult("10.0.0.2", "AA:BB:CC:00:00:0B", "b"))
	require.NoError(t, err)

	// b takes over a's address.
	moved, err := r.Reconcile(snmpResult("10.0.0.1", "AA:BB:CC:00:00:0B", "b"))
	require.NoError(t, err)
	assert.Equal(t, b.ID, moved.ID)
	assert.Equal(t, "10.0.0.1", moved.IP)

	owner, ok := r.GetDeviceByIP("10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, b.ID, owner.ID)

	displaced, ok := r.GetDevice(a.ID)
	require.True(t, ok)
	assert.Empty(t, displaced.IP)
	assert.Contains(t, displaced.PreviousIPs, "10.0.0.1")

	seen := make(map[string]bool)

	for _, dev := range r.Snapshot() {
		if dev.IP == "" {
			continue
		}

		assert.False(t, seen[dev.IP], "two active records report %s", dev.IP)
		seen[dev.IP] = true
	}
}

// Sparse results never erase attributes a richer technique learned.
func TestReconcilePartialResultPreservesAttributes(t *testing.T) {
	r := newTestRegistry(3)

	vlan := 10
	_, err := r.Reconcile(&models.ProbeResult{
		Target:   "10.0.0.5",
		MAC:      "AA:BB:CC:00:00:05",
		Hostname: "core-sw",
		SysDescr: "Cisco IOS Catalyst",
		VLANID:   &vlan,
	})
	require.NoError(t, err)

	// Bare ARP pass for the same device.
	dev, err := r.Reconcile(&models.ProbeResult{Target: "10.0.0.5", MAC: "AA:BB:CC:00:00:05"})
	require.NoError(t, err)

	assert.Equal(t, "core-sw", dev.Hostname)
	assert.Equal(t, "Cisco IOS Catalyst", dev.SysDescr)
	require.NotNil(t, dev.VLANID)
	assert.Equal(t, 10, *dev.VLANID)
	assert.Equal(t, models.DeviceTypeSwitch, dev.Type)
}

// A device goes down after exactly N consecutive misses, never fewer, and
// interleaved misses against other devices do not contaminate the count.
func TestMissThresholdExact(t *testing.T) {
	const n = 3

	r := newTestRegistry(n)

	_, err := r.Reconcile(snmpResult("10.0.0.1", "AA:BB:CC:00:00:01", "a"))
	require.NoError(t, err)
	_, err = r.Reconcile(snmpResult("10.0.0.2", "AA:BB:CC:00:00:02", "b"))
	require.NoError(t, err)

	for i := 1; i < n; i++ {
		dev := r.RecordMiss("10.0.0.1")
		require.NotNil(t, dev)
		assert.Equal(t, models.DeviceStatusDegraded, dev.Status, "miss %d of %d must only degrade", i, n)

		// Interleave misses against the other device.
		other := r.RecordMiss("10.0.0.2")
		require.NotNil(t, other)
		assert.NotEqual(t, models.DeviceStatusDown, other.Status)
	}

	dev := r.RecordMiss("10.0.0.1")
	require.NotNil(t, dev)
	assert.Equal(t, models.DeviceStatusDown, dev.Status)

	// The interleaved device had n-1 misses and must go down on its own nth.
	other := r.RecordMiss("10.0.0.2")
	require.NotNil(t, other)
	assert.Equal(t, models.DeviceStatusDown, other.Status)
}

// down -> up is immediate on the next success, and the miss counter resets.
func TestRecoveryIsImmediate(t *testing.T) {
	r := newTestRegistry(2)

	_, err := r.Reconcile(snmpResult("10.0.0.1", "AA:BB:CC:00:00:01", "a"))
	require.NoError(t, err)

	r.RecordMiss("10.0.0.1")
	down := r.RecordMiss("10.0.0.1")
	require.Equal(t, models.DeviceStatusDown, down.Status)

	dev, err := r.Reconcile(snmpResult("10.0.0.1", "AA:BB:CC:00:00:01", "a"))
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusUp, dev.Status)

	// After recovery the full threshold applies again.
	degraded := r.RecordMiss("10.0.0.1")
	assert.Equal(t, models.DeviceStatusDegraded, degraded.Status)
}

func TestRecordMissUnknownIP(t *testing.T) {
	r := newTestRegistry(3)
	assert.Nil(t, r.RecordMiss("10.9.9.9"))
}

func TestRetireDevice(t *testing.T) {
	r := newTestRegistry(3)

	dev, err := r.Reconcile(snmpResult("10.0.0.1", "AA:BB:CC:00:00:01", "a"))
	require.NoError(t, err)

	require.NoError(t, r.RetireDevice(dev.ID))
	assert.ErrorIs(t, r.RetireDevice(dev.ID), ErrDeviceRetired)
	assert.ErrorIs(t, r.RetireDevice("no-such-id"), ErrDeviceNotFound)

	// Retired records leave the active indexes and the snapshot.
	_, ok := r.GetDeviceByIP("10.0.0.1")
	assert.False(t, ok)
	assert.Zero(t, r.Count())
	assert.Len(t, r.All(), 1)

	// The freed address may host a brand new device.
	fresh, err := r.Reconcile(snmpResult("10.0.0.1", "AA:BB:CC:00:00:99", "new"))
	require.NoError(t, err)
	assert.NotEqual(t, dev.ID, fresh.ID)
}

func TestMarkUnseen(t *testing.T) {
	r := newTestRegistry(3)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	stale, err := r.Reconcile(snmpResult("10.0.0.1", "AA:BB:CC:00:00:01", "old"))
	require.NoError(t, err)

	r.now = func() time.Time { return base.Add(2 * time.Hour) }

	fresh, err := r.Reconcile(snmpResult("10.0.0.2", "AA:BB:CC:00:00:02", "new"))
	require.NoError(t, err)

	retired := r.MarkUnseen(base.Add(time.Hour))
	assert.Equal(t, []string{stale.ID}, retired)

	got, ok := r.GetDevice(stale.ID)
	require.True(t, ok)
	assert.Equal(t, models.DeviceStatusRetired, got.Status)

	got, ok = r.GetDevice(fresh.ID)
	require.True(t, ok)
	assert.Equal(t, models.DeviceStatusUp, got.Status)
}

func TestVLANGroups(t *testing.T) {
	r := newTestRegistry(3)

	vlan10 := 10
	vlan20 := 20

	for i, vlan := range []*int{&vlan10, &vlan10, &vlan20, nil} {
		_, err := r.Reconcile(&models.ProbeResult{
			Target: fmt.Sprintf("10.0.0.%d", i+1),
			MAC:    fmt.Sprintf("AA:BB:CC:00:00:0%d", i+1),
			VLANID: vlan,
		})
		require.NoError(t, err)
	}

	groups := r.VLANGroups()
	require.Len(t, groups, 2)

	assert.Equal(t, 10, groups[0].VLANID)
	assert.Len(t, groups[0].DeviceIDs, 2)
	assert.Equal(t, 20, groups[1].VLANID)
	assert.Len(t, groups[1].DeviceIDs, 1)
}

func TestAssignVLAN(t *testing.T) {
	r := newTestRegistry(3)

	dev, err := r.Reconcile(snmpResult("10.0.0.1", "AA:BB:CC:00:00:01", "a"))
	require.NoError(t, err)

	require.NoError(t, r.AssignVLAN(dev.ID, 30))

	got, _ := r.GetDevice(dev.ID)
	require.NotNil(t, got.VLANID)
	assert.Equal(t, 30, *got.VLANID)

	require.NoError(t, r.AssignVLAN(dev.ID, -1))

	got, _ = r.GetDevice(dev.ID)
	assert.Nil(t, got.VLANID)

	assert.ErrorIs(t, r.AssignVLAN("nope", 1), ErrDeviceNotFound)
}

func TestInterfaceUtilization(t *testing.T) {
	r := newTestRegistry(3)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	_, err := r.Reconcile(&models.ProbeResult{
		Target: "10.0.0.1",
		MAC:    "AA:BB:CC:00:00:01",
		Interfaces: []models.Interface{
			{Index: 1, Name: "Gi0/1", SpeedBps: 1_000_000_000, InOctets: 0, OutOctets: 0},
		},
	})
	require.NoError(t, err)

	// 10 seconds later, 125 MB in: 100 Mbit/s on a gigabit link = 10%.
	r.now = func() time.Time { return base.Add(10 * time.Second) }

	dev, err := r.Reconcile(&models.ProbeResult{
		Target: "10.0.0.1",
		MAC:    "AA:BB:CC:00:00:01",
		Interfaces: []models.Interface{
			{Index: 1, Name: "Gi0/1", SpeedBps: 1_000_000_000, InOctets: 125_000_000, OutOctets: 1000},
		},
	})
	require.NoError(t, err)

	require.Len(t, dev.Interfaces, 1)
	assert.InDelta(t, 0.1, dev.Interfaces[0].Utilization, 0.001)
	assert.Equal(t, dev.ID, dev.Interfaces[0].DeviceID)
}

func TestLoadWarmStart(t *testing.T) {
	r := newTestRegistry(3)

	vlan := 10
	r.Load([]models.Device{
		{ID: "restored-1", IP: "10.0.0.1", MAC: "AA:BB:CC:00:00:01", Status: models.DeviceStatusUp, VLANID: &vlan},
		{ID: "", IP: "10.0.0.2"}, // no ID, skipped
	})

	dev, ok := r.GetDevice("restored-1")
	require.True(t, ok)
	assert.Equal(t, models.DeviceStatusUnknown, dev.Status, "restored devices await confirmation")

	// The restored record keeps its ID across the next sighting.
	seen, err := r.Reconcile(snmpResult("10.0.0.1", "AA:BB:CC:00:00:01", "sw"))
	require.NoError(t, err)
	assert.Equal(t, "restored-1", seen.ID)
	assert.Equal(t, 1, r.Count())
}

// Snapshot readers never block behind a writer for long and never observe
// shared mutable state.
func TestConcurrentReadersAndWriters(t *testing.T) {
	r := newTestRegistry(3)

	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)

		go func(w int) {
			defer wg.Done()

			for i := 0; i < 100; i++ {
				_, err := r.Reconcile(snmpResult(
					fmt.Sprintf("10.%d.0.%d", w, i%10),
					fmt.Sprintf("AA:BB:CC:%02d:00:%02d", w, i%10),
					"host",
				))
				require.NoError(t, err)
			}
		}(w)
	}

	for rd := 0; rd < 4; rd++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := 0; i < 100; i++ {
				snap := r.Snapshot()

				for j := range snap {
					snap[j].Hostname = "scribbled"
				}

				_ = r.VLANGroups()
			}
		}()
	}

	wg.Wait()

	for _, dev := range r.Snapshot() {
		assert.Equal(t, "host", dev.Hostname)
	}

	assert.Equal(t, 40, r.Count())
}
