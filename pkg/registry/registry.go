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

// Package registry is the authoritative store of discovered devices. All
// mutation goes through explicit methods behind a single-writer,
// concurrent-reader lock; readers always get defensive copies, never the
// underlying records.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
	"github.com/vlanvision/vlanvision/pkg/probe"
)

const defaultMissThreshold = 3

// Registry holds one active record per device. Identity follows the MAC
// address when one is known: a device that moves to a new IP keeps its
// record, and the old IP goes to history rather than being dropped.
type Registry struct {
	mu sync.RWMutex

	devices map[string]*models.Device // by ID
	byIP    map[string]string         // active records only
	byMAC   map[string]string         // normalized MAC -> ID

	missThreshold int
	logger        logger.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewRegistry creates an empty registry. missThreshold is the number of
// consecutive missed probes before a device is marked down.
func NewRegistry(missThreshold int, log logger.Logger) *Registry {
	if missThreshold <= 0 {
		missThreshold = defaultMissThreshold
	}

	return &Registry{
		devices:       make(map[string]*models.Device),
		byIP:          make(map[string]string),
		byMAC:         make(map[string]string),
		missThreshold: missThreshold,
		logger:        log,
		now:           time.Now,
	}
}

// Reconcile merges one probe result into the registry. Match order: MAC
// first, then IP, then create. A success resets the miss counter and brings
// the device up immediately regardless of how far down it was.
func (r *Registry) Reconcile(res *models.ProbeResult) (*models.Device, error) {
	if res == nil {
		return nil, ErrNilResult
	}

	if res.Target == "" {
		return nil, ErrEmptyTarget
	}

	mac := models.NormalizeMAC(res.MAC)
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	dev := r.findMatchLocked(res.Target, mac)
	if dev == nil {
		dev = &models.Device{
			ID:        uuid.New().String(),
			IP:        res.Target,
			Type:      models.DeviceTypeUnknown,
			Status:    models.DeviceStatusUnknown,
			FirstSeen: now,
			Metadata:  make(map[string]string),
		}
		r.devices[dev.ID] = dev

		r.logger.Info().
			Str("device_id", dev.ID).
			Str("ip", dev.IP).
			Msg("new device discovered")
	}

	r.unindexLocked(dev)
	r.displaceLocked(dev, res.Target)
	r.applyResultLocked(dev, res, mac, now)
	r.indexLocked(dev)

	return cloneDevice(dev), nil
}

// findMatchLocked resolves the record a result belongs to. When the result's
// MAC already belongs to one device and its IP to another, the MAC owner
// wins and the IP-matched record is displaced from the address.
func (r *Registry) findMatchLocked(ip, mac string) *models.Device {
	if mac != "" {
		if id, ok := r.byMAC[mac]; ok {
			return r.devices[id]
		}
	}

	if id, ok := r.byIP[ip]; ok {
		return r.devices[id]
	}

	return nil
}

// displaceLocked evicts whatever other active record currently holds the
// address dev is about to claim. The loser keeps its identity and history
// but surrenders the IP, so at most one active record ever reports a given
// address.
func (r *Registry) displaceLocked(dev *models.Device, ip string) {
	otherID, ok := r.byIP[ip]
	if !ok || otherID == dev.ID {
		return
	}

	other := r.devices[otherID]

	delete(r.byIP, ip)
	other.PreviousIPs = appendIPHistory(other.PreviousIPs, other.IP)
	other.IP = ""

	r.logger.Info().
		Str("device_id", other.ID).
		Str("ip", ip).
		Msg("device displaced from contested address")
}

// applyResultLocked folds observed attributes into the record. Absent fields
// never erase known values: an ARP result with only a MAC must not wipe the
// hostname a previous SNMP pass learned.
func (r *Registry) applyResultLocked(dev *models.Device, res *models.ProbeResult, mac string, now time.Time) {
	if dev.IP != res.Target {
		// Most recent observation wins; the prior address goes to history.
		dev.PreviousIPs = appendIPHistory(dev.PreviousIPs, dev.IP)

		r.logger.Info().
			Str("device_id", dev.ID).
			Str("old_ip", dev.IP).
			Str("new_ip", res.Target).
			Msg("device moved to a new address")

		dev.IP = res.Target
	}

	if mac != "" && dev.MAC == "" {
		dev.MAC = mac
	}

	if res.Hostname != "" {
		dev.Hostname = res.Hostname
	}

	if res.SysDescr != "" {
		dev.SysDescr = res.SysDescr
	}

	if res.Location != "" {
		dev.Location = res.Location
	}

	if res.VLANID != nil {
		vlan := *res.VLANID
		dev.VLANID = &vlan
	}

	for k, v := range res.Metadata {
		if dev.Metadata == nil {
			dev.Metadata = make(map[string]string)
		}

		dev.Metadata[k] = v
	}

	if t, manufacturer := probe.Classify(res.SysDescr, res.OpenPorts); t != models.DeviceTypeUnknown {
		dev.Type = t

		if manufacturer != "" {
			dev.Manufacturer = manufacturer
		}
	}

	if len(res.Interfaces) > 0 {
		r.replaceInterfacesLocked(dev, res.Interfaces, now)
	}

	dev.Misses = 0
	dev.Status = models.DeviceStatusUp
	dev.LastSeen = now
}

// replaceInterfacesLocked swaps in the freshly observed interface set and
// computes utilization from the octet deltas against the previous poll.
func (r *Registry) replaceInterfacesLocked(dev *models.Device, observed []models.Interface, now time.Time) {
	elapsed := now.Sub(dev.LastSeen).Seconds()

	prev := make(map[int]models.Interface, len(dev.Interfaces))
	for _, iface := range dev.Interfaces {
		prev[iface.Index] = iface
	}

	next := make([]models.Interface, 0, len(observed))

	for _, iface := range observed {
		iface.DeviceID = dev.ID

		if old, ok := prev[iface.Index]; ok && elapsed > 0 && iface.SpeedBps > 0 {
			iface.Utilization = utilization(old, iface, elapsed)
		}

		next = append(next, iface)
	}

	dev.Interfaces = next
}

// utilization is the busier direction's bit rate as a fraction of link speed,
// clamped to 1. Counter wraps show up as a "negative" delta and report zero.
func utilization(prev, cur models.Interface, elapsedSeconds float64) float64 {
	in := counterDelta(prev.InOctets, cur.InOctets)
	out := counterDelta(prev.OutOctets, cur.OutOctets)

	busier := in
	if out > busier {
		busier = out
	}

	bps := float64(busier) * 8 / elapsedSeconds

	u := bps / float64(cur.SpeedBps)
	if u > 1 {
		u = 1
	}

	return u
}

func counterDelta(prev, cur uint64) uint64 {
	if cur < prev {
		return 0
	}

	return cur - prev
}

// RecordMiss counts one failed probe pass against the device active at the
// given IP. Misses below the threshold degrade the device; at the threshold
// it goes down. Unknown IPs are ignored: a miss against an address that never
// hosted a device is not evidence of anything.
func (r *Registry) RecordMiss(ip string) *models.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byIP[ip]
	if !ok {
		return nil
	}

	dev := r.devices[id]
	if dev.Status == models.DeviceStatusRetired || dev.Status == models.DeviceStatusUnknown {
		return cloneDevice(dev)
	}

	dev.Misses++

	switch {
	case dev.Misses >= r.missThreshold:
		if dev.Status != models.DeviceStatusDown {
			r.logger.Warn().
				Str("device_id", dev.ID).
				Str("ip", dev.IP).
				Int("misses", dev.Misses).
				Msg("device marked down")
		}

		dev.Status = models.DeviceStatusDown
	default:
		dev.Status = models.DeviceStatusDegraded
	}

	return cloneDevice(dev)
}

// RetireDevice is the operator's explicit removal. Retired records keep their
// ID and history but leave the IP/MAC indexes, freeing the address for a
// future device.
func (r *Registry) RetireDevice(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}

	if dev.Status == models.DeviceStatusRetired {
		return ErrDeviceRetired
	}

	r.unindexLocked(dev)
	dev.Status = models.DeviceStatusRetired

	r.logger.Info().Str("device_id", id).Str("ip", dev.IP).Msg("device retired")

	return nil
}

// AssignVLAN sets a device's VLAN membership by operator action. A negative
// vlanID clears it.
func (r *Registry) AssignVLAN(id string, vlanID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}

	if dev.Status == models.DeviceStatusRetired {
		return ErrDeviceRetired
	}

	if vlanID < 0 {
		dev.VLANID = nil
		return nil
	}

	dev.VLANID = &vlanID

	return nil
}

// MarkUnseen retires every active device whose last sighting predates the
// cutoff and returns their IDs. This is the only automatic path to retired;
// down alone never gets there.
func (r *Registry) MarkUnseen(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var retired []string

	for _, dev := range r.devices {
		if dev.Status == models.DeviceStatusRetired {
			continue
		}

		if dev.LastSeen.IsZero() || !dev.LastSeen.Before(cutoff) {
			continue
		}

		r.unindexLocked(dev)
		dev.Status = models.DeviceStatusRetired
		retired = append(retired, dev.ID)
	}

	if len(retired) > 0 {
		sort.Strings(retired)

		r.logger.Info().
			Int("count", len(retired)).
			Time("cutoff", cutoff).
			Msg("retired long-unseen devices")
	}

	return retired
}

// GetDevice returns a copy of the device with the given ID.
func (r *Registry) GetDevice(id string) (*models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[id]
	if !ok {
		return nil, false
	}

	return cloneDevice(dev), true
}

// GetDeviceByIP returns a copy of the active device at the given address.
func (r *Registry) GetDeviceByIP(ip string) (*models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byIP[ip]
	if !ok {
		return nil, false
	}

	return cloneDevice(r.devices[id]), true
}

// Snapshot returns copies of all non-retired devices, ordered by IP for
// stable output.
func (r *Registry) Snapshot() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Device, 0, len(r.devices))

	for _, dev := range r.devices {
		if dev.Status == models.DeviceStatusRetired {
			continue
		}

		out = append(out, *cloneDevice(dev))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })

	return out
}

// All returns copies of every record including retired ones.
func (r *Registry) All() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Device, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, *cloneDevice(dev))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })

	return out
}

// VLANGroups recomputes the derived VLAN grouping from current device state.
func (r *Registry) VLANGroups() []models.VLANGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byVLAN := make(map[int][]string)

	for _, dev := range r.devices {
		if dev.Status == models.DeviceStatusRetired || dev.VLANID == nil {
			continue
		}

		byVLAN[*dev.VLANID] = append(byVLAN[*dev.VLANID], dev.ID)
	}

	groups := make([]models.VLANGroup, 0, len(byVLAN))

	for vlan, ids := range byVLAN {
		sort.Strings(ids)
		groups = append(groups, models.VLANGroup{VLANID: vlan, DeviceIDs: ids})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].VLANID < groups[j].VLANID })

	return groups
}

// Count returns the number of non-retired devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0

	for _, dev := range r.devices {
		if dev.Status != models.DeviceStatusRetired {
			n++
		}
	}

	return n
}

// Load restores records, preserving their IDs, for warm starts from the
// history store. Records are re-indexed; restored devices start at unknown
// reachability until the next discovery pass confirms them.
func (r *Registry) Load(devices []models.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range devices {
		dev := cloneDevice(&devices[i])
		if dev.ID == "" {
			continue
		}

		if _, exists := r.devices[dev.ID]; exists {
			continue
		}

		if dev.Status != models.DeviceStatusRetired {
			dev.Status = models.DeviceStatusUnknown
			dev.Misses = 0
		}

		r.devices[dev.ID] = dev

		if dev.Status != models.DeviceStatusRetired {
			r.indexLocked(dev)
		}
	}
}

func (r *Registry) indexLocked(dev *models.Device) {
	if dev.IP != "" {
		r.byIP[dev.IP] = dev.ID
	}

	if dev.MAC != "" {
		r.byMAC[dev.MAC] = dev.ID
	}
}

func (r *Registry) unindexLocked(dev *models.Device) {
	if id, ok := r.byIP[dev.IP]; ok && id == dev.ID {
		delete(r.byIP, dev.IP)
	}

	if id, ok := r.byMAC[dev.MAC]; ok && id == dev.ID {
		delete(r.byMAC, dev.MAC)
	}
}

func appendIPHistory(history []string, ip string) []string {
	if ip == "" {
		return history
	}

	for _, h := range history {
		if h == ip {
			return history
		}
	}

	return append(history, ip)
}

func cloneDevice(src *models.Device) *models.Device {
	dst := *src

	if src.VLANID != nil {
		vlan := *src.VLANID
		dst.VLANID = &vlan
	}

	if len(src.PreviousIPs) > 0 {
		dst.PreviousIPs = append([]string(nil), src.PreviousIPs...)
	}

	if len(src.Interfaces) > 0 {
		dst.Interfaces = append([]models.Interface(nil), src.Interfaces...)
	}

	if len(src.Metadata) > 0 {
		meta := make(map[string]string, len(src.Metadata))
		for k, v := range src.Metadata {
			meta[k] = v
		}

		dst.Metadata = meta
	}

	return &dst
}
