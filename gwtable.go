package mqttsn

import (
	"bytes"
	"time"
)

// MaxGateways bounds the client-side gateway table.
const MaxGateways = 5

// gatewayEntryGrace extends an advertising gateway's liveness window past
// its advertised duration, tolerating one late broadcast.
const gatewayEntryGrace = 60 * time.Second

// A GatewayEntry is one row of the client's gateway table, learned from
// ADVERTISE/GWINFO traffic or added manually. A permanent entry is never
// evicted and never expires.
type GatewayEntry struct {
	address      []byte
	gwid         uint8
	duration     uint16 // advertised duration, seconds
	lastActivity time.Time
	allocated    bool
	active       bool
	permanent    bool
	advertising  bool
}

func (g *GatewayEntry) reset() { *g = GatewayEntry{} }

func (g *GatewayEntry) GatewayID() uint8 { return g.gwid }
func (g *GatewayEntry) Address() []byte { return g.address }

func (g *GatewayEntry) IsAllocated() bool { return g.allocated }
func (g *GatewayEntry) IsPermanent() bool { return g.permanent }

func (g *GatewayEntry) SetActive(b bool) { g.active = b }

// Advertised records an ADVERTISE broadcast with its duration.
func (g *GatewayEntry) Advertised(duration uint16, now time.Time) {
	g.advertising = true
	g.active = true
	g.duration = duration
	g.lastActivity = now
}

func (g *GatewayEntry) AdvertisedDuration() uint16 { return g.duration }

func (g *GatewayEntry) UpdateActivity(now time.Time) {
	g.lastActivity = now
	g.active = true
}

// IsActive reports liveness. A permanent entry is always live; an
// advertising entry survives until its advertised duration plus grace has
// elapsed since the last sign of life.
func (g *GatewayEntry) IsActive(now time.Time) bool {
	if g.permanent {
		return true
	}
	if g.advertising {
		window := time.Duration(g.duration)*time.Second + gatewayEntryGrace
		return now.Before(g.lastActivity.Add(window))
	}
	return g.active
}

func (g *GatewayEntry) Match(addr []byte) bool {
	return len(g.address) > 0 && len(addr) >= len(g.address) &&
		bytes.Equal(g.address, addr[:len(g.address)])
}

// A GatewayTable is the client's small fixed table of known gateways.
type GatewayTable struct {
	entries [MaxGateways]GatewayEntry
}

// Add inserts a gateway, reusing the first unallocated or expired slot.
// Returns false when every slot holds a live gateway.
func (t *GatewayTable) Add(addr []byte, addrLen uint8, gwid uint8, duration uint16, perm bool, now time.Time) bool {
	for i := range t.entries {
		g := &t.entries[i]
		if g.allocated && g.IsActive(now) {
			continue
		}
		g.reset()
		n := int(addrLen)
		if n > len(addr) {
			n = len(addr)
		}
		g.address = bytes.Clone(addr[:n])
		g.gwid = gwid
		g.allocated = true
		g.permanent = perm
		g.UpdateActivity(now)
		if duration > 0 {
			g.Advertised(duration, now)
		}
		return true
	}
	return false
}

// Update refreshes an existing entry's address and activity. A zero
// duration retains the previous advertised state.
func (t *GatewayTable) Update(addr []byte, addrLen uint8, gwid uint8, duration uint16, now time.Time) bool {
	for i := range t.entries {
		g := &t.entries[i]
		if !g.allocated || g.gwid != gwid {
			continue
		}
		n := int(addrLen)
		if n > len(addr) {
			n = len(addr)
		}
		g.address = bytes.Clone(addr[:n])
		g.UpdateActivity(now)
		if duration > 0 {
			g.Advertised(duration, now)
		}
		return true
	}
	return false
}

// Get returns the live entry for gwid.
func (t *GatewayTable) Get(gwid uint8, now time.Time) *GatewayEntry {
	for i := range t.entries {
		g := &t.entries[i]
		if g.allocated && g.IsActive(now) && g.gwid == gwid {
			return g
		}
	}
	return nil
}

// GetByAddress returns the live entry whose address matches.
func (t *GatewayTable) GetByAddress(addr []byte, now time.Time) *GatewayEntry {
	for i := range t.entries {
		g := &t.entries[i]
		if g.allocated && g.IsActive(now) && g.Match(addr) {
			return g
		}
	}
	return nil
}

// Available returns the first live entry, if any.
func (t *GatewayTable) Available(now time.Time) *GatewayEntry {
	for i := range t.entries {
		g := &t.entries[i]
		if g.allocated && g.IsActive(now) {
			return g
		}
	}
	return nil
}

// Delete clears the entry for gwid so the slot can be reused.
func (t *GatewayTable) Delete(gwid uint8) bool {
	for i := range t.entries {
		if t.entries[i].allocated && t.entries[i].gwid == gwid {
			t.entries[i].reset()
			return true
		}
	}
	return false
}
