package mqttsn

import (
	"bytes"
	"sync"
	"time"
)

// sentFrame records one link transmission.
type sentFrame struct {
	dest  []byte
	frame []byte
}

// memLink is the in-memory PacketLink used across the package tests:
// 1-octet addresses, 32-octet payload width, every Send recorded. An
// optional deliver hook wires two links back to back.
type memLink struct {
	width     uint8
	addrLen   uint8
	ownAddr   []byte
	broadcast []byte

	mu      sync.Mutex
	onRecv  func(src, frame []byte)
	sent    []sentFrame
	deliver func(dest, frame []byte)
	drop    bool // discard without reporting failure
}

func newMemLink(ownAddr byte) *memLink {
	return &memLink{
		width:     32,
		addrLen:   1,
		ownAddr:   []byte{ownAddr},
		broadcast: []byte{0xFF},
	}
}

func (l *memLink) PayloadWidth() uint8 { return l.width }
func (l *memLink) AddressLen() uint8 { return l.addrLen }
func (l *memLink) BroadcastAddress() []byte { return l.broadcast }

func (l *memLink) Initialise(unicast, broadcast []byte, addrLen uint8) bool { return true }

func (l *memLink) Shutdown() {}

func (l *memLink) OnReceived(fn func(src, frame []byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onRecv = fn
}

func (l *memLink) Send(dest, frame []byte) bool {
	l.mu.Lock()
	l.sent = append(l.sent, sentFrame{dest: bytes.Clone(dest), frame: bytes.Clone(frame)})
	deliver := l.deliver
	drop := l.drop
	l.mu.Unlock()
	if !drop && deliver != nil {
		deliver(dest, frame)
	}
	return true
}

// inject delivers a raw frame to the engine as if received off the air.
func (l *memLink) inject(src byte, frame []byte) {
	l.mu.Lock()
	fn := l.onRecv
	l.mu.Unlock()
	if fn != nil {
		fn([]byte{src}, frame)
	}
}

// sentKinds lists the kind octet of every recorded transmission.
func (l *memLink) sentKinds() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	kinds := make([]byte, 0, len(l.sent))
	for _, s := range l.sent {
		kinds = append(kinds, s.frame[1])
	}
	return kinds
}

// lastSent returns the most recent transmission of the given kind.
func (l *memLink) lastSent(kind byte) *sentFrame {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.sent) - 1; i >= 0; i-- {
		if l.sent[i].frame[1] == kind {
			return &l.sent[i]
		}
	}
	return nil
}

func (l *memLink) countSent(kind byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.sent {
		if s.frame[1] == kind {
			n++
		}
	}
	return n
}

func (l *memLink) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = nil
}

// fakeClock drives the engines through simulated time.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
