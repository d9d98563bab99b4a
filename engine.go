package mqttsn

import (
	"bytes"
	"log"
	"sync"
	"time"

	"github.com/golang-io/mqttsn/packet"
	"github.com/golang-io/mqttsn/topic"
)

// InboundRingDepth bounds the frames buffered between the link callback
// and the Manage loop. The oldest entry is overwritten silently when the
// loop lags; peers retry.
const InboundRingDepth = 20

// Default retry discipline for every multi-step exchange.
const (
	DefaultTretry = time.Second
	DefaultNretry = uint16(5)
)

const maxKind = 0x1D

// handlerFunc processes one dispatched frame. src is the link source
// address; pkt is the decoded typed record.
type handlerFunc func(src []byte, pkt packet.Packet)

type inboundFrame struct {
	set   bool
	addr  []byte
	frame []byte
}

// engine is the wire core shared by Client and Server: the inbound ring
// fed by the link callback, the static dispatch table, the frame write
// path, the retry clock and the predefined-topic registry. All state is
// guarded by mu; dispatch happens only inside Manage on the host's
// thread.
type engine struct {
	mu   sync.Mutex
	link PacketLink
	now  func() time.Time

	tretry time.Duration
	nretry uint16

	predefined *topic.Registry
	handlers   [maxKind + 1]handlerFunc

	ring     [InboundRingDepth]inboundFrame
	ringHead int
}

func (e *engine) init(link PacketLink, options Options) {
	e.link = link
	e.now = time.Now
	e.tretry = options.Tretry
	e.nretry = options.Nretry
	if e.tretry <= 0 {
		e.tretry = DefaultTretry
	}
	e.predefined = topic.NewRegistry()
	link.OnReceived(e.queueReceived)
}

// SetRetryAttributes tunes the retry discipline for all future exchanges.
func (e *engine) SetRetryAttributes(tretry time.Duration, nretry uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tretry = tretry
	e.nretry = nretry
}

// CreatePredefinedTopic binds id to name in the shared predefined table.
// Predefined topics must be in place before Manage starts.
func (e *engine) CreatePredefinedTopic(id uint16, name string) error {
	if len(name) > int(e.link.PayloadWidth())-packet.RegisterHdrLen {
		return ErrPayloadTooLarge
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.predefined.CreateTopic(name, id, true)
	return err
}

// Shutdown powers the link down.
func (e *engine) Shutdown() {
	e.link.Shutdown()
}

// queueReceived is the link delivery callback: copy the frame into the
// ring and get out. Oversized or truncated frames are dropped here.
func (e *engine) queueReceived(src, frame []byte) {
	if len(frame) < packet.HdrLen || len(frame) > int(e.link.PayloadWidth()) {
		return
	}
	if frame[1] > maxKind {
		return
	}
	stat.PacketReceived.Inc()
	stat.ByteReceived.Add(float64(len(frame)))

	e.mu.Lock()
	defer e.mu.Unlock()
	e.ringHead++
	if e.ringHead >= InboundRingDepth {
		e.ringHead = 0
	}
	if n := int(e.link.AddressLen()); len(src) > n {
		src = src[:n]
	}
	slot := &e.ring[e.ringHead]
	slot.set = true
	slot.addr = bytes.Clone(src)
	slot.frame = bytes.Clone(frame)
}

// dispatchQueue drains the inbound ring oldest-first, decoding each frame
// and routing it through the dispatch table. Malformed frames are dropped
// silently; unknown kinds are ignored. Callers hold mu.
func (e *engine) dispatchQueue() {
	pos := e.ringHead + 1
	for i := 0; i < InboundRingDepth; i++ {
		if pos >= InboundRingDepth {
			pos = 0
		}
		slot := &e.ring[pos]
		pos++
		if !slot.set {
			continue
		}
		slot.set = false
		pkt, err := packet.Decode(slot.frame, int(e.link.PayloadWidth()))
		if err != nil {
			stat.FramesDropped.Inc()
			continue
		}
		if h := e.handlers[pkt.Kind()]; h != nil {
			h(slot.addr, pkt)
		}
	}
}

// addrWrite encodes and transmits one frame to an explicit address,
// bypassing any message queue.
func (e *engine) addrWrite(addr []byte, pkt packet.Packet) bool {
	frame, err := packet.Encode(pkt)
	if err != nil {
		log.Printf("encode failed: kind=%s, err=%v", packet.Kind[pkt.Kind()], err)
		return false
	}
	return e.sendRaw(addr, frame)
}

func (e *engine) sendRaw(addr, frame []byte) bool {
	if len(frame) > int(e.link.PayloadWidth()) {
		return false
	}
	if !e.link.Send(addr, frame) {
		return false
	}
	stat.PacketSent.Inc()
	stat.ByteSent.Add(float64(len(frame)))
	return true
}

// enqueueFrame claims a message slot on con, caches the encoded frame and
// returns the message ready for the transmit tick.
func (e *engine) enqueueFrame(con *Connection, activity Activity, build func(mid uint16) packet.Packet) (*Message, error) {
	m := con.Messages.AddMessage(activity)
	if m == nil {
		return nil, ErrQueueFull
	}
	frame, err := packet.Encode(build(m.MessageID()))
	if err != nil {
		m.SetInactive()
		return nil, err
	}
	if len(frame) > int(e.link.PayloadWidth()) {
		m.SetInactive()
		return nil, ErrPayloadTooLarge
	}
	m.SetFrame(frame)
	return m, nil
}

// transmit pushes a freshly queued message onto the wire without waiting
// for the next tick.
func (e *engine) transmit(con *Connection, m *Message) {
	if e.sendRaw(con.Address(), m.Frame()) {
		m.Sending(e.now())
	}
}

// driveMessage advances con's active message through the retry law: first
// transmission, timed retransmissions with DUP, and, once the attempts
// budget is spent, failure. The failed message is returned exactly once
// so the owner can surface it through the right callback.
func (e *engine) driveMessage(con *Connection) *Message {
	m := con.Messages.GetActiveMessage()
	if m == nil || !m.HasContent() {
		return nil
	}
	now := e.now()
	if !m.IsSending() {
		if e.sendRaw(con.Address(), m.Frame()) {
			m.Sending(now)
		}
		return nil
	}
	if !m.Expired(now, e.tretry) {
		return nil
	}
	if m.Attempts() > e.nretry {
		m.SetInactive()
		return m
	}
	m.Retry(now)
	stat.Retries.Inc()
	if !e.sendRaw(con.Address(), m.Frame()) {
		log.Printf("retransmit failed: kind=%s, mid=%d", packet.Kind[m.Kind()], m.MessageID())
	}
	return nil
}
