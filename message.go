package mqttsn

import (
	"time"

	"github.com/golang-io/mqttsn/packet"
)

// QueueDepth is the number of in-flight message slots per connection.
const QueueDepth = 20

// A Message is one in-flight protocol exchange: the cached frame for
// retransmission plus the bookkeeping that drives retries and routes the
// eventual acknowledgement (or failure) back to the operation that
// started it.
type Message struct {
	active     bool
	frame      []byte // whole frame, header included
	kind       byte
	hasContent bool

	id        uint16
	external  bool // id was issued by the peer, not this queue
	topicID   uint16
	topicType byte
	qos       uint8
	brokerMID int // opaque handle from the BrokerBridge
	activity  Activity

	sent     bool
	oneShot  bool
	attempts uint16
	lastTry  time.Time
}

func (m *Message) reset() {
	*m = Message{}
}

func (m *Message) IsActive() bool { return m.active }
func (m *Message) SetInactive() { m.active = false }
func (m *Message) HasContent() bool { return m.hasContent }

func (m *Message) Activity() Activity { return m.activity }
func (m *Message) SetActivity(a Activity) { m.activity = a }

// SetFrame caches a fully encoded frame for (re)transmission.
func (m *Message) SetFrame(frame []byte) {
	m.frame = frame
	m.kind = 0
	if len(frame) > 1 {
		m.kind = frame[1]
	}
	m.hasContent = true
}

func (m *Message) Frame() []byte { return m.frame }
func (m *Message) Kind() byte { return m.kind }

func (m *Message) SetMessageID(id uint16, external bool) {
	m.id = id
	m.external = external
}
func (m *Message) MessageID() uint16 { return m.id }
func (m *Message) IsExternal() bool { return m.external }

func (m *Message) SetQoS(qos uint8) { m.qos = qos }
func (m *Message) QoS() uint8 { return m.qos }

func (m *Message) SetTopicID(id uint16) { m.topicID = id }
func (m *Message) TopicID() uint16 { return m.topicID }

func (m *Message) SetTopicType(t byte) { m.topicType = t }
func (m *Message) TopicType() byte { return m.topicType }

func (m *Message) SetBrokerMID(mid int) { m.brokerMID = mid }
func (m *Message) BrokerMID() int { return m.brokerMID }

func (m *Message) OneShot(b bool) { m.oneShot = b }

// ResetRetries keeps the message but clears its sent/attempt status, used
// when the slot is recycled for the next leg of a QoS 2 exchange. The
// topic id, qos and message id survive so completion reports correctly.
func (m *Message) ResetRetries() {
	m.attempts = 0
	m.sent = false
}

// Sending records the first transmission attempt. A one-shot message
// needs no acknowledgement and frees its slot immediately.
func (m *Message) Sending(now time.Time) {
	if m.oneShot {
		m.active = false
		return
	}
	m.sent = true
	m.attempts = 1
	m.lastTry = now
}

func (m *Message) IsSending() bool { return m.sent }
func (m *Message) Attempts() uint16 { return m.attempts }

// Expired reports whether the retry interval has elapsed since the last
// transmission.
func (m *Message) Expired(now time.Time, tretry time.Duration) bool {
	return !now.Before(m.lastTry.Add(tretry))
}

// Retry counts another attempt and stamps the DUP flag onto cached
// PUBLISH and SUBSCRIBE frames (flags live at octet 2).
func (m *Message) Retry(now time.Time) {
	m.attempts++
	m.lastTry = now
	if (m.kind == PUBLISH || m.kind == SUBSCRIBE) && len(m.frame) > 2 {
		m.frame[2] |= packet.FlagDup
	}
}

// A MessageQueue is a fixed ring of in-flight messages for one
// connection. Slots are found by scanning from the tail; the next live
// message is found by scanning from the head, and when none remain the
// ring resets to its origin.
type MessageQueue struct {
	messages [QueueDepth]Message
	lastID   uint16
	head     int
	tail     int
}

// NextMessageID allocates the next message id: monotonic modulo 2^16,
// never 0.
func (q *MessageQueue) NextMessageID() uint16 {
	if q.lastID == 0xFFFF {
		q.lastID = 0
	}
	q.lastID++
	return q.lastID
}

// AddMessage claims a free slot, allocates a message id and tags the
// activity. Returns nil when every slot is live.
func (q *MessageQueue) AddMessage(activity Activity) *Message {
	pos := q.tail
	for {
		m := &q.messages[pos]
		if !m.active {
			m.reset()
			m.active = true
			m.id = q.NextMessageID()
			m.activity = activity
			q.tail = pos
			return m
		}
		pos++
		if pos == QueueDepth {
			pos = 0
		}
		if pos == q.tail {
			return nil
		}
	}
}

// GetMessage finds the message carrying id. The external flag separates
// the peer's message-id space from ours: ids issued by the two ends may
// collide. Inactive slots still match so late acknowledgements resolve.
func (q *MessageQueue) GetMessage(id uint16, external bool) *Message {
	for i := range q.messages {
		m := &q.messages[i]
		if m.id == id && m.external == external && m.id != 0 {
			return m
		}
	}
	return nil
}

// GetMessageByKind returns the first active message caching a frame of
// the given kind.
func (q *MessageQueue) GetMessageByKind(kind byte) *Message {
	for i := range q.messages {
		m := &q.messages[i]
		if m.active && m.kind == kind {
			return m
		}
	}
	return nil
}

// GetBrokerMessage finds the message awaiting the broker operation mid.
func (q *MessageQueue) GetBrokerMessage(mid int) *Message {
	if mid == 0 {
		return nil
	}
	for i := range q.messages {
		if q.messages[i].brokerMID == mid {
			return &q.messages[i]
		}
	}
	return nil
}

// GetActiveMessage returns the next live message from the head, or nil,
// resetting the ring to its origin when the queue has drained.
func (q *MessageQueue) GetActiveMessage() *Message {
	pos := q.head
	for {
		if q.messages[pos].active {
			q.head = pos
			return &q.messages[pos]
		}
		pos++
		if pos == QueueDepth {
			pos = 0
		}
		if pos == q.head {
			q.head, q.tail = 0, 0
			return nil
		}
	}
}

// ClearQueue drops every message, acknowledged or not.
func (q *MessageQueue) ClearQueue() {
	for i := range q.messages {
		q.messages[i].reset()
	}
	q.head, q.tail = 0, 0
}
