package mqttsn

import (
	"bytes"
	"time"

	"github.com/golang-io/mqttsn/packet"
	"github.com/golang-io/mqttsn/topic"
)

// lostContactGrace is how many missed keep-alive periods are tolerated
// before a peer is declared gone. The multiplier assumes pings were sent
// on time and simply not answered.
const lostContactGrace = 5

// A Connection is the per-peer aggregate: the gateway holds one per
// client, a client holds exactly one for its gateway. It owns the topic
// registry and the in-flight message queue for that session.
type Connection struct {
	ClientID      string
	Duration      uint16 // keep-alive seconds
	SleepDuration uint16
	AsleepFrom    time.Time

	Topics   *topic.Registry
	Messages MessageQueue

	address      []byte
	gwid         uint8 // client side: id of the bound gateway
	state        State
	lastActivity time.Time
	lastPing     time.Time
	resumeTopics bool
	resumeIndex  int // next topic to replay after a dirty reconnect

	willTopic   string
	willQoS     uint8
	willRetain  bool
	willMessage []byte
}

func NewConnection() *Connection {
	return &Connection{Topics: topic.NewRegistry()}
}

func (c *Connection) State() State { return c.state }
func (c *Connection) SetState(s State) { c.state = s }

func (c *Connection) IsConnected() bool { return c.state == StateConnected }
func (c *Connection) IsDisconnected() bool { return c.state == StateDisconnected }
func (c *Connection) IsAsleep() bool { return c.state == StateAsleep }

func (c *Connection) GatewayID() uint8 { return c.gwid }
func (c *Connection) SetGatewayID(gwid uint8) { c.gwid = gwid }

// UpdateActivity notes traffic from the peer; it also resets the ping
// timer since any frame proves the link.
func (c *Connection) UpdateActivity(now time.Time) {
	c.lastActivity = now
	c.ResetPing(now)
}

func (c *Connection) ResetPing(now time.Time) { c.lastPing = now }

// SendAnotherPing reports whether a keep-alive probe is due.
func (c *Connection) SendAnotherPing(now time.Time) bool {
	return now.After(c.lastPing.Add(time.Duration(c.Duration) * time.Second))
}

// LostContact reports whether the peer has been silent for the whole
// grace window.
func (c *Connection) LostContact(now time.Time) bool {
	grace := time.Duration(c.Duration) * lostContactGrace * time.Second
	return now.After(c.lastActivity.Add(grace))
}

func (c *Connection) AddressMatch(addr []byte) bool {
	return len(c.address) > 0 && len(addr) >= len(c.address) &&
		bytes.Equal(c.address, addr[:len(c.address)])
}

func (c *Connection) SetAddress(addr []byte, addrLen uint8) {
	n := int(addrLen)
	if n > len(addr) {
		n = len(addr)
	}
	c.address = bytes.Clone(addr[:n])
}

func (c *Connection) Address() []byte { return c.address }

// ResumeTopics flags a dirty reconnect: after CONNACK the gateway replays
// a REGISTER for every non-wildcard, non-short topic held for the client.
func (c *Connection) SetResumeTopics(b bool) { c.resumeTopics = b }
func (c *Connection) ResumeTopics() bool { return c.resumeTopics }

// SetWillTopic stores the will topic; an empty topic clears the will
// entirely, message included. width is the link payload width bounding
// the topic length.
func (c *Connection) SetWillTopic(topic string, qos uint8, retain bool, width uint8) error {
	if topic == "" {
		c.willTopic = ""
		c.willMessage = nil
		c.willQoS = qos
		c.willRetain = retain
		return nil
	}
	if len(topic) > int(width)-packet.WillTopicHdrLen {
		return ErrPayloadTooLarge
	}
	c.willTopic = topic
	c.willQoS = qos
	c.willRetain = retain
	return nil
}

func (c *Connection) SetWillMessage(msg []byte, width uint8) error {
	if len(msg) == 0 {
		c.willMessage = nil
		return nil
	}
	if len(msg) > int(width)-packet.WillMsgHdrLen {
		return ErrPayloadTooLarge
	}
	c.willMessage = bytes.Clone(msg)
	return nil
}

func (c *Connection) WillTopic() string { return c.willTopic }
func (c *Connection) WillQoS() uint8 { return c.willQoS }
func (c *Connection) WillRetain() bool { return c.willRetain }
func (c *Connection) WillMessage() []byte { return c.willMessage }
func (c *Connection) HasWill() bool { return c.willTopic != "" }
