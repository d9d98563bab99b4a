package mqttsn

import (
	"log"
	"time"

	"github.com/golang-io/mqttsn/packet"
)

// A Client is the sensor-side MQTT-SN engine: it discovers gateways,
// holds at most one session, and runs the publish/subscribe state
// machines against it. The host calls Manage repeatedly (every few
// milliseconds); everything else is driven by inbound frames and the
// retry clock.
//
// Clients are safe for concurrent use: API calls, the link callback and
// Manage all serialise on the engine lock.
type Client struct {
	engine

	options  Options
	clientID string
	conn     *Connection
	gateways GatewayTable

	willTopic   string
	willQoS     uint8
	willRetain  bool
	willMessage []byte

	sleepRequested uint16

	onConnected    func(success bool, rc uint8, gwid uint8)
	onDisconnected func(sleeping bool, duration uint16, gwid uint8)
	onGatewayInfo  func(available bool, gwid uint8)
	onPublished    func(success bool, rc uint8, topicID uint16, messageID uint16, gwid uint8)
	onRegistered   func(success bool, rc uint8, topicID uint16, messageID uint16, gwid uint8)
	onSubscribed   func(success bool, rc uint8, topicID uint16, messageID uint16, gwid uint8)
	onMessage      func(success bool, rc uint8, topicName string, payload []byte, gwid uint8)
}

// NewClient builds a client engine over link.
func NewClient(link PacketLink, opts ...Option) *Client {
	options := newOptions(opts...)
	c := &Client{
		options:  options,
		clientID: options.ClientID,
		conn:     NewConnection(),
	}
	c.init(link, options)

	c.handlers[ADVERTISE] = c.receivedAdvertise
	c.handlers[GWINFO] = c.receivedGWInfo
	c.handlers[CONNACK] = c.receivedConnack
	c.handlers[WILLTOPICREQ] = c.receivedWillTopicReq
	c.handlers[WILLMSGREQ] = c.receivedWillMsgReq
	c.handlers[REGISTER] = c.receivedRegister
	c.handlers[REGACK] = c.receivedRegack
	c.handlers[PUBLISH] = c.receivedPublish
	c.handlers[PUBACK] = c.receivedPuback
	c.handlers[PUBREC] = c.receivedPubrec
	c.handlers[PUBREL] = c.receivedPubrel
	c.handlers[PUBCOMP] = c.receivedPubcomp
	c.handlers[SUBACK] = c.receivedSuback
	c.handlers[UNSUBACK] = c.receivedUnsuback
	c.handlers[PINGREQ] = c.receivedPingreq
	c.handlers[PINGRESP] = c.receivedPingresp
	c.handlers[DISCONNECT] = c.receivedDisconnect
	c.handlers[WILLTOPICRESP] = c.receivedWillTopicResp
	c.handlers[WILLMSGRESP] = c.receivedWillMsgResp

	log.Printf("client created: client_id=%s", c.clientID)
	return c
}

// Initialise powers the link up and clears any stored will state.
func (c *Client) Initialise(unicast, broadcast []byte, addrLen uint8) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.willTopic, c.willQoS, c.willRetain, c.willMessage = "", 0, false, nil
	return c.link.Initialise(unicast, broadcast, addrLen)
}

// Callback registration. Set these before Manage starts.

func (c *Client) OnConnected(fn func(success bool, rc uint8, gwid uint8)) { c.onConnected = fn }
func (c *Client) OnGatewayInfo(fn func(available bool, gwid uint8)) { c.onGatewayInfo = fn }
func (c *Client) OnDisconnected(fn func(sleeping bool, duration uint16, gwid uint8)) {
	c.onDisconnected = fn
}
func (c *Client) OnPublished(fn func(success bool, rc uint8, topicID, messageID uint16, gwid uint8)) {
	c.onPublished = fn
}
func (c *Client) OnRegistered(fn func(success bool, rc uint8, topicID, messageID uint16, gwid uint8)) {
	c.onRegistered = fn
}
func (c *Client) OnSubscribed(fn func(success bool, rc uint8, topicID, messageID uint16, gwid uint8)) {
	c.onSubscribed = fn
}
func (c *Client) OnMessage(fn func(success bool, rc uint8, topicName string, payload []byte, gwid uint8)) {
	c.onMessage = fn
}

// SetClientID replaces the client identifier used in CONNECT and PINGREQ.
func (c *Client) SetClientID(id string) error {
	if len(id) > int(c.link.PayloadWidth())-packet.ConnectHdrLen {
		return ErrPayloadTooLarge
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientID = id
	return nil
}

func (c *Client) ClientID() string { return c.clientID }

// SetWillTopic stores the will topic applied at the next Connect with the
// will flag. An empty topic clears the will.
func (c *Client) SetWillTopic(topic string, qos uint8, retain bool) error {
	if len(topic) > int(c.link.PayloadWidth())-packet.WillTopicHdrLen {
		return ErrPayloadTooLarge
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.willTopic, c.willQoS, c.willRetain = topic, qos, retain
	if topic == "" {
		c.willMessage = nil
	}
	return nil
}

// SetWillMessage stores the will message body.
func (c *Client) SetWillMessage(msg []byte) error {
	if len(msg) > int(c.link.PayloadWidth())-packet.WillMsgHdrLen {
		return ErrPayloadTooLarge
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.willMessage = append([]byte(nil), msg...)
	return nil
}

// SearchGW broadcasts a gateway search. While disconnected the search is
// held as a retryable message so an unanswered broadcast is repeated.
func (c *Client) SearchGW(radius byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	bcast := c.link.BroadcastAddress()
	if c.conn.State() != StateDisconnected {
		c.addrWrite(bcast, &packet.SEARCHGW{Radius: radius})
		return nil
	}
	c.conn.SetAddress(bcast, c.link.AddressLen())
	m, err := c.enqueueFrame(c.conn, ActivitySearching, func(uint16) packet.Packet {
		return &packet.SEARCHGW{Radius: radius}
	})
	if err != nil {
		return err
	}
	c.transmit(c.conn, m)
	return nil
}

// AddGateway inserts a gateway by hand, e.g. from static configuration.
// A permanent entry never expires.
func (c *Client) AddGateway(addr []byte, gwid uint8, duration uint16, perm bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.gateways.Add(addr, c.link.AddressLen(), gwid, duration, perm, c.now()) {
		return ErrQueueFull
	}
	return nil
}

// Connect starts a session with a known gateway. With will set, the
// gateway asks for the stored will topic and message before CONNACK.
// Progress is reported through OnConnected.
func (c *Client) Connect(gwid uint8, will, clean bool, keepalive uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	gw := c.gateways.Get(gwid, now)
	if gw == nil {
		return ErrUnknownGateway
	}

	c.conn.SetState(StateDisconnected)
	c.conn.Topics.FreeAll()
	c.conn.Messages.ClearQueue()
	c.conn.SetGatewayID(gwid)
	c.conn.SetAddress(gw.Address(), c.link.AddressLen())
	c.conn.Duration = keepalive
	c.sleepRequested = 0

	id := c.clientID
	if max := int(c.link.PayloadWidth()) - packet.ConnectHdrLen; len(id) > max {
		id = id[:max]
	}
	var flags byte
	if will {
		flags |= packet.FlagWill
	}
	if clean {
		flags |= packet.FlagCleanSession
	}
	activity := ActivityNone
	if will {
		activity = ActivityWillTopic
	}
	m, err := c.enqueueFrame(c.conn, activity, func(uint16) packet.Packet {
		return &packet.CONNECT{Flags: flags, ProtocolID: packet.Protocol, Duration: keepalive, ClientID: id}
	})
	if err != nil {
		return err
	}
	c.conn.SetState(StateConnecting)
	c.conn.UpdateActivity(now)
	log.Printf("client connecting: client_id=%s, gwid=%d, keepalive=%d", id, gwid, keepalive)
	c.transmit(c.conn, m)
	return nil
}

// RegisterTopic asks the gateway for a topic id. The returned message id
// correlates the eventual OnRegistered callback; 0 means the topic is
// already complete and no exchange was started.
func (c *Client) RegisterTopic(name string) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.conn.IsConnected() {
		return 0, ErrNotConnected
	}
	if len(name) > int(c.link.PayloadWidth())-packet.RegisterHdrLen {
		return 0, ErrPayloadTooLarge
	}
	t := c.conn.Topics.RegTopic(name, 0)
	if t.IsComplete() {
		return 0, nil
	}
	m, err := c.enqueueFrame(c.conn, ActivityRegistering, func(mid uint16) packet.Packet {
		return &packet.REGISTER{TopicID: 0, MessageID: mid, TopicName: name}
	})
	if err != nil {
		return 0, err
	}
	t.MessageID = m.MessageID()
	c.transmit(c.conn, m)
	return m.MessageID(), nil
}

// Subscribe subscribes by topic name (wildcards allowed). With short set
// the 2-octet name travels as a short topic id. QoS 0 subscriptions are
// one-shot on the wire: the request is not retried.
func (c *Client) Subscribe(qos uint8, name string, short bool) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.conn.IsConnected() {
		return 0, ErrNotConnected
	}
	if qos > 2 {
		return 0, ErrInvalidQoS
	}
	if len(name) > int(c.link.PayloadWidth())-packet.SubscribeHdrLen {
		return 0, ErrPayloadTooLarge
	}
	if short {
		if len(name) != 2 {
			return 0, ErrPayloadTooLarge
		}
		return c.subscribeID(qos, uint16(name[0])<<8|uint16(name[1]), packet.TopicShortName)
	}

	t := c.conn.Topics.RegTopic(name, 0)
	if t.ID > 0 && t.IsSubscribed() {
		return 0, nil
	}
	m, err := c.enqueueFrame(c.conn, ActivitySubscribing, func(mid uint16) packet.Packet {
		return &packet.SUBSCRIBE{Flags: packet.QoSFlag(qos), MessageID: mid, TopicName: name}
	})
	if err != nil {
		return 0, err
	}
	if qos == 0 {
		m.OneShot(true)
	}
	t.MessageID = m.MessageID()
	t.QoS = qos
	c.transmit(c.conn, m)
	return m.MessageID(), nil
}

// SubscribeID subscribes by predefined or short topic id.
func (c *Client) SubscribeID(qos uint8, topicID uint16, topicType byte) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.conn.IsConnected() {
		return 0, ErrNotConnected
	}
	if qos > 2 {
		return 0, ErrInvalidQoS
	}
	return c.subscribeID(qos, topicID, topicType)
}

func (c *Client) subscribeID(qos uint8, topicID uint16, topicType byte) (uint16, error) {
	if topicType != packet.TopicIDPredefined && topicType != packet.TopicShortName {
		return 0, ErrUnknownTopic
	}
	if topicType == packet.TopicIDPredefined && c.predefined.GetTopic(topicID) == nil {
		return 0, ErrUnknownTopic
	}
	m, err := c.enqueueFrame(c.conn, ActivitySubscribing, func(mid uint16) packet.Packet {
		return &packet.SUBSCRIBE{Flags: packet.QoSFlag(qos) | topicType, MessageID: mid, TopicID: topicID}
	})
	if err != nil {
		return 0, err
	}
	if qos == 0 {
		m.OneShot(true)
	}
	m.SetTopicID(topicID)
	m.SetTopicType(topicType)
	c.transmit(c.conn, m)
	return m.MessageID(), nil
}

// Unsubscribe removes a subscription by topic name. The local
// subscription flag clears immediately; the UNSUBACK completes the
// exchange.
func (c *Client) Unsubscribe(name string) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.conn.IsConnected() {
		return 0, ErrNotConnected
	}
	if t := c.conn.Topics.GetTopicByName(name); t != nil {
		t.SetSubscribed(false)
	}
	m, err := c.enqueueFrame(c.conn, ActivityNone, func(mid uint16) packet.Packet {
		return &packet.UNSUBSCRIBE{MessageID: mid, TopicName: name}
	})
	if err != nil {
		return 0, err
	}
	c.transmit(c.conn, m)
	return m.MessageID(), nil
}

// Publish sends application data at QoS 0, 1 or 2 through a registered,
// predefined or short topic id. The message id correlates OnPublished.
func (c *Client) Publish(qos uint8, topicID uint16, topicType byte, payload []byte, retain bool) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.conn.IsConnected() {
		return 0, ErrNotConnected
	}
	if qos > 2 {
		return 0, ErrInvalidQoS
	}
	if len(payload) > int(c.link.PayloadWidth())-packet.PublishHdrLen {
		return 0, ErrPayloadTooLarge
	}
	var flags byte = packet.QoSFlag(qos) | topicType
	if retain {
		flags |= packet.FlagRetain
	}
	m, err := c.enqueueFrame(c.conn, ActivityPublishing, func(mid uint16) packet.Packet {
		wire := mid
		if qos == 0 {
			wire = 0
		}
		return &packet.PUBLISH{Flags: flags, TopicID: topicID, MessageID: wire, Data: payload}
	})
	if err != nil {
		return 0, err
	}
	m.SetQoS(qos)
	m.SetTopicID(topicID)
	m.SetTopicType(topicType)
	if qos == 0 {
		m.OneShot(true)
	}
	c.transmit(c.conn, m)
	return m.MessageID(), nil
}

// PublishShort publishes through a 2-octet short topic name.
func (c *Client) PublishShort(qos uint8, name string, payload []byte, retain bool) (uint16, error) {
	if len(name) != 2 {
		return 0, ErrUnknownTopic
	}
	return c.Publish(qos, uint16(name[0])<<8|uint16(name[1]), packet.TopicShortName, payload, retain)
}

// PublishNoQoS sends a QoS -1 message: no session, no acknowledgement.
// Only short and predefined topics can travel this way.
func (c *Client) PublishNoQoS(gwid uint8, topicID uint16, topicType byte, payload []byte, retain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if topicType != packet.TopicShortName && topicType != packet.TopicIDPredefined {
		return ErrUnknownTopic
	}
	if len(payload) > int(c.link.PayloadWidth())-packet.PublishHdrLen {
		return ErrPayloadTooLarge
	}
	gw := c.gateways.Get(gwid, c.now())
	if gw == nil {
		return ErrUnknownGateway
	}
	flags := packet.FlagQoSN1 | topicType
	if retain {
		flags |= packet.FlagRetain
	}
	c.addrWrite(gw.Address(), &packet.PUBLISH{Flags: flags, TopicID: topicID, Data: payload})
	return nil
}

// PublishNoQoSShort is PublishNoQoS through a 2-octet short topic name.
func (c *Client) PublishNoQoSShort(gwid uint8, name string, payload []byte, retain bool) error {
	if len(name) != 2 {
		return ErrUnknownTopic
	}
	return c.PublishNoQoS(gwid, uint16(name[0])<<8|uint16(name[1]), packet.TopicShortName, payload, retain)
}

// Disconnect closes the session; a non-zero sleep duration asks the
// gateway to hold the session while the client sleeps that many seconds.
func (c *Client) Disconnect(sleep uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn.IsDisconnected() || c.conn.IsAsleep() {
		return ErrNotDisconnected
	}
	c.sleepRequested = sleep
	m, err := c.enqueueFrame(c.conn, ActivityDisconnecting, func(uint16) packet.Packet {
		return &packet.DISCONNECT{Duration: sleep, HasDuration: sleep > 0}
	})
	if err != nil {
		return err
	}
	c.conn.SetState(StateDisconnecting)
	c.transmit(c.conn, m)
	return nil
}

// UpdateWillTopic replaces the stored will topic on a live session.
func (c *Client) UpdateWillTopic(topic string, qos uint8, retain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.conn.IsConnected() {
		return ErrNotConnected
	}
	if len(topic) > int(c.link.PayloadWidth())-packet.WillTopicHdrLen {
		return ErrPayloadTooLarge
	}
	c.willTopic, c.willQoS, c.willRetain = topic, qos, retain
	m, err := c.enqueueFrame(c.conn, ActivityWillTopic, func(uint16) packet.Packet {
		if topic == "" {
			return &packet.WILLTOPICUPD{Empty: true}
		}
		flags := packet.QoSFlag(qos)
		if retain {
			flags |= packet.FlagRetain
		}
		return &packet.WILLTOPICUPD{Flags: flags, WillTopic: topic}
	})
	if err != nil {
		return err
	}
	c.transmit(c.conn, m)
	return nil
}

// UpdateWillMessage replaces the stored will message on a live session.
func (c *Client) UpdateWillMessage(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.conn.IsConnected() {
		return ErrNotConnected
	}
	if len(msg) > int(c.link.PayloadWidth())-packet.WillMsgHdrLen {
		return ErrPayloadTooLarge
	}
	c.willMessage = append([]byte(nil), msg...)
	m, err := c.enqueueFrame(c.conn, ActivityWillMessage, func(uint16) packet.Packet {
		return &packet.WILLMSGUPD{WillMsg: msg}
	})
	if err != nil {
		return err
	}
	c.transmit(c.conn, m)
	return nil
}

// Ping probes a known gateway directly, carrying the client-id.
func (c *Client) Ping(gwid uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	gw := c.gateways.Get(gwid, c.now())
	if gw == nil {
		return ErrUnknownGateway
	}
	if c.conn.GatewayID() == gwid {
		c.conn.ResetPing(c.now())
	}
	c.addrWrite(gw.Address(), &packet.PINGREQ{ClientID: c.clientID})
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.IsConnected()
}

func (c *Client) IsConnectedTo(gwid uint8) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.IsConnected() && c.conn.GatewayID() == gwid
}

func (c *Client) IsDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.IsDisconnected()
}

// GetKnownGateway reports a usable gateway: the connected one, else the
// first live table entry.
func (c *Client) GetKnownGateway() (uint8, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn.IsConnected() {
		return c.conn.GatewayID(), true
	}
	if gw := c.gateways.Available(c.now()); gw != nil {
		return gw.GatewayID(), true
	}
	return 0, false
}

// IsGatewayValid reports whether gwid is in the table and still live.
func (c *Client) IsGatewayValid(gwid uint8) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gateways.Get(gwid, c.now()) != nil
}

// Manage is the cooperative tick: dispatch queued inbound frames, run the
// keep-alive watchdog and drive the in-flight message retries.
func (c *Client) Manage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatchQueue()
	now := c.now()

	switch c.conn.State() {
	case StateConnected:
		if !c.manageGWConnection(now) {
			return
		}
		if m := c.driveMessage(c.conn); m != nil {
			c.messageFailed(m)
		}
	case StateConnecting:
		if m := c.driveMessage(c.conn); m != nil {
			c.conn.SetState(StateDisconnected)
			c.conn.Messages.ClearQueue()
			log.Printf("client connect timed out: client_id=%s, gwid=%d", c.clientID, c.conn.GatewayID())
			if c.onConnected != nil {
				c.onConnected(false, MsgFailure, c.conn.GatewayID())
			}
		}
	case StateDisconnecting:
		if m := c.driveMessage(c.conn); m != nil {
			// The gateway never echoed the DISCONNECT; close anyway.
			c.conn.SetState(StateDisconnected)
			if c.onDisconnected != nil {
				c.onDisconnected(false, 0, c.conn.GatewayID())
			}
		}
	case StateDisconnected:
		// Only a gateway search can be pending here.
		c.driveMessage(c.conn)
	case StateAsleep:
	}
}

// manageGWConnection enforces the keep-alive regime. Returns false when
// the gateway was declared lost and the session torn down.
func (c *Client) manageGWConnection(now time.Time) bool {
	if c.conn.LostContact(now) {
		gwid := c.conn.GatewayID()
		log.Printf("client lost gateway: client_id=%s, gwid=%d", c.clientID, gwid)
		c.conn.SetState(StateDisconnected)
		c.conn.Messages.ClearQueue()
		c.conn.Topics.FreeAll()
		if gw := c.gateways.Get(gwid, now); gw != nil {
			gw.SetActive(false)
		}
		if c.onGatewayInfo != nil {
			c.onGatewayInfo(false, gwid)
		}
		if c.onDisconnected != nil {
			c.onDisconnected(false, 0, gwid)
		}
		return false
	}
	if c.conn.SendAnotherPing(now) {
		c.conn.ResetPing(now)
		c.addrWrite(c.conn.Address(), &packet.PINGREQ{ClientID: c.clientID})
	}
	return true
}

// messageFailed surfaces a retry-exhausted message through the callback
// belonging to its activity.
func (c *Client) messageFailed(m *Message) {
	gwid := c.conn.GatewayID()
	mid := m.MessageID()
	log.Printf("client message failed: kind=%s, mid=%d, gwid=%d", packet.Kind[m.Kind()], mid, gwid)
	switch m.Activity() {
	case ActivityRegistering:
		c.conn.Topics.DelTopicByMessageID(mid)
		if c.onRegistered != nil {
			c.onRegistered(false, MsgFailure, 0, mid, gwid)
		}
	case ActivitySubscribing:
		c.conn.Topics.DelTopicByMessageID(mid)
		if c.onSubscribed != nil {
			c.onSubscribed(false, MsgFailure, 0, mid, gwid)
		}
	case ActivityPublishing:
		if c.onPublished != nil {
			c.onPublished(false, MsgFailure, 0, mid, gwid)
		}
	case ActivitySearching, ActivityWillTopic, ActivityWillMessage:
		// Searches give up quietly; will updates have no callback.
	}
}

// fromGateway applies the gateway source filter: frames not from the
// bound gateway are ignored, except the kinds exempted by the protocol.
func (c *Client) fromGateway(src []byte) bool {
	return c.conn.AddressMatch(src)
}

func (c *Client) receivedAdvertise(src []byte, pkt packet.Packet) {
	adv := pkt.(*packet.ADVERTISE)
	now := c.now()
	if !c.gateways.Update(src, c.link.AddressLen(), adv.GatewayID, adv.Duration, now) {
		if !c.gateways.Add(src, c.link.AddressLen(), adv.GatewayID, adv.Duration, false, now) {
			log.Printf("gateway table full: gwid=%d", adv.GatewayID)
			return
		}
		if c.onGatewayInfo != nil {
			c.onGatewayInfo(true, adv.GatewayID)
		}
	}
	if c.conn.IsConnected() && c.conn.GatewayID() == adv.GatewayID {
		c.conn.UpdateActivity(now)
	}
}

func (c *Client) receivedGWInfo(src []byte, pkt packet.Packet) {
	gi := pkt.(*packet.GWINFO)
	now := c.now()

	// A satisfied search stops retrying.
	if m := c.conn.Messages.GetMessageByKind(SEARCHGW); m != nil {
		m.SetInactive()
	}

	addr := src
	if len(gi.GatewayAddress) == int(c.link.AddressLen()) {
		addr = gi.GatewayAddress
	}
	if !c.gateways.Update(addr, c.link.AddressLen(), gi.GatewayID, 0, now) {
		if !c.gateways.Add(addr, c.link.AddressLen(), gi.GatewayID, 0, false, now) {
			return
		}
		if c.onGatewayInfo != nil {
			c.onGatewayInfo(true, gi.GatewayID)
		}
	}
}

func (c *Client) receivedConnack(src []byte, pkt packet.Packet) {
	if c.conn.State() != StateConnecting || !c.fromGateway(src) {
		return
	}
	ack := pkt.(*packet.CONNACK)
	c.conn.UpdateActivity(c.now())
	if m := c.conn.Messages.GetMessageByKind(CONNECT); m != nil {
		m.SetInactive()
	}
	if ack.ReturnCode == packet.Accepted {
		c.conn.SetState(StateConnected)
		log.Printf("client connected: client_id=%s, gwid=%d", c.clientID, c.conn.GatewayID())
	} else {
		c.conn.SetState(StateDisconnected)
		c.conn.Messages.ClearQueue()
		log.Printf("client connect refused: client_id=%s, rc=%d", c.clientID, ack.ReturnCode)
	}
	if c.onConnected != nil {
		c.onConnected(ack.ReturnCode == packet.Accepted, ack.ReturnCode, c.conn.GatewayID())
	}
}

func (c *Client) receivedWillTopicReq(src []byte, pkt packet.Packet) {
	if c.conn.State() != StateConnecting || !c.fromGateway(src) {
		return
	}
	reply := &packet.WILLTOPIC{Empty: c.willTopic == ""}
	if !reply.Empty {
		reply.Flags = packet.QoSFlag(c.willQoS)
		if c.willRetain {
			reply.Flags |= packet.FlagRetain
		}
		reply.WillTopic = c.willTopic
	}
	c.addrWrite(c.conn.Address(), reply)
	c.conn.UpdateActivity(c.now())
}

func (c *Client) receivedWillMsgReq(src []byte, pkt packet.Packet) {
	if c.conn.State() != StateConnecting || !c.fromGateway(src) {
		return
	}
	c.addrWrite(c.conn.Address(), &packet.WILLMSG{WillMsg: c.willMessage})
	c.conn.UpdateActivity(c.now())
}

// receivedRegister handles a gateway-initiated topic binding.
func (c *Client) receivedRegister(src []byte, pkt packet.Packet) {
	if !c.conn.IsConnected() || !c.fromGateway(src) {
		return
	}
	reg := pkt.(*packet.REGISTER)
	c.conn.UpdateActivity(c.now())
	if _, err := c.conn.Topics.CreateTopic(reg.TopicName, reg.TopicID, false); err != nil {
		log.Printf("client register rejected: topic=%s, id=%d, err=%v", reg.TopicName, reg.TopicID, err)
		return
	}
	c.addrWrite(c.conn.Address(), &packet.REGACK{
		TopicID: reg.TopicID, MessageID: reg.MessageID, ReturnCode: packet.Accepted,
	})
	if c.onRegistered != nil {
		c.onRegistered(true, packet.Accepted, reg.TopicID, 0, c.conn.GatewayID())
	}
}

func (c *Client) receivedRegack(src []byte, pkt packet.Packet) {
	if !c.fromGateway(src) {
		return
	}
	ack := pkt.(*packet.REGACK)
	m := c.conn.Messages.GetMessage(ack.MessageID, false)
	if m == nil {
		return
	}
	m.SetInactive()
	c.conn.UpdateActivity(c.now())

	success := false
	if ack.ReturnCode == packet.Accepted {
		success = c.conn.Topics.CompleteTopic(ack.MessageID, ack.TopicID) != nil
	} else {
		c.conn.Topics.DelTopicByMessageID(ack.MessageID)
	}
	if c.onRegistered != nil {
		c.onRegistered(success, ack.ReturnCode, ack.TopicID, ack.MessageID, c.conn.GatewayID())
	}
}

func (c *Client) receivedPublish(src []byte, pkt packet.Packet) {
	if !c.conn.IsConnected() || !c.fromGateway(src) {
		return
	}
	pub := pkt.(*packet.PUBLISH)
	c.conn.UpdateActivity(c.now())

	nack := func(rc byte) {
		c.addrWrite(c.conn.Address(), &packet.PUBACK{
			TopicID: pub.TopicID, MessageID: pub.MessageID, ReturnCode: rc,
		})
	}

	var name string
	switch pub.TopicType() {
	case packet.TopicIDNormal:
		t := c.conn.Topics.GetTopic(pub.TopicID)
		if t == nil {
			nack(packet.InvalidTopic)
			return
		}
		name = t.Name
	case packet.TopicIDPredefined:
		t := c.predefined.GetTopic(pub.TopicID)
		if t == nil {
			nack(packet.InvalidTopic)
			return
		}
		name = t.Name
	case packet.TopicShortName:
		name = pub.ShortName()
	default:
		nack(packet.NotSupported)
		return
	}

	if c.onMessage != nil {
		c.onMessage(true, packet.Accepted, name, pub.Data, c.conn.GatewayID())
	}

	switch pub.QoS() {
	case 0:
	case 1:
		nack(packet.Accepted)
	case 2:
		m := c.conn.Messages.AddMessage(ActivityPublishing)
		if m == nil {
			nack(packet.Congestion)
			return
		}
		m.SetMessageID(pub.MessageID, true)
		m.SetTopicID(pub.TopicID)
		m.SetQoS(2)
		frame, err := packet.Encode(&packet.PUBREC{MessageID: pub.MessageID})
		if err != nil {
			m.SetInactive()
			return
		}
		m.SetFrame(frame)
		c.transmit(c.conn, m)
	}
}

func (c *Client) receivedPuback(src []byte, pkt packet.Packet) {
	if !c.fromGateway(src) {
		return
	}
	ack := pkt.(*packet.PUBACK)
	m := c.conn.Messages.GetMessage(ack.MessageID, false)
	if m == nil {
		return
	}
	m.SetInactive()
	c.conn.UpdateActivity(c.now())
	if c.onPublished != nil {
		c.onPublished(ack.ReturnCode == packet.Accepted, ack.ReturnCode, ack.TopicID, ack.MessageID, c.conn.GatewayID())
	}
}

// receivedPubrec advances our outbound QoS 2 publish: the slot is
// recycled to carry PUBREL while keeping topic id and qos for reporting.
func (c *Client) receivedPubrec(src []byte, pkt packet.Packet) {
	if !c.conn.IsConnected() || !c.fromGateway(src) {
		return
	}
	rec := pkt.(*packet.PUBREC)
	m := c.conn.Messages.GetMessage(rec.MessageID, false)
	if m == nil || !m.IsActive() {
		return
	}
	c.conn.UpdateActivity(c.now())
	frame, err := packet.Encode(&packet.PUBREL{MessageID: rec.MessageID})
	if err != nil {
		return
	}
	m.ResetRetries()
	m.SetFrame(frame)
	c.transmit(c.conn, m)
}

// receivedPubrel completes an inbound QoS 2 publish.
func (c *Client) receivedPubrel(src []byte, pkt packet.Packet) {
	if !c.conn.IsConnected() || !c.fromGateway(src) {
		return
	}
	rel := pkt.(*packet.PUBREL)
	c.conn.UpdateActivity(c.now())
	if m := c.conn.Messages.GetMessage(rel.MessageID, true); m != nil {
		m.SetInactive()
	}
	c.addrWrite(c.conn.Address(), &packet.PUBCOMP{MessageID: rel.MessageID})
}

func (c *Client) receivedPubcomp(src []byte, pkt packet.Packet) {
	if !c.fromGateway(src) {
		return
	}
	comp := pkt.(*packet.PUBCOMP)
	m := c.conn.Messages.GetMessage(comp.MessageID, false)
	if m == nil {
		return
	}
	m.SetInactive()
	c.conn.UpdateActivity(c.now())
	if c.onPublished != nil {
		c.onPublished(true, packet.Accepted, m.TopicID(), comp.MessageID, c.conn.GatewayID())
	}
}

func (c *Client) receivedSuback(src []byte, pkt packet.Packet) {
	if !c.conn.IsConnected() || !c.fromGateway(src) {
		return
	}
	ack := pkt.(*packet.SUBACK)
	c.conn.UpdateActivity(c.now())
	if m := c.conn.Messages.GetMessage(ack.MessageID, false); m != nil {
		m.SetInactive()
	}

	if ack.ReturnCode == packet.Accepted {
		switch {
		case ack.TopicID != 0:
			t := c.conn.Topics.GetTopic(ack.TopicID)
			if t == nil {
				t = c.conn.Topics.CompleteTopic(ack.MessageID, ack.TopicID)
			}
			if t != nil {
				t.SetSubscribed(true)
				t.QoS = ack.QoS()
			}
		default:
			// Wildcard grant: the placeholder keeps id 0.
			for _, t := range c.conn.Topics.Topics() {
				if t.MessageID == ack.MessageID {
					t.SetSubscribed(true)
					t.QoS = ack.QoS()
					break
				}
			}
		}
	} else {
		c.conn.Topics.DelTopicByMessageID(ack.MessageID)
	}
	if c.onSubscribed != nil {
		c.onSubscribed(ack.ReturnCode == packet.Accepted, ack.ReturnCode, ack.TopicID, ack.MessageID, c.conn.GatewayID())
	}
}

func (c *Client) receivedUnsuback(src []byte, pkt packet.Packet) {
	if !c.fromGateway(src) {
		return
	}
	ack := pkt.(*packet.UNSUBACK)
	if m := c.conn.Messages.GetMessage(ack.MessageID, false); m != nil {
		m.SetInactive()
	}
	c.conn.UpdateActivity(c.now())
}

func (c *Client) receivedPingreq(src []byte, pkt packet.Packet) {
	c.addrWrite(src, &packet.PINGRESP{})
}

func (c *Client) receivedPingresp(src []byte, pkt packet.Packet) {
	now := c.now()
	gw := c.gateways.GetByAddress(src, now)
	if gw == nil {
		return
	}
	gw.UpdateActivity(now)
	if c.conn.IsConnected() && gw.GatewayID() == c.conn.GatewayID() {
		c.conn.UpdateActivity(now)
	}
}

func (c *Client) receivedDisconnect(src []byte, pkt packet.Packet) {
	if c.conn.IsDisconnected() || !c.fromGateway(src) {
		return
	}
	sleeping := c.sleepRequested > 0
	if sleeping {
		c.conn.SetState(StateAsleep)
		c.conn.SleepDuration = c.sleepRequested
		c.conn.AsleepFrom = c.now()
	} else {
		c.conn.SetState(StateDisconnected)
	}
	// The client always forgets its topics on disconnect.
	c.conn.Topics.FreeAll()
	c.conn.Messages.ClearQueue()

	gwid := c.conn.GatewayID()
	if gw := c.gateways.GetByAddress(src, c.now()); gw != nil {
		gwid = gw.GatewayID()
	}
	log.Printf("client disconnected: client_id=%s, gwid=%d, sleeping=%v", c.clientID, gwid, sleeping)
	if c.onDisconnected != nil {
		c.onDisconnected(sleeping, c.sleepRequested, gwid)
	}
}

func (c *Client) receivedWillTopicResp(src []byte, pkt packet.Packet) {
	if !c.fromGateway(src) {
		return
	}
	if m := c.conn.Messages.GetMessageByKind(WILLTOPICUPD); m != nil {
		m.SetInactive()
	}
	c.conn.UpdateActivity(c.now())
}

func (c *Client) receivedWillMsgResp(src []byte, pkt packet.Packet) {
	if !c.fromGateway(src) {
		return
	}
	if m := c.conn.Messages.GetMessageByKind(WILLMSGUPD); m != nil {
		m.SetInactive()
	}
	c.conn.UpdateActivity(c.now())
}
