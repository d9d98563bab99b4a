package mqttsn

import (
	"log"
	"sync"
	"time"

	"github.com/golang-io/mqttsn/packet"
	"github.com/golang-io/mqttsn/topic"
)

// DefaultAdvertiseInterval is the seconds between ADVERTISE broadcasts.
const DefaultAdvertiseInterval = uint16(1500)

// broker event kinds, see BrokerEvents.
const (
	evConnect = iota
	evDisconnect
	evPublishDone
	evSubscribeDone
	evMessage
)

type brokerEvent struct {
	kind    int
	rc      int
	mid     int
	granted uint8
	topic   string
	payload []byte
	qos     uint8
	retain  bool
}

// A Server is the gateway-side MQTT-SN engine: it terminates many clients
// over the link and bridges them to an upstream MQTT broker through a
// BrokerBridge. The host calls Manage repeatedly.
//
// Bridge callbacks may arrive on any goroutine; they are queued and
// drained at the top of Manage so all protocol state mutates on the
// manage thread under one lock.
type Server struct {
	engine

	options           Options
	gwid              uint8
	advertiseInterval uint16
	lastAdvertised    time.Time

	connections map[string]*Connection
	order       []*Connection // creation order, also iteration order

	bridge          BrokerBridge
	brokerConnected bool

	eventMu sync.Mutex
	events  []brokerEvent
}

// NewServer builds a gateway engine over link.
func NewServer(link PacketLink, opts ...Option) *Server {
	options := newOptions(opts...)
	s := &Server{
		options:           options,
		gwid:              options.GatewayID,
		advertiseInterval: options.AdvertiseInterval,
		connections:       make(map[string]*Connection),
	}
	s.init(link, options)

	s.handlers[SEARCHGW] = s.receivedSearchGW
	s.handlers[CONNECT] = s.receivedConnect
	s.handlers[WILLTOPIC] = s.receivedWillTopic
	s.handlers[WILLMSG] = s.receivedWillMsg
	s.handlers[REGISTER] = s.receivedRegister
	s.handlers[REGACK] = s.receivedRegack
	s.handlers[PUBLISH] = s.receivedPublish
	s.handlers[PUBACK] = s.receivedPuback
	s.handlers[PUBREC] = s.receivedPubrec
	s.handlers[PUBREL] = s.receivedPubrel
	s.handlers[PUBCOMP] = s.receivedPubcomp
	s.handlers[SUBSCRIBE] = s.receivedSubscribe
	s.handlers[UNSUBSCRIBE] = s.receivedUnsubscribe
	s.handlers[PINGREQ] = s.receivedPingreq
	s.handlers[PINGRESP] = s.receivedPingresp
	s.handlers[DISCONNECT] = s.receivedDisconnect
	s.handlers[WILLTOPICUPD] = s.receivedWillTopicUpd
	s.handlers[WILLMSGUPD] = s.receivedWillMsgUpd

	log.Printf("gateway created: gwid=%d, advertise=%ds", s.gwid, s.advertiseInterval)
	return s
}

// SetBridge attaches the upstream broker bridge. Must be set before
// Manage starts.
func (s *Server) SetBridge(b BrokerBridge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bridge = b
}

func (s *Server) SetGatewayID(gwid uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gwid = gwid
}

func (s *Server) GatewayID() uint8 { return s.gwid }

// SetAdvertiseInterval changes the seconds between ADVERTISE broadcasts.
func (s *Server) SetAdvertiseInterval(seconds uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advertiseInterval = seconds
}

// Initialise powers the link up.
func (s *Server) Initialise(unicast, broadcast []byte, addrLen uint8) bool {
	return s.link.Initialise(unicast, broadcast, addrLen)
}

// BrokerEvents implementation. Every callback only queues; the work
// happens on the manage thread.

func (s *Server) OnConnect(rc int) {
	s.pushEvent(brokerEvent{kind: evConnect, rc: rc})
}

func (s *Server) OnDisconnect(rc int) {
	s.pushEvent(brokerEvent{kind: evDisconnect, rc: rc})
}

func (s *Server) OnPublishDone(mid int) {
	s.pushEvent(brokerEvent{kind: evPublishDone, mid: mid})
}

func (s *Server) OnSubscribeDone(mid int, grantedQoS uint8) {
	s.pushEvent(brokerEvent{kind: evSubscribeDone, mid: mid, granted: grantedQoS})
}

func (s *Server) OnMessage(topic string, payload []byte, qos uint8, retain bool) {
	s.pushEvent(brokerEvent{kind: evMessage, topic: topic, payload: append([]byte(nil), payload...), qos: qos, retain: retain})
}

func (s *Server) pushEvent(ev brokerEvent) {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	s.events = append(s.events, ev)
}

// Ping probes a connected client by its client-id.
func (s *Server) Ping(clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	con := s.searchConnection(clientID)
	if con == nil {
		return ErrNotConnected
	}
	con.ResetPing(s.now())
	s.addrWrite(con.Address(), &packet.PINGREQ{})
	return nil
}

// Manage is the cooperative tick: drain broker events, dispatch inbound
// frames, run the per-connection watchdogs and broadcast the periodic
// ADVERTISE.
func (s *Server) Manage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainBrokerEvents()
	s.dispatchQueue()
	now := s.now()

	connected := 0
	for _, con := range s.order {
		switch con.State() {
		case StateConnected, StateConnecting:
			if con.IsConnected() {
				connected++
			}
			s.connectionWatchdog(con, now)
		case StateDisconnected, StateAsleep:
		}
	}
	stat.ActiveConnections.Set(float64(connected))

	if s.brokerConnected && now.After(s.lastAdvertised.Add(time.Duration(s.advertiseInterval)*time.Second)) {
		s.addrWrite(s.link.BroadcastAddress(), &packet.ADVERTISE{GatewayID: s.gwid, Duration: s.advertiseInterval})
		s.lastAdvertised = now
	}
}

// connectionWatchdog enforces lost-contact teardown, drives the active
// message and replays topics after a dirty reconnect.
func (s *Server) connectionWatchdog(con *Connection, now time.Time) {
	if con.LostContact(now) {
		log.Printf("gateway lost client: client_id=%s", con.ClientID)
		con.SetState(StateDisconnected)
		s.addrWrite(con.Address(), &packet.DISCONNECT{})
		con.Messages.ClearQueue()
		s.sendWill(con)
		return
	}
	if m := s.driveMessage(con); m != nil {
		log.Printf("gateway message failed: kind=%s, mid=%d, client_id=%s",
			packet.Kind[m.Kind()], m.MessageID(), con.ClientID)
		if m.Activity() == ActivityWillTopic || m.Activity() == ActivityWillMessage {
			// The will handshake died: the connection never completed.
			con.SetState(StateDisconnected)
			con.Messages.ClearQueue()
		}
		return
	}
	if con.IsConnected() && con.ResumeTopics() && con.Messages.GetActiveMessage() == nil {
		s.completeClientConnection(con)
	}
}

// sendWill publishes the client's will upstream after lost contact.
func (s *Server) sendWill(con *Connection) {
	if !con.HasWill() || s.bridge == nil {
		return
	}
	if _, err := s.bridge.Publish(con.WillTopic(), con.WillMessage(), con.WillQoS(), con.WillRetain()); err != nil {
		log.Printf("will publish failed: client_id=%s, topic=%s, err=%v", con.ClientID, con.WillTopic(), err)
	}
}

// completeClientConnection replays the next surviving topic of a dirty
// reconnect as a gateway-initiated REGISTER.
func (s *Server) completeClientConnection(con *Connection) {
	topics := con.Topics.Topics()
	for i := con.resumeIndex; i < len(topics); i++ {
		t := topics[i]
		if t.IsWildcard() || t.IsShort() {
			continue
		}
		con.resumeIndex = i + 1
		if !s.registerTopic(con, t) {
			log.Printf("topic replay failed: client_id=%s, topic=%s", con.ClientID, t.Name)
		}
		return
	}
	con.SetResumeTopics(false)
}

// registerTopic queues a gateway-initiated REGISTER for t.
func (s *Server) registerTopic(con *Connection, t *topic.Topic) bool {
	if !con.IsConnected() {
		return false
	}
	m, err := s.enqueueFrame(con, ActivityRegistering, func(mid uint16) packet.Packet {
		return &packet.REGISTER{TopicID: t.ID, MessageID: mid, TopicName: t.Name}
	})
	if err != nil {
		return false
	}
	if con.ResumeTopics() {
		m.SetActivity(ActivityRegisteringAll)
	}
	s.transmit(con, m)
	return true
}

// Connection lookups. The map is keyed by client-id and survives
// disconnects so a reconnecting client finds its old session shell; the
// order slice preserves creation order for iteration.

func (s *Server) searchConnection(clientID string) *Connection {
	con := s.connections[clientID]
	if con == nil || con.IsDisconnected() {
		return nil
	}
	return con
}

func (s *Server) searchCachedConnection(clientID string) *Connection {
	return s.connections[clientID]
}

func (s *Server) searchConnectionAddress(addr []byte) *Connection {
	for _, con := range s.order {
		if !con.IsDisconnected() && con.AddressMatch(addr) {
			return con
		}
	}
	return nil
}

func (s *Server) newConnection(clientID string) *Connection {
	con := NewConnection()
	con.ClientID = clientID
	s.connections[clientID] = con
	s.order = append(s.order, con)
	return con
}

func (s *Server) searchBrokerMID(mid int) (*Connection, *Message) {
	for _, con := range s.order {
		if con.IsDisconnected() {
			continue
		}
		if m := con.Messages.GetBrokerMessage(mid); m != nil {
			return con, m
		}
	}
	return nil, nil
}

func (s *Server) receivedSearchGW(src []byte, pkt packet.Packet) {
	if !s.brokerConnected {
		return
	}
	s.addrWrite(src, &packet.GWINFO{GatewayID: s.gwid})
}

func (s *Server) receivedConnect(src []byte, pkt packet.Packet) {
	req := pkt.(*packet.CONNECT)
	if req.ProtocolID != packet.Protocol {
		log.Printf("connect rejected: bad protocol id %#x from client_id=%s", req.ProtocolID, req.ClientID)
		return
	}
	if len(req.ClientID) == 0 || len(req.ClientID) > int(s.link.PayloadWidth())-packet.ConnectHdrLen {
		return
	}
	now := s.now()

	con := s.searchCachedConnection(req.ClientID)
	if con == nil {
		log.Printf("client connecting: client_id=%s (new)", req.ClientID)
		con = s.newConnection(req.ClientID)
	} else {
		log.Printf("client connecting: client_id=%s (cached)", req.ClientID)
	}

	con.SetState(StateConnecting)
	con.SleepDuration = 0
	con.AsleepFrom = time.Time{}
	con.UpdateActivity(now)
	con.Duration = req.Duration
	con.SetAddress(src, s.link.AddressLen())
	con.SetResumeTopics(false)
	con.Messages.ClearQueue()

	if req.CleanSession() {
		con.Topics.FreeAll()
		con.SetWillTopic("", 0, false, s.link.PayloadWidth())
		con.SetWillMessage(nil, s.link.PayloadWidth())
	} else {
		con.SetResumeTopics(true)
		con.resumeIndex = 0
	}

	if req.Will() {
		m, err := s.enqueueFrame(con, ActivityWillTopic, func(uint16) packet.Packet {
			return &packet.WILLTOPICREQ{}
		})
		if err != nil {
			log.Printf("connect: cannot queue will topic request for client_id=%s", con.ClientID)
			return
		}
		s.transmit(con, m)
		return
	}
	s.addrWrite(con.Address(), &packet.CONNACK{ReturnCode: packet.Accepted})
	con.SetState(StateConnected)
}

func (s *Server) receivedWillTopic(src []byte, pkt packet.Packet) {
	wt := pkt.(*packet.WILLTOPIC)
	con := s.searchConnectionAddress(src)
	if con == nil {
		return
	}
	con.UpdateActivity(s.now())
	if con.State() != StateConnecting {
		return
	}
	m := con.Messages.GetActiveMessage()
	if m == nil {
		return
	}

	if wt.Empty {
		// A will was flagged but not supplied; complete without one.
		con.SetWillTopic("", 0, false, s.link.PayloadWidth())
		m.SetInactive()
		s.addrWrite(con.Address(), &packet.CONNACK{ReturnCode: packet.Accepted})
		con.SetState(StateConnected)
		return
	}
	if err := con.SetWillTopic(wt.WillTopic, wt.QoS(), wt.Retain(), s.link.PayloadWidth()); err != nil {
		log.Printf("will topic rejected: client_id=%s, err=%v", con.ClientID, err)
	}
	frame, err := packet.Encode(&packet.WILLMSGREQ{})
	if err != nil {
		return
	}
	m.ResetRetries()
	m.SetActivity(ActivityWillMessage)
	m.SetFrame(frame)
	s.transmit(con, m)
}

func (s *Server) receivedWillMsg(src []byte, pkt packet.Packet) {
	wm := pkt.(*packet.WILLMSG)
	con := s.searchConnectionAddress(src)
	if con == nil {
		// No session to attach the will to; there is no "who are you"
		// reply, so a refused CONNACK has to do.
		s.addrWrite(src, &packet.CONNACK{ReturnCode: packet.Congestion})
		return
	}
	con.UpdateActivity(s.now())
	if con.State() != StateConnecting {
		return
	}
	if m := con.Messages.GetActiveMessage(); m != nil {
		m.SetInactive()
	}
	if err := con.SetWillMessage(wm.WillMsg, s.link.PayloadWidth()); err != nil {
		log.Printf("will message rejected: client_id=%s, err=%v", con.ClientID, err)
	}
	s.addrWrite(con.Address(), &packet.CONNACK{ReturnCode: packet.Accepted})
	con.SetState(StateConnected)
}

func (s *Server) receivedRegister(src []byte, pkt packet.Packet) {
	reg := pkt.(*packet.REGISTER)
	con := s.searchConnectionAddress(src)
	if con == nil {
		return
	}
	con.UpdateActivity(s.now())
	t := con.Topics.AddTopic(reg.TopicName, reg.MessageID)
	s.addrWrite(con.Address(), &packet.REGACK{
		TopicID: t.ID, MessageID: reg.MessageID, ReturnCode: packet.Accepted,
	})
}

// receivedRegack acknowledges a gateway-initiated REGISTER; during a
// topic replay it moves on to the next topic.
func (s *Server) receivedRegack(src []byte, pkt packet.Packet) {
	ack := pkt.(*packet.REGACK)
	con := s.searchConnectionAddress(src)
	if con == nil {
		return
	}
	con.UpdateActivity(s.now())
	m := con.Messages.GetMessage(ack.MessageID, false)
	if m == nil {
		return
	}
	m.SetInactive()
	if ack.ReturnCode != packet.Accepted {
		log.Printf("client refused register: client_id=%s, rc=%d", con.ClientID, ack.ReturnCode)
	}
	if con.IsConnected() && con.ResumeTopics() {
		s.completeClientConnection(con)
	}
}

func (s *Server) receivedPublish(src []byte, pkt packet.Packet) {
	pub := pkt.(*packet.PUBLISH)

	nack := func(rc byte) {
		s.addrWrite(src, &packet.PUBACK{TopicID: pub.TopicID, MessageID: pub.MessageID, ReturnCode: rc})
	}

	if !s.brokerConnected {
		nack(packet.Congestion)
		return
	}

	if pub.NoQoS() {
		// Connectionless publish: forward and forget. Normal topic ids
		// have no meaning without a session.
		switch pub.TopicType() {
		case packet.TopicShortName:
			s.bridgePublish(pub.ShortName(), pub.Data, pub.Retain())
		case packet.TopicIDPredefined:
			t := s.predefined.GetTopic(pub.TopicID)
			if t == nil {
				nack(packet.InvalidTopic)
				return
			}
			s.bridgePublish(t.Name, pub.Data, pub.Retain())
		default:
			nack(packet.InvalidTopic)
		}
		return
	}

	con := s.searchConnectionAddress(src)
	if con == nil {
		return
	}
	con.UpdateActivity(s.now())
	s.serverPublish(con, pub)
}

// bridgePublish forwards payload upstream at QoS 1 without bookkeeping.
func (s *Server) bridgePublish(name string, payload []byte, retain bool) {
	if s.bridge == nil {
		return
	}
	if _, err := s.bridge.Publish(name, payload, 1, retain); err != nil {
		log.Printf("bridge publish failed: topic=%s, err=%v", name, err)
	}
}

// serverPublish forwards a session publish upstream and parks a
// publishing message that the broker completion will resolve into the
// client's acknowledgement.
func (s *Server) serverPublish(con *Connection, pub *packet.PUBLISH) {
	nack := func(rc byte) {
		s.addrWrite(con.Address(), &packet.PUBACK{TopicID: pub.TopicID, MessageID: pub.MessageID, ReturnCode: rc})
	}

	var name string
	switch pub.TopicType() {
	case packet.TopicShortName:
		name = pub.ShortName()
	case packet.TopicIDPredefined:
		t := s.predefined.GetTopic(pub.TopicID)
		if t == nil {
			nack(packet.InvalidTopic)
			return
		}
		name = t.Name
	case packet.TopicIDNormal:
		t := con.Topics.GetTopic(pub.TopicID)
		if t == nil {
			nack(packet.InvalidTopic)
			return
		}
		name = t.Name
	default:
		nack(packet.NotSupported)
		return
	}

	m := con.Messages.AddMessage(ActivityPublishing)
	if m == nil {
		nack(packet.Congestion)
		return
	}
	bmid, err := s.bridge.Publish(name, pub.Data, 1, pub.Retain())
	if err != nil {
		m.SetInactive()
		log.Printf("bridge publish failed: client_id=%s, topic=%s, err=%v", con.ClientID, name, err)
		nack(packet.Congestion)
		return
	}
	m.SetBrokerMID(bmid)
	m.SetQoS(pub.QoS())
	m.SetTopicID(pub.TopicID)
	m.SetTopicType(pub.TopicType())
	m.SetMessageID(pub.MessageID, true)
}

func (s *Server) receivedPuback(src []byte, pkt packet.Packet) {
	ack := pkt.(*packet.PUBACK)
	con := s.searchConnectionAddress(src)
	if con == nil {
		return
	}
	con.UpdateActivity(s.now())
	m := con.Messages.GetMessage(ack.MessageID, false)
	if m == nil {
		return
	}
	m.SetInactive()
	if ack.ReturnCode != packet.Accepted {
		log.Printf("client refused publish: client_id=%s, rc=%d, topic_id=%d", con.ClientID, ack.ReturnCode, ack.TopicID)
	}
}

// receivedPubrec advances an outbound QoS 2 publish: the slot is recycled
// to carry PUBREL, keeping its identity for completion.
func (s *Server) receivedPubrec(src []byte, pkt packet.Packet) {
	rec := pkt.(*packet.PUBREC)
	con := s.searchConnectionAddress(src)
	if con == nil {
		return
	}
	con.UpdateActivity(s.now())
	m := con.Messages.GetMessage(rec.MessageID, false)
	if m == nil || !m.IsActive() {
		return
	}
	frame, err := packet.Encode(&packet.PUBREL{MessageID: rec.MessageID})
	if err != nil {
		return
	}
	m.ResetRetries()
	m.SetFrame(frame)
	s.transmit(con, m)
}

// receivedPubrel completes an inbound QoS 2 publish.
func (s *Server) receivedPubrel(src []byte, pkt packet.Packet) {
	rel := pkt.(*packet.PUBREL)
	con := s.searchConnectionAddress(src)
	if con == nil {
		return
	}
	con.UpdateActivity(s.now())
	if m := con.Messages.GetMessage(rel.MessageID, true); m != nil {
		m.SetInactive()
	}
	s.addrWrite(con.Address(), &packet.PUBCOMP{MessageID: rel.MessageID})
}

func (s *Server) receivedPubcomp(src []byte, pkt packet.Packet) {
	comp := pkt.(*packet.PUBCOMP)
	con := s.searchConnectionAddress(src)
	if con == nil {
		return
	}
	con.UpdateActivity(s.now())
	if m := con.Messages.GetMessage(comp.MessageID, false); m != nil {
		m.SetInactive()
	}
}

func (s *Server) receivedSubscribe(src []byte, pkt packet.Packet) {
	sub := pkt.(*packet.SUBSCRIBE)
	con := s.searchConnectionAddress(src)
	if con == nil {
		return
	}
	con.UpdateActivity(s.now())

	suback := func(rc byte, topicID uint16, qos uint8) {
		s.addrWrite(con.Address(), &packet.SUBACK{
			Flags: packet.QoSFlag(qos), TopicID: topicID, MessageID: sub.MessageID, ReturnCode: rc,
		})
	}

	if !s.brokerConnected {
		suback(packet.Congestion, 0, 0)
		return
	}

	qos := sub.QoS()
	if qos > 2 {
		suback(packet.NotSupported, 0, 0)
		return
	}

	var t *topic.Topic
	switch sub.TopicType() {
	case packet.TopicIDNormal:
		t = con.Topics.GetTopicByName(sub.TopicName)
		if t == nil {
			t = con.Topics.AddTopic(sub.TopicName, sub.MessageID)
		}
	case packet.TopicShortName:
		name := string([]byte{byte(sub.TopicID >> 8), byte(sub.TopicID)})
		t = con.Topics.GetTopicByName(name)
		if t == nil {
			// Short topics carry their name inline, so no registry id.
			var err error
			if t, err = con.Topics.CreateTopic(name, 0, false); err != nil {
				suback(packet.InvalidTopic, 0, 0)
				return
			}
			t.SetShort(true)
		}
	case packet.TopicIDPredefined:
		t = s.predefined.GetTopic(sub.TopicID)
		if t == nil {
			log.Printf("subscribe to unknown predefined topic: client_id=%s, topic_id=%d", con.ClientID, sub.TopicID)
			suback(packet.InvalidTopic, 0, 0)
			return
		}
	default:
		suback(packet.InvalidTopic, 0, 0)
		return
	}

	wireID := s.wireTopicID(t, sub.TopicID)
	if t.IsSubscribed() {
		// Duplicate subscription: acknowledge with the existing binding.
		suback(packet.Accepted, wireID, t.QoS)
		return
	}

	t.QoS = qos
	t.SetSubscribed(true)
	bmid, err := s.bridge.Subscribe(t.Name, 1)
	if err != nil {
		t.SetSubscribed(false)
		log.Printf("bridge subscribe failed: client_id=%s, topic=%s, err=%v", con.ClientID, t.Name, err)
		suback(packet.Congestion, 0, 0)
		return
	}
	m := con.Messages.AddMessage(ActivitySubscribing)
	if m == nil {
		suback(packet.Congestion, 0, 0)
		return
	}
	m.SetMessageID(sub.MessageID, true)
	m.SetTopicID(wireID)
	m.SetTopicType(sub.TopicType())
	m.SetQoS(qos)
	m.SetBrokerMID(bmid)
	m.OneShot(true)
}

// wireTopicID is the topic id a SUBACK or PUBLISH carries for t: 0 for a
// wildcard placeholder, the packed name octets for a short topic, the
// registry id otherwise.
func (s *Server) wireTopicID(t *topic.Topic, requested uint16) uint16 {
	switch {
	case t.IsWildcard():
		return 0
	case t.IsShort():
		if len(t.Name) == 2 {
			return uint16(t.Name[0])<<8 | uint16(t.Name[1])
		}
		return requested
	default:
		return t.ID
	}
}

func (s *Server) receivedUnsubscribe(src []byte, pkt packet.Packet) {
	unsub := pkt.(*packet.UNSUBSCRIBE)
	con := s.searchConnectionAddress(src)
	if con == nil {
		return
	}
	con.UpdateActivity(s.now())

	var name string
	switch unsub.TopicType() {
	case packet.TopicIDNormal:
		name = unsub.TopicName
	case packet.TopicShortName:
		name = string([]byte{byte(unsub.TopicID >> 8), byte(unsub.TopicID)})
	case packet.TopicIDPredefined:
		if t := s.predefined.GetTopic(unsub.TopicID); t != nil {
			name = t.Name
			t.SetSubscribed(false)
		}
	}
	if t := con.Topics.GetTopicByName(name); t != nil {
		t.SetSubscribed(false)
	}
	if name != "" && !s.anySubscribed(name) && s.bridge != nil {
		if _, err := s.bridge.Unsubscribe(name); err != nil {
			log.Printf("bridge unsubscribe failed: topic=%s, err=%v", name, err)
		}
	}
	s.addrWrite(con.Address(), &packet.UNSUBACK{MessageID: unsub.MessageID})
}

// anySubscribed reports whether any live connection still subscribes to
// name.
func (s *Server) anySubscribed(name string) bool {
	for _, con := range s.order {
		if con.IsDisconnected() {
			continue
		}
		if t := con.Topics.GetTopicByName(name); t != nil && t.IsSubscribed() {
			return true
		}
	}
	if t := s.predefined.GetTopicByName(name); t != nil && t.IsSubscribed() {
		return true
	}
	return false
}

func (s *Server) receivedPingreq(src []byte, pkt packet.Packet) {
	con := s.searchConnectionAddress(src)
	if con == nil {
		// Unknown clients are not answered.
		return
	}
	con.UpdateActivity(s.now())
	s.addrWrite(con.Address(), &packet.PINGRESP{})
}

func (s *Server) receivedPingresp(src []byte, pkt packet.Packet) {
	if con := s.searchConnectionAddress(src); con != nil {
		con.UpdateActivity(s.now())
	}
}

func (s *Server) receivedDisconnect(src []byte, pkt packet.Packet) {
	dis := pkt.(*packet.DISCONNECT)
	con := s.searchConnectionAddress(src)
	if con == nil {
		return
	}
	now := s.now()
	if dis.HasDuration {
		con.SleepDuration = dis.Duration
		con.AsleepFrom = now
		con.SetState(StateAsleep)
		log.Printf("client sleeping: client_id=%s, duration=%ds", con.ClientID, dis.Duration)
	} else {
		con.SetState(StateDisconnected)
		log.Printf("client disconnected: client_id=%s", con.ClientID)
	}
	con.UpdateActivity(now)
	s.addrWrite(con.Address(), &packet.DISCONNECT{})
}

func (s *Server) receivedWillTopicUpd(src []byte, pkt packet.Packet) {
	upd := pkt.(*packet.WILLTOPICUPD)
	con := s.searchConnectionAddress(src)
	if con == nil {
		return
	}
	con.UpdateActivity(s.now())
	rc := packet.Accepted
	if upd.Empty {
		con.SetWillTopic("", 0, false, s.link.PayloadWidth())
	} else if err := con.SetWillTopic(upd.WillTopic, upd.QoS(), upd.Retain(), s.link.PayloadWidth()); err != nil {
		rc = packet.NotSupported
	}
	s.addrWrite(con.Address(), &packet.WILLTOPICRESP{ReturnCode: rc})
}

func (s *Server) receivedWillMsgUpd(src []byte, pkt packet.Packet) {
	upd := pkt.(*packet.WILLMSGUPD)
	con := s.searchConnectionAddress(src)
	if con == nil {
		return
	}
	con.UpdateActivity(s.now())
	rc := packet.Accepted
	if err := con.SetWillMessage(upd.WillMsg, s.link.PayloadWidth()); err != nil {
		rc = packet.NotSupported
	}
	s.addrWrite(con.Address(), &packet.WILLMSGRESP{ReturnCode: rc})
}

// drainBrokerEvents moves the queued bridge callbacks onto the manage
// thread. Callers hold the engine lock.
func (s *Server) drainBrokerEvents() {
	s.eventMu.Lock()
	events := s.events
	s.events = nil
	s.eventMu.Unlock()

	for i := range events {
		ev := &events[i]
		switch ev.kind {
		case evConnect:
			s.brokerConnected = ev.rc == 0
			log.Printf("broker connected: rc=%d", ev.rc)
		case evDisconnect:
			s.brokerConnected = false
			log.Printf("broker disconnected: rc=%d", ev.rc)
		case evPublishDone:
			s.brokerPublishDone(ev.mid)
		case evSubscribeDone:
			s.brokerSubscribeDone(ev.mid, ev.granted)
		case evMessage:
			s.brokerMessage(ev.topic, ev.payload, ev.retain)
		}
	}
}

// brokerPublishDone resolves a forwarded client publish: the broker took
// it, so acknowledge downstream according to the client's QoS.
func (s *Server) brokerPublishDone(mid int) {
	con, m := s.searchBrokerMID(mid)
	if con == nil {
		// QoS -1 and will publishes are not tracked.
		return
	}
	switch m.QoS() {
	case 0:
		m.SetInactive()
	case 1:
		m.SetInactive()
		s.addrWrite(con.Address(), &packet.PUBACK{
			TopicID: m.TopicID(), MessageID: m.MessageID(), ReturnCode: packet.Accepted,
		})
	case 2:
		frame, err := packet.Encode(&packet.PUBREC{MessageID: m.MessageID()})
		if err != nil {
			m.SetInactive()
			return
		}
		m.ResetRetries()
		m.SetFrame(frame)
		s.transmit(con, m)
	default:
		m.SetInactive()
	}
}

// brokerSubscribeDone turns the upstream SUBACK into the client's SUBACK.
func (s *Server) brokerSubscribeDone(mid int, granted uint8) {
	con, m := s.searchBrokerMID(mid)
	if con == nil {
		return
	}
	frame, err := packet.Encode(&packet.SUBACK{
		Flags:      packet.QoSFlag(m.QoS()),
		TopicID:    m.TopicID(),
		MessageID:  m.MessageID(),
		ReturnCode: packet.Accepted,
	})
	if err != nil {
		m.SetInactive()
		return
	}
	m.SetFrame(frame)
	s.transmit(con, m)
}

// brokerMessage fans a broker publish out to every subscribed client. A
// wildcard subscription materialises a concrete topic, pushed to the
// client with a REGISTER ahead of the PUBLISH.
func (s *Server) brokerMessage(name string, payload []byte, retain bool) {
	if len(payload) > int(s.link.PayloadWidth())-packet.PublishHdrLen {
		log.Printf("broker message too large for link: topic=%s, size=%d", name, len(payload))
		return
	}
	for _, con := range s.order {
		if !con.IsConnected() && !con.IsAsleep() {
			continue
		}
		matched := false
		for _, t := range con.Topics.Topics() {
			if t.IsSubscribed() && t.Match(name) {
				topicType := packet.TopicIDNormal
				if t.IsShort() {
					topicType = packet.TopicShortName
				}
				s.publishTopic(con, t, name, topicType, payload, retain)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		for _, t := range s.predefined.Topics() {
			if t.IsSubscribed() && t.Match(name) {
				topicType := packet.TopicIDPredefined
				if t.IsShort() {
					topicType = packet.TopicShortName
				}
				s.publishTopic(con, t, name, topicType, payload, retain)
				break
			}
		}
	}
}

// publishTopic queues one downstream PUBLISH for con under subscription
// t.
func (s *Server) publishTopic(con *Connection, t *topic.Topic, name string, topicType byte, payload []byte, retain bool) {
	qos := t.QoS
	if t.IsWildcard() {
		concrete := con.Topics.GetTopicByName(name)
		if concrete == nil {
			concrete = con.Topics.AddTopic(name, 0)
			concrete.QoS = qos
			// The client has never seen this id: push the binding first.
			s.registerTopic(con, concrete)
		}
		t = concrete
	}

	wireID := s.wireTopicID(t, 0)
	var flags byte = packet.QoSFlag(qos) | topicType
	if retain {
		flags |= packet.FlagRetain
	}
	m, err := s.enqueueFrame(con, ActivityPublishing, func(mid uint16) packet.Packet {
		wire := mid
		if qos == 0 {
			wire = 0
		}
		return &packet.PUBLISH{Flags: flags, TopicID: wireID, MessageID: wire, Data: payload}
	})
	if err != nil {
		log.Printf("downstream publish dropped: client_id=%s, topic=%s, err=%v", con.ClientID, name, err)
		return
	}
	if qos == 0 {
		m.OneShot(true)
	} else {
		m.SetQoS(qos)
		m.SetTopicID(wireID)
		m.SetTopicType(topicType)
	}
}
