package mqttsn

import (
	"bytes"
	"testing"
	"time"

	"github.com/golang-io/mqttsn/packet"
)

const testGWAddr = 0x01

func encodeFrame(t *testing.T, pkt packet.Packet) []byte {
	t.Helper()
	b, err := packet.Encode(pkt)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newTestClient(t *testing.T) (*Client, *memLink, *fakeClock) {
	t.Helper()
	link := newMemLink(0x0A)
	clk := newFakeClock()
	c := NewClient(link, ClientID("sensor-1"), RetryAttributes(time.Second, 3))
	c.now = clk.Now
	return c, link, clk
}

func connectTestClient(t *testing.T, c *Client, link *memLink) {
	t.Helper()
	if err := c.AddGateway([]byte{testGWAddr}, 7, 0, true); err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(7, false, true, 60); err != nil {
		t.Fatal(err)
	}
	link.inject(testGWAddr, encodeFrame(t, &packet.CONNACK{ReturnCode: packet.Accepted}))
	c.Manage()
	if !c.IsConnected() {
		t.Fatal("client failed to connect")
	}
	link.reset()
}

// S1: discovery then clean connect.
func TestDiscoveryAndCleanConnect(t *testing.T) {
	c, link, _ := newTestClient(t)

	gwinfos := 0
	c.OnGatewayInfo(func(available bool, gwid uint8) {
		if available && gwid == 7 {
			gwinfos++
		}
	})
	connects := 0
	c.OnConnected(func(success bool, rc uint8, gwid uint8) {
		if success && rc == packet.Accepted && gwid == 7 {
			connects++
		}
	})

	if err := c.SearchGW(1); err != nil {
		t.Fatal(err)
	}
	sent := link.lastSent(SEARCHGW)
	if sent == nil || !bytes.Equal(sent.dest, link.broadcast) {
		t.Fatal("SEARCHGW not broadcast")
	}

	link.inject(testGWAddr, encodeFrame(t, &packet.GWINFO{GatewayID: 7}))
	c.Manage()
	if gwinfos != 1 {
		t.Fatalf("gwinfo callbacks = %d, want 1", gwinfos)
	}

	if err := c.Connect(7, false, true, 60); err != nil {
		t.Fatal(err)
	}
	con := link.lastSent(CONNECT)
	if con == nil || !bytes.Equal(con.dest, []byte{testGWAddr}) {
		t.Fatal("CONNECT not sent to the discovered gateway")
	}
	pkt, err := packet.Decode(con.frame, 0)
	if err != nil {
		t.Fatal(err)
	}
	cp := pkt.(*packet.CONNECT)
	if cp.ClientID != "sensor-1" || !cp.CleanSession() || cp.Will() || cp.Duration != 60 {
		t.Fatalf("CONNECT fields: %+v", cp)
	}

	link.inject(testGWAddr, encodeFrame(t, &packet.CONNACK{ReturnCode: packet.Accepted}))
	c.Manage()
	if connects != 1 {
		t.Fatalf("connected callbacks = %d, want 1", connects)
	}
	if !c.IsConnected() || !c.IsConnectedTo(7) {
		t.Fatal("client should be connected to gateway 7")
	}
}

// S2 (client half): the will handshake answers both requests.
func TestWillHandshake(t *testing.T) {
	c, link, _ := newTestClient(t)
	if err := c.SetWillTopic("d/last", 1, true); err != nil {
		t.Fatal(err)
	}
	if err := c.SetWillMessage([]byte("bye")); err != nil {
		t.Fatal(err)
	}
	if err := c.AddGateway([]byte{testGWAddr}, 7, 0, true); err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(7, true, true, 30); err != nil {
		t.Fatal(err)
	}

	link.inject(testGWAddr, encodeFrame(t, &packet.WILLTOPICREQ{}))
	c.Manage()
	wt := link.lastSent(WILLTOPIC)
	if wt == nil {
		t.Fatal("no WILLTOPIC reply")
	}
	pkt, _ := packet.Decode(wt.frame, 0)
	wtp := pkt.(*packet.WILLTOPIC)
	if wtp.WillTopic != "d/last" || wtp.QoS() != 1 || !wtp.Retain() {
		t.Fatalf("WILLTOPIC fields: %+v", wtp)
	}

	link.inject(testGWAddr, encodeFrame(t, &packet.WILLMSGREQ{}))
	c.Manage()
	wm := link.lastSent(WILLMSG)
	if wm == nil {
		t.Fatal("no WILLMSG reply")
	}
	pkt, _ = packet.Decode(wm.frame, 0)
	if !bytes.Equal(pkt.(*packet.WILLMSG).WillMsg, []byte("bye")) {
		t.Fatal("WILLMSG body mismatch")
	}

	link.inject(testGWAddr, encodeFrame(t, &packet.CONNACK{ReturnCode: packet.Accepted}))
	c.Manage()
	if !c.IsConnected() {
		t.Fatal("client should be connected after the will handshake")
	}
}

// S3: register then publish at QoS 1.
func TestRegisterAndPublishQoS1(t *testing.T) {
	c, link, _ := newTestClient(t)
	connectTestClient(t, c, link)

	registered := 0
	c.OnRegistered(func(success bool, rc uint8, topicID, messageID uint16, gwid uint8) {
		if success && topicID == 1 {
			registered++
		}
	})
	mid, err := c.RegisterTopic("sensors/t")
	if err != nil || mid == 0 {
		t.Fatalf("RegisterTopic: mid=%d, err=%v", mid, err)
	}
	reg := link.lastSent(REGISTER)
	if reg == nil {
		t.Fatal("REGISTER not sent")
	}
	link.inject(testGWAddr, encodeFrame(t, &packet.REGACK{TopicID: 1, MessageID: mid, ReturnCode: packet.Accepted}))
	c.Manage()
	if registered != 1 {
		t.Fatalf("registered callbacks = %d, want 1", registered)
	}
	tp := c.conn.Topics.GetTopic(1)
	if tp == nil || tp.Name != "sensors/t" {
		t.Fatal("topic not bound to id 1")
	}

	var published int
	c.OnPublished(func(success bool, rc uint8, topicID, messageID uint16, gwid uint8) {
		if success && rc == packet.Accepted && topicID == 1 && gwid == 7 {
			published++
		}
	})
	pmid, err := c.Publish(1, 1, packet.TopicIDNormal, []byte("23.5"), false)
	if err != nil {
		t.Fatal(err)
	}
	pub := link.lastSent(PUBLISH)
	if pub == nil {
		t.Fatal("PUBLISH not sent")
	}
	link.inject(testGWAddr, encodeFrame(t, &packet.PUBACK{TopicID: 1, MessageID: pmid, ReturnCode: packet.Accepted}))
	c.Manage()
	if published != 1 {
		t.Fatalf("published callbacks = %d, want 1", published)
	}
}

// S4: the QoS 2 exchange completes through one recycled slot.
func TestPublishQoS2RoundTrip(t *testing.T) {
	c, link, _ := newTestClient(t)
	connectTestClient(t, c, link)

	published := 0
	c.OnPublished(func(success bool, rc uint8, topicID, messageID uint16, gwid uint8) {
		if success && topicID == 1 {
			published++
		}
	})
	mid, err := c.Publish(2, 1, packet.TopicIDNormal, []byte("42"), false)
	if err != nil {
		t.Fatal(err)
	}
	link.inject(testGWAddr, encodeFrame(t, &packet.PUBREC{MessageID: mid}))
	c.Manage()
	rel := link.lastSent(PUBREL)
	if rel == nil {
		t.Fatal("PUBREL not sent after PUBREC")
	}
	link.inject(testGWAddr, encodeFrame(t, &packet.PUBCOMP{MessageID: mid}))
	c.Manage()
	if published != 1 {
		t.Fatalf("published callbacks = %d, want 1", published)
	}
	if m := c.conn.Messages.GetMessage(mid, false); m != nil && m.IsActive() {
		t.Fatal("slot still active after PUBCOMP")
	}
}

// S5: retry exhaustion surfaces MSG_FAILURE after (Nretry+1) sends.
func TestPublishRetryExhaustion(t *testing.T) {
	c, link, clk := newTestClient(t)
	connectTestClient(t, c, link)

	var fail []uint16
	c.OnPublished(func(success bool, rc uint8, topicID, messageID uint16, gwid uint8) {
		if !success && rc == MsgFailure && topicID == 0 && gwid == 7 {
			fail = append(fail, messageID)
		}
	})
	mid, err := c.Publish(1, 1, packet.TopicIDNormal, []byte("x"), false)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		clk.Advance(time.Second)
		c.Manage()
	}
	if len(fail) != 1 || fail[0] != mid {
		t.Fatalf("failure callbacks = %v, want [%d]", fail, mid)
	}
	if got := link.countSent(PUBLISH); got != 4 {
		t.Fatalf("PUBLISH transmissions = %d, want Nretry+1 = 4", got)
	}
	// Every retransmission carries DUP; the first does not.
	dups := 0
	for _, s := range link.sent {
		if s.frame[1] == PUBLISH && s.frame[2]&packet.FlagDup != 0 {
			dups++
		}
	}
	if dups != 3 {
		t.Fatalf("DUP retransmissions = %d, want 3", dups)
	}
	if m := c.conn.Messages.GetMessage(mid, false); m != nil && m.IsActive() {
		t.Fatal("slot still active after failure")
	}
}

// Keep-alive: a silent connection pings after D and tears down after 5D.
func TestKeepAlivePingAndLostContact(t *testing.T) {
	c, link, clk := newTestClient(t)
	connectTestClient(t, c, link)

	gwLost, disconnected := 0, 0
	c.OnGatewayInfo(func(available bool, gwid uint8) {
		if !available && gwid == 7 {
			gwLost++
		}
	})
	c.OnDisconnected(func(sleeping bool, duration uint16, gwid uint8) {
		if !sleeping && gwid == 7 {
			disconnected++
		}
	})

	clk.Advance(61 * time.Second)
	c.Manage()
	ping := link.lastSent(PINGREQ)
	if ping == nil {
		t.Fatal("no keep-alive PINGREQ")
	}
	pkt, _ := packet.Decode(ping.frame, 0)
	if pkt.(*packet.PINGREQ).ClientID != "sensor-1" {
		t.Fatal("PINGREQ must carry the client id")
	}

	link.inject(testGWAddr, encodeFrame(t, &packet.PINGRESP{}))
	c.Manage()

	// Now total silence for the whole grace window.
	clk.Advance(301 * time.Second)
	c.Manage()
	if gwLost != 1 || disconnected != 1 {
		t.Fatalf("gwLost=%d disconnected=%d, want 1/1", gwLost, disconnected)
	}
	if !c.IsDisconnected() {
		t.Fatal("client should be disconnected after lost contact")
	}
}

// Gateway filter: frames from strangers are ignored, ADVERTISE excepted.
func TestGatewayAddressFilter(t *testing.T) {
	c, link, _ := newTestClient(t)
	connectTestClient(t, c, link)

	messages := 0
	c.OnMessage(func(success bool, rc uint8, topicName string, payload []byte, gwid uint8) {
		messages++
	})
	mid, _ := c.RegisterTopic("sensors/t")
	link.inject(testGWAddr, encodeFrame(t, &packet.REGACK{TopicID: 1, MessageID: mid, ReturnCode: packet.Accepted}))
	c.Manage()

	// PUBLISH from a stranger address must be dropped.
	stranger := byte(0x66)
	link.inject(stranger, encodeFrame(t, &packet.PUBLISH{Flags: packet.FlagQoS0, TopicID: 1, Data: []byte("x")}))
	c.Manage()
	if messages != 0 {
		t.Fatal("publish from a stranger delivered")
	}
	// The same frame from the gateway is delivered.
	link.inject(testGWAddr, encodeFrame(t, &packet.PUBLISH{Flags: packet.FlagQoS0, TopicID: 1, Data: []byte("x")}))
	c.Manage()
	if messages != 1 {
		t.Fatal("publish from the gateway not delivered")
	}

	// ADVERTISE from any address updates the table.
	link.inject(stranger, encodeFrame(t, &packet.ADVERTISE{GatewayID: 9, Duration: 600}))
	c.Manage()
	if !c.IsGatewayValid(9) {
		t.Fatal("ADVERTISE from a new address ignored")
	}
}

// Inbound QoS 1 and 2 publishes are delivered and acknowledged.
func TestInboundPublishQoS1AndQoS2(t *testing.T) {
	c, link, _ := newTestClient(t)
	connectTestClient(t, c, link)

	mid, _ := c.RegisterTopic("sensors/t")
	link.inject(testGWAddr, encodeFrame(t, &packet.REGACK{TopicID: 1, MessageID: mid, ReturnCode: packet.Accepted}))
	c.Manage()

	var got []string
	c.OnMessage(func(success bool, rc uint8, topicName string, payload []byte, gwid uint8) {
		got = append(got, topicName+"="+string(payload))
	})

	link.inject(testGWAddr, encodeFrame(t, &packet.PUBLISH{Flags: packet.FlagQoS1, TopicID: 1, MessageID: 9, Data: []byte("21")}))
	c.Manage()
	ack := link.lastSent(PUBACK)
	if ack == nil {
		t.Fatal("QoS 1 publish not acknowledged")
	}
	pkt, _ := packet.Decode(ack.frame, 0)
	if p := pkt.(*packet.PUBACK); p.MessageID != 9 || p.ReturnCode != packet.Accepted {
		t.Fatalf("PUBACK fields: %+v", p)
	}

	link.inject(testGWAddr, encodeFrame(t, &packet.PUBLISH{Flags: packet.FlagQoS2, TopicID: 1, MessageID: 10, Data: []byte("22")}))
	c.Manage()
	if link.lastSent(PUBREC) == nil {
		t.Fatal("QoS 2 publish not answered with PUBREC")
	}
	link.inject(testGWAddr, encodeFrame(t, &packet.PUBREL{MessageID: 10}))
	c.Manage()
	if link.lastSent(PUBCOMP) == nil {
		t.Fatal("PUBREL not answered with PUBCOMP")
	}
	if len(got) != 2 || got[0] != "sensors/t=21" || got[1] != "sensors/t=22" {
		t.Fatalf("delivered messages: %v", got)
	}

	// An unknown topic id draws an InvalidTopic PUBACK.
	link.reset()
	link.inject(testGWAddr, encodeFrame(t, &packet.PUBLISH{Flags: packet.FlagQoS1, TopicID: 99, MessageID: 11, Data: []byte("x")}))
	c.Manage()
	nak := link.lastSent(PUBACK)
	if nak == nil {
		t.Fatal("unknown topic publish not answered")
	}
	pkt, _ = packet.Decode(nak.frame, 0)
	if pkt.(*packet.PUBACK).ReturnCode != packet.InvalidTopic {
		t.Fatal("expected InvalidTopic return code")
	}
}

// Wildcard SUBACK binds no id; the unsolicited REGISTER that follows does.
func TestWildcardSubscribeThenRegister(t *testing.T) {
	c, link, _ := newTestClient(t)
	connectTestClient(t, c, link)

	subscribed := 0
	c.OnSubscribed(func(success bool, rc uint8, topicID, messageID uint16, gwid uint8) {
		if success && topicID == 0 {
			subscribed++
		}
	})
	mid, err := c.Subscribe(1, "room/+/temp", false)
	if err != nil {
		t.Fatal(err)
	}
	link.inject(testGWAddr, encodeFrame(t, &packet.SUBACK{Flags: packet.FlagQoS1, TopicID: 0, MessageID: mid, ReturnCode: packet.Accepted}))
	c.Manage()
	if subscribed != 1 {
		t.Fatal("wildcard SUBACK not accepted")
	}
	w := c.conn.Topics.GetTopicByName("room/+/temp")
	if w == nil || !w.IsSubscribed() || w.ID != 0 {
		t.Fatal("wildcard subscription state wrong")
	}

	// The gateway pushes the concrete binding before publishing.
	link.inject(testGWAddr, encodeFrame(t, &packet.REGISTER{TopicID: 3, MessageID: 12, TopicName: "room/1/temp"}))
	c.Manage()
	regack := link.lastSent(REGACK)
	if regack == nil {
		t.Fatal("pushed REGISTER not acknowledged")
	}
	var got string
	c.OnMessage(func(success bool, rc uint8, topicName string, payload []byte, gwid uint8) {
		got = topicName + "=" + string(payload)
	})
	link.inject(testGWAddr, encodeFrame(t, &packet.PUBLISH{Flags: packet.FlagQoS1, TopicID: 3, MessageID: 13, Data: []byte("21")}))
	c.Manage()
	if got != "room/1/temp=21" {
		t.Fatalf("delivered = %q", got)
	}
}

// Sleep: DISCONNECT with a duration parks the connection asleep.
func TestDisconnectSleep(t *testing.T) {
	c, link, _ := newTestClient(t)
	connectTestClient(t, c, link)

	var sleeping bool
	var duration uint16
	c.OnDisconnected(func(s bool, d uint16, gwid uint8) { sleeping, duration = s, d })

	if err := c.Disconnect(300); err != nil {
		t.Fatal(err)
	}
	dis := link.lastSent(DISCONNECT)
	if dis == nil {
		t.Fatal("DISCONNECT not sent")
	}
	pkt, _ := packet.Decode(dis.frame, 0)
	if d := pkt.(*packet.DISCONNECT); !d.HasDuration || d.Duration != 300 {
		t.Fatalf("DISCONNECT fields: %+v", d)
	}
	link.inject(testGWAddr, encodeFrame(t, &packet.DISCONNECT{}))
	c.Manage()
	if !sleeping || duration != 300 {
		t.Fatalf("sleeping=%v duration=%d", sleeping, duration)
	}
	if !c.conn.IsAsleep() {
		t.Fatal("connection should be asleep")
	}
	if err := c.Disconnect(0); err != ErrNotDisconnected {
		t.Fatalf("second disconnect: err=%v", err)
	}
}

func TestPublishNoQoS(t *testing.T) {
	c, link, _ := newTestClient(t)
	if err := c.AddGateway([]byte{testGWAddr}, 7, 0, true); err != nil {
		t.Fatal(err)
	}
	if err := c.PublishNoQoSShort(7, "TP", []byte("x"), false); err != nil {
		t.Fatal(err)
	}
	pub := link.lastSent(PUBLISH)
	if pub == nil {
		t.Fatal("QoS -1 publish not sent")
	}
	pkt, _ := packet.Decode(pub.frame, 0)
	p := pkt.(*packet.PUBLISH)
	if !p.NoQoS() || p.TopicType() != packet.TopicShortName || p.ShortName() != "TP" {
		t.Fatalf("PUBLISH fields: %+v", p)
	}
	// Normal topic ids cannot travel without a session.
	if err := c.PublishNoQoS(7, 1, packet.TopicIDNormal, []byte("x"), false); err != ErrUnknownTopic {
		t.Fatalf("normal topic QoS -1: err=%v", err)
	}
	if err := c.PublishNoQoSShort(9, "TP", []byte("x"), false); err != ErrUnknownGateway {
		t.Fatalf("unknown gateway: err=%v", err)
	}
}

func TestAPIGuards(t *testing.T) {
	c, _, _ := newTestClient(t)
	if _, err := c.RegisterTopic("sensors/t"); err != ErrNotConnected {
		t.Fatalf("register while disconnected: err=%v", err)
	}
	if _, err := c.Publish(1, 1, packet.TopicIDNormal, []byte("x"), false); err != ErrNotConnected {
		t.Fatalf("publish while disconnected: err=%v", err)
	}
	if err := c.Connect(9, false, true, 60); err != ErrUnknownGateway {
		t.Fatalf("connect to unknown gateway: err=%v", err)
	}
	if err := c.Disconnect(0); err != ErrNotDisconnected {
		t.Fatalf("disconnect while down: err=%v", err)
	}

	link := c.link.(*memLink)
	connectTestClient(t, c, link)
	if _, err := c.Publish(3, 1, packet.TopicIDNormal, []byte("x"), false); err != ErrInvalidQoS {
		t.Fatalf("qos 3 publish: err=%v", err)
	}
	big := make([]byte, 64)
	if _, err := c.Publish(1, 1, packet.TopicIDNormal, big, false); err != ErrPayloadTooLarge {
		t.Fatalf("oversized publish: err=%v", err)
	}
}

// Connect retry exhaustion returns the machine to Disconnected.
func TestConnectRetryExhaustion(t *testing.T) {
	c, link, clk := newTestClient(t)
	if err := c.AddGateway([]byte{testGWAddr}, 7, 0, true); err != nil {
		t.Fatal(err)
	}
	var results []bool
	c.OnConnected(func(success bool, rc uint8, gwid uint8) { results = append(results, success) })

	if err := c.Connect(7, false, true, 60); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		clk.Advance(time.Second)
		c.Manage()
	}
	if len(results) != 1 || results[0] {
		t.Fatalf("connected callbacks = %v, want one failure", results)
	}
	if !c.IsDisconnected() {
		t.Fatal("client should fall back to disconnected")
	}
	if got := link.countSent(CONNECT); got != 4 {
		t.Fatalf("CONNECT transmissions = %d, want 4", got)
	}
}
