package mqttsn

import (
	"testing"
	"time"

	"github.com/golang-io/mqttsn/packet"
)

// TestEndToEnd wires a client and a gateway back to back over in-memory
// links and walks the whole protocol: discovery, connect, register,
// publish both ways with a wildcard subscription in between.
func TestEndToEnd(t *testing.T) {
	clk := newFakeClock()

	clientLink := newMemLink(0x0A)
	serverLink := newMemLink(0x01)
	clientLink.deliver = func(dest, frame []byte) {
		if dest[0] == 0x01 || dest[0] == 0xFF {
			serverLink.inject(0x0A, frame)
		}
	}
	serverLink.deliver = func(dest, frame []byte) {
		if dest[0] == 0x0A || dest[0] == 0xFF {
			clientLink.inject(0x01, frame)
		}
	}

	server := NewServer(serverLink, GatewayID(7), RetryAttributes(time.Second, 3))
	server.now = clk.Now
	bridge := &fakeBridge{events: server, auto: true}
	server.SetBridge(bridge)
	server.OnConnect(0)

	client := NewClient(clientLink, ClientID("sensor-1"), RetryAttributes(time.Second, 3))
	client.now = clk.Now

	step := func(n int) {
		for i := 0; i < n; i++ {
			server.Manage()
			client.Manage()
		}
	}

	gwinfos, connects, publishes := 0, 0, 0
	var messages []string
	client.OnGatewayInfo(func(available bool, gwid uint8) {
		if available && gwid == 7 {
			gwinfos++
		}
	})
	client.OnConnected(func(success bool, rc uint8, gwid uint8) {
		if success && gwid == 7 {
			connects++
		}
	})
	client.OnPublished(func(success bool, rc uint8, topicID, messageID uint16, gwid uint8) {
		if success {
			publishes++
		}
	})
	client.OnMessage(func(success bool, rc uint8, topicName string, payload []byte, gwid uint8) {
		messages = append(messages, topicName+"="+string(payload))
	})

	// Discovery.
	if err := client.SearchGW(1); err != nil {
		t.Fatal(err)
	}
	step(2)
	if gwinfos != 1 {
		t.Fatalf("gwinfo callbacks = %d, want 1", gwinfos)
	}

	// Clean connect.
	if err := client.Connect(7, false, true, 60); err != nil {
		t.Fatal(err)
	}
	step(2)
	if connects != 1 || !client.IsConnected() {
		t.Fatal("client failed to connect through the gateway")
	}

	// Register and publish at QoS 1.
	if _, err := client.RegisterTopic("sensors/t"); err != nil {
		t.Fatal(err)
	}
	step(2)
	tp := client.conn.Topics.GetTopicByName("sensors/t")
	if tp == nil || !tp.IsComplete() || tp.ID == 0 {
		t.Fatalf("topic not registered: %+v", tp)
	}
	if _, err := client.Publish(1, tp.ID, packet.TopicIDNormal, []byte("23.5"), false); err != nil {
		t.Fatal(err)
	}
	step(3)
	if publishes != 1 {
		t.Fatalf("published callbacks = %d, want 1", publishes)
	}
	if len(bridge.pubs) != 1 || bridge.pubs[0].topic != "sensors/t" {
		t.Fatalf("upstream publishes: %+v", bridge.pubs)
	}

	// Publish at QoS 2 end to end.
	if _, err := client.Publish(2, tp.ID, packet.TopicIDNormal, []byte("42"), false); err != nil {
		t.Fatal(err)
	}
	step(4)
	if publishes != 2 {
		t.Fatalf("published callbacks = %d, want 2", publishes)
	}

	// Wildcard subscription, then a broker message on a concrete topic:
	// the gateway registers the binding before publishing.
	if _, err := client.Subscribe(1, "room/+/temp", false); err != nil {
		t.Fatal(err)
	}
	step(3)
	server.OnMessage("room/1/temp", []byte("21"), 1, false)
	step(4)
	if len(messages) != 1 || messages[0] != "room/1/temp=21" {
		t.Fatalf("delivered messages: %v", messages)
	}
	if client.conn.Topics.GetTopicByName("room/1/temp") == nil {
		t.Fatal("concrete topic never pushed to the client")
	}

	// Clean shutdown.
	if err := client.Disconnect(0); err != nil {
		t.Fatal(err)
	}
	step(2)
	if !client.IsDisconnected() {
		t.Fatal("client failed to disconnect")
	}
}
