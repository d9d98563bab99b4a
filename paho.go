package mqttsn

import (
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// PahoBridge is the production BrokerBridge: an eclipse/paho MQTT client
// against the upstream broker. Token completion is watched on small
// goroutines and translated into BrokerEvents calls; mids are allocated
// locally so the engine never sees paho types.
type PahoBridge struct {
	client mqtt.Client
	events BrokerEvents

	mu      sync.Mutex
	lastMID int
}

// NewPahoBridge builds a bridge against brokerURL (e.g.
// "tcp://127.0.0.1:1883") delivering completions to events. Connect must
// be called before use.
func NewPahoBridge(brokerURL string, events BrokerEvents) *PahoBridge {
	b := &PahoBridge{events: events}
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("mqttsn-gw-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetKeepAlive(60 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Printf("bridge connected: broker=%s", brokerURL)
			b.events.OnConnect(0)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("bridge connection lost: broker=%s, err=%v", brokerURL, err)
			b.events.OnDisconnect(1)
		})
	b.client = mqtt.NewClient(opts)
	return b
}

// Connect dials the broker and blocks until the session is up or refused.
func (b *PahoBridge) Connect() error {
	token := b.client.Connect()
	token.Wait()
	return token.Error()
}

// Close drops the upstream session.
func (b *PahoBridge) Close() {
	b.client.Disconnect(250)
}

func (b *PahoBridge) nextMID() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastMID++
	return b.lastMID
}

func (b *PahoBridge) Publish(topic string, payload []byte, qos uint8, retain bool) (int, error) {
	mid := b.nextMID()
	token := b.client.Publish(topic, qos, retain, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("bridge publish failed: topic=%s, err=%v", topic, err)
			return
		}
		b.events.OnPublishDone(mid)
	}()
	return mid, nil
}

func (b *PahoBridge) Subscribe(topic string, qos uint8) (int, error) {
	mid := b.nextMID()
	token := b.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		b.events.OnMessage(msg.Topic(), msg.Payload(), msg.Qos(), msg.Retained())
	})
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("bridge subscribe failed: topic=%s, err=%v", topic, err)
			return
		}
		b.events.OnSubscribeDone(mid, qos)
	}()
	return mid, nil
}

func (b *PahoBridge) Unsubscribe(topic string) (int, error) {
	mid := b.nextMID()
	token := b.client.Unsubscribe(topic)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("bridge unsubscribe failed: topic=%s, err=%v", topic, err)
		}
	}()
	return mid, nil
}
