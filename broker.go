package mqttsn

// A BrokerBridge is the gateway's upstream capability: an MQTT client
// against the real broker. Every operation returns an opaque non-zero mid.
// Connect, publish and subscribe completions arrive later through the
// BrokerEvents callbacks; there is no callback for unsubscribe completion.
type BrokerBridge interface {
	// Publish forwards a message upstream.
	Publish(topic string, payload []byte, qos uint8, retain bool) (int, error)

	// Subscribe registers an upstream subscription.
	Subscribe(topic string, qos uint8) (int, error)

	// Unsubscribe removes an upstream subscription.
	Unsubscribe(topic string) (int, error)
}

// BrokerEvents is implemented by the gateway engine and driven by the
// bridge. Implementations must tolerate calls from any goroutine: the
// Server defers the real work to its Manage loop.
type BrokerEvents interface {
	// OnConnect reports the upstream session coming up (rc 0) or being
	// refused.
	OnConnect(rc int)

	// OnDisconnect reports the upstream session going down.
	OnDisconnect(rc int)

	// OnPublishDone reports completion of a Publish by its mid.
	OnPublishDone(mid int)

	// OnSubscribeDone reports completion of a Subscribe with the granted
	// QoS.
	OnSubscribeDone(mid int, grantedQoS uint8)

	// OnMessage delivers a message the broker published to us.
	OnMessage(topic string, payload []byte, qos uint8, retain bool)
}
