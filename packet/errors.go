package packet

import "errors"

var (
	// ErrMalformedPacket reports a frame whose length octet or variable
	// part does not satisfy the message's fixed layout. Malformed frames
	// are dropped by the engine without a reply.
	ErrMalformedPacket = errors.New("mqttsn: malformed packet")

	// ErrUnknownPacket reports a MsgType outside the MQTT-SN 1.2 set.
	ErrUnknownPacket = errors.New("mqttsn: unknown packet kind")

	// ErrPacketTooLarge reports a frame that cannot fit the link payload.
	ErrPacketTooLarge = errors.New("mqttsn: packet too large")
)
