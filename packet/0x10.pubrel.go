package packet

import (
	"bytes"
	"io"
)

// PUBREL releases a QoS 2 PUBLISH held by the receiver (part 2).
//
// MQTT-SN 1.2: section 5.4.14
// Variable part: MsgId (2)
type PUBREL struct {
	MessageID uint16
}

func (pkt *PUBREL) Kind() byte { return 0x10 }

func (pkt *PUBREL) Pack(w io.Writer) error {
	return writeFrame(w, pkt.Kind(), i2b(pkt.MessageID))
}

func (pkt *PUBREL) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 2 {
		return ErrMalformedPacket
	}
	pkt.MessageID = b2i(buf.Next(2))
	return nil
}
