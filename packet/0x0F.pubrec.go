package packet

import (
	"bytes"
	"io"
)

// PUBREC acknowledges receipt of a QoS 2 PUBLISH (part 1).
//
// MQTT-SN 1.2: section 5.4.14
// Variable part: MsgId (2)
type PUBREC struct {
	MessageID uint16
}

func (pkt *PUBREC) Kind() byte { return 0x0F }

func (pkt *PUBREC) Pack(w io.Writer) error {
	return writeFrame(w, pkt.Kind(), i2b(pkt.MessageID))
}

func (pkt *PUBREC) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 2 {
		return ErrMalformedPacket
	}
	pkt.MessageID = b2i(buf.Next(2))
	return nil
}
