package packet

import (
	"bytes"
	"io"
)

// UNSUBACK acknowledges an UNSUBSCRIBE.
//
// MQTT-SN 1.2: section 5.4.18
// Variable part: MsgId (2)
type UNSUBACK struct {
	MessageID uint16
}

func (pkt *UNSUBACK) Kind() byte { return 0x15 }

func (pkt *UNSUBACK) Pack(w io.Writer) error {
	return writeFrame(w, pkt.Kind(), i2b(pkt.MessageID))
}

func (pkt *UNSUBACK) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 2 {
		return ErrMalformedPacket
	}
	pkt.MessageID = b2i(buf.Next(2))
	return nil
}
