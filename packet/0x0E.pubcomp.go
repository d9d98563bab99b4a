package packet

import (
	"bytes"
	"io"
)

// PUBCOMP completes the QoS 2 exchange (part 3).
//
// MQTT-SN 1.2: section 5.4.14
// Variable part: MsgId (2)
type PUBCOMP struct {
	MessageID uint16
}

func (pkt *PUBCOMP) Kind() byte { return 0x0E }

func (pkt *PUBCOMP) Pack(w io.Writer) error {
	return writeFrame(w, pkt.Kind(), i2b(pkt.MessageID))
}

func (pkt *PUBCOMP) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 2 {
		return ErrMalformedPacket
	}
	pkt.MessageID = b2i(buf.Next(2))
	return nil
}
