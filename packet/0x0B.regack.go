package packet

import (
	"bytes"
	"io"
)

// REGACK acknowledges a REGISTER, echoing the message id and carrying the
// (possibly just allocated) topic id.
//
// MQTT-SN 1.2: section 5.4.11
// Variable part: TopicId (2), MsgId (2), ReturnCode (1)
type REGACK struct {
	TopicID    uint16
	MessageID  uint16
	ReturnCode byte
}

func (pkt *REGACK) Kind() byte { return 0x0B }

func (pkt *REGACK) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(i2b(pkt.TopicID))
	buf.Write(i2b(pkt.MessageID))
	buf.WriteByte(pkt.ReturnCode)
	return writeFrame(w, pkt.Kind(), buf.Bytes())
}

func (pkt *REGACK) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 5 {
		return ErrMalformedPacket
	}
	pkt.TopicID = b2i(buf.Next(2))
	pkt.MessageID = b2i(buf.Next(2))
	pkt.ReturnCode, _ = buf.ReadByte()
	return nil
}
