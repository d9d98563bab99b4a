package packet

import (
	"bytes"
	"io"
)

// PUBACK acknowledges a QoS 1 PUBLISH. It is also used to report an error
// for any PUBLISH (for example an unknown topic id, section 6.5).
//
// MQTT-SN 1.2: section 5.4.13
// Variable part: TopicId (2), MsgId (2), ReturnCode (1)
type PUBACK struct {
	TopicID    uint16
	MessageID  uint16
	ReturnCode byte
}

func (pkt *PUBACK) Kind() byte { return 0x0D }

func (pkt *PUBACK) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(i2b(pkt.TopicID))
	buf.Write(i2b(pkt.MessageID))
	buf.WriteByte(pkt.ReturnCode)
	return writeFrame(w, pkt.Kind(), buf.Bytes())
}

func (pkt *PUBACK) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 5 {
		return ErrMalformedPacket
	}
	pkt.TopicID = b2i(buf.Next(2))
	pkt.MessageID = b2i(buf.Next(2))
	pkt.ReturnCode, _ = buf.ReadByte()
	return nil
}
