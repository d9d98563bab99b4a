package packet

import (
	"bytes"
	"io"
)

// REGISTER binds a topic name to a 16-bit topic id. A client sends it with
// TopicID 0 to request an id; a gateway sends it with the id it allocated
// to push a binding at the client.
//
// MQTT-SN 1.2: section 5.4.10
// Variable part: TopicId (2), MsgId (2), TopicName (n)
type REGISTER struct {
	TopicID   uint16
	MessageID uint16
	TopicName string
}

func (pkt *REGISTER) Kind() byte { return 0x0A }

func (pkt *REGISTER) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(i2b(pkt.TopicID))
	buf.Write(i2b(pkt.MessageID))
	buf.WriteString(pkt.TopicName)
	return writeFrame(w, pkt.Kind(), buf.Bytes())
}

func (pkt *REGISTER) Unpack(buf *bytes.Buffer) error {
	if buf.Len() < 5 {
		return ErrMalformedPacket
	}
	pkt.TopicID = b2i(buf.Next(2))
	pkt.MessageID = b2i(buf.Next(2))
	pkt.TopicName = buf.String()
	return nil
}
