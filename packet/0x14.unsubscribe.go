package packet

import (
	"bytes"
	"io"
)

// UNSUBSCRIBE removes a subscription. Same topic addressing rules as
// SUBSCRIBE.
//
// MQTT-SN 1.2: section 5.4.17
// Variable part: Flags (1), MsgId (2), TopicName (n) | TopicId (2)
type UNSUBSCRIBE struct {
	Flags     byte
	MessageID uint16
	TopicName string
	TopicID   uint16
}

func (pkt *UNSUBSCRIBE) Kind() byte { return 0x14 }

func (pkt *UNSUBSCRIBE) TopicType() byte { return pkt.Flags & topicIDMask }

func (pkt *UNSUBSCRIBE) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.WriteByte(pkt.Flags)
	buf.Write(i2b(pkt.MessageID))
	if pkt.TopicType() == TopicIDNormal {
		buf.WriteString(pkt.TopicName)
	} else {
		buf.Write(i2b(pkt.TopicID))
	}
	return writeFrame(w, pkt.Kind(), buf.Bytes())
}

func (pkt *UNSUBSCRIBE) Unpack(buf *bytes.Buffer) error {
	if buf.Len() < 4 {
		return ErrMalformedPacket
	}
	pkt.Flags, _ = buf.ReadByte()
	pkt.MessageID = b2i(buf.Next(2))
	if pkt.TopicType() == TopicIDNormal {
		pkt.TopicName = buf.String()
		return nil
	}
	if buf.Len() != 2 {
		return ErrMalformedPacket
	}
	pkt.TopicID = b2i(buf.Next(2))
	return nil
}
