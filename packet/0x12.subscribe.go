package packet

import (
	"bytes"
	"io"
)

// SUBSCRIBE requests a subscription. Depending on the topic-id type flag
// the variable part ends with a topic name (normal, may hold wildcards) or
// a 2-octet topic id (predefined or short).
//
// MQTT-SN 1.2: section 5.4.15
// Variable part: Flags (1), MsgId (2), TopicName (n) | TopicId (2)
type SUBSCRIBE struct {
	Flags     byte
	MessageID uint16
	TopicName string
	TopicID   uint16
}

func (pkt *SUBSCRIBE) Kind() byte { return 0x12 }

func (pkt *SUBSCRIBE) Dup() bool { return pkt.Flags&FlagDup != 0 }
func (pkt *SUBSCRIBE) QoS() uint8 { return QoSLevel(pkt.Flags) }
func (pkt *SUBSCRIBE) TopicType() byte { return pkt.Flags & topicIDMask }

func (pkt *SUBSCRIBE) Pack(w io.Writer) error {
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

func (pkt *SUBSCRIBE) Unpack(buf *bytes.Buffer) error {
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
