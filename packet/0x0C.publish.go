package packet

import (
	"bytes"
	"io"
)

// PUBLISH delivers application data in either direction.
//
// MQTT-SN 1.2: section 5.4.12
// Variable part: Flags (1), TopicId (2), MsgId (2), Data (n)
//
// Flags carry DUP, the QoS level (including -1 for the connectionless
// variant), Retain and the topic-id type. For a short topic the TopicId
// field holds the two name octets packed big-endian. MsgId is 0 for QoS 0
// and -1 messages.
type PUBLISH struct {
	Flags     byte
	TopicID   uint16
	MessageID uint16
	Data      []byte
}

func (pkt *PUBLISH) Kind() byte { return 0x0C }

func (pkt *PUBLISH) Dup() bool { return pkt.Flags&FlagDup != 0 }
func (pkt *PUBLISH) Retain() bool { return pkt.Flags&FlagRetain != 0 }
func (pkt *PUBLISH) QoS() uint8 { return QoSLevel(pkt.Flags) }
func (pkt *PUBLISH) NoQoS() bool { return pkt.Flags&FlagQoSN1 == FlagQoSN1 }
func (pkt *PUBLISH) TopicType() byte { return pkt.Flags & topicIDMask }

// ShortName unpacks a short-topic TopicId back into its two name octets.
func (pkt *PUBLISH) ShortName() string {
	return string([]byte{byte(pkt.TopicID >> 8), byte(pkt.TopicID)})
}

func (pkt *PUBLISH) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.WriteByte(pkt.Flags)
	buf.Write(i2b(pkt.TopicID))
	buf.Write(i2b(pkt.MessageID))
	buf.Write(pkt.Data)
	return writeFrame(w, pkt.Kind(), buf.Bytes())
}

func (pkt *PUBLISH) Unpack(buf *bytes.Buffer) error {
	if buf.Len() < 5 {
		return ErrMalformedPacket
	}
	pkt.Flags, _ = buf.ReadByte()
	pkt.TopicID = b2i(buf.Next(2))
	pkt.MessageID = b2i(buf.Next(2))
	if buf.Len() > 0 {
		pkt.Data = bytes.Clone(buf.Bytes())
	}
	return nil
}
