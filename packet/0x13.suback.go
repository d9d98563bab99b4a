package packet

import (
	"bytes"
	"io"
)

// SUBACK acknowledges a SUBSCRIBE. TopicID is 0 for a wildcard
// subscription: the gateway registers concrete topics later as messages
// arrive. Flags carry the granted QoS.
//
// MQTT-SN 1.2: section 5.4.16
// Variable part: Flags (1), TopicId (2), MsgId (2), ReturnCode (1)
//
// The frame is fixed at 8 octets; any other length is rejected.
type SUBACK struct {
	Flags      byte
	TopicID    uint16
	MessageID  uint16
	ReturnCode byte
}

func (pkt *SUBACK) Kind() byte { return 0x13 }

func (pkt *SUBACK) QoS() uint8 { return QoSLevel(pkt.Flags) }

func (pkt *SUBACK) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.WriteByte(pkt.Flags)
	buf.Write(i2b(pkt.TopicID))
	buf.Write(i2b(pkt.MessageID))
	buf.WriteByte(pkt.ReturnCode)
	return writeFrame(w, pkt.Kind(), buf.Bytes())
}

func (pkt *SUBACK) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 6 {
		return ErrMalformedPacket
	}
	pkt.Flags, _ = buf.ReadByte()
	pkt.TopicID = b2i(buf.Next(2))
	pkt.MessageID = b2i(buf.Next(2))
	pkt.ReturnCode, _ = buf.ReadByte()
	return nil
}
