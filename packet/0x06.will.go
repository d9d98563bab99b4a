package packet

import (
	"bytes"
	"io"
)

// The will handshake runs inside connection setup when CONNECT carried the
// Will flag: the gateway asks for the topic, then for the message, and
// only then sends CONNACK.
//
// MQTT-SN 1.2: sections 5.4.6 - 5.4.9

// WILLTOPICREQ has no variable part.
type WILLTOPICREQ struct{}

func (pkt *WILLTOPICREQ) Kind() byte { return 0x06 }

func (pkt *WILLTOPICREQ) Pack(w io.Writer) error {
	return writeFrame(w, pkt.Kind(), nil)
}

func (pkt *WILLTOPICREQ) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 0 {
		return ErrMalformedPacket
	}
	return nil
}

// WILLTOPIC carries the will topic and its delivery flags. An empty
// WILLTOPIC (no variable part at all) deletes the will.
//
// Variable part: Flags (1), WillTopic (n)
type WILLTOPIC struct {
	Flags     byte
	WillTopic string
	Empty     bool // true encodes the will-delete form
}

func (pkt *WILLTOPIC) Kind() byte { return 0x07 }

func (pkt *WILLTOPIC) QoS() uint8 { return QoSLevel(pkt.Flags) }
func (pkt *WILLTOPIC) Retain() bool { return pkt.Flags&FlagRetain != 0 }

func (pkt *WILLTOPIC) Pack(w io.Writer) error {
	if pkt.Empty {
		return writeFrame(w, pkt.Kind(), nil)
	}
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.WriteByte(pkt.Flags)
	buf.WriteString(pkt.WillTopic)
	return writeFrame(w, pkt.Kind(), buf.Bytes())
}

func (pkt *WILLTOPIC) Unpack(buf *bytes.Buffer) error {
	if buf.Len() == 0 {
		pkt.Empty = true
		return nil
	}
	pkt.Flags, _ = buf.ReadByte()
	pkt.WillTopic = buf.String()
	return nil
}

// WILLMSGREQ has no variable part.
type WILLMSGREQ struct{}

func (pkt *WILLMSGREQ) Kind() byte { return 0x08 }

func (pkt *WILLMSGREQ) Pack(w io.Writer) error {
	return writeFrame(w, pkt.Kind(), nil)
}

func (pkt *WILLMSGREQ) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 0 {
		return ErrMalformedPacket
	}
	return nil
}

// WILLMSG carries the will message body.
//
// Variable part: WillMsg (n)
type WILLMSG struct {
	WillMsg []byte
}

func (pkt *WILLMSG) Kind() byte { return 0x09 }

func (pkt *WILLMSG) Pack(w io.Writer) error {
	return writeFrame(w, pkt.Kind(), pkt.WillMsg)
}

func (pkt *WILLMSG) Unpack(buf *bytes.Buffer) error {
	if buf.Len() > 0 {
		pkt.WillMsg = bytes.Clone(buf.Bytes())
	}
	return nil
}
