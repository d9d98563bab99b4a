package packet

import (
	"bytes"
	"io"
)

// Will update messages let a connected client replace its stored will
// without reconnecting.
//
// MQTT-SN 1.2: sections 5.4.22 - 5.4.25

// WILLTOPICUPD replaces the will topic; an empty variable part deletes the
// will entirely.
type WILLTOPICUPD struct {
	Flags     byte
	WillTopic string
	Empty     bool
}

func (pkt *WILLTOPICUPD) Kind() byte { return 0x1A }

func (pkt *WILLTOPICUPD) QoS() uint8 { return QoSLevel(pkt.Flags) }
func (pkt *WILLTOPICUPD) Retain() bool { return pkt.Flags&FlagRetain != 0 }

func (pkt *WILLTOPICUPD) Pack(w io.Writer) error {
	if pkt.Empty {
		return writeFrame(w, pkt.Kind(), nil)
	}
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.WriteByte(pkt.Flags)
	buf.WriteString(pkt.WillTopic)
	return writeFrame(w, pkt.Kind(), buf.Bytes())
}

func (pkt *WILLTOPICUPD) Unpack(buf *bytes.Buffer) error {
	if buf.Len() == 0 {
		pkt.Empty = true
		return nil
	}
	pkt.Flags, _ = buf.ReadByte()
	pkt.WillTopic = buf.String()
	return nil
}

// WILLTOPICRESP acknowledges a WILLTOPICUPD.
type WILLTOPICRESP struct {
	ReturnCode byte
}

func (pkt *WILLTOPICRESP) Kind() byte { return 0x1B }

func (pkt *WILLTOPICRESP) Pack(w io.Writer) error {
	return writeFrame(w, pkt.Kind(), []byte{pkt.ReturnCode})
}

func (pkt *WILLTOPICRESP) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 1 {
		return ErrMalformedPacket
	}
	pkt.ReturnCode, _ = buf.ReadByte()
	return nil
}

// WILLMSGUPD replaces the will message body.
type WILLMSGUPD struct {
	WillMsg []byte
}

func (pkt *WILLMSGUPD) Kind() byte { return 0x1C }

func (pkt *WILLMSGUPD) Pack(w io.Writer) error {
	return writeFrame(w, pkt.Kind(), pkt.WillMsg)
}

func (pkt *WILLMSGUPD) Unpack(buf *bytes.Buffer) error {
	if buf.Len() > 0 {
		pkt.WillMsg = bytes.Clone(buf.Bytes())
	}
	return nil
}

// WILLMSGRESP acknowledges a WILLMSGUPD.
type WILLMSGRESP struct {
	ReturnCode byte
}

func (pkt *WILLMSGRESP) Kind() byte { return 0x1D }

func (pkt *WILLMSGRESP) Pack(w io.Writer) error {
	return writeFrame(w, pkt.Kind(), []byte{pkt.ReturnCode})
}

func (pkt *WILLMSGRESP) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 1 {
		return ErrMalformedPacket
	}
	pkt.ReturnCode, _ = buf.ReadByte()
	return nil
}
