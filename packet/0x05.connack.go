package packet

import (
	"bytes"
	"io"
)

// CONNACK acknowledges a CONNECT (possibly after the will handshake).
//
// MQTT-SN 1.2: section 5.4.5
// Variable part: ReturnCode (1 octet)
type CONNACK struct {
	ReturnCode byte
}

func (pkt *CONNACK) Kind() byte { return 0x05 }

func (pkt *CONNACK) Pack(w io.Writer) error {
	return writeFrame(w, pkt.Kind(), []byte{pkt.ReturnCode})
}

func (pkt *CONNACK) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 1 {
		return ErrMalformedPacket
	}
	pkt.ReturnCode, _ = buf.ReadByte()
	return nil
}
