package packet

import (
	"bytes"
	"io"
)

// ADVERTISE is broadcast periodically by a gateway to announce its
// presence. Duration tells listeners how many seconds will pass until the
// next broadcast.
//
// MQTT-SN 1.2: section 5.4.1
// Variable part: GwId (1 octet), Duration (2 octets)
type ADVERTISE struct {
	GatewayID byte
	Duration  uint16
}

func (pkt *ADVERTISE) Kind() byte { return 0x00 }

func (pkt *ADVERTISE) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.WriteByte(pkt.GatewayID)
	buf.Write(i2b(pkt.Duration))
	return writeFrame(w, pkt.Kind(), buf.Bytes())
}

func (pkt *ADVERTISE) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 3 {
		return ErrMalformedPacket
	}
	pkt.GatewayID, _ = buf.ReadByte()
	pkt.Duration = b2i(buf.Next(2))
	return nil
}
