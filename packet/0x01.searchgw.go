package packet

import (
	"bytes"
	"io"
)

// SEARCHGW is broadcast by a client looking for a gateway. Radius is the
// broadcast radius in hops; on a single-hop radio link it is 1.
//
// MQTT-SN 1.2: section 5.4.2
// Variable part: Radius (1 octet)
type SEARCHGW struct {
	Radius byte
}

func (pkt *SEARCHGW) Kind() byte { return 0x01 }

func (pkt *SEARCHGW) Pack(w io.Writer) error {
	return writeFrame(w, pkt.Kind(), []byte{pkt.Radius})
}

func (pkt *SEARCHGW) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 1 {
		return ErrMalformedPacket
	}
	pkt.Radius, _ = buf.ReadByte()
	return nil
}
