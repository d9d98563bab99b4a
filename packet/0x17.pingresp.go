package packet

import (
	"bytes"
	"io"
)

// PINGRESP answers a PINGREQ.
//
// MQTT-SN 1.2: section 5.4.20
type PINGRESP struct{}

func (pkt *PINGRESP) Kind() byte { return 0x17 }

func (pkt *PINGRESP) Pack(w io.Writer) error {
	return writeFrame(w, pkt.Kind(), nil)
}

func (pkt *PINGRESP) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 0 {
		return ErrMalformedPacket
	}
	return nil
}
