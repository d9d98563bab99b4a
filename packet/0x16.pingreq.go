package packet

import (
	"bytes"
	"io"
)

// PINGREQ is the keep-alive probe. A client includes its client-id so a
// gateway holding messages for a sleeping client can identify it.
//
// MQTT-SN 1.2: section 5.4.19
// Variable part: ClientId (optional, n octets)
type PINGREQ struct {
	ClientID string
}

func (pkt *PINGREQ) Kind() byte { return 0x16 }

func (pkt *PINGREQ) Pack(w io.Writer) error {
	return writeFrame(w, pkt.Kind(), []byte(pkt.ClientID))
}

func (pkt *PINGREQ) Unpack(buf *bytes.Buffer) error {
	pkt.ClientID = buf.String()
	return nil
}
