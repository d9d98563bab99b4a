package packet

import (
	"bytes"
	"io"
)

// GWINFO answers a SEARCHGW. A gateway answers with only its id; a client
// answering on behalf of a gateway appends that gateway's address.
//
// MQTT-SN 1.2: section 5.4.3
// Variable part: GwId (1 octet), GwAdd (optional, link address length)
type GWINFO struct {
	GatewayID      byte
	GatewayAddress []byte
}

func (pkt *GWINFO) Kind() byte { return 0x02 }

func (pkt *GWINFO) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.WriteByte(pkt.GatewayID)
	buf.Write(pkt.GatewayAddress)
	return writeFrame(w, pkt.Kind(), buf.Bytes())
}

func (pkt *GWINFO) Unpack(buf *bytes.Buffer) error {
	if buf.Len() < 1 {
		return ErrMalformedPacket
	}
	pkt.GatewayID, _ = buf.ReadByte()
	if buf.Len() > 0 {
		pkt.GatewayAddress = bytes.Clone(buf.Bytes())
	}
	return nil
}
