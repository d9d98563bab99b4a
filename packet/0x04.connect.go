package packet

import (
	"bytes"
	"io"
)

// CONNECT opens a client session with a gateway.
//
// MQTT-SN 1.2: section 5.4.4
// Variable part: Flags (1), ProtocolId (1), Duration (2), ClientId (1..23
// octets per spec; this implementation accepts up to the link width).
//
// Flags: Will requests the will-topic/will-message handshake before the
// CONNACK; CleanSession discards topic and will state held for the
// client-id.
type CONNECT struct {
	Flags      byte
	ProtocolID byte
	Duration   uint16
	ClientID   string
}

func (pkt *CONNECT) Kind() byte { return 0x04 }

func (pkt *CONNECT) Will() bool { return pkt.Flags&FlagWill != 0 }
func (pkt *CONNECT) CleanSession() bool { return pkt.Flags&FlagCleanSession != 0 }

func (pkt *CONNECT) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.WriteByte(pkt.Flags)
	buf.WriteByte(pkt.ProtocolID)
	buf.Write(i2b(pkt.Duration))
	buf.WriteString(pkt.ClientID)
	return writeFrame(w, pkt.Kind(), buf.Bytes())
}

func (pkt *CONNECT) Unpack(buf *bytes.Buffer) error {
	if buf.Len() < 5 {
		return ErrMalformedPacket
	}
	pkt.Flags, _ = buf.ReadByte()
	pkt.ProtocolID, _ = buf.ReadByte()
	pkt.Duration = b2i(buf.Next(2))
	pkt.ClientID = buf.String()
	return nil
}
