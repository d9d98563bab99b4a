package packet

import (
	"bytes"
	"io"
)

// DISCONNECT closes a session, or, when it carries a Duration, moves the
// client into the asleep state for that many seconds.
//
// MQTT-SN 1.2: section 5.4.21
// Variable part: Duration (2, optional)
type DISCONNECT struct {
	Duration    uint16
	HasDuration bool
}

func (pkt *DISCONNECT) Kind() byte { return 0x18 }

func (pkt *DISCONNECT) Pack(w io.Writer) error {
	if !pkt.HasDuration {
		return writeFrame(w, pkt.Kind(), nil)
	}
	return writeFrame(w, pkt.Kind(), i2b(pkt.Duration))
}

func (pkt *DISCONNECT) Unpack(buf *bytes.Buffer) error {
	switch buf.Len() {
	case 0:
		return nil
	case 2:
		pkt.Duration = b2i(buf.Next(2))
		pkt.HasDuration = true
		return nil
	}
	return ErrMalformedPacket
}
