package packet

import (
	"bytes"
	"io"
)

// Packet is an MQTT-SN control message.
//
// MQTT-SN 1.2 (Stanford-Clark & Truong, November 2013):
// - Reference section: 5.2 General message format
// - Every message starts with a 2-octet header [Length][MsgType] followed
//   by a message-specific variable part. The long-frame escape (a 0x01
//   Length octet followed by a 2-octet length) is not used: the targeted
//   links carry at most 255-octet frames and typically far less.
type Packet interface {
	// Kind returns the MsgType octet (byte 2 of the frame).
	Kind() byte

	// Unpack parses the variable part of the message. The buffer holds
	// only the octets after the 2-octet header.
	Unpack(*bytes.Buffer) error

	// Pack writes the whole frame, header included.
	Pack(io.Writer) error
}

// FrameLen reports the total frame length declared by the length octet, or
// 0 if the buffer is empty.
func FrameLen(buf []byte) int {
	if len(buf) < 1 {
		return 0
	}
	return int(buf[0])
}

// Decode parses one frame. width bounds the acceptable frame size (the
// link's payload width); pass 0 to skip the bound. Unknown message types
// return ErrUnknownPacket so the caller can ignore them.
func Decode(frame []byte, width int) (Packet, error) {
	if len(frame) < HdrLen {
		return nil, ErrMalformedPacket
	}
	n := int(frame[0])
	if n < HdrLen || n > len(frame) {
		return nil, ErrMalformedPacket
	}
	if width > 0 && n > width {
		return nil, ErrMalformedPacket
	}

	var pkt Packet
	switch frame[1] {
	case 0x00: // ADVERTISE, section 5.4.1
		pkt = &ADVERTISE{}
	case 0x01: // SEARCHGW, section 5.4.2
		pkt = &SEARCHGW{}
	case 0x02: // GWINFO, section 5.4.3
		pkt = &GWINFO{}
	case 0x04: // CONNECT, section 5.4.4
		pkt = &CONNECT{}
	case 0x05: // CONNACK, section 5.4.5
		pkt = &CONNACK{}
	case 0x06: // WILLTOPICREQ, section 5.4.6
		pkt = &WILLTOPICREQ{}
	case 0x07: // WILLTOPIC, section 5.4.7
		pkt = &WILLTOPIC{}
	case 0x08: // WILLMSGREQ, section 5.4.8
		pkt = &WILLMSGREQ{}
	case 0x09: // WILLMSG, section 5.4.9
		pkt = &WILLMSG{}
	case 0x0A: // REGISTER, section 5.4.10
		pkt = &REGISTER{}
	case 0x0B: // REGACK, section 5.4.11
		pkt = &REGACK{}
	case 0x0C: // PUBLISH, section 5.4.12
		pkt = &PUBLISH{}
	case 0x0D: // PUBACK, section 5.4.13
		pkt = &PUBACK{}
	case 0x0E: // PUBCOMP, section 5.4.14
		pkt = &PUBCOMP{}
	case 0x0F: // PUBREC, section 5.4.14
		pkt = &PUBREC{}
	case 0x10: // PUBREL, section 5.4.14
		pkt = &PUBREL{}
	case 0x12: // SUBSCRIBE, section 5.4.15
		pkt = &SUBSCRIBE{}
	case 0x13: // SUBACK, section 5.4.16
		pkt = &SUBACK{}
	case 0x14: // UNSUBSCRIBE, section 5.4.17
		pkt = &UNSUBSCRIBE{}
	case 0x15: // UNSUBACK, section 5.4.18
		pkt = &UNSUBACK{}
	case 0x16: // PINGREQ, section 5.4.19
		pkt = &PINGREQ{}
	case 0x17: // PINGRESP, section 5.4.20
		pkt = &PINGRESP{}
	case 0x18: // DISCONNECT, section 5.4.21
		pkt = &DISCONNECT{}
	case 0x1A: // WILLTOPICUPD, section 5.4.22
		pkt = &WILLTOPICUPD{}
	case 0x1B: // WILLTOPICRESP, section 5.4.23
		pkt = &WILLTOPICRESP{}
	case 0x1C: // WILLMSGUPD, section 5.4.24
		pkt = &WILLMSGUPD{}
	case 0x1D: // WILLMSGRESP, section 5.4.25
		pkt = &WILLMSGRESP{}
	default:
		return nil, ErrUnknownPacket
	}
	return pkt, pkt.Unpack(bytes.NewBuffer(frame[HdrLen:n]))
}

// Encode packs pkt into a fresh byte slice ready for the link.
func Encode(pkt Packet) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)
	if err := pkt.Pack(buf); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

// writeFrame emits the 2-octet header followed by the variable part.
func writeFrame(w io.Writer, kind byte, payload []byte) error {
	n := len(payload) + HdrLen
	if n > 0xFF {
		return ErrPacketTooLarge
	}
	if _, err := w.Write([]byte{byte(n), kind}); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}
