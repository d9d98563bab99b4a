package packet

import "encoding/binary"

// Protocol is the ProtocolId octet carried in CONNECT.
// MQTT-SN 1.2 section 5.3.5: the only defined value is 0x01.
const Protocol byte = 0x01

// Header sizes. Integers on the wire are big-endian (section 5.2).
const (
	HdrLen          = 2 // Length + MsgType
	FlagsLen        = 1
	TopicIDLen      = 2
	MsgIDLen        = 2
	DurationLen     = 2
	ConnectHdrLen   = HdrLen + FlagsLen + 1 + DurationLen       // before ClientId
	RegisterHdrLen  = HdrLen + TopicIDLen + MsgIDLen            // before TopicName
	PublishHdrLen   = HdrLen + FlagsLen + TopicIDLen + MsgIDLen // before Data
	SubscribeHdrLen = HdrLen + FlagsLen + MsgIDLen              // before TopicName
	WillTopicHdrLen = HdrLen + FlagsLen                         // before WillTopic
	WillMsgHdrLen   = HdrLen                                    // before WillMsg
)

// Flags octet bits, MQTT-SN 1.2 section 5.3.4.
const (
	FlagDup          byte = 0x80
	FlagQoS2         byte = 0x40
	FlagQoS1         byte = 0x20
	FlagQoS0         byte = 0x00
	FlagQoSN1        byte = 0x60 // QoS level -1 (both bits set)
	FlagRetain       byte = 0x10
	FlagWill         byte = 0x08
	FlagCleanSession byte = 0x04

	TopicIDNormal     byte = 0x00
	TopicIDPredefined byte = 0x01
	TopicShortName    byte = 0x02
	topicIDMask       byte = TopicIDPredefined | TopicShortName
)

// ReturnCode values, MQTT-SN 1.2 section 5.3.10.
const (
	Accepted     byte = 0x00
	Congestion   byte = 0x01
	InvalidTopic byte = 0x02
	NotSupported byte = 0x03
)

// Reserved topic ids. 0 stands for "unassigned" and doubles as the
// wildcard-subscription placeholder; 0xFFFF is never valid.
const (
	TopicIDUnassigned uint16 = 0x0000
	TopicIDInvalid    uint16 = 0xFFFF
)

// Kind maps MsgType octets to display names.
var Kind = map[byte]string{
	0x00: "[0x00]ADVERTISE",     // Gateway to all: broadcast presence
	0x01: "[0x01]SEARCHGW",      // Client to all: request gateway info
	0x02: "[0x02]GWINFO",        // Gateway (or client) to client: gateway info
	0x04: "[0x04]CONNECT",       // Client to gateway: connection request
	0x05: "[0x05]CONNACK",       // Gateway to client: connection acknowledgement
	0x06: "[0x06]WILLTOPICREQ",  // Gateway to client: request will topic
	0x07: "[0x07]WILLTOPIC",     // Client to gateway: will topic
	0x08: "[0x08]WILLMSGREQ",    // Gateway to client: request will message
	0x09: "[0x09]WILLMSG",       // Client to gateway: will message
	0x0A: "[0x0A]REGISTER",      // Either direction: bind topic name to id
	0x0B: "[0x0B]REGACK",        // Either direction: registration acknowledgement
	0x0C: "[0x0C]PUBLISH",       // Either direction: publish message
	0x0D: "[0x0D]PUBACK",        // Either direction: publish acknowledgement (QoS 1)
	0x0E: "[0x0E]PUBCOMP",       // Either direction: publish complete (QoS 2 part 3)
	0x0F: "[0x0F]PUBREC",        // Either direction: publish received (QoS 2 part 1)
	0x10: "[0x10]PUBREL",        // Either direction: publish release (QoS 2 part 2)
	0x12: "[0x12]SUBSCRIBE",     // Client to gateway: subscribe request
	0x13: "[0x13]SUBACK",        // Gateway to client: subscribe acknowledgement
	0x14: "[0x14]UNSUBSCRIBE",   // Client to gateway: unsubscribe request
	0x15: "[0x15]UNSUBACK",      // Gateway to client: unsubscribe acknowledgement
	0x16: "[0x16]PINGREQ",       // Either direction: ping request
	0x17: "[0x17]PINGRESP",      // Either direction: ping response
	0x18: "[0x18]DISCONNECT",    // Either direction: disconnect / sleep
	0x1A: "[0x1A]WILLTOPICUPD",  // Client to gateway: will topic update
	0x1B: "[0x1B]WILLTOPICRESP", // Gateway to client: will topic update ack
	0x1C: "[0x1C]WILLMSGUPD",    // Client to gateway: will message update
	0x1D: "[0x1D]WILLMSGRESP",   // Gateway to client: will message update ack
}

// QoSFlag converts a numeric QoS level (0..2) to its flag bits.
func QoSFlag(qos uint8) byte {
	switch qos {
	case 1:
		return FlagQoS1
	case 2:
		return FlagQoS2
	}
	return FlagQoS0
}

// QoSLevel converts flag bits back to the numeric QoS level. The -1 level
// decodes as 3; callers test for FlagQoSN1 before converting.
func QoSLevel(flags byte) uint8 {
	switch flags & FlagQoSN1 {
	case FlagQoS1:
		return 1
	case FlagQoS2:
		return 2
	case FlagQoSN1:
		return 3
	}
	return 0
}

func i2b(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func b2i(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}
