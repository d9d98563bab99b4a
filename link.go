package mqttsn

// A PacketLink is the datagram transport capability consumed by both
// engines: a short-range radio, a UDP socket, or an in-memory pair in
// tests. Addresses are opaque byte strings of a fixed, link-defined
// length. Send is non-blocking and may drop; the protocol's own retry
// discipline compensates.
type PacketLink interface {
	// PayloadWidth is the largest frame the link can carry. No frame
	// larger than this is ever handed to Send.
	PayloadWidth() uint8

	// AddressLen is the fixed length of link addresses.
	AddressLen() uint8

	// BroadcastAddress is the address reaching every listener in range.
	BroadcastAddress() []byte

	// Initialise powers the link up on the given unicast and broadcast
	// addresses and starts delivering inbound frames.
	Initialise(unicast, broadcast []byte, addrLen uint8) bool

	// Send transmits one frame. False means the frame was dropped.
	Send(dest, frame []byte) bool

	// OnReceived registers the inbound delivery callback. The callback
	// may run on a link-owned goroutine; the engine only copies the
	// frame into its inbound ring under its own lock.
	OnReceived(fn func(src, frame []byte))

	// Shutdown powers the link down. Initialise brings it back.
	Shutdown()
}
