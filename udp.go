package mqttsn

import (
	"log"
	"net"
	"sync"
)

// udpAddrLen is the wire form of a UDP peer: IPv4 (4 octets) plus port
// (2 octets, big-endian). MQTT-SN gateways over UDP conventionally use
// this 6-octet encoding.
const udpAddrLen = 6

// A UDPLink is the reference PacketLink over UDP datagrams: one socket,
// one read loop, 6-octet addresses. Radio deployments supply their own
// PacketLink; this one serves the cmd binaries and LAN setups.
type UDPLink struct {
	width     uint8
	broadcast []byte

	mu     sync.Mutex
	conn   *net.UDPConn
	onRecv func(src, frame []byte)
	done   chan struct{}
}

// NewUDPLink builds a link with the given payload width (the MQTT-SN
// frame bound, e.g. 64 for LAN use).
func NewUDPLink(width uint8) *UDPLink {
	return &UDPLink{width: width}
}

// EncodeUDPAddr packs a resolved UDP address into the 6-octet link form.
func EncodeUDPAddr(addr *net.UDPAddr) []byte {
	ip := addr.IP.To4()
	if ip == nil {
		return nil
	}
	return []byte{ip[0], ip[1], ip[2], ip[3], byte(addr.Port >> 8), byte(addr.Port)}
}

// DecodeUDPAddr unpacks the 6-octet link form.
func DecodeUDPAddr(b []byte) *net.UDPAddr {
	if len(b) < udpAddrLen {
		return nil
	}
	return &net.UDPAddr{
		IP:   net.IPv4(b[0], b[1], b[2], b[3]),
		Port: int(b[4])<<8 | int(b[5]),
	}
}

func (l *UDPLink) PayloadWidth() uint8 { return l.width }
func (l *UDPLink) AddressLen() uint8 { return udpAddrLen }

func (l *UDPLink) BroadcastAddress() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.broadcast
}

func (l *UDPLink) OnReceived(fn func(src, frame []byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onRecv = fn
}

// Initialise binds the socket on the unicast address and starts the read
// loop.
func (l *UDPLink) Initialise(unicast, broadcast []byte, addrLen uint8) bool {
	if addrLen != udpAddrLen {
		return false
	}
	laddr := DecodeUDPAddr(unicast)
	if laddr == nil {
		return false
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		log.Printf("udp listen failed: addr=%s, err=%v", laddr, err)
		return false
	}

	l.mu.Lock()
	l.conn = conn
	l.broadcast = append([]byte(nil), broadcast...)
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.readLoop(conn, l.done)
	log.Printf("udp link up: addr=%s", laddr)
	return true
}

func (l *UDPLink) readLoop(conn *net.UDPConn, done chan struct{}) {
	buf := make([]byte, 512)
	for {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			log.Printf("udp read failed: err=%v", err)
			return
		}
		src := EncodeUDPAddr(raddr)
		if src == nil || n > int(l.width) {
			continue
		}
		l.mu.Lock()
		fn := l.onRecv
		l.mu.Unlock()
		if fn != nil {
			fn(src, buf[:n])
		}
	}
}

// Send writes one frame. A datagram that cannot be written is dropped;
// protocol retries cover the loss.
func (l *UDPLink) Send(dest, frame []byte) bool {
	raddr := DecodeUDPAddr(dest)
	if raddr == nil {
		return false
	}
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return false
	}
	if _, err := conn.WriteToUDP(frame, raddr); err != nil {
		return false
	}
	return true
}

// Shutdown closes the socket and stops the read loop.
func (l *UDPLink) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return
	}
	close(l.done)
	_ = l.conn.Close()
	l.conn = nil
}
