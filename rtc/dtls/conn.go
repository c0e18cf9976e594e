package dtls

import (
	"net"
	"sync"
	"time"
)

// isDTLSRecord reports whether the datagram starts a DTLS record,
// first byte in [20..63] as defined in RFC 7983.
func isDTLSRecord(data []byte) bool {
	return len(data) > 13 && data[0] > 19 && data[0] < 64
}

// newHandshakeConn binds the handshake engine to the caller's socket. The
// socket is borrowed and shared with STUN and RTP traffic, so Read sniffs
// packet content and hands the engine only DTLS records, everything else
// keeps flowing past the handshake untouched. remote is nil for the server
// role, the peer address is latched from the first DTLS flight.
func newHandshakeConn(conn net.PacketConn, remote net.Addr) *handshakeConn {
	return &handshakeConn{
		conn:   conn,
		remote: remote,
	}
}

type handshakeConn struct {
	conn   net.PacketConn
	m      sync.Mutex
	remote net.Addr
}

func (c *handshakeConn) Read(b []byte) (int, error) {
	for {
		n, addr, err := c.conn.ReadFrom(b)
		if err != nil {
			return 0, err
		}
		if !isDTLSRecord(b[:n]) {
			// another protocol on the shared socket, not ours to consume
			continue
		}
		c.m.Lock()
		if c.remote == nil {
			c.remote = addr
		}
		match := addr.String() == c.remote.String()
		c.m.Unlock()
		if !match {
			continue
		}
		return n, nil
	}
}

func (c *handshakeConn) Write(b []byte) (int, error) {
	c.m.Lock()
	remote := c.remote
	c.m.Unlock()
	if remote == nil {
		return 0, ErrNoPeerAddress
	}
	return c.conn.WriteTo(b, remote)
}

// Close is a no-op, the socket belongs to the caller and outlives the
// handshake.
func (c *handshakeConn) Close() error {
	return nil
}

func (c *handshakeConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *handshakeConn) RemoteAddr() net.Addr {
	c.m.Lock()
	defer c.m.Unlock()
	return c.remote
}

// Deadlines are not forwarded, a deadline set by the engine on shutdown
// would hit the shared socket and break the media phase that follows.
func (c *handshakeConn) SetDeadline(_ time.Time) error {
	return nil
}

func (c *handshakeConn) SetReadDeadline(_ time.Time) error {
	return nil
}

func (c *handshakeConn) SetWriteDeadline(_ time.Time) error {
	return nil
}
