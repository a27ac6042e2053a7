package framing

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ha1tch/tdsdriver/wire"
)

// tunnelConn presents the TLS engine with a net.Conn whose wire
// representation changes at exactly one moment: before the handshake
// completes, every byte it reads or writes is unwrapped from, or
// wrapped in, a PRELOGIN-typed TDS packet (the "non-standard transport
// interleaving" the spec calls out); after markEstablished, it reads
// and writes raw bytes directly against the underlying socket, since
// TLS application data is itself what carries the ordinary TDS packet
// stream from that point on. Grounded on the teacher's
// tlsHandshakeConnWithInitial (tds/tls.go), generalized from its
// server-side handshakeComplete flag to the client side.
type tunnelConn struct {
	framer      *Framer
	cur         *bufio.Reader
	established bool
	pending     []byte
}

func newTunnelConn(f *Framer, cur *bufio.Reader) *tunnelConn {
	return &tunnelConn{framer: f, cur: cur}
}

func (t *tunnelConn) markEstablished() { t.established = true }

// Read implements net.Conn. Before markEstablished, it strips one
// PRELOGIN TDS packet per call (buffering any payload left over once
// the caller's buffer is smaller than the packet); afterward it reads
// straight off the socket.
func (t *tunnelConn) Read(p []byte) (int, error) {
	if t.established {
		return t.framer.conn.Read(p)
	}

	for len(t.pending) == 0 {
		hdr, err := wire.ReadHeader(t.cur)
		if err != nil {
			return 0, fmt.Errorf("framing: reading TLS handshake packet: %w", err)
		}
		if hdr.Type != wire.PacketPrelogin {
			return 0, fmt.Errorf("framing: expected PRELOGIN packet during TLS handshake, got %s", hdr.Type)
		}
		payloadLen := hdr.PayloadLength()
		if payloadLen == 0 {
			continue
		}
		buf := make([]byte, payloadLen)
		if _, err := io.ReadFull(t.cur, buf); err != nil {
			return 0, fmt.Errorf("framing: reading TLS handshake payload: %w", err)
		}
		t.pending = buf
	}

	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// Write implements net.Conn. Before markEstablished, it wraps p in a
// single PRELOGIN-typed TDS message (itself chunked by SendMessage if
// larger than the current packet size); afterward it writes straight
// to the socket.
func (t *tunnelConn) Write(p []byte) (int, error) {
	if t.established {
		return t.framer.conn.Write(p)
	}
	if err := t.framer.SendMessage(wire.PacketPrelogin, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *tunnelConn) Close() error                       { return nil }
func (t *tunnelConn) LocalAddr() net.Addr                { return t.framer.conn.LocalAddr() }
func (t *tunnelConn) RemoteAddr() net.Addr               { return t.framer.conn.RemoteAddr() }
func (t *tunnelConn) SetDeadline(tm time.Time) error     { return t.framer.conn.SetDeadline(tm) }
func (t *tunnelConn) SetReadDeadline(tm time.Time) error { return t.framer.conn.SetReadDeadline(tm) }
func (t *tunnelConn) SetWriteDeadline(tm time.Time) error {
	return t.framer.conn.SetWriteDeadline(tm)
}
