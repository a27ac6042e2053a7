// Package framing implements the TDS message I/O layer: it chunks
// outbound logical messages into packets of the negotiated size, and
// reassembles inbound packets into logical messages, delivering both as
// events on a channel rather than through blocking reads. This mirrors
// the teacher's tds.Conn (tds/conn.go) ReadPacket/WritePacket pair, but
// the client FSM this package feeds is single-threaded and event-driven
// (the spec's cooperative-scheduling model), so the socket is read by
// one dedicated goroutine that only ever posts events — it never
// mutates connection/FSM state directly.
package framing

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/ha1tch/tdsdriver/wire"
)

// EventType identifies the kind of Event posted by the reader goroutine.
type EventType int

const (
	// EventData reports a non-final packet's payload for the message
	// currently being reassembled.
	EventData EventType = iota
	// EventMessage reports that the current message is complete;
	// Payload carries the final packet's payload (possibly empty).
	EventMessage
	// EventTLSReady reports that a TLS upgrade requested via
	// ResolvePrelogin completed and LOGIN7 was sent over it; it plays
	// the role of the spec's `tlsNegotiated` signal.
	EventTLSReady
	// EventSocketError reports a read failure; the reader goroutine
	// exits after posting it.
	EventSocketError
)

// Event is one unit of inbound activity.
type Event struct {
	Type    EventType
	PktType wire.PacketType
	Payload []byte
	Err     error
}

// preloginDecision is sent exactly once per connection by the Connection
// FSM in response to the PRELOGIN response message, telling the reader
// goroutine whether to negotiate TLS before resuming its normal loop.
type preloginDecision struct {
	startTLS bool
	config   *tls.Config
	login7   []byte
}

// Framer owns the single socket (and, after a TLS upgrade, the TLS
// engine layered over it) for one connection. SendMessage/SetPacketSize/
// RequestReset/ResolvePrelogin are safe to call from the connection's
// single event-processing goroutine; the reader goroutine is the only
// other concurrent actor and is the sole owner of the read path —
// there is never a second goroutine reading the socket, even across
// the pre-TLS/post-TLS boundary, which is what makes the handoff at
// that boundary race-free.
type Framer struct {
	mu         sync.Mutex
	conn       net.Conn
	tlsConn    *tls.Conn
	writer     *bufio.Writer
	packetSize int
	packetSeq  uint8
	resetFlag  bool

	events           chan Event
	preloginDecision chan preloginDecision
}

// NewFramer wraps conn and starts the reader goroutine.
func NewFramer(conn net.Conn, packetSize int) *Framer {
	f := &Framer{
		conn:             conn,
		writer:           bufio.NewWriterSize(conn, wire.MaxPacketSize),
		packetSize:       packetSize,
		packetSeq:        1,
		events:           make(chan Event, 64),
		preloginDecision: make(chan preloginDecision, 1),
	}
	go f.readLoop()
	return f
}

// Events returns the channel the reader goroutine posts to.
func (f *Framer) Events() <-chan Event { return f.events }

// SetPacketSize updates the chunking size used by subsequent
// SendMessage calls, in response to a server ENVCHANGE(PacketSize).
func (f *Framer) SetPacketSize(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n >= wire.MinPacketSize && n <= wire.MaxPacketSize {
		f.packetSize = n
	}
}

// RequestReset arms the reset-connection bit on the next packet this
// Framer sends, then clears itself.
func (f *Framer) RequestReset() {
	f.mu.Lock()
	f.resetFlag = true
	f.mu.Unlock()
}

// ResolvePrelogin answers the reader goroutine's standing question of
// what to do after the PRELOGIN response: negotiate TLS (wrapping the
// handshake in PRELOGIN packets, then sending login7 over the
// established TLS session) or proceed in plaintext. Call exactly once
// per connection, after observing the PRELOGIN response message.
func (f *Framer) ResolvePrelogin(startTLS bool, config *tls.Config, login7 []byte) {
	f.preloginDecision <- preloginDecision{startTLS: startTLS, config: config, login7: login7}
}

// SendMessage chunks payload into packets of the current packet size,
// each tagged pktType, with the end-of-message status bit set on the
// final chunk. Mirrors tds.Conn.WritePacket, generalized to a
// configurable packet type per call instead of a fixed reply type.
func (f *Framer) SendMessage(pktType wire.PacketType, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendMessageLocked(pktType, payload)
}

func (f *Framer) sendMessageLocked(pktType wire.PacketType, payload []byte) error {
	maxPayload := f.packetSize - wire.HeaderSize
	if maxPayload <= 0 {
		return fmt.Errorf("framing: packet size %d too small", f.packetSize)
	}

	remaining := payload
	resetOnFirst := f.resetFlag
	f.resetFlag = false

	for {
		isLast := len(remaining) <= maxPayload
		var chunk []byte
		if isLast {
			chunk = remaining
		} else {
			chunk = remaining[:maxPayload]
			remaining = remaining[maxPayload:]
		}

		status := wire.StatusNormal
		if isLast {
			status |= wire.StatusEOM
		}
		if resetOnFirst {
			status |= wire.StatusResetConnection
			resetOnFirst = false
		}

		hdr := wire.Header{
			Type:     pktType,
			Status:   status,
			Length:   uint16(wire.HeaderSize + len(chunk)),
			PacketID: f.packetSeq,
		}
		if err := hdr.Write(f.writer); err != nil {
			return fmt.Errorf("framing: writing packet header: %w", err)
		}
		if len(chunk) > 0 {
			if _, err := f.writer.Write(chunk); err != nil {
				return fmt.Errorf("framing: writing packet payload: %w", err)
			}
		}

		f.packetSeq++
		if f.packetSeq == 0 {
			f.packetSeq = 1
		}

		if isLast {
			break
		}
	}

	return f.writer.Flush()
}

// readLoop reassembles inbound packets into messages and posts events.
// It owns the socket for the connection's entire lifetime, including
// across the TLS upgrade: the handoff from reading raw TDS packets to
// reading TDS packets carried over TLS happens entirely within this
// goroutine (negotiateTLS, below), so there is never a moment where two
// goroutines race to read the same net.Conn.
func (f *Framer) readLoop() {
	cur := bufio.NewReaderSize(f.conn, wire.MaxPacketSize)
	awaitingPreloginDecision := true

	for {
		hdr, err := wire.ReadHeader(cur)
		if err != nil {
			f.events <- Event{Type: EventSocketError, Err: fmt.Errorf("framing: reading packet header: %w", err)}
			return
		}
		if hdr.Length < wire.HeaderSize {
			f.events <- Event{Type: EventSocketError, Err: fmt.Errorf("framing: invalid packet length %d", hdr.Length)}
			return
		}

		payloadLen := hdr.PayloadLength()
		var payload []byte
		if payloadLen > 0 {
			payload = make([]byte, payloadLen)
			if _, err := io.ReadFull(cur, payload); err != nil {
				f.events <- Event{Type: EventSocketError, Err: fmt.Errorf("framing: reading packet payload: %w", err)}
				return
			}
		}

		if !hdr.IsLastPacket() {
			f.events <- Event{Type: EventData, PktType: hdr.Type, Payload: payload}
			continue
		}

		f.events <- Event{Type: EventMessage, PktType: hdr.Type, Payload: payload}

		if awaitingPreloginDecision && hdr.Type == wire.PacketPrelogin {
			awaitingPreloginDecision = false
			decision := <-f.preloginDecision
			if !decision.startTLS {
				continue
			}

			tlsConn, err := f.negotiateTLS(cur, decision.config, decision.login7)
			if err != nil {
				f.events <- Event{Type: EventSocketError, Err: err}
				return
			}

			cur = bufio.NewReaderSize(tlsConn, wire.MaxPacketSize)
			f.events <- Event{Type: EventTLSReady}
		}
	}
}

// negotiateTLS runs the TLS handshake synchronously (this goroutine is
// the only reader of the socket, so there is no one else to race with),
// tunneling handshake records inside PRELOGIN packets per cur/f.writer,
// then sends login7 as the first record over the now-established
// session. It returns the established *tls.Conn for the caller to
// install as the new transport.
func (f *Framer) negotiateTLS(cur *bufio.Reader, config *tls.Config, login7 []byte) (*tls.Conn, error) {
	tunnel := newTunnelConn(f, cur)
	tlsConn := tls.Client(tunnel, config)

	if err := tlsConn.Handshake(); err != nil {
		return nil, fmt.Errorf("framing: TLS handshake failed: %w", err)
	}
	tunnel.markEstablished()

	// login7 must reach the wire as a TDS-framed packet (8-byte header,
	// EOM bit), same as every message that follows it — not as a bare
	// payload. Point the writer at tlsConn first so sendMessageLocked's
	// header+payload bytes are what actually flows through the TLS
	// engine, matching the plaintext branch's use of SendMessage.
	f.mu.Lock()
	f.tlsConn = tlsConn
	f.writer = bufio.NewWriterSize(tlsConn, wire.MaxPacketSize)
	err := f.sendMessageLocked(wire.PacketLogin7, login7)
	f.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("framing: sending LOGIN7 over TLS: %w", err)
	}
	return tlsConn, nil
}

// Close releases the underlying socket.
func (f *Framer) Close() error {
	return f.conn.Close()
}
