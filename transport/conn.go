// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package transport

import (
	"io"
	"net"
	"sync"

	"github.com/irifrance/paracube/perr"

	"github.com/google/uuid"
)

// State is a TCP connection's position in the per-connection state
// machine (spec.md §4.8).
type State int

const (
	Connecting State = iota
	Handshaking
	Established
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Handshaking:
		return "Handshaking"
	case Established:
		return "Established"
	case Draining:
		return "Draining"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// TCPConnection wraps one accepted or dialed socket plus its state
// machine. Its state and PeerID are guarded by mu, because the
// per-connection goroutine in serveConn sets them during the handshake.
// That goroutine writes the handshake itself and afterwards only reads;
// every later frame is written from the reactor's loop goroutine.
type TCPConnection struct {
	mu sync.Mutex

	ID     uuid.UUID // correlation id assigned at creation; not included in log lines
	Conn   net.Conn
	PeerID uint64 // 0 until the handshake Description names the peer
	state  State

	initiator bool
}

// newConn wraps an accepted or dialed net.Conn as a fresh Connecting
// TCPConnection.
func newConn(nc net.Conn, initiator bool) *TCPConnection {
	return &TCPConnection{
		ID:        uuid.New(),
		Conn:      nc,
		state:     Connecting,
		initiator: initiator,
	}
}

// State returns the connection's current state.
func (c *TCPConnection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition moves the connection to next. It never moves a connection
// backward or out of Closed; setPeerID records the peer id separately.
func (c *TCPConnection) transition(next State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed || next < c.state {
		return
	}
	c.state = next
}

func (c *TCPConnection) setPeerID(id uint64) {
	c.mu.Lock()
	c.PeerID = id
	c.mu.Unlock()
}

func (c *TCPConnection) peerID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PeerID
}

// HandshakeVersion is the only wire version this build speaks; a peer
// announcing a different version fails the handshake.
const HandshakeVersion uint32 = 1

// Handshake is the fixed-format payload exchanged immediately after a
// TCP connection opens, before either side starts sending Kind-tagged
// Frames. Grounded on spec.md §6's exact field list.
type Handshake struct {
	Version  uint32
	PeerID   uint64
	Workers  uint32
	TCPPort  uint16
	UDPPort  uint16
	Name     string
	Host     string
	Daemon   bool
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func getU16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// Encode renders h as the raw handshake bytes, hand-packed the same way
// frame.go packs a Frame header: no encoding/binary, one contiguous
// buffer built field by field.
func (h Handshake) Encode() []byte {
	name := []byte(h.Name)
	host := []byte(h.Host)
	buf := make([]byte, 4+8+4+2+2+1+len(name)+1+len(host)+1)
	i := 0
	putU32(buf[i:], h.Version)
	i += 4
	putU64(buf[i:], h.PeerID)
	i += 8
	putU32(buf[i:], h.Workers)
	i += 4
	putU16(buf[i:], h.TCPPort)
	i += 2
	putU16(buf[i:], h.UDPPort)
	i += 2
	buf[i] = byte(len(name))
	i++
	i += copy(buf[i:], name)
	buf[i] = byte(len(host))
	i++
	i += copy(buf[i:], host)
	if h.Daemon {
		buf[i] = 1
	}
	return buf
}

// DecodeHandshake parses the fixed-format handshake payload read from r.
func DecodeHandshake(r io.Reader) (Handshake, error) {
	var fixed [20]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return Handshake{}, err
	}
	h := Handshake{
		Version: getU32(fixed[0:4]),
		PeerID:  getU64(fixed[4:12]),
		Workers: getU32(fixed[12:16]),
		TCPPort: getU16(fixed[16:18]),
		UDPPort: getU16(fixed[18:20]),
	}
	if h.Version != HandshakeVersion {
		return Handshake{}, perr.Newf(perr.CodeProtocol, "transport: handshake version %d, want %d", h.Version, HandshakeVersion)
	}

	var nameLen [1]byte
	if _, err := io.ReadFull(r, nameLen[:]); err != nil {
		return Handshake{}, err
	}
	name := make([]byte, nameLen[0])
	if _, err := io.ReadFull(r, name); err != nil {
		return Handshake{}, err
	}
	h.Name = string(name)

	var hostLen [1]byte
	if _, err := io.ReadFull(r, hostLen[:]); err != nil {
		return Handshake{}, err
	}
	host := make([]byte, hostLen[0])
	if _, err := io.ReadFull(r, host); err != nil {
		return Handshake{}, err
	}
	h.Host = string(host)

	var daemon [1]byte
	if _, err := io.ReadFull(r, daemon[:]); err != nil {
		return Handshake{}, err
	}
	h.Daemon = daemon[0] != 0

	return h, nil
}

// WriteHandshake encodes and writes h in one call.
func WriteHandshake(w io.Writer, h Handshake) error {
	_, err := w.Write(h.Encode())
	return err
}
