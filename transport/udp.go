// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package transport

import (
	"hash/crc32"
	"net"

	"github.com/irifrance/paracube/perr"
)

// maxDatagram is generous for a KnownRemotes or OfflineAnnouncement
// payload, both of which are a handful of peer records at most.
const maxDatagram = 4096

// UDPHandler receives decoded UDP announcements. Unlike Handler, these
// arrive unordered and without a connection, so there is no peer state
// machine to drive: the broker either dials the listed peers
// (KnownRemotes) or aborts the announced originator's task tree
// (OfflineAnnouncement). No registry entry is removed on an
// OfflineAnnouncement.
type UDPHandler interface {
	OnAnnouncement(from *net.UDPAddr, kind Kind, payload []byte)
}

// UDPAnnouncer is the reactor's UDP half: a single goroutine receiving
// short KnownRemotes/OfflineAnnouncement datagrams (spec.md §4.8) and a
// thread-safe SendTo for publishing them. Frames are the same
// [magic][kind][flags][seq][len][payload][crc] layout as TCP, just
// carried in one datagram instead of a byte stream, so SendTo
// reuses Frame.Encode directly.
type UDPAnnouncer struct {
	conn    *net.UDPConn
	handler UDPHandler
	done    chan struct{}
}

// ListenUDP binds addr and returns an Announcer ready to Serve.
func ListenUDP(addr string, h UDPHandler) (*UDPAnnouncer, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return &UDPAnnouncer{conn: conn, handler: h, done: make(chan struct{})}, nil
}

// LocalAddr returns the bound UDP address.
func (a *UDPAnnouncer) LocalAddr() net.Addr { return a.conn.LocalAddr() }

// Serve reads datagrams until Close is called. Meant to run in its own
// goroutine; decoding errors are dropped rather than propagated, since a
// malformed announcement from one peer must not take down the listener.
func (a *UDPAnnouncer) Serve() {
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-a.done:
				return
			default:
				continue
			}
		}
		kind, payload, err := decodeDatagram(buf[:n])
		if err != nil {
			continue
		}
		a.handler.OnAnnouncement(from, kind, payload)
	}
}

// SendTo encodes kind/payload as a single-frame datagram and writes it
// to addr.
func (a *UDPAnnouncer) SendTo(addr *net.UDPAddr, kind Kind, payload []byte) error {
	f := Frame{Kind: kind, Payload: payload}
	buf, err := f.Encode()
	if err != nil {
		return err
	}
	_, err = a.conn.WriteToUDP(buf, addr)
	return err
}

// Close stops Serve and releases the socket.
func (a *UDPAnnouncer) Close() error {
	close(a.done)
	return a.conn.Close()
}

// decodeDatagram parses one complete frame out of a single UDP
// datagram, unlike ReadFrame which streams from a byte-oriented
// io.Reader.
func decodeDatagram(buf []byte) (Kind, []byte, error) {
	if len(buf) < headerLen+4 {
		return 0, nil, perr.New(perr.CodeProtocol, "transport: udp datagram too short")
	}
	if getU32(buf[0:4]) != frameMagic {
		return 0, nil, perr.New(perr.CodeProtocol, "transport: bad udp datagram magic")
	}
	length := getU32(buf[10:14])
	if int(length) != len(buf)-headerLen-4 {
		return 0, nil, perr.New(perr.CodeProtocol, "transport: udp datagram length mismatch")
	}
	want := getU32(buf[headerLen+int(length):])
	got := crc32.Checksum(buf[:headerLen+int(length)], crcTable)
	if got != want {
		return 0, nil, perr.New(perr.CodeProtocol, "transport: udp datagram CRC mismatch")
	}
	return Kind(buf[4]), buf[headerLen : headerLen+int(length)], nil
}
