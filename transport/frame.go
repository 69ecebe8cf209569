// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package transport

import (
	"hash/crc32"
	"io"

	"github.com/irifrance/paracube/perr"
)

// frameMagic opens every frame: "PCUB" read as a little-endian uint32.
const frameMagic = 0x42554350

// maxFramePayload is 64 KiB minus one: payloads larger than this size
// must be split across Chunked continuation frames (spec.md §4.8).
const maxFramePayload = 64*1024 - 1

// headerLen is the frame header size in bytes, everything before the
// payload: magic(4) kind(1) flags(1) seq(4) len(4).
const headerLen = 14

// Flags are frame-level bits, distinct from Kind.
type Flags uint8

// FlagChunked marks a frame as one part of a multi-frame payload that
// shares its seq with its siblings.
const FlagChunked Flags = 1 << 0

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Frame is the wire unit the reactor reads and writes:
// [magic(4)][kind(1)][flags(1)][seq(4)][len(4)][payload(len)][crc(4)].
// Crafted by hand rather than through encoding/binary, in the same style
// as the teacher's vu32io: code directly to a byte slice, one buffer,
// no per-call allocation beyond what the payload itself needs.
type Frame struct {
	Kind    Kind
	Flags   Flags
	Seq     uint32
	Payload []byte
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Encode renders f as the bytes ready to write to the wire.
func (f Frame) Encode() ([]byte, error) {
	if len(f.Payload) > maxFramePayload {
		return nil, perr.New(perr.CodeProtocol, "transport: frame payload exceeds 64KiB, must be chunked")
	}
	buf := make([]byte, headerLen+len(f.Payload)+4)
	putU32(buf[0:4], frameMagic)
	buf[4] = byte(f.Kind)
	buf[5] = byte(f.Flags)
	putU32(buf[6:10], f.Seq)
	putU32(buf[10:14], uint32(len(f.Payload)))
	copy(buf[headerLen:], f.Payload)
	crc := crc32.Checksum(buf[:headerLen+len(f.Payload)], crcTable)
	putU32(buf[headerLen+len(f.Payload):], crc)
	return buf, nil
}

// WriteFrame encodes and writes f in one call.
func WriteFrame(w io.Writer, f Frame) error {
	buf, err := f.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads and CRC-validates exactly one frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	if getU32(hdr[0:4]) != frameMagic {
		return Frame{}, perr.New(perr.CodeProtocol, "transport: bad frame magic")
	}
	length := getU32(hdr[10:14])
	if length > maxFramePayload {
		return Frame{}, perr.New(perr.CodeProtocol, "transport: frame payload too large")
	}

	full := make([]byte, headerLen+int(length))
	copy(full, hdr[:])
	if length > 0 {
		if _, err := io.ReadFull(r, full[headerLen:]); err != nil {
			return Frame{}, err
		}
	}

	var crcBuf [4]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return Frame{}, err
	}
	want := getU32(crcBuf[:])
	got := crc32.Checksum(full, crcTable)
	if got != want {
		return Frame{}, perr.New(perr.CodeProtocol, "transport: frame CRC mismatch")
	}

	return Frame{
		Kind:    Kind(full[4]),
		Flags:   Flags(full[5]),
		Seq:     getU32(full[6:10]),
		Payload: full[headerLen:],
	}, nil
}

// Chunk splits payload into a sequence of frames sharing seq, all but
// the last flagged Chunked, for payloads larger than maxFramePayload.
func Chunk(kind Kind, seq uint32, payload []byte) []Frame {
	if len(payload) <= maxFramePayload {
		return []Frame{{Kind: kind, Seq: seq, Payload: payload}}
	}
	var frames []Frame
	for len(payload) > maxFramePayload {
		frames = append(frames, Frame{Kind: kind, Flags: FlagChunked, Seq: seq, Payload: payload[:maxFramePayload]})
		payload = payload[maxFramePayload:]
	}
	frames = append(frames, Frame{Kind: kind, Seq: seq, Payload: payload})
	return frames
}

// Assembler reassembles Chunked frame sequences keyed by seq, used by
// the reactor's read path for TaskPush file transfers.
type Assembler struct {
	partial map[uint32][]byte
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{partial: make(map[uint32][]byte)}
}

// Feed accumulates f. It returns the complete payload and ok=true once a
// non-Chunked frame for that seq arrives; otherwise ok=false and the
// caller should keep reading.
func (a *Assembler) Feed(f Frame) (kind Kind, payload []byte, ok bool) {
	if f.Flags&FlagChunked != 0 {
		a.partial[f.Seq] = append(a.partial[f.Seq], f.Payload...)
		return 0, nil, false
	}
	if buf, have := a.partial[f.Seq]; have {
		delete(a.partial, f.Seq)
		return f.Kind, append(buf, f.Payload...), true
	}
	return f.Kind, f.Payload, true
}
