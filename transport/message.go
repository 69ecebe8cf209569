// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

// Package transport implements the Message Send Queue (C7) and Transport
// Reactor (C8) from spec.md §4.7/§4.8: a reliable, ACK'd per-peer send
// queue driven from arbitrary goroutines, and the single serializing I/O
// reactor that owns every socket.
package transport

import "fmt"

// Kind tags a frame's payload, the wire analogue of the teacher's own
// ProtoPoint enum (src/gini/crisp/proto.go). Numbered 0x00-0x07 exactly
// per spec.md §6's wire protocol table; the handshake that precedes
// Established is its own fixed-format payload, not a Kind in this enum
// (see DecodeHandshake/WriteHandshake in conn.go).
type Kind uint8

const (
	KindTaskPush            Kind = 0x00
	KindTaskResult          Kind = 0x01
	KindStatus              Kind = 0x02
	KindKnownRemotes        Kind = 0x03
	KindOfflineAnnouncement Kind = 0x04
	KindFileBlob            Kind = 0x05
	KindAck                 Kind = 0x06
	KindEnd                 Kind = 0x07
)

func (k Kind) String() string {
	switch k {
	case KindTaskPush:
		return "<task-push>"
	case KindTaskResult:
		return "<task-result>"
	case KindStatus:
		return "<status>"
	case KindKnownRemotes:
		return "<known-remotes>"
	case KindOfflineAnnouncement:
		return "<offline-announcement>"
	case KindFileBlob:
		return "<file-blob>"
	case KindAck:
		return "<ack>"
	case KindEnd:
		return "<end>"
	default:
		return fmt.Sprintf("<!kind(%d)!>", uint8(k))
	}
}

// Message is one application-level unit handed to a SendQueue: a Kind
// tag plus an already-serialized payload. Encoding the payload (a
// Description, Status, or task cube) is the caller's concern; the send
// queue and reactor only move bytes.
type Message struct {
	Kind    Kind
	Seq     uint32
	Payload []byte
}
