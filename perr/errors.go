// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

// Package perr defines the typed error taxonomy shared across Paracube's
// components (spec.md §7).  Every error carries a Code, an optional peer
// id, and a message, and wraps an underlying cause where one exists.
package perr

import "fmt"

// Code classifies an error per the §7 taxonomy.
type Code uint32

const (
	// CodeParse marks a malformed formula.  Fatal for the root task.
	CodeParse Code = 1 + iota
	// CodeProtocol marks a frame CRC failure, unknown kind, or version
	// mismatch.  Closes the offending connection only.
	CodeProtocol
	// CodePeerUnreachable marks a handshake timeout or connection reset.
	CodePeerUnreachable
	// CodeEngineAborted marks a non-fatal local engine cancellation.
	CodeEngineAborted
	// CodeOutOfMemory marks resource exhaustion that must shed load.
	CodeOutOfMemory
	// CodeTimeout marks a lookahead or ACK timeout.
	CodeTimeout
)

func (c Code) String() string {
	switch c {
	case CodeParse:
		return "parse"
	case CodeProtocol:
		return "protocol"
	case CodePeerUnreachable:
		return "peer-unreachable"
	case CodeEngineAborted:
		return "engine-aborted"
	case CodeOutOfMemory:
		return "out-of-memory"
	case CodeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the concrete error type raised by Paracube's components.
type Error struct {
	Code   Code
	PeerID uint64 // 0 if not applicable
	Msg    string
	Err    error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.PeerID != 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s (peer %d): %s: %s", e.Code, e.PeerID, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s (peer %d): %s", e.Code, e.PeerID, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, perr.Code) style matching via a sentinel
// *Error carrying only a Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds an *Error with no peer id and no wrapped cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Newf builds an *Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error carrying an underlying cause.
func Wrap(code Code, peerID uint64, msg string, err error) *Error {
	return &Error{Code: code, PeerID: peerID, Msg: msg, Err: err}
}

// Sentinel is a zero-cause, zero-peer *Error usable with errors.Is to
// test only the Code of an arbitrary error in the chain.
func Sentinel(code Code) *Error { return &Error{Code: code} }
