// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package broker

import (
	"github.com/irifrance/paracube/engine"
	"github.com/irifrance/paracube/path"
	"github.com/irifrance/paracube/perr"
	"github.com/irifrance/paracube/registry"
	"github.com/irifrance/paracube/task"
)

// Payload codecs for the Kinds the broker itself interprets
// (TaskPush/TaskResult/Status/KnownRemotes/OfflineAnnouncement). Hand
// packed the same way transport/frame.go packs its header: no
// encoding/binary, little-endian, one contiguous buffer built field by
// field.

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
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

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func getU16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

// pathHeaderLen is originator(8) + depth(1) + raw bits(8).
const pathHeaderLen = 17

func putTaskKey(b []byte, k task.Key) {
	putU64(b[0:8], k.Originator)
	b[8] = k.Path.Depth()
	putU64(b[9:17], k.Path.RawBits())
}

func getTaskKey(b []byte) task.Key {
	depth := b[8]
	return task.Key{
		Originator: getU64(b[0:8]),
		Path:       path.New(depth, getU64(b[9:17])),
	}
}

// encodeTaskPush renders a TaskPush payload: the task key, followed by
// its cube's literal count and the literals themselves.
func encodeTaskPush(k task.Key, cube []engine.Lit) []byte {
	buf := make([]byte, pathHeaderLen+4+4*len(cube))
	putTaskKey(buf, k)
	putU32(buf[pathHeaderLen:], uint32(len(cube)))
	off := pathHeaderLen + 4
	for _, lit := range cube {
		putU32(buf[off:], uint32(lit))
		off += 4
	}
	return buf
}

func decodeTaskPush(payload []byte) (task.Key, []engine.Lit, error) {
	if len(payload) < pathHeaderLen+4 {
		return task.Key{}, nil, perr.New(perr.CodeProtocol, "broker: short task-push payload")
	}
	k := getTaskKey(payload)
	n := getU32(payload[pathHeaderLen:])
	off := pathHeaderLen + 4
	want := off + 4*int(n)
	if len(payload) < want {
		return task.Key{}, nil, perr.New(perr.CodeProtocol, "broker: truncated task-push cube")
	}
	cube := make([]engine.Lit, n)
	for i := range cube {
		cube[i] = int32(getU32(payload[off:]))
		off += 4
	}
	return k, cube, nil
}

// encodeTaskResult renders a TaskResult payload: the task key plus its
// one-byte Result code.
func encodeTaskResult(k task.Key, result task.Result) []byte {
	buf := make([]byte, pathHeaderLen+1)
	putTaskKey(buf, k)
	buf[pathHeaderLen] = byte(result)
	return buf
}

func decodeTaskResult(payload []byte) (task.Key, task.Result, error) {
	if len(payload) < pathHeaderLen+1 {
		return task.Key{}, 0, perr.New(perr.CodeProtocol, "broker: short task-result payload")
	}
	return getTaskKey(payload), task.Result(payload[pathHeaderLen]), nil
}

// encodeStatus renders a registry.Status as originator-count followed
// by fixed-size per-originator records.
func encodeStatus(s registry.Status) []byte {
	buf := make([]byte, 4+len(s.SolverInstances)*18)
	putU32(buf, uint32(len(s.SolverInstances)))
	off := 4
	for originator, si := range s.SolverInstances {
		putU64(buf[off:], originator)
		if si.FormulaReceived {
			buf[off+8] = 1
		}
		if si.FormulaParsed {
			buf[off+9] = 1
		}
		putU64(buf[off+10:], si.WorkQueueSize)
		off += 18
	}
	return buf
}

func decodeStatus(payload []byte) (registry.Status, error) {
	if len(payload) < 4 {
		return registry.Status{}, perr.New(perr.CodeProtocol, "broker: short status payload")
	}
	n := int(getU32(payload))
	want := 4 + n*18
	if len(payload) < want {
		return registry.Status{}, perr.New(perr.CodeProtocol, "broker: truncated status payload")
	}
	status := registry.Status{SolverInstances: make(map[uint64]registry.SolverInstance, n)}
	off := 4
	for i := 0; i < n; i++ {
		originator := getU64(payload[off:])
		status.SolverInstances[originator] = registry.SolverInstance{
			FormulaReceived: payload[off+8] != 0,
			FormulaParsed:   payload[off+9] != 0,
			WorkQueueSize:   getU64(payload[off+10:]),
		}
		off += 18
	}
	return status, nil
}

// encodeKnownRemotes renders a []registry.RemoteInfo as a count
// followed by length-prefixed-host records.
func encodeKnownRemotes(remotes []registry.RemoteInfo) []byte {
	size := 4
	for _, r := range remotes {
		size += 8 + 2 + 1 + len(r.Host)
	}
	buf := make([]byte, size)
	putU32(buf, uint32(len(remotes)))
	off := 4
	for _, r := range remotes {
		putU64(buf[off:], r.PeerID)
		putU16(buf[off+8:], r.TCPPort)
		host := []byte(r.Host)
		buf[off+10] = byte(len(host))
		copy(buf[off+11:], host)
		off += 11 + len(host)
	}
	return buf
}

func decodeKnownRemotes(payload []byte) ([]registry.RemoteInfo, error) {
	if len(payload) < 4 {
		return nil, perr.New(perr.CodeProtocol, "broker: short known-remotes payload")
	}
	n := int(getU32(payload))
	out := make([]registry.RemoteInfo, 0, n)
	off := 4
	for i := 0; i < n; i++ {
		if off+11 > len(payload) {
			return nil, perr.New(perr.CodeProtocol, "broker: truncated known-remotes record")
		}
		peerID := getU64(payload[off:])
		tcpPort := getU16(payload[off+8:])
		hostLen := int(payload[off+10])
		off += 11
		if off+hostLen > len(payload) {
			return nil, perr.New(perr.CodeProtocol, "broker: truncated known-remotes host")
		}
		host := string(payload[off : off+hostLen])
		off += hostLen
		out = append(out, registry.RemoteInfo{PeerID: peerID, Host: host, TCPPort: tcpPort})
	}
	return out, nil
}

// encodeOffline renders an OfflineAnnouncement payload: just the
// originator whose root task has finished and gone away.
func encodeOffline(originator uint64) []byte {
	buf := make([]byte, 8)
	putU64(buf, originator)
	return buf
}

func decodeOffline(payload []byte) (uint64, error) {
	if len(payload) < 8 {
		return 0, perr.New(perr.CodeProtocol, "broker: short offline-announcement payload")
	}
	return getU64(payload), nil
}
