// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package transport

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	want := Frame{Kind: KindTaskPush, Seq: 42, Payload: []byte("cube literals go here")}
	buf, err := want.Encode()
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}
	got, err := ReadFrame(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("ReadFrame: %s", err)
	}
	if got.Kind != want.Kind || got.Seq != want.Seq || !bytes.Equal(got.Payload, want.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestReadFrameRejectsBadMagic(t *testing.T) {
	buf, _ := Frame{Kind: KindStatus, Seq: 1}.Encode()
	buf[0] ^= 0xFF
	if _, err := ReadFrame(bytes.NewReader(buf)); err == nil {
		t.Fatal("expected error on corrupted magic")
	}
}

func TestReadFrameRejectsBadCRC(t *testing.T) {
	buf, _ := Frame{Kind: KindStatus, Seq: 1, Payload: []byte("x")}.Encode()
	buf[len(buf)-1] ^= 0xFF
	if _, err := ReadFrame(bytes.NewReader(buf)); err == nil {
		t.Fatal("expected error on corrupted CRC")
	}
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	f := Frame{Kind: KindFileBlob, Payload: make([]byte, maxFramePayload+1)}
	if _, err := f.Encode(); err == nil {
		t.Fatal("expected error for payload over maxFramePayload")
	}
}

func TestChunkSplitsOversizePayload(t *testing.T) {
	payload := make([]byte, maxFramePayload*2+10)
	for i := range payload {
		payload[i] = byte(i)
	}
	frames := Chunk(KindFileBlob, 7, payload)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for _, f := range frames[:len(frames)-1] {
		if f.Flags&FlagChunked == 0 {
			t.Fatal("non-final chunk missing FlagChunked")
		}
		if f.Seq != 7 {
			t.Fatalf("chunk seq = %d, want 7", f.Seq)
		}
	}
	if frames[len(frames)-1].Flags&FlagChunked != 0 {
		t.Fatal("final chunk must not carry FlagChunked")
	}

	asm := NewAssembler()
	var reassembled []byte
	for _, f := range frames {
		kind, payload, ok := asm.Feed(f)
		if ok {
			reassembled = payload
			if kind != KindFileBlob {
				t.Fatalf("kind = %s, want %s", kind, KindFileBlob)
			}
		}
	}
	if !bytes.Equal(reassembled, payload) {
		t.Fatal("reassembled payload does not match original")
	}
}

func TestChunkSinglePayloadPassesThrough(t *testing.T) {
	frames := Chunk(KindStatus, 3, []byte("small"))
	if len(frames) != 1 || frames[0].Flags&FlagChunked != 0 {
		t.Fatalf("expected one unchunked frame, got %+v", frames)
	}
}
