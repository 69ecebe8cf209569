// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package transport

import (
	"testing"
	"time"
)

func TestSendEnqueuesInFIFOOrder(t *testing.T) {
	q := NewSendQueue(time.Second)
	q.Send(KindTaskPush, []byte("a"))
	q.Send(KindTaskPush, []byte("b"))

	msg, ok := q.Front()
	if !ok || string(msg.Payload) != "a" {
		t.Fatalf("Front = %+v, want payload a", msg)
	}
	q.PopFront()

	msg, ok = q.Front()
	if !ok || string(msg.Payload) != "b" {
		t.Fatalf("Front = %+v, want payload b", msg)
	}
}

func TestHandleAckClearsWaitingEntry(t *testing.T) {
	q := NewSendQueue(time.Second)
	seq := q.Send(KindTaskResult, []byte("r"))
	q.PopFront()
	if q.Empty() {
		t.Fatal("queue should not be empty while awaiting ack")
	}
	q.HandleAck(seq)
	if !q.Empty() {
		t.Fatal("queue should be empty once acked")
	}
}

func TestHandleAckUnknownSeqIsSilentlyDropped(t *testing.T) {
	q := NewSendQueue(time.Second)
	q.HandleAck(999) // must not panic
}

func TestEmptyRetransmitsAgedEntries(t *testing.T) {
	q := NewSendQueue(10 * time.Millisecond)
	q.Send(KindStatus, []byte("s"))
	q.PopFront()

	time.Sleep(10 * time.Millisecond) // past half the timeout

	if q.Empty() {
		t.Fatal("aged entry should have been retransmitted, not reported empty")
	}
	msg, ok := q.Front()
	if !ok || msg.Kind != KindStatus {
		t.Fatalf("expected retransmitted status entry back on queued, got %+v ok=%v", msg, ok)
	}
}

func TestClearConnectionRequeuesInFlightInOrder(t *testing.T) {
	q := NewSendQueue(time.Second)
	q.Send(KindTaskPush, []byte("first"))
	q.PopFront()
	q.Send(KindTaskPush, []byte("second"))
	q.PopFront()

	q.RegisterConnection(&TCPConnection{})
	if !q.AvailableToSend() {
		t.Fatal("expected AvailableToSend after RegisterConnection")
	}

	q.ClearConnection()
	if q.AvailableToSend() {
		t.Fatal("expected AvailableToSend false after ClearConnection")
	}

	msg, ok := q.Front()
	if !ok || string(msg.Payload) != "first" {
		t.Fatalf("Front after clear = %+v, want first", msg)
	}
}
