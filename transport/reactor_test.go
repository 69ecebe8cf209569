// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

type recordingHandler struct {
	id          uint64
	established chan Handshake
	frames      chan []byte
	disconnects chan uint64
}

func newRecordingHandler(id uint64) *recordingHandler {
	return &recordingHandler{
		id:          id,
		established: make(chan Handshake, 4),
		frames:      make(chan []byte, 4),
		disconnects: make(chan uint64, 4),
	}
}

func (h *recordingHandler) LocalHandshake() Handshake {
	return Handshake{Version: HandshakeVersion, PeerID: h.id, Workers: 1, Name: "t", Host: "127.0.0.1"}
}

func (h *recordingHandler) OnEstablished(peer Handshake, q *SendQueue) { h.established <- peer }
func (h *recordingHandler) OnFrame(peerID uint64, kind Kind, seq uint32, payload []byte) {
	h.frames <- payload
}
func (h *recordingHandler) OnDisconnected(peerID uint64) { h.disconnects <- peerID }

func TestReactorHandshakeAndFrameDelivery(t *testing.T) {
	serverLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %s", err)
	}

	serverHandler := newRecordingHandler(1)
	clientHandler := newRecordingHandler(2)

	server := NewReactor(serverLn, serverHandler)
	clientLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %s", err)
	}
	client := NewReactor(clientLn, clientHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)
	go client.Run(ctx)
	defer server.Shutdown()
	defer client.Shutdown()

	if err := client.Dial(ctx, serverLn.Addr().String()); err != nil {
		t.Fatalf("Dial: %s", err)
	}

	select {
	case hs := <-serverHandler.established:
		if hs.PeerID != 2 {
			t.Fatalf("server saw peer %d, want 2", hs.PeerID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw handshake")
	}
	select {
	case hs := <-clientHandler.established:
		if hs.PeerID != 1 {
			t.Fatalf("client saw peer %d, want 1", hs.PeerID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never saw handshake")
	}

	if _, ok := client.Send(1, KindTaskPush, []byte("cube")); !ok {
		t.Fatal("client.Send reported peer 1 unknown")
	}

	select {
	case payload := <-serverHandler.frames:
		if string(payload) != "cube" {
			t.Fatalf("payload = %q, want cube", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received frame")
	}
}
