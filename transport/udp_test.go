// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package transport

import (
	"net"
	"testing"
	"time"
)

type recordingUDPHandler struct {
	got chan []byte
}

func (h *recordingUDPHandler) OnAnnouncement(from *net.UDPAddr, kind Kind, payload []byte) {
	h.got <- payload
}

func TestUDPAnnouncerRoundTrip(t *testing.T) {
	h := &recordingUDPHandler{got: make(chan []byte, 1)}
	a, err := ListenUDP("127.0.0.1:0", h)
	if err != nil {
		t.Fatalf("ListenUDP: %s", err)
	}
	defer a.Close()
	go a.Serve()

	addr := a.LocalAddr().(*net.UDPAddr)
	if err := a.SendTo(addr, KindKnownRemotes, []byte("peer-list")); err != nil {
		t.Fatalf("SendTo: %s", err)
	}

	select {
	case payload := <-h.got:
		if string(payload) != "peer-list" {
			t.Fatalf("payload = %q, want peer-list", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for announcement")
	}
}

func TestDecodeDatagramRejectsTooShort(t *testing.T) {
	if _, _, err := decodeDatagram([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short datagram")
	}
}
