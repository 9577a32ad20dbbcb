// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package beacon

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestLoopbackDeliversToAll(t *testing.T) {
	t.Parallel()

	hub := NewLoopback()
	a := hub.Join(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 4545})
	b := hub.Join(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 4545})

	a.Send([]byte("hello"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, m := range []Interface{a, b} {
		data, src, err := m.Recv(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, []byte("hello")) {
			t.Errorf("%v: got %q", m, data)
		}
		if src.String() != "10.0.0.1:4545" {
			t.Errorf("%v: unexpected source %v", m, src)
		}
	}
}

func TestLoopbackLeave(t *testing.T) {
	t.Parallel()

	hub := NewLoopback()
	a := hub.Join(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 4545})
	b := hub.Join(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 4545})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Serve(ctx)
		close(done)
	}()
	cancel()
	<-done

	a.Send([]byte("hello"))

	rctx, rcancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer rcancel()
	if _, _, err := b.Recv(rctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected nothing after leaving, got err %v", err)
	}
}

func TestLoopbackDropsOversized(t *testing.T) {
	t.Parallel()

	hub := NewLoopback()
	a := hub.Join(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 4545})
	a.Send(make([]byte, MaxPacketSize+1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, _, err := a.Recv(ctx); err == nil {
		t.Error("oversized packet should not be delivered")
	}
}

func TestCastSendNeverBlocks(t *testing.T) {
	t.Parallel()

	// Nothing drains the inbox; Send must still return.
	c := newCast("test")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*queueSize; i++ {
			c.Send([]byte{byte(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked")
	}
	if len(c.inbox) != queueSize {
		t.Errorf("expected a full inbox, got %d", len(c.inbox))
	}
}

func TestResolveGroup(t *testing.T) {
	t.Parallel()

	if _, err := resolveGroup("224.0.0.1:4545"); err != nil {
		t.Error(err)
	}
	if _, err := resolveGroup("10.0.0.1:4545"); err == nil {
		t.Error("unicast address should be rejected")
	}
}
