// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package beacon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// A Loopback is an in-process stand-in for a multicast group. Every
// datagram sent by a member is delivered to all members, including the
// sender, as multicast loopback would.
type Loopback struct {
	mut     sync.Mutex
	members map[*loopbackMember]struct{}
}

func NewLoopback() *Loopback {
	return &Loopback{
		members: make(map[*loopbackMember]struct{}),
	}
}

// Join returns a new member of the group. Datagrams it sends appear to
// come from src.
func (l *Loopback) Join(src net.Addr) Interface {
	m := &loopbackMember{
		hub:    l,
		src:    src,
		outbox: make(chan recv, queueSize),
	}
	l.mut.Lock()
	l.members[m] = struct{}{}
	l.mut.Unlock()
	return m
}

func (l *Loopback) deliver(data []byte, src net.Addr) {
	l.mut.Lock()
	defer l.mut.Unlock()
	for m := range l.members {
		c := make([]byte, len(data))
		copy(c, data)
		select {
		case m.outbox <- recv{c, src}:
		default:
			slog.Debug("Dropping incoming packet, receive queue full", slog.String("beacon", m.String()))
		}
	}
}

func (l *Loopback) leave(m *loopbackMember) {
	l.mut.Lock()
	delete(l.members, m)
	l.mut.Unlock()
}

type loopbackMember struct {
	hub    *Loopback
	src    net.Addr
	outbox chan recv
}

// Serve keeps the member in the group until ctx is done.
func (m *loopbackMember) Serve(ctx context.Context) error {
	<-ctx.Done()
	m.hub.leave(m)
	return ctx.Err()
}

func (m *loopbackMember) Send(data []byte) {
	if len(data) > MaxPacketSize {
		slog.Debug("Dropping oversized packet", slog.String("beacon", m.String()), slog.Int("bytes", len(data)))
		return
	}
	m.hub.deliver(data, m.src)
}

func (m *loopbackMember) Recv(ctx context.Context) ([]byte, net.Addr, error) {
	select {
	case rec := <-m.outbox:
		return rec.data, rec.src, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (*loopbackMember) Error() error {
	return nil
}

func (m *loopbackMember) String() string {
	return fmt.Sprintf("loopbackBeacon@%s", m.src)
}
