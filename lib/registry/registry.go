// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package registry keeps track of the peers known to work on the local
// project.
package registry

import (
	"cmp"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
	"github.com/tenderlove/ping-pong-pear/lib/events"
)

func init() {
	slogutil.RegisterPackage("Peer registry")
}

type Peer struct {
	ID       string
	Address  string
	Port     int
	LastSeen time.Time
}

// HostPort returns the peer's transfer endpoint as "host:port".
func (p Peer) HostPort() string {
	return net.JoinHostPort(p.Address, strconv.Itoa(p.Port))
}

type Registry struct {
	peers   *xsync.MapOf[string, Peer]
	evLog   events.Logger
	timeNow func() time.Time
}

func New(evLogger events.Logger) *Registry {
	return &Registry{
		peers:   xsync.NewMapOf[string, Peer](),
		evLog:   evLogger,
		timeNow: time.Now,
	}
}

// Upsert records that the peer with the given identifier is reachable at
// address:port. It returns true when the identifier was not known before.
func (r *Registry) Upsert(id, address string, port int) bool {
	now := r.timeNow()
	added := false
	r.peers.Compute(id, func(old Peer, loaded bool) (Peer, bool) {
		added = !loaded
		return Peer{ID: id, Address: address, Port: port, LastSeen: now}, false
	})

	if added {
		metricPeers.Inc()
		slog.Info("Discovered peer", slog.String("peer", id), slog.String("address", address), slog.Int("port", port))
		r.evLog.Log(events.PeerDiscovered, events.PeerEventData{ID: id, Address: address, Port: port})
	} else {
		slog.Debug("Refreshed peer", slog.String("peer", id), slog.String("address", address), slog.Int("port", port))
	}
	return added
}

// Remove forgets the peer. It returns false if the peer was not known.
func (r *Registry) Remove(id string) bool {
	p, ok := r.peers.LoadAndDelete(id)
	if !ok {
		return false
	}
	metricPeers.Dec()
	slog.Info("Removed peer", slog.String("peer", id))
	r.evLog.Log(events.PeerRemoved, events.PeerEventData{ID: id, Address: p.Address, Port: p.Port})
	return true
}

func (r *Registry) Get(id string) (Peer, bool) {
	return r.peers.Load(id)
}

// Snapshot returns a copy of the known peers, ordered by identifier.
func (r *Registry) Snapshot() []Peer {
	res := make([]Peer, 0, r.peers.Size())
	r.peers.Range(func(_ string, p Peer) bool {
		res = append(res, p)
		return true
	})
	slices.SortFunc(res, func(a, b Peer) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return res
}

func (r *Registry) Len() int {
	return r.peers.Size()
}
