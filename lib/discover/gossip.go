// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
	"github.com/tenderlove/ping-pong-pear/lib/envelope"
	"github.com/tenderlove/ping-pong-pear/lib/rand"
	"github.com/tenderlove/ping-pong-pear/lib/transport"
)

const (
	strategyGossip = "gossip"

	DefaultAnnounceInterval = 30 * time.Second
)

type Transport interface {
	Broadcast(env envelope.Envelope) error
	Receive(ctx context.Context, name string) iter.Seq[transport.Received]
}

type Gossip struct {
	transport Transport
	interval  time.Duration
	own       ownIDs
}

func NewGossip(t Transport, interval time.Duration) *Gossip {
	if interval <= 0 {
		interval = DefaultAnnounceInterval
	}
	return &Gossip{
		transport: t,
		interval:  interval,
	}
}

func (g *Gossip) Advertise(ctx context.Context, rec Record) (Advertisement, error) {
	if err := rec.validate(); err != nil {
		return nil, err
	}

	// Ask who is out there, so that they introduce themselves quickly.
	if err := g.transport.Broadcast(envelope.Locate(rec.Project)); err != nil {
		return nil, err
	}
	ann := envelope.Announce(rec.Project, rec.InstanceID, rec.Address, rec.Port)
	if err := g.transport.Broadcast(ann); err != nil {
		return nil, err
	}
	metricAdvertisements.WithLabelValues(strategyGossip).Inc()
	g.own.add(rec.InstanceID)

	ctx, cancel := context.WithCancel(ctx)
	a := &gossipAdvertisement{
		cancel: cancel,
		done:   make(chan struct{}),
		release: func() {
			g.own.remove(rec.InstanceID)
		},
	}
	go func() {
		defer close(a.done)
		for {
			select {
			case <-time.After(rand.Jitter(g.interval, 0.1)):
			case <-ctx.Done():
				return
			}
			if err := g.transport.Broadcast(ann); err != nil {
				slog.Warn("Failed to announce", slog.String("project", rec.Project), slogutil.Error(err))
				continue
			}
			metricAdvertisements.WithLabelValues(strategyGossip).Inc()
		}
	}()
	slog.Debug("Advertising over gossip", slog.String("project", rec.Project), slog.String("endpoint", rec.HostPort()))
	return a, nil
}

type gossipAdvertisement struct {
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	release func()
}

func (a *gossipAdvertisement) Release() error {
	a.once.Do(func() {
		a.cancel()
		<-a.done
		a.release()
	})
	return nil
}

func (g *Gossip) Resolve(ctx context.Context, project string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		// Subscribe before asking, so that no answer is missed.
		seq := g.transport.Receive(ctx, "gossip.resolve")
		if err := g.transport.Broadcast(envelope.Locate(project)); err != nil {
			slog.Warn("Failed to send locate", slog.String("project", project), slogutil.Error(err))
		}

		seen := make(map[string]string)
		for rec := range seq {
			env := rec.Envelope
			if env.Kind != envelope.KindAnnounce || env.Project != project {
				continue
			}
			if env.InstanceID == "" {
				metricSkipped.WithLabelValues(strategyGossip).Inc()
				continue
			}
			if g.own.contains(env.InstanceID) {
				continue
			}
			endpoint := env.HostPort()
			if seen[env.InstanceID] == endpoint {
				continue
			}
			seen[env.InstanceID] = endpoint

			metricEvents.WithLabelValues(strategyGossip, Added.String()).Inc()
			ev := Event{Type: Added, Record: Record{Project: env.Project, InstanceID: env.InstanceID, Address: env.Address, Port: env.Port}}
			if !yield(ev) {
				return
			}
		}
	}
}

func (g *Gossip) String() string {
	return fmt.Sprintf("discover.Gossip@%p", g)
}
