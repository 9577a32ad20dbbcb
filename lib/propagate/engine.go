// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package propagate decides what to do about received envelopes and
// tells peers about local commits.
package propagate

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
	"github.com/tenderlove/ping-pong-pear/lib/envelope"
	"github.com/tenderlove/ping-pong-pear/lib/events"
	"github.com/tenderlove/ping-pong-pear/lib/queue"
	"github.com/tenderlove/ping-pong-pear/lib/registry"
	"github.com/tenderlove/ping-pong-pear/lib/transport"
)

func init() {
	slogutil.RegisterPackage("Commit propagation")
}

// Self describes the local node as peers see it.
type Self struct {
	Project    string
	InstanceID string
	Address    string
	Port       int
}

type Transport interface {
	Broadcast(env envelope.Envelope) error
	Receive(ctx context.Context, name string) iter.Seq[transport.Received]
}

type Enqueuer interface {
	Enqueue(job queue.Job) bool
}

// Locate requests are answered at most this often, with some burst.
const (
	locateReplyInterval = time.Second
	locateReplyBurst    = 4
)

type Engine struct {
	self      Self
	transport Transport
	registry  *registry.Registry
	queue     Enqueuer
	pusher    Pusher
	evLog     events.Logger
	limiter   *rate.Limiter
}

func New(self Self, t Transport, reg *registry.Registry, q Enqueuer, p Pusher, evLogger events.Logger) *Engine {
	return &Engine{
		self:      self,
		transport: t,
		registry:  reg,
		queue:     q,
		pusher:    p,
		evLog:     evLogger,
		limiter:   rate.NewLimiter(rate.Every(locateReplyInterval), locateReplyBurst),
	}
}

func (e *Engine) Self() Self {
	return e.self
}

// LocalCommit tells every listening peer that we have something new.
func (e *Engine) LocalCommit() error {
	env := envelope.Commit(e.self.InstanceID, e.self.Project, e.self.Address, e.self.Port)
	if err := e.transport.Broadcast(env); err != nil {
		return err
	}
	slog.Info("Announced local commit", slog.String("project", e.self.Project))
	return nil
}

// Announce introduces us to peers without being asked.
func (e *Engine) Announce() error {
	return e.transport.Broadcast(envelope.Announce(e.self.Project, e.self.InstanceID, e.self.Address, e.self.Port))
}

// Serve handles received envelopes, one at a time in arrival order, until
// ctx is done.
func (e *Engine) Serve(ctx context.Context) error {
	return e.HandleAll(ctx, e.transport.Receive(ctx, "engine"))
}

// HandleAll handles envelopes from a subscription taken earlier, until
// ctx is done or the subscription ends.
func (e *Engine) HandleAll(ctx context.Context, received iter.Seq[transport.Received]) error {
	for rec := range received {
		e.Handle(rec)
	}
	return ctx.Err()
}

// Handle acts on a single received envelope. Received envelopes are never
// relayed; every group member already got it.
func (e *Engine) Handle(rec transport.Received) {
	env := rec.Envelope
	l := slog.With(slog.String("kind", env.Kind.String()), slogutil.Address(rec.Source))

	if env.Project != e.self.Project {
		l.Debug("Ignoring envelope for other project", slog.String("project", env.Project))
		metricEnvelopes.WithLabelValues(env.Kind.String(), resultOtherProject).Inc()
		return
	}

	switch env.Kind {
	case envelope.KindCommit:
		if env.InstanceID == e.self.InstanceID {
			l.Debug("Ignoring our own commit")
			metricEnvelopes.WithLabelValues(env.Kind.String(), resultSelf).Inc()
			return
		}
		l.Info("Peer has a new commit", slog.String("peer", env.InstanceID), slog.String("endpoint", env.HostPort()))
		e.evLog.Log(events.CommitReceived, events.CommitEventData{InstanceID: env.InstanceID, Address: env.Address, Port: env.Port})
		e.registry.Upsert(env.InstanceID, env.Address, env.Port)
		e.queue.Enqueue(queue.Job{Address: env.Address, Port: env.Port})

	case envelope.KindLocate:
		if !e.limiter.Allow() {
			l.Debug("Not answering locate, rate limited")
			metricEnvelopes.WithLabelValues(env.Kind.String(), resultLimited).Inc()
			return
		}
		if err := e.Announce(); err != nil {
			l.Warn("Failed to answer locate", slogutil.Error(err))
			metricEnvelopes.WithLabelValues(env.Kind.String(), resultFailed).Inc()
			return
		}
		l.Debug("Answered locate")

	case envelope.KindAnnounce:
		id := peerID(env)
		if id == e.self.InstanceID || (env.InstanceID == "" && env.Address == e.self.Address && env.Port == e.self.Port) {
			metricEnvelopes.WithLabelValues(env.Kind.String(), resultSelf).Inc()
			return
		}
		e.registry.Upsert(id, env.Address, env.Port)

	default:
		l.Debug("Ignoring unknown envelope")
		metricEnvelopes.WithLabelValues(env.Kind.String(), resultIgnored).Inc()
		return
	}

	metricEnvelopes.WithLabelValues(env.Kind.String(), resultHandled).Inc()
}

// peerID is the registry key for an announcing peer. Announcements
// without an instance identifier are keyed by their endpoint.
func peerID(env envelope.Envelope) string {
	if env.InstanceID != "" {
		return env.InstanceID
	}
	return env.HostPort()
}

func (e *Engine) String() string {
	return fmt.Sprintf("propagate.Engine@%p", e)
}
