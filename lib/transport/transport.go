// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package transport carries envelopes over a multicast beacon. It has one
// send path and one receive loop whose output is fanned out to any number
// of subscribers.
package transport

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"sync"

	"github.com/thejerf/suture/v4"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
	"github.com/tenderlove/ping-pong-pear/lib/beacon"
	"github.com/tenderlove/ping-pong-pear/lib/envelope"
	"github.com/tenderlove/ping-pong-pear/lib/svcutil"
)

func init() {
	slogutil.RegisterPackage("Envelope transport")
}

// SubscriberQueue is the number of received envelopes buffered per
// subscriber. Envelopes beyond that are dropped for the slow subscriber.
const SubscriberQueue = 64

// Received is an inbound envelope together with the address of the host
// that sent it.
type Received struct {
	Envelope envelope.Envelope
	Source   net.Addr
}

type Transport struct {
	*suture.Supervisor
	beacon beacon.Interface

	mut  sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	name string
	ch   chan Received
}

// New returns a Transport on top of the given beacon. The beacon is run by
// the Transport's supervisor.
func New(b beacon.Interface) *Transport {
	t := &Transport{
		Supervisor: suture.New("transport", svcutil.SpecWithDebugLogger("transport")),
		beacon:     b,
		subs:       make(map[*subscriber]struct{}),
	}
	t.Add(b)
	t.Add(svcutil.AsService(t.recvLoop, fmt.Sprintf("%s/recvLoop", t)))
	return t
}

// Broadcast encodes env and hands it to the beacon. It does not wait for
// anything to be sent.
func (t *Transport) Broadcast(env envelope.Envelope) error {
	bs, err := env.Marshal()
	if err != nil {
		metricPacketsDropped.WithLabelValues(reasonEncode).Inc()
		return fmt.Errorf("broadcast %s: %w", env.Kind, err)
	}
	t.beacon.Send(bs)
	metricPacketsSent.WithLabelValues(env.Kind.String()).Inc()
	slog.Debug("Broadcast envelope", slog.Any("envelope", env))
	return nil
}

// Receive returns the sequence of envelopes received from the time of the
// call until ctx is done or the caller stops iterating. The sequence can be
// iterated only once.
func (t *Transport) Receive(ctx context.Context, name string) iter.Seq[Received] {
	sub := t.subscribe(name)
	stop := context.AfterFunc(ctx, func() { t.unsubscribe(sub) })

	var once sync.Once
	return func(yield func(Received) bool) {
		used := true
		once.Do(func() { used = false })
		if used {
			return
		}
		defer func() {
			stop()
			t.unsubscribe(sub)
		}()

		for {
			select {
			case rec := <-sub.ch:
				if !yield(rec) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func (t *Transport) subscribe(name string) *subscriber {
	sub := &subscriber{
		name: name,
		ch:   make(chan Received, SubscriberQueue),
	}
	t.mut.Lock()
	t.subs[sub] = struct{}{}
	t.mut.Unlock()
	return sub
}

func (t *Transport) unsubscribe(sub *subscriber) {
	t.mut.Lock()
	delete(t.subs, sub)
	t.mut.Unlock()
}

func (t *Transport) recvLoop(ctx context.Context) error {
	for {
		bs, src, err := t.beacon.Recv(ctx)
		if err != nil {
			return err
		}

		env, err := envelope.Unmarshal(bs)
		if err != nil {
			slog.Debug("Dropping undecodable packet", slogutil.Address(src), slog.Int("bytes", len(bs)), slogutil.Error(err))
			metricPacketsDropped.WithLabelValues(reasonDecode).Inc()
			continue
		}
		metricPacketsReceived.WithLabelValues(env.Kind.String()).Inc()
		slog.Debug("Received envelope", slog.Any("envelope", env), slogutil.Address(src))

		t.dispatch(Received{Envelope: env, Source: src})
	}
}

func (t *Transport) dispatch(rec Received) {
	t.mut.Lock()
	defer t.mut.Unlock()
	for sub := range t.subs {
		select {
		case sub.ch <- rec:
		default:
			slog.Debug("Subscriber queue full, dropping envelope", slog.String("subscriber", sub.name), slog.Any("envelope", rec.Envelope))
			metricPacketsDropped.WithLabelValues(reasonOverflow).Inc()
		}
	}
}

func (t *Transport) String() string {
	return fmt.Sprintf("transport@%p", t)
}
