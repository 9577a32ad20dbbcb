// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package propagate

import (
	"context"
	"errors"
	"iter"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"

	"github.com/tenderlove/ping-pong-pear/lib/envelope"
	"github.com/tenderlove/ping-pong-pear/lib/events"
	"github.com/tenderlove/ping-pong-pear/lib/queue"
	"github.com/tenderlove/ping-pong-pear/lib/registry"
	"github.com/tenderlove/ping-pong-pear/lib/transport"
)

type fakeTransport struct {
	mut     sync.Mutex
	sent    []envelope.Envelope
	inbound []transport.Received
}

func (f *fakeTransport) Broadcast(env envelope.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	f.mut.Lock()
	defer f.mut.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) Receive(_ context.Context, _ string) iter.Seq[transport.Received] {
	return func(yield func(transport.Received) bool) {
		for _, rec := range f.inbound {
			if !yield(rec) {
				return
			}
		}
	}
}

func (f *fakeTransport) Sent() []envelope.Envelope {
	f.mut.Lock()
	defer f.mut.Unlock()
	return append([]envelope.Envelope(nil), f.sent...)
}

type fakeQueue struct {
	mut  sync.Mutex
	jobs []queue.Job
}

func (q *fakeQueue) Enqueue(job queue.Job) bool {
	q.mut.Lock()
	defer q.mut.Unlock()
	q.jobs = append(q.jobs, job)
	return true
}

func (q *fakeQueue) Jobs() []queue.Job {
	q.mut.Lock()
	defer q.mut.Unlock()
	return append([]queue.Job(nil), q.jobs...)
}

var (
	selfX = Self{Project: "demo", InstanceID: "id-X", Address: "10.0.0.5", Port: 8080}
	selfY = Self{Project: "demo", InstanceID: "id-Y", Address: "10.0.0.6", Port: 8081}
	srcX  = &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 4545}
)

func newEngine(self Self) (*Engine, *fakeTransport, *registry.Registry, *fakeQueue) {
	t := &fakeTransport{}
	reg := registry.New(events.NoopLogger)
	q := &fakeQueue{}
	return New(self, t, reg, q, nil, events.NoopLogger), t, reg, q
}

func TestLocalCommit(t *testing.T) {
	t.Parallel()

	e, tr, _, _ := newEngine(selfX)
	if err := e.LocalCommit(); err != nil {
		t.Fatal(err)
	}
	expected := []envelope.Envelope{envelope.Commit("id-X", "demo", "10.0.0.5", 8080)}
	if diff, equal := messagediff.PrettyDiff(expected, tr.Sent()); !equal {
		t.Error(diff)
	}
}

func TestCommitFromPeerIsFetched(t *testing.T) {
	t.Parallel()

	e, tr, reg, q := newEngine(selfY)
	e.Handle(transport.Received{Envelope: envelope.Commit("id-X", "demo", "10.0.0.5", 8080), Source: srcX})

	expected := []queue.Job{{Address: "10.0.0.5", Port: 8080}}
	if diff, equal := messagediff.PrettyDiff(expected, q.Jobs()); !equal {
		t.Error(diff)
	}
	if p, ok := reg.Get("id-X"); !ok || p.HostPort() != "10.0.0.5:8080" {
		t.Errorf("peer not registered: %v %v", p, ok)
	}
	if len(tr.Sent()) != 0 {
		t.Errorf("commits must not be relayed, sent %v", tr.Sent())
	}
}

func TestOwnCommitIsIgnored(t *testing.T) {
	t.Parallel()

	e, tr, reg, q := newEngine(selfX)
	e.Handle(transport.Received{Envelope: envelope.Commit("id-X", "demo", "10.0.0.5", 8080), Source: srcX})

	if len(q.Jobs()) != 0 {
		t.Errorf("own commit must not be fetched, got %v", q.Jobs())
	}
	if reg.Len() != 0 {
		t.Errorf("own commit must not register a peer, got %v", reg.Snapshot())
	}
	if len(tr.Sent()) != 0 {
		t.Errorf("nothing should be sent, got %v", tr.Sent())
	}
}

func TestOtherProjectIsIgnored(t *testing.T) {
	t.Parallel()

	e, tr, reg, q := newEngine(Self{Project: "other", InstanceID: "id-Z", Address: "10.0.0.7", Port: 8082})
	for _, env := range []envelope.Envelope{
		envelope.Commit("id-X", "demo", "10.0.0.5", 8080),
		envelope.Announce("demo", "id-X", "10.0.0.5", 8080),
		envelope.Locate("demo"),
	} {
		e.Handle(transport.Received{Envelope: env, Source: srcX})
	}

	if len(q.Jobs()) != 0 {
		t.Errorf("queue mutated: %v", q.Jobs())
	}
	if reg.Len() != 0 {
		t.Errorf("registry mutated: %v", reg.Snapshot())
	}
	if len(tr.Sent()) != 0 {
		t.Errorf("nothing should be sent, got %v", tr.Sent())
	}
}

func TestAnnounceIsIdempotent(t *testing.T) {
	t.Parallel()

	e, _, reg, q := newEngine(selfY)
	e.Handle(transport.Received{Envelope: envelope.Announce("demo", "id-X", "10.0.0.5", 8080), Source: srcX})
	e.Handle(transport.Received{Envelope: envelope.Announce("demo", "id-X", "10.0.0.5", 9090), Source: srcX})

	peers := reg.Snapshot()
	if len(peers) != 1 {
		t.Fatalf("expected one peer, got %v", peers)
	}
	if peers[0].Port != 9090 {
		t.Errorf("expected updated port, got %d", peers[0].Port)
	}
	if len(q.Jobs()) != 0 {
		t.Errorf("announce must not fetch, got %v", q.Jobs())
	}
}

func TestAnnounceWithoutID(t *testing.T) {
	t.Parallel()

	e, _, reg, _ := newEngine(selfY)
	e.Handle(transport.Received{Envelope: envelope.Announce("demo", "", "10.0.0.5", 8080), Source: srcX})
	// Our own endpoint, without an ID
	e.Handle(transport.Received{Envelope: envelope.Announce("demo", "", "10.0.0.6", 8081), Source: srcX})

	if _, ok := reg.Get("10.0.0.5:8080"); !ok || reg.Len() != 1 {
		t.Errorf("unexpected registry %v", reg.Snapshot())
	}
}

func TestOwnAnnounceIsIgnored(t *testing.T) {
	t.Parallel()

	e, _, reg, _ := newEngine(selfX)
	e.Handle(transport.Received{Envelope: envelope.Announce("demo", "id-X", "10.0.0.5", 8080), Source: srcX})
	if reg.Len() != 0 {
		t.Errorf("registered ourselves: %v", reg.Snapshot())
	}
}

func TestLocateIsAnswered(t *testing.T) {
	t.Parallel()

	e, tr, _, _ := newEngine(selfX)
	for i := 0; i < 2*locateReplyBurst; i++ {
		e.Handle(transport.Received{Envelope: envelope.Locate("demo"), Source: srcX})
	}

	sent := tr.Sent()
	if len(sent) < 1 || len(sent) > locateReplyBurst+1 {
		t.Fatalf("expected rate limited answers, got %d", len(sent))
	}
	expected := envelope.Announce("demo", "id-X", "10.0.0.5", 8080)
	if sent[0] != expected {
		t.Errorf("got %v, expected %v", sent[0], expected)
	}
}

func TestServeHandlesInOrder(t *testing.T) {
	t.Parallel()

	e, tr, _, q := newEngine(selfY)
	tr.inbound = []transport.Received{
		{Envelope: envelope.Commit("id-A", "demo", "10.0.0.1", 1)},
		{Envelope: envelope.Commit("id-Y", "demo", "10.0.0.6", 8081)},
		{Envelope: envelope.Commit("id-B", "demo", "10.0.0.2", 2)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error %v", err)
	}

	expected := []queue.Job{{Address: "10.0.0.1", Port: 1}, {Address: "10.0.0.2", Port: 2}}
	if diff, equal := messagediff.PrettyDiff(expected, q.Jobs()); !equal {
		t.Error(diff)
	}
}

type fakePusher struct {
	mut    sync.Mutex
	pushed []string
	fail   map[string]bool
}

func (p *fakePusher) Push(_ context.Context, peer registry.Peer, self Self) error {
	p.mut.Lock()
	defer p.mut.Unlock()
	p.pushed = append(p.pushed, peer.ID)
	if p.fail[peer.ID] {
		return errors.New("connection refused")
	}
	return nil
}

func TestNotifyAllIsolatesFailures(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	reg := registry.New(events.NoopLogger)
	reg.Upsert("A", "10.0.0.1", 1)
	reg.Upsert("B", "10.0.0.2", 2)
	p := &fakePusher{fail: map[string]bool{"A": true}}

	evLogger := events.NewLogger()
	sub := evLogger.Subscribe(events.PushSent)
	defer sub.Unsubscribe()

	e := New(selfX, tr, reg, &fakeQueue{}, p, evLogger)
	err := e.NotifyAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "A:") || strings.Contains(err.Error(), "B:") {
		t.Errorf("expected an error for A only, got %v", err)
	}
	if len(p.pushed) != 2 {
		t.Errorf("expected a push to each peer, got %v", p.pushed)
	}

	results := make(map[string]bool)
	for i := 0; i < 2; i++ {
		ev, err := sub.Poll(time.Second)
		if err != nil {
			t.Fatal(err)
		}
		data := ev.Data.(events.PushEventData)
		results[data.Peer] = data.Error == nil
	}
	if results["A"] || !results["B"] {
		t.Errorf("unexpected push results %v", results)
	}
}

func TestNotifyAllNoPeers(t *testing.T) {
	t.Parallel()

	p := &fakePusher{}
	e := New(selfX, &fakeTransport{}, registry.New(events.NoopLogger), &fakeQueue{}, p, events.NoopLogger)
	if err := e.NotifyAll(context.Background()); err != nil {
		t.Error(err)
	}
	if len(p.pushed) != 0 {
		t.Errorf("unexpected pushes %v", p.pushed)
	}
}

func TestHTTPPusher(t *testing.T) {
	t.Parallel()

	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/pull" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		got <- r.FormValue("host") + ":" + r.FormValue("port")
	}))
	defer srv.Close()

	addr := srv.Listener.Addr().(*net.TCPAddr)
	peer := registry.Peer{ID: "A", Address: addr.IP.String(), Port: addr.Port}

	if err := NewHTTPPusher(time.Second).Push(context.Background(), peer, selfX); err != nil {
		t.Fatal(err)
	}
	if s := <-got; s != "10.0.0.5:8080" {
		t.Errorf("unexpected form %q", s)
	}

	srv.Close()
	if err := NewHTTPPusher(time.Second).Push(context.Background(), peer, selfX); err == nil {
		t.Error("push to closed server should fail")
	}
}
