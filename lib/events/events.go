// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package events provides in-process event subscription and polling.
// Components log what happened to peers, notifications and fetches here;
// the verbose service and the tests subscribe.
package events

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
)

func init() {
	slogutil.RegisterPackage("Event bus")
}

type EventType int

const (
	Starting EventType = 1 << iota
	StartupComplete
	PeerDiscovered
	PeerRemoved
	CommitReceived
	FetchQueued
	FetchStarted
	FetchFinished
	PushSent

	AllEvents = (1 << iota) - 1
)

func (t EventType) String() string {
	switch t {
	case Starting:
		return "Starting"
	case StartupComplete:
		return "StartupComplete"
	case PeerDiscovered:
		return "PeerDiscovered"
	case PeerRemoved:
		return "PeerRemoved"
	case CommitReceived:
		return "CommitReceived"
	case FetchQueued:
		return "FetchQueued"
	case FetchStarted:
		return "FetchStarted"
	case FetchFinished:
		return "FetchFinished"
	case PushSent:
		return "PushSent"
	default:
		return "Unknown"
	}
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

const BufferSize = 64

var (
	ErrTimeout = errors.New("timeout")
	ErrClosed  = errors.New("closed")
)

type Event struct {
	// Per-subscription sequential event ID.
	SubscriptionID int `json:"id"`
	// Global ID of the event across all subscriptions
	GlobalID int       `json:"globalID"`
	Time     time.Time `json:"time"`
	Type     EventType `json:"type"`
	Data     any       `json:"data"`
}

type StartingEventData struct {
	Project    string `json:"project"`
	InstanceID string `json:"instanceID"`
}

type PeerEventData struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Port    int    `json:"port"`
}

type CommitEventData struct {
	InstanceID string `json:"instanceID"`
	Address    string `json:"address"`
	Port       int    `json:"port"`
}

type FetchEventData struct {
	URL   string  `json:"url"`
	Error *string `json:"error,omitempty"`
}

type PushEventData struct {
	Peer  string  `json:"peer"`
	URL   string  `json:"url"`
	Error *string `json:"error,omitempty"`
}

type Logger interface {
	Log(t EventType, data any)
	Subscribe(mask EventType) Subscription
}

type Subscription interface {
	C() <-chan Event
	Poll(timeout time.Duration) (Event, error)
	Unsubscribe()
}

type logger struct {
	subs         []*subscription
	nextGlobalID int
	mut          sync.Mutex
}

func NewLogger() Logger {
	return &logger{}
}

func (l *logger) Log(t EventType, data any) {
	l.mut.Lock()
	defer l.mut.Unlock()

	l.nextGlobalID++
	slog.Debug("Log event", "id", l.nextGlobalID, "type", t)

	e := Event{
		GlobalID: l.nextGlobalID,
		Time:     time.Now(),
		Type:     t,
		Data:     data,
	}

	for _, s := range l.subs {
		if s.mask&t == 0 {
			continue
		}
		e.SubscriptionID = s.nextID
		s.nextID++
		select {
		case s.events <- e:
		default:
			// The subscriber is not keeping up; drop the event
		}
	}
}

func (l *logger) Subscribe(mask EventType) Subscription {
	l.mut.Lock()
	defer l.mut.Unlock()

	s := &subscription{
		mask:   mask,
		events: make(chan Event, BufferSize),
		nextID: 1,
		owner:  l,
	}
	l.subs = append(l.subs, s)
	return s
}

func (l *logger) unsubscribe(s *subscription) {
	l.mut.Lock()
	defer l.mut.Unlock()
	for i, ss := range l.subs {
		if s == ss {
			last := len(l.subs) - 1
			l.subs[i] = l.subs[last]
			l.subs[last] = nil
			l.subs = l.subs[:last]
			close(s.events)
			return
		}
	}
}

type subscription struct {
	mask   EventType
	events chan Event
	nextID int
	owner  *logger
}

func (s *subscription) C() <-chan Event {
	return s.events
}

// Poll returns an event from the subscription or an error if the poll times
// out or the event channel is closed. Poll should not be called concurrently
// from multiple goroutines for a single subscription.
func (s *subscription) Poll(timeout time.Duration) (Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case e, ok := <-s.events:
		if !ok {
			return e, ErrClosed
		}
		return e, nil
	case <-timer.C:
		return Event{}, ErrTimeout
	}
}

func (s *subscription) Unsubscribe() {
	s.owner.unsubscribe(s)
}

type noopLogger struct{}

// NoopLogger discards everything and never delivers events.
var NoopLogger Logger = &noopLogger{}

func (*noopLogger) Log(EventType, any) {}

func (*noopLogger) Subscribe(EventType) Subscription {
	return &noopSubscription{}
}

type noopSubscription struct{}

func (*noopSubscription) C() <-chan Event {
	return nil
}

func (*noopSubscription) Poll(timeout time.Duration) (Event, error) {
	time.Sleep(timeout)
	return Event{}, ErrTimeout
}

func (*noopSubscription) Unsubscribe() {}

// Error returns a string pointer suitable for JSON marshalling errors. It
// retains the "null on success" semantics, but ensures the error result is a
// string regardless of the underlying concrete error type.
func Error(err error) *string {
	if err == nil {
		return nil
	}
	str := err.Error()
	return &str
}
