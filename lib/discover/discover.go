// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"context"
	"errors"
	"iter"
	"net"
	"strconv"
	"sync"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
)

func init() {
	slogutil.RegisterPackage("Peer discovery")
}

// A Record is what a node advertises about itself.
type Record struct {
	Project    string
	InstanceID string
	Address    string
	Port       int
}

func (r Record) HostPort() string {
	return net.JoinHostPort(r.Address, strconv.Itoa(r.Port))
}

func (r Record) validate() error {
	switch {
	case r.Project == "":
		return errors.New("record has no project")
	case r.InstanceID == "":
		return errors.New("record has no instance id")
	case r.Address == "":
		return errors.New("record has no address")
	case r.Port < 1 || r.Port > 65535:
		return errors.New("record has an invalid port")
	}
	return nil
}

type EventType int

const (
	Added EventType = iota + 1
	Removed
)

func (t EventType) String() string {
	switch t {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

type Event struct {
	Type   EventType
	Record Record
}

// An Advertisement is withdrawn by calling Release.
type Advertisement interface {
	Release() error
}

type Discoverer interface {
	// Advertise publishes rec until the returned advertisement is
	// released or ctx is done.
	Advertise(ctx context.Context, rec Record) (Advertisement, error)
	// Resolve reports peers advertising project until ctx is done or the
	// caller stops iterating.
	Resolve(ctx context.Context, project string) iter.Seq[Event]
	String() string
}

// ownIDs is the set of instance identifiers currently advertised through
// a discoverer.
type ownIDs struct {
	mut sync.Mutex
	ids map[string]int
}

func (o *ownIDs) add(id string) {
	o.mut.Lock()
	defer o.mut.Unlock()
	if o.ids == nil {
		o.ids = make(map[string]int)
	}
	o.ids[id]++
}

func (o *ownIDs) remove(id string) {
	o.mut.Lock()
	defer o.mut.Unlock()
	if o.ids[id] <= 1 {
		delete(o.ids, id)
		return
	}
	o.ids[id]--
}

func (o *ownIDs) contains(id string) bool {
	o.mut.Lock()
	defer o.mut.Unlock()
	_, ok := o.ids[id]
	return ok
}

// First returns the first record added by d for project, or the error
// from ctx.
func First(ctx context.Context, d Discoverer, project string) (Record, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for ev := range d.Resolve(ctx, project) {
		if ev.Type == Added {
			return ev.Record, nil
		}
	}
	return Record{}, ctx.Err()
}
