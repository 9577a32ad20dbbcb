// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package envelope defines the gossip messages exchanged between nodes and
// their wire encoding.
//
// A packet is a four byte big endian magic followed by a protobuf wire
// format body. Field numbers and wire types make the body self describing;
// unknown fields are skipped so that newer nodes may add fields.
//
//	1: kind        (varint)
//	2: project     (bytes)
//	3: instance_id (bytes)
//	4: address     (bytes)
//	5: port        (varint)
package envelope

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

const (
	Magic = 0x70707031 // "ppp1"

	// MaxSize is the largest encoded envelope; receivers read datagrams
	// into a buffer of this size.
	MaxSize = 1024
)

var (
	ErrBadMagic    = errors.New("envelope: incorrect magic number")
	ErrTooLarge    = errors.New("envelope: encoded size exceeds maximum")
	ErrShort       = errors.New("envelope: packet too short")
	ErrUnknownKind = errors.New("envelope: unknown kind")
	ErrInvalid     = errors.New("envelope: missing required field")
)

type Kind int

const (
	KindLocate Kind = iota + 1
	KindAnnounce
	KindCommit
)

func (k Kind) String() string {
	switch k {
	case KindLocate:
		return "locate"
	case KindAnnounce:
		return "announce"
	case KindCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// Envelope is the tagged union of Locate, Announce and Commit. Which
// fields are meaningful depends on Kind:
//
//	Locate:   Project
//	Announce: Project, Address, Port and, when known, InstanceID
//	Commit:   InstanceID, Project, Address, Port
type Envelope struct {
	Kind       Kind
	Project    string
	InstanceID string
	Address    string
	Port       int
}

func Locate(project string) Envelope {
	return Envelope{Kind: KindLocate, Project: project}
}

func Announce(project, instanceID, address string, port int) Envelope {
	return Envelope{Kind: KindAnnounce, Project: project, InstanceID: instanceID, Address: address, Port: port}
}

func Commit(instanceID, project, address string, port int) Envelope {
	return Envelope{Kind: KindCommit, InstanceID: instanceID, Project: project, Address: address, Port: port}
}

// HostPort returns the transfer endpoint carried by the envelope.
func (e Envelope) HostPort() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

func (e Envelope) String() string {
	switch e.Kind {
	case KindLocate:
		return fmt.Sprintf("Locate{%q}", e.Project)
	case KindAnnounce:
		return fmt.Sprintf("Announce{%q, %q, %s}", e.Project, e.InstanceID, e.HostPort())
	case KindCommit:
		return fmt.Sprintf("Commit{%q, %q, %s}", e.InstanceID, e.Project, e.HostPort())
	default:
		return fmt.Sprintf("Envelope{kind=%d}", e.Kind)
	}
}

// Validate checks that the fields required by the kind are present.
func (e Envelope) Validate() error {
	switch e.Kind {
	case KindLocate:
		if e.Project == "" {
			return fmt.Errorf("%w: project", ErrInvalid)
		}
	case KindAnnounce, KindCommit:
		if e.Project == "" {
			return fmt.Errorf("%w: project", ErrInvalid)
		}
		if e.Address == "" {
			return fmt.Errorf("%w: address", ErrInvalid)
		}
		if e.Port <= 0 || e.Port > 65535 {
			return fmt.Errorf("%w: port %d", ErrInvalid, e.Port)
		}
		if e.Kind == KindCommit && e.InstanceID == "" {
			return fmt.Errorf("%w: instance id", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, e.Kind)
	}
	return nil
}
