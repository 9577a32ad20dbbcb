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
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tenderlove/ping-pong-pear/lib/svcutil"
)

const queueSize = 16

// The cast is a suture.Supervisor that runs a reader and a writer
// service, connected to the outside by the inbox and outbox channels.
type cast struct {
	*suture.Supervisor
	name   string
	reader svcutil.ServiceWithError
	writer svcutil.ServiceWithError
	outbox chan recv
	inbox  chan []byte
}

func newCast(name string) *cast {
	spec := svcutil.SpecWithDebugLogger(name)
	// Don't retry too frenetically: an error to open a socket or whatever
	// is usually something that is either permanent or takes a while to
	// get solved...
	spec.FailureThreshold = 2
	spec.FailureBackoff = 60 * time.Second

	return &cast{
		Supervisor: suture.New(name, spec),
		name:       name,
		inbox:      make(chan []byte, queueSize),
		outbox:     make(chan recv, queueSize),
	}
}

func (c *cast) addReader(svc func(context.Context) error) {
	c.reader = c.createService(svc, "reader")
	c.Add(c.reader)
}

func (c *cast) addWriter(svc func(ctx context.Context) error) {
	c.writer = c.createService(svc, "writer")
	c.Add(c.writer)
}

func (c *cast) createService(svc func(context.Context) error, suffix string) svcutil.ServiceWithError {
	return svcutil.AsService(svc, fmt.Sprintf("%s/%s", c, suffix))
}

func (c *cast) Send(data []byte) {
	select {
	case c.inbox <- data:
	default:
		slog.Debug("Dropping outgoing packet, send queue full", slog.String("beacon", c.name), slog.Int("bytes", len(data)))
	}
}

func (c *cast) Recv(ctx context.Context) ([]byte, net.Addr, error) {
	select {
	case rec := <-c.outbox:
		return rec.data, rec.src, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (c *cast) Error() error {
	if err := c.reader.Error(); err != nil {
		return err
	}
	return c.writer.Error()
}

func (c *cast) String() string {
	return fmt.Sprintf("%s@%p", c.name, c)
}
