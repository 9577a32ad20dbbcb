// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package node

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
	"github.com/tenderlove/ping-pong-pear/lib/beacon"
	"github.com/tenderlove/ping-pong-pear/lib/config"
	"github.com/tenderlove/ping-pong-pear/lib/discover"
	"github.com/tenderlove/ping-pong-pear/lib/envelope"
	"github.com/tenderlove/ping-pong-pear/lib/svcutil"
	"github.com/tenderlove/ping-pong-pear/lib/transport"
)

// locateInterval is how often a gossip lookup repeats its question while
// nobody has answered.
const locateInterval = time.Second

// Locate returns the first peer found advertising project, using the
// discovery strategy in cfg. Gossip goes over b, or the multicast group
// in cfg when b is nil. It gives up when ctx is done.
func Locate(ctx context.Context, cfg config.Configuration, b beacon.Interface, project string) (discover.Record, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Discovery == config.DiscoveryMDNS {
		return discover.First(ctx, discover.NewMDNS(cfg.BrowseRound.Std(), 0), project)
	}

	if b == nil {
		b = beacon.NewMulticast(cfg.MulticastAddress)
	}
	t := transport.New(b)
	sup := suture.New("locate", svcutil.SpecWithDebugLogger("locate"))
	sup.Add(t)
	done := sup.ServeBackground(ctx)
	defer func() {
		cancel()
		<-done
	}()

	// Our own multicast membership may not be in place yet when the
	// first question goes out.
	go func() {
		ticker := time.NewTicker(locateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := t.Broadcast(envelope.Locate(project)); err != nil {
					slog.Warn("Failed to send locate", slogutil.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	rec, err := discover.First(ctx, discover.NewGossip(t, cfg.AnnounceInterval.Std()), project)
	if err != nil {
		return discover.Record{}, err
	}
	slog.Info("Found peer", slog.String("project", project), slog.String("peer", rec.InstanceID), slog.String("endpoint", rec.HostPort()))
	return rec, nil
}
