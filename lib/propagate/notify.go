// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package propagate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
	"github.com/tenderlove/ping-pong-pear/lib/events"
	"github.com/tenderlove/ping-pong-pear/lib/netutil"
	"github.com/tenderlove/ping-pong-pear/lib/registry"
)

// maxConcurrentPushes bounds the number of simultaneous outgoing pushes.
const maxConcurrentPushes = 4

// A Pusher asks a peer to pull from us.
type Pusher interface {
	Push(ctx context.Context, peer registry.Peer, self Self) error
}

// HTTPPusher posts to the peer's /pull endpoint.
type HTTPPusher struct {
	Client *http.Client
}

func NewHTTPPusher(timeout time.Duration) *HTTPPusher {
	return &HTTPPusher{Client: &http.Client{Timeout: timeout}}
}

func (p *HTTPPusher) Push(ctx context.Context, peer registry.Peer, self Self) error {
	form := url.Values{
		"host": {self.Address},
		"port": {strconv.Itoa(self.Port)},
	}
	target := netutil.HTTPURL(peer.Address, peer.Port) + "pull"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", target, resp.Status)
	}
	return nil
}

// NotifyAll asks every known peer to pull from us. Pushes are independent;
// the returned error joins all that failed.
func (e *Engine) NotifyAll(ctx context.Context) error {
	peers := e.registry.Snapshot()
	slog.InfoContext(ctx, "Notifying known peers", slog.Int("peers", len(peers)))

	var g errgroup.Group
	g.SetLimit(maxConcurrentPushes)
	errs := make([]error, len(peers))
	for i, peer := range peers {
		g.Go(func() error {
			err := e.pusher.Push(ctx, peer, e.self)
			target := netutil.HTTPURL(peer.Address, peer.Port)
			if err != nil {
				slog.WarnContext(ctx, "Failed to notify peer", slog.String("peer", peer.ID), slog.String("url", target), slogutil.Error(err))
				metricPushes.WithLabelValues(resultFailed).Inc()
				errs[i] = fmt.Errorf("%s: %w", peer.ID, err)
			} else {
				slog.DebugContext(ctx, "Notified peer", slog.String("peer", peer.ID), slog.String("url", target))
				metricPushes.WithLabelValues(resultHandled).Inc()
			}
			e.evLog.Log(events.PushSent, events.PushEventData{Peer: peer.ID, URL: target, Error: events.Error(err)})
			// Never cancel the other pushes
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
