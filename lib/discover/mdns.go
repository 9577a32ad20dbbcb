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
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
)

const (
	strategyMDNS = "mdns"

	ServiceType = "_pingpongpear._tcp"
	Domain      = "local."

	// DefaultBrowseRound is how long each browse round lasts. A new round
	// starts as soon as the previous one ends.
	DefaultBrowseRound = 20 * time.Second
	// DefaultExpiry is how long a peer is remembered without being seen
	// again.
	DefaultExpiry = 3 * DefaultBrowseRound

	maxTrackedPeers = 1024
	txtProject      = "project="
)

type shutdowner interface {
	Shutdown()
}

type (
	registerFunc func(rec Record, host string) (shutdowner, error)
	browseFunc   func(ctx context.Context, entries chan<- *zeroconf.ServiceEntry) error
)

type MDNS struct {
	round    time.Duration
	expiry   time.Duration
	register registerFunc
	browse   browseFunc
	own      ownIDs
}

func NewMDNS(round, expiry time.Duration) *MDNS {
	if round <= 0 {
		round = DefaultBrowseRound
	}
	if expiry <= round {
		expiry = 3 * round
	}
	return &MDNS{
		round:    round,
		expiry:   expiry,
		register: zeroconfRegister,
		browse:   zeroconfBrowse,
	}
}

func zeroconfRegister(rec Record, host string) (shutdowner, error) {
	return zeroconf.RegisterProxy(rec.InstanceID, ServiceType, Domain, rec.Port, host, []string{rec.Address}, []string{txtProject + rec.Project}, nil)
}

func zeroconfBrowse(ctx context.Context, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}
	return resolver.Browse(ctx, ServiceType, Domain, entries)
}

func (m *MDNS) Advertise(ctx context.Context, rec Record) (Advertisement, error) {
	if err := rec.validate(); err != nil {
		return nil, err
	}

	srv, err := m.register(rec, hostLabel())
	if err != nil {
		return nil, fmt.Errorf("registering %s: %w", ServiceType, err)
	}
	metricAdvertisements.WithLabelValues(strategyMDNS).Inc()
	m.own.add(rec.InstanceID)
	slog.Debug("Advertising over mDNS", slog.String("instance", rec.InstanceID), slog.String("endpoint", rec.HostPort()))

	a := &mdnsAdvertisement{srv: srv, release: func() { m.own.remove(rec.InstanceID) }}
	context.AfterFunc(ctx, func() { _ = a.Release() })
	return a, nil
}

type mdnsAdvertisement struct {
	srv     shutdowner
	once    sync.Once
	release func()
}

func (a *mdnsAdvertisement) Release() error {
	a.once.Do(func() {
		// Sends the goodbye
		a.srv.Shutdown()
		a.release()
	})
	return nil
}

// hostLabel returns a DNS label for this host, used as the target of the
// advertised service.
func hostLabel() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "pingpongpear"
	}
	host, _, _ = strings.Cut(host, ".")
	return host
}

func (m *MDNS) Resolve(ctx context.Context, project string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		removed := make(chan Record, 64)
		seen := expirable.NewLRU[string, Record](maxTrackedPeers, func(_ string, rec Record) {
			select {
			case removed <- rec:
			case <-ctx.Done():
			}
		}, m.expiry)

		found := make(chan Record)
		go m.browseRounds(ctx, project, found)

		for {
			var ev Event
			select {
			case rec := <-found:
				if prev, ok := seen.Peek(rec.InstanceID); ok && prev == rec {
					// Refresh the expiry
					seen.Add(rec.InstanceID, rec)
					continue
				}
				seen.Add(rec.InstanceID, rec)
				ev = Event{Type: Added, Record: rec}
			case rec := <-removed:
				ev = Event{Type: Removed, Record: rec}
			case <-ctx.Done():
				return
			}

			metricEvents.WithLabelValues(strategyMDNS, ev.Type.String()).Inc()
			if !yield(ev) {
				return
			}
		}
	}
}

func (m *MDNS) browseRounds(ctx context.Context, project string, found chan<- Record) {
	for ctx.Err() == nil {
		rctx, cancel := context.WithTimeout(ctx, m.round)
		m.browseRound(rctx, project, found)
		<-rctx.Done()
		cancel()
	}
}

func (m *MDNS) browseRound(ctx context.Context, project string, found chan<- Record) {
	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := m.browse(ctx, entries); err != nil {
		slog.Debug("mDNS browse failed", slogutil.Error(err))
		return
	}
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			rec, ok := m.recordFromEntry(entry)
			if !ok || rec.Project != project || m.own.contains(rec.InstanceID) {
				continue
			}
			select {
			case found <- rec:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *MDNS) recordFromEntry(entry *zeroconf.ServiceEntry) (Record, bool) {
	instance := unescapeLabel(entry.Instance)
	l := slog.With(slog.String("instance", instance))

	var project string
	for _, txt := range entry.Text {
		if p, ok := strings.CutPrefix(txt, txtProject); ok {
			project = p
			break
		}
	}
	if project == "" {
		l.Debug("Skipping service without project")
		metricSkipped.WithLabelValues(strategyMDNS).Inc()
		return Record{}, false
	}
	if len(entry.AddrIPv4) == 0 {
		l.Debug("Skipping service without IPv4 address")
		metricSkipped.WithLabelValues(strategyMDNS).Inc()
		return Record{}, false
	}
	if entry.Port < 1 || entry.Port > 65535 {
		l.Debug("Skipping service with invalid port", slog.Int("port", entry.Port))
		metricSkipped.WithLabelValues(strategyMDNS).Inc()
		return Record{}, false
	}

	return Record{
		Project:    project,
		InstanceID: instance,
		Address:    entry.AddrIPv4[0].String(),
		Port:       entry.Port,
	}, true
}

// unescapeLabel undoes the presentation format escaping of a DNS label,
// both \X and \DDD. Browsing reports instance names in that form, so
// "demo (ab12)" arrives as `demo\ \(ab12\)`.
func unescapeLabel(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			b.WriteByte(s[i])
			continue
		}
		if i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
			if v := int(s[i+1]-'0')*100 + int(s[i+2]-'0')*10 + int(s[i+3]-'0'); v <= 255 {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		i++
		b.WriteByte(s[i])
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (m *MDNS) String() string {
	return fmt.Sprintf("discover.MDNS@%p", m)
}
