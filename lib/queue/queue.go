// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:generate -command counterfeiter go run github.com/maxbrunsfeld/counterfeiter/v6
//go:generate counterfeiter -o mocks/fetcher.go --fake-name Fetcher . Fetcher

// Package queue serializes fetches from peers. Jobs are accepted at any
// time from any goroutine and run one at a time, in the order they were
// enqueued.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
	"github.com/tenderlove/ping-pong-pear/lib/events"
)

func init() {
	slogutil.RegisterPackage("Fetch queue")
}

const DefaultTimeout = 5 * time.Minute

// A Job asks for updates to be fetched from the peer serving its
// repository at Address:Port.
type Job struct {
	Address string
	Port    int
}

func (j Job) HostPort() string {
	return net.JoinHostPort(j.Address, strconv.Itoa(j.Port))
}

// URL is what is handed to the fetcher.
func (j Job) URL() string {
	return fmt.Sprintf("http://%s/", j.HostPort())
}

func (j Job) String() string {
	return j.HostPort()
}

// A Fetcher retrieves updates from a repository URL. It must return when
// ctx is cancelled.
type Fetcher interface {
	Fetch(ctx context.Context, url string) error
}

type Options struct {
	// Timeout bounds each fetch. Zero means DefaultTimeout.
	Timeout time.Duration
	// CollapseDuplicates drops a job whose source is already waiting in
	// the queue.
	CollapseDuplicates bool
}

type Queue struct {
	fetcher Fetcher
	opts    Options
	evLog   events.Logger

	mut     sync.Mutex
	pending []Job
	wake    chan struct{}
}

func New(fetcher Fetcher, opts Options, evLogger events.Logger) *Queue {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Queue{
		fetcher: fetcher,
		opts:    opts,
		evLog:   evLogger,
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue adds the job to the end of the queue and returns immediately. It
// returns false if the job was collapsed into an identical pending one.
func (q *Queue) Enqueue(job Job) bool {
	q.mut.Lock()
	if q.opts.CollapseDuplicates {
		for _, p := range q.pending {
			if p == job {
				q.mut.Unlock()
				slog.Debug("Collapsing duplicate fetch job", slog.Any("job", job))
				metricJobsCollapsed.Inc()
				return false
			}
		}
	}
	q.pending = append(q.pending, job)
	metricQueueLength.Set(float64(len(q.pending)))
	q.mut.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	slog.Debug("Queued fetch job", slog.Any("job", job))
	q.evLog.Log(events.FetchQueued, events.FetchEventData{URL: job.URL()})
	return true
}

// Len returns the number of jobs waiting to start.
func (q *Queue) Len() int {
	q.mut.Lock()
	defer q.mut.Unlock()
	return len(q.pending)
}

func (q *Queue) pop() (Job, bool) {
	q.mut.Lock()
	defer q.mut.Unlock()
	if len(q.pending) == 0 {
		return Job{}, false
	}
	job := q.pending[0]
	q.pending[0] = Job{}
	q.pending = q.pending[1:]
	metricQueueLength.Set(float64(len(q.pending)))
	return job, true
}

// Serve is the single consumer of the queue. Each job runs to completion
// before the next one is taken.
func (q *Queue) Serve(ctx context.Context) error {
	for {
		job, ok := q.pop()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		q.run(ctx, job)
	}
}

func (q *Queue) run(ctx context.Context, job Job) {
	url := job.URL()
	l := slog.With(slog.String("url", url))

	l.Info("Fetching from peer")
	q.evLog.Log(events.FetchStarted, events.FetchEventData{URL: url})

	fctx, cancel := context.WithTimeout(ctx, q.opts.Timeout)
	t0 := time.Now()
	err := q.fetcher.Fetch(fctx, url)
	cancel()
	metricFetchSeconds.Observe(time.Since(t0).Seconds())

	switch {
	case err == nil:
		l.Info("Fetch complete")
		metricFetches.WithLabelValues(resultSuccess).Inc()
	case errors.Is(err, context.DeadlineExceeded):
		l.Warn("Fetch timed out", slog.Duration("timeout", q.opts.Timeout), slogutil.Error(err))
		metricFetches.WithLabelValues(resultTimeout).Inc()
	default:
		l.Warn("Fetch failed", slogutil.Error(err))
		metricFetches.WithLabelValues(resultFailure).Inc()
	}
	q.evLog.Log(events.FetchFinished, events.FetchEventData{URL: url, Error: events.Error(err)})
}

func (q *Queue) String() string {
	return fmt.Sprintf("queue@%p", q)
}
