// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
	resultTimeout = "timeout"
)

var (
	metricQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pingpongpear",
		Subsystem: "queue",
		Name:      "pending_jobs",
		Help:      "Number of fetch jobs waiting to start",
	})
	metricJobsCollapsed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pingpongpear",
		Subsystem: "queue",
		Name:      "collapsed_jobs_total",
		Help:      "Total number of fetch jobs dropped as duplicates of a pending job",
	})
	metricFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pingpongpear",
		Subsystem: "queue",
		Name:      "fetches_total",
		Help:      "Total number of fetches run, per result",
	}, []string{"result"})
	metricFetchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pingpongpear",
		Subsystem: "queue",
		Name:      "fetch_seconds",
		Help:      "Time taken by each fetch",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
)

func init() {
	for _, r := range []string{resultSuccess, resultFailure, resultTimeout} {
		metricFetches.WithLabelValues(r)
	}
}
