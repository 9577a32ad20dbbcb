// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAdvertisements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pingpongpear",
		Subsystem: "discover",
		Name:      "advertisements_total",
		Help:      "Total number of advertisements sent, per strategy",
	}, []string{"strategy"})
	metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pingpongpear",
		Subsystem: "discover",
		Name:      "events_total",
		Help:      "Total number of peer events reported, per strategy and type",
	}, []string{"strategy", "type"})
	metricSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pingpongpear",
		Subsystem: "discover",
		Name:      "skipped_total",
		Help:      "Total number of observed records skipped as unusable, per strategy",
	}, []string{"strategy"})
)
