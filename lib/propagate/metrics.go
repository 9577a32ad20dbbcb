// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package propagate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultHandled      = "handled"
	resultSelf         = "self"
	resultOtherProject = "other_project"
	resultLimited      = "rate_limited"
	resultIgnored      = "ignored"
	resultFailed       = "failed"
)

var (
	metricEnvelopes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pingpongpear",
		Subsystem: "propagate",
		Name:      "envelopes_total",
		Help:      "Total number of received envelopes, per kind and outcome",
	}, []string{"kind", "result"})
	metricPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pingpongpear",
		Subsystem: "propagate",
		Name:      "pushes_total",
		Help:      "Total number of pull requests sent to peers, per outcome",
	}, []string{"result"})
)
