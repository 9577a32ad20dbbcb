// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	reasonEncode   = "encode"
	reasonDecode   = "decode"
	reasonOverflow = "overflow"
)

var (
	metricPacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pingpongpear",
		Subsystem: "transport",
		Name:      "sent_envelopes_total",
		Help:      "Total number of envelopes broadcast, per kind",
	}, []string{"kind"})
	metricPacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pingpongpear",
		Subsystem: "transport",
		Name:      "recv_envelopes_total",
		Help:      "Total number of envelopes received, per kind",
	}, []string{"kind"})
	metricPacketsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pingpongpear",
		Subsystem: "transport",
		Name:      "dropped_total",
		Help:      "Total number of envelopes dropped, per reason",
	}, []string{"reason"})
)

func init() {
	for _, r := range []string{reasonEncode, reasonDecode, reasonOverflow} {
		metricPacketsDropped.WithLabelValues(r)
	}
}
