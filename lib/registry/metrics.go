// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricPeers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "pingpongpear",
	Subsystem: "registry",
	Name:      "peers",
	Help:      "Number of known peers for the local project",
})
