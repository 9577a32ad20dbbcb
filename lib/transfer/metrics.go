// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transfer

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pingpongpear",
		Subsystem: "transfer",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests served, per route and status code",
	}, []string{"route", "code"})
	metricRequestSeconds = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:  "pingpongpear",
		Subsystem:  "transfer",
		Name:       "request_seconds",
		Help:       "Time taken to serve HTTP requests, per route",
		Objectives: map[float64]float64{0.5: 0.01, 0.9: 0.01, 0.99: 0.001},
	}, []string{"route"})
)

func routeOf(r *http.Request) string {
	switch r.URL.Path {
	case "/pull", "/metrics", "/log", "/log/errors":
		return r.URL.Path
	default:
		return "files"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeOf(r)
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		t0 := time.Now()
		next.ServeHTTP(rec, r)
		metricRequestSeconds.WithLabelValues(route).Observe(time.Since(t0).Seconds())
		metricRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}
