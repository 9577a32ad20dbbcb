// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestFuncNameToPkg(t *testing.T) {
	cases := []struct {
		fn, pkg, typ string
	}{
		{"github.com/tenderlove/ping-pong-pear/lib/queue.New", "queue", ""},
		{"github.com/tenderlove/ping-pong-pear/lib/queue.(*Queue).Serve", "queue", "queue"},
		{"github.com/tenderlove/ping-pong-pear/lib/propagate.(*Engine).handle", "propagate", "engine"},
		{"github.com/tenderlove/ping-pong-pear/internal/slogutil.init.0", "slogutil", ""},
		{"github.com/tenderlove/ping-pong-pear/lib/beacon.(*cast).Serve.func1", "beacon", "cast"},
		{"main.main", "main", ""},
	}
	for _, tc := range cases {
		pkg, typ := funcNameToPkg(tc.fn)
		if pkg != tc.pkg || typ != tc.typ {
			t.Errorf("funcNameToPkg(%q) = %q, %q, expected %q, %q", tc.fn, pkg, typ, tc.pkg, tc.typ)
		}
	}
}

func TestFormattingHandler(t *testing.T) {
	buf := new(bytes.Buffer)
	rec := &lineRecorder{level: slog.LevelInfo}
	h := &formattingHandler{
		opts: &formattingOptions{
			out:          buf,
			recs:         []*lineRecorder{rec},
			timeOverride: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			LineFormat:   DefaultLineFormat,
		},
	}
	l := slog.New(h).With("project", "demo")
	l.Info("Fetch failed", Error(errors.New("exit status 1")), slog.Int("port", 8080))

	line := buf.String()
	if !strings.HasPrefix(line, "2026-01-02 03:04:05 INF Fetch failed (") {
		t.Fatalf("unexpected line prefix: %q", line)
	}
	for _, exp := range []string{`error="exit status 1"`, "port=8080", "project=demo"} {
		if !strings.Contains(line, exp) {
			t.Errorf("line %q lacks %q", line, exp)
		}
	}

	lines := rec.Since(time.Time{})
	if len(lines) != 1 {
		t.Fatalf("recorded %d lines, expected 1", len(lines))
	}
	if lines[0].Level != slog.LevelInfo {
		t.Error("wrong recorded level", lines[0].Level)
	}
}

func TestEmptyErrorAttrIsSkipped(t *testing.T) {
	buf := new(bytes.Buffer)
	h := &formattingHandler{opts: &formattingOptions{out: buf}}
	slog.New(h).Info("Nothing wrong", Error(nil))
	if strings.Contains(buf.String(), "error=") {
		t.Errorf("unexpected attributes in %q", buf.String())
	}
}

func TestLevelOverrides(t *testing.T) {
	SetLevelOverrides("alpha, beta:WARN, gamma:bogus")
	if lvl := globalLevels.Get("alpha"); lvl != slog.LevelDebug {
		t.Error("alpha should be at debug, not", lvl)
	}
	if lvl := globalLevels.Get("beta"); lvl != slog.LevelWarn {
		t.Error("beta should be at warn, not", lvl)
	}
	if lvl := globalLevels.Get("gamma"); lvl != globalLevels.defLevel {
		t.Error("gamma should be at the default level, not", lvl)
	}
}

func TestRecorderLimit(t *testing.T) {
	rec := &lineRecorder{}
	t0 := time.Now()
	for i := 0; i < maxLogLines+10; i++ {
		rec.record(Line{When: t0.Add(time.Duration(i) * time.Millisecond)})
	}
	if n := len(rec.Since(time.Time{})); n != maxLogLines {
		t.Errorf("recorder kept %d lines, expected %d", n, maxLogLines)
	}
	rec.Clear()
	if n := len(rec.Since(time.Time{})); n != 0 {
		t.Errorf("recorder kept %d lines after clear", n)
	}
}
