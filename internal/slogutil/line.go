// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"time"
)

var DefaultLineFormat = LineFormat{
	TimestampFormat: "2006-01-02 15:04:05",
	LevelString:     true,
}

// A Line is one formatted log message, as kept by the recorders.
type Line struct {
	When    time.Time  `json:"time"`
	Message string     `json:"message"`
	Level   slog.Level `json:"level"`
}

func (l Line) WriteTo(w io.Writer, f LineFormat) (int64, error) {
	var buf bytes.Buffer
	if f.LevelSyslog {
		fmt.Fprintf(&buf, "<%d>", syslogPriority(l.Level))
	}
	if f.TimestampFormat != "" {
		buf.WriteString(l.When.Format(f.TimestampFormat))
		buf.WriteRune(' ')
	}
	if f.LevelString {
		buf.WriteString(levelString(l.Level))
		buf.WriteRune(' ')
	}
	buf.WriteString(l.Message)
	buf.WriteRune('\n')
	return buf.WriteTo(w)
}

func levelString(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DBG"
	case l < slog.LevelWarn:
		return "INF"
	case l < slog.LevelError:
		return "WRN"
	default:
		return "ERR"
	}
}

// syslogPriority maps to the kernel log levels, as understood by systemd.
func syslogPriority(l slog.Level) int {
	switch {
	case l < slog.LevelInfo:
		return 7
	case l < slog.LevelWarn:
		return 6
	case l < slog.LevelError:
		return 4
	default:
		return 3
	}
}
