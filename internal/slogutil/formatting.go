// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"path"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const modulePrefix = "github.com/tenderlove/ping-pong-pear/"

type LineFormat struct {
	TimestampFormat string
	LevelString     bool
	LevelSyslog     bool
}

type formattingOptions struct {
	LineFormat

	mut          sync.Mutex // serializes writes to out
	out          io.Writer
	recs         []*lineRecorder
	timeOverride time.Time
}

// formattingHandler renders records as a single line: the message followed
// by a parenthesized list of key=value attributes.
type formattingHandler struct {
	attrs  []slog.Attr
	groups []string
	opts   *formattingOptions
}

var _ slog.Handler = (*formattingHandler)(nil)

func SetLineFormat(f LineFormat) {
	globalFormatter.mut.Lock()
	globalFormatter.LineFormat = f
	globalFormatter.mut.Unlock()
}

func (h *formattingHandler) Enabled(context.Context, slog.Level) bool {
	// The per package level is only known once we have the caller, in
	// Handle.
	return true
}

func (h *formattingHandler) Handle(_ context.Context, rec slog.Record) error {
	var logAttrs []any
	if rec.PC != 0 {
		fr := runtime.CallersFrames([]uintptr{rec.PC})
		if fram, _ := fr.Next(); fram.Function != "" {
			pkgName, typeName := funcNameToPkg(fram.Function)
			lvl := globalLevels.Get(pkgName)
			if lvl > rec.Level {
				return nil
			}
			logAttrs = append(logAttrs, slog.String("pkg", pkgName))
			if lvl <= slog.LevelDebug {
				if typeName != "" {
					logAttrs = append(logAttrs, slog.String("type", typeName))
				}
				logAttrs = append(logAttrs, slog.Group("src", slog.String("file", path.Base(fram.File)), slog.Int("line", fram.Line)))
			}
		}
	}

	var prefix string
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	var sb strings.Builder
	sb.WriteString(rec.Message)

	attrs := make([]slog.Attr, 0, rec.NumAttrs()+len(h.attrs)+1)
	rec.Attrs(func(attr slog.Attr) bool {
		attr.Key = prefix + attr.Key
		attrs = append(attrs, attr)
		return true
	})
	attrs = append(attrs, h.attrs...)
	if len(logAttrs) > 0 {
		attrs = append(attrs, slog.Group("log", logAttrs...))
	}

	var attrCount int
	for _, attr := range attrs {
		for _, attr := range expandAttrs("", attr) {
			appendAttr(&sb, attr, &attrCount)
		}
	}
	if attrCount > 0 {
		sb.WriteRune(')')
	}

	line := Line{
		When:    cmp.Or(h.opts.timeOverride, rec.Time),
		Message: sb.String(),
		Level:   rec.Level,
	}

	for _, rec := range h.opts.recs {
		rec.record(line)
	}

	h.opts.mut.Lock()
	defer h.opts.mut.Unlock()
	if h.opts.out != nil {
		_, _ = line.WriteTo(h.opts.out, h.opts.LineFormat)
	}
	return nil
}

func expandAttrs(prefix string, a slog.Attr) []slog.Attr {
	if prefix != "" {
		a.Key = prefix + "." + a.Key
	}
	val := a.Value.Resolve()
	if val.Kind() != slog.KindGroup {
		return []slog.Attr{a}
	}
	var attrs []slog.Attr
	for _, attr := range val.Group() {
		attrs = append(attrs, expandAttrs(a.Key, attr)...)
	}
	return attrs
}

func appendAttr(sb *strings.Builder, a slog.Attr, attrCount *int) {
	const confusables = ` "()[]{},=`
	if a.Key == "" {
		return
	}
	if *attrCount == 0 {
		sb.WriteString(" (")
	} else {
		sb.WriteRune(' ')
	}
	sb.WriteString(a.Key)
	sb.WriteRune('=')
	v := a.Value.Resolve().String()
	if v == "" || strings.ContainsAny(v, confusables) {
		v = strconv.Quote(v)
	}
	sb.WriteString(v)
	*attrCount++
}

func (h *formattingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(h.groups) > 0 {
		prefix := strings.Join(h.groups, ".") + "."
		for i := range attrs {
			attrs[i].Key = prefix + attrs[i].Key
		}
	}
	return &formattingHandler{
		attrs:  append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
		groups: h.groups,
		opts:   h.opts,
	}
}

func (h *formattingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &formattingHandler{
		attrs:  h.attrs,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
		opts:   h.opts,
	}
}

// funcNameToPkg splits a fully qualified function name into the short
// package name and, for methods, the receiver type.
func funcNameToPkg(fn string) (string, string) {
	fn = strings.ToLower(fn)
	fn = strings.TrimPrefix(fn, modulePrefix)
	fn = strings.TrimPrefix(fn, "lib/")
	fn = strings.TrimPrefix(fn, "internal/")
	fn = strings.TrimPrefix(fn, "cmd/")

	pkgTypFn := strings.Split(fn, ".") // [package, type, method] or [package, function]
	if len(pkgTypFn) <= 2 {
		return pkgTypFn[0], ""
	}

	pkg := pkgTypFn[0]
	typ := strings.TrimLeft(strings.TrimRight(pkgTypFn[1], ")"), "(*")
	switch typ {
	case pkg, "", "init":
		return pkg, ""
	default:
		if strings.HasPrefix(typ, "func") {
			// Closures, not types
			return pkg, ""
		}
		return pkg, typ
	}
}
