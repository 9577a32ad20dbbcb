// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"log/slog"
	"net"
	"runtime"
	"strings"
)

// Error returns an attribute for the given error. A nil error gives an
// empty attribute, which is not printed.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// Address returns an attribute for a network address.
func Address(addr net.Addr) slog.Attr {
	if addr == nil {
		return slog.Attr{}
	}
	return slog.String("address", addr.String())
}

// RegisterPackage records a description for the calling package, making it
// known to PackageDescrs and PackageLevels.
func RegisterPackage(descr string) {
	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return
	}
	pkg, _ := funcNameToPkg(strings.TrimSuffix(fn.Name(), ".init"))
	globalLevels.SetDescr(pkg, descr)
}
