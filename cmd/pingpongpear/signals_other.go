// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !unix

package main

import "os"

// There are no user signals on this platform; the commit and notify
// commands fail with errNoSignals.
var (
	commitSignal os.Signal
	notifySignal os.Signal
)
