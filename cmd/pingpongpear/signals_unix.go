// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build unix

package main

import (
	"os"
	"syscall"
)

// The post-commit hook sends commitSignal; an operator sends notifySignal.
var (
	commitSignal os.Signal = syscall.SIGUSR1
	notifySignal os.Signal = syscall.SIGUSR2
)
