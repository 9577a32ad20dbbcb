// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package beacon

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseControl enables SO_REUSEADDR and SO_REUSEPORT on the socket before
// it is bound, so that every local instance can bind the group port.
func reuseControl(_, _ string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); opErr != nil {
			return
		}
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		if opErr == unix.ENOPROTOOPT || opErr == unix.EINVAL {
			// SO_REUSEADDR is enough for multicast on this system
			opErr = nil
		}
	})
	if err != nil {
		return err
	}
	return opErr
}
