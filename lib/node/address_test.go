// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package node

import (
	"net"
	"testing"
)

func TestAdvertiseAddress(t *testing.T) {
	addr, err := advertiseAddress("127.0.0.1:4000")
	if err != nil || addr != "127.0.0.1" {
		t.Errorf("got %q, %v for a specific listen address", addr, err)
	}

	for _, listen := range []string{"0.0.0.0:4000", "[::]:4000"} {
		addr, err := advertiseAddress(listen)
		if err != nil {
			t.Fatal(err)
		}
		ip := net.ParseIP(addr)
		if ip == nil || ip.To4() == nil || ip.IsUnspecified() {
			t.Errorf("%s: got %q, expected an IPv4 interface address", listen, addr)
		}
	}
}
