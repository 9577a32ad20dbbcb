// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package netutil

import (
	"net"
	"testing"
)

func TestHTTPURL(t *testing.T) {
	tests := []struct {
		host   string
		port   int
		result string
	}{
		{"10.0.0.5", 8080, "http://10.0.0.5:8080/"},
		{"fe80::1", 80, "http://[fe80::1]:80/"},
		{"example.com", 1, "http://example.com:1/"},
	}

	for _, test := range tests {
		result := HTTPURL(test.host, test.port)
		if result != test.result {
			t.Errorf("%s != %s", result, test.result)
		}
	}
}

func ipnet(s string) *net.IPNet {
	ip, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	n.IP = ip
	return n
}

func TestPickAddress(t *testing.T) {
	tests := []struct {
		addrs  []net.Addr
		result string
	}{
		{[]net.Addr{ipnet("127.0.0.1/8"), ipnet("169.254.3.4/16"), ipnet("192.168.1.20/24")}, "192.168.1.20"},
		{[]net.Addr{ipnet("::1/128"), ipnet("2001:db8::1/64"), ipnet("10.0.0.5/8")}, "10.0.0.5"},
		{[]net.Addr{ipnet("127.0.0.1/8"), ipnet("fe80::1/64")}, "127.0.0.1"},
	}

	for _, test := range tests {
		result, err := pickAddress(test.addrs)
		if err != nil {
			t.Error(err)
			continue
		}
		if result != test.result {
			t.Errorf("%s != %s", result, test.result)
		}
	}

	if _, err := pickAddress([]net.Addr{ipnet("fe80::1/64")}); err != ErrNoAddress {
		t.Errorf("expected ErrNoAddress, got %v", err)
	}
}

func TestHostPort(t *testing.T) {
	host, port, err := HostPort("10.0.0.5:8080")
	if err != nil || host != "10.0.0.5" || port != 8080 {
		t.Errorf("unexpected result %q %d %v", host, port, err)
	}
	for _, bad := range []string{"10.0.0.5", "10.0.0.5:0", "10.0.0.5:65536", "10.0.0.5:http"} {
		if _, _, err := HostPort(bad); err == nil {
			t.Errorf("%q should fail", bad)
		}
	}
}
