// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package netutil has helpers for picking and formatting the addresses
// peers use to reach us.
package netutil

import (
	"errors"
	"net"
	"net/url"
	"strconv"
)

var ErrNoAddress = errors.New("no usable network address")

// HTTPURL returns the root URL of an HTTP endpoint at host:port.
func HTTPURL(host string, port int) string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/",
	}
	return u.String()
}

// AdvertiseAddress returns the first IPv4 address of an interface that is
// up, skipping loopback and link-local addresses. It falls back to the
// IPv4 loopback address if there is nothing else.
func AdvertiseAddress() (string, error) {
	intfs, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	var addrs []net.Addr
	for _, intf := range intfs {
		if intf.Flags&net.FlagUp == 0 {
			continue
		}
		ias, err := intf.Addrs()
		if err != nil {
			continue
		}
		addrs = append(addrs, ias...)
	}
	return pickAddress(addrs)
}

func pickAddress(addrs []net.Addr) (string, error) {
	var loopback string
	for _, addr := range addrs {
		ipn, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipn.IP.To4()
		switch {
		case ip4 == nil:
		case ip4.IsLoopback():
			if loopback == "" {
				loopback = ip4.String()
			}
		case ip4.IsLinkLocalUnicast():
		default:
			return ip4.String(), nil
		}
	}
	if loopback != "" {
		return loopback, nil
	}
	return "", ErrNoAddress
}

// HostPort splits a "host:port" string, requiring a numeric port in the
// range 1-65535.
func HostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, &net.AddrError{Err: "invalid port", Addr: addr}
	}
	return host, port, nil
}
