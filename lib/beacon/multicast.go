// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package beacon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
)

// NewMulticast returns a beacon on the IPv4 multicast group addr, given as
// "group:port". The receiving socket binds the group port with address and
// port reuse enabled, so several processes on one host can listen at the
// same time.
func NewMulticast(addr string) Interface {
	c := newCast("multicastBeacon")
	c.addReader(func(ctx context.Context) error {
		return readMulticasts(ctx, c.outbox, addr)
	})
	c.addWriter(func(ctx context.Context) error {
		return writeMulticasts(ctx, c.inbox, addr)
	})
	return c
}

func resolveGroup(addr string) (*net.UDPAddr, error) {
	gaddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	if !gaddr.IP.IsMulticast() {
		return nil, fmt.Errorf("%s is not a multicast address", gaddr.IP)
	}
	return gaddr, nil
}

func multicastInterfaces() ([]net.Interface, error) {
	intfs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var res []net.Interface
	for _, intf := range intfs {
		if intf.Flags&net.FlagUp == 0 || intf.Flags&net.FlagMulticast == 0 {
			continue
		}
		res = append(res, intf)
	}
	return res, nil
}

func writeMulticasts(ctx context.Context, inbox <-chan []byte, addr string) error {
	gaddr, err := resolveGroup(addr)
	if err != nil {
		slog.Debug("Failed to resolve multicast group", slogutil.Error(err))
		return err
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		slog.Debug("Failed to open multicast writer", slogutil.Error(err))
		return err
	}
	doneCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-doneCtx.Done()
		conn.Close()
	}()

	pconn := ipv4.NewPacketConn(conn)
	// Stay on the local network, and let other processes on this host
	// hear us.
	if err := pconn.SetMulticastTTL(1); err != nil {
		slog.Debug("Failed to set multicast TTL", slogutil.Error(err))
	}
	if err := pconn.SetMulticastLoopback(true); err != nil {
		slog.Debug("Failed to enable multicast loopback", slogutil.Error(err))
	}

	for {
		var bs []byte
		select {
		case bs = <-inbox:
		case <-doneCtx.Done():
			return doneCtx.Err()
		}

		intfs, err := multicastInterfaces()
		if err != nil {
			slog.Debug("Failed to list interfaces", slogutil.Error(err))
			return err
		}

		if len(intfs) == 0 {
			// Let the routing table decide
			if err := writeOne(pconn, bs, gaddr); err != nil {
				slog.Debug("Failed to write multicast", slogutil.Address(gaddr), slogutil.Error(err))
				return err
			}
			continue
		}

		success := 0
		var lastErr error
		for _, intf := range intfs {
			if err := pconn.SetMulticastInterface(&intf); err != nil {
				slog.Debug("Failed to select multicast interface", slog.String("intf", intf.Name), slogutil.Error(err))
				lastErr = err
				continue
			}
			if err := writeOne(pconn, bs, gaddr); err != nil {
				slog.Debug("Failed to write multicast", slog.String("intf", intf.Name), slogutil.Address(gaddr), slogutil.Error(err))
				lastErr = err
				continue
			}
			slog.Debug("Sent multicast", slog.Int("bytes", len(bs)), slogutil.Address(gaddr), slog.String("intf", intf.Name))
			success++

			select {
			case <-doneCtx.Done():
				return doneCtx.Err()
			default:
			}
		}

		if success == 0 {
			return lastErr
		}
	}
}

func writeOne(pconn *ipv4.PacketConn, bs []byte, gaddr *net.UDPAddr) error {
	_ = pconn.SetWriteDeadline(time.Now().Add(time.Second))
	_, err := pconn.WriteTo(bs, nil, gaddr)
	_ = pconn.SetWriteDeadline(time.Time{})
	return err
}

func readMulticasts(ctx context.Context, outbox chan<- recv, addr string) error {
	gaddr, err := resolveGroup(addr)
	if err != nil {
		slog.Debug("Failed to resolve multicast group", slogutil.Error(err))
		return err
	}

	lc := net.ListenConfig{Control: reuseControl}
	conn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", gaddr.Port))
	if err != nil {
		slog.Debug("Failed to open multicast reader", slogutil.Error(err))
		return err
	}
	doneCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-doneCtx.Done()
		conn.Close()
	}()

	intfs, err := multicastInterfaces()
	if err != nil {
		slog.Debug("Failed to list interfaces", slogutil.Error(err))
		return err
	}

	pconn := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: gaddr.IP}
	joined := 0
	for _, intf := range intfs {
		if err := pconn.JoinGroup(&intf, group); err != nil {
			slog.Debug("IPv4 multicast join failed", slog.String("intf", intf.Name), slogutil.Error(err))
			continue
		}
		slog.Debug("IPv4 multicast join succeeded", slog.String("intf", intf.Name))
		joined++
	}
	if joined == 0 {
		// Fall back to the system default interface
		if err := pconn.JoinGroup(nil, group); err != nil {
			slog.Debug("No multicast interfaces available", slogutil.Error(err))
			return errors.New("no multicast interfaces available")
		}
	}

	bs := make([]byte, MaxPacketSize+1)
	for {
		n, _, src, err := pconn.ReadFrom(bs)
		if err != nil {
			if doneCtx.Err() != nil {
				return doneCtx.Err()
			}
			slog.Debug("Multicast read failed", slogutil.Error(err))
			return err
		}
		if n > MaxPacketSize {
			slog.Debug("Dropping oversized packet", slogutil.Address(src), slog.Int("bytes", n))
			continue
		}
		slog.Debug("Received multicast", slog.Int("bytes", n), slogutil.Address(src))

		c := make([]byte, n)
		copy(c, bs)
		select {
		case outbox <- recv{c, src}:
		default:
			slog.Debug("Dropping incoming packet, receive queue full", slogutil.Address(src))
		}
	}
}
