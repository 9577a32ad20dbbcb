// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package beacon sends and receives raw datagrams on a local network
// multicast group.
package beacon

import (
	"context"
	"fmt"
	"net"

	"github.com/thejerf/suture/v4"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
)

func init() {
	slogutil.RegisterPackage("Multicast beacon")
}

// MaxPacketSize is the largest datagram delivered by Recv. Larger
// datagrams are dropped on receipt.
const MaxPacketSize = 1024

type recv struct {
	data []byte
	src  net.Addr
}

type Interface interface {
	suture.Service
	fmt.Stringer
	// Send queues data for transmission to the group. It never blocks; if
	// the send queue is full the data is dropped.
	Send(data []byte)
	// Recv returns the next received datagram and its source, or an error
	// when ctx is done.
	Recv(ctx context.Context) ([]byte, net.Addr, error)
	Error() error
}
