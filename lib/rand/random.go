// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package rand provides the few random values the node needs: instance
// identifiers from a secure source and jittered intervals.
package rand

import (
	cryptoRand "crypto/rand"
	"encoding/hex"
	mathRand "math/rand/v2"
	"time"
)

// Hex returns n strongly random bytes, hex encoded.
func Hex(n int) string {
	bs := make([]byte, n)
	if _, err := cryptoRand.Read(bs); err != nil {
		panic("randomness failure: " + err.Error())
	}
	return hex.EncodeToString(bs)
}

// Jitter returns d adjusted by a random amount of at most frac*d in either
// direction. It keeps periodic announcements from many nodes from
// synchronizing.
func Jitter(d time.Duration, frac float64) time.Duration {
	if d <= 0 || frac <= 0 {
		return d
	}
	span := int64(float64(d) * frac)
	if span <= 0 {
		return d
	}
	return d - time.Duration(span) + time.Duration(mathRand.Int64N(2*span+1))
}
