// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration written as a string like "30s" or "5m" in
// the configuration file. A bare number is taken as seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) ParseDefault(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(bs []byte) error {
	var s string
	if err := json.Unmarshal(bs, &s); err == nil {
		if err := d.ParseDefault(s); err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return nil
	}
	var secs float64
	if err := json.Unmarshal(bs, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", bs)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}
