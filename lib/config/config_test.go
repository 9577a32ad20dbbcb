// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"
)

func TestDefaultValues(t *testing.T) {
	t.Parallel()

	expected := Configuration{
		Discovery:        DiscoveryGossip,
		MulticastAddress: "224.0.0.1:4545",
		ListenAddress:    ":0",
		AnnounceInterval: Duration(30 * time.Second),
		BrowseRound:      Duration(20 * time.Second),
		FetchTimeout:     Duration(5 * time.Minute),
		PushTimeout:      Duration(10 * time.Second),
		FetchCommand:     "git pull %URL%",
	}
	if diff, equal := messagediff.PrettyDiff(expected, New()); !equal {
		t.Errorf("Default config differs. Diff:\n%s", diff)
	}
}

func TestLoadFull(t *testing.T) {
	t.Parallel()

	cfg, err := Load("testdata/full.yaml")
	if err != nil {
		t.Fatal(err)
	}
	expected := Configuration{
		Project:            "demo",
		Discovery:          DiscoveryMDNS,
		MulticastAddress:   "224.0.0.1:4646",
		ListenAddress:      "127.0.0.1:8080",
		AdvertiseAddress:   "10.0.0.5",
		AnnounceInterval:   Duration(10 * time.Second),
		BrowseRound:        Duration(5 * time.Second),
		FetchTimeout:       Duration(90 * time.Second),
		PushTimeout:        Duration(2 * time.Second),
		CollapseDuplicates: true,
		FetchCommand:       "git fetch %URL% 'refs/heads/*:refs/remotes/peer/*'",
	}
	if diff, equal := messagediff.PrettyDiff(expected, cfg); !equal {
		t.Errorf("Loaded config differs. Diff:\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Error(err)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("testdata/partial.yaml")
	if err != nil {
		t.Fatal(err)
	}
	expected := New()
	expected.Project = "demo"
	expected.FetchTimeout = Duration(time.Minute)
	if diff, equal := messagediff.PrettyDiff(expected, cfg); !equal {
		t.Errorf("Loaded config differs. Diff:\n%s", diff)
	}
}

func TestLoadUnknownKey(t *testing.T) {
	t.Parallel()

	if _, err := Load("testdata/unknown.yaml"); err == nil || !strings.Contains(err.Error(), "fetchTimeot") {
		t.Errorf("expected an error naming the unknown key, got %v", err)
	}
	if _, err := Load("testdata/missing.yaml"); err == nil {
		t.Error("missing file should fail")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	cfg, err := Load("testdata/full.yaml")
	if err != nil {
		t.Fatal(err)
	}
	bs, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(bs), "fetchTimeout: 1m30s") {
		t.Errorf("durations should be written as strings:\n%s", bs)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Configuration)
		errStr string
	}{
		{"ok", func(*Configuration) {}, ""},
		{"no project", func(c *Configuration) { c.Project = "" }, "project name is empty"},
		{"longest project", func(c *Configuration) { c.Project = strings.Repeat("p", MaxProjectLength) }, ""},
		{"long project", func(c *Configuration) { c.Project = strings.Repeat("p", MaxProjectLength+1) }, "at most 52 allowed"},
		{"bad discovery", func(c *Configuration) { c.Discovery = "carrier-pigeon" }, "unknown discovery"},
		{"unicast group", func(c *Configuration) { c.MulticastAddress = "10.0.0.1:4545" }, "not in a multicast range"},
		{"bad group", func(c *Configuration) { c.MulticastAddress = "224.0.0.1" }, "multicast address"},
		{"bad listen", func(c *Configuration) { c.ListenAddress = "8080" }, "listen address"},
		{"bad advertise", func(c *Configuration) { c.AdvertiseAddress = "myhost" }, "not an IP address"},
		{"zero timeout", func(c *Configuration) { c.FetchTimeout = 0 }, "fetch timeout must be positive"},
		{"negative interval", func(c *Configuration) { c.AnnounceInterval = -1 }, "announce interval must be positive"},
		{"empty command", func(c *Configuration) { c.FetchCommand = "  " }, "fetch command is empty"},
		{"bad command", func(c *Configuration) { c.FetchCommand = "git 'pull" }, "fetch command"},
	}

	for _, tc := range cases {
		cfg := New()
		cfg.Project = "demo"
		tc.mutate(&cfg)
		err := cfg.Validate()
		if tc.errStr == "" {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalid) || !strings.Contains(err.Error(), tc.errStr) {
			t.Errorf("%s: expected error containing %q, got %v", tc.name, tc.errStr, err)
		}
	}
}

func TestSetDefaults(t *testing.T) {
	t.Parallel()

	x := &struct {
		A string   `default:"string"`
		B int      `default:"2"`
		D bool     `default:"true"`
		E Duration `default:"1h"`
		F struct {
			G string `default:"nested"`
		}
	}{}

	setDefaults(x)

	if x.A != "string" {
		t.Error("string failed")
	} else if x.B != 2 {
		t.Error("int failed")
	} else if !x.D {
		t.Errorf("bool failed")
	} else if x.E != Duration(time.Hour) {
		t.Errorf("duration failed")
	} else if x.F.G != "nested" {
		t.Errorf("nested failed")
	}
}
