// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config implements reading and validating the node configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"

	"github.com/kballard/go-shellquote"
	"sigs.k8s.io/yaml"
)

const (
	DiscoveryGossip = "gossip"
	DiscoveryMDNS   = "mdns"
)

// MaxProjectLength is the longest project name, in bytes. The instance
// identifier "<project> (<8 hex digits>)" must fit in a single DNS label of
// 63 bytes.
const MaxProjectLength = 63 - len(" (01234567)")

var discoveryModes = []string{DiscoveryGossip, DiscoveryMDNS}

var ErrInvalid = errors.New("invalid configuration")

type Configuration struct {
	// Project is the shared name peers must agree on.
	Project string `json:"project"`
	// Discovery selects how peers find each other: gossip or mdns.
	Discovery          string   `json:"discovery" default:"gossip"`
	MulticastAddress   string   `json:"multicastAddress" default:"224.0.0.1:4545"`
	ListenAddress      string   `json:"listenAddress" default:":0"`
	AdvertiseAddress   string   `json:"advertiseAddress,omitempty"`
	AnnounceInterval   Duration `json:"announceInterval" default:"30s"`
	BrowseRound        Duration `json:"browseRound" default:"20s"`
	FetchTimeout       Duration `json:"fetchTimeout" default:"5m"`
	PushTimeout        Duration `json:"pushTimeout" default:"10s"`
	CollapseDuplicates bool     `json:"collapseDuplicates"`
	FetchCommand       string   `json:"fetchCommand" default:"git pull %URL%"`
}

// New returns a configuration with all defaults set.
func New() Configuration {
	var cfg Configuration
	setDefaults(&cfg)
	return cfg
}

// Load reads the YAML file at path on top of the defaults. Unknown keys
// are an error.
func Load(path string) (Configuration, error) {
	cfg := New()
	bs, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.UnmarshalStrict(bs, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (cfg Configuration) Marshal() ([]byte, error) {
	return yaml.Marshal(cfg)
}

func (cfg Configuration) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if cfg.Project == "" {
		invalid("project name is empty")
	} else if len(cfg.Project) > MaxProjectLength {
		invalid("project name is %d bytes long (at most %d allowed)", len(cfg.Project), MaxProjectLength)
	}

	if !slices.Contains(discoveryModes, cfg.Discovery) {
		invalid("unknown discovery %q (expected one of %v)", cfg.Discovery, discoveryModes)
	}

	if addr, err := net.ResolveUDPAddr("udp4", cfg.MulticastAddress); err != nil {
		invalid("multicast address: %v", err)
	} else if !addr.IP.IsMulticast() {
		invalid("multicast address %s is not in a multicast range", cfg.MulticastAddress)
	}

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		invalid("listen address: %v", err)
	}

	if cfg.AdvertiseAddress != "" && net.ParseIP(cfg.AdvertiseAddress) == nil {
		invalid("advertise address %q is not an IP address", cfg.AdvertiseAddress)
	}

	for _, d := range []struct {
		name string
		val  Duration
	}{
		{"announce interval", cfg.AnnounceInterval},
		{"browse round", cfg.BrowseRound},
		{"fetch timeout", cfg.FetchTimeout},
		{"push timeout", cfg.PushTimeout},
	} {
		if d.val <= 0 {
			invalid("%s must be positive", d.name)
		}
	}

	if words, err := shellquote.Split(cfg.FetchCommand); err != nil {
		invalid("fetch command: %v", err)
	} else if len(words) == 0 {
		invalid("fetch command is empty")
	}

	return errors.Join(errs...)
}
