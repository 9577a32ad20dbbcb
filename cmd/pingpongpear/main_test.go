// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"

	"github.com/tenderlove/ping-pong-pear/lib/config"
)

func parse(t *testing.T, args ...string) (*CLI, string) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("pingpongpear"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		t.Fatal(err)
	}
	return &cli, ctx.Command()
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pingpongpear.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStartIsDefaultCommand(t *testing.T) {
	cli, cmd := parse(t)
	if cmd != "start" {
		t.Errorf("got command %q, expected start", cmd)
	}
	if cli.Start.Project != "" {
		t.Errorf("unexpected project %q", cli.Start.Project)
	}

	cli, cmd = parse(t, "demo")
	if cmd != "start <project>" || cli.Start.Project != "demo" {
		t.Errorf("got command %q with project %q", cmd, cli.Start.Project)
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := writeConfig(t, "project: fromfile\nfetchTimeout: 2m\nlistenAddress: 127.0.0.1:1234\n")

	cli, _ := parse(t, "--config", path, "--fetch-timeout", "1m", "--collapse-duplicates", "start")
	cfg, err := cli.configuration(cli.Start.Project)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Project != "fromfile" {
		t.Errorf("project %q, expected the one from the file", cfg.Project)
	}
	if cfg.FetchTimeout.Std() != time.Minute {
		t.Errorf("fetch timeout %v, expected the flag value", cfg.FetchTimeout)
	}
	if cfg.ListenAddress != "127.0.0.1:1234" {
		t.Errorf("listen address %q, expected the one from the file", cfg.ListenAddress)
	}
	if !cfg.CollapseDuplicates {
		t.Error("collapse duplicates should be on")
	}
	if cfg.MulticastAddress != config.New().MulticastAddress {
		t.Errorf("multicast address %q should be the default", cfg.MulticastAddress)
	}
}

func TestProjectArgumentWins(t *testing.T) {
	path := writeConfig(t, "project: fromfile\n")
	cli, _ := parse(t, "--config", path, "start", "fromarg")
	cfg, err := cli.configuration(cli.Start.Project)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Project != "fromarg" {
		t.Errorf("project %q, expected the argument", cfg.Project)
	}
}

func TestProjectDefaultsToDirectoryName(t *testing.T) {
	cli, _ := parse(t, "start")
	cfg, err := cli.configuration("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Project != "pingpongpear" {
		t.Errorf("project %q, expected the directory name", cfg.Project)
	}
}

func TestEnvironment(t *testing.T) {
	t.Setenv("PPP_LISTEN", "127.0.0.1:9999")
	t.Setenv("PPP_DISCOVERY", "mdns")
	cli, _ := parse(t, "start", "demo")
	cfg, err := cli.configuration(cli.Start.Project)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddress != "127.0.0.1:9999" || cfg.Discovery != config.DiscoveryMDNS {
		t.Errorf("environment not applied: %+v", cfg)
	}
}

func TestInvalidConfiguration(t *testing.T) {
	cli, _ := parse(t, "--discovery", "carrier-pigeon", "start", "demo")
	if _, err := cli.configuration(cli.Start.Project); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected invalid configuration, got %v", err)
	}
}

func TestClone(t *testing.T) {
	cli, cmd := parse(t, "clone", "demo")
	if cmd != "clone <project>" {
		t.Errorf("got command %q", cmd)
	}
	if cli.Clone.Project != "demo" || cli.Clone.Timeout != 30*time.Second {
		t.Errorf("unexpected clone options %+v", cli.Clone)
	}
}
