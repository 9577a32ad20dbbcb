// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command pingpongpear shares commits of a git repository with peers on
// the local network.
package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"github.com/willabides/kongplete"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
	_ "github.com/tenderlove/ping-pong-pear/lib/automaxprocs"
	"github.com/tenderlove/ping-pong-pear/lib/config"
	"github.com/tenderlove/ping-pong-pear/lib/svcutil"
)

func init() {
	slogutil.RegisterPackage("Command line")
}

type CLI struct {
	Config             string        `name:"config" type:"existingfile" placeholder:"PATH" env:"PPP_CONFIG" help:"Read settings from this YAML file"`
	Verbose            bool          `short:"v" env:"PPP_VERBOSE" help:"Print events as they happen"`
	Discovery          string        `placeholder:"MODE" env:"PPP_DISCOVERY" help:"How peers find each other (gossip, mdns)"`
	MulticastAddress   string        `placeholder:"ADDR:PORT" env:"PPP_MULTICAST_ADDRESS" help:"Multicast group for gossip"`
	Listen             string        `placeholder:"ADDR:PORT" env:"PPP_LISTEN" help:"Address to serve the repository on"`
	AdvertiseAddress   string        `placeholder:"ADDR" env:"PPP_ADVERTISE_ADDRESS" help:"Address peers should fetch from"`
	FetchTimeout       time.Duration `env:"PPP_FETCH_TIMEOUT" help:"Give up on a fetch after this long"`
	CollapseDuplicates bool          `env:"PPP_COLLAPSE_DUPLICATES" help:"Queue at most one pending fetch per peer"`
	FetchCommand       string        `placeholder:"COMMAND" env:"PPP_FETCH_COMMAND" help:"Command run to fetch from a peer; %URL% is replaced by the peer URL"`

	Start              startCmd                     `cmd:"" default:"withargs" help:"Run in the repository in the current directory"`
	Clone              cloneCmd                     `cmd:"" help:"Clone a project from the first peer found"`
	Commit             commitCmd                    `cmd:"" help:"Tell the running instance about a new commit"`
	Notify             notifyCmd                    `cmd:"" help:"Ask all known peers to pull from the running instance"`
	InstallCompletions kongplete.InstallCompletions `cmd:"" help:"Install shell completions"`
}

// configuration returns the effective configuration for project: the
// defaults, overridden by the configuration file, overridden by flags.
// Without a project from either, the directory name is used.
func (c *CLI) configuration(project string) (config.Configuration, error) {
	cfg := config.New()
	if c.Config != "" {
		var err error
		cfg, err = config.Load(c.Config)
		if err != nil {
			return cfg, err
		}
	}

	if project != "" {
		cfg.Project = project
	}
	if cfg.Project == "" {
		name, err := defaultProject()
		if err != nil {
			return cfg, err
		}
		cfg.Project = name
	}
	if c.Discovery != "" {
		cfg.Discovery = c.Discovery
	}
	if c.MulticastAddress != "" {
		cfg.MulticastAddress = c.MulticastAddress
	}
	if c.Listen != "" {
		cfg.ListenAddress = c.Listen
	}
	if c.AdvertiseAddress != "" {
		cfg.AdvertiseAddress = c.AdvertiseAddress
	}
	if c.FetchTimeout > 0 {
		cfg.FetchTimeout = config.Duration(c.FetchTimeout)
	}
	if c.CollapseDuplicates {
		cfg.CollapseDuplicates = true
	}
	if c.FetchCommand != "" {
		cfg.FetchCommand = c.FetchCommand
	}

	return cfg, cfg.Validate()
}

// defaultProject is the name of the directory we run in.
func defaultProject() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Base(wd), nil
}

func main() {
	var params CLI
	parser := kong.Must(&params,
		kong.Name("pingpongpear"),
		kong.Description("Share git commits with peers on the local network."),
		kong.UsageOnError(),
	)
	kongplete.Complete(parser)

	kongCtx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := kongCtx.Run(&params); err != nil {
		status := svcutil.ExitError
		var ferr *svcutil.FatalErr
		if errors.As(err, &ferr) {
			status = ferr.Status
		}
		slog.Error("Exiting", slogutil.Error(err))
		os.Exit(status.AsInt())
	}
}
