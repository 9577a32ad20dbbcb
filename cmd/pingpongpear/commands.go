// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
	"github.com/tenderlove/ping-pong-pear/lib/events"
	"github.com/tenderlove/ping-pong-pear/lib/git"
	"github.com/tenderlove/ping-pong-pear/lib/hook"
	"github.com/tenderlove/ping-pong-pear/lib/netutil"
	"github.com/tenderlove/ping-pong-pear/lib/node"
	"github.com/tenderlove/ping-pong-pear/lib/svcutil"
)

var errNoSignals = errors.New("signalling the running instance is not supported on this platform")

type startCmd struct {
	Project string `arg:"" optional:"" help:"Project name shared with peers (default: the directory name)"`
}

func (s *startCmd) Run(cli *CLI) error {
	cfg, err := cli.configuration(s.Project)
	if err != nil {
		return err
	}

	n := node.New(cfg, events.NewLogger(), node.Options{Verbose: cli.Verbose})
	if err := n.Start(); err != nil {
		return svcutil.AsFatalErr(err, n.Wait())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(ctx, n)

	status := n.Wait()
	if err := n.Error(); err != nil {
		return svcutil.AsFatalErr(err, status)
	}
	if status != svcutil.ExitSuccess {
		return &svcutil.FatalErr{Err: fmt.Errorf("exit status %d", status), Status: status}
	}
	return nil
}

// handleSignals turns signals into node operations until ctx is done. An
// interrupt stops the node.
func handleSignals(ctx context.Context, n *node.Node) {
	sigs := make(chan os.Signal, 4)
	watched := []os.Signal{os.Interrupt, syscall.SIGTERM}
	if commitSignal != nil {
		watched = append(watched, commitSignal, notifySignal)
	}
	signal.Notify(sigs, watched...)
	defer signal.Stop(sigs)

	for {
		select {
		case sig := <-sigs:
			switch sig {
			case commitSignal:
				if err := n.LocalCommit(ctx); err != nil {
					slog.Warn("Failed to announce commit", slogutil.Error(err))
				}
			case notifySignal:
				go func() {
					if err := n.NotifyAll(ctx); err != nil {
						slog.Warn("Some peers were not notified", slogutil.Error(err))
					}
				}()
			default:
				slog.Info("Shutting down", slog.String("signal", sig.String()))
				n.Stop(svcutil.ExitSuccess)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

type cloneCmd struct {
	Project string        `arg:"" help:"Project to clone"`
	Dir     string        `arg:"" optional:"" type:"path" help:"Directory to clone into (default: the project name)"`
	Timeout time.Duration `default:"30s" help:"How long to look for a peer"`
}

func (c *cloneCmd) Run(cli *CLI) error {
	cfg, err := cli.configuration(c.Project)
	if err != nil {
		return err
	}
	dir := c.Dir
	if dir == "" {
		dir = c.Project
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	rec, err := node.Locate(ctx, cfg, nil, c.Project)
	cancel()
	if err != nil {
		return fmt.Errorf("no peer found for %q: %w", c.Project, err)
	}

	url := netutil.HTTPURL(rec.Address, rec.Port)
	slog.Info("Cloning", slog.String("url", url), slog.String("dir", dir))
	return git.New("", cfg.FetchCommand).Clone(context.Background(), url, dir)
}

type commitCmd struct{}

func (*commitCmd) Run() error {
	return signalRunning(commitSignal)
}

type notifyCmd struct{}

func (*notifyCmd) Run() error {
	return signalRunning(notifySignal)
}

// signalRunning sends sig to the instance running in the repository in
// the current directory.
func signalRunning(sig os.Signal) error {
	if sig == nil {
		return errNoSignals
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	gitDir, err := git.New("", "").GitDir(ctx)
	if err != nil {
		return err
	}
	return hook.Signal(hook.PidfilePath(gitDir), sig)
}
