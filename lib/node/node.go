// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package node wires the discovery, propagation and fetch machinery of a
// single running instance together.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
	"github.com/tenderlove/ping-pong-pear/lib/beacon"
	"github.com/tenderlove/ping-pong-pear/lib/config"
	"github.com/tenderlove/ping-pong-pear/lib/discover"
	"github.com/tenderlove/ping-pong-pear/lib/events"
	"github.com/tenderlove/ping-pong-pear/lib/git"
	"github.com/tenderlove/ping-pong-pear/lib/hook"
	"github.com/tenderlove/ping-pong-pear/lib/netutil"
	"github.com/tenderlove/ping-pong-pear/lib/propagate"
	"github.com/tenderlove/ping-pong-pear/lib/queue"
	"github.com/tenderlove/ping-pong-pear/lib/rand"
	"github.com/tenderlove/ping-pong-pear/lib/registry"
	"github.com/tenderlove/ping-pong-pear/lib/svcutil"
	"github.com/tenderlove/ping-pong-pear/lib/transfer"
	"github.com/tenderlove/ping-pong-pear/lib/transport"
)

func init() {
	slogutil.RegisterPackage("Node lifecycle")
}

const (
	instanceIDBytes = 4
	gitTimeout      = time.Minute
	cleanupTimeout  = 10 * time.Second
)

// A Repository is the local git repository a node serves and fetches into.
type Repository interface {
	GitDir(ctx context.Context) (string, error)
	UpdateServerInfo(ctx context.Context) error
	Fetch(ctx context.Context, url string) error
}

type Options struct {
	Verbose bool
	// Dir is the working directory of the repository. Ignored when
	// Repository is set.
	Dir string
	// Repository replaces the git command line.
	Repository Repository
	// Beacon replaces the multicast beacon on cfg.MulticastAddress.
	Beacon beacon.Interface
	// Pusher replaces the HTTP pusher used by NotifyAll.
	Pusher propagate.Pusher
	// Discoverer replaces the discoverer selected by cfg.Discovery.
	Discoverer discover.Discoverer
	// NoHook skips installing the post-commit hook.
	NoHook bool
}

type cleanup struct {
	what string
	fn   func() error
}

type Node struct {
	cfg      config.Configuration
	opts     Options
	evLogger events.Logger
	repo     Repository

	registry  *registry.Registry
	queue     *queue.Queue
	transport *transport.Transport
	server    *transfer.Server
	engine    *propagate.Engine

	mainService       *suture.Supervisor
	mainServiceCancel context.CancelFunc
	started           chan struct{}
	stopped           chan struct{}
	stopOnce          sync.Once
	exitStatus        svcutil.ExitStatus
	err               error

	cleanupMut sync.Mutex
	cleanups   []cleanup
}

// New returns a node for cfg, which must be valid. Nothing happens until
// Start is called.
func New(cfg config.Configuration, evLogger events.Logger, opts Options) *Node {
	repo := opts.Repository
	if repo == nil {
		repo = git.New(opts.Dir, cfg.FetchCommand)
	}
	n := &Node{
		cfg:      cfg,
		opts:     opts,
		evLogger: evLogger,
		repo:     repo,
		registry: registry.New(evLogger),
		started:  make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	n.queue = queue.New(repo, queue.Options{
		Timeout:            cfg.FetchTimeout.Std(),
		CollapseDuplicates: cfg.CollapseDuplicates,
	}, evLogger)
	close(n.stopped) // Hasn't been started, so shouldn't block on Wait.
	return n
}

// Start runs the node and returns once it is reachable by peers. Must be
// called once only.
func (n *Node) Start() error {
	n.mainService = suture.New("main", svcutil.SpecWithDebugLogger("main"))

	n.stopped = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	n.mainServiceCancel = cancel
	errChan := n.mainService.ServeBackground(ctx)
	go n.wait(errChan)

	if err := n.startup(ctx); err != nil {
		status := svcutil.ExitError
		var ferr *svcutil.FatalErr
		if errors.As(err, &ferr) {
			status = ferr.Status
		}
		n.stopWithErr(status, err)
		return err
	}
	close(n.started)
	return nil
}

func (n *Node) startup(ctx context.Context) error {
	if n.opts.Verbose {
		n.mainService.Add(newVerboseService(n.evLogger))
	}

	gitCtx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	gitDir, err := n.repo.GitDir(gitCtx)
	if err != nil {
		return err
	}

	pidfile, err := hook.AcquirePidfile(hook.PidfilePath(gitDir))
	if err != nil {
		if errors.Is(err, hook.ErrAlreadyRunning) {
			return svcutil.AsFatalErr(err, svcutil.ExitAlreadyRunning)
		}
		return err
	}
	n.addCleanup("pidfile", pidfile.Release)

	instanceID := fmt.Sprintf("%s (%s)", n.cfg.Project, rand.Hex(instanceIDBytes))
	n.evLogger.Log(events.Starting, events.StartingEventData{Project: n.cfg.Project, InstanceID: instanceID})
	slog.Info("Starting", slog.String("project", n.cfg.Project), slog.String("instance", instanceID))

	if err := n.repo.UpdateServerInfo(gitCtx); err != nil {
		return err
	}

	n.server, err = transfer.Listen(n.cfg.ListenAddress, gitDir, n.queue)
	if err != nil {
		return err
	}
	// The server closes its listener when the main service stops.
	n.mainService.Add(n.server)

	address := n.cfg.AdvertiseAddress
	if address == "" {
		address, err = advertiseAddress(n.server.Addr().String())
		if err != nil {
			return err
		}
	}

	b := n.opts.Beacon
	if b == nil {
		b = beacon.NewMulticast(n.cfg.MulticastAddress)
	}
	n.transport = transport.New(b)
	n.mainService.Add(n.transport)

	pusher := n.opts.Pusher
	if pusher == nil {
		pusher = propagate.NewHTTPPusher(n.cfg.PushTimeout.Std())
	}
	self := propagate.Self{
		Project:    n.cfg.Project,
		InstanceID: instanceID,
		Address:    address,
		Port:       n.server.Port(),
	}
	n.engine = propagate.New(self, n.transport, n.registry, n.queue, pusher, n.evLogger)

	// Subscribe before anything is announced, so that answers to our
	// own locate are not missed.
	received := n.transport.Receive(ctx, "engine")
	n.mainService.Add(svcutil.AsService(func(ctx context.Context) error {
		return svcutil.NoRestartErr(n.engine.HandleAll(ctx, received))
	}, n.engine.String()))
	n.mainService.Add(n.queue)

	if err := n.startDiscovery(ctx, self); err != nil {
		return err
	}

	if !n.opts.NoHook {
		n.installHook(gitDir, pidfile.Path())
	}

	slog.Info("Serving repository", slog.String("url", netutil.HTTPURL(self.Address, self.Port)), slog.String("discovery", n.cfg.Discovery))
	n.evLogger.Log(events.StartupComplete, events.StartingEventData{Project: n.cfg.Project, InstanceID: instanceID})
	return nil
}

// advertiseAddress is the host of listen when we are bound to a single
// address, otherwise the address of the first usable interface.
func advertiseAddress(listen string) (string, error) {
	if host, _, err := netutil.HostPort(listen); err == nil {
		if ip := net.ParseIP(host); ip != nil && !ip.IsUnspecified() {
			return host, nil
		}
	}
	return netutil.AdvertiseAddress()
}

func (n *Node) startDiscovery(ctx context.Context, self propagate.Self) error {
	d := n.opts.Discoverer
	if d == nil {
		d = newDiscoverer(n.cfg, n.transport)
	}

	// Gossip announcements reach the registry through the engine; other
	// strategies report peers by resolving.
	if n.cfg.Discovery != config.DiscoveryGossip {
		n.mainService.Add(svcutil.AsService(func(ctx context.Context) error {
			return n.resolvePeers(ctx, d)
		}, fmt.Sprintf("%s/resolve", d)))
	}

	adv, err := d.Advertise(ctx, discover.Record{
		Project:    self.Project,
		InstanceID: self.InstanceID,
		Address:    self.Address,
		Port:       self.Port,
	})
	if err != nil {
		return fmt.Errorf("advertise via %s: %w", d, err)
	}
	n.addCleanup("advertisement", adv.Release)
	return nil
}

func newDiscoverer(cfg config.Configuration, t *transport.Transport) discover.Discoverer {
	if cfg.Discovery == config.DiscoveryMDNS {
		return discover.NewMDNS(cfg.BrowseRound.Std(), 0)
	}
	return discover.NewGossip(t, cfg.AnnounceInterval.Std())
}

func (n *Node) resolvePeers(ctx context.Context, d discover.Discoverer) error {
	for ev := range d.Resolve(ctx, n.cfg.Project) {
		switch ev.Type {
		case discover.Added:
			n.registry.Upsert(ev.Record.InstanceID, ev.Record.Address, ev.Record.Port)
		case discover.Removed:
			n.registry.Remove(ev.Record.InstanceID)
		}
	}
	return ctx.Err()
}

func (n *Node) installHook(gitDir, pidfile string) {
	h, err := hook.InstallPostCommit(gitDir, pidfile)
	if errors.Is(err, hook.ErrForeignHook) {
		slog.Warn("Not installing post-commit hook; commits must be announced by hand", slogutil.Error(err))
		return
	}
	if err != nil {
		slog.Warn("Failed to install post-commit hook", slogutil.Error(err))
		return
	}
	slog.Debug("Installed post-commit hook", slog.String("path", h.Path()))
	n.addCleanup("post-commit hook", h.Remove)
}

func (n *Node) addCleanup(what string, fn func() error) {
	n.cleanupMut.Lock()
	n.cleanups = append(n.cleanups, cleanup{what: what, fn: fn})
	n.cleanupMut.Unlock()
}

// runCleanups undoes startup in reverse order. Failures are logged and
// don't stop the remaining steps.
func (n *Node) runCleanups() {
	n.cleanupMut.Lock()
	cleanups := n.cleanups
	n.cleanups = nil
	n.cleanupMut.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i].fn(); err != nil {
			slog.Warn("Failed to clean up", slog.String("what", cleanups[i].what), slogutil.Error(err))
		}
	}
}

func (n *Node) wait(errChan <-chan error) {
	err := <-errChan
	n.handleMainServiceError(err)

	done := make(chan struct{})
	go func() {
		n.runCleanups()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cleanupTimeout):
		slog.Warn("Cleanup did not finish in time", slog.Duration("timeout", cleanupTimeout))
	}

	slog.Info("Exiting")

	close(n.stopped)
}

func (n *Node) handleMainServiceError(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	var fatalErr *svcutil.FatalErr
	if errors.As(err, &fatalErr) {
		n.exitStatus = fatalErr.Status
		n.err = fatalErr.Err
		return
	}
	n.err = err
	n.exitStatus = svcutil.ExitError
}

// Wait blocks until the node stops running. Also returns if the node hasn't
// been started yet.
func (n *Node) Wait() svcutil.ExitStatus {
	<-n.stopped
	return n.exitStatus
}

// Error returns an error if one occurred while running the node. It does
// not wait for the node to stop before returning.
func (n *Node) Error() error {
	select {
	case <-n.stopped:
		return n.err
	default:
	}
	return nil
}

// Stop stops the node and sets its exit status to given reason, unless the
// node was already stopped before. In any case it returns the effective
// exit status.
func (n *Node) Stop(stopReason svcutil.ExitStatus) svcutil.ExitStatus {
	return n.stopWithErr(stopReason, nil)
}

func (n *Node) stopWithErr(stopReason svcutil.ExitStatus, err error) svcutil.ExitStatus {
	n.stopOnce.Do(func() {
		n.exitStatus = stopReason
		n.err = err
		if n.mainServiceCancel != nil {
			n.mainServiceCancel()
		}
	})
	<-n.stopped
	return n.exitStatus
}

var errNotRunning = errors.New("node is not running")

func (n *Node) running() bool {
	select {
	case <-n.started:
	default:
		return false
	}
	select {
	case <-n.stopped:
		return false
	default:
		return true
	}
}

// LocalCommit refreshes the HTTP index and tells peers to fetch from us.
func (n *Node) LocalCommit(ctx context.Context) error {
	if !n.running() {
		return errNotRunning
	}
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()
	if err := n.repo.UpdateServerInfo(ctx); err != nil {
		// Peers may still find the objects they need; say so anyway.
		slog.Warn("Failed to update server info", slogutil.Error(err))
	}
	return n.engine.LocalCommit()
}

// NotifyAll asks every known peer to pull from us.
func (n *Node) NotifyAll(ctx context.Context) error {
	if !n.running() {
		return errNotRunning
	}
	return n.engine.NotifyAll(ctx)
}

// Self returns how peers see this node. Valid after Start.
func (n *Node) Self() propagate.Self {
	return n.engine.Self()
}

// Peers returns the currently known peers sorted by identifier.
func (n *Node) Peers() []registry.Peer {
	return n.registry.Snapshot()
}

// Addr is the bound address of the transfer endpoint. Valid after Start.
func (n *Node) Addr() net.Addr {
	return n.server.Addr()
}

func (n *Node) String() string {
	return fmt.Sprintf("node.Node@%p", n)
}
