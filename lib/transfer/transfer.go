// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package transfer serves the repository to peers over HTTP and accepts
// requests to pull from them.
package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
	"github.com/tenderlove/ping-pong-pear/lib/netutil"
	"github.com/tenderlove/ping-pong-pear/lib/queue"
)

func init() {
	slogutil.RegisterPackage("Transfer endpoint")
}

var ErrAddressInUse = errors.New("address already in use")

// An Enqueuer accepts fetch jobs.
type Enqueuer interface {
	Enqueue(job queue.Job) bool
}

type Server struct {
	gitDir  string
	queue   Enqueuer
	handler http.Handler

	logs    slogutil.Recorder
	errLogs slogutil.Recorder

	mut      sync.Mutex
	listener net.Listener
	addr     *net.TCPAddr
}

// Listen binds addr and returns a Server for the repository metadata in
// gitDir. Pull requests received by the server are handed to q.
func Listen(addr, gitDir string, q Enqueuer) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("transfer endpoint %s: %w", addr, ErrAddressInUse)
		}
		return nil, fmt.Errorf("transfer endpoint %s: %w", addr, err)
	}
	s := &Server{
		gitDir:   gitDir,
		queue:    q,
		logs:     slogutil.GlobalRecorder,
		errLogs:  slogutil.ErrorRecorder,
		listener: listener,
		addr:     listener.Addr().(*net.TCPAddr),
	}
	s.handler = s.routes()
	return s, nil
}

// Port is the bound TCP port. It stays the same across restarts of the
// service.
func (s *Server) Port() int {
	return s.addr.Port
}

func (s *Server) Addr() net.Addr {
	return s.addr
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := httprouter.New()
	mux.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	mux.HandlerFunc(http.MethodGet, "/log", s.getLog(s.logs))
	mux.HandlerFunc(http.MethodGet, "/log/errors", s.getLog(s.errLogs))
	mux.HandlerFunc(http.MethodPost, "/pull", s.postPull)

	// Everything else is a file in the git directory. Routing this
	// through NotFound avoids a catch-all that would shadow the routes
	// above.
	files := http.FileServer(http.Dir(s.gitDir))
	mux.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		files.ServeHTTP(w, r)
	})
	mux.HandleMethodNotAllowed = false

	return metricsMiddleware(mux)
}

func (s *Server) postPull(w http.ResponseWriter, r *http.Request) {
	host := r.FormValue("host")
	portStr := r.FormValue("port")
	port, err := strconv.Atoi(portStr)
	if host == "" || err != nil || port < 1 || port > 65535 {
		slog.Debug("Rejecting pull request", slog.String("host", host), slog.String("port", portStr), slog.String("remote", r.RemoteAddr))
		http.Error(w, "host and port are required", http.StatusBadRequest)
		return
	}

	job := queue.Job{Address: host, Port: port}
	slog.Info("Received pull request", slog.String("url", netutil.HTTPURL(host, port)), slog.String("remote", r.RemoteAddr))
	s.queue.Enqueue(job)
	w.WriteHeader(http.StatusOK)
}

// getLog returns the lines recorded by rec after the RFC 3339 time in the
// since parameter, or all of them.
func (*Server) getLog(rec slogutil.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since, err := time.Parse(time.RFC3339, r.URL.Query().Get("since"))
		if err != nil {
			since = time.Time{}
		}
		sendJSON(w, map[string][]slogutil.Line{
			"messages": rec.Since(since),
		})
	}
}

func sendJSON(w http.ResponseWriter, v any) {
	bs, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprintf(w, "%s\n", bs)
}

func (s *Server) Serve(ctx context.Context) error {
	s.mut.Lock()
	listener := s.listener
	s.listener = nil
	s.mut.Unlock()

	if listener == nil {
		// We are being restarted; take the same port again.
		var err error
		listener, err = net.Listen("tcp", s.addr.String())
		if err != nil {
			slog.WarnContext(ctx, "Failed to rebind transfer endpoint", slogutil.Address(s.addr), slogutil.Error(err))
			return err
		}
	}
	defer listener.Close()

	srv := http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
		// The things we care about we log ourselves from the handlers.
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug),
	}

	slog.InfoContext(ctx, "Transfer endpoint listening", slogutil.Address(listener.Addr()))

	serveError := make(chan error, 1)
	go func() {
		serveError <- srv.Serve(listener)
	}()

	var err error
	select {
	case <-ctx.Done():
		slog.DebugContext(ctx, "Transfer endpoint shutting down")
	case err = <-serveError:
		slog.WarnContext(ctx, "Transfer endpoint failed (restarting)", slogutil.Error(err))
	}

	timeout, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(timeout); err == timeout.Err() {
		srv.Close()
	}

	if err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Server) String() string {
	return fmt.Sprintf("transfer.Server@%s", s.addr)
}
