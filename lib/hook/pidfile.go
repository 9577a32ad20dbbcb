// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package hook manages the files a running node keeps in the repository:
// the pidfile and the post-commit hook.
package hook

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
)

func init() {
	slogutil.RegisterPackage("Repository hooks")
}

const PidfileName = "pingpongpear.pid"

var (
	ErrAlreadyRunning = errors.New("another instance is running")
	ErrNotRunning     = errors.New("no instance is running")
)

// PidfilePath returns the pidfile location for the repository metadata
// directory gitDir.
func PidfilePath(gitDir string) string {
	return filepath.Join(gitDir, PidfileName)
}

type Pidfile struct {
	path string
	pid  int
}

// AcquirePidfile writes our pid to path. It fails with ErrAlreadyRunning
// if the file names a live process; a pidfile left behind by a process
// that is gone is taken over.
func AcquirePidfile(path string) (*Pidfile, error) {
	pid := os.Getpid()
	for attempt := 0; ; attempt++ {
		fd, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(fd, "%d\n", pid)
			cerr := fd.Close()
			if err := errors.Join(werr, cerr); err != nil {
				os.Remove(path)
				return nil, err
			}
			return &Pidfile{path: path, pid: pid}, nil
		}
		if !errors.Is(err, fs.ErrExist) || attempt > 0 {
			return nil, err
		}

		other, rerr := ReadPid(path)
		if rerr == nil && other != pid && processAlive(other) {
			return nil, fmt.Errorf("%w (pid %d, see %s)", ErrAlreadyRunning, other, path)
		}
		slog.Info("Removing stale pidfile", slog.String("path", path), slog.Int("pid", other))
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
}

func (p *Pidfile) Path() string {
	return p.path
}

// Release removes the pidfile, if it still holds our pid.
func (p *Pidfile) Release() error {
	pid, err := ReadPid(p.path)
	if err != nil {
		return err
	}
	if pid != p.pid {
		return fmt.Errorf("%s: pidfile now belongs to pid %d", p.path, pid)
	}
	return os.Remove(p.path)
}

// ReadPid returns the pid stored in the pidfile at path. A missing file
// is ErrNotRunning.
func ReadPid(path string) (int, error) {
	bs, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w (no %s)", ErrNotRunning, path)
	}
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(bs)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%s: malformed pidfile", path)
	}
	return pid, nil
}

// Signal sends sig to the instance named by the pidfile at path.
func Signal(path string, sig os.Signal) error {
	pid, err := ReadPid(path)
	if err != nil {
		return err
	}
	if !processAlive(pid) {
		return fmt.Errorf("%w (stale %s)", ErrNotRunning, path)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}
