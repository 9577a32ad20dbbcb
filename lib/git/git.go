// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package git runs the git command line tool on behalf of the node.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/tenderlove/ping-pong-pear/internal/slogutil"
)

func init() {
	slogutil.RegisterPackage("Git command runner")
}

// DefaultFetchCommand pulls from the peer into the current branch.
const DefaultFetchCommand = "git pull %URL%"

var ErrNotRepository = errors.New("not a git repository")

type Runner struct {
	// Dir is the working tree the commands run in.
	Dir string
	// FetchCommand is split into words with shell quoting rules. A word
	// that is exactly %URL% is replaced by the peer URL.
	FetchCommand string
}

func New(dir, fetchCommand string) *Runner {
	if fetchCommand == "" {
		fetchCommand = DefaultFetchCommand
	}
	return &Runner{Dir: dir, FetchCommand: fetchCommand}
}

// Fetch runs the fetch command for url. The command is killed when ctx is
// done.
func (r *Runner) Fetch(ctx context.Context, url string) error {
	words, err := expand(r.FetchCommand, url)
	if err != nil {
		return err
	}
	return r.run(ctx, words...)
}

// UpdateServerInfo refreshes the auxiliary files that let the repository
// be fetched over plain HTTP.
func (r *Runner) UpdateServerInfo(ctx context.Context) error {
	return r.run(ctx, "git", "update-server-info")
}

// GitDir returns the absolute path of the repository's .git directory, or
// ErrNotRepository.
func (r *Runner) GitDir(ctx context.Context) (string, error) {
	out, err := r.output(ctx, "git", "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", fmt.Errorf("%s: %w", r.Dir, ErrNotRepository)
	}
	return strings.TrimSpace(out), nil
}

// Clone clones url into dir, relative to the runner's directory.
func (r *Runner) Clone(ctx context.Context, url, dir string) error {
	return r.run(ctx, "git", "clone", url, dir)
}

func expand(template, url string) ([]string, error) {
	words, err := shellquote.Split(template)
	if err != nil {
		return nil, fmt.Errorf("fetch command is invalid: %w", err)
	}
	if len(words) == 0 {
		return nil, errors.New("fetch command is empty")
	}
	for i, word := range words {
		if word == "%URL%" {
			words[i] = url
		}
	}
	return words, nil
}

func (r *Runner) command(ctx context.Context, words ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, words[0], words[1:]...)
	cmd.Dir = r.Dir
	// Never wait for credentials from a peer that asks for them
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	return cmd
}

func (r *Runner) run(ctx context.Context, words ...string) error {
	cmd := r.command(ctx, words...)
	out, err := cmd.CombinedOutput()
	slog.DebugContext(ctx, "Command output", slog.String("cmd", shellquote.Join(words...)), slog.String("output", string(bytes.TrimSpace(out))))
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", filepath.Base(words[0]), ctx.Err())
		}
		return fmt.Errorf("%s: %w: %s", shellquote.Join(words...), err, lastLine(out))
	}
	return nil
}

func (r *Runner) output(ctx context.Context, words ...string) (string, error) {
	cmd := r.command(ctx, words...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		slog.DebugContext(ctx, "Command failed", slog.String("cmd", shellquote.Join(words...)), slog.String("stderr", stderr.String()), slogutil.Error(err))
		return "", err
	}
	return string(out), nil
}

func lastLine(bs []byte) string {
	bs = bytes.TrimSpace(bs)
	if idx := bytes.LastIndexByte(bs, '\n'); idx >= 0 {
		bs = bs[idx+1:]
	}
	return string(bs)
}
