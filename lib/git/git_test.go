// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package git

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"
)

func TestExpand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		template string
		expected []string
	}{
		{"git pull %URL%", []string{"git", "pull", "http://10.0.0.5:8080/"}},
		{"git fetch %URL% 'refs/heads/*:refs/remotes/peer/*'", []string{"git", "fetch", "http://10.0.0.5:8080/", "refs/heads/*:refs/remotes/peer/*"}},
		{"echo x%URL%", []string{"echo", "x%URL%"}},
	}
	for _, tc := range cases {
		words, err := expand(tc.template, "http://10.0.0.5:8080/")
		if err != nil {
			t.Errorf("%q: %v", tc.template, err)
			continue
		}
		if diff, equal := messagediff.PrettyDiff(tc.expected, words); !equal {
			t.Errorf("%q: %s", tc.template, diff)
		}
	}

	if _, err := expand("", "x"); err == nil {
		t.Error("empty command should fail")
	}
	if _, err := expand("git 'pull", "x"); err == nil {
		t.Error("unterminated quote should fail")
	}
}

func requireCommand(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func TestFetchResult(t *testing.T) {
	requireCommand(t, "true")
	requireCommand(t, "false")

	if err := New(t.TempDir(), "true %URL%").Fetch(context.Background(), "http://x/"); err != nil {
		t.Error(err)
	}
	if err := New(t.TempDir(), "false %URL%").Fetch(context.Background(), "http://x/"); err == nil {
		t.Error("failing command should return an error")
	}
}

func TestFetchHonoursDeadline(t *testing.T) {
	requireCommand(t, "sleep")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	t0 := time.Now()
	err := New(t.TempDir(), "sleep 10").Fetch(ctx, "http://x/")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if time.Since(t0) > 5*time.Second {
		t.Error("command was not killed")
	}
}

func TestGitDirNotRepository(t *testing.T) {
	requireCommand(t, "git")

	dir := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))
	if _, err := New(dir, "").GitDir(context.Background()); !errors.Is(err, ErrNotRepository) {
		t.Errorf("expected ErrNotRepository, got %v", err)
	}
}

func gitInit(t *testing.T, dir string) *Runner {
	t.Helper()
	r := New(dir, "")
	ctx := context.Background()
	for _, args := range [][]string{
		{"git", "init", "-q"},
		{"git", "-c", "user.name=Test", "-c", "user.email=test@example.com", "commit", "-q", "--allow-empty", "-m", "first"},
	} {
		if err := r.run(ctx, args...); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

func TestCloneOverDumbHTTP(t *testing.T) {
	requireCommand(t, "git")

	src := gitInit(t, t.TempDir())
	ctx := context.Background()
	if err := src.UpdateServerInfo(ctx); err != nil {
		t.Fatal(err)
	}
	gitDir, err := src.GitDir(ctx)
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.FileServer(http.Dir(gitDir)))
	defer srv.Close()

	dst := t.TempDir()
	if err := New(dst, "").Clone(ctx, srv.URL+"/", "copy"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dst, "copy", ".git")); err != nil {
		t.Error(err)
	}
}
