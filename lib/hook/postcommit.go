// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package hook

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"

	"github.com/kballard/go-shellquote"
)

// marker identifies hooks that we installed and may remove again.
const marker = "# Installed by pingpongpear"

var ErrForeignHook = errors.New("a post-commit hook is already installed")

var postCommitTmpl = template.Must(template.New("post-commit").Parse(`#!/bin/sh
` + marker + `; removed again when it exits.

git update-server-info
kill -USR1 "$(cat {{.Pidfile}})" 2>/dev/null || true
`))

type PostCommit struct {
	path string
}

// PostCommitPath returns the post-commit hook location for gitDir.
func PostCommitPath(gitDir string) string {
	return filepath.Join(gitDir, "hooks", "post-commit")
}

// InstallPostCommit writes a post-commit hook that refreshes the HTTP
// index and signals the process named in pidfile. An existing hook that
// we did not write is left alone and ErrForeignHook is returned.
func InstallPostCommit(gitDir, pidfile string) (*PostCommit, error) {
	path := PostCommitPath(gitDir)

	if ours, err := isOurs(path); err != nil {
		return nil, err
	} else if !ours {
		return nil, fmt.Errorf("%w (%s)", ErrForeignHook, path)
	}

	var buf bytes.Buffer
	if err := postCommitTmpl.Execute(&buf, map[string]string{"Pidfile": shellquote.Join(pidfile)}); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o755); err != nil {
		return nil, err
	}
	// WriteFile doesn't change the mode of an existing file
	if err := os.Chmod(path, 0o755); err != nil {
		return nil, err
	}
	return &PostCommit{path: path}, nil
}

// isOurs returns true if path does not exist or is a hook we wrote.
func isOurs(path string) (bool, error) {
	bs, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return bytes.Contains(bs, []byte(marker)), nil
}

func (h *PostCommit) Path() string {
	return h.path
}

// Remove deletes the hook, unless someone replaced it in the meantime.
func (h *PostCommit) Remove() error {
	ours, err := isOurs(h.path)
	if err != nil {
		return err
	}
	if !ours {
		return fmt.Errorf("%w (%s), not removing", ErrForeignHook, h.path)
	}
	if err := os.Remove(h.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
