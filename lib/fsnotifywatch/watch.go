// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package fsnotifywatch implements a monitor backend on top of fsnotify
// (inotify, kqueue, ReadDirectoryChangesW, FEN). fsnotify watches single
// directories, so recursive monitoring adds a watch per directory.
package fsnotifywatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/syncthing/fsmonitor/lib/monitor"
)

const (
	Name = "fsnotify_monitor"

	// PropBufferSize sets the size of the event channel between fsnotify
	// and the monitor.
	PropBufferSize = "fsnotify.buffer_size"
)

// Not meant to be changed, but must be changeable for tests
var minInterval = 10 * time.Millisecond

func init() {
	monitor.MustRegister[backend](Name, monitor.TypeFsnotify)
}

type backend struct {
	watcher   *fsnotify.Watcher
	recursive bool
	follow    bool
}

func newWatcher(m *monitor.Monitor) (*fsnotify.Watcher, error) {
	val, err := m.Property(PropBufferSize)
	if err != nil {
		return fsnotify.NewWatcher()
	}
	size, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", PropBufferSize, err)
	}
	return fsnotify.NewBufferedWatcher(uint(size))
}

func (b *backend) Run(ctx context.Context, m *monitor.Monitor) error {
	w, err := newWatcher(m)
	if err != nil {
		return err
	}
	defer w.Close()

	b.watcher = w
	b.recursive = m.Recursive()
	b.follow = m.FollowSymlinks()

	visited := make(map[string]struct{})
	for _, path := range m.Paths() {
		if err := b.add(path, true, visited); err != nil {
			return &monitor.StartError{Path: path, Err: interpretAddError(err)}
		}
	}
	l.Debugf("%v: watching %d paths", m, len(w.WatchList()))

	batcher := monitor.NewBatcher(m)
	ticker := time.NewTicker(monitor.Interval(m, minInterval))
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if err := b.handle(ev, batcher); err != nil {
				return err
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				l.Debugln(m, "fsnotify overflow")
				if err := m.NotifyOverflow(); err != nil {
					return err
				}
				continue
			}
			l.Warnln("Filesystem notifications:", err)

		case <-ticker.C:
			batcher.Flush()

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// add watches path. Directories below the top level are only watched when
// recursive, files below the top level are covered by their parent. visited
// holds the resolved directories of the current walk and breaks symlink
// cycles; it must not outlive the walk, as a directory that is removed and
// recreated needs a new watch.
func (b *backend) add(path string, top bool, visited map[string]struct{}) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.Mode()&fs.ModeSymlink != 0 && b.follow {
		if target, err := os.Stat(path); err == nil {
			info = target
		}
	}

	if !info.IsDir() {
		if top {
			return b.watcher.Add(path)
		}
		return nil
	}
	if !top && !b.recursive {
		return nil
	}

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		if _, ok := visited[resolved]; ok {
			return nil
		}
		visited[resolved] = struct{}{}
	}

	if err := b.watcher.Add(path); err != nil {
		return err
	}
	l.Debugln("watching", path)

	if !b.recursive {
		return nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() && !(b.follow && entry.Type()&fs.ModeSymlink != 0) {
			continue
		}
		if err := b.add(filepath.Join(path, entry.Name()), false, visited); err != nil {
			return err
		}
	}
	return nil
}

func (b *backend) handle(ev fsnotify.Event, batcher *monitor.Batcher) error {
	flags := opFlags(ev.Op)
	if flags == monitor.NoOp {
		return nil
	}

	if !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		if info, err := os.Lstat(ev.Name); err == nil {
			flags |= kindFlag(info.Mode())
			if ev.Has(fsnotify.Create) && info.IsDir() && b.recursive {
				if err := b.add(ev.Name, false, make(map[string]struct{})); err != nil {
					l.Debugln("watching new directory", ev.Name, err)
				}
			}
		}
	}

	return batcher.Add(monitor.Event{Path: ev.Name, Time: time.Now(), Flags: flags})
}

func opFlags(op fsnotify.Op) monitor.EventFlag {
	var flags monitor.EventFlag
	if op.Has(fsnotify.Create) {
		flags |= monitor.Created
	}
	if op.Has(fsnotify.Write) {
		flags |= monitor.Updated
	}
	if op.Has(fsnotify.Remove) {
		flags |= monitor.Removed
	}
	if op.Has(fsnotify.Rename) {
		flags |= monitor.Renamed | monitor.MovedFrom
	}
	if op.Has(fsnotify.Chmod) {
		flags |= monitor.AttributeModified
	}
	return flags
}

func kindFlag(mode fs.FileMode) monitor.EventFlag {
	switch {
	case mode&fs.ModeSymlink != 0:
		return monitor.IsSymLink
	case mode.IsDir():
		return monitor.IsDir
	default:
		return monitor.IsFile
	}
}
