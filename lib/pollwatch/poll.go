// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package pollwatch implements a monitor backend that periodically stats
// the watched paths and reports the differences between two scans. It works
// everywhere, at the cost of latency and I/O.
package pollwatch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/syncthing/fsmonitor/lib/monitor"
)

const (
	Name = "poll_monitor"

	// PropMinInterval overrides the lower bound of the scan interval, as
	// a Go duration string.
	PropMinInterval = "poll.min_interval"
)

// Not meant to be changed, but must be changeable for tests
var minInterval = 100 * time.Millisecond

func init() {
	monitor.MustRegister[backend](Name, monitor.TypePoll)
}

type fileState struct {
	size    int64
	modTime time.Time
	mode    fs.FileMode
	kind    monitor.EventFlag
}

type snapshot map[string]fileState

type backend struct {
	warn *rate.Sometimes
}

func (b *backend) Run(ctx context.Context, m *monitor.Monitor) error {
	b.warn = &rate.Sometimes{First: 1, Interval: time.Minute}

	floor := minInterval
	if val, err := m.Property(PropMinInterval); err == nil {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("property %s: %w", PropMinInterval, err)
		}
		floor = d
	}
	interval := monitor.Interval(m, floor)

	for _, path := range m.Paths() {
		if _, err := os.Lstat(path); err != nil {
			return &monitor.StartError{Path: path, Err: err}
		}
	}

	prev := b.scan(m)
	l.Debugf("%v: baseline of %d entries, polling every %v", m, len(prev), interval)

	batcher := monitor.NewBatcher(m)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cur := b.scan(m)
			for _, ev := range compare(prev, cur, time.Now()) {
				if err := batcher.Add(ev); err != nil {
					return err
				}
			}
			prev = cur
			batcher.Flush()
		}
	}
}

func (b *backend) scan(m *monitor.Monitor) snapshot {
	s := &scanner{
		snap:      make(snapshot),
		visited:   make(map[string]struct{}),
		recursive: m.Recursive(),
		follow:    m.FollowSymlinks(),
		warn:      b.warn,
	}
	for _, path := range m.Paths() {
		s.scanPath(path, true)
	}
	return s.snap
}

type scanner struct {
	snap      snapshot
	visited   map[string]struct{}
	recursive bool
	follow    bool
	warn      *rate.Sometimes
}

// scanPath records path and, for directories, their children. Below the
// top level directories are only descended into when recursive.
func (s *scanner) scanPath(path string, top bool) {
	info, err := os.Lstat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.warnf("Polling %s: %v", path, err)
		}
		return
	}

	kind := monitor.IsFile
	if info.Mode()&fs.ModeSymlink != 0 {
		kind = monitor.IsSymLink
		if s.follow {
			if target, err := os.Stat(path); err == nil {
				info = target
				kind = monitor.IsFile
			}
		}
	}
	if info.IsDir() {
		kind = monitor.IsDir
	}

	s.snap[path] = fileState{
		size:    info.Size(),
		modTime: info.ModTime(),
		mode:    info.Mode(),
		kind:    kind,
	}

	if kind != monitor.IsDir || (!top && !s.recursive) {
		return
	}

	if s.follow {
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			s.warnf("Resolving %s: %v", path, err)
			return
		}
		if _, ok := s.visited[resolved]; ok {
			return
		}
		s.visited[resolved] = struct{}{}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		s.warnf("Listing %s: %v", path, err)
		return
	}
	for _, entry := range entries {
		s.scanPath(filepath.Join(path, entry.Name()), false)
	}
}

func (s *scanner) warnf(format string, vals ...interface{}) {
	l.Debugf(format, vals...)
	s.warn.Do(func() {
		l.Warnf(format, vals...)
	})
}

// compare returns the events that turn prev into cur, sorted by path.
func compare(prev, cur snapshot, now time.Time) []monitor.Event {
	var events []monitor.Event
	for path, st := range cur {
		old, ok := prev[path]
		if !ok {
			events = append(events, monitor.Event{Path: path, Time: now, Flags: monitor.Created | st.kind})
			continue
		}

		var flags monitor.EventFlag
		if old.kind != st.kind {
			flags |= monitor.Removed | monitor.Created
		}
		if old.size != st.size || !old.modTime.Equal(st.modTime) {
			flags |= monitor.Updated
		}
		if old.mode != st.mode {
			flags |= monitor.AttributeModified
		}
		if flags != monitor.NoOp {
			events = append(events, monitor.Event{Path: path, Time: now, Flags: flags | st.kind})
		}
	}
	for path, st := range prev {
		if _, ok := cur[path]; !ok {
			events = append(events, monitor.Event{Path: path, Time: now, Flags: monitor.Removed | st.kind})
		}
	}

	slices.SortFunc(events, func(a, b monitor.Event) int {
		return strings.Compare(a.Path, b.Path)
	})
	return events
}
