// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !(solaris && !cgo) && !(darwin && !cgo) && !(android && amd64)
// +build !solaris cgo
// +build !darwin cgo
// +build !android !amd64

package notifywatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/syncthing/notify"
	"golang.org/x/text/unicode/norm"

	"github.com/syncthing/fsmonitor/lib/monitor"
)

const eventMask = notify.Create | notify.Write | notify.Remove | notify.Rename

// Notify does not block on sending to channel, so the channel must be buffered.
// The actual number is magic.
const defaultBufferSize = 500

// Not meant to be changed, but must be changeable for tests
var minInterval = 10 * time.Millisecond

func init() {
	monitor.MustRegister[backend](Name, monitor.TypeNotify)
}

type backend struct{}

func bufferSize(m *monitor.Monitor) (int, error) {
	val, err := m.Property(PropBufferSize)
	if err != nil {
		return defaultBufferSize, nil
	}
	size, err := strconv.Atoi(val)
	if err != nil || size < 1 {
		return 0, fmt.Errorf("property %s: invalid size %q", PropBufferSize, val)
	}
	return size, nil
}

// watchPath returns the path to hand to notify for the given root.
func watchPath(m *monitor.Monitor, root string) (string, error) {
	path, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if m.FollowSymlinks() {
		if path, err = filepath.EvalSymlinks(path); err != nil {
			return "", err
		}
	}
	if m.Recursive() {
		path = filepath.Join(path, "...")
	}
	return path, nil
}

func (*backend) Run(ctx context.Context, m *monitor.Monitor) error {
	size, err := bufferSize(m)
	if err != nil {
		return err
	}

	backendChan := make(chan notify.EventInfo, size)
	defer notify.Stop(backendChan)

	for _, root := range m.Paths() {
		path, err := watchPath(m, root)
		if err != nil {
			return &monitor.StartError{Path: root, Err: err}
		}
		if err := notify.Watch(path, backendChan, eventMask); err != nil {
			if reachedMaxUserWatches(err) {
				err = errors.New("failed to setup inotify handler, please increase inotify limits")
			}
			return &monitor.StartError{Path: root, Err: err}
		}
		l.Debugln(m, "watching", path)
	}

	batcher := monitor.NewBatcher(m)
	ticker := time.NewTicker(monitor.Interval(m, minInterval))
	defer ticker.Stop()

	for {
		// Detect channel overflow
		if len(backendChan) == size {
		outer:
			for {
				select {
				case <-backendChan:
				default:
					break outer
				}
			}
			l.Debugln(m, "backend channel overflow")
			if err := m.NotifyOverflow(); err != nil {
				return err
			}
		}

		select {
		case ev := <-backendChan:
			err := batcher.Add(monitor.Event{
				Path:  normalizePath(ev.Path()),
				Time:  time.Now(),
				Flags: eventFlags(ev.Event()),
			})
			if err != nil {
				return err
			}
		case <-ticker.C:
			batcher.Flush()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func eventFlags(ev notify.Event) monitor.EventFlag {
	var flags monitor.EventFlag
	if ev&notify.Create != 0 {
		flags |= monitor.Created
	}
	if ev&notify.Write != 0 {
		flags |= monitor.Updated
	}
	if ev&notify.Remove != 0 {
		flags |= monitor.Removed
	}
	if ev&notify.Rename != 0 {
		flags |= monitor.Renamed
	}
	if flags == monitor.NoOp {
		flags = monitor.PlatformSpecific
	}
	return flags
}

// FSEvents reports paths in decomposed form, while the paths given to the
// monitor are usually composed.
func normalizePath(path string) string {
	if runtime.GOOS == "darwin" || runtime.GOOS == "ios" {
		return norm.NFC.String(path)
	}
	return path
}
