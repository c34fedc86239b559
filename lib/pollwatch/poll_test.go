// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pollwatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"
	"golang.org/x/time/rate"

	"github.com/syncthing/fsmonitor/lib/monitor"
)

func createFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func scanPaths(t *testing.T, root string, recursive, follow bool) []string {
	t.Helper()
	m := monitor.New(&backend{}, []string{root}, nil, nil)
	m.SetRecursive(recursive)
	m.SetFollowSymlinks(follow)
	b := &backend{warn: &rate.Sometimes{First: 1}}
	var paths []string
	for path := range b.scan(m) {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			t.Fatal(err)
		}
		paths = append(paths, filepath.ToSlash(rel))
	}
	slices.Sort(paths)
	return paths
}

func TestScanRecursion(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub", "deeper"), 0o755); err != nil {
		t.Fatal(err)
	}
	createFile(t, filepath.Join(root, "top"))
	createFile(t, filepath.Join(root, "sub", "file"))
	createFile(t, filepath.Join(root, "sub", "deeper", "file"))

	flat := scanPaths(t, root, false, false)
	if diff, equal := messagediff.PrettyDiff([]string{".", "sub", "top"}, flat); !equal {
		t.Errorf("non-recursive scan:\n%s", diff)
	}

	deep := scanPaths(t, root, true, false)
	expected := []string{".", "sub", "sub/deeper", "sub/deeper/file", "sub/file", "top"}
	if diff, equal := messagediff.PrettyDiff(expected, deep); !equal {
		t.Errorf("recursive scan:\n%s", diff)
	}
}

func TestScanSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	root := t.TempDir()
	target := t.TempDir()
	createFile(t, filepath.Join(target, "inside"))
	if err := os.Symlink(target, filepath.Join(root, "link")); err != nil {
		t.Fatal(err)
	}
	// A loop back to the root must not be followed forever.
	if err := os.Symlink(root, filepath.Join(target, "loop")); err != nil {
		t.Fatal(err)
	}

	plain := scanPaths(t, root, true, false)
	if diff, equal := messagediff.PrettyDiff([]string{".", "link"}, plain); !equal {
		t.Errorf("scan without following:\n%s", diff)
	}

	followed := scanPaths(t, root, true, true)
	expected := []string{".", "link", "link/inside", "link/loop"}
	if diff, equal := messagediff.PrettyDiff(expected, followed); !equal {
		t.Errorf("scan following symlinks:\n%s", diff)
	}
}

func TestCompare(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	prev := snapshot{
		"/same":    {size: 1, modTime: t0, mode: 0o644, kind: monitor.IsFile},
		"/grown":   {size: 1, modTime: t0, mode: 0o644, kind: monitor.IsFile},
		"/chmod":   {size: 1, modTime: t0, mode: 0o644, kind: monitor.IsFile},
		"/gone":    {size: 1, modTime: t0, mode: 0o644, kind: monitor.IsFile},
		"/swapped": {size: 1, modTime: t0, mode: 0o644, kind: monitor.IsFile},
	}
	cur := snapshot{
		"/same":    {size: 1, modTime: t0, mode: 0o644, kind: monitor.IsFile},
		"/grown":   {size: 2, modTime: t0.Add(time.Second), mode: 0o644, kind: monitor.IsFile},
		"/chmod":   {size: 1, modTime: t0, mode: 0o600, kind: monitor.IsFile},
		"/new":     {size: 0, modTime: t0, mode: 0o755 | os.ModeDir, kind: monitor.IsDir},
		"/swapped": {size: 1, modTime: t0, mode: 0o755 | os.ModeDir, kind: monitor.IsDir},
	}

	var got []string
	for _, ev := range compare(prev, cur, t0) {
		got = append(got, ev.Path+" "+ev.Flags.String())
	}
	expected := []string{
		"/chmod AttributeModified,IsFile",
		"/gone Removed,IsFile",
		"/grown Updated,IsFile",
		"/new Created,IsDir",
		"/swapped Created,Removed,AttributeModified,IsDir",
	}
	if diff, equal := messagediff.PrettyDiff(expected, got); !equal {
		t.Errorf("unexpected events:\n%s", diff)
	}
}

func TestMissingPath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	m := monitor.New(&backend{}, []string{missing}, nil, nil)

	err := m.Start(context.Background())
	var startErr *monitor.StartError
	if !errors.As(err, &startErr) || startErr.Path != missing {
		t.Errorf("expected StartError for %s, got %v", missing, err)
	}
}

func TestInvalidMinInterval(t *testing.T) {
	m := monitor.New(&backend{}, []string{t.TempDir()}, nil, nil)
	m.SetProperties(map[string]string{PropMinInterval: "soon"})
	if err := m.Start(context.Background()); err == nil {
		t.Error("expected an error for an invalid interval")
	}
}

func TestPollDetectsCreation(t *testing.T) {
	minInterval = 10 * time.Millisecond
	defer func() {
		minInterval = 100 * time.Millisecond
	}()

	root := t.TempDir()
	created := make(chan monitor.Event, 16)
	var once sync.Once
	m, err := monitor.CreateMonitor(Name, []string{root}, func(events []monitor.Event, _ any) {
		for _, ev := range events {
			if ev.Flags.Has(monitor.Created) {
				once.Do(func() { created <- ev })
			}
		}
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.SetLatency(20 * time.Millisecond)
	m.SetEventTypeFilters([]monitor.EventFlag{monitor.Created, monitor.IsFile})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- m.Start(ctx)
	}()

	// The baseline scan races with the first files; keep creating new
	// ones until one is reported.
	timeout := time.After(10 * time.Second)
	var ev monitor.Event
loop:
	for i := 0; ; i++ {
		createFile(t, filepath.Join(root, "file"+strconv.Itoa(i)))
		select {
		case ev = <-created:
			break loop
		case <-timeout:
			t.Fatal("timed out waiting for a creation event")
		case <-time.After(30 * time.Millisecond):
		}
	}

	if filepath.Dir(ev.Path) != root || ev.Flags != monitor.Created|monitor.IsFile {
		t.Errorf("unexpected event %v", ev)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start returned %v", err)
	}
}
