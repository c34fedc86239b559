// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/syncthing/fsmonitor/lib/monitor"
)

var (
	testTime   = time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)
	testEvents = []monitor.Event{
		{Path: "/srv/a", Time: testTime, Flags: monitor.Created | monitor.IsFile},
		{Path: "/srv/b", Time: testTime, Flags: monitor.Removed},
	}
)

func TestPrinterFormat(t *testing.T) {
	cases := []struct {
		name     string
		setup    func(p *printer)
		expected string
	}{
		{"plain", func(p *printer) {}, "/srv/a\n/srv/b\n"},
		{"flags", func(p *printer) { p.EventFlags = true }, "/srv/a Created IsFile\n/srv/b Removed\n"},
		{"numeric", func(p *printer) { p.EventFlags, p.Numeric = true, true }, "/srv/a 514\n/srv/b 8\n"},
		{"timestamp", func(p *printer) {
			p.Timestamp = true
			p.TimeFormat = time.DateTime
		}, "2024-03-01 12:30:45 /srv/a\n2024-03-01 12:30:45 /srv/b\n"},
		{"print0", func(p *printer) { p.Print0 = true }, "/srv/a\x00/srv/b\x00"},
		{"batch marker", func(p *printer) { p.BatchMarker = true }, "/srv/a\n/srv/b\nNoOp\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := newPrinter(&buf)
			tc.setup(p)
			callback(testEvents, p)
			if buf.String() != tc.expected {
				t.Errorf("got %q, expected %q", buf.String(), tc.expected)
			}
			if err := p.Err(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestPrinterOverflowEvent(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)
	p.EventFlags = true
	callback([]monitor.Event{{Time: testTime, Flags: monitor.Overflow}}, p)
	if buf.String() != " Overflow\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestPrinterAfterBatch(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)
	calls := 0
	p.afterBatch = func() { calls++ }
	callback(testEvents, p)
	callback(testEvents[:1], p)
	if calls != 2 {
		t.Errorf("afterBatch called %d times", calls)
	}
}
