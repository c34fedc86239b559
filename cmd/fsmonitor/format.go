// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/syncthing/fsmonitor/lib/monitor"
)

// printer writes event batches, one line per event:
//
//	[timestamp ]path[ flags]
type printer struct {
	EventFlags  bool
	Numeric     bool
	Timestamp   bool
	TimeFormat  string
	Print0      bool
	BatchMarker bool

	// Called after each written batch.
	afterBatch func()

	mut sync.Mutex
	w   *bufio.Writer
	err error
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: bufio.NewWriter(w)}
}

// callback is a monitor.Callback expecting the printer as its context
// value.
func callback(events []monitor.Event, context any) {
	context.(*printer).printBatch(events)
}

func (p *printer) printBatch(events []monitor.Event) {
	p.mut.Lock()
	for _, ev := range events {
		p.write(p.format(ev))
	}
	if p.BatchMarker {
		p.write(monitor.NoOp.String())
	}
	if err := p.w.Flush(); err != nil && p.err == nil {
		p.err = err
	}
	p.mut.Unlock()

	if p.afterBatch != nil {
		p.afterBatch()
	}
}

func (p *printer) write(line string) {
	p.w.WriteString(line)
	if p.Print0 {
		p.w.WriteByte(0)
	} else {
		p.w.WriteByte('\n')
	}
}

func (p *printer) format(ev monitor.Event) string {
	var b strings.Builder
	if p.Timestamp {
		b.WriteString(ev.Time.Format(p.TimeFormat))
		b.WriteByte(' ')
	}
	b.WriteString(ev.Path)
	switch {
	case p.Numeric:
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(uint64(ev.Flags), 10))
	case p.EventFlags:
		for _, name := range ev.Flags.Names() {
			b.WriteByte(' ')
			b.WriteString(name)
		}
	}
	return b.String()
}

// Err returns the first error encountered writing output.
func (p *printer) Err() error {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.err
}
