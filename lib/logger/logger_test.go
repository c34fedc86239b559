// Copyright (C) 2014 Jakob Borg. All rights reserved. Use of this source code
// is governed by an MIT-style license that can be found in the LICENSE file.

package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelPrefixes(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf)
	l.SetFlags(0)

	l.Debugln("d")
	l.Infof("i%d", 1)
	l.Warnln("w")

	expected := "DEBUG: d\nINFO: i1\nWARNING: w\n"
	if buf.String() != expected {
		t.Errorf("got %q, expected %q", buf.String(), expected)
	}
}

func TestFacilityDebugging(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf)

	f := l.NewFacility("monitor", "Monitor engine")
	f.Debugln("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug output without debugging enabled: %q", buf.String())
	}

	l.SetDebug("monitor", true)
	f.Debugln("shown")
	if !strings.Contains(buf.String(), "DEBUG: shown") {
		t.Errorf("missing debug output, got %q", buf.String())
	}

	if descr := l.Facilities()["monitor"]; descr != "Monitor engine" {
		t.Errorf("unexpected facility description %q", descr)
	}
}

func TestControlStripper(t *testing.T) {
	var buf bytes.Buffer
	w := controlStripper{&buf}
	w.Write([]byte("a\x1bb\tc\n"))
	if got := buf.String(); got != "a b c\n" {
		t.Errorf("got %q", got)
	}
}
