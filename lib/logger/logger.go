// Copyright (C) 2014 Jakob Borg. All rights reserved. Use of this source code
// is governed by an MIT-style license that can be found in the LICENSE file.

// Package logger implements a leveled logger with debug output switched per
// facility through the STTRACE environment variable.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
)

func (l LogLevel) prefix() string {
	switch l {
	case LevelDebug:
		return "DEBUG: "
	case LevelInfo:
		return "INFO: "
	default:
		return "WARNING: "
	}
}

const (
	DefaultFlags = log.Ltime | log.Ldate
	DebugFlags   = log.Ltime | log.Ldate | log.Lmicroseconds | log.Lshortfile
)

type Logger interface {
	SetFlags(flag int)
	Debugln(vals ...interface{})
	Debugf(format string, vals ...interface{})
	Infoln(vals ...interface{})
	Infof(format string, vals ...interface{})
	Warnln(vals ...interface{})
	Warnf(format string, vals ...interface{})
	SetDebug(facility string, enabled bool)
	Facilities() map[string]string
	NewFacility(facility, description string) Logger
}

type facility struct {
	description string
	debug       bool
}

type logger struct {
	out        *log.Logger
	traces     []string
	mut        sync.Mutex
	facilities map[string]*facility
}

// DefaultLogger logs to standard error. Standard output belongs to the event
// stream of the command line tool.
var DefaultLogger = New()

func New() Logger {
	if os.Getenv("LOGGER_DISCARD") != "" {
		return newLogger(io.Discard)
	}
	return newLogger(controlStripper{os.Stderr})
}

func newLogger(w io.Writer) *logger {
	traces := strings.FieldsFunc(os.Getenv("STTRACE"), func(r rune) bool {
		return strings.ContainsRune(",; ", r)
	})
	slices.Sort(traces)
	return &logger{
		out:        log.New(w, "", DefaultFlags),
		traces:     traces,
		facilities: make(map[string]*facility),
	}
}

// See log.SetFlags
func (l *logger) SetFlags(flag int) {
	l.out.SetFlags(flag)
}

func (l *logger) output(level LogLevel, s string) {
	// Two frames up is the caller of Debugln and friends.
	l.out.Output(3, level.prefix()+s)
}

func (l *logger) Debugln(vals ...interface{}) {
	l.output(LevelDebug, fmt.Sprintln(vals...))
}

func (l *logger) Debugf(format string, vals ...interface{}) {
	l.output(LevelDebug, fmt.Sprintf(format, vals...))
}

func (l *logger) Infoln(vals ...interface{}) {
	l.output(LevelInfo, fmt.Sprintln(vals...))
}

func (l *logger) Infof(format string, vals ...interface{}) {
	l.output(LevelInfo, fmt.Sprintf(format, vals...))
}

func (l *logger) Warnln(vals ...interface{}) {
	l.output(LevelWarn, fmt.Sprintln(vals...))
}

func (l *logger) Warnf(format string, vals ...interface{}) {
	l.output(LevelWarn, fmt.Sprintf(format, vals...))
}

// SetDebug enables or disables debugging for the given facility. Unknown
// facilities are remembered, so debugging may be enabled before the
// facility is created.
func (l *logger) SetDebug(name string, enabled bool) {
	l.mut.Lock()
	defer l.mut.Unlock()
	f, ok := l.facilities[name]
	if !ok {
		f = &facility{}
		l.facilities[name] = f
	}
	f.debug = enabled
}

func (l *logger) debugging(name string) bool {
	l.mut.Lock()
	defer l.mut.Unlock()
	f, ok := l.facilities[name]
	return ok && f.debug
}

func (l *logger) traced(name string) bool {
	if slices.Contains(l.traces, "all") {
		return true
	}
	_, found := slices.BinarySearch(l.traces, name)
	return found
}

// Facilities returns the known facilities and their descriptions.
func (l *logger) Facilities() map[string]string {
	l.mut.Lock()
	defer l.mut.Unlock()
	res := make(map[string]string, len(l.facilities))
	for name, f := range l.facilities {
		res[name] = f.description
	}
	return res
}

// NewFacility returns a logger whose debug output is only printed while
// debugging is enabled for the facility. STTRACE enables it initially.
func (l *logger) NewFacility(name, description string) Logger {
	l.mut.Lock()
	f, ok := l.facilities[name]
	if !ok {
		f = &facility{debug: l.traced(name)}
		l.facilities[name] = f
	}
	f.description = description
	l.mut.Unlock()

	return &facilityLogger{logger: l, name: name}
}

type facilityLogger struct {
	*logger
	name string
}

func (l *facilityLogger) Debugln(vals ...interface{}) {
	if l.debugging(l.name) {
		l.output(LevelDebug, fmt.Sprintln(vals...))
	}
}

func (l *facilityLogger) Debugf(format string, vals ...interface{}) {
	if l.debugging(l.name) {
		l.output(LevelDebug, fmt.Sprintf(format, vals...))
	}
}

// controlStripper replaces control characters other than line breaks with
// spaces.
type controlStripper struct {
	io.Writer
}

func (s controlStripper) Write(data []byte) (int, error) {
	for i, b := range data {
		if b < 32 && b != '\n' && b != '\r' {
			data[i] = ' '
		}
	}
	return s.Writer.Write(data)
}
