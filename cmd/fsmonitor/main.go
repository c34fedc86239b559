// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command fsmonitor prints filesystem changes under the given paths, one
// line per changed path.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/suture/v4"

	_ "github.com/syncthing/fsmonitor/lib/backends"
	"github.com/syncthing/fsmonitor/lib/config"
	"github.com/syncthing/fsmonitor/lib/logger"
	"github.com/syncthing/fsmonitor/lib/monitor"
	"github.com/syncthing/fsmonitor/lib/svcutil"
)

var (
	l = logger.DefaultLogger.NewFacility("main", "Main command")

	errNoPaths = errors.New("no paths to watch")
)

type cli struct {
	Paths []string `arg:"" optional:"" name:"path" type:"path" help:"Paths to watch"`

	Monitor       string            `short:"m" placeholder:"NAME" help:"Monitor to use, see --list-monitors"`
	ListMonitors  bool              `short:"M" name:"list-monitors" help:"List the available monitors and exit"`
	ListEvents    bool              `name:"list-events" help:"List the event flags and exit"`
	Config        string            `short:"c" type:"existingfile" placeholder:"FILE" help:"Read monitor settings from a YAML or JSON file"`
	Latency       float64           `short:"l" placeholder:"SECONDS" help:"Batch events over this many seconds (default 1)"`
	Recursive     bool              `short:"r" help:"Watch subdirectories"`
	FollowLinks   bool              `short:"L" name:"follow-links" help:"Follow symbolic links"`
	AllowOverflow bool              `name:"allow-overflow" help:"Report queue overflows as events instead of exiting"`
	Property      map[string]string `placeholder:"KEY=VALUE" help:"Monitor specific property"`

	Include     []string `short:"i" placeholder:"PATTERN" help:"Include paths matching PATTERN"`
	Exclude     []string `short:"e" placeholder:"PATTERN" help:"Exclude paths matching PATTERN"`
	Insensitive bool     `short:"I" help:"Match patterns case insensitively"`
	Extended    bool     `short:"E" help:"Patterns are extended regular expressions"`
	Glob        bool     `help:"Patterns are globs"`
	Event       []string `placeholder:"FLAG" help:"Only report events with this flag"`

	EventFlags  bool   `short:"x" name:"event-flags" help:"Print the event flags"`
	Numeric     bool   `short:"n" help:"Print the event flags as a number"`
	Timestamp   bool   `short:"t" help:"Print the event time"`
	Format      string `short:"f" default:"${timeFormat}" help:"Time layout for --timestamp"`
	Print0      bool   `short:"0" help:"Terminate lines with NUL"`
	OneEvent    bool   `short:"1" name:"one-event" help:"Exit after the first batch of events"`
	BatchMarker bool   `name:"batch-marker" help:"Print a marker line after each batch"`

	MetricsListen string `name:"metrics-listen" placeholder:"ADDR" help:"Serve Prometheus metrics on this address"`
	Restart       bool   `help:"Restart the monitor after errors instead of exiting"`
	Verbose       bool   `short:"v" help:"Print debug output"`
}

func main() {
	var params cli
	kong.Parse(&params,
		kong.Name("fsmonitor"),
		kong.Description("Prints filesystem changes under the given paths."),
		kong.Vars{"timeFormat": time.ANSIC},
		kong.UsageOnError(),
	)

	if params.Verbose {
		for facility := range logger.DefaultLogger.Facilities() {
			logger.DefaultLogger.SetDebug(facility, true)
		}
		logger.DefaultLogger.SetFlags(logger.DebugFlags)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := params.run(ctx, os.Stdout)
	stop()
	if err != nil {
		l.Warnln(err)
		status := svcutil.ExitError
		var ferr *svcutil.FatalErr
		if errors.As(err, &ferr) {
			status = ferr.Status
		}
		os.Exit(status.AsInt())
	}
}

func (c *cli) run(ctx context.Context, out io.Writer) error {
	switch {
	case c.ListMonitors:
		return listMonitors(out)
	case c.ListEvents:
		return listEvents(out)
	}

	var cfg config.Configuration
	if c.Config != "" {
		var err error
		if cfg, err = config.Load(c.Config); err != nil {
			return err
		}
	}

	p := newPrinter(out)
	p.EventFlags = c.EventFlags
	p.Numeric = c.Numeric
	p.Timestamp = c.Timestamp
	p.TimeFormat = c.Format
	p.Print0 = c.Print0
	p.BatchMarker = c.BatchMarker

	m, err := c.createMonitor(cfg, p)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if c.OneEvent {
		p.afterBatch = cancel
	}

	sup := suture.New("fsmonitor", svcutil.SpecWithDebugLogger(l))
	sup.Add(svcutil.MonitorService(m, c.Restart))
	if c.MetricsListen != "" {
		sup.Add(metricsService(c.MetricsListen))
	}

	l.Debugln("starting", m, "on", m.Paths())
	err = sup.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return p.Err()
}

// createMonitor builds the monitor from the configuration file, with
// command line options taking precedence. Filters and event types from
// both sources are combined, file entries first.
func (c *cli) createMonitor(cfg config.Configuration, p *printer) (*monitor.Monitor, error) {
	if c.Latency < 0 {
		return nil, fmt.Errorf("invalid latency %v", c.Latency)
	}

	paths := c.Paths
	if len(paths) == 0 {
		paths = cfg.Paths
	}
	if len(paths) == 0 {
		return nil, errNoPaths
	}

	name := c.Monitor
	if name == "" {
		name = cfg.Monitor
	}
	var m *monitor.Monitor
	var err error
	if name == "" {
		m, err = monitor.CreateMonitorByType(monitor.TypeSystemDefault, paths, callback, p)
	} else {
		m, err = monitor.CreateMonitor(name, paths, callback, p)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.Apply(m); err != nil {
		return nil, err
	}

	if c.Latency > 0 {
		m.SetLatency(time.Duration(c.Latency * float64(time.Second)))
	}
	if c.Recursive {
		m.SetRecursive(true)
	}
	if c.FollowLinks {
		m.SetFollowSymlinks(true)
	}
	if c.AllowOverflow {
		m.SetAllowOverflow(true)
	}
	if len(c.Property) > 0 {
		props := m.Properties()
		for k, v := range c.Property {
			props[k] = v
		}
		m.SetProperties(props)
	}

	syntax := monitor.SyntaxBasic
	switch {
	case c.Glob:
		syntax = monitor.SyntaxGlob
	case c.Extended:
		syntax = monitor.SyntaxExtended
	}
	for _, pattern := range c.Include {
		if err := m.AddFilter(monitor.Filter{Text: pattern, Type: monitor.FilterInclude, CaseSensitive: !c.Insensitive, Syntax: syntax}); err != nil {
			return nil, err
		}
	}
	for _, pattern := range c.Exclude {
		if err := m.AddFilter(monitor.Filter{Text: pattern, Type: monitor.FilterExclude, CaseSensitive: !c.Insensitive, Syntax: syntax}); err != nil {
			return nil, err
		}
	}

	for _, ev := range c.Event {
		flag, err := monitor.ParseEventFlag(ev)
		if err != nil {
			return nil, err
		}
		m.AddEventTypeFilter(flag)
	}

	return m, nil
}

func listMonitors(out io.Writer) error {
	def, _ := monitor.DefaultType()
	for _, name := range monitor.Types() {
		if name == def {
			name += " (default)"
		}
		if _, err := fmt.Fprintln(out, name); err != nil {
			return err
		}
	}
	return nil
}

func listEvents(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	for _, flag := range monitor.AllEventFlags() {
		fmt.Fprintf(tw, "%s\t%d\n", flag, uint32(flag))
	}
	return tw.Flush()
}

func metricsService(addr string) suture.Service {
	return svcutil.AsService(func(ctx context.Context) error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return svcutil.AsFatalErr(err, svcutil.ExitError)
		}
		l.Infoln("Serving metrics on", ln.Addr())

		errs := make(chan error, 1)
		go func() { errs <- srv.Serve(ln) }()
		select {
		case <-ctx.Done():
			srv.Close()
			<-errs
			return nil
		case err := <-errs:
			return err
		}
	}, "metrics")
}
