// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fsmonitor",
		Subsystem: "monitor",
		Name:      "events_received_total",
		Help:      "Total number of events reported by backends, before filtering",
	}, []string{"monitor"})
	metricEventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fsmonitor",
		Subsystem: "monitor",
		Name:      "events_delivered_total",
		Help:      "Total number of events passed to callbacks",
	}, []string{"monitor"})
	metricBatchesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fsmonitor",
		Subsystem: "monitor",
		Name:      "batches_delivered_total",
		Help:      "Total number of callback invocations",
	}, []string{"monitor"})
	metricOverflows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fsmonitor",
		Subsystem: "monitor",
		Name:      "overflows_total",
		Help:      "Total number of overflows reported by backends",
	}, []string{"monitor"})
	metricRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fsmonitor",
		Subsystem: "monitor",
		Name:      "running",
		Help:      "Whether a run loop is in progress",
	}, []string{"monitor"})
)
