// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	wireCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "psuemu",
			Subsystem: "wire",
			Name:      "commands_total",
			Help:      "Wire frames handled, by dialect, operation and outcome.",
		},
		[]string{"dialect", "op", "outcome"},
	)
	backdoorCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "psuemu",
			Subsystem: "backdoor",
			Name:      "calls_total",
			Help:      "Backdoor calls, by function and success.",
		},
		[]string{"function", "success"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "psuemu",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total backdoor HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "psuemu",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Backdoor HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "psuemu",
			Subsystem: "device",
			Name:      "connected",
			Help:      "1 while the emulated link is up.",
		},
	)
)

// Outcome labels for wire commands.
const (
	OutcomeReplied = "replied"
	OutcomeSilent  = "silent"
	OutcomeDropped = "dropped"
	OutcomeFault   = "fault"
)

// OpAny labels frames counted before they were parsed.
const OpAny = "any"

// RegisterMetrics registers every collector with the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(wireCommands, backdoorCalls, httpRequests, httpDuration, connected)
	})
}

// RecordCommand counts one wire frame by dialect, operation and outcome.
func RecordCommand(dialect, op, outcome string) {
	RegisterMetrics()
	wireCommands.WithLabelValues(dialect, op, outcome).Inc()
}

// RecordBackdoorCall counts one backdoor function call.
func RecordBackdoorCall(function string, success bool) {
	RegisterMetrics()
	backdoorCalls.WithLabelValues(function, strconv.FormatBool(success)).Inc()
}

// RecordHTTPRequest counts and times one backdoor HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// SetConnected sets the link gauge to 1 or 0.
func SetConnected(up bool) {
	RegisterMetrics()
	if up {
		connected.Set(1)
	} else {
		connected.Set(0)
	}
}
