/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package source

import (
	"context"
	"runtime"
	"time"

	"github.com/etsangsplk/cernan/config"
	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/router"
	"github.com/etsangsplk/cernan/stats"
)

// Internal reports the daemon's own health as first-class telemetry: the
// counter registry drained as Sum deltas each interval, plus a few
// runtime gauges. It rides its own ticker at the flush cadence.
type Internal struct {
	name     string
	interval time.Duration
	tags     map[string]string
	rt       *router.Router
}

func NewInternal(cfg *config.InternalConfig, tags map[string]string, rt *router.Router, interval time.Duration) *Internal {
	return &Internal{
		name:     "sources.internal",
		interval: interval,
		tags:     tags,
		rt:       rt,
	}
}

func (i *Internal) Name() string { return i.name }

func (i *Internal) Run(ctx context.Context) error {
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			i.report()
		}
	}
}

func (i *Internal) report() {
	now := time.Now().Unix()
	var points []*metric.Telemetry

	for name, delta := range stats.Snapshot() {
		points = append(points, metric.Restore(name, metric.Sum, now, false, nil, []float64{float64(delta)}))
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	points = append(points,
		metric.Restore("cernan.goroutines", metric.Set, now, false, nil, []float64{float64(runtime.NumGoroutine())}),
		metric.Restore("cernan.mem.heap_bytes", metric.Set, now, false, nil, []float64{float64(mem.HeapAlloc)}),
		metric.Restore("cernan.mem.gc_runs", metric.Set, now, false, nil, []float64{float64(mem.NumGC)}),
	)

	tagAll(i.tags, points)
	i.rt.Publish(i.name, metric.TelemetryEvent(points...))
}
