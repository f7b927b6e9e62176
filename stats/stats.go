/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package stats is the process-global registry of cernan's own counters.
// Pipeline code bumps counters by name from any goroutine; the internal
// source drains the registry into Telemetry once per flush.
package stats

import (
	"sort"
	"sync"
	"sync/atomic"
)

var (
	mu       sync.Mutex
	counters = make(map[string]*uint64)
)

func counter(name string) *uint64 {
	mu.Lock()
	defer mu.Unlock()
	c, ok := counters[name]
	if !ok {
		c = new(uint64)
		counters[name] = c
	}
	return c
}

// Inc bumps the named counter by one.
func Inc(name string) {
	Add(name, 1)
}

// Add bumps the named counter by n.
func Add(name string, n uint64) {
	atomic.AddUint64(counter(name), n)
}

// Get reads the current value of the named counter without resetting it.
func Get(name string) uint64 {
	return atomic.LoadUint64(counter(name))
}

// Snapshot drains every counter, returning the deltas accumulated since the
// previous snapshot. Counters that saw no traffic are still reported, at
// zero, so downstream series do not go absent between increments.
func Snapshot() map[string]uint64 {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]uint64, len(counters))
	for name, c := range counters {
		out[name] = atomic.SwapUint64(c, 0)
	}
	return out
}

// Names lists the registered counters in sorted order.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset drops every registered counter. Tests use it to isolate themselves.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	counters = make(map[string]*uint64)
}
