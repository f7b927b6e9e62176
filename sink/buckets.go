/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sink

import (
	"sort"

	logger "github.com/rs/zerolog/log"

	"github.com/etsangsplk/cernan/metric"
)

// Buckets folds telemetry into per-identity, per-bin aggregates between
// flushes. Incoming points are cloned before merging; published events
// are shared across consumers and must stay untouched.
type Buckets struct {
	binWidth int64
	bins     map[string][]*metric.Telemetry
}

func NewBuckets(binWidth uint64) *Buckets {
	if binWidth == 0 {
		binWidth = 1
	}
	return &Buckets{
		binWidth: int64(binWidth),
		bins:     map[string][]*metric.Telemetry{},
	}
}

func (b *Buckets) binTime(ts int64) int64 {
	return ts - (ts % b.binWidth)
}

// Add merges the point into its identity's bin for the point's time.
func (b *Buckets) Add(p *metric.Telemetry) {
	id := p.ID()
	bt := b.binTime(p.Time)
	for _, existing := range b.bins[id] {
		if b.binTime(existing.Time) == bt {
			if err := existing.Merge(p); err != nil {
				logger.Error().Err(err).Msg("Refused bucket merge.")
			}
			return
		}
	}

	c := p.Clone()
	c.Time = bt
	b.bins[id] = append(b.bins[id], c)
}

// Each visits every aggregate ordered by name, then time.
func (b *Buckets) Each(fn func(*metric.Telemetry)) {
	ids := make([]string, 0, len(b.bins))
	for id := range b.bins {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		points := b.bins[id]
		sort.Slice(points, func(i, j int) bool { return points[i].Time < points[j].Time })
		for _, p := range points {
			fn(p)
		}
	}
}

// Count is the number of aggregates held.
func (b *Buckets) Count() int {
	n := 0
	for _, points := range b.bins {
		n += len(points)
	}
	return n
}

// Reset clears the window. Set-kind identities keep their latest value:
// a gauge holds until something overwrites it, so the next window starts
// from where this one ended.
func (b *Buckets) Reset() {
	for id, points := range b.bins {
		last := points[len(points)-1]
		if last.Kind != metric.Set {
			delete(b.bins, id)
			continue
		}
		keep := last.Clone()
		b.bins[id] = []*metric.Telemetry{keep}
	}
}
