/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package metric defines the units of data cernan moves: Telemetry points,
// raw LogLines and the Event envelope queues carry between pipeline hops.
package metric

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Kind determines how points with the same identity combine when they land
// in the same one-second bin.
type Kind int

const (
	// Set is last-write-wins. Gauges and graphite points are Sets.
	Set Kind = iota
	// Sum adds. Statsd counters are Sums.
	Sum
	// Summarize retains samples and reports quantiles. Statsd timers and
	// histograms are Summarize.
	Summarize
	// Histogram retains samples and reports per-sample counts.
	Histogram
)

func (k Kind) String() string {
	switch k {
	case Set:
		return "set"
	case Sum:
		return "sum"
	case Summarize:
		return "summarize"
	case Histogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Telemetry is a single named numeric observation. Identity for binning is
// (Name, sorted Tags, Kind); Time is truncated to whole seconds, the bin
// granularity throughout the pipeline.
type Telemetry struct {
	Name string
	Time int64
	Kind Kind
	Tags map[string]string

	// Delta marks a Set produced by a statsd "+n"/"-n" gauge, which adjusts
	// the previous bin value on merge instead of replacing it.
	Delta bool

	values []float64
}

// New allocates a Set-kind point carrying a single value. Time is left at
// zero; sources stamp it on ingest.
func New(name string, value float64) *Telemetry {
	return &Telemetry{
		Name:   name,
		Kind:   Set,
		values: []float64{value},
	}
}

// Restore rebuilds a point from its stored parts. Codecs use it; samples
// are adopted, not copied.
func Restore(name string, kind Kind, ts int64, delta bool, tags map[string]string, samples []float64) *Telemetry {
	return &Telemetry{
		Name:   name,
		Kind:   kind,
		Time:   ts,
		Delta:  delta,
		Tags:   tags,
		values: samples,
	}
}

// ID is the merge identity: name, kind and sorted tag pairs. Two points
// with equal IDs and equal time bins may be merged.
func (t *Telemetry) ID() string {
	var b strings.Builder
	b.WriteString(t.Name)
	b.WriteByte(0)
	b.WriteString(t.Kind.String())
	for _, k := range t.sortedTagKeys() {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(t.Tags[k])
	}
	return b.String()
}

// Hash is a stable 64-bit digest of the identity, used for partition keying.
func (t *Telemetry) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(t.ID()))
	return h.Sum64()
}

func (t *Telemetry) sortedTagKeys() []string {
	if len(t.Tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.Tags))
	for k := range t.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TagString renders the tags as "k=v" pairs joined by sep, in key order.
func (t *Telemetry) TagString(sep string) string {
	keys := t.sortedTagKeys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+t.Tags[k])
	}
	return strings.Join(parts, sep)
}

// Merge folds other into t according to t's kind. Callers must only merge
// points with equal identities; mismatched identities are a routing bug and
// reported as an error rather than silently combined.
func (t *Telemetry) Merge(other *Telemetry) error {
	if t.Kind != other.Kind || t.Name != other.Name {
		return errors.Errorf("cannot merge %s/%s into %s/%s", other.Name, other.Kind, t.Name, t.Kind)
	}
	switch t.Kind {
	case Set:
		if other.Delta {
			t.values[0] += other.value()
		} else {
			t.values[0] = other.value()
		}
	case Sum:
		t.values[0] += other.value()
	case Summarize, Histogram:
		t.values = append(t.values, other.values...)
	}
	if other.Time > t.Time {
		t.Time = other.Time
	}
	return nil
}

func (t *Telemetry) value() float64 {
	if len(t.values) == 0 {
		return 0
	}
	return t.values[0]
}

// Value is the scalar view of the point: the stored value for Set and Sum,
// the sample mean for Summarize and Histogram.
func (t *Telemetry) Value() float64 {
	switch t.Kind {
	case Set, Sum:
		return t.value()
	default:
		if len(t.values) == 0 {
			return 0
		}
		var sum float64
		for _, v := range t.values {
			sum += v
		}
		return sum / float64(len(t.values))
	}
}

// Count is the number of samples folded into the point.
func (t *Telemetry) Count() int {
	return len(t.values)
}

// Sum is the arithmetic total of all samples.
func (t *Telemetry) Sum() float64 {
	var sum float64
	for _, v := range t.values {
		sum += v
	}
	return sum
}

// Min returns the smallest retained sample.
func (t *Telemetry) Min() float64 {
	if len(t.values) == 0 {
		return 0
	}
	min := t.values[0]
	for _, v := range t.values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// Max returns the largest retained sample.
func (t *Telemetry) Max() float64 {
	if len(t.values) == 0 {
		return 0
	}
	max := t.values[0]
	for _, v := range t.values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// Query reports the q-quantile (0 <= q <= 1) of the retained samples by
// nearest rank. Samples are retained exactly, so the answer is exact; the
// trade against a sketch is memory, bounded here by the flush interval.
func (t *Telemetry) Query(q float64) float64 {
	if len(t.values) == 0 {
		return 0
	}
	sorted := make([]float64, len(t.values))
	copy(sorted, t.values)
	sort.Float64s(sorted)
	rank := int(math.Round(q * float64(len(sorted)-1)))
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// Samples returns a copy of the retained samples.
func (t *Telemetry) Samples() []float64 {
	out := make([]float64, len(t.values))
	copy(out, t.values)
	return out
}

// Clone returns an independent copy. Sinks that persist Set bins across
// flushes clone before resetting their windows.
func (t *Telemetry) Clone() *Telemetry {
	c := &Telemetry{
		Name:   t.Name,
		Time:   t.Time,
		Kind:   t.Kind,
		Delta:  t.Delta,
		values: make([]float64, len(t.values)),
	}
	copy(c.values, t.values)
	if t.Tags != nil {
		c.Tags = make(map[string]string, len(t.Tags))
		for k, v := range t.Tags {
			c.Tags[k] = v
		}
	}
	return c
}

// AddTags overlays tags onto the point without clobbering existing keys.
// Sources use it to apply the global tag set beneath per-point tags.
func (t *Telemetry) AddTags(tags map[string]string) {
	if len(tags) == 0 {
		return
	}
	if t.Tags == nil {
		t.Tags = make(map[string]string, len(tags))
	}
	for k, v := range tags {
		if _, ok := t.Tags[k]; !ok {
			t.Tags[k] = v
		}
	}
}
