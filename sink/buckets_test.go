/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sink

import (
	"testing"

	"github.com/etsangsplk/cernan/metric"
)

func point(name string, kind metric.Kind, ts int64, value float64) *metric.Telemetry {
	return metric.Restore(name, kind, ts, false, nil, []float64{value})
}

func TestBucketsMergeWithinBin(t *testing.T) {
	b := NewBuckets(1)
	b.Add(point("hits", metric.Sum, 100, 1))
	b.Add(point("hits", metric.Sum, 100, 2))

	if b.Count() != 1 {
		t.Fatalf("Count = %d, want 1", b.Count())
	}
	b.Each(func(p *metric.Telemetry) {
		if p.Value() != 3 {
			t.Errorf("merged value = %v, want 3", p.Value())
		}
	})
}

func TestBucketsSeparateBins(t *testing.T) {
	b := NewBuckets(1)
	b.Add(point("hits", metric.Sum, 100, 1))
	b.Add(point("hits", metric.Sum, 101, 2))

	if b.Count() != 2 {
		t.Fatalf("Count = %d, want 2", b.Count())
	}
}

func TestBucketsBinWidth(t *testing.T) {
	b := NewBuckets(10)
	b.Add(point("hits", metric.Sum, 100, 1))
	b.Add(point("hits", metric.Sum, 109, 2)) // same 10s bin
	b.Add(point("hits", metric.Sum, 110, 4)) // next bin

	if b.Count() != 2 {
		t.Fatalf("Count = %d, want 2", b.Count())
	}
	var values []float64
	b.Each(func(p *metric.Telemetry) { values = append(values, p.Value()) })
	if values[0] != 3 || values[1] != 4 {
		t.Errorf("values = %v, want [3 4]", values)
	}
}

func TestBucketsDoesNotMutateDeliveredPoints(t *testing.T) {
	b := NewBuckets(1)
	original := point("hits", metric.Sum, 100, 1)
	b.Add(original)
	b.Add(point("hits", metric.Sum, 100, 5))

	if original.Value() != 1 {
		t.Errorf("delivered point mutated to %v", original.Value())
	}
}

func TestBucketsEachOrdering(t *testing.T) {
	b := NewBuckets(1)
	b.Add(point("zeta", metric.Sum, 100, 1))
	b.Add(point("alpha", metric.Sum, 101, 1))
	b.Add(point("alpha", metric.Sum, 100, 1))

	var names []string
	var times []int64
	b.Each(func(p *metric.Telemetry) {
		names = append(names, p.Name)
		times = append(times, p.Time)
	})

	if names[0] != "alpha" || names[1] != "alpha" || names[2] != "zeta" {
		t.Errorf("names = %v", names)
	}
	if times[0] != 100 || times[1] != 101 {
		t.Errorf("alpha times = %v", times[:2])
	}
}

func TestBucketsResetRetainsSets(t *testing.T) {
	b := NewBuckets(1)
	b.Add(point("gauge", metric.Set, 100, 4))
	b.Add(point("gauge", metric.Set, 101, 7))
	b.Add(point("counter", metric.Sum, 100, 3))
	b.Add(point("timer", metric.Summarize, 100, 1.5))

	b.Reset()

	if b.Count() != 1 {
		t.Fatalf("Count after reset = %d, want 1", b.Count())
	}
	b.Each(func(p *metric.Telemetry) {
		if p.Name != "gauge" || p.Value() != 7 {
			t.Errorf("retained %s=%v, want gauge=7", p.Name, p.Value())
		}
	})
}
