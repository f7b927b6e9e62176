/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package filter

import (
	"github.com/etsangsplk/cernan/metric"
)

// Delay holds events for a fixed number of flush beats before releasing
// them in arrival order. Sitting upstream of a sink it gives late,
// out-of-order points a chance to land in the same bin as their peers
// before the sink transmits.
type Delay struct {
	name      string
	tolerance uint64
	epoch     uint64
	held      []heldEvent
}

type heldEvent struct {
	ev      *metric.Event
	arrived uint64
}

func NewDelay(name string, tolerance uint64) *Delay {
	return &Delay{
		name:      name,
		tolerance: tolerance,
	}
}

func (d *Delay) Name() string { return d.name }

func (d *Delay) Process(ev *metric.Event) []*metric.Event {
	d.held = append(d.held, heldEvent{ev: ev, arrived: d.epoch})
	return nil
}

// Beat releases every event whose arrival beat is at least tolerance
// beats old. Held events are in arrival order, so the release prefix
// preserves it.
func (d *Delay) Beat(epoch uint64) []*metric.Event {
	d.epoch = epoch

	n := 0
	for _, h := range d.held {
		if h.arrived+d.tolerance > epoch {
			break
		}
		n++
	}
	if n == 0 {
		return nil
	}

	out := make([]*metric.Event, n)
	for i, h := range d.held[:n] {
		out[i] = h.ev
	}
	d.held = append(d.held[:0], d.held[n:]...)
	return out
}

func (d *Delay) Shutdown() []*metric.Event {
	out := make([]*metric.Event, len(d.held))
	for i, h := range d.held {
		out[i] = h.ev
	}
	d.held = nil
	return out
}
