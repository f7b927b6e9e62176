/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sink implements the pipeline's delivery ends. A sink buffers
// what it is given between flush beats and transmits on the beat; its
// valve tells the runner to stop feeding it while the in-flight buffer
// is full. Queue policy upstream decides what happens to events that
// arrive while the valve is closed.
package sink

import (
	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/queue"
)

// ValveState reports whether a sink can accept more data.
type ValveState int

const (
	Open ValveState = iota
	Closed
)

type Sink interface {
	Name() string
	// Deliver buffers one telemetry point.
	Deliver(*metric.Telemetry)
	// DeliverLine buffers one log line.
	DeliverLine(*metric.LogLine)
	// DeliverRaw buffers one opaque payload with its partition key.
	DeliverRaw(orderBy uint64, enc metric.Encoding, payload []byte)
	// Flush transmits everything buffered. Must tolerate an empty buffer.
	Flush()
	// Valve reports whether the runner may keep feeding data.
	Valve() ValveState
	// FlushInterval optionally overrides the beat cadence: flush every n
	// beats instead of every beat.
	FlushInterval() (n uint64, ok bool)
	// Shutdown performs the final flush and releases resources.
	Shutdown()
}

// Run drains the hop queue into s until shutdown. While the valve is
// closed only control events are consumed; the flush beat keeps arriving
// and gives the sink its chance to clear the in-flight buffer and
// reopen. The runner acknowledges the queue at flush boundaries, which
// is what bounds replay for durable hops.
func Run(s Sink, q queue.Queue) {
	beats := uint64(1)
	if n, ok := s.FlushInterval(); ok && n > 0 {
		beats = n
	}

	deliver := func(ev *metric.Event) {
		switch ev.Kind {
		case metric.EventTelemetry:
			for _, p := range ev.Telemetry {
				s.Deliver(p)
			}
		case metric.EventLog:
			for _, l := range ev.Lines {
				s.DeliverLine(l)
			}
		case metric.EventRaw:
			s.DeliverRaw(ev.OrderBy, ev.Encoding, ev.Payload)
		}
	}

	// Upstream publishers are gone by the time shutdown arrives, so a
	// non-blocking drain empties the hop for good.
	finish := func() {
		for {
			select {
			case ev := <-q.Data():
				if ev.Kind != metric.EventShutdown {
					deliver(ev)
				}
			default:
				s.Shutdown()
				q.Ack()
				return
			}
		}
	}

	control := func(ev *metric.Event) bool {
		switch ev.Kind {
		case metric.EventTimerFlush:
			if ev.Flush%beats == 0 {
				s.Flush()
				q.Ack()
			}
		case metric.EventShutdown:
			finish()
			return true
		}
		return false
	}

	for {
		if s.Valve() == Closed {
			if control(<-q.Control()) {
				return
			}
			continue
		}
		select {
		case ev := <-q.Data():
			if ev.Kind == metric.EventShutdown {
				finish()
				return
			}
			deliver(ev)
		case ev := <-q.Control():
			if control(ev) {
				return
			}
		}
	}
}
