/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package queue provides the buffers between pipeline hops. Producers never
// block on a slow consumer: the memory queue sheds load when full, the disk
// queue spools it. Control events (flush beats, shutdown) travel a side
// channel so a stalled consumer can still be beaten into flushing.
package queue

import (
	"github.com/etsangsplk/cernan/metric"
)

// controlDepth bounds pending control events. Beats beyond this are dropped;
// they are periodic and the next one carries the same meaning.
const controlDepth = 16

// Queue is one hop buffer. Data events are consumed from Data, control
// events from Control; consumers that stop draining Data (closed valve)
// must keep draining Control.
type Queue interface {
	// Name identifies the hop, for logs and on-disk paths.
	Name() string

	// Publish offers an event to the queue. It never blocks on the
	// consumer, except for shutdown events, which are always delivered.
	Publish(ev *metric.Event)

	// Data yields data events in publish order.
	Data() <-chan *metric.Event

	// Control yields flush and shutdown events.
	Control() <-chan *metric.Event

	// Ack marks everything delivered so far as safely handled. The disk
	// queue truncates its backlog here; the memory queue forgets nothing
	// because it has nothing to forget.
	Ack()

	// Close releases the queue's resources. Publish must not be called
	// after Close.
	Close() error
}

func isControl(ev *metric.Event) bool {
	return ev.Kind == metric.EventTimerFlush || ev.Kind == metric.EventShutdown
}
