/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package filter holds the transform hops: a filter consumes its queue,
// rewrites or reschedules data events, and republishes to its forwards.
// Flush beats drive filter bookkeeping but are never republished; the
// flush timer already reaches every hop directly.
package filter

import (
	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/queue"
	"github.com/etsangsplk/cernan/router"
)

type Filter interface {
	Name() string
	// Process transforms one data event into zero or more events to
	// publish downstream.
	Process(ev *metric.Event) []*metric.Event
	// Beat observes a flush epoch and may release events it was holding.
	Beat(epoch uint64) []*metric.Event
	// Shutdown surrenders everything still held.
	Shutdown() []*metric.Event
}

// Run drains the hop queue through f until shutdown. The runner exits
// only after upstream publishers have stopped, so a final non-blocking
// drain of the data channel cannot lose events.
func Run(f Filter, q queue.Queue, rt *router.Router) {
	publish := func(events []*metric.Event) {
		for _, ev := range events {
			rt.Publish(f.Name(), ev)
		}
	}

	finish := func() {
		for {
			select {
			case ev := <-q.Data():
				if ev.Kind != metric.EventShutdown {
					publish(f.Process(ev))
				}
			default:
				publish(f.Shutdown())
				q.Ack()
				return
			}
		}
	}

	for {
		select {
		case ev := <-q.Data():
			if ev.Kind == metric.EventShutdown {
				finish()
				return
			}
			publish(f.Process(ev))
		case ev := <-q.Control():
			switch ev.Kind {
			case metric.EventTimerFlush:
				publish(f.Beat(ev.Flush))
				q.Ack()
			case metric.EventShutdown:
				finish()
				return
			}
		}
	}
}
