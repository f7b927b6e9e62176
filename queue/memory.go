/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package queue

import (
	logger "github.com/rs/zerolog/log"

	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/stats"
)

// Memory is a bounded in-memory hop buffer. When capacity is exceeded the
// event is dropped and counted rather than blocking the producer.
type Memory struct {
	name  string
	dataC chan *metric.Event
	ctrlC chan *metric.Event
}

// NewMemory allocates a memory queue holding at most capacity data events.
func NewMemory(name string, capacity int) *Memory {
	return &Memory{
		name:  name,
		dataC: make(chan *metric.Event, capacity),
		ctrlC: make(chan *metric.Event, controlDepth),
	}
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Publish(ev *metric.Event) {
	if isControl(ev) {
		m.publishControl(ev)
		return
	}
	select {
	case m.dataC <- ev:
	default:
		stats.Inc("cernan.queue.dropped")
		logger.Warn().
			Str("queue", m.name).
			Int("capacity", cap(m.dataC)).
			Msgf("Queue capacity exceeded. Dropping %s event.", ev.Kind)
	}
}

func (m *Memory) publishControl(ev *metric.Event) {
	if ev.Kind == metric.EventShutdown {
		// Shutdown must arrive; the consumer is draining towards exit.
		m.ctrlC <- ev
		return
	}
	select {
	case m.ctrlC <- ev:
	default:
		logger.Warn().
			Str("queue", m.name).
			Msg("Control channel full. Dropping flush beat.")
	}
}

func (m *Memory) Data() <-chan *metric.Event    { return m.dataC }
func (m *Memory) Control() <-chan *metric.Event { return m.ctrlC }

// Ack is a no-op; memory queues hold no backlog beyond their channel.
func (m *Memory) Ack() {}

func (m *Memory) Close() error { return nil }
