/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package queue

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	logger "github.com/rs/zerolog/log"
	"github.com/tidwall/wal"

	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/protocol"
	"github.com/etsangsplk/cernan/stats"
)

// Disk is a durable hop buffer. Data events are appended to a write-ahead
// log and streamed to the consumer; Ack truncates the delivered prefix.
// Events not yet acknowledged when the process dies replay, in order, on
// the next open, so delivery is at-least-once across restarts.
type Disk struct {
	name  string
	dataC chan *metric.Event
	ctrlC chan *metric.Event

	mu           sync.Mutex
	log          *wal.Log
	nextIndex    uint64
	sizes        map[uint64]int
	pendingBytes int64
	maxBytes     int64

	// Highest index handed to the consumer. Written by the reader
	// goroutine, read by Ack.
	delivered uint64

	appendC    chan struct{}
	shutdownC  chan struct{}
	hardCloseC chan struct{}
	doneC      chan struct{}
	once       sync.Once
	closeOnce  sync.Once
}

// OpenDisk opens (or creates) the durable queue for one hop under dir.
// maxBytes bounds the unacknowledged backlog; zero means unbounded. Any
// backlog left over from a previous run is replayed before new events.
func OpenDisk(name, dir string, maxBytes int64) (*Disk, error) {
	log, err := wal.Open(dir, &wal.Options{
		NoSync: true,
		NoCopy: true,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "could not open queue log")
	}

	first, err := log.FirstIndex()
	if err != nil {
		log.Close()
		return nil, errors.WithMessage(err, "could not read first index")
	}
	last, err := log.LastIndex()
	if err != nil {
		log.Close()
		return nil, errors.WithMessage(err, "could not read last index")
	}

	d := &Disk{
		name:       name,
		dataC:      make(chan *metric.Event),
		ctrlC:      make(chan *metric.Event, controlDepth),
		log:        log,
		nextIndex:  1,
		sizes:      make(map[uint64]int),
		maxBytes:   maxBytes,
		appendC:    make(chan struct{}, 1),
		shutdownC:  make(chan struct{}),
		hardCloseC: make(chan struct{}),
		doneC:      make(chan struct{}),
	}

	readFrom := uint64(1)
	if last != 0 {
		d.nextIndex = last + 1
		readFrom = first
		// Rebuild the byte accounting for the surviving backlog.
		for i := first; i <= last; i++ {
			data, err := log.Read(i)
			if err != nil {
				log.Close()
				return nil, errors.WithMessagef(err, "could not read backlog entry %d", i)
			}
			d.sizes[i] = len(data)
			d.pendingBytes += int64(len(data))
		}
		logger.Info().
			Str("queue", name).
			Uint64("entries", last-first+1).
			Int64("bytes", d.pendingBytes).
			Msg("Replaying queue backlog from previous run.")
	}

	go d.read(readFrom)
	return d, nil
}

func (d *Disk) Name() string { return d.name }

func (d *Disk) Publish(ev *metric.Event) {
	if isControl(ev) {
		d.publishControl(ev)
		return
	}

	body, err := protocol.Encode(ev)
	if err != nil {
		logger.Error().Err(err).Str("queue", d.name).Msg("Could not encode event. Dropping.")
		stats.Inc("cernan.queue.dropped")
		return
	}

	d.mu.Lock()
	if d.maxBytes > 0 && d.pendingBytes+int64(len(body)) > d.maxBytes {
		d.mu.Unlock()
		stats.Inc("cernan.queue.dropped")
		logger.Warn().
			Str("queue", d.name).
			Int64("maxBytes", d.maxBytes).
			Msgf("Queue disk budget exceeded. Dropping %s event.", ev.Kind)
		return
	}
	idx := d.nextIndex
	if err := d.log.Write(idx, body); err != nil {
		d.mu.Unlock()
		stats.Inc("cernan.queue.dropped")
		logger.Error().Err(err).Str("queue", d.name).Msg("Could not append event. Dropping.")
		return
	}
	d.sizes[idx] = len(body)
	d.pendingBytes += int64(len(body))
	d.nextIndex++
	d.mu.Unlock()

	select {
	case d.appendC <- struct{}{}:
	default:
	}
}

func (d *Disk) publishControl(ev *metric.Event) {
	if ev.Kind == metric.EventShutdown {
		// The reader forwards shutdown in-band once the backlog is down.
		d.once.Do(func() { close(d.shutdownC) })
		return
	}
	select {
	case d.ctrlC <- ev:
	default:
		logger.Warn().
			Str("queue", d.name).
			Msg("Control channel full. Dropping flush beat.")
	}
}

func (d *Disk) Data() <-chan *metric.Event    { return d.dataC }
func (d *Disk) Control() <-chan *metric.Event { return d.ctrlC }

// read streams log entries to the consumer, waits out quiet periods, and
// hands the shutdown event over only after every prior append is delivered.
func (d *Disk) read(from uint64) {
	defer close(d.doneC)

	idx := from
	deliver := func() bool {
		for {
			d.mu.Lock()
			last := d.nextIndex - 1
			d.mu.Unlock()
			if idx > last {
				return true
			}
			for ; idx <= last; idx++ {
				data, err := d.log.Read(idx)
				if err != nil {
					logger.Error().Err(err).Str("queue", d.name).Uint64("index", idx).
						Msg("Could not read queue entry. Skipping.")
					stats.Inc("cernan.queue.corrupt")
					continue
				}
				ev, err := protocol.Decode(data)
				if err != nil {
					logger.Error().Err(err).Str("queue", d.name).Uint64("index", idx).
						Msg("Could not decode queue entry. Skipping.")
					stats.Inc("cernan.queue.corrupt")
					continue
				}
				select {
				case d.dataC <- ev:
					atomic.StoreUint64(&d.delivered, idx)
				case <-d.hardCloseC:
					return false
				}
			}
		}
	}

	for {
		if !deliver() {
			return
		}
		select {
		case <-d.appendC:
		case <-d.shutdownC:
			if !deliver() {
				return
			}
			select {
			case d.dataC <- metric.ShutdownEvent():
			case <-d.hardCloseC:
			}
			return
		case <-d.hardCloseC:
			return
		}
	}
}

// Ack truncates everything delivered so far. When the delivered prefix is
// the whole log the final entry is retained (the log cannot be emptied in
// place) and replays once after a restart; flush-boundary acknowledgment
// keeps that window to a single flush.
func (d *Disk) Ack() {
	delivered := atomic.LoadUint64(&d.delivered)
	if delivered == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	first, err := d.log.FirstIndex()
	if err != nil || first == 0 {
		return
	}
	last := d.nextIndex - 1

	from := delivered + 1
	if delivered >= last {
		from = last
	}
	if from <= first {
		return
	}
	if err := d.log.TruncateFront(from); err != nil {
		logger.Error().Err(err).Str("queue", d.name).Msg("Could not truncate queue.")
		return
	}
	for i := first; i < from; i++ {
		d.pendingBytes -= int64(d.sizes[i])
		delete(d.sizes, i)
	}
}

// Close stops the reader and closes the log. Pending unacknowledged
// entries stay on disk for the next open.
func (d *Disk) Close() error {
	d.closeOnce.Do(func() { close(d.hardCloseC) })
	<-d.doneC
	return d.log.Close()
}
