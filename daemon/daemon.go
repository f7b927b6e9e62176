/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package daemon assembles a pipeline from config and runs it: queues
// and routes first, then sinks, filters, sources and finally the flush
// timer. Shutdown walks the route graph upstream-first so every hop
// drains before the hop it feeds.
package daemon

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	logger "github.com/rs/zerolog/log"

	"github.com/etsangsplk/cernan/config"
	"github.com/etsangsplk/cernan/filter"
	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/positions"
	"github.com/etsangsplk/cernan/queue"
	"github.com/etsangsplk/cernan/router"
	"github.com/etsangsplk/cernan/sink"
	"github.com/etsangsplk/cernan/source"
)

// drainGrace bounds how long shutdown waits for the pipeline to drain.
const drainGrace = 30 * time.Second

type Daemon struct {
	cfg *config.Config
	rt  *router.Router

	queues  map[string]queue.Queue
	sinks   map[string]sink.Sink
	filters map[string]filter.Filter
	sources []source.Source
	flush   *source.Flush
	pos     *positions.Store
}

// New builds the full pipeline without starting it. Every route is
// resolved and every listener dependency constructed, so a config that
// cannot run fails here.
func New(cfg *config.Config) (*Daemon, error) {
	d := &Daemon{
		cfg:     cfg,
		rt:      router.New(),
		queues:  map[string]queue.Queue{},
		sinks:   map[string]sink.Sink{},
		filters: map[string]filter.Filter{},
	}

	for _, name := range cfg.HopNames() {
		q, err := d.openQueue(name)
		if err != nil {
			return nil, err
		}
		d.queues[name] = q
		if err := d.rt.AddHop(name, q); err != nil {
			return nil, err
		}
	}

	if err := d.buildSinks(); err != nil {
		return nil, err
	}
	if err := d.buildFilters(); err != nil {
		return nil, err
	}
	if err := d.buildSources(); err != nil {
		return nil, err
	}

	if err := d.rt.Resolve(); err != nil {
		return nil, errors.WithMessage(err, "could not resolve routes")
	}

	d.flush = source.NewFlush(time.Duration(cfg.FlushInterval)*time.Second, d.rt)
	return d, nil
}

func (d *Daemon) openQueue(name string) (queue.Queue, error) {
	if d.cfg.Durable(name) {
		dir := filepath.Join(d.cfg.DataDir, "q", name)
		q, err := queue.OpenDisk(name, dir, d.cfg.Queues.MaxDiskBytes)
		if err != nil {
			return nil, errors.WithMessagef(err, "could not open durable queue for %s", name)
		}
		return q, nil
	}
	return queue.NewMemory(name, d.cfg.Queues.InMemoryCapacity), nil
}

func (d *Daemon) buildSinks() error {
	sc := d.cfg.Sinks
	if sc.Console != nil {
		d.sinks["sinks.console"] = sink.NewConsole(sc.Console)
	}
	if sc.Wavefront != nil {
		d.sinks["sinks.wavefront"] = sink.NewWavefront(sc.Wavefront)
	}
	if sc.Librato != nil {
		d.sinks["sinks.librato"] = sink.NewLibrato(sc.Librato, d.cfg.Tags)
	}
	if sc.Kafka != nil {
		k, err := sink.NewKafka(sc.Kafka)
		if err != nil {
			return err
		}
		d.sinks["sinks.kafka"] = k
	}
	if sc.Native != nil {
		d.sinks["sinks.native"] = sink.NewNative(sc.Native)
	}
	if sc.Null != nil {
		d.sinks["sinks.null"] = sink.NewNull()
	}
	return nil
}

func (d *Daemon) buildFilters() error {
	for name, fc := range d.cfg.Filters {
		hop := "filters." + name
		switch fc.Kind {
		case "json_encode":
			d.filters[hop] = filter.NewJSONEncode(hop)
		case "delay":
			d.filters[hop] = filter.NewDelay(hop, fc.Tolerance)
		default:
			return errors.Errorf("unsupported filter kind %q", fc.Kind)
		}
		if err := d.rt.AddRoute(hop, fc.Forwards); err != nil {
			return err
		}
	}
	return nil
}

func (d *Daemon) buildSources() error {
	sc := d.cfg.Sources

	addRoute := func(name string, forwards []string) error {
		return d.rt.AddRoute(name, forwards)
	}

	if sc.Statsd != nil {
		s := source.NewStatsd(sc.Statsd, d.cfg.Tags, d.rt)
		d.sources = append(d.sources, s)
		if err := addRoute(s.Name(), sc.Statsd.Forwards); err != nil {
			return err
		}
	}
	if sc.Graphite != nil {
		s := source.NewGraphite(sc.Graphite, d.cfg.Tags, d.rt)
		d.sources = append(d.sources, s)
		if err := addRoute(s.Name(), sc.Graphite.Forwards); err != nil {
			return err
		}
	}
	if sc.Native != nil {
		s := source.NewNative(sc.Native, d.cfg.Tags, d.rt)
		d.sources = append(d.sources, s)
		if err := addRoute(s.Name(), sc.Native.Forwards); err != nil {
			return err
		}
	}
	if len(sc.Files) > 0 {
		pos, err := positions.Open(filepath.Join(d.cfg.DataDir, "positions"))
		if err != nil {
			return errors.WithMessage(err, "could not open position store")
		}
		d.pos = pos
		for i := range sc.Files {
			s := source.NewFile(&sc.Files[i], d.cfg.Tags, d.rt, pos)
			d.sources = append(d.sources, s)
			if err := addRoute(s.Name(), sc.Files[i].Forwards); err != nil {
				return err
			}
		}
	}
	if sc.Internal != nil {
		interval := time.Duration(d.cfg.FlushInterval) * time.Second
		s := source.NewInternal(sc.Internal, d.cfg.Tags, d.rt, interval)
		d.sources = append(d.sources, s)
		if err := addRoute(s.Name(), sc.Internal.Forwards); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the pipeline and blocks until ctx is canceled or a source
// fails, then drains and tears everything down. A drain that beats the
// grace period returns nil.
func (d *Daemon) Run(ctx context.Context) error {
	hopDone := map[string]chan struct{}{}
	for name, s := range d.sinks {
		done := make(chan struct{})
		hopDone[name] = done
		go func(s sink.Sink, q queue.Queue, done chan struct{}) {
			defer close(done)
			sink.Run(s, q)
		}(s, d.queues[name], done)
	}
	for name, f := range d.filters {
		done := make(chan struct{})
		hopDone[name] = done
		go func(f filter.Filter, q queue.Queue, done chan struct{}) {
			defer close(done)
			filter.Run(f, q, d.rt)
		}(f, d.queues[name], done)
	}

	srcCtx, stopSources := context.WithCancel(context.Background())
	defer stopSources()
	var srcWg sync.WaitGroup
	srcErrC := make(chan error, len(d.sources))
	for _, s := range d.sources {
		srcWg.Add(1)
		go func(s source.Source) {
			defer srcWg.Done()
			if err := s.Run(srcCtx); err != nil {
				logger.Error().Err(err).Str("source", s.Name()).Msg("Source failed.")
				srcErrC <- errors.WithMessagef(err, "source %s failed", s.Name())
			}
		}(s)
	}

	// The flush timer outlives the other sources: hops still need beats
	// to drain during shutdown.
	flushCtx, stopFlush := context.WithCancel(context.Background())
	defer stopFlush()
	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		d.flush.Run(flushCtx)
	}()

	logger.Info().Int("sources", len(d.sources)).Int("hops", len(hopDone)).
		Msg("Pipeline running.")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown requested.")
	case err := <-srcErrC:
		runErr = err
	}

	stopSources()
	srcWg.Wait()

	deadline := time.Now().Add(drainGrace)
	for _, name := range d.rt.TopoOrder() {
		q := d.queues[name]
		q.Publish(metric.ShutdownEvent())
		select {
		case <-hopDone[name]:
		case <-time.After(time.Until(deadline)):
			logger.Error().Str("hop", name).Msg("Hop did not drain before the grace period.")
			if runErr == nil {
				runErr = errors.Errorf("hop %s did not drain", name)
			}
		}
	}

	stopFlush()
	<-flushDone

	for name, q := range d.queues {
		if err := q.Close(); err != nil {
			logger.Error().Err(err).Str("queue", name).Msg("Queue close failed.")
		}
	}
	if d.pos != nil {
		d.pos.Sync()
		d.pos.Close()
	}

	if runErr == nil {
		logger.Info().Msg("Pipeline drained.")
	}
	return runErr
}
