/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package source

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	logger "github.com/rs/zerolog/log"

	"github.com/etsangsplk/cernan/config"
	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/router"
	"github.com/etsangsplk/cernan/stats"
)

// Graphite ingests the plaintext graphite protocol: one
// "name value timestamp" per line over TCP.
type Graphite struct {
	name string
	addr string
	tags map[string]string
	rt   *router.Router
}

func NewGraphite(cfg *config.GraphiteConfig, tags map[string]string, rt *router.Router) *Graphite {
	return &Graphite{
		name: "sources.graphite",
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		tags: tags,
		rt:   rt,
	}
}

func (g *Graphite) Name() string { return g.name }

func (g *Graphite) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		return errors.WithMessagef(err, "could not bind graphite listener on %s", g.addr)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	logger.Info().Str("addr", g.addr).Msg("Graphite source listening.")

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return errors.WithMessage(err, "graphite accept failed")
		}
		wg.Add(1)
		go func(conn net.Conn) {
			defer wg.Done()
			g.serve(ctx, conn)
		}(conn)
	}
}

func (g *Graphite) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		stats.Inc("cernan.graphite.packet")
		point, err := parseGraphiteLine(scanner.Text())
		if err != nil {
			stats.Inc("cernan.graphite.bad_packet")
			logger.Warn().Err(err).Str("line", scanner.Text()).Msg("Rejected graphite line.")
			continue
		}
		point.AddTags(g.tags)
		g.rt.Publish(g.name, metric.TelemetryEvent(point))
	}
}

func parseGraphiteLine(line string) (*metric.Telemetry, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return nil, errors.Errorf("expected 3 fields, got %d", len(fields))
	}
	value, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, errors.Errorf("bad value %q", fields[1])
	}
	ts, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return nil, errors.Errorf("bad timestamp %q", fields[2])
	}
	return metric.Restore(fields[0], metric.Set, int64(ts), false, nil, []float64{value}), nil
}
