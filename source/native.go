/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	logger "github.com/rs/zerolog/log"

	"github.com/etsangsplk/cernan/config"
	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/protocol"
	"github.com/etsangsplk/cernan/router"
	"github.com/etsangsplk/cernan/stats"
)

// Native ingests the native wire protocol: length-prefixed protobuf
// frames from an upstream cernan's native sink.
type Native struct {
	name string
	addr string
	tags map[string]string
	rt   *router.Router
}

func NewNative(cfg *config.NativeConfig, tags map[string]string, rt *router.Router) *Native {
	return &Native{
		name: "sources.native",
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		tags: tags,
		rt:   rt,
	}
}

func (n *Native) Name() string { return n.name }

func (n *Native) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.addr)
	if err != nil {
		return errors.WithMessagef(err, "could not bind native listener on %s", n.addr)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	logger.Info().Str("addr", n.addr).Msg("Native source listening.")

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return errors.WithMessage(err, "native accept failed")
		}
		wg.Add(1)
		go func(conn net.Conn) {
			defer wg.Done()
			n.serve(ctx, conn)
		}(conn)
	}
}

func (n *Native) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		ev, err := protocol.ReadFrame(conn)
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				stats.Inc("cernan.native.bad_frame")
				logger.Warn().Err(err).Str("peer", conn.RemoteAddr().String()).
					Msg("Dropping native connection.")
			}
			return
		}
		stats.Inc("cernan.native.packet")

		now := time.Now().Unix()
		switch ev.Kind {
		case metric.EventTelemetry:
			for _, p := range ev.Telemetry {
				if p.Time == 0 {
					p.Time = now
				}
			}
			tagAll(n.tags, ev.Telemetry)
		case metric.EventLog:
			for _, l := range ev.Lines {
				if l.Time == 0 {
					l.Time = now
				}
				l.AddTags(n.tags)
			}
		}
		n.rt.Publish(n.name, ev)
	}
}
