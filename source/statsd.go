/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package source

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	logger "github.com/rs/zerolog/log"

	"github.com/etsangsplk/cernan/config"
	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/router"
	"github.com/etsangsplk/cernan/stats"
)

const statsdPacketSize = 8192

// Statsd ingests UDP statsd packets: one or more "name:value|type[|@rate]"
// lines per datagram.
type Statsd struct {
	name string
	addr string
	tags map[string]string
	rt   *router.Router
}

func NewStatsd(cfg *config.StatsdConfig, tags map[string]string, rt *router.Router) *Statsd {
	return &Statsd{
		name: "sources.statsd",
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		tags: tags,
		rt:   rt,
	}
}

func (s *Statsd) Name() string { return s.name }

func (s *Statsd) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return errors.WithMessagef(err, "could not bind statsd listener on %s", s.addr)
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	logger.Info().Str("addr", s.addr).Msg("Statsd source listening.")

	buf := make([]byte, statsdPacketSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.WithMessage(err, "statsd read failed")
		}
		stats.Inc("cernan.statsd.packet")

		now := time.Now().Unix()
		points := parseStatsdPacket(string(buf[:n]), now)
		if len(points) == 0 {
			continue
		}
		tagAll(s.tags, points)
		s.rt.Publish(s.name, metric.TelemetryEvent(points...))
	}
}

// parseStatsdPacket maps each well-formed line to a point and counts the
// rest. A packet mixing good and bad lines keeps its good lines.
func parseStatsdPacket(packet string, now int64) []*metric.Telemetry {
	var points []*metric.Telemetry
	for _, line := range strings.Split(packet, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		point, err := parseStatsdLine(line, now)
		if err != nil {
			stats.Inc("cernan.statsd.bad_packet")
			logger.Warn().Err(err).Str("line", line).Msg("Rejected statsd line.")
			continue
		}
		points = append(points, point)
	}
	return points
}

func parseStatsdLine(line string, now int64) (*metric.Telemetry, error) {
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return nil, errors.New("missing name")
	}
	name := line[:colon]

	parts := strings.Split(line[colon+1:], "|")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, errors.New("malformed payload")
	}
	valueStr, typ := parts[0], parts[1]

	rate := 1.0
	if len(parts) == 3 {
		if !strings.HasPrefix(parts[2], "@") {
			return nil, errors.New("malformed sample rate")
		}
		r, err := strconv.ParseFloat(parts[2][1:], 64)
		if err != nil || r <= 0 || r > 1 {
			return nil, errors.New("sample rate outside (0, 1]")
		}
		rate = r
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return nil, errors.Errorf("bad value %q", valueStr)
	}

	switch typ {
	case "c":
		return metric.Restore(name, metric.Sum, now, false, nil, []float64{value * (1 / rate)}), nil
	case "g":
		// A signed gauge adjusts the prior bin value rather than replacing it.
		delta := valueStr[0] == '+' || valueStr[0] == '-'
		return metric.Restore(name, metric.Set, now, delta, nil, []float64{value}), nil
	case "ms", "h":
		return metric.Restore(name, metric.Summarize, now, false, nil, []float64{value}), nil
	case "s":
		return metric.Restore(name, metric.Set, now, false, nil, []float64{value}), nil
	default:
		return nil, errors.Errorf("unknown type %q", typ)
	}
}
