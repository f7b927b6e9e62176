/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sink

import (
	"bytes"
	"fmt"
	"net"
	"time"

	logger "github.com/rs/zerolog/log"

	"github.com/etsangsplk/cernan/config"
	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/stats"
)

const wavefrontDialTimeout = 5 * time.Second

// Wavefront aggregates telemetry and writes the wavefront wire format
// over TCP on flush: one "name value timestamp tags" line per aggregate,
// with quantile series for summarized kinds. A failed delivery drops the
// window and reconnects on the next flush; the proxy holds no state
// worth a retry loop here.
type Wavefront struct {
	name  string
	addr  string
	aggrs *Buckets
	conn  net.Conn
}

func NewWavefront(cfg *config.WavefrontConfig) *Wavefront {
	return &Wavefront{
		name:  "sinks.wavefront",
		addr:  fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		aggrs: NewBuckets(cfg.BinWidth),
	}
}

func (w *Wavefront) Name() string { return w.name }

func (w *Wavefront) Deliver(p *metric.Telemetry) { w.aggrs.Add(p) }

func (w *Wavefront) DeliverLine(*metric.LogLine) {}

func (w *Wavefront) DeliverRaw(uint64, metric.Encoding, []byte) {}

// formatWindow renders the whole window into wire lines.
func (w *Wavefront) formatWindow() []byte {
	var buf bytes.Buffer
	w.aggrs.Each(func(p *metric.Telemetry) {
		tags := p.TagString(" ")
		if tags != "" {
			tags = " " + tags
		}
		switch p.Kind {
		case metric.Summarize, metric.Histogram:
			fmt.Fprintf(&buf, "%s.min %v %d%s\n", p.Name, p.Min(), p.Time, tags)
			fmt.Fprintf(&buf, "%s.max %v %d%s\n", p.Name, p.Max(), p.Time, tags)
			fmt.Fprintf(&buf, "%s.50 %v %d%s\n", p.Name, p.Query(0.5), p.Time, tags)
			fmt.Fprintf(&buf, "%s.90 %v %d%s\n", p.Name, p.Query(0.9), p.Time, tags)
			fmt.Fprintf(&buf, "%s.99 %v %d%s\n", p.Name, p.Query(0.99), p.Time, tags)
			fmt.Fprintf(&buf, "%s.count %d %d%s\n", p.Name, p.Count(), p.Time, tags)
		default:
			fmt.Fprintf(&buf, "%s %v %d%s\n", p.Name, p.Value(), p.Time, tags)
		}
	})
	return buf.Bytes()
}

func (w *Wavefront) Flush() {
	if w.aggrs.Count() == 0 {
		return
	}
	payload := w.formatWindow()
	// Win or lose, the window is spent after one delivery attempt.
	defer w.aggrs.Reset()

	if w.conn == nil {
		conn, err := net.DialTimeout("tcp", w.addr, wavefrontDialTimeout)
		if err != nil {
			stats.Inc("cernan.wavefront.delivery_failure")
			logger.Warn().Err(err).Str("addr", w.addr).Msg("Wavefront dial failed. Dropping window.")
			return
		}
		w.conn = conn
	}

	if _, err := w.conn.Write(payload); err != nil {
		stats.Inc("cernan.wavefront.delivery_failure")
		logger.Warn().Err(err).Str("addr", w.addr).Msg("Wavefront write failed. Dropping window.")
		w.conn.Close()
		w.conn = nil
	}
}

func (w *Wavefront) Valve() ValveState { return Open }

func (w *Wavefront) FlushInterval() (uint64, bool) { return 0, false }

func (w *Wavefront) Shutdown() {
	w.Flush()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
