/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sink

import (
	"fmt"
	"net"
	"time"

	logger "github.com/rs/zerolog/log"

	"github.com/etsangsplk/cernan/config"
	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/protocol"
	"github.com/etsangsplk/cernan/stats"
)

const (
	nativeDialTimeout = 5 * time.Second
	nativeMaxBackoff  = 8 // beats between dial attempts at full backoff
	nativeHighWater   = 4096
)

// Native forwards events to a downstream cernan's native source, framed
// per the wire protocol. Undelivered events stay buffered across failed
// flushes; while disconnected with a full buffer the valve closes and
// the hop queue takes the backlog.
type Native struct {
	name string
	addr string

	conn     net.Conn
	buffered []*metric.Event

	failures  uint64
	nextEpoch uint64 // do not redial before this flush epoch
	epoch     uint64
}

func NewNative(cfg *config.NativeSinkConfig) *Native {
	return &Native{
		name: "sinks.native",
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
}

func (n *Native) Name() string { return n.name }

func (n *Native) buffer(ev *metric.Event) {
	n.buffered = append(n.buffered, ev)
}

func (n *Native) Deliver(p *metric.Telemetry) {
	n.buffer(metric.TelemetryEvent(p))
}

func (n *Native) DeliverLine(l *metric.LogLine) {
	n.buffer(metric.LogEvent(l))
}

func (n *Native) DeliverRaw(orderBy uint64, enc metric.Encoding, payload []byte) {
	n.buffer(metric.RawEvent(orderBy, enc, payload))
}

func (n *Native) dial() bool {
	if n.conn != nil {
		return true
	}
	if n.epoch < n.nextEpoch {
		return false
	}
	conn, err := net.DialTimeout("tcp", n.addr, nativeDialTimeout)
	if err != nil {
		n.failures++
		backoff := n.failures
		if backoff > nativeMaxBackoff {
			backoff = nativeMaxBackoff
		}
		n.nextEpoch = n.epoch + backoff
		stats.Inc("cernan.native.delivery_failure")
		logger.Warn().Err(err).Str("addr", n.addr).Uint64("backoff_beats", backoff).
			Msg("Native sink dial failed.")
		return false
	}
	n.conn = conn
	n.failures = 0
	logger.Info().Str("addr", n.addr).Msg("Native sink connected.")
	return true
}

func (n *Native) Flush() {
	n.epoch++
	if len(n.buffered) == 0 {
		return
	}
	if !n.dial() {
		return
	}

	for i, ev := range n.buffered {
		if err := protocol.WriteFrame(n.conn, ev); err != nil {
			stats.Inc("cernan.native.delivery_failure")
			logger.Warn().Err(err).Str("addr", n.addr).Msg("Native sink write failed.")
			n.conn.Close()
			n.conn = nil
			n.buffered = append(n.buffered[:0], n.buffered[i:]...)
			return
		}
	}
	n.buffered = n.buffered[:0]
}

func (n *Native) Valve() ValveState {
	if n.conn == nil && len(n.buffered) >= nativeHighWater {
		return Closed
	}
	return Open
}

func (n *Native) FlushInterval() (uint64, bool) { return 0, false }

func (n *Native) Shutdown() {
	n.nextEpoch = 0 // final attempt ignores backoff
	n.Flush()
	if len(n.buffered) > 0 {
		stats.Add("cernan.native.delivery_failure", uint64(len(n.buffered)))
		logger.Warn().Int("events", len(n.buffered)).Str("addr", n.addr).
			Msg("Native sink dropping undelivered events at shutdown.")
		n.buffered = nil
	}
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
}
