/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sink

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	logger "github.com/rs/zerolog/log"

	"github.com/etsangsplk/cernan/config"
	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/stats"
)

const libratoSourceFallback = "cernan"

// Librato aggregates telemetry and POSTs the window to the librato
// metrics API as gauges. The gauge source is taken from the global tag
// set's "source" entry when one exists.
type Librato struct {
	name   string
	user   string
	token  string
	host   string
	source string
	aggrs  *Buckets
	client *http.Client
}

type libratoGauge struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	MeasureTime int64   `json:"measure_time"`
	Source      string  `json:"source"`
}

type libratoPayload struct {
	Gauges []libratoGauge `json:"gauges"`
}

func NewLibrato(cfg *config.LibratoConfig, tags map[string]string) *Librato {
	source := tags["source"]
	if source == "" {
		source = libratoSourceFallback
	}
	return &Librato{
		name:   "sinks.librato",
		user:   cfg.Username,
		token:  cfg.Token,
		host:   cfg.Host,
		source: source,
		aggrs:  NewBuckets(1),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (l *Librato) Name() string { return l.name }

func (l *Librato) Deliver(p *metric.Telemetry) { l.aggrs.Add(p) }

func (l *Librato) DeliverLine(*metric.LogLine) {}

func (l *Librato) DeliverRaw(uint64, metric.Encoding, []byte) {}

func (l *Librato) Flush() {
	if l.aggrs.Count() == 0 {
		return
	}

	payload := libratoPayload{}
	l.aggrs.Each(func(p *metric.Telemetry) {
		payload.Gauges = append(payload.Gauges, libratoGauge{
			Name:        p.Name,
			Value:       p.Value(),
			MeasureTime: p.Time,
			Source:      l.source,
		})
	})
	defer l.aggrs.Reset()

	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Msg("Could not encode librato payload.")
		return
	}

	req, err := http.NewRequest(http.MethodPost, l.host, bytes.NewReader(body))
	if err != nil {
		stats.Inc("cernan.librato.delivery_failure")
		logger.Warn().Err(err).Str("host", l.host).Msg("Librato request failed. Dropping window.")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(l.user, l.token)

	resp, err := l.client.Do(req)
	if err != nil {
		stats.Inc("cernan.librato.delivery_failure")
		logger.Warn().Err(err).Str("host", l.host).Msg("Librato delivery failed. Dropping window.")
		return
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		stats.Inc("cernan.librato.delivery_failure")
		logger.Warn().Int("status", resp.StatusCode).Str("host", l.host).
			Msg("Librato rejected window.")
	}
}

func (l *Librato) Valve() ValveState { return Open }

func (l *Librato) FlushInterval() (uint64, bool) { return 0, false }

func (l *Librato) Shutdown() { l.Flush() }
