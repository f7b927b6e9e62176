/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package filter

import (
	"encoding/json"
	"hash/fnv"

	logger "github.com/rs/zerolog/log"

	"github.com/etsangsplk/cernan/metric"
)

// JSONEncode rewrites telemetry and log events into raw JSON payloads,
// one payload per point or line, for sinks that move opaque bytes
// (kafka, native). The order-by key is the point's identity hash so a
// partitioned downstream keeps per-series ordering.
type JSONEncode struct {
	name string
}

func NewJSONEncode(name string) *JSONEncode {
	return &JSONEncode{name: name}
}

func (j *JSONEncode) Name() string { return j.name }

type jsonPoint struct {
	Name  string            `json:"name"`
	Kind  string            `json:"kind"`
	Time  int64             `json:"time"`
	Value float64           `json:"value"`
	Tags  map[string]string `json:"tags,omitempty"`
}

type jsonLine struct {
	Path   string            `json:"path"`
	Value  string            `json:"value"`
	Time   int64             `json:"time"`
	Tags   map[string]string `json:"tags,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (j *JSONEncode) Process(ev *metric.Event) []*metric.Event {
	switch ev.Kind {
	case metric.EventTelemetry:
		out := make([]*metric.Event, 0, len(ev.Telemetry))
		for _, p := range ev.Telemetry {
			payload, err := json.Marshal(jsonPoint{
				Name:  p.Name,
				Kind:  p.Kind.String(),
				Time:  p.Time,
				Value: p.Value(),
				Tags:  p.Tags,
			})
			if err != nil {
				logger.Error().Err(err).Str("filter", j.name).Msg("Could not encode point.")
				continue
			}
			out = append(out, metric.RawEvent(p.Hash(), metric.EncodingJSON, payload))
		}
		return out

	case metric.EventLog:
		out := make([]*metric.Event, 0, len(ev.Lines))
		for _, l := range ev.Lines {
			payload, err := json.Marshal(jsonLine{
				Path:   l.Path,
				Value:  l.Value,
				Time:   l.Time,
				Tags:   l.Tags,
				Fields: l.Fields,
			})
			if err != nil {
				logger.Error().Err(err).Str("filter", j.name).Msg("Could not encode line.")
				continue
			}
			h := fnv.New64a()
			h.Write([]byte(l.Path))
			out = append(out, metric.RawEvent(h.Sum64(), metric.EncodingJSON, payload))
		}
		return out

	default:
		return []*metric.Event{ev}
	}
}

func (j *JSONEncode) Beat(uint64) []*metric.Event { return nil }

func (j *JSONEncode) Shutdown() []*metric.Event { return nil }
