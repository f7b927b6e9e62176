/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metric

// Encoding names the serialization of a Raw payload.
type Encoding int

const (
	EncodingRaw Encoding = iota
	EncodingJSON
	EncodingProtobuf
)

func (e Encoding) String() string {
	switch e {
	case EncodingRaw:
		return "raw"
	case EncodingJSON:
		return "json"
	case EncodingProtobuf:
		return "protobuf"
	default:
		return "unknown"
	}
}

// EventKind discriminates the Event envelope.
type EventKind int

const (
	// EventTimerFlush is the flush beat. Sinks transmit their buffers when
	// they see it; filters pass it through after their own bookkeeping.
	EventTimerFlush EventKind = iota
	// EventTelemetry carries a batch of telemetry points.
	EventTelemetry
	// EventLog carries a batch of log lines.
	EventLog
	// EventRaw carries one opaque payload for pass-through sinks.
	EventRaw
	// EventShutdown is the final event on every hop. Consumers flush and
	// exit after seeing it.
	EventShutdown
)

func (k EventKind) String() string {
	switch k {
	case EventTimerFlush:
		return "timer-flush"
	case EventTelemetry:
		return "telemetry"
	case EventLog:
		return "log"
	case EventRaw:
		return "raw"
	case EventShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Event is the unit queues move between hops. Exactly one of the payload
// groups is populated, per Kind. Events are immutable once published;
// fan-out shares the same pointer across consumers.
type Event struct {
	Kind EventKind

	// Flush is the beat counter, set on EventTimerFlush.
	Flush uint64

	// Telemetry is set on EventTelemetry.
	Telemetry []*Telemetry

	// Lines is set on EventLog.
	Lines []*LogLine

	// Payload, Encoding and OrderBy are set on EventRaw. OrderBy is a
	// stable key for partitioned downstreams.
	Payload  []byte
	Encoding Encoding
	OrderBy  uint64
}

// FlushEvent is the flush beat for the given epoch.
func FlushEvent(epoch uint64) *Event {
	return &Event{Kind: EventTimerFlush, Flush: epoch}
}

// TelemetryEvent wraps points into an envelope.
func TelemetryEvent(points ...*Telemetry) *Event {
	return &Event{Kind: EventTelemetry, Telemetry: points}
}

// LogEvent wraps lines into an envelope.
func LogEvent(lines ...*LogLine) *Event {
	return &Event{Kind: EventLog, Lines: lines}
}

// RawEvent wraps one opaque payload.
func RawEvent(orderBy uint64, enc Encoding, payload []byte) *Event {
	return &Event{Kind: EventRaw, OrderBy: orderBy, Encoding: enc, Payload: payload}
}

// ShutdownEvent is the hop terminator.
func ShutdownEvent() *Event {
	return &Event{Kind: EventShutdown}
}
