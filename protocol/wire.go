/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package protocol is cernan's native wire format: one frame is a uint32
// big-endian length followed by a protobuf-encoded Payload. The native
// source decodes frames from upstream cernans; the native sink and the disk
// queues encode them.
//
// The messages are declared in Go with explicit protobuf field tags instead
// of protoc output; the field numbers below are frozen and must never be
// reused or renumbered.
package protocol

import (
	"github.com/golang/protobuf/proto"

	"github.com/etsangsplk/cernan/metric"
)

// Version is the wire version stamped into every Payload.
const Version = 1

// Payload is the frame body. Exactly one of Points, Lines or Blob is
// populated.
type Payload struct {
	Version uint32   `protobuf:"varint,1,opt,name=version"`
	Points  []*Point `protobuf:"bytes,2,rep,name=points"`
	Lines   []*Line  `protobuf:"bytes,3,rep,name=lines"`
	Blob    *Blob    `protobuf:"bytes,4,opt,name=blob"`
}

func (m *Payload) Reset()         { *m = Payload{} }
func (m *Payload) String() string { return proto.CompactTextString(m) }
func (*Payload) ProtoMessage()    {}

// Point is one Telemetry observation on the wire.
type Point struct {
	Name   string            `protobuf:"bytes,1,opt,name=name"`
	Kind   uint32            `protobuf:"varint,2,opt,name=kind"`
	Time   int64             `protobuf:"varint,3,opt,name=time"`
	Values []float64         `protobuf:"fixed64,4,rep,packed,name=values"`
	Tags   map[string]string `protobuf:"bytes,5,rep,name=tags" protobuf_key:"bytes,1,opt,name=key" protobuf_val:"bytes,2,opt,name=value"`
	Delta  bool              `protobuf:"varint,6,opt,name=delta"`
}

func (m *Point) Reset()         { *m = Point{} }
func (m *Point) String() string { return proto.CompactTextString(m) }
func (*Point) ProtoMessage()    {}

// Line is one LogLine on the wire.
type Line struct {
	Path   string            `protobuf:"bytes,1,opt,name=path"`
	Value  string            `protobuf:"bytes,2,opt,name=value"`
	Time   int64             `protobuf:"varint,3,opt,name=time"`
	Tags   map[string]string `protobuf:"bytes,4,rep,name=tags" protobuf_key:"bytes,1,opt,name=key" protobuf_val:"bytes,2,opt,name=value"`
	Fields map[string]string `protobuf:"bytes,5,rep,name=fields" protobuf_key:"bytes,1,opt,name=key" protobuf_val:"bytes,2,opt,name=value"`
}

func (m *Line) Reset()         { *m = Line{} }
func (m *Line) String() string { return proto.CompactTextString(m) }
func (*Line) ProtoMessage()    {}

// Blob is one opaque payload on the wire.
type Blob struct {
	OrderBy  uint64 `protobuf:"varint,1,opt,name=order_by,json=orderBy"`
	Encoding uint32 `protobuf:"varint,2,opt,name=encoding"`
	Payload  []byte `protobuf:"bytes,3,opt,name=payload"`
}

func (m *Blob) Reset()         { *m = Blob{} }
func (m *Blob) String() string { return proto.CompactTextString(m) }
func (*Blob) ProtoMessage()    {}

// FromEvent converts a data event into a frame body. Control events
// (TimerFlush, Shutdown) never travel the wire and are rejected by Encode.
func FromEvent(ev *metric.Event) *Payload {
	p := &Payload{Version: Version}
	switch ev.Kind {
	case metric.EventTelemetry:
		p.Points = make([]*Point, 0, len(ev.Telemetry))
		for _, t := range ev.Telemetry {
			p.Points = append(p.Points, &Point{
				Name:   t.Name,
				Kind:   uint32(t.Kind),
				Time:   t.Time,
				Values: t.Samples(),
				Tags:   t.Tags,
				Delta:  t.Delta,
			})
		}
	case metric.EventLog:
		p.Lines = make([]*Line, 0, len(ev.Lines))
		for _, l := range ev.Lines {
			p.Lines = append(p.Lines, &Line{
				Path:   l.Path,
				Value:  l.Value,
				Time:   l.Time,
				Tags:   l.Tags,
				Fields: l.Fields,
			})
		}
	case metric.EventRaw:
		p.Blob = &Blob{
			OrderBy:  ev.OrderBy,
			Encoding: uint32(ev.Encoding),
			Payload:  ev.Payload,
		}
	}
	return p
}

// Event converts a frame body back into the event it carried.
func (m *Payload) Event() *metric.Event {
	switch {
	case m.Blob != nil:
		return metric.RawEvent(m.Blob.OrderBy, metric.Encoding(m.Blob.Encoding), m.Blob.Payload)
	case len(m.Lines) > 0:
		lines := make([]*metric.LogLine, 0, len(m.Lines))
		for _, l := range m.Lines {
			line := metric.NewLogLine(l.Path, l.Value)
			line.Time = l.Time
			line.Tags = l.Tags
			line.Fields = l.Fields
			lines = append(lines, line)
		}
		return metric.LogEvent(lines...)
	default:
		points := make([]*metric.Telemetry, 0, len(m.Points))
		for _, pt := range m.Points {
			points = append(points, metric.Restore(
				pt.Name, metric.Kind(pt.Kind), pt.Time, pt.Delta, pt.Tags, pt.Values))
		}
		return metric.TelemetryEvent(points...)
	}
}
