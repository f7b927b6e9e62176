/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package protocol

import (
	"encoding/binary"
	"io"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"

	"github.com/etsangsplk/cernan/metric"
)

// MaxFrameBytes bounds a single frame. Anything larger is taken as a
// corrupt or hostile stream and the connection is dropped.
const MaxFrameBytes = 16 << 20

// ErrFrameTooLarge is returned when a frame header announces a body above
// MaxFrameBytes.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Encode serializes a data event to a frame body. Control events do not
// travel the wire.
func Encode(ev *metric.Event) ([]byte, error) {
	switch ev.Kind {
	case metric.EventTelemetry, metric.EventLog, metric.EventRaw:
	default:
		return nil, errors.Errorf("%s events cannot be encoded", ev.Kind)
	}
	data, err := proto.Marshal(FromEvent(ev))
	if err != nil {
		return nil, errors.WithMessage(err, "could not marshal payload")
	}
	return data, nil
}

// Decode parses a frame body produced by Encode.
func Decode(data []byte) (*metric.Event, error) {
	p := &Payload{}
	if err := proto.Unmarshal(data, p); err != nil {
		return nil, errors.WithMessage(err, "could not unmarshal payload")
	}
	if p.Version != Version {
		return nil, errors.Errorf("unsupported wire version %d", p.Version)
	}
	return p.Event(), nil
}

// WriteFrame writes one length-prefixed frame carrying ev.
func WriteFrame(w io.Writer, ev *metric.Event) error {
	body, err := Encode(ev)
	if err != nil {
		return err
	}
	if len(body) > MaxFrameBytes {
		return ErrFrameTooLarge
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return errors.WithMessage(err, "could not write frame header")
	}
	if _, err := w.Write(body); err != nil {
		return errors.WithMessage(err, "could not write frame body")
	}
	return nil
}

// ReadFrame reads one length-prefixed frame. io.EOF is returned unwrapped
// when the stream ends cleanly between frames.
func ReadFrame(r io.Reader) (*metric.Event, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.WithMessage(err, "could not read frame header")
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.WithMessage(err, "could not read frame body")
	}
	return Decode(body)
}
