/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package protocol_test

import (
	"bytes"
	"encoding/binary"
	"io"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/protocol"
)

var _ = Describe("frames", func() {
	It("carries telemetry batches across a stream", func() {
		a := metric.New("cpu.load", 1.5)
		a.Time = 100
		a.Tags = map[string]string{"host": "web-1"}
		b := metric.New("requests", 7)
		b.Kind = metric.Sum
		b.Time = 100

		var buf bytes.Buffer
		Expect(protocol.WriteFrame(&buf, metric.TelemetryEvent(a, b))).To(Succeed())

		ev, err := protocol.ReadFrame(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Kind).To(Equal(metric.EventTelemetry))
		Expect(ev.Telemetry).To(HaveLen(2))
		Expect(ev.Telemetry[0].Name).To(Equal("cpu.load"))
		Expect(ev.Telemetry[0].Value()).To(Equal(1.5))
		Expect(ev.Telemetry[0].Time).To(Equal(int64(100)))
		Expect(ev.Telemetry[0].Tags).To(Equal(map[string]string{"host": "web-1"}))
		Expect(ev.Telemetry[1].Kind).To(Equal(metric.Sum))

		_, err = protocol.ReadFrame(&buf)
		Expect(err).To(Equal(io.EOF))
	})

	It("carries log batches", func() {
		l := metric.NewLogLine("/var/log/app.log", "boom")
		l.Time = 42
		l.Fields = map[string]string{"level": "error"}

		var buf bytes.Buffer
		Expect(protocol.WriteFrame(&buf, metric.LogEvent(l))).To(Succeed())

		ev, err := protocol.ReadFrame(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Kind).To(Equal(metric.EventLog))
		Expect(ev.Lines).To(HaveLen(1))
		Expect(ev.Lines[0].Path).To(Equal("/var/log/app.log"))
		Expect(ev.Lines[0].Value).To(Equal("boom"))
		Expect(ev.Lines[0].Fields["level"]).To(Equal("error"))
	})

	It("carries raw blobs with their keys", func() {
		var buf bytes.Buffer
		raw := metric.RawEvent(0xDEAD, metric.EncodingJSON, []byte(`{"a":1}`))
		Expect(protocol.WriteFrame(&buf, raw)).To(Succeed())

		ev, err := protocol.ReadFrame(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Kind).To(Equal(metric.EventRaw))
		Expect(ev.OrderBy).To(Equal(uint64(0xDEAD)))
		Expect(ev.Encoding).To(Equal(metric.EncodingJSON))
		Expect(ev.Payload).To(Equal([]byte(`{"a":1}`)))
	})

	It("refuses to put control events on the wire", func() {
		var buf bytes.Buffer
		Expect(protocol.WriteFrame(&buf, metric.FlushEvent(1))).NotTo(Succeed())
		Expect(protocol.WriteFrame(&buf, metric.ShutdownEvent())).NotTo(Succeed())
		Expect(buf.Len()).To(BeZero())
	})

	It("rejects oversized frame headers without reading the body", func() {
		var buf bytes.Buffer
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], protocol.MaxFrameBytes+1)
		buf.Write(header[:])

		_, err := protocol.ReadFrame(&buf)
		Expect(err).To(Equal(protocol.ErrFrameTooLarge))
	})

	It("reports truncated frames as errors, not EOF", func() {
		var buf bytes.Buffer
		Expect(protocol.WriteFrame(&buf, metric.TelemetryEvent(metric.New("x", 1)))).To(Succeed())
		trunc := buf.Bytes()[:buf.Len()-1]

		_, err := protocol.ReadFrame(bytes.NewReader(trunc))
		Expect(err).To(HaveOccurred())
		Expect(err).NotTo(Equal(io.EOF))
	})
})
