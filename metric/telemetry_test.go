/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metric_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/etsangsplk/cernan/metric"
)

var _ = Describe("Telemetry", func() {
	Describe("Merge", func() {
		It("replaces the value for Set kinds", func() {
			a := metric.New("cpu", 1.0)
			a.Time = 10
			b := metric.New("cpu", 3.0)
			b.Time = 10

			Expect(a.Merge(b)).To(Succeed())
			Expect(a.Value()).To(Equal(3.0))
			Expect(a.Count()).To(Equal(1))
		})

		It("applies delta Sets against the previous value", func() {
			a := metric.New("gauge", 10.0)
			b := metric.New("gauge", -4.0)
			b.Delta = true

			Expect(a.Merge(b)).To(Succeed())
			Expect(a.Value()).To(Equal(6.0))
		})

		It("adds values for Sum kinds", func() {
			a := metric.New("hits", 1.0)
			a.Kind = metric.Sum
			b := metric.New("hits", 2.5)
			b.Kind = metric.Sum

			Expect(a.Merge(b)).To(Succeed())
			Expect(a.Value()).To(Equal(3.5))
		})

		It("retains samples for Summarize kinds", func() {
			a := metric.New("latency", 100)
			a.Kind = metric.Summarize
			b := metric.New("latency", 200)
			b.Kind = metric.Summarize

			Expect(a.Merge(b)).To(Succeed())
			Expect(a.Count()).To(Equal(2))
			Expect(a.Sum()).To(Equal(300.0))
		})

		It("keeps the later timestamp", func() {
			a := metric.New("cpu", 1.0)
			a.Time = 10
			b := metric.New("cpu", 2.0)
			b.Time = 12

			Expect(a.Merge(b)).To(Succeed())
			Expect(a.Time).To(Equal(int64(12)))
		})

		It("rejects mismatched identities", func() {
			a := metric.New("cpu", 1.0)
			b := metric.New("mem", 1.0)
			Expect(a.Merge(b)).NotTo(Succeed())

			c := metric.New("cpu", 1.0)
			c.Kind = metric.Sum
			Expect(a.Merge(c)).NotTo(Succeed())
		})
	})

	Describe("Query", func() {
		It("reports exact quantiles over retained samples", func() {
			t := metric.New("latency", 1)
			t.Kind = metric.Summarize
			for v := 2.0; v <= 100; v++ {
				o := metric.New("latency", v)
				o.Kind = metric.Summarize
				Expect(t.Merge(o)).To(Succeed())
			}

			Expect(t.Query(0)).To(Equal(1.0))
			Expect(t.Query(1)).To(Equal(100.0))
			Expect(t.Query(0.5)).To(BeNumerically("~", 50.0, 1.0))
			Expect(t.Query(0.99)).To(BeNumerically("~", 99.0, 1.0))
		})

		It("is zero on empty points", func() {
			t := &metric.Telemetry{Name: "x", Kind: metric.Summarize}
			Expect(t.Query(0.5)).To(Equal(0.0))
			Expect(t.Value()).To(Equal(0.0))
		})
	})

	Describe("ID", func() {
		It("distinguishes kinds and tag sets", func() {
			a := metric.New("cpu", 1)
			b := metric.New("cpu", 1)
			Expect(a.ID()).To(Equal(b.ID()))

			b.Kind = metric.Sum
			Expect(a.ID()).NotTo(Equal(b.ID()))

			c := metric.New("cpu", 1)
			c.Tags = map[string]string{"host": "a"}
			Expect(a.ID()).NotTo(Equal(c.ID()))
		})

		It("is insensitive to tag insertion order", func() {
			a := metric.New("cpu", 1)
			a.Tags = map[string]string{"dc": "us", "host": "a"}
			b := metric.New("cpu", 1)
			b.Tags = map[string]string{"host": "a", "dc": "us"}
			Expect(a.ID()).To(Equal(b.ID()))
			Expect(a.Hash()).To(Equal(b.Hash()))
		})
	})

	Describe("Clone", func() {
		It("is independent of the original", func() {
			a := metric.New("cpu", 1)
			a.Tags = map[string]string{"host": "a"}
			c := a.Clone()

			b := metric.New("cpu", 9)
			Expect(c.Merge(b)).To(Succeed())
			c.Tags["host"] = "b"

			Expect(a.Value()).To(Equal(1.0))
			Expect(a.Tags["host"]).To(Equal("a"))
			Expect(c.Value()).To(Equal(9.0))
		})
	})

	Describe("AddTags", func() {
		It("does not clobber point tags with global tags", func() {
			a := metric.New("cpu", 1)
			a.Tags = map[string]string{"host": "a"}
			a.AddTags(map[string]string{"host": "global", "dc": "us"})
			Expect(a.Tags).To(Equal(map[string]string{"host": "a", "dc": "us"}))
		})
	})

	Describe("aggregate views", func() {
		It("computes min, max, sum and mean", func() {
			t := metric.New("latency", 4)
			t.Kind = metric.Histogram
			for _, v := range []float64{8, 2, 6} {
				o := metric.New("latency", v)
				o.Kind = metric.Histogram
				Expect(t.Merge(o)).To(Succeed())
			}
			Expect(t.Min()).To(Equal(2.0))
			Expect(t.Max()).To(Equal(8.0))
			Expect(t.Sum()).To(Equal(20.0))
			Expect(t.Value()).To(Equal(5.0))
			Expect(t.Samples()).To(ConsistOf(4.0, 8.0, 2.0, 6.0))
		})
	})
})
