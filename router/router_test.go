/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package router_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/queue"
	"github.com/etsangsplk/cernan/router"
)

var _ = Describe("Router", func() {
	var (
		r            *router.Router
		jsonQ, sinkQ *queue.Memory
	)

	BeforeEach(func() {
		r = router.New()
		jsonQ = queue.NewMemory("json", 8)
		sinkQ = queue.NewMemory("console", 8)
		Expect(r.AddHop("json", jsonQ)).To(Succeed())
		Expect(r.AddHop("console", sinkQ)).To(Succeed())
		Expect(r.AddRoute("statsd", []string{"json"})).To(Succeed())
		Expect(r.AddRoute("json", []string{"console"})).To(Succeed())
		Expect(r.Resolve()).To(Succeed())
	})

	It("fans events out to forward targets only", func() {
		ev := metric.TelemetryEvent(metric.New("a", 1))
		r.Publish("statsd", ev)

		var got *metric.Event
		Eventually(jsonQ.Data()).Should(Receive(&got))
		Expect(got).To(BeIdenticalTo(ev))
		Consistently(sinkQ.Data()).ShouldNot(Receive())
	})

	It("broadcasts flush beats to every hop", func() {
		r.Broadcast(metric.FlushEvent(1))

		Eventually(jsonQ.Control()).Should(Receive())
		Eventually(sinkQ.Control()).Should(Receive())
	})

	It("orders hops upstream first", func() {
		Expect(r.TopoOrder()).To(Equal([]string{"json", "console"}))
	})

	It("rejects forwards to unknown hops", func() {
		bad := router.New()
		Expect(bad.AddRoute("statsd", []string{"nowhere"})).To(Succeed())
		Expect(bad.Resolve()).To(MatchError(ContainSubstring("unknown hop")))
	})

	It("rejects forward cycles", func() {
		bad := router.New()
		Expect(bad.AddHop("a", queue.NewMemory("a", 1))).To(Succeed())
		Expect(bad.AddHop("b", queue.NewMemory("b", 1))).To(Succeed())
		Expect(bad.AddRoute("a", []string{"b"})).To(Succeed())
		Expect(bad.AddRoute("b", []string{"a"})).To(Succeed())
		Expect(bad.Resolve()).To(MatchError(ContainSubstring("cycle")))
	})

	It("rejects duplicate hops and self-forwards", func() {
		Expect(r.AddHop("json", queue.NewMemory("json", 1))).NotTo(Succeed())
		Expect(r.AddRoute("delay", []string{"delay"})).NotTo(Succeed())
	})
})
