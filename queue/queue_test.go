/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package queue_test

import (
	"io/ioutil"
	"os"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/queue"
	"github.com/etsangsplk/cernan/stats"
)

func telem(name string, value float64) *metric.Event {
	return metric.TelemetryEvent(metric.New(name, value))
}

var _ = Describe("Memory", func() {
	var q *queue.Memory

	BeforeEach(func() {
		stats.Reset()
		q = queue.NewMemory("test", 4)
	})

	It("delivers data events in publish order", func() {
		q.Publish(telem("a", 1))
		q.Publish(telem("b", 2))

		var ev *metric.Event
		Eventually(q.Data()).Should(Receive(&ev))
		Expect(ev.Telemetry[0].Name).To(Equal("a"))
		Eventually(q.Data()).Should(Receive(&ev))
		Expect(ev.Telemetry[0].Name).To(Equal("b"))
	})

	It("drops data events past capacity and counts the drops", func() {
		for i := 0; i < 6; i++ {
			q.Publish(telem("x", float64(i)))
		}
		Expect(stats.Get("cernan.queue.dropped")).To(Equal(uint64(2)))

		for i := 0; i < 4; i++ {
			var ev *metric.Event
			Eventually(q.Data()).Should(Receive(&ev))
			Expect(ev.Telemetry[0].Value()).To(Equal(float64(i)))
		}
		Consistently(q.Data()).ShouldNot(Receive())
	})

	It("delivers flush beats on the control channel even when data is backed up", func() {
		for i := 0; i < 10; i++ {
			q.Publish(telem("x", float64(i)))
		}
		q.Publish(metric.FlushEvent(7))

		var ev *metric.Event
		Eventually(q.Control()).Should(Receive(&ev))
		Expect(ev.Kind).To(Equal(metric.EventTimerFlush))
		Expect(ev.Flush).To(Equal(uint64(7)))
	})

	It("always delivers shutdown", func() {
		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			q.Publish(metric.ShutdownEvent())
		}()

		var ev *metric.Event
		Eventually(q.Control()).Should(Receive(&ev))
		Expect(ev.Kind).To(Equal(metric.EventShutdown))
		Eventually(done).Should(BeClosed())
	})
})

var _ = Describe("Disk", func() {
	var (
		dir string
		q   *queue.Disk
		err error
	)

	BeforeEach(func() {
		stats.Reset()
		dir, err = ioutil.TempDir("", "queue-test-")
		Expect(err).NotTo(HaveOccurred())
		q, err = queue.OpenDisk("test", dir, 0)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if q != nil {
			q.Close()
		}
		os.RemoveAll(dir)
	})

	It("streams data events in publish order", func() {
		q.Publish(telem("a", 1))
		q.Publish(telem("b", 2))
		q.Publish(telem("c", 3))

		for _, name := range []string{"a", "b", "c"} {
			var ev *metric.Event
			Eventually(q.Data()).Should(Receive(&ev))
			Expect(ev.Telemetry).To(HaveLen(1))
			Expect(ev.Telemetry[0].Name).To(Equal(name))
		}
	})

	It("replays unacknowledged events after reopen", func() {
		q.Publish(telem("a", 1))
		q.Publish(telem("b", 2))
		q.Publish(telem("c", 3))

		var ev *metric.Event
		Eventually(q.Data()).Should(Receive(&ev))
		Eventually(q.Data()).Should(Receive(&ev))
		q.Ack()

		Expect(q.Close()).To(Succeed())

		q, err = queue.OpenDisk("test", dir, 0)
		Expect(err).NotTo(HaveOccurred())

		Eventually(q.Data()).Should(Receive(&ev))
		Expect(ev.Telemetry[0].Name).To(Equal("c"))
	})

	It("retains at most one delivered event across a fully acknowledged run", func() {
		q.Publish(telem("a", 1))
		q.Publish(telem("b", 2))

		var ev *metric.Event
		Eventually(q.Data()).Should(Receive(&ev))
		Eventually(q.Data()).Should(Receive(&ev))
		q.Ack()

		Expect(q.Close()).To(Succeed())

		q, err = queue.OpenDisk("test", dir, 0)
		Expect(err).NotTo(HaveOccurred())

		Eventually(q.Data()).Should(Receive(&ev))
		Expect(ev.Telemetry[0].Name).To(Equal("b"))
		Consistently(q.Data()).ShouldNot(Receive())
	})

	It("hands shutdown over only after the backlog is delivered", func() {
		q.Publish(telem("a", 1))
		q.Publish(telem("b", 2))
		q.Publish(metric.ShutdownEvent())

		var ev *metric.Event
		Eventually(q.Data()).Should(Receive(&ev))
		Expect(ev.Telemetry[0].Name).To(Equal("a"))
		Eventually(q.Data()).Should(Receive(&ev))
		Expect(ev.Telemetry[0].Name).To(Equal("b"))
		Eventually(q.Data()).Should(Receive(&ev))
		Expect(ev.Kind).To(Equal(metric.EventShutdown))
	})

	It("drops events past the disk budget and counts the drops", func() {
		small, err := queue.OpenDisk("small", dir+"-small", 64)
		Expect(err).NotTo(HaveOccurred())
		defer func() {
			small.Close()
			os.RemoveAll(dir + "-small")
		}()

		for i := 0; i < 64; i++ {
			small.Publish(telem("overly.long.metric.name.to.exhaust.budget", float64(i)))
		}
		Expect(stats.Get("cernan.queue.dropped")).To(BeNumerically(">", 0))
	})

	It("passes flush beats through without persisting them", func() {
		q.Publish(metric.FlushEvent(3))

		var ev *metric.Event
		Eventually(q.Control()).Should(Receive(&ev))
		Expect(ev.Flush).To(Equal(uint64(3)))

		Expect(q.Close()).To(Succeed())
		q, err = queue.OpenDisk("test", dir, 0)
		Expect(err).NotTo(HaveOccurred())
		Consistently(q.Data()).ShouldNot(Receive())
	})
})
