/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package positions_test

import (
	"io/ioutil"
	"os"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/etsangsplk/cernan/positions"
)

var _ = Describe("Positions", func() {
	var (
		tmpDir string
		store  *positions.Store
	)

	BeforeEach(func() {
		var err error

		tmpDir, err = ioutil.TempDir("", "positions-test-*")
		Expect(err).NotTo(HaveOccurred())

		store, err = positions.Open(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	It("round-trips marks", func() {
		mark := positions.Mark{Offset: 4096, Dev: 2049, Inode: 917}
		Expect(store.Put("/var/log/syslog", mark)).To(Succeed())

		got, ok, err := store.Get("/var/log/syslog")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(mark))
	})

	It("reports missing paths without error", func() {
		_, ok, err := store.Get("/var/log/never-followed")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("survives a close and reopen", func() {
		mark := positions.Mark{Offset: 128, Dev: 1, Inode: 2}
		Expect(store.Put("/tmp/app.log", mark)).To(Succeed())
		store.Close()

		var err error
		store, err = positions.Open(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		got, ok, err := store.Get("/tmp/app.log")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(mark))
	})

	It("forgets marks for removed files", func() {
		Expect(store.Put("/tmp/gone.log", positions.Mark{Offset: 7})).To(Succeed())
		Expect(store.Forget("/tmp/gone.log")).To(Succeed())

		_, ok, err := store.Get("/tmp/gone.log")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		Expect(store.Forget("/tmp/gone.log")).To(Succeed())
	})

	It("works in memory when no directory is given", func() {
		mem, err := positions.Open("")
		Expect(err).NotTo(HaveOccurred())
		defer mem.Close()

		Expect(mem.Put("/x", positions.Mark{Offset: 1})).To(Succeed())
		_, ok, err := mem.Get("/x")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})
})
