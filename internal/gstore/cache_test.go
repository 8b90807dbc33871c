/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package gstore_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/internal/gstore"
)

var _ = Describe("Client", func() {
	var (
		sm  *gstore.StateMachine
		cli *gstore.Client
		ns  cos.UUID
	)

	BeforeEach(func() {
		var err error
		sm, err = gstore.New("")
		Expect(err).NotTo(HaveOccurred())
		cli = gstore.NewClient(sm)
		ns = cos.NewUUID()
		Expect(cli.CreateStore(ns)).To(Succeed())
		Expect(cli.Prepare(ns, true)).To(Succeed())
	})

	Describe("set/get_cached", func() {
		It("should see its own write immediately", func() {
			Expect(cli.Set(ns, []byte{1, 2, 3}, []byte{4, 5, 6})).To(Succeed())
			v, ok, err := cli.GetCached(ns, []byte{1, 2, 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal([]byte{4, 5, 6}))
		})

		It("should reflect a delete as a cache miss", func() {
			Expect(cli.Set(ns, []byte{1, 2, 3}, []byte{4, 5, 6})).To(Succeed())
			Expect(cli.Set(ns, []byte{1, 2, 3}, nil)).To(Succeed())
			_, ok, err := cli.GetCached(ns, []byte{1, 2, 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("should match the walkthrough scenario", func() {
			Expect(cli.Set(ns, []byte{1, 2, 3}, []byte{4, 5, 6})).To(Succeed())
			Expect(cli.Set(ns, []byte{7, 8, 9}, []byte{10, 11, 12})).To(Succeed())

			v, ok, _ := cli.GetCached(ns, []byte{1, 2, 3})
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal([]byte{4, 5, 6}))

			Expect(cli.Set(ns, []byte{1, 2, 3}, nil)).To(Succeed())
			_, ok, _ = cli.GetCached(ns, []byte{1, 2, 3})
			Expect(ok).To(BeFalse())

			Expect(cli.Set(ns, []byte{1, 2, 3}, []byte{13, 14, 15, 16})).To(Succeed())
			v, ok, _ = cli.GetCached(ns, []byte{1, 2, 3})
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal([]byte{13, 14, 15, 16}))
		})
	})

	Describe("compare_and_swap", func() {
		It("should commit when the observed value matches expect", func() {
			actual, applied, err := cli.CompareAndSwap(ns, []byte("k"), nil, []byte("v1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeTrue())
			Expect(actual).To(BeNil())

			v, _, _ := cli.GetCached(ns, []byte("k"))
			Expect(v).To(Equal([]byte("v1")))
		})

		It("should leave state untouched and report the real value on mismatch", func() {
			Expect(cli.Set(ns, []byte("k"), []byte("v1"))).To(Succeed())
			actual, applied, err := cli.CompareAndSwap(ns, []byte("k"), []byte("wrong"), []byte("v2"))
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeFalse())
			Expect(actual).To(Equal([]byte("v1")))

			v, _, _ := cli.GetCached(ns, []byte("k"))
			Expect(v).To(Equal([]byte("v1")))
		})
	})

	Describe("invalidate", func() {
		It("should drop the local cache entry", func() {
			Expect(cli.Set(ns, []byte("k"), []byte("v"))).To(Succeed())
			Expect(cli.Invalidate(ns)).To(Succeed())
			_, _, err := cli.GetCached(ns, []byte("k"))
			Expect(err).To(HaveOccurred())
		})
	})
})
