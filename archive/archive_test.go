/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package archive_test

import (
	"bytes"
	"io"

	"github.com/NVIDIA/zvmd/archive"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Writer/Reader", func() {
	roundTrip := func(useLZ4 bool) {
		var buf bytes.Buffer
		w := archive.NewWriter(&buf, useLZ4)

		Expect(w.WriteHeader("sysmap", 5)).To(Succeed())
		n, err := w.Write([]byte("hello"))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(5))

		Expect(w.WriteHeader("boot", 3)).To(Succeed())
		_, err = w.Write([]byte("abc"))
		Expect(err).NotTo(HaveOccurred())

		Expect(w.Close()).To(Succeed())

		r := archive.NewReader(&buf, useLZ4)
		name, size, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("sysmap"))
		Expect(size).To(Equal(int64(5)))
		got, err := io.ReadAll(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got)).To(Equal("hello"))

		name, size, err = r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("boot"))
		Expect(size).To(Equal(int64(3)))
		got, err = io.ReadAll(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got)).To(Equal("abc"))

		_, _, err = r.Next()
		Expect(err).To(Equal(io.EOF))
	}

	It("round-trips plain tar members", func() {
		roundTrip(false)
	})

	It("round-trips lz4-compressed tar members", func() {
		roundTrip(true)
	})
})
