/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package fanout_test

import (
	"bytes"
	"context"
	"io"

	"github.com/NVIDIA/zvmd/archive"
	"github.com/NVIDIA/zvmd/fanout"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type stringSource struct{ r io.Reader }

func (s *stringSource) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *stringSource) Close() error                { return nil }

var _ = Describe("Drive", func() {
	It("broadcasts two sources to two sinks as valid tar archives", func() {
		var bufA, bufB bytes.Buffer
		sinkA := fanout.NewSink(archive.NewWriter(&bufA, false), func() bool { return false }, 4)
		sinkB := fanout.NewSink(archive.NewWriter(&bufB, false), func() bool { return false }, 4)

		sources := []*fanout.Source{
			{
				ContentLength: 5,
				Targets:       []*fanout.Sink{sinkA, sinkB},
				Device:        func(i int) string { return "sysmap" },
				Last:          func(i int) bool { return false },
				Open: func(ctx context.Context) (io.ReadCloser, error) {
					return &stringSource{r: bytes.NewBufferString("hello")}, nil
				},
			},
			{
				ContentLength: 3,
				Targets:       []*fanout.Sink{sinkA, sinkB},
				Device:        func(i int) string { return "boot" },
				Last:          func(i int) bool { return true },
				Open: func(ctx context.Context) (io.ReadCloser, error) {
					return &stringSource{r: bytes.NewBufferString("abc")}, nil
				},
			},
		}

		Expect(fanout.Drive(context.Background(), sources, 2, nil)).To(Succeed())
		Expect(sinkA.Close()).To(Succeed())
		Expect(sinkB.Close()).To(Succeed())

		for _, buf := range []*bytes.Buffer{&bufA, &bufB} {
			// headers plus padded payloads only - no end-of-archive
			// footer, which the advertised Content-Length never covers
			Expect(int64(buf.Len())).To(Equal(archive.MemberSize(5) + archive.MemberSize(3)))
		}

		for _, buf := range []*bytes.Buffer{&bufA, &bufB} {
			r := archive.NewReader(bytes.NewReader(buf.Bytes()), false)
			name, size, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("sysmap"))
			Expect(size).To(Equal(int64(5)))
			name, size, err = r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("boot"))
			Expect(size).To(Equal(int64(3)))
		}
	})

	It("reports an undersized source as an error", func() {
		var buf bytes.Buffer
		sink := fanout.NewSink(archive.NewWriter(&buf, false), func() bool { return false }, 4)
		sources := []*fanout.Source{
			{
				ContentLength: 10,
				Targets:       []*fanout.Sink{sink},
				Device:        func(i int) string { return "input" },
				Last:          func(i int) bool { return true },
				Open: func(ctx context.Context) (io.ReadCloser, error) {
					return &stringSource{r: bytes.NewBufferString("short")}, nil
				},
			},
		}
		err := fanout.Drive(context.Background(), sources, 4, nil)
		Expect(err).To(HaveOccurred())
		sink.Close()
	})
})
