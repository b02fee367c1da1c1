/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package core_test

import (
	"github.com/NVIDIA/zvmd/core"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Location", func() {
	It("parses a swift:// path into account/container/object", func() {
		loc, err := core.Parse("swift://acc/c/obj/name")
		Expect(err).NotTo(HaveOccurred())
		Expect(loc.Kind).To(Equal(core.LocStorageObject))
		Expect(loc.Account).To(Equal("acc"))
		Expect(loc.Container).To(Equal("c"))
		Expect(loc.Object).To(Equal("obj/name"))
		Expect(core.IsSwiftPath(loc)).To(BeTrue())
	})

	It("parses a zvm:// path into a node endpoint", func() {
		loc, err := core.Parse("zvm://dst/Y")
		Expect(err).NotTo(HaveOccurred())
		Expect(loc.Kind).To(Equal(core.LocNodeEndpoint))
		Expect(loc.NodeName).To(Equal("dst"))
		Expect(loc.DeviceName).To(Equal("Y"))
		Expect(core.IsZvmPath(loc)).To(BeTrue())
	})

	It("parses an image:// path into an image member", func() {
		loc, err := core.Parse("image://sysimage/bin/prog.nexe")
		Expect(err).NotTo(HaveOccurred())
		Expect(loc.Kind).To(Equal(core.LocImageMember))
		Expect(loc.Image).To(Equal("sysimage"))
		Expect(loc.Member).To(Equal("bin/prog.nexe"))
		Expect(core.IsImagePath(loc)).To(BeTrue())
	})

	It("treats an unrecognized scheme as opaque", func() {
		loc, err := core.Parse("http://example.com/prog")
		Expect(err).NotTo(HaveOccurred())
		Expect(loc.Kind).To(Equal(core.LocOpaque))
		Expect(loc.URL).To(Equal("http://example.com/prog"))
	})

	It("returns nil for an empty path - absent is not an error", func() {
		loc, err := core.Parse("")
		Expect(err).NotTo(HaveOccurred())
		Expect(loc).To(BeNil())
	})

	It("rejects control characters", func() {
		_, err := core.Parse("swift://acc/c/ob\x01j")
		Expect(err).To(HaveOccurred())
	})

	It("requires a node name in zvm:// paths", func() {
		_, err := core.Parse("zvm:///dev")
		Expect(err).To(HaveOccurred())
	})

	It("reports a storage path with an empty container as not a swift path", func() {
		loc, err := core.Parse("swift://acc")
		Expect(err).NotTo(HaveOccurred())
		Expect(core.IsSwiftPath(loc)).To(BeFalse())
	})
})

var _ = Describe("Classify", func() {
	It("defaults content type to text/html when no path is given", func() {
		ch, err := core.Classify(core.RawChannel{Device: "stdout"}, "n", "application/octet-stream")
		Expect(err).NotTo(HaveOccurred())
		Expect(ch.ContentType).To(Equal("text/html"))
		Expect(ch.Path).To(BeNil())
	})

	It("applies the caller's default content type when a path is given", func() {
		ch, err := core.Classify(core.RawChannel{Device: "input", Path: "swift://acc/c/obj"}, "n", "application/octet-stream")
		Expect(err).NotTo(HaveOccurred())
		Expect(ch.ContentType).To(Equal("application/octet-stream"))
	})

	It("prefers an explicitly given content type over any default", func() {
		ch, err := core.Classify(core.RawChannel{Device: "input", Path: "swift://acc/c/obj", ContentType: "text/plain"}, "n", "application/octet-stream")
		Expect(err).NotTo(HaveOccurred())
		Expect(ch.ContentType).To(Equal("text/plain"))
	})

	It("rejects a readable channel whose path is not a storage object", func() {
		_, err := core.Classify(core.RawChannel{Device: "input", Path: "zvm://peer/dev"}, "n", "text/html")
		Expect(err).To(HaveOccurred())
	})

	It("rejects a readable channel whose path is an account with no container", func() {
		_, err := core.Classify(core.RawChannel{Device: "input", Path: "swift://acc"}, "n", "text/html")
		Expect(err).To(HaveOccurred())
	})

	It("accepts a writable channel with no storage-object restriction", func() {
		ch, err := core.Classify(core.RawChannel{Device: "output", Path: "zvm://peer/dev"}, "n", "text/html")
		Expect(err).NotTo(HaveOccurred())
		Expect(ch.Access.Has(core.AccessWritable)).To(BeTrue())
	})

	It("returns AccessUnknown for an unrecognized device with no path", func() {
		ch, err := core.Classify(core.RawChannel{Device: "customdev"}, "n", "text/html")
		Expect(err).NotTo(HaveOccurred())
		Expect(ch.Access).To(Equal(core.AccessUnknown))
	})

	It("rejects a device name containing control characters", func() {
		_, err := core.Classify(core.RawChannel{Device: "bad\x01dev"}, "n", "text/html")
		Expect(err).To(HaveOccurred())
	})

	It("rejects an empty device name", func() {
		_, err := core.Classify(core.RawChannel{Device: ""}, "n", "text/html")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("NewNodeDesc", func() {
	It("rejects an empty node name", func() {
		_, err := core.NewNodeDesc("", "swift://acc/c/prog.nexe", "", nil, 1, 1)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a missing executable path", func() {
		_, err := core.NewNodeDesc("a", "", "", nil, 1, 1)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an executable path that is a node endpoint", func() {
		_, err := core.NewNodeDesc("a", "zvm://peer/dev", "", nil, 1, 1)
		Expect(err).To(HaveOccurred())
	})

	It("constructs a valid node descriptor", func() {
		nd, err := core.NewNodeDesc("a", "swift://acc/c/prog.nexe", "-u", map[string]string{"FOO": "bar"}, 2, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(nd.Name).To(Equal("a"))
		Expect(nd.Exe.Kind).To(Equal(core.LocStorageObject))
		Expect(nd.Count).To(Equal(2))
	})
})
