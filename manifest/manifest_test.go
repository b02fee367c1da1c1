/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package manifest_test

import (
	"strings"

	"github.com/NVIDIA/zvmd/cmn/config"
	"github.com/NVIDIA/zvmd/core"
	"github.com/NVIDIA/zvmd/manifest"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Build", func() {
	It("emits one Channel= line per declared device plus defaulted stdio", func() {
		w := &core.Worker{
			ID:   1,
			Name: "a",
			Channels: []*core.Channel{
				{Device: "input", Access: core.AccessRandom | core.AccessReadable, Path: core.NewSwiftPath("acc", "data", "x")},
				{Device: "stdout", Access: core.AccessWritable},
			},
		}
		limits := config.Limits{Reads: 1, RBytes: 2, Writes: 3, WBytes: 4}
		text, nvram := manifest.Build(w, manifest.Opts{
			Version: "20130611", Timeout: 50, Memory: 4096, UseSelf: true,
			Limits: limits, ExeMember: core.TarMemberBoot,
		})

		Expect(text).To(ContainSubstring("Version=20130611"))
		Expect(text).To(ContainSubstring("Program=" + core.TarMemberBoot))
		Expect(text).To(ContainSubstring("Channel=input,/dev/input,3,0,1,2,0,0"))
		Expect(text).To(ContainSubstring("Channel=stdout,/dev/stdout,0,1,0,0,3,4"))
		Expect(text).To(ContainSubstring("Channel=/dev/null,/dev/stdin,0,0,1,2,0,0"))
		Expect(text).To(ContainSubstring("Channel=/dev/null,/dev/stderr,0,0,0,0,3,4"))
		Expect(text).To(ContainSubstring("Channel=" + core.TarMemberBoot + ",/dev/self,3,0,1,2,0,0"))
		Expect(text).To(ContainSubstring("Channel=" + core.TarMemberNVRAM + ",/dev/nvram,3,0,1,2,0,0"))
		Expect(text).To(ContainSubstring("Node=1"))
		Expect(string(nvram)).To(ContainSubstring("[args]\nargs = a"))
	})

	It("adds the image channel to fstab only on exact device-name match", func() {
		w := &core.Worker{
			ID:   1,
			Name: "a",
			Channels: []*core.Channel{
				{Device: "image", Access: core.AccessAppend, Removable: "yes"},
			},
		}
		_, nvram := manifest.Build(w, manifest.Opts{Limits: config.Limits{}})
		Expect(string(nvram)).To(ContainSubstring("[fstab]"))
		Expect(string(nvram)).To(ContainSubstring("channel=/dev/image, mountpoint=/, access=ro, removable=yes"))
	})

	It("escapes commas in env values and merges the local-object block", func() {
		w := &core.Worker{
			ID:       1,
			Name:     "a",
			PathInfo: "/acc/c/o",
			Env:      map[string]string{"MY_VAR": "a,b,c"},
			Channels: []*core.Channel{
				{Device: "output", Access: core.AccessWritable, ContentType: "text/plain"},
			},
		}
		local := w.Channels[0]
		_, nvram := manifest.Build(w, manifest.Opts{Limits: config.Limits{}, LocalObject: local})
		text := string(nvram)
		Expect(text).To(ContainSubstring(`name=MY_VAR, value=a\x2cb\x2cc`))
		Expect(text).To(ContainSubstring("name=CONTENT_TYPE, value=text/plain"))
		Expect(text).To(ContainSubstring("name=DOCUMENT_ROOT, value=/dev/output"))
		Expect(text).To(ContainSubstring("name=REQUEST_METHOD, value=POST"))
		Expect(text).To(ContainSubstring("name=PATH_INFO, value=/acc/c/o"))
		Expect(strings.Count(text, "[env]")).To(Equal(1))
	})
})
