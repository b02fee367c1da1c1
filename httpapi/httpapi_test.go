/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package httpapi

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/NVIDIA/zvmd/archive"
	"github.com/NVIDIA/zvmd/cmn/cos"
	"github.com/NVIDIA/zvmd/core"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("parseShebang", func() {
	It("expands a script submission into a one-node config", func() {
		body := []byte("#!swift://acc/bin/py.nexe -u\nprint 1\n")
		nodes, err := parseShebang(body, "acc", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
		Expect(nodes[0].Exe.Path()).To(Equal("/acc/bin/py.nexe"))
		Expect(nodes[0].Args).To(Equal("-u"))

		devices := make([]string, 0, len(nodes[0].Files))
		for _, f := range nodes[0].Files {
			devices = append(devices, f.Device)
		}
		Expect(devices).To(ConsistOf("stdout", "stderr"))
	})

	It("binds the target object as stdin for an object-scoped submission", func() {
		body := []byte("#!swift://acc/bin/py.nexe\nprint 1\n")
		nodes, err := parseShebang(body, "acc", "c", "obj")
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
		var stdinPath string
		for _, f := range nodes[0].Files {
			if f.Device == "stdin" {
				stdinPath = f.Path
			}
		}
		Expect(stdinPath).To(Equal("swift://acc/c/obj"))
	})

	It("appends the interpreter's system image as a device", func() {
		body := []byte("#!image://py27/bin/python -c\nprint 1\n")
		nodes, err := parseShebang(body, "acc", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
		last := nodes[0].Files[len(nodes[0].Files)-1]
		Expect(last.Device).To(Equal("py27"))
		Expect(last.Path).To(BeEmpty())
	})

	It("rejects a shebang naming the bare image device", func() {
		_, err := parseShebang([]byte("#!image://image/bin/python\n"), "acc", "", "")
		Expect(err).To(HaveOccurred())
	})

	It("rejects a shebang whose executable is an opaque URL", func() {
		_, err := parseShebang([]byte("#!http://evil/prog\n"), "acc", "", "")
		Expect(err).To(HaveOccurred())
	})

	It("rejects an empty shebang line", func() {
		_, err := parseShebang([]byte("#!\nprint 1\n"), "acc", "", "")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("scriptImage", func() {
	It("packs the script as one tar member named script, sized to the body", func() {
		body := []byte("#!swift://acc/bin/py.nexe -u\nprint 1\n")
		img, err := scriptImage(body)
		Expect(err).NotTo(HaveOccurred())

		rc, err := img.Open(context.Background())
		Expect(err).NotTo(HaveOccurred())
		defer rc.Close()
		packed, err := io.ReadAll(rc)
		Expect(err).NotTo(HaveOccurred())
		Expect(int64(len(packed))).To(Equal(img.ContentLength()))

		r := archive.NewReader(bytes.NewReader(packed), false)
		name, size, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("script"))
		Expect(size).To(Equal(int64(len(body))))
		member, err := io.ReadAll(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(member).To(Equal(body))
	})
})

var _ = Describe("Expand", func() {
	vars := TemplateVars{"account": "acc", "object_path": "/acc/c/o"}

	It("substitutes known placeholders", func() {
		Expect(Expand("path={.object_path}", vars)).To(Equal("path=/acc/c/o"))
	})

	It("substitutes multiple placeholders across one template", func() {
		Expect(Expand("{.account}:{.object_path}", vars)).To(Equal("acc:/acc/c/o"))
	})

	It("applies a default when the key is absent", func() {
		Expect(Expand("args={.exec_args=-v}", vars)).To(Equal("args=-v"))
	})

	It("prefers the supplied value over a default", func() {
		Expect(Expand("acct={.account=other}", vars)).To(Equal("acct=acc"))
	})

	It("leaves an unknown placeholder without a default in place", func() {
		Expect(Expand("x={.mystery}", vars)).To(Equal("x={.mystery}"))
	})
})

var _ = Describe("DecodeJob", func() {
	It("decodes a full node descriptor", func() {
		body := `[{"name":"a","exec":{"path":"swift://acc/bin/prog.nexe","args":"-u"},` +
			`"file_list":[{"device":"input","path":"swift://acc/data/x"},{"device":"stdout"}],` +
			`"count":2,"connect":["b"]}]`
		nodes, err := DecodeJob(strings.NewReader(body), 1024)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
		Expect(nodes[0].Name).To(Equal("a"))
		Expect(nodes[0].Count).To(Equal(2))
		Expect(nodes[0].Connect).To(Equal([]string{"b"}))
		Expect(nodes[0].Files).To(HaveLen(2))
	})

	It("reports an oversized config", func() {
		body := `[{"name":"a","exec":{"path":"swift://acc/bin/prog.nexe"}}]`
		_, err := DecodeJob(strings.NewReader(body), 8)
		var tooLarge *cos.ErrConfigTooLarge
		Expect(err).To(BeAssignableToTypeOf(tooLarge))
	})

	It("reports malformed JSON as unprocessable", func() {
		_, err := DecodeJob(strings.NewReader("{not json"), 1024)
		var unproc *cos.ErrUnprocessable
		Expect(err).To(BeAssignableToTypeOf(unproc))
	})
})

var _ = Describe("parseTarSubmission", func() {
	pack := func(members map[string][]byte, order []string) []byte {
		var buf bytes.Buffer
		w := archive.NewWriter(&buf, false)
		for _, name := range order {
			data := members[name]
			Expect(w.WriteHeader(name, int64(len(data)))).To(Succeed())
			_, err := w.Write(data)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(w.Close()).To(Succeed())
		return buf.Bytes()
	}

	config := []byte(`[{"name":"a","exec":{"path":"swift://acc/bin/prog.nexe"},` +
		`"file_list":[{"device":"stdout"}]}]`)

	It("finds the config member and forwards the rest as the user image", func() {
		body := pack(map[string][]byte{
			"job.json": config,
			"payload":  []byte("IMAGE-BYTES"),
		}, []string{"payload", "job.json"})

		job, err := parseTarSubmission(bytes.NewReader(body), 1<<20)
		Expect(err).NotTo(HaveOccurred())
		Expect(job.nodes).To(HaveLen(1))
		Expect(job.nodes[0].Name).To(Equal("a"))
		Expect(job.imageLength).To(Equal(int64(len("IMAGE-BYTES"))))
		img, err := io.ReadAll(job.image)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(img)).To(Equal("IMAGE-BYTES"))
	})

	It("accepts a config-only archive with no image members", func() {
		body := pack(map[string][]byte{"config.json": config}, []string{"config.json"})
		job, err := parseTarSubmission(bytes.NewReader(body), 1<<20)
		Expect(err).NotTo(HaveOccurred())
		Expect(job.image).To(BeNil())
		Expect(job.imageLength).To(Equal(int64(-1)))
	})

	It("rejects an archive without a recognized config member", func() {
		body := pack(map[string][]byte{"other": []byte("x")}, []string{"other"})
		_, err := parseTarSubmission(bytes.NewReader(body), 1<<20)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ObjectTemplateVars", func() {
	It("builds the object URL from the request segments", func() {
		vars := ObjectTemplateVars("acc", "c", "o")
		Expect(vars["object_path"]).To(Equal("swift://acc/c/o"))
		Expect(vars["account"]).To(Equal("acc"))
	})

	It("omits trailing empty segments", func() {
		Expect(ObjectTemplateVars("acc", "", "")["object_path"]).To(Equal("swift://acc"))
	})
})

// the raw shebang channel append must classify cleanly downstream
var _ = Describe("shebang sysimage channel", func() {
	It("classifies as an unknown device for the planner to resolve", func() {
		ch, err := core.Classify(core.RawChannel{Device: "py27"}, "node", "text/html")
		Expect(err).NotTo(HaveOccurred())
		Expect(ch.Access).To(Equal(core.AccessUnknown))
	})
})
