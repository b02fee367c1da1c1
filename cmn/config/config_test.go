/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package config_test

import (
	"os"
	"path/filepath"

	"github.com/NVIDIA/zvmd/cmn/config"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Load", func() {
	It("returns built-in defaults when no path is given", func() {
		cfg, err := config.Load("")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Server.ListenAddr).To(Equal(":8080"))
		Expect(cfg.MaxConfigBytes).To(BeNumerically(">", 0))
		Expect(cfg.Manifest.UseSelf).To(BeTrue())
	})

	It("overlays a YAML file on top of the defaults", func() {
		dir, err := os.MkdirTemp("", "zvmd-config-test")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)
		path := filepath.Join(dir, "zvmd.yaml")
		Expect(os.WriteFile(path, []byte(`
server:
  listen_addr: ":9090"
daemons:
  - socket_id: sock1
    config_path: /etc/zvmd/daemons/sock1.json
max_config_bytes: 1024
`), 0o644)).To(Succeed())

		cfg, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Server.ListenAddr).To(Equal(":9090"))
		Expect(cfg.MaxConfigBytes).To(Equal(int64(1024)))
		Expect(cfg.Daemons).To(HaveLen(1))
		Expect(cfg.Daemons[0].SocketID).To(Equal("sock1"))
		// Untouched defaults survive the overlay.
		Expect(cfg.Manifest.Version).To(Equal("20130611"))
	})

	It("errors when the file doesn't exist", func() {
		_, err := config.Load("/does/not/exist.yaml")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Get/Set", func() {
	It("installs and returns the process-wide snapshot", func() {
		cfg := &config.Config{Server: config.Server{ListenAddr: ":1234"}}
		config.Set(cfg)
		Expect(config.Get().Server.ListenAddr).To(Equal(":1234"))
	})
})
