/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package daemon_test

import (
	"fmt"

	"github.com/NVIDIA/zvmd/core"
	"github.com/NVIDIA/zvmd/daemon"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func sysimageWorker(device, mode string) *core.Worker {
	exe, err := core.Parse("image://sysimage/bin/prog.nexe")
	Expect(err).NotTo(HaveOccurred())
	return &core.Worker{
		Name: "a-1",
		Exe:  exe,
		Channels: []*core.Channel{
			{Device: device, Access: core.AccessRandom | core.AccessReadable, Mode: mode},
		},
	}
}

var _ = Describe("Load", func() {
	It("accepts a single-node, network-free, sysimage-executable config", func() {
		planOne := func(path string) (*core.Worker, error) { return sysimageWorker("sysimage", ""), nil }
		m, err := daemon.Load([]daemon.Pair{{SocketID: "sock1", ConfigPath: "cfg1.json"}}, planOne)
		Expect(err).NotTo(HaveOccurred())
		socket, ok := m.Match(sysimageWorker("sysimage", ""))
		Expect(ok).To(BeTrue())
		Expect(socket).To(Equal("sock1"))
	})

	It("rejects a config whose worker declares network channels", func() {
		planOne := func(path string) (*core.Worker, error) {
			w := sysimageWorker("sysimage", "")
			w.Bind = []core.Peer{{Name: "other", Device: "/dev/in/a"}}
			return w, nil
		}
		_, err := daemon.Load([]daemon.Pair{{SocketID: "sock1", ConfigPath: "cfg1.json"}}, planOne)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a config whose executable is not a system-image member", func() {
		planOne := func(path string) (*core.Worker, error) {
			exe, err := core.Parse("swift://acc/bin/prog.nexe")
			Expect(err).NotTo(HaveOccurred())
			return &core.Worker{Name: "a-1", Exe: exe}, nil
		}
		_, err := daemon.Load([]daemon.Pair{{SocketID: "sock1", ConfigPath: "cfg1.json"}}, planOne)
		Expect(err).To(HaveOccurred())
	})

	It("doesn't let one bad entry block the others from loading", func() {
		calls := 0
		planOne := func(path string) (*core.Worker, error) {
			calls++
			if path == "bad.json" {
				return nil, fmt.Errorf("boom")
			}
			return sysimageWorker("sysimage", ""), nil
		}
		m, err := daemon.Load([]daemon.Pair{
			{SocketID: "bad", ConfigPath: "bad.json"},
			{SocketID: "good", ConfigPath: "good.json"},
		}, planOne)
		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(2))
		_, ok := m.Match(sysimageWorker("sysimage", ""))
		Expect(ok).To(BeTrue())
	})

	It("does not match workers with a different channel mode", func() {
		planOne := func(path string) (*core.Worker, error) { return sysimageWorker("sysimage", ""), nil }
		m, err := daemon.Load([]daemon.Pair{{SocketID: "sock1", ConfigPath: "cfg1.json"}}, planOne)
		Expect(err).NotTo(HaveOccurred())
		_, ok := m.Match(sysimageWorker("sysimage", "ro"))
		Expect(ok).To(BeFalse())
	})
})
