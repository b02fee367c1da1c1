// Command zvmd is the execution-dispatch middleware's process entrypoint:
// it loads configuration, wires the storage collaborator, the template
// cache, the daemon-preload matcher, and the metrics registry, then
// either serves HTTP traffic or validates a configuration file offline.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	"github.com/NVIDIA/zvmd/cmn/nlog"
)

var (
	build     string
	buildtime string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		nlog.Flush()
		os.Exit(1)
	}
}
