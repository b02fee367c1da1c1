/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the zvmd command tree. Running the binary with no
// subcommand prints usage, in the style of this pack's other cobra-based
// entrypoints (e.g. knative-func's cmd/root.go).
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "zvmd",
		Short:         "Execution-dispatch middleware for a storage-integrated compute platform",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().String("config", "", "path to zvmd YAML configuration")

	root.AddCommand(newServeCmd())
	root.AddCommand(newValidateConfigCmd())
	root.AddCommand(newVersionCmd())
	return root
}
