/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print zvmd version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := build
			if v == "" {
				v = "unknown"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "zvmd %s (build %s)\n", v, buildtime)
			return nil
		},
	}
}
