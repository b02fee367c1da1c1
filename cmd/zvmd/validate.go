/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/NVIDIA/zvmd/httpapi"
	"github.com/NVIDIA/zvmd/planner"
)

// newValidateConfigCmd runs a job description through the Planner only,
// without opening any backend connections - useful for CI and for authors
// of daemon-preload config files to catch a ClusterConfigParsingError
// before it fails a live job.
func newValidateConfigCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "validate-config <job.json>",
		Short: "Plan a job description and report errors without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			store := newStorageClient(cfg)

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			nodes, err := httpapi.DecodeJob(bytes.NewReader(data), cfg.MaxConfigBytes)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pl := planner.New(cfg.SysimageDevices, cfg.DefaultExeContent, cfg.Limits,
				func(acct string, mask *regexp.Regexp) ([]string, error) {
					return store.ListAccount(ctx, acct, maskString(mask))
				},
				func(acct, container string, mask *regexp.Regexp) ([]string, error) {
					return store.ListContainer(ctx, acct, container, maskString(mask))
				})
			workers, total, err := pl.Plan(nodes, false, account, 3)
			if err != nil {
				return err
			}
			pl.RenderConnectStrings(len(workers))

			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d worker(s), total_count=%d\n", len(workers), total)
			for _, w := range workers {
				fmt.Fprintf(cmd.OutOrStdout(), "  #%d %s: %d channel(s), %d bind, %d connect\n",
					w.ID, w.Name, len(w.Channels), len(w.Bind), len(w.Connect))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account the job is submitted under (for path_info resolution)")
	return cmd
}
