/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NVIDIA/zvmd/cmn/cos"
	"github.com/NVIDIA/zvmd/cmn/nlog"
	"github.com/NVIDIA/zvmd/httpapi"
	"github.com/NVIDIA/zvmd/stats"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the zvmd HTTP submission surface",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configPath)
	if err != nil {
		cos.ExitLogf("%v", err)
	}

	store := newStorageClient(cfg)
	templates, err := openTemplateCache(cfg)
	if err != nil {
		cos.ExitLogf("%v", err)
	}
	defer templates.Close()

	daemons, err := loadDaemons(cfg, store)
	if err != nil {
		nlog.Warningf("zvmd: some daemon preload entries failed to load: %v", err)
	}

	statsReg := stats.New()

	handler := httpapi.New(cfg, store, templates, daemons, statsReg)

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	if cfg.Server.MetricsAddr == "" {
		mux.Handle("/metrics", statsReg.Handler())
	}

	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mm := http.NewServeMux()
		mm.Handle("/metrics", statsReg.Handler())
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mm}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				nlog.Errorf("zvmd: metrics server: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		nlog.Infof("zvmd: listening on %s", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		nlog.Infof("zvmd: received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		nlog.Warningf("zvmd: graceful shutdown: %v", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(ctx)
	}
	nlog.Flush()
	return <-errCh
}
