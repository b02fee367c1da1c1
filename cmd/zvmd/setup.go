/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"bytes"
	"context"
	"os"
	"regexp"

	"github.com/pkg/errors"

	"github.com/NVIDIA/zvmd/cmn/config"
	"github.com/NVIDIA/zvmd/core"
	"github.com/NVIDIA/zvmd/daemon"
	"github.com/NVIDIA/zvmd/httpapi"
	"github.com/NVIDIA/zvmd/httpapi/regcache"
	"github.com/NVIDIA/zvmd/planner"
	"github.com/NVIDIA/zvmd/storage"
)

// loadConfig reads the --config flag (falling back to built-in defaults
// when unset) and installs it as the process-wide snapshot.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading configuration from %q", path)
	}
	config.Set(cfg)
	return cfg, nil
}

// openTemplateCache opens the open-with template cache. An empty
// Server.TemplateDB opens
// an in-memory instance - fine for a single-process deployment, but every
// open-with lookup then falls back to storage across a restart.
func openTemplateCache(cfg *config.Config) (*regcache.Cache, error) {
	c, err := regcache.Open(cfg.Server.TemplateDB)
	if err != nil {
		return nil, errors.Wrap(err, "opening template cache")
	}
	return c, nil
}

// newStorageClient wires the one concrete storage.Client this repo ships
// against the configured ring and backend base URL.
func newStorageClient(cfg *config.Config) storage.Client {
	return storage.NewHTTPClient(cfg.Server.StorageAddr, cfg.Server.StorageRing)
}

// loadDaemons parses every configured (socket_id, config_path) pair
// through the Planner into a Matcher.
func loadDaemons(cfg *config.Config, store storage.Client) (*daemon.Matcher, error) {
	if len(cfg.Daemons) == 0 {
		return &daemon.Matcher{}, nil
	}
	pairs := make([]daemon.Pair, len(cfg.Daemons))
	for i, p := range cfg.Daemons {
		pairs[i] = daemon.Pair{SocketID: p.SocketID, ConfigPath: p.ConfigPath}
	}
	return daemon.Load(pairs, planOneFromFile(cfg, store))
}

// planOneFromFile adapts a daemon config file, on disk, into the single
// Worker daemon.Load expects: decode its job description and run it
// through the same Planner the submission surface uses, constrained to
// exactly one node whose image executable lives in a configured
// system-image device (daemon.validateAndSign enforces the rest).
func planOneFromFile(cfg *config.Config, store storage.Client) daemon.PlanOne {
	return func(configPath string) (*core.Worker, error) {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, errors.Wrapf(err, "reading daemon config %q", configPath)
		}
		nodes, err := httpapi.DecodeJob(bytes.NewReader(data), cfg.MaxConfigBytes)
		if err != nil {
			return nil, err
		}
		ctx := context.Background()
		pl := planner.New(cfg.SysimageDevices, cfg.DefaultExeContent, cfg.Limits,
			func(account string, mask *regexp.Regexp) ([]string, error) {
				return store.ListAccount(ctx, account, maskString(mask))
			},
			func(account, container string, mask *regexp.Regexp) ([]string, error) {
				return store.ListContainer(ctx, account, container, maskString(mask))
			})
		workers, _, err := pl.Plan(nodes, false, "", 1)
		if err != nil {
			return nil, err
		}
		if len(workers) != 1 {
			return nil, errors.Errorf("daemon config %q must plan to exactly one worker, got %d", configPath, len(workers))
		}
		if exe := workers[0].Exe; core.IsImagePath(exe) {
			if _, ok := cfg.SysimageDevices[exe.Image]; !ok {
				return nil, errors.Errorf("daemon config %q: executable image %q is not a configured system-image device", configPath, exe.Image)
			}
		}
		return workers[0], nil
	}
}

func maskString(mask *regexp.Regexp) string {
	if mask == nil {
		return ""
	}
	return mask.String()
}
