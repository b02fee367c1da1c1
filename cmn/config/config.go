// Package config holds zvmd's process-wide configuration: a single
// read-mostly snapshot installed at startup and read lock-free
// everywhere else.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package config

import (
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NVIDIA/zvmd/core"
)

type (
	// Limits mirrors the Python parser_config['limits'] stanza consumed by
	// the manifest builder and connect-string renderer.
	Limits struct {
		Reads  int64 `yaml:"reads"`
		RBytes int64 `yaml:"rbytes"`
		Writes int64 `yaml:"writes"`
		WBytes int64 `yaml:"wbytes"`
	}

	// Manifest mirrors parser_config['manifest'].
	Manifest struct {
		Version string `yaml:"version"`
		Timeout int    `yaml:"timeout"`
		Memory  int64  `yaml:"memory"`
		UseSelf bool   `yaml:"use_self"`
	}

	Timeouts struct {
		Conn       time.Duration `yaml:"conn"`
		Node       time.Duration `yaml:"node"`
		Client     time.Duration `yaml:"client"`
		UploadWait time.Duration `yaml:"upload_wait"`
	}

	Registry struct {
		ContainerName string        `yaml:"container_name"`
		CacheTTL      time.Duration `yaml:"cache_ttl"`
	}

	Accounting struct {
		Enabled bool   `yaml:"enabled"`
		Account string `yaml:"account"`
		Version string `yaml:"version"`
	}

	// Server is cmd/zvmd's own listen/backend wiring - not part of the
	// Python parser_config stanzas, since those never described a process
	// entrypoint.
	Server struct {
		ListenAddr  string      `yaml:"listen_addr"`
		StorageAddr string      `yaml:"storage_addr"`
		StorageRing []core.Host `yaml:"storage_ring"`
		TemplateDB  string      `yaml:"template_db"`
		MetricsAddr string      `yaml:"metrics_addr"`
	}

	// DaemonPair names one preloaded daemon socket and the config file its
	// signature is derived from.
	DaemonPair struct {
		SocketID   string `yaml:"socket_id"`
		ConfigPath string `yaml:"config_path"`
	}

	Config struct {
		Limits            Limits            `yaml:"limits"`
		Manifest          Manifest          `yaml:"manifest"`
		Timeouts          Timeouts          `yaml:"timeouts"`
		Registry          Registry          `yaml:"registry"`
		Accounting        Accounting        `yaml:"accounting"`
		Server            Server            `yaml:"server"`
		Daemons           []DaemonPair      `yaml:"daemons"`
		SysimageDevices   map[string]string `yaml:"sysimage_devices"`
		DefaultExeContent string            `yaml:"default_exe_content_type"`
		MaxConfigBytes    int64             `yaml:"max_config_bytes"`
		NetworkChunkSize  int               `yaml:"network_chunk_size"`
		NameServiceHost   string            `yaml:"name_service_host"`
		UseCORS           bool              `yaml:"use_cors"`
	}
)

func defaults() *Config {
	return &Config{
		Limits: Limits{Reads: 1 << 20, RBytes: 1 << 34, Writes: 1 << 20, WBytes: 1 << 34},
		Manifest: Manifest{
			Version: "20130611",
			Timeout: 50,
			Memory:  4 * 1024 * 1024 * 1024,
			UseSelf: true,
		},
		Timeouts: Timeouts{
			Conn:       5 * time.Second,
			Node:       10 * time.Second,
			Client:     60 * time.Second,
			UploadWait: 10 * time.Minute,
		},
		Registry:          Registry{ContainerName: ".zvm", CacheTTL: 60 * time.Second},
		Server:            Server{ListenAddr: ":8080"},
		SysimageDevices:   map[string]string{},
		DefaultExeContent: "application/octet-stream",
		MaxConfigBytes:    256 * 1024,
		NetworkChunkSize:  64 * 1024,
	}
}

// Load reads a YAML config file over top of the built-in defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var current atomic.Pointer[Config]

// Set installs cfg as the process-wide snapshot.
func Set(cfg *Config) { current.Store(cfg) }

// Get returns the current process-wide snapshot, defaulting to built-in
// values if none was ever installed (e.g. in unit tests).
func Get() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	c := defaults()
	current.Store(c)
	return c
}
