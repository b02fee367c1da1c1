// Package storage declares the collaborator API the orchestrator and
// planner consume from the storage layer: account/container listing, ring
// placement, and object GET/PUT. zvmd never talks to a storage backend's
// wire protocol directly - callers inject a Client so the core packages
// stay free of any particular storage product's client library.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package storage

import (
	"context"
	"io"

	"github.com/NVIDIA/zvmd/core"
)

// GetResult is the response to an object GET: status, a subset of headers
// the orchestrator inspects directly (content-length, content-type,
// x-zerovm-valid), and a chunked body.
type GetResult struct {
	Status        int
	ContentLength int64
	ContentType   string
	Valid         bool
	Headers       map[string]string
	Body          io.ReadCloser
}

// ContainerInfo is the subset of account/container metadata the
// orchestrator needs: ring placement for non-wildcard replication and the
// container's CORS settings.
type ContainerInfo struct {
	Partition     int
	Hosts         []core.Host
	ReadACL       string
	CORSOrigin    string
	CORSExpose    string
}

// Client is the storage collaborator the planner and orchestrator are
// built against. A production binary wires this to an object-storage
// cluster client (HTTPClient, in both cmd/zvmd commands); tests wire a stub.
type Client interface {
	// ListAccount lists containers matching maskRegex (the planner's
	// wildcard expansion); entries ending in "/" are filtered out.
	ListAccount(ctx context.Context, account, maskRegex string) ([]string, error)
	// ListContainer lists objects matching maskRegex within container.
	ListContainer(ctx context.Context, account, container, maskRegex string) ([]string, error)

	// Get fetches an object for use as an orchestrator data source.
	Get(ctx context.Context, path string) (*GetResult, error)
	// Put writes an orchestrator output member back to storage.
	Put(ctx context.Context, path string, headers map[string]string, body io.Reader, contentLength int64) (status int, err error)

	// ContainerInfo resolves ring placement and metadata for a container.
	ContainerInfo(ctx context.Context, account, container string) (*ContainerInfo, error)
	// Ring resolves the partition and candidate hosts for an object path;
	// ok is false when the path doesn't resolve to a ring location (the
	// caller then falls back to RandomPartition).
	Ring(ctx context.Context, account, container, object string) (partition int, hosts []core.Host, ok bool)
	// RandomPartition returns a uniformly random partition and its hosts,
	// used for workers whose path_info doesn't resolve to a ring location.
	RandomPartition(ctx context.Context) (partition int, hosts []core.Host)
}
