/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package core

// Host is one candidate backend for a storage ring partition: an object
// server the orchestrator can open a worker's execute connection against.
type Host struct {
	IP     string
	Port   int
	Device string
}
