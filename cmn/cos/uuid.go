// Package cos provides common low-level types and utilities shared across zvmd.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"strconv"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
)

func initShortID() {
	sid = shortid.MustNew(1, uuidABC, uint64(time.Now().UnixNano()))
}

// GenUUID returns a short, URL-safe transaction/job identifier, grounded
// on the same shortid alphabet and generator the rest of the stack uses
// for daemon and node identifiers.
func GenUUID() string {
	sidOnce.Do(initShortID)
	return sid.MustGenerate()
}

// HashPartition derives a stable uint64 ring position from a storage path,
// used by the orchestrator's placement package to pick a deterministic
// candidate ordering for a worker whose path_info resolves to a real object.
func HashPartition(path string, numPartitions uint64) uint64 {
	if numPartitions == 0 {
		return 0
	}
	digest := xxhash.Checksum64S(UnsafeB(path), 0)
	return digest % numPartitions
}

// UnsafeB and UnsafeS convert between string and []byte for read-only use
// (hashing, comparisons).
func UnsafeB(s string) []byte { return []byte(s) }
func UnsafeS(b []byte) string { return string(b) }

func Itoa(i int) string { return strconv.Itoa(i) }
