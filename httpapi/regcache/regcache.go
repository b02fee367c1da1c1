// Package regcache is the injectable, TTL'd cache for open-with
// templates - the core's one piece of process-wide state. Backed by
// github.com/tidwall/buntdb, an embeddable key/value store with native
// per-key expiry - a fresh in-memory instance opens per test, and a
// file-backed one persists across a long-lived daemon process.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package regcache

import (
	"time"

	"github.com/tidwall/buntdb"
)

// Cache is a TTL'd key/value store for open-with templates fetched from a
// target object's ".zvm" registry container.
type Cache struct {
	db *buntdb.DB
}

// Open opens a cache at path, or an in-memory one when path is ":memory:"
// or empty.
func Open(path string) (*Cache, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached value for key, and whether it was present and
// unexpired.
func (c *Cache) Get(key string) (string, bool) {
	var val string
	var found bool
	c.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err == nil {
			val, found = v, true
		}
		return nil
	})
	return val, found
}

// Set stores value under key with the given TTL.
func (c *Cache) Set(key, value string, ttl time.Duration) error {
	return c.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, value, &buntdb.SetOptions{Expires: true, TTL: ttl})
		return err
	})
}
