// Package storage provides the durable, embedded state a storage node
// keeps across restarts: its replica-set configuration, its node-global
// chunk-version table, and the distributed-lock document collection it
// may host as a configuration server (spec §3, §4.C, §4.E).
package storage

import "github.com/shardset/shardset/pkg/types"

// LockDoc mirrors the Distributed Lock Record (spec §3): one document
// per lock name.
type LockDoc struct {
	Name  string
	State int // 0 = unlocked, 1 = locked
	Who   string
	When  int64 // unix nanos
	Why   string
}

// Store is the durable persistence interface used by pkg/replset,
// pkg/shardversion, and pkg/distlock.
type Store interface {
	// Replica-set configuration (spec §3 Replica-Set Configuration).
	SaveReplSetConfig(cfg types.Config) error
	LoadReplSetConfig(setID string) (types.Config, bool, error)

	// Node-global chunk-version table (spec §3 Chunk Version). version
	// 0 means unsharded/cleared.
	SetChunkVersion(ns string, version int64) error
	GetChunkVersion(ns string) (int64, error)

	// Distributed lock documents (spec §3 Distributed Lock Record, §4.E).
	GetLock(name string) (LockDoc, bool, error)
	// EnsureLock inserts an unlocked {state:0, who:""} document for name
	// if one doesn't already exist. A no-op otherwise.
	EnsureLock(name string) error
	// CompareAndSwapLock performs the only legal CAS transitions:
	// (state=0)->(state=1,...) and its inverse. It returns the
	// document's current state after the attempt and whether the swap
	// actually applied.
	CompareAndSwapLock(expected LockDoc, next LockDoc) (LockDoc, bool, error)
	// ForceUnlock unconditionally sets name's document to state=0,
	// without checking current ownership (spec §4.E unlock).
	ForceUnlock(name string) error

	Close() error
}
