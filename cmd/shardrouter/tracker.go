package main

import (
	"context"
	"sync"

	"github.com/shardset/shardset/pkg/balancer"
	"github.com/shardset/shardset/pkg/storage"
)

// shardVersionKey namespaces a router-tracked per-shard chunk version
// under the same single-string Store key space a storage node uses for
// its own node-global version (pkg/shardversion) — the config server's
// canonical table has the identical shape: one counter per (namespace,
// shard) pair.
func shardVersionKey(namespace, shardID string) string {
	return namespace + "@" + shardID
}

// versionTracker is the config server's canonical chunk-version table:
// a monotonic counter per namespace (bumped on every migration) and,
// per shard, the version it was last told to adopt. The balancer's
// SnapshotFunc reads this table back as each shard's ShardSnapshot
// (spec §4.C, §4.E).
type versionTracker struct {
	mu    sync.Mutex
	store storage.Store
	last  map[string]int64
}

func newVersionTracker(store storage.Store) *versionTracker {
	return &versionTracker{store: store, last: make(map[string]int64)}
}

// next assigns and records the next version for namespace.
func (t *versionTracker) next(namespace string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, err := t.store.GetChunkVersion(namespace)
	if err != nil {
		v = 0
	}
	v++
	_ = t.store.SetChunkVersion(namespace, v)
	t.last[namespace] = v
	return v
}

func (t *versionTracker) recordAdopted(namespace, shardID string, version int64) {
	_ = t.store.SetChunkVersion(shardVersionKey(namespace, shardID), version)
}

func (t *versionTracker) recordDropped(namespace, shardID string) {
	_ = t.store.SetChunkVersion(shardVersionKey(namespace, shardID), 0)
}

func (t *versionTracker) snapshot(namespaces, shardIDs []string) map[string][]balancer.ShardSnapshot {
	out := make(map[string][]balancer.ShardSnapshot, len(namespaces))
	for _, ns := range namespaces {
		shards := make([]balancer.ShardSnapshot, 0, len(shardIDs))
		for _, id := range shardIDs {
			v, err := t.store.GetChunkVersion(shardVersionKey(ns, id))
			if err != nil {
				v = 0
			}
			shards = append(shards, balancer.ShardSnapshot{ShardID: id, ChunkVersion: v})
		}
		out[ns] = shards
	}
	return out
}

// trackingExecutor wraps a balancer.Executor, recording each successful
// migration's outcome in the router's version table so the next
// snapshot reflects it.
type trackingExecutor struct {
	inner   balancer.Executor
	tracker *versionTracker
}

func (e *trackingExecutor) Migrate(ctx context.Context, m balancer.Migration) error {
	if err := e.inner.Migrate(ctx, m); err != nil {
		return err
	}
	e.tracker.mu.Lock()
	v := e.tracker.last[m.Namespace]
	e.tracker.mu.Unlock()
	e.tracker.recordAdopted(m.Namespace, m.To, v)
	e.tracker.recordDropped(m.Namespace, m.From)
	return nil
}
