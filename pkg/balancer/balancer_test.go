package balancer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardset/shardset/pkg/distlock"
	"github.com/shardset/shardset/pkg/storage"
	"github.com/shardset/shardset/pkg/types"
)

type memStore struct {
	mu      sync.Mutex
	configs map[string]types.Config
	chunks  map[string]int64
	locks   map[string]storage.LockDoc
}

func newMemStore() *memStore {
	return &memStore{
		configs: make(map[string]types.Config),
		chunks:  make(map[string]int64),
		locks:   make(map[string]storage.LockDoc),
	}
}

func (m *memStore) SaveReplSetConfig(cfg types.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.SetID] = cfg
	return nil
}

func (m *memStore) LoadReplSetConfig(setID string) (types.Config, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[setID]
	return cfg, ok, nil
}

func (m *memStore) SetChunkVersion(ns string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[ns] = version
	return nil
}

func (m *memStore) GetChunkVersion(ns string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks[ns], nil
}

func (m *memStore) GetLock(name string) (storage.LockDoc, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.locks[name]
	return d, ok, nil
}

func (m *memStore) EnsureLock(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locks[name]; !ok {
		m.locks[name] = storage.LockDoc{Name: name, State: 0}
	}
	return nil
}

func (m *memStore) CompareAndSwapLock(expected, next storage.LockDoc) (storage.LockDoc, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.locks[expected.Name]
	if !ok {
		current = storage.LockDoc{Name: expected.Name, State: 0}
	}
	if current.State != expected.State {
		return current, false, nil
	}
	m.locks[next.Name] = next
	return next, true, nil
}

func (m *memStore) ForceUnlock(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[name] = storage.LockDoc{Name: name, State: 0}
	return nil
}

func (m *memStore) Close() error { return nil }

type countingExecutor struct {
	mu    sync.Mutex
	calls []Migration
}

func (c *countingExecutor) Migrate(ctx context.Context, m Migration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, m)
	return nil
}

func (c *countingExecutor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func TestRoundRobinPolicyDecidesAboveThreshold(t *testing.T) {
	p := RoundRobinPolicy{Threshold: 5}
	m := p.Decide("db.coll", []ShardSnapshot{{ShardID: "shard-a", ChunkVersion: 10}, {ShardID: "shard-b", ChunkVersion: 2}})
	require.NotNil(t, m)
	assert.Equal(t, "shard-a", m.From)
	assert.Equal(t, "shard-b", m.To)
}

func TestRoundRobinPolicyNoOpBelowThreshold(t *testing.T) {
	p := RoundRobinPolicy{Threshold: 5}
	m := p.Decide("db.coll", []ShardSnapshot{{ShardID: "shard-a", ChunkVersion: 4}, {ShardID: "shard-b", ChunkVersion: 2}})
	assert.Nil(t, m)
}

func TestRoundRobinPolicyRequiresTwoShards(t *testing.T) {
	p := RoundRobinPolicy{Threshold: 1}
	assert.Nil(t, p.Decide("db.coll", []ShardSnapshot{{ShardID: "shard-a", ChunkVersion: 100}}))
}

func TestBalancerMigratesWhenDecided(t *testing.T) {
	st := newMemStore()
	lock := distlock.New(st, lockName, "node-a")
	snapshot := func() map[string][]ShardSnapshot {
		return map[string][]ShardSnapshot{
			"db.coll": {{ShardID: "shard-a", ChunkVersion: 10}, {ShardID: "shard-b", ChunkVersion: 0}},
		}
	}
	exec := &countingExecutor{}
	b := New(lock, snapshot, RoundRobinPolicy{Threshold: 1}, exec)

	b.cycle()

	require.Equal(t, 1, exec.count())
	assert.Equal(t, "db.coll", exec.calls[0].Namespace)
}

func TestBalancerSkipsRoundWhenLockHeldByAnotherOwner(t *testing.T) {
	st := newMemStore()
	other := distlock.New(st, lockName, "node-other")
	got, _, err := other.TryLock("holding")
	require.NoError(t, err)
	require.True(t, got)

	lock := distlock.New(st, lockName, "node-a")
	snapshot := func() map[string][]ShardSnapshot {
		return map[string][]ShardSnapshot{
			"db.coll": {{ShardID: "shard-a", ChunkVersion: 10}, {ShardID: "shard-b", ChunkVersion: 0}},
		}
	}
	exec := &countingExecutor{}
	b := New(lock, snapshot, RoundRobinPolicy{Threshold: 1}, exec)

	b.cycle()

	assert.Equal(t, 0, exec.count())
}

func TestBalancerReleasesLockAfterRound(t *testing.T) {
	st := newMemStore()
	lock := distlock.New(st, lockName, "node-a")
	exec := &countingExecutor{}
	b := New(lock, func() map[string][]ShardSnapshot { return nil }, RoundRobinPolicy{}, exec)

	b.cycle()

	doc, ok, err := st.GetLock(lockName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, doc.State)
}

func TestTickIntervalIsPositive(t *testing.T) {
	assert.Greater(t, tickInterval, time.Duration(0))
}
