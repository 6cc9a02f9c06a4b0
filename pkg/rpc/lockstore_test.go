package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardset/shardset/pkg/storage"
	"github.com/shardset/shardset/pkg/types"
)

// testStore is a minimal in-memory storage.Store for exercising
// LockCASServerHandler and DispatchShardVersionHandler without bbolt.
type testStore struct {
	configs map[string]types.Config
	chunks  map[string]int64
	locks   map[string]storage.LockDoc
}

func newTestStore() *testStore {
	return &testStore{configs: map[string]types.Config{}, chunks: map[string]int64{}, locks: map[string]storage.LockDoc{}}
}

func (s *testStore) SaveReplSetConfig(cfg types.Config) error {
	s.configs[cfg.SetID] = cfg
	return nil
}
func (s *testStore) LoadReplSetConfig(setID string) (types.Config, bool, error) {
	cfg, ok := s.configs[setID]
	return cfg, ok, nil
}
func (s *testStore) SetChunkVersion(ns string, version int64) error {
	s.chunks[ns] = version
	return nil
}
func (s *testStore) GetChunkVersion(ns string) (int64, error) { return s.chunks[ns], nil }
func (s *testStore) GetLock(name string) (storage.LockDoc, bool, error) {
	d, ok := s.locks[name]
	return d, ok, nil
}
func (s *testStore) EnsureLock(name string) error {
	if _, ok := s.locks[name]; !ok {
		s.locks[name] = storage.LockDoc{Name: name, State: 0}
	}
	return nil
}
func (s *testStore) CompareAndSwapLock(expected, next storage.LockDoc) (storage.LockDoc, bool, error) {
	current, ok := s.locks[expected.Name]
	if !ok {
		current = storage.LockDoc{Name: expected.Name, State: 0}
	}
	if current.State != expected.State {
		return current, false, nil
	}
	s.locks[next.Name] = next
	return next, true, nil
}
func (s *testStore) ForceUnlock(name string) error {
	s.locks[name] = storage.LockDoc{Name: name, State: 0}
	return nil
}
func (s *testStore) Close() error { return nil }

func TestLockCASServerHandlerEnsureAndGet(t *testing.T) {
	store := newTestStore()

	_, err := LockCASServerHandler(store, &LockCASRequest{Op: "ensure", Name: "balancer"})
	require.NoError(t, err)

	resp, err := LockCASServerHandler(store, &LockCASRequest{Op: "get", Name: "balancer"})
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.Equal(t, int32(0), resp.State)
}

func TestLockCASServerHandlerCompareAndSwap(t *testing.T) {
	store := newTestStore()
	store.locks["balancer"] = storage.LockDoc{Name: "balancer", State: 0}

	resp, err := LockCASServerHandler(store, &LockCASRequest{
		Op: "cas", Name: "balancer",
		ExpectedState: 0, NextState: 1, NextWho: "node-a", NextWhy: "round",
	})
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.Equal(t, "node-a", resp.Who)

	resp2, err := LockCASServerHandler(store, &LockCASRequest{
		Op: "cas", Name: "balancer",
		ExpectedState: 0, NextState: 1, NextWho: "node-b",
	})
	require.NoError(t, err)
	assert.False(t, resp2.Applied)
}

func TestLockCASServerHandlerForceUnlock(t *testing.T) {
	store := newTestStore()
	store.locks["balancer"] = storage.LockDoc{Name: "balancer", State: 1, Who: "node-a"}

	resp, err := LockCASServerHandler(store, &LockCASRequest{Op: "forceUnlock", Name: "balancer"})
	require.NoError(t, err)
	assert.True(t, resp.Applied)

	doc, _, _ := store.GetLock("balancer")
	assert.Equal(t, 0, doc.State)
}

func TestLockCASServerHandlerUnknownOp(t *testing.T) {
	store := newTestStore()
	_, err := LockCASServerHandler(store, &LockCASRequest{Op: "bogus", Name: "balancer"})
	assert.Error(t, err)
}
