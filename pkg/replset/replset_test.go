package replset

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardset/shardset/pkg/endpoint"
	"github.com/shardset/shardset/pkg/storage"
	"github.com/shardset/shardset/pkg/types"
)

type memOpLog struct {
	opTime  types.OpTime
	err     error
	isEmpty bool
}

func (m *memOpLog) LastOpTime() (types.OpTime, error) { return m.opTime, m.err }
func (m *memOpLog) IsEmpty() (bool, error)            { return m.isEmpty, nil }

// memStore is a minimal in-memory storage.Store fake for tests that
// never exercise the lock-document half of the interface.
type memStore struct {
	mu   sync.Mutex
	cfg  map[string]types.Config
	lock map[string]storage.LockDoc
}

func newMemStore() *memStore {
	return &memStore{cfg: make(map[string]types.Config), lock: make(map[string]storage.LockDoc)}
}

func (s *memStore) SaveReplSetConfig(cfg types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg[cfg.SetID] = cfg
	return nil
}

func (s *memStore) LoadReplSetConfig(setID string) (types.Config, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cfg[setID]
	return c, ok, nil
}

func (s *memStore) SetChunkVersion(ns string, version int64) error { return nil }
func (s *memStore) GetChunkVersion(ns string) (int64, error)       { return 0, nil }

func (s *memStore) GetLock(name string) (storage.LockDoc, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.lock[name]
	return d, ok, nil
}

func (s *memStore) EnsureLock(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lock[name]; !ok {
		s.lock[name] = storage.LockDoc{Name: name}
	}
	return nil
}

func (s *memStore) CompareAndSwapLock(expected storage.LockDoc, next storage.LockDoc) (storage.LockDoc, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.lock[expected.Name]
	if cur != expected {
		return cur, false, nil
	}
	s.lock[next.Name] = next
	return next, true, nil
}

func (s *memStore) ForceUnlock(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lock[name] = storage.LockDoc{Name: name}
	return nil
}

func (s *memStore) Close() error { return nil }

type stubHeartbeatClient struct {
	mu       sync.Mutex
	response func(peer endpoint.Endpoint, req HeartbeatRequest) (HeartbeatResponse, error)
}

func (c *stubHeartbeatClient) Heartbeat(ctx context.Context, peer endpoint.Endpoint, req HeartbeatRequest) (HeartbeatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.response == nil {
		return HeartbeatResponse{}, errors.New("no response configured")
	}
	return c.response(peer, req)
}

func selfIdentity(port int) endpoint.Identity {
	return endpoint.NewIdentity(port, "node0")
}

func TestParseSeedSpecRejectsLocalHostAndDuplicates(t *testing.T) {
	self := selfIdentity(27018)

	_, _, err := ParseSeedSpec("rs0/localhost:27018,node1:27018", self)
	assert.Error(t, err)

	_, _, err = ParseSeedSpec("rs0/node1:27018,node1:27018", self)
	assert.Error(t, err)

	_, _, err = ParseSeedSpec("not-a-valid-spec", self)
	assert.Error(t, err)
}

func TestParseSeedSpecDropsSelf(t *testing.T) {
	self := selfIdentity(27018)
	setName, seeds, err := ParseSeedSpec("rs0/node0:27018,node1:27018,node2:27018", self)
	require.NoError(t, err)
	assert.Equal(t, "rs0", setName)
	require.Len(t, seeds, 2)
	assert.Equal(t, "node1:27018", seeds[0].String())
	assert.Equal(t, "node2:27018", seeds[1].String())
}

func TestStartFailsFatalWhenOpLogUnreadable(t *testing.T) {
	self := selfIdentity(27018)
	store := newMemStore()
	oplog := &memOpLog{err: errors.New("disk error")}
	client := &stubHeartbeatClient{}

	rs := NewReplSet(self, store, oplog, client)
	err := rs.Start(context.Background(), "rs0/node1:27018")
	require.Error(t, err)
	assert.Equal(t, types.StateFatal, rs.State())
}

func TestAssumePrimaryAndStepDown(t *testing.T) {
	self := selfIdentity(27018)
	store := newMemStore()
	client := &stubHeartbeatClient{}
	rs := NewReplSet(self, store, &memOpLog{}, client)

	ep, _ := endpoint.Parse("node0:27018")
	rs.config = types.Config{SetID: "rs0", Version: 1, Members: []types.Member{{ID: 0, Endpoint: ep, PotentiallyHot: true}}}
	rs.setName = "rs0"
	rs.selfMemberID = 0
	rs.selfState = types.StateSecondary
	rs.mailbox = make(chan any, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rs.run(ctx)

	require.NoError(t, rs.RequestAssumePrimary(context.Background()))
	assert.Equal(t, types.StatePrimary, rs.State())

	require.NoError(t, rs.StepDown(context.Background()))
	assert.Equal(t, types.StateRecovering, rs.State())
}

func TestAssumePrimaryRejectsNonHotMember(t *testing.T) {
	self := selfIdentity(27018)
	store := newMemStore()
	client := &stubHeartbeatClient{}
	rs := NewReplSet(self, store, &memOpLog{}, client)

	ep, _ := endpoint.Parse("node0:27018")
	rs.config = types.Config{SetID: "rs0", Version: 1, Members: []types.Member{{ID: 0, Endpoint: ep, PotentiallyHot: false}}}
	rs.selfMemberID = 0
	rs.selfState = types.StateSecondary
	rs.mailbox = make(chan any, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rs.run(ctx)

	err := rs.RequestAssumePrimary(context.Background())
	assert.Error(t, err)
	assert.Equal(t, types.StateSecondary, rs.State())
}

func TestAssumePrimaryRejectsFromPrimary(t *testing.T) {
	self := selfIdentity(27018)
	store := newMemStore()
	client := &stubHeartbeatClient{}
	rs := NewReplSet(self, store, &memOpLog{}, client)

	ep, _ := endpoint.Parse("node0:27018")
	rs.config = types.Config{SetID: "rs0", Version: 1, Members: []types.Member{{ID: 0, Endpoint: ep, PotentiallyHot: true}}}
	rs.selfMemberID = 0
	rs.selfState = types.StatePrimary
	rs.mailbox = make(chan any, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rs.run(ctx)

	err := rs.RequestAssumePrimary(context.Background())
	assert.Error(t, err)
}

func TestBootstrapConfigAdoptsHighestVersionAndPersists(t *testing.T) {
	self := selfIdentity(27018)
	store := newMemStore()

	peerEP, _ := endpoint.Parse("node1:27018")
	selfEP, _ := endpoint.Parse("node0:27018")
	remoteCfg := types.Config{SetID: "rs0", Version: 3, Members: []types.Member{
		{ID: 0, Endpoint: selfEP, PotentiallyHot: true},
		{ID: 1, Endpoint: peerEP, PotentiallyHot: true},
	}}

	client := &stubHeartbeatClient{response: func(peer endpoint.Endpoint, req HeartbeatRequest) (HeartbeatResponse, error) {
		if req.CheckEmpty {
			cfg := remoteCfg
			return HeartbeatResponse{OK: true, Config: &cfg}, nil
		}
		return HeartbeatResponse{OK: true, State: types.StateSecondary}, nil
	}}

	rs := NewReplSet(self, store, &memOpLog{}, client)
	require.NoError(t, rs.Start(context.Background(), "rs0/node1:27018"))

	require.Eventually(t, func() bool {
		return rs.Config().Version == 3
	}, 2*time.Second, 10*time.Millisecond)

	saved, ok, err := store.LoadReplSetConfig("rs0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, saved.Version)
	assert.Equal(t, types.StateSecondary, rs.State())
}

func TestReconfigureRejectsNonIncreasingVersion(t *testing.T) {
	self := selfIdentity(27018)
	store := newMemStore()
	client := &stubHeartbeatClient{}
	rs := NewReplSet(self, store, &memOpLog{}, client)

	ep, _ := endpoint.Parse("node0:27018")
	rs.config = types.Config{SetID: "rs0", Version: 5, Members: []types.Member{{ID: 0, Endpoint: ep, PotentiallyHot: true}}}
	rs.setName = "rs0"
	rs.selfMemberID = 0
	rs.mailbox = make(chan any, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rs.run(ctx)

	err := rs.Reconfigure(context.Background(), types.Config{SetID: "rs0", Version: 5, Members: []types.Member{{ID: 0, Endpoint: ep, PotentiallyHot: true}}}, false)
	assert.Error(t, err)
}

func TestReconfigureRejectsVersionNotExceedingPeerKnownVersion(t *testing.T) {
	self := selfIdentity(27018)
	store := newMemStore()
	client := &stubHeartbeatClient{response: func(peer endpoint.Endpoint, req HeartbeatRequest) (HeartbeatResponse, error) {
		return HeartbeatResponse{OK: true, State: types.StateSecondary}, nil
	}}
	rs := NewReplSet(self, store, &memOpLog{}, client)

	selfEP, _ := endpoint.Parse("node0:27018")
	peerEP, _ := endpoint.Parse("node1:27018")
	rs.config = types.Config{SetID: "rs0", Version: 1, Members: []types.Member{
		{ID: 0, Endpoint: selfEP, PotentiallyHot: true},
		{ID: 1, Endpoint: peerEP, PotentiallyHot: true},
	}}
	rs.setName = "rs0"
	rs.selfMemberID = 0
	rs.heartbeats[peerEP.String()] = &types.HeartbeatInfo{MemberID: 1, Health: types.HealthUp, LastVersion: 5}
	rs.mailbox = make(chan any, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rs.run(ctx)

	cfg := func(version int) types.Config {
		return types.Config{SetID: "rs0", Version: version, Members: []types.Member{
			{ID: 0, Endpoint: selfEP, PotentiallyHot: true},
			{ID: 1, Endpoint: peerEP, PotentiallyHot: true},
		}}
	}

	err := rs.Reconfigure(context.Background(), cfg(3), false)
	assert.Error(t, err, "version 3 does not exceed peer's known version 5")

	require.NoError(t, rs.Reconfigure(context.Background(), cfg(6), false))
}

func TestHandleHeartbeatReportsHasDataOnlyWhenCheckEmptyRequested(t *testing.T) {
	self := selfIdentity(27018)
	store := newMemStore()
	rs := NewReplSet(self, store, &memOpLog{isEmpty: false}, &stubHeartbeatClient{})
	rs.setName = "rs0"

	plain := rs.HandleHeartbeat(HeartbeatRequest{SetName: "rs0", ProtocolVersion: 1})
	assert.False(t, plain.HasData, "HasData should only be populated for a checkEmpty probe")

	probed := rs.HandleHeartbeat(HeartbeatRequest{SetName: "rs0", ProtocolVersion: 1, CheckEmpty: true})
	assert.True(t, probed.HasData)
}

func TestReconfigureInitiateRejectsNonEmptyOpLog(t *testing.T) {
	self := selfIdentity(27018)
	store := newMemStore()
	rs := NewReplSet(self, store, &memOpLog{isEmpty: false}, &stubHeartbeatClient{})
	rs.setName = "rs0"
	rs.mailbox = make(chan any, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rs.run(ctx)

	selfEP, _ := endpoint.Parse("node0:27018")
	err := rs.Reconfigure(context.Background(), types.Config{SetID: "rs0", Version: 1, Members: []types.Member{
		{ID: 0, Endpoint: selfEP, PotentiallyHot: true},
	}}, true)
	assert.Error(t, err)
}

func TestReconfigureInitiateRejectsPeerWithData(t *testing.T) {
	self := selfIdentity(27018)
	store := newMemStore()
	client := &stubHeartbeatClient{response: func(peer endpoint.Endpoint, req HeartbeatRequest) (HeartbeatResponse, error) {
		return HeartbeatResponse{OK: true, HasData: true}, nil
	}}
	rs := NewReplSet(self, store, &memOpLog{isEmpty: true}, client)
	rs.setName = "rs0"
	rs.mailbox = make(chan any, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rs.run(ctx)

	selfEP, _ := endpoint.Parse("node0:27018")
	peerEP, _ := endpoint.Parse("node1:27018")
	err := rs.Reconfigure(context.Background(), types.Config{SetID: "rs0", Version: 1, Members: []types.Member{
		{ID: 0, Endpoint: selfEP, PotentiallyHot: true},
		{ID: 1, Endpoint: peerEP, PotentiallyHot: true},
	}}, true)
	assert.Error(t, err)
}

func TestReconfigureInitiateRejectsPeerAtOrAboveProposedVersion(t *testing.T) {
	self := selfIdentity(27018)
	store := newMemStore()
	client := &stubHeartbeatClient{response: func(peer endpoint.Endpoint, req HeartbeatRequest) (HeartbeatResponse, error) {
		return HeartbeatResponse{OK: true, Version: 4}, nil
	}}
	rs := NewReplSet(self, store, &memOpLog{isEmpty: true}, client)
	rs.setName = "rs0"
	rs.mailbox = make(chan any, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rs.run(ctx)

	selfEP, _ := endpoint.Parse("node0:27018")
	peerEP, _ := endpoint.Parse("node1:27018")
	err := rs.Reconfigure(context.Background(), types.Config{SetID: "rs0", Version: 3, Members: []types.Member{
		{ID: 0, Endpoint: selfEP, PotentiallyHot: true},
		{ID: 1, Endpoint: peerEP, PotentiallyHot: true},
	}}, true)
	assert.Error(t, err)
}

func TestReconfigureInitiateSucceedsWhenEveryPeerIsEmpty(t *testing.T) {
	self := selfIdentity(27018)
	store := newMemStore()
	client := &stubHeartbeatClient{response: func(peer endpoint.Endpoint, req HeartbeatRequest) (HeartbeatResponse, error) {
		return HeartbeatResponse{OK: true}, nil
	}}
	rs := NewReplSet(self, store, &memOpLog{isEmpty: true}, client)
	rs.setName = "rs0"
	rs.mailbox = make(chan any, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rs.run(ctx)

	selfEP, _ := endpoint.Parse("node0:27018")
	peerEP, _ := endpoint.Parse("node1:27018")
	require.NoError(t, rs.Reconfigure(context.Background(), types.Config{SetID: "rs0", Version: 1, Members: []types.Member{
		{ID: 0, Endpoint: selfEP, PotentiallyHot: true},
		{ID: 1, Endpoint: peerEP, PotentiallyHot: true},
	}}, true))
	assert.Equal(t, 1, rs.Config().Version)
}

func TestReconfigureOrphansRemovedMembers(t *testing.T) {
	self := selfIdentity(27018)
	store := newMemStore()
	client := &stubHeartbeatClient{response: func(peer endpoint.Endpoint, req HeartbeatRequest) (HeartbeatResponse, error) {
		return HeartbeatResponse{OK: true, State: types.StateSecondary}, nil
	}}
	rs := NewReplSet(self, store, &memOpLog{}, client)

	selfEP, _ := endpoint.Parse("node0:27018")
	peerEP, _ := endpoint.Parse("node1:27018")
	rs.config = types.Config{SetID: "rs0", Version: 1, Members: []types.Member{
		{ID: 0, Endpoint: selfEP, PotentiallyHot: true},
		{ID: 1, Endpoint: peerEP, PotentiallyHot: true},
	}}
	rs.setName = "rs0"
	rs.selfMemberID = 0
	rs.mailbox = make(chan any, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rs.run(ctx)
	rs.mu.Lock()
	rs.reconcilePollersLocked(ctx, rs.config)
	rs.mu.Unlock()

	require.NoError(t, rs.Reconfigure(context.Background(), types.Config{SetID: "rs0", Version: 2, Members: []types.Member{
		{ID: 0, Endpoint: selfEP, PotentiallyHot: true},
	}}, false))

	rs.mu.Lock()
	_, stillPolled := rs.pollCancels[peerEP.String()]
	rs.mu.Unlock()
	assert.False(t, stillPolled, "member removed from config should have its health task cancelled")
}
