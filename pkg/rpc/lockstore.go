package rpc

import (
	"context"

	"github.com/shardset/shardset/pkg/errs"
	"github.com/shardset/shardset/pkg/storage"
	"github.com/shardset/shardset/pkg/types"
)

// RemoteLockStore adapts a Client's LockCAS RPC to the storage.Store
// interface, so pkg/distlock can acquire a lock hosted on a remote
// configuration server exactly as it would a local one. Only the lock
// document family is meaningful over this adapter; the replica-set
// config and chunk-version methods are refused, since a lock-only
// connection has no business serving them.
type RemoteLockStore struct {
	client *Client
}

// NewRemoteLockStore wraps client as a storage.Store restricted to lock
// operations.
func NewRemoteLockStore(client *Client) *RemoteLockStore {
	return &RemoteLockStore{client: client}
}

func (r *RemoteLockStore) GetLock(name string) (storage.LockDoc, bool, error) {
	resp, err := r.client.LockCAS(context.Background(), &LockCASRequest{Op: "get", Name: name})
	if err != nil {
		return storage.LockDoc{}, false, err
	}
	return wireToLockDoc(name, resp), resp.Applied, nil
}

func (r *RemoteLockStore) EnsureLock(name string) error {
	_, err := r.client.LockCAS(context.Background(), &LockCASRequest{Op: "ensure", Name: name})
	return err
}

func (r *RemoteLockStore) CompareAndSwapLock(expected, next storage.LockDoc) (storage.LockDoc, bool, error) {
	resp, err := r.client.LockCAS(context.Background(), &LockCASRequest{
		Op:            "cas",
		Name:          expected.Name,
		ExpectedState: int32(expected.State), ExpectedWho: expected.Who, ExpectedWhen: expected.When, ExpectedWhy: expected.Why,
		NextState: int32(next.State), NextWho: next.Who, NextWhen: next.When, NextWhy: next.Why,
	})
	if err != nil {
		return storage.LockDoc{}, false, err
	}
	return wireToLockDoc(expected.Name, resp), resp.Applied, nil
}

func (r *RemoteLockStore) ForceUnlock(name string) error {
	_, err := r.client.LockCAS(context.Background(), &LockCASRequest{Op: "forceUnlock", Name: name})
	return err
}

func (r *RemoteLockStore) SaveReplSetConfig(types.Config) error {
	return notSupported("rpc.RemoteLockStore.SaveReplSetConfig")
}
func (r *RemoteLockStore) LoadReplSetConfig(string) (types.Config, bool, error) {
	return types.Config{}, false, notSupported("rpc.RemoteLockStore.LoadReplSetConfig")
}
func (r *RemoteLockStore) SetChunkVersion(string, int64) error {
	return notSupported("rpc.RemoteLockStore.SetChunkVersion")
}
func (r *RemoteLockStore) GetChunkVersion(string) (int64, error) {
	return 0, notSupported("rpc.RemoteLockStore.GetChunkVersion")
}
func (r *RemoteLockStore) Close() error { return r.client.Close() }

func wireToLockDoc(name string, resp *LockCASResponse) storage.LockDoc {
	return storage.LockDoc{Name: name, State: int(resp.State), Who: resp.Who, When: resp.When, Why: resp.Why}
}

func notSupported(op string) error {
	return errs.New(errs.BadInput, op, nil, map[string]any{"reason": "remote lock store supports lock operations only"})
}

// LockCASServerHandler implements the server side of the lock-CAS
// operations against a local storage.Store, for embedding in a
// Handler's LockCAS method.
func LockCASServerHandler(store storage.Store, req *LockCASRequest) (*LockCASResponse, error) {
	switch req.Op {
	case "get":
		doc, ok, err := store.GetLock(req.Name)
		if err != nil {
			return nil, err
		}
		return &LockCASResponse{State: int32(doc.State), Who: doc.Who, When: doc.When, Why: doc.Why, Applied: ok}, nil
	case "ensure":
		if err := store.EnsureLock(req.Name); err != nil {
			return nil, err
		}
		return &LockCASResponse{Applied: true}, nil
	case "forceUnlock":
		if err := store.ForceUnlock(req.Name); err != nil {
			return nil, err
		}
		return &LockCASResponse{Applied: true}, nil
	case "cas":
		expected := storage.LockDoc{Name: req.Name, State: int(req.ExpectedState), Who: req.ExpectedWho, When: req.ExpectedWhen, Why: req.ExpectedWhy}
		next := storage.LockDoc{Name: req.Name, State: int(req.NextState), Who: req.NextWho, When: req.NextWhen, Why: req.NextWhy}
		doc, applied, err := store.CompareAndSwapLock(expected, next)
		if err != nil {
			return nil, err
		}
		return &LockCASResponse{State: int32(doc.State), Who: doc.Who, When: doc.When, Why: doc.Why, Applied: applied}, nil
	default:
		return nil, notSupported("rpc.LockCASServerHandler: unknown op " + req.Op)
	}
}
