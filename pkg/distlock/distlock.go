// Package distlock implements component E: cross-node mutual exclusion
// via CAS on a single document in a shared configuration store, used to
// serialize cluster-wide administrative operations such as balancing
// and migration (spec §4.E).
package distlock

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shardset/shardset/pkg/endpoint"
	"github.com/shardset/shardset/pkg/storage"
)

// NewOwnerID builds the process-wide myid — host:port:starttime:random —
// generated once per process and cached by the caller (spec §3
// Distributed Lock Record, §4.E).
func NewOwnerID(self endpoint.Endpoint, startedAt time.Time) string {
	return fmt.Sprintf("%s:%d:%d:%s", self.Host(), self.Port(), startedAt.UnixNano(), uuid.New().String())
}

// Lock is one lock object for a (store, name) pair. Per spec §9's Open
// Question, re-entrant acquisition is modeled per-process with an
// explicit hold count, not per goroutine/thread.
type Lock struct {
	mu    sync.Mutex
	store storage.Store
	name  string
	myid  string
	holds int
}

// New returns the lock object for name, backed by store and identified
// cluster-wide as myid.
func New(store storage.Store, name, myid string) *Lock {
	return &Lock{store: store, name: name, myid: myid}
}

// TryLock implements spec §4.E's try_lock: re-entrant for an existing
// holder, otherwise a CAS from the unlocked state. On failure, other is
// populated with the current document for diagnostics.
func (l *Lock) TryLock(why string) (got bool, other storage.LockDoc, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holds > 0 {
		l.holds++
		return true, storage.LockDoc{}, nil
	}

	if err := l.store.EnsureLock(l.name); err != nil {
		// Insert-if-missing errors are swallowed per spec — a concurrent
		// EnsureLock from another process racing to create the same
		// document is expected and harmless.
		_ = err
	}

	next := storage.LockDoc{Name: l.name, State: 1, Who: l.myid, When: time.Now().UnixNano(), Why: why}
	_, swapped, err := l.store.CompareAndSwapLock(storage.LockDoc{Name: l.name, State: 0}, next)
	if err != nil {
		return false, storage.LockDoc{}, err
	}
	if swapped {
		l.holds = 1
		return true, storage.LockDoc{}, nil
	}

	current, _, err := l.store.GetLock(l.name)
	if err != nil {
		return false, storage.LockDoc{}, err
	}
	return false, current, nil
}

// Unlock implements spec §4.E's unlock: unconditional, best-effort —
// it does not verify that this process is still the recorded owner. The
// upper layer is expected to observe who/when before relying on a lock.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holds > 1 {
		l.holds--
		return nil
	}
	l.holds = 0
	return l.store.ForceUnlock(l.name)
}

// Guard is a scoped acquisition: it acquires on construction and is
// released by calling Release (spec §4.E "Scoped acquisition").
type Guard struct {
	lock  *Lock
	got   bool
	other storage.LockDoc
	err   error
}

// AcquireScoped constructs the lock object and attempts to acquire it
// immediately.
func AcquireScoped(store storage.Store, name, myid, why string) *Guard {
	l := New(store, name, myid)
	got, other, err := l.TryLock(why)
	return &Guard{lock: l, got: got, other: other, err: err}
}

// Got reports whether this guard holds the lock.
func (g *Guard) Got() bool { return g.got }

// Other returns who currently holds the lock, when Got() is false.
func (g *Guard) Other() storage.LockDoc { return g.other }

// Err returns any error encountered while attempting to acquire.
func (g *Guard) Err() error { return g.err }

// Release unlocks if this guard holds the lock; otherwise a no-op.
func (g *Guard) Release() error {
	if !g.got {
		return nil
	}
	return g.lock.Unlock()
}
