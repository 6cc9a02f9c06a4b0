package cursor

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewCursorID returns a non-zero process-unique nonce. Zero is reserved
// for "no cursor" and is never returned (spec §3, §4.D Cache).
func NewCursorID() int64 {
	for {
		u := uuid.New()
		// Fold the UUID's first 8 bytes into an int64 and clear the sign
		// bit so callers always see a positive nonce.
		var n int64
		for _, b := range u[:8] {
			n = n<<8 | int64(b)
		}
		n &^= 1 << 63
		if n != 0 {
			return n
		}
	}
}

type ownedEntry struct {
	cur         *ShardedClientCursor
	lastTouched time.Time
}

type outstandingEntry struct {
	cur         *ShardedClientCursor
	withdrawnAt time.Time
}

// Cache is the single-mutex-guarded cursor registry (spec §4.D Cache,
// Concurrency). It tracks three disjoint populations by id: cursors
// owned locally and available to withdraw, cursors currently withdrawn
// by a handler thread ("outstanding"), and ids that merely reference a
// cursor living entirely on one shard ("origins").
type Cache struct {
	mu          sync.Mutex
	owned       map[int64]*ownedEntry
	outstanding map[int64]*outstandingEntry
	origins     map[int64]string
	now         func() time.Time
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		owned:       make(map[int64]*ownedEntry),
		outstanding: make(map[int64]*outstandingEntry),
		origins:     make(map[int64]string),
		now:         time.Now,
	}
}

// Register assigns cur a fresh id (if it doesn't already have one) and
// places it in the cache, available to withdraw.
func (c *Cache) Register(cur *ShardedClientCursor) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur.id == 0 {
		cur.id = NewCursorID()
	}
	c.owned[cur.id] = &ownedEntry{cur: cur, lastTouched: c.now()}
	return cur.id
}

// RegisterOrigin records that id refers to a cursor living entirely on
// originServer, rather than one this cache owns.
func (c *Cache) RegisterOrigin(id int64, originServer string) {
	if id == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.origins[id] = originServer
}

// Withdraw removes id from the owned set and hands it to the calling
// handler thread, which must call HandBack when finished (spec §9
// "Ownership of cursors").
func (c *Cache) Withdraw(id int64) (*ShardedClientCursor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.owned[id]
	if !ok {
		return nil, false
	}
	delete(c.owned, id)
	c.outstanding[id] = &outstandingEntry{cur: e.cur, withdrawnAt: c.now()}
	return e.cur, true
}

// HandBack returns a previously withdrawn cursor to the cache. If the
// cursor is Done, it is discarded instead of re-cached.
func (c *Cache) HandBack(cur *ShardedClientCursor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.outstanding, cur.id)
	if cur.Done() {
		return
	}
	c.owned[cur.id] = &ownedEntry{cur: cur, lastTouched: c.now()}
}

// KillCursors implements spec §4.D's kill-cursors handling: for each id,
// remove it from the owned/outstanding cache if present there; otherwise,
// if it's a reference to a cursor living on a shard, return it in
// forward so the caller can propagate the kill to that origin server.
// Ids equal to zero are ignored, per the reservation in spec §3.
func (c *Cache) KillCursors(ids []int64) (forward map[int64]string) {
	forward = make(map[int64]string)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := c.owned[id]; ok {
			delete(c.owned, id)
			continue
		}
		if _, ok := c.outstanding[id]; ok {
			delete(c.outstanding, id)
			continue
		}
		if origin, ok := c.origins[id]; ok {
			forward[id] = origin
			delete(c.origins, id)
		}
	}
	return forward
}

// Sweep reclaims cursors withdrawn before idleSince and never handed
// back — the client-disconnect case from spec §9 "Ownership of cursors".
// It returns the reclaimed ids.
func (c *Cache) Sweep(idleSince time.Time) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var reclaimed []int64
	for id, e := range c.outstanding {
		if e.withdrawnAt.Before(idleSince) {
			reclaimed = append(reclaimed, id)
			delete(c.outstanding, id)
		}
	}
	return reclaimed
}
