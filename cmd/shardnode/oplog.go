package main

import (
	"sync"
	"time"

	"github.com/shardset/shardset/pkg/types"
)

// wallClockOpLog stands in for the real operation log — the on-disk
// page layout and command catalogue behind a genuine op-log are out of
// scope (spec §1 Non-goals) — giving replset a monotonic OpTime source:
// wall-clock seconds plus a per-second tiebreaker, the same two-field
// shape spec §3's Op Time describes.
type wallClockOpLog struct {
	mu       sync.Mutex
	lastSec  int64
	lastIncr int64
}

func (o *wallClockOpLog) LastOpTime() (types.OpTime, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now().Unix()
	if now == o.lastSec {
		o.lastIncr++
	} else {
		o.lastSec = now
		o.lastIncr = 0
	}
	return types.OpTime{Seconds: o.lastSec, Increment: o.lastIncr}, nil
}

func (o *wallClockOpLog) IsEmpty() (bool, error) { return false, nil }
