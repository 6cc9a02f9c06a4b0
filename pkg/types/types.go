// Package types holds the data-model structs shared by the storage-node
// and router packages: replica-set membership and configuration, and the
// heartbeat bookkeeping kept about each peer (spec §3).
package types

import (
	"time"

	"github.com/shardset/shardset/pkg/endpoint"
)

// MemberState is one of the replica-set member lifecycle states.
type MemberState string

const (
	StateStartup    MemberState = "STARTUP"
	StateStartup2   MemberState = "STARTUP2"
	StatePrimary    MemberState = "PRIMARY"
	StateSecondary  MemberState = "SECONDARY"
	StateRecovering MemberState = "RECOVERING"
	StateFatal      MemberState = "FATAL"
	StateUnknown    MemberState = "UNKNOWN"
)

// Health is the three-valued liveness reading for a peer.
type Health int

const (
	HealthUnknown Health = 0
	HealthDown    Health = -1
	HealthUp      Health = 1
)

// OpTime totally orders op-log entries by (seconds, increment).
type OpTime struct {
	Seconds   int64
	Increment int64
}

// Before reports whether t happened before o.
func (t OpTime) Before(o OpTime) bool {
	if t.Seconds != o.Seconds {
		return t.Seconds < o.Seconds
	}
	return t.Increment < o.Increment
}

// IsZero reports whether t is the zero op-time.
func (t OpTime) IsZero() bool { return t.Seconds == 0 && t.Increment == 0 }

// HeartbeatInfo is the per-peer bookkeeping the coordinator keeps from
// heartbeat polling (spec §3 Heartbeat Info).
//
// Invariant: Health == HealthUp iff UpSince is non-zero. UpSince is
// monotonic within an up-streak and reset to the zero time on every
// down transition.
type HeartbeatInfo struct {
	MemberID      int
	State         MemberState
	Health        Health
	UpSince       time.Time
	LastHeartbeat time.Time
	LastError     string
	LastOpTime    OpTime
	LastVersion   int
}

// MarkUp records a successful heartbeat response.
func (h *HeartbeatInfo) MarkUp(now time.Time, state MemberState, opTime OpTime, version int) {
	if h.Health != HealthUp {
		h.UpSince = now
	}
	h.Health = HealthUp
	h.State = state
	h.LastHeartbeat = now
	h.LastError = ""
	h.LastOpTime = opTime
	h.LastVersion = version
}

// MarkDown records a failed heartbeat attempt.
func (h *HeartbeatInfo) MarkDown(now time.Time, reason string) {
	h.Health = HealthDown
	h.UpSince = time.Time{}
	h.LastHeartbeat = now
	h.LastError = reason
	h.State = StateUnknown
}

// Member describes one configured member of a replica set.
type Member struct {
	ID             int
	Endpoint       endpoint.Endpoint
	ArbiterOnly    bool
	PotentiallyHot bool
}

// Config is a versioned replica-set configuration (spec §3 Replica-Set
// Configuration). Versions are totally ordered; the node with the
// highest version observed from any source — local store or any peer —
// is adopted.
type Config struct {
	SetID   string
	Version int
	Members []Member
}

// MemberByID finds a member by its configured id.
func (c Config) MemberByID(id int) (Member, bool) {
	for _, m := range c.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

// SelfMembers returns every member in c that the given identity resolves
// to self. A well-formed configuration has exactly one.
func (c Config) SelfMembers(id endpoint.Identity) []Member {
	var out []Member
	for _, m := range c.Members {
		if id.IsSelf(m.Endpoint) {
			out = append(out, m)
		}
	}
	return out
}
