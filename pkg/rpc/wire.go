// Package rpc is the grpc transport shared by the heartbeat RPC (spec
// §6), the lock CAS RPC, and the dispatch RPC issued by pkg/balancer
// (its killCursors op is served from pkg/cursor's cache). It carries plain Go structs over grpc's
// json subtype codec rather than a protoc-generated service — there is
// no .proto compiler in this build pipeline — but reuses protobuf's
// well-known Timestamp type for wire-level time values, since that type
// ships pre-compiled in google.golang.org/protobuf and needs no codegen
// of our own.
package rpc

import (
	"encoding/json"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/shardset/shardset/pkg/types"
)

// MemberWire mirrors types.Member for the wire.
type MemberWire struct {
	ID             int32  `json:"id"`
	Host           string `json:"host"`
	Port           int32  `json:"port"`
	PotentiallyHot bool   `json:"potentiallyHot"`
	ArbiterOnly    bool   `json:"arbiterOnly"`
}

// ConfigWire mirrors types.Config for the wire.
type ConfigWire struct {
	SetID   string       `json:"setId"`
	Version int32        `json:"version"`
	Members []MemberWire `json:"members"`
}

// OpTimeWire mirrors types.OpTime, reusing protobuf's Timestamp
// well-known type to carry the seconds component.
type OpTimeWire struct {
	Seconds   *timestamppb.Timestamp `json:"seconds"`
	Increment int64                  `json:"increment"`
}

func toOpTimeWire(t types.OpTime) OpTimeWire {
	return OpTimeWire{Seconds: timestamppb.New(timeFromUnix(t.Seconds)), Increment: t.Increment}
}

func (w OpTimeWire) toOpTime() types.OpTime {
	if w.Seconds == nil {
		return types.OpTime{}
	}
	return types.OpTime{Seconds: w.Seconds.AsTime().Unix(), Increment: w.Increment}
}

// HeartbeatWireRequest is the replSetHeartbeat command (spec §6) on the
// wire.
type HeartbeatWireRequest struct {
	SetName         string `json:"setName"`
	Version         int32  `json:"version"`
	ProtocolVersion int32  `json:"pv"`
	CheckEmpty      bool   `json:"checkEmpty"`
}

// HeartbeatWireResponse is the replSetHeartbeat reply on the wire.
type HeartbeatWireResponse struct {
	OK       bool        `json:"ok"`
	Set      string      `json:"set"`
	State    string      `json:"state"`
	OpTime   OpTimeWire  `json:"optime"`
	Version  int32       `json:"version"`
	Config   *ConfigWire `json:"config,omitempty"`
	Mismatch string      `json:"mismatch,omitempty"`
	HasData  bool        `json:"hasData,omitempty"`
}

// LockCASRequest carries one operation against a distributed lock
// document (spec §3 Distributed Lock Record, §4.E). Op selects which:
// "get" (read-only), "ensure" (insert-if-missing), "cas" (the
// compare-and-swap attempt itself), or "forceUnlock" (unconditional
// unlock). Get/Ensure/ForceUnlock ride this same RPC rather than three
// separate methods, since they all address the identical document.
type LockCASRequest struct {
	Op            string `json:"op"`
	Name          string `json:"name"`
	ExpectedState int32  `json:"expectedState"`
	ExpectedWho   string `json:"expectedWho"`
	ExpectedWhen  int64  `json:"expectedWhen"`
	ExpectedWhy   string `json:"expectedWhy"`
	NextState     int32  `json:"nextState"`
	NextWho       string `json:"nextWho"`
	NextWhen      int64  `json:"nextWhen"`
	NextWhy       string `json:"nextWhy"`
}

// LockCASResponse carries the document's state after the attempt.
type LockCASResponse struct {
	State   int32  `json:"state"`
	Who     string `json:"who"`
	When    int64  `json:"when"`
	Why     string `json:"why"`
	Applied bool   `json:"applied"`
}

// DispatchRequest is a router-to-shard query dispatch (spec §4.D, §4.B).
// Payload carries the operation-specific body (a BoundList-derived query,
// a getMore ntoreturn value, or a killCursors id list) as opaque JSON,
// since the BSON command surface itself is out of scope (spec §1).
type DispatchRequest struct {
	Namespace string          `json:"namespace"`
	Op        string          `json:"op"`
	Payload   json.RawMessage `json:"payload"`
}

// DispatchResponse carries the operation's result, or Err if it failed.
type DispatchResponse struct {
	Payload json.RawMessage `json:"payload"`
	Err     string          `json:"err,omitempty"`
}

// QueryPlanPayload is the Dispatch payload for op "planQuery": a client
// predicate (component B's input, spec §4.B) sent down from the router
// for bound derivation. Executing the plan against document storage is
// out of scope (spec §1 Non-goals); the response reports the derived
// access pattern only.
type QueryPlanPayload struct {
	Namespace string         `json:"namespace"`
	Predicate map[string]any `json:"predicate"`
	Sort      []int          `json:"sort,omitempty"`
}

// QueryPlanResult is the planQuery reply: one FieldPatternKind per
// constrained field, plus the normalized sort sequence (spec §3 Query
// Pattern).
type QueryPlanResult struct {
	Fields map[string]int `json:"fields"`
	Sort   []int          `json:"sort,omitempty"`
}

// KillCursorsPayload is the Dispatch payload for op "killCursors": a
// client's killCursors command (component D, spec §4.D) naming the
// cursor ids to discard.
type KillCursorsPayload struct {
	IDs []int64 `json:"ids"`
}

// KillCursorsResult reports, per killed id, which origin shard (if any)
// still needs the kill forwarded to it.
type KillCursorsResult struct {
	Forward map[int64]string `json:"forward,omitempty"`
}

// MoveChunkPayload is the Dispatch payload for op "setShardVersion": an
// administrative setShardVersion call (spec §4.C) issued by the balancer
// against one leg of a migration, rather than by a client connection.
type MoveChunkPayload struct {
	Namespace     string `json:"namespace"`
	Version       int64  `json:"version"`
	Authoritative bool   `json:"authoritative"`
	ConfigServer  string `json:"configServer"`
}
