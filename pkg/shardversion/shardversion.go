// Package shardversion implements component C: the node-global and
// per-connection chunk-version tables, and the setShardVersion
// negotiation that keeps a router's view of a namespace's placement in
// sync with the storage node's (spec §4.C).
package shardversion

import (
	"sync"

	"github.com/shardset/shardset/pkg/errs"
	"github.com/shardset/shardset/pkg/storage"
)

// Result is the outcome of a successful setShardVersion call.
type Result struct {
	Old    int64
	Global int64
}

// Connection holds the per-connection state threaded explicitly through
// each request handler invocation (spec §9 "thread-local holders" —
// modeled as connection-context values, not a thread-local).
type Connection struct {
	established bool
	serverID    string
	perConn     map[string]int64
}

// NewConnection returns a fresh, unestablished connection context.
func NewConnection() *Connection {
	return &Connection{perConn: make(map[string]int64)}
}

// NodeState is the process-global sharding state of one storage node:
// whether it has been told its configuration server, and (via store)
// the node-global chunk-version table.
type NodeState struct {
	mu    sync.Mutex
	store storage.Store

	shardingEnabled bool
	configServer    string
}

// NewNodeState wraps a durable Store with the in-memory sharding-enabled
// flag and adopted configuration-server address.
func NewNodeState(store storage.Store) *NodeState {
	return &NodeState{store: store}
}

// SetShardVersion implements the full setShardVersion case analysis
// (spec §4.C).
func (n *NodeState) SetShardVersion(conn *Connection, ns string, v int64, authoritative bool, serverID, configServer string) (Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.shardingEnabled {
		if !authoritative {
			return Result{}, errs.New(errs.NeedAuthoritative, "shardversion.SetShardVersion", nil,
				map[string]any{"reason": "not yet told configuration server"})
		}
		n.shardingEnabled = true
		n.configServer = configServer
	} else if configServer != "" && configServer != n.configServer {
		return Result{}, errs.New(errs.ConfigConflict, "shardversion.SetShardVersion", nil,
			map[string]any{"reason": "configServer mismatch", "have": n.configServer, "got": configServer})
	}

	if conn.established && serverID != conn.serverID {
		return Result{}, errs.New(errs.ConfigConflict, "shardversion.SetShardVersion", nil,
			map[string]any{"reason": "serverId changed"})
	}
	if !conn.established {
		conn.serverID = serverID
		conn.established = true
	}

	old := conn.perConn[ns]
	global, err := n.store.GetChunkVersion(ns)
	if err != nil {
		return Result{}, err
	}

	switch {
	case v == 0 && global == 0:
		conn.perConn[ns] = 0
		return Result{Old: old, Global: 0}, nil

	case v == 0 && global > 0:
		if !authoritative {
			return Result{}, errs.New(errs.NeedAuthoritative, "shardversion.SetShardVersion", nil,
				map[string]any{"reason": "clearing requires authoritative"})
		}
		if err := n.store.SetChunkVersion(ns, 0); err != nil {
			return Result{}, err
		}
		conn.perConn[ns] = 0
		return Result{Old: old, Global: 0}, nil

	case v < old:
		return Result{Old: old, Global: global}, errs.New(errs.StaleConfig, "shardversion.SetShardVersion", nil,
			map[string]any{"reason": "stale connection", "v": v, "old": old})

	case v < global:
		return Result{Old: old, Global: global}, errs.New(errs.StaleConfig, "shardversion.SetShardVersion", nil,
			map[string]any{"reason": "stale global", "v": v, "global": global})

	case global == 0 && !authoritative:
		return Result{}, errs.New(errs.NeedAuthoritative, "shardversion.SetShardVersion", nil,
			map[string]any{"reason": "establishing a version requires authoritative"})

	default:
		if err := n.store.SetChunkVersion(ns, v); err != nil {
			return Result{}, err
		}
		conn.perConn[ns] = v
		return Result{Old: old, Global: v}, nil
	}
}

// Writeback carries the original request bytes back to the router so it
// can re-dispatch after refreshing its routing table (spec §4.C, §9
// "Error reporting intermixed with results").
type Writeback struct {
	NS      string
	Request []byte
}

// CheckQuery implements the per-op version check for read operations: if
// the node is sharded-enabled and has a version for ns, a client version
// behind the node-global one is rejected with StaleConfig.
func (n *NodeState) CheckQuery(ns string, clientVersion int64) error {
	n.mu.Lock()
	enabled := n.shardingEnabled
	n.mu.Unlock()
	if !enabled {
		return nil
	}

	global, err := n.store.GetChunkVersion(ns)
	if err != nil {
		return err
	}
	if global > 0 && clientVersion < global {
		return errs.New(errs.StaleConfig, "shardversion.CheckQuery", nil,
			map[string]any{"clientVersion": clientVersion, "global": global})
	}
	return nil
}

// CheckWrite implements the per-op version check for write operations:
// on a stale client version it queues a Writeback carrying the original
// request bytes, rather than merely replying with a flag.
func (n *NodeState) CheckWrite(ns string, clientVersion int64, request []byte) (*Writeback, error) {
	err := n.CheckQuery(ns, clientVersion)
	if err == nil {
		return nil, nil
	}
	if errs.Is(err, errs.StaleConfig) {
		return &Writeback{NS: ns, Request: request}, err
	}
	return nil, err
}
