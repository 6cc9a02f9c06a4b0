package main

import (
	"context"

	"github.com/shardset/shardset/pkg/replset"
	"github.com/shardset/shardset/pkg/rpc"
	"github.com/shardset/shardset/pkg/shardversion"
	"github.com/shardset/shardset/pkg/storage"
)

// nodeHandler composes the rpc.Handler surface a shard member serves:
// heartbeats for its own replica set, lock-CAS operations if it happens
// to host a distributed lock document, and dispatch ops for
// setShardVersion and planQuery.
type nodeHandler struct {
	rpc.UnimplementedHandler
	rs        *replset.ReplSet
	store     storage.Store
	nodeState *shardversion.NodeState
}

func (h *nodeHandler) Heartbeat(ctx context.Context, req *rpc.HeartbeatWireRequest) (*rpc.HeartbeatWireResponse, error) {
	return (&rpc.ReplSetHandler{RS: h.rs}).Heartbeat(ctx, req)
}

func (h *nodeHandler) LockCAS(ctx context.Context, req *rpc.LockCASRequest) (*rpc.LockCASResponse, error) {
	return rpc.LockCASServerHandler(h.store, req)
}

func (h *nodeHandler) Dispatch(ctx context.Context, req *rpc.DispatchRequest) (*rpc.DispatchResponse, error) {
	switch req.Op {
	case "setShardVersion":
		return rpc.DispatchShardVersionHandler(h.nodeState, req)
	case "planQuery":
		return rpc.DispatchQueryPlanHandler(req)
	default:
		return &rpc.DispatchResponse{Err: "unsupported op: " + req.Op}, nil
	}
}
