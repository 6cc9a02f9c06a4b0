package rpc

import (
	"encoding/json"

	"github.com/shardset/shardset/pkg/shardversion"
)

// DispatchShardVersionHandler implements the server side of the
// "setShardVersion" Dispatch op against a node's local shardversion
// state, for embedding in a Handler's Dispatch method. Every
// administrative setShardVersion call is treated as its own fresh
// connection context, since the balancer — not a client socket — is the
// caller (spec §4.C, §9 "thread-local holders").
func DispatchShardVersionHandler(ns *shardversion.NodeState, req *DispatchRequest) (*DispatchResponse, error) {
	var payload MoveChunkPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return &DispatchResponse{Err: err.Error()}, nil
	}

	conn := shardversion.NewConnection()
	_, err := ns.SetShardVersion(conn, payload.Namespace, payload.Version, payload.Authoritative, "balancer", payload.ConfigServer)
	if err != nil {
		return &DispatchResponse{Err: err.Error()}, nil
	}
	return &DispatchResponse{}, nil
}
