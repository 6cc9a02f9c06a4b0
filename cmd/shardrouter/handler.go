package main

import (
	"context"

	"github.com/shardset/shardset/pkg/cursor"
	"github.com/shardset/shardset/pkg/rpc"
)

// routerHandler serves the one client-facing concern the router owns
// directly: the cursor-id cache behind killCursors (component D, spec
// §4.D). It takes no part in heartbeats or lock CAS, since those belong
// to a replica set member and the balancer's own locally-held lock,
// respectively.
type routerHandler struct {
	rpc.UnimplementedHandler
	cache *cursor.Cache
}

func (h *routerHandler) Dispatch(ctx context.Context, req *rpc.DispatchRequest) (*rpc.DispatchResponse, error) {
	switch req.Op {
	case "killCursors":
		return rpc.DispatchKillCursorsHandler(h.cache, req)
	default:
		return &rpc.DispatchResponse{Err: "unsupported op: " + req.Op}, nil
	}
}
