package rpc

import (
	"encoding/json"

	"github.com/shardset/shardset/pkg/cursor"
)

// DispatchKillCursorsHandler implements the server side of the
// "killCursors" Dispatch op: it withdraws the named cursor ids from the
// router's cache and reports which ones still need forwarding to their
// owning shard (component D, spec §4.D).
func DispatchKillCursorsHandler(cache *cursor.Cache, req *DispatchRequest) (*DispatchResponse, error) {
	var payload KillCursorsPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return &DispatchResponse{Err: err.Error()}, nil
	}

	forward := cache.KillCursors(payload.IDs)

	body, err := json.Marshal(KillCursorsResult{Forward: forward})
	if err != nil {
		return &DispatchResponse{Err: err.Error()}, nil
	}
	return &DispatchResponse{Payload: body}, nil
}
