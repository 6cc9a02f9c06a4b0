package balancer

import (
	"context"
	"encoding/json"

	"github.com/shardset/shardset/pkg/endpoint"
	"github.com/shardset/shardset/pkg/errs"
	"github.com/shardset/shardset/pkg/rpc"
)

// RPCExecutor performs a migration by dispatching a setShardVersion
// adopt to the destination shard and a drop to the source shard over
// pkg/rpc, mirroring the chunk-version invariant that a version may only
// return to 0 via an explicit authoritative drop (spec §3 Chunk
// Version).
type RPCExecutor struct {
	Pool         *rpc.ClientPool
	Shards       map[string]endpoint.Endpoint
	ConfigServer string
	// NextVersion returns the version the destination shard should
	// adopt for namespace. Defaults to 1 if nil.
	NextVersion func(namespace string) int64
}

// Migrate implements Executor.
func (e *RPCExecutor) Migrate(ctx context.Context, m Migration) error {
	from, ok := e.Shards[m.From]
	if !ok {
		return errs.New(errs.BadInput, "balancer.RPCExecutor.Migrate", nil, map[string]any{"reason": "unknown shard", "shard": m.From})
	}
	to, ok := e.Shards[m.To]
	if !ok {
		return errs.New(errs.BadInput, "balancer.RPCExecutor.Migrate", nil, map[string]any{"reason": "unknown shard", "shard": m.To})
	}

	next := int64(1)
	if e.NextVersion != nil {
		next = e.NextVersion(m.Namespace)
	}

	// Adopt at the destination before dropping at the source, so a
	// crash mid-migration leaves the chunk owned twice rather than
	// orphaned.
	if err := e.dispatch(ctx, to, rpc.MoveChunkPayload{Namespace: m.Namespace, Version: next, Authoritative: true, ConfigServer: e.ConfigServer}); err != nil {
		return err
	}
	return e.dispatch(ctx, from, rpc.MoveChunkPayload{Namespace: m.Namespace, Version: 0, Authoritative: true, ConfigServer: e.ConfigServer})
}

func (e *RPCExecutor) dispatch(ctx context.Context, peer endpoint.Endpoint, payload rpc.MoveChunkPayload) error {
	client, err := e.Pool.Get(peer)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errs.New(errs.BadInput, "balancer.RPCExecutor.dispatch", err, nil)
	}
	resp, err := client.Dispatch(ctx, &rpc.DispatchRequest{Namespace: payload.Namespace, Op: "setShardVersion", Payload: body})
	if err != nil {
		return err
	}
	if resp.Err != "" {
		return errs.New(errs.Transient, "balancer.RPCExecutor.dispatch", nil, map[string]any{"reason": resp.Err})
	}
	return nil
}
