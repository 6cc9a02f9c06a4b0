package rpc

import (
	"context"

	"github.com/shardset/shardset/pkg/endpoint"
	"github.com/shardset/shardset/pkg/replset"
	"github.com/shardset/shardset/pkg/types"
)

// HeartbeatClientAdapter implements replset.HeartbeatClient over a
// ClientPool, translating between replset's domain-level
// request/response types and this package's wire structs.
type HeartbeatClientAdapter struct {
	Pool *ClientPool
}

func (a *HeartbeatClientAdapter) Heartbeat(ctx context.Context, peer endpoint.Endpoint, req replset.HeartbeatRequest) (replset.HeartbeatResponse, error) {
	client, err := a.Pool.Get(peer)
	if err != nil {
		return replset.HeartbeatResponse{}, err
	}
	resp, err := client.Heartbeat(ctx, &HeartbeatWireRequest{
		SetName: req.SetName, Version: int32(req.Version), ProtocolVersion: int32(req.ProtocolVersion), CheckEmpty: req.CheckEmpty,
	})
	if err != nil {
		return replset.HeartbeatResponse{}, err
	}
	out := replset.HeartbeatResponse{
		OK:       resp.OK,
		Set:      resp.Set,
		State:    types.MemberState(resp.State),
		OpTime:   resp.OpTime.toOpTime(),
		Version:  int(resp.Version),
		Mismatch: resp.Mismatch,
		HasData:  resp.HasData,
	}
	if resp.Config != nil {
		cfg := wireToConfig(resp.Config)
		out.Config = &cfg
	}
	return out, nil
}

func configToWire(cfg types.Config) *ConfigWire {
	members := make([]MemberWire, len(cfg.Members))
	for i, m := range cfg.Members {
		members[i] = MemberWire{ID: int32(m.ID), Host: m.Endpoint.Host(), Port: int32(m.Endpoint.Port()), PotentiallyHot: m.PotentiallyHot, ArbiterOnly: m.ArbiterOnly}
	}
	return &ConfigWire{SetID: cfg.SetID, Version: int32(cfg.Version), Members: members}
}

func wireToConfig(w *ConfigWire) types.Config {
	members := make([]types.Member, len(w.Members))
	for i, m := range w.Members {
		ep, _ := endpoint.New(m.Host, int(m.Port))
		members[i] = types.Member{ID: int(m.ID), Endpoint: ep, PotentiallyHot: m.PotentiallyHot, ArbiterOnly: m.ArbiterOnly}
	}
	return types.Config{SetID: w.SetID, Version: int(w.Version), Members: members}
}

// ReplSetHandler serves the Heartbeat RPC from a node's own
// replica-set coordinator. Embed UnimplementedHandler for LockCAS and
// Dispatch on a node that doesn't serve them.
type ReplSetHandler struct {
	UnimplementedHandler
	RS *replset.ReplSet
}

func (h *ReplSetHandler) Heartbeat(ctx context.Context, req *HeartbeatWireRequest) (*HeartbeatWireResponse, error) {
	resp := h.RS.HandleHeartbeat(replset.HeartbeatRequest{
		SetName: req.SetName, Version: int(req.Version), ProtocolVersion: int(req.ProtocolVersion), CheckEmpty: req.CheckEmpty,
	})
	out := &HeartbeatWireResponse{
		OK:       resp.OK,
		Set:      resp.Set,
		State:    string(resp.State),
		OpTime:   toOpTimeWire(resp.OpTime),
		Version:  int32(resp.Version),
		Mismatch: resp.Mismatch,
		HasData:  resp.HasData,
	}
	if resp.Config != nil {
		out.Config = configToWire(*resp.Config)
	}
	return out, nil
}
