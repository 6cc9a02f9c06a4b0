package rpc

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/shardset/shardset/pkg/endpoint"
	"github.com/shardset/shardset/pkg/errs"
)

// Client is a grpc connection to one peer, speaking the shared
// ShardRPC service over the json codec.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to target. The connection is lazy: grpc.NewClient
// doesn't block on the first RPC, matching the "unreachable peer is a
// Transient error at call time, not at dial time" model pollPeer relies
// on.
func Dial(target string) (*Client, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return nil, errs.New(errs.Transient, "rpc.Dial", err, map[string]any{"target": target})
	}
	return &Client{conn: conn}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Heartbeat issues the replSetHeartbeat RPC.
func (c *Client) Heartbeat(ctx context.Context, req *HeartbeatWireRequest) (*HeartbeatWireResponse, error) {
	out := new(HeartbeatWireResponse)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/Heartbeat", req, out); err != nil {
		return nil, errs.New(errs.Transient, "rpc.Client.Heartbeat", err, nil)
	}
	return out, nil
}

// LockCAS issues the lock compare-and-swap RPC.
func (c *Client) LockCAS(ctx context.Context, req *LockCASRequest) (*LockCASResponse, error) {
	out := new(LockCASResponse)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/LockCAS", req, out); err != nil {
		return nil, errs.New(errs.Transient, "rpc.Client.LockCAS", err, nil)
	}
	return out, nil
}

// Dispatch issues the router-to-shard query dispatch RPC.
func (c *Client) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResponse, error) {
	out := new(DispatchResponse)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/Dispatch", req, out); err != nil {
		return nil, errs.New(errs.Transient, "rpc.Client.Dispatch", err, nil)
	}
	return out, nil
}

// ClientPool dials peers lazily and caches connections by endpoint, so
// health pollers and balancer tasks share one connection per peer
// rather than dialing per RPC.
type ClientPool struct {
	mu    sync.Mutex
	dial  func(target string) (*Client, error)
	cache map[string]*Client
}

// NewClientPool returns a pool using the real Dial function.
func NewClientPool() *ClientPool {
	return &ClientPool{dial: Dial, cache: make(map[string]*Client)}
}

// Get returns the cached client for peer, dialing it if necessary.
func (p *ClientPool) Get(peer endpoint.Endpoint) (*Client, error) {
	key := peer.String()
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.cache[key]; ok {
		return c, nil
	}
	c, err := p.dial(key)
	if err != nil {
		return nil, err
	}
	p.cache[key] = c
	return c, nil
}

// Close tears down every pooled connection.
func (p *ClientPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for _, c := range p.cache {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
