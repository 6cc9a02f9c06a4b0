package replset

import (
	"context"
	"time"

	"github.com/shardset/shardset/pkg/endpoint"
	"github.com/shardset/shardset/pkg/log"
	"github.com/shardset/shardset/pkg/types"
)

const (
	pollInterval     = 2 * time.Second
	pollTimeout      = 5 * time.Second
	minSendInterval  = 4 * time.Second
)

// HeartbeatRequest is the replSetHeartbeat command (spec §6).
type HeartbeatRequest struct {
	SetName         string
	Version         int
	ProtocolVersion int
	CheckEmpty      bool
}

// HeartbeatResponse is the replSetHeartbeat reply (spec §6).
type HeartbeatResponse struct {
	OK        bool
	Set       string
	State     types.MemberState
	OpTime    types.OpTime
	Version   int
	Config    *types.Config
	Mismatch  string
	HasData   bool
}

// HeartbeatClient issues the heartbeat RPC to a peer. Implementations
// live in pkg/rpc; tests substitute fakes.
type HeartbeatClient interface {
	Heartbeat(ctx context.Context, peer endpoint.Endpoint, req HeartbeatRequest) (HeartbeatResponse, error)
}

// heartbeatResult is the message a health-poll task sends to the
// manager mailbox. Health-poll tasks are producers only — they never
// touch replica-set state directly (spec §4.F, §5).
type heartbeatResult struct {
	peer     endpoint.Endpoint
	up       bool
	state    types.MemberState
	opTime   types.OpTime
	version  int
	config   *types.Config
	errMsg   string
}

// pollPeer runs the per-peer heartbeat loop (spec §4.F "Heartbeat poll
// (per peer, every 2s)"). It sends a message whenever (state, health)
// changes, or unconditionally every minSendInterval.
func pollPeer(ctx context.Context, peer endpoint.Endpoint, mailbox chan<- any, client HeartbeatClient, setName string, version func() int) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastHealth := types.HealthUnknown
	lastState := types.StateUnknown
	var lastSent time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cctx, cancel := context.WithTimeout(ctx, pollTimeout)
		resp, err := client.Heartbeat(cctx, peer, HeartbeatRequest{
			SetName: setName, Version: version(), ProtocolVersion: 1, CheckEmpty: false,
		})
		cancel()

		msg := heartbeatResult{peer: peer}
		newHealth := types.HealthUp
		newState := resp.State
		switch {
		case err != nil:
			newHealth = types.HealthDown
			newState = types.StateUnknown
			msg.errMsg = err.Error()
			log.Errorf("heartbeat: peer "+peer.String()+" unreachable", err)
		case resp.Mismatch != "":
			newHealth = types.HealthDown
			newState = types.StateUnknown
			msg.errMsg = resp.Mismatch
			log.Warn("heartbeat: protocol version mismatch with peer " + peer.String())
		default:
			msg.up = true
			msg.state = resp.State
			msg.opTime = resp.OpTime
			msg.version = resp.Version
			if resp.Config != nil {
				msg.config = resp.Config
			}
		}

		changed := newHealth != lastHealth || newState != lastState
		if changed || time.Since(lastSent) >= minSendInterval {
			select {
			case mailbox <- msg:
				lastSent = time.Now()
				lastHealth = newHealth
				lastState = newState
			case <-ctx.Done():
				return
			}
		}
	}
}
