package replset

import "github.com/shardset/shardset/pkg/types"

// The manager task is the single consumer of r.mailbox. Every message
// type below is produced by some other goroutine — a health-poll task,
// the config-bootstrap loop, or an administrative call — and every
// state mutation happens inside the manager's run loop while holding
// r.mu, never at the producer (spec §5: "health pollers are producers
// only"; "Manager receives work only via a message queue, FIFO, single
// consumer").

// configAdopted carries a newly-adopted configuration from the
// bootstrap/reconfig loop into the manager.
type configAdopted struct {
	cfg types.Config
}

// assumePrimaryReq is an administrative request to promote self to
// PRIMARY. reply receives the outcome.
type assumePrimaryReq struct {
	reply chan error
}

// stepDownReq is an administrative request to relinquish PRIMARY.
type stepDownReq struct {
	reply chan error
}

// reconfigReq is an administrative replSetInitiate/reconfig request.
type reconfigReq struct {
	cfg      types.Config
	initiate bool
	reply    chan error
}
