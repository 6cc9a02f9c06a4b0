// Package replset implements component F: the replica-set coordinator
// that tracks peer health, adopts and reconfigures cluster
// configuration, and arbitrates the PRIMARY/SECONDARY/RECOVERING state
// machine (spec §4.F). It is grounded on the teacher's pkg/events
// Broker (the single-consumer mailbox shape) and pkg/health Checker
// (the per-peer poll-loop shape).
package replset

import (
	"context"
	"sync"
	"time"

	"github.com/shardset/shardset/pkg/endpoint"
	"github.com/shardset/shardset/pkg/errs"
	"github.com/shardset/shardset/pkg/log"
	"github.com/shardset/shardset/pkg/storage"
	"github.com/shardset/shardset/pkg/types"
)

// ReplSet coordinates one node's membership in a replica set. All state
// mutation happens inside run(), the mailbox's single consumer; every
// other method either reads under mu or sends a message and waits for a
// reply (spec §5 Concurrency & Resource Model).
type ReplSet struct {
	identity        endpoint.Identity
	store           storage.Store
	oplog           OpLog
	heartbeatClient HeartbeatClient

	mu           sync.Mutex
	setName      string
	selfState    types.MemberState
	selfMemberID int
	config       types.Config
	heartbeats   map[string]*types.HeartbeatInfo // keyed by endpoint string

	// adminLock fences the write path during a role transition, as the
	// teacher's admin-lock idiom does for config writes.
	adminLock sync.RWMutex

	mailbox     chan any
	pollCancels map[string]context.CancelFunc
}

// NewReplSet constructs a coordinator for the current process.
func NewReplSet(identity endpoint.Identity, store storage.Store, oplog OpLog, client HeartbeatClient) *ReplSet {
	return &ReplSet{
		identity:        identity,
		store:           store,
		oplog:           oplog,
		heartbeatClient: client,
		selfState:       types.StateStartup,
		heartbeats:      make(map[string]*types.HeartbeatInfo),
		pollCancels:     make(map[string]context.CancelFunc),
	}
}

// Start runs the startup sequence (spec §4.F): parse the seed spec,
// confirm the local op-log is readable, spawn the manager task and one
// health-poll task per seed, and begin loading configuration in the
// background.
func (r *ReplSet) Start(ctx context.Context, seedSpec string) error {
	setName, seeds, err := ParseSeedSpec(seedSpec, r.identity)
	if err != nil {
		return err
	}

	if _, err := r.oplog.LastOpTime(); err != nil {
		r.setFatal(errs.New(errs.Fatal, "replset.Start", err, map[string]any{"reason": "local op-log unreadable"}))
		return errs.New(errs.Fatal, "replset.Start", err, nil)
	}

	r.mu.Lock()
	r.setName = setName
	r.selfState = types.StateStartup2
	r.mu.Unlock()

	r.mailbox = make(chan any, 256)
	go r.run(ctx)

	for _, s := range seeds {
		r.spawnPollerLocked(ctx, s)
	}

	go r.bootstrapConfig(ctx, seeds, setName)
	return nil
}

func (r *ReplSet) spawnPollerLocked(ctx context.Context, peer endpoint.Endpoint) {
	pctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.pollCancels[peer.String()] = cancel
	r.mu.Unlock()
	go pollPeer(pctx, peer, r.mailbox, r.heartbeatClient, r.setNameSnapshot(), r.configVersion)
}

func (r *ReplSet) setNameSnapshot() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setName
}

// configVersion is the read-only accessor health pollers use to stamp
// their heartbeat requests; it does not mutate state.
func (r *ReplSet) configVersion() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.Version
}

func (r *ReplSet) setFatal(err error) {
	r.mu.Lock()
	r.selfState = types.StateFatal
	r.mu.Unlock()
	log.Error("replset: " + err.Error())
}

// run is the mailbox's single consumer. Every message it processes is
// handled with r.mu held, so handlers never need their own locking
// (spec §5: "Manager receives work only via a message queue, FIFO,
// single consumer").
func (r *ReplSet) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.mailbox:
			r.mu.Lock()
			r.handleLocked(ctx, msg)
			r.mu.Unlock()
		}
	}
}

func (r *ReplSet) handleLocked(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case heartbeatResult:
		r.handleHeartbeatLocked(m)
	case configAdopted:
		r.applyAdoptedConfigLocked(ctx, m.cfg)
	case assumePrimaryReq:
		m.reply <- r.doAssumePrimaryLocked()
	case stepDownReq:
		m.reply <- r.doRelinquishLocked()
	case reconfigReq:
		m.reply <- r.doReconfigureLocked(ctx, m.cfg, m.initiate)
	}
}

func (r *ReplSet) handleHeartbeatLocked(m heartbeatResult) {
	key := m.peer.String()
	info, ok := r.heartbeats[key]
	if !ok {
		info = &types.HeartbeatInfo{}
		if member, found := r.memberByEndpointLocked(m.peer); found {
			info.MemberID = member.ID
		}
		r.heartbeats[key] = info
	}

	now := time.Now()
	if m.up {
		info.MarkUp(now, m.state, m.opTime, m.version)
	} else {
		info.MarkDown(now, m.errMsg)
	}

	if m.config != nil && m.config.Version > r.config.Version {
		if err := validateConfig(*m.config, r.setName); err == nil {
			if self := m.config.SelfMembers(r.identity); len(self) == 1 {
				r.adoptConfigLocked(*m.config)
			}
		}
	}

	if r.selfState == types.StatePrimary && !r.hasMajorityLocked() {
		log.Warn("replset: lost majority visibility, relinquishing primary")
		r.doRelinquishLocked()
	}
}

func (r *ReplSet) memberByEndpointLocked(ep endpoint.Endpoint) (types.Member, bool) {
	for _, m := range r.config.Members {
		if m.Endpoint.Equal(ep) {
			return m, true
		}
	}
	return types.Member{}, false
}

func (r *ReplSet) hasMajorityLocked() bool {
	total := len(r.config.Members)
	if total == 0 {
		return true
	}
	up := 1 // self
	for key, info := range r.heartbeats {
		if _, found := r.memberByEndpointLocked(endpointFromKey(key)); found && info.Health == types.HealthUp {
			up++
		}
	}
	return up >= total/2+1
}

func (r *ReplSet) applyAdoptedConfigLocked(ctx context.Context, cfg types.Config) {
	r.adoptConfigLocked(cfg)
	if r.selfState == types.StateStartup2 {
		r.selfState = types.StateSecondary
	}
	r.reconcilePollersLocked(ctx, cfg)
}

// adoptConfigLocked installs cfg as current and resolves this node's
// member id within it. Callers must already hold mu.
func (r *ReplSet) adoptConfigLocked(cfg types.Config) {
	r.config = cfg
	if self := cfg.SelfMembers(r.identity); len(self) == 1 {
		r.selfMemberID = self[0].ID
	}
}

// reconcilePollersLocked spawns a health-poll task for every member not
// already being polled, and cancels tasks for members no longer present
// in cfg — the Reconfiguration paragraph's "members absent from the new
// configuration are orphaned (their health tasks ended)".
func (r *ReplSet) reconcilePollersLocked(ctx context.Context, cfg types.Config) {
	wanted := make(map[string]bool)
	for _, m := range cfg.Members {
		if m.ID == r.selfMemberID {
			continue
		}
		key := m.Endpoint.String()
		wanted[key] = true
		if _, ok := r.pollCancels[key]; !ok {
			pctx, cancel := context.WithCancel(ctx)
			r.pollCancels[key] = cancel
			ep := m.Endpoint
			go pollPeer(pctx, ep, r.mailbox, r.heartbeatClient, r.setName, r.configVersion)
		}
	}
	for key, cancel := range r.pollCancels {
		if !wanted[key] {
			cancel()
			delete(r.pollCancels, key)
			delete(r.heartbeats, key)
		}
	}
}

const majorityLockOp = "replset.assumePrimary"

// doAssumePrimaryLocked implements spec §4.F's role-transition rule:
// legal only from SECONDARY or STARTUP2, only for a potentiallyHot
// member, and only while the admin write lock is free.
func (r *ReplSet) doAssumePrimaryLocked() error {
	if r.selfState != types.StateSecondary && r.selfState != types.StateStartup2 {
		return errs.New(errs.ConfigConflict, majorityLockOp, nil, map[string]any{"from": r.selfState})
	}
	self, ok := r.config.MemberByID(r.selfMemberID)
	if !ok || !self.PotentiallyHot {
		return errs.New(errs.BadInput, majorityLockOp, nil, map[string]any{"reason": "member is not potentiallyHot"})
	}
	if !r.adminLock.TryLock() {
		return errs.New(errs.Transient, majorityLockOp, nil, map[string]any{"reason": "admin write lock held"})
	}
	defer r.adminLock.Unlock()
	r.selfState = types.StatePrimary
	log.Info("replset: assumed primary for set " + r.setName)
	return nil
}

// doRelinquishLocked moves PRIMARY to RECOVERING. A no-op from any
// other state.
func (r *ReplSet) doRelinquishLocked() error {
	if r.selfState != types.StatePrimary {
		return nil
	}
	r.selfState = types.StateRecovering
	log.Info("replset: relinquished primary for set " + r.setName)
	return nil
}

// doReconfigureLocked implements replSetInitiate (initiate=true; the
// op-log-empty and per-member checkEmpty probes already ran in
// preflightInitiate before this was enqueued) and reconfig
// (initiate=false, the new version must exceed every peer's known
// version) from spec §4.F "Reconfiguration".
func (r *ReplSet) doReconfigureLocked(ctx context.Context, cfg types.Config, initiate bool) error {
	if verr := validateConfig(cfg, r.setName); verr != nil {
		return verr
	}
	self := cfg.SelfMembers(r.identity)
	if len(self) != 1 {
		return errs.New(errs.BadInput, "replset.reconfigure", nil, map[string]any{"reason": "self must appear exactly once"})
	}

	if initiate {
		if r.config.Version != 0 {
			return errs.New(errs.ConfigConflict, "replset.reconfigure", nil, map[string]any{"reason": "already initiated"})
		}
	} else {
		maxKnown := r.config.Version
		for _, info := range r.heartbeats {
			if info.Health == types.HealthUp && info.LastVersion > maxKnown {
				maxKnown = info.LastVersion
			}
		}
		if cfg.Version <= maxKnown {
			return errs.New(errs.ConfigConflict, "replset.reconfigure", nil, map[string]any{"reason": "version must exceed every peer's known version", "maxKnown": maxKnown, "proposed": cfg.Version})
		}
	}

	if err := r.store.SaveReplSetConfig(cfg); err != nil {
		return err
	}
	r.applyAdoptedConfigLocked(ctx, cfg)
	return nil
}

// HandleHeartbeat answers an incoming replSetHeartbeat RPC (spec §6):
// it validates the protocol version and set name, and otherwise reports
// this node's own state, op-time, and — when req.CheckEmpty is set —
// its locally known configuration, for a peer bootstrapping its own
// configuration-loading step. This is a read-only accessor; it never
// mutates state, so callers don't need to route it through the mailbox.
func (r *ReplSet) HandleHeartbeat(req HeartbeatRequest) HeartbeatResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.ProtocolVersion != 1 {
		return HeartbeatResponse{Mismatch: "unsupported protocol version"}
	}
	if r.setName != "" && req.SetName != r.setName {
		return HeartbeatResponse{Mismatch: "set name mismatch: have " + r.setName + ", got " + req.SetName}
	}

	resp := HeartbeatResponse{
		OK:      true,
		Set:     r.setName,
		State:   r.selfState,
		Version: r.config.Version,
	}
	if opTime, err := r.oplog.LastOpTime(); err == nil {
		resp.OpTime = opTime
	}
	if req.CheckEmpty {
		if r.config.Version > 0 {
			cfg := r.config
			resp.Config = &cfg
		}
		if empty, err := r.oplog.IsEmpty(); err == nil {
			resp.HasData = !empty
		}
	}
	return resp
}

// RequestAssumePrimary sends an administrative assume-primary request
// into the manager mailbox and waits for the outcome.
func (r *ReplSet) RequestAssumePrimary(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case r.mailbox <- assumePrimaryReq{reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StepDown requests relinquishing PRIMARY, driving the same relinquish
// transition a health-triggered step-down would.
func (r *ReplSet) StepDown(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case r.mailbox <- stepDownReq{reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// preflightInitiate runs replSetInitiate's pre-adoption guards (spec
// §4.F "Reconfiguration"): the local op-log must be empty, and every
// prospective member must answer a checkEmpty=true heartbeat reporting
// no data and no configuration at or beyond the proposed version. It
// does its own network calls outside the mailbox so the manager's
// single-consumer loop never blocks on a peer RPC.
func (r *ReplSet) preflightInitiate(ctx context.Context, cfg types.Config) error {
	empty, err := r.oplog.IsEmpty()
	if err != nil {
		return err
	}
	if !empty {
		return errs.New(errs.ConfigConflict, "replset.reconfigure", nil, map[string]any{"reason": "local op-log is not empty, cannot initiate"})
	}

	for _, m := range cfg.Members {
		if r.identity.IsSelf(m.Endpoint) {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, pollTimeout)
		resp, herr := r.heartbeatClient.Heartbeat(cctx, m.Endpoint, HeartbeatRequest{
			SetName: cfg.SetID, ProtocolVersion: 1, CheckEmpty: true,
		})
		cancel()
		if herr != nil {
			return errs.New(errs.Transient, "replset.reconfigure", herr, map[string]any{"reason": "prospective member unreachable", "member": m.Endpoint.String()})
		}
		if resp.HasData {
			return errs.New(errs.ConfigConflict, "replset.reconfigure", nil, map[string]any{"reason": "prospective member already has data", "member": m.Endpoint.String()})
		}
		if resp.Version >= cfg.Version {
			return errs.New(errs.ConfigConflict, "replset.reconfigure", nil, map[string]any{"reason": "prospective member already holds a configuration at or beyond the proposed version", "member": m.Endpoint.String(), "version": resp.Version})
		}
	}
	return nil
}

// Reconfigure sends replSetInitiate (initiate=true) or a reconfig
// (initiate=false) request into the manager mailbox. For an initiate,
// preflightInitiate's guards must pass first.
func (r *ReplSet) Reconfigure(ctx context.Context, cfg types.Config, initiate bool) error {
	if initiate {
		if err := r.preflightInitiate(ctx, cfg); err != nil {
			return err
		}
	}
	reply := make(chan error, 1)
	select {
	case r.mailbox <- reconfigReq{cfg: cfg, initiate: initiate, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current self state.
func (r *ReplSet) State() types.MemberState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selfState
}

// Config returns a copy of the current configuration.
func (r *ReplSet) Config() types.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

// EligibleForPrimary reports whether self is a potentiallyHot member
// currently SECONDARY with a configuration adopted — the signal an
// external driving loop (cmd binary, or the administrative surface)
// polls to decide when to call RequestAssumePrimary. No automatic
// election algorithm is specified, so the decision of *when* to promote
// is left to that external driver.
func (r *ReplSet) EligibleForPrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selfState != types.StateSecondary {
		return false
	}
	self, ok := r.config.MemberByID(r.selfMemberID)
	return ok && self.PotentiallyHot
}

// Heartbeats returns a snapshot of per-peer heartbeat info, keyed by
// endpoint string.
func (r *ReplSet) Heartbeats() map[string]types.HeartbeatInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]types.HeartbeatInfo, len(r.heartbeats))
	for k, v := range r.heartbeats {
		out[k] = *v
	}
	return out
}

func endpointFromKey(key string) endpoint.Endpoint {
	ep, _ := endpoint.Parse(key)
	return ep
}
