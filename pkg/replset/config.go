package replset

import (
	"context"
	"strings"
	"time"

	"github.com/shardset/shardset/pkg/endpoint"
	"github.com/shardset/shardset/pkg/errs"
	"github.com/shardset/shardset/pkg/types"
)

// OpLog abstracts the local operation log this coordinator sits in
// front of. Its content and format are out of scope; the coordinator
// only ever asks whether it is readable and whether it's empty (spec
// §1, §4.F startup step 2 and reconfiguration's "initial sync" check).
type OpLog interface {
	LastOpTime() (types.OpTime, error)
	IsEmpty() (bool, error)
}

// ConfigOutcome classifies the result of a configuration-loading
// attempt (spec §4.F "Configuration loading").
type ConfigOutcome int

const (
	// ConfigAdopted means a valid configuration naming self exactly
	// once was found and (if newer than the local copy) persisted.
	ConfigAdopted ConfigOutcome = iota
	// ConfigEmptyConfig means no seed has any configuration yet.
	ConfigEmptyConfig
	// ConfigEmptyUnreachable means no configuration was found, but at
	// least one seed could not be reached to rule it out.
	ConfigEmptyUnreachable
	// ConfigBadConfig means every candidate found was structurally
	// invalid (wrong set name, no members, non-positive version).
	ConfigBadConfig
	// ConfigNotSelf means the best candidate configuration never
	// mentions this process; it cannot be adopted but is not fatal.
	ConfigNotSelf
)

const configRetryInterval = 20 * time.Second

// ParseSeedSpec parses "<setName>/<seed1>,<seed2>,..." (spec §4.F
// startup step 1). It rejects duplicate seeds and seeds that resolve to
// a local-host alias, and silently drops any seed that resolves to this
// process itself.
func ParseSeedSpec(spec string, self endpoint.Identity) (setName string, seeds []endpoint.Endpoint, err error) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", nil, errs.New(errs.BadInput, "replset.ParseSeedSpec", nil, map[string]any{"spec": spec})
	}
	setName = parts[0]

	seen := make(map[string]bool)
	for _, raw := range strings.Split(parts[1], ",") {
		raw = strings.TrimSpace(raw)
		ep, perr := endpoint.Parse(raw)
		if perr != nil {
			return "", nil, errs.New(errs.BadInput, "replset.ParseSeedSpec", perr, map[string]any{"seed": raw})
		}
		if ep.IsLocalAlias() {
			return "", nil, errs.New(errs.BadInput, "replset.ParseSeedSpec", nil, map[string]any{"seed": raw, "reason": "local-host seed not allowed"})
		}
		key := ep.String()
		if seen[key] {
			return "", nil, errs.New(errs.BadInput, "replset.ParseSeedSpec", nil, map[string]any{"seed": raw, "reason": "duplicate seed"})
		}
		seen[key] = true
		if self.IsSelf(ep) {
			continue
		}
		seeds = append(seeds, ep)
	}
	return setName, seeds, nil
}

// validateConfig checks the structural invariants a candidate
// configuration must satisfy before it can even be considered for
// adoption, independent of the self-appears-once check.
func validateConfig(cfg types.Config, setName string) error {
	if cfg.SetID != setName {
		return errs.New(errs.BadInput, "replset.validateConfig", nil, map[string]any{"got": cfg.SetID, "want": setName})
	}
	if cfg.Version <= 0 {
		return errs.New(errs.BadInput, "replset.validateConfig", nil, map[string]any{"version": cfg.Version})
	}
	if len(cfg.Members) == 0 {
		return errs.New(errs.BadInput, "replset.validateConfig", nil, map[string]any{"reason": "no members"})
	}
	seenID := make(map[int]bool)
	seenEP := make(map[string]bool)
	for _, m := range cfg.Members {
		if seenID[m.ID] {
			return errs.New(errs.BadInput, "replset.validateConfig", nil, map[string]any{"reason": "duplicate member id", "id": m.ID})
		}
		seenID[m.ID] = true
		key := m.Endpoint.String()
		if seenEP[key] {
			return errs.New(errs.BadInput, "replset.validateConfig", nil, map[string]any{"reason": "duplicate member endpoint", "endpoint": key})
		}
		seenEP[key] = true
	}
	return nil
}

// loadConfiguration queries a configuration document from the local
// store and from each seed (via heartbeat with CheckEmpty=true),
// prefers the highest version among the valid candidates, and persists
// it locally if it is newer than what's already stored (spec §4.F
// "Configuration loading").
func (r *ReplSet) loadConfiguration(ctx context.Context, seeds []endpoint.Endpoint, setName string) (types.Config, ConfigOutcome, error) {
	var candidates []types.Config
	anyInvalid := false
	anyUnreachable := false

	local, found, err := r.store.LoadReplSetConfig(setName)
	if err == nil && found {
		if verr := validateConfig(local, setName); verr == nil {
			candidates = append(candidates, local)
		} else {
			anyInvalid = true
		}
	}

	for _, seed := range seeds {
		cctx, cancel := context.WithTimeout(ctx, pollTimeout)
		resp, herr := r.heartbeatClient.Heartbeat(cctx, seed, HeartbeatRequest{
			SetName: setName, ProtocolVersion: 1, CheckEmpty: true,
		})
		cancel()
		if herr != nil {
			anyUnreachable = true
			continue
		}
		if resp.Config == nil {
			continue
		}
		if verr := validateConfig(*resp.Config, setName); verr != nil {
			anyInvalid = true
			continue
		}
		candidates = append(candidates, *resp.Config)
	}

	if len(candidates) == 0 {
		if anyInvalid {
			return types.Config{}, ConfigBadConfig, errs.New(errs.Fatal, "replset.loadConfiguration", nil, map[string]any{"reason": "every candidate configuration was invalid"})
		}
		if anyUnreachable {
			return types.Config{}, ConfigEmptyUnreachable, nil
		}
		return types.Config{}, ConfigEmptyConfig, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Version > best.Version {
			best = c
		}
	}

	self := best.SelfMembers(r.identity)
	if len(self) == 0 {
		return best, ConfigNotSelf, nil
	}
	if len(self) > 1 {
		return best, ConfigBadConfig, errs.New(errs.Fatal, "replset.loadConfiguration", nil, map[string]any{"reason": "self appears more than once in configuration"})
	}

	if !found || best.Version > local.Version {
		if serr := r.store.SaveReplSetConfig(best); serr != nil {
			return best, ConfigBadConfig, serr
		}
	}
	return best, ConfigAdopted, nil
}

// bootstrapConfig retries loadConfiguration until a configuration is
// adopted or a fatal outcome is reached, then hands the result to the
// manager via the mailbox so the mutation happens under r.mu inside the
// single consumer (spec §5).
func (r *ReplSet) bootstrapConfig(ctx context.Context, seeds []endpoint.Endpoint, setName string) {
	for {
		cfg, outcome, err := r.loadConfiguration(ctx, seeds, setName)
		switch outcome {
		case ConfigAdopted:
			select {
			case r.mailbox <- configAdopted{cfg: cfg}:
			case <-ctx.Done():
			}
			return
		case ConfigBadConfig:
			r.setFatal(err)
			return
		case ConfigEmptyConfig, ConfigEmptyUnreachable, ConfigNotSelf:
			// Retry after a delay; none of these are fatal.
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(configRetryInterval):
		}
	}
}
