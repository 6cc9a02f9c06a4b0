package balancer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/shardset/shardset/pkg/distlock"
	"github.com/shardset/shardset/pkg/events"
	"github.com/shardset/shardset/pkg/log"
	"github.com/shardset/shardset/pkg/metrics"
)

const (
	lockName     = "balancer"
	tickInterval = 10 * time.Second
	roundTimeout = 30 * time.Second
)

// SnapshotFunc returns the current per-namespace shard view the policy
// decides over. The router supplies this from whatever chunk-version
// information it has gathered from its shard connections (spec §4.C).
type SnapshotFunc func() map[string][]ShardSnapshot

// Executor performs one decided migration against both shards it names.
type Executor interface {
	Migrate(ctx context.Context, m Migration) error
}

// Balancer runs a periodic migration cycle gated by the cluster-wide
// "balancer" advisory lock (spec §4.E), the same ticker-driven shape as
// the teacher's Scheduler.run, with a lock acquisition where the
// scheduler had none.
type Balancer struct {
	lock     *distlock.Lock
	snapshot SnapshotFunc
	policy   Policy
	executor Executor
	logger   zerolog.Logger
	broker   *events.Broker
	stopCh   chan struct{}
}

// New returns a Balancer that migrates chunks decided by policy and
// executed by executor, each round gated by lock.
func New(lock *distlock.Lock, snapshot SnapshotFunc, policy Policy, executor Executor) *Balancer {
	return &Balancer{
		lock:     lock,
		snapshot: snapshot,
		policy:   policy,
		executor: executor,
		logger:   log.WithComponent("balancer"),
		stopCh:   make(chan struct{}),
	}
}

// WithBroker attaches a notification broker. Migration lifecycle events
// publish to it if set; it is nil-safe to omit.
func (b *Balancer) WithBroker(broker *events.Broker) *Balancer {
	b.broker = broker
	return b
}

func (b *Balancer) publish(typ events.Type, m *Migration, extra string) {
	if b.broker == nil {
		return
	}
	b.broker.Publish(&events.Event{
		Type:    typ,
		Message: extra,
		Metadata: map[string]string{
			"namespace": m.Namespace,
			"from":      m.From,
			"to":        m.To,
		},
	})
}

// Start begins the balancer loop.
func (b *Balancer) Start() { go b.run() }

// Stop stops the balancer loop.
func (b *Balancer) Stop() { close(b.stopCh) }

func (b *Balancer) run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.cycle()
		case <-b.stopCh:
			return
		}
	}
}

// cycle performs one balancing round: try for the lock, and if held
// elsewhere, skip this round entirely rather than block (spec §4.E's
// try_lock is explicitly non-blocking).
func (b *Balancer) cycle() {
	got, other, err := b.lock.TryLock("balancer round")
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to acquire balancer lock")
		return
	}
	if !got {
		b.logger.Debug().Str("who", other.Who).Msg("balancer lock held elsewhere, skipping round")
		return
	}
	defer func() {
		if err := b.lock.Unlock(); err != nil {
			b.logger.Error().Err(err).Msg("failed to release balancer lock")
		}
	}()

	for ns, shards := range b.snapshot() {
		m := b.policy.Decide(ns, shards)
		if m == nil {
			continue
		}
		b.migrate(m)
	}
}

func (b *Balancer) migrate(m *Migration) {
	timer := metrics.NewTimer()
	ctx, cancel := context.WithTimeout(context.Background(), roundTimeout)
	defer cancel()

	b.publish(events.TypeMigrationStarted, m, "")

	if err := b.executor.Migrate(ctx, *m); err != nil {
		metrics.MigrationsTotal.WithLabelValues("failed").Inc()
		b.logger.Error().Err(err).
			Str("namespace", m.Namespace).Str("from", m.From).Str("to", m.To).
			Msg("chunk migration failed")
		b.publish(events.TypeMigrationFailed, m, err.Error())
		return
	}

	timer.ObserveDuration(metrics.MigrationDuration)
	metrics.MigrationsTotal.WithLabelValues("succeeded").Inc()
	b.logger.Info().
		Str("namespace", m.Namespace).Str("from", m.From).Str("to", m.To).
		Msg("chunk migration complete")
	b.publish(events.TypeMigrationCompleted, m, "")
}
