// Package balancer implements administrative chunk-migration
// orchestration (spec §4.C, §4.E), adapted from the teacher's
// pkg/scheduler ticker loop and grounded on the original balancer's
// shape (s/balance.h: a background job that, once it holds the cluster
// lock, asks a policy which chunks to move and executes the moves).
package balancer

// ShardSnapshot is one shard's observed chunk version for a namespace,
// the coarse stand-in this spec's single-version-per-namespace model
// (spec §3 Chunk Version) gives the balancer in place of real chunk
// counts: a higher version roughly tracks a shard that has absorbed
// more migrations for that namespace.
type ShardSnapshot struct {
	ShardID      string
	ChunkVersion int64
}

// Migration is one decided move: namespace moves from From to To.
type Migration struct {
	Namespace string
	From      string
	To        string
}

// Policy decides whether shards carrying namespace are imbalanced enough
// to warrant a migration, returning nil if not.
type Policy interface {
	Decide(namespace string, shards []ShardSnapshot) *Migration
}

// RoundRobinPolicy moves a namespace from its busiest shard to its
// idlest shard once their chunk versions diverge by at least Threshold,
// mirroring the original balancer's "move from the most loaded shard to
// the least loaded" heuristic (s/balance.h's _moveChunks).
type RoundRobinPolicy struct {
	Threshold int64
}

// Decide implements Policy.
func (p RoundRobinPolicy) Decide(namespace string, shards []ShardSnapshot) *Migration {
	if len(shards) < 2 {
		return nil
	}

	busiest, idlest := shards[0], shards[0]
	for _, s := range shards[1:] {
		if s.ChunkVersion > busiest.ChunkVersion {
			busiest = s
		}
		if s.ChunkVersion < idlest.ChunkVersion {
			idlest = s
		}
	}

	threshold := p.Threshold
	if threshold <= 0 {
		threshold = 1
	}
	if busiest.ShardID == idlest.ShardID || busiest.ChunkVersion-idlest.ChunkVersion < threshold {
		return nil
	}
	return &Migration{Namespace: namespace, From: busiest.ShardID, To: idlest.ShardID}
}
