package metrics

import (
	"time"

	"github.com/shardset/shardset/pkg/replset"
	"github.com/shardset/shardset/pkg/types"
)

// Collector periodically samples a node's replica-set coordinator and
// publishes its state as gauges, the same ticker shape the manager's
// node/service/task collector used.
type Collector struct {
	rs     *replset.ReplSet
	setID  string
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector for rs's replica set.
func NewCollector(rs *replset.ReplSet, setID string) *Collector {
	return &Collector{
		rs:     rs,
		setID:  setID,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectState()
	c.collectPeerHealth()
	c.collectConfigVersion()
}

var allStates = []types.MemberState{
	types.StateStartup, types.StateStartup2, types.StatePrimary,
	types.StateSecondary, types.StateRecovering, types.StateFatal, types.StateUnknown,
}

func (c *Collector) collectState() {
	current := c.rs.State()
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		ReplSetState.WithLabelValues(c.setID, string(s)).Set(v)
	}
}

func (c *Collector) collectPeerHealth() {
	for peer, hb := range c.rs.Heartbeats() {
		v := 0.0
		if hb.Health == types.HealthUp {
			v = 1
		}
		ReplSetPeerHealth.WithLabelValues(c.setID, peer).Set(v)
	}
}

func (c *Collector) collectConfigVersion() {
	ConfigVersion.Set(float64(c.rs.Config().Version))
}
