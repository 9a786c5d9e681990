package metrics

import "time"

// Collector runs a ticking health heartbeat for a long-running simulation
// process. The scheduler core's own gauges and counters (QueuesActive,
// DispatchedRequestsTotal, BudgetExpirationsTotal, ...) are updated inline
// from Root's dispatch/completion path, so there is nothing left to poll
// there; what a host still needs is a liveness signal that keeps ticking
// independently of whether the workload currently has any traffic.
// Grounded on the teacher's ticking Start/Stop collector loop
// (pkg/metrics/collector.go), repointed from cluster/Raft object counts to
// a single named component's health status.
type Collector struct {
	component string
	interval  time.Duration
	stopCh    chan struct{}
}

// NewCollector returns a Collector that marks component healthy every
// interval until Stop is called.
func NewCollector(component string, interval time.Duration) *Collector {
	return &Collector{
		component: component,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the heartbeat loop in the background.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		RegisterComponent(c.component, true, "running")
		for {
			select {
			case <-ticker.C:
				RegisterComponent(c.component, true, "running")
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the heartbeat loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}
