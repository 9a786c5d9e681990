// Package scheduler implements the hierarchical B-WF2Q+ scheduler and the
// budget & dispatch controller (spec §4.2, §4.4): the top-level Root type
// exposes the elevator contract described in spec §6, delegating
// weight-raising/burst/soft-RT decisions to pkg/latency and device-speed
// classification to pkg/peakrate.
package scheduler

import (
	"sync"
	"time"

	"github.com/cuemby/bfqsched/pkg/arena"
	"github.com/cuemby/bfqsched/pkg/config"
	"github.com/cuemby/bfqsched/pkg/entity"
	"github.com/cuemby/bfqsched/pkg/iface"
	"github.com/cuemby/bfqsched/pkg/latency"
	"github.com/cuemby/bfqsched/pkg/log"
	"github.com/cuemby/bfqsched/pkg/metrics"
	"github.com/cuemby/bfqsched/pkg/peakrate"
	"github.com/cuemby/bfqsched/pkg/queue"
	"github.com/cuemby/bfqsched/pkg/rbtree"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
)

// maxDistinctQueues bounds how many producer queues Root will allocate
// directly before routing further new producers into the shared,
// LRU-bounded fallback pool (spec §7 "resource exhaustion... fall back to
// a shared fallback queue associated with the producer's priority
// class"). Generous for any realistic single-device workload, but finite
// so the fallback path is a real, reachable behavior rather than dead code.
const maxDistinctQueues = 65536

// expireReason labels a budget-expiration event for metrics and for the
// weight-raising deflation choice in expire (spec §4.4 points 1-4).
type expireReason string

const (
	reasonBudgetExhausted expireReason = "budget_exhausted"
	reasonEmptyNoIdle     expireReason = "empty_no_idle"
	reasonTimeout         expireReason = "timeout"
	reasonPriority        expireReason = "priority"
)

// Root is the top-level scheduler: it owns the arena, the single
// exclusive lock (spec §5), the root hierarchy level, the weight-counter
// tree, and the latency/peak-rate heuristics, and exposes the full §6
// elevator contract to the host.
type Root struct {
	mu sync.Mutex

	cfg *config.Tunables

	nodes arena.Arena[*node]
	top   *Scheduler

	weightTree *rbtree.WeightCounterTree
	heuristics *latency.Heuristics
	peakRate   *peakrate.Estimator

	device   iface.Device
	deferred iface.Deferred
	clock    iface.Clock

	lastPosition uint64
	nextQueueID  uint64

	ioCtxQueues  map[iface.IOContext]arena.Handle
	requestOwner map[uint64]arena.Handle

	fallbackPool *lru.Cache
	queueCeiling int

	inServiceLeaf arena.Handle
	hasInService  bool

	activeQueueCount int

	idleTimerCancel iface.CancelFunc
	hasIdleTimer    bool

	log zerolog.Logger
}

// New constructs a Root bound to the given device, deferred-work, and
// clock collaborators (spec §6 "consumed from collaborators").
func New(cfg *config.Tunables, device iface.Device, deferred iface.Deferred, clock iface.Clock, rotational bool) *Root {
	weightTree := rbtree.NewWeightCounterTree()
	// Sized above the IOClass cardinality (three classes): there is one
	// fallback queue per priority class, so eviction only ever kicks in if
	// that cardinality itself grows, not under ordinary producer churn.
	fallbackPool, _ := lru.New(8)
	return &Root{
		cfg:          cfg,
		top:          newScheduler(),
		weightTree:   weightTree,
		heuristics:   latency.New(cfg, weightTree),
		peakRate:     peakrate.New(rotational, 1e12),
		device:       device,
		deferred:     deferred,
		clock:        clock,
		ioCtxQueues:  make(map[iface.IOContext]arena.Handle),
		requestOwner: make(map[uint64]arena.Handle),
		fallbackPool: fallbackPool,
		queueCeiling: maxDistinctQueues,
		log:          log.WithComponent("scheduler"),
	}
}

// InitQueue performs device-lifecycle setup (spec §6 "init_queue(device)
// — lifecycle"). Call once before any other Root method.
func (r *Root) InitQueue(device iface.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.device = device
}

// ExitQueue tears down all scheduler state: cancels pending timers and
// drops every queue/group (spec §6 "exit_queue(device) — lifecycle").
func (r *Root) ExitQueue() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelIdleTimer()
	r.ioCtxQueues = make(map[iface.IOContext]arena.Handle)
	r.requestOwner = make(map[uint64]arena.Handle)
	r.fallbackPool.Purge()
	r.nodes = arena.Arena[*node]{}
	r.top = newScheduler()
	r.hasInService = false
	r.activeQueueCount = 0
	r.weightTree = rbtree.NewWeightCounterTree()
	r.heuristics = latency.New(r.cfg, r.weightTree)
}

// SetRequest resolves the producer queue for ioCtx, creating one (and
// marking it direct children of the root level) if this is the first
// request ever seen from that context (spec §6 "set_request(bio) →
// io_context — resolve or create the producer queue for a new bio").
func (r *Root) SetRequest(ioCtx iface.IOContext, sync bool) *queue.Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, q := r.getOrCreateQueue(ioCtx, sync)
	return q
}

func (r *Root) getOrCreateQueue(ioCtx iface.IOContext, sync bool) (arena.Handle, *queue.Queue) {
	if h, ok := r.ioCtxQueues[ioCtx]; ok {
		n, alive := r.nodes.Get(h)
		if alive {
			return h, n.q
		}
	}

	if len(r.ioCtxQueues) >= r.queueCeiling {
		return r.fallbackQueue(ioCtx, sync)
	}

	r.nextQueueID++
	q := queue.New(r.nextQueueID, ioCtx, ioCtx.Weight(), sync, entity.NoParent)
	h := r.nodes.Alloc(&node{kind: entity.KindQueue, q: q})
	r.ioCtxQueues[ioCtx] = h
	return h, q
}

// fallbackQueue resolves (or creates) the shared queue for ioCtx's
// priority class, routing a producer that arrived once the per-context
// queue ceiling was reached into a bounded, class-shared queue instead of
// refusing the request (spec §7 "resource exhaustion... fall back to a
// shared fallback queue associated with the producer's priority class").
func (r *Root) fallbackQueue(ioCtx iface.IOContext, sync bool) (arena.Handle, *queue.Queue) {
	class := ioCtx.Class()
	if v, ok := r.fallbackPool.Get(class); ok {
		h := v.(arena.Handle)
		if n, alive := r.nodes.Get(h); alive {
			return h, n.q
		}
	}

	r.log.Warn().Int("class", int(class)).Msg("producer queue ceiling reached; routing to shared fallback queue")
	r.nextQueueID++
	q := queue.New(r.nextQueueID, ioCtx, ioCtx.Weight(), sync, entity.NoParent)
	h := r.nodes.Alloc(&node{kind: entity.KindQueue, q: q})
	r.fallbackPool.Add(class, h)
	return h, q
}

// schedOf resolves the Scheduler that owns entities parented at h: the
// root level for entity.NoParent, or the named group's nested scheduler.
func (r *Root) schedOf(parent entity.Handle) *Scheduler {
	if parent == entity.NoParent {
		return r.top
	}
	n, ok := r.nodes.Get(parent)
	if !ok || n.kind != entity.KindGroup {
		return r.top
	}
	return n.g.Scheduler
}

// AddRequest inserts rq into its producer queue, transitioning the queue
// through the §4.6 state machine and triggering weight-raising/burst
// heuristics on an idle→busy edge (spec §6 "add_request(rq)").
func (r *Root) AddRequest(ioCtx iface.IOContext, rq *iface.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, q := r.getOrCreateQueue(ioCtx, rq.Sync)
	wasIdle := q.State == queue.StateIdle

	now := r.clock.Now()
	if rq.ArrivalTime.IsZero() {
		rq.ArrivalTime = now
	}

	q.AddRequest(rq, r.lastPosition, r.cfg.BackMax, r.cfg.BackPenalty)
	r.requestOwner[rq.ID] = h

	switch q.State {
	case queue.StateIdle:
		r.onBusyTransition(h, q, now, wasIdle)
		q.State = queue.StateBusyNotInService
	case queue.StateIdling:
		r.cancelIdleTimer()
		q.State = queue.StateInService
	}
}

// onBusyTransition runs the idle→busy side effects: burst coalescing,
// the interactive and soft-RT weight-raising triggers, and insertion
// into the active tree at this entity's hierarchy level.
func (r *Root) onBusyTransition(h arena.Handle, q *queue.Queue, now time.Time, wasIdle bool) {
	idleDur := time.Duration(0)
	if !q.LastDeactivatedAt.IsZero() {
		idleDur = now.Sub(q.LastDeactivatedAt)
	}

	burst := r.heuristics.MarkBurstArrival(q, now)
	if burst {
		metrics.QueuesInLargeBurst.Add(float64(r.cfg.LargeBurstThresh))
	} else {
		raised := r.heuristics.MaybeRaiseInteractive(q, idleDur, now, r.peakRate)
		if !raised {
			raised = r.heuristics.MaybeRaiseSoftRT(q, now)
		}
		if raised {
			metrics.QueuesWeightRaised.Inc()
		}
	}

	sched := r.schedOf(q.Parent)
	q.Budget = r.cfg.DefaultMaxBudget
	if q.OnTree == entity.OnIdle {
		q.Reactivate(sched.v)
	} else {
		q.Activate(sched.v, sched.v)
	}
	sched.insertActive(h, q.Entity)
	r.weightTree.Track(uintptr(h), q.Weight)
	r.activeQueueCount++
	r.bubbleActivate(q.Parent, q.Entity.Class)
	r.preemptIfHigherPriority(h, q)

	r.log.Debug().Uint64("queue_id", q.ID).Msg("queue activated")
	metrics.QueuesActive.Set(float64(r.activeQueueCount))
	metrics.DistinctActiveWeights.Set(float64(r.weightTree.DistinctWeights()))
	_ = wasIdle
}

// preemptIfHigherPriority ends the in-service queue's activation
// immediately when newQ just became ready with a strictly higher
// priority class (spec.md §4.4 point 4: "Higher-priority class becoming
// ready (real-time over best-effort over idle class)" is itself a
// mandatory expiration trigger, independent of remaining budget,
// backlog, or timeout). The preempted queue keeps any pending backlog
// and simply reactivates with a fresh budget on its next turn.
func (r *Root) preemptIfHigherPriority(newH arena.Handle, newQ *queue.Queue) {
	if !r.hasInService || r.inServiceLeaf == newH {
		return
	}
	n, alive := r.nodes.Get(r.inServiceLeaf)
	if !alive || n.kind != entity.KindQueue {
		return
	}
	if newQ.Entity.Class < n.q.Entity.Class {
		r.expire(r.inServiceLeaf, n.q, reasonPriority)
	}
}

// Dispatch returns the next request to hand to the device, running
// top-down selection if nothing is currently in service, and expiring
// the in-service queue if it has gone empty (spec §6 "dispatch()").
func (r *Root) Dispatch() *iface.Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DispatchLatency)

	if !r.hasInService {
		h, q, ok := r.selectTopDown()
		if !ok {
			return nil
		}
		r.schedOf(q.Parent).removeActive(h, q.Entity)
		r.inServiceLeaf = h
		r.hasInService = true
		q.State = queue.StateInService
		q.ActivationStart = r.clock.Now()
		q.ServedSectors = 0
		q.BudgetTimeout = q.ActivationStart.Add(r.activationTimeout(q))
	}

	n, ok := r.nodes.Get(r.inServiceLeaf)
	if !ok || n.kind != entity.KindQueue {
		r.hasInService = false
		return nil
	}
	q := n.q
	q.EnforceFIFOExpiry(r.clock.Now(), r.cfg.FIFOExpireSync, r.cfg.FIFOExpireAsync)

	if q.NextRQ == nil {
		if q.State == queue.StateIdling {
			// Waiting out slice_idle for the next arrival; nothing to
			// hand the device yet, but do not force an expiration.
			return nil
		}
		r.expire(r.inServiceLeaf, q, reasonEmptyNoIdle)
		return nil
	}

	rq := q.NextRQ
	distance := seekDistance(rq.Sector, r.lastPosition)
	q.UpdateSeekMean(distance)
	r.lastPosition = rq.Sector
	q.RemoveRequest(rq)
	q.RefreshNextRQ(r.lastPosition, r.cfg.BackMax, r.cfg.BackPenalty)

	label := "async"
	if rq.Sync {
		label = "sync"
	}
	metrics.DispatchedRequestsTotal.WithLabelValues(label).Inc()

	return rq
}

func seekDistance(sector, lastPosition uint64) uint64 {
	if sector >= lastPosition {
		return sector - lastPosition
	}
	return lastPosition - sector
}

// selectTopDown walks from the root level down through groups to a leaf
// queue per spec §4.2, returning the chosen queue's handle.
func (r *Root) selectTopDown() (arena.Handle, *queue.Queue, bool) {
	sched := r.top
	for {
		h, ok := sched.selectEligible()
		if !ok {
			return 0, nil, false
		}
		n, alive := r.nodes.Get(h)
		if !alive {
			return 0, nil, false
		}
		if n.kind == entity.KindQueue {
			return h, n.q, true
		}
		sched = n.g.Scheduler
	}
}

func (r *Root) activationTimeout(q *queue.Queue) time.Duration {
	if q.Sync {
		return r.cfg.TimeoutSync
	}
	return r.cfg.TimeoutAsync
}

// Completed charges a finished request's sectors to its queue's budget,
// updates think-time bookkeeping, and checks for activation expiration
// (spec §6 "completed(rq)", §4.4 charging/expiration rules).
func (r *Root) Completed(rq *iface.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.requestOwner[rq.ID]
	if !ok {
		return
	}
	n, alive := r.nodes.Get(h)
	if !alive || n.kind != entity.KindQueue {
		return
	}
	q := n.q
	delete(r.requestOwner, rq.ID)

	now := r.clock.Now()
	q.RecordCompletion(now)

	charge := rq.Length
	if !rq.Sync && !q.IsWeightRaised() {
		charge += rq.Length * r.cfg.AsyncChargeFactor
	}
	if charge > q.Budget {
		q.Budget = 0
	} else {
		q.Budget -= charge
	}
	q.ServedSectors += rq.Length

	label := "async"
	if rq.Sync {
		label = "sync"
	}
	metrics.DispatchedSectorsTotal.WithLabelValues(label).Add(float64(rq.Length))

	if q.State != queue.StateInService {
		return
	}

	switch {
	case q.Budget == 0:
		r.expire(h, q, reasonBudgetExhausted)
	case now.After(q.BudgetTimeout):
		r.expire(h, q, reasonTimeout)
	case q.Len() == 0:
		r.maybeIdleOrExpire(h, q, now)
	}
}

// maybeIdleOrExpire decides, for an in-service queue that has just gone
// empty, whether to wait up to slice_idle for the next arrival (spec
// §4.4 "idle window") or expire immediately.
func (r *Root) maybeIdleOrExpire(h arena.Handle, q *queue.Queue, now time.Time) {
	wasRaised := q.IsWeightRaised()
	latency.MaybeEndWeightRaise(q, now)
	if wasRaised && !q.IsWeightRaised() {
		metrics.QueuesWeightRaised.Dec()
	}

	if q.Sync && q.LooksInteractive() && !r.heuristics.SymmetricScenario() {
		q.State = queue.StateIdling
		r.inServiceLeaf = h
		r.armIdleTimer(h, q)
		return
	}
	r.expire(h, q, reasonEmptyNoIdle)
}

func (r *Root) armIdleTimer(h arena.Handle, q *queue.Queue) {
	r.cancelIdleTimer()
	r.idleTimerCancel = r.deferred.Schedule(r.cfg.SliceIdle, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if q.State != queue.StateIdling {
			return
		}
		r.expire(h, q, reasonEmptyNoIdle)
	})
	r.hasIdleTimer = true
}

func (r *Root) cancelIdleTimer() {
	if r.hasIdleTimer && r.idleTimerCancel != nil {
		r.idleTimerCancel()
	}
	r.hasIdleTimer = false
	r.idleTimerCancel = nil
}

// expire ends h's current activation: records the peak-rate sample if
// service was delivered, advances virtual time at every ancestor, and
// reinserts the entity into the active or idle tree depending on
// remaining backlog (spec §4.4 "on expiration"). A queue that still has
// backlog is given a fresh DefaultMaxBudget; the next budget is not
// estimated from observed service.
func (r *Root) expire(h arena.Handle, q *queue.Queue, reason expireReason) {
	r.cancelIdleTimer()
	metrics.BudgetExpirationsTotal.WithLabelValues(string(reason)).Inc()

	now := r.clock.Now()
	if q.ServedSectors > 0 {
		elapsed := now.Sub(q.ActivationStart)
		r.peakRate.Sample(q.ServedSectors, elapsed)
		metrics.PeakRateSectorsPerSec.Set(float64(r.peakRate.PeakRate()) / (1 << entity.VTimeShift))
	}

	r.advanceAncestors(h, q.ServedSectors)
	q.CompleteActivation(q.Budget + q.ServedSectors)
	latency.UpdateSoftRTNextStart(q, now, q.ServedSectors)

	wasRaised := q.IsWeightRaised()
	switch reason {
	case reasonBudgetExhausted:
		r.heuristics.MaybeDeflate(q, latency.DeflateBudgetExhausted)
	case reasonTimeout:
		r.heuristics.MaybeDeflate(q, latency.DeflateTimeout)
	}
	if wasRaised && !q.IsWeightRaised() {
		metrics.QueuesWeightRaised.Dec()
	}

	if r.hasInService && r.inServiceLeaf == h {
		r.hasInService = false
	}

	sched := r.schedOf(q.Parent)
	if q.Len() > 0 {
		q.Budget = r.cfg.DefaultMaxBudget
		q.Reactivate(sched.v)
		sched.insertActive(h, q.Entity)
		q.State = queue.StateBusyNotInService
	} else {
		sched.moveToIdle(h, q.Entity)
		r.weightTree.Untrack(uintptr(h), q.Weight)
		r.activeQueueCount--
		q.LastDeactivatedAt = now
		q.State = queue.StateIdle
		metrics.QueuesActive.Set(float64(r.activeQueueCount))
		metrics.DistinctActiveWeights.Set(float64(r.weightTree.DistinctWeights()))
		r.bubbleDeactivate(q.Parent, q.Entity.Class)
	}
	sched.gcIdle(r.resolveForGC)
	r.reclaimStaleQueues(now)
	metrics.VirtualTime.Set(float64(r.top.v))
}

// reclaimStaleQueues frees the arena slot and owning-context map entry of
// every per-producer queue that has sat idle, not busy in any active
// tree, and held no pending requests for at least QueueGCGrace (spec §3:
// "Queues are... destroyed when idle beyond a grace period and holding
// no references"). A freed handle left behind in a Scheduler's idle map
// is cleaned up lazily the next time gcIdle resolves it and finds the
// handle dead. Shared fallback-pool queues are excluded: their lifetime
// is the LRU's to manage, not a per-producer grace period.
func (r *Root) reclaimStaleQueues(now time.Time) {
	for ioCtx, h := range r.ioCtxQueues {
		n, alive := r.nodes.Get(h)
		if !alive {
			delete(r.ioCtxQueues, ioCtx)
			continue
		}
		if n.kind != entity.KindQueue {
			continue
		}
		q := n.q
		if q.State != queue.StateIdle || q.Len() != 0 || q.OnTree == entity.OnActive {
			continue
		}
		if q.LastDeactivatedAt.IsZero() || now.Sub(q.LastDeactivatedAt) < r.cfg.QueueGCGrace {
			continue
		}
		r.nodes.Free(h)
		delete(r.ioCtxQueues, ioCtx)
	}
}

// resolveForGC adapts an arena handle to the (entity, lastBudget) pair
// Scheduler.gcIdle needs to test an idle member's staleness.
func (r *Root) resolveForGC(h arena.Handle) (*entity.Entity, uint64) {
	n, ok := r.nodes.Get(h)
	if !ok {
		return nil, 0
	}
	e := n.entity()
	return e, e.LastBudget()
}

// advanceAncestors walks from h up to the root, advancing each level's
// virtual time by s / Σ(active weights at that level) (spec §4.2 "when
// service terminates at a leaf, virtual time is advanced at every
// ancestor in turn").
func (r *Root) advanceAncestors(h arena.Handle, sectors uint64) {
	if sectors == 0 {
		return
	}
	cur := h
	for {
		n, ok := r.nodes.Get(cur)
		if !ok {
			return
		}
		e := n.entity()
		sched := r.schedOf(e.Parent)
		sched.v += entity.ServiceDelta(sectors, sched.sumWeight)
		if e.Parent == entity.NoParent {
			return
		}
		cur = e.Parent
	}
}

// bubbleActivate increments ActiveChildren for every Group ancestor
// starting at parent, activating a group into its own parent's tree the
// moment it gains its first busy descendant (spec §4.2 hierarchical
// descent requires every ancestor group to itself be selectable). class
// is the class of the leaf queue whose activation triggered this bubble;
// it is folded into every ancestor's classCounts so each group's own
// effective Class always reflects the highest-priority class active
// anywhere below it (spec.md §4.4 point 4).
func (r *Root) bubbleActivate(parent entity.Handle, class iface.IOClass) {
	cur := parent
	for cur != entity.NoParent {
		n, ok := r.nodes.Get(cur)
		if !ok || n.kind != entity.KindGroup {
			return
		}
		g := n.g
		g.classCounts[class]++
		newClass := g.dominantClass()

		gsched := r.schedOf(g.Parent)
		if g.ActiveChildren == 0 {
			g.Entity.Class = newClass
			g.Budget = r.cfg.DefaultMaxBudget
			if g.OnTree == entity.OnIdle {
				g.Reactivate(gsched.v)
			} else {
				g.Activate(gsched.v, gsched.v)
			}
			gsched.insertActive(cur, g.Entity)
		} else if newClass != g.Entity.Class {
			gsched.reclassify(cur, g.Entity, newClass)
		}
		g.ActiveChildren++
		cur = g.Parent
	}
}

// bubbleDeactivate is bubbleActivate's inverse: decrements ActiveChildren
// and classCounts, parks a group idle in its own parent's tree once its
// last busy descendant drains, and otherwise re-homes it to a lower
// priority partition if the departing leaf was its last descendant of
// that class.
func (r *Root) bubbleDeactivate(parent entity.Handle, class iface.IOClass) {
	cur := parent
	for cur != entity.NoParent {
		n, ok := r.nodes.Get(cur)
		if !ok || n.kind != entity.KindGroup {
			return
		}
		g := n.g
		if g.classCounts[class] > 0 {
			g.classCounts[class]--
		}
		if g.ActiveChildren > 0 {
			g.ActiveChildren--
		}
		if g.ActiveChildren == 0 {
			gsched := r.schedOf(g.Parent)
			gsched.moveToIdle(cur, g.Entity)
		} else if newClass := g.dominantClass(); newClass != g.Entity.Class {
			r.schedOf(g.Parent).reclassify(cur, g.Entity, newClass)
		}
		cur = g.Parent
	}
}

// Merged folds rq into an already-pending request (into), removing rq
// from its queue's pending sets (spec §6 "merged(rq, into)").
func (r *Root) Merged(rq *iface.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.requestOwner[rq.ID]
	if !ok {
		return
	}
	n, alive := r.nodes.Get(h)
	if !alive || n.kind != entity.KindQueue {
		return
	}
	n.q.Merged(rq)
	delete(r.requestOwner, rq.ID)
}

// AllowMerge reports whether a bio landing at sector may be merged into
// ioCtx's queue (spec §6 "allow_merge(rq, bio)").
func (r *Root) AllowMerge(ioCtx iface.IOContext, sector uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.ioCtxQueues[ioCtx]
	if !ok {
		return false
	}
	n, alive := r.nodes.Get(h)
	if !alive || n.kind != entity.KindQueue {
		return false
	}
	return n.q.AllowMerge(sector)
}

// Requeue puts a previously dispatched request back at the head of its
// producer queue (spec §6 "requeue(rq)").
func (r *Root) Requeue(ioCtx iface.IOContext, rq *iface.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, q := r.getOrCreateQueue(ioCtx, rq.Sync)
	q.AddRequest(rq, r.lastPosition, r.cfg.BackMax, r.cfg.BackPenalty)
	r.requestOwner[rq.ID] = h
}

// FormerRequest returns the request immediately preceding rq by sector
// within its own queue (spec §6 "former_request(rq)").
func (r *Root) FormerRequest(rq *iface.Request) *iface.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.requestOwner[rq.ID]
	if !ok {
		return nil
	}
	n, alive := r.nodes.Get(h)
	if !alive || n.kind != entity.KindQueue {
		return nil
	}
	return n.q.FormerRequest(rq)
}

// LatterRequest returns the request immediately following rq by sector
// (spec §6 "latter_request(rq)").
func (r *Root) LatterRequest(rq *iface.Request) *iface.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.requestOwner[rq.ID]
	if !ok {
		return nil
	}
	n, alive := r.nodes.Get(h)
	if !alive || n.kind != entity.KindQueue {
		return nil
	}
	return n.q.LatterRequest(rq)
}

// CreateGroup allocates a non-leaf scheduling node (spec §4.2's
// hierarchy): a group of the given weight, parented under parent
// (entity.NoParent for a direct child of the root level), with its own
// nested Scheduler. Not part of the §6 elevator contract itself — hosts
// that want hierarchy build it with this before routing SetRequestInGroup
// calls to it.
func (r *Root) CreateGroup(weight uint64, parent entity.Handle) entity.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextQueueID++
	g := NewGroup(r.nextQueueID, weight, parent)
	return r.nodes.Alloc(&node{kind: entity.KindGroup, g: g})
}

// SetRequestInGroup is SetRequest for a producer whose queue should live
// under group rather than directly beneath the root level.
func (r *Root) SetRequestInGroup(ioCtx iface.IOContext, sync bool, group entity.Handle) *queue.Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.ioCtxQueues[ioCtx]; ok {
		if n, alive := r.nodes.Get(h); alive {
			return n.q
		}
	}
	r.nextQueueID++
	q := queue.New(r.nextQueueID, ioCtx, ioCtx.Weight(), sync, group)
	h := r.nodes.Alloc(&node{kind: entity.KindQueue, q: q})
	r.ioCtxQueues[ioCtx] = h
	return q
}
