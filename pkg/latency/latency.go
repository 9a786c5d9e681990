// Package latency implements the weight-raising, burst-detection, and
// soft-real-time heuristics of spec §4.5: the triggers that temporarily
// boost a queue's effective weight to protect interactive and soft-RT
// workloads, and the burst-suppression rule that disables raising for
// queues that arrived as part of a thundering herd.
package latency

import (
	"time"

	"github.com/cuemby/bfqsched/pkg/config"
	"github.com/cuemby/bfqsched/pkg/entity"
	"github.com/cuemby/bfqsched/pkg/peakrate"
	"github.com/cuemby/bfqsched/pkg/queue"
	"github.com/cuemby/bfqsched/pkg/rbtree"
)

// SoftRTMaxDuration is the fixed soft-RT weight-raising cap (spec §4.5:
// "fixed soft-RT cap"). Unlike the other trigger parameters this one has no
// §6 tunables-table entry, so it stays a package constant.
const SoftRTMaxDuration = 2 * time.Second

// burstMember records one queue's provisional membership in the
// transient burst-coalescing list.
type burstMember struct {
	q       *queue.Queue
	joinedAt time.Time
}

// Heuristics owns the burst-coalescing list and the symmetric-scenario
// predicate's weight-counter view, and decides when to raise or lower a
// queue's weight.
type Heuristics struct {
	LowLatency bool // master switch: spec §4.4's low-latency tunable gates every WR call site

	cfg        *config.Tunables
	burst      []burstMember
	weightTree *rbtree.WeightCounterTree
}

// New constructs Heuristics backed by the scheduler's weight-counter tree
// (tracking distinct active weights for the symmetric-scenario check) and
// reading its trigger thresholds from cfg (spec §6 tunables table).
func New(cfg *config.Tunables, weightTree *rbtree.WeightCounterTree) *Heuristics {
	return &Heuristics{LowLatency: cfg.LowLatency, cfg: cfg, weightTree: weightTree}
}

// SymmetricScenario reports whether every tracked active entity shares
// the same weight — the condition under which the idle window brings no
// fairness benefit and so is skipped (spec §3, §4.4 "symmetric-scenario
// predicate"). With no weight-counter tree it reports true.
func (h *Heuristics) SymmetricScenario() bool {
	if h.weightTree == nil {
		return true
	}
	return h.weightTree.Symmetric()
}

// MarkBurstArrival records q transitioning idle→busy at now, folding it
// into the transient burst list. Returns true if this arrival completed a
// large burst, in which case every member's InLargeBurst flag is set and
// the list is discarded. A queue arriving after that starts a new list:
// it is not marked as a member of the burst just declared.
func (h *Heuristics) MarkBurstArrival(q *queue.Queue, now time.Time) bool {
	if len(h.burst) > 0 {
		last := h.burst[len(h.burst)-1]
		if now.Sub(last.joinedAt) > h.cfg.BurstInterval {
			h.burst = h.burst[:0]
		}
	}
	h.burst = append(h.burst, burstMember{q: q, joinedAt: now})

	if len(h.burst) < h.cfg.LargeBurstThresh {
		return false
	}
	for _, m := range h.burst {
		m.q.InLargeBurst = true
		m.q.EndWeightRaise()
	}
	h.burst = h.burst[:0]
	return true
}

// MaybeRaiseInteractive applies the interactive weight-raising trigger:
// q has just gone idle→busy after being idle at least WRMinIdleTime, is
// not part of a large burst, and low-latency heuristics are enabled.
func (h *Heuristics) MaybeRaiseInteractive(q *queue.Queue, idleDuration time.Duration, now time.Time, pr *peakrate.Estimator) bool {
	if !h.LowLatency || q.InLargeBurst {
		return false
	}
	if idleDuration < h.cfg.WRMinIdleTime {
		return false
	}
	dur := SoftRTMaxDuration
	if pr != nil {
		dur = pr.WRDuration()
	}
	q.BeginWeightRaise(h.cfg.WRCoeff, now, dur)
	return true
}

// MaybeRaiseSoftRT applies the soft-real-time trigger: q transitioned
// empty→backlogged and the gap since its last completion exceeds the
// predicted next honest arrival (spec §4.5, §4.6's soft_rt_next_start).
func (h *Heuristics) MaybeRaiseSoftRT(q *queue.Queue, now time.Time) bool {
	if !h.LowLatency || q.InLargeBurst {
		return false
	}
	if q.SoftRTNextStart.IsZero() || now.Before(q.SoftRTNextStart) {
		return false
	}
	if !q.LooksInteractive() {
		return false
	}
	q.BeginWeightRaise(h.cfg.WRCoeff, now, SoftRTMaxDuration)
	return true
}

// UpdateSoftRTNextStart recomputes q's predicted earliest honest
// re-trigger at expiry: now + service_from_backlogged/weight (spec
// §4.5's soft-RT classification rule).
func UpdateSoftRTNextStart(q *queue.Queue, now time.Time, servedSectors uint64) {
	w := q.EffectiveWeight()
	if w == 0 {
		q.SoftRTNextStart = now
		return
	}
	delta := entity.ServiceDelta(servedSectors, w)
	q.SoftRTNextStart = now.Add(time.Duration(delta) * time.Microsecond)
}

// DeflateReason identifies which expiration path triggered MaybeDeflate,
// since running the whole budget dry is a stronger signal of a queue no
// longer deserving its weight boost than being cut off by the activation
// timeout is.
type DeflateReason int

const (
	// DeflateBudgetExhausted means the queue ran its entire budget without
	// emptying: halve wr_coeff immediately, since a soft-RT or interactive
	// producer should rarely need its full budget.
	DeflateBudgetExhausted DeflateReason = iota
	// DeflateTimeout means the queue's activation hit its budget_timeout
	// before the producer emptied the queue or exhausted its budget;
	// deflate by a quarter, more gently than on a budget exhaustion.
	DeflateTimeout
)

// MaybeDeflate decays q's weight-raising boost on the expiration paths
// that did not end in the producer emptying its own queue (spec §4.5's
// weight-raising is meant to protect genuinely interactive/soft-RT
// producers; one that keeps exhausting its budget or timing out is
// behaving like a throughput-bound one and loses the boost accordingly).
func (h *Heuristics) MaybeDeflate(q *queue.Queue, reason DeflateReason) {
	if !q.IsWeightRaised() {
		return
	}
	switch reason {
	case DeflateBudgetExhausted:
		q.WRCoeff /= 2
	case DeflateTimeout:
		q.WRCoeff -= q.WRCoeff >> 2
	}
	if q.WRCoeff <= 1 {
		q.EndWeightRaise()
	}
}

// MaybeEndWeightRaise retires q's weight-raising period once it has
// expired, the queue joined a large burst, or it no longer looks
// interactive/soft-RT.
func MaybeEndWeightRaise(q *queue.Queue, now time.Time) {
	if !q.IsWeightRaised() {
		return
	}
	if q.InLargeBurst || q.WeightRaiseExpired(now) {
		q.EndWeightRaise()
	}
}
