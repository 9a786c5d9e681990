// Package queue implements the per-producer request queue (spec §3, §4.3):
// a sector-ordered request set with a next-request chooser, an
// arrival-ordered FIFO set for expiry, and the per-activation state
// machine from §4.6.
package queue

import (
	"time"

	"github.com/cuemby/bfqsched/pkg/entity"
	"github.com/cuemby/bfqsched/pkg/iface"
	"github.com/cuemby/bfqsched/pkg/rbtree"
	"github.com/google/btree"
)

// ActivationState is the per-queue-activation state machine from §4.6.
type ActivationState int

const (
	StateIdle ActivationState = iota
	StateBusyNotInService
	StateInService
	StateIdling
	StateExpired
)

const (
	seekEWMAShift = 3 // matches the original source's shift-based smoothing idiom
	ttimeEWMAShift = 3
)

type arrivalEntry struct {
	seq uint64
	req *iface.Request
}

func arrivalLess(a, b arrivalEntry) bool {
	return a.seq < b.seq
}

// Queue is one producer's pending-request set plus its scheduling entity.
type Queue struct {
	*entity.Entity

	ID    uint64
	IOCtx iface.IOContext

	sectors   rbtree.Tree[*iface.Request]
	bySector  map[uint64]*rbtree.Node[*iface.Request]
	arrival   *btree.BTreeG[arrivalEntry]
	arrivalSeq uint64

	NextRQ *iface.Request

	QueuedSync  int
	QueuedAsync int

	Busy         bool
	Sync         bool
	IOBound      bool
	InLargeBurst bool
	SoftRTUpdate bool
	WaitRequest  bool

	SeekMean        uint64
	TTimeMean       uint64
	haveSeekSample  bool
	haveTTimeSample bool
	lastCompletion  time.Time

	SoftRTNextStart time.Time
	BudgetTimeout   time.Time

	ActivationStart    time.Time
	ServedSectors      uint64
	LastDeactivatedAt  time.Time

	State ActivationState
}

// New creates an empty queue for the given producer context.
func New(id uint64, ioCtx iface.IOContext, weight uint64, sync bool, parent entity.Handle) *Queue {
	e := entity.New(entity.KindQueue, weight, parent)
	e.Class = ioCtx.Class()
	return &Queue{
		Entity:  e,
		ID:      id,
		IOCtx:   ioCtx,
		Sync:    sync,
		IOBound: true,
		bySector: make(map[uint64]*rbtree.Node[*iface.Request]),
		arrival:  btree.NewG(32, arrivalLess),
		State:   StateIdle,
	}
}

// Len reports the number of pending requests.
func (q *Queue) Len() int {
	return q.sectors.Len()
}

// AddRequest inserts rq into the sector set and the arrival FIFO, updates
// the sync/async count, marks the queue busy, and refreshes NextRQ.
func (q *Queue) AddRequest(rq *iface.Request, lastPosition uint64, backMax, backPenalty uint64) {
	n := q.sectors.Insert(rq.Sector, rq.Sector, rq)
	q.bySector[rq.ID] = n
	q.arrivalSeq++
	q.arrival.ReplaceOrInsert(arrivalEntry{seq: q.arrivalSeq, req: rq})

	if rq.Sync {
		q.QueuedSync++
	} else {
		q.QueuedAsync++
	}
	q.Busy = true

	q.refreshNextRQ(lastPosition, backMax, backPenalty)
}

// RemoveRequest removes rq (already dispatched or merged away) from both
// sets and updates counts.
func (q *Queue) RemoveRequest(rq *iface.Request) {
	if n, ok := q.bySector[rq.ID]; ok {
		q.sectors.Delete(n)
		delete(q.bySector, rq.ID)
	}
	// The FIFO set is keyed by arrival sequence, which we don't retain per
	// request id; a linear-time cleanup here is acceptable since requeue/
	// dispatch only ever removes the single oldest or the chosen next_rq,
	// not an arbitrary request mid-set.
	q.arrival.Ascend(func(e arrivalEntry) bool {
		if e.req.ID == rq.ID {
			q.arrival.Delete(e)
			return false
		}
		return true
	})

	if rq.Sync {
		q.QueuedSync--
	} else {
		q.QueuedAsync--
	}
	if q.Len() == 0 {
		q.Busy = false
		q.NextRQ = nil
	}
}

// OldestArrival returns the queue's oldest pending request (FIFO order),
// used to force the expiry-driven "oldest request of an expired FIFO is
// picked next" rule (spec §5 ordering guarantees).
func (q *Queue) OldestArrival() *iface.Request {
	var out *iface.Request
	q.arrival.Ascend(func(e arrivalEntry) bool {
		out = e.req
		return false
	})
	return out
}

// EnforceFIFOExpiry overrides NextRQ with the oldest pending request once
// it has waited at least expire since arrival, per the ordering guarantee
// that an expired FIFO's oldest request is served next regardless of seek
// distance (spec §5). expire is chosen by the oldest request's own
// sync/async class, not the queue's.
func (q *Queue) EnforceFIFOExpiry(now time.Time, syncExpire, asyncExpire time.Duration) {
	oldest := q.OldestArrival()
	if oldest == nil || oldest.ArrivalTime.IsZero() {
		return
	}
	expire := asyncExpire
	if oldest.Sync {
		expire = syncExpire
	}
	if expire <= 0 {
		return
	}
	if now.Sub(oldest.ArrivalTime) >= expire {
		q.NextRQ = oldest
	}
}

// refreshNextRQ recomputes NextRQ per the §4.3 chooser. Called on every
// arrival and after every dispatch.
func (q *Queue) refreshNextRQ(lastPosition, backMax, backPenalty uint64) {
	if q.Len() == 0 {
		q.NextRQ = nil
		return
	}

	var succ, pred *iface.Request
	q.sectors.Walk(func(n *rbtree.Node[*iface.Request]) {
		if n.Key >= lastPosition && succ == nil {
			succ = n.Value
		}
		if n.Key < lastPosition {
			pred = n.Value
		}
	})
	if succ == nil {
		// Every pending sector lies behind the head: wrap forward to the
		// smallest sector in the set rather than leave no forward candidate.
		if min := q.sectors.Min(); min != nil {
			succ = min.Value
		}
	}
	// If pred is nil, every pending sector lies at or ahead of the head;
	// there is no genuine backward candidate to weigh against succ.

	q.NextRQ = chooseRequest(succ, pred, lastPosition, backMax, backPenalty)
}

// RefreshNextRQ is the exported form of refreshNextRQ, called by the
// controller after a dispatch changes last_position.
func (q *Queue) RefreshNextRQ(lastPosition, backMax, backPenalty uint64) {
	q.refreshNextRQ(lastPosition, backMax, backPenalty)
}

// FormerRequest returns the request immediately preceding rq by sector,
// for the block layer's merge adjacency lookup (§6).
func (q *Queue) FormerRequest(rq *iface.Request) *iface.Request {
	n, ok := q.bySector[rq.ID]
	if !ok {
		return nil
	}
	p := rbtree.Predecessor(n)
	if p == nil {
		return nil
	}
	return p.Value
}

// LatterRequest returns the request immediately following rq by sector.
func (q *Queue) LatterRequest(rq *iface.Request) *iface.Request {
	n, ok := q.bySector[rq.ID]
	if !ok {
		return nil
	}
	s := rbtree.Successor(n)
	if s == nil {
		return nil
	}
	return s.Value
}

// AllowMerge reports whether a bio landing at sector may be merged into
// an existing request in this queue — true when the sector is adjacent
// to some pending request's range.
func (q *Queue) AllowMerge(sector uint64) bool {
	allow := false
	q.sectors.Walk(func(n *rbtree.Node[*iface.Request]) {
		rq := n.Value
		if sector == rq.EndSector() || sector+1 == rq.Sector {
			allow = true
		}
	})
	return allow
}

// Merged folds "into" having absorbed rq: rq is removed from the sector
// set (its sectors are now represented by "into").
func (q *Queue) Merged(rq *iface.Request) {
	q.RemoveRequest(rq)
}

// UpdateSeekMean folds one observed seek distance into the EWMA.
func (q *Queue) UpdateSeekMean(distance uint64) {
	if !q.haveSeekSample {
		q.SeekMean = distance
		q.haveSeekSample = true
		return
	}
	q.SeekMean = q.SeekMean - (q.SeekMean >> seekEWMAShift) + (distance >> seekEWMAShift)
}

// UpdateThinkTime folds one observed think-time gap (ms) into the EWMA.
func (q *Queue) UpdateThinkTime(gapMillis uint64) {
	if !q.haveTTimeSample {
		q.TTimeMean = gapMillis
		q.haveTTimeSample = true
		return
	}
	q.TTimeMean = q.TTimeMean - (q.TTimeMean >> ttimeEWMAShift) + (gapMillis >> ttimeEWMAShift)
}

// Seeky reports whether the queue's mean seek distance exceeds the
// original source's BFQQ_SEEK_THR.
func (q *Queue) Seeky() bool {
	return q.SeekMean > seekThreshold
}

// LooksInteractive reports whether the queue's recent think-time and seek
// behavior is consistent with an interactive producer: a bounded think
// time (not purely CPU/seek-bound) and a non-seeky access pattern.
func (q *Queue) LooksInteractive() bool {
	return q.TTimeMean > thinkTimeThreshold && !q.Seeky()
}

// RecordCompletion updates think-time bookkeeping at request completion
// and returns the gap since the previous completion (zero for the first
// completion). The think-time EWMA itself is fed in whole milliseconds.
func (q *Queue) RecordCompletion(now time.Time) time.Duration {
	var gap time.Duration
	if !q.lastCompletion.IsZero() {
		gap = now.Sub(q.lastCompletion)
		q.UpdateThinkTime(uint64(gap.Milliseconds()))
	}
	q.lastCompletion = now
	return gap
}
