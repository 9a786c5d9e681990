package scheduler

import (
	"github.com/cuemby/bfqsched/pkg/arena"
	"github.com/cuemby/bfqsched/pkg/entity"
	"github.com/cuemby/bfqsched/pkg/iface"
	"github.com/cuemby/bfqsched/pkg/rbtree"
)

// Scheduler is one B-WF2Q+ instance: the per-level active/idle service
// trees, virtual time, and in-service pointer described in spec §4.1-4.2.
// The root level and every Group each own exactly one Scheduler.
//
// active is partitioned one tree per IOClass (keyed by Finish, augmented
// by Start) rather than a single shared tree, so selectEligible can
// enforce "real-time over best-effort over idle class" (spec.md's §4.4
// point 4 priority rule) by simply trying the RT partition before BE
// before Idle, instead of comparing classes inline against finish order.
type Scheduler struct {
	active [3]rbtree.Tree[arena.Handle]
	idle   map[arena.Handle]struct{}

	v         entity.VTime
	sumWeight uint64

	inService    arena.Handle
	hasInService bool
}

func newScheduler() *Scheduler {
	return &Scheduler{idle: make(map[arena.Handle]struct{})}
}

// insertActive links h's entity into its class's active tree at its
// current Start/Finish (already computed by Activate/Reactivate), caches
// the resulting node on the entity for O(log N) removal, and folds its
// effective weight into the level's sum.
func (s *Scheduler) insertActive(h arena.Handle, e *entity.Entity) {
	delete(s.idle, h)
	e.OnTree = entity.OnActive
	e.ActiveNode = s.active[e.Class].Insert(uint64(e.Finish), uint64(e.Start), h)
	s.sumWeight += e.EffectiveWeight()
}

// removeActive unlinks h's entity from wherever it currently is (active
// or idle), reversing insertActive's weight bookkeeping if it was active.
func (s *Scheduler) removeActive(h arena.Handle, e *entity.Entity) {
	switch e.OnTree {
	case entity.OnActive:
		if e.ActiveNode != nil {
			s.active[e.Class].Delete(e.ActiveNode)
			e.ActiveNode = nil
		}
		if s.sumWeight > e.EffectiveWeight() {
			s.sumWeight -= e.EffectiveWeight()
		} else {
			s.sumWeight = 0
		}
	case entity.OnIdle:
		delete(s.idle, h)
	}
	e.OnTree = entity.OnNone
}

// reclassify re-homes an already-active entity into a different
// priority-class partition without disturbing its Start/Finish
// timestamps, for a group whose effective class shifts as descendants
// of differing priority join or leave.
func (s *Scheduler) reclassify(h arena.Handle, e *entity.Entity, newClass iface.IOClass) {
	if e.OnTree == entity.OnActive && e.ActiveNode != nil {
		s.active[e.Class].Delete(e.ActiveNode)
		e.ActiveNode = s.active[newClass].Insert(uint64(e.Finish), uint64(e.Start), h)
	}
	e.Class = newClass
}

// moveToIdle parks h's entity in the idle tree, to be reactivated later
// or garbage-collected once it falls too far behind V (spec §4.1).
func (s *Scheduler) moveToIdle(h arena.Handle, e *entity.Entity) {
	s.removeActive(h, e)
	e.OnTree = entity.OnIdle
	s.idle[h] = struct{}{}
}

// selectEligible returns the handle of the eligible entity with minimum
// finish at this level (spec §4.1's B-WF2Q+ selection rule), or false if
// nothing is eligible. Classes are tried in priority order — an eligible
// RT entity always wins over BE or Idle regardless of relative finish
// times, matching spec.md's §4.4 point 4 priority rule — and only within
// a class does the usual min-finish-among-eligible tie-break apply.
func (s *Scheduler) selectEligible() (arena.Handle, bool) {
	for class := iface.ClassRT; class <= iface.ClassIdle; class++ {
		if n := s.active[class].EligibleMinFinish(uint64(s.v)); n != nil {
			return n.Value, true
		}
	}
	return 0, false
}

// gcIdle drops any idle-tree member whose Finish lags V by more than its
// last recorded budget, per spec §4.1 ("entities fully behind V by more
// than a threshold are dropped from the idle tree").
func (s *Scheduler) gcIdle(resolve func(arena.Handle) (*entity.Entity, uint64)) {
	for h := range s.idle {
		e, lastBudget := resolve(h)
		if e == nil {
			delete(s.idle, h)
			continue
		}
		if uint64(s.v) > uint64(e.Finish) && uint64(s.v)-uint64(e.Finish) > lastBudget<<entity.VTimeShift {
			delete(s.idle, h)
			e.OnTree = entity.OnNone
		}
	}
}
