// Package entity implements the schedulable node shared by leaf queues and
// groups (spec §3): virtual-time timestamps, weight raising, and the
// fixed-point virtual-time arithmetic used by the service tree.
package entity

import (
	"time"

	"github.com/cuemby/bfqsched/pkg/arena"
	"github.com/cuemby/bfqsched/pkg/iface"
	"github.com/cuemby/bfqsched/pkg/rbtree"
)

// VTimeShift is the fixed-point shift used for virtual time and service
// rate arithmetic throughout the scheduler core (spec §9: "pick integer
// widths that do not overflow for realistic service totals"). A uint64
// with a 16-bit fractional part comfortably covers a device serving at
// gigabyte-per-second rates for years before wrapping.
const VTimeShift = 16

// VTime is a fixed-point virtual-time value (spec §4.1). Arithmetic is
// plain unsigned addition/subtraction; overflow is not expected within a
// scheduler's operational lifetime at realistic service rates.
type VTime uint64

// ServiceDelta converts served sectors into the virtual-time advance
// `s / Σ(active weights)` from §4.1. A zero weight sum leaves V unchanged.
func ServiceDelta(servedSectors, sumWeights uint64) VTime {
	if sumWeights == 0 {
		return 0
	}
	return VTime((servedSectors << VTimeShift) / sumWeights)
}

// Kind tags which variant an Entity is (spec §3, §9 "Polymorphism over
// {leaf queue, group}" — encoded as a tagged field, dispatched on at the
// point of descent rather than via an interface hierarchy).
type Kind int

const (
	KindQueue Kind = iota
	KindGroup
)

// TreeState records which service tree, if any, currently holds the
// entity (spec §3 invariant: "An entity is present in exactly one of
// {active tree, idle tree, off-tree in_service, detached}").
type TreeState int

const (
	OnNone TreeState = iota
	OnActive
	OnIdle
	InService
)

// Handle is a non-owning arena index (spec §9): entities refer to their
// parent scheduler and to weight-counter trees only through handles like
// this one, never through owning pointers, breaking the cyclic
// back-reference graph the source expresses via embedded list/tree nodes.
type Handle = arena.Handle

// NoParent is the sentinel Handle used by the root group, which has no
// parent scheduler.
const NoParent Handle = ^Handle(0)

// Entity is a schedulable node: a leaf queue or a group (spec §3).
type Entity struct {
	Kind Kind

	// Class is the entity's effective I/O priority class (spec.md's §4.4
	// point 4 priority trigger): set once from the producer's IOContext
	// for a queue, and kept in sync with the highest-priority class among
	// currently active descendants for a group, so the selection walk can
	// prefer RT over BE over Idle at every hierarchy level.
	Class iface.IOClass

	Weight   uint64
	WRCoeff  uint64 // >= 1; effective weight is Weight * WRCoeff
	WRStart  time.Time
	WRCurMax time.Duration

	Budget      uint64 // sectors remaining in the current activation
	lastBudget  uint64 // budget of the most recently completed activation
	Start       VTime
	Finish      VTime
	MinStart    VTime
	OnTree      TreeState
	Parent      Handle // non-owning; NoParent for the root group
	WeightOwner uintptr

	// ActiveNode is the service-tree node currently holding this entity,
	// valid only while OnTree == OnActive. Caching it here turns
	// removeActive's node lookup into a direct pointer use instead of a
	// linear tree scan.
	ActiveNode *rbtree.Node[Handle]
}

// New constructs an Entity at its initial (never-activated) state.
func New(kind Kind, weight uint64, parent Handle) *Entity {
	return &Entity{
		Kind:    kind,
		Class:   iface.ClassBE,
		Weight:  weight,
		WRCoeff: 1,
		Parent:  parent,
		OnTree:  OnNone,
	}
}

// EffectiveWeight is Weight * WRCoeff (spec §3: "when > 1 the effective
// weight is weight * wr_coeff").
func (e *Entity) EffectiveWeight() uint64 {
	return e.Weight * e.WRCoeff
}

// IsWeightRaised reports whether a weight-raising boost is currently active.
func (e *Entity) IsWeightRaised() bool {
	return e.WRCoeff > 1
}

// computeFinish derives Finish from the current Start and Budget
// (spec §4.1: "finish = start + budget / effective_weight").
func (e *Entity) computeFinish() VTime {
	w := e.EffectiveWeight()
	if w == 0 {
		return e.Start
	}
	return e.Start + VTime((e.Budget<<VTimeShift)/w)
}

// Activate places the entity at eligibility time e relative to virtual
// time v (spec §4.1: "start = max(e, V)"), deriving Finish from the
// current Budget. Call this the first time an entity becomes busy, or
// whenever its budget is freshly assigned before (re)insertion.
func (e *Entity) Activate(eligible, v VTime) {
	e.Start = eligible
	if v > e.Start {
		e.Start = v
	}
	e.Finish = e.computeFinish()
	e.MinStart = e.Start
}

// Reactivate re-derives Start/Finish for an entity that is rejoining the
// active tree before being garbage-collected from the idle tree (spec
// §4.1: "re-eligibility is computed from the retained finish vs. current
// V, taking the max... stale timestamps from a prior activation are
// discarded if the gap to V exceeds its last budget").
func (e *Entity) Reactivate(v VTime) {
	gap := VTime(0)
	if v > e.Finish {
		gap = v - e.Finish
	}
	threshold := VTime(e.lastBudget << VTimeShift)
	if gap > threshold {
		// Too far behind: the retained finish is stale, re-baseline from V.
		e.Start = v
	} else if v > e.Finish {
		e.Start = v
	} else {
		e.Start = e.Finish
	}
	e.Finish = e.computeFinish()
	e.MinStart = e.Start
}

// LastBudget returns the budget consumed by the entity's most recently
// completed activation, used by the idle-tree garbage collector's
// staleness check (spec §4.1).
func (e *Entity) LastBudget() uint64 {
	return e.lastBudget
}

// CompleteActivation records the budget actually consumed this activation,
// for Reactivate's staleness check the next time this entity empties and
// refills.
func (e *Entity) CompleteActivation(consumedBudget uint64) {
	e.lastBudget = consumedBudget
}

// BeginWeightRaise starts (or refreshes) a weight-raising period.
func (e *Entity) BeginWeightRaise(coeff uint64, start time.Time, dur time.Duration) {
	e.WRCoeff = coeff
	e.WRStart = start
	e.WRCurMax = dur
}

// EndWeightRaise ends any active weight-raising period.
func (e *Entity) EndWeightRaise() {
	e.WRCoeff = 1
}

// WeightRaiseExpired reports whether now is past the end of the current
// weight-raising window.
func (e *Entity) WeightRaiseExpired(now time.Time) bool {
	if e.WRCoeff <= 1 {
		return false
	}
	return now.Sub(e.WRStart) >= e.WRCurMax
}
