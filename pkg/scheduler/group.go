package scheduler

import (
	"github.com/cuemby/bfqsched/pkg/entity"
	"github.com/cuemby/bfqsched/pkg/iface"
)

// Group is the non-leaf Entity variant: a scheduling node that owns a
// nested Scheduler instead of pending requests (spec §4.2 hierarchical
// descent, §9 "polymorphism over {leaf queue, group}").
type Group struct {
	*entity.Entity

	ID        uint64
	Scheduler *Scheduler

	// ActiveChildren counts descendants currently busy (active or
	// in-service somewhere below this group), so the group itself can be
	// inserted into its own parent's active tree on a 0→1 edge and parked
	// idle again on a 1→0 edge.
	ActiveChildren int

	// classCounts tracks, per IOClass, how many currently active
	// descendants (bubbled up through every intermediate group) carry
	// that class, so the group's own effective Class always reflects the
	// highest-priority class present anywhere below it (spec.md's
	// "prefer non-empty RT groups over BE over Idle at every level").
	classCounts [3]int
}

// NewGroup constructs an empty group of the given weight, parented under
// parent (entity.NoParent for a direct child of the root level).
func NewGroup(id uint64, weight uint64, parent entity.Handle) *Group {
	return &Group{
		Entity:    entity.New(entity.KindGroup, weight, parent),
		ID:        id,
		Scheduler: newScheduler(),
	}
}

// dominantClass returns the highest-priority class with at least one
// active descendant, or ClassBE if none are currently active.
func (g *Group) dominantClass() iface.IOClass {
	for class := iface.ClassRT; class <= iface.ClassIdle; class++ {
		if g.classCounts[class] > 0 {
			return class
		}
	}
	return iface.ClassBE
}
