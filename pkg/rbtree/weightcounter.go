package rbtree

// WeightCounter is the payload of the weight-counter trees (spec §3): an
// auxiliary structure, keyed by weight, used solely to answer the
// symmetric-scenario predicate ("are all active weights effectively
// uniform?"). Track/Untrack are idempotent per the spec's explicit
// resolution of the Open Question on double-counting (§9).
type WeightCounter struct {
	Weight    uint64
	NumActive int
	node      *Node[*WeightCounter]
}

// WeightCounterTree tracks reference counts per distinct active weight.
type WeightCounterTree struct {
	tree    Tree[*WeightCounter]
	byWeigh map[uint64]*WeightCounter
	tracked map[uint64]map[uintptr]struct{}
}

// NewWeightCounterTree creates an empty weight-counter tree.
func NewWeightCounterTree() *WeightCounterTree {
	return &WeightCounterTree{
		byWeigh: make(map[uint64]*WeightCounter),
		tracked: make(map[uint64]map[uintptr]struct{}),
	}
}

// Track records that the entity identified by id (any stable, comparable
// handle the caller already owns) is active with the given weight.
// Calling Track twice for the same id without an intervening Untrack is a
// no-op — the operation is defined as idempotent (spec §9 Open Question).
func (wct *WeightCounterTree) Track(id uintptr, weight uint64) {
	members, ok := wct.tracked[weight]
	if ok {
		if _, already := members[id]; already {
			return
		}
	} else {
		members = make(map[uintptr]struct{})
		wct.tracked[weight] = members
	}
	members[id] = struct{}{}

	if wc := wct.byWeigh[weight]; wc != nil {
		wc.NumActive++
		return
	}
	wc := &WeightCounter{Weight: weight, NumActive: 1}
	wc.node = wct.tree.Insert(weight, weight, wc)
	wct.byWeigh[weight] = wc
}

// Untrack removes id's membership at weight. A second Untrack for an id
// already removed (or never tracked) is a no-op.
func (wct *WeightCounterTree) Untrack(id uintptr, weight uint64) {
	members, ok := wct.tracked[weight]
	if !ok {
		return
	}
	if _, present := members[id]; !present {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(wct.tracked, weight)
	}

	wc := wct.byWeigh[weight]
	if wc == nil {
		return
	}
	wc.NumActive--
	if wc.NumActive <= 0 {
		wct.tree.Delete(wc.node)
		delete(wct.byWeigh, weight)
	}
}

// DistinctWeights reports the number of distinct weights currently tracked
// as active — the weight-counter tree's node count (spec §8 invariant).
func (wct *WeightCounterTree) DistinctWeights() int {
	return wct.tree.Len()
}

// Symmetric reports whether every tracked weight is the same (the
// symmetric-scenario predicate's weight component, spec glossary).
func (wct *WeightCounterTree) Symmetric() bool {
	return wct.tree.Len() <= 1
}
