// Package rbtree implements the augmented red-black tree used by the
// service tree (spec §3, §4.1): a tree keyed by a uint64 (finish time,
// sector, or weight depending on the instantiation) where every node also
// carries a "start" value, and every subtree caches the minimum start over
// its own nodes. That augmentation lets EligibleMinFinish answer "smallest
// key among nodes whose start is <= v" in O(log N) instead of scanning.
//
// Instantiations that do not need the augmentation (the weight-counter
// trees, the per-queue sector index) simply pass start == key and never
// call EligibleMinFinish; the extra field costs nothing they care about.
package rbtree

import "math"

const maxStart = math.MaxUint64

type color bool

const (
	red   color = true
	black color = false
)

// Node is one tree node. Fields are exported read-only state for callers
// that need to inspect Key/Start (e.g. neighbor lookups for merge
// adjacency); callers must never mutate Key or Start directly.
type Node[V any] struct {
	left, right, parent *Node[V]
	c                    color
	Key                  uint64
	Start                uint64
	minStart             uint64
	Value                V
}

// Tree is an augmented red-black tree. The zero value is an empty tree.
type Tree[V any] struct {
	root *Node[V]
	size int
}

// Len reports the number of nodes currently in the tree.
func (t *Tree[V]) Len() int { return t.size }

func minStartOf[V any](n *Node[V]) uint64 {
	if n == nil {
		return maxStart
	}
	return n.minStart
}

func (n *Node[V]) updateAgg() {
	m := n.Start
	if l := minStartOf(n.left); l < m {
		m = l
	}
	if r := minStartOf(n.right); r < m {
		m = r
	}
	n.minStart = m
}

// Min returns the node with the smallest key, or nil if the tree is empty.
func (t *Tree[V]) Min() *Node[V] {
	n := t.root
	if n == nil {
		return nil
	}
	for n.left != nil {
		n = n.left
	}
	return n
}

// Max returns the node with the largest key, or nil if the tree is empty.
func (t *Tree[V]) Max() *Node[V] {
	n := t.root
	if n == nil {
		return nil
	}
	for n.right != nil {
		n = n.right
	}
	return n
}

// Successor returns the node whose key immediately follows n's in key
// order, or nil if n has the largest key.
func Successor[V any](n *Node[V]) *Node[V] {
	if n == nil {
		return nil
	}
	if n.right != nil {
		m := n.right
		for m.left != nil {
			m = m.left
		}
		return m
	}
	p := n.parent
	for p != nil && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

// Predecessor returns the node whose key immediately precedes n's in key
// order, or nil if n has the smallest key.
func Predecessor[V any](n *Node[V]) *Node[V] {
	if n == nil {
		return nil
	}
	if n.left != nil {
		m := n.left
		for m.right != nil {
			m = m.right
		}
		return m
	}
	p := n.parent
	for p != nil && n == p.left {
		n = p
		p = p.parent
	}
	return p
}

func (t *Tree[V]) rotateLeft(x *Node[V]) {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		t.root = y
	} else if x == x.parent.left {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
	x.updateAgg()
	y.updateAgg()
}

func (t *Tree[V]) rotateRight(x *Node[V]) {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		t.root = y
	} else if x == x.parent.right {
		x.parent.right = y
	} else {
		x.parent.left = y
	}
	y.right = x
	x.parent = y
	x.updateAgg()
	y.updateAgg()
}

// Insert adds a new node keyed by key, aggregated by start, carrying value.
// Duplicate keys are permitted (ties broken by insertion order, new node
// placed to the right of equal keys) since several entities may share a
// finish time or weight.
func (t *Tree[V]) Insert(key, start uint64, value V) *Node[V] {
	n := &Node[V]{Key: key, Start: start, minStart: start, c: red}

	var parent *Node[V]
	cur := t.root
	for cur != nil {
		parent = cur
		if key < cur.Key {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}
	n.parent = parent
	if parent == nil {
		t.root = n
	} else if key < parent.Key {
		parent.left = n
	} else {
		parent.right = n
	}
	n.Value = value
	t.size++

	for p := n.parent; p != nil; p = p.parent {
		p.updateAgg()
	}

	t.insertFixup(n)
	return n
}

func (t *Tree[V]) insertFixup(z *Node[V]) {
	for z.parent != nil && z.parent.c == red {
		gp := z.parent.parent
		if gp == nil {
			break
		}
		if z.parent == gp.left {
			uncle := gp.right
			if uncle != nil && uncle.c == red {
				z.parent.c = black
				uncle.c = black
				gp.c = red
				z = gp
				continue
			}
			if z == z.parent.right {
				z = z.parent
				t.rotateLeft(z)
			}
			z.parent.c = black
			gp.c = red
			t.rotateRight(gp)
		} else {
			uncle := gp.left
			if uncle != nil && uncle.c == red {
				z.parent.c = black
				uncle.c = black
				gp.c = red
				z = gp
				continue
			}
			if z == z.parent.left {
				z = z.parent
				t.rotateRight(z)
			}
			z.parent.c = black
			gp.c = red
			t.rotateLeft(gp)
		}
	}
	t.root.c = black
}

func (t *Tree[V]) transplant(u, v *Node[V]) {
	if u.parent == nil {
		t.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	if v != nil {
		v.parent = u.parent
	}
}

// Delete removes n from the tree. n must currently be a member of t.
func (t *Tree[V]) Delete(n *Node[V]) {
	y := n
	yOrigColor := y.c
	var x, xParent *Node[V]

	if n.left == nil {
		x = n.right
		xParent = n.parent
		t.transplant(n, n.right)
	} else if n.right == nil {
		x = n.left
		xParent = n.parent
		t.transplant(n, n.left)
	} else {
		y = n.right
		for y.left != nil {
			y = y.left
		}
		yOrigColor = y.c
		x = y.right
		if y.parent == n {
			xParent = y
		} else {
			xParent = y.parent
			t.transplant(y, y.right)
			y.right = n.right
			y.right.parent = y
		}
		t.transplant(n, y)
		y.left = n.left
		y.left.parent = y
		y.c = n.c
	}
	t.size--

	for p := xParent; p != nil; p = p.parent {
		p.updateAgg()
	}

	if yOrigColor == black {
		t.deleteFixup(x, xParent)
	}
}

func (t *Tree[V]) deleteFixup(x, parent *Node[V]) {
	for x != t.root && colorOf(x) == black {
		if parent == nil {
			break
		}
		if x == parent.left {
			w := parent.right
			if w != nil && w.c == red {
				w.c = black
				parent.c = red
				t.rotateLeft(parent)
				w = parent.right
			}
			if w == nil {
				x = parent
				parent = x.parent
				continue
			}
			if colorOf(w.left) == black && colorOf(w.right) == black {
				w.c = red
				x = parent
				parent = x.parent
				continue
			}
			if colorOf(w.right) == black {
				if w.left != nil {
					w.left.c = black
				}
				w.c = red
				t.rotateRight(w)
				w = parent.right
			}
			w.c = parent.c
			parent.c = black
			if w.right != nil {
				w.right.c = black
			}
			t.rotateLeft(parent)
			x = t.root
			parent = nil
		} else {
			w := parent.left
			if w != nil && w.c == red {
				w.c = black
				parent.c = red
				t.rotateRight(parent)
				w = parent.left
			}
			if w == nil {
				x = parent
				parent = x.parent
				continue
			}
			if colorOf(w.right) == black && colorOf(w.left) == black {
				w.c = red
				x = parent
				parent = x.parent
				continue
			}
			if colorOf(w.left) == black {
				if w.right != nil {
					w.right.c = black
				}
				w.c = red
				t.rotateLeft(w)
				w = parent.left
			}
			w.c = parent.c
			parent.c = black
			if w.left != nil {
				w.left.c = black
			}
			t.rotateRight(parent)
			x = t.root
			parent = nil
		}
	}
	if x != nil {
		x.c = black
	}
}

func colorOf[V any](n *Node[V]) color {
	if n == nil {
		return black
	}
	return n.c
}

// EligibleMinFinish returns the node with the smallest key among all nodes
// whose Start is <= v (the B-WF2Q+ selection rule, §4.1), or nil if no
// node is eligible. O(log N) via the minStart augmentation.
func (t *Tree[V]) EligibleMinFinish(v uint64) *Node[V] {
	return findEligible(t.root, v)
}

func findEligible[V any](n *Node[V], v uint64) *Node[V] {
	if n == nil || n.minStart > v {
		return nil
	}
	if n.left != nil && n.left.minStart <= v {
		if res := findEligible(n.left, v); res != nil {
			return res
		}
	}
	if n.Start <= v {
		return n
	}
	if n.right != nil && n.right.minStart <= v {
		return findEligible(n.right, v)
	}
	return nil
}

// MinStart reports the minimum Start over the whole tree (+Inf-as-maxuint64
// if empty). Exposed mainly for invariant testing.
func (t *Tree[V]) MinStart() uint64 {
	return minStartOf(t.root)
}

// Walk calls fn for every node in ascending key order. fn must not mutate
// the tree.
func (t *Tree[V]) Walk(fn func(n *Node[V])) {
	var rec func(n *Node[V])
	rec = func(n *Node[V]) {
		if n == nil {
			return
		}
		rec(n.left)
		fn(n)
		rec(n.right)
	}
	rec(t.root)
}
