package rbtree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkInvariants walks the whole tree and asserts the augmentation and
// red-black invariants hold (spec §8: "Augmented min_start equals
// min(start over subtree) after every insertion, deletion, color-flip, and
// rotation").
func checkInvariants[V any](t *testing.T, tr *Tree[V]) {
	t.Helper()
	var walk func(n *Node[V]) (blackHeight int, count int)
	walk = func(n *Node[V]) (int, int) {
		if n == nil {
			return 1, 0
		}
		if n.c == red {
			if (n.left != nil && n.left.c == red) || (n.right != nil && n.right.c == red) {
				t.Fatalf("red node %d has a red child", n.Key)
			}
		}
		if n.left != nil {
			assert.LessOrEqual(t, n.left.Key, n.Key)
			assert.Equal(t, n, n.left.parent)
		}
		if n.right != nil {
			assert.GreaterOrEqual(t, n.right.Key, n.Key)
			assert.Equal(t, n, n.right.parent)
		}

		want := n.Start
		if n.left != nil && n.left.minStart < want {
			want = n.left.minStart
		}
		if n.right != nil && n.right.minStart < want {
			want = n.right.minStart
		}
		assert.Equal(t, want, n.minStart, "minStart augmentation mismatch at key %d", n.Key)

		lbh, lc := walk(n.left)
		rbh, rc := walk(n.right)
		assert.Equal(t, lbh, rbh, "black-height mismatch at key %d", n.Key)
		bh := lbh
		if n.c == black {
			bh++
		}
		return bh, lc + rc + 1
	}
	_, count := walk(tr.root)
	assert.Equal(t, tr.size, count)
	if tr.root != nil {
		assert.Equal(t, black, tr.root.c)
	}
}

func TestInsertMaintainsInvariants(t *testing.T) {
	tr := &Tree[int]{}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		key := uint64(rng.Intn(1000))
		tr.Insert(key, key, i)
		checkInvariants(t, tr)
	}
	assert.Equal(t, 500, tr.Len())
}

func TestInsertDeleteRoundTrip(t *testing.T) {
	tr := &Tree[int]{}
	rng := rand.New(rand.NewSource(2))
	var nodes []*Node[int]
	for i := 0; i < 300; i++ {
		key := uint64(rng.Intn(500))
		nodes = append(nodes, tr.Insert(key, key, i))
	}
	checkInvariants(t, tr)

	rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })
	for _, n := range nodes {
		tr.Delete(n)
		checkInvariants(t, tr)
	}
	assert.Equal(t, 0, tr.Len())
	assert.Nil(t, tr.root)
}

func TestMinMax(t *testing.T) {
	tr := &Tree[string]{}
	assert.Nil(t, tr.Min())
	assert.Nil(t, tr.Max())

	tr.Insert(5, 5, "five")
	tr.Insert(1, 1, "one")
	tr.Insert(9, 9, "nine")

	require.NotNil(t, tr.Min())
	assert.Equal(t, uint64(1), tr.Min().Key)
	require.NotNil(t, tr.Max())
	assert.Equal(t, uint64(9), tr.Max().Key)
}

func TestSuccessorPredecessor(t *testing.T) {
	tr := &Tree[int]{}
	var keys = []uint64{20, 10, 30, 5, 15, 25, 35}
	byKey := make(map[uint64]*Node[int])
	for _, k := range keys {
		byKey[k] = tr.Insert(k, k, int(k))
	}

	assert.Equal(t, uint64(10), Successor(byKey[5]).Key)
	assert.Equal(t, uint64(15), Successor(byKey[10]).Key)
	assert.Nil(t, Successor(byKey[35]))

	assert.Equal(t, uint64(25), Predecessor(byKey[30]).Key)
	assert.Nil(t, Predecessor(byKey[5]))
}

func TestEligibleMinFinish(t *testing.T) {
	tr := &Tree[string]{}
	// (finish, start) pairs: eligibility means start <= v.
	tr.Insert(100, 50, "a")
	tr.Insert(50, 60, "b")  // not eligible until v>=60, finish is smaller
	tr.Insert(80, 10, "c")
	tr.Insert(30, 95, "d")  // never eligible for small v

	// v=50: eligible starts are a(50), c(10). Min finish among {100, 80} -> 80.
	got := tr.EligibleMinFinish(50)
	require.NotNil(t, got)
	assert.Equal(t, "c", got.Value)

	// v=9: nothing eligible.
	assert.Nil(t, tr.EligibleMinFinish(9))

	// v=90: all but d are eligible; b also eligible now (start 60<=90).
	// Finishes: a=100, b=50, c=80 -> min is b=50.
	got = tr.EligibleMinFinish(90)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.Value)
}

func TestEligibleMinFinishRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		tr := &Tree[int]{}
		type entry struct{ finish, start uint64 }
		var entries []entry
		n := 1 + rng.Intn(40)
		for i := 0; i < n; i++ {
			e := entry{finish: uint64(rng.Intn(1000)), start: uint64(rng.Intn(1000))}
			entries = append(entries, e)
			tr.Insert(e.finish, e.start, i)
		}
		v := uint64(rng.Intn(1000))

		var wantFinish uint64
		found := false
		for _, e := range entries {
			if e.start <= v {
				if !found || e.finish < wantFinish {
					wantFinish = e.finish
					found = true
				}
			}
		}

		got := tr.EligibleMinFinish(v)
		if !found {
			assert.Nil(t, got, "trial %d: expected no eligible node for v=%d", trial, v)
			continue
		}
		require.NotNil(t, got, "trial %d: expected eligible node for v=%d", trial, v)
		assert.Equal(t, wantFinish, got.Key, "trial %d: v=%d", trial, v)
	}
}

func TestWeightCounterIdempotentTrackUntrack(t *testing.T) {
	wct := NewWeightCounterTree()
	wct.Track(1, 100)
	wct.Track(1, 100) // double-add of the same id must not double-count
	assert.Equal(t, 1, wct.DistinctWeights())
	assert.Equal(t, 1, wct.byWeigh[100].NumActive)

	wct.Track(2, 100)
	assert.Equal(t, 2, wct.byWeigh[100].NumActive)

	wct.Untrack(1, 100)
	wct.Untrack(1, 100) // double-remove must not underflow below the real count
	assert.Equal(t, 1, wct.byWeigh[100].NumActive)

	wct.Untrack(2, 100)
	assert.Equal(t, 0, wct.DistinctWeights())
}

func TestWeightCounterSymmetric(t *testing.T) {
	wct := NewWeightCounterTree()
	assert.True(t, wct.Symmetric())

	wct.Track(1, 100)
	assert.True(t, wct.Symmetric())

	wct.Track(2, 100)
	assert.True(t, wct.Symmetric())

	wct.Track(3, 200)
	assert.False(t, wct.Symmetric())

	wct.Untrack(3, 200)
	assert.True(t, wct.Symmetric())
}
