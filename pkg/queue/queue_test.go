package queue

import (
	"testing"
	"time"

	"github.com/cuemby/bfqsched/pkg/entity"
	"github.com/cuemby/bfqsched/pkg/iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIOCtx struct {
	class  iface.IOClass
	weight uint64
}

func (f fakeIOCtx) Class() iface.IOClass { return f.class }
func (f fakeIOCtx) Weight() uint64       { return f.weight }

func newTestQueue() *Queue {
	return New(1, fakeIOCtx{class: iface.ClassBE, weight: 100}, 100, true, entity.NoParent)
}

func TestAddRequestMarksBusyAndCountsByDirection(t *testing.T) {
	q := newTestQueue()
	assert.False(t, q.Busy)

	q.AddRequest(&iface.Request{ID: 1, Sector: 100, Sync: true}, 0, 16384, 16)
	assert.True(t, q.Busy)
	assert.Equal(t, 1, q.QueuedSync)
	assert.Equal(t, 0, q.QueuedAsync)
	assert.Equal(t, 1, q.Len())

	q.AddRequest(&iface.Request{ID: 2, Sector: 200, Sync: false}, 0, 16384, 16)
	assert.Equal(t, 1, q.QueuedAsync)
	assert.Equal(t, 2, q.Len())
}

func TestRemoveRequestClearsBusyWhenEmpty(t *testing.T) {
	q := newTestQueue()
	rq := &iface.Request{ID: 1, Sector: 100, Sync: true}
	q.AddRequest(rq, 0, 16384, 16)

	q.RemoveRequest(rq)
	assert.False(t, q.Busy)
	assert.Nil(t, q.NextRQ)
	assert.Equal(t, 0, q.QueuedSync)
}

func TestOldestArrivalIsFIFOOrder(t *testing.T) {
	q := newTestQueue()
	r1 := &iface.Request{ID: 1, Sector: 500}
	r2 := &iface.Request{ID: 2, Sector: 100}
	r3 := &iface.Request{ID: 3, Sector: 900}

	q.AddRequest(r1, 0, 16384, 16)
	q.AddRequest(r2, 0, 16384, 16)
	q.AddRequest(r3, 0, 16384, 16)

	require.Equal(t, r1, q.OldestArrival())

	q.RemoveRequest(r1)
	require.Equal(t, r2, q.OldestArrival())
}

func TestEnforceFIFOExpiryOverridesSeekChooser(t *testing.T) {
	q := newTestQueue()
	now := time.Now()

	near := &iface.Request{ID: 1, Sector: 1100, Sync: true, ArrivalTime: now}
	far := &iface.Request{ID: 2, Sector: 9000, Sync: true, ArrivalTime: now.Add(-time.Second)}
	q.AddRequest(far, 1000, 16384, 16)
	q.AddRequest(near, 1000, 16384, 16)

	require.Equal(t, near, q.NextRQ, "without expiry the chooser still prefers the closer forward sector")

	q.EnforceFIFOExpiry(now, 125*time.Millisecond, 250*time.Millisecond)
	assert.Equal(t, far, q.NextRQ, "the oldest arrival must override the chooser once it has expired")
}

func TestEnforceFIFOExpiryIsNoopBeforeDeadline(t *testing.T) {
	q := newTestQueue()
	now := time.Now()

	near := &iface.Request{ID: 1, Sector: 1100, Sync: true, ArrivalTime: now}
	far := &iface.Request{ID: 2, Sector: 9000, Sync: true, ArrivalTime: now}
	q.AddRequest(far, 1000, 16384, 16)
	q.AddRequest(near, 1000, 16384, 16)

	q.EnforceFIFOExpiry(now, 125*time.Millisecond, 250*time.Millisecond)
	assert.Equal(t, near, q.NextRQ, "a not-yet-expired FIFO must leave the seek-distance chooser's pick in place")
}

func TestRefreshNextRQPicksClosestForwardSector(t *testing.T) {
	q := newTestQueue()
	near := &iface.Request{ID: 1, Sector: 1100}
	far := &iface.Request{ID: 2, Sector: 5000}
	q.AddRequest(far, 1000, 16384, 16)
	q.AddRequest(near, 1000, 16384, 16)

	assert.Equal(t, near, q.NextRQ)
}

func TestFormerAndLatterRequestAreSectorNeighbors(t *testing.T) {
	q := newTestQueue()
	low := &iface.Request{ID: 1, Sector: 100}
	mid := &iface.Request{ID: 2, Sector: 200}
	high := &iface.Request{ID: 3, Sector: 300}
	q.AddRequest(low, 0, 16384, 16)
	q.AddRequest(mid, 0, 16384, 16)
	q.AddRequest(high, 0, 16384, 16)

	assert.Equal(t, low, q.FormerRequest(mid))
	assert.Equal(t, high, q.LatterRequest(mid))
	assert.Nil(t, q.FormerRequest(low))
	assert.Nil(t, q.LatterRequest(high))
}

func TestAllowMergeDetectsSectorAdjacency(t *testing.T) {
	q := newTestQueue()
	q.AddRequest(&iface.Request{ID: 1, Sector: 100, Length: 8}, 0, 16384, 16)

	assert.True(t, q.AllowMerge(108)) // immediately after existing request's end
	assert.True(t, q.AllowMerge(99))  // immediately before existing request's start
	assert.False(t, q.AllowMerge(500))
}

func TestUpdateSeekMeanEWMAAndSeekyThreshold(t *testing.T) {
	q := newTestQueue()
	assert.False(t, q.Seeky())

	q.UpdateSeekMean(100000)
	assert.True(t, q.Seeky())

	q2 := newTestQueue()
	q2.UpdateSeekMean(10)
	q2.UpdateSeekMean(10)
	assert.False(t, q2.Seeky())
}

func TestRecordCompletionTracksThinkTimeGap(t *testing.T) {
	q := newTestQueue()
	start := time.Now()

	gap := q.RecordCompletion(start)
	assert.Zero(t, gap, "first completion has no prior reference point")

	gap = q.RecordCompletion(start.Add(5 * time.Millisecond))
	assert.Equal(t, 5*time.Millisecond, gap)
}

func TestMergedRemovesAbsorbedRequest(t *testing.T) {
	q := newTestQueue()
	rq := &iface.Request{ID: 1, Sector: 100}
	q.AddRequest(rq, 0, 16384, 16)

	q.Merged(rq)
	assert.Equal(t, 0, q.Len())
}
