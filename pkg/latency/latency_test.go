package latency

import (
	"testing"
	"time"

	"github.com/cuemby/bfqsched/pkg/config"
	"github.com/cuemby/bfqsched/pkg/entity"
	"github.com/cuemby/bfqsched/pkg/iface"
	"github.com/cuemby/bfqsched/pkg/queue"
	"github.com/cuemby/bfqsched/pkg/rbtree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIOCtx struct{}

func (fakeIOCtx) Class() iface.IOClass { return iface.ClassBE }
func (fakeIOCtx) Weight() uint64       { return 100 }

func newTestQueue() *queue.Queue {
	return queue.New(1, fakeIOCtx{}, 100, true, entity.NoParent)
}

func tunables(lowLatency bool) *config.Tunables {
	cfg := config.Default()
	cfg.LowLatency = lowLatency
	return cfg
}

func TestSymmetricScenarioTrueWithNilOrUniformWeights(t *testing.T) {
	h := New(tunables(true), nil)
	assert.True(t, h.SymmetricScenario())

	wct := rbtree.NewWeightCounterTree()
	h2 := New(tunables(true), wct)
	assert.True(t, h2.SymmetricScenario())

	wct.Track(1, 100)
	wct.Track(2, 100)
	assert.True(t, h2.SymmetricScenario())

	wct.Track(3, 200)
	assert.False(t, h2.SymmetricScenario())
}

func TestMarkBurstArrivalDeclaresLargeBurstAtThreshold(t *testing.T) {
	cfg := tunables(true)
	h := New(cfg, nil)
	now := time.Now()
	var last bool
	for i := 0; i < cfg.LargeBurstThresh; i++ {
		last = h.MarkBurstArrival(newTestQueue(), now.Add(time.Duration(i)*time.Millisecond))
	}
	assert.True(t, last, "the arrival completing the threshold must report a large burst")
}

func TestMarkBurstArrivalResetsAfterGap(t *testing.T) {
	cfg := tunables(true)
	h := New(cfg, nil)
	now := time.Now()
	h.MarkBurstArrival(newTestQueue(), now)
	declared := h.MarkBurstArrival(newTestQueue(), now.Add(2*cfg.BurstInterval))
	assert.False(t, declared)
	assert.Len(t, h.burst, 1, "the gap must reset the list rather than accumulate")
}

func TestMaybeRaiseInteractiveRequiresMinIdleAndNotInBurst(t *testing.T) {
	cfg := tunables(true)
	h := New(cfg, nil)
	q := newTestQueue()
	now := time.Now()

	assert.False(t, h.MaybeRaiseInteractive(q, cfg.WRMinIdleTime-time.Millisecond, now, nil))
	assert.False(t, q.IsWeightRaised())

	assert.True(t, h.MaybeRaiseInteractive(q, cfg.WRMinIdleTime, now, nil))
	assert.True(t, q.IsWeightRaised())

	q2 := newTestQueue()
	q2.InLargeBurst = true
	assert.False(t, h.MaybeRaiseInteractive(q2, 10*time.Second, now, nil))
}

func TestMaybeRaiseInteractiveRespectsLowLatencySwitch(t *testing.T) {
	h := New(tunables(false), nil)
	q := newTestQueue()
	assert.False(t, h.MaybeRaiseInteractive(q, 10*time.Second, time.Now(), nil))
}

func TestMaybeRaiseSoftRTRequiresPastPredictedStartAndInteractiveLook(t *testing.T) {
	h := New(tunables(true), nil)
	q := newTestQueue()
	now := time.Now()

	assert.False(t, h.MaybeRaiseSoftRT(q, now), "zero SoftRTNextStart must not trigger")

	q.SoftRTNextStart = now.Add(-time.Second)
	assert.False(t, h.MaybeRaiseSoftRT(q, now), "not-yet-interactive queue must not trigger")

	q.UpdateThinkTime(thinkTimeAboveFloor)
	assert.True(t, h.MaybeRaiseSoftRT(q, now))
}

const thinkTimeAboveFloor = 50

func TestUpdateSoftRTNextStartUsesServiceOverWeight(t *testing.T) {
	q := newTestQueue()
	now := time.Now()
	UpdateSoftRTNextStart(q, now, 0)
	assert.Equal(t, now, q.SoftRTNextStart)

	UpdateSoftRTNextStart(q, now, 1<<20)
	require.True(t, q.SoftRTNextStart.After(now))
}

// A queue that both qualifies for the late soft-RT trigger and is part of
// a just-declared large burst must stay unraised: large-burst membership
// wins unconditionally (Open Question decision in DESIGN.md).
func TestLargeBurstSuppressesLateSoftRTTrigger(t *testing.T) {
	cfg := tunables(true)
	h := New(cfg, nil)
	now := time.Now()

	q := newTestQueue()
	q.InLargeBurst = true
	q.SoftRTNextStart = now.Add(-time.Second)
	q.UpdateThinkTime(thinkTimeAboveFloor)

	assert.False(t, h.MaybeRaiseSoftRT(q, now), "a burst member must never be weight-raised by the soft-RT trigger")
}

func TestMaybeEndWeightRaiseOnBurstOrExpiry(t *testing.T) {
	const wrCoeff = 30
	now := time.Now()

	q := newTestQueue()
	q.BeginWeightRaise(wrCoeff, now.Add(-2*time.Second), time.Second)
	MaybeEndWeightRaise(q, now)
	assert.False(t, q.IsWeightRaised())

	q2 := newTestQueue()
	q2.BeginWeightRaise(wrCoeff, now, time.Minute)
	q2.InLargeBurst = true
	MaybeEndWeightRaise(q2, now)
	assert.False(t, q2.IsWeightRaised())

	q3 := newTestQueue()
	q3.BeginWeightRaise(wrCoeff, now, time.Minute)
	MaybeEndWeightRaise(q3, now)
	assert.True(t, q3.IsWeightRaised())
}

func TestMaybeDeflateHalvesOnBudgetExhaustionAndEndsAtFloor(t *testing.T) {
	h := New(tunables(true), nil)
	now := time.Now()

	q := newTestQueue()
	q.BeginWeightRaise(8, now, time.Minute)
	h.MaybeDeflate(q, DeflateBudgetExhausted)
	assert.Equal(t, uint64(4), q.WRCoeff)
	assert.True(t, q.IsWeightRaised())

	h.MaybeDeflate(q, DeflateBudgetExhausted)
	assert.Equal(t, uint64(2), q.WRCoeff)

	h.MaybeDeflate(q, DeflateBudgetExhausted)
	assert.False(t, q.IsWeightRaised(), "a coefficient dropping to 1 must end the raise")
}

func TestMaybeDeflateIsNoopWhenNotRaised(t *testing.T) {
	h := New(tunables(true), nil)
	q := newTestQueue()
	h.MaybeDeflate(q, DeflateTimeout)
	assert.False(t, q.IsWeightRaised())
	assert.Equal(t, uint64(1), q.WRCoeff)
}
