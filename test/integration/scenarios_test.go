// Package integration exercises the scheduler core end to end against the
// same fake clock/device used by the unit tests, driven purely through
// pkg/scheduler.Root's public elevator contract rather than any internal
// package member. These cover the two literal spec scenarios (equal-weight
// fairness at scale, and the back-seek-penalty chooser) that the package's
// own unit tests don't already exercise under different numeric
// parameterizations.
package integration

import (
	"testing"
	"time"

	"github.com/cuemby/bfqsched/internal/simdevice"
	"github.com/cuemby/bfqsched/pkg/config"
	"github.com/cuemby/bfqsched/pkg/iface"
	"github.com/cuemby/bfqsched/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCtx struct {
	weight uint64
	class  iface.IOClass
}

func (c *fakeCtx) Class() iface.IOClass { return c.class }
func (c *fakeCtx) Weight() uint64       { return c.weight }

func newRoot(cfg *config.Tunables) (*scheduler.Root, *simdevice.Clock, *simdevice.Deferred) {
	clock := simdevice.NewClock(time.Unix(1_700_000_000, 0))
	deferred := simdevice.NewDeferred(clock)
	device := simdevice.NewDevice(0)
	r := scheduler.New(cfg, device, deferred, clock, false)
	return r, clock, deferred
}

// TestEqualWeightSequentialReadersConverge drives two equal-weight,
// continuously-backlogged sequential readers through a million sectors
// each and checks that at no point does either producer's cumulative
// served sectors drift from the other's by more than two budgets' worth
// of service (spec §8 scenario 1: "equal weights imply equal long-run
// service, within a bound of two activations").
func TestEqualWeightSequentialReadersConverge(t *testing.T) {
	cfg := config.Default()
	cfg.DefaultMaxBudget = 10_000 // 100 requests of length 100 per activation
	r, _, deferred := newRoot(cfg)

	ctxA := &fakeCtx{weight: 100, class: iface.ClassBE}
	ctxB := &fakeCtx{weight: 100, class: iface.ClassBE}

	const reqLen = uint64(100)
	const reqCount = 10_000 // 1,000,000 sectors per producer

	var nextID uint64
	for i := 0; i < reqCount; i++ {
		nextID++
		r.AddRequest(ctxA, &iface.Request{ID: nextID, Sector: uint64(i) * reqLen, Length: reqLen, Sync: true})
	}
	for i := 0; i < reqCount; i++ {
		nextID++
		r.AddRequest(ctxB, &iface.Request{ID: nextID, Sector: 10_000_000 + uint64(i)*reqLen, Length: reqLen, Sync: true})
	}

	var sectorsA, sectorsB, maxDeviation uint64
	const maxRounds = 60_000
	rounds := 0
	for ; rounds < maxRounds; rounds++ {
		rq := r.Dispatch()
		if rq == nil {
			if deferred.Pending() == 0 {
				break
			}
			deferred.Advance(cfg.SliceIdle + time.Millisecond)
			continue
		}

		if rq.ID <= reqCount {
			sectorsA += rq.Length
		} else {
			sectorsB += rq.Length
		}
		r.Completed(rq)

		dev := sectorsA - sectorsB
		if sectorsB > sectorsA {
			dev = sectorsB - sectorsA
		}
		if dev > maxDeviation {
			maxDeviation = dev
		}
	}

	require.Less(t, rounds, maxRounds, "both producers must drain well before the safety ceiling")
	require.Equal(t, uint64(reqCount)*reqLen, sectorsA)
	require.Equal(t, uint64(reqCount)*reqLen, sectorsB)
	assert.LessOrEqual(t, maxDeviation, 2*cfg.DefaultMaxBudget,
		"equal-weight producers must never drift more than two budgets apart in cumulative service")
}

// TestBackSeekPenaltyChoosesNearerBackwardRequest seeds the device head at
// sector 1000, then offers a forward request 1000 sectors ahead against a
// backward request only 100 sectors behind. With back_max=2000 and
// back_penalty=2 the backward candidate's penalized distance (200) beats
// the forward candidate's distance (1000), so the chooser must pick the
// backward request despite the seek direction reversal (spec §8 scenario
// 5, §4.3 chooser).
func TestBackSeekPenaltyChoosesNearerBackwardRequest(t *testing.T) {
	cfg := config.Default()
	cfg.BackMax = 2000
	cfg.BackPenalty = 2
	r, _, _ := newRoot(cfg)

	ctx := &fakeCtx{weight: 100, class: iface.ClassBE}

	seed := &iface.Request{ID: 1, Sector: 1000, Length: 1, Sync: true}
	r.AddRequest(ctx, seed)
	dispatched := r.Dispatch()
	require.NotNil(t, dispatched)
	require.Equal(t, seed.ID, dispatched.ID)
	r.Completed(dispatched)

	forward := &iface.Request{ID: 2, Sector: 2000, Length: 1, Sync: true} // distance 1000
	backward := &iface.Request{ID: 3, Sector: 900, Length: 1, Sync: true} // distance 100 * penalty 2 = 200
	r.AddRequest(ctx, forward)
	r.AddRequest(ctx, backward)

	next := r.Dispatch()
	require.NotNil(t, next)
	assert.Equal(t, backward.ID, next.ID,
		"a penalized backward seek of 200 must beat a forward seek of 1000")
}
