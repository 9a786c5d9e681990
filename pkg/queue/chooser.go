package queue

import "github.com/cuemby/bfqsched/pkg/iface"

// seekThreshold and thinkTimeThreshold are the original source's
// BFQQ_SEEK_THR / BFQ_MIN_TT constants (original_source/block/bfq-iosched.c),
// carried over as named constants rather than left as magic numbers
// (spec.md §3 supplement).
const (
	seekThreshold      = 8 * 1024 // sectors; above this a queue is "seeky"
	thinkTimeThreshold = 2        // ms; below this a queue is CPU/seek-bound, not idle-prone
)

// chooseRequest implements the §4.3 next-request ordering: sync over
// async, metadata over non-metadata, smaller forward distance, then a
// penalized backward distance (up to backMax), with the farther-behind
// candidate winning when both wrap around the device.
func chooseRequest(r1, r2 *iface.Request, lastPosition, backMax, backPenalty uint64) *iface.Request {
	if r1 == nil {
		return r2
	}
	if r2 == nil {
		return r1
	}

	if r1.Sync != r2.Sync {
		if r1.Sync {
			return r1
		}
		return r2
	}
	if r1.Meta != r2.Meta {
		if r1.Meta {
			return r1
		}
		return r2
	}

	d1, wrap1, back1 := signedDistance(r1.Sector, lastPosition, backMax)
	d2, wrap2, back2 := signedDistance(r2.Sector, lastPosition, backMax)

	c1 := cost(d1, back1, backPenalty)
	c2 := cost(d2, back2, backPenalty)

	if wrap1 && wrap2 {
		// Both candidates require wrap-around: minimize the number of
		// back-seeks by picking the one farther behind the head.
		if r1.Sector < r2.Sector {
			return r1
		}
		return r2
	}
	if wrap1 {
		return r2
	}
	if wrap2 {
		return r1
	}

	if c1 <= c2 {
		return r1
	}
	return r2
}

// signedDistance reports the forward distance from lastPosition to
// sector, whether the sector lies "behind" the head (a backward seek),
// and whether that backward seek exceeds backMax (making it a wrap-
// around candidate rather than a short local backward seek).
func signedDistance(sector, lastPosition, backMax uint64) (distance uint64, wrap bool, isBack bool) {
	if sector >= lastPosition {
		return sector - lastPosition, false, false
	}
	back := lastPosition - sector
	if back > backMax {
		return back, true, true
	}
	return back, false, true
}

func cost(distance uint64, isBack bool, backPenalty uint64) uint64 {
	if isBack {
		return distance * backPenalty
	}
	return distance
}
