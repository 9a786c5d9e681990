package peakrate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSampleIgnoresZeroElapsedOrSectors(t *testing.T) {
	e := New(true, 1e9)
	e.Sample(0, time.Second)
	e.Sample(1000, 0)
	assert.Equal(t, 0, e.validCount)
	assert.Equal(t, uint64(0), e.PeakRate())
}

func TestSampleSeedsThenSmoothsEstimate(t *testing.T) {
	e := New(true, 1e9)
	e.Sample(1000, time.Second) // 1000 sectors/sec exactly
	first := e.PeakRate()
	assert.Equal(t, uint64(1000)<<16, first)

	e.Sample(1000, time.Second)
	assert.Equal(t, first, e.PeakRate(), "repeating the same rate leaves the EWMA unchanged")
}

func TestClassifiedRequiresMinimumSamples(t *testing.T) {
	e := New(true, 1e9)
	for i := 0; i < PeakRateSamples-1; i++ {
		e.Sample(1000, time.Second)
	}
	assert.False(t, e.Classified())
	assert.Equal(t, ClassUnclassified, e.SpeedClass())

	e.Sample(1000, time.Second)
	assert.True(t, e.Classified())
	assert.NotEqual(t, ClassUnclassified, e.SpeedClass())
}

func TestSpeedClassRespectsRotationalFlag(t *testing.T) {
	rot := New(true, 1e9)
	nonRot := New(false, 1e9)
	for i := 0; i < PeakRateSamples; i++ {
		rot.Sample(100000, time.Second)
		nonRot.Sample(100000, time.Second)
	}
	assert.Contains(t, []SpeedClass{ClassSlowRotational, ClassFastRotational}, rot.SpeedClass())
	assert.Contains(t, []SpeedClass{ClassSlowNonRotational, ClassFastNonRotational}, nonRot.SpeedClass())
}

func TestWRDurationFallsBackToSlowRotationalBeforeClassification(t *testing.T) {
	e := New(true, 1e9)
	assert.Equal(t, refTimeSlowRotational, e.WRDuration())
}

func TestWRDurationShrinksAsPeakRateExceedsReference(t *testing.T) {
	e := New(true, 1e9)
	for i := 0; i < PeakRateSamples; i++ {
		e.Sample(uint64(RefRateFastRotational>>16)*10, time.Second)
	}
	assert.Less(t, e.WRDuration(), refTimeSlowRotational)
}
