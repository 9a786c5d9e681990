package simdevice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockAdvanceMovesNow(t *testing.T) {
	start := time.Unix(1000, 0)
	c := NewClock(start)
	assert.Equal(t, start, c.Now())

	next := c.Advance(5 * time.Second)
	assert.Equal(t, start.Add(5*time.Second), next)
	assert.Equal(t, next, c.Now())
}

func TestDeferredFiresDueTasksInDeadlineOrder(t *testing.T) {
	c := NewClock(time.Unix(0, 0))
	d := NewDeferred(c)

	var order []string
	d.Schedule(10*time.Millisecond, func() { order = append(order, "b") })
	d.Schedule(5*time.Millisecond, func() { order = append(order, "a") })
	d.Schedule(time.Second, func() { order = append(order, "late") })

	assert.Equal(t, 3, d.Pending())
	d.Advance(10 * time.Millisecond)

	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, d.Pending())
}

func TestDeferredCancelPreventsFiring(t *testing.T) {
	c := NewClock(time.Unix(0, 0))
	d := NewDeferred(c)

	fired := false
	cancel := d.Schedule(5*time.Millisecond, func() { fired = true })
	cancel()

	d.Advance(10 * time.Millisecond)
	assert.False(t, fired)
	assert.Equal(t, 0, d.Pending())
}

func TestDeviceTracksPosition(t *testing.T) {
	dv := NewDevice(42)
	assert.Equal(t, uint64(42), dv.LastPosition())
	dv.SetPosition(99)
	assert.Equal(t, uint64(99), dv.LastPosition())
}
