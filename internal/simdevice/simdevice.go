// Package simdevice provides a deterministic fake Clock, Deferred, and
// Device for exercising pkg/scheduler without a real block device or wall
// clock: time only advances when a test calls Advance, and every deferred
// task whose deadline has passed fires synchronously at that point.
package simdevice

import (
	"sort"
	"sync"
	"time"

	"github.com/cuemby/bfqsched/pkg/iface"
)

// Clock is a manually-advanced iface.Clock. The zero value starts at the
// Unix epoch; use NewClock to start somewhere more convenient.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock starting at the given time.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now implements iface.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set pins the clock to an absolute time.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d and returns the new time. It does
// not itself fire deferred tasks; pair it with Deferred.Advance.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type pendingTask struct {
	id       uint64
	deadline time.Time
	fn       func()
	canceled bool
}

// Deferred is a fake iface.Deferred backed by Clock: tasks only fire when
// the test explicitly calls Advance or Fire, never on a background
// goroutine, so scheduler tests stay single-threaded and reproducible.
type Deferred struct {
	clock *Clock

	mu     sync.Mutex
	nextID uint64
	tasks  map[uint64]*pendingTask
}

// NewDeferred returns a Deferred whose deadlines are computed from clock.
func NewDeferred(clock *Clock) *Deferred {
	return &Deferred{clock: clock, tasks: make(map[uint64]*pendingTask)}
}

// Schedule implements iface.Deferred.
func (d *Deferred) Schedule(delay time.Duration, fn func()) iface.CancelFunc {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	t := &pendingTask{id: id, deadline: d.clock.Now().Add(delay), fn: fn}
	d.tasks[id] = t

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		t.canceled = true
	}
}

// Advance moves clock forward by delay, then fires (in deadline order)
// every task whose deadline the new time reaches, newest cancellations
// respected right up to the moment they run.
func (d *Deferred) Advance(delay time.Duration) time.Time {
	now := d.clock.Advance(delay)
	d.Fire(now)
	return now
}

// Fire runs every uncanceled pending task whose deadline is at or before
// now, without otherwise moving the clock (the clock may already have been
// advanced by the caller).
func (d *Deferred) Fire(now time.Time) {
	d.mu.Lock()
	var due []*pendingTask
	for id, t := range d.tasks {
		if !t.canceled && !t.deadline.After(now) {
			due = append(due, t)
			delete(d.tasks, id)
		}
	}
	d.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		if !t.canceled {
			t.fn()
		}
	}
}

// Pending reports how many tasks are scheduled but not yet fired or
// canceled, useful for asserting a test armed (or disarmed) an idle timer.
func (d *Deferred) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.tasks {
		if !t.canceled {
			n++
		}
	}
	return n
}

// Device is a fake iface.Device reporting a fixed or test-set head
// position; the scheduler core stores it but does not read the position
// back, so this mostly exists so hosts and tests have a concrete type to pass.
type Device struct {
	position uint64
}

// NewDevice returns a Device whose head starts at position.
func NewDevice(position uint64) *Device {
	return &Device{position: position}
}

// LastPosition implements iface.Device.
func (dv *Device) LastPosition() uint64 {
	return dv.position
}

// SetPosition moves the simulated head, e.g. to mirror the scheduler's own
// last_position bookkeeping in a test assertion.
func (dv *Device) SetPosition(p uint64) {
	dv.position = p
}
