// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package eventloop

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type manualTimer struct {
	*timerState

	deadline time.Time
	seq      uint64
	task     func()
}

// Manual is a Scheduler driven by its caller on a virtual clock. Nothing runs until RunPending or Advance is called,
// which makes protocol behavior reproducible in tests and simulations.
type Manual struct {
	mutex sync.Mutex

	now    time.Time
	queue  []func()
	timers []*manualTimer
	seq    uint64
}

// NewManual creates a Manual Scheduler whose virtual clock starts at the given time.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.now
}

// Post a task; it will be executed by the next RunPending or Advance call.
func (m *Manual) Post(task func()) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.queue = append(m.queue, task)
}

// AfterFunc registers a timer relative to the virtual clock.
func (m *Manual) AfterFunc(delay time.Duration, task func()) Timer {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.seq++
	timer := &manualTimer{
		timerState: &timerState{},
		deadline:   m.now.Add(delay),
		seq:        m.seq,
		task:       task,
	}
	m.timers = append(m.timers, timer)

	return timer.timerState
}

// Call executes the task and everything posted before it.
func (m *Manual) Call(ctx context.Context, task func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.Post(task)
	m.RunPending()
	return nil
}

// RunPending executes queued tasks, including those posted while running, until the queue is empty. It returns the
// number of executed tasks.
func (m *Manual) RunPending() (n int) {
	for {
		m.mutex.Lock()
		if len(m.queue) == 0 {
			m.mutex.Unlock()
			return
		}
		task := m.queue[0]
		m.queue = m.queue[1:]
		m.mutex.Unlock()

		task()
		n++
	}
}

// Pending returns the amount of timers which are neither stopped nor fired.
func (m *Manual) Pending() (n int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, timer := range m.timers {
		if atomic.LoadUint32(&timer.done) == 0 {
			n++
		}
	}
	return
}

// Advance the virtual clock. Timers become due in deadline order; each due timer's task is posted and the queue is
// drained before the next timer is considered. Thus, a timer restarted by its own task fires again within the same
// Advance call if its new deadline is still covered.
func (m *Manual) Advance(d time.Duration) {
	m.RunPending()

	m.mutex.Lock()
	end := m.now.Add(d)
	m.mutex.Unlock()

	for {
		timer := m.nextDue(end)
		if timer == nil {
			break
		}

		m.Post(func() {
			if timer.fire() {
				timer.task()
			}
		})
		m.RunPending()
	}

	m.mutex.Lock()
	m.now = end
	m.mutex.Unlock()
}

// nextDue removes and returns the earliest live timer with a deadline not after end, and moves the clock to it.
func (m *Manual) nextDue(end time.Time) *manualTimer {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	live := m.timers[:0]
	for _, timer := range m.timers {
		if atomic.LoadUint32(&timer.done) == 0 {
			live = append(live, timer)
		}
	}
	m.timers = live

	sort.Slice(m.timers, func(i, j int) bool {
		if m.timers[i].deadline.Equal(m.timers[j].deadline) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].deadline.Before(m.timers[j].deadline)
	})

	if len(m.timers) == 0 || m.timers[0].deadline.After(end) {
		return nil
	}

	timer := m.timers[0]
	m.timers = m.timers[1:]
	m.now = timer.deadline
	return timer
}
