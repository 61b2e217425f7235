// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package eventloop provides the cooperative, single-threaded execution model used by the protocol core.
//
// Every task posted to a Scheduler runs to completion before the next one starts. Timers do not execute their task
// themselves, they post it into the same queue. Thus, all protocol state can be mutated without locks as long as it
// is only touched from within tasks.
package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrClosed is returned for operations on a closed Loop.
var ErrClosed = errors.New("event loop is closed")

// Scheduler executes tasks sequentially and schedules delayed tasks.
type Scheduler interface {
	// Post a task to be executed after all previously posted tasks.
	Post(task func())

	// AfterFunc posts the task after the delay has elapsed, unless the returned Timer was stopped before.
	AfterFunc(delay time.Duration, task func()) Timer

	// Call posts a task and blocks until it was executed, the context is done or the Scheduler is closed. This allows
	// other goroutines to access state owned by the Scheduler. Call must not be used from within a task.
	Call(ctx context.Context, task func()) error
}

// Timer is a cancellable, delayed task.
type Timer interface {
	// Stop prevents the Timer's task from being executed. It returns false if the task was already executed or the
	// Timer was stopped before.
	Stop() bool
}

// timerState is shared by both Scheduler implementations. Both stopping and firing are performed on the event loop,
// but the atomic flag also allows stopping from the outside.
type timerState struct {
	// done is zero while pending and one if either executed or stopped
	done uint32
}

func (ts *timerState) Stop() bool {
	return atomic.CompareAndSwapUint32(&ts.done, 0, 1)
}

// fire returns true if the timer's task should be executed now.
func (ts *timerState) fire() bool {
	return atomic.CompareAndSwapUint32(&ts.done, 0, 1)
}

// Loop is a Scheduler backed by a single goroutine and an unbounded FIFO queue. Posting never blocks, so tasks may
// post further tasks without deadlocking the Loop.
type Loop struct {
	queue      []func()
	queueMutex sync.Mutex
	wakeup     chan struct{}

	// closed is accessed by sync.atomic functions; nonzero indicates a closed Loop
	closed uint32

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewLoop creates and starts a Loop.
func NewLoop() *Loop {
	loop := &Loop{
		wakeup:  make(chan struct{}, 1),
		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	go loop.handler()

	return loop
}

func (loop *Loop) handler() {
	defer close(loop.stopAck)

	for {
		select {
		case <-loop.stopSyn:
			return

		case <-loop.wakeup:
			for {
				task, ok := loop.next()
				if !ok {
					break
				}
				loop.run(task)
			}
		}
	}
}

// next pops the oldest task from the queue.
func (loop *Loop) next() (task func(), ok bool) {
	loop.queueMutex.Lock()
	defer loop.queueMutex.Unlock()

	if len(loop.queue) == 0 {
		return
	}

	task, ok = loop.queue[0], true
	loop.queue[0] = nil
	loop.queue = loop.queue[1:]
	return
}

// run a single task; a panicking task must not bring down the Loop.
func (loop *Loop) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"error": r,
			}).Error("Event loop task panicked")
		}
	}()

	task()
}

// Post a task. Tasks posted after Close are dropped.
func (loop *Loop) Post(task func()) {
	if atomic.LoadUint32(&loop.closed) != 0 {
		log.Debug("Event loop is closed, dropping task")
		return
	}

	loop.queueMutex.Lock()
	loop.queue = append(loop.queue, task)
	loop.queueMutex.Unlock()

	select {
	case loop.wakeup <- struct{}{}:
	default:
	}
}

// AfterFunc schedules a task on the Loop after the delay.
func (loop *Loop) AfterFunc(delay time.Duration, task func()) Timer {
	ts := &timerState{}
	time.AfterFunc(delay, func() {
		loop.Post(func() {
			if ts.fire() {
				task()
			}
		})
	})
	return ts
}

// Call a task on the Loop and wait for its completion.
func (loop *Loop) Call(ctx context.Context, task func()) error {
	if atomic.LoadUint32(&loop.closed) != 0 {
		return ErrClosed
	}

	done := make(chan struct{})
	loop.Post(func() {
		defer close(done)
		task()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-loop.stopAck:
		return ErrClosed
	}
}

// Close stops the Loop. Queued tasks which were not started yet are discarded.
func (loop *Loop) Close() error {
	if !atomic.CompareAndSwapUint32(&loop.closed, 0, 1) {
		return ErrClosed
	}

	close(loop.stopSyn)
	<-loop.stopAck

	return nil
}
