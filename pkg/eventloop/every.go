// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package eventloop

import (
	"sync"
	"time"
)

// periodic re-arms its timer before each execution of its task.
type periodic struct {
	scheduler Scheduler
	interval  time.Duration
	task      func()

	mutex   sync.Mutex
	timer   Timer
	stopped bool
}

// Every executes the task on the Scheduler once per interval until the returned Timer is stopped. Stop reports
// whether the job was still running.
func Every(scheduler Scheduler, interval time.Duration, task func()) Timer {
	p := &periodic{
		scheduler: scheduler,
		interval:  interval,
		task:      task,
	}

	p.mutex.Lock()
	p.timer = scheduler.AfterFunc(interval, p.fire)
	p.mutex.Unlock()

	return p
}

func (p *periodic) fire() {
	p.mutex.Lock()
	if p.stopped {
		p.mutex.Unlock()
		return
	}
	p.timer = p.scheduler.AfterFunc(p.interval, p.fire)
	p.mutex.Unlock()

	p.task()
}

func (p *periodic) Stop() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.stopped {
		return false
	}

	p.stopped = true
	p.timer.Stop()
	return true
}
