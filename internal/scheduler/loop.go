// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Loop is a Scheduler backed by a single goroutine draining a task queue.
// Timers are armed with time.AfterFunc and hop onto the loop when they fire.
type Loop struct {
	tasks chan func()

	mu      sync.Mutex
	closed  bool
	timers  map[*loopTimer]struct{}
	done    chan struct{}
	started atomic.Bool
}

type loopTimer struct {
	loop    *Loop
	timer   *time.Timer
	stopped atomic.Bool
}

// NewLoop creates a loop whose queue holds up to queueSize pending tasks.
func NewLoop(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Loop{
		tasks:  make(chan func(), queueSize),
		timers: make(map[*loopTimer]struct{}),
		done:   make(chan struct{}),
	}
}

// Now returns the wall clock.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post enqueues fn. Tasks posted after Close are discarded.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	select {
	case l.tasks <- fn:
	case <-l.done:
	}
}

// AfterFunc schedules fn to run on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Handle {
	t := &loopTimer{loop: l}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		t.stopped.Store(true)
		return t
	}
	l.timers[t] = struct{}{}
	l.mu.Unlock()

	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			l.forget(t)
			// A Stop that raced with the timer firing wins.
			if t.stopped.Swap(true) {
				return
			}
			fn()
		})
	})
	return t
}

// Stop cancels the timer.
func (t *loopTimer) Stop() bool {
	if t.stopped.Swap(true) {
		return false
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.loop.forget(t)
	return true
}

func (l *Loop) forget(t *loopTimer) {
	l.mu.Lock()
	delete(l.timers, t)
	l.mu.Unlock()
}

// Run drains the queue until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			l.Close()
			return
		case <-l.done:
			return
		case fn := <-l.tasks:
			l.execute(fn)
		}
	}
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic in scheduled task: %v", r)
		}
	}()
	fn()
}

// Pending returns the number of armed timers.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

// Close cancels every armed timer and stops the loop. It is safe to call more than once.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	timers := make([]*loopTimer, 0, len(l.timers))
	for t := range l.timers {
		timers = append(timers, t)
	}
	l.timers = make(map[*loopTimer]struct{})
	l.mu.Unlock()

	for _, t := range timers {
		t.stopped.Store(true)
		if t.timer != nil {
			t.timer.Stop()
		}
	}
	close(l.done)
}
