// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by an explicit virtual clock. Posted tasks run immediately on
// the caller's goroutine and timers fire only from Advance. It is meant for tests and replay.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	m       *Manual
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
}

// NewManual creates a manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Post runs fn immediately.
func (m *Manual) Post(fn func()) {
	fn()
}

// AfterFunc registers fn to fire once the virtual clock reaches now+d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, at: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Stop cancels the timer.
func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	for i, other := range t.m.timers {
		if other == t {
			t.m.timers = append(t.m.timers[:i], t.m.timers[i+1:]...)
			break
		}
	}
	return true
}

// Advance moves the clock forward by d, firing due timers in deadline order. Timers armed by
// a firing callback run in the same call when they fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	m.mu.Lock()
	if m.now.Before(target) {
		m.now = target
	}
	m.mu.Unlock()
}

func (m *Manual) nextDue(target time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.timers) == 0 {
		return nil
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	t := m.timers[0]
	if t.at.After(target) {
		return nil
	}
	m.timers = m.timers[1:]
	t.stopped = true
	if t.at.After(m.now) {
		m.now = t.at
	}
	return t
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
