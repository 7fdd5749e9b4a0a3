// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scheduler provides the task-plus-delay abstraction the performance engine runs on.
// Every callback scheduled through a Scheduler executes on a single logical owner, so the
// state it touches needs no further synchronisation.
package scheduler

import "time"

// Handle cancels a scheduled task.
type Handle interface {
	// Stop prevents the task from running. It reports whether the task was still pending.
	Stop() bool
}

// Scheduler runs callbacks on one logical owner.
type Scheduler interface {
	// Now returns the scheduler's notion of the current time.
	Now() time.Time

	// AfterFunc runs fn once d has elapsed. The returned handle cancels it.
	AfterFunc(d time.Duration, fn func()) Handle

	// Post runs fn as soon as the owner is free.
	Post(fn func())
}
