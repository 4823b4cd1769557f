// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import "time"

// Event is a job lifecycle notification.
//
// Names: job_queued, job_started, job_progress, job_requeued, job_done,
// job_failed, job_cleared.
type Event struct {
	Name      string
	JobID     string
	Kind      Kind
	State     State
	Attempt   int
	BytesSent int
	Total     int
	Err       error
	At        time.Time
}

// eventLocked snapshots j. Callers hold c.mu.
func (c *Controller) eventLocked(name string, j *job) Event {
	return Event{
		Name:    name,
		JobID:   j.id,
		Kind:    j.kind,
		State:   j.state,
		Attempt: j.attempts,
		Err:     j.err,
		At:      c.clock.Now(),
	}
}

func (c *Controller) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}
