// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

// jobQueue is a FIFO that also allows putting a job back at the head.
// Not safe for concurrent use; the controller guards it.
type jobQueue struct {
	items []*job
}

func (q *jobQueue) Len() int {
	return len(q.items)
}

func (q *jobQueue) PushBack(j *job) {
	q.items = append(q.items, j)
}

func (q *jobQueue) PushFront(j *job) {
	q.items = append(q.items, nil)
	copy(q.items[1:], q.items)
	q.items[0] = j
}

func (q *jobQueue) PopFront() *job {
	if len(q.items) == 0 {
		return nil
	}
	j := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return j
}

// Drain removes and returns every queued job.
func (q *jobQueue) Drain() []*job {
	out := q.items
	q.items = nil
	return out
}
