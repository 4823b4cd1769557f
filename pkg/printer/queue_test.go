// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import "testing"

func TestJobQueue(t *testing.T) {
	var q jobQueue
	if q.PopFront() != nil {
		t.Fatal("PopFront() on empty queue returned a job")
	}

	a, b, c := &job{id: "a"}, &job{id: "b"}, &job{id: "c"}
	q.PushBack(a)
	q.PushBack(b)
	q.PushFront(c)

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	for _, want := range []string{"c", "a", "b"} {
		if got := q.PopFront(); got == nil || got.id != want {
			t.Fatalf("PopFront() = %v, want %s", got, want)
		}
	}

	q.PushBack(a)
	q.PushBack(b)
	if got := q.Drain(); len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("Drain() = %v", got)
	}
	if q.Len() != 0 {
		t.Errorf("Len() after Drain = %d", q.Len())
	}
}
