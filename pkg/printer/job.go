// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/m110/pkg/link"
	"github.com/Thermoquad/m110/pkg/m110"
	"github.com/Thermoquad/m110/pkg/transmit"
)

// State is a job's position in its lifecycle.
type State int

const (
	StateUnknown State = iota
	StateQueued
	StatePrinting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StatePrinting:
		return "printing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the job can no longer change state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Kind records where a job came from, for statistics.
type Kind string

const (
	KindRaw   Kind = "raw"
	KindImage Kind = "image"
	KindText  Kind = "text"
)

var (
	ErrBackpressure = errors.New("print queue full")
	ErrUnreachable  = errors.New("printer unreachable")
	ErrCleared      = errors.New("removed from queue")
)

type job struct {
	id          string
	kind        Kind
	submittedAt time.Time
	finishedAt  time.Time
	attempts    int
	state       State
	err         error

	// Exactly one is set until the job reaches a terminal state.
	raster *m110.Raster
	bitmap *m110.Bitmap
}

// Status is a snapshot of a job.
type Status struct {
	ID          string
	Kind        Kind
	State       State
	Attempts    int
	SubmittedAt time.Time
	FinishedAt  time.Time
	Err         error
}

// FailureKind names the error class of a failed job, empty otherwise.
func (s Status) FailureKind() string {
	if s.State != StateFailed {
		return ""
	}
	return ErrorKind(s.Err)
}

func (s Status) String() string {
	if s.State == StateFailed {
		return fmt.Sprintf("failed{%s}", s.FailureKind())
	}
	return s.State.String()
}

func (j *job) status() Status {
	return Status{
		ID:          j.id,
		Kind:        j.kind,
		State:       j.state,
		Attempts:    j.attempts,
		SubmittedAt: j.submittedAt,
		FinishedAt:  j.finishedAt,
		Err:         j.err,
	}
}

// ErrorKind classifies err into the names used in job status and events.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrCleared):
		return "cleared"
	case errors.Is(err, transmit.ErrByteCountMismatch):
		return "byte_count_mismatch"
	case errors.Is(err, m110.ErrOverflow):
		return "overflow"
	case errors.Is(err, m110.ErrInvalidSource), errors.Is(err, m110.ErrInvalidDim):
		return "invalid_source"
	case errors.Is(err, transmit.ErrHeaderWriteFailed):
		return "header_write_failed"
	case errors.Is(err, transmit.ErrChunkWriteFailed):
		return "chunk_write_failed"
	case errors.Is(err, link.ErrTimeout):
		return "timeout"
	case errors.Is(err, link.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, link.ErrIO):
		return "io"
	}
	return "error"
}

// isTransient decides whether a failed attempt is worth a reconnect and retry.
// This is the only place transient and fatal errors are told apart.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, transmit.ErrByteCountMismatch),
		errors.Is(err, m110.ErrOverflow),
		errors.Is(err, m110.ErrInvalidSource),
		errors.Is(err, m110.ErrInvalidDim),
		errors.Is(err, m110.ErrRowsOutOfRange),
		errors.Is(err, m110.ErrArgument):
		return false
	}
	return link.IsTransient(err)
}
