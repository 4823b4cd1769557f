// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transmit

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/m110/pkg/m110"
)

// ErrByteCountMismatch means the payload sent differs from the header's
// declared size. The printer's framing is then unrecoverable for this job.
var ErrByteCountMismatch = errors.New("byte count mismatch")

// Sentinels matched by the typed errors below via errors.Is.
var (
	ErrHeaderWriteFailed  = errors.New("header write failed")
	ErrChunkWriteFailed   = errors.New("chunk write failed")
	ErrCommandWriteFailed = errors.New("command write failed")
)

// HeaderWriteError reports a failed raster header write.
type HeaderWriteError struct {
	Segment int
	Err     error
}

func (e *HeaderWriteError) Error() string {
	return fmt.Sprintf("header write failed for segment %d: %v", e.Segment, e.Err)
}

func (e *HeaderWriteError) Unwrap() error { return e.Err }

func (e *HeaderWriteError) Is(target error) bool { return target == ErrHeaderWriteFailed }

// ChunkWriteError reports a payload chunk that failed every attempt.
// ChunkIndex counts chunks from the start of the raster across segments.
type ChunkWriteError struct {
	ChunkIndex int
	Attempts   int
	Err        error
}

func (e *ChunkWriteError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d attempts: %v", e.ChunkIndex, e.Attempts, e.Err)
}

func (e *ChunkWriteError) Unwrap() error { return e.Err }

func (e *ChunkWriteError) Is(target error) bool { return target == ErrChunkWriteFailed }

// CommandWriteError reports a failed control command outside the payload.
type CommandWriteError struct {
	Command m110.Command
	Err     error
}

func (e *CommandWriteError) Error() string {
	return fmt.Sprintf("%s write failed: %v", e.Command, e.Err)
}

func (e *CommandWriteError) Unwrap() error { return e.Err }

func (e *CommandWriteError) Is(target error) bool { return target == ErrCommandWriteFailed }
