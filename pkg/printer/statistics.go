// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"fmt"
	"time"
)

// Statistics tracks job outcomes and link activity.
type Statistics struct {
	StartTime   time.Time
	LastPrintAt time.Time

	// Counters
	Total         uint64
	Succeeded     uint64
	Failed        uint64
	Cleared       uint64
	Requeued      uint64
	Reconnections uint64
	ImageJobs     uint64
	TextJobs      uint64
	BytesSent     uint64

	// Gauge
	QueueLen int

	// Rates (calculated)
	JobRate   float64 // completed jobs/min
	ByteRate  float64 // payload bytes/sec
	uptimeRef time.Time
}

// NewStatistics creates a new statistics tracker
func NewStatistics(now time.Time) *Statistics {
	return &Statistics{
		StartTime: now,
		uptimeRef: now,
	}
}

// recordSubmit counts an accepted job by kind
func (s *Statistics) recordSubmit(kind Kind) {
	s.Total++
	switch kind {
	case KindImage:
		s.ImageJobs++
	case KindText:
		s.TextJobs++
	}
}

// recordOutcome counts a terminal job
func (s *Statistics) recordOutcome(state State, err error) {
	switch {
	case state == StateDone:
		s.Succeeded++
	case err != nil && ErrorKind(err) == "cleared":
		s.Cleared++
	default:
		s.Failed++
	}
}

// CalculateRates calculates job and byte rates relative to now
func (s *Statistics) CalculateRates(now time.Time) {
	elapsed := now.Sub(s.StartTime)
	if elapsed > 0 {
		s.JobRate = float64(s.Succeeded+s.Failed) / elapsed.Minutes()
		s.ByteRate = float64(s.BytesSent) / elapsed.Seconds()
	}
	s.uptimeRef = now
}

// Uptime returns the time since the controller was created, as of the last rate calculation
func (s *Statistics) Uptime() time.Duration {
	return s.uptimeRef.Sub(s.StartTime)
}

// String returns a formatted statistics summary
func (s Statistics) String() string {
	var okPercent, failPercent float64
	if finished := s.Succeeded + s.Failed; finished > 0 {
		okPercent = float64(s.Succeeded) * 100.0 / float64(finished)
		failPercent = float64(s.Failed) * 100.0 / float64(finished)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", s.Uptime().Seconds())
	result += fmt.Sprintf("Total Jobs:      %8d\n", s.Total)
	result += fmt.Sprintf("Succeeded:       %8d (%.1f%%)\n", s.Succeeded, okPercent)
	result += fmt.Sprintf("Failed:          %8d (%.1f%%)\n", s.Failed, failPercent)

	if s.Cleared > 0 {
		result += fmt.Sprintf("Cleared:         %8d\n", s.Cleared)
	}
	if s.Requeued > 0 {
		result += fmt.Sprintf("Requeued:        %8d\n", s.Requeued)
	}
	if s.ImageJobs > 0 || s.TextJobs > 0 {
		result += fmt.Sprintf("  Images:           %5d\n", s.ImageJobs)
		result += fmt.Sprintf("  Text:             %5d\n", s.TextJobs)
	}

	result += fmt.Sprintf("Queue Length:    %8d\n", s.QueueLen)
	result += fmt.Sprintf("Reconnections:   %8d\n", s.Reconnections)
	result += fmt.Sprintf("Bytes Sent:      %8d\n", s.BytesSent)
	if !s.LastPrintAt.IsZero() {
		result += fmt.Sprintf("Last Print:      %s\n", s.LastPrintAt.Format("15:04:05.000"))
	}
	result += fmt.Sprintf("Job Rate:        %8.1f jobs/min\n", s.JobRate)
	result += fmt.Sprintf("Byte Rate:       %8.1f bytes/sec\n", s.ByteRate)
	result += "================================\n"

	return result
}
