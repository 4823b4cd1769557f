// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/m110/pkg/printer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// submitted is a queued job and the name shown for it.
type submitted struct {
	id   string
	name string
}

// defaultTUI is true when stdout is a terminal.
func defaultTUI() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// runJobs opens a session, submits jobs and follows them until they finish,
// the user quits or the process is interrupted.
func runJobs(cmd *cobra.Command, useTUI bool, submit func(s *session) ([]submitted, error)) error {
	events := make(chan printer.Event, 1024)
	forward := func(ev printer.Event) {
		switch ev.Name {
		case "job_queued", "job_progress":
			// Droppable; the display catches up on the next event.
			select {
			case events <- ev:
			default:
			}
		default:
			events <- ev
		}
	}

	s, err := openSession(cmd, useTUI, forward)
	if err != nil {
		return err
	}
	defer s.close()

	jobs, err := submit(s)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		s.ctrl.Run(workerCtx)
		close(workerDone)
	}()
	defer func() {
		cancelWorker()
		<-workerDone
	}()

	var failed int
	if useTUI {
		failed, err = followTUI(ctx, s, events, jobs)
	} else {
		failed, err = followText(ctx, s, events, jobs)
	}

	if err != nil {
		// Queued jobs are dropped; a job already printing runs to the end.
		if n := s.ctrl.ClearQueue(); n > 0 {
			fmt.Fprintf(os.Stderr, "Dropped %d queued job(s), waiting for the current job to finish\n", n)
		}
		return err
	}

	if !useTUI {
		fmt.Print("\n" + s.ctrl.Stats().String())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d job(s) failed", failed, len(jobs))
	}
	return nil
}

// followText prints job events line by line until every job is terminal.
func followText(ctx context.Context, s *session, events <-chan printer.Event, jobs []submitted) (int, error) {
	names := make(map[string]string, len(jobs))
	pending := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		names[j.id] = j.name
		pending[j.id] = true
	}
	fmt.Printf("m110 - printing %d job(s) on %s\n", len(jobs), s.link.Device())
	fmt.Printf("Press Ctrl+C to stop\n\n")

	lastQuarter := make(map[string]int)
	failed := 0
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return failed, ctx.Err()
		case ev := <-events:
			if !pending[ev.JobID] {
				continue
			}
			if ev.Name == "job_progress" {
				if ev.Total == 0 {
					continue
				}
				q := ev.BytesSent * 4 / ev.Total
				if q <= lastQuarter[ev.JobID] {
					continue
				}
				lastQuarter[ev.JobID] = q
			}
			if ev.Name == "job_requeued" {
				delete(lastQuarter, ev.JobID)
			}
			printEvent(ev, names[ev.JobID])

			switch ev.Name {
			case "job_done":
				delete(pending, ev.JobID)
			case "job_failed", "job_cleared":
				failed++
				delete(pending, ev.JobID)
			}
		}
	}
	return failed, nil
}

// printEvent prints one event in highlighted format
func printEvent(ev printer.Event, name string) {
	timestamp := ev.At.Format("15:04:05.000")
	if ev.At.IsZero() {
		timestamp = time.Now().Format("15:04:05.000")
	}

	switch ev.Name {
	case "job_queued":
		fmt.Printf("[%s] QUEUED    %s\n", timestamp, name)
	case "job_started":
		fmt.Printf("[%s] \033[1;36mPRINTING\033[0m  %s (attempt %d)\n", timestamp, name, ev.Attempt)
	case "job_progress":
		fmt.Printf("[%s] %8.0f%%  %s (%d/%d bytes)\n", timestamp,
			float64(ev.BytesSent)*100/float64(ev.Total), name, ev.BytesSent, ev.Total)
	case "job_requeued":
		fmt.Printf("[%s] \033[1;33mRETRY\033[0m     %s: %v\n", timestamp, name, ev.Err)
	case "job_done":
		fmt.Printf("[%s] \033[1;32mDONE\033[0m      %s (%d bytes)\n", timestamp, name, ev.BytesSent)
	case "job_failed", "job_cleared":
		fmt.Printf("[%s] \033[1;31mFAILED\033[0m    %s: %s: %v\n", timestamp, name, printer.ErrorKind(ev.Err), ev.Err)
	}
}

// followTUI runs the monitor until every job is terminal or the user quits.
func followTUI(ctx context.Context, s *session, events <-chan printer.Event, jobs []submitted) (int, error) {
	m := initialMonitorModel(s.ctrl, s.link.Device(), jobs)
	p := tea.NewProgram(m, tea.WithAltScreen())

	stopForward := make(chan struct{})
	defer close(stopForward)
	go func() {
		for {
			select {
			case <-stopForward:
				return
			case <-ctx.Done():
				p.Send(interruptMsg{})
				return
			case ev := <-events:
				p.Send(eventMsg(ev))
			}
		}
	}()

	final, err := p.Run()
	if err != nil {
		return 0, fmt.Errorf("TUI error: %v", err)
	}

	fm := final.(monitorModel)
	if !fm.finished() {
		return fm.failed, context.Canceled
	}
	fmt.Print(fm.summary())
	return fm.failed, nil
}
