// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/m110/pkg/printer"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// jobView is the monitor's copy of one job.
type jobView struct {
	id      string
	name    string
	state   printer.State
	attempt int
	sent    int
	total   int
	err     error
}

// controls is the part of the controller the monitor drives.
type controls interface {
	Stats() printer.Statistics
	ClearQueue() int
	ForceReconnect()
}

// TUI model
type monitorModel struct {
	ctrl          controls
	device        string
	jobs          []*jobView
	byID          map[string]*jobView
	spinner       spinner.Model
	progress      progress.Model
	stats         printer.Statistics
	log           []logEntry
	maxLogEntries int
	failed        int
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type eventMsg printer.Event
type interruptMsg struct{}

func initialMonitorModel(ctrl controls, device string, jobs []submitted) monitorModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	m := monitorModel{
		ctrl:          ctrl,
		device:        device,
		byID:          make(map[string]*jobView, len(jobs)),
		spinner:       sp,
		progress:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		stats:         ctrl.Stats(),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
	for _, j := range jobs {
		v := &jobView{id: j.id, name: j.name, state: printer.StateQueued}
		m.jobs = append(m.jobs, v)
		m.byID[j.id] = v
	}
	return m
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "c":
			n := m.ctrl.ClearQueue()
			m.addLogEntry(fmt.Sprintf("Cleared %d queued job(s)", n), false)
		case "r":
			m.ctrl.ForceReconnect()
			m.addLogEntry("Reconnect requested", false)
		}

	case interruptMsg:
		m.quitting = true
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats = m.ctrl.Stats()
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.applyEvent(printer.Event(msg))
		if m.finished() {
			m.stats = m.ctrl.Stats()
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m *monitorModel) applyEvent(ev printer.Event) {
	v, ok := m.byID[ev.JobID]
	if !ok {
		return
	}
	if v.state.Terminal() {
		return
	}

	v.state = ev.State
	v.attempt = ev.Attempt
	switch ev.Name {
	case "job_started":
		v.sent, v.total = 0, 0
		m.addLogEntry(fmt.Sprintf("%s: printing (attempt %d)", v.name, ev.Attempt), false)
	case "job_progress":
		v.sent, v.total = ev.BytesSent, ev.Total
	case "job_requeued":
		v.err = ev.Err
		m.addLogEntry(fmt.Sprintf("%s: retrying after %v", v.name, ev.Err), true)
	case "job_done":
		v.sent = ev.BytesSent
		v.total = ev.BytesSent
		m.addLogEntry(fmt.Sprintf("%s: done, %d bytes", v.name, ev.BytesSent), false)
	case "job_failed", "job_cleared":
		v.err = ev.Err
		m.failed++
		m.addLogEntry(fmt.Sprintf("%s: %s", v.name, printer.ErrorKind(ev.Err)), true)
	}
}

// finished reports whether every job reached a terminal state.
func (m monitorModel) finished() bool {
	for _, v := range m.jobs {
		if !v.state.Terminal() {
			return false
		}
	}
	return true
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.log = append(m.log, entry)

	// Keep only last N entries
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

// summary is printed after the TUI exits.
func (m monitorModel) summary() string {
	var s strings.Builder
	for _, v := range m.jobs {
		if v.state == printer.StateDone {
			fmt.Fprintf(&s, "done    %s\n", v.name)
		} else {
			fmt.Fprintf(&s, "failed  %s: %v\n", v.name, v.err)
		}
	}
	s.WriteString("\n")
	s.WriteString(m.stats.String())
	return s.String()
}

// formatUptime formats a duration as "1h 2m 3s"
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	parts := []string{}
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if h > 0 || mins > 0 {
		parts = append(parts, fmt.Sprintf("%dm", mins))
	}
	parts = append(parts, fmt.Sprintf("%ds", secs))
	return strings.Join(parts, " ")
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("M110 - PRINT MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Device: %s | 'c' clear queue | 'r' reconnect | 'q' quit", m.device)))
	s.WriteString("\n\n")

	// Statistics
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Jobs:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.Total)),
		statsLabelStyle.Render("Done:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.Succeeded)),
		statsLabelStyle.Render("Failed:"), func() string {
			if m.stats.Failed > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", m.stats.Failed))
			}
			return statsValueStyle.Render("0")
		}(),
		statsLabelStyle.Render("Queued:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.QueueLen)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		statsLabelStyle.Render("Requeued:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.Requeued)),
		statsLabelStyle.Render("Reconnects:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.Reconnections)),
		statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d B", m.stats.BytesSent)),
		statsLabelStyle.Render("Uptime:"), statsValueStyle.Render(formatUptime(m.stats.Uptime())),
	))
	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Jobs
	s.WriteString(statsLabelStyle.Render("Jobs:"))
	s.WriteString("\n")
	jobContent := strings.Builder{}
	for _, v := range m.jobs {
		switch v.state {
		case printer.StatePrinting:
			pct := 0.0
			if v.total > 0 {
				pct = float64(v.sent) / float64(v.total)
			}
			jobContent.WriteString(fmt.Sprintf("%s %s %s\n", m.spinner.View(), v.name, m.progress.ViewAs(pct)))
		case printer.StateDone:
			jobContent.WriteString(statsValueStyle.Render("✓ "+v.name) + "\n")
		case printer.StateFailed:
			jobContent.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s (%s)", v.name, printer.ErrorKind(v.err))) + "\n")
		default:
			label := "· " + v.name
			if v.attempt > 0 {
				label += fmt.Sprintf(" (retry %d)", v.attempt)
			}
			jobContent.WriteString(headerStyle.Render(label) + "\n")
		}
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(strings.TrimRight(jobContent.String(), "\n")))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 14 - len(m.jobs)
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.log) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.log) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.log); i++ {
			entry := m.log[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
