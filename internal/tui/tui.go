// Package tui provides a Bubble Tea dashboard for a running print job.
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/printrescue/internal/monitor"
	"github.com/fakeyudi/printrescue/internal/recovery"
)

// ── Styles ────────────

var (
	// Title bar at the very top
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	// Section heading
	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	// Key=value label
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	okStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

// stateStyles colours the state badge.
var stateStyles = map[monitor.State]lipgloss.Style{
	monitor.StateIdle:       lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	monitor.StateSubscribed: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	monitor.StateMonitoring: lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true),
	monitor.StateFinalizing: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	monitor.StateDone:       lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
}

// maxEvents bounds the activity log.
const maxEvents = 200

// ── Messages ────────────

type updateMsg monitor.Update

type finishedMsg struct {
	result *recovery.Result
	err    error
}

// ── Model ────────────────────

// Model is the root Bubble Tea model for the dashboard.
type Model struct {
	cur      monitor.Update
	events   []string
	bar      progress.Model
	log      viewport.Model
	width    int
	height   int
	ready    bool
	finished bool
	result   *recovery.Result
	err      error
	cancel   context.CancelFunc
	now      func() time.Time
}

// New creates a dashboard model. cancel is called when the user quits.
func New(cancel context.CancelFunc) Model {
	return Model{
		bar:    progress.New(progress.WithDefaultGradient()),
		cancel: cancel,
		now:    time.Now,
	}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			// Stop the monitor; the finished message ends the program.
			if m.cancel != nil {
				m.cancel()
			}
			m.logEvent("stopping, checkpoint kept for the next run")
			return m, nil
		}
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(msg.Width-20, 10)
		m.ready = true
		m.initLog()
		return m, nil

	case updateMsg:
		m.apply(monitor.Update(msg))
		return m, nil

	case finishedMsg:
		m.finished = true
		m.result = msg.result
		m.err = msg.err
		switch {
		case msg.err != nil:
			m.logEvent("failed: " + msg.err.Error())
		case msg.result != nil && msg.result.Written:
			m.logEvent("recovery file written: " + msg.result.RecoveryPath)
		default:
			m.logEvent("nothing to resume")
		}
		return m, tea.Quit
	}
	return m, nil
}

// apply records an update and logs what changed.
func (m *Model) apply(u monitor.Update) {
	prev := m.cur
	m.cur = u
	if u.State != prev.State || len(m.events) == 0 {
		m.logEvent("state " + u.State.String())
	}
	if u.Offset != prev.Offset && u.Offset > 0 {
		m.logEvent(fmt.Sprintf("checkpoint %d", u.Offset))
	}
	if u.FeedRate != prev.FeedRate && u.FeedRate > 0 {
		m.logEvent("feed rate " + recovery.FeedLine(u.FeedRate))
	}
}

func (m *Model) logEvent(text string) {
	line := timeStyle.Render(m.now().Format("15:04:05")) + "  " + text
	m.events = append(m.events, line)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
	if m.ready {
		m.log.SetContent(strings.Join(m.events, "\n"))
		m.log.GotoBottom()
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	name := "waiting for job"
	if m.cur.FilePath != "" {
		name = filepath.Base(m.cur.FilePath)
	}
	title := titleStyle.Width(m.width).Render("  printrescue  " + name)

	statusBar := statusBarStyle.Width(m.width).Render("  ↑/↓ scroll  q stop")

	return lipgloss.JoinVertical(lipgloss.Left, title, m.renderJob(), m.log.View(), statusBar)
}

// jobRows is the height of renderJob's output.
const jobRows = 10

func (m Model) renderJob() string {
	var sb strings.Builder
	sb.WriteString("\n" + sectionHeader.Render("  Job") + "\n\n")

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-12s", label)) + "  " + value + "\n")
	}
	state := stateStyles[m.cur.State].Render(strings.ToUpper(m.cur.State.String()))
	row("State:", state)
	row("File:", orDash(m.cur.FilePath))
	row("Checkpoint:", fmt.Sprintf("%d / %d bytes", m.cur.Offset, m.cur.FileSize))
	row("Feed rate:", feedText(m.cur.FeedRate))
	row("Progress:", m.bar.ViewAs(clamp01(m.cur.Progress)))

	outcome := dimStyle.Render("running")
	switch {
	case m.err != nil:
		outcome = errStyle.Render(m.err.Error())
	case m.result != nil && m.result.Written:
		outcome = okStyle.Render(m.result.RecoveryPath)
	case m.finished:
		outcome = okStyle.Render("nothing to resume")
	}
	row("Outcome:", outcome)
	return sb.String()
}

// ── Log viewport ─────────────────

func (m *Model) initLog() {
	// title(1) + job block + statusBar(1)
	h := m.height - jobRows - 2
	if h < 1 {
		h = 1
	}
	m.log = viewport.New(m.width, h)
	m.log.SetContent(strings.Join(m.events, "\n"))
	m.log.GotoBottom()
}

func orDash(s string) string {
	if s == "" {
		return dimStyle.Render("—")
	}
	return s
}

func feedText(f float64) string {
	if f <= 0 {
		return dimStyle.Render("not reported yet")
	}
	return fmt.Sprintf("%g mm/s", f)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// sender forwards monitor updates to the program.
type sender struct {
	p *tea.Program
}

func (s sender) Observe(u monitor.Update) {
	s.p.Send(updateMsg(u))
}

// Run shows the dashboard while run executes. Quitting the dashboard cancels
// the context passed to run, and Run returns once run has returned.
func Run(ctx context.Context, run func(context.Context, monitor.Observer) (*recovery.Result, error)) (*recovery.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(cancel), tea.WithAltScreen())

	var (
		res    *recovery.Result
		runErr error
		done   = make(chan struct{})
	)
	go func() {
		defer close(done)
		res, runErr = run(ctx, sender{p})
		p.Send(finishedMsg{result: res, err: runErr})
	}()

	_, uiErr := p.Run()
	cancel()
	<-done

	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return res, errors.Join(runErr, fmt.Errorf("dashboard: %w", uiErr))
	}
	return res, runErr
}
