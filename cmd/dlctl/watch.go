package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/arjwright/dlctl/engine/scheduler"
	"github.com/arjwright/dlctl/engine/task"
)

// watchModel is a bubbletea program over a running Scheduler: one row per
// task, refreshed on a tick, with p/r/x driving Pause/Resume/Cancel on the
// selected row. Grounded on internal/tui/model.go's RootModel (list of
// DownloadModel rows polled via a reporter) and internal/tui/components/
// status.go's icon+color-per-state rendering, collapsed to a single list
// view since the multi-tab/history/filepicker TUI states are out of scope.
type watchModel struct {
	sched  *scheduler.Scheduler
	ids    []string
	rows   []task.Snapshot
	cursor int
	bar    progress.Model
	done   bool
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func newWatchModel(sched *scheduler.Scheduler, ids []string) watchModel {
	return watchModel{
		sched: sched,
		ids:   ids,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

func (m watchModel) Init() tea.Cmd {
	return tickCmd()
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.done = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case "p":
			if row, ok := m.selected(); ok {
				_ = m.sched.Pause(row.ID)
			}
		case "r":
			if row, ok := m.selected(); ok {
				_ = m.sched.Resume(row.ID)
			}
		case "x":
			if row, ok := m.selected(); ok {
				_ = m.sched.Cancel(row.ID)
			}
		}
		return m, nil

	case tickMsg:
		m.rows = m.sched.GetTasksWhere(func(s task.Snapshot) bool {
			for _, id := range m.ids {
				if s.ID == id {
					return true
				}
			}
			return false
		})
		if m.cursor >= len(m.rows) {
			m.cursor = len(m.rows) - 1
		}
		if allTerminal(m.rows, len(m.ids)) {
			m.done = true
			return m, tea.Quit
		}
		return m, tickCmd()
	}
	return m, nil
}

func allTerminal(rows []task.Snapshot, want int) bool {
	if len(rows) < want {
		return false
	}
	for _, r := range rows {
		if !r.State.Terminal() {
			return false
		}
	}
	return true
}

func (m watchModel) selected() (task.Snapshot, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return task.Snapshot{}, false
	}
	return m.rows[m.cursor], true
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render("dlctl"))
	b.WriteString("  (p)ause  (r)esume  (x)cancel  (q)uit\n\n")

	for i, row := range m.rows {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		pct := float64(row.Progress) / 100
		bar := m.bar.ViewAs(pct)
		style := stateStyle(row.State)
		fmt.Fprintf(&b, "%s%-8s %s %3d%%  %-10s  %s\n",
			cursor, shortID(row.ID), bar, row.Progress, row.Speed.Formatted, style.Render(row.State.String()))
		if row.Err != nil {
			fmt.Fprintf(&b, "        %s\n", lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render(row.Err.Error()))
		}
	}
	return b.String()
}

func stateStyle(s task.State) lipgloss.Style {
	var color lipgloss.Color
	switch s {
	case task.StateDownloading:
		color = lipgloss.Color("12")
	case task.StatePaused:
		color = lipgloss.Color("11")
	case task.StateCompleted:
		color = lipgloss.Color("10")
	case task.StateFailed:
		color = lipgloss.Color("9")
	case task.StateCancelled:
		color = lipgloss.Color("8")
	default:
		color = lipgloss.Color("7")
	}
	return lipgloss.NewStyle().Foreground(color)
}

// runWatch drives the bubbletea program until every task in ids reaches a
// terminal state or the user quits.
func runWatch(sched *scheduler.Scheduler, ids []string) {
	p := tea.NewProgram(newWatchModel(sched, ids))
	_, _ = p.Run()
}
