// Package ui is the optional live dashboard shown while the monitor runs.
package ui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	units "github.com/docker/go-units"

	"github.com/berocorpdotnet/pvewatch/internal/monitor"
	"github.com/berocorpdotnet/pvewatch/internal/notify"
	"github.com/berocorpdotnet/pvewatch/internal/theme"
)

const (
	refreshInterval = 2 * time.Second
	eventRows       = 8
)

// Source is what the dashboard reads; *monitor.Monitor implements it.
type Source interface {
	Tracked() []monitor.Tracked
	Recent() []monitor.Event
	LastSweep() monitor.SweepReport
}

type sortColumn int

const (
	sortByNode sortColumn = iota
	sortByVMID
	sortByName
	sortByState
	sortByChanged
)

type Model struct {
	source       Source
	rows         []monitor.Tracked
	events       []monitor.Event
	last         monitor.SweepReport
	sortBy       sortColumn
	sortReverse  bool
	showEvents   bool
	width        int
	height       int
	keys         keyMap
	lastUpdate   time.Time
	scrollOffset int
	now          func() time.Time
}

type keyMap struct {
	Quit        key.Binding
	SortNode    key.Binding
	SortVMID    key.Binding
	SortName    key.Binding
	SortState   key.Binding
	SortChanged key.Binding
	Reverse     key.Binding
	ToggleFeed  key.Binding
	Up          key.Binding
	Down        key.Binding
}

func NewModel(source Source) Model {
	return Model{
		source:     source,
		sortBy:     sortByNode,
		showEvents: true,
		now:        time.Now,
		keys: keyMap{
			Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
			SortNode:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "sort by node")),
			SortVMID:    key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "sort by VMID")),
			SortName:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "sort by name")),
			SortState:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort by state")),
			SortChanged: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "sort by last change")),
			Reverse:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reverse sort")),
			ToggleFeed:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "toggle notifications")),
			Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll up")),
			Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll down")),
		},
	}
}

// Run blocks until the user quits the dashboard or ctx is done.
func Run(ctx context.Context, source Source) error {
	return run(ctx, source, tea.WithAltScreen())
}

func run(ctx context.Context, source Source, opts ...tea.ProgramOption) error {
	opts = append(opts, tea.WithContext(ctx))
	_, err := tea.NewProgram(NewModel(source), opts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), func() tea.Msg { return tickMsg(m.now()) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, tea.ClearScreen

	case tickMsg:
		m.refresh()
		return m, tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.scrollOffset > 0 {
				m.scrollOffset--
			}
		case key.Matches(msg, m.keys.Down):
			if m.scrollOffset < len(m.rows)-m.tableHeight() {
				m.scrollOffset++
			}
		case key.Matches(msg, m.keys.SortNode):
			m.setSort(sortByNode)
		case key.Matches(msg, m.keys.SortVMID):
			m.setSort(sortByVMID)
		case key.Matches(msg, m.keys.SortName):
			m.setSort(sortByName)
		case key.Matches(msg, m.keys.SortState):
			m.setSort(sortByState)
		case key.Matches(msg, m.keys.SortChanged):
			m.setSort(sortByChanged)
		case key.Matches(msg, m.keys.Reverse):
			m.sortReverse = !m.sortReverse
			m.sortRows()
		case key.Matches(msg, m.keys.ToggleFeed):
			m.showEvents = !m.showEvents
		}
	}
	return m, nil
}

func (m *Model) refresh() {
	m.rows = m.source.Tracked()
	m.events = m.source.Recent()
	m.last = m.source.LastSweep()
	m.lastUpdate = m.now()
	m.sortRows()
}

func (m *Model) setSort(col sortColumn) {
	if m.sortBy == col {
		m.sortReverse = !m.sortReverse
	} else {
		m.sortBy = col
		m.sortReverse = false
	}
	m.sortRows()
}

func (m *Model) sortRows() {
	less := func(a, b monitor.Tracked) bool {
		switch m.sortBy {
		case sortByVMID:
			return a.Identity.VMID < b.Identity.VMID
		case sortByName:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case sortByState:
			return a.State.String() < b.State.String()
		case sortByChanged:
			return a.Since.After(b.Since)
		default:
			if a.Identity.Node != b.Identity.Node {
				return a.Identity.Node < b.Identity.Node
			}
			return a.Identity.VMID < b.Identity.VMID
		}
	}
	sort.SliceStable(m.rows, func(i, j int) bool {
		if m.sortReverse {
			return less(m.rows[j], m.rows[i])
		}
		return less(m.rows[i], m.rows[j])
	})
}

func (m Model) tableHeight() int {
	h := m.height - 6
	if m.showEvents {
		h -= eventRows + 2
	}
	if h < 1 {
		h = 1
	}
	return h
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")
	b.WriteString(m.table())
	if m.showEvents {
		b.WriteString("\n")
		b.WriteString(m.feed())
	}
	b.WriteString("\n")
	b.WriteString(m.help())
	return b.String()
}

func (m Model) header() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.Catppuccin.Blue).Render("pvewatch")

	sweep := "waiting for first sweep"
	if !m.last.Started.IsZero() {
		result := lipgloss.NewStyle().Foreground(theme.Catppuccin.Green).Render("ok")
		switch {
		case m.last.Aborted:
			result = lipgloss.NewStyle().Foreground(theme.Catppuccin.Red).Render("aborted")
		case m.last.NodesSkipped > 0 || m.last.VMsSkipped > 0:
			result = lipgloss.NewStyle().Foreground(theme.Catppuccin.Peach).Render("partial")
		}
		sweep = fmt.Sprintf("last sweep %s %s in %s, %d nodes",
			m.last.Started.Format("15:04:05"), result, m.last.Duration.Round(time.Millisecond), m.last.Nodes)
	}

	info := lipgloss.NewStyle().Foreground(theme.Catppuccin.Subtext1).
		Render(fmt.Sprintf(" · %d VMs tracked · %s", len(m.rows), sweep))
	return title + info
}

func (m Model) table() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.Catppuccin.Subtext1)
	lines := []string{headerStyle.Render(fmt.Sprintf("%-6s %-20s %-10s %-10s %6s %-21s %-14s %s",
		"ID", "NAME", "NODE", "STATE", "CPU%", "MEM", "UPTIME", "SINCE"))}

	if len(m.rows) == 0 {
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.Catppuccin.Overlay0).Render("no VMs observed yet"))
		return strings.Join(lines, "\n")
	}

	end := m.scrollOffset + m.tableHeight()
	if end > len(m.rows) {
		end = len(m.rows)
	}
	for _, t := range m.rows[m.scrollOffset:end] {
		lines = append(lines, m.formatRow(t))
	}
	return strings.Join(lines, "\n")
}

func (m Model) formatRow(t monitor.Tracked) string {
	stateStyle := lipgloss.NewStyle().Foreground(theme.Accent(t.State.Info().Color)).Bold(true)
	memPercent := notify.Percent(t.Mem, t.MaxMem)
	memStyle := lipgloss.NewStyle().Foreground(theme.Usage(memPercent))
	cpuStyle := lipgloss.NewStyle().Foreground(theme.Usage(t.CPU * 100))

	mem := fmt.Sprintf("%s/%s", units.BytesSize(float64(t.Mem)), units.BytesSize(float64(t.MaxMem)))
	since := units.HumanDuration(m.now().Sub(t.Since)) + " ago"

	return strings.Join([]string{
		fmt.Sprintf("%-6d", t.Identity.VMID),
		fmt.Sprintf("%-20s", truncate(t.Name, 20)),
		fmt.Sprintf("%-10s", truncate(t.Identity.Node, 10)),
		stateStyle.Render(fmt.Sprintf("%-10s", t.State)),
		cpuStyle.Render(fmt.Sprintf("%6.1f", t.CPU*100)),
		memStyle.Render(fmt.Sprintf("%-21s", truncate(mem, 21))),
		fmt.Sprintf("%-14s", truncate(shortUptime(t.Uptime), 14)),
		since,
	}, " ")
}

func (m Model) feed() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.Catppuccin.Mauve).Render("Notifications")
	lines := []string{title}
	if len(m.events) == 0 {
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.Catppuccin.Overlay0).Render("none yet"))
	}
	for i, e := range m.events {
		if i == eventRows {
			break
		}
		mark := lipgloss.NewStyle().Foreground(theme.Catppuccin.Green).Render("sent")
		if !e.Delivered {
			mark = lipgloss.NewStyle().Foreground(theme.Catppuccin.Red).Render("FAILED")
		}
		stateText := lipgloss.NewStyle().Foreground(theme.Accent(e.State.Info().Color)).Render(e.State.Info().Title)
		lines = append(lines, fmt.Sprintf("%s  %-12s %-20s %s  %s",
			e.At.Local().Format("15:04:05"), e.Identity.Key(), truncate(e.Name, 20), stateText, mark))
	}
	return strings.Join(lines, "\n")
}

func (m Model) help() string {
	bindings := []key.Binding{
		m.keys.SortNode, m.keys.SortVMID, m.keys.SortName, m.keys.SortState,
		m.keys.SortChanged, m.keys.Reverse, m.keys.ToggleFeed, m.keys.Quit,
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return lipgloss.NewStyle().Foreground(theme.Catppuccin.Overlay0).Render(strings.Join(parts, " • "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}

func shortUptime(seconds int64) string {
	if seconds <= 0 {
		return "—"
	}
	d := seconds / 86400
	h := (seconds % 86400) / 3600
	mins := (seconds % 3600) / 60
	if d > 0 {
		return fmt.Sprintf("%dd %dh", d, h)
	}
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, mins)
	}
	return fmt.Sprintf("%dm %ds", mins, seconds%60)
}
