package ui

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/berocorpdotnet/pvewatch/internal/models"
	"github.com/berocorpdotnet/pvewatch/internal/monitor"
	"github.com/berocorpdotnet/pvewatch/internal/state"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type fakeSource struct{}

func (fakeSource) Tracked() []monitor.Tracked {
	return []monitor.Tracked{
		{Identity: models.VMIdentity{Node: "pve2", VMID: 205}, Name: "backup-target", State: state.Backup, Mem: 1 << 30, MaxMem: 4 << 30, Since: now.Add(-time.Minute)},
		{Identity: models.VMIdentity{Node: "pve1", VMID: 101}, Name: "web01", State: state.Running, CPU: 0.9, Uptime: 3661, Since: now.Add(-time.Hour)},
	}
}

func (fakeSource) Recent() []monitor.Event {
	return []monitor.Event{
		{ID: "e2", Identity: models.VMIdentity{Node: "pve2", VMID: 205}, Name: "backup-target", State: state.Backup, At: now, Delivered: false},
		{ID: "e1", Identity: models.VMIdentity{Node: "pve1", VMID: 101}, Name: "web01", State: state.Running, At: now.Add(-time.Hour), Delivered: true},
	}
}

func (fakeSource) LastSweep() monitor.SweepReport {
	return monitor.SweepReport{Started: now, Duration: 150 * time.Millisecond, Nodes: 2}
}

func ready(t *testing.T) Model {
	t.Helper()
	m := NewModel(fakeSource{})
	m.now = func() time.Time { return now }
	next, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	next, _ = next.Update(tickMsg(now))
	return next.(Model)
}

func TestViewShowsTrackedVMsAndFeed(t *testing.T) {
	m := ready(t)
	view := m.View()

	for _, want := range []string{"web01", "backup-target", "backup", "running", "Notifications", "FAILED", "2 VMs tracked", "1h 1m"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestSortKeys(t *testing.T) {
	m := ready(t)
	if m.rows[0].Identity.Node != "pve1" {
		t.Fatalf("default sort by node: first = %v", m.rows[0].Identity)
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'v'}})
	m = next.(Model)
	if m.rows[0].Identity.VMID != 101 {
		t.Errorf("sort by vmid: first = %d", m.rows[0].Identity.VMID)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	m = next.(Model)
	if m.rows[0].Identity.VMID != 205 {
		t.Errorf("reversed: first = %d", m.rows[0].Identity.VMID)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	m = next.(Model)
	if m.rows[0].Name != "backup-target" {
		t.Errorf("sort by last change: first = %s", m.rows[0].Name)
	}
}

func TestToggleFeedAndQuit(t *testing.T) {
	m := ready(t)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'e'}})
	m = next.(Model)
	if strings.Contains(m.View(), "Notifications") {
		t.Error("feed still shown after toggle")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("quit returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestTruncateAndUptime(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Errorf("truncate = %q", got)
	}
	if got := shortUptime(0); got != "—" {
		t.Errorf("shortUptime(0) = %q", got)
	}
	if got := shortUptime(90061); got != "1d 1h" {
		t.Errorf("shortUptime(90061) = %q", got)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, fakeSource{}, tea.WithInput(nil), tea.WithOutput(io.Discard))
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("dashboard kept running after its context was cancelled")
	}
}
