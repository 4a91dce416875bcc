package state

import (
	"sync"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status string
		want   State
	}{
		{"running", Running},
		{"stopped", Stopped},
		{"paused", Paused},
		{"suspended", Suspended},
		{"starting", Starting},
		{"stopping", Stopping},
		{"shutdown", Shutdown},
		{"", Unknown},
		{"prelaunch", Unknown},
		{"RUNNING", Unknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.status, ""); got != tt.want {
			t.Errorf("Classify(%q, \"\") = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestClassifyLockWinsOverStatus(t *testing.T) {
	locks := map[string]State{
		"backup":   Backup,
		"snapshot": Snapshot,
		"clone":    Clone,
		"migrate":  Migrating,
		"rollback": Rollback,
		"suspend":  Suspended,
		"create":   Restore,
		"disk":     Locked,
		"mounted":  Locked,
	}
	statuses := []string{"running", "stopped", "paused", "suspended", "starting", "stopping", "shutdown", "", "bogus"}

	for lock, want := range locks {
		for _, status := range statuses {
			if got := Classify(status, lock); got != want {
				t.Errorf("Classify(%q, %q) = %v, want %v", status, lock, got, want)
			}
		}
	}
}

func TestClassifyUnlistedLockIsLocked(t *testing.T) {
	for _, lock := range []string{"  ", " backup", "Backup", "disk-move"} {
		if got := Classify("running", lock); got != Locked {
			t.Errorf("Classify(running, %q) = %v, want locked", lock, got)
		}
	}
	if got := Classify("running", ""); got != Running {
		t.Errorf("empty lock: got %v, want running", got)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		if Classify("running", "backup") != Backup || Classify("weird", "") != Unknown {
			t.Fatal("classification changed between calls")
		}
	}
}

func TestInfoCoversEveryState(t *testing.T) {
	names := make(map[string]State)
	for _, s := range All() {
		info := s.Info()
		if info.Name == "" || info.Title == "" || info.Description == "" {
			t.Errorf("state %d has incomplete info: %+v", s, info)
		}
		if prev, dup := names[info.Name]; dup {
			t.Errorf("state %d reuses name %q of state %d", s, info.Name, prev)
		}
		names[info.Name] = s
	}
	if got := State(99).Info(); got != Unknown.Info() {
		t.Errorf("out-of-range state info = %+v, want unknown", got)
	}
}

func TestDetectorEdgeTriggered(t *testing.T) {
	d := NewDetector()
	key := "pve1-101"

	if !d.Observe(key, Running) {
		t.Fatal("first observation must fire")
	}
	for i := 0; i < 5; i++ {
		if d.Observe(key, Running) {
			t.Fatalf("repeat %d of unchanged state fired", i)
		}
	}
	if !d.Observe(key, Backup) {
		t.Fatal("change to backup must fire")
	}
	if !d.Observe(key, Running) {
		t.Fatal("change back to running must fire")
	}
	if got, _ := d.Last(key); got != Running {
		t.Errorf("last state = %v, want running", got)
	}
}

func TestDetectorFirstObservationAlwaysFires(t *testing.T) {
	d := NewDetector()
	for i, s := range All() {
		key := "pve1-" + s.String()
		if !d.Observe(key, s) {
			t.Errorf("first observation of %v (case %d) did not fire", s, i)
		}
	}
	if d.Len() != len(All()) {
		t.Errorf("table has %d entries, want %d", d.Len(), len(All()))
	}
}

func TestDetectorKeysAreIndependent(t *testing.T) {
	d := NewDetector()
	d.Observe("pve1-101", Running)
	if !d.Observe("pve2-101", Running) {
		t.Error("same vmid on another node must be tracked separately")
	}
}

func TestDetectorConcurrentSameKeyFiresOnce(t *testing.T) {
	d := NewDetector()
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fires int
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.Observe("pve1-200", Stopped) {
				mu.Lock()
				fires++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if fires != 1 {
		t.Errorf("fires = %d, want 1", fires)
	}
}

func TestStoppedKeepsOriginalDescription(t *testing.T) {
	if got := Stopped.Info().Description; got != "The server is being forcibly stopped." {
		t.Errorf("Stopped description = %q", got)
	}
}
