package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/berocorpdotnet/pvewatch/internal/models"
	"github.com/berocorpdotnet/pvewatch/internal/notify"
	"github.com/berocorpdotnet/pvewatch/internal/state"
)

// Event is one dispatched notification.
type Event struct {
	ID        string
	Identity  models.VMIdentity
	Name      string
	State     state.State
	At        time.Time
	Delivered bool
}

// Tracked is the latest observation of a VM.
type Tracked struct {
	Identity models.VMIdentity
	Name     string
	State    state.State
	CPU      float64
	Mem      int64
	MaxMem   int64
	Uptime   int64
	Since    time.Time
	SeenAt   time.Time
}

// view is the read side used by the dashboard. It never feeds back into
// change detection.
type view struct {
	mu     sync.RWMutex
	vms    map[string]*Tracked
	events []Event
	next   int
	full   bool
	last   SweepReport
}

func newView(size int) *view {
	return &view{
		vms:    make(map[string]*Tracked),
		events: make([]Event, size),
	}
}

func (v *view) track(id models.VMIdentity, s state.State, snap *notify.Snapshot, now time.Time, changed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	t, ok := v.vms[id.Key()]
	if !ok {
		t = &Tracked{Identity: id}
		v.vms[id.Key()] = t
	}
	if changed || !ok {
		t.Since = now
	}
	t.Name = snap.Name
	t.State = s
	t.CPU = snap.CPU
	t.Mem = snap.Mem
	t.MaxMem = snap.MaxMem
	t.Uptime = snap.Uptime
	t.SeenAt = now
}

func (v *view) record(e Event) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events[v.next] = e
	v.next = (v.next + 1) % len(v.events)
	if v.next == 0 {
		v.full = true
	}
}

func (v *view) setLastSweep(r SweepReport) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = r
}

func (v *view) lastSweep() SweepReport {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.last
}

func (v *view) tracked() []Tracked {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]Tracked, 0, len(v.vms))
	for _, t := range v.vms {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Identity.Node != out[j].Identity.Node {
			return out[i].Identity.Node < out[j].Identity.Node
		}
		return out[i].Identity.VMID < out[j].Identity.VMID
	})
	return out
}

func (v *view) recent() []Event {
	v.mu.RLock()
	defer v.mu.RUnlock()

	n := v.next
	if v.full {
		n = len(v.events)
	}
	out := make([]Event, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, v.events[(v.next-i+len(v.events))%len(v.events)])
	}
	return out
}
