package state

import "sync"

// Detector holds the last observed State per VM key. It is edge-triggered:
// only the first observation of a key and real changes fire.
//
// The zero value is not usable; call NewDetector.
type Detector struct {
	mu   sync.Mutex
	last map[string]State
}

func NewDetector() *Detector {
	return &Detector{last: make(map[string]State)}
}

// Observe records s for key and reports whether a notification must fire.
// Calls for the same key are serialized, so concurrent sweeps never both fire
// for one transition.
func (d *Detector) Observe(key string, s State) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, seen := d.last[key]
	if seen && prev == s {
		return false
	}
	d.last[key] = s
	return true
}

// Last returns the recorded State for key.
func (d *Detector) Last(key string) (State, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.last[key]
	return s, ok
}

func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.last)
}
