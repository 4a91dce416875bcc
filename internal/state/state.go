// Package state derives a canonical VM state from raw Proxmox status fields
// and decides when a change of that state is worth a notification.
package state

// State is the closed set of canonical VM states.
type State int

const (
	Unknown State = iota
	Running
	Stopped
	Paused
	Suspended
	Starting
	Stopping
	Shutdown
	Backup
	Snapshot
	Clone
	Migrating
	Rollback
	Restore
	Locked

	numStates
)

// Info is the fixed presentation of a State.
type Info struct {
	Name        string
	Title       string
	Description string
	Color       int
}

// Indexed by State.
var infos = [numStates]Info{
	Unknown:   {"unknown", "VM Status Unknown", "The VM reported a status that could not be recognised.", 0x95A5A6},
	Running:   {"running", "VM Running", "The virtual machine is ready.", 0x00FF00},
	Stopped:   {"stopped", "VM Stopped", "The server is being forcibly stopped.", 0xFF0000},
	Paused:    {"paused", "VM Paused", "The VM is currently paused.", 0xFFA500},
	Suspended: {"suspended", "VM Suspended", "The VM is in a suspended state.", 0x808080},
	Starting:  {"starting", "VM Starting", "The VM is booting.", 0x90EE90},
	Stopping:  {"stopping", "VM Stopping", "The VM is being stopped.", 0xFF8C00},
	Shutdown:  {"shutdown", "VM Shutting Down", "The guest is shutting down.", 0x8B0000},
	Backup:    {"backup", "Backup in Progress", "Backup is being created.", 0x0000FF},
	Snapshot:  {"snapshot", "Snapshot in Progress", "A snapshot is being taken.", 0x00CED1},
	Clone:     {"clone", "Clone in Progress", "The VM is being cloned.", 0x4682B4},
	Migrating: {"migrating", "VM Migrating", "The VM is being migrated to another node.", 0x1E90FF},
	Rollback:  {"rollback", "Rollback in Progress", "The VM is being rolled back to a snapshot.", 0xDAA520},
	Restore:   {"restore", "Restoring Backup", "Backup is being restored.", 0x800080},
	Locked:    {"locked", "VM Locked", "The VM is locked by an administrative operation.", 0xFFD700},
}

// All returns every State in declaration order.
func All() []State {
	out := make([]State, 0, numStates)
	for s := Unknown; s < numStates; s++ {
		out = append(out, s)
	}
	return out
}

// Info returns the presentation of s. Out-of-range values read as Unknown.
func (s State) Info() Info {
	if s < 0 || s >= numStates {
		return infos[Unknown]
	}
	return infos[s]
}

func (s State) String() string {
	return s.Info().Name
}
