package state

// A lock marks an administrative operation in progress and wins over the power state.
var lockStates = map[string]State{
	"backup":   Backup,
	"snapshot": Snapshot,
	"clone":    Clone,
	"migrate":  Migrating,
	"rollback": Rollback,
	"suspend":  Suspended,
	"create":   Restore,
}

var statusStates = map[string]State{
	"running":   Running,
	"paused":    Paused,
	"suspended": Suspended,
	"starting":  Starting,
	"stopping":  Stopping,
	"shutdown":  Shutdown,
}

// Classify maps the raw status and lock fields to a canonical State.
// An empty lock means no lock. It never fails: unrecognised input is Unknown.
func Classify(status, lock string) State {
	if lock != "" {
		if s, ok := lockStates[lock]; ok {
			return s
		}
		return Locked
	}
	if status == "stopped" {
		return Stopped
	}
	if s, ok := statusStates[status]; ok {
		return s
	}
	return Unknown
}
