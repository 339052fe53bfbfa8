// Package lifecycle implements the declarative phase state machine that
// gates service registration and scoped resolution.
package lifecycle

// Phase is a lifecycle state.
type Phase string

const (
	Initializing Phase = "initializing"
	Bootstrap    Phase = "bootstrap"
	Ready        Phase = "ready"
	Failed       Phase = "failed"
	Shutdown     Phase = "shutdown"
)

// Table maps a phase to the set of phases it may transition into. A phase
// absent from the table, or mapped to an empty slice, is terminal.
type Table map[Phase][]Phase

// DefaultTable is the lifecycle required by the framework root:
//
//	Initializing -> { Bootstrap, Failed }
//	Bootstrap    -> { Ready, Failed }
//	Ready        -> { Shutdown }
//	Failed       -> { Shutdown }
//	Shutdown     -> terminal
func DefaultTable() Table {
	return Table{
		Initializing: {Bootstrap, Failed},
		Bootstrap:    {Ready, Failed},
		Ready:        {Shutdown},
		Failed:       {Shutdown},
	}
}

func (t Table) allows(from, to Phase) bool {
	for _, candidate := range t[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
