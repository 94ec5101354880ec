package domain

import "fmt"

// Phase enumerates the sequential migration phases.
type Phase string

const (
	PhasePrepare Phase = "prepare"
	PhaseBridge  Phase = "bridge"
	PhaseMigrate Phase = "migrate"
	PhaseCleanup Phase = "cleanup"
)

// Phases lists all phases in execution order.
func Phases() []Phase {
	return []Phase{PhasePrepare, PhaseBridge, PhaseMigrate, PhaseCleanup}
}

// ParsePhase converts user input into a Phase.
func ParsePhase(value string) (Phase, error) {
	switch Phase(value) {
	case PhasePrepare, PhaseBridge, PhaseMigrate, PhaseCleanup:
		return Phase(value), nil
	default:
		return "", fmt.Errorf("unknown phase %q (expected prepare, bridge, migrate or cleanup)", value)
	}
}

// Predecessor returns the phase that must complete before p may run,
// or "" for the first phase.
func (p Phase) Predecessor() Phase {
	switch p {
	case PhaseBridge:
		return PhasePrepare
	case PhaseMigrate:
		return PhaseBridge
	case PhaseCleanup:
		return PhaseMigrate
	default:
		return ""
	}
}
