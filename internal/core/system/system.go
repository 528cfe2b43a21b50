package system

import "time"

// Phase defines execution ordering within a single simulation tick.
// Later phases observe everything earlier phases did in the same tick.
type Phase int

const (
	PhaseReap    Phase = iota // 0: remove units that died or were consumed last tick
	PhaseCombat               // 1: targeting, attacks, movement, base impacts
	PhaseResolve              // 2: win conditions
	PhaseOutput               // 3: flush events, emit snapshot
)

func (p Phase) String() string {
	switch p {
	case PhaseReap:
		return "reap"
	case PhaseCombat:
		return "combat"
	case PhaseResolve:
		return "resolve"
	case PhaseOutput:
		return "output"
	}
	return "unknown"
}

// System is the interface every simulation system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
