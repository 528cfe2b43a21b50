package battle

import (
	"math"
	"time"

	"github.com/quizbattle/server/internal/core/ecs"
	"github.com/quizbattle/server/internal/data"
)

// Team is the side a unit fights for.
type Team string

const (
	TeamPlayer Team = "player"
	TeamEnemy  Team = "enemy"
)

// Direction is the sign of lane movement: the player pushes right, the enemy left.
func (t Team) Direction() float64 {
	if t == TeamPlayer {
		return 1
	}
	return -1
}

func (t Team) Opponent() Team {
	if t == TeamPlayer {
		return TeamEnemy
	}
	return TeamPlayer
}

// Unit is the mutable combat state of one deployed unit. Units are owned by
// the Battle's live store; other units refer to them only by id.
type Unit struct {
	ID        ecs.EntityID
	Type      *data.UnitTemplate
	Team      Team
	Health    int
	MaxHealth int
	Dps       int
	Range     float64 // range units; multiply by lane range_scale for pixels
	Speed     float64 // pixels per second
	X         float64
	Weak      bool // spawned with wrong-answer modifiers

	// Target is a weak reference re-validated against the live store every tick.
	Target     ecs.EntityID
	LastAttack time.Time

	consumed bool // hit the opposing base; waiting for cleanup
}

// Alive reports whether the unit can still act as a target.
func (u *Unit) Alive() bool {
	return u.Health > 0 && !u.consumed
}

// Consumed reports whether the unit was spent on a base impact.
func (u *Unit) Consumed() bool { return u.consumed }

// NewUnit builds a unit from its template. Wrong-answer modifiers are applied
// here, once; the resulting stats never change afterwards.
func NewUnit(tmpl *data.UnitTemplate, x float64, team Team, wrongAnswer bool) *Unit {
	hpFactor, dpsFactor := 1.0, 1.0
	if wrongAnswer {
		hpFactor = tmpl.WrongAnswer.HealthFactor
		dpsFactor = tmpl.WrongAnswer.DpsFactor
	}
	maxHP := int(math.Floor(float64(tmpl.Health) * hpFactor))
	return &Unit{
		Type:      tmpl,
		Team:      team,
		Health:    maxHP,
		MaxHealth: maxHP,
		Dps:       int(math.Floor(float64(tmpl.Dps) * dpsFactor)),
		Range:     tmpl.AttackRange(),
		Speed:     tmpl.Speed,
		X:         x,
		Weak:      wrongAnswer,
	}
}

// UnitView is the read-only projection of a unit sent to the presentation layer.
type UnitView struct {
	ID        string  `json:"id"`
	TypeID    string  `json:"type"`
	Team      Team    `json:"team"`
	X         float64 `json:"x"`
	Health    int     `json:"health"`
	MaxHealth int     `json:"max_health"`
	Weak      bool    `json:"weak,omitempty"`
	Target    string  `json:"target,omitempty"`
}

func (u *Unit) View() UnitView {
	v := UnitView{
		ID:        u.ID.String(),
		TypeID:    u.Type.ID,
		Team:      u.Team,
		X:         u.X,
		Health:    u.Health,
		MaxHealth: u.MaxHealth,
		Weak:      u.Weak,
	}
	if !u.Target.IsZero() {
		v.Target = u.Target.String()
	}
	return v
}
