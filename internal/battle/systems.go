package battle

import (
	"time"

	"github.com/quizbattle/server/internal/core/ecs"
	"github.com/quizbattle/server/internal/core/event"
	coresys "github.com/quizbattle/server/internal/core/system"
	"go.uber.org/zap"
)

// reapSystem removes units that died or were consumed during the previous
// tick, before anything reads them this tick.
type reapSystem struct{ b *Battle }

func (s *reapSystem) Phase() coresys.Phase { return coresys.PhaseReap }

func (s *reapSystem) Update(_ time.Duration) {
	b := s.b
	b.store.Each(func(id ecs.EntityID, u *Unit) {
		if !u.Alive() {
			b.world.MarkForDestruction(id)
		}
	})
	b.world.FlushDestroyQueue(func(id ecs.EntityID) {
		u, ok := b.store.Get(id)
		if !ok {
			return
		}
		reason := reasonKilled
		if u.consumed {
			reason = reasonBase
		}
		event.Emit(b.bus, UnitDestroyed{
			ID:     id.String(),
			Team:   u.Team,
			TypeID: u.Type.ID,
			Reason: reason,
		})
		b.log.Debug("unit destroyed", zap.Stringer("unit", id), zap.String("reason", reason))
	})
}

// combatSystem gives every unit exactly one action: attack a target in range,
// or advance. Units killed earlier in the same tick still strike back, so
// simultaneous kills both land.
type combatSystem struct{ b *Battle }

func (s *combatSystem) Phase() coresys.Phase { return coresys.PhaseCombat }

func (s *combatSystem) Update(dt time.Duration) {
	b := s.b
	units := b.store.Values()
	for _, u := range units {
		if u.consumed {
			continue
		}
		if t := b.acquireTarget(u, units); t != nil {
			b.Attack(u, t, b.now)
			continue
		}
		if u.Health <= 0 {
			continue
		}
		Advance(u, dt)
		if b.reachedBase(u) {
			b.hitBase(u)
		}
	}
}

// resolveSystem ends the match when a base falls. Runs after combat so it
// never reads a base health that this tick already reduced.
type resolveSystem struct{ b *Battle }

func (s *resolveSystem) Phase() coresys.Phase { return coresys.PhaseResolve }

func (s *resolveSystem) Update(_ time.Duration) {
	s.b.checkBases()
}

type outputSystem struct{ b *Battle }

func (s *outputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *outputSystem) Update(_ time.Duration) {
	s.b.publish()
}
