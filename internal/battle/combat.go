package battle

import (
	"time"

	"github.com/quizbattle/server/internal/core/ecs"
	"github.com/quizbattle/server/internal/core/event"
	"github.com/quizbattle/server/internal/scripting"
)

// DamageFunc computes the damage of one attack. The default is attacker.Dps.
type DamageFunc func(attacker, target *Unit) int

// ScriptedDamage routes damage through the Lua calc_attack formula.
func ScriptedDamage(eng *scripting.Engine) DamageFunc {
	return func(attacker, target *Unit) int {
		return eng.CalcAttackDamage(scripting.AttackContext{
			AttackerType: attacker.Type.ID,
			AttackerDps:  attacker.Dps,
			AttackerWeak: attacker.Weak,
			TargetType:   target.Type.ID,
			TargetHealth: target.Health,
			TargetMax:    target.MaxHealth,
		})
	}
}

// Attack resolves one cooldown-gated strike and reports whether it fired.
// The target is never removed here, even at zero health; cleanup happens at
// the start of the next tick.
func (b *Battle) Attack(attacker, target *Unit, now time.Time) bool {
	if !attacker.LastAttack.IsZero() && now.Sub(attacker.LastAttack) < b.match.AttackCooldown {
		return false
	}
	dmg := attacker.Dps
	if b.damage != nil {
		dmg = b.damage(attacker, target)
	}
	if dmg < 0 {
		dmg = 0
	}
	target.Health -= dmg
	if target.Health < 0 {
		target.Health = 0
	}
	attacker.LastAttack = now

	event.Emit(b.bus, UnitAttacked{
		Attacker:     attacker.ID.String(),
		Target:       target.ID.String(),
		Damage:       dmg,
		TargetHealth: target.Health,
	})
	return true
}

// Advance moves u along the lane toward the opposing base.
func Advance(u *Unit, dt time.Duration) {
	u.X += u.Speed * dt.Seconds() * u.Team.Direction()
}

// reachedBase reports whether u is close enough to the opposing base to hit it.
func (b *Battle) reachedBase(u *Unit) bool {
	if u.Team == TeamPlayer {
		return u.X >= b.lane.EnemyBaseX-b.lane.BaseHitDistance
	}
	return u.X <= b.lane.PlayerBaseX+b.lane.BaseHitDistance
}

// hitBase applies u's damage to the opposing base and consumes u.
func (b *Battle) hitBase(u *Unit) {
	owner := u.Team.Opponent()
	health := &b.state.EnemyBaseHealth
	if owner == TeamPlayer {
		health = &b.state.PlayerBaseHealth
	}
	*health -= u.Dps
	if *health < 0 {
		*health = 0
	}
	u.consumed = true
	u.Target = ecs.None
	b.world.MarkForDestruction(u.ID)

	event.Emit(b.bus, BaseHit{
		Base:   owner,
		Unit:   u.ID.String(),
		Damage: u.Dps,
		Health: *health,
	})
}
