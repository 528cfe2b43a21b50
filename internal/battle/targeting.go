package battle

import (
	"math"

	"github.com/quizbattle/server/internal/core/ecs"
)

// inRange reports whether target is strictly within u's range on the lane.
func inRange(u, target *Unit, rangeScale float64) bool {
	return math.Abs(u.X-target.X) < u.Range*rangeScale
}

// FindTarget returns the closest living opponent strictly within u's range,
// or nil. Ties go to the earliest unit in iteration order.
func FindTarget(u *Unit, units []*Unit, rangeScale float64) *Unit {
	var best *Unit
	bestDist := math.Inf(1)
	for _, c := range units {
		if c.Team == u.Team || !c.Alive() {
			continue
		}
		d := math.Abs(u.X - c.X)
		if d >= u.Range*rangeScale {
			continue
		}
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// currentTarget resolves u's weak target reference. Stale references (dead,
// consumed, destroyed or out of range) are dropped; a valid one is kept.
func (b *Battle) currentTarget(u *Unit) *Unit {
	if u.Target.IsZero() {
		return nil
	}
	if b.world.Alive(u.Target) {
		if t, ok := b.store.Get(u.Target); ok && t.Alive() && inRange(u, t, b.lane.RangeScale) {
			return t
		}
	}
	u.Target = ecs.None
	return nil
}

// acquireTarget keeps a valid target or searches for a new one.
func (b *Battle) acquireTarget(u *Unit, units []*Unit) *Unit {
	if t := b.currentTarget(u); t != nil {
		return t
	}
	t := FindTarget(u, units, b.lane.RangeScale)
	if t != nil {
		u.Target = t.ID
	}
	return t
}
