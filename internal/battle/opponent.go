package battle

// spawnOpponent answers a player deploy with one enemy unit: a uniformly
// random type, weakened with the wrong-answer modifiers at a fixed chance.
// The choice is stateless and does not look at the board.
func (b *Battle) spawnOpponent() *Unit {
	all := b.units.All()
	if len(all) == 0 {
		return nil
	}
	tmpl := all[b.rng.Intn(len(all))]
	weak := b.rng.Float64() < b.match.WeakEnemyChance
	b.stats.enemies++
	return b.CreateUnit(tmpl, b.lane.EnemySpawnX, TeamEnemy, weak)
}
