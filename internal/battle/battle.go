// Package battle is the lane battle simulation: unit lifecycle, targeting,
// combat, movement, the gold economy, the match clock and win conditions.
//
// A Battle is not safe for concurrent use. Its owner calls Step on the
// combat cadence and AccrueGold / CountDown on their own cadences, all from
// one goroutine (see package match).
package battle

import (
	"math/rand"
	"time"

	"github.com/quizbattle/server/internal/config"
	"github.com/quizbattle/server/internal/core/ecs"
	"github.com/quizbattle/server/internal/core/event"
	coresys "github.com/quizbattle/server/internal/core/system"
	"github.com/quizbattle/server/internal/data"
	"go.uber.org/zap"
)

// Options configures a new Battle.
type Options struct {
	ID     string
	Match  config.MatchConfig
	Lane   config.LaneConfig
	Units  *data.UnitTable
	Rand   *rand.Rand // nil: seeded from the clock
	Damage DamageFunc // nil: attacker dps
	Logger *zap.Logger
	Start  time.Time
}

// Battle orchestrates one match. It exclusively owns the live unit store.
type Battle struct {
	id     string
	match  config.MatchConfig
	lane   config.LaneConfig
	units  *data.UnitTable
	rng    *rand.Rand
	damage DamageFunc
	log    *zap.Logger

	world  *ecs.World
	store  *ecs.OrderedStore[Unit]
	bus    *event.Bus
	runner *coresys.Runner

	state   MatchState
	now     time.Time
	tick    uint64
	started time.Time
	ended   time.Time
	stats   stats
	quizzes map[QuizToken]*pendingQuiz
}

func New(opts Options) *Battle {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	start := opts.Start
	if start.IsZero() {
		start = time.Now()
	}

	b := &Battle{
		id:      opts.ID,
		match:   opts.Match,
		lane:    opts.Lane,
		units:   opts.Units,
		rng:     rng,
		damage:  opts.Damage,
		log:     log.With(zap.String("match", opts.ID)),
		world:   ecs.NewWorld(),
		store:   ecs.NewOrderedStore[Unit](),
		bus:     event.NewBus(),
		runner:  coresys.NewRunner(),
		now:     start,
		started: start,
		quizzes: make(map[QuizToken]*pendingQuiz),
		state: MatchState{
			PlayerGold:       opts.Match.InitialGold,
			PlayerBaseHealth: opts.Match.BaseMaxHealth,
			EnemyBaseHealth:  opts.Match.BaseMaxHealth,
			BaseMaxHealth:    opts.Match.BaseMaxHealth,
			TimeLeft:         opts.Match.DurationSeconds,
		},
	}
	b.world.Register(b.store)

	b.runner.Register(&reapSystem{b: b})
	b.runner.Register(&combatSystem{b: b})
	b.runner.Register(&resolveSystem{b: b})
	b.runner.Register(&outputSystem{b: b})
	b.log.Debug("battle ready", zap.Int("systems", b.runner.Len()))
	return b
}

func (b *Battle) ID() string { return b.id }

// Bus exposes the event bus for presentation subscribers.
func (b *Battle) Bus() *event.Bus { return b.bus }

// State returns a copy of the match state.
func (b *Battle) State() MatchState { return b.state }

func (b *Battle) Over() bool { return b.state.GameOver }

// Unit returns the live unit with id, if any.
func (b *Battle) Unit(id ecs.EntityID) (*Unit, bool) {
	return b.store.Get(id)
}

// Units returns the live units in spawn order.
func (b *Battle) Units() []*Unit {
	return b.store.Values()
}

// Step runs one simulation tick: cleanup, combat, win check, output.
func (b *Battle) Step(now time.Time, dt time.Duration) {
	if b.state.GameOver {
		return
	}
	b.now = now
	b.tick++
	b.runner.Tick(dt)
}

// CreateUnit builds a unit, registers it in the live store and announces it.
func (b *Battle) CreateUnit(tmpl *data.UnitTemplate, x float64, team Team, wrongAnswer bool) *Unit {
	u := NewUnit(tmpl, x, team, wrongAnswer)
	u.ID = b.world.CreateEntity()
	b.store.Set(u.ID, u)

	event.Emit(b.bus, UnitSpawned{Unit: u.View()})
	b.log.Debug("unit spawned",
		zap.Stringer("unit", u.ID),
		zap.String("type", tmpl.ID),
		zap.String("team", string(team)),
		zap.Bool("weak", wrongAnswer))
	return u
}

// Deploy places a player unit, settles gold by the quiz outcome and answers
// with one opponent unit. It returns false, changing nothing, when the match
// is over, the type is unknown or the player cannot afford it.
func (b *Battle) Deploy(unitID string, quizWasCorrect bool) bool {
	ok := b.deploy(unitID, quizWasCorrect)
	if ok {
		b.publish()
	}
	return ok
}

func (b *Battle) deploy(unitID string, quizWasCorrect bool) bool {
	if b.state.GameOver {
		return false
	}
	tmpl := b.units.Get(unitID)
	if tmpl == nil || b.state.PlayerGold < tmpl.Cost {
		return false
	}

	// A correct answer waives the cost and pays the bonus; a wrong one pays
	// the cost plus the penalty. The cost must be affordable either way.
	if quizWasCorrect {
		b.state.PlayerGold += b.match.CorrectBonus
		b.stats.correct++
	} else {
		b.state.PlayerGold -= tmpl.Cost + b.match.WrongPenalty
		if b.state.PlayerGold < 0 {
			b.state.PlayerGold = 0
		}
		b.stats.wrong++
	}
	b.stats.deployed++
	b.stats.log = append(b.stats.log, Deployment{
		Tick:      b.tick,
		UnitType:  tmpl.ID,
		Correct:   quizWasCorrect,
		GoldAfter: b.state.PlayerGold,
	})

	b.CreateUnit(tmpl, b.lane.PlayerSpawnX, TeamPlayer, !quizWasCorrect)
	b.spawnOpponent()
	return true
}

// AccrueGold adds one economy interval of income.
func (b *Battle) AccrueGold() {
	if b.state.GameOver {
		return
	}
	b.state.PlayerGold += b.match.GoldPerSecond
	b.publish()
}

// CountDown advances the match clock by one second. At zero the match ends
// in sudden death: the base with strictly more health wins, equal is a draw.
func (b *Battle) CountDown(now time.Time) {
	if b.state.GameOver {
		return
	}
	b.now = now
	if b.state.TimeLeft > 0 {
		b.state.TimeLeft--
	}
	if b.state.TimeLeft == 0 {
		if !b.checkBases() {
			b.finish(suddenDeath(b.state.PlayerBaseHealth, b.state.EnemyBaseHealth))
		}
	}
	b.publish()
}

func suddenDeath(playerHealth, enemyHealth int) Winner {
	switch {
	case playerHealth > enemyHealth:
		return WinnerPlayer
	case enemyHealth > playerHealth:
		return WinnerEnemy
	}
	return WinnerDraw
}

// checkBases ends the match if a base is destroyed and reports whether it did.
func (b *Battle) checkBases() bool {
	playerDown := b.state.PlayerBaseHealth <= 0
	enemyDown := b.state.EnemyBaseHealth <= 0
	switch {
	case playerDown && enemyDown:
		b.finish(WinnerDraw)
	case playerDown:
		b.finish(WinnerEnemy)
	case enemyDown:
		b.finish(WinnerPlayer)
	default:
		return false
	}
	return true
}

func (b *Battle) finish(w Winner) {
	b.state.GameOver = true
	b.state.Winner = w
	b.ended = b.now
	clear(b.quizzes)

	res, _ := b.Result()
	event.Emit(b.bus, GameOver{Result: res})
	b.log.Debug("game over",
		zap.String("winner", string(w)),
		zap.Int("player_base", b.state.PlayerBaseHealth),
		zap.Int("enemy_base", b.state.EnemyBaseHealth),
		zap.Int("live_units", b.world.Pool().Live()))
}

// Result returns the terminal result; ok is false while the match runs.
func (b *Battle) Result() (Result, bool) {
	if !b.state.GameOver {
		return Result{}, false
	}
	return Result{
		MatchID:          b.id,
		Winner:           b.state.Winner,
		PlayerBaseHealth: b.state.PlayerBaseHealth,
		EnemyBaseHealth:  b.state.EnemyBaseHealth,
		PlayerGold:       b.state.PlayerGold,
		TimeLeft:         b.state.TimeLeft,
		UnitsDeployed:    b.stats.deployed,
		CorrectAnswers:   b.stats.correct,
		WrongAnswers:     b.stats.wrong,
		EnemiesSpawned:   b.stats.enemies,
		StartedAt:        b.started,
		EndedAt:          b.ended,
		Deployments:      append([]Deployment(nil), b.stats.log...),
	}, true
}

// Snapshot returns an immutable copy of the match for presentation.
func (b *Battle) Snapshot() Snapshot {
	views := make([]UnitView, 0, b.store.Len())
	b.store.Each(func(_ ecs.EntityID, u *Unit) {
		views = append(views, u.View())
	})
	return Snapshot{
		MatchID: b.id,
		Tick:    b.tick,
		State:   b.state,
		Units:   views,
		Pending: len(b.quizzes),
	}
}

// publish queues a snapshot behind the pending events and delivers them all.
func (b *Battle) publish() {
	event.Emit(b.bus, StateChanged{Snapshot: b.Snapshot()})
	b.bus.Flush()
}
