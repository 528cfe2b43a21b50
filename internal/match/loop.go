// Package match runs battles. Each match is a Loop: one goroutine that owns
// a battle.Battle and drives it from a combat ticker, an economy ticker, a
// countdown ticker and a command inbox. Nothing else touches the battle.
package match

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quizbattle/server/internal/battle"
	"github.com/quizbattle/server/internal/config"
	"github.com/quizbattle/server/internal/core/event"
	"github.com/quizbattle/server/internal/data"
	"go.uber.org/zap"
)

var (
	ErrMatchNotFound = errors.New("match: not found")
	ErrMatchLimit    = errors.New("match: too many running matches")
	ErrMatchStopped  = errors.New("match: stopped")
)

// ResultSink receives the terminal result of every finished match.
type ResultSink interface {
	Record(ctx context.Context, r battle.Result) error
}

// SinkFunc adapts a function to ResultSink.
type SinkFunc func(ctx context.Context, r battle.Result) error

func (f SinkFunc) Record(ctx context.Context, r battle.Result) error { return f(ctx, r) }

// LogSink records results to the log only.
func LogSink(log *zap.Logger) ResultSink {
	return SinkFunc(func(_ context.Context, r battle.Result) error {
		log.Info("match result",
			zap.String("match", r.MatchID),
			zap.String("winner", string(r.Winner)),
			zap.Int("player_base", r.PlayerBaseHealth),
			zap.Int("enemy_base", r.EnemyBaseHealth),
			zap.Int("deployed", r.UnitsDeployed))
		return nil
	})
}

const recordTimeout = 5 * time.Second

// Options configures a Loop.
type Options struct {
	ID     string
	Match  config.MatchConfig
	Lane   config.LaneConfig
	Units  *data.UnitTable
	Damage battle.DamageFunc
	Rand   *rand.Rand
	Sink   ResultSink
	Logger *zap.Logger
	Clock  func() time.Time // nil: time.Now
}

// Inbox commands. Reply channels are buffered so the loop never blocks on them.
type requestDeploy struct {
	unitID string
	reply  chan deployReply
}

type deployReply struct {
	req battle.QuizRequest
	err error
}

type resolveQuiz struct {
	token   battle.QuizToken
	verdict battle.Verdict
	reply   chan resolveReply
}

type resolveReply struct {
	deployed bool
	err      error
}

type directDeploy struct {
	unitID  string
	correct bool
	reply   chan bool
}

type Loop struct {
	id    string
	cfg   config.MatchConfig
	b     *battle.Battle
	sink  ResultSink
	log   *zap.Logger
	clock func() time.Time

	inbox    chan any
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	snap    atomic.Pointer[battle.Snapshot]
	result  atomic.Pointer[battle.Result]
	started time.Time
}

func NewLoop(opts Options) *Loop {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	start := clock()
	l := &Loop{
		id:      opts.ID,
		cfg:     opts.Match,
		sink:    opts.Sink,
		log:     log.With(zap.String("match", opts.ID)),
		clock:   clock,
		inbox:   make(chan any, 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		started: start,
	}
	l.b = battle.New(battle.Options{
		ID:     opts.ID,
		Match:  opts.Match,
		Lane:   opts.Lane,
		Units:  opts.Units,
		Rand:   opts.Rand,
		Damage: opts.Damage,
		Logger: log,
		Start:  start,
	})
	event.Subscribe(l.b.Bus(), func(e battle.StateChanged) {
		s := e.Snapshot
		l.snap.Store(&s)
	})
	event.Subscribe(l.b.Bus(), func(e battle.GameOver) {
		r := e.Result
		l.result.Store(&r)
	})
	initial := l.b.Snapshot()
	l.snap.Store(&initial)
	return l
}

func (l *Loop) ID() string { return l.id }

// Started returns the wall time the match was created.
func (l *Loop) Started() time.Time { return l.started }

// Run drives the match until Stop is called. The tickers are stopped as
// soon as the match ends; the loop keeps answering commands until stopped.
func (l *Loop) Run() {
	defer close(l.done)

	combat := time.NewTicker(l.cfg.TickRate)
	economy := time.NewTicker(l.cfg.EconomyInterval)
	countdown := time.NewTicker(l.cfg.CountdownInterval)
	stopTimers := func() {
		combat.Stop()
		economy.Stop()
		countdown.Stop()
	}
	defer stopTimers()

	l.log.Info("match started")
	last := l.clock()
	finished := false
	for {
		select {
		case <-l.quit:
			return
		case cmd := <-l.inbox:
			l.handleCommand(cmd)
		case <-combat.C:
			now := l.clock()
			l.b.Step(now, now.Sub(last))
			last = now
		case <-economy.C:
			l.b.AccrueGold()
		case <-countdown.C:
			now := l.clock()
			l.b.ExpireQuizzes(now)
			l.b.CountDown(now)
		}
		if !finished && l.b.Over() {
			finished = true
			stopTimers()
			l.finish()
		}
	}
}

func (l *Loop) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case requestDeploy:
		req, err := l.b.RequestDeploy(c.unitID, l.clock())
		c.reply <- deployReply{req: req, err: err}
	case resolveQuiz:
		deployed, err := l.b.ResolveQuiz(c.token, c.verdict)
		c.reply <- resolveReply{deployed: deployed, err: err}
	case directDeploy:
		c.reply <- l.b.Deploy(c.unitID, c.correct)
	}
}

func (l *Loop) finish() {
	res, ok := l.b.Result()
	if !ok {
		return
	}
	l.log.Info("match finished",
		zap.String("winner", string(res.Winner)),
		zap.Int("player_base", res.PlayerBaseHealth),
		zap.Int("enemy_base", res.EnemyBaseHealth),
		zap.Int("time_left", res.TimeLeft))
	if l.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := l.sink.Record(ctx, res); err != nil {
		l.log.Error("record match result", zap.Error(err))
	}
}

// Stop terminates the loop goroutine. Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Snapshot returns the latest published snapshot without touching the loop.
func (l *Loop) Snapshot() battle.Snapshot {
	return *l.snap.Load()
}

// Result returns the terminal result once the match is over.
func (l *Loop) Result() (battle.Result, bool) {
	r := l.result.Load()
	if r == nil {
		return battle.Result{}, false
	}
	return *r, true
}

// RequestDeploy opens a quiz for unitID.
func (l *Loop) RequestDeploy(ctx context.Context, unitID string) (battle.QuizRequest, error) {
	reply := make(chan deployReply, 1)
	if err := l.send(ctx, requestDeploy{unitID: unitID, reply: reply}); err != nil {
		return battle.QuizRequest{}, err
	}
	select {
	case r := <-reply:
		return r.req, r.err
	case <-l.done:
		return battle.QuizRequest{}, ErrMatchStopped
	case <-ctx.Done():
		return battle.QuizRequest{}, ctx.Err()
	}
}

// ResolveQuiz delivers the verdict for a pending quiz.
func (l *Loop) ResolveQuiz(ctx context.Context, token battle.QuizToken, v battle.Verdict) (bool, error) {
	reply := make(chan resolveReply, 1)
	if err := l.send(ctx, resolveQuiz{token: token, verdict: v, reply: reply}); err != nil {
		return false, err
	}
	select {
	case r := <-reply:
		return r.deployed, r.err
	case <-l.done:
		return false, ErrMatchStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Deploy deploys without a quiz exchange, with a verdict decided by the caller.
func (l *Loop) Deploy(ctx context.Context, unitID string, correct bool) (bool, error) {
	reply := make(chan bool, 1)
	if err := l.send(ctx, directDeploy{unitID: unitID, correct: correct, reply: reply}); err != nil {
		return false, err
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-l.done:
		return false, ErrMatchStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (l *Loop) send(ctx context.Context, cmd any) error {
	select {
	case <-l.done:
		return ErrMatchStopped
	default:
	}
	select {
	case l.inbox <- cmd:
		return nil
	case <-l.done:
		return ErrMatchStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
