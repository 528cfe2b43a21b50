package battle

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/quizbattle/server/internal/core/event"
	"go.uber.org/zap"
)

var (
	ErrGameOver         = errors.New("battle: game over")
	ErrUnknownUnit      = errors.New("battle: unknown unit type")
	ErrInsufficientGold = errors.New("battle: insufficient gold")
	ErrUnknownQuiz      = errors.New("battle: unknown quiz token")
)

// QuizToken identifies one pending deploy awaiting a quiz verdict.
type QuizToken string

// Verdict is the outcome of a quiz. Only VerdictCorrect counts as correct.
type Verdict int

const (
	VerdictCorrect Verdict = iota
	VerdictIncorrect
	VerdictCancelled // closed without answering
	VerdictExpired   // quiz_timeout elapsed
)

func (v Verdict) String() string {
	switch v {
	case VerdictCorrect:
		return "correct"
	case VerdictIncorrect:
		return "incorrect"
	case VerdictCancelled:
		return "cancelled"
	case VerdictExpired:
		return "expired"
	}
	return "unknown"
}

// QuizRequest is handed to the presentation layer, which must answer it with
// exactly one verdict.
type QuizRequest struct {
	Token    QuizToken `json:"token"`
	UnitID   string    `json:"unit_id"`
	Subject  string    `json:"subject"`
	Deadline time.Time `json:"deadline"`
}

type pendingQuiz struct {
	req QuizRequest
}

// RequestDeploy opens a quiz for a deploy. The checks here are advisory for
// the UI; Deploy re-checks everything when the verdict arrives. The
// simulation keeps ticking while the quiz is open.
func (b *Battle) RequestDeploy(unitID string, now time.Time) (QuizRequest, error) {
	if b.state.GameOver {
		return QuizRequest{}, ErrGameOver
	}
	tmpl := b.units.Get(unitID)
	if tmpl == nil {
		return QuizRequest{}, ErrUnknownUnit
	}
	if b.state.PlayerGold < tmpl.Cost {
		return QuizRequest{}, ErrInsufficientGold
	}
	req := QuizRequest{
		Token:    QuizToken(uuid.NewString()),
		UnitID:   tmpl.ID,
		Subject:  tmpl.Subject,
		Deadline: now.Add(b.match.QuizTimeout),
	}
	b.quizzes[req.Token] = &pendingQuiz{req: req}
	event.Emit(b.bus, QuizRequested{Request: req})
	b.publish()
	return req, nil
}

// ResolveQuiz closes a pending quiz and attempts the deploy. Any verdict
// other than VerdictCorrect deploys with the wrong-answer modifiers. The
// returned bool reports whether a unit was deployed.
func (b *Battle) ResolveQuiz(token QuizToken, v Verdict) (bool, error) {
	if b.state.GameOver {
		return false, ErrGameOver
	}
	q, ok := b.quizzes[token]
	if !ok {
		return false, ErrUnknownQuiz
	}
	delete(b.quizzes, token)

	deployed := b.deploy(q.req.UnitID, v == VerdictCorrect)
	event.Emit(b.bus, QuizResolved{
		Token:    token,
		UnitID:   q.req.UnitID,
		Verdict:  v,
		Deployed: deployed,
	})
	b.publish()
	b.log.Debug("quiz resolved",
		zap.String("unit", q.req.UnitID),
		zap.Stringer("verdict", v),
		zap.Bool("deployed", deployed))
	return deployed, nil
}

// ExpireQuizzes resolves every quiz past its deadline as VerdictExpired and
// returns how many it closed.
func (b *Battle) ExpireQuizzes(now time.Time) int {
	var due []QuizRequest
	for _, q := range b.quizzes {
		if !now.Before(q.req.Deadline) {
			due = append(due, q.req)
		}
	}
	// oldest first, so deploy order does not depend on map order
	sort.Slice(due, func(i, j int) bool {
		if due[i].Deadline.Equal(due[j].Deadline) {
			return due[i].Token < due[j].Token
		}
		return due[i].Deadline.Before(due[j].Deadline)
	})
	n := 0
	for _, req := range due {
		if _, err := b.ResolveQuiz(req.Token, VerdictExpired); err == nil {
			n++
		}
	}
	return n
}

// PendingQuizzes returns the number of open quizzes.
func (b *Battle) PendingQuizzes() int { return len(b.quizzes) }
