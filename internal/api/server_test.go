package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quizbattle/server/internal/battle"
	"github.com/quizbattle/server/internal/config"
	"github.com/quizbattle/server/internal/data"
	"github.com/quizbattle/server/internal/match"
)

type testEnv struct {
	srv     *Server
	h       http.Handler
	mgr     *match.Manager
	results *match.Recorder
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Defaults()
	cfg.Match.TickRate = 10 * time.Millisecond
	cfg.Match.EconomyInterval = time.Hour
	cfg.Match.CountdownInterval = time.Hour
	cfg.HTTP.QuizPerSec = 100
	cfg.HTTP.QuizBurst = 100
	if mutate != nil {
		mutate(cfg)
	}

	units, err := data.NewUnitTable([]data.UnitTemplate{
		{ID: "math_knight", Subject: "math", Health: 120, Dps: 15, Cost: 200, Speed: 40,
			WrongAnswer: data.WrongAnswer{HealthFactor: 0.67, DpsFactor: 0.5}},
		{ID: "bio_swarm", Subject: "biology", Health: 60, Dps: 8, Cost: 500, Speed: 60,
			WrongAnswer: data.WrongAnswer{HealthFactor: 0.7, DpsFactor: 0.7}},
	})
	if err != nil {
		t.Fatal(err)
	}
	results := match.NewRecorder(10)
	mgr := match.NewManager(match.ManagerOptions{
		Match: cfg.Match,
		Lane:  cfg.Lane,
		Units: units,
		Sink:  results,
	})
	t.Cleanup(mgr.StopAll)

	srv := NewServer(cfg.HTTP, mgr, units, results, nil)
	return &testEnv{srv: srv, h: srv.Routes(), mgr: mgr, results: results}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func (e *testEnv) createMatch(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/matches", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create match status = %d body %s", w.Code, w.Body)
	}
	return decode[createMatchResponse](t, w).ID
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[healthResponse](t, w); got.Status != "ok" {
		t.Fatalf("health = %+v", got)
	}
}

func TestUnitsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/api/v1/units", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[unitsResponse](t, w)
	if len(got.Units) != 2 || got.Units[0].ID != "bio_swarm" {
		t.Fatalf("units = %+v", got.Units)
	}
}

func TestMatchLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createMatch(t)

	w := env.do(t, http.MethodGet, "/api/v1/matches/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	snap := decode[battle.Snapshot](t, w)
	if snap.MatchID != id || snap.State.PlayerGold != 200 || snap.State.GameOver {
		t.Fatalf("snapshot = %+v", snap)
	}

	w = env.do(t, http.MethodGet, "/api/v1/matches", nil)
	if list := decode[matchesResponse](t, w); len(list.Matches) != 1 || list.Matches[0].ID != id {
		t.Fatalf("list = %+v", list)
	}

	if w := env.do(t, http.MethodDelete, "/api/v1/matches/"+id, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/v1/matches/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status after delete = %d", w.Code)
	}
	if e := decode[errorResponse](t, w); e.Error != "match_not_found" {
		t.Fatalf("error = %+v", e)
	}
}

func TestQuizFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createMatch(t)
	base := "/api/v1/matches/" + id + "/quiz"

	w := env.do(t, http.MethodPost, base, quizRequestBody{UnitID: "math_knight"})
	if w.Code != http.StatusCreated {
		t.Fatalf("quiz status = %d body %s", w.Code, w.Body)
	}
	req := decode[battle.QuizRequest](t, w)
	if req.Token == "" || req.Subject != "math" {
		t.Fatalf("quiz = %+v", req)
	}

	w = env.do(t, http.MethodPost, base+"/"+string(req.Token), map[string]bool{"correct": true})
	if w.Code != http.StatusOK {
		t.Fatalf("answer status = %d body %s", w.Code, w.Body)
	}
	ans := decode[quizAnswerResponse](t, w)
	if !ans.Deployed || ans.Verdict != "correct" {
		t.Fatalf("answer = %+v", ans)
	}

	w = env.do(t, http.MethodGet, "/api/v1/matches/"+id, nil)
	snap := decode[battle.Snapshot](t, w)
	if snap.State.PlayerGold != 250 {
		t.Fatalf("gold = %d, want 250", snap.State.PlayerGold)
	}

	w = env.do(t, http.MethodPost, base+"/"+string(req.Token), map[string]bool{"correct": true})
	if w.Code != http.StatusNotFound {
		t.Fatalf("reused token status = %d", w.Code)
	}
}

func TestQuizCancelDeploysWeak(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createMatch(t)
	base := "/api/v1/matches/" + id + "/quiz"

	req := decode[battle.QuizRequest](t, env.do(t, http.MethodPost, base, quizRequestBody{UnitID: "math_knight"}))
	w := env.do(t, http.MethodDelete, base+"/"+string(req.Token), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", w.Code)
	}
	if ans := decode[quizAnswerResponse](t, w); ans.Verdict != "cancelled" || !ans.Deployed {
		t.Fatalf("cancel = %+v", ans)
	}

	snap := decode[battle.Snapshot](t, env.do(t, http.MethodGet, "/api/v1/matches/"+id, nil))
	if snap.State.PlayerGold != 0 {
		t.Fatalf("gold = %d, want 0", snap.State.PlayerGold)
	}
	var weakPlayers int
	for _, u := range snap.Units {
		if u.Team == battle.TeamPlayer && u.Weak && u.MaxHealth == 80 {
			weakPlayers++
		}
	}
	if weakPlayers != 1 {
		t.Fatalf("units = %+v", snap.Units)
	}
}

func TestQuizErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createMatch(t)
	base := "/api/v1/matches/" + id + "/quiz"

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		errTyp string
	}{
		{"unknown match", http.MethodPost, "/api/v1/matches/nope/quiz", quizRequestBody{UnitID: "math_knight"}, http.StatusNotFound, "match_not_found"},
		{"missing unit", http.MethodPost, base, map[string]string{}, http.StatusBadRequest, "bad_request"},
		{"unknown unit", http.MethodPost, base, quizRequestBody{UnitID: "dragon"}, http.StatusNotFound, "unknown_unit"},
		{"too expensive", http.MethodPost, base, quizRequestBody{UnitID: "bio_swarm"}, http.StatusConflict, "insufficient_gold"},
		{"unknown token", http.MethodPost, base + "/nope", map[string]bool{"correct": false}, http.StatusNotFound, "unknown_quiz"},
		{"missing verdict", http.MethodPost, base + "/nope", map[string]string{}, http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, tc.method, tc.path, tc.body)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.status, w.Body)
			}
			if e := decode[errorResponse](t, w); e.Error != tc.errTyp {
				t.Fatalf("error = %+v, want %s", e, tc.errTyp)
			}
		})
	}
}

func TestQuizRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.HTTP.QuizPerSec = 0.001
		c.HTTP.QuizBurst = 2
		c.Match.InitialGold = 10_000
	})
	id := env.createMatch(t)
	base := "/api/v1/matches/" + id + "/quiz"

	for i := 0; i < 2; i++ {
		if w := env.do(t, http.MethodPost, base, quizRequestBody{UnitID: "math_knight"}); w.Code != http.StatusCreated {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w := env.do(t, http.MethodPost, base, quizRequestBody{UnitID: "math_knight"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	// limits are per match
	other := env.createMatch(t)
	if w := env.do(t, http.MethodPost, "/api/v1/matches/"+other+"/quiz", quizRequestBody{UnitID: "math_knight"}); w.Code != http.StatusCreated {
		t.Fatalf("other match status = %d", w.Code)
	}
}

func (e *testEnv) limiterCount() int {
	e.srv.limMu.Lock()
	defer e.srv.limMu.Unlock()
	return len(e.srv.limiters)
}

func TestLimitersReleasedWithMatches(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Match.TickRate = time.Millisecond
		c.Match.EconomyInterval = 2 * time.Millisecond
		c.Match.CountdownInterval = 2 * time.Millisecond
		c.Match.DurationSeconds = 2
		c.Match.FinishedRetention = 0
	})
	var ids []string
	for i := 0; i < 5; i++ {
		id := env.createMatch(t)
		ids = append(ids, id)
		// 201 or 409 depending on whether the match already ended
		env.do(t, http.MethodPost, "/api/v1/matches/"+id+"/quiz", quizRequestBody{UnitID: "math_knight"})
	}
	if got := env.limiterCount(); got != 5 {
		t.Fatalf("limiters = %d, want 5", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for _, id := range ids {
		l, err := env.mgr.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		for {
			if _, over := l.Result(); over {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("match %s did not finish", id)
			}
			time.Sleep(2 * time.Millisecond)
		}
	}
	if n := env.mgr.Sweep(); n != 5 {
		t.Fatalf("swept = %d, want 5", n)
	}
	if got := env.limiterCount(); got != 0 {
		t.Fatalf("limiters after sweep = %d, want 0", got)
	}
}

func TestLimiterReleasedOnStop(t *testing.T) {
	env := newTestEnv(t, nil)
	stopped := env.createMatch(t)
	kept := env.createMatch(t)
	for _, id := range []string{stopped, kept} {
		if w := env.do(t, http.MethodPost, "/api/v1/matches/"+id+"/quiz", quizRequestBody{UnitID: "math_knight"}); w.Code != http.StatusCreated {
			t.Fatalf("quiz status = %d", w.Code)
		}
	}
	if w := env.do(t, http.MethodDelete, "/api/v1/matches/"+stopped, nil); w.Code != http.StatusNoContent {
		t.Fatalf("stop status = %d", w.Code)
	}
	if got := env.limiterCount(); got != 1 {
		t.Fatalf("limiters = %d, want 1", got)
	}
	env.mgr.StopAll()
	if got := env.limiterCount(); got != 0 {
		t.Fatalf("limiters after StopAll = %d, want 0", got)
	}
}

func TestMatchLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Match.MaxMatches = 1 })
	env.createMatch(t)
	w := env.do(t, http.MethodPost, "/api/v1/matches", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestResultsEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := env.results.Record(ctx, battle.Result{MatchID: id, Winner: battle.WinnerEnemy}); err != nil {
			t.Fatal(err)
		}
	}

	w := env.do(t, http.MethodGet, "/api/v1/results?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[resultsResponse](t, w)
	if len(got.Results) != 2 || got.Results[0].MatchID != "c" {
		t.Fatalf("results = %+v", got.Results)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/results?limit=zero", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/results/b", nil)
	if res := decode[battle.Result](t, w); res.MatchID != "b" || res.Winner != battle.WinnerEnemy {
		t.Fatalf("result = %+v", res)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/results/zzz", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing result status = %d", w.Code)
	}
}

func TestFinishedMatchIsRecorded(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Match.TickRate = time.Millisecond
		c.Match.EconomyInterval = 2 * time.Millisecond
		c.Match.CountdownInterval = 2 * time.Millisecond
		c.Match.DurationSeconds = 2
	})
	id := env.createMatch(t)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w := env.do(t, http.MethodGet, "/api/v1/results/"+id, nil)
		if w.Code == http.StatusOK {
			if res := decode[battle.Result](t, w); res.Winner != battle.WinnerDraw {
				t.Fatalf("result = %+v", res)
			}
			w = env.do(t, http.MethodPost, "/api/v1/matches/"+id+"/quiz", quizRequestBody{UnitID: "math_knight"})
			if w.Code != http.StatusConflict {
				t.Fatalf("quiz after game over status = %d", w.Code)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("finished match never recorded")
}
