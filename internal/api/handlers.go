package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/quizbattle/server/internal/battle"
	"github.com/quizbattle/server/internal/data"
	"github.com/quizbattle/server/internal/match"
	"go.uber.org/zap"
)

const (
	defaultResultLimit = 20
	maxResultLimit     = 100
)

type healthResponse struct {
	Status  string  `json:"status"`
	Uptime  float64 `json:"uptime_seconds"`
	Matches int     `json:"matches"`
}

type unitsResponse struct {
	Units []*data.UnitTemplate `json:"units"`
}

type createMatchResponse struct {
	ID       string          `json:"id"`
	Snapshot battle.Snapshot `json:"snapshot"`
}

type matchesResponse struct {
	Matches []match.Info `json:"matches"`
}

type quizRequestBody struct {
	UnitID string `json:"unit_id"`
}

type quizAnswerBody struct {
	Correct *bool `json:"correct"`
}

type quizAnswerResponse struct {
	Verdict  string `json:"verdict"`
	Deployed bool   `json:"deployed"`
}

type resultsResponse struct {
	Results []battle.Result `json:"results"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Uptime:  time.Since(s.startTime).Seconds(),
		Matches: s.matches.Len(),
	})
}

func (s *Server) handleListUnits(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, unitsResponse{Units: s.units.All()})
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	l, err := s.matches.Create()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createMatchResponse{ID: l.ID(), Snapshot: l.Snapshot()})
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, matchesResponse{Matches: s.matches.List()})
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, l.Snapshot())
}

func (s *Server) handleStopMatch(w http.ResponseWriter, r *http.Request) {
	if err := s.matches.Stop(chi.URLParam(r, "matchID")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRequestQuiz(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body quizRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UnitID == "" {
		s.writeError(w, http.StatusBadRequest, "bad_request", "body must be {\"unit_id\": string}")
		return
	}
	if !s.limiter(l.ID()).Allow() {
		s.writeError(w, http.StatusTooManyRequests, "rate_limited", "too many quiz requests for this match")
		return
	}
	req, err := l.RequestDeploy(r.Context(), body.UnitID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleAnswerQuiz(w http.ResponseWriter, r *http.Request) {
	var body quizAnswerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Correct == nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "body must be {\"correct\": bool}")
		return
	}
	v := battle.VerdictIncorrect
	if *body.Correct {
		v = battle.VerdictCorrect
	}
	s.resolveQuiz(w, r, v)
}

// handleCancelQuiz closes a quiz without an answer; it deploys as incorrect.
func (s *Server) handleCancelQuiz(w http.ResponseWriter, r *http.Request) {
	s.resolveQuiz(w, r, battle.VerdictCancelled)
}

func (s *Server) resolveQuiz(w http.ResponseWriter, r *http.Request, v battle.Verdict) {
	l, ok := s.lookup(w, r)
	if !ok {
		return
	}
	token := battle.QuizToken(chi.URLParam(r, "token"))
	deployed, err := l.ResolveQuiz(r.Context(), token, v)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, quizAnswerResponse{Verdict: v.String(), Deployed: deployed})
}

func (s *Server) handleRecentResults(w http.ResponseWriter, r *http.Request) {
	limit := defaultResultLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxResultLimit)
	}
	results, err := s.results.Recent(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if results == nil {
		results = []battle.Result{}
	}
	s.writeJSON(w, http.StatusOK, resultsResponse{Results: results})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.results.Get(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if res == nil {
		s.writeError(w, http.StatusNotFound, "result_not_found", "no result recorded for this match")
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*match.Loop, bool) {
	l, err := s.matches.Get(chi.URLParam(r, "matchID"))
	if err != nil {
		s.writeDomainError(w, err)
		return nil, false
	}
	return l, true
}

// writeDomainError maps match and battle errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, match.ErrMatchNotFound):
		s.writeError(w, http.StatusNotFound, "match_not_found", err.Error())
	case errors.Is(err, battle.ErrUnknownUnit):
		s.writeError(w, http.StatusNotFound, "unknown_unit", err.Error())
	case errors.Is(err, battle.ErrUnknownQuiz):
		s.writeError(w, http.StatusNotFound, "unknown_quiz", err.Error())
	case errors.Is(err, battle.ErrGameOver):
		s.writeError(w, http.StatusConflict, "game_over", err.Error())
	case errors.Is(err, battle.ErrInsufficientGold):
		s.writeError(w, http.StatusConflict, "insufficient_gold", err.Error())
	case errors.Is(err, match.ErrMatchStopped):
		s.writeError(w, http.StatusGone, "match_stopped", err.Error())
	case errors.Is(err, match.ErrMatchLimit):
		s.writeError(w, http.StatusServiceUnavailable, "match_limit", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.writeError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		s.log.Error("request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
