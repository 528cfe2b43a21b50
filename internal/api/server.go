// Package api is the HTTP bridge between a browser client and running matches.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/quizbattle/server/internal/battle"
	"github.com/quizbattle/server/internal/config"
	"github.com/quizbattle/server/internal/data"
	"github.com/quizbattle/server/internal/match"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ResultStore lists finished matches.
type ResultStore interface {
	Recent(ctx context.Context, limit int) ([]battle.Result, error)
	Get(ctx context.Context, matchID string) (*battle.Result, error)
}

// Server handles HTTP requests.
type Server struct {
	matches   *match.Manager
	units     *data.UnitTable
	results   ResultStore
	log       *zap.Logger
	startTime time.Time
	timeout   time.Duration

	quizRate  rate.Limit
	quizBurst int
	limMu     sync.Mutex
	limiters  map[string]*rate.Limiter
}

func NewServer(cfg config.HTTPConfig, matches *match.Manager, units *data.UnitTable, results ResultStore, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &Server{
		matches:   matches,
		units:     units,
		results:   results,
		log:       log,
		startTime: time.Now(),
		timeout:   timeout,
		quizRate:  rate.Limit(cfg.QuizPerSec),
		quizBurst: cfg.QuizBurst,
		limiters:  make(map[string]*rate.Limiter),
	}
	matches.OnRemove(s.forgetLimiter)
	return s
}

// Routes sets up the HTTP routes with middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/units", s.handleListUnits)

		r.Route("/matches", func(r chi.Router) {
			r.Post("/", s.handleCreateMatch)
			r.Get("/", s.handleListMatches)
			r.Route("/{matchID}", func(r chi.Router) {
				r.Get("/", s.handleGetMatch)
				r.Delete("/", s.handleStopMatch)
				r.Post("/quiz", s.handleRequestQuiz)
				r.Post("/quiz/{token}", s.handleAnswerQuiz)
				r.Delete("/quiz/{token}", s.handleCancelQuiz)
			})
		})

		r.Get("/results", s.handleRecentResults)
		r.Get("/results/{matchID}", s.handleGetResult)
	})

	return r
}

// requestLogger logs one line per request at debug level, or warn for 5xx.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.log.Warn("http request", fields...)
			return
		}
		s.log.Debug("http request", fields...)
	})
}

// limiter returns the quiz request limiter of a match.
func (s *Server) limiter(matchID string) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	l, ok := s.limiters[matchID]
	if !ok {
		l = rate.NewLimiter(s.quizRate, s.quizBurst)
		s.limiters[matchID] = l
	}
	return l
}

func (s *Server) forgetLimiter(matchID string) {
	s.limMu.Lock()
	delete(s.limiters, matchID)
	s.limMu.Unlock()
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, errType, message string) {
	s.writeJSON(w, status, errorResponse{Error: errType, Message: message})
}
