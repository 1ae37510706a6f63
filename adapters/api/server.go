package api

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gobandits/app"
	"gobandits/domain/core"
	"gobandits/internal"
	"gobandits/internal/errors"
	"gobandits/internal/thompson"
	"gobandits/ports"
)

// Server is a read-only JSON view of a roster. Every request reloads the
// roster, so it follows a scheduler writing to the same store.
type Server struct {
	router    *chi.Mux
	repo      ports.RosterRepository
	scheduler *app.SchedulerService
	logger    *internal.Logger
	src       *lockedSource
}

// lockedSource lets concurrent requests share one seeded stream
type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (l *lockedSource) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

// NewServer creates a server drawing from a stream seeded with seed
func NewServer(repo ports.RosterRepository, scheduler *app.SchedulerService, seed int64, logger *internal.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		repo:      repo,
		scheduler: scheduler,
		logger:    logger,
		src:       &lockedSource{rng: rand.New(rand.NewSource(seed))},
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/arms", s.handleArms)
	s.router.Get("/arms/{name}/quantile", s.handleQuantile)
	s.router.Get("/select", s.handleSelect)
	s.router.Get("/rank", s.handleRank)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.With("request_id", middleware.GetReqID(r.Context())).
			Debug("%s %s %d in %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleArms(w http.ResponseWriter, r *http.Request) {
	roster, err := s.repo.Load(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	views := make([]ArmView, 0, len(roster.Scripts))
	for _, sc := range roster.Scripts {
		views = append(views, ArmView{
			Name:          sc.Name,
			Command:       sc.Command,
			Results:       sc.Results,
			RunCount:      sc.RunCount,
			AvgRuntimeMs:  sc.AvgRuntimeMs,
			Bias:          sc.Bias,
			Limit:         sc.Limit,
			Eligible:      sc.Eligible(),
			PosteriorMean: sc.Results.PosteriorMean(),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	mode, err := modeParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	roster, err := s.repo.Load(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	idx, ok, err := s.scheduler.Choose(roster, mode, s.src)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := SelectResponse{RunID: core.NewRunID(), Mode: mode.String(), Selected: ok, Index: idx}
	if ok {
		name := roster.Scripts[idx].Name
		resp.Script = &name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	mode, err := modeParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	roster, err := s.repo.Load(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	cands, _ := roster.Candidates(nil)
	order, err := thompson.NewSelector(mode, thompson.WithSampler(s.scheduler.Sampler())).Rank(cands, s.src)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := RankResponse{RunID: core.NewRunID(), Mode: mode.String(), Order: order, Scripts: make([]core.ArmName, len(order))}
	for i, idx := range order {
		resp.Scripts[i] = roster.Scripts[idx].Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuantile(w http.ResponseWriter, r *http.Request) {
	name, err := core.ParseArmName(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, errors.InvalidInput(err.Error()))
		return
	}

	p := 0.5
	if raw := r.URL.Query().Get("p"); raw != "" {
		p, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			s.writeError(w, errors.InvalidInput("p must be a number"))
			return
		}
	}

	roster, err := s.repo.Load(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	idx, err := roster.Find(name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	q, err := s.scheduler.Sampler().Quantile(roster.Scripts[idx].Results, p)
	approximate := false
	if err != nil {
		if !core.IsNonconvergence(err) {
			s.writeError(w, err)
			return
		}
		approximate = true
	}
	writeJSON(w, http.StatusOK, QuantileResponse{Script: name, P: p, Quantile: q, Approximate: approximate})
}

func modeParam(r *http.Request) (thompson.Mode, error) {
	raw := r.URL.Query().Get("ignore_runtime")
	if raw == "" {
		return thompson.ModeRuntimeAware, nil
	}
	ignore, err := strconv.ParseBool(raw)
	if err != nil {
		return 0, errors.InvalidInput("ignore_runtime must be a boolean")
	}
	return thompson.ModeFor(ignore), nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	code := errors.GetCode(errors.Wrap(err, "request failed"))
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed: %v", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
