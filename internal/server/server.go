// Package server exposes the experiment suggestion engine over HTTP: runs
// are created against a declared domain, and each suggestion round is
// executed asynchronously so long acquisition searches do not hold request
// connections open.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quenchlab/crucible/internal/config"
	"github.com/quenchlab/crucible/internal/data"
	"github.com/quenchlab/crucible/internal/domain"
	"github.com/quenchlab/crucible/internal/errors"
	"github.com/quenchlab/crucible/internal/logging"
	"github.com/quenchlab/crucible/internal/strategy"
	"github.com/quenchlab/crucible/internal/transform"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Run statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// RunState tracks one optimization run: its strategy instance, the latest
// proposed batch, and the lifecycle of the round in flight. All fields are
// guarded by the server's run mutex. The strategy itself is not safe for
// concurrent use: while inFlight is set the round goroutine owns it
// exclusively, so handlers must only read the snapshot fields (Iterations,
// Proposed) and never call into Strategy.
type RunState struct {
	ID          string
	Status      string
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Strategy    *strategy.BatchBayes
	Proposed    *data.Table
	Iterations  int
	Err         string
	CancelFunc  context.CancelFunc

	// inFlight stays set from the moment a round is accepted until its
	// goroutine finishes, even if the run was cancelled in between.
	inFlight bool
}

// Server implements the HTTP API for the suggestion service.
type Server struct {
	cfg     *config.Config
	logger  Logger
	metrics *Metrics

	runs   map[string]*RunState
	runsMu sync.RWMutex
}

// NewServer creates a new server instance with the given config and logger.
func NewServer(cfg *config.Config, logger Logger, metrics *Metrics) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		runs:    make(map[string]*RunState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", s.handleCreateRun)
		r.Get("/runs/{id}", s.handleRunStatus)
		r.Post("/runs/{id}/suggest", s.handleSuggest)
		r.Post("/runs/{id}/reset", s.handleReset)
		r.Delete("/runs/{id}", s.handleCancel)
	})
}

// variableSpec is the JSON form of one domain variable.
type variableSpec struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type"`
	Lower       float64  `json:"lower,omitempty"`
	Upper       float64  `json:"upper,omitempty"`
	Levels      []string `json:"levels,omitempty"`
	Descriptors *struct {
		Index   []string    `json:"index"`
		Columns []string    `json:"columns"`
		Values  [][]float64 `json:"values"`
	} `json:"descriptors,omitempty"`
	Objective bool `json:"objective,omitempty"`
	Maximize  bool `json:"maximize,omitempty"`
}

type createRunRequest struct {
	Variables         []variableSpec `json:"variables"`
	CategoricalMethod string         `json:"categorical_method,omitempty"`
	Seed              int64          `json:"seed,omitempty"`
}

// columnPayload and tablePayload are the JSON form of a data table.
type columnPayload struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type tablePayload struct {
	Columns []columnPayload `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

type suggestRequest struct {
	NumExperiments int           `json:"num_experiments"`
	Results        *tablePayload `json:"results,omitempty"`
}

// handleCreateRun creates a run from a domain declaration.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Variables) == 0 {
		s.respondError(w, http.StatusBadRequest, "at least one variable is required")
		return
	}

	d, err := buildDomain(req.Variables)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := "run_" + uuid.NewString()
	opts := []strategy.Option{
		strategy.WithRestarts(s.cfg.Strategy.Restarts),
		strategy.WithSpectralPoints(s.cfg.Strategy.SpectralPoints),
		strategy.WithFitRetries(s.cfg.Strategy.FitRetries),
		strategy.WithLogger(logging.NewZapLogger(s.logger.WithFields(map[string]interface{}{
			"run_id": id,
		}))),
	}
	if req.CategoricalMethod != "" {
		opts = append(opts, strategy.WithCategoricalMethod(transform.CategoricalMethod(req.CategoricalMethod)))
	}
	switch {
	case req.Seed != 0:
		opts = append(opts, strategy.WithSeed(req.Seed))
	case s.cfg.Strategy.Seed != 0:
		opts = append(opts, strategy.WithSeed(s.cfg.Strategy.Seed))
	}

	st, err := strategy.NewBatchBayes(d, opts...)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	state := &RunState{
		ID:          id,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Strategy:    st,
	}

	s.runsMu.Lock()
	s.runs[id] = state
	s.runsMu.Unlock()
	s.metrics.RunsCreated.Inc()

	s.logger.Info("Run created", map[string]interface{}{
		"run_id":    id,
		"variables": len(req.Variables),
	})

	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"run_id": id,
		"status": StatusPending,
	})
}

// handleSuggest starts a suggestion round. Validation failures are reported
// synchronously; the round itself runs in a goroutine and its outcome is
// observed through the status endpoint.
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.NumExperiments < 2 {
		s.respondError(w, http.StatusBadRequest, "num_experiments must be at least 2")
		return
	}

	var prevRes *data.Table
	if req.Results != nil {
		t, err := decodeTable(req.Results)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		prevRes = t
	}

	s.runsMu.Lock()
	state, exists := s.runs[id]
	if !exists {
		s.runsMu.Unlock()
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if state.inFlight {
		s.runsMu.Unlock()
		s.respondError(w, http.StatusConflict, "a suggestion round is already in progress")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	state.Status = StatusRunning
	state.inFlight = true
	state.Err = ""
	state.EndTime = nil
	state.LastUpdated = time.Now()
	state.CancelFunc = cancel
	s.runsMu.Unlock()

	go s.runRound(ctx, state, req.NumExperiments, prevRes)

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id": id,
		"status": StatusRunning,
	})
}

// runRound executes one suggestion round and records its outcome.
func (s *Server) runRound(ctx context.Context, state *RunState, q int, prevRes *data.Table) {
	start := time.Now()
	proposed, err := state.Strategy.Suggest(ctx, q, prevRes)
	elapsed := time.Since(start)

	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now
	state.inFlight = false
	state.Iterations = state.Strategy.Iterations()

	if state.Status == StatusCancelled {
		s.logger.Info("Suggestion round cancelled", map[string]interface{}{
			"run_id": state.ID,
		})
		return
	}
	if err != nil {
		state.Status = StatusFailed
		state.Err = err.Error()
		s.logger.Error("Suggestion round failed", map[string]interface{}{
			"run_id": state.ID,
			"error":  err.Error(),
		})
		return
	}

	state.Status = StatusCompleted
	state.Proposed = proposed
	s.metrics.Proposals.Inc()
	s.metrics.RoundDuration.Observe(elapsed.Seconds())
	s.logger.Info("Suggestion round completed", map[string]interface{}{
		"run_id":     state.ID,
		"batch_size": q,
		"elapsed":    elapsed.String(),
	})
}

// handleRunStatus reports a run's state and, once completed, the proposed
// batch.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.runsMu.RLock()
	state, exists := s.runs[id]
	if !exists {
		s.runsMu.RUnlock()
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	resp := map[string]interface{}{
		"run_id":      state.ID,
		"status":      state.Status,
		"iterations":  state.Iterations,
		"start_time":  state.StartTime.Format(time.RFC3339),
		"last_update": state.LastUpdated.Format(time.RFC3339),
	}
	if state.EndTime != nil {
		resp["end_time"] = state.EndTime.Format(time.RFC3339)
	}
	if state.Err != "" {
		resp["error"] = state.Err
	}
	if state.Proposed != nil {
		resp["proposed"] = encodeTable(state.Proposed)
	}
	s.runsMu.RUnlock()

	s.respondJSON(w, http.StatusOK, resp)
}

// handleReset discards a run's history so the next round starts cold.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	state, exists := s.runs[id]
	if !exists {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if state.inFlight {
		s.respondError(w, http.StatusConflict, "cannot reset while a round is in progress")
		return
	}

	state.Strategy.Reset()
	state.Status = StatusPending
	state.Proposed = nil
	state.Iterations = 0
	state.Err = ""
	state.EndTime = nil
	state.LastUpdated = time.Now()

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": id,
		"status": StatusPending,
	})
}

// handleCancel cancels an in-flight suggestion round.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	state, exists := s.runs[id]
	if !exists {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if state.Status != StatusRunning {
		s.respondError(w, http.StatusConflict, "no round in progress for run with status: "+state.Status)
		return
	}

	if state.CancelFunc != nil {
		state.CancelFunc()
	}
	state.Status = StatusCancelled
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Run cancelled", map[string]interface{}{
		"run_id": id,
	})

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": id,
		"status": StatusCancelled,
	})
}

// buildDomain constructs the search space from its JSON declaration.
func buildDomain(specs []variableSpec) (*domain.Domain, error) {
	d := domain.New()
	for _, spec := range specs {
		var v *domain.Variable
		var err error
		switch spec.Type {
		case string(domain.Continuous):
			v, err = domain.NewContinuous(spec.Name, spec.Description, spec.Lower, spec.Upper)
		case string(domain.Discrete):
			v, err = domain.NewDiscrete(spec.Name, spec.Description, spec.Levels)
		case string(domain.Descriptors):
			if spec.Descriptors == nil {
				return nil, &badVariableError{spec.Name, "descriptors variable requires a descriptor table"}
			}
			var table *domain.DescriptorTable
			table, err = domain.NewDescriptorTable(spec.Descriptors.Index, spec.Descriptors.Columns, spec.Descriptors.Values)
			if err == nil {
				v, err = domain.NewDescriptors(spec.Name, spec.Description, table)
			}
		default:
			return nil, &badVariableError{spec.Name, "unknown variable type " + spec.Type}
		}
		if err != nil {
			return nil, err
		}
		if spec.Objective {
			v.AsObjective(spec.Maximize)
		}
		d.Add(v)
	}
	return d, nil
}

type badVariableError struct {
	name   string
	reason string
}

func (e *badVariableError) Error() string {
	return "variable " + e.name + ": " + e.reason
}

// decodeTable builds a data table from its JSON payload. Numeric cells
// arrive as JSON numbers, text cells as strings.
func decodeTable(p *tablePayload) (*data.Table, error) {
	cols := make([]data.Column, len(p.Columns))
	for i, c := range p.Columns {
		kind := data.KindData
		if c.Kind == "metadata" {
			kind = data.KindMetadata
		}
		cols[i] = data.Column{Name: c.Name, Kind: kind}
	}
	t := data.New(cols...)
	for _, row := range p.Rows {
		if len(row) != len(cols) {
			return nil, errors.Errorf("table row has %d cells but %d columns declared", len(row), len(cols)).
				WithComponent("server")
		}
		cells := make([]data.Value, len(row))
		for i, cell := range row {
			switch v := cell.(type) {
			case float64:
				cells[i] = data.Number(v)
			case string:
				cells[i] = data.Text(v)
			default:
				return nil, errors.Errorf("column %q: cell must be a number or a string", cols[i].Name).
					WithComponent("server")
			}
		}
		if err := t.AppendRow(cells...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// encodeTable renders a data table as its JSON payload.
func encodeTable(t *data.Table) *tablePayload {
	cols := t.Columns()
	p := &tablePayload{Columns: make([]columnPayload, len(cols))}
	for i, c := range cols {
		kind := "data"
		if c.Kind == data.KindMetadata {
			kind = "metadata"
		}
		p.Columns[i] = columnPayload{Name: c.Name, Kind: kind}
	}
	for r := 0; r < t.NumRows(); r++ {
		row := make([]interface{}, len(cols))
		for i, c := range cols {
			cell, _ := t.At(r, c.Name)
			if cell.IsText() {
				row[i] = cell.Text()
			} else {
				row[i] = cell.Float()
			}
		}
		p.Rows = append(p.Rows, row)
	}
	return p
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.logger.Error("Request error", map[string]interface{}{
		"status":  status,
		"message": message,
	})
	s.respondJSON(w, status, map[string]interface{}{
		"error": message,
	})
}

// Close cancels all in-flight rounds.
func (s *Server) Close() error {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	for _, run := range s.runs {
		if run.CancelFunc != nil {
			run.CancelFunc()
		}
	}
	return nil
}
