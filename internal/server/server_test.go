package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quenchlab/crucible/internal/config"
	"github.com/quenchlab/crucible/internal/logging"
)

func testServer(t *testing.T) (*Server, *chi.Mux) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Strategy.Restarts = 3
	cfg.Strategy.SpectralPoints = 60
	cfg.Strategy.FitRetries = 10
	cfg.Strategy.Seed = 42

	logger, err := logging.NewLogger(&logging.Config{Level: "fatal", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	srv := NewServer(cfg, logger, NewMetrics(prometheus.NewRegistry()))
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return srv, r
}

func createRunBody() []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"variables": []map[string]interface{}{
			{"name": "temperature", "type": "continuous", "lower": 30, "upper": 100},
			{"name": "solvent", "type": "discrete", "levels": []string{"thf", "toluene"}},
			{"name": "yield", "type": "continuous", "lower": 0, "upper": 100,
				"objective": true, "maximize": true},
		},
	})
	return body
}

func createRun(t *testing.T, r http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader(createRunBody()))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	id, _ := resp["run_id"].(string)
	require.NotEmpty(t, id)
	return id
}

// waitForTerminal polls the status endpoint until the run leaves the running
// state.
func waitForTerminal(t *testing.T, r http.Handler, id string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		if status := resp["status"].(string); status != StatusRunning && status != StatusPending {
			return resp
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not reach a terminal state in time")
	return nil
}

func TestCreateRun(t *testing.T) {
	_, r := testServer(t)
	id := createRun(t, r)
	assert.Contains(t, id, "run_")
}

func TestCreateRunRejectsBadRequests(t *testing.T) {
	_, r := testServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"no variables", `{"variables": []}`},
		{"unknown type", `{"variables": [{"name": "x", "type": "fuzzy"}]}`},
		{"bad name", `{"variables": [{"name": "bad name", "type": "continuous", "lower": 0, "upper": 1}]}`},
		{"no objective", `{"variables": [{"name": "x", "type": "continuous", "lower": 0, "upper": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader([]byte(tt.body)))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSuggestColdStartRound(t *testing.T) {
	_, r := testServer(t)
	id := createRun(t, r)

	body, _ := json.Marshal(map[string]interface{}{"num_experiments": 4})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/"+id+"/suggest", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp := waitForTerminal(t, r, id)
	require.Equal(t, StatusCompleted, resp["status"])
	assert.Equal(t, float64(1), resp["iterations"])

	proposed, ok := resp["proposed"].(map[string]interface{})
	require.True(t, ok, "completed run should carry the proposed batch")
	rows := proposed["rows"].([]interface{})
	assert.Len(t, rows, 4)
}

func TestSuggestModelBasedRound(t *testing.T) {
	_, r := testServer(t)
	id := createRun(t, r)

	body, _ := json.Marshal(map[string]interface{}{
		"num_experiments": 2,
		"results": map[string]interface{}{
			"columns": []map[string]string{
				{"name": "temperature", "kind": "data"},
				{"name": "solvent", "kind": "data"},
				{"name": "yield", "kind": "data"},
			},
			"rows": [][]interface{}{
				{40, "thf", 20},
				{60, "toluene", 55},
				{80, "thf", 90},
			},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/"+id+"/suggest", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp := waitForTerminal(t, r, id)
	require.Equal(t, StatusCompleted, resp["status"], "%v", resp["error"])

	proposed := resp["proposed"].(map[string]interface{})
	rows := proposed["rows"].([]interface{})
	require.Len(t, rows, 2)

	// The metadata column tags every proposed row with the strategy name.
	cols := proposed["columns"].([]interface{})
	last := cols[len(cols)-1].(map[string]interface{})
	assert.Equal(t, "strategy", last["name"])
	assert.Equal(t, "metadata", last["kind"])
}

func TestStatusPollsDuringRound(t *testing.T) {
	_, r := testServer(t)
	id := createRun(t, r)

	body, _ := json.Marshal(map[string]interface{}{"num_experiments": 4})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/"+id+"/suggest", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Hammer the status endpoint while the round is in flight. The handler
	// reads only the snapshot fields, so the count stays at the previous
	// round's value until the goroutine publishes the new one.
	var final map[string]interface{}
	for {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		if resp["status"] == StatusRunning {
			assert.Equal(t, float64(0), resp["iterations"])
			time.Sleep(time.Millisecond)
			continue
		}
		final = resp
		break
	}
	require.Equal(t, StatusCompleted, final["status"])
	assert.Equal(t, float64(1), final["iterations"])
}

func TestSuggestValidation(t *testing.T) {
	_, r := testServer(t)
	id := createRun(t, r)

	// Batch size below two is rejected synchronously.
	body, _ := json.Marshal(map[string]interface{}{"num_experiments": 1})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/"+id+"/suggest", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown runs are a 404.
	body, _ = json.Marshal(map[string]interface{}{"num_experiments": 2})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/runs/run_missing/suggest", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResetStartsCold(t *testing.T) {
	_, r := testServer(t)
	id := createRun(t, r)

	body, _ := json.Marshal(map[string]interface{}{"num_experiments": 3})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/"+id+"/suggest", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForTerminal(t, r, id)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/runs/"+id+"/reset", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusPending, resp["status"])
	assert.Equal(t, float64(0), resp["iterations"])
	assert.Nil(t, resp["proposed"])
}

func TestCancelWithoutRoundInProgress(t *testing.T) {
	_, r := testServer(t)
	id := createRun(t, r)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/runs/"+id, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDecodeTableRejectsRaggedRows(t *testing.T) {
	_, err := decodeTable(&tablePayload{
		Columns: []columnPayload{{Name: "x", Kind: "data"}},
		Rows:    [][]interface{}{{1.0, 2.0}},
	})
	assert.Error(t, err)
}
