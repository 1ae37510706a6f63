package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gobandits/adapters/filestore"
	"gobandits/adapters/rng"
	"gobandits/app"
	"gobandits/domain/arms"
	"gobandits/domain/core"
	"gobandits/internal"
	"gobandits/internal/betainc"
	"gobandits/internal/errors"
	"gobandits/internal/thompson"
)

func newTestServer(t *testing.T, roster *arms.Roster) *Server {
	t.Helper()
	store := filestore.NewRosterStore(filepath.Join(t.TempDir(), "roster.json"))
	require.NoError(t, store.Save(context.Background(), roster))

	scheduler := app.NewSchedulerService(nil, rng.NewSeededAdapter(), app.WithLogger(internal.Discard))
	return NewServer(store, scheduler, 42, internal.Discard)
}

func testRoster() *arms.Roster {
	measured := arms.NewScript("measured", "./measured.sh")
	measured.Record(arms.Outcome{Uninteresting: 1, Duration: 30 * time.Millisecond})

	done := arms.NewScript("done", "./done.sh")
	done.Limit = new(uint64)

	fresh := arms.NewScript("fresh", "./fresh.sh")

	return &arms.Roster{Scripts: []arms.Script{measured, done, fresh}}
}

func get(t *testing.T, srv http.Handler, target string, into interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	if into != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	var body map[string]string
	code := get(t, newTestServer(t, testRoster()), "/healthz", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestArms(t *testing.T) {
	var views []ArmView
	code := get(t, newTestServer(t, testRoster()), "/arms", &views)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, views, 3)

	assert.Equal(t, core.ArmName("measured"), views[0].Name)
	assert.True(t, views[0].AvgRuntimeMs.Known())
	assert.InDelta(t, 1.0/3.0, views[0].PosteriorMean, 1e-12)
	assert.False(t, views[1].Eligible)
	assert.False(t, views[2].AvgRuntimeMs.Known())
}

func TestSelect(t *testing.T) {
	srv := newTestServer(t, testRoster())

	var resp SelectResponse
	code := get(t, srv, "/select", &resp)
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.Selected)
	assert.Equal(t, 2, resp.Index, "the unmeasured script goes first")
	require.NotNil(t, resp.Script)
	assert.Equal(t, core.ArmName("fresh"), *resp.Script)
	assert.Equal(t, "runtime-aware", resp.Mode)

	code = get(t, srv, "/select?ignore_runtime=true", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ignore-runtime", resp.Mode)
	assert.NotEqual(t, 1, resp.Index, "scripts past their limit are never selected")
}

func TestSelect_NothingEligible(t *testing.T) {
	done := arms.NewScript("done", "./done.sh")
	done.Limit = new(uint64)

	var resp SelectResponse
	code := get(t, newTestServer(t, &arms.Roster{Scripts: []arms.Script{done}}), "/select", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, resp.Selected)
	assert.Nil(t, resp.Script)
}

func TestRank(t *testing.T) {
	var resp RankResponse
	code := get(t, newTestServer(t, testRoster()), "/rank", &resp)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Order, 3)
	require.Len(t, resp.Scripts, 3)
	assert.ElementsMatch(t, []int{0, 1, 2}, resp.Order)
	// both unmeasured scripts tie on the sentinel and keep roster order
	assert.Equal(t, []core.ArmName{"done", "fresh", "measured"}, resp.Scripts)
}

func TestQuantile(t *testing.T) {
	srv := newTestServer(t, testRoster())

	var resp QuantileResponse
	code := get(t, srv, "/arms/fresh/quantile?p=0.95", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 0.95, resp.Quantile, 1e-9)
	assert.False(t, resp.Approximate)

	code = get(t, srv, "/arms/fresh/quantile", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 0.5, resp.Quantile, 1e-9)
}

func TestQuantile_ApproximateWhenBudgetExhausted(t *testing.T) {
	busy := arms.NewScript("busy", "./busy.sh")
	busy.Results = arms.Statistics{Interesting: 4, Uninteresting: 2}
	roster := &arms.Roster{Scripts: []arms.Script{busy}}

	store := filestore.NewRosterStore(filepath.Join(t.TempDir(), "roster.json"))
	require.NoError(t, store.Save(context.Background(), roster))
	starved := thompson.Sampler{Inverter: betainc.Inverter{MaxIterations: 1}}
	scheduler := app.NewSchedulerService(nil, rng.NewSeededAdapter(), app.WithLogger(internal.Discard), app.WithSampler(starved))
	srv := NewServer(store, scheduler, 42, internal.Discard)

	var resp QuantileResponse
	code := get(t, srv, "/arms/busy/quantile?p=0.3", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Approximate)
	assert.True(t, resp.Quantile >= 0 && resp.Quantile <= 1)

	var raw map[string]interface{}
	get(t, srv, "/arms/busy/quantile?p=0.3", &raw)
	assert.Equal(t, true, raw["approximate"])

	var rank RankResponse
	code = get(t, srv, "/rank", &rank)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []int{0}, rank.Order)
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t, testRoster())

	tests := []struct {
		target string
		status int
		code   string
	}{
		{"/select?ignore_runtime=maybe", http.StatusBadRequest, errors.CodeInvalidInput},
		{"/rank?ignore_runtime=2", http.StatusBadRequest, errors.CodeInvalidInput},
		{"/arms/fresh/quantile?p=abc", http.StatusBadRequest, errors.CodeInvalidInput},
		{"/arms/fresh/quantile?p=1.5", http.StatusBadRequest, errors.CodeInvalidInput},
		{"/arms/ghost/quantile?p=0.5", http.StatusNotFound, errors.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var body ErrorResponse
			code := get(t, srv, tt.target, &body)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestMissingRoster(t *testing.T) {
	store := filestore.NewRosterStore(filepath.Join(t.TempDir(), "absent.json"))
	scheduler := app.NewSchedulerService(nil, rng.NewSeededAdapter(), app.WithLogger(internal.Discard))
	srv := NewServer(store, scheduler, 1, internal.Discard)

	var body ErrorResponse
	code := get(t, srv, "/arms", &body)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, errors.CodeNotFound, body.Code)
}
