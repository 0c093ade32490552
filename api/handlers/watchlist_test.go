package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/internal/ctxkeys"
	"github.com/BaSui01/stockrag/scheduler"
	"github.com/BaSui01/stockrag/testutil"
)

type fakeRunner struct {
	priority   int
	codes      []string
	dataTypes  []string
	gotTrigger string
}

func (f *fakeRunner) ProcessPriority(ctx context.Context, priority int) (*scheduler.Report, error) {
	f.gotTrigger, _ = ctxkeys.Trigger(ctx)
	f.priority = priority
	return &scheduler.Report{Pairs: 4, Succeeded: 4}, nil
}

func (f *fakeRunner) ProcessEntities(ctx context.Context, codes, dataTypes []string) (*scheduler.Report, error) {
	f.gotTrigger, _ = ctxkeys.Trigger(ctx)
	f.codes, f.dataTypes = codes, dataTypes
	return &scheduler.Report{Pairs: len(codes) * len(dataTypes)}, nil
}

func newWatchlistRouter(t *testing.T) (http.Handler, *scheduler.WatchlistRepository, *fakeRunner) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	require.NoError(t, scheduler.AutoMigrate(db))
	repo := scheduler.NewWatchlistRepository(db, zap.NewNop())
	runner := &fakeRunner{}

	h := NewWatchlistHandler(repo, runner, zap.NewNop())
	r := chi.NewRouter()
	r.Get("/watchlists", h.HandleList)
	r.Post("/watchlists", h.HandleCreate)
	r.Post("/watchlists/process", h.HandleProcess)
	r.Get("/watchlists/{id}", h.HandleGet)
	r.Put("/watchlists/{id}", h.HandleUpdate)
	r.Delete("/watchlists/{id}", h.HandleDelete)
	return r, repo, runner
}

const baijiuBody = `{"name":"白酒","priority":2,"entity_codes":["600519","000858"],"data_types":["financial","fund_flow"],"schedule":"@every 15m"}`

func TestWatchlistHandler_CRUD(t *testing.T) {
	router, repo, _ := newWatchlistRouter(t)
	ctx := testutil.TestContext(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/watchlists", baijiuBody))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeResponse(t, w).Data.(map[string]any)
	id := uint(created["id"].(float64))
	assert.Equal(t, true, created["enabled"])

	stored, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"600519", "000858"}, []string(stored.EntityCodes))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/watchlists/%d", id), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "白酒", decodeResponse(t, w).Data.(map[string]any)["name"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPut, fmt.Sprintf("/watchlists/%d", id),
		`{"name":"白酒","priority":1,"entity_codes":["600519"],"data_types":["financial"],"enabled":false}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Priority)
	assert.False(t, stored.Enabled)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/watchlists?enabled=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeResponse(t, w).Data)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/watchlists/%d", id), nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/watchlists/%d", id), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWatchlistHandler_Validation(t *testing.T) {
	router, _, _ := newWatchlistRouter(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"bad priority", http.MethodPost, "/watchlists", `{"name":"a","priority":9,"entity_codes":["600519"],"data_types":["financial"]}`, http.StatusBadRequest},
		{"bad code", http.MethodPost, "/watchlists", `{"name":"a","priority":1,"entity_codes":["60X519"],"data_types":["financial"]}`, http.StatusBadRequest},
		{"bad schedule", http.MethodPost, "/watchlists", `{"name":"a","priority":1,"entity_codes":["600519"],"data_types":["financial"],"schedule":"sometimes"}`, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/watchlists/abc", ``, http.StatusBadRequest},
		{"missing", http.MethodDelete, "/watchlists/42", ``, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, jsonRequest(tt.method, tt.target, tt.body))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestWatchlistHandler_DuplicateName(t *testing.T) {
	router, _, _ := newWatchlistRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/watchlists", baijiuBody))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/watchlists", baijiuBody))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWatchlistHandler_Process(t *testing.T) {
	router, _, runner := newWatchlistRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/watchlists/process", `{"priority":2}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, runner.priority)
	assert.Equal(t, ctxkeys.TriggerAPI, runner.gotTrigger)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/watchlists/process",
		`{"codes":["600519","000001"],"data_types":["financial"]}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"600519", "000001"}, runner.codes)
	assert.EqualValues(t, 2, decodeResponse(t, w).Data.(map[string]any)["pairs"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/watchlists/process", `{"codes":["300750"]}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"300750"}, runner.codes)
	assert.Empty(t, runner.dataTypes)

	for _, body := range []string{`{"priority":1,"codes":["600519"]}`, `{"data_types":["financial"]}`, `{}`} {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, jsonRequest(http.MethodPost, "/watchlists/process", body))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}
