package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/BaSui01/stockrag/internal/ctxkeys"
	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/rag"
	"github.com/BaSui01/stockrag/types"
)

// =============================================================================
// 🎭 测试替身
// =============================================================================

type fakeSync struct {
	result     rag.SyncResult
	batch      rag.BatchResult
	gotItems   []rag.BatchItem
	gotTrigger string
}

func (f *fakeSync) SyncEntity(ctx context.Context, code string, dt market.DataType) rag.SyncResult {
	f.gotTrigger, _ = ctxkeys.Trigger(ctx)
	res := f.result
	res.Code, res.DataType = code, dt
	return res
}

func (f *fakeSync) SyncBatch(ctx context.Context, items []rag.BatchItem) rag.BatchResult {
	f.gotTrigger, _ = ctxkeys.Trigger(ctx)
	f.gotItems = items
	return f.batch
}

type fakeVersions struct {
	versions  []rag.DataVersion
	active    *rag.DataVersion
	activated bool
	err       error
	gotDays   int
}

func (f *fakeVersions) ListVersions(context.Context, string, market.DataType) ([]rag.DataVersion, error) {
	return f.versions, f.err
}

func (f *fakeVersions) GetActiveVersion(context.Context, string, market.DataType) (*rag.DataVersion, error) {
	return f.active, f.err
}

func (f *fakeVersions) ActivateVersion(context.Context, string) (bool, error) {
	return f.activated, f.err
}

func (f *fakeVersions) CleanupDeprecatedVersions(_ context.Context, days int) (int, error) {
	f.gotDays = days
	return 3, f.err
}

type fakeSearch struct {
	result rag.SearchResult
	err    error
	gotK   int
}

func (f *fakeSearch) Search(_ context.Context, _ string, _ market.DataType, _ string, topK int) (rag.SearchResult, error) {
	f.gotK = topK
	return f.result, f.err
}

func newRAGRouter(s SyncService, v VersionService, q SearchService) http.Handler {
	h := NewRAGHandler(s, v, q, 0, zap.NewNop())
	r := chi.NewRouter()
	r.Post("/rag/sync", h.HandleSync)
	r.Post("/rag/sync/batch", h.HandleSyncBatch)
	r.Get("/rag/versions/{code}/{dataType}", h.HandleListVersions)
	r.Get("/rag/versions/{code}/{dataType}/active", h.HandleActiveVersion)
	r.Post("/rag/versions/{id}/activate", h.HandleActivate)
	r.Post("/rag/search", h.HandleSearch)
	r.Post("/rag/cleanup", h.HandleCleanup)
	return r
}

// =============================================================================
// 🧪 测试
// =============================================================================

func TestRAGHandler_Sync(t *testing.T) {
	sync := &fakeSync{result: rag.SyncResult{Success: true, VersionID: "v-1", Chunks: 2, Vectors: 2}}
	router := newRAGRouter(sync, &fakeVersions{}, &fakeSearch{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/rag/sync", `{"code":"600519","data_type":"financial"}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ctxkeys.TriggerAPI, sync.gotTrigger)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "v-1", data["version_id"])
	assert.Equal(t, true, data["success"])
}

func TestRAGHandler_SyncFailureKeepsResult(t *testing.T) {
	sync := &fakeSync{result: rag.SyncResult{
		Error: types.NewError(types.ErrVectorizationFailure, "no source data available"),
	}}
	router := newRAGRouter(sync, &fakeVersions{}, &fakeSearch{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/rag/sync", `{"code":"600519","data_type":"financial"}`))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, string(types.ErrVectorizationFailure), resp.Error.Code)
	assert.Equal(t, "600519", resp.Data.(map[string]any)["code"])
}

func TestRAGHandler_SyncRejectsBadInput(t *testing.T) {
	router := newRAGRouter(&fakeSync{}, &fakeVersions{}, &fakeSearch{})

	for _, body := range []string{
		`{"code":"60051","data_type":"financial"}`,
		`{"code":"600519","data_type":"weather"}`,
		`{"code":"600519"}`,
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, jsonRequest(http.MethodPost, "/rag/sync", body))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/rag/sync", nil)
	r.Header.Set("Content-Type", "text/plain")
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRAGHandler_SyncBatch(t *testing.T) {
	sync := &fakeSync{batch: rag.BatchResult{
		Total: 2, SuccessCount: 1, FailedCount: 1, SuccessRate: 0.5,
		Errors:  []rag.ItemError{{Code: "000001", DataType: market.Financial, ErrorCode: types.ErrVectorizationFailure}},
		Results: []rag.SyncResult{{Code: "600519"}},
	}}
	router := newRAGRouter(sync, &fakeVersions{}, &fakeSearch{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/rag/sync/batch",
		`{"items":[{"code":"600519","data_type":"financial"},{"code":"000001","data_type":"financial"}]}`))

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, sync.gotItems, 2)
	assert.Equal(t, "000001", sync.gotItems[1].Code)

	data := decodeResponse(t, w).Data.(map[string]any)
	assert.EqualValues(t, 1, data["failed_count"])
	assert.NotContains(t, data, "results")
	assert.Len(t, data["errors"], 1)
}

func TestRAGHandler_Versions(t *testing.T) {
	now := time.Now()
	active := rag.DataVersion{
		VersionID: "v-2", EntityCode: "600519", DataType: "financial",
		Status: rag.StatusActive, ActivatedAt: &now,
		Metadata: datatypes.JSON(`{"sub_type":"income"}`),
	}
	versions := &fakeVersions{
		versions: []rag.DataVersion{active, {VersionID: "v-1", Status: rag.StatusDeprecated, DeprecatedAt: &now}},
		active:   &active,
	}
	router := newRAGRouter(&fakeSync{}, versions, &fakeSearch{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rag/versions/600519/financial", nil))
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeResponse(t, w).Data.([]any)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, "active", first["status"])
	assert.Equal(t, "income", first["metadata"].(map[string]any)["sub_type"])
	assert.NotContains(t, first, "source_data")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rag/versions/600519/financial/active", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v-2", decodeResponse(t, w).Data.(map[string]any)["version_id"])

	versions.active = nil
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rag/versions/600519/financial/active", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRAGHandler_Activate(t *testing.T) {
	versions := &fakeVersions{activated: true}
	router := newRAGRouter(&fakeSync{}, versions, &fakeSearch{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rag/versions/v-9/activate", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"version_id": "v-9", "activated": true}, decodeResponse(t, w).Data)

	versions.activated = false
	versions.err = types.NewError(types.ErrInvalidStateTransition, "version is pending")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rag/versions/v-9/activate", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, decodeResponse(t, w).Data.(map[string]any)["activated"])
}

func TestRAGHandler_Search(t *testing.T) {
	search := &fakeSearch{}
	router := newRAGRouter(&fakeSync{}, &fakeVersions{}, search)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/rag/search",
		`{"code":"600519","data_type":"company_profile","query":"主营业务","top_k":3}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, search.gotK)
	assert.Equal(t, []any{}, decodeResponse(t, w).Data.(map[string]any)["hits"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/rag/search",
		`{"code":"600519","data_type":"company_profile","query":"x","top_k":99}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRAGHandler_Cleanup(t *testing.T) {
	versions := &fakeVersions{}
	router := newRAGRouter(&fakeSync{}, versions, &fakeSearch{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rag/cleanup", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, versions.gotDays)
	assert.Equal(t, map[string]any{"days": float64(7), "purged": float64(3)}, decodeResponse(t, w).Data)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/rag/cleanup", `{"days":30}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, versions.gotDays)
}
