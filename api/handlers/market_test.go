package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/resolver"
	"github.com/BaSui01/stockrag/types"
)

type fakeMarketService struct {
	result      resolver.Result
	err         error
	gotType     market.DataType
	gotCode     string
	gotParams   map[string]string
	invalidated int
}

func (f *fakeMarketService) Resolve(_ context.Context, dt market.DataType, code string, params map[string]string) (resolver.Result, error) {
	f.gotType, f.gotCode, f.gotParams = dt, code, params
	return f.result, f.err
}

func (f *fakeMarketService) Invalidate(_ context.Context, dt market.DataType, code string, params map[string]string) error {
	f.gotType, f.gotCode, f.gotParams = dt, code, params
	f.invalidated++
	return f.err
}

func newMarketRouter(svc MarketService) http.Handler {
	h := NewMarketHandler(svc, zap.NewNop())
	r := chi.NewRouter()
	r.Get("/market/{dataType}/{code}", h.HandleResolve)
	r.Delete("/market/{dataType}/{code}/cache", h.HandleInvalidate)
	return r
}

func TestMarketHandler_Resolve(t *testing.T) {
	svc := &fakeMarketService{result: resolver.Result{
		Value: market.Record{"close": 1680.5},
		Tier:  resolver.TierPersistent,
	}}
	router := newMarketRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/market/realtime_quote/600519?period=daily", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, market.RealtimeQuote, svc.gotType)
	assert.Equal(t, "600519", svc.gotCode)
	assert.Equal(t, map[string]string{"period": "daily"}, svc.gotParams)

	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "persistent", data["source_tier"])
	assert.Equal(t, "realtime_quote", data["data_type"])
	assert.Equal(t, 1680.5, data["value"].(map[string]any)["close"])
}

func TestMarketHandler_ResolveUnavailable(t *testing.T) {
	router := newMarketRouter(&fakeMarketService{result: resolver.Result{Tier: resolver.TierUnavailable}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/market/financial/000001", nil))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "unavailable", data["source_tier"])
	assert.NotContains(t, data, "value")
}

func TestMarketHandler_ResolveErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"bad code", types.NewValidationError("invalid entity code"), http.StatusBadRequest},
		{"storage", types.NewStorageError("query failed", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newMarketRouter(&fakeMarketService{err: tt.err})
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/market/financial/abc", nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestMarketHandler_Invalidate(t *testing.T) {
	svc := &fakeMarketService{}
	router := newMarketRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/market/fund_flow/300750/cache", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.invalidated)
	assert.Equal(t, market.FundFlow, svc.gotType)
	assert.Nil(t, svc.gotParams)
	assert.Equal(t, "invalidated", decodeResponse(t, w).Data.(map[string]any)["status"])
}
