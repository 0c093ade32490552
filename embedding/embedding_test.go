package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/config"
	"github.com/BaSui01/stockrag/testutil"
	"github.com/BaSui01/stockrag/types"
)

func TestHashProvider_DeterministicAndNormalized(t *testing.T) {
	p := NewHashProvider(64)
	ctx := context.Background()

	a, err := p.Embed(ctx, []string{"贵州茅台 营业收入 同比增长", "贵州茅台 营业收入 同比增长"})
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, a[0], a[1])
	assert.Len(t, a[0], 64)

	var norm float64
	for _, v := range a[0] {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)

	empty, err := p.Embed(ctx, []string{"   "})
	require.NoError(t, err)
	assert.Len(t, empty[0], 64)
}

func TestHashProvider_SimilarTextsCloser(t *testing.T) {
	p := NewHashProvider(256)
	vecs, err := p.Embed(context.Background(), []string{
		"平安银行 主力资金 净流入",
		"平安银行 主力资金 净流出",
		"宁德时代 公司简介 注册地址",
	})
	require.NoError(t, err)
	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

func TestHashProvider_ContextCancelled(t *testing.T) {
	_, err := NewHashProvider(8).Embed(testutil.CancelledContext(), []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestOpenAIProvider_BatchesAndOrders(t *testing.T) {
	var batches []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batches = append(batches, len(req.Input))

		// 倒序返回，验证按 index 还原
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{"index": i, "embedding": []float64{float64(len(req.Input[i]))}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "model": req.Model})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "sk-test", MaxBatch: 2}, zap.NewNop())
	vecs, err := p.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, batches)
	assert.Equal(t, [][]float64{{1}, {2}, {3}}, vecs)
}

func TestOpenAIProvider_HTTPErrors(t *testing.T) {
	tests := []struct {
		status    int
		code      types.ErrorCode
		retryable bool
	}{
		{http.StatusTooManyRequests, types.ErrRateLimited, true},
		{http.StatusBadRequest, types.ErrValidation, false},
		{http.StatusInternalServerError, types.ErrEmbedding, true},
		{http.StatusUnauthorized, types.ErrEmbedding, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL}, nil).Embed(context.Background(), []string{"x"})
			require.Error(t, err)
			assert.Equal(t, tt.code, types.GetErrorCode(err))
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
		})
	}
}

func TestOpenAIProvider_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL}, nil).Embed(context.Background(), []string{"x"})
	assert.True(t, types.IsErrorCode(err, types.ErrEmbedding))
}

func TestEmbedOne_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL}, nil)
	_, err := EmbedOne(context.Background(), p, "x", 50*time.Millisecond)
	assert.True(t, types.IsErrorCode(err, types.ErrTimeout))
}

type recordingObserver struct{ errs []error }

func (r *recordingObserver) ObserveEmbedding(_ string, err error) { r.errs = append(r.errs, err) }

func TestObserved(t *testing.T) {
	obs := &recordingObserver{}
	p := NewObserved(NewHashProvider(8), obs)
	_, err := p.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []error{nil}, obs.errs)
	assert.Equal(t, 8, p.Dimensions())

	assert.IsType(t, &HashProvider{}, NewObserved(NewHashProvider(8), nil))
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultEmbeddingConfig()
	p, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "hash", p.Name())
	assert.Equal(t, cfg.Dimensions, p.Dimensions())

	cfg.Provider = "openai"
	_, err = NewFromConfig(cfg, nil)
	assert.Error(t, err, "api key required")

	cfg.APIKey = "sk"
	p, err = NewFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	cfg.Provider = "cohere"
	_, err = NewFromConfig(cfg, nil)
	assert.Error(t, err)
}
