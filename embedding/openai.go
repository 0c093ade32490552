package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/internal/tlsutil"
	"github.com/BaSui01/stockrag/types"
)

// OpenAIConfig OpenAI 兼容 /embeddings 接口配置
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	MaxBatch   int
	Timeout    time.Duration
}

// OpenAIProvider 调用 OpenAI 兼容接口（OpenAI、DashScope、SiliconFlow 等）
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider 创建 OpenAI 兼容向量化客户端
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 16
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "embedding"), zap.String("provider", "openai")),
	}
}

func (p *OpenAIProvider) Name() string    { return "openai" }
func (p *OpenAIProvider) Dimensions() int { return p.cfg.Dimensions }

type openAIEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed 按 MaxBatch 分批请求，结果按输入顺序返回
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += p.cfg.MaxBatch {
		end := min(start+p.cfg.MaxBatch, len(texts))
		vecs, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(openAIEmbedRequest{Input: texts, Model: p.cfg.Model, Dimensions: p.cfg.Dimensions})
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "encode embedding request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build embedding request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, types.NewError(types.ErrTimeout, "embedding call timed out").
				WithProvider(p.Name()).WithRetryable(true).WithCause(err)
		}
		return nil, types.NewError(types.ErrEmbedding, "embedding request failed").
			WithProvider(p.Name()).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, mapHTTPError(resp.StatusCode, strings.TrimSpace(string(raw)), p.Name())
	}

	var parsed openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, types.NewError(types.ErrEmbedding, "decode embedding response").
			WithProvider(p.Name()).WithCause(err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, errCountMismatch(len(texts), len(parsed.Data))
	}

	out := make([][]float64, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, types.NewError(types.ErrEmbedding, fmt.Sprintf("embedding index %d out of range", d.Index)).
				WithProvider(p.Name())
		}
		out[d.Index] = d.Embedding
	}

	p.logger.Debug("embedding batch completed",
		zap.Int("count", len(texts)),
		zap.Int("tokens", parsed.Usage.TotalTokens),
	)
	return out, nil
}

// mapHTTPError 把 HTTP 状态映射为 types.Error
func mapHTTPError(status int, msg, provider string) *types.Error {
	code := types.ErrEmbedding
	retryable := status >= 500

	switch status {
	case http.StatusTooManyRequests:
		code = types.ErrRateLimited
		retryable = true
	case http.StatusBadRequest:
		code = types.ErrValidation
	}

	return types.NewError(code, fmt.Sprintf("embedding http %d: %s", status, msg)).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider(provider)
}

func errCountMismatch(want, got int) error {
	return types.NewError(types.ErrEmbedding, fmt.Sprintf("embedding count mismatch: want %d got %d", want, got))
}
