package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/api"
	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/resolver"
)

// MarketService 分级数据解析
type MarketService interface {
	Resolve(ctx context.Context, dataType market.DataType, code string, params map[string]string) (resolver.Result, error)
	Invalidate(ctx context.Context, dataType market.DataType, code string, params map[string]string) error
}

// MarketHandler 行情数据接口
type MarketHandler struct {
	service MarketService
	logger  *zap.Logger
}

// NewMarketHandler 创建处理器
func NewMarketHandler(service MarketService, logger *zap.Logger) *MarketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketHandler{service: service, logger: logger.With(zap.String("handler", "market"))}
}

// HandleResolve GET /api/v1/market/{dataType}/{code}
// 查询参数原样作为数据源参数。数据源无数据时返回 source_tier=unavailable。
// @Summary 解析行情数据
// @Tags 行情
// @Produce json
// @Param dataType path string true "数据类型"
// @Param code path string true "证券代码"
// @Success 200 {object} api.ResolveResponse
// @Failure 400 {object} Response
// @Router /api/v1/market/{dataType}/{code} [get]
func (h *MarketHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	dataType := market.DataType(chi.URLParam(r, "dataType"))
	code := chi.URLParam(r, "code")

	res, err := h.service.Resolve(r.Context(), dataType, code, queryParams(r))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.ResolveResponse{
		Code:       code,
		DataType:   dataType,
		SourceTier: res.Tier,
		Value:      res.Value,
	})
}

// HandleInvalidate DELETE /api/v1/market/{dataType}/{code}/cache
// @Summary 清除缓存
// @Tags 行情
// @Router /api/v1/market/{dataType}/{code}/cache [delete]
func (h *MarketHandler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	dataType := market.DataType(chi.URLParam(r, "dataType"))
	code := chi.URLParam(r, "code")

	if err := h.service.Invalidate(r.Context(), dataType, code, queryParams(r)); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]string{"code": code, "data_type": string(dataType), "status": "invalidated"})
}

func queryParams(r *http.Request) map[string]string {
	q := r.URL.Query()
	if len(q) == 0 {
		return nil
	}
	params := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}
