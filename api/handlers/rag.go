package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/api"
	"github.com/BaSui01/stockrag/internal/ctxkeys"
	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/rag"
	"github.com/BaSui01/stockrag/types"
)

// =============================================================================
// 🔄 RAG 接口
// =============================================================================

// SyncService 同步
type SyncService interface {
	SyncEntity(ctx context.Context, code string, dataType market.DataType) rag.SyncResult
	SyncBatch(ctx context.Context, items []rag.BatchItem) rag.BatchResult
}

// VersionService 版本管理
type VersionService interface {
	ListVersions(ctx context.Context, code string, dataType market.DataType) ([]rag.DataVersion, error)
	GetActiveVersion(ctx context.Context, code string, dataType market.DataType) (*rag.DataVersion, error)
	ActivateVersion(ctx context.Context, versionID string) (bool, error)
	CleanupDeprecatedVersions(ctx context.Context, daysOld int) (int, error)
}

// SearchService 语义检索
type SearchService interface {
	Search(ctx context.Context, code string, dataType market.DataType, query string, topK int) (rag.SearchResult, error)
}

// RAGHandler 同步、版本与检索接口
type RAGHandler struct {
	sync          SyncService
	versions      VersionService
	search        SearchService
	retentionDays int
	logger        *zap.Logger
}

// NewRAGHandler 创建处理器。retentionDays 为清理接口的默认保留天数。
func NewRAGHandler(sync SyncService, versions VersionService, search SearchService, retentionDays int, logger *zap.Logger) *RAGHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &RAGHandler{
		sync:          sync,
		versions:      versions,
		search:        search,
		retentionDays: retentionDays,
		logger:        logger.With(zap.String("handler", "rag")),
	}
}

// HandleSync POST /api/v1/rag/sync
// @Summary 同步单个数据对
// @Tags RAG
// @Accept json
// @Produce json
// @Param request body api.SyncRequest true "同步请求"
// @Success 200 {object} rag.SyncResult
// @Failure 422 {object} Response
// @Router /api/v1/rag/sync [post]
func (h *RAGHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	var req api.SyncRequest
	if !ValidateContentType(w, r, h.logger) || !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}

	ctx := ctxkeys.WithTrigger(r.Context(), ctxkeys.TriggerAPI)
	res := h.sync.SyncEntity(ctx, req.Code, market.DataType(req.DataType))
	if !res.Success {
		var err error = types.NewError(types.ErrInternalError, "sync failed")
		if res.Error != nil {
			err = res.Error
		}
		writeFailure(w, r, err, res, h.logger)
		return
	}
	WriteSuccess(w, r, res)
}

// HandleSyncBatch POST /api/v1/rag/sync/batch
// 单个条目失败不影响整体，失败明细在 errors 中返回。
// @Summary 批量同步
// @Tags RAG
// @Router /api/v1/rag/sync/batch [post]
func (h *RAGHandler) HandleSyncBatch(w http.ResponseWriter, r *http.Request) {
	var req api.BatchSyncRequest
	if !ValidateContentType(w, r, h.logger) || !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}

	ctx := ctxkeys.WithTrigger(r.Context(), ctxkeys.TriggerAPI)
	res := h.sync.SyncBatch(ctx, req.BatchItems())
	res.Results = nil
	WriteSuccess(w, r, res)
}

// HandleListVersions GET /api/v1/rag/versions/{code}/{dataType}
// @Summary 版本列表
// @Tags RAG
// @Router /api/v1/rag/versions/{code}/{dataType} [get]
func (h *RAGHandler) HandleListVersions(w http.ResponseWriter, r *http.Request) {
	code, dataType := chi.URLParam(r, "code"), market.DataType(chi.URLParam(r, "dataType"))

	versions, err := h.versions.ListVersions(r.Context(), code, dataType)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	views := make([]api.VersionView, 0, len(versions))
	for _, v := range versions {
		views = append(views, api.NewVersionView(v))
	}
	WriteSuccess(w, r, views)
}

// HandleActiveVersion GET /api/v1/rag/versions/{code}/{dataType}/active
// @Summary 当前激活版本
// @Tags RAG
// @Router /api/v1/rag/versions/{code}/{dataType}/active [get]
func (h *RAGHandler) HandleActiveVersion(w http.ResponseWriter, r *http.Request) {
	code, dataType := chi.URLParam(r, "code"), market.DataType(chi.URLParam(r, "dataType"))

	active, err := h.versions.GetActiveVersion(r.Context(), code, dataType)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if active == nil {
		WriteError(w, r, types.NewNotFoundError("no active version for %s/%s", code, dataType), h.logger)
		return
	}
	WriteSuccess(w, r, api.NewVersionView(*active))
}

// HandleActivate POST /api/v1/rag/versions/{id}/activate
// @Summary 手动激活版本
// @Tags RAG
// @Router /api/v1/rag/versions/{id}/activate [post]
func (h *RAGHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.versions.ActivateVersion(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err, api.ActivateResponse{VersionID: id, Activated: ok}, h.logger)
		return
	}
	WriteSuccess(w, r, api.ActivateResponse{VersionID: id, Activated: ok})
}

// HandleSearch POST /api/v1/rag/search
// @Summary 在激活版本中语义检索
// @Tags RAG
// @Router /api/v1/rag/search [post]
func (h *RAGHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req api.SearchRequest
	if !ValidateContentType(w, r, h.logger) || !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}

	res, err := h.search.Search(r.Context(), req.Code, market.DataType(req.DataType), req.Query, req.TopK)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if res.Hits == nil {
		res.Hits = []rag.SearchHit{}
	}
	WriteSuccess(w, r, res)
}

// HandleCleanup POST /api/v1/rag/cleanup
// 请求体可省略，此时使用配置的保留天数。
// @Summary 清理过期废弃版本
// @Tags RAG
// @Router /api/v1/rag/cleanup [post]
func (h *RAGHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	req := api.CleanupRequest{}
	if r.ContentLength > 0 {
		if !ValidateContentType(w, r, h.logger) || !DecodeJSONBody(w, r, &req, h.logger) {
			return
		}
	}
	days := req.Days
	if days == 0 {
		days = h.retentionDays
	}

	purged, err := h.versions.CleanupDeprecatedVersions(r.Context(), days)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.CleanupResponse{Days: days, Purged: purged})
}
