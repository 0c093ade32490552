package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/api"
	"github.com/BaSui01/stockrag/internal/ctxkeys"
	"github.com/BaSui01/stockrag/scheduler"
	"github.com/BaSui01/stockrag/types"
)

// WatchlistStore 自选列表存储
type WatchlistStore interface {
	Create(ctx context.Context, w *scheduler.Watchlist) error
	Get(ctx context.Context, id uint) (*scheduler.Watchlist, error)
	List(ctx context.Context, enabledOnly bool) ([]scheduler.Watchlist, error)
	Update(ctx context.Context, w *scheduler.Watchlist) error
	Delete(ctx context.Context, id uint) error
}

// WatchlistRunner 立即处理
type WatchlistRunner interface {
	ProcessPriority(ctx context.Context, priority int) (*scheduler.Report, error)
	ProcessEntities(ctx context.Context, codes []string, dataTypes []string) (*scheduler.Report, error)
}

// WatchlistHandler 自选列表接口
type WatchlistHandler struct {
	store  WatchlistStore
	runner WatchlistRunner
	logger *zap.Logger
}

// NewWatchlistHandler 创建处理器
func NewWatchlistHandler(store WatchlistStore, runner WatchlistRunner, logger *zap.Logger) *WatchlistHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchlistHandler{store: store, runner: runner, logger: logger.With(zap.String("handler", "watchlist"))}
}

// HandleList GET /api/v1/watchlists?enabled=true
func (h *WatchlistHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	enabledOnly, _ := strconv.ParseBool(r.URL.Query().Get("enabled"))
	lists, err := h.store.List(r.Context(), enabledOnly)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if lists == nil {
		lists = []scheduler.Watchlist{}
	}
	WriteSuccess(w, r, lists)
}

// HandleCreate POST /api/v1/watchlists
func (h *WatchlistHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.WatchlistRequest
	if !ValidateContentType(w, r, h.logger) || !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	wl := &scheduler.Watchlist{Enabled: true}
	applyWatchlist(wl, req)

	if err := h.store.Create(r.Context(), wl); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: wl, RequestID: requestID(r)})
}

// HandleGet GET /api/v1/watchlists/{id}
func (h *WatchlistHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.watchlistID(w, r)
	if !ok {
		return
	}
	wl, err := h.store.Get(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, wl)
}

// HandleUpdate PUT /api/v1/watchlists/{id}
func (h *WatchlistHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.watchlistID(w, r)
	if !ok {
		return
	}
	var req api.WatchlistRequest
	if !ValidateContentType(w, r, h.logger) || !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	wl, err := h.store.Get(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	applyWatchlist(wl, req)
	if err := h.store.Update(r.Context(), wl); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, wl)
}

// HandleDelete DELETE /api/v1/watchlists/{id}
func (h *WatchlistHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.watchlistID(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleProcess POST /api/v1/watchlists/process
// priority 与 codes 二选一，data_types 可选，同步执行并返回汇总。
func (h *WatchlistHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	var req api.ProcessRequest
	if !ValidateContentType(w, r, h.logger) || !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}

	ctx := ctxkeys.WithTrigger(r.Context(), ctxkeys.TriggerAPI)
	var (
		report *scheduler.Report
		err    error
	)
	switch {
	case req.Priority != 0 && len(req.Codes) > 0:
		err = types.NewValidationError("priority and codes are mutually exclusive")
	case req.Priority != 0:
		report, err = h.runner.ProcessPriority(ctx, req.Priority)
	case len(req.Codes) > 0:
		report, err = h.runner.ProcessEntities(ctx, req.Codes, req.DataTypes)
	default:
		err = types.NewValidationError("either priority or codes is required")
	}
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, report)
}

func (h *WatchlistHandler) watchlistID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		WriteError(w, r, types.NewValidationError("invalid watchlist id %q", chi.URLParam(r, "id")), h.logger)
		return 0, false
	}
	return uint(id), true
}

func applyWatchlist(wl *scheduler.Watchlist, req api.WatchlistRequest) {
	wl.Name = req.Name
	wl.Description = req.Description
	wl.Priority = req.Priority
	wl.EntityCodes = req.EntityCodes
	wl.DataTypes = req.DataTypes
	wl.Schedule = req.Schedule
	if req.Enabled != nil {
		wl.Enabled = *req.Enabled
	}
}
