package rag

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/types"
)

// BatchItem 批量同步条目。Source 非空时直接使用，否则先解析。
type BatchItem struct {
	Code     string          `json:"code" validate:"required,len=6,numeric"`
	DataType market.DataType `json:"data_type" validate:"required"`
	Source   market.Record   `json:"-"`
}

// ItemError 单个条目的失败信息
type ItemError struct {
	Code      string          `json:"code"`
	DataType  market.DataType `json:"data_type"`
	ErrorCode types.ErrorCode `json:"error_code"`
	Message   string          `json:"message"`
}

// BatchResult 批量同步汇总。跳过的条目同时计入 SuccessCount 与 SkippedCount。
type BatchResult struct {
	Total        int          `json:"total"`
	SuccessCount int          `json:"success_count"`
	FailedCount  int          `json:"failed_count"`
	SkippedCount int          `json:"skipped_count"`
	SuccessRate  float64      `json:"success_rate"`
	Errors       []ItemError  `json:"errors"`
	Results      []SyncResult `json:"results,omitempty"`
	Duration     string       `json:"duration"`
}

func (b *BatchResult) add(r SyncResult) {
	b.Results = append(b.Results, r)
	if r.Success {
		b.SuccessCount++
		if r.Skipped {
			b.SkippedCount++
		}
		return
	}
	b.FailedCount++
	ie := ItemError{Code: r.Code, DataType: r.DataType, ErrorCode: types.ErrInternalError}
	if r.Error != nil {
		ie.ErrorCode = r.Error.Code
		ie.Message = r.Error.Error()
	}
	b.Errors = append(b.Errors, ie)
}

// SyncBatch 顺序同步多个条目，条目之间间隔 InterItemDelay。
// 单个条目失败不影响其余条目；上下文取消后剩余条目记为失败。
func (p *SyncProcessor) SyncBatch(ctx context.Context, items []BatchItem) BatchResult {
	start := time.Now()
	out := BatchResult{Total: len(items), Errors: []ItemError{}}

	for i, item := range items {
		if i > 0 {
			if err := p.sleep(ctx, p.cfg.InterItemDelay); err != nil {
				p.abortRemaining(&out, items[i:], err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			p.abortRemaining(&out, items[i:], err)
			break
		}

		var r SyncResult
		if item.Source != nil {
			r = p.SyncRecord(ctx, item.Code, item.DataType, item.Source)
		} else {
			r = p.SyncEntity(ctx, item.Code, item.DataType)
		}
		out.add(r)
	}

	if out.Total > 0 {
		out.SuccessRate = float64(out.SuccessCount) / float64(out.Total)
	}
	out.Duration = time.Since(start).String()

	p.logger.Info("batch sync completed",
		zap.Int("total", out.Total),
		zap.Int("success", out.SuccessCount),
		zap.Int("failed", out.FailedCount),
		zap.Int("skipped", out.SkippedCount),
		zap.Float64("success_rate", out.SuccessRate),
	)
	return out
}

func (p *SyncProcessor) abortRemaining(out *BatchResult, rest []BatchItem, cause error) {
	p.logger.Warn("batch interrupted", zap.Int("remaining", len(rest)), zap.Error(cause))
	for _, item := range rest {
		out.add(failed(item.Code, item.DataType, "", cause))
	}
}
