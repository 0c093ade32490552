package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🔄 事务重试
// =============================================================================

// ActiveVersionIndex 保证每个 (entity_code, data_type) 至多一个有效 active 版本的唯一索引
const ActiveVersionIndex = "uk_data_versions_active"

// TxOptions 事务重试参数
type TxOptions struct {
	// 含首次执行的总次数
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultTxOptions 版本激活与使用统计的默认重试参数
func DefaultTxOptions() TxOptions {
	return TxOptions{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}
}

// RunInTx 在事务中执行 fn，遇到瞬时冲突时整体重试。
// fn 可能被执行多次，必须只通过 tx 产生副作用；返回的错误保持原样。
func RunInTx(ctx context.Context, db *gorm.DB, opts TxOptions, logger *zap.Logger, fn func(tx *gorm.DB) error) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	delay := opts.BaseDelay
	for attempt := 1; ; attempt++ {
		err := db.WithContext(ctx).Transaction(fn)
		if err == nil || attempt >= opts.MaxAttempts || !IsTransient(err) {
			return err
		}
		logger.Warn("transaction conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		delay *= 2
		if opts.MaxDelay > 0 && delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
}

// IsTransient 判断事务失败是否值得重试：
//   - postgres：序列化失败 40001、死锁 40P01、NOWAIT 锁冲突 55P03、
//     并发激活撞上 active 唯一索引；
//   - mysql：死锁 1213、锁等待超时 1205、并发激活撞上 active 唯一键；
//   - sqlite 忙与连接中断只能按消息识别。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		case "23505":
			return pgErr.ConstraintName == ActiveVersionIndex
		}
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1205, 1213:
			return true
		case 1062:
			return strings.Contains(myErr.Message, ActiveVersionIndex)
		}
		return false
	}

	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"database is locked", "sqlite_busy", "connection reset", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
