package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BaSui01/stockrag/api"
	"github.com/BaSui01/stockrag/internal/ctxkeys"
	"github.com/BaSui01/stockrag/internal/metrics"
	"github.com/BaSui01/stockrag/market"
)

// =============================================================================
// 🛠️ 一次性运维命令
// =============================================================================

func newResolveCmd(opts *rootOptions) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:     "resolve <data-type> <code>",
		Short:   "Resolve one record through cache, persistent store and provider",
		Example: "  stockrag resolve realtime_quote 600519\n  stockrag resolve financial 000001 --param period=20231231",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataType := market.DataType(args[0])
			if !dataType.Valid() {
				return fmt.Errorf("unknown data type %q", args[0])
			}
			p, err := parseParams(params)
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				res, err := app.resolver.Resolve(ctx, dataType, args[1], p)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), api.ResolveResponse{
					Code:       args[1],
					DataType:   dataType,
					SourceTier: res.Tier,
					Value:      res.Value,
				})
			})
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "Provider parameter key=value (repeatable)")
	return cmd
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <code> <data-type>",
		Short: "Sync one (code, data type) pair into a new vectorized version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				res := app.syncer.SyncEntity(ctx, args[0], market.DataType(args[1]))
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					if res.Error != nil {
						return res.Error
					}
					return fmt.Errorf("sync failed")
				}
				return nil
			})
		},
	}
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "purge <data-type> <code>",
		Short:   "Delete persisted records and every cached variant of one entity",
		Example: "  stockrag purge financial 600519",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataType := market.DataType(args[0])
			if !dataType.Valid() {
				return fmt.Errorf("unknown data type %q", args[0])
			}
			if err := market.ValidateCode(args[1]); err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				n, err := app.resolver.Purge(ctx, dataType, args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"code":      args[1],
					"data_type": dataType,
					"records":   n,
				})
			})
		},
	}
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge deprecated versions older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				d := days
				if d <= 0 {
					d = app.cfg.Scheduler.RetentionDays
				}
				purged, err := app.versions.CleanupDeprecatedVersions(ctx, d)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), api.CleanupResponse{Days: d, Purged: purged})
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention days (default: scheduler.retention_days)")
	return cmd
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// withApp 加载配置、装配组件并在信号可取消的上下文中执行 fn
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, app *App) error) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	app, err := newApp(cfg, metrics.NewCollector("stockrag", logger), logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	return fn(ctxkeys.WithTrigger(ctx, ctxkeys.TriggerCLI), app)
}

// signalContext SIGINT/SIGTERM 时取消
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// parseParams 解析 key=value 列表
func parseParams(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid param %q: expected key=value", kv)
		}
		params[k] = v
	}
	return params, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
