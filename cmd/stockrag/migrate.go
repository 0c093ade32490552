package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// migrateOptions 迁移命令参数，db-type 与 db-url 同时提供时跳过配置文件
type migrateOptions struct {
	root   *rootOptions
	dbType string
	dbURL  string
}

func newMigrateCmd(root *rootOptions) *cobra.Command {
	opts := &migrateOptions{root: root}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Example: `  stockrag migrate up
  stockrag migrate status --config /etc/stockrag/config.yaml
  stockrag migrate goto 2
  stockrag migrate up --db-type sqlite --db-url "file:stockrag.db?mode=rwc"`,
	}
	cmd.PersistentFlags().StringVar(&opts.dbType, "db-type", "", "Database type: postgres, mysql, sqlite (default: from config)")
	cmd.PersistentFlags().StringVar(&opts.dbURL, "db-url", "", "Database connection URL (default: from config)")

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Rollback the last migration (--all to rollback everything)",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
			return cli.RunDown(cmd.Context(), all)
		}),
	}
	down.Flags().BoolVar(&all, "all", false, "Rollback all migrations")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: opts.run(func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
				return cli.RunUp(cmd.Context())
			}),
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			Args:  cobra.NoArgs,
			RunE: opts.run(func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
				return cli.RunStatus(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show current migration version",
			Args:  cobra.NoArgs,
			RunE: opts.run(func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
				return cli.RunVersion(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "info",
			Short: "Show current, latest and pending migration counts",
			Args:  cobra.NoArgs,
			RunE: opts.run(func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
				return cli.RunInfo(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "check",
			Short: "Exit non-zero when migrations are pending or dirty",
			Args:  cobra.NoArgs,
			RunE: opts.run(func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
				return cli.RunCheck(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:     "steps <n>",
			Short:   "Apply (n > 0) or rollback (n < 0) n migrations",
			Example: "  stockrag migrate steps 1\n  stockrag migrate steps -- -1",
			Args:    cobra.ExactArgs(1),
			RunE: opts.run(func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("invalid step count: %s", args[0])
				}
				return cli.RunSteps(cmd.Context(), n)
			}),
		},
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: opts.run(func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				version, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version number: %s", args[0])
				}
				return cli.RunGoto(cmd.Context(), uint(version))
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Force set migration version (use with caution)",
			Args:  cobra.ExactArgs(1),
			RunE: opts.run(func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				version, err := strconv.ParseInt(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version number: %s", args[0])
				}
				return cli.RunForce(cmd.Context(), int(version))
			}),
		},
	)
	return cmd
}

// run 创建迁移器后执行 fn，结束时关闭
func (o *migrateOptions) run(fn func(cmd *cobra.Command, cli *migration.CLI, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		m, err := o.migrator()
		if err != nil {
			return fmt.Errorf("failed to create migrator: %w", err)
		}
		defer m.Close()

		cli := migration.NewCLI(m)
		cli.SetOutput(cmd.OutOrStdout())
		return fn(cmd, cli, args)
	}
}

func (o *migrateOptions) migrator() (*migration.DefaultMigrator, error) {
	if o.dbType != "" && o.dbURL != "" {
		return migration.NewMigratorFromURL(o.dbType, o.dbURL, zap.NewNop())
	}

	cfg, err := loadConfig(o.root.configPath)
	if err != nil {
		return nil, err
	}
	if o.dbType != "" {
		cfg.Database.Driver = o.dbType
	}
	return migration.NewMigratorFromConfig(cfg, initLogger(cfg.Log))
}
