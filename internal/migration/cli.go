package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
)

// =============================================================================
// 🖥️ 迁移命令输出
// =============================================================================

// CLI 执行迁移操作并把 schema 状态格式化到终端
type CLI struct {
	migrator Migrator
	out      io.Writer
}

// NewCLI 默认输出到 stdout
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, out: os.Stdout}
}

// SetOutput 设置输出目标
func (c *CLI) SetOutput(w io.Writer) {
	c.out = w
}

// RunUp 应用全部待执行迁移
func (c *CLI) RunUp(ctx context.Context) error {
	return c.change(ctx, "Applying pending migrations", c.migrator.Up)
}

// RunDown 回滚一个版本，all 为 true 时清空 schema
func (c *CLI) RunDown(ctx context.Context, all bool) error {
	if all {
		return c.change(ctx, "Dropping every stockrag table", c.migrator.DownAll)
	}
	return c.change(ctx, "Rolling back one migration", c.migrator.Down)
}

// RunSteps 正数前进 n 步，负数回滚
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	action := fmt.Sprintf("Applying %d migration(s)", n)
	if n < 0 {
		action = fmt.Sprintf("Rolling back %d migration(s)", -n)
	}
	return c.change(ctx, action, func(ctx context.Context) error {
		return c.migrator.Steps(ctx, n)
	})
}

// RunGoto 迁移到指定版本
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	return c.change(ctx, fmt.Sprintf("Migrating to %06d", version), func(ctx context.Context) error {
		return c.migrator.Goto(ctx, version)
	})
}

// RunForce 只改写版本号并清除 dirty 标记，不执行 SQL
func (c *CLI) RunForce(ctx context.Context, version int) error {
	return c.change(ctx, fmt.Sprintf("Forcing recorded version to %d", version), func(ctx context.Context) error {
		return c.migrator.Force(ctx, version)
	})
}

// RunVersion 输出当前版本
func (c *CLI) RunVersion(ctx context.Context) error {
	return c.report(ctx)
}

// RunStatus 逐个迁移列出创建的表与应用状态
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("read migration status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.out, "No embedded migrations for this database type.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tTABLES\tSTATUS")
	applied := 0
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "DIRTY"
		case s.Applied:
			state = "applied"
			applied++
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\t%s\n", s.Version, s.Name, describeTables(s.Tables), state)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\nApplied: %d/%d, Pending: %d\n", applied, len(statuses), len(statuses)-applied)
	return nil
}

// RunCheck 部署前确认 schema 已是最新且不是 dirty
func (c *CLI) RunCheck(ctx context.Context) error {
	if err := CheckUpToDate(ctx, c.migrator); err != nil {
		return err
	}
	tables, err := c.appliedTables(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Schema is up to date: %s\n", describeTables(tables))
	return nil
}

// RunInfo 输出迁移摘要
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("read migration info: %w", err)
	}
	tables, err := c.appliedTables(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Current version:\t%06d\n", info.CurrentVersion)
	fmt.Fprintf(w, "Latest version:\t%06d\n", info.LatestVersion)
	fmt.Fprintf(w, "Dirty:\t%v\n", info.Dirty)
	fmt.Fprintf(w, "Applied / total:\t%d / %d\n", info.AppliedMigrations, info.TotalMigrations)
	fmt.Fprintf(w, "Tables:\t%s\n", describeTables(tables))
	return w.Flush()
}

// change 执行一次 schema 变更后报告所在版本
func (c *CLI) change(ctx context.Context, action string, fn func(context.Context) error) error {
	fmt.Fprintf(c.out, "%s...\n", action)
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", strings.ToLower(action), err)
	}
	return c.report(ctx)
}

// report 输出当前版本、对应迁移名与剩余待执行数
func (c *CLI) report(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("read migration status: %w", err)
	}

	var current *MigrationStatus
	pending := 0
	for i := range statuses {
		if statuses[i].Applied {
			current = &statuses[i]
		} else {
			pending++
		}
	}
	if current == nil {
		fmt.Fprintf(c.out, "No migrations applied yet (%d pending).\n", pending)
		return nil
	}

	fmt.Fprintf(c.out, "Schema at %06d_%s", current.Version, current.Name)
	if current.Dirty {
		fmt.Fprint(c.out, " (DIRTY: fix the failed migration, then force the version)")
	}
	if pending == 0 {
		fmt.Fprintln(c.out, ", up to date.")
	} else {
		fmt.Fprintf(c.out, ", %d pending.\n", pending)
	}
	return nil
}

func (c *CLI) appliedTables(ctx context.Context) ([]string, error) {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("read migration status: %w", err)
	}
	var tables []string
	for _, s := range statuses {
		if s.Applied {
			tables = append(tables, s.Tables...)
		}
	}
	return tables, nil
}

// describeTables md_ 行情表折叠为一项，位置取第一张行情表
func describeTables(tables []string) string {
	if len(tables) == 0 {
		return "-"
	}
	var (
		out      []string
		marketAt = -1
		market   int
	)
	for _, t := range tables {
		if !strings.HasPrefix(t, "md_") {
			out = append(out, t)
			continue
		}
		if marketAt < 0 {
			marketAt = len(out)
		}
		market++
	}
	if market > 0 {
		out = slices.Insert(out, marketAt, fmt.Sprintf("md_* (%d)", market))
	}
	return strings.Join(out, ", ")
}
