package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/toolsascode/schemaflow/internal/config"
	"github.com/toolsascode/schemaflow/internal/dbfactory"
	"github.com/toolsascode/schemaflow/internal/executor"
	"github.com/toolsascode/schemaflow/internal/logger"
	"github.com/toolsascode/schemaflow/internal/state"
	"github.com/toolsascode/schemaflow/migrations"
)

var (
	configPath string
	verbose    bool

	bestEffort    bool
	appliedPolicy string

	historyFilters state.Filters
	historyStatus  string

	newTables    []string
	newDependsOn []string
	newForce     bool
)

var rootCmd = &cobra.Command{
	Use:   "schemaflow",
	Short: "schemaflow - ordered, condition-guarded schema migrations",
	Long: `schemaflow applies schema definitions and their migrations to a
relational database in module dependency order, recording every script
in an append-only registry table.

Configuration is read from SCHEMAFLOW_* environment variables and the
optional YAML file named by --config or SCHEMAFLOW_CONFIG.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(logger.DEBUG)
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run every pending definition and migration",
	Example: `  schemaflow migrate
  schemaflow migrate --best-effort --policy all`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

var planCmd = &cobra.Command{
	Use:   "plan [filter]",
	Short: "Show what the next run would execute",
	Long: `Plan loads the descriptors and inspects the target without changing it.
An optional filter keeps definitions whose name, path or module contains it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List registry rows, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the latest registry row for a definition or migration id",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var checkCmd = &cobra.Command{
	Use:   "check <expression>",
	Short: "Evaluate a condition against the target database",
	Example: `  schemaflow check "table orders exists"
  schemaflow check column orders.status not exists`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

var newCmd = &cobra.Command{
	Use:   "new <module> <definition>",
	Short: "Scaffold a descriptor and its baseline script",
	Long: `New writes {descriptors}/{module}.yaml and the baseline script
{scripts}/schema/{module}/{definition}.sql. Existing files are kept unless
--force is given.`,
	Args: cobra.ExactArgs(2),
	RunE: runNew,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("schemaflow CLI version %s\n", rootCmd.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (overrides SCHEMAFLOW_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	migrateCmd.Flags().BoolVar(&bestEffort, "best-effort", false, "Continue after failed statements instead of aborting")
	migrateCmd.Flags().StringVar(&appliedPolicy, "policy", "", "Applied policy: any or all (default from config)")
	planCmd.Flags().StringVar(&appliedPolicy, "policy", "", "Applied policy: any or all (default from config)")

	historyCmd.Flags().StringVar(&historyFilters.ID, "id", "", "Filter by definition or migration id")
	historyCmd.Flags().StringVar(&historyFilters.Module, "module", "", "Filter by module id")
	historyCmd.Flags().StringVar(&historyFilters.RunID, "run-id", "", "Filter by run id")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Filter by status (NA, SUCCESSFUL, FAILED, APPLIED)")
	historyCmd.Flags().IntVarP(&historyFilters.Limit, "limit", "n", 50, "Maximum rows to show (0 = all)")

	newCmd.Flags().StringSliceVar(&newTables, "tables", nil, "Tables the definition owns (default: the definition name)")
	newCmd.Flags().StringSliceVar(&newDependsOn, "depends-on", nil, "Modules this module depends on")
	newCmd.Flags().BoolVarP(&newForce, "force", "f", false, "Overwrite existing files")

	rootCmd.AddCommand(migrateCmd, planCmd, historyCmd, statusCmd, checkCmd, newCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		if err := os.Setenv("SCHEMAFLOW_CONFIG", configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// withExecutor opens the target for the duration of fn
func withExecutor(cmd *cobra.Command, fn func(ctx context.Context, exec *executor.Executor) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	res, err := dbfactory.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Warnf("Failed to close resources: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = executor.SetExecutionContext(ctx, currentUser(), "cli", nil)

	return fn(ctx, dbfactory.NewExecutor(cfg, res))
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli_user"
}

func runMigrate(cmd *cobra.Command, args []string) error {
	return withExecutor(cmd, func(ctx context.Context, exec *executor.Executor) error {
		req := &executor.RunRequest{AppliedPolicy: appliedPolicy}
		if bestEffort {
			failOnError := false
			req.FailOnError = &failOnError
		}

		result, err := exec.Run(ctx, req)
		if result == nil {
			return err
		}

		if verbose {
			for _, line := range result.Log {
				fmt.Println(line)
			}
		}
		fmt.Printf("Run %s: %s (phase %s)\n", result.RunID, result.Status, result.Phase)
		fmt.Printf("  scripts: %d, statements: %d, failed statements: %d\n",
			result.ScriptCount, result.StatementCount, result.FailedStatementCount)
		for _, e := range result.Errors {
			fmt.Printf("  error: %s\n", e)
		}

		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("run finished with status %s", result.Status)
		}
		return nil
	})
}

func runPlan(cmd *cobra.Command, args []string) error {
	filter := ""
	if len(args) > 0 {
		filter = args[0]
	}

	return withExecutor(cmd, func(ctx context.Context, exec *executor.Executor) error {
		plan, err := exec.Plan(ctx, filter)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ORDER\tMODULE\tDEFINITION\tACTION\tSTATUS")
		for _, def := range plan.Definitions {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", def.Order, def.Module, def.Path, def.Action, def.Status)
			for _, m := range def.Migrations {
				fmt.Fprintf(w, "\t\t  %s\t%s\t%s\n", m.Path, m.Action, m.Status)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}

		for _, le := range plan.LoadErrors {
			fmt.Printf("load error: %s\n", le)
		}
		fmt.Printf("%d script(s) pending\n", plan.Pending())
		return nil
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	filters := historyFilters
	if historyStatus != "" {
		status, err := state.ParseStatus(historyStatus)
		if err != nil {
			return err
		}
		filters.Status = status
	}

	return withExecutor(cmd, func(ctx context.Context, exec *executor.Executor) error {
		records, err := exec.History(ctx, &filters)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "APPLIED AT\tSTATUS\tMODULE\tPATH\tDURATION\tEXECUTED BY")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dms\t%s\n",
				r.AppliedAt.Format("2006-01-02 15:04:05"), r.Status, r.Module, r.Path, r.DurationMs, r.ExecutedBy)
		}
		return w.Flush()
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withExecutor(cmd, func(ctx context.Context, exec *executor.Executor) error {
		result, err := exec.Status(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s: %s\n", result.ID, result.Status)
		if result.Last != nil {
			fmt.Printf("  path:        %s\n", result.Last.Path)
			fmt.Printf("  applied at:  %s\n", result.Last.AppliedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("  run:         %s\n", result.Last.RunID)
			fmt.Printf("  executed by: %s\n", result.Last.ExecutedBy)
		}
		return nil
	})
}

func runCheck(cmd *cobra.Command, args []string) error {
	expression := strings.Join(args, " ")
	if _, err := migrations.ParseCondition(expression); err != nil {
		return err
	}

	return withExecutor(cmd, func(ctx context.Context, exec *executor.Executor) error {
		ok, err := exec.CheckCondition(ctx, expression)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %t\n", expression, ok)
		return nil
	})
}

func runNew(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data := migrations.NewDescriptorData(args[0], args[1])
	if len(newTables) > 0 {
		data.Tables = newTables
	}
	data.DependsOn = newDependsOn

	descriptorPath := filepath.Join(cfg.Paths.Descriptors, data.ModuleID+".yaml")
	baselinePath := filepath.Join(cfg.Paths.Scripts, "schema", filepath.FromSlash(data.Path))

	if err := writeRendered(descriptorPath, data, migrations.RenderDescriptor); err != nil {
		return err
	}
	if err := writeRendered(baselinePath, data, migrations.RenderBaseline); err != nil {
		return err
	}

	fmt.Printf("Created %s\n", descriptorPath)
	fmt.Printf("Created %s\n", baselinePath)
	return nil
}

func writeRendered(path string, data migrations.DescriptorData, render func(w io.Writer, data migrations.DescriptorData) error) error {
	if !newForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	if err := render(file, data); err != nil {
		return err
	}
	logger.Debugf("Wrote %s", path)
	return nil
}
