// Package main provides the starweave CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"starweave/internal/config"
	"starweave/internal/logging"
	"starweave/internal/system"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "weave",
	Short: "starweave - concept-driven conversational agent",
	Long: `starweave matches each input against a catalog of weighted concept
vectors, evolves the matched concept's internal state, and dispatches a
response. Module agents co-create by offering their most curious concepts
to one another, and a periodic reflection surfaces a proactive prompt.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The chat UI owns the terminal
		if cmd == cmd.Root() {
			logger = zap.NewNop()
			return nil
		}

		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAudit()
		logging.CloseAll()
	},
	RunE: runChat,
}

// initCmd writes a default configuration into the workspace
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .weave/config.yaml in the workspace",
	Long: `Writes the default configuration: the stock concept catalog, one module
per concept, and the local embedder. An existing file is left alone unless
--force is given.`,
	RunE: runInit,
}

// runCmd processes one input through the pipeline
var runCmd = &cobra.Command{
	Use:   "run [input]",
	Short: "Process one input: embed, match, evolve, respond",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProcess,
}

var routeCmd = &cobra.Command{
	Use:   "route [input]",
	Short: "Show which module would handle an input",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRoute,
}

var rankCmd = &cobra.Command{
	Use:   "rank [input]",
	Short: "Rank concepts by similarity to an input",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRank,
}

var coCreateCmd = &cobra.Command{
	Use:     "cocreate [module] [input]",
	Short:   "Run a co-creation round led by a module",
	Example: `  weave cocreate Curiosity "why do stars twinkle"`,
	Args:    cobra.MinimumNArgs(2),
	RunE:    runCoCreate,
}

// statusCmd shows agent state and metrics
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show concepts, modules, propensity and metrics",
	RunE:  runStatus,
}

var (
	initForce   bool
	initPersist bool
	rankTop     int
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: nearest .weave or current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/.weave/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config")
	initCmd.Flags().BoolVar(&initPersist, "persist", false, "Enable snapshot persistence")
	rankCmd.Flags().IntVarP(&rankTop, "top", "k", 0, "Number of concepts to show (0 = all)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(coCreateCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext returns a context bounded by --timeout and cancelled on
// SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

// resolveWorkspace returns --workspace or the nearest directory holding .weave.
func resolveWorkspace() (string, error) {
	if workspace != "" {
		return workspace, nil
	}
	return config.FindWorkspaceRoot()
}

// loadConfig reads --config or the workspace default.
func loadConfig(ws string) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath(ws)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded", zap.String("path", path), zap.String("provider", cfg.Embedding.Provider))
	return cfg, nil
}

// bootCore loads configuration and wires a Core for the workspace.
func bootCore(ctx context.Context) (*system.Core, error) {
	ws, err := resolveWorkspace()
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(ws); err != nil {
		logger.Warn("Category logging unavailable", zap.Error(err))
	}
	if err := logging.InitAudit(); err != nil {
		logger.Warn("Audit trail unavailable", zap.Error(err))
	}

	cfg, err := loadConfig(ws)
	if err != nil {
		return nil, err
	}

	core, err := system.New(ctx, cfg, system.WithWorkspace(ws))
	if err != nil {
		return nil, fmt.Errorf("failed to boot: %w", err)
	}
	logger.Debug("Core booted", zap.String("session", core.SessionID()), zap.String("workspace", ws))
	return core, nil
}

// closeCore closes core and reports a failed final save.
func closeCore(core *system.Core) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := core.Close(ctx); err != nil {
		logger.Error("Failed to close core", zap.Error(err))
	}
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}
