package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"reasongate/internal/analyzers"
	"reasongate/internal/config"
	"reasongate/internal/dialogue"
	"reasongate/internal/gemini"
	"reasongate/internal/logging"
	"reasongate/internal/orchestrate"
	"reasongate/internal/rpc"
	"reasongate/internal/securefs"
	"reasongate/internal/session"
	"reasongate/internal/tournament"
)

// Version is stamped by the build.
var Version = "dev"

var (
	configPath  string
	projectRoot string
)

var rootCmd = &cobra.Command{
	Use:   "reasongate",
	Short: "reasongate - Gemini-backed reasoning gateway",
	Long: `reasongate accepts structured analysis requests from a code assistant over
line-delimited JSON-RPC on stdin/stdout, enriches them with on-disk source,
and brokers multi-turn dialogues with Gemini to produce structured findings.

Requires GEMINI_API_KEY in the environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON-RPC server on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("reasongate", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", "", "project root for source reads (overrides config)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		// A missing key must exit non-zero with a diagnostic on stderr and
		// nothing on stdout.
		fmt.Fprintln(os.Stderr, "reasongate:", err)
		os.Exit(1)
	}
	if projectRoot != "" {
		cfg.ProjectRoot = projectRoot
	}

	if err := logging.Initialize(cfg.ProjectRoot, cfg.Debug); err != nil {
		fmt.Fprintln(os.Stderr, "reasongate: logging init failed:", err)
		os.Exit(1)
	}
	defer logging.Sync()
	logging.Boot("reasongate %s starting (root %s, model %s)", Version, cfg.ProjectRoot, cfg.Gemini.Model)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader, err := securefs.NewReader(cfg.ProjectRoot)
	if err != nil {
		return err
	}
	defer reader.Close()
	if err := reader.Watch(); err != nil {
		logging.Boot("cache watcher unavailable: %v", err)
	}

	factory, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		Timeout: cfg.Gemini.Timeout,
	})
	if err != nil {
		return err
	}

	mgr := session.NewManager(session.ManagerConfig{
		IdleTimeout:   cfg.Session.IdleTimeout,
		SweepInterval: cfg.Session.SweepInterval,
		TurnCap:       cfg.Session.TurnCap,
	})
	defer mgr.Destroy()

	adapter := dialogue.NewAdapter(factory, reader)
	orch := orchestrate.New(mgr, adapter, reader)
	sched := tournament.NewScheduler(mgr, factory, adapter, reader)

	server := rpc.NewServer(os.Stdin, os.Stdout, rpc.Deps{
		Config:       cfg,
		Orchestrator: orch,
		Scheduler:    sched,
		Manager:      mgr,
		Reader:       reader,
		Tracer:       analyzers.NewTracer(reader),
		Perf:         analyzers.NewPerfModeler(reader),
		Boundary:     analyzers.NewBoundaryAnalyzer(reader),
	})

	logging.Boot("serving JSON-RPC on stdio")
	if err := server.Serve(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "reasongate:", err)
		os.Exit(1)
	}
}
