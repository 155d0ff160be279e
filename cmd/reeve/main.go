// Reeve is a tool-calling agent for local LLM backends.
//
// It drives a conversation loop against an Ollama or llama.cpp server,
// letting the model call registered tools and feeding the results back
// until it produces an answer. Configuration is loaded from a single
// YAML file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	reeve serve              Start the API server
//	reeve ask <question>     Ask a single question (for testing)
//	reeve init [dir]         Initialize a working directory with defaults
//	reeve version            Print version and build information
//	reeve -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/reeve-ai/reeve/internal/agent"
	"github.com/reeve-ai/reeve/internal/api"
	"github.com/reeve-ai/reeve/internal/buildinfo"
	"github.com/reeve-ai/reeve/internal/config"
	"github.com/reeve-ai/reeve/internal/fetch"
	"github.com/reeve-ai/reeve/internal/history"
	"github.com/reeve-ai/reeve/internal/llm"
	"github.com/reeve-ai/reeve/internal/metrics"
	"github.com/reeve-ai/reeve/internal/retry"
	"github.com/reeve-ai/reeve/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit and os.Args out of the application logic so the full
// lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible
// to call run() concurrently from tests, and the argument surface here
// is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: reeve ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Reeve - Tool-Calling Agent for Local LLMs")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: reeve [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/reeve/config.yaml, /etc/reeve/config.yaml")
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// environment is everything a running agent needs, assembled from one
// config file.
type environment struct {
	cfg          *config.Config
	orchestrator *agent.Orchestrator
	history      *history.Buffer
	metrics      *metrics.Collector
	archive      *metrics.Archive
	logger       *slog.Logger
}

func (e *environment) Close() {
	if e.archive != nil {
		if err := e.archive.Close(); err != nil {
			e.logger.Warn("closing metrics archive", "error", err)
		}
	}
}

// buildEnvironment wires the full stack: provider client, tool
// registry, history, metrics, and the orchestrator.
func buildEnvironment(stdout io.Writer, configPath string) (*environment, error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := newLogger(stdout, level)
	logger.Info("config loaded", "path", cfgPath)

	timeout := time.Duration(cfg.Provider.TimeoutSec) * time.Second
	var client llm.Client
	switch cfg.Provider.Name {
	case "llamacpp":
		client = llm.NewLlamaCppClient(cfg.Provider.URL, timeout, logger)
	default:
		client = llm.NewOllamaClient(cfg.Provider.URL, timeout, logger)
	}

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)
	if cfg.Fetch.Enabled {
		fetch.RegisterTool(registry, fetch.New(int64(cfg.Fetch.MaxBodyBytes)))
	}
	logger.Info("tools registered", "names", registry.Names())

	hist, err := history.NewBuffer(cfg.Agent.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	coll := metrics.NewCollector(cfg.Metrics.MaxSamples)
	var archive *metrics.Archive
	if cfg.Metrics.ArchivePath != "" {
		archive, err = metrics.NewArchive(cfg.Metrics.ArchivePath, logger)
		if err != nil {
			return nil, fmt.Errorf("metrics archive: %w", err)
		}
		coll.SetArchive(archive)
		logger.Info("metrics archive enabled", "path", cfg.Metrics.ArchivePath)
	}

	orch, err := agent.New(agent.Options{
		Client:       client,
		Provider:     cfg.Provider.Name,
		Model:        cfg.Provider.Model,
		SystemPrompt: cfg.Agent.SystemPrompt,
		Registry:     registry,
		History:      hist,
		Metrics:      coll,
		Retry: retry.Policy{
			MaxAttempts:   cfg.Retry.MaxAttempts,
			InitialDelay:  cfg.Retry.InitialDelayDuration(),
			BackoffFactor: cfg.Retry.Backoff,
			Jitter:        cfg.Retry.Jitter,
		},
		MaxIterations: cfg.Agent.MaxIterations,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	return &environment{
		cfg:          cfg,
		orchestrator: orch,
		history:      hist,
		metrics:      coll,
		archive:      archive,
		logger:       logger,
	}, nil
}

// runServe starts the API server and blocks until the process receives
// SIGINT or SIGTERM, then shuts down gracefully.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	env, err := buildEnvironment(stdout, configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	env.logger.Info("starting",
		"version", buildinfo.Version,
		"provider", env.cfg.Provider.Name,
		"model", env.cfg.Provider.Model,
	)

	server := api.NewServer(
		env.cfg.Listen.Address,
		env.cfg.Listen.Port,
		env.orchestrator,
		env.history,
		env.metrics,
		env.logger,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	env.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// runAsk boots a minimal agent and processes a single question.
// Useful for smoke tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	env, err := buildEnvironment(stdout, configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	question := strings.Join(args, " ")
	answer, err := env.orchestrator.Run(ctx, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, answer)
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. A
// non-empty explicit path must exist; otherwise the default locations
// are searched, falling back to built-in defaults when nothing is
// found.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
