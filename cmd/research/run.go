package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/bootstrap"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/logging"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runLimit int
	runJSON  bool
	runFull  bool
	runPlain bool
)

var runCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Research tools for a query and print the findings",
	Example: `  research run "feature flag services"
  research run --limit 3 --json "open source log shippers"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

// engineFactory builds the engine and the cleanup for one CLI invocation. Tests
// replace it to avoid network access.
type engineFactory func(cfg config.Config, logger *zap.Logger) (research.Engine, bootstrap.Cleanup, error)

var newEngine engineFactory = inlineEngine

var loadConfig = config.Load

// inlineEngine always runs in-process; the CLI never dispatches to Temporal.
func inlineEngine(cfg config.Config, logger *zap.Logger) (research.Engine, bootstrap.Cleanup, error) {
	workflow, closeWorkflow, err := bootstrap.Workflow(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	st, closeStore, err := bootstrap.Store(cfg)
	if err != nil {
		_ = closeWorkflow.Close()
		return nil, nil, err
	}
	cfg.ExecutionMode = bootstrap.ModeInline
	tracker := bootstrap.Tracker(cfg, workflow, workflow, st, nil, logger)
	cleanup := func() error {
		storeErr := closeStore.Close()
		if err := closeWorkflow.Close(); err != nil {
			return err
		}
		return storeErr
	}
	return tracker, cleanup, nil
}

func runResearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return research.ErrEmptyQuery
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runLimit > 0 {
		cfg.CandidateLimit = runLimit
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(level, false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	engine, cleanup, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()
	if timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, timeout)
		defer timeoutCancel()
	}

	result, err := engine.Run(ctx, query)
	if err != nil {
		return fmt.Errorf("research failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if runJSON {
		var payload any = research.Compat(result)
		if runFull {
			payload = result
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		encoder.SetEscapeHTML(false)
		return encoder.Encode(payload)
	}

	report, err := renderReport(renderMarkdown(result), runPlain)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out, report)
	return err
}
