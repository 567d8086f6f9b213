package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ravi-parthasarathy/caseflow/pkg/config"
	"github.com/ravi-parthasarathy/caseflow/pkg/pipeline"
)

// errExecutionsFailed is returned by run when any execution resolved to Fail
// or TimedOut, so the process exits non-zero.
var errExecutionsFailed = errors.New("one or more executions did not succeed")

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "caseflow",
		Short: "caseflow: case change-event pipeline runner",
		Long: `caseflow routes case change events through the case data pipeline.

UPDATE events update existing cases; CREATE events insert new cases, then
translate and classify them. Task failures are retried according to their
kind and escalate to the failure record.`,
		SilenceUsage: true,
	}
	root.AddCommand(runCmd())
	root.AddCommand(lintCmd())
	root.AddCommand(graphCmd())
	return root
}

// ─── run ──────────────────────────────────────────────────────────────────────

type runOptions struct {
	configPath  string
	includeData bool
	concurrency int
	logLevel    string
	logFormat   string
	dryRun      bool
	outputPath  string
}

func runCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <event.json|-> [event.json...]",
		Short: "Execute the pipeline once per change event",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath, opts.dryRun)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg, opts)
			logger, err := newLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			events, err := readEvents(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			eng, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}

			ctx := signalContext(cmd.Context())
			results, err := executeAll(ctx, eng, events, cfg.Engine.Concurrency)
			if werr := writeResults(opts.outputPath, cmd.OutOrStdout(), results); werr != nil {
				return werr
			}
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Result == nil || !r.Outcome.Succeeded() {
					return errExecutionsFailed
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to the YAML config (required unless --dry-run)")
	cmd.Flags().BoolVar(&opts.includeData, "include-execution-data", false, "record task input and output in the history")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "maximum executions in flight (default from config)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "", "log format: text or json")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "answer every task locally with status 200")
	cmd.Flags().StringVar(&opts.outputPath, "output", "", "write results to this file instead of stdout")
	return cmd
}

// loadConfig reads the config file. A dry run without one uses echo tasks;
// a dry run with one keeps its engine and logging settings.
func loadConfig(path string, dryRun bool) (*config.Config, error) {
	if path == "" {
		if !dryRun {
			return nil, fmt.Errorf("--config is required unless --dry-run is set")
		}
		return config.EchoConfig(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dryRun {
		echo := config.EchoConfig()
		cfg.Lambdas = echo.Lambdas
	}
	return cfg, nil
}

// applyRunFlags lets explicitly set flags override the config file.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, opts runOptions) {
	flags := cmd.Flags()
	if flags.Changed("include-execution-data") {
		cfg.Engine.IncludeExecutionData = opts.includeData
	}
	if flags.Changed("concurrency") && opts.concurrency > 0 {
		cfg.Engine.Concurrency = opts.concurrency
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}
}

func buildEngine(cfg *config.Config, logger *slog.Logger) (*pipeline.Engine, error) {
	reg, err := cfg.BuildRegistry(nil)
	if err != nil {
		return nil, fmt.Errorf("build task registry: %w", err)
	}
	eng, err := pipeline.NewEngine(pipeline.BuildGraph(), reg,
		pipeline.WithExecutionTimeout(cfg.Engine.ExecutionTimeout),
		pipeline.WithTaskTimeout(cfg.Engine.TaskTimeout),
		pipeline.WithExecutionData(cfg.Engine.IncludeExecutionData),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return eng, nil
}

type event struct {
	source string
	data   []byte
}

// readEvents reads each argument as an event file; "-" reads stdin once.
func readEvents(args []string, stdin io.Reader) ([]event, error) {
	events := make([]event, 0, len(args))
	stdinRead := false
	for _, a := range args {
		var (
			data []byte
			err  error
		)
		if a == "-" {
			if stdinRead {
				return nil, fmt.Errorf("stdin given more than once")
			}
			stdinRead = true
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(a)
		}
		if err != nil {
			return nil, fmt.Errorf("read event %s: %w", a, err)
		}
		events = append(events, event{source: a, data: data})
	}
	return events, nil
}

// runResult is the printed form of one execution.
type runResult struct {
	Source string `json:"source"`
	*pipeline.Result
	Error string `json:"error,omitempty"`
}

// executeAll runs one execution per event with at most limit in flight.
// Results keep the order of events. An aborted execution does not stop the
// others; all abort errors are joined.
func executeAll(ctx context.Context, eng *pipeline.Engine, events []event, limit int) ([]runResult, error) {
	results := make([]runResult, len(events))
	errs := make([]error, len(events))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, ev := range events {
		g.Go(func() error {
			res, err := eng.Execute(ctx, ev.data)
			results[i] = runResult{Source: ev.source, Result: res}
			if err != nil {
				results[i].Error = err.Error()
				errs[i] = fmt.Errorf("%s: %w", ev.source, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// writeResults writes results as a JSON array to path, or to w when path is
// empty.
func writeResults(path string, w io.Writer, results []runResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// newLogger builds a slog logger writing to w.
func newLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q: use debug, info, warn or error", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q: use text or json", format)
	}
}

// ─── lint ─────────────────────────────────────────────────────────────────────

func lintCmd() *cobra.Command {
	var (
		configPath  string
		diagramPath string
	)

	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate the pipeline graph and, optionally, a config and a DOT diagram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g := pipeline.BuildGraph()
			if lintErr := pipeline.ValidateErr(g); lintErr != nil {
				return lintErr
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "OK: pipeline %q is valid (%d nodes, %d edges)\n", g.Name, len(g.Nodes), len(g.Edges))

			if configPath != "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				if _, err := cfg.BuildRegistry(nil); err != nil {
					return err
				}
				fmt.Fprintf(out, "OK: config %s resolves all %d tasks\n", configPath, len(pipeline.Tasks))
			}

			if diagramPath != "" {
				src, err := os.ReadFile(diagramPath)
				if err != nil {
					return fmt.Errorf("read diagram: %w", err)
				}
				diagram, err := pipeline.ParseTopology(string(src))
				if err != nil {
					return err
				}
				if diff := pipeline.TopologyOf(g).Diff(diagram); len(diff) > 0 {
					return fmt.Errorf("diagram %s does not match the pipeline:\n  %s", diagramPath, strings.Join(diff, "\n  "))
				}
				fmt.Fprintf(out, "OK: diagram %s matches the pipeline\n", diagramPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML config to check against the pipeline's tasks")
	cmd.Flags().StringVar(&diagramPath, "diagram", "", "DOT diagram to check against the pipeline's topology")
	return cmd
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\n[caseflow] interrupted, cancelling executions")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
