// Package cli implements facectl, the operator tool for calibrating capture
// profiles and managing enrollments without the HTTP service.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/config"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/face"
	"github.com/saturnino-fabrica-de-software/facegate/internal/matcher"
	"github.com/saturnino-fabrica-de-software/facegate/internal/pipeline"
)

// Version is the application version.
const Version = "0.1.0"

// Options holds the flags shared by every subcommand.
type Options struct {
	EnvFile  string
	Profile  string
	Strategy string
	Verbose  bool
}

// app is the state built once per invocation by the root command.
type app struct {
	opts     Options
	cfg      *config.Config
	profile  *config.Profile
	strategy domain.Strategy
	logger   *slog.Logger

	// openStore is replaced in tests.
	openStore storeOpener
}

// NewRootCommand builds the facectl command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{openStore: openPostgresStore})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "facectl",
		Short:         "Face capture and matching toolbox",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&a.opts.Profile, "profile", "", "YAML calibration profile (default: $CAPTURE_PROFILE)")
	flags.StringVar(&a.opts.Strategy, "strategy", "", "heuristic or model (default: $FACE_STRATEGY)")
	flags.BoolVarP(&a.opts.Verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newInspectCommand(a),
		newReplayCommand(a),
		newMatchCommand(a),
		newEnrollCommand(a),
	)
	return root
}

// Execute runs facectl until it finishes or gets SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func (a *app) init(stderr io.Writer) error {
	if a.opts.EnvFile != "" {
		if err := godotenv.Load(a.opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.opts.EnvFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := slog.LevelWarn
	if a.opts.Verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	path := a.opts.Profile
	if path == "" {
		path = cfg.CaptureProfile
	}
	if path != "" {
		if a.profile, err = config.LoadProfile(path); err != nil {
			return err
		}
	}

	fallback, err := cfg.Strategy()
	if err != nil {
		return err
	}
	if a.strategy, err = domain.ParseStrategy(a.opts.Strategy, fallback); err != nil {
		return fmt.Errorf("--strategy %q: %w", a.opts.Strategy, err)
	}
	return nil
}

// pipelines builds the pipeline set. The model backend is only created for
// the model strategy.
func (a *app) pipelines() (*pipeline.Set, error) {
	if a.strategy != domain.StrategyModel {
		return pipeline.NewSet(nil, a.strategy, a.cfg.QualityAbortThreshold), nil
	}
	backend, err := face.NewModelBackend(a.cfg, audit.NewSlogLogger(a.logger))
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, domain.ErrInvalidStrategy.WithError(errors.New("model strategy needs a MODEL_BACKEND"))
	}
	return pipeline.NewSet(backend, a.strategy, a.cfg.QualityAbortThreshold), nil
}

func (a *app) matcher() *matcher.Matcher {
	m := matcher.New()
	m.ModelThreshold, m.HeuristicThreshold = a.cfg.Thresholds(a.profile)
	return m
}
