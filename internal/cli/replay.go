package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/facegate/internal/capture"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
)

type replayOptions struct {
	Loop    bool
	Timeout time.Duration
	Out     string
	Trace   bool
}

// ReplayResult summarises a replayed session.
type ReplayResult struct {
	SessionID  string          `json:"session_id"`
	Strategy   domain.Strategy `json:"strategy"`
	Frames     int64           `json:"frames"`
	Quality    int             `json:"quality"`
	Brightness int             `json:"brightness"`
	Manual     bool            `json:"manual"`
	Elapsed    time.Duration   `json:"elapsed"`
}

func newReplayCommand(a *app) *cobra.Command {
	opts := replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay <dir>",
		Short: "Run a capture session over the images of a directory",
		Long: `Replays the images of a directory, in name order, as the camera feed of a
capture session. The session samples, counts down and captures exactly as a
live kiosk would, so a recorded clip can be used to tune a calibration
profile. The captured fingerprint is written as JSON with --out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, cp, err := a.replay(cmd.Context(), args[0], opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if opts.Out != "" {
				if err := writeFingerprint(opts.Out, cp.Fingerprint); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.Loop, "loop", true, "start over when the images run out")
	flags.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "give up when nothing was captured after this long")
	flags.StringVarP(&opts.Out, "out", "o", "", "write the captured fingerprint JSON to this file")
	flags.BoolVar(&opts.Trace, "trace", false, "print every feedback event to stderr instead of a progress bar")
	return cmd
}

func (a *app) replay(ctx context.Context, dir string, opts replayOptions, stderr io.Writer) (*ReplayResult, *capture.Capture, error) {
	set, err := a.pipelines()
	if err != nil {
		return nil, nil, err
	}
	p, err := set.Get(a.strategy)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := a.cfg.CaptureConfig(p.Strategy(), a.profile)
	if err != nil {
		return nil, nil, err
	}

	src, err := frame.NewDirSource(dir)
	if err != nil {
		return nil, nil, err
	}
	src.Loop = opts.Loop

	var frames atomic.Int64
	var bar *progressbar.ProgressBar
	if !opts.Trace {
		total := src.Len()
		if opts.Loop {
			total = -1
		}
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Replaying "+filepath.Base(dir)),
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("frames"),
			progressbar.OptionShowIts(),
		)
	}
	src.OnFrame = func(int, string) {
		frames.Add(1)
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var (
		mu       sync.Mutex
		captured *capture.Capture
		failure  *capture.SessionError
	)
	listener := capture.Callbacks{
		Feedback: func(f capture.Feedback) {
			if opts.Trace {
				fmt.Fprintf(stderr, "%s face=%t quality=%d brightness=%d issue=%s\n",
					f.State, f.FaceDetected, f.Quality, f.Brightness, f.Issue)
			}
		},
		Captured: func(cp capture.Capture) {
			mu.Lock()
			captured = &cp
			mu.Unlock()
		},
		Error: func(e *capture.SessionError) {
			if !e.Fatal {
				a.logger.Warn("sample rejected", "code", e.Code, "error", e.Err)
				return
			}
			mu.Lock()
			failure = e
			mu.Unlock()
		},
	}

	start := time.Now()
	session, err := capture.Start(ctx, cfg, capture.Dependencies{
		Source:    src,
		Detector:  p.Detector,
		Extractor: p.Extractor,
		Analyzer:  p.Analyzer,
		Logger:    a.logger,
	}, listener)
	if err != nil {
		return nil, nil, err
	}
	<-session.Done()
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(stderr)
	}

	mu.Lock()
	defer mu.Unlock()
	switch {
	case captured != nil:
	case failure != nil:
		return nil, nil, failure.Err
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, nil, domain.ErrSessionTimeout.WithError(
			fmt.Errorf("no capture after %d frames in %s", frames.Load(), opts.Timeout))
	default:
		return nil, nil, fmt.Errorf("session ended in state %s without a capture", session.State())
	}

	return &ReplayResult{
		SessionID:  captured.SessionID.String(),
		Strategy:   captured.Strategy,
		Frames:     frames.Load(),
		Quality:    captured.Quality,
		Brightness: captured.Brightness,
		Manual:     captured.Manual,
		Elapsed:    time.Since(start).Round(time.Millisecond),
	}, captured, nil
}

func writeFingerprint(path string, fp *domain.Fingerprint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeJSON(f, fp); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
