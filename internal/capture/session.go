// Package capture runs a live capture session: it samples frames on a timer,
// scores them, gives feedback, counts down when the face is good enough and
// extracts a fingerprint.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/detector"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/fingerprint"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
	"github.com/saturnino-fabrica-de-software/facegate/internal/quality"
)

// Analyzer scores the region a detector returned.
type Analyzer interface {
	Analyze(r frame.Region) quality.Report
}

// Dependencies are the collaborators of a session. Source, Detector and
// Extractor are required; the rest have defaults.
type Dependencies struct {
	Source    frame.Source
	Detector  detector.Detector
	Extractor fingerprint.Extractor
	Analyzer  Analyzer
	Clock     Clock
	Logger    *slog.Logger
	Audit     audit.Logger

	// EmployeeID only labels audit events.
	EmployeeID string
}

type loader interface {
	Load(ctx context.Context) error
}

type stage int

const (
	stageSource stage = iota
	stageDetect
	stageExtract
)

type sampleResult struct {
	seq       uint64
	epoch     uint64
	detection detector.Detection
	report    quality.Report
	sampled   bool
	stage     stage
	err       error
}

type extractionResult struct {
	seq         uint64
	fingerprint *domain.Fingerprint
	report      quality.Report
	stage       stage
	err         error
}

type captureRequest struct {
	reply chan error
}

// Session is one running capture. All capture state is owned by the session
// goroutine; the exported methods talk to it through channels.
type Session struct {
	id       uuid.UUID
	cfg      Config
	deps     Dependencies
	listener Listener
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	samples     chan sampleResult
	extractions chan extractionResult
	captureReqs chan captureRequest

	emitMu     sync.Mutex
	inCallback atomic.Bool
	cancelled  atomic.Bool

	stateMu sync.RWMutex
	state   State

	// owned by run
	samplingTicker  Ticker
	countdownTicker Ticker
	ticks           int
	faceDetected    bool
	faceCount       int
	quality         int
	brightness      int
	countdown       *int
	lastFeedbackAt  time.Time
	lighting        *LightingWarning
	sampleSeq       uint64
	sampling        bool
	epoch           uint64
	extractSeq      uint64
	manual          bool
	finished        bool
}

// Start validates the configuration, loads the model backend when the model
// strategy is selected and starts sampling. The session ends when it
// captures, fails, is cancelled or when ctx is done.
func Start(ctx context.Context, cfg Config, deps Dependencies, listener Listener) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil {
		return nil, domain.ErrNoFrameSource
	}
	if deps.Detector == nil || deps.Extractor == nil {
		return nil, domain.ErrValidationFailed.WithError(errors.New("capture: detector and extractor are required"))
	}
	if deps.Detector.Strategy() != cfg.Strategy || deps.Extractor.Strategy() != cfg.Strategy {
		return nil, domain.ErrStrategyMismatch.WithError(fmt.Errorf("capture: session %s, detector %s, extractor %s",
			cfg.Strategy, deps.Detector.Strategy(), deps.Extractor.Strategy()))
	}
	if listener == nil {
		listener = Callbacks{}
	}
	if deps.Analyzer == nil {
		deps.Analyzer = quality.NewAnalyzer()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Audit == nil {
		deps.Audit = &audit.NoOpLogger{}
	}

	if cfg.Strategy == domain.StrategyModel {
		if l, ok := deps.Detector.(loader); ok {
			if err := l.Load(ctx); err != nil {
				if ctx.Err() == nil && !errors.Is(err, domain.ErrModelLoadFailure) {
					err = domain.ErrModelLoadFailure.WithError(err)
				}
				return nil, err
			}
		}
	}

	sessCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:          uuid.New(),
		cfg:         cfg,
		deps:        deps,
		listener:    listener,
		ctx:         sessCtx,
		cancel:      cancel,
		done:        make(chan struct{}),
		samples:     make(chan sampleResult, 1),
		extractions: make(chan extractionResult, 1),
		captureReqs: make(chan captureRequest),
		state:       StateIdle,
	}
	s.log = deps.Logger.With(
		slog.String("component", "capture"),
		slog.String("session_id", s.id.String()),
		slog.String("strategy", string(cfg.Strategy)),
	)

	s.samplingTicker = deps.Clock.NewTicker(cfg.SamplingPeriod)
	s.setState(StateSampling)
	s.audit(audit.Event{EventType: audit.EventSessionStarted, Success: true})
	s.log.Debug("capture session started",
		slog.Duration("sampling_period", cfg.SamplingPeriod),
		slog.Bool("auto_capture", cfg.AutoCapture),
	)

	go s.run()
	return s, nil
}

func (s *Session) ID() uuid.UUID { return s.id }

// Done is closed once the session reached a terminal state and released its
// timers and frame source.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Cancel stops the session. No listener callback starts after Cancel
// returns. It is safe to call more than once, including from inside a
// listener callback, in which case it returns without waiting for that
// callback to finish.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
	if s.inCallback.Load() {
		return
	}
	s.emitMu.Lock()
	//nolint:staticcheck // empty critical section waits for an in-flight callback
	s.emitMu.Unlock()
}

// Capture asks for an immediate capture regardless of quality. It returns
// once the request was accepted or denied; the outcome arrives through the
// Listener.
func (s *Session) Capture(ctx context.Context) error {
	req := captureRequest{reply: make(chan error, 1)}
	select {
	case s.captureReqs <- req:
	case <-s.done:
		return domain.ErrSessionNotActive
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-s.done:
		select {
		case err := <-req.reply:
			return err
		default:
			return domain.ErrSessionNotActive
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run() {
	defer close(s.done)

	for !s.finished {
		if s.ctx.Err() != nil {
			s.finish(StateCancelled)
			return
		}

		select {
		case <-s.ctx.Done():
			s.finish(StateCancelled)

		case <-s.samplingTicker.C():
			if s.stopRequested() {
				continue
			}
			s.onSamplingTick()

		case <-s.countdownC():
			if s.stopRequested() {
				continue
			}
			s.onCountdownTick()

		case res := <-s.samples:
			if s.stopRequested() {
				continue
			}
			s.onSample(res)

		case res := <-s.extractions:
			if s.stopRequested() {
				continue
			}
			s.onExtraction(res)

		case req := <-s.captureReqs:
			if s.stopRequested() {
				req.reply <- domain.ErrSessionNotActive
				continue
			}
			req.reply <- s.onCaptureRequest()
		}
	}
}

func (s *Session) stopRequested() bool {
	return s.cancelled.Load() || s.ctx.Err() != nil
}

func (s *Session) countdownC() <-chan time.Time {
	if s.countdownTicker == nil {
		return nil
	}
	return s.countdownTicker.C()
}

func (s *Session) onSamplingTick() {
	if s.sampling || s.State() == StateCapturing {
		return
	}
	s.sampleSeq++
	s.sampling = true
	go s.sample(s.sampleSeq, s.epoch)
}

// sample runs off the session goroutine on its own frame.
func (s *Session) sample(seq, epoch uint64) {
	res := sampleResult{seq: seq, epoch: epoch}
	defer func() { s.samples <- res }()

	f, err := s.deps.Source.CurrentFrame(s.ctx)
	if err != nil {
		res.stage, res.err = stageSource, err
		return
	}
	d, err := s.deps.Detector.Detect(s.ctx, f)
	if err != nil {
		res.stage, res.err = stageDetect, err
		return
	}
	res.detection = d
	if !d.Region.Empty() {
		res.report = s.deps.Analyzer.Analyze(d.Region)
		res.sampled = true
	}
}

func (s *Session) onSample(res sampleResult) {
	s.sampling = false
	if res.seq != s.sampleSeq || res.epoch != s.epoch || s.State() == StateCapturing {
		s.log.Debug("stale sample discarded", slog.Uint64("seq", res.seq))
		return
	}

	var issue string
	if res.err != nil {
		switch {
		case isContextErr(res.err):
			return
		case res.stage == stageSource && errors.Is(res.err, frame.ErrNoFrame):
		case res.stage == stageSource:
			s.fail(domain.ErrFrameSourceFailure.WithError(res.err))
			return
		case domain.IsFatal(res.err):
			s.fail(res.err)
			return
		default:
			issue = domain.Code(res.err)
			s.log.Warn("sample failed", slog.String("error", res.err.Error()))
		}
		res = sampleResult{}
	}

	s.ticks++
	d := res.detection
	face := d.Plausible
	if d.FaceCount > 1 {
		issue = IssueMultipleFaces
	}

	s.brightness = 0
	if res.sampled {
		s.brightness = res.report.Brightness
		s.evaluateLighting(res.report.Level)
	}
	s.faceDetected = face
	s.faceCount = d.FaceCount
	s.quality = 0
	if face {
		s.quality = res.report.Score
	}

	switch {
	case s.countdown != nil && (!face || s.quality < s.cfg.QualityAbortThreshold):
		s.log.Debug("countdown aborted", slog.Bool("face", face), slog.Int("quality", s.quality))
		s.stopCountdown()
		s.setState(StateSampling)
	case s.cfg.AutoCapture && face && s.quality >= s.cfg.QualityGoodThreshold && s.countdown == nil:
		s.startCountdown()
	}

	s.emitFeedback(issue)
}

// evaluateLighting refreshes the lighting warning at most once per window.
func (s *Session) evaluateLighting(level quality.Level) {
	now := s.deps.Clock.Now()
	if !s.lastFeedbackAt.IsZero() && now.Sub(s.lastFeedbackAt) < s.cfg.LightingFeedbackWindow {
		return
	}
	s.lastFeedbackAt = now
	s.lighting = lightingWarning(level)
}

func (s *Session) startCountdown() {
	n := s.cfg.CountdownSeconds
	s.countdown = &n
	s.countdownTicker = s.deps.Clock.NewTicker(s.cfg.CountdownPeriod)
	s.setState(StateCountdown)
	s.log.Debug("countdown started", slog.Int("seconds", n), slog.Int("quality", s.quality))
}

func (s *Session) stopCountdown() {
	s.countdown = nil
	if s.countdownTicker != nil {
		s.countdownTicker.Stop()
		s.countdownTicker = nil
	}
}

func (s *Session) onCountdownTick() {
	if s.countdown == nil || s.State() != StateCountdown {
		return
	}
	*s.countdown--
	if *s.countdown > 0 {
		s.emitFeedback("")
		return
	}
	s.beginCapture(false)
	s.emitFeedback("")
}

func (s *Session) onCaptureRequest() error {
	switch st := s.State(); {
	case st == StateCapturing:
		return domain.ErrCaptureInProgress
	case st.Terminal():
		return domain.ErrSessionNotActive
	case !s.faceDetected:
		return domain.ErrNoFaceDetected
	}
	s.beginCapture(true)
	return nil
}

func (s *Session) beginCapture(manual bool) {
	s.stopCountdown()
	s.setState(StateCapturing)
	s.epoch++
	s.extractSeq++
	s.manual = manual
	s.log.Debug("capture started", slog.Bool("manual", manual))
	go s.extract(s.extractSeq)
}

// extract acquires a fresh frame, detects and extracts off the session
// goroutine.
func (s *Session) extract(seq uint64) {
	res := extractionResult{seq: seq}
	defer func() { s.extractions <- res }()

	f, err := s.deps.Source.CurrentFrame(s.ctx)
	if err != nil {
		res.stage, res.err = stageSource, err
		return
	}
	d, err := s.deps.Detector.Detect(s.ctx, f)
	if err != nil {
		res.stage, res.err = stageDetect, err
		return
	}
	if !d.Region.Empty() {
		res.report = s.deps.Analyzer.Analyze(d.Region)
	}
	fp, err := s.deps.Extractor.Extract(s.ctx, d)
	if err != nil {
		res.stage, res.err = stageExtract, err
		return
	}
	res.fingerprint = fp
}

func (s *Session) onExtraction(res extractionResult) {
	if res.seq != s.extractSeq || s.State() != StateCapturing {
		return
	}

	if res.err != nil {
		switch {
		case isContextErr(res.err):
			return
		case res.stage == stageSource && !errors.Is(res.err, frame.ErrNoFrame):
			s.fail(domain.ErrFrameSourceFailure.WithError(res.err))
			return
		case domain.IsFatal(res.err):
			s.fail(res.err)
			return
		}

		s.log.Info("extraction failed", slog.String("error", res.err.Error()), slog.Bool("manual", s.manual))
		s.setState(StateSampling)
		s.audit(audit.Event{EventType: audit.EventFaceCaptured, Error: res.err.Error()})
		s.emitError(&SessionError{
			SessionID: s.id,
			Code:      domain.ErrExtractionFailed.Code,
			Err:       domain.ErrExtractionFailed.WithError(res.err),
		})
		return
	}

	capture := Capture{
		SessionID:   s.id,
		Fingerprint: res.fingerprint,
		Strategy:    res.fingerprint.Strategy(),
		Quality:     res.report.Score,
		Brightness:  res.report.Brightness,
		Manual:      s.manual,
		CapturedAt:  s.deps.Clock.Now().UTC(),
	}
	s.setState(StateCaptured)
	s.audit(audit.Event{
		EventType: audit.EventFaceCaptured,
		Success:   true,
		Metadata: map[string]string{
			"quality": strconv.Itoa(capture.Quality),
			"manual":  strconv.FormatBool(capture.Manual),
		},
	})
	s.emit(func() { s.listener.OnCaptured(capture) })
	s.finish(StateCaptured)
}

func (s *Session) fail(err error) {
	s.log.Error("capture session failed", slog.String("error", err.Error()))
	s.emitError(&SessionError{SessionID: s.id, Code: domain.Code(err), Fatal: true, Err: err})
	s.finish(StateFailed)
}

// finish releases the timers and the frame source. It runs exactly once, on
// the session goroutine.
func (s *Session) finish(state State) {
	if s.finished {
		return
	}
	s.finished = true
	s.stopCountdown()
	s.samplingTicker.Stop()
	s.setState(state)
	s.cancel()

	if c, ok := s.deps.Source.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.log.Warn("failed to close frame source", slog.String("error", err.Error()))
		}
	}

	s.audit(audit.Event{
		EventType: audit.EventSessionEnded,
		Success:   state == StateCaptured,
		Metadata: map[string]string{
			"state": string(state),
			"ticks": strconv.Itoa(s.ticks),
		},
	})
	s.log.Info("capture session ended", slog.String("state", string(state)), slog.Int("ticks", s.ticks))
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

func (s *Session) emit(fn func()) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.stopRequested() {
		return
	}
	s.inCallback.Store(true)
	defer s.inCallback.Store(false)
	fn()
}

func (s *Session) emitFeedback(issue string) {
	fb := Feedback{
		SessionID:    s.id,
		State:        s.State(),
		Tick:         s.ticks,
		FaceDetected: s.faceDetected,
		FaceCount:    s.faceCount,
		Quality:      s.quality,
		Brightness:   s.brightness,
		Status:       StatusFor(s.quality),
		Lighting:     s.lighting,
		Issue:        issue,
		At:           s.deps.Clock.Now().UTC(),
	}
	if s.countdown != nil {
		n := *s.countdown
		fb.Countdown = &n
	}
	s.emit(func() { s.listener.OnFeedback(fb) })
}

func (s *Session) emitError(err *SessionError) {
	s.emit(func() { s.listener.OnError(err) })
}

func (s *Session) audit(event audit.Event) {
	event.SessionID = s.id.String()
	event.EmployeeID = s.deps.EmployeeID
	event.Strategy = string(s.cfg.Strategy)
	if err := s.deps.Audit.Log(context.WithoutCancel(s.ctx), event); err != nil {
		s.log.Warn("audit log failed", slog.String("error", err.Error()))
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
