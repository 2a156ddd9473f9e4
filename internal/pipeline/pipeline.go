// Package pipeline pairs a detector with the extractor of the same strategy
// and turns a single still image into a fingerprint.
package pipeline

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/facegate/internal/detector"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/fingerprint"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
	"github.com/saturnino-fabrica-de-software/facegate/internal/quality"
)

// Pipeline is a detector and extractor of one strategy.
type Pipeline struct {
	Detector  detector.Detector
	Extractor fingerprint.Extractor
	Analyzer  *quality.Analyzer
	// MinQuality rejects still images scoring below it.
	MinQuality int
}

// Result of fingerprinting a still image.
type Result struct {
	Fingerprint *domain.Fingerprint
	Detection   detector.Detection
	Quality     quality.Report
}

func (p *Pipeline) Strategy() domain.Strategy { return p.Detector.Strategy() }

// Fingerprint detects, scores and extracts in one go. Still images get no
// retries, so every rejection names its cause.
func (p *Pipeline) Fingerprint(ctx context.Context, f *frame.Frame) (*Result, error) {
	d, err := p.Detector.Detect(ctx, f)
	if err != nil {
		return nil, err
	}
	if !d.Plausible {
		if d.FaceCount > 1 {
			return nil, domain.ErrMultipleFaces
		}
		return nil, domain.ErrNoFaceDetected
	}

	analyzer := p.Analyzer
	if analyzer == nil {
		analyzer = quality.NewAnalyzer()
	}
	report := analyzer.Analyze(d.Region)
	if report.Score < p.MinQuality {
		return nil, domain.ErrLowQualityImage.WithError(
			fmt.Errorf("quality %d below %d (%s)", report.Score, p.MinQuality, report.Level))
	}

	fp, err := p.Extractor.Extract(ctx, d)
	if err != nil {
		return nil, err
	}
	return &Result{Fingerprint: fp, Detection: d, Quality: report}, nil
}

// Set holds the pipeline of each available strategy. The model pipeline is
// only available when a backend was configured.
type Set struct {
	Default   domain.Strategy
	heuristic *Pipeline
	model     *Pipeline
	backend   *provider.Shared
}

// NewSet builds the heuristic pipeline and, when backend is not nil, the
// model pipeline. Both model stages share one backend load.
func NewSet(backend provider.ModelBackend, def domain.Strategy, minQuality int) *Set {
	pattern := detector.NewHeuristic()
	analyzer := quality.NewAnalyzer()
	s := &Set{
		Default: def,
		heuristic: &Pipeline{
			Detector:   pattern,
			Extractor:  fingerprint.NewHeuristic(pattern),
			Analyzer:   analyzer,
			MinQuality: minQuality,
		},
	}
	if backend != nil {
		det := detector.NewModel(backend)
		s.backend = det.Backend()
		s.model = &Pipeline{
			Detector:   det,
			Extractor:  fingerprint.NewModel(det.Backend()),
			Analyzer:   analyzer,
			MinQuality: minQuality,
		}
	}
	return s
}

// Get returns the pipeline for strategy; an empty strategy means Default.
func (s *Set) Get(strategy domain.Strategy) (*Pipeline, error) {
	if strategy == "" {
		strategy = s.Default
	}
	switch strategy {
	case domain.StrategyHeuristic:
		return s.heuristic, nil
	case domain.StrategyModel:
		if s.model == nil {
			return nil, domain.ErrInvalidStrategy.WithError(fmt.Errorf("no model backend configured"))
		}
		return s.model, nil
	default:
		return nil, domain.ErrInvalidStrategy
	}
}

// Backend is the shared model backend, nil without one.
func (s *Set) Backend() *provider.Shared { return s.backend }
