package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/saturnino-fabrica-de-software/facegate/internal/capture"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// Profile is a calibration file tuned per site (camera, lighting). Only the
// fields present in the file override the environment.
//
//	heuristic:
//	  quality_good_threshold: 12
//	  sampling_period: 250ms
//	model:
//	  countdown_seconds: 2
//	thresholds:
//	  model: 0.55
type Profile struct {
	Heuristic  *CaptureOverrides `yaml:"heuristic"`
	Model      *CaptureOverrides `yaml:"model"`
	Thresholds struct {
		Model     float64 `yaml:"model"`
		Heuristic float64 `yaml:"heuristic"`
	} `yaml:"thresholds"`
}

type CaptureOverrides struct {
	AutoCapture            *bool          `yaml:"auto_capture"`
	QualityGoodThreshold   *int           `yaml:"quality_good_threshold"`
	QualityAbortThreshold  *int           `yaml:"quality_abort_threshold"`
	CountdownSeconds       *int           `yaml:"countdown_seconds"`
	SamplingPeriod         *time.Duration `yaml:"sampling_period"`
	CountdownPeriod        *time.Duration `yaml:"countdown_period"`
	LightingFeedbackWindow *time.Duration `yaml:"lighting_feedback_window"`
}

func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile rejects unknown keys so typos do not silently fall back to
// defaults.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if p.Thresholds.Model < 0 || p.Thresholds.Heuristic < 0 {
		return nil, fmt.Errorf("parse profile: %w", domain.ErrInvalidThreshold)
	}
	return &p, nil
}

// Apply overrides cfg with the section matching cfg.Strategy.
func (p *Profile) Apply(cfg capture.Config) capture.Config {
	o := p.Heuristic
	if cfg.Strategy == domain.StrategyModel {
		o = p.Model
	}
	if o == nil {
		return cfg
	}
	if o.AutoCapture != nil {
		cfg.AutoCapture = *o.AutoCapture
	}
	if o.QualityGoodThreshold != nil {
		cfg.QualityGoodThreshold = *o.QualityGoodThreshold
	}
	if o.QualityAbortThreshold != nil {
		cfg.QualityAbortThreshold = *o.QualityAbortThreshold
	}
	if o.CountdownSeconds != nil {
		cfg.CountdownSeconds = *o.CountdownSeconds
	}
	if o.SamplingPeriod != nil {
		cfg.SamplingPeriod = *o.SamplingPeriod
	}
	if o.CountdownPeriod != nil {
		cfg.CountdownPeriod = *o.CountdownPeriod
	}
	if o.LightingFeedbackWindow != nil {
		cfg.LightingFeedbackWindow = *o.LightingFeedbackWindow
	}
	return cfg
}
