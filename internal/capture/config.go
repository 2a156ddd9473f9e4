package capture

import (
	"fmt"
	"time"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

const (
	DefaultQualityGood        = 10
	DefaultQualityAbort       = 5
	DefaultCountdownSeconds   = 3
	DefaultHeuristicSampling  = 200 * time.Millisecond
	DefaultModelSampling      = 500 * time.Millisecond
	DefaultCountdownPeriod    = time.Second
	DefaultLightingFeedbackIn = 3 * time.Second
)

// Config tunes a capture session. Use DefaultConfig and override fields.
type Config struct {
	Strategy               domain.Strategy `yaml:"strategy"`
	AutoCapture            bool            `yaml:"auto_capture"`
	QualityGoodThreshold   int             `yaml:"quality_good_threshold"`
	QualityAbortThreshold  int             `yaml:"quality_abort_threshold"`
	CountdownSeconds       int             `yaml:"countdown_seconds"`
	SamplingPeriod         time.Duration   `yaml:"sampling_period"`
	CountdownPeriod        time.Duration   `yaml:"countdown_period"`
	LightingFeedbackWindow time.Duration   `yaml:"lighting_feedback_window"`
}

// DefaultConfig returns the defaults for strategy. The model strategy samples
// every 500ms, one backend round trip per sample.
func DefaultConfig(strategy domain.Strategy) Config {
	sampling := DefaultHeuristicSampling
	if strategy == domain.StrategyModel {
		sampling = DefaultModelSampling
	}
	return Config{
		Strategy:               strategy,
		AutoCapture:            true,
		QualityGoodThreshold:   DefaultQualityGood,
		QualityAbortThreshold:  DefaultQualityAbort,
		CountdownSeconds:       DefaultCountdownSeconds,
		SamplingPeriod:         sampling,
		CountdownPeriod:        DefaultCountdownPeriod,
		LightingFeedbackWindow: DefaultLightingFeedbackIn,
	}
}

func (c Config) Validate() error {
	var problem string
	switch {
	case !c.Strategy.Valid():
		return domain.ErrInvalidStrategy
	case c.QualityGoodThreshold < 0 || c.QualityGoodThreshold > 100:
		problem = fmt.Sprintf("quality good threshold %d out of range", c.QualityGoodThreshold)
	case c.QualityAbortThreshold < 0 || c.QualityAbortThreshold > c.QualityGoodThreshold:
		problem = fmt.Sprintf("quality abort threshold %d must be between 0 and %d", c.QualityAbortThreshold, c.QualityGoodThreshold)
	case c.CountdownSeconds < 1:
		problem = "countdown must be at least one tick"
	case c.SamplingPeriod <= 0 || c.CountdownPeriod <= 0:
		problem = "periods must be positive"
	case c.LightingFeedbackWindow < 0:
		problem = "lighting feedback window must not be negative"
	default:
		return nil
	}
	return domain.ErrValidationFailed.WithError(fmt.Errorf("capture config: %s", problem))
}
