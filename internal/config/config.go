package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/saturnino-fabrica-de-software/facegate/internal/capture"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Database (vazio = enrollments apenas em memória)
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Strategy and model backend
	FaceStrategy             string        `envconfig:"FACE_STRATEGY" default:"heuristic"`
	ModelBackend             string        `envconfig:"MODEL_BACKEND" default:"deepface"`
	DeepFaceURL              string        `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	DeepFaceModel            string        `envconfig:"DEEPFACE_MODEL" default:"Facenet512"`
	DeepFaceTimeout          time.Duration `envconfig:"DEEPFACE_TIMEOUT" default:"30s"`
	AWSRegion                string        `envconfig:"AWS_REGION" default:"us-east-1"`
	RekognitionMinConfidence float64       `envconfig:"REKOGNITION_MIN_CONFIDENCE" default:"90"`

	// Matching
	ModelThreshold     float64 `envconfig:"MODEL_THRESHOLD" default:"0.6"`
	HeuristicThreshold float64 `envconfig:"HEURISTIC_THRESHOLD" default:"0.12"`

	// Capture
	AutoCapture             bool          `envconfig:"AUTO_CAPTURE" default:"true"`
	QualityGoodThreshold    int           `envconfig:"QUALITY_GOOD_THRESHOLD" default:"10"`
	QualityAbortThreshold   int           `envconfig:"QUALITY_ABORT_THRESHOLD" default:"5"`
	CountdownSeconds        int           `envconfig:"COUNTDOWN_SECONDS" default:"3"`
	HeuristicSamplingPeriod time.Duration `envconfig:"HEURISTIC_SAMPLING_PERIOD" default:"200ms"`
	ModelSamplingPeriod     time.Duration `envconfig:"MODEL_SAMPLING_PERIOD" default:"500ms"`
	SessionTimeout          time.Duration `envconfig:"SESSION_TIMEOUT" default:"2m"`
	CaptureProfile          string        `envconfig:"CAPTURE_PROFILE"`

	// Attendance webhook
	AttendanceWebhookURL    string        `envconfig:"ATTENDANCE_WEBHOOK_URL"`
	AttendanceWebhookSecret string        `envconfig:"ATTENDANCE_WEBHOOK_SECRET"`
	WebhookRetryInterval    time.Duration `envconfig:"WEBHOOK_RETRY_INTERVAL" default:"5s"`

	// Abuse protection
	VerifyAttemptLimit  int           `envconfig:"VERIFY_ATTEMPT_LIMIT" default:"5"`
	VerifyAttemptWindow time.Duration `envconfig:"VERIFY_ATTEMPT_WINDOW" default:"5m"`
	RequestsPerMinute   int           `envconfig:"REQUESTS_PER_MINUTE" default:"120"`

	// Housekeeping
	MetricsInterval       time.Duration `envconfig:"METRICS_INTERVAL" default:"1m"`
	VerificationRetention time.Duration `envconfig:"VERIFICATION_RETENTION" default:"2160h"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if _, err := cfg.Strategy(); err != nil {
		return nil, fmt.Errorf("load config: FACE_STRATEGY %q: %w", cfg.FaceStrategy, err)
	}
	if cfg.AttendanceWebhookURL != "" && cfg.AttendanceWebhookSecret == "" {
		return nil, fmt.Errorf("load config: ATTENDANCE_WEBHOOK_SECRET is required with ATTENDANCE_WEBHOOK_URL")
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Strategy is the default capture strategy.
func (c *Config) Strategy() (domain.Strategy, error) {
	return domain.ParseStrategy(c.FaceStrategy, domain.StrategyHeuristic)
}

// CaptureConfig builds the session configuration for strategy from the
// environment, then applies profile on top of it when given.
func (c *Config) CaptureConfig(strategy domain.Strategy, profile *Profile) (capture.Config, error) {
	cc := capture.DefaultConfig(strategy)
	cc.AutoCapture = c.AutoCapture
	cc.QualityGoodThreshold = c.QualityGoodThreshold
	cc.QualityAbortThreshold = c.QualityAbortThreshold
	cc.CountdownSeconds = c.CountdownSeconds
	if strategy == domain.StrategyModel {
		cc.SamplingPeriod = c.ModelSamplingPeriod
	} else {
		cc.SamplingPeriod = c.HeuristicSamplingPeriod
	}

	if profile != nil {
		cc = profile.Apply(cc)
	}
	if err := cc.Validate(); err != nil {
		return capture.Config{}, err
	}
	return cc, nil
}

// Thresholds returns the matcher thresholds, profile overrides included.
func (c *Config) Thresholds(profile *Profile) (model, heuristic float64) {
	model, heuristic = c.ModelThreshold, c.HeuristicThreshold
	if profile != nil {
		if profile.Thresholds.Model > 0 {
			model = profile.Thresholds.Model
		}
		if profile.Thresholds.Heuristic > 0 {
			heuristic = profile.Thresholds.Heuristic
		}
	}
	return model, heuristic
}
