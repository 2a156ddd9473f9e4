package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
	"github.com/saturnino-fabrica-de-software/facegate/internal/index"
	"github.com/saturnino-fabrica-de-software/facegate/internal/matcher"
	"github.com/saturnino-fabrica-de-software/facegate/internal/pipeline"
	"github.com/saturnino-fabrica-de-software/facegate/internal/webhook"
)

const defaultIdentifyCandidates = 5

type EnrollmentRepositoryInterface interface {
	Create(ctx context.Context, e *domain.Enrollment) error
	Upsert(ctx context.Context, e *domain.Enrollment) error
	Get(ctx context.Context, employeeID string, strategy domain.Strategy) (*domain.Enrollment, error)
	Delete(ctx context.Context, employeeID string, strategy domain.Strategy) error
}

type VerificationRepositoryInterface interface {
	Create(ctx context.Context, v *domain.Verification) error
	ListByEmployee(ctx context.Context, employeeID string, limit int) ([]domain.Verification, error)
}

// Identifier is the 1:N lookup kept in sync with enrollments.
type Identifier interface {
	Add(e domain.Enrollment) error
	Remove(employeeID string, strategy domain.Strategy)
	Search(fp *domain.Fingerprint, k int) ([]index.Candidate, error)
	Len(strategy domain.Strategy) int
}

type Notifier interface {
	Notify(ctx context.Context, eventType string, data any) error
}

// AttemptLimiter bounds verification attempts per key.
type AttemptLimiter interface {
	Check(ctx context.Context, key string) error
}

type attemptResetter interface {
	Reset(ctx context.Context, key string) error
}

// Source tags where a fingerprint came from in audit and webhook payloads.
const (
	SourceAPI     = "api"
	SourceSession = "session"
	SourceCLI     = "cli"
)

type FaceService struct {
	enrollments   EnrollmentRepositoryInterface
	verifications VerificationRepositoryInterface
	pipelines     *pipeline.Set
	matcher       *matcher.Matcher
	index         Identifier
	notifier      Notifier
	limiter       AttemptLimiter
	audit         audit.Logger
	logger        *slog.Logger
	now           func() time.Time
}

func NewFaceService(
	enrollments EnrollmentRepositoryInterface,
	verifications VerificationRepositoryInterface,
	pipelines *pipeline.Set,
	m *matcher.Matcher,
) *FaceService {
	if m == nil {
		m = matcher.New()
	}
	return &FaceService{
		enrollments:   enrollments,
		verifications: verifications,
		pipelines:     pipelines,
		matcher:       m,
		audit:         &audit.NoOpLogger{},
		logger:        slog.Default(),
		now:           time.Now,
	}
}

func (s *FaceService) WithIndex(ix Identifier) *FaceService {
	s.index = ix
	return s
}

func (s *FaceService) WithNotifier(n Notifier) *FaceService {
	s.notifier = n
	return s
}

func (s *FaceService) WithLimiter(l AttemptLimiter) *FaceService {
	s.limiter = l
	return s
}

func (s *FaceService) WithAudit(a audit.Logger) *FaceService {
	if a != nil {
		s.audit = a
	}
	return s
}

func (s *FaceService) WithLogger(l *slog.Logger) *FaceService {
	if l != nil {
		s.logger = l.With("component", "face_service")
	}
	return s
}

func (s *FaceService) Pipelines() *pipeline.Set { return s.pipelines }

// Threshold is the configured decision threshold of a strategy.
func (s *FaceService) Threshold(strategy domain.Strategy) float64 {
	return s.matcher.Threshold(strategy)
}

// Enroll fingerprints a still image and stores it as the employee's
// reference. With replace the previous enrollment of that strategy is
// overwritten, otherwise ErrEnrollmentExists is returned.
func (s *FaceService) Enroll(ctx context.Context, employeeID string, strategy domain.Strategy, f *frame.Frame, replace bool) (*domain.Enrollment, error) {
	p, err := s.pipelines.Get(strategy)
	if err != nil {
		return nil, err
	}

	res, err := p.Fingerprint(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("employee %s: fingerprint: %w", employeeID, err)
	}

	return s.EnrollFingerprint(ctx, employeeID, res.Fingerprint, res.Quality.Score, replace, SourceAPI)
}

// EnrollFingerprint stores an already extracted fingerprint, for example
// one produced by a live capture session.
func (s *FaceService) EnrollFingerprint(ctx context.Context, employeeID string, fp *domain.Fingerprint, qualityScore int, replace bool, source string) (*domain.Enrollment, error) {
	if employeeID == "" {
		return nil, domain.ErrValidationFailed.WithError(errors.New("employee_id is required"))
	}
	if fp == nil {
		return nil, domain.ErrInvalidFingerprint
	}

	e := &domain.Enrollment{
		EmployeeID:   employeeID,
		Strategy:     fp.Strategy(),
		Fingerprint:  fp,
		QualityScore: qualityScore,
	}

	store := s.enrollments.Create
	if replace {
		store = s.enrollments.Upsert
	}
	if err := store(ctx, e); err != nil {
		s.logAudit(ctx, audit.Event{
			EventType:  audit.EventFaceEnrolled,
			EmployeeID: employeeID,
			Strategy:   string(fp.Strategy()),
			Error:      err.Error(),
			Metadata:   map[string]string{"source": source},
		})
		return nil, err
	}

	if s.index != nil {
		if err := s.index.Add(*e); err != nil {
			s.logger.WarnContext(ctx, "enrollment not indexed",
				slog.String("employee_id", employeeID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logAudit(ctx, audit.Event{
		EventType:  audit.EventFaceEnrolled,
		EmployeeID: employeeID,
		Strategy:   string(fp.Strategy()),
		Success:    true,
		Metadata: map[string]string{
			"source":        source,
			"quality_score": strconv.Itoa(qualityScore),
		},
	})
	s.notify(ctx, webhook.EventEmployeeEnrolled, webhook.EnrollmentData{
		EnrollmentID: e.ID,
		EmployeeID:   employeeID,
		Strategy:     e.Strategy,
	})

	return e, nil
}

// Verify answers "is this the enrolled employee" for a still image.
func (s *FaceService) Verify(ctx context.Context, employeeID string, strategy domain.Strategy, f *frame.Frame, threshold float64) (*domain.Verification, error) {
	start := s.now()

	p, err := s.pipelines.Get(strategy)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.enrollment(ctx, employeeID, p.Strategy())
	if err != nil {
		return nil, err
	}

	res, err := p.Fingerprint(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("employee %s: fingerprint: %w", employeeID, err)
	}

	return s.decide(ctx, enrolled, res.Fingerprint, threshold, SourceAPI, start)
}

// VerifyFingerprint compares a captured fingerprint with the enrollment of
// the same strategy and records the decision.
func (s *FaceService) VerifyFingerprint(ctx context.Context, employeeID string, fp *domain.Fingerprint, threshold float64, source string) (*domain.Verification, error) {
	start := s.now()
	if fp == nil {
		return nil, domain.ErrInvalidFingerprint
	}

	enrolled, err := s.enrollment(ctx, employeeID, fp.Strategy())
	if err != nil {
		return nil, err
	}

	return s.decide(ctx, enrolled, fp, threshold, source, start)
}

// enrollment applies the attempt limit before looking the employee up.
func (s *FaceService) enrollment(ctx context.Context, employeeID string, strategy domain.Strategy) (*domain.Enrollment, error) {
	if employeeID == "" {
		return nil, domain.ErrValidationFailed.WithError(errors.New("employee_id is required"))
	}
	if s.limiter != nil {
		if err := s.limiter.Check(ctx, attemptKey(employeeID)); err != nil {
			return nil, err
		}
	}
	return s.enrollments.Get(ctx, employeeID, strategy)
}

func (s *FaceService) decide(ctx context.Context, enrolled *domain.Enrollment, fp *domain.Fingerprint, threshold float64, source string, start time.Time) (*domain.Verification, error) {
	employeeID := enrolled.EmployeeID

	result, err := s.matcher.Compare(enrolled.Fingerprint, fp, threshold)
	if err != nil {
		return nil, fmt.Errorf("employee %s: compare: %w", employeeID, err)
	}

	v := &domain.Verification{
		ID:           uuid.New(),
		EnrollmentID: &enrolled.ID,
		EmployeeID:   employeeID,
		Matched:      result.Matched,
		Distance:     result.Distance,
		Threshold:    result.Threshold,
		Strategy:     result.Strategy,
		LatencyMs:    s.now().Sub(start).Milliseconds(),
		CreatedAt:    result.Timestamp,
	}

	// The decision stands even if the history row cannot be written.
	if s.verifications != nil {
		if err := s.verifications.Create(ctx, v); err != nil {
			s.logger.ErrorContext(ctx, "failed to record verification",
				slog.String("employee_id", employeeID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logAudit(ctx, audit.Event{
		EventType:  audit.EventFaceVerified,
		EmployeeID: employeeID,
		Strategy:   string(v.Strategy),
		Success:    v.Matched,
		Metadata: map[string]string{
			"source":    source,
			"distance":  strconv.FormatFloat(v.Distance, 'f', 4, 64),
			"threshold": strconv.FormatFloat(v.Threshold, 'f', 4, 64),
		},
	})

	eventType := webhook.EventAttendanceRejected
	if v.Matched {
		eventType = webhook.EventAttendanceVerified
		s.resetAttempts(ctx, employeeID)
	}
	s.notify(ctx, eventType, webhook.AttendanceData{
		VerificationID: v.ID,
		EmployeeID:     employeeID,
		Matched:        v.Matched,
		Distance:       v.Distance,
		Threshold:      v.Threshold,
		Strategy:       v.Strategy,
		Source:         source,
	})

	return v, nil
}

// Match compares two fingerprints supplied by the caller. Nothing is stored.
func (s *FaceService) Match(enrolled, candidate *domain.Fingerprint, threshold float64) (*domain.VerificationResult, error) {
	return s.matcher.Compare(enrolled, candidate, threshold)
}

// Identify finds the enrolled employees nearest to the face in f.
func (s *FaceService) Identify(ctx context.Context, strategy domain.Strategy, f *frame.Frame, threshold float64, k int) (*domain.IdentifyResult, error) {
	start := s.now()

	p, err := s.pipelines.Get(strategy)
	if err != nil {
		return nil, err
	}
	res, err := p.Fingerprint(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("identify: fingerprint: %w", err)
	}

	return s.identify(ctx, res.Fingerprint, threshold, k, start)
}

// IdentifyFingerprint is Identify for an already extracted fingerprint.
func (s *FaceService) IdentifyFingerprint(ctx context.Context, fp *domain.Fingerprint, threshold float64, k int) (*domain.IdentifyResult, error) {
	return s.identify(ctx, fp, threshold, k, s.now())
}

func (s *FaceService) identify(ctx context.Context, fp *domain.Fingerprint, threshold float64, k int, start time.Time) (*domain.IdentifyResult, error) {
	if s.index == nil {
		return nil, domain.ErrIndexEmpty
	}
	if fp == nil {
		return nil, domain.ErrInvalidFingerprint
	}
	if k <= 0 {
		k = defaultIdentifyCandidates
	}

	threshold, err := s.matcher.Resolve(fp.Strategy(), threshold)
	if err != nil {
		return nil, err
	}

	candidates, err := s.index.Search(fp, k)
	if err != nil {
		return nil, err
	}

	result := &domain.IdentifyResult{
		Matches:       make([]domain.IdentifyMatch, 0, len(candidates)),
		Strategy:      fp.Strategy(),
		Threshold:     threshold,
		TotalEnrolled: s.index.Len(fp.Strategy()),
		SearchID:      uuid.New(),
		Timestamp:     s.now().UTC(),
	}
	for _, c := range candidates {
		result.Matches = append(result.Matches, domain.IdentifyMatch{
			EnrollmentID: c.Enrollment.ID,
			EmployeeID:   c.Enrollment.EmployeeID,
			Distance:     c.Distance,
			Matched:      c.Distance < threshold,
		})
	}
	result.LatencyMs = s.now().Sub(start).Milliseconds()

	best, ok := result.Best()
	s.logAudit(ctx, audit.Event{
		EventType:  audit.EventFaceIdentified,
		EmployeeID: best.EmployeeID,
		Strategy:   string(fp.Strategy()),
		Success:    ok && best.Matched,
		Metadata: map[string]string{
			"search_id":  result.SearchID.String(),
			"candidates": strconv.Itoa(len(result.Matches)),
		},
	})

	return result, nil
}

// Delete removes the employee's enrollment of one strategy, or all of them
// when strategy is empty.
func (s *FaceService) Delete(ctx context.Context, employeeID string, strategy domain.Strategy) error {
	if strategy != "" && !strategy.Valid() {
		return domain.ErrInvalidStrategy
	}

	if err := s.enrollments.Delete(ctx, employeeID, strategy); err != nil {
		if errors.Is(err, domain.ErrEnrollmentNotFound) {
			return err
		}
		return fmt.Errorf("employee %s: delete enrollment: %w", employeeID, err)
	}

	if s.index != nil {
		s.index.Remove(employeeID, strategy)
	}

	s.logAudit(ctx, audit.Event{
		EventType:  audit.EventEnrollmentDelete,
		EmployeeID: employeeID,
		Strategy:   string(strategy),
		Success:    true,
	})
	s.notify(ctx, webhook.EventEmployeeRemoved, webhook.EnrollmentData{
		EmployeeID: employeeID,
		Strategy:   strategy,
	})

	return nil
}

// History returns the most recent verification decisions of an employee.
func (s *FaceService) History(ctx context.Context, employeeID string, limit int) ([]domain.Verification, error) {
	if s.verifications == nil {
		return []domain.Verification{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.verifications.ListByEmployee(ctx, employeeID, limit)
}

// resetAttempts clears the attempt counter after a match, when the limiter
// supports it.
func (s *FaceService) resetAttempts(ctx context.Context, employeeID string) {
	r, ok := s.limiter.(attemptResetter)
	if !ok {
		return
	}
	if err := r.Reset(ctx, attemptKey(employeeID)); err != nil {
		s.logger.WarnContext(ctx, "attempt counter not reset",
			slog.String("employee_id", employeeID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *FaceService) logAudit(ctx context.Context, event audit.Event) {
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
}

func (s *FaceService) notify(ctx context.Context, eventType string, data any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, eventType, data); err != nil {
		s.logger.WarnContext(ctx, "attendance notification failed",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func attemptKey(employeeID string) string { return "verify:" + employeeID }
