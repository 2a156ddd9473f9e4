package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// EnrollmentResponse represents the response for a successful enrollment
type EnrollmentResponse struct {
	EnrollmentID string `json:"enrollment_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	EmployeeID   string `json:"employee_id" example:"emp-0042"`
	Strategy     string `json:"strategy" example:"heuristic"`
	QualityScore int    `json:"quality_score" example:"74"`
	CreatedAt    string `json:"created_at" example:"2026-01-05T08:00:00Z"`
}

// VerificationResponse represents the response for a 1:1 verification
type VerificationResponse struct {
	VerificationID string  `json:"verification_id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	EmployeeID     string  `json:"employee_id" example:"emp-0042"`
	Matched        bool    `json:"matched" example:"true"`
	Distance       float64 `json:"distance" example:"0.041"`
	Threshold      float64 `json:"threshold" example:"0.12"`
	Strategy       string  `json:"strategy" example:"heuristic"`
	LatencyMs      int64   `json:"latency_ms" example:"18"`
}

// FingerprintData is the JSON form of a fingerprint
type FingerprintData struct {
	Strategy  string    `json:"strategy" example:"model"`
	Vector    []float64 `json:"vector"`
	CreatedAt string    `json:"created_at" example:"2026-01-05T08:00:00Z"`
}

// MatchRequest is the body of POST /v1/match
type MatchRequest struct {
	Enrolled  FingerprintData `json:"enrolled"`
	Candidate FingerprintData `json:"candidate"`
	Threshold float64         `json:"threshold" example:"0.6"`
}

// MatchResponse is the result of comparing two fingerprints
type MatchResponse struct {
	Matched   bool    `json:"matched" example:"true"`
	Distance  float64 `json:"distance" example:"0.3"`
	Threshold float64 `json:"threshold" example:"0.6"`
	Strategy  string  `json:"strategy" example:"model"`
	Timestamp string  `json:"timestamp" example:"2026-01-05T08:00:00Z"`
}

// IdentifyMatchData is one candidate of an identification
type IdentifyMatchData struct {
	EnrollmentID string  `json:"enrollment_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	EmployeeID   string  `json:"employee_id" example:"emp-0042"`
	Distance     float64 `json:"distance" example:"0.05"`
	Matched      bool    `json:"matched" example:"true"`
}

// IdentifyResponse represents the response for 1:N identification
type IdentifyResponse struct {
	Matches       []IdentifyMatchData `json:"matches"`
	Strategy      string              `json:"strategy" example:"heuristic"`
	Threshold     float64             `json:"threshold" example:"0.12"`
	TotalEnrolled int                 `json:"total_enrolled" example:"250"`
	LatencyMs     int64               `json:"latency_ms" example:"9"`
	SearchID      string              `json:"search_id" example:"1b4e28ba-2fa1-11d2-883f-0016d3cca427"`
	Timestamp     string              `json:"timestamp" example:"2026-01-05T08:00:00Z"`
}

// VerificationRecord is one stored verification decision
type VerificationRecord struct {
	ID         string  `json:"id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	EmployeeID string  `json:"employee_id" example:"emp-0042"`
	Matched    bool    `json:"matched" example:"false"`
	Distance   float64 `json:"distance" example:"0.18"`
	Threshold  float64 `json:"threshold" example:"0.12"`
	Strategy   string  `json:"strategy" example:"heuristic"`
	LatencyMs  int64   `json:"latency_ms" example:"15"`
	CreatedAt  string  `json:"created_at" example:"2026-01-05T08:00:00Z"`
}

// HistoryResponse lists the latest decisions of an employee
type HistoryResponse struct {
	EmployeeID    string               `json:"employee_id" example:"emp-0042"`
	Verifications []VerificationRecord `json:"verifications"`
}

// EmployeeStatsResponse aggregates the decisions of one employee
type EmployeeStatsResponse struct {
	EmployeeID    string  `json:"employee_id" example:"emp-0042"`
	Since         string  `json:"since" example:"2026-01-01T00:00:00Z"`
	Attempts      int     `json:"attempts" example:"40"`
	Matched       int     `json:"matched" example:"38"`
	Rejected      int     `json:"rejected" example:"2"`
	AvgDistance   float64 `json:"avg_distance" example:"0.06"`
	AvgLatencyMs  float64 `json:"avg_latency_ms" example:"21.5"`
	LastAttemptAt string  `json:"last_attempt_at,omitempty" example:"2026-01-30T17:59:00Z"`
	MatchRate     float64 `json:"match_rate" example:"0.95"`
}

// StrategySummaryData aggregates all employees for one strategy
type StrategySummaryData struct {
	Strategy     string  `json:"strategy" example:"heuristic"`
	Attempts     int     `json:"attempts" example:"1200"`
	Matched      int     `json:"matched" example:"1140"`
	Employees    int     `json:"employees" example:"250"`
	AvgDistance  float64 `json:"avg_distance" example:"0.07"`
	P95LatencyMs float64 `json:"p95_latency_ms" example:"48"`
}

// SummaryResponse lists the per strategy summaries
type SummaryResponse struct {
	Since      string                `json:"since" example:"2026-01-29T00:00:00Z"`
	Strategies []StrategySummaryData `json:"strategies"`
}

// SessionEvent is one JSON message sent on the capture websocket
type SessionEvent struct {
	Type      string `json:"type" example:"feedback"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp" example:"2026-01-05T08:00:00Z"`
}

// HealthResponse is returned by the health checks
type HealthResponse struct {
	Status   string `json:"status" example:"ready"`
	Version  string `json:"version,omitempty" example:"0.1.0"`
	Database string `json:"database,omitempty" example:"up"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

// EmptyResponse represents no content response (204)
type EmptyResponse struct{}

var errInternal = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")

var errRateLimited = response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded"}, "429", "Too Many Requests")

// NewSwagger creates and configures the Swagger documentation
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Facegate Attendance API",
		Version:     "v1.0.0",
		Description: "Face enrollment, verification and live capture sessions for the attendance portal",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// Enrollment endpoints

		// POST /v1/enrollments
		endpoint.New(
			endpoint.POST,
			"/enrollments",
			endpoint.WithTags("Enrollments"),
			endpoint.WithSummary("Enroll an employee face"),
			endpoint.WithDescription("Multipart form with employee_id, image and optional strategy (heuristic|model) and replace=true. Stores the fingerprint as the employee's reference for that strategy."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EnrollmentResponse{}, "201", "Employee enrolled"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "ENROLLMENT_EXISTS", Message: "Employee already has an enrolled face for this strategy"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in the image"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "LOW_QUALITY_IMAGE", Message: "Image quality too low for reliable recognition"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "MODEL_BACKEND_ERROR", Message: "Face model backend failed"}, "502", "Bad Gateway"),
				errRateLimited,
				errInternal,
			}),
		),

		// DELETE /v1/enrollments/{employee_id}
		endpoint.New(
			endpoint.DELETE,
			"/enrollments/{employee_id}",
			endpoint.WithTags("Enrollments"),
			endpoint.WithSummary("Delete an employee's face data"),
			endpoint.WithDescription("Removes the enrollment of one strategy, or of every strategy when none is given"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("employee_id", parameter.Path, parameter.WithDescription("Employee identifier")),
				parameter.StrParam("strategy", parameter.Query, parameter.WithDescription("heuristic or model; empty removes all")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Enrollment deleted"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "ENROLLMENT_NOT_FOUND", Message: "No enrolled face for this employee"}, "404", "Not Found"),
				errInternal,
			}),
		),

		// Matching endpoints

		// POST /v1/verifications
		endpoint.New(
			endpoint.POST,
			"/verifications",
			endpoint.WithTags("Matching"),
			endpoint.WithSummary("Verify an employee 1:1"),
			endpoint.WithDescription("Multipart form with employee_id, image, optional strategy and threshold. The decision is recorded and sent to the attendance webhook."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(VerificationResponse{}, "200", "Verification completed"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "ENROLLMENT_NOT_FOUND", Message: "No enrolled face for this employee"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in the image"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "INVALID_THRESHOLD", Message: "Threshold must be a positive number"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "TOO_MANY_ATTEMPTS", Message: "Too many verification attempts, try again later"}, "429", "Too Many Requests"),
				errInternal,
			}),
		),

		// POST /v1/match
		endpoint.New(
			endpoint.POST,
			"/match",
			endpoint.WithTags("Matching"),
			endpoint.WithSummary("Compare two fingerprints"),
			endpoint.WithDescription(`JSON body {"enrolled": fingerprint, "candidate": fingerprint, "threshold": number}. threshold is optional and must be positive when given. Nothing is stored.`),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(MatchResponse{}, "200", "Comparison completed"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request"}, "400", "Bad Request"),
				response.New(ErrorResponse{Code: "STRATEGY_MISMATCH", Message: "Fingerprints were produced by different strategies"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "INVALID_FINGERPRINT", Message: "Fingerprint vector is empty or malformed"}, "422", "Unprocessable Entity"),
				errInternal,
			}),
		),

		// POST /v1/identify
		endpoint.New(
			endpoint.POST,
			"/identify",
			endpoint.WithTags("Matching"),
			endpoint.WithSummary("Identify an employee 1:N"),
			endpoint.WithDescription("Multipart form with image, optional strategy and threshold. Returns the nearest enrolled employees, closest first."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.IntParam("max_results", parameter.Query, parameter.WithDescription("Maximum number of candidates (1-50, default: 5)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(IdentifyResponse{}, "200", "Identification completed"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "INDEX_EMPTY", Message: "No enrolled faces available for identification"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in the image"}, "422", "Unprocessable Entity"),
				errRateLimited,
				errInternal,
			}),
		),

		// Employee endpoints

		// GET /v1/employees/{employee_id}/verifications
		endpoint.New(
			endpoint.GET,
			"/employees/{employee_id}/verifications",
			endpoint.WithTags("Employees"),
			endpoint.WithSummary("List recent verifications"),
			endpoint.WithDescription("Latest verification decisions of an employee, newest first"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("employee_id", parameter.Path, parameter.WithDescription("Employee identifier")),
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Maximum number of records (default: 20, max: 100)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HistoryResponse{}, "200", "History retrieved"),
			}),
			endpoint.WithErrors([]response.Response{errInternal}),
		),

		// GET /v1/employees/{employee_id}/stats
		endpoint.New(
			endpoint.GET,
			"/employees/{employee_id}/stats",
			endpoint.WithTags("Employees"),
			endpoint.WithSummary("Verification statistics of an employee"),
			endpoint.WithDescription("Aggregated attempts, matches and latency. Available when the service runs on Postgres."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("employee_id", parameter.Path, parameter.WithDescription("Employee identifier")),
				parameter.StrParam("period", parameter.Query, parameter.WithDescription("Look-back window as a Go duration (default: 720h)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmployeeStatsResponse{}, "200", "Statistics retrieved"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "period must be a positive duration like 24h"}, "422", "Unprocessable Entity"),
				errInternal,
			}),
		),

		// GET /v1/stats
		endpoint.New(
			endpoint.GET,
			"/stats",
			endpoint.WithTags("Employees"),
			endpoint.WithSummary("Verification summary per strategy"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("period", parameter.Query, parameter.WithDescription("Look-back window as a Go duration (default: 720h)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SummaryResponse{}, "200", "Summary retrieved"),
			}),
			endpoint.WithErrors([]response.Response{errInternal}),
		),

		// Live sessions

		// GET /v1/sessions/ws
		endpoint.New(
			endpoint.GET,
			"/sessions/ws",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Live capture session (websocket)"),
			endpoint.WithDescription(`Upgrade to a websocket. The client streams camera frames as binary messages and may send {"action":"capture"} or {"action":"cancel"}. The server sends feedback, captured, verification, enrollment and error events, then closes.`),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("employee_id", parameter.Query, parameter.WithDescription("Employee identifier, required unless mode=capture")),
				parameter.StrParam("mode", parameter.Query, parameter.WithDescription("verify (default), enroll or capture")),
				parameter.StrParam("strategy", parameter.Query, parameter.WithDescription("heuristic or model")),
				parameter.StrParam("threshold", parameter.Query, parameter.WithDescription("Decision threshold for verify mode")),
				parameter.StrParam("replace", parameter.Query, parameter.WithDescription("Overwrite an existing enrollment in enroll mode")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionEvent{}, "101", "Switching Protocols"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "UPGRADE_REQUIRED", Message: "Upgrade Required"}, "426", "Upgrade Required"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
