package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/metrics"
)

const defaultStatsPeriod = 30 * 24 * time.Hour

// StatsReader reads aggregated verification statistics.
type StatsReader interface {
	EmployeeStats(ctx context.Context, employeeID string, since time.Time) (*metrics.EmployeeStats, error)
	Summary(ctx context.Context, since time.Time) ([]metrics.StrategySummary, error)
}

// StatsHandler serves the verification statistics endpoints.
type StatsHandler struct {
	stats StatsReader
	now   func() time.Time
}

func NewStatsHandler(stats StatsReader) *StatsHandler {
	return &StatsHandler{stats: stats, now: time.Now}
}

type EmployeeStatsResponse struct {
	metrics.EmployeeStats
	MatchRate float64 `json:"match_rate"`
}

type SummaryResponse struct {
	Since      time.Time                 `json:"since"`
	Strategies []metrics.StrategySummary `json:"strategies"`
}

// Employee GET /v1/employees/:employee_id/stats?period=720h
func (h *StatsHandler) Employee(c *fiber.Ctx) error {
	employeeID := strings.TrimSpace(c.Params("employee_id"))
	if employeeID == "" {
		return domain.ErrValidationFailed.WithError(errors.New("employee_id is required"))
	}
	since, err := h.since(c)
	if err != nil {
		return err
	}

	stats, err := h.stats.EmployeeStats(c.UserContext(), employeeID, since)
	if err != nil {
		return err
	}
	return c.JSON(EmployeeStatsResponse{EmployeeStats: *stats, MatchRate: stats.MatchRate()})
}

// Summary GET /v1/stats?period=24h
func (h *StatsHandler) Summary(c *fiber.Ctx) error {
	since, err := h.since(c)
	if err != nil {
		return err
	}

	rows, err := h.stats.Summary(c.UserContext(), since)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []metrics.StrategySummary{}
	}
	return c.JSON(SummaryResponse{Since: since, Strategies: rows})
}

func (h *StatsHandler) since(c *fiber.Ctx) (time.Time, error) {
	period := defaultStatsPeriod
	if raw := c.Query("period"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return time.Time{}, domain.ErrValidationFailed.WithError(errors.New("period must be a positive duration like 24h"))
		}
		period = d
	}
	return h.now().Add(-period).UTC(), nil
}
