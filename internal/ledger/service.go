// Package ledger computes project cost summaries on top of the live
// store. It is the core's built-in business-logic consumer:
// every query goes through the connection manager's current handle, and
// its cache is dropped when the restore coordinator fires Refresh.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sitebooks-core/pkg/db"
)

// Summary aggregates the money picture of one project.
type Summary struct {
	ProjectID      string  `json:"project_id"`
	LaborCost      float64 `json:"labor_cost"`
	MaterialCost   float64 `json:"material_cost"`
	PaymentsIn     float64 `json:"payments_in"`
	PaymentsOut    float64 `json:"payments_out"`
	TotalCost      float64 `json:"total_cost"`
	OpenReceivable float64 `json:"open_receivable"`
}

type cached struct {
	summary Summary
	at      time.Time
}

// Service caches summaries with a short TTL; full recomputation scans
// work logs, materials and payments.
type Service struct {
	mgr *db.Manager
	ttl time.Duration

	mu    sync.RWMutex
	cache map[string]cached
}

// NewService creates a summary service over the connection manager.
func NewService(mgr *db.Manager, ttl time.Duration) *Service {
	return &Service{mgr: mgr, ttl: ttl, cache: make(map[string]cached)}
}

// Refresh drops every cached summary. Called by the restore coordinator
// after the store file was replaced.
func (s *Service) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cached)
}

// ProjectSummary returns the cost summary for one project, recomputing it
// when the cached value expired.
func (s *Service) ProjectSummary(ctx context.Context, projectID string) (Summary, error) {
	if projectID == "" {
		return Summary{}, db.ErrProjectIDRequired
	}

	s.mu.RLock()
	c, ok := s.cache[projectID]
	s.mu.RUnlock()
	if ok && time.Since(c.at) < s.ttl {
		return c.summary, nil
	}

	summary, err := s.compute(ctx, projectID)
	if err != nil {
		return Summary{}, err
	}

	s.mu.Lock()
	s.cache[projectID] = cached{summary: summary, at: time.Now()}
	s.mu.Unlock()
	return summary, nil
}

func (s *Service) compute(ctx context.Context, projectID string) (Summary, error) {
	h, err := s.mgr.Current()
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{ProjectID: projectID}

	err = h.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(w.hours * COALESCE(e.hourly_rate, 0)), 0)
		FROM work_logs w
		LEFT JOIN employees e ON e.id = w.employee_id
		WHERE w.project_id = ?
	`, projectID).Scan(&summary.LaborCost)
	if err != nil {
		return Summary{}, fmt.Errorf("labor cost: %w", err)
	}

	err = h.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity * COALESCE(unit_price, 0)), 0)
		FROM materials
		WHERE project_id = ?
	`, projectID).Scan(&summary.MaterialCost)
	if err != nil {
		return Summary{}, fmt.Errorf("material cost: %w", err)
	}

	err = h.DB.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'in' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'out' THEN amount ELSE 0 END), 0)
		FROM payments
		WHERE project_id = ?
	`, projectID).Scan(&summary.PaymentsIn, &summary.PaymentsOut)
	if err != nil {
		return Summary{}, fmt.Errorf("payments: %w", err)
	}

	summary.TotalCost = summary.LaborCost + summary.MaterialCost + summary.PaymentsOut
	summary.OpenReceivable = summary.TotalCost - summary.PaymentsIn
	return summary, nil
}
