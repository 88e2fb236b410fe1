package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebooks-core/pkg/db"
)

func seedProject(t *testing.T) (*db.Manager, *db.Queries) {
	t.Helper()
	mgr := db.NewManager(filepath.Join(t.TempDir(), "books.db"), 16)
	t.Cleanup(mgr.Close)
	q := db.NewQueries(mgr)
	ctx := context.Background()

	require.NoError(t, q.CreateProject(ctx, db.Project{ID: "p1", Name: "Warehouse"}))
	require.NoError(t, q.CreateEmployee(ctx, db.Employee{ID: "e1", Name: "Mason", HourlyRate: 40}))
	require.NoError(t, q.CreateWorkLog(ctx, db.WorkLog{
		ID: "w1", ProjectID: "p1", EmployeeID: "e1", WorkDate: "2026-03-02", Hours: 8,
	}))
	require.NoError(t, q.CreateMaterial(ctx, db.Material{
		ID: "m1", ProjectID: "p1", Name: "Cement", Quantity: 10, Unit: "bag", UnitPrice: 12.5,
	}))
	require.NoError(t, q.CreatePayment(ctx, db.Payment{
		ID: "pay1", ProjectID: "p1", Amount: 300, Direction: "in", PaidAt: "2026-03-03",
	}))
	require.NoError(t, q.CreatePayment(ctx, db.Payment{
		ID: "pay2", ProjectID: "p1", Amount: 50, Direction: "out", PaidAt: "2026-03-04",
	}))
	return mgr, q
}

func TestProjectSummary_Computes(t *testing.T) {
	mgr, _ := seedProject(t)
	svc := NewService(mgr, time.Minute)

	s, err := svc.ProjectSummary(context.Background(), "p1")
	require.NoError(t, err)

	assert.InDelta(t, 320, s.LaborCost, 0.001)    // 8h * 40
	assert.InDelta(t, 125, s.MaterialCost, 0.001) // 10 * 12.5
	assert.InDelta(t, 300, s.PaymentsIn, 0.001)
	assert.InDelta(t, 50, s.PaymentsOut, 0.001)
	assert.InDelta(t, 495, s.TotalCost, 0.001)
	assert.InDelta(t, 195, s.OpenReceivable, 0.001)
}

func TestProjectSummary_RequiresProjectID(t *testing.T) {
	mgr, _ := seedProject(t)
	svc := NewService(mgr, time.Minute)

	_, err := svc.ProjectSummary(context.Background(), "")
	assert.ErrorIs(t, err, db.ErrProjectIDRequired)
}

func TestProjectSummary_CachesWithinTTL(t *testing.T) {
	mgr, q := seedProject(t)
	svc := NewService(mgr, time.Minute)
	ctx := context.Background()

	first, err := svc.ProjectSummary(ctx, "p1")
	require.NoError(t, err)

	// New data lands while the cached value is still fresh.
	require.NoError(t, q.CreatePayment(ctx, db.Payment{
		ID: "pay3", ProjectID: "p1", Amount: 999, Direction: "out", PaidAt: "2026-03-05",
	}))

	second, err := svc.ProjectSummary(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, first, second, "cached summary served within TTL")
}

func TestRefresh_DropsCache(t *testing.T) {
	mgr, q := seedProject(t)
	svc := NewService(mgr, time.Minute)
	ctx := context.Background()

	_, err := svc.ProjectSummary(ctx, "p1")
	require.NoError(t, err)

	require.NoError(t, q.CreatePayment(ctx, db.Payment{
		ID: "pay3", ProjectID: "p1", Amount: 999, Direction: "out", PaidAt: "2026-03-05",
	}))

	svc.Refresh()

	s, err := svc.ProjectSummary(ctx, "p1")
	require.NoError(t, err)
	assert.InDelta(t, 1049, s.PaymentsOut, 0.001, "recomputed after refresh")
}

func TestProjectSummary_EmptyProject(t *testing.T) {
	mgr, q := seedProject(t)
	svc := NewService(mgr, time.Minute)
	ctx := context.Background()

	require.NoError(t, q.CreateProject(ctx, db.Project{ID: "p2", Name: "Empty"}))

	s, err := svc.ProjectSummary(ctx, "p2")
	require.NoError(t, err)
	assert.Zero(t, s.TotalCost)
	assert.Zero(t, s.OpenReceivable)
}
