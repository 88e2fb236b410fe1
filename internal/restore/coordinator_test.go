package restore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebooks-core/internal/backup"
	"sitebooks-core/internal/events"
	"sitebooks-core/pkg/db"
)

type countingRefresher struct {
	calls int
}

func (c *countingRefresher) Refresh() { c.calls++ }

func setup(t *testing.T) (*Coordinator, *db.Manager, *db.Queries, string) {
	t.Helper()
	dir := t.TempDir()
	livePath := filepath.Join(dir, "live", "books.db")

	mgr := db.NewManager(livePath, 16)
	t.Cleanup(mgr.Close)

	backups, err := backup.NewStore(filepath.Join(dir, "backups"))
	require.NoError(t, err)

	c := NewCoordinator(mgr, backups, events.NewBus())
	return c, mgr, db.NewQueries(mgr), livePath
}

func TestRestore_InvalidCandidateLeavesStoreUntouched(t *testing.T) {
	c, mgr, q, livePath := setup(t)
	ctx := context.Background()

	require.NoError(t, q.CreateProject(ctx, db.Project{ID: "p1", Name: "Depot"}))
	require.NoError(t, mgr.Checkpoint())

	before, err := os.Stat(livePath)
	require.NoError(t, err)

	bad := filepath.Join(t.TempDir(), "bad.db")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))

	err = c.Restore(bad)
	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, "validate candidate", pre.Step)

	after, err := os.Stat(livePath)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime(), "live file must be untouched")
	assert.Equal(t, before.Size(), after.Size())

	// Data still readable.
	p, err := q.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Depot", p.Name)
}

func TestRestore_MissingCandidateIsPrecondition(t *testing.T) {
	c, _, _, _ := setup(t)

	err := c.Restore(filepath.Join(t.TempDir(), "nope.db"))
	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
}

func TestRestore_SwapsDataAndRefreshes(t *testing.T) {
	c, mgr, q, _ := setup(t)
	ctx := context.Background()

	// State A: one project, snapshot it.
	require.NoError(t, q.CreateProject(ctx, db.Project{ID: "p1", Name: "Original"}))
	require.NoError(t, mgr.Checkpoint())
	snapshot, _, err := c.Backups.Archive(mgr.Path(), "state-a.db")
	require.NoError(t, err)

	// State B: a second project exists.
	require.NoError(t, q.CreateProject(ctx, db.Project{ID: "p2", Name: "AddedLater"}))

	refresher := &countingRefresher{}
	c.Register(refresher)

	stream, unsub := c.Bus.Subscribe(events.EventRestoreCompleted, 1)
	defer unsub()

	require.NoError(t, c.Restore(snapshot.Path))

	// The first query after restore sees state A, not state B.
	_, err = q.GetProject(ctx, "p1")
	require.NoError(t, err)
	_, err = q.GetProject(ctx, "p2")
	assert.ErrorIs(t, err, db.ErrNotFound, "post-snapshot row must be gone")

	assert.Equal(t, 1, refresher.calls, "registered module refreshed exactly once")

	select {
	case msg := <-stream:
		payload, ok := msg.(events.RestoreCompleted)
		require.True(t, ok)
		assert.Equal(t, snapshot.Path, payload.CandidatePath)
	default:
		t.Error("restore event not published")
	}
}

func TestRestore_TakesSafetySnapshot(t *testing.T) {
	c, mgr, q, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, q.CreateProject(ctx, db.Project{ID: "p1", Name: "Depot"}))
	require.NoError(t, mgr.Checkpoint())
	snapshot, _, err := c.Backups.Archive(mgr.Path(), "candidate.db")
	require.NoError(t, err)

	// Mutate so the live store differs from the candidate.
	require.NoError(t, q.CreateProject(ctx, db.Project{ID: "p2", Name: "Other"}))

	require.NoError(t, c.Restore(snapshot.Path))

	// The pre-restore state was archived: two distinct contents exist.
	entries, err := c.Backups.List()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2, "candidate plus safety snapshot")
}
