package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebooks-core/pkg/db"
)

// makeStoreFile creates a valid store file with n projects so different
// calls produce different content bytes.
func makeStoreFile(t *testing.T, path string, n int) {
	t.Helper()
	mgr := db.NewManager(path, 16)
	defer mgr.Close()

	q := db.NewQueries(mgr)
	for i := 0; i < n; i++ {
		err := q.CreateProject(context.Background(), db.Project{
			ID:   filepath.Base(path) + "-p" + string(rune('a'+i)),
			Name: "Project",
		})
		require.NoError(t, err)
	}
	require.NoError(t, mgr.Checkpoint())
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "live", "books.db")
	makeStoreFile(t, src, 1)

	store, err := NewStore(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	return store, src
}

func TestArchive_CopiesAndIndexes(t *testing.T) {
	store, src := newTestStore(t)

	entry, deduped, err := store.Archive(src, "")
	require.NoError(t, err)
	assert.False(t, deduped)
	assert.FileExists(t, entry.Path)
	assert.NotEmpty(t, entry.Hash)
	assert.Greater(t, entry.Size, int64(0))

	// Sidecar was persisted.
	assert.FileExists(t, filepath.Join(store.Dir(), indexFileName))
}

func TestArchive_DedupsIdenticalContent(t *testing.T) {
	store, src := newTestStore(t)

	first, deduped, err := store.Archive(src, "")
	require.NoError(t, err)
	require.False(t, deduped)

	second, deduped, err := store.Archive(src, "")
	require.NoError(t, err)
	assert.True(t, deduped)
	assert.Equal(t, first.Path, second.Path)

	entries, err := store.List()
	require.NoError(t, err)

	count := 0
	for _, e := range entries {
		if e.Hash == first.Hash {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one entry per content hash")
}

func TestArchive_RejectsInvalidSource(t *testing.T) {
	store, _ := newTestStore(t)

	bad := filepath.Join(t.TempDir(), "bad.db")
	require.NoError(t, os.WriteFile(bad, []byte("not a database"), 0o644))

	_, _, err := store.Archive(bad, "")
	require.ErrorIs(t, err, ErrInvalidSource)

	entries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestArchive_CollisionSafeNaming(t *testing.T) {
	dir := t.TempDir()
	srcA := filepath.Join(dir, "a", "books.db")
	srcB := filepath.Join(dir, "b", "books.db")
	makeStoreFile(t, srcA, 1)
	makeStoreFile(t, srcB, 2)

	store, err := NewStore(filepath.Join(dir, "backups"))
	require.NoError(t, err)

	first, _, err := store.Archive(srcA, "books.db")
	require.NoError(t, err)
	second, _, err := store.Archive(srcB, "books.db")
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
	assert.FileExists(t, first.Path)
	assert.FileExists(t, second.Path)
}

func TestList_AdoptsExternallyAddedFile(t *testing.T) {
	store, src := newTestStore(t)

	// Drop a file into the backup directory behind the store's back.
	extra := filepath.Join(store.Dir(), "imported.db")
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(extra, data, 0o644))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, extra, entries[0].Path)
	assert.NotEmpty(t, entries[0].Hash, "adopted entry hash computed on first use")
}

func TestList_DropsStaleEntries(t *testing.T) {
	store, src := newTestStore(t)

	entry, _, err := store.Archive(src, "")
	require.NoError(t, err)

	// Delete the backup file directly from disk.
	require.NoError(t, os.Remove(entry.Path))

	entries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestList_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "backups"))
	require.NoError(t, err)

	srcA := filepath.Join(dir, "a", "books.db")
	srcB := filepath.Join(dir, "b", "books.db")
	makeStoreFile(t, srcA, 1)
	makeStoreFile(t, srcB, 2)

	older, _, err := store.Archive(srcA, "older.db")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	newer, _, err := store.Archive(srcB, "newer.db")
	require.NoError(t, err)

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, newer.Path, entries[0].Path)
	assert.Equal(t, older.Path, entries[1].Path)
}

func TestDelete(t *testing.T) {
	store, src := newTestStore(t)

	entry, _, err := store.Archive(src, "")
	require.NoError(t, err)

	removed, err := store.Delete(entry.Path)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoFileExists(t, entry.Path)

	// Second delete finds no entry.
	removed, err = store.Delete(entry.Path)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCleanup_RemovesOldBackups(t *testing.T) {
	store, src := newTestStore(t)

	entry, _, err := store.Archive(src, "")
	require.NoError(t, err)

	// Age the entry past the retention threshold.
	store.mu.Lock()
	store.index.Backups[0].CreatedAt = time.Now().AddDate(0, 0, -120)
	store.mu.Unlock()

	result, err := store.Cleanup(90)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, entry.Size, result.FreedBytes)
	assert.NoFileExists(t, entry.Path)

	entries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanup_KeepsRecentBackups(t *testing.T) {
	store, src := newTestStore(t)

	entry, _, err := store.Archive(src, "")
	require.NoError(t, err)

	result, err := store.Cleanup(90)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)
	assert.FileExists(t, entry.Path)
}
