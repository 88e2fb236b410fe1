// Package backup keeps a content-addressable archive of store snapshots
// with a JSON sidecar index. It operates purely on file copies and never
// touches the live database connection.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"sitebooks-core/pkg/db"
)

// ErrInvalidSource reports that an archive candidate failed the integrity
// check and was not copied.
var ErrInvalidSource = errors.New("backup source failed validation")

// Store is the content-addressable backup archive. All operations are
// serialized: every index mutation is a read-modify-write-persist sequence
// with no overlap.
type Store struct {
	mu        sync.Mutex
	dir       string
	indexPath string
	index     *Index
}

// CleanupResult summarizes an age-based cleanup pass.
type CleanupResult struct {
	Deleted    int   `json:"deleted"`
	FreedBytes int64 `json:"freed_bytes"`
}

// NewStore opens (and creates if needed) the archive directory and loads
// the sidecar index.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	indexPath := filepath.Join(dir, indexFileName)
	return &Store{
		dir:       dir,
		indexPath: indexPath,
		index:     loadIndex(indexPath),
	}, nil
}

// Dir returns the archive directory.
func (s *Store) Dir() string {
	return s.dir
}

// Archive validates and snapshots the file at src into the archive. When a
// backup with identical content already exists its entry is returned
// unchanged and deduped is true; no bytes are copied. name overrides the
// target file name (a numeric suffix resolves collisions).
func (s *Store) Archive(src, name string) (entry *Entry, deduped bool, err error) {
	if err := db.Validate(src); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	hash, size, err := hashFile(src)
	if err != nil {
		return nil, false, fmt.Errorf("hash %s: %w", src, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Dedup short-circuit: identical content already archived and still
	// on disk.
	for i := range s.index.Backups {
		e := &s.index.Backups[i]
		if e.Hash == hash && fileExists(e.Path) {
			log.WithFields(log.Fields{"hash": hash, "existing": e.Path}).
				Info("backup content unchanged, skipping copy")
			out := *e
			return &out, true, nil
		}
	}

	dest, err := s.destPath(src, name)
	if err != nil {
		return nil, false, err
	}
	if err := copyFile(src, dest); err != nil {
		return nil, false, fmt.Errorf("copy %s to %s: %w", src, dest, err)
	}

	// Any other entry sharing this hash points at a missing or duplicate
	// file; only the just-created snapshot survives.
	s.removeByHashLocked(hash, dest)

	now := time.Now()
	e := Entry{Path: dest, Hash: hash, CreatedAt: now, Size: size}
	s.index.Backups = append([]Entry{e}, s.index.Backups...)
	s.index.LastSync = now

	if err := persistIndex(s.indexPath, s.index); err != nil {
		return nil, false, err
	}

	log.WithFields(log.Fields{"path": dest, "size": size}).Info("backup created")
	out := e
	return &out, false, nil
}

// List reconciles the index against the directory contents and returns
// the entries newest first. Entries whose file vanished are dropped; .db
// files added behind the store's back are adopted; unknown hashes are
// computed; content duplicates are resolved in favor of the oldest entry.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reconcileLocked(); err != nil {
		return nil, err
	}

	out := make([]Entry, len(s.index.Backups))
	copy(out, s.index.Backups)
	return out, nil
}

// Delete removes the backup file (if present) and its index entry.
// Reports whether an index entry was actually removed.
func (s *Store) Delete(path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("delete backup %s: %w", path, err)
	}

	removed := false
	kept := s.index.Backups[:0]
	for _, e := range s.index.Backups {
		if e.Path == path {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	s.index.Backups = kept

	if removed {
		if err := persistIndex(s.indexPath, s.index); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Cleanup deletes backups older than maxAgeDays. Best-effort: an entry
// whose file fails to delete stays in the index so orphaned space is not
// lost track of.
func (s *Store) Cleanup(maxAgeDays int) (CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	var result CleanupResult

	kept := s.index.Backups[:0]
	for _, e := range s.index.Backups {
		if !e.CreatedAt.Before(cutoff) {
			kept = append(kept, e)
			continue
		}
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("path", e.Path).Warn("cleanup could not delete backup")
			kept = append(kept, e)
			continue
		}
		result.Deleted++
		result.FreedBytes += e.Size
	}
	s.index.Backups = kept

	if result.Deleted > 0 {
		if err := persistIndex(s.indexPath, s.index); err != nil {
			return result, err
		}
	}
	return result, nil
}

// reconcileLocked brings the in-memory index in line with the directory
// and persists the result when anything changed.
func (s *Store) reconcileLocked() error {
	changed := false

	// Drop entries whose file no longer exists.
	kept := s.index.Backups[:0]
	for _, e := range s.index.Backups {
		if fileExists(e.Path) {
			kept = append(kept, e)
		} else {
			changed = true
		}
	}
	s.index.Backups = kept

	// Adopt .db files placed in the directory by external tools.
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read backup directory: %w", err)
	}
	known := make(map[string]bool, len(s.index.Backups))
	for _, e := range s.index.Backups {
		known[e.Path] = true
	}
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".db") {
			continue
		}
		full := filepath.Join(s.dir, de.Name())
		if known[full] {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		s.index.Backups = append(s.index.Backups, Entry{
			Path:      full,
			CreatedAt: info.ModTime(),
			Size:      info.Size(),
		})
		changed = true
		log.WithField("path", full).Info("adopted externally added backup file")
	}

	// Fill unknown hashes (adopted entries carry none until first use).
	for i := range s.index.Backups {
		e := &s.index.Backups[i]
		if e.Hash != "" {
			continue
		}
		hash, size, err := hashFile(e.Path)
		if err != nil {
			log.WithError(err).WithField("path", e.Path).Warn("hashing adopted backup failed")
			continue
		}
		e.Hash = hash
		e.Size = size
		changed = true
	}

	if s.dedupeLocked() {
		changed = true
	}

	sort.SliceStable(s.index.Backups, func(i, j int) bool {
		return s.index.Backups[i].CreatedAt.After(s.index.Backups[j].CreatedAt)
	})

	s.index.LastSync = time.Now()
	if changed {
		return persistIndex(s.indexPath, s.index)
	}
	return nil
}

// dedupeLocked enforces the content-address invariant: for each hash keep
// only the oldest entry, deleting newer duplicate files and rows.
func (s *Store) dedupeLocked() bool {
	oldest := make(map[string]int)
	for i, e := range s.index.Backups {
		if e.Hash == "" {
			continue
		}
		j, seen := oldest[e.Hash]
		if !seen || e.CreatedAt.Before(s.index.Backups[j].CreatedAt) {
			oldest[e.Hash] = i
		}
	}

	changed := false
	kept := s.index.Backups[:0]
	for i, e := range s.index.Backups {
		if e.Hash != "" && oldest[e.Hash] != i {
			if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
				log.WithError(err).WithField("path", e.Path).Warn("could not delete duplicate backup")
			}
			changed = true
			continue
		}
		kept = append(kept, e)
	}
	s.index.Backups = kept
	return changed
}

// removeByHashLocked drops every entry with the given hash except the one
// at keepPath, deleting its file when still present.
func (s *Store) removeByHashLocked(hash, keepPath string) {
	kept := s.index.Backups[:0]
	for _, e := range s.index.Backups {
		if e.Hash == hash && e.Path != keepPath {
			if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
				log.WithError(err).WithField("path", e.Path).Warn("could not delete superseded backup")
			}
			continue
		}
		kept = append(kept, e)
	}
	s.index.Backups = kept
}

// destPath picks a collision-safe target path inside the archive
// directory. name defaults to "<stem>-<timestamp>.db" derived from src.
func (s *Store) destPath(src, name string) (string, error) {
	if name == "" {
		base := filepath.Base(src)
		ext := filepath.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		if ext == "" {
			ext = ".db"
		}
		name = fmt.Sprintf("%s-%s%s", stem, time.Now().Format("20060102-150405"), ext)
	}

	candidate := filepath.Join(s.dir, name)
	if !fileExists(candidate) {
		return candidate, nil
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; i < 1000; i++ {
		candidate = filepath.Join(s.dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
		if !fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free backup name for %s", name)
}

// hashFile computes a streaming SHA-256 over the file so archiving scales
// to large stores without buffering them in memory.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}
	return dstFile.Sync()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
