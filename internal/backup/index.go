package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// indexFileName is the sidecar index colocated with the backup directory.
const indexFileName = "backups.json"

// Entry describes one archived snapshot. Entries are content-addressed:
// no two live entries share a hash while both files exist.
type Entry struct {
	Path      string    `json:"path"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int64     `json:"size"`
}

// Index is the sidecar file contents: all known backups newest first plus
// the last time the index was reconciled against the directory.
type Index struct {
	Backups  []Entry   `json:"backups"`
	LastSync time.Time `json:"lastSync"`
}

// IndexPersistError reports a failed sidecar rewrite. It is more severe
// than a file-copy failure: a diverged index corrupts future dedup and
// listing behavior.
type IndexPersistError struct {
	Path string
	Err  error
}

func (e *IndexPersistError) Error() string {
	return fmt.Sprintf("persist backup index %s: %v", e.Path, e.Err)
}

func (e *IndexPersistError) Unwrap() error { return e.Err }

// loadIndex reads the sidecar. A missing file yields an empty index; a
// malformed one is discarded (the next reconciliation rebuilds it from the
// directory contents).
func loadIndex(path string) *Index {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Index{}
	}
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("read backup index failed, starting empty")
		return &Index{}
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		log.WithError(err).WithField("path", path).Warn("backup index malformed, starting empty")
		return &Index{}
	}
	return &idx
}

// persistIndex atomically rewrites the sidecar: write to a temp file in
// the same directory, then rename over the old one.
func persistIndex(path string, idx *Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return &IndexPersistError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), indexFileName+".tmp-*")
	if err != nil {
		return &IndexPersistError{Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &IndexPersistError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &IndexPersistError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &IndexPersistError{Path: path, Err: err}
	}
	return nil
}
