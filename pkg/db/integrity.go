package db

import (
	"database/sql"
	"fmt"
	"os"
	"time"
)

// Validate checks that the file at path is a well-formed, readable store:
// it exists, is non-empty, opens read-only, and lists at least one object
// in sqlite_master. A missing file returns ErrStoreMissing; every other
// failure returns a *CorruptError with the reason.
func Validate(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrStoreMissing
	}
	if err != nil {
		return &CorruptError{Path: path, Reason: fmt.Sprintf("stat failed: %v", err)}
	}
	if info.IsDir() {
		return &CorruptError{Path: path, Reason: "path is a directory"}
	}
	if info.Size() == 0 {
		return &CorruptError{Path: path, Reason: "file is empty"}
	}

	sqlDB, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return &CorruptError{Path: path, Reason: fmt.Sprintf("open failed: %v", err)}
	}
	defer sqlDB.Close()

	var objects int
	err = sqlDB.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'index', 'view')`).Scan(&objects)
	if err != nil {
		return &CorruptError{Path: path, Reason: fmt.Sprintf("structural query failed: %v", err)}
	}
	if objects == 0 {
		return &CorruptError{Path: path, Reason: "store contains no objects"}
	}
	return nil
}

// Quarantine renames a suspect file to <name>.corrupted.<unixMillis> so it
// stays available for forensic recovery. Returns the quarantine path.
func Quarantine(path string) (string, error) {
	target := fmt.Sprintf("%s.corrupted.%d", path, time.Now().UnixMilli())
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", path, err)
	}
	removeSidecars(path)
	return target, nil
}
