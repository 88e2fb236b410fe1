// Package restore orchestrates replacing the live store with a validated
// backup: candidate check, safety snapshot, file swap, reconnect signal,
// and dependent-module refresh.
package restore

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"sitebooks-core/internal/backup"
	"sitebooks-core/internal/events"
	"sitebooks-core/pkg/db"
)

// Refresher is implemented by business-logic modules that cache anything
// derived from the store. Refresh is called after a restore so no stale
// data survives the swap. A module that caches nothing may no-op.
type Refresher interface {
	Refresh()
}

// PreconditionError reports that a restore step failed before the live
// file was mutated. The store is untouched.
type PreconditionError struct {
	Step string
	Err  error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("restore precondition failed (%s): %v", e.Step, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// Coordinator runs the restore flow. Each step is a hard precondition for
// the next.
type Coordinator struct {
	Manager *db.Manager
	Backups *backup.Store
	Bus     *events.Bus

	refreshers []Refresher
}

// NewCoordinator wires a coordinator over the connection manager and the
// backup store.
func NewCoordinator(mgr *db.Manager, backups *backup.Store, bus *events.Bus) *Coordinator {
	return &Coordinator{Manager: mgr, Backups: backups, Bus: bus}
}

// Register adds a business-logic module to be refreshed after restores.
func (c *Coordinator) Register(r Refresher) {
	c.refreshers = append(c.refreshers, r)
}

// Restore replaces the live store with the file at candidatePath.
//
// Steps: (1) validate the candidate; (2) archive the current store as a
// safety snapshot; (3) copy the candidate over the live path; (4) signal
// the connection manager; (5) refresh dependent modules. Any failure
// before step 3 aborts with no mutation. A failure at step 3 is reported
// but the safety snapshot from step 2 remains available for manual
// recovery.
func (c *Coordinator) Restore(candidatePath string) error {
	livePath := c.Manager.Path()

	// (1) Candidate must be a readable, well-formed store.
	if err := db.Validate(candidatePath); err != nil {
		return &PreconditionError{Step: "validate candidate", Err: err}
	}

	// (2) Safety snapshot of the current store. The WAL is checkpointed
	// first so the file copy holds all committed data. A brand-new install
	// without a store file has nothing to snapshot.
	snapshotPath := ""
	if _, err := os.Stat(livePath); err == nil {
		if err := c.Manager.Checkpoint(); err != nil {
			return &PreconditionError{Step: "checkpoint live store", Err: err}
		}
		entry, deduped, err := c.Backups.Archive(livePath, "")
		if err != nil {
			return &PreconditionError{Step: "snapshot live store", Err: err}
		}
		snapshotPath = entry.Path
		log.WithFields(log.Fields{"snapshot": entry.Path, "deduped": deduped}).
			Info("pre-restore safety snapshot taken")
	}

	// (3) Swap the file. The handle is closed first so the bytes on disk
	// are not pinned by an open connection, and stale WAL/SHM companions
	// are removed so SQLite cannot replay them into the restored file.
	c.Manager.CloseForReplace()
	if err := copyOver(candidatePath, livePath); err != nil {
		return fmt.Errorf("restore copy failed (safety snapshot at %s): %w", snapshotPath, err)
	}

	// (4) The next handle access reconnects against the restored file.
	c.Manager.MarkExternallyModified()

	// (5) Dependent modules drop whatever they had loaded.
	for _, r := range c.refreshers {
		r.Refresh()
	}

	if c.Bus != nil {
		c.Bus.Publish(events.EventRestoreCompleted, events.RestoreCompleted{
			CandidatePath: candidatePath,
			SnapshotPath:  snapshotPath,
		})
	}

	log.WithFields(log.Fields{"candidate": candidatePath, "live": livePath}).
		Info("restore completed")
	return nil
}

func copyOver(src, dst string) error {
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
