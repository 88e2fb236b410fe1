package events

// Event enumerates high-level topics inside the bookkeeping core.
type Event string

const (
	EventStoreRepaired    Event = "store.repaired"
	EventStoreReconnected Event = "store.reconnected"
	EventBackupCreated    Event = "backup.created"
	EventBackupDeleted    Event = "backup.deleted"
	EventBackupCleanup    Event = "backup.cleanup"
	EventRestoreCompleted Event = "restore.completed"
)

// StoreRepaired is published after a corrupt store file was quarantined
// and replaced with a fresh one.
type StoreRepaired struct {
	QuarantinedPath string `json:"quarantined_path"`
}

// RestoreCompleted is published after a backup was restored over the live
// store. The UI should drop everything it has loaded and refetch.
type RestoreCompleted struct {
	CandidatePath string `json:"candidate_path"`
	SnapshotPath  string `json:"snapshot_path"`
}
