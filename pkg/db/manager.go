package db

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// staleThreshold is how far the on-disk mtime must diverge from the
// baseline before the handle is considered stale.
const staleThreshold = time.Second

// Manager owns the single live handle to the store. All business logic
// obtains the handle through Current and never caches it; the manager may
// destroy and replace the handle at any time (corruption recovery, restore,
// external modification).
type Manager struct {
	mu sync.Mutex

	path       string
	handle     *Handle
	checkEvery int

	forceReconnect bool
	baselineMod    time.Time
	accessCount    uint64
	shutdown       bool

	// OnRepaired, when set, is called after a corrupt store file was
	// quarantined and replaced with a fresh one. Receives the quarantine
	// path. Called outside the manager lock.
	OnRepaired func(quarantinedPath string)
}

// NewManager creates a manager for the store at path. checkEvery controls
// the staleness sampling cadence: the file mtime is stat'ed once every
// checkEvery calls to Current (cost/freshness trade-off, not a correctness
// guarantee). Values below 1 are clamped to 1.
func NewManager(path string, checkEvery int) *Manager {
	if checkEvery < 1 {
		checkEvery = 1
	}
	return &Manager{path: path, checkEvery: checkEvery}
}

// Path returns the live store file path.
func (m *Manager) Path() string {
	return m.path
}

// Current returns a usable handle, recreating one if none exists, the
// force-reconnect flag is set, the existing handle is closed, or a sampled
// staleness check notices the file changed behind the handle's back.
// Reentrant-safe: a caller gets either the old handle or a fully
// initialized new one, never a half-open one.
func (m *Manager) Current() (*Handle, error) {
	m.mu.Lock()

	if m.shutdown {
		m.mu.Unlock()
		return nil, fmt.Errorf("manager is shut down: %w", ErrHandleUnavailable)
	}

	if m.forceReconnect || m.handle == nil || m.handle.Closed() || m.staleLocked() {
		m.forceReconnect = false
		h, repaired, err := m.recreateLocked()
		m.mu.Unlock()
		m.notifyRepaired(repaired)
		return h, err
	}

	h := m.handle
	m.mu.Unlock()
	return h, nil
}

// Recreate closes any existing handle and builds a new one: integrity
// check, corruption recovery, pragmas, schema reconciliation, and a fresh
// staleness baseline.
func (m *Manager) Recreate() (*Handle, error) {
	m.mu.Lock()
	m.forceReconnect = false
	h, repaired, err := m.recreateLocked()
	m.mu.Unlock()
	m.notifyRepaired(repaired)
	return h, err
}

// MarkExternallyModified signals that the store file was replaced behind
// the handle's back (restore, import). The very next Current call
// recreates the handle. The staleness baseline is refreshed immediately so
// sampling cannot race the explicit signal.
func (m *Manager) MarkExternallyModified() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceReconnect = true
	if info, err := os.Stat(m.path); err == nil {
		m.baselineMod = info.ModTime()
	}
}

// ForceReconnect sets the reconnect flag; the next handle access rebuilds
// the connection.
func (m *Manager) ForceReconnect() {
	m.MarkExternallyModified()
}

// ReconnectNow sets the flag and rebuilds the connection immediately.
func (m *Manager) ReconnectNow() (*Handle, error) {
	m.MarkExternallyModified()
	return m.Recreate()
}

// Checkpoint flushes the WAL into the main db file so file-level copies
// are complete. Best used right before archiving the live store.
func (m *Manager) Checkpoint() error {
	h, err := m.Current()
	if err != nil {
		return err
	}
	return h.Checkpoint()
}

// CloseForReplace closes the live handle and removes stale WAL/SHM
// companions so a foreign file can be copied over the live path. The
// force-reconnect flag is set; the next access reopens cleanly.
func (m *Manager) CloseForReplace() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		if err := m.handle.Close(); err != nil {
			log.WithError(err).Warn("close before replace failed")
		}
		m.handle = nil
	}
	removeSidecars(m.path)
	m.forceReconnect = true
}

// Close shuts the manager down. Further Current calls fail with
// ErrHandleUnavailable. Close errors are swallowed: best-effort cleanup at
// process exit, not correctness-critical.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return
	}
	m.shutdown = true
	if m.handle != nil {
		if err := m.handle.Close(); err != nil {
			log.WithError(err).Warn("close on shutdown failed")
		}
		m.handle = nil
	}
}

// staleLocked samples the file mtime every checkEvery accesses and reports
// whether it diverged from the baseline by more than a second. Stat errors
// are swallowed; staleness detection is best-effort.
func (m *Manager) staleLocked() bool {
	m.accessCount++
	if m.accessCount%uint64(m.checkEvery) != 0 {
		return false
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false
	}
	diff := info.ModTime().Sub(m.baselineMod)
	if diff < 0 {
		diff = -diff
	}
	return diff > staleThreshold
}

// recreateLocked rebuilds the handle. Returns the quarantine path when a
// corrupt file was set aside, "" otherwise. Open or reconcile failures
// after recovery are fatal and wrapped in ErrHandleUnavailable.
func (m *Manager) recreateLocked() (*Handle, string, error) {
	if m.handle != nil {
		if err := m.handle.Close(); err != nil {
			log.WithError(err).Warn("close stale handle failed")
		}
		m.handle = nil
	}

	repaired := ""
	switch err := Validate(m.path); {
	case err == nil:
		// Existing healthy store.
	case errors.Is(err, ErrStoreMissing):
		// First run: the file never existed, so a fresh create is not a
		// repair. This ordering is what keeps a brand-new store from
		// being mistaken for a corrupt one.
		log.WithField("path", m.path).Info("creating new store file")
	case IsCorrupt(err):
		target, qerr := Quarantine(m.path)
		if qerr != nil {
			return nil, "", fmt.Errorf("%v: %w", qerr, ErrHandleUnavailable)
		}
		log.WithFields(log.Fields{
			"path":        m.path,
			"quarantined": target,
			"reason":      err.Error(),
		}).Warn("store file corrupt, quarantined and recreating")
		repaired = target
	default:
		return nil, "", fmt.Errorf("%v: %w", err, ErrHandleUnavailable)
	}

	h, err := openHandle(m.path)
	if err != nil {
		return nil, "", fmt.Errorf("%v: %w", err, ErrHandleUnavailable)
	}

	if _, err := Reconcile(h); err != nil {
		h.Close()
		return nil, "", fmt.Errorf("%v: %w", err, ErrHandleUnavailable)
	}

	if info, err := os.Stat(m.path); err == nil {
		m.baselineMod = info.ModTime()
	}

	m.handle = h
	return h, repaired, nil
}

func (m *Manager) notifyRepaired(quarantined string) {
	if quarantined != "" && m.OnRepaired != nil {
		m.OnRepaired(quarantined)
	}
}
