package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sitebooks-core/internal/backup"
	"sitebooks-core/internal/events"
	"sitebooks-core/internal/restore"
	"sitebooks-core/pkg/db"
)

// dbStatus reports whether the store is reachable right now.
func (s *Server) dbStatus(c *gin.Context) {
	h, err := s.Manager.Current()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":  "DB_UNAVAILABLE",
			"error": "cannot access the database",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"path":      h.Path(),
		"opened_at": h.OpenedAt().UTC().Format(time.RFC3339),
	})
}

// dbReconnect drops and rebuilds the handle on demand (used after an
// external "import database" action).
func (s *Server) dbReconnect(c *gin.Context) {
	h, err := s.Manager.ReconnectNow()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":  "DB_UNAVAILABLE",
			"error": "cannot access the database",
		})
		return
	}
	s.Bus.Publish(events.EventStoreReconnected, gin.H{"opened_at": h.OpenedAt().UTC().Format(time.RFC3339)})
	c.JSON(http.StatusOK, gin.H{
		"status":    "reconnected",
		"opened_at": h.OpenedAt().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listBackups(c *gin.Context) {
	entries, err := s.Backups.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "BACKUP_LIST_FAILED",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": entries})
}

// createBackup snapshots the live store into the archive.
func (s *Server) createBackup(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	// Body is optional; an empty name derives one from the store file.
	_ = c.ShouldBindJSON(&req)

	if err := s.Manager.Checkpoint(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":  "DB_UNAVAILABLE",
			"error": "cannot access the database",
		})
		return
	}

	entry, deduped, err := s.Backups.Archive(s.Manager.Path(), req.Name)
	if err != nil {
		status := http.StatusInternalServerError
		code := "BACKUP_FAILED"
		if errors.Is(err, backup.ErrInvalidSource) {
			status = http.StatusConflict
			code = "BACKUP_VALIDATION_FAILED"
		}
		c.JSON(status, gin.H{"code": code, "error": err.Error()})
		return
	}

	if !deduped {
		s.Bus.Publish(events.EventBackupCreated, entry)
	}
	c.JSON(http.StatusCreated, gin.H{"backup": entry, "deduped": deduped})
}

func (s *Server) deleteBackup(c *gin.Context) {
	var req struct {
		Path string `json:"path"`
	}
	if err := c.BindJSON(&req); err != nil || req.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "path is required",
		})
		return
	}

	removed, err := s.Backups.Delete(req.Path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "BACKUP_DELETE_FAILED",
			"error": err.Error(),
		})
		return
	}
	if removed {
		s.Bus.Publish(events.EventBackupDeleted, gin.H{"path": req.Path})
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) cleanupBackups(c *gin.Context) {
	var req struct {
		MaxAgeDays int `json:"max_age_days"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.MaxAgeDays <= 0 {
		req.MaxAgeDays = s.maxBackupAgeDays
	}

	result, err := s.Backups.Cleanup(req.MaxAgeDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "BACKUP_CLEANUP_FAILED",
			"error": err.Error(),
		})
		return
	}
	s.Bus.Publish(events.EventBackupCleanup, result)
	c.JSON(http.StatusOK, result)
}

// restoreBackup replaces the live store with a validated backup file.
func (s *Server) restoreBackup(c *gin.Context) {
	var req struct {
		Path string `json:"path"`
	}
	if err := c.BindJSON(&req); err != nil || req.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "path is required",
		})
		return
	}

	if err := s.Restorer.Restore(req.Path); err != nil {
		var pre *restore.PreconditionError
		if errors.As(err, &pre) {
			c.JSON(http.StatusConflict, gin.H{
				"code":  "RESTORE_PRECONDITION_FAILED",
				"error": pre.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "RESTORE_FAILED",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "restored"})
}

func (s *Server) projectSummary(c *gin.Context) {
	summary, err := s.Ledger.ProjectSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrProjectIDRequired) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":  "INVALID_PROJECT",
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "SUMMARY_FAILED",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, summary)
}
