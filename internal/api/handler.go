package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sitebooks-core/internal/backup"
	"sitebooks-core/internal/events"
	"sitebooks-core/internal/ledger"
	"sitebooks-core/internal/restore"
	"sitebooks-core/pkg/db"
)

// Server wires the local HTTP surface the desktop shell talks to. It only
// exposes the core's own operations (status, reconnect, backups, restore);
// the business CRUD dispatch lives with the shell.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Manager   *db.Manager
	Backups   *backup.Store
	Restorer  *restore.Coordinator
	Ledger    *ledger.Service
	AppKey    string
	JWTSecret string

	maxBackupAgeDays int
}

// NewServer builds the router and middleware stack.
func NewServer(bus *events.Bus, mgr *db.Manager, backups *backup.Store, restorer *restore.Coordinator, ledgerSvc *ledger.Service, appKey, jwtSecret string, maxBackupAgeDays int) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:           r,
		Bus:              bus,
		Manager:          mgr,
		Backups:          backups,
		Restorer:         restorer,
		Ledger:           ledgerSvc,
		AppKey:           appKey,
		JWTSecret:        jwtSecret,
		maxBackupAgeDays: maxBackupAgeDays,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.POST("/session", s.createSession)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/db/status", s.dbStatus)
			protected.POST("/db/reconnect", s.dbReconnect)

			protected.GET("/backups", s.listBackups)
			protected.POST("/backups", s.createBackup)
			protected.DELETE("/backups", s.deleteBackup)
			protected.POST("/backups/cleanup", s.cleanupBackups)

			protected.POST("/restore", s.restoreBackup)

			protected.GET("/projects/:id/summary", s.projectSummary)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start blocks serving on addr.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
