package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sitebooks-core/internal/api"
	"sitebooks-core/internal/backup"
	"sitebooks-core/internal/events"
	"sitebooks-core/internal/ledger"
	"sitebooks-core/internal/restore"
	"sitebooks-core/pkg/db"
)

// NewServeCommand starts the local HTTP surface for the desktop shell.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the local API for the desktop shell",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			bus := events.NewBus()

			mgr := db.NewManager(cfg.DBPath, cfg.StalenessCheckEvery)
			mgr.OnRepaired = func(quarantined string) {
				bus.Publish(events.EventStoreRepaired, events.StoreRepaired{QuarantinedPath: quarantined})
			}
			defer mgr.Close()

			// Open eagerly so a fatal store problem surfaces at startup.
			if _, err := mgr.Current(); err != nil {
				return err
			}

			backups, err := backup.NewStore(cfg.BackupDir)
			if err != nil {
				return err
			}

			ledgerSvc := ledger.NewService(mgr, 30*time.Second)

			restorer := restore.NewCoordinator(mgr, backups, bus)
			restorer.Register(ledgerSvc)

			server := api.NewServer(bus, mgr, backups, restorer, ledgerSvc,
				cfg.AppKey, cfg.JWTSecret, cfg.BackupMaxAgeDays)

			// Close the store handle before the process exits.
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-stop
				log.Info("shutting down")
				mgr.Close()
				os.Exit(0)
			}()

			addr := "127.0.0.1:" + cfg.Port
			log.WithField("addr", addr).Info("sitebooks core listening")
			return server.Start(addr)
		},
	}
}
