package cmd

import (
	"context"
	"os"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/jhunt/legisync/internal/config"
	"github.com/jhunt/legisync/internal/handlers"
	"github.com/jhunt/legisync/internal/logger"
	"github.com/jhunt/legisync/internal/store"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync control-plane server",
	Long: `Start the HTTP server exposing operator controls for sync jobs:
create, pause, resume, stop, run batches, and inspect progress and corpus
statistics. Responses are JSON.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.New("serve")

		// Use PORT env var if set, otherwise use flag value
		if envPort := os.Getenv("PORT"); envPort != "" && port == "8080" {
			port = envPort
		}

		cfg, err := config.Load()
		if err != nil {
			log.WithError(err).Fatal("invalid configuration")
		}
		if cfg.DatabaseURL == "" {
			log.Fatal("DATABASE_URL environment variable is required")
		}

		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to database")
		}
		defer db.Close()

		if err := store.Migrate(context.Background(), db); err != nil {
			log.WithError(err).Fatal("failed to migrate schema")
		}

		svc, client := buildService(cfg, log, db)
		defer client.Close()

		billStore := store.NewBillStore(db)
		statsStore := store.NewStatsStore(db)

		app := fiber.New(fiber.Config{
			AppName: "legisync",
		})

		app.Use(recover.New())
		app.Use(fiberlogger.New())

		// Job controls
		app.Post("/jobs", handlers.CreateJobHandler(svc))
		app.Get("/jobs/active", handlers.ActiveJobHandler(svc))
		app.Get("/jobs/:id", handlers.JobHandler(svc))
		app.Post("/jobs/:id/pause", handlers.PauseJobHandler(svc))
		app.Post("/jobs/:id/resume", handlers.ResumeJobHandler(svc))
		app.Post("/jobs/:id/stop", handlers.StopJobHandler(svc))
		app.Post("/jobs/:id/batch", handlers.BatchHandler(svc))

		// Corpus
		app.Get("/bills/:type/:number", handlers.BillHandler(billStore))
		app.Get("/stats", handlers.StatsHandler(statsStore))

		log.WithField("port", port).Info("starting server")
		if err := app.Listen(":" + port); err != nil {
			log.WithError(err).Fatal("failed to start server")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&port, "port", "p", "8080", "Port to run the server on")
}
