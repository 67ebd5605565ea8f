package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/drivescope/drivescope/internal/auth"
	"github.com/drivescope/drivescope/internal/database"
	"github.com/drivescope/drivescope/internal/logging"
	"github.com/drivescope/drivescope/internal/monitor"
	"github.com/drivescope/drivescope/internal/project"
	"github.com/drivescope/drivescope/internal/web"
	"github.com/drivescope/drivescope/internal/web/sse"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	port         int
	bind         string
	dbPath       string
	baseURL      string
	pollInterval time.Duration
	verbosity    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "drivescope",
		Short: "Drivescope - Google Drive folder monitor",
		Long:  `Drivescope watches Google Drive folders for changes: hierarchy browsing, uploads, webhook channels, and a live change log.`,
		RunE:  run,
	}

	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (required, or set PORT env var)")
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	rootCmd.Flags().StringVarP(&dbPath, "db", "d", "./drivescope.db", "SQLite database path (or set DB_PATH env var)")
	rootCmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL for OAuth redirects and webhook delivery (or set BASE_URL env var)")
	rootCmd.Flags().DurationVar(&pollInterval, "poll-interval", monitor.DefaultPollInterval, "Change polling interval per project")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("drivescope %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Env fallbacks: flag beats env beats default.
	if port == 0 {
		if envPort := os.Getenv("PORT"); envPort != "" {
			if _, err := fmt.Sscanf(envPort, "%d", &port); err != nil {
				return fmt.Errorf("invalid PORT environment variable %q: %w", envPort, err)
			}
		}
	}
	if dbPath == "./drivescope.db" {
		if envDB := os.Getenv("DB_PATH"); envDB != "" {
			dbPath = envDB
		}
	}
	if baseURL == "" {
		baseURL = os.Getenv("BASE_URL")
	}

	if port == 0 {
		return fmt.Errorf("--port flag or PORT environment variable is required")
	}
	if bind != "" {
		if ip := net.ParseIP(bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", bind)
		}
	}
	if baseURL == "" {
		return fmt.Errorf("--base-url flag or BASE_URL environment variable is required")
	}

	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET environment variables are required")
	}

	logging.Setup(verbosity, logging.FilePathForDB(dbPath))

	log.Info().
		Str("version", version).
		Int("port", port).
		Str("bind", bind).
		Str("base_url", baseURL).
		Str("database", dbPath).
		Msg("Starting Drivescope")

	db, err := database.New(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	if err := auth.LoadOrCreateTokenKey(dbPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to load token encryption key")
	}

	store := db.KV()
	authService := auth.NewService(db, clientID, clientSecret, baseURL+"/auth/callback")
	projects := project.NewManager(store)
	logs := monitor.NewLogStore(store)
	channels := monitor.NewChannelManager(authService, store)
	sseBroker := sse.NewBroker()

	reconciler := monitor.NewReconciler(authService, logs, projects, pollInterval, func(projectID string, events []*monitor.ChangeEvent) {
		sseBroker.Broadcast(sse.Event{Type: sse.EventChangeLogged, Data: map[string]any{
			"projectId": projectID,
			"events":    events,
		}})
	})
	defer reconciler.Stop()

	// Restore polling loops for projects that existed before this start.
	for _, proj := range projects.All() {
		reconciler.AddProject(proj.ID)
	}

	// Expired sessions are swept and webhook channels renewed on the hour.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", func() {
		for _, channel := range channels.CheckAndRenew(context.Background(), baseURL+"/webhook/drive") {
			sseBroker.Broadcast(sse.Event{Type: sse.EventWatchRenewed, Data: channel})
		}
		if n, err := db.DeleteExpiredSessions(); err != nil {
			log.Warn().Err(err).Msg("Failed to sweep expired sessions")
		} else if n > 0 {
			log.Debug().Int64("sessions", n).Msg("Swept expired sessions")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule channel renewal")
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := web.NewServer(port, bind, baseURL, authService, projects, logs, channels, reconciler, sseBroker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Drivescope stopped")
	return nil
}
