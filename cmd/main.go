package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firewalla-bridge/internal/auth"
	"firewalla-bridge/internal/config"
	"firewalla-bridge/internal/coordinator"
	"firewalla-bridge/internal/database"
	"firewalla-bridge/internal/firewalla"
	"firewalla-bridge/internal/handlers"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

var (
	Version = "dev" // Set by build process
)

var (
	configFile    = flag.String("config", "config.yaml", "Path to configuration file")
	port          = flag.Int("port", 8080, "Port to run the API server on")
	dbPath        = flag.String("database", "", "Path to database file (overrides config)")
	logLevel      = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	adminPassword = flag.String("set-admin-password", "", "Set the admin password and exit")
	showVersion   = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("Firewalla Bridge %s\n", Version)
		os.Exit(0)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Set log level from flag
	switch *logLevel {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	logger.Infof("Starting Firewalla Bridge %s", Version)

	// Load or initialize configuration
	cfg, err := config.LoadOrInitialize(*configFile)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// One-shot admin password update
	if *adminPassword != "" {
		if cfg.Admin.Username == "" {
			cfg.Admin.Username = "admin"
		}
		if err := cfg.SetAdminPassword(*adminPassword); err != nil {
			logger.Fatalf("Failed to hash admin password: %v", err)
		}
		if err := config.SaveConfig(*configFile, cfg); err != nil {
			logger.Fatalf("Failed to save configuration: %v", err)
		}
		logger.Infof("Admin password updated for user %q", cfg.Admin.Username)
		os.Exit(0)
	}

	if !cfg.IsConfigured() {
		logger.Fatalf("Firewalla host and api_key must be set in %s", *configFile)
	}

	// Override database path if provided via flag
	databasePath := cfg.DatabasePath
	if *dbPath != "" {
		databasePath = *dbPath
		logger.Infof("Using database path from command line: %s", databasePath)
	}

	// Initialize database
	db, err := database.Initialize(databasePath)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize session store
	sessionStore := auth.NewSessionStore(cfg.SessionSecret)

	// Firewalla client and refresh coordinator
	apiLogger := firewalla.NewLogrusAdapter(logger)
	client := firewalla.NewClient(
		cfg.Firewalla.Host,
		cfg.Firewalla.APIKey,
		time.Duration(cfg.Firewalla.RequestTimeout)*time.Second,
		apiLogger,
	)
	coord := coordinator.New(
		client,
		time.Duration(cfg.Firewalla.PollInterval)*time.Second,
		db,
		logger,
	)

	// Create app context
	app := &handlers.App{
		Config:       cfg,
		DB:           db,
		Logger:       logger,
		SessionStore: sessionStore,
		Coordinator:  coord,
	}

	if !cfg.AdminConfigured() {
		logger.Warn("No admin account configured, mutating endpoints are unauthenticated")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start polling and log cleanup in background
	go coord.Start(ctx)
	go app.StartCleanupJob(ctx.Done())

	// Setup routes
	router := setupRoutes(app)

	// Create server with timeouts
	addr := fmt.Sprintf(":%d", *port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown: %v", err)
		}
	}()

	logger.Infof("Starting server on http://localhost%s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Failed to start server: %v", err)
	}
}

func setupRoutes(app *handlers.App) *mux.Router {
	router := mux.NewRouter()

	// Public routes
	router.HandleFunc("/api/login", app.LoginHandler).Methods("POST")
	router.HandleFunc("/api/logout", app.LogoutHandler).Methods("POST")
	router.HandleFunc("/api/status", app.GetStatusHandler).Methods("GET")

	// Read-only snapshot routes
	router.HandleFunc("/api/snapshot", app.GetSnapshotHandler).Methods("GET")
	router.HandleFunc("/api/appliances", app.GetAppliancesHandler).Methods("GET")
	router.HandleFunc("/api/rules", app.GetRulesHandler).Methods("GET")
	router.HandleFunc("/api/devices", app.GetNetworkClientsHandler).Methods("GET")
	router.HandleFunc("/api/groups", app.GetGroupsHandler).Methods("GET")
	router.HandleFunc("/api/entities", app.GetEntitiesHandler).Methods("GET")
	router.HandleFunc("/api/logs", app.GetLogsHandler).Methods("GET")

	// Mutating routes (require authentication when an admin is configured)
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(app.AuthMiddleware)
	protected.HandleFunc("/rules/{id}/pause", app.PauseRuleHandler).Methods("POST")
	protected.HandleFunc("/rules/{id}/resume", app.ResumeRuleHandler).Methods("POST")

	return router
}
