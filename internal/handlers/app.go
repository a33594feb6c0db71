package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"firewalla-bridge/internal/auth"
	"firewalla-bridge/internal/config"
	"firewalla-bridge/internal/coordinator"
	"firewalla-bridge/internal/database"

	"github.com/sirupsen/logrus"
)

// App holds the shared context for all HTTP handlers.
type App struct {
	Config       *config.Config
	DB           *database.DB
	Logger       *logrus.Logger
	SessionStore *auth.SessionStore
	Coordinator  *coordinator.Coordinator
}

func (app *App) sendJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		app.Logger.Errorf("Failed to encode response: %v", err)
	}
}

func (app *App) sendJSONError(w http.ResponseWriter, message string, statusCode int) {
	app.sendJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// AuthMiddleware guards mutating endpoints. When no admin login is
// configured the endpoints stay open, which is logged once at startup.
func (app *App) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if app.Config.AdminConfigured() && !app.SessionStore.IsAuthenticated(r) {
			app.sendJSONError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginHandler authenticates the admin user and establishes a session.
func (app *App) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendJSONError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !app.Config.AdminConfigured() {
		app.sendJSONError(w, "No admin account configured", http.StatusBadRequest)
		return
	}

	if req.Username != app.Config.Admin.Username || !app.Config.VerifyAdminPassword(req.Password) {
		app.Logger.Warnf("Failed login attempt for user %q", req.Username)
		app.sendJSONError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := app.SessionStore.Login(r, w); err != nil {
		app.Logger.Errorf("Failed to create session: %v", err)
		app.sendJSONError(w, "Session error", http.StatusInternalServerError)
		return
	}

	app.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// LogoutHandler tears down the session.
func (app *App) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.SessionStore.Logout(r, w); err != nil {
		app.Logger.Errorf("Failed to clear session: %v", err)
	}
	app.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// StartCleanupJob deletes old audit log entries every hour until the
// context is cancelled.
func (app *App) StartCleanupJob(done <-chan struct{}) {
	app.Logger.Info("Starting log cleanup job (runs every hour)")

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	app.cleanupOldLogs()

	for {
		select {
		case <-ticker.C:
			app.cleanupOldLogs()
		case <-done:
			app.Logger.Info("Stopping log cleanup job")
			return
		}
	}
}

func (app *App) cleanupOldLogs() {
	// Delete entries older than 30 days
	deletedCount, err := app.DB.DeleteOldLogs(30)
	if err != nil {
		app.Logger.Errorf("Failed to delete old logs: %v", err)
		return
	}

	if deletedCount > 0 {
		app.Logger.Infof("Deleted %d old log entries (>30 days)", deletedCount)
	}
}
