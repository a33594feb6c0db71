package handlers

import (
	"net/http"
	"strconv"
	"time"

	"firewalla-bridge/internal/entity"
	"firewalla-bridge/internal/firewalla"

	"github.com/gorilla/mux"
)

// GetStatusHandler reports whether the last refresh succeeded and how old
// the published snapshot is.
func (app *App) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"last_update_success": app.Coordinator.LastUpdateSuccess(),
		"has_snapshot":        false,
	}

	if snap, ok := app.Coordinator.Snapshot(); ok {
		status["has_snapshot"] = true
		status["updated_at"] = snap.UpdatedAt
		status["snapshot_age_seconds"] = int(time.Since(snap.UpdatedAt).Seconds())
		status["appliance_count"] = len(snap.Appliances)
		status["rule_count"] = len(snap.Rules)
		status["network_client_count"] = len(snap.NetworkClients)
	}

	app.sendJSON(w, http.StatusOK, status)
}

// GetSnapshotHandler returns the last published snapshot wholesale.
func (app *App) GetSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := app.Coordinator.Snapshot()
	if !ok {
		app.sendJSONError(w, "No snapshot available yet", http.StatusServiceUnavailable)
		return
	}
	app.sendJSON(w, http.StatusOK, snap)
}

func (app *App) GetAppliancesHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := app.Coordinator.Snapshot()
	if !ok {
		app.sendJSONError(w, "No snapshot available yet", http.StatusServiceUnavailable)
		return
	}
	app.sendJSON(w, http.StatusOK, snap.Appliances)
}

// GetRulesHandler lists rules, optionally filtered by appliance gid.
func (app *App) GetRulesHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := app.Coordinator.Snapshot()
	if !ok {
		app.sendJSONError(w, "No snapshot available yet", http.StatusServiceUnavailable)
		return
	}

	gid := r.URL.Query().Get("gid")
	if gid == "" {
		app.sendJSON(w, http.StatusOK, snap.Rules)
		return
	}

	filtered := make([]firewalla.Rule, 0, len(snap.Rules))
	for _, rule := range snap.Rules {
		if rule.GID == gid {
			filtered = append(filtered, rule)
		}
	}
	app.sendJSON(w, http.StatusOK, filtered)
}

// GetNetworkClientsHandler lists LAN devices, optionally filtered by gid.
func (app *App) GetNetworkClientsHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := app.Coordinator.Snapshot()
	if !ok {
		app.sendJSONError(w, "No snapshot available yet", http.StatusServiceUnavailable)
		return
	}

	gid := r.URL.Query().Get("gid")
	if gid == "" {
		app.sendJSON(w, http.StatusOK, snap.NetworkClients)
		return
	}

	filtered := make([]firewalla.NetworkClient, 0, len(snap.NetworkClients))
	for _, nc := range snap.NetworkClients {
		if nc.GID == gid {
			filtered = append(filtered, nc)
		}
	}
	app.sendJSON(w, http.StatusOK, filtered)
}

func (app *App) GetGroupsHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := app.Coordinator.Snapshot()
	if !ok {
		app.sendJSONError(w, "No snapshot available yet", http.StatusServiceUnavailable)
		return
	}
	app.sendJSON(w, http.StatusOK, snap.Groups)
}

// GetEntitiesHandler projects the snapshot into observable entities.
func (app *App) GetEntitiesHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := app.Coordinator.Snapshot()
	if !ok {
		app.sendJSONError(w, "No snapshot available yet", http.StatusServiceUnavailable)
		return
	}
	app.sendJSON(w, http.StatusOK, entity.Project(snap))
}

// PauseRuleHandler pauses a rule via the appliance.
func (app *App) PauseRuleHandler(w http.ResponseWriter, r *http.Request) {
	app.setRuleState(w, r, firewalla.RuleStatePaused)
}

// ResumeRuleHandler resumes a rule via the appliance.
func (app *App) ResumeRuleHandler(w http.ResponseWriter, r *http.Request) {
	app.setRuleState(w, r, firewalla.RuleStateActive)
}

func (app *App) setRuleState(w http.ResponseWriter, r *http.Request, state firewalla.RuleState) {
	ruleID := mux.Vars(r)["id"]
	if ruleID == "" {
		app.sendJSONError(w, "Missing rule id", http.StatusBadRequest)
		return
	}

	var ok bool
	if state == firewalla.RuleStatePaused {
		ok = app.Coordinator.PauseRule(r.Context(), ruleID)
	} else {
		ok = app.Coordinator.ResumeRule(r.Context(), ruleID)
	}

	if !ok {
		app.sendJSONError(w, "Appliance rejected the state change", http.StatusBadGateway)
		return
	}
	app.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"rule_id": ruleID,
		"state":   string(state),
	})
}

func (app *App) GetLogsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 100
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	if ruleID := r.URL.Query().Get("rule_id"); ruleID != "" {
		logs, err := app.DB.GetLogsByRule(ruleID, limit)
		if err != nil {
			app.Logger.Errorf("Failed to get logs for rule %s: %v", ruleID, err)
			app.sendJSONError(w, "Failed to get logs", http.StatusInternalServerError)
			return
		}
		app.sendJSON(w, http.StatusOK, logs)
		return
	}

	logs, err := app.DB.GetLogs(limit, offset)
	if err != nil {
		app.Logger.Errorf("Failed to get logs: %v", err)
		app.sendJSONError(w, "Failed to get logs", http.StatusInternalServerError)
		return
	}
	app.sendJSON(w, http.StatusOK, logs)
}
