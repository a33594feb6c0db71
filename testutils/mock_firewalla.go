package testutils

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockFirewallaServer provides a mock Firewalla MSP API for testing. The
// rules endpoint can serve any of the envelope shapes the real API has been
// observed to return, and every endpoint supports failure injection.
type MockFirewallaServer struct {
	Server *httptest.Server
	URL    string

	mu          sync.Mutex
	boxes       []map[string]interface{}
	rules       []map[string]interface{}
	devices     []map[string]interface{}
	rulesShape  string // "list", "envelope", "single-list-value", "keyed-entries", "single-rule", "garbage"
	failBoxes   bool
	failRules   bool
	failDevices bool
	failActions bool
	rawActions  bool // respond to pause/resume with a non-JSON body
	PauseCalls  []string
	ResumeCalls []string
}

// NewMockFirewallaServer creates a mock API preloaded with the standard
// fixtures and serving rules as a bare list.
func NewMockFirewallaServer() *MockFirewallaServer {
	m := &MockFirewallaServer{
		boxes:      FixtureAppliances(),
		rules:      FixtureRules(),
		devices:    FixtureNetworkClients(),
		rulesShape: "list",
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/v2/boxes", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.failBoxes {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		writeJSON(w, m.boxes)
	})

	mux.HandleFunc("/v2/rules", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.failRules {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		writeJSON(w, m.wrappedRules(r.URL.Query().Get("gid")))
	})

	mux.HandleFunc("/v2/devices", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.failDevices {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		gid := r.URL.Query().Get("gid")
		var out []map[string]interface{}
		for _, d := range m.devices {
			if gid == "" || d["gid"] == gid {
				out = append(out, d)
			}
		}
		if out == nil {
			out = []map[string]interface{}{}
		}
		writeJSON(w, out)
	})

	// Pause/resume sub-resources
	mux.HandleFunc("/v2/rules/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.failActions {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}

		trimmed := strings.TrimPrefix(r.URL.Path, "/v2/rules/")
		parts := strings.Split(trimmed, "/")
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		ruleID, action := parts[0], parts[1]

		switch action {
		case "pause":
			m.PauseCalls = append(m.PauseCalls, ruleID)
			m.setRuleStatus(ruleID, "paused", true)
		case "resume":
			m.ResumeCalls = append(m.ResumeCalls, ruleID)
			m.setRuleStatus(ruleID, "active", false)
		default:
			http.NotFound(w, r)
			return
		}

		if m.rawActions {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("OK")); err != nil {
				log.Printf("Failed to write response: %v", err)
			}
			return
		}
		writeJSON(w, map[string]interface{}{"id": ruleID, "status": action})
	})

	m.Server = httptest.NewServer(mux)
	m.URL = m.Server.URL
	return m
}

// Close shuts down the mock server
func (m *MockFirewallaServer) Close() {
	m.Server.Close()
}

// APIKey returns the token the mock accepts (it accepts anything, the value
// is only used to exercise the auth header path).
func (m *MockFirewallaServer) APIKey() string {
	return "test-api-key"
}

// SetRulesShape selects the envelope the rules endpoint wraps its payload in.
func (m *MockFirewallaServer) SetRulesShape(shape string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rulesShape = shape
}

// SetRules replaces the rule fixtures.
func (m *MockFirewallaServer) SetRules(rules []map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = rules
}

// FailBoxes toggles failure injection on the appliance-list endpoint.
func (m *MockFirewallaServer) FailBoxes(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failBoxes = fail
}

// FailRules toggles failure injection on the rules endpoint.
func (m *MockFirewallaServer) FailRules(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRules = fail
}

// FailDevices toggles failure injection on the network-client endpoint.
func (m *MockFirewallaServer) FailDevices(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDevices = fail
}

// FailActions toggles failure injection on the pause/resume endpoints.
func (m *MockFirewallaServer) FailActions(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failActions = fail
}

// RawActionBodies makes pause/resume answer 200 with a non-JSON body.
func (m *MockFirewallaServer) RawActionBodies(raw bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawActions = raw
}

func (m *MockFirewallaServer) setRuleStatus(ruleID, status string, paused bool) {
	for _, rule := range m.rules {
		if rule["id"] == ruleID {
			rule["status"] = status
			rule["paused"] = paused
		}
	}
}

func (m *MockFirewallaServer) wrappedRules(gid string) interface{} {
	var rules []map[string]interface{}
	for _, rule := range m.rules {
		ruleGID, _ := rule["gid"].(string)
		if gid == "" || ruleGID == "" || ruleGID == gid {
			rules = append(rules, rule)
		}
	}
	if rules == nil {
		rules = []map[string]interface{}{}
	}

	switch m.rulesShape {
	case "envelope":
		return map[string]interface{}{"count": len(rules), "results": rules}
	case "single-list-value":
		return map[string]interface{}{"policies": rules, "cursor": "abc"}
	case "keyed-entries":
		out := map[string]interface{}{}
		for _, rule := range rules {
			id, _ := rule["id"].(string)
			out["rule_"+id] = rule
		}
		return out
	case "single-rule":
		if len(rules) > 0 {
			return rules[0]
		}
		return map[string]interface{}{}
	case "garbage":
		return "not a rules payload"
	default:
		return rules
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
