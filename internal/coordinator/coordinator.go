package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"firewalla-bridge/internal/firewalla"

	"github.com/sirupsen/logrus"
)

// ErrUpdateFailed marks a refresh cycle whose mandatory fetches yielded
// nothing usable. The previously published snapshot stays untouched.
var ErrUpdateFailed = errors.New("update failed")

// DefaultInterval is how often the coordinator refreshes when the config
// does not say otherwise.
const DefaultInterval = 60 * time.Second

// Client is the slice of the Firewalla API the coordinator consumes.
// Implemented by *firewalla.Client.
type Client interface {
	GetAppliances(ctx context.Context) []firewalla.Appliance
	GetRules(ctx context.Context, gid string) []firewalla.Rule
	GetNetworkClients(ctx context.Context, gid string) []firewalla.NetworkClient
	SetRuleState(ctx context.Context, ruleID string, state firewalla.RuleState) bool
}

// Recorder receives an audit trail of refresh outcomes and rule actions.
// Implemented by *database.DB; may be nil.
type Recorder interface {
	RecordEvent(event, ruleID, message string) error
}

// Snapshot is the atomic unit published after each refresh cycle. It is
// replaced wholesale and must never be mutated by consumers.
type Snapshot struct {
	Appliances     []firewalla.Appliance     `json:"appliances"`
	Rules          []firewalla.Rule          `json:"rules"`
	NetworkClients []firewalla.NetworkClient `json:"network_clients"`
	Groups         map[string]string         `json:"groups"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// Rule returns the rule with the given id, if present.
func (s *Snapshot) Rule(id string) (firewalla.Rule, bool) {
	for _, r := range s.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return firewalla.Rule{}, false
}

// Appliance returns the appliance with the given gid, if present.
func (s *Snapshot) Appliance(gid string) (firewalla.Appliance, bool) {
	for _, a := range s.Appliances {
		if a.GID == gid {
			return a, true
		}
	}
	return firewalla.Appliance{}, false
}

// Coordinator runs the periodic refresh cycle and owns the last published
// snapshot. Appliances are load-bearing and fail the cycle when missing;
// rules degrade per appliance, and network clients and the group directory
// are enrichment that degrades quietly.
type Coordinator struct {
	client   Client
	logger   *logrus.Logger
	recorder Recorder
	interval time.Duration

	refreshCh chan struct{}

	mu          sync.RWMutex
	snapshot    *Snapshot
	lastSuccess bool
}

func New(client Client, interval time.Duration, recorder Recorder, logger *logrus.Logger) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coordinator{
		client:    client,
		logger:    logger,
		recorder:  recorder,
		interval:  interval,
		refreshCh: make(chan struct{}, 1),
	}
}

// Start runs the refresh loop until the context is cancelled. An initial
// refresh happens immediately.
func (c *Coordinator) Start(ctx context.Context) {
	c.logger.Infof("Starting refresh loop (interval %s)", c.interval)

	if err := c.Refresh(ctx); err != nil {
		c.logger.Errorf("Initial refresh failed: %v", err)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stopping refresh loop")
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Errorf("Scheduled refresh failed: %v", err)
			}
		case <-c.refreshCh:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Errorf("Requested refresh failed: %v", err)
			}
		}
	}
}

// RequestRefresh schedules an out-of-band refresh. It never blocks; a
// refresh already pending is enough.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

// Refresh runs one full cycle: appliances (mandatory), rules per appliance
// (best-effort), network clients (best-effort with stale retention), group
// directory, then publishes the new snapshot atomically.
func (c *Coordinator) Refresh(ctx context.Context) error {
	appliances := c.client.GetAppliances(ctx)
	if len(appliances) == 0 {
		c.mu.Lock()
		c.lastSuccess = false
		c.mu.Unlock()
		c.record("refresh_failed", "", "appliance fetch returned no data")
		return fmt.Errorf("%w: appliance fetch returned no data", ErrUpdateFailed)
	}

	var rules []firewalla.Rule
	for _, a := range appliances {
		if a.GID == "" {
			c.logger.Warnf("Skipping appliance %q without gid", a.Name)
			continue
		}
		applianceRules := c.client.GetRules(ctx, a.GID)
		if len(applianceRules) == 0 {
			c.logger.Warnf("No rules returned for appliance %s", a.GID)
			continue
		}
		for i := range applianceRules {
			// Data-quality fallback: a rule missing its join key belongs
			// to the appliance it was fetched for.
			if applianceRules[i].GID == "" {
				applianceRules[i].GID = a.GID
			}
		}
		rules = append(rules, applianceRules...)
	}

	prev := c.currentSnapshot()
	clients := c.collectNetworkClients(ctx, appliances, prev)

	snap := &Snapshot{
		Appliances:     appliances,
		Rules:          rules,
		NetworkClients: clients,
		Groups:         BuildGroupDirectory(clients),
		UpdatedAt:      time.Now().UTC(),
	}

	c.mu.Lock()
	c.snapshot = snap
	c.lastSuccess = true
	c.mu.Unlock()

	c.logger.Debugf("Published snapshot: %d appliances, %d rules, %d network clients, %d groups",
		len(snap.Appliances), len(snap.Rules), len(snap.NetworkClients), len(snap.Groups))
	return nil
}

// collectNetworkClients gathers LAN devices per appliance. A failed fetch
// keeps the previous cycle's data for that appliance instead of failing the
// cycle; a nil result from the client means failure, an empty slice means
// the appliance genuinely reports no clients.
func (c *Coordinator) collectNetworkClients(ctx context.Context, appliances []firewalla.Appliance, prev *Snapshot) []firewalla.NetworkClient {
	var out []firewalla.NetworkClient
	for _, a := range appliances {
		if a.GID == "" {
			continue
		}
		clients := c.client.GetNetworkClients(ctx, a.GID)
		if clients == nil {
			c.logger.Warnf("Network client fetch failed for appliance %s, keeping previous data", a.GID)
			if prev != nil {
				for _, nc := range prev.NetworkClients {
					if nc.GID == a.GID {
						out = append(out, nc)
					}
				}
			}
			continue
		}
		out = append(out, clients...)
	}
	return out
}

// BuildGroupDirectory maps device-group ids to their names, rebuilt each
// cycle from the network-client set.
func BuildGroupDirectory(clients []firewalla.NetworkClient) map[string]string {
	groups := make(map[string]string)
	for _, nc := range clients {
		if nc.Group.ID != "" && nc.Group.Name != "" {
			groups[nc.Group.ID] = nc.Group.Name
		}
	}
	return groups
}

// Snapshot returns the last published snapshot. The returned value is shared
// and read-only.
func (c *Coordinator) Snapshot() (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.snapshot != nil
}

// LastUpdateSuccess reports whether the most recent cycle published a fresh
// snapshot.
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

// PauseRule asks the appliance to pause a rule and optimistically reflects
// the change in the cached snapshot until the next refresh confirms it.
func (c *Coordinator) PauseRule(ctx context.Context, ruleID string) bool {
	return c.setRuleState(ctx, ruleID, firewalla.RuleStatePaused)
}

// ResumeRule asks the appliance to resume a rule and optimistically reflects
// the change in the cached snapshot until the next refresh confirms it.
func (c *Coordinator) ResumeRule(ctx context.Context, ruleID string) bool {
	return c.setRuleState(ctx, ruleID, firewalla.RuleStateActive)
}

func (c *Coordinator) setRuleState(ctx context.Context, ruleID string, state firewalla.RuleState) bool {
	event := "rule_resumed"
	if state == firewalla.RuleStatePaused {
		event = "rule_paused"
	}

	ok := c.client.SetRuleState(ctx, ruleID, state)
	if ok {
		c.patchRule(ruleID, state)
		c.record(event, ruleID, "state change accepted")
	} else {
		c.logger.Errorf("Failed to set rule %s to %s", ruleID, state)
		c.record("action_failed", ruleID, fmt.Sprintf("could not set state to %s", state))
	}

	// Reconcile with ground truth either way.
	c.RequestRefresh()
	return ok
}

// patchRule publishes a copy of the current snapshot with one rule's state
// updated. Snapshots are replaced, never mutated in place, so readers
// holding the old pointer keep a consistent view.
func (c *Coordinator) patchRule(ruleID string, state firewalla.RuleState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return
	}

	next := *c.snapshot
	next.Rules = make([]firewalla.Rule, len(c.snapshot.Rules))
	copy(next.Rules, c.snapshot.Rules)
	for i := range next.Rules {
		if next.Rules[i].ID == ruleID {
			next.Rules[i].Status = string(state)
			next.Rules[i].Paused = state == firewalla.RuleStatePaused
		}
	}
	c.snapshot = &next
}

func (c *Coordinator) currentSnapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Coordinator) record(event, ruleID, message string) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordEvent(event, ruleID, message); err != nil {
		c.logger.Errorf("Failed to record %s event: %v", event, err)
	}
}
