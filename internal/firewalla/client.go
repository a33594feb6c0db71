package firewalla

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RuleState is the desired enforcement state of a rule.
type RuleState string

const (
	RuleStatePaused RuleState = "paused"
	RuleStateActive RuleState = "active"
)

// DefaultTimeout bounds every request so a hung connection cannot stall a
// refresh cycle.
const DefaultTimeout = 15 * time.Second

// Client talks to the Firewalla MSP API. All operations degrade to empty
// results or false on failure; callers never see a transport error.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	logger  Logger
}

// NewClient creates a client for the API at the given host. A bare hostname
// is dialed over https.
func NewClient(host, apiKey string, timeout time.Duration, logger Logger) *Client {
	base := strings.TrimRight(host, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: base,
		apiKey:  apiKey,
		logger:  logger,
	}
}

// GetAppliances fetches the appliance list. An empty result means the fetch
// failed; callers treat it as a hard failure for the cycle.
func (c *Client) GetAppliances(ctx context.Context) []Appliance {
	data, ok := c.get(ctx, "/v2/boxes", nil)
	if !ok {
		return nil
	}
	return NormalizeAppliances(data, c.logger)
}

// GetRules fetches the rules for one appliance. A nil result means no rules
// could be obtained for this appliance; the refresh cycle continues.
func (c *Client) GetRules(ctx context.Context, gid string) []Rule {
	query := url.Values{}
	if gid != "" {
		query.Set("gid", gid)
	}
	data, ok := c.get(ctx, "/v2/rules", query)
	if !ok {
		return nil
	}
	return NormalizeRules(data, c.logger)
}

// GetNetworkClients fetches the LAN devices seen by one appliance. nil means
// the fetch failed; an empty slice means the appliance reports no clients.
func (c *Client) GetNetworkClients(ctx context.Context, gid string) []NetworkClient {
	query := url.Values{}
	if gid != "" {
		query.Set("gid", gid)
	}
	data, ok := c.get(ctx, "/v2/devices", query)
	if !ok {
		return nil
	}
	return NormalizeNetworkClients(data, c.logger)
}

// SetRuleState pauses or resumes a rule. An HTTP 200 counts as success even
// when the body is not parseable JSON.
func (c *Client) SetRuleState(ctx context.Context, ruleID string, state RuleState) bool {
	action := "resume"
	if state == RuleStatePaused {
		action = "pause"
	}
	path := "/v2/rules/" + url.PathEscape(ruleID) + "/" + action

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		c.logger.Errorf("failed to build %s request for rule %s: %v", action, ruleID, err)
		return false
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Errorf("failed to %s rule %s: %v", action, ruleID, err)
		return false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		c.logger.Errorf("%s rule %s returned status %d: %s",
			action, ruleID, resp.StatusCode, strings.TrimSpace(string(body)))
		return false
	}

	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.logger.Debugf("%s rule %s returned 200 with non-JSON body, treating as success", action, ruleID)
	} else {
		c.logger.Debugf("%s rule %s response: %v", action, ruleID, parsed)
	}
	return true
}

// get issues an authenticated GET and decodes the body. It reports failure
// instead of returning an error so shape surprises and transport problems
// stay contained here.
func (c *Client) get(ctx context.Context, path string, query url.Values) (any, bool) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		c.logger.Errorf("failed to build request for %s: %v", path, err)
		return nil, false
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Errorf("request to %s failed: %v", path, err)
		return nil, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Errorf("failed to read %s response: %v", path, err)
		return nil, false
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Errorf("GET %s returned status %d: %s",
			path, resp.StatusCode, strings.TrimSpace(string(body)))
		return nil, false
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		c.logger.Errorf("failed to decode %s response: %v", path, err)
		return nil, false
	}
	return data, true
}
