package firewalla

import (
	"encoding/json"
	"fmt"
	"time"
)

// Appliance represents a Firewalla box as returned by /v2/boxes.
type Appliance struct {
	GID         string    `json:"gid"`
	Name        string    `json:"name"`
	Model       string    `json:"model"`
	Version     string    `json:"version"`
	Mode        string    `json:"mode"`
	License     string    `json:"license"`
	Online      bool      `json:"online"`
	PublicIP    string    `json:"publicIP,omitempty"`
	Location    string    `json:"location,omitempty"`
	DeviceCount int       `json:"deviceCount"`
	RuleCount   int       `json:"ruleCount"`
	AlarmCount  int       `json:"alarmCount"`
	LastSeen    EpochTime `json:"lastSeen,omitempty"`
}

// Rule represents a traffic policy on an appliance. The API returns rules
// under several envelope shapes; NormalizeRules produces this form.
type Rule struct {
	ID        string     `json:"id"`
	GID       string     `json:"gid"`
	Type      string     `json:"type,omitempty"`
	Action    string     `json:"action,omitempty"`
	Target    RuleTarget `json:"target,omitempty"`
	Scope     RuleScope  `json:"scope,omitempty"`
	Status    string     `json:"status,omitempty"`
	Paused    bool       `json:"paused"`
	Disabled  bool       `json:"disabled"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt EpochTime  `json:"ts,omitempty"`
	UpdatedAt EpochTime  `json:"updateTs,omitempty"`
}

// IsActive reports whether the rule is currently enforcing. Both the status
// field and the legacy paused boolean can mark a rule as soft-off.
func (r Rule) IsActive() bool {
	return !r.Paused && r.Status != "paused"
}

// RuleTarget is what a rule applies to. The API sends either a bare string
// or an object with type/value.
type RuleTarget struct {
	Type    string `json:"type,omitempty"`
	Value   string `json:"value,omitempty"`
	DNSOnly bool   `json:"dnsOnly,omitempty"`
}

func (t *RuleTarget) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		t.Value = s
		return nil
	}

	var obj struct {
		Type    string `json:"type"`
		Value   any    `json:"value"`
		DNSOnly bool   `json:"dnsOnly"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	t.Type = obj.Type
	if obj.Value != nil {
		t.Value = fmt.Sprint(obj.Value)
	}
	t.DNSOnly = obj.DNSOnly
	return nil
}

// RuleScope narrows a rule to a network, device or device group. When Type
// is "group", Value holds a group id resolvable through the group directory.
type RuleScope struct {
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
}

func (s *RuleScope) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		s.Value = str
		return nil
	}

	var obj struct {
		Type  string `json:"type"`
		Value any    `json:"value"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	s.Type = obj.Type
	if obj.Value != nil {
		s.Value = fmt.Sprint(obj.Value)
	}
	return nil
}

// NetworkClient is a LAN device observed by an appliance, from /v2/devices.
type NetworkClient struct {
	ID            string    `json:"id"`
	GID           string    `json:"gid"`
	Name          string    `json:"name,omitempty"`
	MACVendor     string    `json:"macVendor,omitempty"`
	IP            string    `json:"ip,omitempty"`
	Online        bool      `json:"online"`
	LastSeen      EpochTime `json:"lastSeen,omitempty"`
	TotalDownload int64     `json:"totalDownload"`
	TotalUpload   int64     `json:"totalUpload"`
	IPReserved    bool      `json:"ipReserved,omitempty"`
	Network       GroupRef  `json:"network,omitempty"`
	Group         GroupRef  `json:"group,omitempty"`
}

// GroupRef is an {id, name} pair referencing a network or device group.
type GroupRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// EpochTime is a unix timestamp in seconds. The API is inconsistent about
// whether it sends numbers or numeric strings, and sometimes includes
// fractional seconds.
type EpochTime float64

func (e *EpochTime) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*e = EpochTime(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp is neither number nor string: %s", b)
	}
	if s == "" {
		*e = 0
		return nil
	}
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return fmt.Errorf("invalid timestamp %q", s)
	}
	*e = EpochTime(f)
	return nil
}

// Time converts the timestamp to a time.Time in UTC. Zero means unset.
func (e EpochTime) Time() time.Time {
	if e == 0 {
		return time.Time{}
	}
	sec := int64(e)
	nsec := int64((float64(e) - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// ISO8601 renders the timestamp for display, or "" when unset.
func (e EpochTime) ISO8601() string {
	if e == 0 {
		return ""
	}
	return e.Time().Format(time.RFC3339)
}
