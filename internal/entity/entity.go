// Package entity projects a coordinator snapshot into flat, observable
// entity descriptors: status flags, counters and toggle controls, one per
// observable fact. Consumers render these however they like; the projection
// itself is pure.
package entity

import (
	"strings"

	"firewalla-bridge/internal/coordinator"
	"firewalla-bridge/internal/firewalla"
)

type Kind string

const (
	KindSensor       Kind = "sensor"
	KindBinarySensor Kind = "binary_sensor"
	KindSwitch       Kind = "switch"
)

// Entity is one observable value derived from the snapshot.
type Entity struct {
	UniqueID   string         `json:"unique_id"`
	Kind       Kind           `json:"kind"`
	Name       string         `json:"name"`
	State      any            `json:"state"`
	Unit       string         `json:"unit,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Project builds the full entity set for a snapshot: per-appliance counters
// and online flags, one switch per rule, and per-network-client sensors.
func Project(snap *coordinator.Snapshot) []Entity {
	if snap == nil {
		return nil
	}

	var out []Entity
	for _, a := range snap.Appliances {
		out = append(out, applianceEntities(a)...)
	}
	for _, r := range snap.Rules {
		if e, ok := ruleSwitch(snap, r); ok {
			out = append(out, e)
		}
	}
	for _, nc := range snap.NetworkClients {
		out = append(out, networkClientEntities(nc)...)
	}
	return out
}

func applianceEntities(a firewalla.Appliance) []Entity {
	attrs := map[string]any{
		"gid":     a.GID,
		"model":   a.Model,
		"version": a.Version,
		"mode":    a.Mode,
		"license": a.License,
	}
	if a.PublicIP != "" {
		attrs["public_ip"] = a.PublicIP
	}
	if a.Location != "" {
		attrs["location"] = a.Location
	}

	return []Entity{
		{
			UniqueID:   a.GID + "_online",
			Kind:       KindBinarySensor,
			Name:       a.Name + " Online",
			State:      a.Online,
			Attributes: attrs,
		},
		{
			UniqueID: a.GID + "_device_count",
			Kind:     KindSensor,
			Name:     a.Name + " Device Count",
			State:    a.DeviceCount,
		},
		{
			UniqueID: a.GID + "_rule_count",
			Kind:     KindSensor,
			Name:     a.Name + " Rule Count",
			State:    a.RuleCount,
		},
		{
			UniqueID: a.GID + "_alarm_count",
			Kind:     KindSensor,
			Name:     a.Name + " Alarm Count",
			State:    a.AlarmCount,
		},
	}
}

// ruleSwitch builds the toggle for one rule. Disabled rules stay in the
// snapshot but are excluded here; rules whose appliance is unknown are
// skipped as well.
func ruleSwitch(snap *coordinator.Snapshot, r firewalla.Rule) (Entity, bool) {
	if r.Disabled {
		return Entity{}, false
	}
	appliance, ok := snap.Appliance(r.GID)
	if !ok {
		return Entity{}, false
	}

	attrs := map[string]any{
		"rule_id":  r.ID,
		"gid":      r.GID,
		"type":     orUnknown(r.Type),
		"target":   orUnknown(r.Target.Value),
		"action":   orUnknown(r.Action),
		"disabled": r.Disabled,
	}
	if r.Notes != "" {
		attrs["notes"] = r.Notes
	}
	if r.CreatedAt != 0 {
		attrs["created_at"] = r.CreatedAt.ISO8601()
	}
	if r.UpdatedAt != 0 {
		attrs["updated_at"] = r.UpdatedAt.ISO8601()
	}
	if r.Scope.Type == "group" && r.Scope.Value != "" {
		if name, ok := snap.Groups[r.Scope.Value]; ok {
			attrs["group"] = name
		}
	}

	safeID := strings.ReplaceAll(r.ID, "-", "_")
	return Entity{
		UniqueID:   r.GID + "_rule_" + safeID,
		Kind:       KindSwitch,
		Name:       appliance.Name + " Rule: " + orUnknown(r.Type) + " - " + orUnknown(r.Target.Value),
		State:      r.IsActive(),
		Attributes: attrs,
	}, true
}

func networkClientEntities(nc firewalla.NetworkClient) []Entity {
	attrs := map[string]any{
		"ip":  nc.IP,
		"mac": strings.TrimPrefix(nc.ID, "mac:"),
		"gid": nc.GID,
	}
	if nc.MACVendor != "" {
		attrs["vendor"] = nc.MACVendor
	}
	if nc.Network.Name != "" {
		attrs["network"] = nc.Network.Name
	}
	if nc.Group.Name != "" {
		attrs["group"] = nc.Group.Name
	}
	if nc.LastSeen != 0 {
		attrs["last_seen"] = nc.LastSeen.ISO8601()
	}
	if nc.IPReserved {
		attrs["ip_reserved"] = true
	}

	name := nc.Name
	if name == "" {
		name = nc.ID
	}
	status := "offline"
	if nc.Online {
		status = "online"
	}
	safeID := strings.NewReplacer(":", "_", ".", "_").Replace(nc.ID)

	return []Entity{
		{
			UniqueID:   safeID + "_status",
			Kind:       KindSensor,
			Name:       name + " Status",
			State:      status,
			Attributes: attrs,
		},
		{
			UniqueID: safeID + "_download",
			Kind:     KindSensor,
			Name:     name + " Download",
			State:    nc.TotalDownload,
			Unit:     "B",
		},
		{
			UniqueID: safeID + "_upload",
			Kind:     KindSensor,
			Name:     name + " Upload",
			State:    nc.TotalUpload,
			Unit:     "B",
		},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
