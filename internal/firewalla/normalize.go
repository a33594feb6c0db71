package firewalla

import (
	"encoding/json"
	"sort"
	"strings"
)

// The rules endpoint wraps its payload in different envelopes depending on
// endpoint version and query parameters. Each shape is handled by a named
// strategy; the first one whose predicate matches wins, even if it yields
// no records.
type ruleShape struct {
	name    string
	extract func(data any) ([]map[string]any, bool)
}

var ruleShapes = []ruleShape{
	{"list", shapeList},
	{"envelope", shapeEnvelope},
	{"single-list-value", shapeSingleListValue},
	{"keyed-entries", shapeKeyedEntries},
	{"single-rule", shapeSingleRule},
}

// envelopeKeys are the known wrapper keys, in lookup order.
var envelopeKeys = []string{"rules", "data", "items", "results"}

// NormalizeAppliances coerces a decoded /v2/boxes response into a list of
// appliances. Anything other than a JSON array degrades to an empty result.
func NormalizeAppliances(data any, logger Logger) []Appliance {
	list, ok := data.([]any)
	if !ok {
		logger.Errorf("expected list of appliances but got %T", data)
		return nil
	}

	var out []Appliance
	for _, entry := range list {
		rec, ok := entry.(map[string]any)
		if !ok {
			logger.Warnf("skipping non-object appliance entry of type %T", entry)
			continue
		}
		var a Appliance
		if err := decodeRecord(rec, &a); err != nil {
			logger.Warnf("skipping undecodable appliance entry: %v", err)
			continue
		}
		out = append(out, a)
	}
	return out
}

// NormalizeNetworkClients coerces a decoded /v2/devices response into a list
// of network clients. Anything other than a JSON array degrades to an empty
// result.
func NormalizeNetworkClients(data any, logger Logger) []NetworkClient {
	list, ok := data.([]any)
	if !ok {
		logger.Errorf("expected list of network clients but got %T", data)
		return nil
	}

	out := make([]NetworkClient, 0, len(list))
	for _, entry := range list {
		rec, ok := entry.(map[string]any)
		if !ok {
			logger.Warnf("skipping non-object network client entry of type %T", entry)
			continue
		}
		var nc NetworkClient
		if err := decodeRecord(rec, &nc); err != nil {
			logger.Warnf("skipping undecodable network client entry: %v", err)
			continue
		}
		out = append(out, nc)
	}
	return out
}

// NormalizeRules locates the rule list inside an arbitrarily shaped response
// and decodes it. Every returned rule carries a non-empty id; rules the API
// ships without one get a deterministic synthetic id.
func NormalizeRules(data any, logger Logger) []Rule {
	for _, shape := range ruleShapes {
		records, ok := shape.extract(data)
		if !ok {
			continue
		}
		logger.Debugf("rules response matched %q shape with %d records", shape.name, len(records))

		var out []Rule
		for _, rec := range records {
			var r Rule
			if err := decodeRecord(rec, &r); err != nil {
				logger.Warnf("skipping undecodable rule entry: %v", err)
				continue
			}
			if r.ID == "" {
				r.ID = SynthesizeRuleID(r.Type, r.Target.Value)
				logger.Warnf("rule missing id, synthesized %q", r.ID)
			}
			out = append(out, r)
		}
		return out
	}

	logger.Errorf("could not extract rules from response of type %T", data)
	return nil
}

// SynthesizeRuleID builds a stable rule id from the rule type and target
// value. Two calls with the same inputs always yield the same id, so entity
// identity survives refreshes even when the API omits ids.
func SynthesizeRuleID(ruleType, targetValue string) string {
	if targetValue == "" {
		targetValue = "unknown"
	}
	id := "rule_" + ruleType + "_" + targetValue
	return strings.ToLower(strings.ReplaceAll(id, " ", "_"))
}

// shapeList matches a response that is already a list of records.
func shapeList(data any) ([]map[string]any, bool) {
	list, ok := data.([]any)
	if !ok {
		return nil, false
	}
	return objectEntries(list), true
}

// shapeEnvelope matches a mapping wrapping the list under a well-known key.
func shapeEnvelope(data any) ([]map[string]any, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, key := range envelopeKeys {
		if list, ok := m[key].([]any); ok {
			return objectEntries(list), true
		}
	}
	return nil, false
}

// shapeSingleListValue matches a mapping with exactly one key whose value is
// a non-empty list of objects, on the assumption that the one array field is
// the payload.
func shapeSingleListValue(data any) ([]map[string]any, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return nil, false
	}

	var found []any
	candidates := 0
	for _, v := range m {
		list, ok := v.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		if _, ok := list[0].(map[string]any); !ok {
			continue
		}
		candidates++
		found = list
	}
	if candidates != 1 {
		return nil, false
	}
	return objectEntries(found), true
}

// shapeKeyedEntries matches a mapping whose entries are themselves rules:
// either the value carries an id field, or the key is "rule_"-prefixed and
// gets injected as the id. Keys are visited in sorted order so the result is
// deterministic.
func shapeKeyedEntries(data any) ([]map[string]any, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return nil, false
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []map[string]any
	for _, k := range keys {
		entry, ok := m[k].(map[string]any)
		if !ok {
			continue
		}
		if _, hasID := entry["id"]; hasID {
			out = append(out, entry)
		} else if strings.HasPrefix(k, "rule_") {
			rec := make(map[string]any, len(entry)+1)
			for ek, ev := range entry {
				rec[ek] = ev
			}
			rec["id"] = k
			out = append(out, rec)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// shapeSingleRule matches a mapping that itself looks like one rule. A rule
// without an id but with a gid gets "rule_{gid}" as its id.
func shapeSingleRule(data any) ([]map[string]any, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return nil, false
	}

	looksLikeRule := false
	for _, key := range []string{"id", "target", "action"} {
		if _, present := m[key]; present {
			looksLikeRule = true
			break
		}
	}
	if !looksLikeRule {
		return nil, false
	}

	if _, hasID := m["id"]; !hasID {
		if gid, ok := m["gid"].(string); ok && gid != "" {
			rec := make(map[string]any, len(m)+1)
			for k, v := range m {
				rec[k] = v
			}
			rec["id"] = "rule_" + gid
			return []map[string]any{rec}, true
		}
	}
	return []map[string]any{m}, true
}

func objectEntries(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if rec, ok := entry.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}

// decodeRecord converts a generic JSON object into a typed record via a
// marshal round trip, which keeps the flexible field handling (string or
// object targets, string or number timestamps) in one place.
func decodeRecord(rec map[string]any, dst any) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
