package testutils

// FixtureAppliances returns two appliances, one online and one offline.
func FixtureAppliances() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"gid":         "gid-1",
			"name":        "Home Box",
			"model":       "gold",
			"version":     "1.975",
			"mode":        "router",
			"license":     "pro",
			"online":      true,
			"publicIP":    "203.0.113.10",
			"location":    "Hamburg, DE",
			"deviceCount": 12,
			"ruleCount":   3,
			"alarmCount":  1,
		},
		{
			"gid":         "gid-2",
			"name":        "Office Box",
			"model":       "purple",
			"version":     "1.974",
			"mode":        "simple",
			"license":     "basic",
			"online":      false,
			"deviceCount": 4,
			"ruleCount":   1,
			"alarmCount":  0,
		},
	}
}

// FixtureRules returns rules covering active, paused and disabled states,
// plus a group-scoped one.
func FixtureRules() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"id":     "r1",
			"gid":    "gid-1",
			"type":   "domain",
			"action": "block",
			"target": "example.com",
			"status": "active",
			"paused": false,
			"ts":     1700000000,
		},
		{
			"id":     "r2",
			"gid":    "gid-1",
			"type":   "ip",
			"action": "allow",
			"target": map[string]interface{}{"type": "ip", "value": "192.0.2.50"},
			"status": "paused",
			"paused": true,
		},
		{
			"id":       "r3",
			"gid":      "gid-1",
			"type":     "category",
			"action":   "timelimit",
			"target":   "games",
			"disabled": true,
		},
		{
			"id":     "r4",
			"gid":    "gid-2",
			"type":   "domain",
			"action": "block",
			"target": "ads.example.net",
			"scope":  map[string]interface{}{"type": "group", "value": "grp-1"},
			"status": "active",
		},
	}
}

// FixtureNetworkClients returns LAN devices for both appliances, including
// one with network and group membership.
func FixtureNetworkClients() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"id":            "mac:AA:BB:CC:DD:EE:01",
			"gid":           "gid-1",
			"name":          "Laptop",
			"macVendor":     "Apple",
			"ip":            "192.168.1.100",
			"online":        true,
			"lastSeen":      1700000100.5,
			"totalDownload": 1048576,
			"totalUpload":   524288,
			"network":       map[string]interface{}{"id": "net-1", "name": "LAN"},
			"group":         map[string]interface{}{"id": "grp-1", "name": "Kids"},
		},
		{
			"id":            "mac:AA:BB:CC:DD:EE:02",
			"gid":           "gid-1",
			"name":          "Printer",
			"ip":            "192.168.1.101",
			"online":        false,
			"lastSeen":      1699990000,
			"totalDownload": 2048,
			"totalUpload":   4096,
		},
		{
			"id":            "mac:AA:BB:CC:DD:EE:03",
			"gid":           "gid-2",
			"name":          "Office NAS",
			"ip":            "10.0.0.5",
			"online":        true,
			"totalDownload": 8192,
			"totalUpload":   16384,
		},
	}
}
