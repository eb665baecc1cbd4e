package regid

import "fmt"

// stateEntry maps a state to its 2-letter code and district codes.
type stateEntry struct {
	code      string
	districts map[string]string
}

var stateDistrictCodes = map[string]stateEntry{
	"Andhra Pradesh": {
		code: "AP",
		districts: map[string]string{
			"Visakhapatnam": "VS",
			"Vijayawada":    "VJ",
			"Guntur":        "GN",
			"Tirupati":      "TP",
			"Kakinada":      "KK",
			"Rajahmundry":   "RJ",
			"Nellore":       "NL",
			"Kurnool":       "KR",
		},
	},
	"Telangana": {
		code: "TS",
		districts: map[string]string{
			"Hyderabad":  "HY",
			"Warangal":   "WG",
			"Nizamabad":  "NZ",
			"Karimnagar": "KN",
		},
	},
	"Karnataka": {
		code: "KA",
		districts: map[string]string{
			"Bengaluru": "BN",
			"Mysuru":    "MY",
			"Mangaluru": "MG",
			"Hubballi":  "HB",
		},
	},
	"Tamil Nadu": {
		code: "TN",
		districts: map[string]string{
			"Chennai":    "CH",
			"Coimbatore": "CB",
			"Madurai":    "MD",
			"Salem":      "SL",
		},
	},
	"Maharashtra": {
		code: "MH",
		districts: map[string]string{
			"Mumbai": "MB",
			"Pune":   "PN",
			"Nagpur": "NG",
		},
	},
	"Delhi": {
		code: "DL",
		districts: map[string]string{
			"New Delhi":   "ND",
			"North Delhi": "NO",
			"South Delhi": "SO",
		},
	},
	"Odisha": {
		code: "OD",
		districts: map[string]string{
			"Bhubaneswar": "BB",
			"Cuttack":     "CT",
		},
	},
}

// eventCodes maps competition event codes to display names.
var eventCodes = map[string]string{
	"ASB": "Astrobot",
	"SPL": "Space Pilot",
	"CDX": "CodeX",
	"TDM": "3D Maker",
	"INV": "Innoverse",
}

// StateCode resolves a state name to its 2-letter code.
func StateCode(stateName string) (string, error) {
	entry, ok := stateDistrictCodes[stateName]
	if !ok {
		return "", fmt.Errorf("invalid state: %s", stateName)
	}
	return entry.code, nil
}

// DistrictCode resolves a district within a state to its 2-letter code.
func DistrictCode(stateName, districtName string) (string, error) {
	entry, ok := stateDistrictCodes[stateName]
	if !ok {
		return "", fmt.Errorf("invalid state: %s", stateName)
	}
	code, ok := entry.districts[districtName]
	if !ok {
		return "", fmt.Errorf("invalid district %q for state %q", districtName, stateName)
	}
	return code, nil
}

// EventName resolves an event code to its display name.
func EventName(code string) (string, bool) {
	name, ok := eventCodes[code]
	return name, ok
}

// ValidEventCode reports whether code names a known competition event.
func ValidEventCode(code string) bool {
	_, ok := eventCodes[code]
	return ok
}
