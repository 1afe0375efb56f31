package generator

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// SchemaVersion is the document shape written by this package.
//
// History:
//   - 0: bare JSON array of items, no role
//   - 1: {"role_id": ..., "items": [...]} without a schema marker
//   - 2: same as 1 plus "schema": 2
const SchemaVersion = 2

// Legacy item keys, checked after the canonical key.
var itemKeyAliases = map[string][]string{
	"kind":          {"type", "gen_type"},
	"started_at":    {"timestamp", "start_time", "startedAt"},
	"alerts_muted":  {"muted", "alertsMuted"},
	"alerted_low":   {"alertedLow"},
	"alerted_empty": {"alertedEmpty"},
}

// Normalize decodes a stored list document of any known schema version and
// returns it in the current shape. changed reports whether the normalized form
// differs from the input and should be written back.
//
// Entries that cannot be salvaged (no name, unknown kind, not an object) are
// dropped. now fills in a missing start time.
//
// An error is returned only when the document is not JSON at all.
func Normalize(raw []byte, now time.Time) (list List, changed bool, err error) {
	list = List{Schema: SchemaVersion, Items: []Item{}}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return list, false, fmt.Errorf("decode list document: %w", err)
	}

	var rawItems []any
	switch v := doc.(type) {
	case []any:
		rawItems = v
	case map[string]any:
		if r, ok := firstString(v, "role_id", "role", "roleId"); ok {
			list.RoleID = r
		}
		if arr, ok := v["items"].([]any); ok {
			rawItems = arr
		}
	case nil:
	default:
		return list, true, nil
	}

	seen := make(map[string]bool, len(rawItems))
	for _, ri := range rawItems {
		m, ok := ri.(map[string]any)
		if !ok {
			continue
		}
		it, ok := normalizeItem(m, now)
		if !ok {
			continue
		}
		key := strings.ToLower(it.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		list.Items = append(list.Items, it)
	}

	return list, !sameJSON(doc, list), nil
}

func normalizeItem(m map[string]any, now time.Time) (Item, bool) {
	name, ok := firstString(m, "name")
	if !ok || strings.TrimSpace(name) == "" {
		return Item{}, false
	}
	kindRaw, _ := lookup(m, "kind")
	kindStr, _ := kindRaw.(string)
	kind, err := ParseKind(kindStr)
	if err != nil {
		return Item{}, false
	}

	it := Item{Name: strings.TrimSpace(name), Kind: kind}
	it.setFuel(Fuel{
		Primary:   pickInt(m, kind, "shards", "gas"),
		Secondary: pickInt(m, kind, "element", "imbued"),
	})

	if v, ok := lookup(m, "started_at"); ok {
		if ts, ok := toUnix(v); ok {
			it.StartedAt = ts
		}
	}
	if it.StartedAt <= 0 {
		it.StartedAt = now.Unix()
	}

	it.Expired = boolField(m, "expired")
	it.AlertedLow = boolField(m, "alerted_low")
	it.AlertedEmpty = boolField(m, "alerted_empty")
	it.AlertsMuted = boolField(m, "alerts_muted")
	if s, ok := m["notes"].(string); ok {
		it.Notes = s
	}
	return it, true
}

func lookup(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for _, alias := range itemKeyAliases[key] {
		if v, ok := m[alias]; ok {
			return v, true
		}
	}
	return nil, false
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			return v, true
		case float64:
			// Snowflake-style ids sometimes got stored as numbers.
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
	}
	return "", false
}

func pickInt(m map[string]any, kind Kind, tekKey, elecKey string) int {
	key := tekKey
	if kind == KindElectrical {
		key = elecKey
	}
	v, ok := m[key]
	if !ok {
		return 0
	}
	n, _ := toInt(v)
	return n
}

func toInt(v any) (int, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || f <= 0 {
		return 0, true
	}
	if f > MaxFuel {
		return MaxFuel, true
	}
	return int(f), true
}

func toUnix(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(n), true
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

func boolField(m map[string]any, key string) bool {
	v, ok := lookup(m, key)
	if !ok {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(x))
		return b
	}
	return false
}

// sameJSON compares the decoded input with the JSON form of the normalized list.
func sameJSON(doc any, list List) bool {
	b, err := json.Marshal(list)
	if err != nil {
		return false
	}
	var norm any
	if err := json.Unmarshal(b, &norm); err != nil {
		return false
	}
	return reflect.DeepEqual(doc, norm)
}
