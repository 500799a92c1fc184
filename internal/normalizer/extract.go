package normalizer

import (
	"sort"
	"strconv"
	"strings"
)

// Nested provider objects whose sub-fields get flattened to the top level.
var nestedObjects = []string{"user", "invoice", "client", "payer", "deposit", "event"}

// Sub-field renames applied during flattening. Keys already present at the
// top level are never overwritten (first-writer-wins).
var flattenRenames = map[string]string{
	"phone_number": "phone",
	"birth_date":   "date_birth",
	"user_ip":      "ip_address",
	"ip":           "ip_address",
	"fb_id":        "fbp",
	"inviter_code": "usernameIndication",
	"affiliate":    "usernameIndication",
	"indication":   "usernameIndication",
	"amount":       "value",
	"unique_id":    "deposit_id",
	"qrcodedata":   "qrCode",
	"event_type":   "type",
}

// flatten lifts known nested objects up to the top level of the payload.
// Providers wrap the interesting objects either directly or under a "data"
// envelope; both shapes collapse to one flat map here so the rest of the
// pipeline never branches on shape again.
func flatten(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}

	if data, ok := out["data"].(map[string]any); ok {
		for k, v := range data {
			setIfAbsent(out, k, v)
		}
	}

	for _, name := range nestedObjects {
		obj, ok := out[name].(map[string]any)
		if !ok {
			continue
		}
		// Literal keys land before renamed ones, so an object that carries
		// both spellings ("phone" next to "phone_number") resolves the same
		// way on every request.
		literal, renamed := partitionKeys(obj)
		for _, k := range literal {
			key := k
			// user.id is an account id, not an event id
			if key == "id" && name != "invoice" {
				key = "user_id"
			}
			setIfAbsent(out, key, obj[k])
		}
		for _, k := range renamed {
			setIfAbsent(out, flattenRenames[k], obj[k])
		}
	}

	// Flat provider shapes use their own spellings for the same fields.
	for _, from := range renameSources {
		if v, ok := out[from]; ok {
			setIfAbsent(out, flattenRenames[from], v)
		}
	}

	return out
}

// renameSources is flattenRenames' key set in a fixed order; two sources
// mapping to the same target must not race on map iteration order.
var renameSources = func() []string {
	keys := make([]string, 0, len(flattenRenames))
	for k := range flattenRenames {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}()

func partitionKeys(obj map[string]any) (literal, renamed []string) {
	for k := range obj {
		if _, ok := flattenRenames[k]; ok {
			renamed = append(renamed, k)
		} else {
			literal = append(literal, k)
		}
	}
	sort.Strings(literal)
	sort.Strings(renamed)
	return literal, renamed
}

func setIfAbsent(m map[string]any, key string, v any) {
	if v == nil {
		return
	}
	if _, exists := m[key]; !exists {
		m[key] = v
	}
}

// firstTag returns the first string entry of a "tags" array. Some providers
// carry the event discriminator there instead of a type field.
func firstTag(m map[string]any) string {
	tags, ok := m["tags"].([]any)
	if !ok {
		return ""
	}
	for _, t := range tags {
		if s, ok := t.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// stringField returns the first non-empty string value among keys. Numeric
// identifiers are rendered as their decimal form.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return formatNumber(v)
		}
	}
	return ""
}

// boolField reports the value and whether any of the keys was an explicit
// boolean.
func boolField(m map[string]any, keys ...string) (bool, bool) {
	for _, k := range keys {
		if b, ok := m[k].(bool); ok {
			return b, true
		}
	}
	return false, false
}

// numberField parses a numeric value from a float, int, or numeric string
// such as "10.00".
func numberField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// intField parses an integer value, tolerating float JSON numbers.
func intField(m map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return int64(v), true
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// truncate caps PIX codes and similar long opaque strings before they reach
// custom_data or a log line.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
