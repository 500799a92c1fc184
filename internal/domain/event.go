package domain

import "encoding/json"

// Canonical event names sent to the Conversions API. Anything else supplied
// via an explicit event_name is passed through untouched.
const (
	EventPageView             = "PageView"
	EventLead                 = "Lead"
	EventPurchase             = "Purchase"
	EventInitiateCheckout     = "InitiateCheckout"
	EventCompleteRegistration = "CompleteRegistration"
)

// Deposit classification tags carried in custom_data.event_type.
const (
	DepositFTD       = "FTD"
	DepositRedeposit = "REDEPOSIT"
)

// UserData holds the identity section of a canonical event. Hashed fields
// (em, ph) are SHA-256 hex; network attributes are raw.
type UserData struct {
	Email           string `json:"em,omitempty"`
	Phone           string `json:"ph,omitempty"`
	ExternalID      string `json:"external_id,omitempty"`
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
	FBP             string `json:"fbp,omitempty"`
	FBC             string `json:"fbc,omitempty"`

	// Extra carries additional hashed identity fields supplied upstream
	// (fn, ln, db and friends). Serialized as siblings of the named fields.
	Extra map[string]string `json:"-"`
}

// MarshalJSON renders Extra entries in the same object as the named fields.
// A named field wins over an Extra entry using the same key.
func (u UserData) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(u.Extra)+7)
	for k, v := range u.Extra {
		if v != "" {
			m[k] = v
		}
	}
	set := func(key, v string) {
		if v != "" {
			m[key] = v
		}
	}
	set("em", u.Email)
	set("ph", u.Phone)
	set("external_id", u.ExternalID)
	set("client_ip_address", u.ClientIPAddress)
	set("client_user_agent", u.ClientUserAgent)
	set("fbp", u.FBP)
	set("fbc", u.FBC)
	return json.Marshal(m)
}

// CanonicalEvent is the normalized, destination-agnostic representation of a
// marketing conversion. One instance is fanned out to every selected pixel.
type CanonicalEvent struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventID        string         `json:"event_id"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	ActionSource   string         `json:"action_source"`
	UserData       UserData       `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
}

// PurchaseValid reports whether a Purchase event carries the numeric value
// and non-empty currency the Conversions API requires. Non-Purchase events
// are always valid.
func (e *CanonicalEvent) PurchaseValid() bool {
	if e.EventName != EventPurchase {
		return true
	}
	v, ok := e.CustomData["value"]
	if !ok {
		return false
	}
	switch v.(type) {
	case float64, int, int64:
	default:
		return false
	}
	cur, ok := e.CustomData["currency"].(string)
	return ok && cur != ""
}
