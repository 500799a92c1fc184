package domain

// OutcomeStatus tags the result of normalizing one inbound payload.
type OutcomeStatus int

const (
	// StatusAdmitted means the event passed normalization and validation and
	// should be dispatched.
	StatusAdmitted OutcomeStatus = iota
	// StatusIgnored means the event was recognized but deliberately not
	// dispatched (duplicate, redeposit, allow-list). Surfaced as 200.
	StatusIgnored
	// StatusRejected means the payload was malformed for its event class.
	// Surfaced as 400.
	StatusRejected
)

// Ignore reasons reported to the caller.
const (
	IgnoreDuplicateDeposit = "duplicate_deposit"
	IgnoreRedeposit        = "redeposit_ignored"
	IgnoreEventBlocked     = "event_blocked"
)

// Rejection kinds reported to the caller.
const (
	RejectInvalidPurchase = "invalid_purchase_payload"
)

// Outcome is the tagged result of normalization. Exactly one of Event,
// Reason, Kind is meaningful depending on Status.
type Outcome struct {
	Status OutcomeStatus
	Event  *CanonicalEvent // admitted
	Reason string          // ignored
	Kind   string          // rejected
}

func Admitted(ev *CanonicalEvent) Outcome {
	return Outcome{Status: StatusAdmitted, Event: ev}
}

func Ignored(reason string) Outcome {
	return Outcome{Status: StatusIgnored, Reason: reason}
}

func Rejected(kind string) Outcome {
	return Outcome{Status: StatusRejected, Kind: kind}
}
