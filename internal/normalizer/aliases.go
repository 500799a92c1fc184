package normalizer

import "strings"

// Provider discriminators are matched after folding: lowercase, alphanumerics
// only. "Deposit_Made", "deposit-made" and "DepositMade" are the same alias.
func foldAlias(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Closed alias tables, hand-curated from observed provider payloads. This is
// deliberately not a rule language; new providers get a new entry here.
var registrationAliases = map[string]bool{
	"registernewuser":    true,
	"usercreated":        true,
	"userregistered":     true,
	"registeredcustomer": true,
	"newuser":            true,
	"register":           true,
	"registration":       true,
	"signup":             true,
	"cadastro":           true,
}

// Deposit created but not yet paid (PIX QR code issued).
var depositGeneratedAliases = map[string]bool{
	"depositgenerated": true,
	"depositcreated":   true,
	"depositrequested": true,
	"depositpending":   true,
	"pixgenerated":     true,
	"qrcodegenerated":  true,
}

// Deposit confirmed by the gateway. Extended at runtime by
// EXTRA_DEPOSIT_ALIASES.
var depositConfirmedAliases = map[string]bool{
	"confirmeddeposit": true,
	"depositconfirmed": true,
	"depositmade":      true,
	"depositapproved":  true,
	"approveddeposit":  true,
	"depositpaid":      true,
	"pixpaid":          true,
	"paymentconfirmed": true,
}

type eventClass int

const (
	classUnknown eventClass = iota
	classRegistration
	classDepositGenerated
	classDepositConfirmed
	classFTDLiteral
)

func (n *Normalizer) classify(folded string) eventClass {
	switch {
	case folded == "ftd":
		return classFTDLiteral
	case registrationAliases[folded]:
		return classRegistration
	case depositGeneratedAliases[folded]:
		return classDepositGenerated
	case depositConfirmedAliases[folded] || n.extraDepositAliases[folded]:
		return classDepositConfirmed
	default:
		return classUnknown
	}
}
