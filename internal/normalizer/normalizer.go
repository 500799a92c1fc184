// Package normalizer maps raw, provider-specific webhook payloads to
// canonical marketing-conversion events.
package normalizer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agenciamidas/capi-gateway/internal/domain"
	"github.com/agenciamidas/capi-gateway/internal/idempotency"
	"github.com/agenciamidas/capi-gateway/internal/pii"
)

// RequestContext carries the transport attributes of the inbound request that
// the payload alone cannot provide.
type RequestContext struct {
	Header     http.Header
	Cookies    []*http.Cookie
	Query      url.Values
	RemoteAddr string
}

// FromRequest captures the request attributes the normalizer needs.
func FromRequest(r *http.Request) RequestContext {
	return RequestContext{
		Header:     r.Header,
		Cookies:    r.Cookies(),
		Query:      r.URL.Query(),
		RemoteAddr: r.RemoteAddr,
	}
}

func (rc RequestContext) cookie(name string) string {
	for _, c := range rc.Cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// Options is the operator policy the normalizer applies.
type Options struct {
	SpecialReferrer     string
	DropRedeposits      bool
	DefaultCurrency     string
	AllowedEvents       []string
	ExtraDepositAliases []string
}

// Normalizer turns raw payloads into canonical events, consulting the
// idempotency store for deposit classification.
type Normalizer struct {
	store               idempotency.Store
	logger              *slog.Logger
	opts                Options
	extraDepositAliases map[string]bool
	now                 func() time.Time
	newID               func() string
}

func New(store idempotency.Store, opts Options, logger *slog.Logger) *Normalizer {
	extra := make(map[string]bool, len(opts.ExtraDepositAliases))
	for _, a := range opts.ExtraDepositAliases {
		extra[foldAlias(a)] = true
	}
	return &Normalizer{
		store:               store,
		logger:              logger,
		opts:                opts,
		extraDepositAliases: extra,
		now:                 time.Now,
		newID:               func() string { return uuid.New().String() },
	}
}

// Normalize runs the full pipeline: discovery, flattening, classification,
// assembly, validation, allow-list. The steps are strictly sequential; each
// consumes the previous step's output.
func (n *Normalizer) Normalize(ctx context.Context, payload map[string]any, reqCtx RequestContext) (domain.Outcome, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	p := flatten(payload)

	discriminator := stringField(p, "type", "action", "event")
	if discriminator == "" {
		discriminator = firstTag(p)
	}
	folded := foldAlias(discriminator)
	class := n.classify(folded)
	referrer := stringField(p, "usernameIndication")

	name := ""
	eventType := ""

	switch class {
	case classRegistration:
		name = domain.EventLead
	case classFTDLiteral:
		name = domain.EventPurchase
		eventType = domain.DepositFTD
	case classDepositGenerated:
		if referrer != "" && strings.EqualFold(referrer, n.opts.SpecialReferrer) {
			name = domain.EventPurchase
			eventType = domain.DepositFTD
		} else {
			name = domain.EventInitiateCheckout
		}
	case classDepositConfirmed:
		outcome, tag, err := n.classifyDeposit(ctx, p)
		if err != nil {
			return domain.Outcome{}, err
		}
		if outcome != nil {
			return *outcome, nil
		}
		name = domain.EventPurchase
		eventType = tag
	}

	// An explicit event_name always wins over alias inference; without either,
	// the event is a bare page view.
	if explicit := stringField(p, "event_name"); explicit != "" {
		name = explicit
	} else if name == "" {
		name = domain.EventPageView
	}

	ev := n.assemble(p, reqCtx, name, eventType, referrer)

	if !ev.PurchaseValid() {
		return domain.Rejected(domain.RejectInvalidPurchase), nil
	}

	if !n.eventAllowed(ev.EventName) {
		n.logger.Info("event blocked by allow-list", "event_name", ev.EventName, "event_id", ev.EventID)
		return domain.Ignored(domain.IgnoreEventBlocked), nil
	}

	return domain.Admitted(ev), nil
}

// classifyDeposit decides FTD vs redeposit for a confirmed deposit. Fixed
// precedence: transaction dedup, then the payload's own first_deposit flag,
// then the store claim. Returns a non-nil outcome when the event must not
// dispatch.
func (n *Normalizer) classifyDeposit(ctx context.Context, p map[string]any) (*domain.Outcome, string, error) {
	if txID := stringField(p, "deposit_id", "transaction_id", "tx_id"); txID != "" {
		fresh, err := n.store.AddDeposit(ctx, txID)
		if err != nil {
			return nil, "", fmt.Errorf("deposit dedup: %w", err)
		}
		if !fresh {
			n.logger.Info("duplicate deposit dropped", "transaction_id", txID)
			out := domain.Ignored(domain.IgnoreDuplicateDeposit)
			return &out, "", nil
		}
	}

	first, explicit := boolField(p, "first_deposit")
	if !explicit {
		userKey := n.userKey(p)
		if userKey == "" {
			// No identity to claim against; admit as FTD rather than drop a
			// paid conversion.
			first = true
		} else {
			var err error
			first, err = n.store.ClaimFirstDeposit(ctx, userKey)
			if err != nil {
				return nil, "", fmt.Errorf("first-deposit claim: %w", err)
			}
		}
	}

	if !first {
		if n.opts.DropRedeposits {
			out := domain.Ignored(domain.IgnoreRedeposit)
			return &out, "", nil
		}
		return nil, domain.DepositRedeposit, nil
	}
	return nil, domain.DepositFTD, nil
}

// userKey derives a stable per-user key for first-deposit claims. Hashed so
// the store never holds a raw email or phone.
func (n *Normalizer) userKey(p map[string]any) string {
	if id := stringField(p, "user_id", "external_id"); id != "" {
		return "id:" + id
	}
	if em := stringField(p, "email", "em"); em != "" {
		return "em:" + pii.SHA256Hex(pii.NormalizeEmail(em))
	}
	if ph := stringField(p, "phone", "ph"); ph != "" {
		if digits := pii.NormalizePhone(ph); digits != "" {
			return "ph:" + pii.SHA256Hex(digits)
		}
	}
	return ""
}

func (n *Normalizer) assemble(p map[string]any, reqCtx RequestContext, name, eventType, referrer string) *domain.CanonicalEvent {
	ev := &domain.CanonicalEvent{
		EventName:      name,
		EventTime:      n.now().Unix(),
		EventSourceURL: stringField(p, "event_source_url", "source_url"),
		ActionSource:   "website",
	}

	if ts, ok := intField(p, "event_time"); ok && ts > 0 {
		ev.EventTime = ts
	}

	ev.EventID = stringField(p, "event_id", "id")
	if ev.EventID == "" {
		ev.EventID = n.newID()
	}

	ev.UserData = n.buildUserData(p, reqCtx)
	ev.CustomData = n.buildCustomData(p, eventType, referrer)
	return ev
}

func (n *Normalizer) buildUserData(p map[string]any, reqCtx RequestContext) domain.UserData {
	identity := map[string]any{}
	for _, k := range []string{"em", "email", "ph", "phone", "external_id"} {
		if v, ok := p[k]; ok {
			identity[k] = v
		}
	}
	ud, _ := p["user_data"].(map[string]any)
	for k, v := range ud {
		switch k {
		case "client_ip_address", "client_user_agent", "fbp", "fbc":
			// Network attributes, never hashed; resolved below.
			continue
		}
		identity[k] = v
	}
	if _, ok := identity["external_id"]; !ok {
		if id := stringField(p, "user_id"); id != "" {
			identity["external_id"] = id
		}
	}
	hashed := pii.HashUserData(identity)

	out := domain.UserData{
		Email:      hashed["em"],
		Phone:      hashed["ph"],
		ExternalID: hashed["external_id"],
	}
	delete(hashed, "em")
	delete(hashed, "ph")
	delete(hashed, "external_id")
	if len(hashed) > 0 {
		out.Extra = hashed
	}

	out.ClientIPAddress = stringField(ud, "client_ip_address")
	if out.ClientIPAddress == "" {
		out.ClientIPAddress = stringField(p, "ip_address")
	}
	if out.ClientIPAddress == "" {
		out.ClientIPAddress = clientIP(reqCtx)
	}
	out.ClientUserAgent = stringField(ud, "client_user_agent")
	if out.ClientUserAgent == "" {
		out.ClientUserAgent = stringField(p, "user_agent")
	}
	if out.ClientUserAgent == "" {
		out.ClientUserAgent = reqCtx.Header.Get("User-Agent")
	}

	out.FBP, out.FBC = n.clickIDs(p, reqCtx)
	if s := stringField(ud, "fbp"); s != "" {
		out.FBP = s
	}
	if s := stringField(ud, "fbc"); s != "" {
		out.FBC = s
	}
	return out
}

// clickIDs resolves fbp/fbc from the payload, then request headers, then
// cookies, finally synthesizing fbc from a preserved fbclid.
func (n *Normalizer) clickIDs(p map[string]any, reqCtx RequestContext) (fbp, fbc string) {
	fbp = stringField(p, "fbp")
	fbc = stringField(p, "fbc")

	if fbp == "" {
		fbp = reqCtx.Header.Get("X-Fbp")
	}
	if fbc == "" {
		fbc = reqCtx.Header.Get("X-Fbc")
	}
	if fbp == "" {
		fbp = reqCtx.cookie("_fbp")
	}
	if fbc == "" {
		fbc = reqCtx.cookie("_fbc")
	}
	if fbc == "" {
		fbclid := stringField(p, "fbclid")
		if fbclid == "" && reqCtx.Query != nil {
			fbclid = reqCtx.Query.Get("fbclid")
		}
		if fbclid != "" {
			fbc = fmt.Sprintf("fb.1.%d.%s", n.now().Unix(), fbclid)
		}
	}
	return fbp, fbc
}

func (n *Normalizer) buildCustomData(p map[string]any, eventType, referrer string) map[string]any {
	cd := map[string]any{}
	if own, ok := p["custom_data"].(map[string]any); ok {
		for k, v := range own {
			cd[k] = v
		}
	}

	if v, ok := numberField(p, "value"); ok {
		if _, set := cd["value"]; !set {
			cd["value"] = v
		}
	}
	if _, hasValue := cd["value"]; hasValue {
		if cur := stringField(p, "currency"); cur != "" {
			setIfAbsent(cd, "currency", cur)
		} else {
			setIfAbsent(cd, "currency", n.opts.DefaultCurrency)
		}
	}

	if eventType != "" {
		cd["event_type"] = eventType
	}
	if referrer != "" {
		setIfAbsent(cd, "referrer", referrer)
	}
	if gw := stringField(p, "gateway"); gw != "" {
		setIfAbsent(cd, "gateway", gw)
	}
	if dc, ok := intField(p, "deposit_count"); ok {
		setIfAbsent(cd, "deposit_count", dc)
	}
	if qr := stringField(p, "qrCode"); qr != "" {
		setIfAbsent(cd, "pix_qr", truncate(qr, 32))
	}
	if code := stringField(p, "copiaECola"); code != "" {
		setIfAbsent(cd, "pix_code", truncate(code, 32))
	}

	if len(cd) == 0 {
		return nil
	}
	return cd
}

func (n *Normalizer) eventAllowed(name string) bool {
	if len(n.opts.AllowedEvents) == 0 {
		return true
	}
	for _, allowed := range n.opts.AllowedEvents {
		if strings.EqualFold(allowed, name) {
			return true
		}
	}
	return false
}

func clientIP(reqCtx RequestContext) string {
	if xff := reqCtx.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(reqCtx.RemoteAddr); err == nil {
		return host
	}
	return reqCtx.RemoteAddr
}
