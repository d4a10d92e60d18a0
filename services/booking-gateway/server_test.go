package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tripvault/core"
	"tripvault/crypto"
	"tripvault/gateway/auth"
	"tripvault/native/authorizer"
	"tripvault/native/factory"
	"tripvault/storage"
)

const (
	gwAPIKey = "gateway-test"
	gwSecret = "gateway-secret"
	gwChain  = uint64(8453)
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type gatewayHarness struct {
	t           *testing.T
	server      *Server
	ledger      *core.Ledger
	store       *SQLiteStore
	clock       *testClock
	nonce       int
	admin       [20]byte
	host        [20]byte
	guest       [20]byte
	treasury    [20]byte
	token       [20]byte
	verifierKey *crypto.PrivateKey
}

func gwAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, len(addr)))
	return addr
}

func newGatewayHarness(t *testing.T) *gatewayHarness {
	t.Helper()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}

	verifierKey, err := crypto.PrivateKeyFromBytes(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("verifier key: %v", err)
	}

	admin := gwAddr(0x01)
	ledger := core.NewLedger(storage.NewMemDB(), admin, gwChain)
	ledger.Engine.SetNowFunc(func() int64 { return clock.Now().Unix() })

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "gateway.db"))
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ledger.SetEmitter(newFeedEmitter(store))

	authenticator := auth.NewAuthenticator(map[string]string{gwAPIKey: gwSecret}, time.Minute, clock.Now)
	server := NewServer(authenticator, ledger, store, nil)
	server.nowFn = clock.Now

	return &gatewayHarness{
		t:           t,
		server:      server,
		ledger:      ledger,
		store:       store,
		clock:       clock,
		admin:       admin,
		host:        gwAddr(0x02),
		guest:       gwAddr(0x05),
		treasury:    gwAddr(0x03),
		token:       gwAddr(0x0F),
		verifierKey: verifierKey,
	}
}

// do issues a signed request against the gateway handler.
func (h *gatewayHarness) do(method, target string, payload interface{}, idempotencyKey string) *httptest.ResponseRecorder {
	h.t.Helper()
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			h.t.Fatalf("encode request: %v", err)
		}
		body = encoded
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	h.nonce++
	timestamp := fmt.Sprintf("%d", h.clock.Now().Unix())
	nonce := fmt.Sprintf("nonce-%d", h.nonce)
	sig := auth.ComputeSignature(gwSecret, timestamp, nonce, method, auth.CanonicalRequestPath(req), body)
	req.Header.Set(auth.HeaderAPIKey, gwAPIKey)
	req.Header.Set(auth.HeaderTimestamp, timestamp)
	req.Header.Set(auth.HeaderNonce, nonce)
	req.Header.Set(auth.HeaderSignature, hex.EncodeToString(sig))
	if idempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, idempotencyKey)
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func (h *gatewayHarness) get(target string) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func (h *gatewayHarness) decode(rec *httptest.ResponseRecorder, out interface{}) {
	h.t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		h.t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func (h *gatewayHarness) initializePlatform() {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/v1/platform/initialize", map[string]interface{}{
		"caller":         renderAddress(h.admin),
		"feeBps":         500,
		"referralFeeBps": 100,
		"payoutDelay":    86_400,
		"operator":       renderAddress(h.admin),
		"treasury":       renderAddress(h.treasury),
		"verifier":       renderAddress(h.verifierKey.PubKey().AddressBytes()),
		"paymentTokens":  []string{renderAddress(h.token)},
	}, "")
	if rec.Code != http.StatusOK {
		h.t.Fatalf("initialize platform: %d %s", rec.Code, rec.Body.String())
	}
}

func (h *gatewayHarness) createListing(listingID string) propertyJSON {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/v1/listings", map[string]string{
		"caller":    renderAddress(h.admin),
		"listingId": listingID,
		"host":      renderAddress(h.host),
	}, "")
	if rec.Code != http.StatusCreated {
		h.t.Fatalf("create listing: %d %s", rec.Code, rec.Body.String())
	}
	var property propertyJSON
	h.decode(rec, &property)
	return property
}

// signedIntent renders an intent payload together with a verifier signature
// for the listing's typed-data domain.
func (h *gatewayHarness) signedIntent(listingID string, intent intentJSON) (intentJSON, string) {
	h.t.Helper()
	property, err := h.ledger.Engine.Property(listingID)
	if err != nil {
		h.t.Fatalf("load property: %v", err)
	}
	parsed, err := intent.toIntent()
	if err != nil {
		h.t.Fatalf("parse intent: %v", err)
	}
	sig, err := authorizer.Sign(h.ledger.Engine.Domain(property), parsed, h.verifierKey)
	if err != nil {
		h.t.Fatalf("sign intent: %v", err)
	}
	return intent, "0x" + hex.EncodeToString(sig)
}

func (h *gatewayHarness) defaultIntent() intentJSON {
	base := h.clock.Now().Unix()
	day := int64(86_400)
	return intentJSON{
		ListingID:     "lst-1",
		BookingID:     "bk-1",
		Guest:         renderAddress(h.guest),
		PaymentToken:  renderAddress(h.token),
		BookingAmount: "65000",
		CheckInAt:     base + 5*day,
		CheckOutAt:    base + 7*day,
		ExpireAt:      base + day,
		Policies: []policyJSON{
			{ExpireAt: base + 2*day, RefundAmount: "40000"},
			{ExpireAt: base + 4*day, RefundAmount: "0"},
		},
	}
}

func TestGatewayHealthz(t *testing.T) {
	h := newGatewayHarness(t)
	rec := h.get("/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected healthz body %q", rec.Body.String())
	}
}

func TestGatewayRejectsUnsignedMutation(t *testing.T) {
	h := newGatewayHarness(t)
	body := []byte(`{"caller":"x"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/listings", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestGatewayBookingLifecycle(t *testing.T) {
	h := newGatewayHarness(t)
	h.initializePlatform()
	property := h.createListing("lst-1")
	if property.Address == "" || property.Host != renderAddress(h.host) {
		t.Fatalf("unexpected property %+v", property)
	}

	if err := h.ledger.Store.Mint(h.token, h.guest, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint guest funds: %v", err)
	}

	intent, signature := h.signedIntent("lst-1", h.defaultIntent())
	createBody := map[string]interface{}{
		"caller":    renderAddress(h.guest),
		"intent":    intent,
		"signature": signature,
	}
	rec := h.do(http.MethodPost, "/v1/listings/lst-1/bookings", createBody, "idem-1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create booking: %d %s", rec.Code, rec.Body.String())
	}
	var created bookingJSON
	h.decode(rec, &created)
	if created.BookingID != "bk-1" || created.Status != "in_progress" {
		t.Fatalf("unexpected booking %+v", created)
	}
	if created.Balance != "65000" {
		t.Fatalf("unexpected balance %s", created.Balance)
	}

	// Replaying the same idempotency key returns the cached response without
	// re-executing the booking.
	replay := h.do(http.MethodPost, "/v1/listings/lst-1/bookings", createBody, "idem-1")
	if replay.Code != http.StatusCreated {
		t.Fatalf("replay: %d %s", replay.Code, replay.Body.String())
	}
	if replay.Body.String() != rec.Body.String() {
		t.Fatalf("replay body diverged: %s vs %s", replay.Body.String(), rec.Body.String())
	}

	// Reusing the key with a different payload is a conflict.
	altered := map[string]interface{}{
		"caller":    renderAddress(h.guest),
		"intent":    intent,
		"signature": signature,
		"note":      "changed",
	}
	conflict := h.do(http.MethodPost, "/v1/listings/lst-1/bookings", altered, "idem-1")
	if conflict.Code != http.StatusConflict {
		t.Fatalf("expected 409 for mismatched replay, got %d %s", conflict.Code, conflict.Body.String())
	}

	got := h.get("/v1/listings/lst-1/bookings/bk-1")
	if got.Code != http.StatusOK {
		t.Fatalf("get booking: %d %s", got.Code, got.Body.String())
	}

	// Past the last policy maturity plus the payout delay the full balance
	// becomes payable.
	h.clock.Advance(5 * 24 * time.Hour)
	payout := h.do(http.MethodPost, "/v1/listings/lst-1/bookings/bk-1/payout", map[string]string{}, "")
	if payout.Code != http.StatusOK {
		t.Fatalf("payout: %d %s", payout.Code, payout.Body.String())
	}
	var result map[string]string
	h.decode(payout, &result)
	if result["status"] != "fully_paid" {
		t.Fatalf("unexpected payout result %+v", result)
	}
	if result["hostRevenue"] != "61750" || result["fee"] != "3250" {
		t.Fatalf("unexpected payout split %+v", result)
	}

	treasuryBalance, err := h.ledger.Store.BalanceOf(h.token, h.treasury)
	if err != nil {
		t.Fatalf("treasury balance: %v", err)
	}
	if treasuryBalance.Cmp(big.NewInt(3250)) != 0 {
		t.Fatalf("unexpected treasury balance %s", treasuryBalance)
	}

	// A drained booking cannot be paid again.
	repeat := h.do(http.MethodPost, "/v1/listings/lst-1/bookings/bk-1/payout", map[string]string{}, "")
	if repeat.Code != http.StatusConflict {
		t.Fatalf("expected 409 for finalized booking, got %d %s", repeat.Code, repeat.Body.String())
	}
}

func TestGatewayBookingRequiresIdempotencyKey(t *testing.T) {
	h := newGatewayHarness(t)
	h.initializePlatform()
	h.createListing("lst-1")

	rec := h.do(http.MethodPost, "/v1/listings/lst-1/bookings", map[string]string{"caller": renderAddress(h.guest)}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestGatewayBookingRejectsBadSignature(t *testing.T) {
	h := newGatewayHarness(t)
	h.initializePlatform()
	h.createListing("lst-1")
	if err := h.ledger.Store.Mint(h.token, h.guest, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint guest funds: %v", err)
	}

	intent, signature := h.signedIntent("lst-1", h.defaultIntent())
	intent.BookingAmount = "1"
	rec := h.do(http.MethodPost, "/v1/listings/lst-1/bookings", map[string]interface{}{
		"caller":    renderAddress(h.guest),
		"intent":    intent,
		"signature": signature,
	}, "idem-1")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for tampered intent, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestGatewayListingAdmin(t *testing.T) {
	h := newGatewayHarness(t)
	h.initializePlatform()
	h.createListing("lst-1")

	agent := gwAddr(0x07)
	rec := h.do(http.MethodPost, "/v1/listings/lst-1/authorized/grant", map[string]string{
		"caller":  renderAddress(h.host),
		"address": renderAddress(agent),
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("grant authorized: %d %s", rec.Code, rec.Body.String())
	}
	var property propertyJSON
	h.decode(rec, &property)
	if len(property.Authorized) != 1 || property.Authorized[0] != renderAddress(agent) {
		t.Fatalf("grant not reflected: %+v", property)
	}

	// Only the host side may grant.
	rec = h.do(http.MethodPost, "/v1/listings/lst-1/authorized/grant", map[string]string{
		"caller":  renderAddress(h.guest),
		"address": renderAddress(gwAddr(0x08)),
	}, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", rec.Code, rec.Body.String())
	}

	rec = h.do(http.MethodPost, "/v1/listings/lst-1/receiver", map[string]string{
		"caller":   renderAddress(h.host),
		"receiver": renderAddress(gwAddr(0x09)),
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("update receiver: %d %s", rec.Code, rec.Body.String())
	}
	h.decode(rec, &property)
	if property.PaymentReceiver != renderAddress(gwAddr(0x09)) {
		t.Fatalf("receiver not updated: %+v", property)
	}
}

func TestGatewayDelegateRole(t *testing.T) {
	h := newGatewayHarness(t)
	member := gwAddr(0x0C)

	rec := h.do(http.MethodPost, "/v1/delegates/grant", map[string]string{
		"caller": renderAddress(h.admin),
		"member": renderAddress(member),
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("grant role: %d %s", rec.Code, rec.Body.String())
	}
	var result map[string]string
	h.decode(rec, &result)
	if result["proxy"] != renderAddress(h.ledger.Delegates.Address()) {
		t.Fatalf("unexpected proxy identity %+v", result)
	}
	if !h.ledger.Delegates.HasRole(member) {
		t.Fatalf("role not granted on the ledger")
	}

	rec = h.do(http.MethodPost, "/v1/delegates/revoke", map[string]string{
		"caller": renderAddress(h.admin),
		"member": renderAddress(member),
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke role: %d %s", rec.Code, rec.Body.String())
	}
	if h.ledger.Delegates.HasRole(member) {
		t.Fatalf("role not revoked on the ledger")
	}
}

func TestGatewayEventFeed(t *testing.T) {
	h := newGatewayHarness(t)
	h.initializePlatform()
	h.createListing("lst-1")

	rec := h.get("/v1/events")
	if rec.Code != http.StatusOK {
		t.Fatalf("list events: %d %s", rec.Code, rec.Body.String())
	}
	var feed struct {
		Events []StoredEvent `json:"events"`
	}
	h.decode(rec, &feed)
	if len(feed.Events) == 0 {
		t.Fatalf("expected at least one event in the feed")
	}
	types := make(map[string]bool, len(feed.Events))
	lastID := int64(0)
	for _, evt := range feed.Events {
		if evt.ID <= lastID {
			t.Fatalf("feed not ordered by id: %+v", feed.Events)
		}
		lastID = evt.ID
		types[evt.Type] = true
	}
	if !types[factory.EventTypePropertyCreated] {
		t.Fatalf("listing creation missing from the feed: %v", types)
	}

	// Cursor pagination skips already-seen rows.
	rec = h.get(fmt.Sprintf("/v1/events?after=%d", lastID))
	if rec.Code != http.StatusOK {
		t.Fatalf("list events after cursor: %d %s", rec.Code, rec.Body.String())
	}
	h.decode(rec, &feed)
	if len(feed.Events) != 0 {
		t.Fatalf("expected empty page past the cursor, got %d", len(feed.Events))
	}

	rec = h.get("/v1/events?limit=bogus")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestGatewayPlatformSnapshot(t *testing.T) {
	h := newGatewayHarness(t)
	h.initializePlatform()

	rec := h.get("/v1/platform")
	if rec.Code != http.StatusOK {
		t.Fatalf("platform snapshot: %d %s", rec.Code, rec.Body.String())
	}
	var cfg platformConfigJSON
	h.decode(rec, &cfg)
	if cfg.FeeBps != 500 || cfg.ReferralFeeBps != 100 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Operator != renderAddress(h.admin) {
		t.Fatalf("unexpected operator %q", cfg.Operator)
	}

	// Ratio changes are operator-gated.
	rec = h.do(http.MethodPost, "/v1/platform/fee", map[string]interface{}{
		"caller": renderAddress(h.guest),
		"feeBps": 600,
	}, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", rec.Code, rec.Body.String())
	}
	rec = h.do(http.MethodPost, "/v1/platform/fee", map[string]interface{}{
		"caller": renderAddress(h.admin),
		"feeBps": 600,
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("set fee: %d %s", rec.Code, rec.Body.String())
	}
	h.decode(rec, &cfg)
	if cfg.FeeBps != 600 {
		t.Fatalf("fee not updated: %+v", cfg)
	}
}
