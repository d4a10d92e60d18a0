package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"tripvault/native/booking"
	"tripvault/native/platform"
)

type listingCreateRequest struct {
	Caller    string `json:"caller"`
	ListingID string `json:"listingId"`
	Host      string `json:"host"`
	Delegate  string `json:"delegate,omitempty"`
}

func (s *Server) handleListingCreate(w http.ResponseWriter, r *http.Request) {
	started := s.nowFn()
	principal, body, ok := s.authorize(w, r)
	if !ok {
		return
	}
	var req listingCreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.fail(w, r, principal, body, "listings.create", started, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	caller, err := requireAddress("caller", req.Caller)
	if err != nil {
		s.finish(w, r, principal, body, "listings.create", started, http.StatusBadRequest, errorBody(err))
		return
	}
	host, err := requireAddress("host", req.Host)
	if err != nil {
		s.finish(w, r, principal, body, "listings.create", started, http.StatusBadRequest, errorBody(err))
		return
	}
	delegateAddr, err := parseAddress(req.Delegate)
	if err != nil {
		s.finish(w, r, principal, body, "listings.create", started, http.StatusBadRequest, errorBody(err))
		return
	}

	s.ledger.Store.Lock()
	property, err := s.ledger.Factory.CreateProperty(caller, req.ListingID, host, delegateAddr)
	s.ledger.Store.Unlock()
	if err != nil {
		s.fail(w, r, principal, body, "listings.create", started, err)
		return
	}
	s.metrics.CountTransition("listing_create")
	payload, _ := json.Marshal(renderProperty(property))
	s.finish(w, r, principal, body, "listings.create", started, http.StatusCreated, payload)
}

func (s *Server) handleListingGet(w http.ResponseWriter, r *http.Request, listingID string) {
	property, err := s.ledger.Engine.Property(listingID)
	if err != nil {
		s.writeError(w, httpStatusFor(err), err)
		return
	}
	payload, _ := json.Marshal(renderProperty(property))
	s.writeJSON(w, http.StatusOK, payload)
}

type bookingCreateRequest struct {
	Caller    string     `json:"caller"`
	Intent    intentJSON `json:"intent"`
	Signature string     `json:"signature"`
}

func (s *Server) handleBookingCreate(w http.ResponseWriter, r *http.Request, listingID string) {
	started := s.nowFn()
	principal, body, ok := s.authorize(w, r)
	if !ok {
		return
	}
	route := "bookings.create"

	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" {
		s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(errors.New("missing Idempotency-Key header")))
		return
	}
	requestHash := hashRequest(r.Method, r.URL.Path, body)
	if cached, cacheErr := s.store.LookupIdempotency(r.Context(), principal.APIKey, key, requestHash); cacheErr != nil {
		s.fail(w, r, principal, body, route, started, cacheErr)
		return
	} else if cached != nil {
		s.finish(w, r, principal, body, route, started, cached.Status, cached.Body)
		return
	}

	var req bookingCreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.fail(w, r, principal, body, route, started, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	caller, err := requireAddress("caller", req.Caller)
	if err != nil {
		s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(err))
		return
	}
	intent, err := req.Intent.toIntent()
	if err != nil {
		s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(err))
		return
	}
	signature, err := parseSignature(req.Signature)
	if err != nil {
		s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(err))
		return
	}

	s.ledger.Store.Lock()
	bkg, err := s.ledger.Engine.Book(listingID, caller, intent, signature)
	s.ledger.Store.Unlock()
	if err != nil {
		s.fail(w, r, principal, body, route, started, err)
		return
	}
	s.metrics.CountTransition("book")

	payload, _ := json.Marshal(renderBooking(listingID, bkg))
	if err := s.store.SaveIdempotency(r.Context(), principal.APIKey, key, requestHash, http.StatusCreated, payload); err != nil {
		s.fail(w, r, principal, body, route, started, err)
		return
	}
	s.finish(w, r, principal, body, route, started, http.StatusCreated, payload)
}

func (s *Server) handleBookingGet(w http.ResponseWriter, r *http.Request, listingID, bookingID string) {
	bkg, err := s.ledger.Engine.Booking(listingID, bookingID)
	if err != nil {
		s.writeError(w, httpStatusFor(err), err)
		return
	}
	payload, _ := json.Marshal(renderBooking(listingID, bkg))
	s.writeJSON(w, http.StatusOK, payload)
}

type bookingActionRequest struct {
	Caller string `json:"caller,omitempty"`
	Status string `json:"status,omitempty"`
}

func (s *Server) handleBookingAction(w http.ResponseWriter, r *http.Request, listingID, bookingID, action string) {
	started := s.nowFn()
	principal, body, ok := s.authorize(w, r)
	if !ok {
		return
	}
	route := "bookings." + action

	var req bookingActionRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.fail(w, r, principal, body, route, started, fmt.Errorf("invalid JSON payload: %w", err))
			return
		}
	}

	switch action {
	case "payout":
		s.ledger.Store.Lock()
		result, err := s.ledger.Engine.Payout(listingID, bookingID)
		s.ledger.Store.Unlock()
		if err != nil {
			s.fail(w, r, principal, body, route, started, err)
			return
		}
		s.metrics.CountTransition("payout")
		payload, _ := json.Marshal(map[string]string{
			"bookingId":   result.BookingID,
			"hostRevenue": result.HostRevenue.String(),
			"fee":         result.Fee.String(),
			"referralFee": result.ReferralFee.String(),
			"damageFee":   result.DamageFee.String(),
			"status":      result.Status.String(),
		})
		s.finish(w, r, principal, body, route, started, http.StatusOK, payload)
	case "cancel":
		caller, err := requireAddress("caller", req.Caller)
		if err != nil {
			s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(err))
			return
		}
		s.ledger.Store.Lock()
		result, err := s.ledger.Engine.Cancel(listingID, caller, bookingID)
		s.ledger.Store.Unlock()
		if err != nil {
			s.fail(w, r, principal, body, route, started, err)
			return
		}
		s.metrics.CountTransition("guest_cancel")
		payload, _ := json.Marshal(map[string]string{
			"bookingId":   result.BookingID,
			"guestRefund": result.GuestRefund.String(),
			"hostRevenue": result.HostRevenue.String(),
			"fee":         result.Fee.String(),
			"referralFee": result.ReferralFee.String(),
			"status":      result.Status.String(),
		})
		s.finish(w, r, principal, body, route, started, http.StatusOK, payload)
	case "host-cancel":
		caller, err := requireAddress("caller", req.Caller)
		if err != nil {
			s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(err))
			return
		}
		s.ledger.Store.Lock()
		refund, err := s.ledger.Engine.CancelByHost(listingID, caller, bookingID)
		s.ledger.Store.Unlock()
		if err != nil {
			s.fail(w, r, principal, body, route, started, err)
			return
		}
		s.metrics.CountTransition("host_cancel")
		payload, _ := json.Marshal(map[string]string{
			"bookingId":   bookingID,
			"guestRefund": refund.String(),
			"status":      booking.BookingHostCancelled.String(),
		})
		s.finish(w, r, principal, body, route, started, http.StatusOK, payload)
	case "kyg":
		caller, err := requireAddress("caller", req.Caller)
		if err != nil {
			s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(err))
			return
		}
		status, err := parseKygStatus(req.Status)
		if err != nil {
			s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(err))
			return
		}
		s.ledger.Store.Lock()
		err = s.ledger.Engine.UpdateKygStatusByID(listingID, caller, bookingID, status)
		s.ledger.Store.Unlock()
		if err != nil {
			s.fail(w, r, principal, body, route, started, err)
			return
		}
		s.metrics.CountTransition("kyg_update")
		bkg, err := s.ledger.Engine.Booking(listingID, bookingID)
		if err != nil {
			s.fail(w, r, principal, body, route, started, err)
			return
		}
		payload, _ := json.Marshal(renderBooking(listingID, bkg))
		s.finish(w, r, principal, body, route, started, http.StatusOK, payload)
	default:
		http.NotFound(w, r)
	}
}

type listingAdminRequest struct {
	Caller   string `json:"caller"`
	Address  string `json:"address,omitempty"`
	Receiver string `json:"receiver,omitempty"`
	Host     string `json:"host,omitempty"`
}

func (s *Server) handleAuthorized(w http.ResponseWriter, r *http.Request, listingID, action string) {
	if action != "grant" && action != "revoke" {
		http.NotFound(w, r)
		return
	}
	started := s.nowFn()
	principal, body, ok := s.authorize(w, r)
	if !ok {
		return
	}
	route := "listings.authorized." + action

	var req listingAdminRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.fail(w, r, principal, body, route, started, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	caller, err := requireAddress("caller", req.Caller)
	if err != nil {
		s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(err))
		return
	}
	addr, err := requireAddress("address", req.Address)
	if err != nil {
		s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(err))
		return
	}

	s.ledger.Store.Lock()
	if action == "grant" {
		err = s.ledger.Engine.GrantAuthorized(listingID, caller, addr)
	} else {
		err = s.ledger.Engine.RevokeAuthorized(listingID, caller, addr)
	}
	s.ledger.Store.Unlock()
	if err != nil {
		s.fail(w, r, principal, body, route, started, err)
		return
	}
	property, err := s.ledger.Engine.Property(listingID)
	if err != nil {
		s.fail(w, r, principal, body, route, started, err)
		return
	}
	payload, _ := json.Marshal(renderProperty(property))
	s.finish(w, r, principal, body, route, started, http.StatusOK, payload)
}

func (s *Server) handleReceiverUpdate(w http.ResponseWriter, r *http.Request, listingID string) {
	s.handleListingIdentity(w, r, listingID, "listings.receiver", func(req listingAdminRequest, caller [20]byte) error {
		receiver, err := requireAddress("receiver", req.Receiver)
		if err != nil {
			return err
		}
		return s.ledger.Engine.UpdatePaymentReceiver(listingID, caller, receiver)
	})
}

func (s *Server) handleHostUpdate(w http.ResponseWriter, r *http.Request, listingID string) {
	s.handleListingIdentity(w, r, listingID, "listings.host", func(req listingAdminRequest, caller [20]byte) error {
		host, err := requireAddress("host", req.Host)
		if err != nil {
			return err
		}
		return s.ledger.Engine.UpdateHost(listingID, caller, host)
	})
}

func (s *Server) handleListingIdentity(w http.ResponseWriter, r *http.Request, listingID, route string, apply func(listingAdminRequest, [20]byte) error) {
	started := s.nowFn()
	principal, body, ok := s.authorize(w, r)
	if !ok {
		return
	}
	var req listingAdminRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.fail(w, r, principal, body, route, started, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	caller, err := requireAddress("caller", req.Caller)
	if err != nil {
		s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(err))
		return
	}

	s.ledger.Store.Lock()
	err = apply(req, caller)
	s.ledger.Store.Unlock()
	if err != nil {
		s.fail(w, r, principal, body, route, started, err)
		return
	}
	property, err := s.ledger.Engine.Property(listingID)
	if err != nil {
		s.fail(w, r, principal, body, route, started, err)
		return
	}
	payload, _ := json.Marshal(renderProperty(property))
	s.finish(w, r, principal, body, route, started, http.StatusOK, payload)
}

func (s *Server) handlePlatformGet(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.ledger.Platform.Snapshot()
	if err != nil {
		s.writeError(w, httpStatusFor(err), err)
		return
	}
	payload, _ := json.Marshal(renderPlatformConfig(cfg))
	s.writeJSON(w, http.StatusOK, payload)
}

type platformActionRequest struct {
	Caller         string   `json:"caller"`
	FeeBps         uint32   `json:"feeBps,omitempty"`
	ReferralFeeBps uint32   `json:"referralFeeBps,omitempty"`
	PayoutDelay    int64    `json:"payoutDelay,omitempty"`
	Operator       string   `json:"operator,omitempty"`
	Treasury       string   `json:"treasury,omitempty"`
	Verifier       string   `json:"verifier,omitempty"`
	Address        string   `json:"address,omitempty"`
	Token          string   `json:"token,omitempty"`
	PaymentTokens  []string `json:"paymentTokens,omitempty"`
}

func (s *Server) handlePlatformAction(w http.ResponseWriter, r *http.Request, action string) {
	started := s.nowFn()
	principal, body, ok := s.authorize(w, r)
	if !ok {
		return
	}
	route := "platform." + action

	var req platformActionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.fail(w, r, principal, body, route, started, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	caller, err := requireAddress("caller", req.Caller)
	if err != nil {
		s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(err))
		return
	}

	registry := s.ledger.Platform
	s.ledger.Store.Lock()
	switch action {
	case "initialize":
		var cfg *platform.Config
		cfg, err = req.toConfig()
		if err == nil {
			err = registry.Initialize(caller, cfg)
		}
	case "fee":
		err = registry.SetFeeRatio(caller, req.FeeBps)
	case "referral-fee":
		err = registry.SetReferralFeeRatio(caller, req.ReferralFeeBps)
	case "payout-delay":
		err = registry.SetPayoutDelay(caller, req.PayoutDelay)
	case "operator":
		err = s.applyIdentity(req.Address, func(addr [20]byte) error { return registry.SetOperator(caller, addr) })
	case "treasury":
		err = s.applyIdentity(req.Address, func(addr [20]byte) error { return registry.SetTreasury(caller, addr) })
	case "verifier":
		err = s.applyIdentity(req.Address, func(addr [20]byte) error { return registry.SetVerifier(caller, addr) })
	case "tokens/add":
		err = s.applyIdentity(req.Token, func(addr [20]byte) error { return registry.AddPaymentToken(caller, addr) })
	case "tokens/remove":
		err = s.applyIdentity(req.Token, func(addr [20]byte) error { return registry.RemovePaymentToken(caller, addr) })
	default:
		s.ledger.Store.Unlock()
		http.NotFound(w, r)
		return
	}
	s.ledger.Store.Unlock()
	if err != nil {
		s.fail(w, r, principal, body, route, started, err)
		return
	}
	cfg, err := registry.Snapshot()
	if err != nil {
		s.fail(w, r, principal, body, route, started, err)
		return
	}
	payload, _ := json.Marshal(renderPlatformConfig(cfg))
	s.finish(w, r, principal, body, route, started, http.StatusOK, payload)
}

func (s *Server) applyIdentity(raw string, apply func([20]byte) error) error {
	addr, err := parseAddress(raw)
	if err != nil {
		return err
	}
	return apply(addr)
}

func (req platformActionRequest) toConfig() (*platform.Config, error) {
	operator, err := requireAddress("operator", req.Operator)
	if err != nil {
		return nil, err
	}
	treasury, err := requireAddress("treasury", req.Treasury)
	if err != nil {
		return nil, err
	}
	verifier, err := requireAddress("verifier", req.Verifier)
	if err != nil {
		return nil, err
	}
	cfg := &platform.Config{
		FeeBps:         req.FeeBps,
		ReferralFeeBps: req.ReferralFeeBps,
		PayoutDelay:    req.PayoutDelay,
		Operator:       operator,
		Treasury:       treasury,
		Verifier:       verifier,
	}
	for _, raw := range req.PaymentTokens {
		token, err := requireAddress("paymentTokens", raw)
		if err != nil {
			return nil, err
		}
		cfg.PaymentTokens = append(cfg.PaymentTokens, token)
	}
	return cfg, nil
}

type delegateRoleRequest struct {
	Caller string `json:"caller"`
	Member string `json:"member"`
}

func (s *Server) handleDelegateRole(w http.ResponseWriter, r *http.Request, grant bool) {
	started := s.nowFn()
	principal, body, ok := s.authorize(w, r)
	if !ok {
		return
	}
	route := "delegates.revoke"
	if grant {
		route = "delegates.grant"
	}

	var req delegateRoleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.fail(w, r, principal, body, route, started, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	caller, err := requireAddress("caller", req.Caller)
	if err != nil {
		s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(err))
		return
	}
	member, err := requireAddress("member", req.Member)
	if err != nil {
		s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(err))
		return
	}

	s.ledger.Store.Lock()
	if grant {
		err = s.ledger.Delegates.GrantRole(caller, member)
	} else {
		err = s.ledger.Delegates.RevokeRole(caller, member)
	}
	s.ledger.Store.Unlock()
	if err != nil {
		s.fail(w, r, principal, body, route, started, err)
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"member": req.Member,
		"proxy":  renderAddress(s.ledger.Delegates.Address()),
	})
	s.finish(w, r, principal, body, route, started, http.StatusOK, payload)
}

type intentSignRequest struct {
	ListingID string     `json:"listingId"`
	Intent    intentJSON `json:"intent"`
}

func (s *Server) handleIntentSign(w http.ResponseWriter, r *http.Request) {
	started := s.nowFn()
	principal, body, ok := s.authorize(w, r)
	if !ok {
		return
	}
	route := "intents.sign"
	if s.signer == nil {
		s.finish(w, r, principal, body, route, started, http.StatusServiceUnavailable, errorBody(errors.New("intent signer not configured")))
		return
	}

	var req intentSignRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.fail(w, r, principal, body, route, started, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	property, err := s.ledger.Engine.Property(req.ListingID)
	if err != nil {
		s.fail(w, r, principal, body, route, started, err)
		return
	}
	intent, err := req.Intent.toIntent()
	if err != nil {
		s.finish(w, r, principal, body, route, started, http.StatusBadRequest, errorBody(err))
		return
	}
	signature, err := s.signer.Sign(s.ledger.Engine.Domain(property), intent)
	if err != nil {
		s.fail(w, r, principal, body, route, started, err)
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"listingId": req.ListingID,
		"signature": signature,
		"verifier":  renderAddress(s.signer.Address()),
	})
	s.finish(w, r, principal, body, route, started, http.StatusOK, payload)
}

func (s *Server) handleEventsList(w http.ResponseWriter, r *http.Request) {
	afterID := int64(0)
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid after cursor: %q", raw))
			return
		}
		afterID = parsed
	}
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %q", raw))
			return
		}
		limit = parsed
	}
	events, err := s.store.ListEvents(r.Context(), afterID, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{"events": events})
	s.writeJSON(w, http.StatusOK, payload)
}

func parseSignature(raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return nil, errors.New("signature is required")
	}
	sig, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	return sig, nil
}

func parseKygStatus(raw string) (booking.KygStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "passed":
		return booking.KygPassed, nil
	case "failed":
		return booking.KygFailed, nil
	default:
		return 0, fmt.Errorf("invalid kyg status: %q", raw)
	}
}
