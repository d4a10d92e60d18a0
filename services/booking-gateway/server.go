package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tripvault/core"
	"tripvault/gateway/auth"
	"tripvault/native/authorizer"
	"tripvault/native/booking"
	"tripvault/native/delegate"
	"tripvault/native/factory"
	"tripvault/native/platform"
	"tripvault/observability"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	maxRequestBody       = 1 << 20 // 1 MiB
)

// Server is the HTTP front-end for the booking ledger.
type Server struct {
	authenticator *auth.Authenticator
	ledger        *core.Ledger
	store         *SQLiteStore
	signer        *IntentSigner
	metrics       *observability.GatewayMetrics
	nowFn         func() time.Time
}

func NewServer(authenticator *auth.Authenticator, ledger *core.Ledger, store *SQLiteStore, signer *IntentSigner) *Server {
	if authenticator == nil {
		panic("authenticator required")
	}
	if ledger == nil {
		panic("ledger required")
	}
	if store == nil {
		panic("sqlite store required")
	}
	return &Server{
		authenticator: authenticator,
		ledger:        ledger,
		store:         store,
		signer:        signer,
		metrics:       observability.Gateway(),
		nowFn:         time.Now,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/healthz":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	case r.Method == http.MethodGet && path == "/v1/events":
		s.handleEventsList(w, r)
	case r.Method == http.MethodGet && path == "/v1/platform":
		s.handlePlatformGet(w, r)
	case r.Method == http.MethodPost && strings.HasPrefix(path, "/v1/platform/"):
		s.handlePlatformAction(w, r, strings.TrimPrefix(path, "/v1/platform/"))
	case r.Method == http.MethodPost && (path == "/v1/delegates/grant" || path == "/v1/delegates/revoke"):
		s.handleDelegateRole(w, r, strings.HasSuffix(path, "/grant"))
	case r.Method == http.MethodPost && path == "/v1/intents/sign":
		s.handleIntentSign(w, r)
	case r.Method == http.MethodPost && path == "/v1/listings":
		s.handleListingCreate(w, r)
	case strings.HasPrefix(path, "/v1/listings/"):
		s.routeListing(w, r, strings.TrimPrefix(path, "/v1/listings/"))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) routeListing(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	listingID := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleListingGet(w, r, listingID)
	case len(parts) == 2 && parts[1] == "bookings" && r.Method == http.MethodPost:
		s.handleBookingCreate(w, r, listingID)
	case len(parts) == 3 && parts[1] == "bookings" && r.Method == http.MethodGet:
		s.handleBookingGet(w, r, listingID, parts[2])
	case len(parts) == 4 && parts[1] == "bookings" && r.Method == http.MethodPost:
		s.handleBookingAction(w, r, listingID, parts[2], parts[3])
	case len(parts) == 3 && parts[1] == "authorized" && r.Method == http.MethodPost:
		s.handleAuthorized(w, r, listingID, parts[2])
	case len(parts) == 2 && parts[1] == "receiver" && r.Method == http.MethodPost:
		s.handleReceiverUpdate(w, r, listingID)
	case len(parts) == 2 && parts[1] == "host" && r.Method == http.MethodPost:
		s.handleHostUpdate(w, r, listingID)
	default:
		http.NotFound(w, r)
	}
}

// authorize reads and authenticates a mutating request. On failure the
// response has already been written and the returned principal is nil.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (*auth.Principal, []byte, bool) {
	body, err := s.readRequestBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return nil, nil, false
	}
	principal, err := s.authenticator.Authenticate(r, body)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, err)
		s.audit(r.Context(), principal, r, body, http.StatusUnauthorized, errorBody(err))
		return nil, nil, false
	}
	return principal, body, true
}

func (s *Server) readRequestBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	limited := io.LimitReader(r.Body, maxRequestBody+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(data) > maxRequestBody {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxRequestBody)
	}
	return data, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, errorBody(err))
}

func errorBody(err error) []byte {
	msg := strings.ReplaceAll(err.Error(), "\"", "'")
	return []byte(fmt.Sprintf(`{"error":"%s"}`, msg))
}

func (s *Server) audit(ctx context.Context, principal *auth.Principal, r *http.Request, requestBody []byte, status int, responseBody []byte) {
	apiKey := ""
	if principal != nil {
		apiKey = principal.APIKey
	}
	entry := AuditEntry{
		APIKey:         apiKey,
		Method:         r.Method,
		Path:           auth.CanonicalRequestPath(r),
		RequestBody:    append([]byte(nil), requestBody...),
		ResponseBody:   append([]byte(nil), responseBody...),
		ResponseStatus: status,
		Timestamp:      s.nowFn().UTC(),
	}
	_ = s.store.InsertAuditLog(ctx, entry)
}

// finish writes the terminal response for a mutating request, records the
// audit row, and bumps the request metrics.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, principal *auth.Principal, requestBody []byte, route string, started time.Time, status int, payload []byte) {
	s.writeJSON(w, status, payload)
	s.audit(r.Context(), principal, r, requestBody, status, payload)
	outcome := "ok"
	if status >= http.StatusBadRequest {
		outcome = "error"
	}
	s.metrics.ObserveRequest(route, outcome, s.nowFn().Sub(started))
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, principal *auth.Principal, requestBody []byte, route string, started time.Time, err error) {
	s.finish(w, r, principal, requestBody, route, started, httpStatusFor(err), errorBody(err))
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{strings.ToUpper(method), path, string(body)}, "\n")))
	return fmt.Sprintf("%x", sum[:])
}

// httpStatusFor maps ledger sentinel errors onto HTTP statuses. Unknown
// errors surface as 500.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrListingNotFound),
		errors.Is(err, booking.ErrBookingNotFound),
		errors.Is(err, platform.ErrTokenNotFound),
		errors.Is(err, delegate.ErrUnknownTarget),
		errors.Is(err, delegate.ErrNotMember):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrUnauthorized),
		errors.Is(err, platform.ErrUnauthorized),
		errors.Is(err, delegate.ErrUnauthorized),
		errors.Is(err, factory.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrDuplicateBooking),
		errors.Is(err, factory.ErrListingExists),
		errors.Is(err, platform.ErrTokenExists),
		errors.Is(err, delegate.ErrAlreadyMember),
		errors.Is(err, ErrIdempotencyMismatch):
		return http.StatusConflict
	case errors.Is(err, authorizer.ErrInvalidSignature),
		errors.Is(err, authorizer.ErrUnauthorizedSigner),
		errors.Is(err, booking.ErrGuestMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, booking.ErrIntentExpired),
		errors.Is(err, booking.ErrBookingFinalized),
		errors.Is(err, booking.ErrNothingPayable),
		errors.Is(err, booking.ErrKygAlreadyResolved):
		return http.StatusConflict
	default:
		// Remaining ledger sentinels are request validation failures.
		if isValidationError(err) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

var validationErrors = []error{
	booking.ErrInvalidBookingID,
	booking.ErrInvalidCheckIn,
	booking.ErrInvalidCheckOut,
	booking.ErrInvalidAmount,
	booking.ErrEmptyPolicy,
	booking.ErrInvalidPolicyOrder,
	booking.ErrUnsupportedToken,
	booking.ErrInvalidInsurance,
	booking.ErrInsufficientBalance,
	booking.ErrNoInsurance,
	booking.ErrInvalidKygStatus,
	booking.ErrZeroAddress,
	booking.ErrAlreadyAuthorized,
	booking.ErrNotAuthorized,
	booking.ErrSameReceiver,
	booking.ErrSameHost,
	platform.ErrRatioOutOfRange,
	platform.ErrReferralExceedsFee,
	platform.ErrZeroAddress,
	platform.ErrInvalidDelay,
	factory.ErrEmptyListing,
	factory.ErrZeroHost,
	delegate.ErrZeroAddress,
	delegate.ErrZeroProperty,
}
