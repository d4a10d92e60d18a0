// Package auth implements the API-key + HMAC request authentication shared
// by tripvault gateway services.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// HeaderAPIKey is the header containing the caller's API key identifier.
	HeaderAPIKey = "X-Api-Key"
	// HeaderTimestamp is the unix timestamp (seconds) used when signing the request.
	HeaderTimestamp = "X-Timestamp"
	// HeaderNonce provides replay protection when combined with the timestamp.
	HeaderNonce = "X-Nonce"
	// HeaderSignature carries the hex-encoded HMAC-SHA256 signature for the request.
	HeaderSignature = "X-Signature"
	// MaxBodyForSignature is the maximum body size we will hash when authenticating.
	MaxBodyForSignature int = 1 << 20 // 1 MiB

	defaultTimestampSkew = 2 * time.Minute
	defaultNonceWindow   = 10 * time.Minute
)

var (
	ErrMissingHeaders   = errors.New("auth: missing authentication headers")
	ErrUnknownAPIKey    = errors.New("auth: unknown api key")
	ErrTimestampSkew    = errors.New("auth: timestamp outside allowed skew")
	ErrNonceReplay      = errors.New("auth: nonce already used")
	ErrInvalidSignature = errors.New("auth: signature mismatch")
	ErrBodyTooLarge     = errors.New("auth: request body too large to sign")
)

// Principal represents an authenticated API client.
type Principal struct {
	APIKey string
}

// Authenticator verifies API key + HMAC signatures on incoming requests.
type Authenticator struct {
	secrets map[string]string
	skew    time.Duration
	window  time.Duration
	nowFn   func() time.Time

	nonceMu sync.Mutex
	nonces  map[string]time.Time
}

// NewAuthenticator builds an Authenticator keyed by the provided secrets. The
// map contains API key identifiers mapped to their shared secret.
func NewAuthenticator(secrets map[string]string, skew time.Duration, nowFn func() time.Time) *Authenticator {
	cloned := make(map[string]string, len(secrets))
	for k, v := range secrets {
		cloned[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if skew <= 0 {
		skew = defaultTimestampSkew
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Authenticator{
		secrets: cloned,
		skew:    skew,
		window:  defaultNonceWindow,
		nowFn:   nowFn,
		nonces:  make(map[string]time.Time),
	}
}

// Authenticate validates headers and signature, returning the caller
// principal.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (*Principal, error) {
	if len(body) > MaxBodyForSignature {
		return nil, ErrBodyTooLarge
	}
	apiKey := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
	timestamp := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	signature := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if apiKey == "" || timestamp == "" || nonce == "" || signature == "" {
		return nil, ErrMissingHeaders
	}
	secret, ok := a.secrets[apiKey]
	if !ok || secret == "" {
		return nil, ErrUnknownAPIKey
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, ErrTimestampSkew
	}
	now := a.nowFn()
	delta := now.Sub(time.Unix(ts, 0))
	if delta < 0 {
		delta = -delta
	}
	if delta > a.skew {
		return nil, ErrTimestampSkew
	}
	expected := ComputeSignature(secret, timestamp, nonce, r.Method, CanonicalRequestPath(r), body)
	provided, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || !hmac.Equal(expected, provided) {
		return nil, ErrInvalidSignature
	}
	// Only an authenticated request consumes its nonce; a forged signature
	// must not be able to block the legitimate call.
	if err := a.recordNonce(apiKey, timestamp, nonce, now); err != nil {
		return nil, err
	}
	return &Principal{APIKey: apiKey}, nil
}

func (a *Authenticator) recordNonce(apiKey, timestamp, nonce string, now time.Time) error {
	key := apiKey + "|" + timestamp + "|" + nonce
	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()
	cutoff := now.Add(-a.window)
	for k, seen := range a.nonces {
		if seen.Before(cutoff) {
			delete(a.nonces, k)
		}
	}
	if _, ok := a.nonces[key]; ok {
		return ErrNonceReplay
	}
	a.nonces[key] = now
	return nil
}

// CanonicalRequestPath renders the signed request path.
func CanonicalRequestPath(r *http.Request) string {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	if query := CanonicalQuery(r.URL.RawQuery); query != "" {
		return path + "?" + query
	}
	return path
}

// CanonicalQuery normalises the raw query for signing.
func CanonicalQuery(raw string) string {
	return strings.TrimSpace(raw)
}

// ComputeSignature derives the HMAC-SHA256 request signature.
func ComputeSignature(secret, timestamp, nonce, method, path string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(nonce))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strings.ToUpper(method)))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(path))
	mac.Write([]byte{'\n'})
	mac.Write(body)
	return mac.Sum(nil)
}
