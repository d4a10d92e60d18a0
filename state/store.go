// Package state persists module state as JSON documents in a key-value
// database. Every mutating ledger call runs under the store's single writer
// lock, which is what makes each call observe a consistent snapshot; the
// all-or-nothing guarantee for multi-write calls is the caller's transaction
// discipline, mirroring a ledger host.
package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"tripvault/core/types"
	"tripvault/native/booking"
	"tripvault/native/platform"
	"tripvault/storage"
)

var (
	// ErrInsufficientFunds is returned when a transfer exceeds the sender's
	// balance.
	ErrInsufficientFunds = errors.New("state: insufficient balance")
	// ErrNegativeAmount marks transfer attempts with a negative amount.
	ErrNegativeAmount = errors.New("state: negative transfer amount")
)

const (
	keyPlatformConfig  = "platform/config"
	keyDelegateMembers = "delegate/members"

	prefixAccount     = "account/"
	prefixProperty    = "property/"
	prefixListing     = "listing/"
	prefixListingAddr = "listingaddr/"
	prefixBooking     = "booking/"
)

// Store is the concrete persistence backend shared by the platform registry,
// the factory, the booking engine and the delegation proxy.
type Store struct {
	mu sync.Mutex
	db storage.Database
}

// NewStore wraps a database in a module state store.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// Lock serialises one mutating ledger call; callers hold it for the whole
// call so competing submissions observe each other's effects.
func (s *Store) Lock() { s.mu.Lock() }

// Unlock releases the call lock.
func (s *Store) Unlock() { s.mu.Unlock() }

func (s *Store) getJSON(key string, out interface{}) (bool, error) {
	raw, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) putJSON(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return s.db.Put([]byte(key), raw)
}

// --- platform registry state ---

func (s *Store) PlatformConfigGet() (*platform.Config, bool, error) {
	cfg := &platform.Config{}
	ok, err := s.getJSON(keyPlatformConfig, cfg)
	if err != nil || !ok {
		return nil, false, err
	}
	return cfg, true, nil
}

func (s *Store) PlatformConfigPut(cfg *platform.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: nil platform config")
	}
	return s.putJSON(keyPlatformConfig, cfg)
}

// --- factory / listing state ---

func (s *Store) ListingGet(listingID string) ([20]byte, bool, error) {
	var addr [20]byte
	var encoded string
	ok, err := s.getJSON(prefixListing+listingID, &encoded)
	if err != nil || !ok {
		return addr, false, err
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) != 20 {
		return addr, false, fmt.Errorf("state: corrupt listing entry %q", listingID)
	}
	copy(addr[:], raw)
	return addr, true, nil
}

func (s *Store) ListingPut(listingID string, addr [20]byte) error {
	encoded := hex.EncodeToString(addr[:])
	if err := s.putJSON(prefixListing+listingID, encoded); err != nil {
		return err
	}
	return s.putJSON(prefixListingAddr+encoded, listingID)
}

func (s *Store) ListingByAddress(addr [20]byte) (string, bool, error) {
	var listingID string
	ok, err := s.getJSON(prefixListingAddr+hex.EncodeToString(addr[:]), &listingID)
	if err != nil || !ok {
		return "", false, err
	}
	return listingID, true, nil
}

// --- property / booking state ---

func (s *Store) PropertyGet(listingID string) (*booking.Property, bool, error) {
	property := &booking.Property{}
	ok, err := s.getJSON(prefixProperty+listingID, property)
	if err != nil || !ok {
		return nil, false, err
	}
	return property, true, nil
}

func (s *Store) PropertyPut(property *booking.Property) error {
	sanitized, err := booking.SanitizeProperty(property)
	if err != nil {
		return err
	}
	return s.putJSON(prefixProperty+sanitized.ListingID, sanitized)
}

func bookingKey(listingID, bookingID string) string {
	return prefixBooking + listingID + "/" + bookingID
}

func (s *Store) BookingGet(listingID, bookingID string) (*booking.Booking, bool, error) {
	bkg := &booking.Booking{}
	ok, err := s.getJSON(bookingKey(listingID, bookingID), bkg)
	if err != nil || !ok {
		return nil, false, err
	}
	return bkg, true, nil
}

func (s *Store) BookingPut(listingID string, bkg *booking.Booking) error {
	if bkg == nil || strings.TrimSpace(bkg.ID) == "" {
		return fmt.Errorf("state: invalid booking")
	}
	return s.putJSON(bookingKey(listingID, bkg.ID), bkg.Clone())
}

// --- accounts / token ledger ---

func (s *Store) GetAccount(addr [20]byte) (*types.Account, error) {
	account := &types.Account{}
	ok, err := s.getJSON(prefixAccount+hex.EncodeToString(addr[:]), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{Balances: make(map[string]*big.Int)}, nil
	}
	if account.Balances == nil {
		account.Balances = make(map[string]*big.Int)
	}
	return account, nil
}

func (s *Store) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	return s.putJSON(prefixAccount+hex.EncodeToString(addr[:]), account)
}

// Mint credits freshly issued balance to an account. Used by genesis seeding
// and deposit on-ramps, not by the escrow engines.
func (s *Store) Mint(token [20]byte, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	account, err := s.GetAccount(to)
	if err != nil {
		return err
	}
	account.SetBalance(token, new(big.Int).Add(account.BalanceOf(token), amount))
	return s.PutAccount(to, account)
}

// TokenTransfer moves balance between two identities. The transfer either
// fully applies or returns an error with no residual mutation.
func (s *Store) TokenTransfer(token [20]byte, from, to [20]byte, amount *big.Int) error {
	if amount == nil {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromAccount, err := s.GetAccount(from)
	if err != nil {
		return err
	}
	if fromAccount.BalanceOf(token).Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	// A self-transfer is a funded no-op; writing debited and credited copies
	// of the same account would let the second write win.
	if from == to {
		return nil
	}
	toAccount, err := s.GetAccount(to)
	if err != nil {
		return err
	}
	fromAccount.SetBalance(token, new(big.Int).Sub(fromAccount.BalanceOf(token), amount))
	toAccount.SetBalance(token, new(big.Int).Add(toAccount.BalanceOf(token), amount))
	if err := s.PutAccount(from, fromAccount); err != nil {
		return err
	}
	return s.PutAccount(to, toAccount)
}

// BalanceOf reads the current balance for an identity and token.
func (s *Store) BalanceOf(token [20]byte, addr [20]byte) (*big.Int, error) {
	account, err := s.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return account.BalanceOf(token), nil
}

// --- delegate role state ---

func (s *Store) DelegateMembersGet() ([][20]byte, bool, error) {
	var encoded []string
	ok, err := s.getJSON(keyDelegateMembers, &encoded)
	if err != nil || !ok {
		return nil, false, err
	}
	members := make([][20]byte, 0, len(encoded))
	for _, entry := range encoded {
		raw, err := hex.DecodeString(entry)
		if err != nil || len(raw) != 20 {
			return nil, false, fmt.Errorf("state: corrupt delegate member %q", entry)
		}
		var member [20]byte
		copy(member[:], raw)
		members = append(members, member)
	}
	return members, true, nil
}

func (s *Store) DelegateMembersPut(members [][20]byte) error {
	encoded := make([]string, len(members))
	for i, member := range members {
		encoded[i] = hex.EncodeToString(member[:])
	}
	return s.putJSON(keyDelegateMembers, encoded)
}
