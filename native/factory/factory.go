package factory

import (
	"errors"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tripvault/core/events"
	"tripvault/core/types"
	"tripvault/native/booking"
	"tripvault/native/platform"
)

var (
	ErrNilState      = errors.New("factory: state not configured")
	ErrNilRegistry   = errors.New("factory: platform registry not configured")
	ErrUnauthorized  = errors.New("factory: caller is not the operator")
	ErrListingExists = errors.New("factory: listing already registered")
	ErrEmptyListing  = errors.New("factory: listing id required")
	ErrZeroHost      = errors.New("factory: zero host address")
)

// propertyNamespace salts the deterministic instance derivation so property
// addresses can never collide with key-derived identities.
const propertyNamespace = "tripvault/property/v1/"

type factoryState interface {
	ListingGet(listingID string) ([20]byte, bool, error)
	ListingPut(listingID string, addr [20]byte) error
	PropertyPut(*booking.Property) error
}

type factoryEvent struct {
	evt *types.Event
}

func (e factoryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e factoryEvent) Event() *types.Event { return e.evt }

// Factory creates exactly one escrow instance per listing id, at an address
// any observer can precompute before the creation executes. Entries are
// append-only and never deleted.
type Factory struct {
	state    factoryState
	registry *platform.Registry
	emitter  events.Emitter
}

// NewFactory creates an instance registry bound to the platform registry.
func NewFactory(registry *platform.Registry) *Factory {
	return &Factory{registry: registry, emitter: events.NoopEmitter{}}
}

// SetState configures the persistence backend.
func (f *Factory) SetState(state factoryState) { f.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (f *Factory) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		f.emitter = events.NoopEmitter{}
		return
	}
	f.emitter = emitter
}

func (f *Factory) emit(event *types.Event) {
	if f == nil || f.emitter == nil || event == nil {
		return
	}
	f.emitter.Emit(factoryEvent{evt: event})
}

// PropertyAddress derives the deterministic instance address for a listing.
// Downstream systems may reference it before the instance exists.
func PropertyAddress(listingID string) [20]byte {
	hash := ethcrypto.Keccak256([]byte(propertyNamespace + strings.TrimSpace(listingID)))
	var addr [20]byte
	copy(addr[:], hash[len(hash)-20:])
	return addr
}

// CreateProperty registers a new listing and its escrow instance. Restricted
// to the platform operator. The delegate identity, when non-zero, is the
// delegation proxy permitted to act as host on the new instance.
func (f *Factory) CreateProperty(caller [20]byte, listingID string, host, delegate [20]byte) (*booking.Property, error) {
	if f == nil || f.state == nil {
		return nil, ErrNilState
	}
	if f.registry == nil {
		return nil, ErrNilRegistry
	}
	operator, err := f.registry.Operator()
	if err != nil {
		return nil, err
	}
	if caller == ([20]byte{}) || caller != operator {
		return nil, ErrUnauthorized
	}
	trimmed := strings.TrimSpace(listingID)
	if trimmed == "" {
		return nil, ErrEmptyListing
	}
	if host == ([20]byte{}) {
		return nil, ErrZeroHost
	}
	if _, ok, err := f.state.ListingGet(trimmed); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrListingExists, trimmed)
	}
	addr := PropertyAddress(trimmed)
	property := &booking.Property{
		ListingID:       trimmed,
		Address:         addr,
		Host:            host,
		PaymentReceiver: host,
		Delegate:        delegate,
	}
	sanitized, err := booking.SanitizeProperty(property)
	if err != nil {
		return nil, err
	}
	if err := f.state.PropertyPut(sanitized); err != nil {
		return nil, err
	}
	if err := f.state.ListingPut(trimmed, addr); err != nil {
		return nil, err
	}
	f.emit(NewPropertyCreatedEvent(sanitized))
	return sanitized.Clone(), nil
}
