package booking

import (
	"math/big"
	"strings"
	"time"

	"tripvault/core/events"
	"tripvault/core/types"
	"tripvault/native/authorizer"
	"tripvault/native/platform"
)

// DomainName and DomainVersion identify the typed-data domain every escrow
// instance verifies booking intents under. The verifying contract field is
// the instance's own address, so signatures never transfer across listings.
const (
	DomainName    = "Tripvault Booking"
	DomainVersion = "1"
)

type engineState interface {
	PropertyGet(listingID string) (*Property, bool, error)
	PropertyPut(*Property) error
	BookingGet(listingID, bookingID string) (*Booking, bool, error)
	BookingPut(listingID string, b *Booking) error
	TokenTransfer(token [20]byte, from, to [20]byte, amount *big.Int) error
}

// DelegateView exposes delegation-proxy membership to the capability check
// without coupling the engine to the proxy implementation.
type DelegateView interface {
	HasRole(addr [20]byte) bool
}

type bookingEvent struct {
	evt *types.Event
}

func (e bookingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e bookingEvent) Event() *types.Event { return e.evt }

// Capability tags the standing a caller has for a host-side operation.
type Capability uint8

const (
	CapabilityDenied Capability = iota
	CapabilityHost
	CapabilityAuthorized
	CapabilityDelegate
	CapabilityOperator
)

// Engine drives the per-listing booking state machine. Fee ratios are read
// from the platform registry once at booking creation and snapshotted; every
// later settlement uses the snapshot.
type Engine struct {
	state     engineState
	registry  *platform.Registry
	delegates DelegateView
	emitter   events.Emitter
	chainID   uint64
	nowFn     func() int64
}

// NewEngine creates a booking engine bound to the supplied platform registry.
func NewEngine(registry *platform.Registry, chainID uint64) *Engine {
	return &Engine{
		registry: registry,
		chainID:  chainID,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetDelegates configures the delegation-proxy membership view.
func (e *Engine) SetDelegates(view DelegateView) { e.delegates = view }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(bookingEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Domain returns the typed-data domain for the supplied property instance.
func (e *Engine) Domain(p *Property) authorizer.Domain {
	domain := authorizer.Domain{Name: DomainName, Version: DomainVersion, ChainID: e.chainID}
	if p != nil {
		domain.VerifyingContract = p.Address
	}
	return domain
}

func (e *Engine) loadProperty(listingID string) (*Property, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	trimmed := strings.TrimSpace(listingID)
	if trimmed == "" {
		return nil, ErrListingNotFound
	}
	property, ok, err := e.state.PropertyGet(trimmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrListingNotFound
	}
	return property, nil
}

func (e *Engine) loadBooking(listingID, bookingID string) (*Booking, error) {
	bkg, ok, err := e.state.BookingGet(listingID, strings.TrimSpace(bookingID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBookingNotFound
	}
	return bkg, nil
}

func (e *Engine) config() (*platform.Config, error) {
	if e == nil || e.registry == nil {
		return nil, ErrNilRegistry
	}
	return e.registry.Snapshot()
}

// capabilityOf resolves the standing of a caller for host-side operations on
// the property. Role dispatch is explicit: one tagged outcome per caller, no
// hierarchy.
func (e *Engine) capabilityOf(p *Property, caller [20]byte) Capability {
	if p == nil || caller == ([20]byte{}) {
		return CapabilityDenied
	}
	if caller == p.Host {
		return CapabilityHost
	}
	if p.IsAuthorized(caller) {
		return CapabilityAuthorized
	}
	if p.Delegate != ([20]byte{}) {
		if caller == p.Delegate {
			return CapabilityDelegate
		}
		if e.delegates != nil && e.delegates.HasRole(caller) {
			return CapabilityDelegate
		}
	}
	if e.registry != nil {
		if operator, err := e.registry.Operator(); err == nil && operator != ([20]byte{}) && caller == operator {
			return CapabilityOperator
		}
	}
	return CapabilityDenied
}

// Property returns a copy of the stored property instance.
func (e *Engine) Property(listingID string) (*Property, error) {
	property, err := e.loadProperty(listingID)
	if err != nil {
		return nil, err
	}
	return property.Clone(), nil
}

// Booking returns a copy of the stored booking. Terminated bookings remain
// queryable forever.
func (e *Engine) Booking(listingID, bookingID string) (*Booking, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	bkg, err := e.loadBooking(strings.TrimSpace(listingID), bookingID)
	if err != nil {
		return nil, err
	}
	return bkg.Clone(), nil
}

// Book verifies the signed intent and locks the booking amount in escrow.
// The caller must be the guest named in the intent; the platform fee ratios
// in force right now are frozen onto the booking.
func (e *Engine) Book(listingID string, caller [20]byte, intent authorizer.BookingIntent, signature []byte) (*Booking, error) {
	property, err := e.loadProperty(listingID)
	if err != nil {
		return nil, err
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if err := authorizer.Verify(e.Domain(property), intent, signature, cfg.Verifier); err != nil {
		return nil, err
	}
	if caller != intent.Guest {
		return nil, ErrGuestMismatch
	}
	now := e.now()
	if now > intent.ExpireAt {
		return nil, ErrIntentExpired
	}
	if intent.CheckInAt <= now {
		return nil, ErrInvalidCheckIn
	}
	if intent.CheckOutAt <= intent.CheckInAt {
		return nil, ErrInvalidCheckOut
	}
	if intent.BookingAmount == nil || intent.BookingAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	policies := make([]CancellationPolicy, len(intent.Policies))
	for i, term := range intent.Policies {
		policies[i] = CancellationPolicy{ExpireAt: term.ExpireAt, RefundAmount: term.RefundAmount}
	}
	if err := ValidatePolicies(policies, intent.BookingAmount); err != nil {
		return nil, err
	}
	if !cfg.SupportsToken(intent.PaymentToken) {
		return nil, ErrUnsupportedToken
	}
	bookingID := strings.TrimSpace(intent.BookingID)
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}
	if _, ok, err := e.state.BookingGet(property.ListingID, bookingID); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrDuplicateBooking
	}
	var insurance *InsuranceInfo
	if intent.Insurance != nil {
		insurance = &InsuranceInfo{
			DamageProtectionFee: intent.Insurance.DamageProtectionFee,
			FeeReceiver:         intent.Insurance.FeeReceiver,
			KygStatus:           KygInProgress,
		}
		if err := insurance.Validate(); err != nil {
			return nil, err
		}
		if insurance.DamageProtectionFee == nil || insurance.DamageProtectionFee.Sign() == 0 {
			insurance = nil
		}
	}
	if err := e.state.TokenTransfer(intent.PaymentToken, intent.Guest, property.Address, intent.BookingAmount); err != nil {
		return nil, err
	}
	bkg := &Booking{
		ID:           bookingID,
		Guest:        intent.Guest,
		PaymentToken: intent.PaymentToken,
		Amount:       new(big.Int).Set(intent.BookingAmount),
		Balance:      new(big.Int).Set(intent.BookingAmount),
		CheckInAt:    intent.CheckInAt,
		CheckOutAt:   intent.CheckOutAt,
		ExpireAt:     intent.ExpireAt,
		CreatedAt:    now,
		FeeBps:       cfg.FeeBps,
		ReferralBps:  cfg.ReferralFeeBps,
		Referrer:     intent.Referrer,
		Policies:     policies,
		Insurance:    insurance.Clone(),
		Status:       BookingInProgress,
	}
	if err := e.state.BookingPut(property.ListingID, bkg); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(property.ListingID, bkg))
	return bkg.Clone(), nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func bpsShare(amount *big.Int, bps uint32) *big.Int {
	share := new(big.Int).Mul(cloneBigInt(amount), new(big.Int).SetUint64(uint64(bps)))
	return share.Div(share, big.NewInt(platform.FeeDenominator))
}
