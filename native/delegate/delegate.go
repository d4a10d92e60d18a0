package delegate

import (
	"encoding/hex"
	"errors"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tripvault/core/events"
	"tripvault/core/types"
)

var (
	ErrNilState      = errors.New("delegate: state not configured")
	ErrNilEngine     = errors.New("delegate: booking engine not configured")
	ErrUnauthorized  = errors.New("delegate: unauthorized")
	ErrZeroAddress   = errors.New("delegate: zero address")
	ErrZeroProperty  = errors.New("delegate: zero property address")
	ErrAlreadyMember = errors.New("delegate: role already granted")
	ErrNotMember     = errors.New("delegate: role not granted")
	ErrUnknownTarget = errors.New("delegate: unknown property address")
)

// registryNamespace salts the proxy's own deterministic identity.
const registryNamespace = "tripvault/delegate/v1"

type registryState interface {
	DelegateMembersGet() ([][20]byte, bool, error)
	DelegateMembersPut([][20]byte) error
	ListingByAddress(addr [20]byte) (string, bool, error)
}

// HostActions is the subset of the booking engine the proxy forwards to.
type HostActions interface {
	CancelByHost(listingID string, caller [20]byte, bookingID string) (*big.Int, error)
	UpdateHost(listingID string, caller, newHost [20]byte) error
	UpdatePaymentReceiver(listingID string, caller, receiver [20]byte) error
}

type delegateEvent struct {
	evt *types.Event
}

func (e delegateEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e delegateEvent) Event() *types.Event { return e.evt }

const (
	EventTypeRoleGranted = "delegate.role_granted"
	EventTypeRoleRevoked = "delegate.role_revoked"
)

// Registry is the delegation proxy: a single "delegate" role whose members
// may act as host on any listing that points its authorization at the
// proxy's address. The proxy forwards host-side calls under its own
// identity, so rotating platform admin keys never requires touching
// individual listings.
type Registry struct {
	state   registryState
	engine  HostActions
	emitter events.Emitter
	admin   [20]byte
	address [20]byte
}

// NewRegistry creates a delegation proxy owned by the supplied admin. The
// proxy's identity is derived deterministically from a fixed namespace.
func NewRegistry(admin [20]byte) *Registry {
	return &Registry{
		admin:   admin,
		address: ProxyAddress(),
		emitter: events.NoopEmitter{},
	}
}

// ProxyAddress derives the proxy's deterministic identity.
func ProxyAddress() [20]byte {
	hash := ethcrypto.Keccak256([]byte(registryNamespace))
	var addr [20]byte
	copy(addr[:], hash[len(hash)-20:])
	return addr
}

// SetState configures the persistence backend.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetEngine configures the booking engine calls are forwarded to.
func (r *Registry) SetEngine(engine HostActions) { r.engine = engine }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Address returns the proxy identity listings authorize.
func (r *Registry) Address() [20]byte { return r.address }

// Admin returns the role administrator.
func (r *Registry) Admin() [20]byte { return r.admin }

func (r *Registry) emit(event *types.Event) {
	if r == nil || r.emitter == nil || event == nil {
		return
	}
	r.emitter.Emit(delegateEvent{evt: event})
}

func (r *Registry) members() ([][20]byte, error) {
	if r == nil || r.state == nil {
		return nil, ErrNilState
	}
	members, ok, err := r.state.DelegateMembersGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return members, nil
}

// HasRole reports whether the address currently holds the delegate role.
func (r *Registry) HasRole(addr [20]byte) bool {
	members, err := r.members()
	if err != nil {
		return false
	}
	for _, m := range members {
		if m == addr {
			return true
		}
	}
	return false
}

// GrantRole adds a member to the delegate role. Admin-only.
func (r *Registry) GrantRole(caller, member [20]byte) error {
	if caller != r.admin {
		return ErrUnauthorized
	}
	if member == ([20]byte{}) {
		return ErrZeroAddress
	}
	members, err := r.members()
	if err != nil {
		return err
	}
	for _, m := range members {
		if m == member {
			return ErrAlreadyMember
		}
	}
	members = append(members, member)
	if err := r.state.DelegateMembersPut(members); err != nil {
		return err
	}
	r.emit(newRoleEvent(EventTypeRoleGranted, member))
	return nil
}

// RevokeRole removes a member from the delegate role. Admin-only.
func (r *Registry) RevokeRole(caller, member [20]byte) error {
	if caller != r.admin {
		return ErrUnauthorized
	}
	if member == ([20]byte{}) {
		return ErrZeroAddress
	}
	members, err := r.members()
	if err != nil {
		return err
	}
	filtered := make([][20]byte, 0, len(members))
	found := false
	for _, m := range members {
		if m == member {
			found = true
			continue
		}
		filtered = append(filtered, m)
	}
	if !found {
		return ErrNotMember
	}
	if err := r.state.DelegateMembersPut(filtered); err != nil {
		return err
	}
	r.emit(newRoleEvent(EventTypeRoleRevoked, member))
	return nil
}

func (r *Registry) resolve(caller [20]byte, property [20]byte) (string, error) {
	if r == nil || r.state == nil {
		return "", ErrNilState
	}
	if r.engine == nil {
		return "", ErrNilEngine
	}
	if !r.HasRole(caller) {
		return "", ErrUnauthorized
	}
	if property == ([20]byte{}) {
		return "", ErrZeroProperty
	}
	listingID, ok, err := r.state.ListingByAddress(property)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnknownTarget
	}
	return listingID, nil
}

// CancelByHost forwards a host-side cancellation to the target instance,
// acting under the proxy's identity.
func (r *Registry) CancelByHost(caller [20]byte, property [20]byte, bookingID string) (*big.Int, error) {
	listingID, err := r.resolve(caller, property)
	if err != nil {
		return nil, err
	}
	return r.engine.CancelByHost(listingID, r.address, bookingID)
}

// UpdateHost forwards a host rotation to the target instance.
func (r *Registry) UpdateHost(caller [20]byte, property [20]byte, newHost [20]byte) error {
	listingID, err := r.resolve(caller, property)
	if err != nil {
		return err
	}
	return r.engine.UpdateHost(listingID, r.address, newHost)
}

// UpdatePaymentReceiver forwards a payment-receiver change to the target
// instance.
func (r *Registry) UpdatePaymentReceiver(caller [20]byte, property [20]byte, receiver [20]byte) error {
	listingID, err := r.resolve(caller, property)
	if err != nil {
		return err
	}
	return r.engine.UpdatePaymentReceiver(listingID, r.address, receiver)
}

func newRoleEvent(eventType string, member [20]byte) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"member": hex.EncodeToString(member[:]),
	}}
}
