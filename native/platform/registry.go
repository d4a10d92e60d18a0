package platform

import (
	"fmt"

	"tripvault/core/events"
	"tripvault/core/types"
)

type registryState interface {
	PlatformConfigGet() (*Config, bool, error)
	PlatformConfigPut(*Config) error
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

// Registry is the admin-owned configuration store read by every escrow
// instance. It carries no state machine: each mutation is a guarded write
// with cross-field validation.
type Registry struct {
	state   registryState
	emitter events.Emitter
	admin   [20]byte
}

// NewRegistry creates a configuration registry owned by the supplied admin
// identity.
func NewRegistry(admin [20]byte) *Registry {
	return &Registry{admin: admin, emitter: events.NoopEmitter{}}
}

// SetState configures the persistence backend used by the registry.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Admin returns the registry owner.
func (r *Registry) Admin() [20]byte { return r.admin }

func (r *Registry) emit(event *types.Event) {
	if r == nil || r.emitter == nil || event == nil {
		return
	}
	r.emitter.Emit(registryEvent{evt: event})
}

func (r *Registry) requireAdmin(caller [20]byte) error {
	if caller != r.admin {
		return ErrUnauthorized
	}
	return nil
}

func (r *Registry) load() (*Config, error) {
	if r == nil || r.state == nil {
		return nil, ErrNilState
	}
	cfg, ok, err := r.state.PlatformConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok || cfg == nil {
		return &Config{}, nil
	}
	return cfg.Clone(), nil
}

func (r *Registry) store(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return r.state.PlatformConfigPut(cfg)
}

// Initialize seeds the registry with a full configuration. Only the admin may
// call it; an existing configuration is overwritten field by field, subject
// to the same validation as the individual setters.
func (r *Registry) Initialize(caller [20]byte, cfg *Config) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if r.state == nil {
		return ErrNilState
	}
	if cfg == nil {
		return fmt.Errorf("platform: nil config")
	}
	if cfg.Operator == ([20]byte{}) || cfg.Treasury == ([20]byte{}) || cfg.Verifier == ([20]byte{}) {
		return ErrZeroAddress
	}
	return r.store(cfg.Clone())
}

// SetFeeRatio updates the platform fee numerator. In-flight bookings keep the
// ratio they snapshotted at creation time.
func (r *Registry) SetFeeRatio(caller [20]byte, bps uint32) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	cfg, err := r.load()
	if err != nil {
		return err
	}
	if bps > FeeDenominator {
		return fmt.Errorf("%w: %d", ErrRatioOutOfRange, bps)
	}
	cfg.FeeBps = bps
	if err := r.store(cfg); err != nil {
		return err
	}
	r.emit(newRatioEvent(EventTypeFeeUpdated, bps))
	return nil
}

// SetReferralFeeRatio updates the referral carve-out. It is validated against
// the current fee numerator, never against any booking's snapshot.
func (r *Registry) SetReferralFeeRatio(caller [20]byte, bps uint32) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	cfg, err := r.load()
	if err != nil {
		return err
	}
	if bps > cfg.FeeBps {
		return fmt.Errorf("%w: %d > %d", ErrReferralExceedsFee, bps, cfg.FeeBps)
	}
	cfg.ReferralFeeBps = bps
	if err := r.store(cfg); err != nil {
		return err
	}
	r.emit(newRatioEvent(EventTypeReferralFeeUpdated, bps))
	return nil
}

// SetPayoutDelay updates the grace period added to every policy expiry before
// funds become releasable.
func (r *Registry) SetPayoutDelay(caller [20]byte, delay int64) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if delay < 0 {
		return ErrInvalidDelay
	}
	cfg, err := r.load()
	if err != nil {
		return err
	}
	cfg.PayoutDelay = delay
	if err := r.store(cfg); err != nil {
		return err
	}
	r.emit(newDelayEvent(delay))
	return nil
}

// SetOperator rotates the operator identity.
func (r *Registry) SetOperator(caller, operator [20]byte) error {
	return r.setIdentity(caller, operator, EventTypeOperatorUpdated, func(cfg *Config) {
		cfg.Operator = operator
	})
}

// SetTreasury rotates the treasury identity.
func (r *Registry) SetTreasury(caller, treasury [20]byte) error {
	return r.setIdentity(caller, treasury, EventTypeTreasuryUpdated, func(cfg *Config) {
		cfg.Treasury = treasury
	})
}

// SetVerifier rotates the booking authorizer key trusted by every instance.
func (r *Registry) SetVerifier(caller, verifier [20]byte) error {
	return r.setIdentity(caller, verifier, EventTypeVerifierUpdated, func(cfg *Config) {
		cfg.Verifier = verifier
	})
}

func (r *Registry) setIdentity(caller, identity [20]byte, eventType string, apply func(*Config)) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if identity == ([20]byte{}) {
		return ErrZeroAddress
	}
	cfg, err := r.load()
	if err != nil {
		return err
	}
	apply(cfg)
	if err := r.store(cfg); err != nil {
		return err
	}
	r.emit(newIdentityEvent(eventType, identity))
	return nil
}

// AddPaymentToken appends a token to the allow-list.
func (r *Registry) AddPaymentToken(caller, token [20]byte) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if token == ([20]byte{}) {
		return ErrZeroAddress
	}
	cfg, err := r.load()
	if err != nil {
		return err
	}
	if cfg.SupportsToken(token) {
		return ErrTokenExists
	}
	cfg.PaymentTokens = append(cfg.PaymentTokens, token)
	if err := r.store(cfg); err != nil {
		return err
	}
	r.emit(newIdentityEvent(EventTypePaymentTokenAdded, token))
	return nil
}

// RemovePaymentToken drops a token from the allow-list. Bookings already
// funded in the token are unaffected.
func (r *Registry) RemovePaymentToken(caller, token [20]byte) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if token == ([20]byte{}) {
		return ErrZeroAddress
	}
	cfg, err := r.load()
	if err != nil {
		return err
	}
	if !cfg.SupportsToken(token) {
		return ErrTokenNotFound
	}
	filtered := make([][20]byte, 0, len(cfg.PaymentTokens))
	for _, t := range cfg.PaymentTokens {
		if t != token {
			filtered = append(filtered, t)
		}
	}
	cfg.PaymentTokens = filtered
	if err := r.store(cfg); err != nil {
		return err
	}
	r.emit(newIdentityEvent(EventTypePaymentTokenRemoved, token))
	return nil
}

// Snapshot returns a copy of the full current configuration.
func (r *Registry) Snapshot() (*Config, error) {
	return r.load()
}

// Operator returns the current operator identity.
func (r *Registry) Operator() ([20]byte, error) {
	cfg, err := r.load()
	if err != nil {
		return [20]byte{}, err
	}
	return cfg.Operator, nil
}

// Treasury returns the current treasury identity.
func (r *Registry) Treasury() ([20]byte, error) {
	cfg, err := r.load()
	if err != nil {
		return [20]byte{}, err
	}
	return cfg.Treasury, nil
}

// Verifier returns the current authorizer key identity.
func (r *Registry) Verifier() ([20]byte, error) {
	cfg, err := r.load()
	if err != nil {
		return [20]byte{}, err
	}
	return cfg.Verifier, nil
}

// PayoutDelay returns the current payout grace period in seconds.
func (r *Registry) PayoutDelay() (int64, error) {
	cfg, err := r.load()
	if err != nil {
		return 0, err
	}
	return cfg.PayoutDelay, nil
}

// IsPaymentTokenSupported reports allow-list membership for the token.
func (r *Registry) IsPaymentTokenSupported(token [20]byte) (bool, error) {
	cfg, err := r.load()
	if err != nil {
		return false, err
	}
	return cfg.SupportsToken(token), nil
}
