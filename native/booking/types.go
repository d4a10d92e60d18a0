package booking

import (
	"fmt"
	"math/big"
	"strings"
)

// BookingStatus represents the lifecycle states of a single booking.
type BookingStatus uint8

const (
	BookingInProgress BookingStatus = iota
	BookingPartialPaid
	BookingFullyPaid
	BookingGuestCancelled
	BookingHostCancelled
)

// Terminal reports whether the status admits no further transitions.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingFullyPaid, BookingGuestCancelled, BookingHostCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether the status value is within the supported range.
func (s BookingStatus) Valid() bool {
	return s <= BookingHostCancelled
}

func (s BookingStatus) String() string {
	switch s {
	case BookingInProgress:
		return "in_progress"
	case BookingPartialPaid:
		return "partial_paid"
	case BookingFullyPaid:
		return "fully_paid"
	case BookingGuestCancelled:
		return "guest_cancelled"
	case BookingHostCancelled:
		return "host_cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// KygStatus is the tri-state know-your-guest outcome gating collection of the
// damage-protection fee.
type KygStatus uint8

const (
	KygInProgress KygStatus = iota
	KygPassed
	KygFailed
)

// Valid reports whether the status value is within the supported range.
func (s KygStatus) Valid() bool {
	return s <= KygFailed
}

func (s KygStatus) String() string {
	switch s {
	case KygInProgress:
		return "in_progress"
	case KygPassed:
		return "passed"
	case KygFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// CancellationPolicy is one refund milestone: the amount still owed back to
// the guest when cancellation happens before the expiry.
type CancellationPolicy struct {
	ExpireAt     int64    `json:"expireAt"`
	RefundAmount *big.Int `json:"refundAmount"`
}

// Clone returns a deep copy of the policy.
func (p CancellationPolicy) Clone() CancellationPolicy {
	clone := p
	if p.RefundAmount != nil {
		clone.RefundAmount = new(big.Int).Set(p.RefundAmount)
	} else {
		clone.RefundAmount = big.NewInt(0)
	}
	return clone
}

// InsuranceInfo carries the optional damage-protection terms attached to a
// booking, together with the runtime collection state.
type InsuranceInfo struct {
	DamageProtectionFee *big.Int  `json:"damageProtectionFee"`
	FeeReceiver         [20]byte  `json:"feeReceiver"`
	KygStatus           KygStatus `json:"kygStatus"`
	// PendingCollection is set when a payout deferred the charge because
	// check-in had not yet passed.
	PendingCollection bool `json:"pendingCollection"`
	// Collected is set once the fee has been paid to the receiver. Settled is
	// set once the fee question is closed either way (collected or refunded).
	Collected bool `json:"collected"`
	Settled   bool `json:"settled"`
}

// Clone returns a deep copy of the insurance info.
func (i *InsuranceInfo) Clone() *InsuranceInfo {
	if i == nil {
		return nil
	}
	clone := *i
	if i.DamageProtectionFee != nil {
		clone.DamageProtectionFee = new(big.Int).Set(i.DamageProtectionFee)
	} else {
		clone.DamageProtectionFee = big.NewInt(0)
	}
	return &clone
}

// Validate checks the fee/receiver pairing invariant.
func (i *InsuranceInfo) Validate() error {
	if i == nil {
		return nil
	}
	fee := i.DamageProtectionFee
	if fee == nil || fee.Sign() == 0 {
		if i.FeeReceiver != ([20]byte{}) {
			return fmt.Errorf("%w: zero fee with receiver", ErrInvalidInsurance)
		}
		return nil
	}
	if fee.Sign() < 0 {
		return fmt.Errorf("%w: negative fee", ErrInvalidInsurance)
	}
	if i.FeeReceiver == ([20]byte{}) {
		return fmt.Errorf("%w: fee without receiver", ErrInvalidInsurance)
	}
	return nil
}

// Booking captures one guest's funded reservation against a listing. Bookings
// are created exactly once and never deleted; terminal statuses freeze them
// forever while keeping them queryable.
type Booking struct {
	ID           string   `json:"id"`
	Guest        [20]byte `json:"guest"`
	PaymentToken [20]byte `json:"paymentToken"`
	// Amount is the original escrowed total; Balance is what remains and only
	// ever decreases.
	Amount      *big.Int             `json:"amount"`
	Balance     *big.Int             `json:"balance"`
	CheckInAt   int64                `json:"checkInAt"`
	CheckOutAt  int64                `json:"checkOutAt"`
	ExpireAt    int64                `json:"expireAt"`
	CreatedAt   int64                `json:"createdAt"`
	FeeBps      uint32               `json:"feeBps"`
	ReferralBps uint32               `json:"referralBps"`
	Referrer    [20]byte             `json:"referrer"`
	Policies    []CancellationPolicy `json:"policies"`
	Insurance   *InsuranceInfo       `json:"insurance,omitempty"`
	Status      BookingStatus        `json:"status"`
}

// Clone returns a deep copy of the booking.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Amount != nil {
		clone.Amount = new(big.Int).Set(b.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if b.Balance != nil {
		clone.Balance = new(big.Int).Set(b.Balance)
	} else {
		clone.Balance = big.NewInt(0)
	}
	if len(b.Policies) > 0 {
		clone.Policies = make([]CancellationPolicy, len(b.Policies))
		for i, p := range b.Policies {
			clone.Policies[i] = p.Clone()
		}
	}
	clone.Insurance = b.Insurance.Clone()
	return &clone
}

// ValidatePolicies enforces the milestone shape: non-empty, strictly
// ascending expiry, non-increasing refunds, first refund bounded by the
// booking amount.
func ValidatePolicies(policies []CancellationPolicy, amount *big.Int) error {
	if len(policies) == 0 {
		return ErrEmptyPolicy
	}
	for i, p := range policies {
		if p.RefundAmount == nil || p.RefundAmount.Sign() < 0 {
			return fmt.Errorf("%w: policy %d refund", ErrInvalidAmount, i)
		}
		if i == 0 {
			continue
		}
		prev := policies[i-1]
		if p.ExpireAt <= prev.ExpireAt {
			return fmt.Errorf("%w: expiry not ascending at %d", ErrInvalidPolicyOrder, i)
		}
		if p.RefundAmount.Cmp(prev.RefundAmount) > 0 {
			return fmt.Errorf("%w: refund increasing at %d", ErrInvalidPolicyOrder, i)
		}
	}
	if amount == nil || policies[0].RefundAmount.Cmp(amount) > 0 {
		return fmt.Errorf("%w: refund exceeds booking amount", ErrInvalidAmount)
	}
	return nil
}

// Property is the per-listing escrow instance: the identity that holds
// escrowed funds plus the host-side authorization state.
type Property struct {
	ListingID       string   `json:"listingId"`
	Address         [20]byte `json:"address"`
	Host            [20]byte `json:"host"`
	PaymentReceiver [20]byte `json:"paymentReceiver"`
	// Delegate is the delegation-proxy identity permitted to act as host
	// without per-address grants. Zero means no proxy is attached.
	Delegate   [20]byte   `json:"delegate"`
	Authorized [][20]byte `json:"authorized"`
}

// Clone returns a deep copy of the property.
func (p *Property) Clone() *Property {
	if p == nil {
		return nil
	}
	clone := *p
	if len(p.Authorized) > 0 {
		clone.Authorized = make([][20]byte, len(p.Authorized))
		copy(clone.Authorized, p.Authorized)
	}
	return &clone
}

// IsAuthorized reports whether the address holds a host-side grant.
func (p *Property) IsAuthorized(addr [20]byte) bool {
	if p == nil {
		return false
	}
	for _, a := range p.Authorized {
		if a == addr {
			return true
		}
	}
	return false
}

// Receiver returns the address host revenue should be paid to.
func (p *Property) Receiver() [20]byte {
	if p == nil {
		return [20]byte{}
	}
	if p.PaymentReceiver != ([20]byte{}) {
		return p.PaymentReceiver
	}
	return p.Host
}

// SanitizeProperty validates and normalises a property definition before
// persistence.
func SanitizeProperty(p *Property) (*Property, error) {
	if p == nil {
		return nil, fmt.Errorf("booking: nil property")
	}
	clone := p.Clone()
	clone.ListingID = strings.TrimSpace(clone.ListingID)
	if clone.ListingID == "" {
		return nil, fmt.Errorf("booking: listing id required")
	}
	if clone.Host == ([20]byte{}) {
		return nil, fmt.Errorf("%w: host", ErrZeroAddress)
	}
	if clone.Address == ([20]byte{}) {
		return nil, fmt.Errorf("%w: instance address", ErrZeroAddress)
	}
	return clone, nil
}
