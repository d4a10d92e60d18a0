package booking

import (
	"math/big"
)

// PayoutResult reports the amounts moved by a single payout call.
type PayoutResult struct {
	BookingID   string
	HostRevenue *big.Int
	Fee         *big.Int
	ReferralFee *big.Int
	DamageFee   *big.Int
	Status      BookingStatus
}

// CancelResult reports the amounts moved by a guest cancellation.
type CancelResult struct {
	BookingID   string
	GuestRefund *big.Int
	HostRevenue *big.Int
	Fee         *big.Int
	ReferralFee *big.Int
	Status      BookingStatus
}

// Payout releases the increment of escrowed funds unlocked by elapsed policy
// milestones. Anyone may call it: funds only ever move to the host's payment
// receiver, the treasury, the referrer and the insurance fee receiver. The
// split uses the ratios snapshotted at booking time.
func (e *Engine) Payout(listingID, bookingID string) (*PayoutResult, error) {
	property, err := e.loadProperty(listingID)
	if err != nil {
		return nil, err
	}
	bkg, err := e.loadBooking(property.ListingID, bookingID)
	if err != nil {
		return nil, err
	}
	if bkg.Status.Terminal() {
		return nil, ErrBookingFinalized
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	now := e.now()

	// refundFloor is the smallest refund still owed to the guest across all
	// milestones whose grace delay has elapsed. Everything above the floor is
	// releasable. Nothing is owed once the final milestone's delay has passed:
	// the floor drops to zero even when the last policy names a non-zero
	// refund.
	var refundFloor *big.Int
	for _, policy := range bkg.Policies {
		if policy.ExpireAt+cfg.PayoutDelay > now {
			continue
		}
		if refundFloor == nil || policy.RefundAmount.Cmp(refundFloor) < 0 {
			refundFloor = policy.RefundAmount
		}
	}
	if refundFloor == nil {
		return nil, ErrNothingPayable
	}
	if last := bkg.Policies[len(bkg.Policies)-1]; last.ExpireAt+cfg.PayoutDelay <= now {
		refundFloor = big.NewInt(0)
	}

	// Damage-protection handling: collect only once KYG passed and check-in
	// has occurred. Until the charge is resolvable the fee stays reserved in
	// escrow, so a later resolution can still collect or refund it.
	damageFee := big.NewInt(0)
	feeReserve := big.NewInt(0)
	collectDamage := false
	insurance := bkg.Insurance
	if insurance != nil && !insurance.Settled {
		switch insurance.KygStatus {
		case KygPassed:
			if now >= bkg.CheckInAt {
				collectDamage = true
				damageFee = cloneBigInt(insurance.DamageProtectionFee)
			} else {
				insurance.PendingCollection = true
				feeReserve = cloneBigInt(insurance.DamageProtectionFee)
			}
		case KygInProgress:
			// Outcome unknown: defer the charge until KYG resolves.
			insurance.PendingCollection = true
			feeReserve = cloneBigInt(insurance.DamageProtectionFee)
		}
	}

	increment := new(big.Int).Sub(bkg.Balance, refundFloor)
	if collectDamage {
		if increment.Cmp(damageFee) < 0 {
			// The slice above the floor cannot cover the fee yet. The fee has
			// priority over the host release, so nothing moves until further
			// milestones elapse.
			return nil, ErrInsufficientBalance
		}
		increment.Sub(increment, damageFee)
	} else {
		increment.Sub(increment, feeReserve)
	}
	if increment.Sign() < 0 || (increment.Sign() == 0 && !collectDamage) {
		return nil, ErrInsufficientBalance
	}

	referralFee := big.NewInt(0)
	if bkg.Referrer != ([20]byte{}) {
		referralFee = bpsShare(increment, bkg.ReferralBps)
	}
	fee := new(big.Int).Sub(bpsShare(increment, bkg.FeeBps), referralFee)
	hostRevenue := new(big.Int).Sub(increment, fee)
	hostRevenue.Sub(hostRevenue, referralFee)
	if hostRevenue.Sign() < 0 {
		return nil, ErrInsufficientBalance
	}

	if hostRevenue.Sign() > 0 {
		if err := e.state.TokenTransfer(bkg.PaymentToken, property.Address, property.Receiver(), hostRevenue); err != nil {
			return nil, err
		}
	}
	if fee.Sign() > 0 {
		if err := e.state.TokenTransfer(bkg.PaymentToken, property.Address, cfg.Treasury, fee); err != nil {
			return nil, err
		}
	}
	if referralFee.Sign() > 0 {
		if err := e.state.TokenTransfer(bkg.PaymentToken, property.Address, bkg.Referrer, referralFee); err != nil {
			return nil, err
		}
	}
	if collectDamage {
		if err := e.state.TokenTransfer(bkg.PaymentToken, property.Address, insurance.FeeReceiver, damageFee); err != nil {
			return nil, err
		}
		insurance.PendingCollection = false
		insurance.Collected = true
		insurance.Settled = true
	}

	bkg.Balance = new(big.Int).Sub(bkg.Balance, increment)
	if collectDamage {
		bkg.Balance.Sub(bkg.Balance, damageFee)
	}
	if bkg.Balance.Sign() == 0 {
		bkg.Status = BookingFullyPaid
	} else {
		bkg.Status = BookingPartialPaid
	}
	if err := e.state.BookingPut(property.ListingID, bkg); err != nil {
		return nil, err
	}

	result := &PayoutResult{
		BookingID:   bkg.ID,
		HostRevenue: hostRevenue,
		Fee:         fee,
		ReferralFee: referralFee,
		DamageFee:   damageFee,
		Status:      bkg.Status,
	}
	e.emit(NewPayoutEvent(property.ListingID, bkg, result))
	if collectDamage {
		e.emit(NewInsuranceFeeCollectedEvent(property.ListingID, bkg, damageFee))
	}
	return result, nil
}

// Cancel terminates the booking on the guest's initiative. The guest receives
// the refund of the richest still-unexpired policy; the remainder is split
// between host, treasury and referrer using the snapshotted ratios.
func (e *Engine) Cancel(listingID string, caller [20]byte, bookingID string) (*CancelResult, error) {
	property, err := e.loadProperty(listingID)
	if err != nil {
		return nil, err
	}
	bkg, err := e.loadBooking(property.ListingID, bookingID)
	if err != nil {
		return nil, err
	}
	if bkg.Status.Terminal() {
		return nil, ErrBookingFinalized
	}
	if caller != bkg.Guest {
		return nil, ErrUnauthorized
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	now := e.now()

	refund := big.NewInt(0)
	for _, policy := range bkg.Policies {
		if policy.ExpireAt >= now {
			refund = cloneBigInt(policy.RefundAmount)
			break
		}
	}
	// An uncollected damage-protection fee was never earned; it returns to
	// the guest alongside the policy refund.
	insurance := bkg.Insurance
	if insurance != nil && !insurance.Settled {
		refund.Add(refund, insurance.DamageProtectionFee)
		insurance.PendingCollection = false
		insurance.Settled = true
	}
	if refund.Cmp(bkg.Balance) > 0 {
		refund = cloneBigInt(bkg.Balance)
	}

	remainder := new(big.Int).Sub(bkg.Balance, refund)
	referralFee := big.NewInt(0)
	if bkg.Referrer != ([20]byte{}) {
		referralFee = bpsShare(remainder, bkg.ReferralBps)
	}
	fee := new(big.Int).Sub(bpsShare(remainder, bkg.FeeBps), referralFee)
	hostRevenue := new(big.Int).Sub(remainder, fee)
	hostRevenue.Sub(hostRevenue, referralFee)

	if refund.Sign() > 0 {
		if err := e.state.TokenTransfer(bkg.PaymentToken, property.Address, bkg.Guest, refund); err != nil {
			return nil, err
		}
	}
	if hostRevenue.Sign() > 0 {
		if err := e.state.TokenTransfer(bkg.PaymentToken, property.Address, property.Receiver(), hostRevenue); err != nil {
			return nil, err
		}
	}
	if fee.Sign() > 0 {
		if err := e.state.TokenTransfer(bkg.PaymentToken, property.Address, cfg.Treasury, fee); err != nil {
			return nil, err
		}
	}
	if referralFee.Sign() > 0 {
		if err := e.state.TokenTransfer(bkg.PaymentToken, property.Address, bkg.Referrer, referralFee); err != nil {
			return nil, err
		}
	}

	bkg.Balance = big.NewInt(0)
	bkg.Status = BookingGuestCancelled
	if err := e.state.BookingPut(property.ListingID, bkg); err != nil {
		return nil, err
	}

	result := &CancelResult{
		BookingID:   bkg.ID,
		GuestRefund: refund,
		HostRevenue: hostRevenue,
		Fee:         fee,
		ReferralFee: referralFee,
		Status:      bkg.Status,
	}
	e.emit(NewGuestCancelledEvent(property.ListingID, bkg, result))
	return result, nil
}

// CancelByHost terminates the booking on the host side and returns the whole
// remaining balance to the guest with no fee taken. Callable by the host, any
// authorized address or the delegation proxy.
func (e *Engine) CancelByHost(listingID string, caller [20]byte, bookingID string) (*big.Int, error) {
	property, err := e.loadProperty(listingID)
	if err != nil {
		return nil, err
	}
	bkg, err := e.loadBooking(property.ListingID, bookingID)
	if err != nil {
		return nil, err
	}
	if bkg.Status.Terminal() {
		return nil, ErrBookingFinalized
	}
	switch e.capabilityOf(property, caller) {
	case CapabilityHost, CapabilityAuthorized, CapabilityDelegate:
	default:
		return nil, ErrUnauthorized
	}

	refund := cloneBigInt(bkg.Balance)
	if refund.Sign() > 0 {
		if err := e.state.TokenTransfer(bkg.PaymentToken, property.Address, bkg.Guest, refund); err != nil {
			return nil, err
		}
	}
	if bkg.Insurance != nil && !bkg.Insurance.Settled {
		bkg.Insurance.PendingCollection = false
		bkg.Insurance.Settled = true
	}
	bkg.Balance = big.NewInt(0)
	bkg.Status = BookingHostCancelled
	if err := e.state.BookingPut(property.ListingID, bkg); err != nil {
		return nil, err
	}
	e.emit(NewHostCancelledEvent(property.ListingID, bkg, refund))
	return refund, nil
}
