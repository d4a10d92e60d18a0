package booking

import (
	"math/big"
)

// UpdateKygStatusByID resolves the know-your-guest outcome for a booking that
// carries insurance. Operator-only; a resolved outcome is final. Resolving
// while a deferred damage fee is pending settles the fee immediately: PASSED
// collects it to the receiver once check-in has occurred, FAILED returns it
// to the guest.
func (e *Engine) UpdateKygStatusByID(listingID string, caller [20]byte, bookingID string, status KygStatus) error {
	property, err := e.loadProperty(listingID)
	if err != nil {
		return err
	}
	operator, err := e.registryOperator()
	if err != nil {
		return err
	}
	if caller == ([20]byte{}) || caller != operator {
		return ErrUnauthorized
	}
	bkg, err := e.loadBooking(property.ListingID, bookingID)
	if err != nil {
		return err
	}
	if bkg.Insurance == nil {
		return ErrNoInsurance
	}
	if bkg.Status.Terminal() {
		return ErrBookingFinalized
	}
	if !status.Valid() || status == KygInProgress {
		return ErrInvalidKygStatus
	}
	if bkg.Insurance.KygStatus != KygInProgress {
		return ErrKygAlreadyResolved
	}
	bkg.Insurance.KygStatus = status

	var settled *big.Int
	settledTo := [20]byte{}
	if !bkg.Insurance.Settled {
		fee := cloneBigInt(bkg.Insurance.DamageProtectionFee)
		switch {
		case status == KygPassed && bkg.Insurance.PendingCollection && e.now() >= bkg.CheckInAt && bkg.Balance.Cmp(fee) >= 0:
			if err := e.state.TokenTransfer(bkg.PaymentToken, property.Address, bkg.Insurance.FeeReceiver, fee); err != nil {
				return err
			}
			bkg.Balance = new(big.Int).Sub(bkg.Balance, fee)
			bkg.Insurance.Collected = true
			bkg.Insurance.Settled = true
			bkg.Insurance.PendingCollection = false
			settled = fee
			settledTo = bkg.Insurance.FeeReceiver
		case status == KygFailed:
			// The fee was never earned. Return it to the guest, capped at
			// whatever is still held in escrow.
			refund := fee
			if bkg.Balance.Cmp(refund) < 0 {
				refund = cloneBigInt(bkg.Balance)
			}
			if refund.Sign() > 0 {
				if err := e.state.TokenTransfer(bkg.PaymentToken, property.Address, bkg.Guest, refund); err != nil {
					return err
				}
				bkg.Balance = new(big.Int).Sub(bkg.Balance, refund)
			}
			bkg.Insurance.Settled = true
			bkg.Insurance.PendingCollection = false
			settled = refund
			settledTo = bkg.Guest
		}
	}
	if bkg.Balance.Sign() == 0 && bkg.Status == BookingPartialPaid {
		bkg.Status = BookingFullyPaid
	}
	if err := e.state.BookingPut(property.ListingID, bkg); err != nil {
		return err
	}
	e.emit(NewKygUpdatedEvent(property.ListingID, bkg))
	if settled != nil {
		if bkg.Insurance.Collected {
			e.emit(NewInsuranceFeeCollectedEvent(property.ListingID, bkg, settled))
		} else {
			e.emit(NewInsuranceFeeRefundedEvent(property.ListingID, bkg, settled, settledTo))
		}
	}
	return nil
}

func (e *Engine) registryOperator() ([20]byte, error) {
	if e == nil || e.registry == nil {
		return [20]byte{}, ErrNilRegistry
	}
	return e.registry.Operator()
}

// GrantAuthorized lets the host extend host-side standing to another address.
func (e *Engine) GrantAuthorized(listingID string, caller, addr [20]byte) error {
	property, err := e.loadProperty(listingID)
	if err != nil {
		return err
	}
	if caller != property.Host {
		return ErrUnauthorized
	}
	if addr == ([20]byte{}) {
		return ErrZeroAddress
	}
	if property.IsAuthorized(addr) {
		return ErrAlreadyAuthorized
	}
	property.Authorized = append(property.Authorized, addr)
	if err := e.state.PropertyPut(property); err != nil {
		return err
	}
	e.emit(NewAuthorizedGrantedEvent(property.ListingID, addr))
	return nil
}

// RevokeAuthorized removes a previously granted address.
func (e *Engine) RevokeAuthorized(listingID string, caller, addr [20]byte) error {
	property, err := e.loadProperty(listingID)
	if err != nil {
		return err
	}
	if caller != property.Host {
		return ErrUnauthorized
	}
	if addr == ([20]byte{}) {
		return ErrZeroAddress
	}
	if !property.IsAuthorized(addr) {
		return ErrNotAuthorized
	}
	filtered := make([][20]byte, 0, len(property.Authorized))
	for _, a := range property.Authorized {
		if a != addr {
			filtered = append(filtered, a)
		}
	}
	property.Authorized = filtered
	if err := e.state.PropertyPut(property); err != nil {
		return err
	}
	e.emit(NewAuthorizedRevokedEvent(property.ListingID, addr))
	return nil
}

// UpdatePaymentReceiver redirects future host revenue. Callable by the host,
// the operator or an already-authorized address; the new receiver is granted
// host-side standing automatically.
func (e *Engine) UpdatePaymentReceiver(listingID string, caller, receiver [20]byte) error {
	property, err := e.loadProperty(listingID)
	if err != nil {
		return err
	}
	switch e.capabilityOf(property, caller) {
	case CapabilityHost, CapabilityOperator, CapabilityAuthorized, CapabilityDelegate:
	default:
		return ErrUnauthorized
	}
	if receiver == ([20]byte{}) {
		return ErrZeroAddress
	}
	if property.PaymentReceiver == receiver {
		return ErrSameReceiver
	}
	property.PaymentReceiver = receiver
	if !property.IsAuthorized(receiver) {
		property.Authorized = append(property.Authorized, receiver)
	}
	if err := e.state.PropertyPut(property); err != nil {
		return err
	}
	e.emit(NewPaymentReceiverUpdatedEvent(property.ListingID, receiver))
	return nil
}

// UpdateHost rotates the host identity. Callable by the host, the operator or
// the delegation proxy.
func (e *Engine) UpdateHost(listingID string, caller, newHost [20]byte) error {
	property, err := e.loadProperty(listingID)
	if err != nil {
		return err
	}
	switch e.capabilityOf(property, caller) {
	case CapabilityHost, CapabilityOperator, CapabilityDelegate:
	default:
		return ErrUnauthorized
	}
	if newHost == ([20]byte{}) {
		return ErrZeroAddress
	}
	if property.Host == newHost {
		return ErrSameHost
	}
	property.Host = newHost
	if err := e.state.PropertyPut(property); err != nil {
		return err
	}
	e.emit(NewHostUpdatedEvent(property.ListingID, newHost))
	return nil
}
