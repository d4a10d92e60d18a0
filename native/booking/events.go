package booking

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"tripvault/core/types"
)

const (
	EventTypeBookingCreated         = "booking.created"
	EventTypePayout                 = "booking.payout"
	EventTypeGuestCancelled         = "booking.guest_cancelled"
	EventTypeHostCancelled          = "booking.host_cancelled"
	EventTypeInsuranceFeeCollected  = "booking.insurance_fee_collected"
	EventTypeInsuranceFeeRefunded   = "booking.insurance_fee_refunded"
	EventTypeKygUpdated             = "booking.kyg_updated"
	EventTypeAuthorizedGranted      = "booking.authorized_granted"
	EventTypeAuthorizedRevoked      = "booking.authorized_revoked"
	EventTypePaymentReceiverUpdated = "booking.payment_receiver_updated"
	EventTypeHostUpdated            = "booking.host_updated"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func baseAttributes(listingID string, bkg *Booking) map[string]string {
	attrs := map[string]string{"listingId": listingID}
	if bkg == nil {
		return attrs
	}
	attrs["bookingId"] = bkg.ID
	attrs["status"] = bkg.Status.String()
	return attrs
}

// NewCreatedEvent returns the canonical payload for a freshly funded booking.
func NewCreatedEvent(listingID string, bkg *Booking) *types.Event {
	attrs := baseAttributes(listingID, bkg)
	if bkg != nil {
		attrs["guest"] = hex.EncodeToString(bkg.Guest[:])
		attrs["paymentToken"] = hex.EncodeToString(bkg.PaymentToken[:])
		attrs["amount"] = amountString(bkg.Amount)
		attrs["feeBps"] = strconv.FormatUint(uint64(bkg.FeeBps), 10)
		attrs["referralBps"] = strconv.FormatUint(uint64(bkg.ReferralBps), 10)
		attrs["checkInAt"] = strconv.FormatInt(bkg.CheckInAt, 10)
		attrs["checkOutAt"] = strconv.FormatInt(bkg.CheckOutAt, 10)
		if bkg.Referrer != ([20]byte{}) {
			attrs["referrer"] = hex.EncodeToString(bkg.Referrer[:])
		}
		if bkg.Insurance != nil {
			attrs["damageProtectionFee"] = amountString(bkg.Insurance.DamageProtectionFee)
		}
	}
	return &types.Event{Type: EventTypeBookingCreated, Attributes: attrs}
}

// NewPayoutEvent returns the payload emitted for every executed payout.
func NewPayoutEvent(listingID string, bkg *Booking, result *PayoutResult) *types.Event {
	attrs := baseAttributes(listingID, bkg)
	if result != nil {
		attrs["hostRevenue"] = amountString(result.HostRevenue)
		attrs["fee"] = amountString(result.Fee)
		attrs["referralFee"] = amountString(result.ReferralFee)
	}
	if bkg != nil {
		attrs["balance"] = amountString(bkg.Balance)
	}
	return &types.Event{Type: EventTypePayout, Attributes: attrs}
}

// NewGuestCancelledEvent returns the payload for a guest cancellation.
func NewGuestCancelledEvent(listingID string, bkg *Booking, result *CancelResult) *types.Event {
	attrs := baseAttributes(listingID, bkg)
	if result != nil {
		attrs["guestRefund"] = amountString(result.GuestRefund)
		attrs["hostRevenue"] = amountString(result.HostRevenue)
		attrs["fee"] = amountString(result.Fee)
		attrs["referralFee"] = amountString(result.ReferralFee)
	}
	return &types.Event{Type: EventTypeGuestCancelled, Attributes: attrs}
}

// NewHostCancelledEvent returns the payload for a host-side cancellation.
func NewHostCancelledEvent(listingID string, bkg *Booking, refund *big.Int) *types.Event {
	attrs := baseAttributes(listingID, bkg)
	attrs["guestRefund"] = amountString(refund)
	return &types.Event{Type: EventTypeHostCancelled, Attributes: attrs}
}

// NewInsuranceFeeCollectedEvent reports a damage-protection fee paid out to
// its receiver.
func NewInsuranceFeeCollectedEvent(listingID string, bkg *Booking, fee *big.Int) *types.Event {
	attrs := baseAttributes(listingID, bkg)
	attrs["damageProtectionFee"] = amountString(fee)
	if bkg != nil && bkg.Insurance != nil {
		attrs["feeReceiver"] = hex.EncodeToString(bkg.Insurance.FeeReceiver[:])
	}
	return &types.Event{Type: EventTypeInsuranceFeeCollected, Attributes: attrs}
}

// NewInsuranceFeeRefundedEvent reports a damage-protection fee returned to
// the guest after a failed KYG outcome.
func NewInsuranceFeeRefundedEvent(listingID string, bkg *Booking, fee *big.Int, to [20]byte) *types.Event {
	attrs := baseAttributes(listingID, bkg)
	attrs["damageProtectionFee"] = amountString(fee)
	attrs["refundedTo"] = hex.EncodeToString(to[:])
	return &types.Event{Type: EventTypeInsuranceFeeRefunded, Attributes: attrs}
}

// NewKygUpdatedEvent reports a resolved know-your-guest outcome.
func NewKygUpdatedEvent(listingID string, bkg *Booking) *types.Event {
	attrs := baseAttributes(listingID, bkg)
	if bkg != nil && bkg.Insurance != nil {
		attrs["kygStatus"] = bkg.Insurance.KygStatus.String()
	}
	return &types.Event{Type: EventTypeKygUpdated, Attributes: attrs}
}

func newListingAddressEvent(eventType, listingID string, addr [20]byte) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"listingId": listingID,
		"address":   hex.EncodeToString(addr[:]),
	}}
}

// NewAuthorizedGrantedEvent reports a host-side authorization grant.
func NewAuthorizedGrantedEvent(listingID string, addr [20]byte) *types.Event {
	return newListingAddressEvent(EventTypeAuthorizedGranted, listingID, addr)
}

// NewAuthorizedRevokedEvent reports a host-side authorization revocation.
func NewAuthorizedRevokedEvent(listingID string, addr [20]byte) *types.Event {
	return newListingAddressEvent(EventTypeAuthorizedRevoked, listingID, addr)
}

// NewPaymentReceiverUpdatedEvent reports a host revenue redirection.
func NewPaymentReceiverUpdatedEvent(listingID string, receiver [20]byte) *types.Event {
	return newListingAddressEvent(EventTypePaymentReceiverUpdated, listingID, receiver)
}

// NewHostUpdatedEvent reports a host rotation.
func NewHostUpdatedEvent(listingID string, host [20]byte) *types.Event {
	return newListingAddressEvent(EventTypeHostUpdated, listingID, host)
}
