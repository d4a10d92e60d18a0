package platform

import (
	"encoding/hex"
	"strconv"

	"tripvault/core/types"
)

const (
	EventTypeFeeUpdated          = "platform.fee_updated"
	EventTypeReferralFeeUpdated  = "platform.referral_fee_updated"
	EventTypePayoutDelayUpdated  = "platform.payout_delay_updated"
	EventTypeOperatorUpdated     = "platform.operator_updated"
	EventTypeTreasuryUpdated     = "platform.treasury_updated"
	EventTypeVerifierUpdated     = "platform.verifier_updated"
	EventTypePaymentTokenAdded   = "platform.payment_token_added"
	EventTypePaymentTokenRemoved = "platform.payment_token_removed"
)

func newRatioEvent(eventType string, bps uint32) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"bps":         strconv.FormatUint(uint64(bps), 10),
		"denominator": strconv.Itoa(FeeDenominator),
	}}
}

func newDelayEvent(delay int64) *types.Event {
	return &types.Event{Type: EventTypePayoutDelayUpdated, Attributes: map[string]string{
		"seconds": strconv.FormatInt(delay, 10),
	}}
}

func newIdentityEvent(eventType string, identity [20]byte) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"address": hex.EncodeToString(identity[:]),
	}}
}
