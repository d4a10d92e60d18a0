package booking

import (
	"errors"
	"math/big"
	"testing"
)

func TestValidatePolicies(t *testing.T) {
	amount := big.NewInt(1_000)
	cases := []struct {
		name     string
		policies []CancellationPolicy
		wantErr  error
	}{
		{
			name:    "empty",
			wantErr: ErrEmptyPolicy,
		},
		{
			name: "single milestone",
			policies: []CancellationPolicy{
				{ExpireAt: 100, RefundAmount: big.NewInt(500)},
			},
		},
		{
			name: "descending refunds",
			policies: []CancellationPolicy{
				{ExpireAt: 100, RefundAmount: big.NewInt(800)},
				{ExpireAt: 200, RefundAmount: big.NewInt(800)},
				{ExpireAt: 300, RefundAmount: big.NewInt(0)},
			},
		},
		{
			name: "expiry not ascending",
			policies: []CancellationPolicy{
				{ExpireAt: 200, RefundAmount: big.NewInt(800)},
				{ExpireAt: 200, RefundAmount: big.NewInt(500)},
			},
			wantErr: ErrInvalidPolicyOrder,
		},
		{
			name: "refund increasing",
			policies: []CancellationPolicy{
				{ExpireAt: 100, RefundAmount: big.NewInt(300)},
				{ExpireAt: 200, RefundAmount: big.NewInt(500)},
			},
			wantErr: ErrInvalidPolicyOrder,
		},
		{
			name: "negative refund",
			policies: []CancellationPolicy{
				{ExpireAt: 100, RefundAmount: big.NewInt(-1)},
			},
			wantErr: ErrInvalidAmount,
		},
		{
			name: "first refund exceeds amount",
			policies: []CancellationPolicy{
				{ExpireAt: 100, RefundAmount: big.NewInt(1_001)},
			},
			wantErr: ErrInvalidAmount,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePolicies(tc.policies, amount)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestReceiverFallsBackToHost(t *testing.T) {
	host := newTestAddress(0x01)
	property := &Property{ListingID: "lst", Address: newTestAddress(0x02), Host: host}
	if property.Receiver() != host {
		t.Fatalf("expected fallback to host")
	}
	receiver := newTestAddress(0x03)
	property.PaymentReceiver = receiver
	if property.Receiver() != receiver {
		t.Fatalf("expected explicit receiver")
	}
}

func TestBookingStatusTerminal(t *testing.T) {
	terminal := []BookingStatus{BookingFullyPaid, BookingGuestCancelled, BookingHostCancelled}
	for _, status := range terminal {
		if !status.Terminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
	open := []BookingStatus{BookingInProgress, BookingPartialPaid}
	for _, status := range open {
		if status.Terminal() {
			t.Fatalf("%s should not be terminal", status)
		}
	}
}

func TestInsuranceValidate(t *testing.T) {
	receiver := newTestAddress(0x09)
	valid := &InsuranceInfo{DamageProtectionFee: big.NewInt(100), FeeReceiver: receiver}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	missing := &InsuranceInfo{DamageProtectionFee: big.NewInt(100)}
	if err := missing.Validate(); !errors.Is(err, ErrInvalidInsurance) {
		t.Fatalf("expected invalid insurance, got %v", err)
	}
	orphan := &InsuranceInfo{FeeReceiver: receiver}
	if err := orphan.Validate(); !errors.Is(err, ErrInvalidInsurance) {
		t.Fatalf("expected invalid insurance for receiver without fee, got %v", err)
	}
}
