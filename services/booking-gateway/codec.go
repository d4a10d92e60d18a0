package main

import (
	"fmt"
	"math/big"
	"strings"

	"tripvault/crypto"
	"tripvault/native/authorizer"
	"tripvault/native/booking"
	"tripvault/native/platform"
)

type policyJSON struct {
	ExpireAt     int64  `json:"expireAt"`
	RefundAmount string `json:"refundAmount"`
}

type insuranceJSON struct {
	DamageProtectionFee string `json:"damageProtectionFee"`
	FeeReceiver         string `json:"feeReceiver,omitempty"`
}

type intentJSON struct {
	ListingID     string        `json:"listingId"`
	BookingID     string        `json:"bookingId"`
	Guest         string        `json:"guest"`
	PaymentToken  string        `json:"paymentToken"`
	BookingAmount string        `json:"bookingAmount"`
	CheckInAt     int64         `json:"checkInAt"`
	CheckOutAt    int64         `json:"checkOutAt"`
	ExpireAt      int64         `json:"expireAt"`
	Referrer      string        `json:"referrer,omitempty"`
	Policies      []policyJSON   `json:"policies"`
	Insurance     *insuranceJSON `json:"insurance,omitempty"`
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, nil
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func requireAddress(field, value string) ([20]byte, error) {
	addr, err := parseAddress(value)
	if err != nil {
		return addr, fmt.Errorf("%s: %w", field, err)
	}
	if addr == ([20]byte{}) {
		return addr, fmt.Errorf("%s is required", field)
	}
	return addr, nil
}

func renderAddress(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.NewAddress(crypto.TVPrefix, addr[:]).String()
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, value)
	}
	return amount, nil
}

func (p intentJSON) toIntent() (authorizer.BookingIntent, error) {
	var intent authorizer.BookingIntent
	guest, err := requireAddress("guest", p.Guest)
	if err != nil {
		return intent, err
	}
	token, err := requireAddress("paymentToken", p.PaymentToken)
	if err != nil {
		return intent, err
	}
	referrer, err := parseAddress(p.Referrer)
	if err != nil {
		return intent, fmt.Errorf("referrer: %w", err)
	}
	amount, err := parseAmount("bookingAmount", p.BookingAmount)
	if err != nil {
		return intent, err
	}
	policies := make([]authorizer.PolicyTerm, len(p.Policies))
	for i, policy := range p.Policies {
		refund, err := parseAmount("policies.refundAmount", policy.RefundAmount)
		if err != nil {
			return intent, err
		}
		policies[i] = authorizer.PolicyTerm{ExpireAt: policy.ExpireAt, RefundAmount: refund}
	}
	var insurance *authorizer.InsuranceTerms
	if p.Insurance != nil {
		fee, err := parseAmount("insurance.damageProtectionFee", p.Insurance.DamageProtectionFee)
		if err != nil {
			return intent, err
		}
		receiver, err := parseAddress(p.Insurance.FeeReceiver)
		if err != nil {
			return intent, fmt.Errorf("insurance.feeReceiver: %w", err)
		}
		insurance = &authorizer.InsuranceTerms{DamageProtectionFee: fee, FeeReceiver: receiver}
	}
	intent = authorizer.BookingIntent{
		BookingID:     strings.TrimSpace(p.BookingID),
		Guest:         guest,
		PaymentToken:  token,
		BookingAmount: amount,
		CheckInAt:     p.CheckInAt,
		CheckOutAt:    p.CheckOutAt,
		ExpireAt:      p.ExpireAt,
		Referrer:      referrer,
		Policies:      policies,
		Insurance:     insurance,
	}
	return intent, nil
}

type bookingJSON struct {
	ListingID   string         `json:"listingId"`
	BookingID   string         `json:"bookingId"`
	Guest       string         `json:"guest"`
	Token       string         `json:"paymentToken"`
	Amount      string         `json:"amount"`
	Balance     string         `json:"balance"`
	CheckInAt   int64          `json:"checkInAt"`
	CheckOutAt  int64          `json:"checkOutAt"`
	Status      string         `json:"status"`
	FeeBps      uint32         `json:"feeBps"`
	ReferralBps uint32         `json:"referralBps"`
	Referrer    string         `json:"referrer,omitempty"`
	Policies    []policyJSON   `json:"policies"`
	Insurance   *insuranceJSON `json:"insurance,omitempty"`
	KygStatus   string         `json:"kygStatus,omitempty"`
}

func renderBooking(listingID string, bkg *booking.Booking) bookingJSON {
	out := bookingJSON{
		ListingID:   listingID,
		BookingID:   bkg.ID,
		Guest:       renderAddress(bkg.Guest),
		Token:       renderAddress(bkg.PaymentToken),
		Amount:      bkg.Amount.String(),
		Balance:     bkg.Balance.String(),
		CheckInAt:   bkg.CheckInAt,
		CheckOutAt:  bkg.CheckOutAt,
		Status:      bkg.Status.String(),
		FeeBps:      bkg.FeeBps,
		ReferralBps: bkg.ReferralBps,
		Referrer:    renderAddress(bkg.Referrer),
	}
	for _, policy := range bkg.Policies {
		out.Policies = append(out.Policies, policyJSON{
			ExpireAt:     policy.ExpireAt,
			RefundAmount: policy.RefundAmount.String(),
		})
	}
	if bkg.Insurance != nil {
		out.Insurance = &insuranceJSON{
			DamageProtectionFee: bkg.Insurance.DamageProtectionFee.String(),
			FeeReceiver:         renderAddress(bkg.Insurance.FeeReceiver),
		}
		out.KygStatus = bkg.Insurance.KygStatus.String()
	}
	return out
}

type propertyJSON struct {
	ListingID       string   `json:"listingId"`
	Address         string   `json:"address"`
	Host            string   `json:"host"`
	PaymentReceiver string   `json:"paymentReceiver"`
	Delegate        string   `json:"delegate,omitempty"`
	Authorized      []string `json:"authorized,omitempty"`
}

func renderProperty(p *booking.Property) propertyJSON {
	out := propertyJSON{
		ListingID:       p.ListingID,
		Address:         renderAddress(p.Address),
		Host:            renderAddress(p.Host),
		PaymentReceiver: renderAddress(p.PaymentReceiver),
		Delegate:        renderAddress(p.Delegate),
	}
	for _, addr := range p.Authorized {
		out.Authorized = append(out.Authorized, renderAddress(addr))
	}
	return out
}

type platformConfigJSON struct {
	FeeBps         uint32   `json:"feeBps"`
	ReferralFeeBps uint32   `json:"referralFeeBps"`
	PayoutDelay    int64    `json:"payoutDelay"`
	Operator       string   `json:"operator"`
	Treasury       string   `json:"treasury"`
	Verifier       string   `json:"verifier"`
	PaymentTokens  []string `json:"paymentTokens,omitempty"`
}

func renderPlatformConfig(cfg *platform.Config) platformConfigJSON {
	out := platformConfigJSON{
		FeeBps:         cfg.FeeBps,
		ReferralFeeBps: cfg.ReferralFeeBps,
		PayoutDelay:    cfg.PayoutDelay,
		Operator:       renderAddress(cfg.Operator),
		Treasury:       renderAddress(cfg.Treasury),
		Verifier:       renderAddress(cfg.Verifier),
	}
	for _, token := range cfg.PaymentTokens {
		out.PaymentTokens = append(out.PaymentTokens, renderAddress(token))
	}
	return out
}
