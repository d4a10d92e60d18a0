package platform

import (
	"fmt"
)

// FeeDenominator is the fixed basis-point denominator shared by every fee
// ratio in the system.
const FeeDenominator = 10_000

// Config captures the platform-wide settings consulted by escrow instances.
// Fee ratios are read once at booking-creation time and snapshotted onto the
// booking; every other field is read live.
type Config struct {
	FeeBps         uint32     `json:"feeBps"`
	ReferralFeeBps uint32     `json:"referralFeeBps"`
	PayoutDelay    int64      `json:"payoutDelay"`
	Operator       [20]byte   `json:"operator"`
	Treasury       [20]byte   `json:"treasury"`
	Verifier       [20]byte   `json:"verifier"`
	PaymentTokens  [][20]byte `json:"paymentTokens"`
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	clone := *c
	if len(c.PaymentTokens) > 0 {
		clone.PaymentTokens = make([][20]byte, len(c.PaymentTokens))
		copy(clone.PaymentTokens, c.PaymentTokens)
	}
	return &clone
}

// Validate checks the cross-field invariants that must hold for every stored
// config.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("platform: nil config")
	}
	if c.FeeBps > FeeDenominator {
		return fmt.Errorf("%w: %d", ErrRatioOutOfRange, c.FeeBps)
	}
	if c.ReferralFeeBps > c.FeeBps {
		return fmt.Errorf("%w: %d > %d", ErrReferralExceedsFee, c.ReferralFeeBps, c.FeeBps)
	}
	if c.PayoutDelay < 0 {
		return ErrInvalidDelay
	}
	return nil
}

// SupportsToken reports whether the token is currently allow-listed.
func (c *Config) SupportsToken(token [20]byte) bool {
	if c == nil {
		return false
	}
	for _, t := range c.PaymentTokens {
		if t == token {
			return true
		}
	}
	return false
}
