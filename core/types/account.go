package types

import (
	"encoding/hex"
	"math/big"
	"strings"
)

// Account tracks per-identity token balances. Balances are keyed by the
// lowercase hex encoding of the payment token identity so that arbitrary
// allow-listed tokens can be held without schema changes.
type Account struct {
	Nonce    uint64              `json:"nonce"`
	Balances map[string]*big.Int `json:"balances"`
}

// TokenKey renders a token identity into the canonical balance-map key.
func TokenKey(token [20]byte) string {
	return strings.ToLower(hex.EncodeToString(token[:]))
}

// BalanceOf returns the account's balance for the supplied token, never nil.
func (a *Account) BalanceOf(token [20]byte) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	bal, ok := a.Balances[TokenKey(token)]
	if !ok || bal == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(bal)
}

// SetBalance stores the supplied balance for the token, initialising the
// balance map when required.
func (a *Account) SetBalance(token [20]byte, amount *big.Int) {
	if a == nil {
		return
	}
	if a.Balances == nil {
		a.Balances = make(map[string]*big.Int)
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	a.Balances[TokenKey(token)] = new(big.Int).Set(amount)
}

// Clone returns a deep copy of the account so callers can safely mutate the
// copy without affecting stored state.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balances: make(map[string]*big.Int)}
	}
	clone := &Account{Nonce: a.Nonce, Balances: make(map[string]*big.Int, len(a.Balances))}
	for key, bal := range a.Balances {
		if bal == nil {
			bal = big.NewInt(0)
		}
		clone.Balances[key] = new(big.Int).Set(bal)
	}
	return clone
}
