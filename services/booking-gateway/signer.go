package main

import (
	"encoding/hex"
	"fmt"

	"tripvault/crypto"
	"tripvault/native/authorizer"
)

// IntentSigner holds the platform verifier key and produces booking
// authorization signatures over typed intent digests.
type IntentSigner struct {
	key     *crypto.PrivateKey
	address [20]byte
}

func NewIntentSigner(keystorePath, passphrase string) (*IntentSigner, error) {
	key, err := crypto.LoadFromKeystore(keystorePath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("load signer keystore: %w", err)
	}
	return &IntentSigner{key: key, address: key.PubKey().AddressBytes()}, nil
}

// Address returns the verifier identity the ledger must be configured with.
func (s *IntentSigner) Address() [20]byte {
	return s.address
}

// Sign produces a hex-encoded 65-byte signature for the intent under the
// given domain.
func (s *IntentSigner) Sign(domain authorizer.Domain, intent authorizer.BookingIntent) (string, error) {
	sig, err := authorizer.Sign(domain, intent, s.key)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(sig), nil
}
