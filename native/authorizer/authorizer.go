package authorizer

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tripvault/crypto"
)

var (
	// ErrInvalidSignature marks malformed signature payloads.
	ErrInvalidSignature = errors.New("authorizer: invalid signature")
	// ErrUnauthorizedSigner is returned when a well-formed signature recovers
	// to an identity other than the configured verifier key.
	ErrUnauthorizedSigner = errors.New("authorizer: unauthorized signer")
	// ErrZeroVerifier is returned when no verifier key is configured.
	ErrZeroVerifier = errors.New("authorizer: verifier not configured")
)

const signatureLength = 65

// Sign produces a 65-byte signature over the intent digest using the supplied
// authorizer key. The recovery byte is normalised to 27/28 so signatures are
// interchangeable with wallet tooling.
func Sign(domain Domain, intent BookingIntent, key *crypto.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("authorizer: nil signing key")
	}
	digest, err := Digest(domain, intent)
	if err != nil {
		return nil, err
	}
	sig, err := ethcrypto.Sign(digest[:], key.PrivateKey)
	if err != nil {
		return nil, err
	}
	if len(sig) != signatureLength {
		return nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidSignature, len(sig))
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// Verify checks that the signature attests exactly the supplied intent under
// the supplied domain and recovers to the verifier identity. Verification is
// pure: it has no side effects and never mutates its arguments.
func Verify(domain Domain, intent BookingIntent, signature []byte, verifier [20]byte) error {
	if verifier == ([20]byte{}) {
		return ErrZeroVerifier
	}
	if len(signature) != signatureLength {
		return fmt.Errorf("%w: length %d", ErrInvalidSignature, len(signature))
	}
	digest, err := Digest(domain, intent)
	if err != nil {
		return err
	}
	normalized := make([]byte, signatureLength)
	copy(normalized, signature)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, normalized[64])
	}
	pub, err := ethcrypto.SigToPub(digest[:], normalized)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)
	var addr [20]byte
	copy(addr[:], recovered.Bytes())
	if addr != verifier {
		return ErrUnauthorizedSigner
	}
	return nil
}
