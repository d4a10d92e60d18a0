package authorizer

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Domain binds a signed booking intent to a single verifying escrow instance.
// Two identical intents signed under different domains produce different
// digests, so a signature minted for one listing can never be replayed
// against another.
type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract [20]byte
}

var (
	domainTypeHash = ethcrypto.Keccak256([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	policyTypeHash = ethcrypto.Keccak256([]byte(
		"PolicyTerm(uint256 expireAt,uint256 refundAmount)"))
	insuranceTypeHash = ethcrypto.Keccak256([]byte(
		"InsuranceTerms(uint256 damageProtectionFee,address feeReceiver)"))
	intentTypeHash = ethcrypto.Keccak256([]byte(
		"BookingIntent(string bookingId,address guest,address paymentToken,uint256 bookingAmount," +
			"uint256 checkInAt,uint256 checkOutAt,uint256 expireAt,address referrer," +
			"PolicyTerm[] policies,InsuranceTerms insurance)" +
			"InsuranceTerms(uint256 damageProtectionFee,address feeReceiver)" +
			"PolicyTerm(uint256 expireAt,uint256 refundAmount)"))
)

// Separator computes the domain separator hash.
func (d Domain) Separator() ([32]byte, error) {
	var out [32]byte
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return out, fmt.Errorf("authorizer: domain name required")
	}
	version := strings.TrimSpace(d.Version)
	if version == "" {
		return out, fmt.Errorf("authorizer: domain version required")
	}
	digest := ethcrypto.Keccak256(
		domainTypeHash,
		ethcrypto.Keccak256([]byte(name)),
		ethcrypto.Keccak256([]byte(version)),
		uintWord(new(big.Int).SetUint64(d.ChainID)),
		addressWord(d.VerifyingContract),
	)
	copy(out[:], digest)
	return out, nil
}

// PolicyTerm is one cancellation milestone of the signed intent: the refund
// still owed to the guest if the booking is cancelled before the expiry.
type PolicyTerm struct {
	ExpireAt     int64
	RefundAmount *big.Int
}

// InsuranceTerms carries the optional damage-protection charge approved by
// the backend. A zero fee must be paired with a zero receiver.
type InsuranceTerms struct {
	DamageProtectionFee *big.Int
	FeeReceiver         [20]byte
}

// BookingIntent mirrors every field the escrow engine consumes when creating
// a booking. The digest covers all of them, nested entries included, so
// tampering with any single field invalidates the signature.
type BookingIntent struct {
	BookingID     string
	Guest         [20]byte
	PaymentToken  [20]byte
	BookingAmount *big.Int
	CheckInAt     int64
	CheckOutAt    int64
	ExpireAt      int64
	Referrer      [20]byte
	Policies      []PolicyTerm
	Insurance     *InsuranceTerms
}

// HashStruct computes the canonical struct hash of the intent.
func (m BookingIntent) HashStruct() [32]byte {
	policyHashes := make([]byte, 0, len(m.Policies)*32)
	for _, p := range m.Policies {
		policyHashes = append(policyHashes, ethcrypto.Keccak256(
			policyTypeHash,
			uintWord(big.NewInt(p.ExpireAt)),
			uintWord(p.RefundAmount),
		)...)
	}
	insurance := InsuranceTerms{}
	if m.Insurance != nil {
		insurance = *m.Insurance
	}
	insuranceHash := ethcrypto.Keccak256(
		insuranceTypeHash,
		uintWord(insurance.DamageProtectionFee),
		addressWord(insurance.FeeReceiver),
	)
	digest := ethcrypto.Keccak256(
		intentTypeHash,
		ethcrypto.Keccak256([]byte(m.BookingID)),
		addressWord(m.Guest),
		addressWord(m.PaymentToken),
		uintWord(m.BookingAmount),
		uintWord(big.NewInt(m.CheckInAt)),
		uintWord(big.NewInt(m.CheckOutAt)),
		uintWord(big.NewInt(m.ExpireAt)),
		addressWord(m.Referrer),
		ethcrypto.Keccak256(policyHashes),
		insuranceHash,
	)
	var out [32]byte
	copy(out[:], digest)
	return out
}

// Digest computes the final signable digest of the intent under the supplied
// domain.
func Digest(domain Domain, intent BookingIntent) ([32]byte, error) {
	var out [32]byte
	separator, err := domain.Separator()
	if err != nil {
		return out, err
	}
	structHash := intent.HashStruct()
	digest := ethcrypto.Keccak256([]byte{0x19, 0x01}, separator[:], structHash[:])
	copy(out[:], digest)
	return out, nil
}

func uintWord(v *big.Int) []byte {
	word := make([]byte, 32)
	if v == nil || v.Sign() <= 0 {
		if v != nil && v.Sign() < 0 {
			// Negative values never appear in valid intents; hash them as
			// their absolute magnitude rather than panicking in FillBytes.
			new(big.Int).Abs(v).FillBytes(word)
		}
		return word
	}
	v.FillBytes(word)
	return word
}

func addressWord(addr [20]byte) []byte {
	word := make([]byte, 32)
	copy(word[12:], addr[:])
	return word
}
