package authorizer

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"tripvault/crypto"
)

func testKey(t *testing.T, fill byte) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.PrivateKeyFromBytes(bytes.Repeat([]byte{fill}, 32))
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	return key
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func testDomain() Domain {
	return Domain{
		Name:              "Tripvault Booking",
		Version:           "1",
		ChainID:           1,
		VerifyingContract: testAddress(0x0A),
	}
}

func testIntent() BookingIntent {
	return BookingIntent{
		BookingID:     "bk-1",
		Guest:         testAddress(0x01),
		PaymentToken:  testAddress(0x02),
		BookingAmount: big.NewInt(65_000),
		CheckInAt:     1_700_432_000,
		CheckOutAt:    1_700_604_800,
		ExpireAt:      1_700_086_400,
		Policies: []PolicyTerm{
			{ExpireAt: 1_700_172_800, RefundAmount: big.NewInt(40_000)},
			{ExpireAt: 1_700_345_600, RefundAmount: big.NewInt(0)},
		},
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key := testKey(t, 0x42)
	verifier := key.PubKey().AddressBytes()
	domain := testDomain()
	intent := testIntent()

	sig, err := Sign(domain, intent, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length: %d", len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("recovery byte not normalised: %d", sig[64])
	}
	if err := Verify(domain, intent, sig, verifier); err != nil {
		t.Fatalf("verify: %v", err)
	}
	// Legacy 0/1 recovery ids verify as well.
	legacy := append([]byte(nil), sig...)
	legacy[64] -= 27
	if err := Verify(domain, intent, legacy, verifier); err != nil {
		t.Fatalf("verify legacy recovery id: %v", err)
	}
}

func TestVerifyRejectsTamperedFields(t *testing.T) {
	key := testKey(t, 0x42)
	verifier := key.PubKey().AddressBytes()
	domain := testDomain()
	intent := testIntent()

	sig, err := Sign(domain, intent, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	mutations := map[string]func(*BookingIntent){
		"booking id":    func(m *BookingIntent) { m.BookingID = "bk-2" },
		"guest":         func(m *BookingIntent) { m.Guest = testAddress(0x44) },
		"payment token": func(m *BookingIntent) { m.PaymentToken = testAddress(0x45) },
		"amount":        func(m *BookingIntent) { m.BookingAmount = big.NewInt(65_001) },
		"check-in":      func(m *BookingIntent) { m.CheckInAt++ },
		"check-out":     func(m *BookingIntent) { m.CheckOutAt++ },
		"expiry":        func(m *BookingIntent) { m.ExpireAt++ },
		"referrer":      func(m *BookingIntent) { m.Referrer = testAddress(0x46) },
		"policy refund": func(m *BookingIntent) { m.Policies[0].RefundAmount = big.NewInt(40_001) },
		"policy expiry": func(m *BookingIntent) { m.Policies[1].ExpireAt++ },
		"dropped policy": func(m *BookingIntent) {
			m.Policies = m.Policies[:1]
		},
		"added insurance": func(m *BookingIntent) {
			m.Insurance = &InsuranceTerms{DamageProtectionFee: big.NewInt(1), FeeReceiver: testAddress(0x47)}
		},
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			tampered := testIntent()
			tampered.Policies = append([]PolicyTerm(nil), tampered.Policies...)
			mutate(&tampered)
			if err := Verify(domain, tampered, sig, verifier); !errors.Is(err, ErrUnauthorizedSigner) {
				t.Fatalf("expected unauthorized signer, got %v", err)
			}
		})
	}
}

func TestVerifyRejectsForeignDomain(t *testing.T) {
	key := testKey(t, 0x42)
	verifier := key.PubKey().AddressBytes()
	intent := testIntent()

	sig, err := Sign(testDomain(), intent, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	other := testDomain()
	other.VerifyingContract = testAddress(0x0B)
	if err := Verify(other, intent, sig, verifier); !errors.Is(err, ErrUnauthorizedSigner) {
		t.Fatalf("expected rejection under another instance, got %v", err)
	}

	chain := testDomain()
	chain.ChainID = 2
	if err := Verify(chain, intent, sig, verifier); !errors.Is(err, ErrUnauthorizedSigner) {
		t.Fatalf("expected rejection under another chain, got %v", err)
	}
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	signer := testKey(t, 0x42)
	verifier := testKey(t, 0x43).PubKey().AddressBytes()
	domain := testDomain()
	intent := testIntent()

	sig, err := Sign(domain, intent, signer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := Verify(domain, intent, sig, verifier); !errors.Is(err, ErrUnauthorizedSigner) {
		t.Fatalf("expected unauthorized signer, got %v", err)
	}
}

func TestVerifyInputValidation(t *testing.T) {
	key := testKey(t, 0x42)
	verifier := key.PubKey().AddressBytes()
	domain := testDomain()
	intent := testIntent()

	sig, err := Sign(domain, intent, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := Verify(domain, intent, sig, [20]byte{}); !errors.Is(err, ErrZeroVerifier) {
		t.Fatalf("expected zero verifier, got %v", err)
	}
	if err := Verify(domain, intent, sig[:64], verifier); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for short input, got %v", err)
	}
	bad := append([]byte(nil), sig...)
	bad[64] = 5
	if err := Verify(domain, intent, bad, verifier); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid recovery id, got %v", err)
	}
}

func TestHashStructDeterministic(t *testing.T) {
	first := testIntent().HashStruct()
	second := testIntent().HashStruct()
	if first != second {
		t.Fatalf("struct hash not deterministic")
	}

	// nil and zero-valued insurance hash identically.
	withZero := testIntent()
	withZero.Insurance = &InsuranceTerms{DamageProtectionFee: big.NewInt(0)}
	if withZero.HashStruct() != first {
		t.Fatalf("zero insurance should match absent insurance")
	}

	// nil and zero refund amounts hash identically.
	withNil := testIntent()
	withNil.Policies[1].RefundAmount = nil
	if withNil.HashStruct() != first {
		t.Fatalf("nil refund should hash as zero")
	}
}

func TestDomainSeparatorValidation(t *testing.T) {
	missingName := testDomain()
	missingName.Name = " "
	if _, err := missingName.Separator(); err == nil {
		t.Fatalf("expected error for empty name")
	}
	missingVersion := testDomain()
	missingVersion.Version = ""
	if _, err := missingVersion.Separator(); err == nil {
		t.Fatalf("expected error for empty version")
	}
}
