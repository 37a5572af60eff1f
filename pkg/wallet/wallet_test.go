package wallet

import "testing"

func TestSignAndRecoverRoundTrip(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}
	var hash [32]byte
	hash[0] = 1

	sig, err := w.Sign(hash)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pub, err := Recover(hash, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if AddressFromPubKey(pub) != w.Address() {
		t.Fatalf("recovered address does not match signer")
	}
}

func TestVerifySignature2AcceptsEitherOrder(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("new wallet a: %v", err)
	}
	b, err := New()
	if err != nil {
		t.Fatalf("new wallet b: %v", err)
	}
	var hash [32]byte
	hash[0] = 2

	sigA, err := a.Sign(hash)
	if err != nil {
		t.Fatalf("sign a: %v", err)
	}
	sigB, err := b.Sign(hash)
	if err != nil {
		t.Fatalf("sign b: %v", err)
	}

	ok, err := VerifySignature2(hash, sigA, sigB, a.Address(), b.Address())
	if err != nil || !ok {
		t.Fatalf("expected direct order to verify, ok=%v err=%v", ok, err)
	}
	ok, err = VerifySignature2(hash, sigB, sigA, a.Address(), b.Address())
	if err != nil || !ok {
		t.Fatalf("expected swapped order to verify, ok=%v err=%v", ok, err)
	}
}

func TestVerifySignature2RejectsWrongParty(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("new wallet a: %v", err)
	}
	b, err := New()
	if err != nil {
		t.Fatalf("new wallet b: %v", err)
	}
	stranger, err := New()
	if err != nil {
		t.Fatalf("new wallet stranger: %v", err)
	}
	var hash [32]byte
	hash[0] = 3

	sigA, err := a.Sign(hash)
	if err != nil {
		t.Fatalf("sign a: %v", err)
	}
	sigB, err := b.Sign(hash)
	if err != nil {
		t.Fatalf("sign b: %v", err)
	}

	ok, err := VerifySignature2(hash, sigA, sigB, stranger.Address(), b.Address())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected verification to fail for a stranger party")
	}
}

func TestVerifySignature2AllowsSameSignerForBothSlots(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("new wallet a: %v", err)
	}
	b, err := New()
	if err != nil {
		t.Fatalf("new wallet b: %v", err)
	}
	var hash [32]byte
	hash[0] = 4

	sigA, err := a.Sign(hash)
	if err != nil {
		t.Fatalf("sign a: %v", err)
	}

	// Party A signs both slots; each recovered address still belongs to
	// the expected participant pair, so verification must succeed.
	ok, err := VerifySignature2(hash, sigA, sigA, a.Address(), b.Address())
	if err != nil || !ok {
		t.Fatalf("expected same-signer co-signature to verify, ok=%v err=%v", ok, err)
	}
}
