// Package wallet is a minimal secp256k1 signer used to drive both tiers'
// submission paths (the relayer's CreateChannel transactions, and test
// fixtures producing co-signed UpdateChannel/CloseChannel transactions),
// grounded on the token-tier's own sign/recover pair.
package wallet

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// AddressLength matches both tiers' 20-byte account/participant address.
const AddressLength = 20

// Wallet holds one secp256k1 keypair.
type Wallet struct {
	priv *ecdsa.PrivateKey
}

// New generates a fresh keypair.
func New() (*Wallet, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("wallet: generate key: %w", err)
	}
	return &Wallet{priv: priv}, nil
}

// FromPrivateKeyBytes loads a wallet from a 32-byte secp256k1 scalar.
func FromPrivateKeyBytes(b []byte) (*Wallet, error) {
	priv, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("wallet: parse private key: %w", err)
	}
	return &Wallet{priv: priv}, nil
}

// PublicKeyBytes returns the uncompressed 65-byte public key.
func (w *Wallet) PublicKeyBytes() []byte {
	return crypto.FromECDSAPub(&w.priv.PublicKey)
}

// Address returns the 20-byte address derived from the public key
// (Keccak-256 of the uncompressed point, low 20 bytes — the same
// derivation both tiers use for account/participant identity).
func (w *Wallet) Address() [AddressLength]byte {
	return AddressFromPubKey(w.PublicKeyBytes())
}

// Sign produces a 65-byte recoverable ECDSA signature over hash.
func (w *Wallet) Sign(hash [32]byte) ([]byte, error) {
	sig, err := crypto.Sign(hash[:], w.priv)
	if err != nil {
		return nil, fmt.Errorf("wallet: sign: %w", err)
	}
	return sig, nil
}

// AddressFromPubKey derives an address from an uncompressed public key.
func AddressFromPubKey(pubKey []byte) [AddressLength]byte {
	pub, err := crypto.UnmarshalPubkey(pubKey)
	if err != nil {
		return [AddressLength]byte{}
	}
	return crypto.PubkeyToAddress(*pub)
}

// Recover recovers the signer's uncompressed public key from a message
// hash and a 65-byte recoverable signature.
func Recover(hash [32]byte, sig []byte) ([]byte, error) {
	pub, err := crypto.SigToPub(hash[:], sig)
	if err != nil {
		return nil, fmt.Errorf("wallet: recover: %w", err)
	}
	return crypto.FromECDSAPub(pub), nil
}

// VerifySignature2 recovers both signers from a co-signed payload and
// checks each, independently, against the channel's two participant
// addresses — the channel tier's dual-signature admission check for
// UpdateChannel/CloseChannel transactions. The two signatures are not
// required to come from distinct signers: the same party may hold both
// slots, so long as each recovered address is one of the channel's two
// participants.
func VerifySignature2(hash [32]byte, sigA, sigB []byte, expectedA, expectedB [AddressLength]byte) (bool, error) {
	pubA, err := Recover(hash, sigA)
	if err != nil {
		return false, err
	}
	pubB, err := Recover(hash, sigB)
	if err != nil {
		return false, err
	}
	addrA, addrB := AddressFromPubKey(pubA), AddressFromPubKey(pubB)
	isParticipant := func(a [AddressLength]byte) bool { return a == expectedA || a == expectedB }
	return isParticipant(addrA) && isParticipant(addrB), nil
}
