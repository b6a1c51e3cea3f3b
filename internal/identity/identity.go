// Package identity binds API callers to Ethereum-style addresses using
// personal-message (EIP-191) signatures.
package identity

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

var ErrInvalidSignature = errors.New("invalid signature")

// Signer holds a secp256k1 key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// LoadKey parses a hex private key, with or without the 0x prefix.
func LoadKey(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"), "0X")
	if hexKey == "" {
		return nil, errors.New("empty private key")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	return NewSigner(key), nil
}

// GenerateKey creates a fresh random signer.
func GenerateKey() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generate key")
	}
	return NewSigner(key), nil
}

func (s *Signer) Address() common.Address { return s.address }

// KeyHex returns the private key without the 0x prefix.
func (s *Signer) KeyHex() string {
	return common.Bytes2Hex(crypto.FromECDSA(s.key))
}

// Sign signs message as a personal message. V is 27 or 28, as wallets produce it.
func (s *Signer) Sign(message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), s.key)
	if err != nil {
		return nil, errors.Wrap(err, "sign message")
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Recover returns the address that produced sig over message.
// Both the 0/1 and 27/28 recovery id conventions are accepted; high-s signatures are not.
func Recover(message, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.Wrapf(ErrInvalidSignature, "signature must be %d bytes, got %d",
			crypto.SignatureLength, len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	r := new(big.Int).SetBytes(normalized[:32])
	sv := new(big.Int).SetBytes(normalized[32:64])
	// upper-half s values are the malleable twin of a valid signature
	if !crypto.ValidateSignatureValues(normalized[crypto.RecoveryIDOffset], r, sv, true) {
		return common.Address{}, errors.Wrap(ErrInvalidSignature, "signature values out of range")
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), normalized)
	if err != nil {
		return common.Address{}, errors.Wrap(ErrInvalidSignature, err.Error())
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// ParseAddress accepts only well-formed hex addresses.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
