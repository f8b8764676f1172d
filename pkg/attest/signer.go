package attest

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of an [R || S || V] signature
const SignatureLength = crypto.SignatureLength

// Signer signs attestation messages with a validator key
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner wraps an existing private key
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// SignerFromHex parses a hex private key, with or without 0x prefix
func SignerFromHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewSigner(key), nil
}

// GenerateSigner creates a signer with a fresh random key
func GenerateSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewSigner(key), nil
}

// Address returns the signer's identity
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKeyHex returns the key as 0x-prefixed hex
func (s *Signer) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(s.key))
}

// Sign signs the signed-message digest of hash. V is 27 or 28.
func (s *Signer) Sign(hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(SignedHash(hash).Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Recover returns the address that signed hash. It accepts V as 0/1 or
// 27/28 and rejects malleable high-S signatures.
func Recover(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("signature length %d, want %d", len(sig), SignatureLength)
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	v := normalized[crypto.RecoveryIDOffset]
	r := new(big.Int).SetBytes(normalized[:32])
	sv := new(big.Int).SetBytes(normalized[32:64])
	if !crypto.ValidateSignatureValues(v, r, sv, true) {
		return common.Address{}, fmt.Errorf("malformed signature values")
	}

	pub, err := crypto.SigToPub(SignedHash(hash).Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SortSignatures orders sigs by ascending recovered signer, the order every
// quorum check requires.
func SortSignatures(hash common.Hash, sigs [][]byte) ([][]byte, error) {
	type entry struct {
		signer common.Address
		sig    []byte
	}

	entries := make([]entry, len(sigs))
	for i, sig := range sigs {
		signer, err := Recover(hash, sig)
		if err != nil {
			return nil, err
		}
		entries[i] = entry{signer: signer, sig: sig}
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].signer.Bytes(), entries[j].signer.Bytes()) < 0
	})

	sorted := make([][]byte, len(entries))
	for i, e := range entries {
		sorted[i] = e.sig
	}
	return sorted, nil
}

// SignAll collects one signature per signer, sorted for submission
func SignAll(hash common.Hash, signers ...*Signer) ([][]byte, error) {
	sigs := make([][]byte, 0, len(signers))
	for _, s := range signers {
		sig, err := s.Sign(hash)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return SortSignatures(hash, sigs)
}
