package store

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Key joins parts into a single key
func Key(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	key := make([]byte, 0, n)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

// Uint64 encodes v big-endian so that keys sort numerically
func Uint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// GetUint64 reads a big-endian counter, defaulting to 0
func (t *Tx) GetUint64(key []byte) (uint64, error) {
	raw, err := t.Get(key)
	if err == ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

// PutUint64 stores v big-endian
func (t *Tx) PutUint64(key []byte, v uint64) error {
	return t.Put(key, Uint64(v))
}

// GetBool reads a flag, defaulting to false
func (t *Tx) GetBool(key []byte) (bool, error) {
	raw, err := t.Get(key)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(raw) == 1 && raw[0] == 1, nil
}

// PutBool stores a flag
func (t *Tx) PutBool(key []byte, v bool) error {
	if v {
		return t.Put(key, []byte{1})
	}
	return t.Put(key, []byte{0})
}

// GetBig reads an unsigned integer, defaulting to 0
func (t *Tx) GetBig(key []byte) (*big.Int, error) {
	raw, err := t.Get(key)
	if err == ErrNotFound {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// PutBig stores a non-negative integer
func (t *Tx) PutBig(key []byte, v *big.Int) error {
	return t.Put(key, v.Bytes())
}

// AddressFromKey returns the 20 bytes that follow prefix in key
func AddressFromKey(key, prefix []byte) common.Address {
	return common.BytesToAddress(key[len(prefix) : len(prefix)+common.AddressLength])
}
