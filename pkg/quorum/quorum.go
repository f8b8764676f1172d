package quorum

import (
	"fmt"

	evbus "github.com/asaskevich/EventBus"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"xswap/pkg/attest"
	"xswap/pkg/store"
	"xswap/pkg/types"
)

var (
	thresholdKey    = []byte("sv/threshold")
	countKey        = []byte("sv/count")
	nonceKey        = []byte("sv/nonce")
	validatorPrefix = []byte("sv/validator/")
)

// Config configures a Quorum
type Config struct {
	Address common.Address
	ChainID uint64
	Store   *store.Store
	Bus     evbus.Bus
	Logger  *zap.Logger
}

// Quorum is a chain's validator set. It verifies that a message carries
// signatures from at least threshold distinct validators and administers
// its own membership through quorum-signed, nonce-bound changes.
type Quorum struct {
	address common.Address
	chainID uint64
	store   *store.Store
	bus     evbus.Bus
	log     *zap.Logger
}

// New creates a quorum over cfg.Store
func New(cfg Config) *Quorum {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Quorum{
		address: cfg.Address,
		chainID: cfg.ChainID,
		store:   cfg.Store,
		bus:     cfg.Bus,
		log:     log.Named("quorum").With(zap.Uint64("chain", cfg.ChainID)),
	}
}

// Address returns the quorum's identity, bound into every attestation
func (q *Quorum) Address() common.Address {
	return q.address
}

// ChainID returns the chain the quorum lives on
func (q *Quorum) ChainID() uint64 {
	return q.chainID
}

// Initialize installs the first validator set. It can only run once.
func (q *Quorum) Initialize(validators []common.Address, threshold uint64) error {
	err := q.store.Update(func(tx *store.Tx) error {
		count, err := tx.GetUint64(countKey)
		if err != nil {
			return err
		}
		if count > 0 {
			return types.ErrAlreadyInit
		}
		if len(validators) == 0 || threshold == 0 || threshold > uint64(len(validators)) {
			return fmt.Errorf("%w: %d of %d", types.ErrInvalidThreshold, threshold, len(validators))
		}

		for _, v := range validators {
			if v == (common.Address{}) {
				return types.ErrZeroAddress
			}
			key := store.Key(validatorPrefix, v.Bytes())
			exists, err := tx.Has(key)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: %s", types.ErrAlreadyValidator, v.Hex())
			}
			if err := tx.PutBool(key, true); err != nil {
				return err
			}
		}

		if err := tx.PutUint64(countKey, uint64(len(validators))); err != nil {
			return err
		}
		return tx.PutUint64(thresholdKey, threshold)
	})
	if err != nil {
		return err
	}

	q.log.Info("validator set initialized",
		zap.Int("validators", len(validators)), zap.Uint64("threshold", threshold))
	q.publish()
	return nil
}

// Verify checks sigs over hash inside a caller's transaction. Any number of
// signatures at or above the threshold is accepted as long as every signer
// is a validator and the signers are strictly increasing.
func (q *Quorum) Verify(tx *store.Tx, hash common.Hash, sigs [][]byte) error {
	count, err := tx.GetUint64(countKey)
	if err != nil {
		return err
	}
	if count == 0 {
		return types.ErrNotInitialized
	}
	threshold, err := tx.GetUint64(thresholdKey)
	if err != nil {
		return err
	}
	if uint64(len(sigs)) < threshold {
		return fmt.Errorf("%w: got %d, need %d", types.ErrNotEnoughSignatures, len(sigs), threshold)
	}

	signers, err := RecoverAndValidate(hash, sigs)
	if err != nil {
		return err
	}
	for _, signer := range signers {
		ok, err := isValidator(tx, signer)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", types.ErrSignerNotValidator, signer.Hex())
		}
	}
	return nil
}

// CheckSignatures verifies sigs over hash against the committed set
func (q *Quorum) CheckSignatures(hash common.Hash, sigs [][]byte) error {
	return q.store.View(func(tx *store.Tx) error {
		return q.Verify(tx, hash, sigs)
	})
}

// SetThreshold changes the threshold. nonce must be the current nonce.
func (q *Quorum) SetThreshold(threshold, nonce uint64, sigs [][]byte) (*types.ValidatorSet, error) {
	var set *types.ValidatorSet
	err := q.store.Update(func(tx *store.Tx) error {
		if err := q.consumeNonce(tx, nonce, attest.SetThresholdHash(q.address, q.chainID, threshold, nonce), sigs); err != nil {
			return err
		}

		count, err := tx.GetUint64(countKey)
		if err != nil {
			return err
		}
		if threshold == 0 || threshold > count {
			return fmt.Errorf("%w: %d of %d", types.ErrInvalidThreshold, threshold, count)
		}
		if err := tx.PutUint64(thresholdKey, threshold); err != nil {
			return err
		}

		set, err = readSet(tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	q.log.Info("threshold changed", zap.Uint64("threshold", threshold), zap.Uint64("nonce", set.Nonce))
	q.publishSet(set)
	return set, nil
}

// SetValidator adds or removes a validator. Removing clamps the threshold
// down to the new count; the last validator can not be removed.
func (q *Quorum) SetValidator(validator common.Address, add bool, nonce uint64, sigs [][]byte) (*types.ValidatorSet, error) {
	var set *types.ValidatorSet
	err := q.store.Update(func(tx *store.Tx) error {
		if err := q.consumeNonce(tx, nonce, attest.SetValidatorHash(q.address, q.chainID, validator, add, nonce), sigs); err != nil {
			return err
		}

		count, err := tx.GetUint64(countKey)
		if err != nil {
			return err
		}
		threshold, err := tx.GetUint64(thresholdKey)
		if err != nil {
			return err
		}
		member, err := isValidator(tx, validator)
		if err != nil {
			return err
		}
		key := store.Key(validatorPrefix, validator.Bytes())

		if add {
			if validator == (common.Address{}) {
				return types.ErrZeroAddress
			}
			if member {
				return fmt.Errorf("%w: %s", types.ErrAlreadyValidator, validator.Hex())
			}
			if err := tx.PutBool(key, true); err != nil {
				return err
			}
			count++
		} else {
			if !member {
				return fmt.Errorf("%w: %s", types.ErrNotValidator, validator.Hex())
			}
			if count == 1 {
				return types.ErrLastValidator
			}
			if err := tx.PutBool(key, false); err != nil {
				return err
			}
			count--
			if threshold > count {
				if err := tx.PutUint64(thresholdKey, count); err != nil {
					return err
				}
			}
		}

		if err := tx.PutUint64(countKey, count); err != nil {
			return err
		}
		set, err = readSet(tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	q.log.Info("validator set changed",
		zap.String("validator", validator.Hex()),
		zap.Bool("add", add),
		zap.Uint64("count", set.Count),
		zap.Uint64("threshold", set.Threshold))
	q.publishSet(set)
	return set, nil
}

// ValidatorSet returns the committed set
func (q *Quorum) ValidatorSet() (*types.ValidatorSet, error) {
	var set *types.ValidatorSet
	err := q.store.View(func(tx *store.Tx) error {
		var err error
		set, err = readSet(tx)
		return err
	})
	return set, err
}

// IsValidator reports whether addr is in the committed set
func (q *Quorum) IsValidator(addr common.Address) (bool, error) {
	var ok bool
	err := q.store.View(func(tx *store.Tx) error {
		var err error
		ok, err = isValidator(tx, addr)
		return err
	})
	return ok, err
}

func (q *Quorum) consumeNonce(tx *store.Tx, nonce uint64, hash common.Hash, sigs [][]byte) error {
	current, err := tx.GetUint64(nonceKey)
	if err != nil {
		return err
	}
	if nonce != current {
		return fmt.Errorf("%w: got %d, expected %d", types.ErrInvalidNonce, nonce, current)
	}
	if err := q.Verify(tx, hash, sigs); err != nil {
		return err
	}
	return tx.PutUint64(nonceKey, current+1)
}

func (q *Quorum) publish() {
	set, err := q.ValidatorSet()
	if err != nil {
		q.log.Warn("failed to read validator set", zap.Error(err))
		return
	}
	q.publishSet(set)
}

func (q *Quorum) publishSet(set *types.ValidatorSet) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(types.TopicQuorumChanged, types.QuorumChangedEvent{ChainID: q.chainID, Set: *set})
}

func isValidator(tx *store.Tx, addr common.Address) (bool, error) {
	return tx.GetBool(store.Key(validatorPrefix, addr.Bytes()))
}

func readSet(tx *store.Tx) (*types.ValidatorSet, error) {
	set := &types.ValidatorSet{Validators: make([]common.Address, 0)}

	var err error
	if set.Count, err = tx.GetUint64(countKey); err != nil {
		return nil, err
	}
	if set.Threshold, err = tx.GetUint64(thresholdKey); err != nil {
		return nil, err
	}
	if set.Nonce, err = tx.GetUint64(nonceKey); err != nil {
		return nil, err
	}

	err = tx.Iterate(validatorPrefix, func(key, value []byte) error {
		if len(value) == 1 && value[0] == 1 {
			set.Validators = append(set.Validators, store.AddressFromKey(key, validatorPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}
