package quorum

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"xswap/pkg/attest"
	"xswap/pkg/types"
)

// RecoverAndValidate recovers the signer of every signature over hash and
// checks that the signers are strictly increasing. It does not look at
// membership or thresholds.
func RecoverAndValidate(hash common.Hash, sigs [][]byte) ([]common.Address, error) {
	signers := make([]common.Address, 0, len(sigs))
	for i, sig := range sigs {
		signer, err := attest.Recover(hash, sig)
		if err != nil {
			return nil, fmt.Errorf("%w: signature %d: %v", types.ErrInvalidSignature, i, err)
		}
		if i > 0 && bytes.Compare(signers[i-1].Bytes(), signer.Bytes()) >= 0 {
			return nil, fmt.Errorf("%w: signature %d recovers %s after %s",
				types.ErrSignerOrder, i, signer.Hex(), signers[i-1].Hex())
		}
		signers = append(signers, signer)
	}
	return signers, nil
}
