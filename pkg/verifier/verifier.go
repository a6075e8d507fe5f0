// Package verifier authenticates signature bundles over mirror envelopes
// against a weighted operator view.
package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

var (
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInsufficientWeight = errors.New("insufficient signing weight")
)

const signatureLength = 65

// OperatorView is the read surface verification needs from the mirror.
type OperatorView interface {
	// OperatorForSigningKey resolves a signing-key address to its operator.
	OperatorForSigningKey(key common.Address) (common.Address, bool)
	Weight(operator common.Address) *big.Int
	Threshold() *big.Int
}

// Verifier checks sigData over an EIP-191 digest. Implementations must not
// mutate the view.
type Verifier interface {
	Verify(ctx context.Context, digest common.Hash, sigData types.SignatureData, view OperatorView) error
}

// ECDSAVerifier recovers each signer from a 65-byte secp256k1 signature and
// sums the weight of the operators they belong to.
type ECDSAVerifier struct{}

func NewECDSAVerifier() *ECDSAVerifier {
	return &ECDSAVerifier{}
}

func (v *ECDSAVerifier) Verify(ctx context.Context, digest common.Hash, sigData types.SignatureData, view OperatorView) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(sigData.Signers) == 0 {
		return fmt.Errorf("%w: no signers", ErrInvalidSignature)
	}
	if len(sigData.Signers) != len(sigData.Signatures) {
		return fmt.Errorf("%w: %d signers but %d signatures", ErrInvalidSignature, len(sigData.Signers), len(sigData.Signatures))
	}
	if sigData.ReferenceBlock == 0 {
		return fmt.Errorf("%w: reference block is zero", ErrInvalidSignature)
	}

	total := new(big.Int)
	for i, signer := range sigData.Signers {
		if i > 0 && bytes.Compare(sigData.Signers[i-1].Bytes(), signer.Bytes()) >= 0 {
			return fmt.Errorf("%w: signers not strictly ascending at index %d", ErrInvalidSignature, i)
		}

		recovered, err := RecoverSigner(digest, sigData.Signatures[i])
		if err != nil {
			return fmt.Errorf("%w: signer %s: %v", ErrInvalidSignature, signer.Hex(), err)
		}
		if recovered != signer {
			return fmt.Errorf("%w: signature %d recovers to %s, expected %s", ErrInvalidSignature, i, recovered.Hex(), signer.Hex())
		}

		operator, ok := view.OperatorForSigningKey(signer)
		if !ok {
			return fmt.Errorf("%w: %s is not a registered signing key", ErrInvalidSignature, signer.Hex())
		}
		if w := view.Weight(operator); w != nil {
			total.Add(total, w)
		}
	}

	threshold := view.Threshold()
	if threshold == nil {
		threshold = new(big.Int)
	}
	if total.Cmp(threshold) < 0 {
		return fmt.Errorf("%w: signed %s, threshold %s", ErrInsufficientWeight, total, threshold)
	}
	return nil
}

// RecoverSigner returns the address that produced sig over digest. Both
// 0/1 and 27/28 recovery ids are accepted.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != signatureLength {
		return common.Address{}, fmt.Errorf("signature length %d, want %d", len(sig), signatureLength)
	}
	normalized := make([]byte, signatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
