package verifier

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/codec"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

// Signer holds local ECDSA signing keys and produces SignatureData bundles.
type Signer struct {
	keys []*ecdsa.PrivateKey
}

// NewSignerFromHex parses hex private keys, with or without 0x.
func NewSignerFromHex(hexKeys ...string) (*Signer, error) {
	keys := make([]*ecdsa.PrivateKey, 0, len(hexKeys))
	for i, h := range hexKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(h), "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return NewSigner(keys...)
}

func NewSigner(keys ...*ecdsa.PrivateKey) (*Signer, error) {
	if len(keys) == 0 {
		return nil, errors.New("signer needs at least one key")
	}
	sorted := append([]*ecdsa.PrivateKey(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool {
		a := crypto.PubkeyToAddress(sorted[i].PublicKey)
		b := crypto.PubkeyToAddress(sorted[j].PublicKey)
		return bytes.Compare(a.Bytes(), b.Bytes()) < 0
	})
	for i := 1; i < len(sorted); i++ {
		if crypto.PubkeyToAddress(sorted[i-1].PublicKey) == crypto.PubkeyToAddress(sorted[i].PublicKey) {
			return nil, errors.New("duplicate signing key")
		}
	}
	return &Signer{keys: sorted}, nil
}

// Addresses returns the signing-key addresses in ascending order.
func (s *Signer) Addresses() []common.Address {
	out := make([]common.Address, len(s.keys))
	for i, k := range s.keys {
		out[i] = crypto.PubkeyToAddress(k.PublicKey)
	}
	return out
}

// SignDigest signs an already prefixed digest with every key.
func (s *Signer) SignDigest(digest common.Hash, referenceBlock uint32) (types.SignatureData, error) {
	sd := types.SignatureData{
		Signers:        make([]common.Address, 0, len(s.keys)),
		Signatures:     make([][]byte, 0, len(s.keys)),
		ReferenceBlock: referenceBlock,
	}
	for _, key := range s.keys {
		sig, err := crypto.Sign(digest.Bytes(), key)
		if err != nil {
			return types.SignatureData{}, fmt.Errorf("failed to sign digest: %w", err)
		}
		sig[64] += 27
		sd.Signers = append(sd.Signers, crypto.PubkeyToAddress(key.PublicKey))
		sd.Signatures = append(sd.Signatures, sig)
	}
	return sd, nil
}

// SignEnvelope signs the EIP-191 digest of envelope.
func (s *Signer) SignEnvelope(envelope types.Envelope, referenceBlock uint32) (types.SignatureData, error) {
	digest, err := codec.SigningDigest(envelope)
	if err != nil {
		return types.SignatureData{}, fmt.Errorf("failed to hash envelope: %w", err)
	}
	return s.SignDigest(digest, referenceBlock)
}
