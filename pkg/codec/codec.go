// Package codec implements the binary layout of mirror sync payloads,
// envelopes and signature bundles. Layouts follow Solidity's abi.encode of a
// single struct; decoding is strict and rejects anything that would not
// re-encode to the same bytes.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

// ErrDecode marks a structurally invalid payload. Nothing from a payload that
// fails with ErrDecode is ever applied.
var ErrDecode = errors.New("payload decode error")

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

type fullSyncTuple struct {
	TriggerId           uint64
	ThresholdWeight     *big.Int
	Operators           []common.Address
	SigningKeyAddresses []common.Address
	Weights             []*big.Int
}

type perQuorumTuple struct {
	OperatorsPerQuorum [][]common.Address
	QuorumNumbers      []byte
}

type quorumThresholdTuple struct {
	TriggerId   uint64
	Numerator   *big.Int
	Denominator *big.Int
}

func decodeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

func unpackTuple[T any](args abi.Arguments, data []byte, what string) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = decodeErrorf("malformed %s: %v", what, r)
		}
	}()

	values, err := args.Unpack(data)
	if err != nil {
		return out, decodeErrorf("malformed %s: %v", what, err)
	}
	if len(values) != 1 {
		return out, decodeErrorf("malformed %s: expected one tuple, got %d values", what, len(values))
	}
	converted, ok := abi.ConvertType(values[0], new(T)).(*T)
	if !ok {
		return out, decodeErrorf("malformed %s: unexpected tuple layout", what)
	}
	return *converted, nil
}

// requireCanonical rejects trailing bytes and non-standard offsets.
func requireCanonical(args abi.Arguments, value any, data []byte, what string) error {
	encoded, err := args.Pack(value)
	if err != nil {
		return decodeErrorf("re-encode %s: %v", what, err)
	}
	if !bytes.Equal(encoded, data) {
		return decodeErrorf("non-canonical %s encoding", what)
	}
	return nil
}

func checkUint256(v *big.Int, field string) error {
	if v == nil {
		return fmt.Errorf("%s is nil", field)
	}
	if v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
		return fmt.Errorf("%s out of uint256 range", field)
	}
	return nil
}

// ValidateFull enforces the parallel-array invariant of a full sync payload
// and that no signing key belongs to two operators.
func ValidateFull(p types.FullSyncPayload) error {
	if len(p.Operators) != len(p.SigningKeys) || len(p.Operators) != len(p.Weights) {
		return decodeErrorf("operators/signingKeys/weights length mismatch (%d/%d/%d)",
			len(p.Operators), len(p.SigningKeys), len(p.Weights))
	}
	if err := checkUint256(p.ThresholdWeight, "thresholdWeight"); err != nil {
		return decodeErrorf("%v", err)
	}
	seen := make(map[common.Address]struct{}, len(p.Operators))
	seenKeys := make(map[common.Address]common.Address, len(p.SigningKeys))
	for i, op := range p.Operators {
		if op == (common.Address{}) {
			return decodeErrorf("operator %d is the zero address", i)
		}
		if _, dup := seen[op]; dup {
			return decodeErrorf("operator %s listed twice", op.Hex())
		}
		seen[op] = struct{}{}
		// The zero key marks a removal and may repeat.
		if key := p.SigningKeys[i]; key != (common.Address{}) {
			if other, dup := seenKeys[key]; dup {
				return decodeErrorf("signing key %s used by %s and %s", key.Hex(), other.Hex(), op.Hex())
			}
			seenKeys[key] = op
		}
		if err := checkUint256(p.Weights[i], fmt.Sprintf("weights[%d]", i)); err != nil {
			return decodeErrorf("%v", err)
		}
	}
	return nil
}

// ValidatePerQuorum enforces one strictly ascending operator list per
// distinct quorum number.
func ValidatePerQuorum(p types.PerQuorumPayload) error {
	if len(p.OperatorsPerQuorum) != len(p.QuorumNumbers) {
		return decodeErrorf("operatorsPerQuorum/quorumNumbers length mismatch (%d/%d)",
			len(p.OperatorsPerQuorum), len(p.QuorumNumbers))
	}
	var seenQuorum [types.MaxQuorumCount]bool
	for i, q := range p.QuorumNumbers {
		if seenQuorum[q] {
			return decodeErrorf("quorum %d listed twice", q)
		}
		seenQuorum[q] = true

		ops := p.OperatorsPerQuorum[i]
		for j, op := range ops {
			if op == (common.Address{}) {
				return decodeErrorf("quorum %d operator %d is the zero address", q, j)
			}
			if j > 0 && bytes.Compare(ops[j-1].Bytes(), op.Bytes()) >= 0 {
				return decodeErrorf("quorum %d operators not strictly ascending at index %d", q, j)
			}
		}
	}
	return nil
}

// ValidateQuorumThreshold requires 0 <= numerator <= denominator, denominator > 0.
func ValidateQuorumThreshold(p types.QuorumThresholdPayload) error {
	if err := checkUint256(p.Numerator, "numerator"); err != nil {
		return decodeErrorf("%v", err)
	}
	if err := checkUint256(p.Denominator, "denominator"); err != nil {
		return decodeErrorf("%v", err)
	}
	if p.Denominator.Sign() == 0 {
		return decodeErrorf("denominator is zero")
	}
	if p.Numerator.Cmp(p.Denominator) > 0 {
		return decodeErrorf("numerator %s exceeds denominator %s", p.Numerator, p.Denominator)
	}
	return nil
}

func EncodeFull(p types.FullSyncPayload) ([]byte, error) {
	if err := ValidateFull(p); err != nil {
		return nil, err
	}
	return fullSyncArgs.Pack(fullSyncTuple{
		TriggerId:           p.TriggerID,
		ThresholdWeight:     p.ThresholdWeight,
		Operators:           nonNilAddrs(p.Operators),
		SigningKeyAddresses: nonNilAddrs(p.SigningKeys),
		Weights:             nonNilInts(p.Weights),
	})
}

func DecodeFull(data []byte) (types.FullSyncPayload, error) {
	t, err := unpackTuple[fullSyncTuple](fullSyncArgs, data, "full sync payload")
	if err != nil {
		return types.FullSyncPayload{}, err
	}
	p := types.FullSyncPayload{
		TriggerID:       t.TriggerId,
		ThresholdWeight: t.ThresholdWeight,
		Operators:       t.Operators,
		SigningKeys:     t.SigningKeyAddresses,
		Weights:         t.Weights,
	}
	if err := ValidateFull(p); err != nil {
		return types.FullSyncPayload{}, err
	}
	if err := requireCanonical(fullSyncArgs, t, data, "full sync payload"); err != nil {
		return types.FullSyncPayload{}, err
	}
	return p, nil
}

func EncodePerQuorum(p types.PerQuorumPayload) ([]byte, error) {
	if err := ValidatePerQuorum(p); err != nil {
		return nil, err
	}
	ops := make([][]common.Address, len(p.OperatorsPerQuorum))
	for i, list := range p.OperatorsPerQuorum {
		ops[i] = nonNilAddrs(list)
	}
	quorums := p.QuorumNumbers
	if quorums == nil {
		quorums = []byte{}
	}
	return perQuorumArgs.Pack(perQuorumTuple{
		OperatorsPerQuorum: ops,
		QuorumNumbers:      quorums,
	})
}

func DecodePerQuorum(data []byte) (types.PerQuorumPayload, error) {
	t, err := unpackTuple[perQuorumTuple](perQuorumArgs, data, "per-quorum payload")
	if err != nil {
		return types.PerQuorumPayload{}, err
	}
	p := types.PerQuorumPayload{
		OperatorsPerQuorum: t.OperatorsPerQuorum,
		QuorumNumbers:      t.QuorumNumbers,
	}
	if err := ValidatePerQuorum(p); err != nil {
		return types.PerQuorumPayload{}, err
	}
	if err := requireCanonical(perQuorumArgs, t, data, "per-quorum payload"); err != nil {
		return types.PerQuorumPayload{}, err
	}
	return p, nil
}

func EncodeQuorumThreshold(p types.QuorumThresholdPayload) ([]byte, error) {
	if err := ValidateQuorumThreshold(p); err != nil {
		return nil, err
	}
	return quorumThresholdArgs.Pack(quorumThresholdTuple{
		TriggerId:   p.TriggerID,
		Numerator:   p.Numerator,
		Denominator: p.Denominator,
	})
}

func DecodeQuorumThreshold(data []byte) (types.QuorumThresholdPayload, error) {
	t, err := unpackTuple[quorumThresholdTuple](quorumThresholdArgs, data, "quorum threshold payload")
	if err != nil {
		return types.QuorumThresholdPayload{}, err
	}
	p := types.QuorumThresholdPayload{
		TriggerID:   t.TriggerId,
		Numerator:   t.Numerator,
		Denominator: t.Denominator,
	}
	if err := ValidateQuorumThreshold(p); err != nil {
		return types.QuorumThresholdPayload{}, err
	}
	if err := requireCanonical(quorumThresholdArgs, t, data, "quorum threshold payload"); err != nil {
		return types.QuorumThresholdPayload{}, err
	}
	return p, nil
}

// Encode dispatches on the payload's concrete shape.
func Encode(p types.Payload) ([]byte, error) {
	switch v := p.(type) {
	case types.FullSyncPayload:
		return EncodeFull(v)
	case *types.FullSyncPayload:
		return EncodeFull(*v)
	case types.PerQuorumPayload:
		return EncodePerQuorum(v)
	case *types.PerQuorumPayload:
		return EncodePerQuorum(*v)
	case types.QuorumThresholdPayload:
		return EncodeQuorumThreshold(v)
	case *types.QuorumThresholdPayload:
		return EncodeQuorumThreshold(*v)
	default:
		return nil, fmt.Errorf("unsupported payload type %T", p)
	}
}

// Decode parses data as the shape a handler of the given kind accepts.
func Decode(kind types.PayloadKind, data []byte) (types.Payload, error) {
	switch kind {
	case types.PayloadKindFull:
		return DecodeFull(data)
	case types.PayloadKindPerQuorum:
		return DecodePerQuorum(data)
	case types.PayloadKindQuorumThreshold:
		return DecodeQuorumThreshold(data)
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
}

func nonNilAddrs(in []common.Address) []common.Address {
	if in == nil {
		return []common.Address{}
	}
	return in
}

func nonNilInts(in []*big.Int) []*big.Int {
	if in == nil {
		return []*big.Int{}
	}
	return in
}
