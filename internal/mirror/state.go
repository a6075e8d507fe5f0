package mirror

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

// State is everything one destination handler mirrors. Values are treated as
// immutable once committed; every mutation returns a fresh copy.
type State struct {
	Version           uint64                                  `json:"version"`
	LastTriggerID     types.TriggerID                         `json:"last_trigger_id"`
	ThresholdWeight   *types.BigInt                           `json:"threshold_weight"`
	Operators         map[common.Address]types.OperatorRecord `json:"operators"`
	Quorums           map[types.QuorumNumber][]common.Address `json:"quorums"`
	QuorumNumerator   *types.BigInt                           `json:"quorum_numerator,omitempty"`
	QuorumDenominator *types.BigInt                           `json:"quorum_denominator,omitempty"`
	SeenEvents        map[string]struct{}                     `json:"seen_events,omitempty"`
	UpdatedAt         time.Time                               `json:"updated_at"`
}

func NewState() *State {
	return &State{
		ThresholdWeight: types.BigIntFromUint64(0),
		Operators:       map[common.Address]types.OperatorRecord{},
		Quorums:         map[types.QuorumNumber][]common.Address{},
		SeenEvents:      map[string]struct{}{},
	}
}

// Clone deep-copies s.
func (s *State) Clone() *State {
	out := &State{
		Version:         s.Version,
		LastTriggerID:   s.LastTriggerID,
		ThresholdWeight: types.NewBigInt(s.ThresholdWeight.ToBigInt()),
		Operators:       make(map[common.Address]types.OperatorRecord, len(s.Operators)),
		Quorums:         make(map[types.QuorumNumber][]common.Address, len(s.Quorums)),
		SeenEvents:      make(map[string]struct{}, len(s.SeenEvents)),
		UpdatedAt:       s.UpdatedAt,
	}
	if s.QuorumNumerator != nil {
		out.QuorumNumerator = types.NewBigInt(s.QuorumNumerator.ToBigInt())
	}
	if s.QuorumDenominator != nil {
		out.QuorumDenominator = types.NewBigInt(s.QuorumDenominator.ToBigInt())
	}
	for k, v := range s.Operators {
		v.Weight = types.NewBigInt(v.Weight.ToBigInt())
		out.Operators[k] = v
	}
	for q, ops := range s.Quorums {
		out.Quorums[q] = append([]common.Address(nil), ops...)
	}
	for id := range s.SeenEvents {
		out.SeenEvents[id] = struct{}{}
	}
	return out
}

// normalize fills nil maps left behind by JSON decoding.
func (s *State) normalize() {
	if s.ThresholdWeight == nil {
		s.ThresholdWeight = types.BigIntFromUint64(0)
	}
	if s.Operators == nil {
		s.Operators = map[common.Address]types.OperatorRecord{}
	}
	if s.Quorums == nil {
		s.Quorums = map[types.QuorumNumber][]common.Address{}
	}
	if s.SeenEvents == nil {
		s.SeenEvents = map[string]struct{}{}
	}
}

// OperatorSet returns the records sorted by operator address.
func (s *State) OperatorSet() []types.OperatorRecord {
	out := make([]types.OperatorRecord, 0, len(s.Operators))
	for _, r := range s.Operators {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Operator.Bytes(), out[j].Operator.Bytes()) < 0
	})
	return out
}

func (s *State) Threshold() *big.Int {
	return s.ThresholdWeight.ToBigInt()
}

// Weight is zero for unknown operators.
func (s *State) Weight(operator common.Address) *big.Int {
	r, ok := s.Operators[operator]
	if !ok {
		return new(big.Int)
	}
	return r.Weight.ToBigInt()
}

func (s *State) SigningKey(operator common.Address) (common.Address, bool) {
	r, ok := s.Operators[operator]
	return r.SigningKey, ok
}

// OperatorForSigningKey resolves key to its operator. Committed states hold
// each key at most once; should a stored state break that, the lowest
// operator address wins so every node resolves the same way.
func (s *State) OperatorForSigningKey(key common.Address) (common.Address, bool) {
	if key == (common.Address{}) {
		return common.Address{}, false
	}
	var (
		found common.Address
		ok    bool
	)
	for op, r := range s.Operators {
		if r.SigningKey != key {
			continue
		}
		if !ok || bytes.Compare(op.Bytes(), found.Bytes()) < 0 {
			found, ok = op, true
		}
	}
	return found, ok
}

// checkSigningKeys fails when two operators share a non-zero signing key.
func (s *State) checkSigningKeys() error {
	owners := make(map[common.Address]common.Address, len(s.Operators))
	for _, r := range s.OperatorSet() {
		if r.SigningKey == (common.Address{}) {
			continue
		}
		if other, dup := owners[r.SigningKey]; dup {
			return fmt.Errorf("%w: signing key %s held by %s and %s", ErrDecode, r.SigningKey.Hex(), other.Hex(), r.Operator.Hex())
		}
		owners[r.SigningKey] = r.Operator
	}
	return nil
}

func (s *State) QuorumOperators(q types.QuorumNumber) []common.Address {
	return append([]common.Address(nil), s.Quorums[q]...)
}

func (s *State) TotalWeight() *big.Int {
	total := new(big.Int)
	for _, r := range s.Operators {
		total.Add(total, r.Weight.ToBigInt())
	}
	return total
}

// QuorumFraction returns (0, 0) when no fraction was ever mirrored.
func (s *State) QuorumFraction() (*big.Int, *big.Int) {
	return s.QuorumNumerator.ToBigInt(), s.QuorumDenominator.ToBigInt()
}

func (s *State) LastTrigger() types.TriggerID {
	return s.LastTriggerID
}

func (s *State) HasSeenEvent(id types.EventID) bool {
	_, ok := s.SeenEvents[id.Hex()]
	return ok
}

// Digest hashes the mirrored content, excluding bookkeeping timestamps.
func (s *State) Digest() common.Hash {
	view := struct {
		LastTriggerID     types.TriggerID                         `json:"last_trigger_id"`
		ThresholdWeight   string                                  `json:"threshold_weight"`
		Operators         []types.OperatorRecord                  `json:"operators"`
		Quorums           map[types.QuorumNumber][]common.Address `json:"quorums"`
		QuorumNumerator   string                                  `json:"quorum_numerator"`
		QuorumDenominator string                                  `json:"quorum_denominator"`
	}{
		LastTriggerID:     s.LastTriggerID,
		ThresholdWeight:   s.ThresholdWeight.String(),
		Operators:         s.OperatorSet(),
		Quorums:           s.Quorums,
		QuorumNumerator:   s.QuorumNumerator.String(),
		QuorumDenominator: s.QuorumDenominator.String(),
	}
	// json.Marshal sorts map keys, so the encoding is deterministic.
	raw, err := json.Marshal(view)
	if err != nil {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(raw)
}
