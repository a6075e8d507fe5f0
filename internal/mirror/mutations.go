package mirror

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

// next starts a mutation: a copy one version ahead.
func next(s *State, at time.Time) *State {
	n := s.Clone()
	n.Version++
	n.UpdatedAt = at.UTC()
	return n
}

// ReplaceThreshold sets the signing threshold on a copy of s. The operator
// set mutations build on it.
func ReplaceThreshold(s *State, threshold *big.Int, at time.Time) *State {
	n := next(s, at)
	n.ThresholdWeight = types.NewBigInt(nonNil(threshold))
	return n
}

// ReplaceOperatorSet swaps the whole operator set and threshold and records
// triggerID as the last applied trigger.
func ReplaceOperatorSet(s *State, triggerID types.TriggerID, threshold *big.Int, records []types.OperatorRecord, at time.Time) *State {
	n := ReplaceThreshold(s, threshold, at)
	n.LastTriggerID = triggerID
	n.Operators = make(map[common.Address]types.OperatorRecord, len(records))
	for _, r := range records {
		n.Operators[r.Operator] = copyRecord(r)
	}
	return n
}

// UpsertOperators patches individual records. A removal record deletes the
// operator.
func UpsertOperators(s *State, triggerID types.TriggerID, threshold *big.Int, records []types.OperatorRecord, at time.Time) *State {
	n := ReplaceThreshold(s, threshold, at)
	n.LastTriggerID = triggerID
	for _, r := range records {
		if r.IsRemoval() {
			delete(n.Operators, r.Operator)
			continue
		}
		n.Operators[r.Operator] = copyRecord(r)
	}
	return n
}

// SetOperatorsForQuorum replaces the listed quorums' operator lists and
// marks eventID as consumed. Quorums not listed are untouched.
func SetOperatorsForQuorum(s *State, eventID types.EventID, quorums []types.QuorumNumber, operators [][]common.Address, at time.Time) *State {
	n := next(s, at)
	for i, q := range quorums {
		n.Quorums[q] = append([]common.Address{}, operators[i]...)
	}
	n.SeenEvents[eventID.Hex()] = struct{}{}
	return n
}

// SetQuorumFraction mirrors the signing fraction.
func SetQuorumFraction(s *State, triggerID types.TriggerID, numerator, denominator *big.Int, at time.Time) *State {
	n := next(s, at)
	n.LastTriggerID = triggerID
	n.QuorumNumerator = types.NewBigInt(nonNil(numerator))
	n.QuorumDenominator = types.NewBigInt(nonNil(denominator))
	return n
}

func copyRecord(r types.OperatorRecord) types.OperatorRecord {
	r.Weight = types.NewBigInt(r.Weight.ToBigInt())
	return r
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
