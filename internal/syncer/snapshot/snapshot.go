package snapshot

import (
	"bytes"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

// Operator is one operator as read from the source chain.
type Operator struct {
	SigningKey common.Address                       `json:"signing_key"`
	Weight     *types.BigInt                        `json:"weight"`
	Stakes     map[types.QuorumNumber]*types.BigInt `json:"stakes,omitempty"`
	Bitmap     *types.BigInt                        `json:"bitmap,omitempty"`
}

// Snapshot is the authoritative source state at one block.
type Snapshot struct {
	BlockHeight       uint64                                  `json:"block_height"`
	Timestamp         time.Time                               `json:"timestamp"`
	Threshold         *types.BigInt                           `json:"threshold"`
	Operators         map[common.Address]Operator             `json:"operators"`
	Quorums           map[types.QuorumNumber][]common.Address `json:"quorums"`
	QuorumNumerator   *types.BigInt                           `json:"quorum_numerator,omitempty"`
	QuorumDenominator *types.BigInt                           `json:"quorum_denominator,omitempty"`
}

func New(height uint64, at time.Time) *Snapshot {
	return &Snapshot{
		BlockHeight: height,
		Timestamp:   at,
		Threshold:   types.BigIntFromUint64(0),
		Operators:   map[common.Address]Operator{},
		Quorums:     map[types.QuorumNumber][]common.Address{},
	}
}

// OrEmpty lets callers treat a missing snapshot as an empty source.
func OrEmpty(s *Snapshot) *Snapshot {
	if s == nil {
		return New(0, time.Time{})
	}
	return s
}

func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Threshold = types.NewBigInt(s.Threshold.ToBigInt())
	c.QuorumNumerator = cloneOptional(s.QuorumNumerator)
	c.QuorumDenominator = cloneOptional(s.QuorumDenominator)
	c.Operators = make(map[common.Address]Operator, len(s.Operators))
	for addr, op := range s.Operators {
		c.Operators[addr] = op.clone()
	}
	c.Quorums = make(map[types.QuorumNumber][]common.Address, len(s.Quorums))
	for q, ops := range s.Quorums {
		c.Quorums[q] = append([]common.Address(nil), ops...)
	}
	return &c
}

func (o Operator) clone() Operator {
	c := Operator{
		SigningKey: o.SigningKey,
		Weight:     types.NewBigInt(o.Weight.ToBigInt()),
		Bitmap:     cloneOptional(o.Bitmap),
	}
	if o.Stakes != nil {
		c.Stakes = make(map[types.QuorumNumber]*types.BigInt, len(o.Stakes))
		for q, st := range o.Stakes {
			c.Stakes[q] = types.NewBigInt(st.ToBigInt())
		}
	}
	return c
}

func cloneOptional(b *types.BigInt) *types.BigInt {
	if b == nil {
		return nil
	}
	return types.NewBigInt(b.ToBigInt())
}

// SortedOperators returns operator addresses in ascending byte order.
func (s *Snapshot) SortedOperators() []common.Address {
	out := make([]common.Address, 0, len(s.Operators))
	for addr := range s.Operators {
		out = append(out, addr)
	}
	SortAddresses(out)
	return out
}

// Records returns the operator set as mirror records, sorted by address.
func (s *Snapshot) Records() []types.OperatorRecord {
	addrs := s.SortedOperators()
	out := make([]types.OperatorRecord, len(addrs))
	for i, addr := range addrs {
		op := s.Operators[addr]
		out[i] = types.OperatorRecord{
			Operator:   addr,
			SigningKey: op.SigningKey,
			Weight:     types.NewBigInt(op.Weight.ToBigInt()),
		}
	}
	return out
}

func SortAddresses(addrs []common.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
}

// SameAddresses compares two already sorted lists.
func SameAddresses(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Mirrored is what the syncer believes a destination holds.
type Mirrored struct {
	Destination   string          `json:"destination"`
	LastTriggerID types.TriggerID `json:"last_trigger_id"`
	// LastEventBlock is the last source block scanned for registration events.
	LastEventBlock uint64    `json:"last_event_block,omitempty"`
	Snapshot       *Snapshot `json:"snapshot,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}
