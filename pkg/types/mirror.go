package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TriggerID orders updates on a single destination handler.
type TriggerID = uint64

// QuorumNumber identifies a quorum in the registry coordinator.
type QuorumNumber = uint8

// MaxQuorumCount bounds every quorum iteration.
const MaxQuorumCount = 256

// PayloadKind selects which payload shape a handler accepts.
type PayloadKind string

const (
	PayloadKindFull            PayloadKind = "full"
	PayloadKindPerQuorum       PayloadKind = "per_quorum"
	PayloadKindQuorumThreshold PayloadKind = "quorum_threshold"
)

func ParsePayloadKind(s string) (PayloadKind, error) {
	switch k := PayloadKind(s); k {
	case PayloadKindFull, PayloadKindPerQuorum, PayloadKindQuorumThreshold:
		return k, nil
	default:
		return "", fmt.Errorf("unknown payload kind %q", s)
	}
}

// OperatorRecord is one mirrored operator. A zero signing key with zero
// weight marks a removal in upsert payloads, so an operator that is
// registered but has neither is indistinguishable from one that left.
type OperatorRecord struct {
	Operator   common.Address `json:"operator" yaml:"operator"`
	SigningKey common.Address `json:"signing_key" yaml:"signing_key"`
	Weight     *BigInt        `json:"weight" yaml:"weight"`
}

func (r OperatorRecord) IsRemoval() bool {
	return r.SigningKey == (common.Address{}) && r.Weight.ToBigInt().Sign() == 0
}

// EventID is the 20-byte envelope identifier.
type EventID [20]byte

func (e EventID) Hex() string {
	return common.Bytes2Hex(e[:])
}

// Envelope is the signed container carrying an encoded payload.
type Envelope struct {
	EventID  EventID
	Ordering [12]byte
	Payload  []byte
}

// SignatureData authenticates an envelope. Signers are signing-key addresses
// in strictly ascending order, one signature each.
type SignatureData struct {
	Signers        []common.Address
	Signatures     [][]byte
	ReferenceBlock uint32
}

// Payload is the tagged union of update shapes.
type Payload interface {
	Kind() PayloadKind
}

// FullSyncPayload replaces (or, on upsert handlers, patches) the operator set
// and threshold.
type FullSyncPayload struct {
	TriggerID       TriggerID
	ThresholdWeight *big.Int
	Operators       []common.Address
	SigningKeys     []common.Address
	Weights         []*big.Int
}

func (FullSyncPayload) Kind() PayloadKind { return PayloadKindFull }

// Records zips the parallel arrays. Callers must have validated lengths.
func (p FullSyncPayload) Records() []OperatorRecord {
	out := make([]OperatorRecord, len(p.Operators))
	for i := range p.Operators {
		out[i] = OperatorRecord{
			Operator:   p.Operators[i],
			SigningKey: p.SigningKeys[i],
			Weight:     NewBigInt(p.Weights[i]),
		}
	}
	return out
}

// PerQuorumPayload replaces the operator list of each listed quorum.
type PerQuorumPayload struct {
	OperatorsPerQuorum [][]common.Address
	QuorumNumbers      []byte
}

func (PerQuorumPayload) Kind() PayloadKind { return PayloadKindPerQuorum }

// QuorumThresholdPayload mirrors the numerator/denominator signing fraction.
type QuorumThresholdPayload struct {
	TriggerID   TriggerID
	Numerator   *big.Int
	Denominator *big.Int
}

func (QuorumThresholdPayload) Kind() PayloadKind { return PayloadKindQuorumThreshold }
