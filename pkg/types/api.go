package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SubmitEnvelopeRequest carries ABI-encoded envelope and signature bytes.
type SubmitEnvelopeRequest struct {
	Envelope      hexutil.Bytes `json:"envelope" binding:"required"`
	SignatureData hexutil.Bytes `json:"signature_data" binding:"required"`
}

type SubmitEnvelopeResponse struct {
	ID          string      `json:"id"`
	Handler     string      `json:"handler"`
	PayloadKind PayloadKind `json:"payload_kind"`
	EventID     string      `json:"event_id"`
	TriggerID   TriggerID   `json:"trigger_id,omitempty"`
	Version     uint64      `json:"version"`
	StateDigest string      `json:"state_digest"`
	AppliedAt   time.Time   `json:"applied_at"`
}

// ErrorResponse is returned by every failing mirror endpoint. Kind is a
// stable machine-readable classification.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type MirrorStateResponse struct {
	Handler           string                            `json:"handler"`
	PayloadKind       PayloadKind                       `json:"payload_kind"`
	ApplyMode         string                            `json:"apply_mode"`
	Version           uint64                            `json:"version"`
	LastTriggerID     TriggerID                         `json:"last_trigger_id"`
	ThresholdWeight   *BigInt                           `json:"threshold_weight"`
	TotalWeight       *BigInt                           `json:"total_weight"`
	Operators         []OperatorRecord                  `json:"operators"`
	Quorums           map[QuorumNumber][]common.Address `json:"quorums,omitempty"`
	QuorumNumerator   *BigInt                           `json:"quorum_numerator,omitempty"`
	QuorumDenominator *BigInt                           `json:"quorum_denominator,omitempty"`
	StateDigest       string                            `json:"state_digest"`
	UpdatedAt         time.Time                         `json:"updated_at"`
}

// Error kinds carried in ErrorResponse.Kind.
const (
	ErrorKindDecode                  = "decode"
	ErrorKindInvalidSignature        = "invalid_signature"
	ErrorKindInsufficientWeight      = "insufficient_weight"
	ErrorKindStaleOrDuplicateTrigger = "stale_or_duplicate_trigger"
	ErrorKindConcurrentUpdate        = "concurrent_update"
	ErrorKindNotInitialized          = "not_initialized"
	ErrorKindInternal                = "internal"
)
