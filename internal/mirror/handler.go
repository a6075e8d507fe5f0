package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trigg3rX/triggerx-mirror-sync/internal/mirror/metrics"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/codec"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/verifier"
)

// ApplyMode decides how full-shaped payloads touch the operator set.
type ApplyMode string

const (
	// ApplyReplace swaps the whole set.
	ApplyReplace ApplyMode = "replace"
	// ApplyUpsert patches listed operators; removal records delete.
	ApplyUpsert ApplyMode = "upsert"
)

func ParseApplyMode(s string) (ApplyMode, error) {
	switch m := ApplyMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ApplyReplace:
		return ApplyReplace, nil
	case ApplyUpsert:
		return ApplyUpsert, nil
	default:
		return "", fmt.Errorf("unknown apply mode %q", s)
	}
}

type HandlerConfig struct {
	Name string
	Kind types.PayloadKind
	Mode ApplyMode
}

// Receipt describes an accepted update.
type Receipt struct {
	ID          uuid.UUID         `json:"id"`
	Handler     string            `json:"handler"`
	PayloadKind types.PayloadKind `json:"payload_kind"`
	EventID     string            `json:"event_id"`
	TriggerID   types.TriggerID   `json:"trigger_id,omitempty"`
	Version     uint64            `json:"version"`
	StateDigest string            `json:"state_digest"`
	AppliedAt   time.Time         `json:"applied_at"`
}

// Handler is the only mutator of a mirror. Submissions are serialized, so
// every one sees the state left by the previous.
type Handler struct {
	cfg      HandlerConfig
	store    Store
	verifier verifier.Verifier
	history  History
	logger   logging.Logger
	now      func() time.Time

	mu sync.Mutex
}

func NewHandler(cfg HandlerConfig, store Store, v verifier.Verifier, history History, logger logging.Logger) (*Handler, error) {
	if cfg.Name == "" {
		return nil, errors.New("handler name is required")
	}
	if _, err := types.ParsePayloadKind(string(cfg.Kind)); err != nil {
		return nil, err
	}
	if cfg.Mode == "" {
		cfg.Mode = ApplyReplace
	}
	if cfg.Mode == ApplyUpsert && cfg.Kind != types.PayloadKindFull {
		return nil, fmt.Errorf("apply mode %q needs payload kind %q", ApplyUpsert, types.PayloadKindFull)
	}
	if history == nil {
		history = NewMemoryHistory(0)
	}
	return &Handler{
		cfg:      cfg,
		store:    store,
		verifier: v,
		history:  history,
		logger:   logger.With("handler", cfg.Name, "kind", string(cfg.Kind)),
		now:      time.Now,
	}, nil
}

func (h *Handler) Config() HandlerConfig {
	return h.cfg
}

// State returns the committed state.
func (h *Handler) State(ctx context.Context) (*State, error) {
	return h.store.Load(ctx)
}

func (h *Handler) History(ctx context.Context, limit int) ([]Submission, error) {
	return h.history.Recent(ctx, h.cfg.Name, limit)
}

// HandleEncoded decodes ABI-encoded envelope and signature bytes first.
func (h *Handler) HandleEncoded(ctx context.Context, envelope, signatureData []byte) (*Receipt, error) {
	env, err := codec.DecodeEnvelope(envelope)
	if err != nil {
		h.record(ctx, Submission{}, h.now(), err)
		return nil, err
	}
	sig, err := codec.DecodeSignatureData(signatureData)
	if err != nil {
		h.record(ctx, Submission{EventID: env.EventID.Hex()}, h.now(), err)
		return nil, err
	}
	return h.HandleSignedEnvelope(ctx, env, sig)
}

// HandleSignedEnvelope runs decode, sequencing, verification and apply, in
// that order, against the state committed before this call. Any rejection
// leaves the state untouched.
func (h *Handler) HandleSignedEnvelope(ctx context.Context, env types.Envelope, sig types.SignatureData) (*Receipt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	received := h.now()
	sub := Submission{EventID: env.EventID.Hex()}

	receipt, err := h.handle(ctx, env, sig, received, &sub)
	h.record(ctx, sub, received, err)
	if err != nil {
		h.logger.Warn("Rejected envelope", "event_id", sub.EventID, "trigger_id", sub.TriggerID, "error_kind", ErrorKind(err), "error", err)
		return nil, err
	}

	h.logger.Info("Applied envelope", "event_id", sub.EventID, "trigger_id", receipt.TriggerID, "version", receipt.Version)
	return receipt, nil
}

func (h *Handler) handle(ctx context.Context, env types.Envelope, sig types.SignatureData, received time.Time, sub *Submission) (*Receipt, error) {
	current, err := h.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := codec.Decode(h.cfg.Kind, env.Payload)
	if err != nil {
		return nil, err
	}

	seq := NewSequencer(current)
	switch p := payload.(type) {
	case types.FullSyncPayload:
		sub.TriggerID = p.TriggerID
		err = seq.Accept(p.TriggerID)
	case types.QuorumThresholdPayload:
		sub.TriggerID = p.TriggerID
		err = seq.Accept(p.TriggerID)
	case types.PerQuorumPayload:
		err = seq.AcceptEvent(env.EventID)
	default:
		err = fmt.Errorf("%w: unexpected payload %T", ErrDecode, payload)
	}
	if err != nil {
		return nil, err
	}

	digest, err := codec.SigningDigest(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := h.verifier.Verify(ctx, digest, sig, current); err != nil {
		return nil, err
	}

	next := h.apply(current, env.EventID, payload, received)
	// An upsert may hand an operator a key another operator still holds.
	if err := next.checkSigningKeys(); err != nil {
		return nil, err
	}
	if err := h.store.Commit(ctx, next); err != nil {
		return nil, err
	}

	metrics.LastTriggerID.WithLabelValues(h.cfg.Name).Set(float64(next.LastTriggerID))
	metrics.OperatorCount.WithLabelValues(h.cfg.Name).Set(float64(len(next.Operators)))

	digestHex := next.Digest().Hex()
	sub.StateDigest = digestHex
	return &Receipt{
		ID:          uuid.New(),
		Handler:     h.cfg.Name,
		PayloadKind: h.cfg.Kind,
		EventID:     env.EventID.Hex(),
		TriggerID:   sub.TriggerID,
		Version:     next.Version,
		StateDigest: digestHex,
		AppliedAt:   next.UpdatedAt,
	}, nil
}

func (h *Handler) apply(current *State, eventID types.EventID, payload types.Payload, at time.Time) *State {
	switch p := payload.(type) {
	case types.FullSyncPayload:
		if h.cfg.Mode == ApplyUpsert {
			return UpsertOperators(current, p.TriggerID, p.ThresholdWeight, p.Records(), at)
		}
		return ReplaceOperatorSet(current, p.TriggerID, p.ThresholdWeight, p.Records(), at)
	case types.PerQuorumPayload:
		quorums := make([]types.QuorumNumber, len(p.QuorumNumbers))
		for i, q := range p.QuorumNumbers {
			quorums[i] = types.QuorumNumber(q)
		}
		return SetOperatorsForQuorum(current, eventID, quorums, p.OperatorsPerQuorum, at)
	case types.QuorumThresholdPayload:
		return SetQuorumFraction(current, p.TriggerID, p.Numerator, p.Denominator, at)
	}
	return current
}

// record appends to the history. A failed write is logged and counted but
// never turns an applied update into an error.
func (h *Handler) record(ctx context.Context, sub Submission, received time.Time, err error) {
	sub.ID = uuid.New()
	sub.Handler = h.cfg.Name
	sub.PayloadKind = h.cfg.Kind
	sub.ReceivedAt = received.UTC()
	sub.Outcome = OutcomeAccepted
	if err != nil {
		sub.Outcome = OutcomeRejected
		sub.ErrorKind = ErrorKind(err)
		sub.Error = err.Error()
	}

	metrics.SubmissionsTotal.WithLabelValues(h.cfg.Name, sub.Outcome, sub.ErrorKind).Inc()
	metrics.ApplyDurationSeconds.WithLabelValues(h.cfg.Name).Observe(h.now().Sub(received).Seconds())

	if herr := h.history.Append(ctx, sub); herr != nil {
		metrics.HistoryWriteErrorsTotal.WithLabelValues(h.cfg.Name).Inc()
		h.logger.Error("Failed to append submission history", "error", herr)
	}
}
