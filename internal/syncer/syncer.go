package syncer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/trigg3rX/triggerx-mirror-sync/internal/syncer/metrics"
	"github.com/trigg3rX/triggerx-mirror-sync/internal/syncer/snapshot"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/codec"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/verifier"
)

// EnvelopeSigner produces signature data for an envelope.
type EnvelopeSigner interface {
	SignEnvelope(envelope types.Envelope, referenceBlock uint32) (types.SignatureData, error)
}

var _ EnvelopeSigner = (*verifier.Signer)(nil)

// Target pairs a destination's detector with its client.
type Target struct {
	Detector *Detector
	Client   DestinationClient
}

type Config struct {
	// MaxEventRange caps the block span scanned for registration events per cycle.
	MaxEventRange uint64
}

// Syncer runs sync cycles over every target. Targets never share trigger
// sequences or snapshots, so one failing destination does not hold back the
// others.
type Syncer struct {
	cfg     Config
	reader  *Reader
	signer  EnvelopeSigner
	targets []Target
	logger  logging.Logger

	mu sync.Mutex

	statusMu  sync.RWMutex
	lastCycle CycleStatus
}

// CycleStatus summarizes the most recent cycle.
type CycleStatus struct {
	Trigger    string    `json:"trigger"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

func New(cfg Config, reader *Reader, signer EnvelopeSigner, targets []Target, logger logging.Logger) (*Syncer, error) {
	if len(targets) == 0 {
		return nil, errors.New("at least one destination is required")
	}
	seen := map[string]bool{}
	for _, t := range targets {
		name := t.Detector.Destination().Name
		if seen[name] {
			return nil, fmt.Errorf("destination %s configured twice", name)
		}
		seen[name] = true
	}
	if cfg.MaxEventRange == 0 {
		cfg.MaxEventRange = 5000
	}
	return &Syncer{
		cfg:     cfg,
		reader:  reader,
		signer:  signer,
		targets: targets,
		logger:  logger,
	}, nil
}

// RunCycle checks every destination once. Snapshots are read once per
// payload kind and shared by destinations of that kind.
func (s *Syncer) RunCycle(ctx context.Context, trigger string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	metrics.CyclesTotal.WithLabelValues(trigger).Inc()
	defer func() {
		metrics.CycleDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	snapshots := map[types.PayloadKind]*snapshot.Snapshot{}
	var errs []error
	for _, t := range s.targets {
		dest := t.Detector.Destination()
		if err := s.syncTarget(ctx, t, snapshots); err != nil {
			s.logger.Error("Sync failed", "destination", dest.Name, "error", err)
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	status := CycleStatus{Trigger: trigger, FinishedAt: time.Now().UTC()}
	if err != nil {
		status.Error = err.Error()
	}
	s.statusMu.Lock()
	s.lastCycle = status
	s.statusMu.Unlock()
	return err
}

// Status returns the last finished cycle.
func (s *Syncer) Status() CycleStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.lastCycle
}

// Destinations lists the configured destination names.
func (s *Syncer) Destinations() []string {
	names := make([]string, len(s.targets))
	for i, t := range s.targets {
		names[i] = t.Detector.Destination().Name
	}
	return names
}

func (s *Syncer) syncTarget(ctx context.Context, t Target, snapshots map[types.PayloadKind]*snapshot.Snapshot) error {
	dest := t.Detector.Destination()

	if dest.Upsert() {
		if err := s.syncRegistrations(ctx, t); err != nil {
			return err
		}
	}

	cur, ok := snapshots[dest.Kind]
	if !ok {
		var err error
		cur, err = s.reader.ReadSnapshot(ctx, dest.Kind)
		if err != nil {
			metrics.UpdatesTotal.WithLabelValues(dest.Name, "error").Inc()
			return err
		}
		snapshots[dest.Kind] = cur
	}

	update, err := t.Detector.DetectAndBuildFrom(ctx, cur)
	if err != nil {
		metrics.UpdatesTotal.WithLabelValues(dest.Name, "error").Inc()
		return err
	}
	if update == nil {
		metrics.UpdatesTotal.WithLabelValues(dest.Name, "no_drift").Inc()
		return nil
	}
	return s.Submit(ctx, t, update)
}

// Submit signs u, sends it and records the outcome. A stale rejection pulls
// the destination's trigger id so the next cycle builds a fresh update.
func (s *Syncer) Submit(ctx context.Context, t Target, u *Update) error {
	dest := t.Detector.Destination()
	env := types.Envelope{EventID: u.EventID, Payload: u.Encoded}
	sig, err := s.signer.SignEnvelope(env, referenceBlock(u.Next))
	if err != nil {
		return fmt.Errorf("failed to sign update: %w", err)
	}
	envBytes, err := codec.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	sigBytes, err := codec.EncodeSignatureData(sig)
	if err != nil {
		return err
	}

	receipt, err := t.Client.Submit(ctx, envBytes, sigBytes)
	if err != nil {
		if IsStale(err) {
			metrics.UpdatesTotal.WithLabelValues(dest.Name, "rejected").Inc()
			s.resync(ctx, t)
			return err
		}
		var re *RejectedError
		if errors.As(err, &re) {
			metrics.UpdatesTotal.WithLabelValues(dest.Name, "rejected").Inc()
		} else {
			metrics.UpdatesTotal.WithLabelValues(dest.Name, "error").Inc()
		}
		return err
	}

	if err := t.Detector.MarkMirrored(ctx, u); err != nil {
		return fmt.Errorf("update accepted but snapshot not saved: %w", err)
	}
	metrics.UpdatesTotal.WithLabelValues(dest.Name, "accepted").Inc()
	metrics.LastTriggerID.WithLabelValues(dest.Name).Set(float64(u.TriggerID))
	s.logger.Info("Update accepted",
		"destination", dest.Name,
		"kind", string(u.Kind),
		"trigger_id", u.TriggerID,
		"event_id", u.EventID.Hex(),
		"changed_operators", len(u.Changed),
		"version", receipt.Version)
	return nil
}

func (s *Syncer) resync(ctx context.Context, t Target) {
	state, err := t.Client.State(ctx)
	if err != nil {
		s.logger.Warn("Failed to fetch destination state for resync", "destination", t.Detector.Destination().Name, "error", err)
		return
	}
	if err := t.Detector.Resync(ctx, state.LastTriggerID); err != nil {
		s.logger.Warn("Failed to save resynced trigger id", "destination", t.Detector.Destination().Name, "error", err)
	}
}

// referenceBlock is the snapshot block clamped to uint32; signature data
// must carry a non-zero block.
func referenceBlock(snap *snapshot.Snapshot) uint32 {
	if snap == nil || snap.BlockHeight == 0 {
		return 1
	}
	if snap.BlockHeight > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(snap.BlockHeight)
}
