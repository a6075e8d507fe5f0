package syncer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trigg3rX/triggerx-mirror-sync/internal/syncer/snapshot"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/chainio"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

// BuildRegistrationUpdate turns one registration event into a single
// operator upsert. Deregistrations carry a zero key and weight. Next is the
// mirrored snapshot patched with that operator.
func (d *Detector) BuildRegistrationUpdate(ctx context.Context, ev chainio.RegistrationEvent) (*Update, error) {
	mirrored, err := d.store.Load(ctx, d.dest.Name)
	if err != nil {
		return nil, err
	}
	src := d.reader.Source()

	threshold, err := read(ctx, d.reader, "threshold_weight", func() (*big.Int, error) {
		return src.ThresholdWeight(ctx)
	})
	if err != nil {
		return nil, err
	}

	next := snapshot.OrEmpty(mirrored.Snapshot).Clone()
	if ev.BlockNumber > next.BlockHeight {
		next.BlockHeight = ev.BlockNumber
	}
	next.Threshold = types.NewBigInt(nonNil(threshold))

	record := types.OperatorRecord{Operator: ev.Operator, Weight: types.BigIntFromUint64(0)}
	switch ev.Kind {
	case chainio.Registered:
		key, err := read(ctx, d.reader, "signing_key", func() (common.Address, error) {
			return src.SigningKey(ctx, ev.Operator)
		})
		if err != nil {
			return nil, err
		}
		weight, err := read(ctx, d.reader, "operator_weight", func() (*big.Int, error) {
			return src.OperatorWeight(ctx, ev.Operator)
		})
		if err != nil {
			return nil, err
		}
		record.SigningKey = key
		record.Weight = types.NewBigInt(nonNil(weight))

		// Without key or weight the upsert reads as a removal downstream.
		if record.IsRemoval() {
			delete(next.Operators, ev.Operator)
			break
		}
		entry := next.Operators[ev.Operator]
		entry.SigningKey = record.SigningKey
		entry.Weight = record.Weight
		next.Operators[ev.Operator] = entry
	case chainio.Deregistered:
		delete(next.Operators, ev.Operator)
	}

	triggerID := mirrored.LastTriggerID + 1
	payload := fullPayload(triggerID, next.Threshold, []types.OperatorRecord{record})
	return d.newUpdate(triggerID, payload, next, []common.Address{ev.Operator})
}

// AdvanceEventCursor records that blocks up to block were scanned.
func (d *Detector) AdvanceEventCursor(ctx context.Context, block uint64) error {
	m, err := d.store.Load(ctx, d.dest.Name)
	if err != nil {
		return err
	}
	if block <= m.LastEventBlock {
		return nil
	}
	m.LastEventBlock = block
	return d.store.Save(ctx, m)
}

// syncRegistrations forwards registration events since the last scanned
// block, one update each, in log order. The first run starts at the head.
// A failure stops the scan; the range is rescanned next cycle and the
// already applied upserts are harmless to repeat.
func (s *Syncer) syncRegistrations(ctx context.Context, t Target) error {
	src := s.reader.Source()
	head, err := read(ctx, s.reader, "block_number", func() (uint64, error) {
		return src.BlockNumber(ctx)
	})
	if err != nil {
		return err
	}

	m, err := t.Detector.store.Load(ctx, t.Detector.dest.Name)
	if err != nil {
		return err
	}
	if m.LastEventBlock == 0 {
		return t.Detector.AdvanceEventCursor(ctx, head)
	}
	from := m.LastEventBlock + 1
	if from > head {
		return nil
	}
	to := head
	if to-from+1 > s.cfg.MaxEventRange {
		to = from + s.cfg.MaxEventRange - 1
	}

	events, err := read(ctx, s.reader, "registration_events", func() ([]chainio.RegistrationEvent, error) {
		return src.FilterRegistrationEvents(ctx, from, to)
	})
	if err != nil {
		return err
	}

	for _, ev := range events {
		u, err := t.Detector.BuildRegistrationUpdate(ctx, ev)
		if err != nil {
			return err
		}
		s.logger.Info("Forwarding registration event",
			"destination", t.Detector.dest.Name, "kind", string(ev.Kind),
			"operator", ev.Operator.Hex(), "block", ev.BlockNumber)
		if err := s.Submit(ctx, t, u); err != nil {
			return err
		}
	}
	return t.Detector.AdvanceEventCursor(ctx, to)
}
