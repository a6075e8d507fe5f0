package syncer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trigg3rX/triggerx-mirror-sync/internal/syncer/metrics"
	"github.com/trigg3rX/triggerx-mirror-sync/internal/syncer/snapshot"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/chainio"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/retry"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

// SourceReader is the source-chain read surface.
type SourceReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	QuorumCount(ctx context.Context) (uint8, error)
	OperatorsInQuorum(ctx context.Context, q uint8) ([]common.Address, error)
	CurrentStakes(ctx context.Context, ops []common.Address, q uint8) (map[common.Address]*big.Int, error)
	OperatorID(ctx context.Context, op common.Address) ([32]byte, error)
	QuorumBitmap(ctx context.Context, operatorID [32]byte) (*big.Int, error)
	IsRegistered(ctx context.Context, op common.Address) (bool, error)
	SigningKey(ctx context.Context, op common.Address) (common.Address, error)
	OperatorWeight(ctx context.Context, op common.Address) (*big.Int, error)
	ThresholdWeight(ctx context.Context) (*big.Int, error)
	QuorumFraction(ctx context.Context) (*big.Int, *big.Int, error)
	FilterRegistrationEvents(ctx context.Context, from, to uint64) ([]chainio.RegistrationEvent, error)
}

var _ SourceReader = (*chainio.AvsReader)(nil)

// SourceReadError is a source-chain read that failed after retries. The
// whole drift check is safe to retry.
type SourceReadError struct {
	Op  string
	Err error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("source read %s failed: %v", e.Op, e.Err)
}

func (e *SourceReadError) Unwrap() error {
	return e.Err
}

func (e *SourceReadError) Retryable() bool {
	return true
}

func IsSourceReadError(err error) bool {
	var se *SourceReadError
	return errors.As(err, &se)
}

// Reader builds snapshots from a SourceReader, retrying every call.
type Reader struct {
	source SourceReader
	retry  *retry.Config
	logger logging.Logger
	now    func() time.Time
}

func NewReader(source SourceReader, retryCfg *retry.Config, logger logging.Logger) *Reader {
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &Reader{
		source: source,
		retry:  retryCfg,
		logger: logger,
		now:    time.Now,
	}
}

func (r *Reader) Source() SourceReader {
	return r.source
}

func read[T any](ctx context.Context, r *Reader, op string, fn func() (T, error)) (T, error) {
	v, err := retry.Retry(ctx, fn, r.retry, r.logger)
	if err != nil {
		metrics.SourceReadErrorsTotal.WithLabelValues(op).Inc()
		var zero T
		return zero, &SourceReadError{Op: op, Err: err}
	}
	return v, nil
}

// ReadSnapshot reads everything a destination of the given kind is compared
// on, all pinned to the block it records. Any failed read aborts the
// snapshot.
func (r *Reader) ReadSnapshot(ctx context.Context, kind types.PayloadKind) (*snapshot.Snapshot, error) {
	height, err := read(ctx, r, "block_number", func() (uint64, error) {
		return r.source.BlockNumber(ctx)
	})
	if err != nil {
		return nil, err
	}
	ctx = chainio.AtBlock(ctx, height)
	snap := snapshot.New(height, r.now().UTC())

	if kind == types.PayloadKindQuorumThreshold {
		if err := r.readQuorumFraction(ctx, snap); err != nil {
			return nil, err
		}
		metrics.LastSourceBlock.Set(float64(height))
		return snap, nil
	}

	if err := r.readQuorums(ctx, snap); err != nil {
		return nil, err
	}

	switch kind {
	case types.PayloadKindFull:
		if err := r.readOperatorSet(ctx, snap); err != nil {
			return nil, err
		}
	case types.PayloadKindPerQuorum:
		if err := r.readBitmaps(ctx, snap); err != nil {
			return nil, err
		}
	}

	metrics.LastSourceBlock.Set(float64(height))
	r.logger.Debug("Read source snapshot", "block", height, "kind", string(kind),
		"operators", len(snap.Operators), "quorums", len(snap.Quorums))
	return snap, nil
}

// readQuorums walks quorum numbers 0..quorumCount-1, which the uint8 count
// bounds to 256 iterations.
func (r *Reader) readQuorums(ctx context.Context, snap *snapshot.Snapshot) error {
	count, err := read(ctx, r, "quorum_count", func() (uint8, error) {
		return r.source.QuorumCount(ctx)
	})
	if err != nil {
		return err
	}

	for i := 0; i < int(count); i++ {
		q := uint8(i)
		ops, err := read(ctx, r, "operators_in_quorum", func() ([]common.Address, error) {
			return r.source.OperatorsInQuorum(ctx, q)
		})
		if err != nil {
			return err
		}
		ops = append([]common.Address(nil), ops...)
		snapshot.SortAddresses(ops)
		snap.Quorums[q] = ops

		stakes, err := read(ctx, r, "current_stakes", func() (map[common.Address]*big.Int, error) {
			return r.source.CurrentStakes(ctx, ops, q)
		})
		if err != nil {
			return err
		}
		for _, op := range ops {
			entry := snap.Operators[op]
			if entry.Stakes == nil {
				entry.Stakes = map[types.QuorumNumber]*types.BigInt{}
			}
			entry.Stakes[q] = types.NewBigInt(nonNil(stakes[op]))
			if entry.Weight == nil {
				entry.Weight = types.BigIntFromUint64(0)
			}
			snap.Operators[op] = entry
		}
	}
	return nil
}

// readOperatorSet fills signing keys, weights and the threshold. Operators
// the registry no longer reports as registered are dropped.
func (r *Reader) readOperatorSet(ctx context.Context, snap *snapshot.Snapshot) error {
	threshold, err := read(ctx, r, "threshold_weight", func() (*big.Int, error) {
		return r.source.ThresholdWeight(ctx)
	})
	if err != nil {
		return err
	}
	snap.Threshold = types.NewBigInt(nonNil(threshold))

	for _, op := range snap.SortedOperators() {
		registered, err := read(ctx, r, "is_registered", func() (bool, error) {
			return r.source.IsRegistered(ctx, op)
		})
		if err != nil {
			return err
		}
		if !registered {
			delete(snap.Operators, op)
			continue
		}

		key, err := read(ctx, r, "signing_key", func() (common.Address, error) {
			return r.source.SigningKey(ctx, op)
		})
		if err != nil {
			return err
		}
		weight, err := read(ctx, r, "operator_weight", func() (*big.Int, error) {
			return r.source.OperatorWeight(ctx, op)
		})
		if err != nil {
			return err
		}

		entry := snap.Operators[op]
		entry.SigningKey = key
		entry.Weight = types.NewBigInt(nonNil(weight))
		snap.Operators[op] = entry
	}
	return nil
}

func (r *Reader) readBitmaps(ctx context.Context, snap *snapshot.Snapshot) error {
	for _, op := range snap.SortedOperators() {
		id, err := read(ctx, r, "operator_id", func() ([32]byte, error) {
			return r.source.OperatorID(ctx, op)
		})
		if err != nil {
			return err
		}
		bitmap, err := read(ctx, r, "quorum_bitmap", func() (*big.Int, error) {
			return r.source.QuorumBitmap(ctx, id)
		})
		if err != nil {
			return err
		}
		entry := snap.Operators[op]
		entry.Bitmap = types.NewBigInt(nonNil(bitmap))
		snap.Operators[op] = entry
	}
	return nil
}

func (r *Reader) readQuorumFraction(ctx context.Context, snap *snapshot.Snapshot) error {
	type fraction struct{ num, den *big.Int }
	f, err := read(ctx, r, "quorum_fraction", func() (fraction, error) {
		num, den, err := r.source.QuorumFraction(ctx)
		return fraction{num, den}, err
	})
	if err != nil {
		return err
	}
	snap.QuorumNumerator = types.NewBigInt(nonNil(f.num))
	snap.QuorumDenominator = types.NewBigInt(nonNil(f.den))
	return nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
