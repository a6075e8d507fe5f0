package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

// Genesis seeds a handler whose store is empty. Without it no envelope could
// ever verify, since verification uses the already mirrored operator set.
type Genesis struct {
	LastTriggerID     types.TriggerID                         `json:"last_trigger_id" yaml:"last_trigger_id"`
	ThresholdWeight   *types.BigInt                           `json:"threshold_weight" yaml:"threshold_weight"`
	Operators         []types.OperatorRecord                  `json:"operators" yaml:"operators"`
	Quorums           map[types.QuorumNumber][]common.Address `json:"quorums,omitempty" yaml:"quorums,omitempty"`
	QuorumNumerator   *types.BigInt                           `json:"quorum_numerator,omitempty" yaml:"quorum_numerator,omitempty"`
	QuorumDenominator *types.BigInt                           `json:"quorum_denominator,omitempty" yaml:"quorum_denominator,omitempty"`
}

// LoadGenesis reads a .json, .yaml or .yml genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file: %w", err)
	}

	var g Genesis
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &g)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &g)
	default:
		return nil, fmt.Errorf("unsupported genesis file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse genesis file %s: %w", path, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *Genesis) Validate() error {
	seenOps := map[common.Address]struct{}{}
	seenKeys := map[common.Address]struct{}{}
	for i, r := range g.Operators {
		if r.Operator == (common.Address{}) {
			return fmt.Errorf("genesis operator %d has zero address", i)
		}
		if r.SigningKey == (common.Address{}) {
			return fmt.Errorf("genesis operator %s has zero signing key", r.Operator.Hex())
		}
		if _, dup := seenOps[r.Operator]; dup {
			return fmt.Errorf("genesis operator %s listed twice", r.Operator.Hex())
		}
		if _, dup := seenKeys[r.SigningKey]; dup {
			return fmt.Errorf("genesis signing key %s listed twice", r.SigningKey.Hex())
		}
		seenOps[r.Operator] = struct{}{}
		seenKeys[r.SigningKey] = struct{}{}
	}
	if g.QuorumDenominator != nil && g.QuorumDenominator.ToBigInt().Sign() == 0 {
		return errors.New("genesis quorum denominator is zero")
	}
	return nil
}

// State builds the version-0 state described by g.
func (g *Genesis) State(at time.Time) *State {
	s := NewState()
	s.LastTriggerID = g.LastTriggerID
	s.ThresholdWeight = types.NewBigInt(g.ThresholdWeight.ToBigInt())
	for _, r := range g.Operators {
		s.Operators[r.Operator] = copyRecord(r)
	}
	for q, ops := range g.Quorums {
		s.Quorums[q] = append([]common.Address{}, ops...)
	}
	if g.QuorumNumerator != nil {
		s.QuorumNumerator = types.NewBigInt(g.QuorumNumerator.ToBigInt())
	}
	if g.QuorumDenominator != nil {
		s.QuorumDenominator = types.NewBigInt(g.QuorumDenominator.ToBigInt())
	}
	s.UpdatedAt = at.UTC()
	return s
}

// Bootstrap commits the genesis state if the store is empty and returns the
// state the handler will start from.
func Bootstrap(ctx context.Context, store Store, g *Genesis, logger logging.Logger) (*State, error) {
	current, err := store.Load(ctx)
	if err == nil {
		logger.Info("Resuming mirror state", "version", current.Version, "last_trigger_id", current.LastTriggerID)
		return current, nil
	}
	if !errors.Is(err, ErrNotInitialized) {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: no stored state and no genesis", ErrNotInitialized)
	}

	s := g.State(time.Now())
	if err := store.Commit(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to commit genesis: %w", err)
	}
	logger.Info("Seeded mirror state from genesis", "operators", len(s.Operators), "threshold", s.ThresholdWeight.String())
	return s, nil
}
