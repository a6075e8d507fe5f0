package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
)

const yamlGenesis = `
last_trigger_id: 3
threshold_weight: "2000"
operators:
  - operator: "0x00000000000000000000000000000000000000a1"
    signing_key: "0x00000000000000000000000000000000000000b1"
    weight: "1500"
  - operator: "0x00000000000000000000000000000000000000a2"
    signing_key: "0x00000000000000000000000000000000000000b2"
    weight: 700
quorums:
  0:
    - "0x00000000000000000000000000000000000000a1"
    - "0x00000000000000000000000000000000000000a2"
`

const jsonGenesis = `{
  "threshold_weight": "10",
  "operators": [
    {"operator": "0x00000000000000000000000000000000000000a1", "signing_key": "0x00000000000000000000000000000000000000b1", "weight": "10"}
  ],
  "quorum_numerator": "2",
  "quorum_denominator": "3"
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadGenesisYAML(t *testing.T) {
	g, err := LoadGenesis(writeFile(t, "genesis.yaml", yamlGenesis))
	require.NoError(t, err)

	s := g.State(testTime)
	assert.Equal(t, uint64(3), s.LastTriggerID)
	assert.Equal(t, "2000", s.ThresholdWeight.String())
	assert.Equal(t, "2200", s.TotalWeight().String())
	assert.Len(t, s.QuorumOperators(0), 2)
	key, ok := s.SigningKey(common.HexToAddress("0xa2"))
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0xb2"), key)
}

func TestLoadGenesisJSON(t *testing.T) {
	g, err := LoadGenesis(writeFile(t, "genesis.json", jsonGenesis))
	require.NoError(t, err)

	num, den := g.State(testTime).QuorumFraction()
	assert.Equal(t, "2", num.String())
	assert.Equal(t, "3", den.String())
}

func TestLoadGenesisErrors(t *testing.T) {
	_, err := LoadGenesis(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadGenesis(writeFile(t, "genesis.toml", "x = 1"))
	assert.Error(t, err)

	dup := `
threshold_weight: "1"
operators:
  - {operator: "0x00000000000000000000000000000000000000a1", signing_key: "0x00000000000000000000000000000000000000b1", weight: "1"}
  - {operator: "0x00000000000000000000000000000000000000a1", signing_key: "0x00000000000000000000000000000000000000b2", weight: "1"}
`
	_, err = LoadGenesis(writeFile(t, "dup.yaml", dup))
	assert.Error(t, err)

	zeroKey := `{"operators": [{"operator": "0x00000000000000000000000000000000000000a1", "signing_key": "0x0000000000000000000000000000000000000000", "weight": "1"}]}`
	_, err = LoadGenesis(writeFile(t, "zero.json", zeroKey))
	assert.Error(t, err)
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := Bootstrap(ctx, store, nil, logging.NewNoOpLogger())
	assert.ErrorIs(t, err, ErrNotInitialized)

	g, err := LoadGenesis(writeFile(t, "genesis.yaml", yamlGenesis))
	require.NoError(t, err)
	seeded, err := Bootstrap(ctx, store, g, logging.NewNoOpLogger())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seeded.Version)

	// An existing state wins over the genesis file.
	require.NoError(t, store.Commit(ctx, ReplaceThreshold(seeded, seeded.Threshold(), testTime)))
	resumed, err := Bootstrap(ctx, store, g, logging.NewNoOpLogger())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), resumed.Version)
}
