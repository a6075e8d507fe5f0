package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisClient "github.com/trigg3rX/triggerx-mirror-sync/pkg/client/redis"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

var (
	addrA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	addrB = common.HexToAddress("0x00000000000000000000000000000000000000a2")
)

func sample() *Snapshot {
	s := New(120, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s.Threshold = types.BigIntFromUint64(30)
	s.Operators[addrB] = Operator{SigningKey: addrA, Weight: types.BigIntFromUint64(20),
		Stakes: map[types.QuorumNumber]*types.BigInt{0: types.BigIntFromUint64(20)}}
	s.Operators[addrA] = Operator{SigningKey: addrB, Weight: types.BigIntFromUint64(10)}
	s.Quorums[0] = []common.Address{addrA, addrB}
	return s
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir(), logging.NewNoOpLogger())
	require.NoError(t, err)

	srv := miniredis.RunT(t)
	client, err := redisClient.NewRedisClient(logging.NewNoOpLogger(), redisClient.RedisConfig{URL: "redis://" + srv.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Store{"file": fs, "redis": NewRedisStore(client, logging.NewNoOpLogger())}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			m, err := store.Load(ctx, "base")
			require.NoError(t, err)
			assert.Equal(t, "base", m.Destination)
			assert.Nil(t, m.Snapshot)
			assert.Zero(t, m.LastTriggerID)

			m.LastTriggerID = 9
			m.LastEventBlock = 118
			m.Snapshot = sample()
			require.NoError(t, store.Save(ctx, m))

			got, err := store.Load(ctx, "base")
			require.NoError(t, err)
			assert.Equal(t, types.TriggerID(9), got.LastTriggerID)
			assert.Equal(t, uint64(118), got.LastEventBlock)
			require.NotNil(t, got.Snapshot)
			assert.Equal(t, uint64(120), got.Snapshot.BlockHeight)
			assert.Equal(t, "30", got.Snapshot.Threshold.String())
			assert.Equal(t, []common.Address{addrA, addrB}, got.Snapshot.Quorums[0])
			assert.Equal(t, "20", got.Snapshot.Operators[addrB].Stakes[0].String())

			other, err := store.Load(ctx, "optimism")
			require.NoError(t, err)
			assert.Nil(t, other.Snapshot)
		})
	}
}

func TestFileStoreRejectsPathNames(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), logging.NewNoOpLogger())
	require.NoError(t, err)

	_, err = fs.Load(context.Background(), "../escape")
	assert.Error(t, err)
	assert.Error(t, fs.Save(context.Background(), &Mirrored{Destination: ""}))
}

func TestSnapshotHelpers(t *testing.T) {
	s := sample()
	assert.Equal(t, []common.Address{addrA, addrB}, s.SortedOperators())

	recs := s.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, addrA, recs[0].Operator)
	assert.Equal(t, "10", recs[0].Weight.String())

	c := s.Clone()
	c.Quorums[0][0] = addrB
	c.Operators[addrB].Stakes[0].SetInt64(1)
	assert.Equal(t, addrA, s.Quorums[0][0])
	assert.Equal(t, "20", s.Operators[addrB].Stakes[0].String())

	assert.NotNil(t, OrEmpty(nil).Operators)
	assert.True(t, SameAddresses([]common.Address{addrA}, []common.Address{addrA}))
	assert.False(t, SameAddresses([]common.Address{addrA}, []common.Address{addrB}))
}
