package syncer

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/chainio"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/retry"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockSource) QuorumCount(ctx context.Context) (uint8, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint8), args.Error(1)
}

func (m *mockSource) OperatorsInQuorum(ctx context.Context, q uint8) ([]common.Address, error) {
	args := m.Called(ctx, q)
	ops, _ := args.Get(0).([]common.Address)
	return ops, args.Error(1)
}

func (m *mockSource) CurrentStakes(ctx context.Context, ops []common.Address, q uint8) (map[common.Address]*big.Int, error) {
	args := m.Called(ctx, ops, q)
	stakes, _ := args.Get(0).(map[common.Address]*big.Int)
	return stakes, args.Error(1)
}

func (m *mockSource) OperatorID(ctx context.Context, op common.Address) ([32]byte, error) {
	args := m.Called(ctx, op)
	return args.Get(0).([32]byte), args.Error(1)
}

func (m *mockSource) QuorumBitmap(ctx context.Context, id [32]byte) (*big.Int, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*big.Int)
	return b, args.Error(1)
}

func (m *mockSource) IsRegistered(ctx context.Context, op common.Address) (bool, error) {
	args := m.Called(ctx, op)
	return args.Bool(0), args.Error(1)
}

func (m *mockSource) SigningKey(ctx context.Context, op common.Address) (common.Address, error) {
	args := m.Called(ctx, op)
	return args.Get(0).(common.Address), args.Error(1)
}

func (m *mockSource) OperatorWeight(ctx context.Context, op common.Address) (*big.Int, error) {
	args := m.Called(ctx, op)
	w, _ := args.Get(0).(*big.Int)
	return w, args.Error(1)
}

func (m *mockSource) ThresholdWeight(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	w, _ := args.Get(0).(*big.Int)
	return w, args.Error(1)
}

func (m *mockSource) QuorumFraction(ctx context.Context) (*big.Int, *big.Int, error) {
	args := m.Called(ctx)
	num, _ := args.Get(0).(*big.Int)
	den, _ := args.Get(1).(*big.Int)
	return num, den, args.Error(2)
}

func (m *mockSource) FilterRegistrationEvents(ctx context.Context, from, to uint64) ([]chainio.RegistrationEvent, error) {
	args := m.Called(ctx, from, to)
	evs, _ := args.Get(0).([]chainio.RegistrationEvent)
	return evs, args.Error(1)
}

// world is a source chain state the mock answers from.
type world struct {
	head      uint64
	quorums   map[uint8][]common.Address
	stakes    map[common.Address]int64
	keys      map[common.Address]common.Address
	weights   map[common.Address]int64
	bitmaps   map[common.Address]int64
	threshold int64
	num, den  int64
}

func addr(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0xa000 + i)))
}

func opID(op common.Address) [32]byte {
	var id [32]byte
	copy(id[:], op.Bytes())
	return id
}

func newMockSource(w world) *mockSource {
	m := new(mockSource)
	m.expect(w)
	return m
}

// expect adds optional expectations answering from w. Expectations set
// earlier on m take precedence.
func (m *mockSource) expect(w world) {
	m.On("BlockNumber", mock.Anything).Return(w.head, nil).Maybe()
	m.On("QuorumCount", mock.Anything).Return(uint8(len(w.quorums)), nil).Maybe()
	for q, ops := range w.quorums {
		m.On("OperatorsInQuorum", mock.Anything, q).Return(ops, nil).Maybe()
		stakes := map[common.Address]*big.Int{}
		for _, op := range ops {
			stakes[op] = big.NewInt(w.stakes[op])
		}
		m.On("CurrentStakes", mock.Anything, mock.Anything, q).Return(stakes, nil).Maybe()
	}
	for op, key := range w.keys {
		m.On("IsRegistered", mock.Anything, op).Return(true, nil).Maybe()
		m.On("SigningKey", mock.Anything, op).Return(key, nil).Maybe()
		m.On("OperatorWeight", mock.Anything, op).Return(big.NewInt(w.weights[op]), nil).Maybe()
	}
	for op, bitmap := range w.bitmaps {
		m.On("OperatorID", mock.Anything, op).Return(opID(op), nil).Maybe()
		m.On("QuorumBitmap", mock.Anything, opID(op)).Return(big.NewInt(bitmap), nil).Maybe()
	}
	m.On("ThresholdWeight", mock.Anything).Return(big.NewInt(w.threshold), nil).Maybe()
	m.On("QuorumFraction", mock.Anything).Return(big.NewInt(w.num), big.NewInt(w.den), nil).Maybe()
}

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 1,
	}
}
