package chainio

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	sdkavsregistry "github.com/Layr-Labs/eigensdk-go/chainio/clients/avsregistry"
	"github.com/Layr-Labs/eigensdk-go/chainio/clients/eth"
	sdktypes "github.com/Layr-Labs/eigensdk-go/types"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
)

// Addresses of the source-chain contracts. A zero StakeRegistry is resolved
// through the service manager.
type Addresses struct {
	RegistryCoordinator    common.Address
	OperatorStateRetriever common.Address
	ServiceManager         common.Address
	StakeRegistry          common.Address
}

// ChainBackend is the client the reader and the eigensdk registry reader
// share; *ethclient.Client satisfies it.
type ChainBackend interface {
	eth.HttpBackend
}

// QuorumOperator is one entry of OperatorStateRetriever.getOperatorState.
type QuorumOperator struct {
	Operator   common.Address
	OperatorID [32]byte
	Stake      *big.Int
}

type RegistrationKind string

const (
	Registered   RegistrationKind = "registered"
	Deregistered RegistrationKind = "deregistered"
)

// RegistrationEvent is a decoded stake registry OperatorRegistered or
// OperatorDeregistered log.
type RegistrationEvent struct {
	Kind        RegistrationKind
	Operator    common.Address
	AVS         common.Address
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// AvsReader reads operator, stake and quorum state from the source chain.
// Registry coordinator and operator state retriever reads go through the
// embedded eigensdk ChainReader; the ECDSA stake registry, the service
// manager and the quorum bitmap are bound from ABI fragments.
type AvsReader struct {
	sdkavsregistry.ChainReader

	backend   ChainBackend
	addresses Addresses

	registryCoordinator *bind.BoundContract
	stakeRegistry       *bind.BoundContract
	serviceManager      *bind.BoundContract

	logger logging.Logger
}

// BuildAvsReader dials rpcURL and binds the source contracts.
func BuildAvsReader(ctx context.Context, rpcURL string, addrs Addresses, logger logging.Logger) (*AvsReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial source chain: %w", err)
	}
	return NewAvsReader(ctx, client, addrs, logger)
}

func NewAvsReader(ctx context.Context, backend ChainBackend, addrs Addresses, logger logging.Logger) (*AvsReader, error) {
	if addrs.RegistryCoordinator == (common.Address{}) {
		return nil, errors.New("registry coordinator address is required")
	}
	if addrs.OperatorStateRetriever == (common.Address{}) {
		return nil, errors.New("operator state retriever address is required")
	}

	avsRegistryReader, err := sdkavsregistry.BuildAvsRegistryChainReader(
		addrs.RegistryCoordinator, addrs.OperatorStateRetriever, backend, newSDKLogger(logger))
	if err != nil {
		logger.Error("Failed to build avs registry reader", "error", err)
		return nil, err
	}

	r := &AvsReader{
		ChainReader:         *avsRegistryReader,
		backend:             backend,
		registryCoordinator: bind.NewBoundContract(addrs.RegistryCoordinator, RegistryCoordinatorABI, backend, backend, backend),
		logger:              logger,
	}

	if addrs.ServiceManager == (common.Address{}) {
		sm, err := callOne[common.Address](ctx, r.registryCoordinator, "serviceManager")
		if err != nil {
			logger.Error("Failed to fetch service manager address", "error", err)
			return nil, err
		}
		addrs.ServiceManager = sm
	}
	r.serviceManager = bind.NewBoundContract(addrs.ServiceManager, ServiceManagerABI, backend, backend, backend)

	if addrs.StakeRegistry == (common.Address{}) {
		sr, err := callOne[common.Address](ctx, r.serviceManager, "stakeRegistry")
		if err != nil {
			logger.Error("Failed to fetch stake registry address", "error", err)
			return nil, err
		}
		addrs.StakeRegistry = sr
	}
	r.stakeRegistry = bind.NewBoundContract(addrs.StakeRegistry, StakeRegistryABI, backend, backend, backend)
	r.addresses = addrs

	logger.Info("Bound source contracts",
		"registry_coordinator", addrs.RegistryCoordinator.Hex(),
		"service_manager", addrs.ServiceManager.Hex(),
		"stake_registry", addrs.StakeRegistry.Hex())
	return r, nil
}

func (r *AvsReader) Addresses() Addresses {
	return r.addresses
}

func (r *AvsReader) BlockNumber(ctx context.Context) (uint64, error) {
	return r.backend.BlockNumber(ctx)
}

func (r *AvsReader) QuorumCount(ctx context.Context) (uint8, error) {
	count, err := r.GetQuorumCount(callOpts(ctx))
	if err != nil {
		return 0, fmt.Errorf("quorumCount: %w", err)
	}
	return count, nil
}

// OperatorState returns the operators of quorum q with their stakes at block.
func (r *AvsReader) OperatorState(ctx context.Context, q uint8, block uint32) ([]QuorumOperator, error) {
	raw, err := r.GetOperatorsStakeInQuorumsAtBlock(callOpts(ctx), sdktypes.QuorumNums{sdktypes.QuorumNum(q)}, block)
	if err != nil {
		return nil, fmt.Errorf("getOperatorState: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]QuorumOperator, len(raw[0]))
	for i, e := range raw[0] {
		out[i] = QuorumOperator{Operator: e.Operator, OperatorID: e.OperatorId, Stake: e.Stake}
	}
	return out, nil
}

// OperatorsInQuorum lists quorum q's operators at the pinned block, or the
// head when none is pinned.
func (r *AvsReader) OperatorsInQuorum(ctx context.Context, q uint8) ([]common.Address, error) {
	state, err := r.currentOperatorState(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]common.Address, len(state))
	for i, o := range state {
		out[i] = o.Operator
	}
	return out, nil
}

// CurrentStakes returns the quorum stake of each of ops. Operators outside
// the quorum get zero.
func (r *AvsReader) CurrentStakes(ctx context.Context, ops []common.Address, q uint8) (map[common.Address]*big.Int, error) {
	state, err := r.currentOperatorState(ctx, q)
	if err != nil {
		return nil, err
	}
	byOp := make(map[common.Address]*big.Int, len(state))
	for _, o := range state {
		byOp[o.Operator] = o.Stake
	}
	out := make(map[common.Address]*big.Int, len(ops))
	for _, op := range ops {
		if s, ok := byOp[op]; ok && s != nil {
			out[op] = new(big.Int).Set(s)
		} else {
			out[op] = new(big.Int)
		}
	}
	return out, nil
}

func (r *AvsReader) currentOperatorState(ctx context.Context, q uint8) ([]QuorumOperator, error) {
	head, ok := PinnedBlock(ctx)
	if !ok {
		var err error
		if head, err = r.backend.BlockNumber(ctx); err != nil {
			return nil, err
		}
	}
	if head > uint64(^uint32(0)) {
		return nil, fmt.Errorf("block %d does not fit uint32", head)
	}
	return r.OperatorState(ctx, q, uint32(head))
}

func (r *AvsReader) OperatorID(ctx context.Context, op common.Address) ([32]byte, error) {
	id, err := r.GetOperatorId(callOpts(ctx), op)
	if err != nil {
		return [32]byte{}, fmt.Errorf("getOperatorId: %w", err)
	}
	return id, nil
}

func (r *AvsReader) QuorumBitmap(ctx context.Context, operatorID [32]byte) (*big.Int, error) {
	return callOne[*big.Int](ctx, r.registryCoordinator, "getCurrentQuorumBitmap", operatorID)
}

func (r *AvsReader) IsRegistered(ctx context.Context, op common.Address) (bool, error) {
	registered, err := r.IsOperatorRegistered(callOpts(ctx), op)
	if err != nil {
		return false, fmt.Errorf("getOperatorStatus: %w", err)
	}
	return registered, nil
}

func (r *AvsReader) SigningKey(ctx context.Context, op common.Address) (common.Address, error) {
	return callOne[common.Address](ctx, r.stakeRegistry, "getLatestOperatorSigningKey", op)
}

func (r *AvsReader) OperatorWeight(ctx context.Context, op common.Address) (*big.Int, error) {
	return callOne[*big.Int](ctx, r.stakeRegistry, "getOperatorWeight", op)
}

func (r *AvsReader) ThresholdWeight(ctx context.Context) (*big.Int, error) {
	return callOne[*big.Int](ctx, r.stakeRegistry, "getLastCheckpointThresholdWeight")
}

func (r *AvsReader) QuorumFraction(ctx context.Context) (*big.Int, *big.Int, error) {
	var out []interface{}
	if err := r.serviceManager.Call(callOpts(ctx), &out, "getQuorumThreshold"); err != nil {
		return nil, nil, err
	}
	if len(out) != 2 {
		return nil, nil, fmt.Errorf("getQuorumThreshold returned %d values", len(out))
	}
	num := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	den := *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	return num, den, nil
}

// FilterRegistrationEvents returns stake registry registrations and
// deregistrations in [from, to], in log order.
func (r *AvsReader) FilterRegistrationEvents(ctx context.Context, from, to uint64) ([]RegistrationEvent, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{r.addresses.StakeRegistry},
		Topics: [][]common.Hash{{
			StakeRegistryABI.Events["OperatorRegistered"].ID,
			StakeRegistryABI.Events["OperatorDeregistered"].ID,
		}},
	}
	logs, err := r.backend.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	events := make([]RegistrationEvent, 0, len(logs))
	for _, l := range logs {
		ev, err := ParseRegistrationLog(l)
		if err != nil {
			r.logger.Warn("Skipping undecodable stake registry log", "tx", l.TxHash.Hex(), "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// ParseRegistrationLog decodes an OperatorRegistered or OperatorDeregistered
// log. Both events index operator and avs.
func ParseRegistrationLog(l gethtypes.Log) (RegistrationEvent, error) {
	if len(l.Topics) != 3 {
		return RegistrationEvent{}, fmt.Errorf("expected 3 topics, got %d", len(l.Topics))
	}
	ev := RegistrationEvent{
		Operator:    common.BytesToAddress(l.Topics[1].Bytes()),
		AVS:         common.BytesToAddress(l.Topics[2].Bytes()),
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		LogIndex:    l.Index,
	}
	switch l.Topics[0] {
	case StakeRegistryABI.Events["OperatorRegistered"].ID:
		ev.Kind = Registered
	case StakeRegistryABI.Events["OperatorDeregistered"].ID:
		ev.Kind = Deregistered
	default:
		return RegistrationEvent{}, fmt.Errorf("unknown event topic %s", l.Topics[0].Hex())
	}
	return ev, nil
}

type pinnedBlockKey struct{}

// AtBlock pins every contract read made with the returned context to block,
// so the reads of one snapshot see a single chain state.
func AtBlock(ctx context.Context, block uint64) context.Context {
	return context.WithValue(ctx, pinnedBlockKey{}, block)
}

func PinnedBlock(ctx context.Context) (uint64, bool) {
	block, ok := ctx.Value(pinnedBlockKey{}).(uint64)
	return block, ok
}

func callOpts(ctx context.Context) *bind.CallOpts {
	opts := &bind.CallOpts{Context: ctx}
	if block, ok := PinnedBlock(ctx); ok {
		opts.BlockNumber = new(big.Int).SetUint64(block)
	}
	return opts
}

func callOne[T any](ctx context.Context, c *bind.BoundContract, method string, args ...interface{}) (T, error) {
	var zero T
	var out []interface{}
	if err := c.Call(callOpts(ctx), &out, method, args...); err != nil {
		return zero, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) == 0 {
		return zero, fmt.Errorf("%s: empty result", method)
	}
	return *abi.ConvertType(out[0], new(T)).(*T), nil
}
