package mirror

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/codec"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/verifier"
)

type fixture struct {
	keys    []*ecdsa.PrivateKey
	signer  *verifier.Signer
	genesis *Genesis
	store   *MemoryStore
	history *MemoryHistory
	handler *Handler
}

func operatorAddr(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x1000 + i)))
}

// newFixture seeds n operators of weight 10 each and a threshold of 10*n.
func newFixture(t *testing.T, n int, kind types.PayloadKind, mode ApplyMode) *fixture {
	t.Helper()
	f := &fixture{
		genesis: &Genesis{ThresholdWeight: types.BigIntFromUint64(uint64(10 * n))},
		store:   NewMemoryStore(),
		history: NewMemoryHistory(0),
	}
	for i := 0; i < n; i++ {
		k, err := crypto.GenerateKey()
		require.NoError(t, err)
		f.keys = append(f.keys, k)
		f.genesis.Operators = append(f.genesis.Operators, types.OperatorRecord{
			Operator:   operatorAddr(i),
			SigningKey: crypto.PubkeyToAddress(k.PublicKey),
			Weight:     types.BigIntFromUint64(10),
		})
	}
	signer, err := verifier.NewSigner(f.keys...)
	require.NoError(t, err)
	f.signer = signer

	_, err = Bootstrap(context.Background(), f.store, f.genesis, logging.NewNoOpLogger())
	require.NoError(t, err)

	h, err := NewHandler(HandlerConfig{Name: "test", Kind: kind, Mode: mode}, f.store, verifier.NewECDSAVerifier(), f.history, logging.NewNoOpLogger())
	require.NoError(t, err)
	f.handler = h
	return f
}

func (f *fixture) state(t *testing.T) *State {
	t.Helper()
	s, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return s
}

func (f *fixture) submit(t *testing.T, eventID byte, payload types.Payload) (*Receipt, error) {
	t.Helper()
	raw, err := codec.Encode(payload)
	require.NoError(t, err)
	env := types.Envelope{EventID: types.EventID{eventID}, Payload: raw}
	sig, err := f.signer.SignEnvelope(env, 100)
	require.NoError(t, err)
	return f.handler.HandleSignedEnvelope(context.Background(), env, sig)
}

func fullUpdate(trigger types.TriggerID, threshold int64, weights ...int64) types.FullSyncPayload {
	p := types.FullSyncPayload{TriggerID: trigger, ThresholdWeight: big.NewInt(threshold)}
	for i, w := range weights {
		p.Operators = append(p.Operators, operatorAddr(100+i))
		p.SigningKeys = append(p.SigningKeys, operatorAddr(200+i))
		p.Weights = append(p.Weights, big.NewInt(w))
	}
	return p
}

// abiPackFull lays out p the way the codec does, without its validation.
func abiPackFull(p types.FullSyncPayload) ([]byte, error) {
	tuple, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "triggerId", Type: "uint64"},
		{Name: "thresholdWeight", Type: "uint256"},
		{Name: "operators", Type: "address[]"},
		{Name: "signingKeyAddresses", Type: "address[]"},
		{Name: "weights", Type: "uint256[]"},
	})
	if err != nil {
		return nil, err
	}
	return abi.Arguments{{Type: tuple}}.Pack(struct {
		TriggerId           uint64
		ThresholdWeight     *big.Int
		Operators           []common.Address
		SigningKeyAddresses []common.Address
		Weights             []*big.Int
	}{p.TriggerID, p.ThresholdWeight, p.Operators, p.SigningKeys, p.Weights})
}

func TestHandlerAppliesFullSync(t *testing.T) {
	f := newFixture(t, 3, types.PayloadKindFull, ApplyReplace)

	receipt, err := f.submit(t, 1, fullUpdate(1, 55, 20, 40))
	require.NoError(t, err)
	assert.Equal(t, types.TriggerID(1), receipt.TriggerID)
	assert.Equal(t, uint64(1), receipt.Version)

	s := f.state(t)
	assert.Equal(t, types.TriggerID(1), s.LastTrigger())
	assert.Equal(t, big.NewInt(55), s.Threshold())
	assert.Len(t, s.OperatorSet(), 2)
	assert.Equal(t, big.NewInt(60), s.TotalWeight())
	assert.Equal(t, big.NewInt(40), s.Weight(operatorAddr(101)))
	key, ok := s.SigningKey(operatorAddr(100))
	assert.True(t, ok)
	assert.Equal(t, operatorAddr(200), key)
	assert.Equal(t, s.Digest().Hex(), receipt.StateDigest)
}

func TestHandlerTriggerSequence(t *testing.T) {
	f := newFixture(t, 2, types.PayloadKindFull, ApplyReplace)

	// The old set keeps verifying every submission: signing keys of the
	// fixture stay registered because each update re-lists them.
	update := func(trigger types.TriggerID) types.FullSyncPayload {
		p := types.FullSyncPayload{TriggerID: trigger, ThresholdWeight: big.NewInt(20)}
		for _, r := range f.genesis.Operators {
			p.Operators = append(p.Operators, r.Operator)
			p.SigningKeys = append(p.SigningKeys, r.SigningKey)
			p.Weights = append(p.Weights, big.NewInt(10+int64(trigger)))
		}
		return p
	}

	steps := []struct {
		trigger types.TriggerID
		wantErr error
		last    types.TriggerID
	}{
		{5, nil, 5},
		{5, ErrStaleOrDuplicateTrigger, 5},
		{4, ErrStaleOrDuplicateTrigger, 5},
		{6, nil, 6},
	}
	for i, step := range steps {
		_, err := f.submit(t, byte(i+1), update(step.trigger))
		if step.wantErr != nil {
			assert.ErrorIs(t, err, step.wantErr, "step %d", i)
		} else {
			assert.NoError(t, err, "step %d", i)
		}
		assert.Equal(t, step.last, f.state(t).LastTrigger(), "step %d", i)
	}

	rows, err := f.handler.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, OutcomeAccepted, rows[0].Outcome)
	assert.Equal(t, KindStaleOrDuplicateTrigger, rows[1].ErrorKind)
	assert.Equal(t, KindStaleOrDuplicateTrigger, rows[2].ErrorKind)
	assert.Equal(t, OutcomeAccepted, rows[3].Outcome)
}

func TestHandlerRejectionsLeaveStateUntouched(t *testing.T) {
	f := newFixture(t, 3, types.PayloadKindFull, ApplyReplace)
	before := f.state(t)

	t.Run("decode", func(t *testing.T) {
		env := types.Envelope{EventID: types.EventID{9}, Payload: []byte{1, 2, 3}}
		sig, err := f.signer.SignEnvelope(env, 1)
		require.NoError(t, err)
		_, err = f.handler.HandleSignedEnvelope(context.Background(), env, sig)
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("insufficient weight", func(t *testing.T) {
		raw, err := codec.EncodeFull(fullUpdate(1, 10, 5))
		require.NoError(t, err)
		env := types.Envelope{EventID: types.EventID{10}, Payload: raw}
		partial, err := verifier.NewSigner(f.keys[0], f.keys[1])
		require.NoError(t, err)
		sig, err := partial.SignEnvelope(env, 1)
		require.NoError(t, err)
		_, err = f.handler.HandleSignedEnvelope(context.Background(), env, sig)
		assert.ErrorIs(t, err, ErrInsufficientWeight)
	})

	t.Run("invalid signature", func(t *testing.T) {
		raw, err := codec.EncodeFull(fullUpdate(1, 10, 5))
		require.NoError(t, err)
		env := types.Envelope{EventID: types.EventID{11}, Payload: raw}
		sig, err := f.signer.SignEnvelope(env, 1)
		require.NoError(t, err)
		env.EventID[1] = 0xff
		_, err = f.handler.HandleSignedEnvelope(context.Background(), env, sig)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	after := f.state(t)
	assert.Equal(t, before.Digest(), after.Digest())
	assert.Equal(t, before.Version, after.Version)
}

func TestHandlerIdempotentRejection(t *testing.T) {
	f := newFixture(t, 2, types.PayloadKindFull, ApplyReplace)
	_, err := f.submit(t, 1, fullUpdate(3, 1, 1))
	require.NoError(t, err)
	snapshot := f.state(t)

	for i := 0; i < 3; i++ {
		_, err := f.submit(t, byte(2+i), fullUpdate(3, 1, 1))
		assert.ErrorIs(t, err, ErrStaleOrDuplicateTrigger)
	}
	assert.Equal(t, snapshot.Version, f.state(t).Version)
}

type failingStore struct {
	*MemoryStore
	err error
}

func (s failingStore) Commit(ctx context.Context, next *State) error {
	return s.err
}

func TestHandlerCommitFailureIsAtomic(t *testing.T) {
	f := newFixture(t, 2, types.PayloadKindFull, ApplyReplace)
	before := f.state(t)

	boom := errors.New("disk full")
	h, err := NewHandler(HandlerConfig{Name: "test", Kind: types.PayloadKindFull}, failingStore{f.store, boom},
		verifier.NewECDSAVerifier(), f.history, logging.NewNoOpLogger())
	require.NoError(t, err)
	f.handler = h

	_, err = f.submit(t, 1, fullUpdate(1, 1, 1))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before.Digest(), f.state(t).Digest())
	assert.Equal(t, KindInternal, ErrorKind(err))
}

func TestHandlerUpsertMode(t *testing.T) {
	f := newFixture(t, 2, types.PayloadKindFull, ApplyUpsert)

	register := types.FullSyncPayload{
		TriggerID:       1,
		ThresholdWeight: big.NewInt(20),
		Operators:       []common.Address{operatorAddr(50)},
		SigningKeys:     []common.Address{operatorAddr(51)},
		Weights:         []*big.Int{big.NewInt(7)},
	}
	_, err := f.submit(t, 1, register)
	require.NoError(t, err)
	assert.Len(t, f.state(t).Operators, 3)

	deregister := types.FullSyncPayload{
		TriggerID:       2,
		ThresholdWeight: big.NewInt(20),
		Operators:       []common.Address{operatorAddr(50)},
		SigningKeys:     []common.Address{{}},
		Weights:         []*big.Int{big.NewInt(0)},
	}
	_, err = f.submit(t, 2, deregister)
	require.NoError(t, err)

	s := f.state(t)
	assert.Len(t, s.Operators, 2)
	_, ok := s.SigningKey(operatorAddr(50))
	assert.False(t, ok)
}

func TestHandlerRejectsSharedSigningKey(t *testing.T) {
	f := newFixture(t, 1, types.PayloadKindFull, ApplyReplace)
	heavy, err := crypto.GenerateKey()
	require.NoError(t, err)
	shared := crypto.PubkeyToAddress(heavy.PublicKey)

	// Hand-packed so the codec's encode-side check is bypassed.
	raw, err := abiPackFull(types.FullSyncPayload{
		TriggerID:       1,
		ThresholdWeight: big.NewInt(50),
		Operators:       []common.Address{operatorAddr(100), operatorAddr(101)},
		SigningKeys:     []common.Address{shared, shared},
		Weights:         []*big.Int{big.NewInt(1), big.NewInt(100)},
	})
	require.NoError(t, err)
	env := types.Envelope{EventID: types.EventID{1}, Payload: raw}
	sig, err := f.signer.SignEnvelope(env, 100)
	require.NoError(t, err)

	before := f.state(t).Digest()
	_, err = f.handler.HandleSignedEnvelope(context.Background(), env, sig)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, before, f.state(t).Digest())
}

func TestHandlerUpsertRejectsKeyHeldByAnotherOperator(t *testing.T) {
	f := newFixture(t, 2, types.PayloadKindFull, ApplyUpsert)
	taken := f.genesis.Operators[0].SigningKey

	steal := types.FullSyncPayload{
		TriggerID:       1,
		ThresholdWeight: big.NewInt(20),
		Operators:       []common.Address{operatorAddr(50)},
		SigningKeys:     []common.Address{taken},
		Weights:         []*big.Int{big.NewInt(100)},
	}
	before := f.state(t)
	_, err := f.submit(t, 1, steal)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, before.Digest(), f.state(t).Digest())
	assert.Equal(t, before.Version, f.state(t).Version)

	// Moving the key is fine once its old owner is removed in the same batch.
	move := types.FullSyncPayload{
		TriggerID:       1,
		ThresholdWeight: big.NewInt(20),
		Operators:       []common.Address{f.genesis.Operators[0].Operator, operatorAddr(50)},
		SigningKeys:     []common.Address{{}, taken},
		Weights:         []*big.Int{big.NewInt(0), big.NewInt(10)},
	}
	_, err = f.submit(t, 2, move)
	require.NoError(t, err)
	op, ok := f.state(t).OperatorForSigningKey(taken)
	require.True(t, ok)
	assert.Equal(t, operatorAddr(50), op)
}

func TestHandlerPerQuorumPartialUpdate(t *testing.T) {
	f := newFixture(t, 2, types.PayloadKindPerQuorum, ApplyReplace)

	first := types.PerQuorumPayload{
		OperatorsPerQuorum: [][]common.Address{{operatorAddr(1), operatorAddr(2)}, {operatorAddr(3)}},
		QuorumNumbers:      []byte{0, 1},
	}
	_, err := f.submit(t, 1, first)
	require.NoError(t, err)

	// Only quorum 1 changes; quorum 0 must survive as is.
	second := types.PerQuorumPayload{
		OperatorsPerQuorum: [][]common.Address{{operatorAddr(4), operatorAddr(5)}},
		QuorumNumbers:      []byte{1},
	}
	_, err = f.submit(t, 2, second)
	require.NoError(t, err)

	s := f.state(t)
	assert.Equal(t, []common.Address{operatorAddr(1), operatorAddr(2)}, s.QuorumOperators(0))
	assert.Equal(t, []common.Address{operatorAddr(4), operatorAddr(5)}, s.QuorumOperators(1))
	assert.Empty(t, s.QuorumOperators(7))

	// Replaying an applied envelope id is refused.
	_, err = f.submit(t, 2, second)
	assert.ErrorIs(t, err, ErrStaleOrDuplicateTrigger)
}

func TestHandlerQuorumThreshold(t *testing.T) {
	f := newFixture(t, 1, types.PayloadKindQuorumThreshold, ApplyReplace)

	_, err := f.submit(t, 1, types.QuorumThresholdPayload{TriggerID: 1, Numerator: big.NewInt(2), Denominator: big.NewInt(3)})
	require.NoError(t, err)
	num, den := f.state(t).QuorumFraction()
	assert.Equal(t, big.NewInt(2), num)
	assert.Equal(t, big.NewInt(3), den)

	_, err = f.submit(t, 2, types.QuorumThresholdPayload{TriggerID: 1, Numerator: big.NewInt(1), Denominator: big.NewInt(3)})
	assert.ErrorIs(t, err, ErrStaleOrDuplicateTrigger)
}

func TestHandlerRejectsWrongShape(t *testing.T) {
	f := newFixture(t, 1, types.PayloadKindFull, ApplyReplace)
	_, err := f.submit(t, 1, types.QuorumThresholdPayload{TriggerID: 1, Numerator: big.NewInt(1), Denominator: big.NewInt(1)})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestHandleEncoded(t *testing.T) {
	f := newFixture(t, 1, types.PayloadKindFull, ApplyReplace)

	raw, err := codec.EncodeFull(fullUpdate(1, 1, 1))
	require.NoError(t, err)
	env := types.Envelope{EventID: types.EventID{1}, Payload: raw}
	sig, err := f.signer.SignEnvelope(env, 1)
	require.NoError(t, err)

	envBytes, err := codec.EncodeEnvelope(env)
	require.NoError(t, err)
	sigBytes, err := codec.EncodeSignatureData(sig)
	require.NoError(t, err)

	_, err = f.handler.HandleEncoded(context.Background(), envBytes, []byte{0x01})
	assert.ErrorIs(t, err, ErrDecode)

	receipt, err := f.handler.HandleEncoded(context.Background(), envBytes, sigBytes)
	require.NoError(t, err)
	assert.Equal(t, types.TriggerID(1), receipt.TriggerID)
}

func TestNewHandlerValidation(t *testing.T) {
	log := logging.NewNoOpLogger()
	v := verifier.NewECDSAVerifier()

	_, err := NewHandler(HandlerConfig{Kind: types.PayloadKindFull}, NewMemoryStore(), v, nil, log)
	assert.Error(t, err)
	_, err = NewHandler(HandlerConfig{Name: "x", Kind: "nope"}, NewMemoryStore(), v, nil, log)
	assert.Error(t, err)
	_, err = NewHandler(HandlerConfig{Name: "x", Kind: types.PayloadKindPerQuorum, Mode: ApplyUpsert}, NewMemoryStore(), v, nil, log)
	assert.Error(t, err)

	mode, err := ParseApplyMode("UPSERT")
	require.NoError(t, err)
	assert.Equal(t, ApplyUpsert, mode)
	_, err = ParseApplyMode("merge")
	assert.Error(t, err)
}
