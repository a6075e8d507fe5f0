package syncer

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trigg3rX/triggerx-mirror-sync/internal/mirror"
	"github.com/trigg3rX/triggerx-mirror-sync/internal/mirror/api"
	"github.com/trigg3rX/triggerx-mirror-sync/internal/syncer/snapshot"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/chainio"
	pkghttp "github.com/trigg3rX/triggerx-mirror-sync/pkg/http"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/verifier"
)

// mirrorNode is a real mirror handler served over httptest.
type mirrorNode struct {
	url     string
	handler *mirror.Handler
}

func newMirrorNode(t *testing.T, cfg mirror.HandlerConfig, g *mirror.Genesis) *mirrorNode {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := mirror.NewMemoryStore()
	_, err := mirror.Bootstrap(context.Background(), store, g, logging.NewNoOpLogger())
	require.NoError(t, err)
	h, err := mirror.NewHandler(cfg, store, verifier.NewECDSAVerifier(), mirror.NewMemoryHistory(0), logging.NewNoOpLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewServer(api.Config{Port: "0"}, api.Dependencies{Logger: logging.NewNoOpLogger(), Mirror: h}).Handler())
	t.Cleanup(srv.Close)
	return &mirrorNode{url: srv.URL, handler: h}
}

func (n *mirrorNode) state(t *testing.T) *mirror.State {
	t.Helper()
	s, err := n.handler.State(context.Background())
	require.NoError(t, err)
	return s
}

func newTestClient(t *testing.T) *pkghttp.Client {
	t.Helper()
	c, err := pkghttp.NewClient(&pkghttp.Config{
		Retry:           fastRetry(),
		Timeout:         5 * time.Second,
		IdleConnTimeout: 5 * time.Second,
		MaxResponseSize: 4096,
	}, logging.NewNoOpLogger())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func newTestSyncer(t *testing.T, src SourceReader, signer EnvelopeSigner, store snapshot.Store, dest Destination, client DestinationClient) *Syncer {
	t.Helper()
	reader := NewReader(src, fastRetry(), logging.NewNoOpLogger())
	target := Target{
		Detector: NewDetector(dest, reader, store, logging.NewNoOpLogger()),
		Client:   client,
	}
	s, err := New(Config{}, reader, signer, []Target{target}, logging.NewNoOpLogger())
	require.NoError(t, err)
	return s
}

type testSigner struct {
	signer *verifier.Signer
	key    common.Address
}

func newTestSigner(t *testing.T) testSigner {
	t.Helper()
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := verifier.NewSigner(pk)
	require.NoError(t, err)
	return testSigner{signer: s, key: crypto.PubkeyToAddress(pk.PublicKey)}
}

func singleOperatorWorld(key common.Address, weight int64) world {
	op := addr(1)
	return world{
		head:      100,
		quorums:   map[uint8][]common.Address{0: {op}},
		stakes:    map[common.Address]int64{op: weight},
		keys:      map[common.Address]common.Address{op: key},
		weights:   map[common.Address]int64{op: weight},
		threshold: 10,
	}
}

func genesisFor(key common.Address, threshold uint64, lastTrigger types.TriggerID) *mirror.Genesis {
	return &mirror.Genesis{
		LastTriggerID:   lastTrigger,
		ThresholdWeight: types.BigIntFromUint64(threshold),
		Operators: []types.OperatorRecord{{
			Operator:   addr(1),
			SigningKey: key,
			Weight:     types.BigIntFromUint64(10),
		}},
	}
}

func TestSyncerMirrorsFullSetEndToEnd(t *testing.T) {
	ctx := context.Background()
	ts := newTestSigner(t)
	node := newMirrorNode(t, mirror.HandlerConfig{Name: "base", Kind: types.PayloadKindFull}, genesisFor(ts.key, 10, 0))
	dest := Destination{Name: "base", URL: node.url, Kind: types.PayloadKindFull}
	client := NewDestinationClient(dest, newTestClient(t), logging.NewNoOpLogger())
	store := newMemStore()

	s := newTestSyncer(t, newMockSource(singleOperatorWorld(ts.key, 10)), ts.signer, store, dest, client)
	require.NoError(t, s.RunCycle(ctx, "manual"))
	state := node.state(t)
	assert.Equal(t, types.TriggerID(1), state.LastTriggerID)
	assert.Equal(t, uint64(1), state.Version)

	// Nothing moved on the source.
	require.NoError(t, s.RunCycle(ctx, "manual"))
	assert.Equal(t, uint64(1), node.state(t).Version)

	s = newTestSyncer(t, newMockSource(singleOperatorWorld(ts.key, 20)), ts.signer, store, dest, client)
	require.NoError(t, s.RunCycle(ctx, "block"))
	state = node.state(t)
	assert.Equal(t, types.TriggerID(2), state.LastTriggerID)
	assert.Equal(t, "20", state.Operators[addr(1)].Weight.String())

	row, err := store.Load(ctx, "base")
	require.NoError(t, err)
	assert.Equal(t, types.TriggerID(2), row.LastTriggerID)
}

func TestSyncerResyncsAfterStaleRejection(t *testing.T) {
	ctx := context.Background()
	ts := newTestSigner(t)
	node := newMirrorNode(t, mirror.HandlerConfig{Name: "base", Kind: types.PayloadKindFull}, genesisFor(ts.key, 10, 7))
	dest := Destination{Name: "base", URL: node.url, Kind: types.PayloadKindFull}
	client := NewDestinationClient(dest, newTestClient(t), logging.NewNoOpLogger())
	store := newMemStore()
	s := newTestSyncer(t, newMockSource(singleOperatorWorld(ts.key, 10)), ts.signer, store, dest, client)

	err := s.RunCycle(ctx, "manual")
	require.Error(t, err)
	assert.True(t, IsStale(err))
	row, err := store.Load(ctx, "base")
	require.NoError(t, err)
	assert.Equal(t, types.TriggerID(7), row.LastTriggerID)
	assert.Nil(t, row.Snapshot)

	require.NoError(t, s.RunCycle(ctx, "manual"))
	assert.Equal(t, types.TriggerID(8), node.state(t).LastTriggerID)
}

func TestSyncerInsufficientWeightIsNotMirrored(t *testing.T) {
	ctx := context.Background()
	ts := newTestSigner(t)
	node := newMirrorNode(t, mirror.HandlerConfig{Name: "base", Kind: types.PayloadKindFull}, genesisFor(ts.key, 100, 0))
	dest := Destination{Name: "base", URL: node.url, Kind: types.PayloadKindFull}
	client := NewDestinationClient(dest, newTestClient(t), logging.NewNoOpLogger())
	store := newMemStore()
	s := newTestSyncer(t, newMockSource(singleOperatorWorld(ts.key, 10)), ts.signer, store, dest, client)

	err := s.RunCycle(ctx, "manual")
	var re *RejectedError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 403, re.StatusCode)
	assert.Equal(t, types.ErrorKindInsufficientWeight, re.Kind)
	assert.False(t, IsStale(err))

	row, err := store.Load(ctx, "base")
	require.NoError(t, err)
	assert.Zero(t, row.LastTriggerID)
	assert.Equal(t, uint64(0), node.state(t).Version)
}

func TestSyncerForwardsRegistrationEvents(t *testing.T) {
	ctx := context.Background()
	ts := newTestSigner(t)
	node := newMirrorNode(t,
		mirror.HandlerConfig{Name: "upsert", Kind: types.PayloadKindFull, Mode: mirror.ApplyUpsert},
		genesisFor(ts.key, 10, 0))
	dest := Destination{Name: "upsert", URL: node.url, Kind: types.PayloadKindFull, Mode: ModeUpsert}
	client := NewDestinationClient(dest, newTestClient(t), logging.NewNoOpLogger())
	store := newMemStore()

	// First cycle pins the event cursor to the head and syncs the set.
	s := newTestSyncer(t, newMockSource(singleOperatorWorld(ts.key, 10)), ts.signer, store, dest, client)
	require.NoError(t, s.RunCycle(ctx, "manual"))
	row, err := store.Load(ctx, "upsert")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), row.LastEventBlock)
	assert.Equal(t, types.TriggerID(1), node.state(t).LastTriggerID)

	op1, op2 := addr(1), addr(2)
	w := singleOperatorWorld(ts.key, 10)
	w.head = 105
	w.quorums[0] = []common.Address{op1, op2}
	w.stakes[op2] = 5
	w.keys[op2] = addr(12)
	w.weights[op2] = 5

	src := new(mockSource)
	src.On("FilterRegistrationEvents", mock.Anything, uint64(101), uint64(105)).Return([]chainio.RegistrationEvent{{
		Kind:        chainio.Registered,
		Operator:    op2,
		BlockNumber: 103,
	}}, nil).Once()
	src.expect(w)

	s = newTestSyncer(t, src, ts.signer, store, dest, client)
	require.NoError(t, s.RunCycle(ctx, "manual"))

	state := node.state(t)
	assert.Equal(t, types.TriggerID(2), state.LastTriggerID)
	require.Contains(t, state.Operators, op2)
	assert.Equal(t, addr(12), state.Operators[op2].SigningKey)
	assert.Equal(t, "5", state.Operators[op2].Weight.String())

	row, err = store.Load(ctx, "upsert")
	require.NoError(t, err)
	assert.Equal(t, uint64(105), row.LastEventBlock)
	assert.Equal(t, types.TriggerID(2), row.LastTriggerID)
	src.AssertExpectations(t)
}

type fakeClient struct {
	submitErr error
	state     *types.MirrorStateResponse
	submitted int
}

func (f *fakeClient) Submit(context.Context, []byte, []byte) (*types.SubmitEnvelopeResponse, error) {
	f.submitted++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &types.SubmitEnvelopeResponse{Version: uint64(f.submitted)}, nil
}

func (f *fakeClient) State(context.Context) (*types.MirrorStateResponse, error) {
	if f.state == nil {
		return nil, errors.New("unreachable")
	}
	return f.state, nil
}

func TestSyncerPerQuorumStaleBumpsLocalCounter(t *testing.T) {
	ctx := context.Background()
	ts := newTestSigner(t)
	a := addr(1)
	w := world{head: 9, quorums: map[uint8][]common.Address{0: {a}}, bitmaps: map[common.Address]int64{a: 1}}
	client := &fakeClient{
		submitErr: &RejectedError{Destination: "op", StatusCode: 409, Kind: types.ErrorKindStaleOrDuplicateTrigger},
		state:     &types.MirrorStateResponse{LastTriggerID: 40},
	}
	store := newMemStore()
	dest := Destination{Name: "op", URL: "http://unused", Kind: types.PayloadKindPerQuorum}
	s := newTestSyncer(t, newMockSource(w), ts.signer, store, dest, client)

	require.Error(t, s.RunCycle(ctx, "manual"))
	row, err := store.Load(ctx, "op")
	require.NoError(t, err)
	assert.Equal(t, types.TriggerID(1), row.LastTriggerID)

	// A different event id is built on the next attempt.
	client.submitErr = nil
	require.NoError(t, s.RunCycle(ctx, "manual"))
	row, err = store.Load(ctx, "op")
	require.NoError(t, err)
	assert.Equal(t, types.TriggerID(2), row.LastTriggerID)
	assert.Equal(t, 2, client.submitted)
}

func TestSyncerTransportErrorKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	ts := newTestSigner(t)
	client := &fakeClient{submitErr: errors.New("connection reset")}
	store := newMemStore()
	dest := Destination{Name: "base", URL: "http://unused", Kind: types.PayloadKindFull}
	s := newTestSyncer(t, newMockSource(singleOperatorWorld(ts.key, 10)), ts.signer, store, dest, client)

	err := s.RunCycle(ctx, "manual")
	require.Error(t, err)
	assert.False(t, IsStale(err))
	row, err := store.Load(ctx, "base")
	require.NoError(t, err)
	assert.Zero(t, row.LastTriggerID)
}

func TestNewSyncerRejectsBadTargets(t *testing.T) {
	reader := NewReader(new(mockSource), fastRetry(), logging.NewNoOpLogger())
	_, err := New(Config{}, reader, nil, nil, logging.NewNoOpLogger())
	assert.Error(t, err)

	dest := Destination{Name: "dup", URL: "http://x", Kind: types.PayloadKindFull}
	target := Target{Detector: NewDetector(dest, reader, newMemStore(), logging.NewNoOpLogger())}
	_, err = New(Config{}, reader, nil, []Target{target, target}, logging.NewNoOpLogger())
	assert.Error(t, err)
}

func TestReferenceBlock(t *testing.T) {
	assert.Equal(t, uint32(1), referenceBlock(nil))
	assert.Equal(t, uint32(1), referenceBlock(snapshot.New(0, testTime)))
	assert.Equal(t, uint32(77), referenceBlock(snapshot.New(77, testTime)))
	assert.Equal(t, uint32(1<<32-1), referenceBlock(snapshot.New(1<<40, testTime)))
}

func TestSyncerStatus(t *testing.T) {
	ts := newTestSigner(t)
	client := &fakeClient{submitErr: errors.New("connection reset")}
	dest := Destination{Name: "base", URL: "http://unused", Kind: types.PayloadKindFull}
	s := newTestSyncer(t, newMockSource(singleOperatorWorld(ts.key, 10)), ts.signer, newMemStore(), dest, client)

	assert.True(t, s.Status().FinishedAt.IsZero())
	require.Error(t, s.RunCycle(context.Background(), "cron"))
	status := s.Status()
	assert.Equal(t, "cron", status.Trigger)
	assert.Contains(t, status.Error, "connection reset")
	assert.Equal(t, []string{"base"}, s.Destinations())
}
