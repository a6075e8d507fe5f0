package syncer

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/trigg3rX/triggerx-mirror-sync/internal/syncer/snapshot"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/codec"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

const (
	ModeReplace = "replace"
	ModeUpsert  = "upsert"
)

// Destination is one mirror handler the syncer keeps in step.
type Destination struct {
	Name string            `yaml:"name" json:"name"`
	URL  string            `yaml:"url" json:"url"`
	Kind types.PayloadKind `yaml:"kind" json:"kind"`
	Mode string            `yaml:"mode" json:"mode"`
}

func (d Destination) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("destination name is required")
	}
	if d.URL == "" {
		return fmt.Errorf("destination %s: url is required", d.Name)
	}
	if _, err := types.ParsePayloadKind(string(d.Kind)); err != nil {
		return fmt.Errorf("destination %s: %w", d.Name, err)
	}
	switch d.Mode {
	case "", ModeReplace:
	case ModeUpsert:
		if d.Kind != types.PayloadKindFull {
			return fmt.Errorf("destination %s: upsert mode needs kind %s", d.Name, types.PayloadKindFull)
		}
	default:
		return fmt.Errorf("destination %s: unknown mode %q", d.Name, d.Mode)
	}
	return nil
}

func (d Destination) Upsert() bool {
	return d.Mode == ModeUpsert
}

// Update is a built, not yet signed, payload for one destination.
type Update struct {
	Destination string
	Kind        types.PayloadKind
	TriggerID   types.TriggerID
	EventID     types.EventID
	Payload     types.Payload
	Encoded     []byte
	// Next is persisted as the mirrored snapshot once the update is accepted.
	Next    *snapshot.Snapshot
	Changed []common.Address
}

// Detector compares the source with what one destination was last sent.
type Detector struct {
	dest   Destination
	reader *Reader
	store  snapshot.Store
	logger logging.Logger
	now    func() time.Time
}

func NewDetector(dest Destination, reader *Reader, store snapshot.Store, logger logging.Logger) *Detector {
	return &Detector{
		dest:   dest,
		reader: reader,
		store:  store,
		logger: logger.With("destination", dest.Name),
		now:    time.Now,
	}
}

func (d *Detector) Destination() Destination {
	return d.dest
}

// DetectAndBuild reads a fresh snapshot and returns the update that brings
// the destination in line with it, or nil when nothing drifted.
func (d *Detector) DetectAndBuild(ctx context.Context) (*Update, error) {
	cur, err := d.reader.ReadSnapshot(ctx, d.dest.Kind)
	if err != nil {
		return nil, err
	}
	return d.DetectAndBuildFrom(ctx, cur)
}

// DetectAndBuildFrom is DetectAndBuild against an already read snapshot.
func (d *Detector) DetectAndBuildFrom(ctx context.Context, cur *snapshot.Snapshot) (*Update, error) {
	mirrored, err := d.store.Load(ctx, d.dest.Name)
	if err != nil {
		return nil, err
	}
	prev := snapshot.OrEmpty(mirrored.Snapshot)

	payload, err := BuildPayload(d.dest, prev, cur, mirrored.LastTriggerID+1)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		d.logger.Debug("No drift", "block", cur.BlockHeight)
		return nil, nil
	}
	return d.newUpdate(mirrored.LastTriggerID+1, payload, cur, ChangedOperators(prev, cur))
}

func (d *Detector) newUpdate(triggerID types.TriggerID, payload types.Payload, next *snapshot.Snapshot, changed []common.Address) (*Update, error) {
	encoded, err := codec.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", d.dest.Kind, err)
	}
	return &Update{
		Destination: d.dest.Name,
		Kind:        d.dest.Kind,
		TriggerID:   triggerID,
		EventID:     NewEventID(d.dest.Name, triggerID, encoded),
		Payload:     payload,
		Encoded:     encoded,
		Next:        next,
		Changed:     changed,
	}, nil
}

// MarkMirrored records that the destination accepted u.
func (d *Detector) MarkMirrored(ctx context.Context, u *Update) error {
	m, err := d.store.Load(ctx, d.dest.Name)
	if err != nil {
		return err
	}
	m.LastTriggerID = u.TriggerID
	m.Snapshot = u.Next
	m.UpdatedAt = d.now().UTC()
	return d.store.Save(ctx, m)
}

// Resync adopts the destination's trigger position after a stale rejection.
// Per-quorum handlers never advance a trigger id, so their local counter just
// moves past the rejected event.
func (d *Detector) Resync(ctx context.Context, remote types.TriggerID) error {
	m, err := d.store.Load(ctx, d.dest.Name)
	if err != nil {
		return err
	}
	before := m.LastTriggerID
	if d.dest.Kind == types.PayloadKindPerQuorum {
		m.LastTriggerID++
	} else if remote > m.LastTriggerID {
		m.LastTriggerID = remote
	}
	m.UpdatedAt = d.now().UTC()
	d.logger.Info("Resynced trigger id", "from", before, "to", m.LastTriggerID, "remote", remote)
	return d.store.Save(ctx, m)
}

// NewEventID derives a deterministic id so racing syncers that build the
// same update also produce the same envelope.
func NewEventID(destination string, triggerID types.TriggerID, payload []byte) types.EventID {
	var tid [8]byte
	binary.BigEndian.PutUint64(tid[:], triggerID)
	h := crypto.Keccak256([]byte(destination), tid[:], payload)
	var id types.EventID
	copy(id[:], h[:len(id)])
	return id
}

// BuildPayload returns the payload moving a destination from prev to cur, or
// nil when the fields its kind mirrors are unchanged.
func BuildPayload(dest Destination, prev, cur *snapshot.Snapshot, triggerID types.TriggerID) (types.Payload, error) {
	prev, cur = snapshot.OrEmpty(prev), snapshot.OrEmpty(cur)
	switch dest.Kind {
	case types.PayloadKindFull:
		if dest.Upsert() {
			return buildUpsert(prev, cur, triggerID), nil
		}
		return buildFull(prev, cur, triggerID), nil
	case types.PayloadKindPerQuorum:
		return buildPerQuorum(prev, cur), nil
	case types.PayloadKindQuorumThreshold:
		return buildQuorumThreshold(prev, cur, triggerID)
	default:
		return nil, fmt.Errorf("unknown payload kind %q", dest.Kind)
	}
}

func sameOperator(a, b snapshot.Operator) bool {
	return a.SigningKey == b.SigningKey && a.Weight.Equal(b.Weight)
}

func buildFull(prev, cur *snapshot.Snapshot, triggerID types.TriggerID) types.Payload {
	drift := !prev.Threshold.Equal(cur.Threshold) || len(prev.Operators) != len(cur.Operators)
	if !drift {
		for addr, op := range cur.Operators {
			old, ok := prev.Operators[addr]
			if !ok || !sameOperator(old, op) {
				drift = true
				break
			}
		}
	}
	if !drift {
		return nil
	}
	return fullPayload(triggerID, cur.Threshold, cur.Records())
}

// buildUpsert sends only operators that changed, plus removal records for
// the ones that left. A registered operator with no signing key and no
// weight encodes exactly like a removal, so it is only sent to retract a
// record the destination already holds; the mirror deletes it either way.
func buildUpsert(prev, cur *snapshot.Snapshot, triggerID types.TriggerID) types.Payload {
	var records []types.OperatorRecord
	for _, r := range cur.Records() {
		old, ok := prev.Operators[r.Operator]
		if ok && sameOperator(old, cur.Operators[r.Operator]) {
			continue
		}
		if !ok && r.IsRemoval() {
			continue
		}
		records = append(records, r)
	}
	for _, addr := range prev.SortedOperators() {
		if _, ok := cur.Operators[addr]; !ok {
			records = append(records, types.OperatorRecord{Operator: addr, Weight: types.BigIntFromUint64(0)})
		}
	}
	if len(records) == 0 && prev.Threshold.Equal(cur.Threshold) {
		return nil
	}
	sortRecords(records)
	return fullPayload(triggerID, cur.Threshold, records)
}

func fullPayload(triggerID types.TriggerID, threshold *types.BigInt, records []types.OperatorRecord) types.FullSyncPayload {
	p := types.FullSyncPayload{
		TriggerID:       triggerID,
		ThresholdWeight: threshold.ToBigInt(),
		Operators:       make([]common.Address, len(records)),
		SigningKeys:     make([]common.Address, len(records)),
		Weights:         make([]*big.Int, len(records)),
	}
	for i, r := range records {
		p.Operators[i] = r.Operator
		p.SigningKeys[i] = r.SigningKey
		p.Weights[i] = r.Weight.ToBigInt()
	}
	return p
}

func sortRecords(records []types.OperatorRecord) {
	addrs := make([]common.Address, len(records))
	byAddr := make(map[common.Address]types.OperatorRecord, len(records))
	for i, r := range records {
		addrs[i] = r.Operator
		byAddr[r.Operator] = r
	}
	snapshot.SortAddresses(addrs)
	for i, a := range addrs {
		records[i] = byAddr[a]
	}
}

// buildPerQuorum emits only quorums whose member list changed or whose bit
// flipped in some operator's bitmap. A quorum that disappeared is sent empty.
func buildPerQuorum(prev, cur *snapshot.Snapshot) types.Payload {
	changed := map[types.QuorumNumber]bool{}
	for q, ops := range cur.Quorums {
		if !snapshot.SameAddresses(prev.Quorums[q], ops) {
			changed[q] = true
		}
	}
	for q, ops := range prev.Quorums {
		if _, ok := cur.Quorums[q]; !ok && len(ops) > 0 {
			changed[q] = true
		}
	}
	for addr, op := range cur.Operators {
		old := prev.Operators[addr]
		flipped := new(big.Int).Xor(op.Bitmap.ToBigInt(), old.Bitmap.ToBigInt())
		for i := 0; i < types.MaxQuorumCount && i < flipped.BitLen(); i++ {
			if flipped.Bit(i) == 1 {
				changed[types.QuorumNumber(i)] = true
			}
		}
	}
	if len(changed) == 0 {
		return nil
	}

	p := types.PerQuorumPayload{}
	for i := 0; i < types.MaxQuorumCount; i++ {
		q := types.QuorumNumber(i)
		if !changed[q] {
			continue
		}
		ops := append([]common.Address{}, cur.Quorums[q]...)
		p.QuorumNumbers = append(p.QuorumNumbers, q)
		p.OperatorsPerQuorum = append(p.OperatorsPerQuorum, ops)
	}
	return p
}

func buildQuorumThreshold(prev, cur *snapshot.Snapshot, triggerID types.TriggerID) (types.Payload, error) {
	if cur.QuorumDenominator.ToBigInt().Sign() == 0 {
		return nil, fmt.Errorf("source quorum denominator is zero")
	}
	if prev.QuorumNumerator.Equal(cur.QuorumNumerator) && prev.QuorumDenominator.Equal(cur.QuorumDenominator) {
		return nil, nil
	}
	return types.QuorumThresholdPayload{
		TriggerID:   triggerID,
		Numerator:   cur.QuorumNumerator.ToBigInt(),
		Denominator: cur.QuorumDenominator.ToBigInt(),
	}, nil
}

// ChangedOperators lists, sorted, the operators whose per-quorum stake
// changed, appeared or disappeared between prev and cur.
func ChangedOperators(prev, cur *snapshot.Snapshot) []common.Address {
	prev, cur = snapshot.OrEmpty(prev), snapshot.OrEmpty(cur)
	var out []common.Address
	for addr, op := range cur.Operators {
		old, ok := prev.Operators[addr]
		if !ok || !sameStakes(old.Stakes, op.Stakes) {
			out = append(out, addr)
		}
	}
	for addr := range prev.Operators {
		if _, ok := cur.Operators[addr]; !ok {
			out = append(out, addr)
		}
	}
	snapshot.SortAddresses(out)
	return out
}

func sameStakes(a, b map[types.QuorumNumber]*types.BigInt) bool {
	if len(a) != len(b) {
		return false
	}
	for q, s := range a {
		other, ok := b[q]
		if !ok || !s.Equal(other) {
			return false
		}
	}
	return true
}
