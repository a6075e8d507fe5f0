package mirror

import (
	"fmt"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

// Sequencer gates updates on the last committed trigger. It never advances
// anything itself; the counter moves only when a mutation is committed.
type Sequencer struct {
	last types.TriggerID
	seen map[string]struct{}
}

func NewSequencer(s *State) Sequencer {
	return Sequencer{last: s.LastTriggerID, seen: s.SeenEvents}
}

// Accept admits candidate only when it is strictly greater than the last
// applied trigger.
func (q Sequencer) Accept(candidate types.TriggerID) error {
	if candidate <= q.last {
		return fmt.Errorf("%w: trigger %d, last applied %d", ErrStaleOrDuplicateTrigger, candidate, q.last)
	}
	return nil
}

// AcceptEvent admits an envelope id that was never applied before. Used by
// handlers whose payloads carry no trigger id.
func (q Sequencer) AcceptEvent(id types.EventID) error {
	if _, ok := q.seen[id.Hex()]; ok {
		return fmt.Errorf("%w: event %s already applied", ErrStaleOrDuplicateTrigger, id.Hex())
	}
	return nil
}
