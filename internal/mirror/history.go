package mirror

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/database"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// Submission is one history row. Rejected submissions carry the error kind.
type Submission struct {
	ID          uuid.UUID         `json:"id"`
	Handler     string            `json:"handler"`
	ReceivedAt  time.Time         `json:"received_at"`
	EventID     string            `json:"event_id"`
	TriggerID   types.TriggerID   `json:"trigger_id,omitempty"`
	PayloadKind types.PayloadKind `json:"payload_kind"`
	Outcome     string            `json:"outcome"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	Error       string            `json:"error,omitempty"`
	StateDigest string            `json:"state_digest,omitempty"`
}

// History is the append-only submission log.
type History interface {
	Append(ctx context.Context, s Submission) error
	Recent(ctx context.Context, handler string, limit int) ([]Submission, error)
}

// MemoryHistory keeps at most capacity rows per process.
type MemoryHistory struct {
	mu       sync.RWMutex
	capacity int
	rows     []Submission
}

func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryHistory{capacity: capacity}
}

func (m *MemoryHistory) Append(_ context.Context, s Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, s)
	if len(m.rows) > m.capacity {
		m.rows = m.rows[len(m.rows)-m.capacity:]
	}
	return nil
}

// Recent returns newest first.
func (m *MemoryHistory) Recent(_ context.Context, handler string, limit int) ([]Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Submission, 0, limit)
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if m.rows[i].Handler == handler {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

const (
	insertSubmission = `INSERT INTO mirror_submissions
		(handler, received_at, submission_id, event_id, trigger_id, payload_kind, outcome, error_kind, error, state_digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	selectRecentSubmissions = `SELECT received_at, submission_id, event_id, trigger_id, payload_kind, outcome, error_kind, error, state_digest
		FROM mirror_submissions WHERE handler = ? LIMIT ?`
)

// CassandraHistory writes rows to the mirror_submissions table.
type CassandraHistory struct {
	db     database.Execer
	logger logging.Logger
}

func NewCassandraHistory(db database.Execer, logger logging.Logger) *CassandraHistory {
	return &CassandraHistory{db: db, logger: logger.With("component", "history")}
}

func (c *CassandraHistory) Append(ctx context.Context, s Submission) error {
	id, err := gocql.UUIDFromBytes(s.ID[:])
	if err != nil {
		return fmt.Errorf("invalid submission id: %w", err)
	}
	if err := c.db.Exec(ctx, insertSubmission,
		s.Handler, s.ReceivedAt, id, s.EventID, int64(s.TriggerID), string(s.PayloadKind),
		s.Outcome, s.ErrorKind, s.Error, s.StateDigest); err != nil {
		c.logger.Error("Failed to record submission", "id", s.ID.String(), "error", err)
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

func (c *CassandraHistory) Recent(ctx context.Context, handler string, limit int) ([]Submission, error) {
	iter := c.db.Iter(ctx, selectRecentSubmissions, handler, limit)

	var (
		out       []Submission
		row       Submission
		id        gocql.UUID
		triggerID int64
		kind      string
	)
	for iter.Scan(&row.ReceivedAt, &id, &row.EventID, &triggerID, &kind, &row.Outcome, &row.ErrorKind, &row.Error, &row.StateDigest) {
		row.Handler = handler
		row.ID = uuid.UUID(id)
		row.TriggerID = types.TriggerID(triggerID)
		row.PayloadKind = types.PayloadKind(kind)
		out = append(out, row)
		row = Submission{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read submissions: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	return out, nil
}
