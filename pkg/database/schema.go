package database

import (
	"fmt"

	"github.com/gocql/gocql"
)

func keyspaceStatement(keyspace string) string {
	return fmt.Sprintf(`
		CREATE KEYSPACE IF NOT EXISTS %s
		WITH replication = {
			'class': 'SimpleStrategy',
			'replication_factor': 1
		}`, keyspace)
}

// SubmissionsTable holds one row per envelope a mirror handler received,
// newest first within a handler partition.
const SubmissionsTable = `
	CREATE TABLE IF NOT EXISTS mirror_submissions (
		handler text,
		received_at timestamp,
		submission_id uuid,
		event_id text,
		trigger_id bigint,
		payload_kind text,
		outcome text,
		error_kind text,
		error text,
		state_digest text,
		PRIMARY KEY ((handler), received_at, submission_id)
	) WITH CLUSTERING ORDER BY (received_at DESC, submission_id ASC)`

func InitSchema(session *gocql.Session) error {
	if err := session.Query(SubmissionsTable).Exec(); err != nil {
		return fmt.Errorf("create mirror_submissions: %w", err)
	}
	return nil
}
