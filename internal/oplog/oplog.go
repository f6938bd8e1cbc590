package oplog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tradefleet/fleetd/internal/fleet"
)

// Log is the audit trail of bulk operations: one row per operation, one
// row per settled item. Canonical records themselves are never persisted;
// only what was commanded and how it went.
type Log struct {
	db *sql.DB
}

func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir oplog dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Log) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bulk_ops (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			item_count INTEGER NOT NULL,
			failed_count INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bulk_op_items (
			op_id TEXT NOT NULL,
			canonical_id TEXT NOT NULL,
			command TEXT NOT NULL,
			symbol TEXT,
			config_id INTEGER,
			skipped INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			FOREIGN KEY (op_id) REFERENCES bulk_ops(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bulk_op_items_op ON bulk_op_items(op_id)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate oplog: %w", err)
		}
	}
	return nil
}

// RecordBulk stores a settled bulk operation and its per-item outcomes.
func (l *Log) RecordBulk(ctx context.Context, res *fleet.BulkResult) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	failed := 0
	for i := range res.Items {
		if res.Items[i].Error != "" {
			failed++
		}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO bulk_ops (id,action,item_count,failed_count,started_at,finished_at)
VALUES (?,?,?,?,?,?)
`, res.OperationID, string(res.Action), len(res.Items), failed,
		res.StartedAt.Format(time.RFC3339Nano), res.FinishedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert bulk op: %w", err)
	}

	for i := range res.Items {
		item := &res.Items[i]
		var configID any
		if item.ConfigID != nil {
			configID = *item.ConfigID
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO bulk_op_items (op_id,canonical_id,command,symbol,config_id,skipped,error)
VALUES (?,?,?,?,?,?,?)
`, res.OperationID, item.CanonicalID, string(item.Command), item.Symbol, configID, boolToInt(item.Skipped), item.Error)
		if err != nil {
			return fmt.Errorf("insert bulk op item: %w", err)
		}
	}
	return tx.Commit()
}

// OpSummary is one recorded operation header.
type OpSummary struct {
	OperationID string    `json:"operationId"`
	Action      string    `json:"action"`
	ItemCount   int       `json:"itemCount"`
	FailedCount int       `json:"failedCount"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// Recent lists the newest recorded operations, most recent first.
func (l *Log) Recent(ctx context.Context, limit int) ([]OpSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id,action,item_count,failed_count,started_at,finished_at
FROM bulk_ops ORDER BY started_at DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query bulk ops: %w", err)
	}
	defer rows.Close()

	var out []OpSummary
	for rows.Next() {
		var s OpSummary
		var startedAt, finishedAt string
		if err := rows.Scan(&s.OperationID, &s.Action, &s.ItemCount, &s.FailedCount, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		s.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		s.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Items returns the per-item outcomes of one recorded operation.
func (l *Log) Items(ctx context.Context, opID string) ([]fleet.ItemResult, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT canonical_id,command,symbol,config_id,skipped,error
FROM bulk_op_items WHERE op_id=?
`, opID)
	if err != nil {
		return nil, fmt.Errorf("query bulk op items: %w", err)
	}
	defer rows.Close()

	var out []fleet.ItemResult
	for rows.Next() {
		var item fleet.ItemResult
		var command string
		var symbol sql.NullString
		var configID sql.NullInt64
		var skipped int
		var errText sql.NullString
		if err := rows.Scan(&item.CanonicalID, &command, &symbol, &configID, &skipped, &errText); err != nil {
			return nil, err
		}
		item.Command = fleet.CommandKind(command)
		item.Symbol = symbol.String
		if configID.Valid {
			v := configID.Int64
			item.ConfigID = &v
		}
		item.Skipped = skipped != 0
		item.Error = errText.String
		out = append(out, item)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
