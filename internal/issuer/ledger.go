package issuer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "nodelock/internal/errors"
	"nodelock/internal/license"
)

// SQLiteLedger keeps an audit trail of issued codes in SQLite
type SQLiteLedger struct {
	db   *sql.DB
	path string
}

// NewSQLiteLedger opens (or creates) the ledger database at path
func NewSQLiteLedger(ctx context.Context, path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open ledger database", err)
	}
	ledger := &SQLiteLedger{
		db:   db,
		path: path,
	}

	if err := ledger.migrate(ctx); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("failed to migrate ledger database", err).
			With("path", path)
	}

	return ledger, nil
}

func (l *SQLiteLedger) migrate(ctx context.Context) error {
	schema := `
      CREATE TABLE IF NOT EXISTS issued_codes (
          id INTEGER PRIMARY KEY AUTOINCREMENT,
          batch_id TEXT NOT NULL,
          machine_code TEXT NOT NULL,
          license_code TEXT NOT NULL,
          issued_at TEXT NOT NULL
      );

      CREATE INDEX IF NOT EXISTS idx_issued_codes_machine ON issued_codes(machine_code);
      CREATE INDEX IF NOT EXISTS idx_issued_codes_batch ON issued_codes(batch_id);
      `

	_, err := l.db.ExecContext(ctx, schema)
	return err
}

// RecordBatch inserts every entry of b in one transaction
func (l *SQLiteLedger) RecordBatch(ctx context.Context, b *Batch) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError("failed to begin ledger transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO issued_codes (batch_id, machine_code, license_code, issued_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return apperrors.NewStorageError("failed to prepare ledger insert", err)
	}
	defer stmt.Close()

	for _, e := range b.Entries {
		if _, err := stmt.ExecContext(ctx, b.ID, string(e.MachineCode), string(e.LicenseCode),
			e.IssuedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return apperrors.NewStorageError("failed to record issued code", err).
				With("machine_code", string(e.MachineCode))
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError("failed to commit ledger transaction", err)
	}
	return nil
}

// Lookup returns every code issued for mc, oldest first
func (l *SQLiteLedger) Lookup(ctx context.Context, mc license.MachineCode) ([]LedgerEntry, error) {
	query := `SELECT batch_id, machine_code, license_code, issued_at FROM issued_codes WHERE machine_code = ? ORDER BY id`

	rows, err := l.db.QueryContext(ctx, query, string(mc))
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query ledger", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var (
			e        LedgerEntry
			issuedAt string
		)
		if err := rows.Scan(&e.BatchID, &e.MachineCode, &e.LicenseCode, &issuedAt); err != nil {
			return nil, apperrors.NewStorageError("failed to scan ledger row", err)
		}
		e.IssuedAt, err = time.Parse(time.RFC3339Nano, issuedAt)
		if err != nil {
			return nil, apperrors.NewCorruptedError(fmt.Sprintf("ledger row has invalid issued_at %q", issuedAt), err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to read ledger", err)
	}
	return entries, nil
}

// Path returns the database file
func (l *SQLiteLedger) Path() string {
	return l.path
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// LedgerEntry is one row of the ledger
type LedgerEntry struct {
	BatchID     string
	MachineCode license.MachineCode
	LicenseCode license.LicenseCode
	IssuedAt    time.Time
}
