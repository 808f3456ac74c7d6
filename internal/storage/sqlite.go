package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/qepting91/review-harvester/internal/domain"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	target     TEXT NOT NULL,
	identity   TEXT NOT NULL,
	id         TEXT NOT NULL,
	author     TEXT NOT NULL,
	avatar     TEXT NOT NULL,
	text       TEXT NOT NULL,
	rating     INTEGER NOT NULL,
	date       TEXT NOT NULL,
	engagement INTEGER NOT NULL,
	UNIQUE(target, identity)
);

CREATE INDEX IF NOT EXISTS idx_records_date ON records(target, date);
`

// SQLiteSink stores records in a table keyed by target and identity. A batch
// commits in one transaction; rows already present are left untouched.
type SQLiteSink struct {
	db     *sql.DB
	target string
	key    domain.KeyFunc
	logger *slog.Logger
}

// OpenSQLiteSink opens or creates the database at path. Records are scoped
// to target so several harvests can share one file.
func OpenSQLiteSink(path, target string, key domain.KeyFunc, logger *slog.Logger) (*SQLiteSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if key == nil {
		key = domain.ExplicitKey
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteSink{db: db, target: target, key: key, logger: logger}, nil
}

func (s *SQLiteSink) Mode() domain.Mode { return domain.ModeMerge }

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func (s *SQLiteSink) Flush(ctx context.Context, batch []domain.Record) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO records (target, identity, id, author, avatar, text, rating, date, engagement)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(target, identity) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := int64(0)
	for _, r := range batch {
		res, err := stmt.ExecContext(ctx, s.target, s.key(r), r.ID, r.Author, r.Avatar, r.Text, r.Rating, r.Date, r.Engagement)
		if err != nil {
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if skipped := int64(len(batch)) - inserted; skipped > 0 {
		s.logger.Debug("rows already stored", "target", s.target, "skipped", skipped)
	}
	return nil
}

// Load returns the target's records in insertion order. A sink opened without
// a target loads every target's records.
func (s *SQLiteSink) Load(ctx context.Context) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, author, avatar, text, rating, date, engagement, target
	FROM records
	WHERE target = ? OR ? = ''
	ORDER BY seq
	`, s.target, s.target)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var r domain.Record
		if err := rows.Scan(&r.ID, &r.Author, &r.Avatar, &r.Text, &r.Rating, &r.Date, &r.Engagement, &r.Source); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
