package transcriptlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/voxwrite/voxwrite/internal/config"
	_ "modernc.org/sqlite"
)

// Utterance is one row of the persisted dictation timeline: the sentence
// as finalized, and the corrected text once (if) a correction lands.
type Utterance struct {
	Session     string
	Index       int
	RawText     string
	Corrected   string
	CreatedAt   time.Time
	CorrectedAt time.Time
}

// Store keeps a SQLite-backed record of every dictation session. With
// retention_mode=ephemeral nothing touches disk and every call is a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.TranscriptLogConfig
	log   *slog.Logger
	clock func() time.Time
}

func Open(ctx context.Context, cfg config.TranscriptLogConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("transcript log vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("transcript log prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS utterances (
    session_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    raw_text TEXT NOT NULL,
    corrected_text TEXT,
    created_at TIMESTAMP NOT NULL,
    corrected_at TIMESTAMP,
    PRIMARY KEY(session_id, idx),
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_utterances_session ON utterances(session_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartSession ensures a session row exists.
func (s *Store) StartSession(ctx context.Context, session string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, started_at) VALUES(?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		session, s.clock().UTC())
	return err
}

// AppendUtterance records one finalized sentence.
func (s *Store) AppendUtterance(ctx context.Context, session string, index int, text string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO utterances(session_id, idx, raw_text, created_at) VALUES(?, ?, ?, ?)
		 ON CONFLICT(session_id, idx) DO UPDATE SET raw_text=excluded.raw_text`,
		session, index, text, s.clock().UTC())
	return err
}

// MarkCorrected splices the corrected text onto an existing utterance.
// Arrival order does not matter; the latest correction wins.
func (s *Store) MarkCorrected(ctx context.Context, session string, index int, corrected string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE utterances SET corrected_text = ?, corrected_at = ? WHERE session_id = ? AND idx = ?`,
		corrected, s.clock().UTC(), session, index)
	return err
}

// ListUtterances returns up to limit utterances for a session in index
// order.
func (s *Store) ListUtterances(ctx context.Context, session string, limit int) ([]Utterance, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, idx, raw_text, COALESCE(corrected_text, ''), created_at, COALESCE(corrected_at, '')
		 FROM utterances WHERE session_id = ? ORDER BY idx ASC LIMIT ?`, session, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Utterance
	for rows.Next() {
		var u Utterance
		var created, corrected string
		if err := rows.Scan(&u.Session, &u.Index, &u.RawText, &u.Corrected, &created, &corrected); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			u.CreatedAt = ts
		}
		if ts, err := time.Parse(time.RFC3339Nano, corrected); err == nil {
			u.CorrectedAt = ts
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Prune applies the configured retention policy.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC()
		if _, err = tx.ExecContext(ctx, `DELETE FROM utterances WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
