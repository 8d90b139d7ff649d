package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"reportviewer/internal/core"
	applog "reportviewer/internal/log"
)

// Submission is one accepted legal-details submission.
type Submission struct {
	ID        string
	Payload   core.LegalDetailsPayload
	Location  string
	CreatedAt time.Time
}

// AuditRepository records legal-details submissions in SQLite.
type AuditRepository struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditRepository(dbPath string, logger *slog.Logger) (*AuditRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath, AuditMigrations(), logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &AuditRepository{
		db:     db,
		logger: logger.With(applog.FieldComponent, applog.ComponentStorage),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *AuditRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// RecordSubmission implements legal.AuditRecorder.
func (r *AuditRepository) RecordSubmission(ctx context.Context, p core.LegalDetailsPayload, location string) error {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO legal_submissions (id, year, month, active_litigation, closed_litigations, location, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, p.Year, p.Month, p.ActiveLitigationCount, p.ClosedLitigationsText, location, r.now())
	if err != nil {
		return fmt.Errorf("insert legal submission: %w", err)
	}

	r.logger.InfoContext(ctx, "Legal submission recorded",
		"id", id,
		applog.FieldYear, p.Year,
		applog.FieldMonth, p.Month,
		applog.FieldLocation, location)
	return nil
}

// ListSubmissions returns the submissions for one month, newest first.
func (r *AuditRepository) ListSubmissions(ctx context.Context, year, month int) ([]Submission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, year, month, active_litigation, closed_litigations, location, created_at
		FROM legal_submissions
		WHERE year = ? AND month = ?
		ORDER BY created_at DESC, rowid DESC`, year, month)
	if err != nil {
		return nil, fmt.Errorf("query legal submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var s Submission
		if err := rows.Scan(&s.ID, &s.Payload.Year, &s.Payload.Month, &s.Payload.ActiveLitigationCount,
			&s.Payload.ClosedLitigationsText, &s.Location, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan legal submission: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legal submissions: %w", err)
	}
	return out, nil
}
