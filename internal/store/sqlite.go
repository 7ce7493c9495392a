package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"meetscribe/internal/transcript"
)

// ErrNotFound is returned when a meeting or transcript does not exist.
var ErrNotFound = errors.New("not found")

// Meeting is one tracked transcription job.
type Meeting struct {
	ID        string
	JobID     string
	Title     string
	CreatedAt time.Time
}

// Transcript is the persisted reconstruction result for a job.
type Transcript struct {
	JobID       string
	Fingerprint string
	Text        string
	Segments    []transcript.Segment
	UpdatedAt   time.Time
}

// SQLiteStore persists meetings and their reconstructed transcripts.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a store backed by the SQLite database at path,
// creating the file and schema if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithLogger(path, zap.NewNop())
}

// NewSQLiteStoreWithLogger creates a new SQLiteStore with a custom logger
func NewSQLiteStoreWithLogger(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	_, err = db.Exec(`
	PRAGMA busy_timeout  = 10000;
	PRAGMA journal_mode  = WAL;
	PRAGMA synchronous   = NORMAL;
	PRAGMA foreign_keys  = ON;

	create table if not exists meetings (
		id         text primary key,
		job_id     text not null unique,
		title      text not null,
		created_at text not null
	);

	create table if not exists transcripts (
		job_id      text primary key,
		fingerprint text not null,
		transcript  text not null,
		segments    text not null,
		updated_at  text not null
	);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing sqlite schema: %w", err)
	}

	logger.Debug("opened sqlite store",
		zap.String("component", "store"),
		zap.String("path", path))

	return &SQLiteStore{db: db, logger: logger}, nil
}

// CreateMeeting registers a job id, returning the existing meeting when
// the job is already known.
func (s *SQLiteStore) CreateMeeting(ctx context.Context, jobID string, title string) (Meeting, error) {
	res := Meeting{JobID: jobID, Title: title}
	if jobID == "" {
		return res, fmt.Errorf("job id cannot be empty")
	}

	var createdAt string
	err := s.db.
		QueryRowContext(
			ctx,
			`insert into meetings (id, job_id, title, created_at)
			 values ($1, $2, $3, $4)
			 on conflict(job_id) do update set title = excluded.title
			 returning id, created_at`,
			uuid.New().String(),
			jobID,
			title,
			time.Now().UTC().Format(time.RFC3339),
		).
		Scan(&res.ID, &createdAt)
	if err != nil {
		return res, fmt.Errorf("persisting meeting into sqlite: %w", err)
	}

	res.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return res, fmt.Errorf("parsing meeting created_at: %w", err)
	}

	return res, nil
}

// GetMeeting looks up a meeting by job id.
func (s *SQLiteStore) GetMeeting(ctx context.Context, jobID string) (Meeting, error) {
	res := Meeting{}

	var createdAt string
	err := s.db.
		QueryRowContext(
			ctx,
			"select id, job_id, title, created_at from meetings where job_id = $1",
			jobID,
		).
		Scan(&res.ID, &res.JobID, &res.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return res, ErrNotFound
	}
	if err != nil {
		return res, fmt.Errorf("get meeting by job id: %w", err)
	}

	res.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return res, fmt.Errorf("parsing meeting created_at: %w", err)
	}

	return res, nil
}

// ListMeetings returns all meetings, newest first.
func (s *SQLiteStore) ListMeetings(ctx context.Context) ([]Meeting, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"select id, job_id, title, created_at from meetings order by created_at desc",
	)
	if err != nil {
		return nil, fmt.Errorf("listing meetings: %w", err)
	}
	defer rows.Close()

	var meetings []Meeting
	for rows.Next() {
		var m Meeting
		var createdAt string
		if err := rows.Scan(&m.ID, &m.JobID, &m.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning meeting row: %w", err)
		}
		m.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing meeting created_at: %w", err)
		}
		meetings = append(meetings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing meetings: %w", err)
	}

	return meetings, nil
}

// SaveTranscript upserts the reconstruction result for a job. The write
// is skipped when the stored fingerprint already matches, so re-polled
// identical results do not churn the database.
func (s *SQLiteStore) SaveTranscript(ctx context.Context, jobID string, text string, segments []transcript.Segment) error {
	if jobID == "" {
		return fmt.Errorf("job id cannot be empty")
	}

	segmentsJSON, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("marshaling segments: %w", err)
	}
	fingerprint := Fingerprint(append([]byte(text), segmentsJSON...))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save transcript: begin trx: %w", err)
	}

	var existing string
	err = tx.
		QueryRowContext(ctx, "select fingerprint from transcripts where job_id = $1", jobID).
		Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		if err = tx.Rollback(); err != nil {
			return fmt.Errorf("rollback save transcript: %w", err)
		}
		return fmt.Errorf("get transcript fingerprint: %w", err)
	}

	if existing == fingerprint {
		if err = tx.Rollback(); err != nil {
			return fmt.Errorf("rollback save transcript: %w", err)
		}
		s.logger.Debug("transcript unchanged, skipping write",
			zap.String("component", "store"),
			zap.String("job_id", jobID))
		return nil
	}

	_, err = tx.ExecContext(
		ctx,
		`insert into transcripts (job_id, fingerprint, transcript, segments, updated_at)
		 values ($1, $2, $3, $4, $5)
		 on conflict(job_id) do update set
			fingerprint = excluded.fingerprint,
			transcript  = excluded.transcript,
			segments    = excluded.segments,
			updated_at  = excluded.updated_at`,
		jobID,
		fingerprint,
		text,
		string(segmentsJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if err = tx.Rollback(); err != nil {
			return fmt.Errorf("rollback save transcript: %w", err)
		}
		return fmt.Errorf("persisting transcript into sqlite: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save transcript: committing: %w", err)
	}

	s.logger.Debug("saved transcript",
		zap.String("component", "store"),
		zap.String("job_id", jobID),
		zap.Int("segments", len(segments)))

	return nil
}

// GetTranscript looks up the persisted reconstruction for a job.
func (s *SQLiteStore) GetTranscript(ctx context.Context, jobID string) (Transcript, error) {
	res := Transcript{}

	var segmentsJSON, updatedAt string
	err := s.db.
		QueryRowContext(
			ctx,
			"select job_id, fingerprint, transcript, segments, updated_at from transcripts where job_id = $1",
			jobID,
		).
		Scan(&res.JobID, &res.Fingerprint, &res.Text, &segmentsJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return res, ErrNotFound
	}
	if err != nil {
		return res, fmt.Errorf("get transcript by job id: %w", err)
	}

	if err := json.Unmarshal([]byte(segmentsJSON), &res.Segments); err != nil {
		return res, fmt.Errorf("unmarshaling segments: %w", err)
	}
	res.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return res, fmt.Errorf("parsing transcript updated_at: %w", err)
	}

	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
