// Package store provides archive storage backends for FawnBot.
//
// This file implements the PostgreSQL-backed archive.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres archive based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddSubmission(sub Submission) (int64, error) {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	var id int64
	err := s.db.QueryRow(
		`INSERT INTO submissions (artist, source_prefix, artwork_id, image_path, submitted_by, group_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		sub.Artist, sub.SourcePrefix, sub.ArtworkID, sub.ImagePath, sub.SubmittedBy, sub.GroupID, sub.CreatedAt).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore AddSubmission failed", "error", err, "artist", sub.Artist)
		return 0, fmt.Errorf("failed to insert submission for %s: %w", sub.Artist, err)
	}
	slog.Debug("PostgresStore AddSubmission succeeded", "id", id, "artist", sub.Artist)
	return id, nil
}

func (s *PostgresStore) GetSubmissions() ([]Submission, error) {
	rows, err := s.db.Query(`SELECT id, artist, source_prefix, artwork_id, image_path, submitted_by, group_id, created_at FROM submissions ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore GetSubmissions query failed", "error", err)
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			slog.Error("PostgresStore GetSubmissions scan failed", "error", err)
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submission rows: %w", err)
	}
	slog.Debug("PostgresStore GetSubmissions succeeded", "count", len(subs))
	return subs, nil
}

func (s *PostgresStore) AddQuizResult(r QuizResult) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	var id int64
	err := s.db.QueryRow(
		`INSERT INTO quiz_results (group_id, song, starter_id, winner_id, timed_out, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		r.GroupID, r.Song, r.StarterID, r.WinnerID, r.TimedOut, r.CreatedAt).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore AddQuizResult failed", "error", err, "groupID", r.GroupID)
		return 0, fmt.Errorf("failed to insert quiz result: %w", err)
	}
	slog.Debug("PostgresStore AddQuizResult succeeded", "id", id, "groupID", r.GroupID)
	return id, nil
}

func (s *PostgresStore) GetQuizResults(groupID int64) ([]QuizResult, error) {
	query := `SELECT id, group_id, song, starter_id, winner_id, timed_out, created_at FROM quiz_results`
	args := []interface{}{}
	if groupID != 0 {
		query += ` WHERE group_id = $1`
		args = append(args, groupID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore GetQuizResults query failed", "error", err)
		return nil, fmt.Errorf("failed to query quiz results: %w", err)
	}
	defer rows.Close()

	var results []QuizResult
	for rows.Next() {
		r, err := scanQuizResult(rows)
		if err != nil {
			slog.Error("PostgresStore GetQuizResults scan failed", "error", err)
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quiz result rows: %w", err)
	}
	slog.Debug("PostgresStore GetQuizResults succeeded", "count", len(results))
	return results, nil
}

func (s *PostgresStore) AddMediaJob(j MediaJob) error {
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	_, err := s.db.Exec(
		`INSERT INTO media_jobs (id, url, kind, format_id, title, artist, requested_by, status, last_error, output_path, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		j.ID, j.URL, j.Kind, nilIfEmpty(j.FormatID), nilIfEmpty(j.Title), nilIfEmpty(j.Artist),
		j.RequestedBy, j.Status, nilIfEmpty(j.LastError), nilIfEmpty(j.OutputPath), j.CreatedAt, j.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore AddMediaJob failed", "error", err, "id", j.ID)
		return fmt.Errorf("failed to insert media job %s: %w", j.ID, err)
	}
	slog.Debug("PostgresStore AddMediaJob succeeded", "id", j.ID, "status", j.Status)
	return nil
}

func (s *PostgresStore) UpdateMediaJob(id string, status JobStatus, lastError, outputPath string) error {
	res, err := s.db.Exec(
		`UPDATE media_jobs SET status = $1, last_error = $2, output_path = COALESCE($3, output_path), updated_at = $4 WHERE id = $5`,
		status, nilIfEmpty(lastError), nilIfEmpty(outputPath), time.Now(), id)
	if err != nil {
		slog.Error("PostgresStore UpdateMediaJob failed", "error", err, "id", id)
		return fmt.Errorf("failed to update media job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("media job %s not found", id)
	}
	slog.Debug("PostgresStore UpdateMediaJob succeeded", "id", id, "status", status)
	return nil
}

func (s *PostgresStore) GetMediaJob(id string) (*MediaJob, error) {
	row := s.db.QueryRow(`SELECT id, url, kind, format_id, title, artist, requested_by, status, last_error, output_path, created_at, updated_at FROM media_jobs WHERE id = $1`, id)
	j, err := scanMediaJobRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetMediaJob not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetMediaJob failed", "error", err, "id", id)
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) GetMediaJobs() ([]MediaJob, error) {
	rows, err := s.db.Query(`SELECT id, url, kind, format_id, title, artist, requested_by, status, last_error, output_path, created_at, updated_at FROM media_jobs ORDER BY created_at`)
	if err != nil {
		slog.Error("PostgresStore GetMediaJobs query failed", "error", err)
		return nil, fmt.Errorf("failed to query media jobs: %w", err)
	}
	defer rows.Close()

	var jobs []MediaJob
	for rows.Next() {
		j, err := scanMediaJob(rows)
		if err != nil {
			slog.Error("PostgresStore GetMediaJobs scan failed", "error", err)
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate media job rows: %w", err)
	}
	slog.Debug("PostgresStore GetMediaJobs succeeded", "count", len(jobs))
	return jobs, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}
