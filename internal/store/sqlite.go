// Package store provides archive storage backends for FawnBot.
//
// This file implements the SQLite-backed archive.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database
// directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite archive with the given DSN.
// The DSN is a file path to the SQLite database file; if its directory
// doesn't exist, it is created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddSubmission(sub Submission) (int64, error) {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO submissions (artist, source_prefix, artwork_id, image_path, submitted_by, group_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.Artist, sub.SourcePrefix, sub.ArtworkID, sub.ImagePath, sub.SubmittedBy, sub.GroupID, sub.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddSubmission failed", "error", err, "artist", sub.Artist)
		return 0, fmt.Errorf("failed to insert submission for %s: %w", sub.Artist, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read submission id: %w", err)
	}
	slog.Debug("SQLiteStore AddSubmission succeeded", "id", id, "artist", sub.Artist)
	return id, nil
}

func (s *SQLiteStore) GetSubmissions() ([]Submission, error) {
	rows, err := s.db.Query(`SELECT id, artist, source_prefix, artwork_id, image_path, submitted_by, group_id, created_at FROM submissions ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore GetSubmissions query failed", "error", err)
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			slog.Error("SQLiteStore GetSubmissions scan failed", "error", err)
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submission rows: %w", err)
	}
	slog.Debug("SQLiteStore GetSubmissions succeeded", "count", len(subs))
	return subs, nil
}

func (s *SQLiteStore) AddQuizResult(r QuizResult) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO quiz_results (group_id, song, starter_id, winner_id, timed_out, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.GroupID, r.Song, r.StarterID, r.WinnerID, r.TimedOut, r.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddQuizResult failed", "error", err, "groupID", r.GroupID)
		return 0, fmt.Errorf("failed to insert quiz result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read quiz result id: %w", err)
	}
	slog.Debug("SQLiteStore AddQuizResult succeeded", "id", id, "groupID", r.GroupID)
	return id, nil
}

func (s *SQLiteStore) GetQuizResults(groupID int64) ([]QuizResult, error) {
	query := `SELECT id, group_id, song, starter_id, winner_id, timed_out, created_at FROM quiz_results`
	args := []interface{}{}
	if groupID != 0 {
		query += ` WHERE group_id = ?`
		args = append(args, groupID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore GetQuizResults query failed", "error", err)
		return nil, fmt.Errorf("failed to query quiz results: %w", err)
	}
	defer rows.Close()

	var results []QuizResult
	for rows.Next() {
		r, err := scanQuizResult(rows)
		if err != nil {
			slog.Error("SQLiteStore GetQuizResults scan failed", "error", err)
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quiz result rows: %w", err)
	}
	slog.Debug("SQLiteStore GetQuizResults succeeded", "count", len(results))
	return results, nil
}

func (s *SQLiteStore) AddMediaJob(j MediaJob) error {
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	_, err := s.db.Exec(
		`INSERT INTO media_jobs (id, url, kind, format_id, title, artist, requested_by, status, last_error, output_path, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.URL, j.Kind, nilIfEmpty(j.FormatID), nilIfEmpty(j.Title), nilIfEmpty(j.Artist),
		j.RequestedBy, j.Status, nilIfEmpty(j.LastError), nilIfEmpty(j.OutputPath), j.CreatedAt, j.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddMediaJob failed", "error", err, "id", j.ID)
		return fmt.Errorf("failed to insert media job %s: %w", j.ID, err)
	}
	slog.Debug("SQLiteStore AddMediaJob succeeded", "id", j.ID, "status", j.Status)
	return nil
}

func (s *SQLiteStore) UpdateMediaJob(id string, status JobStatus, lastError, outputPath string) error {
	res, err := s.db.Exec(
		`UPDATE media_jobs SET status = ?, last_error = ?, output_path = COALESCE(?, output_path), updated_at = ? WHERE id = ?`,
		status, nilIfEmpty(lastError), nilIfEmpty(outputPath), time.Now(), id)
	if err != nil {
		slog.Error("SQLiteStore UpdateMediaJob failed", "error", err, "id", id)
		return fmt.Errorf("failed to update media job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("media job %s not found", id)
	}
	slog.Debug("SQLiteStore UpdateMediaJob succeeded", "id", id, "status", status)
	return nil
}

func (s *SQLiteStore) GetMediaJob(id string) (*MediaJob, error) {
	row := s.db.QueryRow(`SELECT id, url, kind, format_id, title, artist, requested_by, status, last_error, output_path, created_at, updated_at FROM media_jobs WHERE id = ?`, id)
	j, err := scanMediaJobRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetMediaJob not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetMediaJob failed", "error", err, "id", id)
		return nil, err
	}
	return &j, nil
}

func (s *SQLiteStore) GetMediaJobs() ([]MediaJob, error) {
	rows, err := s.db.Query(`SELECT id, url, kind, format_id, title, artist, requested_by, status, last_error, output_path, created_at, updated_at FROM media_jobs ORDER BY created_at`)
	if err != nil {
		slog.Error("SQLiteStore GetMediaJobs query failed", "error", err)
		return nil, fmt.Errorf("failed to query media jobs: %w", err)
	}
	defer rows.Close()

	var jobs []MediaJob
	for rows.Next() {
		j, err := scanMediaJob(rows)
		if err != nil {
			slog.Error("SQLiteStore GetMediaJobs scan failed", "error", err)
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate media job rows: %w", err)
	}
	slog.Debug("SQLiteStore GetMediaJobs succeeded", "count", len(jobs))
	return jobs, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
