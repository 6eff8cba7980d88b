package store

import (
	"database/sql"
	"fmt"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanSubmission scans a Submission from sql.Rows.
func scanSubmission(rows *sql.Rows) (Submission, error) {
	var s Submission
	err := rows.Scan(&s.ID, &s.Artist, &s.SourcePrefix, &s.ArtworkID, &s.ImagePath, &s.SubmittedBy, &s.GroupID, &s.CreatedAt)
	if err != nil {
		return s, fmt.Errorf("scan submission failed: %w", err)
	}
	return s, nil
}

// scanQuizResult scans a QuizResult from sql.Rows.
func scanQuizResult(rows *sql.Rows) (QuizResult, error) {
	var r QuizResult
	err := rows.Scan(&r.ID, &r.GroupID, &r.Song, &r.StarterID, &r.WinnerID, &r.TimedOut, &r.CreatedAt)
	if err != nil {
		return r, fmt.Errorf("scan quiz result failed: %w", err)
	}
	return r, nil
}

// scanMediaJob scans a MediaJob from sql.Rows.
func scanMediaJob(rows *sql.Rows) (MediaJob, error) {
	var j MediaJob
	var formatID, title, artist, lastError, outputPath sql.NullString
	err := rows.Scan(&j.ID, &j.URL, &j.Kind, &formatID, &title, &artist, &j.RequestedBy, &j.Status, &lastError, &outputPath, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return j, fmt.Errorf("scan media job failed: %w", err)
	}
	j.FormatID = formatID.String
	j.Title = title.String
	j.Artist = artist.String
	j.LastError = lastError.String
	j.OutputPath = outputPath.String
	return j, nil
}

// scanMediaJobRow scans a MediaJob from a single sql.Row.
func scanMediaJobRow(row *sql.Row) (MediaJob, error) {
	var j MediaJob
	var formatID, title, artist, lastError, outputPath sql.NullString
	err := row.Scan(&j.ID, &j.URL, &j.Kind, &formatID, &title, &artist, &j.RequestedBy, &j.Status, &lastError, &outputPath, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return j, err
	}
	j.FormatID = formatID.String
	j.Title = title.String
	j.Artist = artist.String
	j.LastError = lastError.String
	j.OutputPath = outputPath.String
	return j, nil
}
