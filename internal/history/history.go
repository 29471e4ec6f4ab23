// Package history keeps a SQLite log of completed classification runs.
package history

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/Brownie44l1/breed-classify/internal/model"
)

type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Mode       model.RunMode
	ModelPath  string
	Total      int
	Correct    int
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		started_at  DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		mode        TEXT NOT NULL,
		model_path  TEXT NOT NULL,
		total       INTEGER NOT NULL,
		correct     INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS predictions (
		run_id     TEXT NOT NULL,
		position   INTEGER NOT NULL,
		image_id   TEXT NOT NULL,
		breed      TEXT DEFAULT '',
		class_id   INTEGER NOT NULL,
		predict_id INTEGER NOT NULL,
		PRIMARY KEY (run_id, position)
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_image ON predictions(image_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores the run and all of its predictions in one transaction.
func (s *Store) RecordRun(run Run, records []model.ManifestRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, started_at, finished_at, mode, model_path, total, correct)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), string(run.Mode), run.ModelPath, run.Total, run.Correct,
	)
	if err != nil {
		return errors.Wrapf(err, "insert run %s", run.ID)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO predictions (run_id, position, image_id, breed, class_id, predict_id)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.Exec(run.ID, i, rec.ID, rec.Breed, rec.ClassID, rec.PredictedID); err != nil {
			return errors.Wrapf(err, "insert prediction %s", rec.ID)
		}
	}
	return tx.Commit()
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, finished_at, mode, model_path, total, correct
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var mode string
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &mode, &r.ModelPath, &r.Total, &r.Correct); err != nil {
			return nil, err
		}
		r.Mode = model.RunMode(mode)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Predictions returns the stored records of a run in manifest order.
func (s *Store) Predictions(runID string) ([]model.ManifestRecord, error) {
	rows, err := s.db.Query(
		`SELECT image_id, breed, class_id, predict_id
		 FROM predictions WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.ManifestRecord
	for rows.Next() {
		var rec model.ManifestRecord
		if err := rows.Scan(&rec.ID, &rec.Breed, &rec.ClassID, &rec.PredictedID); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
