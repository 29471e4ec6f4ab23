// Package app wires the manifest, inference session, batch runner and
// result writers into a single classification run.
package app

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"

	"github.com/Brownie44l1/breed-classify/internal/config"
	"github.com/Brownie44l1/breed-classify/internal/history"
	"github.com/Brownie44l1/breed-classify/internal/manifest"
	"github.com/Brownie44l1/breed-classify/internal/model"
	"github.com/Brownie44l1/breed-classify/internal/runner"
)

// SessionOpener builds the inference session for a run.
type SessionOpener func(opts model.SessionOptions) (model.Session, error)

// OpenOrtSession is the production SessionOpener.
func OpenOrtSession(opts model.SessionOptions) (model.Session, error) {
	return model.OpenSession(opts)
}

type Result struct {
	RunID      string
	OutputPath string
	Records    []model.ManifestRecord
	Correct    int
}

type App struct {
	Config config.Config
	Open   SessionOpener
	Logger *log.Logger

	// ProgressOutput receives the progress bar when Config.Progress is set.
	ProgressOutput io.Writer
}

func New(cfg config.Config, open SessionOpener, logger *log.Logger) *App {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &App{Config: cfg, Open: open, Logger: logger}
}

// Run classifies every manifest entry and writes the result file. Nothing
// is written unless every record was classified.
func (a *App) Run() (*Result, error) {
	cfg := a.Config
	runID := uuid.NewString()
	started := time.Now()

	records, err := manifest.Load(cfg.ManifestPath())
	if err != nil {
		return nil, err
	}
	a.Logger.Printf("run %s: %d images, mode %s", runID, len(records), cfg.Mode)

	session, err := a.Open(model.SessionOptions{
		ModelPath:   cfg.ModelPath(),
		InputName:   model.InputName,
		InputShape:  []int64{1, 3, int64(cfg.ImageSize), int64(cfg.ImageSize)},
		Mode:        cfg.Mode,
		LibraryPath: cfg.ORTLib,
	})
	if err != nil {
		return nil, err
	}
	defer session.Close()

	r := runner.New(session, cfg.DataDir, cfg.ImageSize)
	r.Logger = a.Logger
	if cfg.Progress {
		out := a.ProgressOutput
		if out == nil {
			out = io.Discard
		}
		bar := progressbar.NewOptions(len(records),
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("classifying"),
			progressbar.OptionShowCount(),
		)
		r.OnItem = func(int, model.ManifestRecord) { _ = bar.Add(1) }
		defer bar.Finish()
	}

	results, err := r.Run(records)
	if err != nil {
		return nil, err
	}

	path, err := manifest.WriteResults(cfg.OutDir, cfg.Mode, results)
	if err != nil {
		return nil, err
	}
	correct, total := manifest.Accuracy(results)
	a.Logger.Printf("run %s: wrote %s, accuracy %d/%d", runID, path, correct, total)

	if cfg.HistoryDB != "" {
		if err := a.record(history.Run{
			ID:         runID,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Mode:       cfg.Mode,
			ModelPath:  cfg.ModelPath(),
			Total:      total,
			Correct:    correct,
		}, results); err != nil {
			return nil, err
		}
	}

	return &Result{RunID: runID, OutputPath: path, Records: results, Correct: correct}, nil
}

func (a *App) record(run history.Run, records []model.ManifestRecord) error {
	store, err := history.Open(a.Config.HistoryDB)
	if err != nil {
		return errors.Wrapf(err, "failed to open history %s", a.Config.HistoryDB)
	}
	defer store.Close()
	if err := store.RecordRun(run, records); err != nil {
		return errors.Wrap(err, "failed to record run history")
	}
	return nil
}

// ListRuns writes the limit most recent runs from the history database.
func (a *App) ListRuns(w io.Writer, limit int) error {
	store, err := history.Open(a.Config.HistoryDB)
	if err != nil {
		return errors.Wrapf(err, "failed to open history %s", a.Config.HistoryDB)
	}
	defer store.Close()

	runs, err := store.RecentRuns(limit)
	if err != nil {
		return errors.Wrap(err, "failed to list runs")
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %s  %d/%d  %s\n",
			r.ID, r.StartedAt.Local().Format(time.RFC3339), r.Mode, r.Correct, r.Total, r.ModelPath)
	}
	return nil
}

// ExportRun writes the stored predictions of runID in result file format.
func (a *App) ExportRun(w io.Writer, runID string) error {
	store, err := history.Open(a.Config.HistoryDB)
	if err != nil {
		return errors.Wrapf(err, "failed to open history %s", a.Config.HistoryDB)
	}
	defer store.Close()

	records, err := store.Predictions(runID)
	if err != nil {
		return errors.Wrapf(err, "failed to load run %s", runID)
	}
	if len(records) == 0 {
		return errors.Errorf("no predictions stored for run %s", runID)
	}
	return manifest.Write(w, records)
}
