// Package runner drives single-image inference over a manifest.
package runner

import (
	"io"
	"log"
	"math"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/Brownie44l1/breed-classify/internal/imaging"
	"github.com/Brownie44l1/breed-classify/internal/model"
)

// Runner classifies manifest records one at a time with a shared session.
type Runner struct {
	Session   model.Session
	ImageDir  string
	ImageSize int
	Logger    *log.Logger

	// OnItem, if set, is called after each record is classified.
	OnItem func(index int, rec model.ManifestRecord)
}

func New(session model.Session, imageDir string, imageSize int) *Runner {
	return &Runner{
		Session:   session,
		ImageDir:  imageDir,
		ImageSize: imageSize,
		Logger:    log.New(io.Discard, "", 0),
	}
}

// Run classifies every record in order and returns a new slice with
// PredictedID set. It stops at the first failing record.
func (r *Runner) Run(records []model.ManifestRecord) ([]model.ManifestRecord, error) {
	out := make([]model.ManifestRecord, len(records))
	copy(out, records)

	for i := range out {
		pred, err := r.classify(out[i].ID)
		if err != nil {
			return nil, errors.Wrapf(err, "record %d (%s)", i, out[i].ID)
		}
		out[i].PredictedID = pred
		r.Logger.Printf("%s: predicted %d (class %d)", out[i].ID, pred, out[i].ClassID)
		if r.OnItem != nil {
			r.OnItem(i, out[i])
		}
	}
	return out, nil
}

func (r *Runner) classify(id string) (int, error) {
	path := filepath.Join(r.ImageDir, id+".jpg")
	tensor, err := imaging.BuildTensor(path, r.ImageSize)
	if err != nil {
		return model.UnsetPrediction, err
	}

	outputs, err := r.Session.Run([]model.NamedTensor{{Name: model.InputName, Tensor: tensor}})
	if err != nil {
		return model.UnsetPrediction, err
	}
	if len(outputs) == 0 {
		return model.UnsetPrediction, errors.Wrap(model.ErrInferenceEngine, "session returned no outputs")
	}

	idx := Argmax(outputs[0].Tensor.Data)
	if idx < 0 {
		return model.UnsetPrediction, errors.Wrapf(model.ErrInferenceEngine, "output %q has no usable scores", outputs[0].Name)
	}
	return idx, nil
}

// Argmax returns the index of the largest score, the first one on ties.
// NaN scores never win; it returns -1 when no score is a number.
func Argmax(scores []float32) int {
	best := -1
	for i, v := range scores {
		if math.IsNaN(float64(v)) {
			continue
		}
		if best < 0 || v > scores[best] {
			best = i
		}
	}
	return best
}
