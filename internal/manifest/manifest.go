// Package manifest reads the image manifest and writes prediction results.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/Brownie44l1/breed-classify/internal/model"
)

// ErrManifestFormat is returned for rows that cannot be parsed.
var ErrManifestFormat = errors.New("manifest format error")

// Header is the column layout of the result file.
var Header = []string{"id", "breed", "class_id", "predict_id"}

// Load reads the manifest at path.
func Load(path string) ([]model.ManifestRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open manifest %s", path)
	}
	defer f.Close()

	records, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "manifest %s", path)
	}
	return records, nil
}

// Parse reads "id,breed,class_id[,predict_id]" rows after a header line.
// Blank lines are skipped and any predict_id column is ignored.
func Parse(r io.Reader) ([]model.ManifestRecord, error) {
	var records []model.ManifestRecord
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if line == 1 || text == "" {
			continue
		}
		fields := strings.Split(text, ",")
		if len(fields) < 3 {
			return nil, errors.Wrapf(ErrManifestFormat, "line %d: expected at least 3 fields, got %d", line, len(fields))
		}
		classID, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return nil, errors.Wrapf(ErrManifestFormat, "line %d: invalid class_id %q", line, fields[2])
		}
		records = append(records, model.ManifestRecord{
			ID:          fields[0],
			Breed:       fields[1],
			ClassID:     classID,
			PredictedID: model.UnsetPrediction,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read manifest")
	}
	return records, nil
}

// ResultPath returns the output file for a run mode, e.g. dir/result_cpu.csv.
func ResultPath(dir string, mode model.RunMode) string {
	return filepath.Join(dir, fmt.Sprintf("result_%s.csv", mode))
}

// Write emits the result header and one "id,breed,class_id,predict_id"
// line per record. Fields are written as-is, without CSV quoting.
func Write(w io.Writer, records []model.ManifestRecord) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, strings.Join(Header, ",")); err != nil {
		return err
	}
	for _, rec := range records {
		if _, err := fmt.Fprintf(bw, "%s,%s,%d,%d\n", rec.ID, rec.Breed, rec.ClassID, rec.PredictedID); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteResults writes the result file for mode into dir. The data goes to a
// temporary file first so a failed write never leaves a partial result.
func WriteResults(dir string, mode model.RunMode, records []model.ManifestRecord) (string, error) {
	path := ResultPath(dir, mode)
	tmp, err := os.CreateTemp(dir, ".result-*.csv")
	if err != nil {
		return "", errors.Wrapf(err, "failed to create temp file in %s", dir)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return "", errors.Wrapf(err, "failed to prepare %s", path)
	}
	if err := Write(tmp, records); err != nil {
		tmp.Close()
		return "", errors.Wrapf(err, "failed to write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.Wrapf(err, "failed to move results to %s", path)
	}
	return path, nil
}

// Accuracy counts records whose prediction matches the ground-truth class.
func Accuracy(records []model.ManifestRecord) (correct, total int) {
	for _, rec := range records {
		if rec.PredictedID == rec.ClassID {
			correct++
		}
	}
	return correct, len(records)
}
