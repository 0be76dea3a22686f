package feedback

import (
	"context"
	"encoding/csv"
	"io"
	"iter"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/esg-lab/pythia/pkg/domain/model"
	"github.com/esg-lab/pythia/pkg/utils/safe"
)

var header = []string{"timestamp", "question", "model_answer", "rating", "comments"}

// Log is an append-only feedback log backed by a CSV file. Appends are
// serialized by a mutex and fsynced before returning, so concurrent
// submissions never interleave and an acknowledged record survives a crash.
// Records are never updated or deleted.
type Log struct {
	mu   sync.Mutex
	path string
}

// New opens (or creates) the feedback log at path and writes the CSV
// header if the file is new.
func New(path string) (*Log, error) {
	l := &Log{path: path}

	info, err := os.Stat(path)
	if err == nil && info.Size() > 0 {
		return l, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, goerr.Wrap(err, "failed to stat feedback log", goerr.V("path", path))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create feedback log", goerr.V("path", path))
	}
	defer safe.Close(context.Background(), f)

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return nil, goerr.Wrap(err, "failed to write feedback header", goerr.V("path", path))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, goerr.Wrap(err, "failed to flush feedback header", goerr.V("path", path))
	}
	if err := f.Sync(); err != nil {
		return nil, goerr.Wrap(err, "failed to sync feedback log", goerr.V("path", path))
	}

	return l, nil
}

// Append durably appends one record. Validation is the caller's
// responsibility; nothing is written for an invalid record upstream.
func (l *Log) Append(ctx context.Context, rec *model.Feedback) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return goerr.Wrap(err, "failed to open feedback log", goerr.V("path", l.path))
	}
	defer safe.Close(ctx, f)

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	w := csv.NewWriter(f)
	row := []string{
		ts.Format(time.RFC3339),
		rec.Question,
		rec.ModelAnswer,
		strconv.Itoa(rec.Rating),
		rec.Comments,
	}
	if err := w.Write(row); err != nil {
		return goerr.Wrap(err, "failed to write feedback record")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return goerr.Wrap(err, "failed to flush feedback record")
	}

	if err := f.Sync(); err != nil {
		return goerr.Wrap(err, "failed to sync feedback log", goerr.V("path", l.path))
	}

	return nil
}

// ReadAll returns the records in insertion order. The sequence reads the
// file lazily and can be iterated multiple times; each iteration opens an
// independent reader.
func (l *Log) ReadAll(ctx context.Context) iter.Seq2[*model.Feedback, error] {
	return func(yield func(*model.Feedback, error) bool) {
		f, err := os.Open(l.path)
		if err != nil {
			if os.IsNotExist(err) {
				return
			}
			yield(nil, goerr.Wrap(err, "failed to open feedback log", goerr.V("path", l.path)))
			return
		}
		defer safe.Close(ctx, f)

		r := csv.NewReader(f)
		r.FieldsPerRecord = len(header)

		// Skip header
		if _, err := r.Read(); err != nil {
			if err != io.EOF {
				yield(nil, goerr.Wrap(err, "failed to read feedback header"))
			}
			return
		}

		for {
			row, err := r.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, goerr.Wrap(err, "failed to read feedback record"))
				return
			}

			rec, err := parseRow(row)
			if !yield(rec, err) {
				return
			}
		}
	}
}

func parseRow(row []string) (*model.Feedback, error) {
	ts, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		return nil, goerr.Wrap(err, "invalid feedback timestamp", goerr.V("value", row[0]))
	}
	rating, err := strconv.Atoi(row[3])
	if err != nil {
		return nil, goerr.Wrap(err, "invalid feedback rating", goerr.V("value", row[3]))
	}

	return &model.Feedback{
		Timestamp:   ts,
		Question:    row[1],
		ModelAnswer: row[2],
		Rating:      rating,
		Comments:    row[4],
	}, nil
}
