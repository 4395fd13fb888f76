// Package registry keeps a SQLite ledger of completed decoding runs and their accuracies.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/KyungWonPark/Decoding/internal/crossval"
)

// Run is one participant invocation
type Run struct {
	ID          string
	Participant string
	Started     time.Time
	Finished    time.Time
	Seed        int64
	Manifest    string
}

// Accuracy is one row of a run's accuracy table. Value is NaN when undefined.
type Accuracy struct {
	Stem    string
	Perm    int
	HeldOut string
	RunID   string
	Value   float64
}

// Registry is the SQLite-backed run ledger
type Registry struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// New returns a registry stored at path. Call Init before use.
func New(path string) *Registry {
	return &Registry{path: path}
}

// Init opens the database and creates missing tables
func (r *Registry) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.path == "" {
		return errors.New("registry path is required")
	}
	if r.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", r.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	r.db = db
	return nil
}

// Close releases the database
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func (r *Registry) getDB() (*sql.DB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.db == nil {
		return nil, errors.New("registry is not initialized")
	}
	return r.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			participant TEXT NOT NULL,
			started TEXT NOT NULL,
			finished TEXT NOT NULL,
			seed INTEGER NOT NULL,
			manifest TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS accuracies (
			stem TEXT NOT NULL,
			i_perm INTEGER NOT NULL,
			held_out_split TEXT NOT NULL,
			run_id TEXT NOT NULL,
			clf_acc REAL,
			PRIMARY KEY (stem, i_perm, held_out_split)
		);
	`)
	return err
}

// Record stores a run and the accuracies of its scopes in one transaction. A rerun of the same
// stem replaces the earlier accuracies.
func (r *Registry) Record(ctx context.Context, run Run, stems []string, results []crossval.ScopeResult) error {
	if len(stems) != len(results) {
		return fmt.Errorf("Record: %d stems for %d scopes", len(stems), len(results))
	}

	db, err := r.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, participant, started, finished, seed, manifest)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			participant = excluded.participant,
			started = excluded.started,
			finished = excluded.finished,
			seed = excluded.seed,
			manifest = excluded.manifest
	`, run.ID, run.Participant, run.Started.UTC().Format(time.RFC3339Nano), run.Finished.UTC().Format(time.RFC3339Nano), run.Seed, run.Manifest)
	if err != nil {
		return fmt.Errorf("Record: run %s: %w", run.ID, err)
	}

	for i, res := range results {
		for _, cv := range res.Runs {
			for _, a := range cv.Accuracy {
				value := sql.NullFloat64{Float64: a.Value, Valid: !math.IsNaN(a.Value)}
				_, err = tx.ExecContext(ctx, `
					INSERT INTO accuracies (stem, i_perm, held_out_split, run_id, clf_acc)
					VALUES (?, ?, ?, ?, ?)
					ON CONFLICT(stem, i_perm, held_out_split) DO UPDATE SET
						run_id = excluded.run_id,
						clf_acc = excluded.clf_acc
				`, stems[i], cv.Perm, a.HeldOut, run.ID, value)
				if err != nil {
					return fmt.Errorf("Record: %s: %w", stems[i], err)
				}
			}
		}
	}

	return tx.Commit()
}

// Accuracies returns the stored accuracies of a stem ordered by permutation index
func (r *Registry) Accuracies(ctx context.Context, stem string) ([]Accuracy, error) {
	db, err := r.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT stem, i_perm, held_out_split, run_id, clf_acc FROM accuracies
		WHERE stem = ? ORDER BY i_perm, held_out_split
	`, stem)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Accuracy
	for rows.Next() {
		var a Accuracy
		var value sql.NullFloat64
		if err := rows.Scan(&a.Stem, &a.Perm, &a.HeldOut, &a.RunID, &value); err != nil {
			return nil, err
		}
		a.Value = math.NaN()
		if value.Valid {
			a.Value = value.Float64
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LatestRun returns the most recently finished run of a participant
func (r *Registry) LatestRun(ctx context.Context, participant string) (Run, bool, error) {
	db, err := r.getDB()
	if err != nil {
		return Run{}, false, err
	}

	var run Run
	var started, finished string
	err = db.QueryRowContext(ctx, `
		SELECT run_id, participant, started, finished, seed, manifest FROM runs
		WHERE participant = ? ORDER BY finished DESC LIMIT 1
	`, participant).Scan(&run.ID, &run.Participant, &started, &finished, &run.Seed, &run.Manifest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}

	if run.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, false, fmt.Errorf("LatestRun: %w", err)
	}
	if run.Finished, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return Run{}, false, fmt.Errorf("LatestRun: %w", err)
	}
	return run, true, nil
}
