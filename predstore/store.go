// Package predstore records decoded questions in a SQLite
// database so that decoding runs can be compared later.
package predstore

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	model_path  TEXT NOT NULL,
	beam_size   INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS predictions (
	run_id        TEXT NOT NULL,
	example_idx   INTEGER NOT NULL,
	base_question TEXT NOT NULL,
	prediction    TEXT NOT NULL,
	target        TEXT,
	score         REAL NOT NULL,
	PRIMARY KEY (run_id, example_idx),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// A Run describes one decoding run.
type Run struct {
	ID        string
	ModelPath string
	BeamSize  int
	CreatedAt time.Time
}

// A Prediction is the decoded question for one example.
type Prediction struct {
	ExampleIndex int
	BaseQuestion string
	Prediction   string
	Target       string
	Score        float64
}

// Store manages decoding runs in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and creates the tables
// if they do not exist.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open db")
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "pragma")
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun creates a new run and returns its id.
func (s *Store) StartRun(modelPath string, beamSize int) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		ModelPath: modelPath,
		BeamSize:  beamSize,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, model_path, beam_size, created_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.ModelPath, run.BeamSize, run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, errors.Wrap(err, "insert run")
	}
	return run, nil
}

// Record stores the predictions of a run atomically.
func (s *Store) Record(runID string, preds []Prediction) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO predictions (run_id, example_idx, base_question, prediction, target, score)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	for _, p := range preds {
		var target interface{}
		if p.Target != "" {
			target = p.Target
		}
		_, err := stmt.Exec(runID, p.ExampleIndex, p.BaseQuestion, p.Prediction, target,
			p.Score)
		if err != nil {
			return errors.Wrapf(err, "insert prediction %d", p.ExampleIndex)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// Run looks up a run by id.
func (s *Store) Run(runID string) (*Run, error) {
	run := &Run{}
	var created string
	err := s.db.QueryRow(
		`SELECT run_id, model_path, beam_size, created_at FROM runs WHERE run_id = ?`, runID,
	).Scan(&run.ID, &run.ModelPath, &run.BeamSize, &created)
	if err != nil {
		return nil, errors.Wrapf(err, "get run %s", runID)
	}
	run.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, errors.Wrapf(err, "parse run %s created_at", runID)
	}
	return run, nil
}

// Predictions returns the predictions of a run, ordered by
// example index.
func (s *Store) Predictions(runID string) ([]Prediction, error) {
	rows, err := s.db.Query(
		`SELECT example_idx, base_question, prediction, target, score
		 FROM predictions WHERE run_id = ? ORDER BY example_idx`, runID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query predictions")
	}
	defer rows.Close()

	var res []Prediction
	for rows.Next() {
		var p Prediction
		var target sql.NullString
		if err := rows.Scan(&p.ExampleIndex, &p.BaseQuestion, &p.Prediction, &target,
			&p.Score); err != nil {
			return nil, errors.Wrap(err, "scan prediction")
		}
		p.Target = target.String
		res = append(res, p)
	}
	return res, rows.Err()
}
