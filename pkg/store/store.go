// Package store persists reconstruction runs and their grain tables in a
// SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"ebsdrecon/pkg/reconstruction"
)

// ErrNotFound is returned when a run id is not in the database.
var ErrNotFound = errors.New("store: run not found")

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id          TEXT PRIMARY KEY,
		created_at      INTEGER NOT NULL,
		x_points        INTEGER NOT NULL,
		y_points        INTEGER NOT NULL,
		z_points        INTEGER NOT NULL,
		grain_count     INTEGER NOT NULL,
		unbiased_count  INTEGER NOT NULL,
		mean_esd        REAL,
		std_esd         REAL,
		log_mu          REAL,
		log_sigma       REAL,
		mean_neighbors  REAL,
		params_json     TEXT
	);
	CREATE TABLE IF NOT EXISTS grains (
		run_id              TEXT NOT NULL,
		grain_id            INTEGER NOT NULL,
		phase               INTEGER NOT NULL,
		voxels              INTEGER NOT NULL,
		volume              REAL,
		esd                 REAL,
		phi1                REAL,
		phi                 REAL,
		phi2                REAL,
		centroid_x          REAL,
		centroid_y          REAL,
		centroid_z          REAL,
		aspect_ba           REAL,
		aspect_ca           REAL,
		omega3              REAL,
		avg_misorientation  REAL,
		surface             INTEGER NOT NULL,
		twin_merged         INTEGER NOT NULL,
		colony_merged       INTEGER NOT NULL,
		PRIMARY KEY (run_id, grain_id),
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS neighbors (
		run_id       TEXT NOT NULL,
		grain_id     INTEGER NOT NULL,
		neighbor_id  INTEGER NOT NULL,
		faces        INTEGER NOT NULL,
		area         REAL,
		PRIMARY KEY (run_id, grain_id, neighbor_id),
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);
`

// Run is one row of the runs table.
type Run struct {
	RunID         string          `json:"run_id"`
	CreatedAt     int64           `json:"created_at"`
	XPoints       int             `json:"x_points"`
	YPoints       int             `json:"y_points"`
	ZPoints       int             `json:"z_points"`
	GrainCount    int             `json:"grain_count"`
	UnbiasedCount int             `json:"unbiased_count"`
	MeanESD       float64         `json:"mean_esd"`
	StdESD        float64         `json:"std_esd"`
	LogMu         float64         `json:"log_mu"`
	LogSigma      float64         `json:"log_sigma"`
	MeanNeighbors float64         `json:"mean_neighbors"`
	ParamsJSON    json.RawMessage `json:"params_json,omitempty"`
}

// Grain is one row of the grains table. Angles are in radians.
type Grain struct {
	GrainID           int     `json:"grain_id"`
	Phase             int     `json:"phase"`
	Voxels            int     `json:"voxels"`
	Volume            float64 `json:"volume"`
	ESD               float64 `json:"esd"`
	Phi1              float64 `json:"phi1"`
	Phi               float64 `json:"phi"`
	Phi2              float64 `json:"phi2"`
	CentroidX         float64 `json:"centroid_x"`
	CentroidY         float64 `json:"centroid_y"`
	CentroidZ         float64 `json:"centroid_z"`
	AspectBA          float64 `json:"aspect_ba"`
	AspectCA          float64 `json:"aspect_ca"`
	Omega3            float64 `json:"omega3"`
	AvgMisorientation float64 `json:"avg_misorientation"`
	Surface           bool    `json:"surface"`
	TwinMerged        bool    `json:"twin_merged"`
	ColonyMerged      bool    `json:"colony_merged"`
}

// Store writes results to SQLite. It implements reconstruction.Sink.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema. Use
// ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases alive across calls and
	// serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Name implements reconstruction.Sink.
func (s *Store) Name() string { return "sqlite" }

// Consume writes the run, its grains and the neighbour pairs in one
// transaction.
func (s *Store) Consume(ctx context.Context, r *reconstruction.Result) error {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("store: marshal params: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	st := r.Stats
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, created_at, x_points, y_points, z_points,
			grain_count, unbiased_count, mean_esd, std_esd, log_mu, log_sigma,
			mean_neighbors, params_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID.String(), time.Now().UnixNano(), r.Grid.XPoints, r.Grid.YPoints, r.Grid.ZPoints,
		st.GrainCount, st.UnbiasedCount, st.MeanESD, st.StdESD, st.LogMu, st.LogSigma,
		st.MeanNeighbors, string(params),
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}

	grainStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO grains (
			run_id, grain_id, phase, voxels, volume, esd, phi1, phi, phi2,
			centroid_x, centroid_y, centroid_z, aspect_ba, aspect_ca, omega3,
			avg_misorientation, surface, twin_merged, colony_merged
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare grains: %w", err)
	}
	defer grainStmt.Close()

	neighborStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO neighbors (run_id, grain_id, neighbor_id, faces, area)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare neighbors: %w", err)
	}
	defer neighborStmt.Close()

	id := r.RunID.String()
	for _, g := range r.Graph.Active() {
		_, err := grainStmt.ExecContext(ctx,
			id, g.ID, g.Phase, g.Size(), g.Volume, g.EquivDiameter,
			g.Euler.Phi1, g.Euler.Phi, g.Euler.Phi2,
			g.Centroid.X, g.Centroid.Y, g.Centroid.Z,
			g.AspectRatios[0], g.AspectRatios[1], g.Omega3,
			g.AvgMisorientation, g.SurfaceGrain, g.TwinMerged, g.ColonyMerged,
		)
		if err != nil {
			return fmt.Errorf("store: insert grain %d: %w", g.ID, err)
		}
		for _, n := range g.Neighbors {
			if _, err := neighborStmt.ExecContext(ctx, id, g.ID, n.ID, n.Faces, n.Area); err != nil {
				return fmt.Errorf("store: insert neighbor %d-%d: %w", g.ID, n.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Run returns the stored summary of one run.
func (s *Store) Run(ctx context.Context, runID uuid.UUID) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, created_at, x_points, y_points, z_points,
		       grain_count, unbiased_count, mean_esd, std_esd, log_mu, log_sigma,
		       mean_neighbors, params_json
		FROM runs
		WHERE run_id = ?`, runID.String())

	var r Run
	var paramsStr sql.NullString
	err := row.Scan(
		&r.RunID, &r.CreatedAt, &r.XPoints, &r.YPoints, &r.ZPoints,
		&r.GrainCount, &r.UnbiasedCount, &r.MeanESD, &r.StdESD, &r.LogMu, &r.LogSigma,
		&r.MeanNeighbors, &paramsStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("store: scan run: %w", err)
	}
	if paramsStr.Valid {
		r.ParamsJSON = json.RawMessage(paramsStr.String)
	}
	return &r, nil
}

// Runs lists the stored run ids, newest first.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: query runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Grains returns the grains of a run ordered by id.
func (s *Store) Grains(ctx context.Context, runID uuid.UUID) ([]Grain, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT grain_id, phase, voxels, volume, esd, phi1, phi, phi2,
		       centroid_x, centroid_y, centroid_z, aspect_ba, aspect_ca, omega3,
		       avg_misorientation, surface, twin_merged, colony_merged
		FROM grains
		WHERE run_id = ?
		ORDER BY grain_id`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("store: query grains: %w", err)
	}
	defer rows.Close()

	var grains []Grain
	for rows.Next() {
		var g Grain
		err := rows.Scan(
			&g.GrainID, &g.Phase, &g.Voxels, &g.Volume, &g.ESD, &g.Phi1, &g.Phi, &g.Phi2,
			&g.CentroidX, &g.CentroidY, &g.CentroidZ, &g.AspectBA, &g.AspectCA, &g.Omega3,
			&g.AvgMisorientation, &g.Surface, &g.TwinMerged, &g.ColonyMerged,
		)
		if err != nil {
			return nil, fmt.Errorf("store: scan grain: %w", err)
		}
		grains = append(grains, g)
	}
	return grains, rows.Err()
}

// Neighbors returns the neighbour ids of one grain of a run, ascending.
func (s *Store) Neighbors(ctx context.Context, runID uuid.UUID, grainID int) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT neighbor_id FROM neighbors
		WHERE run_id = ? AND grain_id = ?
		ORDER BY neighbor_id`, runID.String(), grainID)
	if err != nil {
		return nil, fmt.Errorf("store: query neighbors: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a run together with its grains and neighbours.
func (s *Store) Delete(ctx context.Context, runID uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID.String())
	if err != nil {
		return fmt.Errorf("store: delete run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return nil
}
