package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/inverseflow/internal/timeutil"
)

// ErrNotFound is returned when a run ID has no row.
var ErrNotFound = errors.New("run not found")

// Run is one recorded inversion.
type Run struct {
	RunID          string          `json:"run_id"`
	CreatedAt      int64           `json:"created_at"`
	Label          string          `json:"label,omitempty"`
	SourcePath     string          `json:"source_path"`
	Width          int             `json:"width"`
	Height         int             `json:"height"`
	Strategy       string          `json:"strategy"`
	Fill           string          `json:"fill"`
	ParamsJSON     json.RawMessage `json:"params_json,omitempty"`
	ValidFraction  float64         `json:"valid_fraction"`
	CandidateTotal int             `json:"candidate_total"`
	DurationNs     int64           `json:"duration_ns"`

	// Optional scores; nil when the inputs to compute them were absent.
	MeanEPE          *float64 `json:"mean_epe,omitempty"`
	PhotometricError *float64 `json:"photometric_error,omitempty"`
	Consistency      *float64 `json:"consistency,omitempty"`

	FlowBlob []byte `json:"-"`
	MaskBlob []byte `json:"-"`
}

// RunFilter narrows List and Best. Zero values match everything.
type RunFilter struct {
	Label    string
	Strategy string
	Fill     string
	Limit    int
}

// RunStore provides persistence for inversion runs.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db, clock: timeutil.RealClock{}}
}

// SetClock replaces the clock used for created_at stamps and busy backoff.
func (s *RunStore) SetClock(c timeutil.Clock) { s.clock = c }

const runColumns = `run_id, created_at, label, source_path, width, height, strategy, fill,
	params_json, valid_fraction, candidate_total, duration_ns,
	mean_epe, photometric_error, consistency`

// Insert persists a run. If RunID is empty, a UUID is generated; if
// CreatedAt is zero, the current time is used.
func (s *RunStore) Insert(r *Run) error {
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = s.clock.Now().UnixNano()
	}

	var params interface{}
	if len(r.ParamsJSON) > 0 {
		params = string(r.ParamsJSON)
	}

	return retryOnBusy(s.clock, func() error {
		_, err := s.db.Exec(`
			INSERT INTO inversion_runs (`+runColumns+`, flow_blob, mask_blob)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.CreatedAt, r.Label, r.SourcePath, r.Width, r.Height, r.Strategy, r.Fill,
			params, r.ValidFraction, r.CandidateTotal, r.DurationNs,
			r.MeanEPE, r.PhotometricError, r.Consistency,
			r.FlowBlob, r.MaskBlob,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

// Get returns a run by ID, including its blobs.
func (s *RunStore) Get(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT `+runColumns+`, flow_blob, mask_blob
		FROM inversion_runs
		WHERE run_id = ?`, runID)

	r, err := scanRun(row.Scan, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return r, err
}

// List returns runs newest first, without blobs.
func (s *RunStore) List(filter RunFilter) ([]*Run, error) {
	where, args := filter.where()
	query := `SELECT ` + runColumns + ` FROM inversion_runs` + where + ` ORDER BY created_at DESC, run_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows.Scan, false)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Best returns the matching run with the lowest mean endpoint error. Runs
// recorded without a reference are ignored.
func (s *RunStore) Best(filter RunFilter) (*Run, error) {
	where, args := filter.where()
	if where == "" {
		where = " WHERE mean_epe IS NOT NULL"
	} else {
		where += " AND mean_epe IS NOT NULL"
	}
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM inversion_runs`+where+
		` ORDER BY mean_epe ASC, created_at DESC LIMIT 1`, args...)
	r, err := scanRun(row.Scan, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no scored runs", ErrNotFound)
	}
	return r, err
}

// Delete removes a run by ID.
func (s *RunStore) Delete(runID string) error {
	return retryOnBusy(s.clock, func() error {
		result, err := s.db.Exec(`DELETE FROM inversion_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil
	})
}

func (f RunFilter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.Label != "" {
		clauses = append(clauses, "label = ?")
		args = append(args, f.Label)
	}
	if f.Strategy != "" {
		clauses = append(clauses, "strategy = ?")
		args = append(args, f.Strategy)
	}
	if f.Fill != "" {
		clauses = append(clauses, "fill = ?")
		args = append(args, f.Fill)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanRun(scan func(dest ...interface{}) error, withBlobs bool) (*Run, error) {
	var r Run
	var params sql.NullString
	var epe, photo, consistency sql.NullFloat64
	dest := []interface{}{
		&r.RunID, &r.CreatedAt, &r.Label, &r.SourcePath, &r.Width, &r.Height, &r.Strategy, &r.Fill,
		&params, &r.ValidFraction, &r.CandidateTotal, &r.DurationNs,
		&epe, &photo, &consistency,
	}
	if withBlobs {
		dest = append(dest, &r.FlowBlob, &r.MaskBlob)
	}
	if err := scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if params.Valid {
		r.ParamsJSON = json.RawMessage(params.String)
	}
	r.MeanEPE = nullFloat(epe)
	r.PhotometricError = nullFloat(photo)
	r.Consistency = nullFloat(consistency)
	return &r, nil
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// retryOnBusy retries fn while SQLite reports the database as locked.
func retryOnBusy(clock timeutil.Clock, fn func() error) error {
	const attempts = 5
	backoff := 10 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		clock.Sleep(backoff)
		backoff *= 2
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
