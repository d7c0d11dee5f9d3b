package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("run not found")

// Run is one recorded check of a target against a contract.
type Run struct {
	ID            string
	Seq           int64
	ContractID    string
	ABI           string
	Mode          string
	Target        string
	InputDigest   string
	OK            bool
	Errors        []string
	VerdictDigest string
	Verdict       []byte // canonical JSON
}

// Filter narrows ListRuns. Zero values match everything.
type Filter struct {
	ContractID string
	Target     string
	FailedOnly bool

	// Limit keeps only the most recent runs. Zero means no limit.
	Limit int
}

// RecordRun appends a run. The store assigns Seq, and ID when it is empty.
// The stored run is returned.
func (s *Store) RecordRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = s.ids.NewID()
	}
	if run.Errors == nil {
		run.Errors = []string{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("record run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&run.Seq); err != nil {
		return Run{}, fmt.Errorf("record run: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, contract_id, abi, mode, target, input_digest, ok, error_count, verdict_digest, verdict)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Seq,
		run.ContractID,
		run.ABI,
		run.Mode,
		run.Target,
		run.InputDigest,
		run.OK,
		len(run.Errors),
		run.VerdictDigest,
		string(run.Verdict),
	)
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}

	for i, msg := range run.Errors {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_errors (run_id, position, message) VALUES (?, ?, ?)
		`, run.ID, i, msg); err != nil {
			return Run{}, fmt.Errorf("record run: error %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("record run: commit: %w", err)
	}
	return run, nil
}

// GetRun returns the run with the given id, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, contract_id, abi, mode, target, input_digest, ok, verdict_digest, verdict
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}
	if err := s.loadErrors(ctx, []*Run{&run}); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns matching runs ordered by seq ascending. With a Limit, the
// most recent Limit runs are returned, still in ascending order.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListRuns(ctx context.Context, f Filter) ([]Run, error) {
	var where []string
	var args []any
	if f.ContractID != "" {
		where = append(where, "contract_id = ?")
		args = append(args, f.ContractID)
	}
	if f.Target != "" {
		where = append(where, "target = ?")
		args = append(args, f.Target)
	}
	if f.FailedOnly {
		where = append(where, "ok = 0")
	}

	inner := `SELECT id, seq, contract_id, abi, mode, target, input_digest, ok, verdict_digest, verdict FROM runs`
	if len(where) > 0 {
		inner += " WHERE " + strings.Join(where, " AND ")
	}
	inner += " ORDER BY seq DESC, id COLLATE BINARY ASC"
	if f.Limit > 0 {
		inner += " LIMIT ?"
		args = append(args, f.Limit)
	}
	query := "SELECT * FROM (" + inner + ") ORDER BY seq ASC, id COLLATE BINARY ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	ptrs := make([]*Run, len(runs))
	for i := range runs {
		ptrs[i] = &runs[i]
	}
	if err := s.loadErrors(ctx, ptrs); err != nil {
		return nil, err
	}
	return runs, nil
}

// LastSeq returns the highest seq recorded, or 0 for an empty store.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM runs`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

// PruneRuns deletes all but the keep most recent runs and returns how many
// were removed. Their error rows go with them.
func (s *Store) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("prune runs: keep must be non-negative, got %d", keep)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE seq NOT IN (SELECT seq FROM runs ORDER BY seq DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var verdict string
	err := row.Scan(
		&run.ID,
		&run.Seq,
		&run.ContractID,
		&run.ABI,
		&run.Mode,
		&run.Target,
		&run.InputDigest,
		&run.OK,
		&run.VerdictDigest,
		&verdict,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Verdict = []byte(verdict)
	return run, nil
}

// loadErrors fills Errors for each run, in recorded order.
func (s *Store) loadErrors(ctx context.Context, runs []*Run) error {
	for _, run := range runs {
		rows, err := s.db.QueryContext(ctx, `
			SELECT message FROM run_errors
			WHERE run_id = ?
			ORDER BY position ASC
		`, run.ID)
		if err != nil {
			return fmt.Errorf("query run errors: %w", err)
		}
		run.Errors = []string{}
		for rows.Next() {
			var msg string
			if err := rows.Scan(&msg); err != nil {
				rows.Close()
				return fmt.Errorf("scan run error: %w", err)
			}
			run.Errors = append(run.Errors, msg)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("iterate run errors: %w", err)
		}
	}
	return nil
}
