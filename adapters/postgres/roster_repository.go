package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"gobandits/domain/arms"
	"gobandits/domain/core"
	"gobandits/internal/errors"
	"gobandits/ports"
)

// scriptRow mirrors one bandit_scripts row
type scriptRow struct {
	RosterName       string          `db:"roster_name"`
	Position         int             `db:"position"`
	Name             string          `db:"name"`
	Command          string          `db:"command"`
	Interesting      int64           `db:"interesting"`
	Uninteresting    int64           `db:"uninteresting"`
	RunCount         int64           `db:"runcount"`
	AvgRuntimeMs     sql.NullFloat64 `db:"avgruntime_ms"`
	Bias             float64         `db:"bias"`
	LimitInteresting sql.NullInt64   `db:"limit_interesting"`
}

func (r scriptRow) toScript() arms.Script {
	s := arms.Script{
		Name:    core.ArmName(r.Name),
		Command: r.Command,
		Results: arms.Statistics{
			Interesting:   uint64(r.Interesting),
			Uninteresting: uint64(r.Uninteresting),
		},
		RunCount:     uint64(r.RunCount),
		AvgRuntimeMs: arms.UnknownRuntime,
		Bias:         r.Bias,
	}
	if r.AvgRuntimeMs.Valid {
		s.AvgRuntimeMs = arms.RuntimeOf(r.AvgRuntimeMs.Float64)
	}
	if r.LimitInteresting.Valid {
		limit := uint64(r.LimitInteresting.Int64)
		s.Limit = &limit
	}
	return s
}

func fromScript(roster string, position int, s arms.Script) (scriptRow, error) {
	row := scriptRow{
		RosterName: roster,
		Position:   position,
		Name:       s.Name.String(),
		Command:    s.Command,
		Bias:       s.Bias,
	}
	for _, v := range []uint64{s.Results.Interesting, s.Results.Uninteresting, s.RunCount} {
		if v > math.MaxInt64 {
			return scriptRow{}, errors.InvalidInput(fmt.Sprintf("script %s: counter %d does not fit a BIGINT", s.Name, v))
		}
	}
	row.Interesting = int64(s.Results.Interesting)
	row.Uninteresting = int64(s.Results.Uninteresting)
	row.RunCount = int64(s.RunCount)
	if ms, known := s.AvgRuntimeMs.Get(); known {
		row.AvgRuntimeMs = sql.NullFloat64{Float64: ms, Valid: true}
	}
	if s.Limit != nil {
		if *s.Limit > math.MaxInt64 {
			return scriptRow{}, errors.InvalidInput(fmt.Sprintf("script %s: limit %d does not fit a BIGINT", s.Name, *s.Limit))
		}
		row.LimitInteresting = sql.NullInt64{Int64: int64(*s.Limit), Valid: true}
	}
	return row, nil
}

// RosterRepositoryImpl stores one named roster in PostgreSQL
type RosterRepositoryImpl struct {
	db   *sqlx.DB
	name string
}

var (
	_ ports.RosterRepository = (*RosterRepositoryImpl)(nil)
	_ ports.RunJournal       = (*RosterRepositoryImpl)(nil)
)

// NewRosterRepository creates a repository for the roster called name
func NewRosterRepository(db *sqlx.DB, name string) *RosterRepositoryImpl {
	return &RosterRepositoryImpl{db: db, name: name}
}

// Load reads the roster's scripts in roster order
func (r *RosterRepositoryImpl) Load(ctx context.Context) (*arms.Roster, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM bandit_rosters WHERE name = $1)
	`, r.name); err != nil {
		return nil, errors.DatabaseError("failed to look up roster", err)
	}
	if !exists {
		return nil, errors.NotFound(fmt.Sprintf("roster %s", r.name))
	}

	var rows []scriptRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT roster_name, position, name, command, interesting, uninteresting,
		       runcount, avgruntime_ms, bias, limit_interesting
		FROM bandit_scripts
		WHERE roster_name = $1
		ORDER BY position
	`, r.name); err != nil {
		return nil, errors.DatabaseError("failed to load scripts", err)
	}

	roster := &arms.Roster{Scripts: make([]arms.Script, 0, len(rows))}
	for _, row := range rows {
		roster.Scripts = append(roster.Scripts, row.toScript())
	}
	if err := roster.Validate(); err != nil {
		return nil, errors.Wrapf(err, "roster %s", r.name)
	}
	return roster, nil
}

// Save replaces the roster's scripts in a single transaction
func (r *RosterRepositoryImpl) Save(ctx context.Context, roster *arms.Roster) error {
	if err := roster.Validate(); err != nil {
		return errors.Wrapf(err, "roster %s", r.name)
	}

	rows := make([]scriptRow, 0, len(roster.Scripts))
	for i, s := range roster.Scripts {
		row, err := fromScript(r.name, i, s)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bandit_rosters (name, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (name) DO UPDATE SET updated_at = EXCLUDED.updated_at
	`, r.name, time.Now()); err != nil {
		return errors.DatabaseError("failed to upsert roster", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM bandit_scripts WHERE roster_name = $1`, r.name); err != nil {
		return errors.DatabaseError("failed to clear scripts", err)
	}

	if len(rows) > 0 {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO bandit_scripts (roster_name, position, name, command, interesting, uninteresting,
			                            runcount, avgruntime_ms, bias, limit_interesting)
			VALUES (:roster_name, :position, :name, :command, :interesting, :uninteresting,
			        :runcount, :avgruntime_ms, :bias, :limit_interesting)
		`, rows); err != nil {
			return errors.DatabaseError("failed to insert scripts", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit roster", err)
	}
	return nil
}

// Append records one scheduler step in bandit_runs
func (r *RosterRepositoryImpl) Append(ctx context.Context, record arms.StepRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bandit_runs (run_id, step, roster_name, script_name, exit_code, interesting, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, record.RunID.String(), record.Step, r.name, record.Script.String(), record.Outcome.ExitCode,
		record.Outcome.Interesting > 0, float64(record.Outcome.Duration)/float64(time.Millisecond))
	if err != nil {
		return errors.DatabaseError("failed to append run step", err)
	}
	return nil
}

// StepCount returns how many steps have been journaled for the roster
func (r *RosterRepositoryImpl) StepCount(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM bandit_runs WHERE roster_name = $1`, r.name); err != nil {
		return 0, errors.DatabaseError("failed to count run steps", err)
	}
	return n, nil
}
