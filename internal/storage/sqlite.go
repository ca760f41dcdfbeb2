package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dennisdiepolder/breakroster/internal/types"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite file in WAL mode.
// Conditional writes rely on RowsAffected of guarded UPDATEs; transactions
// open with an immediate write lock (_txlock) so concurrent writers
// serialize instead of failing on snapshot upgrades.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database file and runs the schema
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	dsn := path + "?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info().Str("path", path).Msg("sqlite store initialized")
	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS shifts (
		agent_id   TEXT NOT NULL,
		agent_name TEXT NOT NULL DEFAULT '',
		date       TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		shift_type TEXT NOT NULL,
		revision   INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (agent_id, date)
	);
	CREATE INDEX IF NOT EXISTS idx_shifts_date ON shifts(date);

	CREATE TABLE IF NOT EXISTS breaks (
		agent_id   TEXT NOT NULL,
		date       TEXT NOT NULL,
		shift_type TEXT NOT NULL,
		slots      TEXT NOT NULL,
		revision   INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (agent_id, date)
	);
	CREATE INDEX IF NOT EXISTS idx_breaks_date ON breaks(date);

	CREATE TABLE IF NOT EXISTS settings (
		shift_type      TEXT PRIMARY KEY,
		hb1_start_slot  INTEGER NOT NULL,
		b_gap_minutes   INTEGER NOT NULL,
		hb2_gap_minutes INTEGER NOT NULL,
		increment       INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS requests (
		id               TEXT PRIMARY KEY,
		kind             TEXT NOT NULL,
		requester_id     TEXT NOT NULL,
		status           TEXT NOT NULL,
		reason           TEXT NOT NULL DEFAULT '',
		target_id        TEXT NOT NULL DEFAULT '',
		requester_date   TEXT NOT NULL DEFAULT '',
		target_date      TEXT NOT NULL DEFAULT '',
		start_date       TEXT NOT NULL DEFAULT '',
		end_date         TEXT NOT NULL DEFAULT '',
		days             INTEGER NOT NULL DEFAULT 0,
		overtime_date    TEXT NOT NULL DEFAULT '',
		overtime_minutes INTEGER NOT NULL DEFAULT 0,
		target_accepted_at TEXT,
		tl_approved_at     TEXT,
		tl_approver_id     TEXT NOT NULL DEFAULT '',
		wfm_approved_at    TEXT,
		wfm_approver_id    TEXT NOT NULL DEFAULT '',
		rejected_by        TEXT NOT NULL DEFAULT '',
		reject_reason      TEXT NOT NULL DEFAULT '',
		executed_at        TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_requester ON requests(requester_id);

	CREATE TABLE IF NOT EXISTS balances (
		agent_id   TEXT PRIMARY KEY,
		days       INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS warnings (
		id         TEXT PRIMARY KEY,
		agent_id   TEXT NOT NULL,
		date       TEXT NOT NULL,
		kind       TEXT NOT NULL,
		old_shift  TEXT NOT NULL DEFAULT '',
		new_shift  TEXT NOT NULL DEFAULT '',
		resolved   INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_warnings_agent_date ON warnings(agent_id, date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Shifts
// ---------------------------------------------------------------------------

func (s *SQLiteStore) PutShift(ctx context.Context, rec types.ShiftRecord) (int64, error) {
	now := formatTime(time.Now())
	var revision int64
	err := retrySQLite(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() // no-op after commit

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO shifts (agent_id, agent_name, date, department, shift_type, revision, updated_at)
			 VALUES (?, ?, ?, ?, ?, 1, ?)
			 ON CONFLICT(agent_id, date) DO UPDATE SET
			   agent_name = excluded.agent_name,
			   department = excluded.department,
			   shift_type = excluded.shift_type,
			   revision   = shifts.revision + 1,
			   updated_at = excluded.updated_at`,
			rec.AgentID, rec.AgentName, rec.Date, string(rec.Department), string(rec.ShiftType), now,
		); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT revision FROM shifts WHERE agent_id = ? AND date = ?`,
			rec.AgentID, rec.Date,
		).Scan(&revision); err != nil {
			return err
		}
		return tx.Commit()
	})
	return revision, err
}

func (s *SQLiteStore) GetShift(ctx context.Context, agentID, date string) (types.ShiftRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT agent_id, agent_name, date, department, shift_type, revision, updated_at
		 FROM shifts WHERE agent_id = ? AND date = ?`, agentID, date)
	rec, err := scanShift(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ShiftRecord{}, fmt.Errorf("shift %s on %s: %w", agentID, date, types.ErrNotFound)
	}
	return rec, err
}

func (s *SQLiteStore) ListShifts(ctx context.Context, date string) ([]types.ShiftRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, agent_name, date, department, shift_type, revision, updated_at
		 FROM shifts WHERE date = ? ORDER BY agent_id`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ShiftRecord
	for rows.Next() {
		rec, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ExchangeShifts(ctx context.Context, agentA, dateA, agentB, dateB string) (types.ShiftType, types.ShiftType, error) {
	var newA, newB types.ShiftType
	err := retrySQLite(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		a, err := scanShift(tx.QueryRowContext(ctx,
			`SELECT agent_id, agent_name, date, department, shift_type, revision, updated_at
			 FROM shifts WHERE agent_id = ? AND date = ?`, agentA, dateA))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("shift %s on %s: %w", agentA, dateA, types.ErrNotFound)
		}
		if err != nil {
			return err
		}
		b, err := scanShift(tx.QueryRowContext(ctx,
			`SELECT agent_id, agent_name, date, department, shift_type, revision, updated_at
			 FROM shifts WHERE agent_id = ? AND date = ?`, agentB, dateB))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("shift %s on %s: %w", agentB, dateB, types.ErrNotFound)
		}
		if err != nil {
			return err
		}

		now := formatTime(time.Now())
		if _, err := tx.ExecContext(ctx,
			`UPDATE shifts SET shift_type = ?, revision = revision + 1, updated_at = ?
			 WHERE agent_id = ? AND date = ?`,
			string(b.ShiftType), now, agentA, dateA); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE shifts SET shift_type = ?, revision = revision + 1, updated_at = ?
			 WHERE agent_id = ? AND date = ?`,
			string(a.ShiftType), now, agentB, dateB); err != nil {
			return err
		}
		newA, newB = b.ShiftType, a.ShiftType
		return tx.Commit()
	})
	return newA, newB, err
}

func scanShift(sc rowScanner) (types.ShiftRecord, error) {
	var rec types.ShiftRecord
	var dept, shift, updated string
	if err := sc.Scan(&rec.AgentID, &rec.AgentName, &rec.Date, &dept, &shift, &rec.Revision, &updated); err != nil {
		return types.ShiftRecord{}, err
	}
	rec.Department = types.Department(dept)
	rec.ShiftType = types.ShiftType(shift)
	var err error
	rec.UpdatedAt, err = parseTime(updated)
	if err != nil {
		return types.ShiftRecord{}, fmt.Errorf("parse updated_at for shift %s: %w", rec.AgentID, err)
	}
	return rec, nil
}

// ---------------------------------------------------------------------------
// Breaks
// ---------------------------------------------------------------------------

func (s *SQLiteStore) GetBreaks(ctx context.Context, agentID, date string) (*types.BreakAssignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT agent_id, date, shift_type, slots, revision, updated_at
		 FROM breaks WHERE agent_id = ? AND date = ?`, agentID, date)
	asn, err := scanBreaks(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("breaks %s on %s: %w", agentID, date, types.ErrNotFound)
	}
	return asn, err
}

func (s *SQLiteStore) ListBreaks(ctx context.Context, date string) ([]*types.BreakAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, date, shift_type, slots, revision, updated_at
		 FROM breaks WHERE date = ? ORDER BY agent_id`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.BreakAssignment
	for rows.Next() {
		asn, err := scanBreaks(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, asn)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) WriteBreaks(ctx context.Context, asn *types.BreakAssignment, expectedRevision int64) (int64, error) {
	slots, err := marshalSlots(asn.Slots)
	if err != nil {
		return 0, fmt.Errorf("marshal slots: %w", err)
	}
	now := formatTime(time.Now())

	if expectedRevision == 0 {
		err := retrySQLite(func() error {
			res, err := s.db.ExecContext(ctx,
				`INSERT INTO breaks (agent_id, date, shift_type, slots, revision, updated_at)
				 VALUES (?, ?, ?, ?, 1, ?)
				 ON CONFLICT(agent_id, date) DO NOTHING`,
				asn.AgentID, asn.Date, string(asn.ShiftType), slots, now)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("breaks %s on %s already exist: %w", asn.AgentID, asn.Date, types.ErrConflict)
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
		return 1, nil
	}

	err = retrySQLite(func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE breaks SET shift_type = ?, slots = ?, revision = ?, updated_at = ?
			 WHERE agent_id = ? AND date = ? AND revision = ?`,
			string(asn.ShiftType), slots, expectedRevision+1, now,
			asn.AgentID, asn.Date, expectedRevision)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("breaks %s on %s moved past revision %d: %w",
				asn.AgentID, asn.Date, expectedRevision, types.ErrConflict)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expectedRevision + 1, nil
}

func (s *SQLiteStore) DeleteBreaks(ctx context.Context, agentID, date string) error {
	return retrySQLite(func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM breaks WHERE agent_id = ? AND date = ?`, agentID, date)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("breaks %s on %s: %w", agentID, date, types.ErrNotFound)
		}
		return nil
	})
}

func scanBreaks(sc rowScanner) (*types.BreakAssignment, error) {
	var asn types.BreakAssignment
	var shift, slots, updated string
	if err := sc.Scan(&asn.AgentID, &asn.Date, &shift, &slots, &asn.Revision, &updated); err != nil {
		return nil, err
	}
	asn.ShiftType = types.ShiftType(shift)
	if err := unmarshalSlots(slots, &asn.Slots); err != nil {
		return nil, fmt.Errorf("unmarshal slots for %s: %w", asn.AgentID, err)
	}
	var err error
	asn.UpdatedAt, err = parseTime(updated)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at for breaks %s: %w", asn.AgentID, err)
	}
	return &asn, nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func (s *SQLiteStore) PutSettings(ctx context.Context, st types.DistributionSettings) error {
	return retrySQLite(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO settings (shift_type, hb1_start_slot, b_gap_minutes, hb2_gap_minutes, increment)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(shift_type) DO UPDATE SET
			   hb1_start_slot  = excluded.hb1_start_slot,
			   b_gap_minutes   = excluded.b_gap_minutes,
			   hb2_gap_minutes = excluded.hb2_gap_minutes,
			   increment       = excluded.increment`,
			string(st.ShiftType), st.HB1StartSlot, st.BGapMinutes, st.HB2GapMinutes, st.Increment)
		return err
	})
}

func (s *SQLiteStore) GetSettings(ctx context.Context, shift types.ShiftType) (types.DistributionSettings, error) {
	st := types.DistributionSettings{ShiftType: shift}
	err := s.db.QueryRowContext(ctx,
		`SELECT hb1_start_slot, b_gap_minutes, hb2_gap_minutes, increment
		 FROM settings WHERE shift_type = ?`, string(shift)).
		Scan(&st.HB1StartSlot, &st.BGapMinutes, &st.HB2GapMinutes, &st.Increment)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DistributionSettings{}, fmt.Errorf("settings for %s: %w", shift, types.ErrNotFound)
	}
	if err != nil {
		return types.DistributionSettings{}, err
	}
	return st, nil
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

const requestColumns = `id, kind, requester_id, status, reason,
	target_id, requester_date, target_date,
	start_date, end_date, days, overtime_date, overtime_minutes,
	target_accepted_at, tl_approved_at, tl_approver_id,
	wfm_approved_at, wfm_approver_id, rejected_by, reject_reason, executed_at,
	created_at, updated_at`

func (s *SQLiteStore) CreateRequest(ctx context.Context, r *types.Request) error {
	return retrySQLite(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO requests (`+requestColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, string(r.Kind), r.RequesterID, string(r.Status), r.Reason,
			r.TargetID, r.RequesterDate, r.TargetDate,
			r.StartDate, r.EndDate, r.Days, r.OvertimeDate, r.OvertimeMinutes,
			nullTime(r.TargetAcceptedAt), nullTime(r.TLApprovedAt), r.TLApproverID,
			nullTime(r.WFMApprovedAt), r.WFMApproverID, r.RejectedBy, r.RejectReason, nullTime(r.ExecutedAt),
			formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
		if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("request %s already exists: %w", r.ID, types.ErrConflict)
		}
		return err
	})
}

func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*types.Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, types.ErrNotFound)
	}
	return r, err
}

func (s *SQLiteStore) ListRequests(ctx context.Context, f RequestFilter) ([]*types.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests`
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.RequesterID != "" {
		conds = append(conds, "requester_id = ?")
		args = append(args, f.RequesterID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) TransitionRequest(ctx context.Context, id string, from, to types.RequestStatus, fields types.TransitionFields) (*types.Request, error) {
	var updated *types.Request
	err := retrySQLite(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		r, err := scanRequest(tx.QueryRowContext(ctx,
			`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("request %s: %w", id, types.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if r.Status != from {
			return fmt.Errorf("request %s is %s, expected %s: %w", id, r.Status, from, types.ErrConflict)
		}

		r.Status = to
		fields.Apply(r)
		r.UpdatedAt = time.Now().UTC()

		res, err := tx.ExecContext(ctx,
			`UPDATE requests SET status = ?,
			   target_accepted_at = ?, tl_approved_at = ?, tl_approver_id = ?,
			   wfm_approved_at = ?, wfm_approver_id = ?,
			   rejected_by = ?, reject_reason = ?, executed_at = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			string(to),
			nullTime(r.TargetAcceptedAt), nullTime(r.TLApprovedAt), r.TLApproverID,
			nullTime(r.WFMApprovedAt), r.WFMApproverID,
			r.RejectedBy, r.RejectReason, nullTime(r.ExecutedAt), formatTime(r.UpdatedAt),
			id, string(from))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("request %s is no longer %s: %w", id, from, types.ErrConflict)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		updated = r
		return nil
	})
	return updated, err
}

func scanRequest(sc rowScanner) (*types.Request, error) {
	var r types.Request
	var kind, status string
	var ta, tl, wfm, ex sql.NullString
	var created, updatedAt string
	if err := sc.Scan(&r.ID, &kind, &r.RequesterID, &status, &r.Reason,
		&r.TargetID, &r.RequesterDate, &r.TargetDate,
		&r.StartDate, &r.EndDate, &r.Days, &r.OvertimeDate, &r.OvertimeMinutes,
		&ta, &tl, &r.TLApproverID,
		&wfm, &r.WFMApproverID, &r.RejectedBy, &r.RejectReason, &ex,
		&created, &updatedAt); err != nil {
		return nil, err
	}
	r.Kind = types.RequestKind(kind)
	r.Status = types.RequestStatus(status)

	var err error
	if r.TargetAcceptedAt, err = scanNullTime(ta); err != nil {
		return nil, fmt.Errorf("parse target_accepted_at for %s: %w", r.ID, err)
	}
	if r.TLApprovedAt, err = scanNullTime(tl); err != nil {
		return nil, fmt.Errorf("parse tl_approved_at for %s: %w", r.ID, err)
	}
	if r.WFMApprovedAt, err = scanNullTime(wfm); err != nil {
		return nil, fmt.Errorf("parse wfm_approved_at for %s: %w", r.ID, err)
	}
	if r.ExecutedAt, err = scanNullTime(ex); err != nil {
		return nil, fmt.Errorf("parse executed_at for %s: %w", r.ID, err)
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", r.ID, err)
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for %s: %w", r.ID, err)
	}
	return &r, nil
}

// ---------------------------------------------------------------------------
// Balances
// ---------------------------------------------------------------------------

func (s *SQLiteStore) PutBalance(ctx context.Context, b types.LeaveBalance) error {
	return retrySQLite(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO balances (agent_id, days, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(agent_id) DO UPDATE SET days = excluded.days, updated_at = excluded.updated_at`,
			b.AgentID, b.Days, formatTime(time.Now()))
		return err
	})
}

func (s *SQLiteStore) GetBalance(ctx context.Context, agentID string) (types.LeaveBalance, error) {
	b := types.LeaveBalance{AgentID: agentID}
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT days, updated_at FROM balances WHERE agent_id = ?`, agentID).
		Scan(&b.Days, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return types.LeaveBalance{}, fmt.Errorf("balance for %s: %w", agentID, types.ErrNotFound)
	}
	if err != nil {
		return types.LeaveBalance{}, err
	}
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return types.LeaveBalance{}, fmt.Errorf("parse updated_at for balance %s: %w", agentID, err)
	}
	return b, nil
}

func (s *SQLiteStore) DeductBalance(ctx context.Context, agentID string, days int) (int, error) {
	var remaining int
	err := retrySQLite(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx,
			`UPDATE balances SET days = days - ?, updated_at = ?
			 WHERE agent_id = ? AND days >= ?`,
			days, formatTime(time.Now()), agentID, days)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var have int
			err := tx.QueryRowContext(ctx,
				`SELECT days FROM balances WHERE agent_id = ?`, agentID).Scan(&have)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("balance for %s: %w", agentID, types.ErrNotFound)
			}
			if err != nil {
				return err
			}
			return &types.InsufficientBalanceError{AgentID: agentID, Requested: days, Available: have}
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT days FROM balances WHERE agent_id = ?`, agentID).Scan(&remaining); err != nil {
			return err
		}
		return tx.Commit()
	})
	return remaining, err
}

func (s *SQLiteStore) AddBalance(ctx context.Context, agentID string, days int) (int, error) {
	var remaining int
	err := retrySQLite(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO balances (agent_id, days, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(agent_id) DO UPDATE SET days = balances.days + excluded.days, updated_at = excluded.updated_at`,
			agentID, days, formatTime(time.Now())); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT days FROM balances WHERE agent_id = ?`, agentID).Scan(&remaining); err != nil {
			return err
		}
		return tx.Commit()
	})
	return remaining, err
}

// ---------------------------------------------------------------------------
// Warnings
// ---------------------------------------------------------------------------

func (s *SQLiteStore) CreateWarning(ctx context.Context, w *types.Warning) error {
	return retrySQLite(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO warnings (id, agent_id, date, kind, old_shift, new_shift, resolved, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			w.ID, w.AgentID, w.Date, string(w.Kind),
			string(w.OldShiftType), string(w.NewShiftType), boolToInt(w.Resolved), formatTime(w.CreatedAt))
		if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("warning %s already exists: %w", w.ID, types.ErrConflict)
		}
		return err
	})
}

func (s *SQLiteStore) ListWarnings(ctx context.Context, f WarningFilter) ([]*types.Warning, error) {
	query := `SELECT id, agent_id, date, kind, old_shift, new_shift, resolved, created_at FROM warnings`
	var conds []string
	var args []any
	if f.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.Date != "" {
		conds = append(conds, "date = ?")
		args = append(args, f.Date)
	}
	if f.Unresolved {
		conds = append(conds, "resolved = 0")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Warning
	for rows.Next() {
		w, err := scanWarning(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UnresolvedWarning(ctx context.Context, agentID, date string, kind types.WarningKind) (*types.Warning, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, date, kind, old_shift, new_shift, resolved, created_at
		 FROM warnings WHERE agent_id = ? AND date = ? AND kind = ? AND resolved = 0
		 ORDER BY created_at ASC LIMIT 1`,
		agentID, date, string(kind))
	w, err := scanWarning(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unresolved %s warning for %s on %s: %w", kind, agentID, date, types.ErrNotFound)
	}
	return w, err
}

func (s *SQLiteStore) ResolveWarning(ctx context.Context, id string) (*types.Warning, error) {
	var resolved *types.Warning
	err := retrySQLite(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx, `UPDATE warnings SET resolved = 1 WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("warning %s: %w", id, types.ErrNotFound)
		}
		w, err := scanWarning(tx.QueryRowContext(ctx,
			`SELECT id, agent_id, date, kind, old_shift, new_shift, resolved, created_at
			 FROM warnings WHERE id = ?`, id))
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		resolved = w
		return nil
	})
	return resolved, err
}

func scanWarning(sc rowScanner) (*types.Warning, error) {
	var w types.Warning
	var kind, oldShift, newShift, created string
	var resolved int
	if err := sc.Scan(&w.ID, &w.AgentID, &w.Date, &kind, &oldShift, &newShift, &resolved, &created); err != nil {
		return nil, err
	}
	w.Kind = types.WarningKind(kind)
	w.OldShiftType = types.ShiftType(oldShift)
	w.NewShiftType = types.ShiftType(newShift)
	w.Resolved = resolved != 0
	var err error
	if w.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at for warning %s: %w", w.ID, err)
	}
	return &w, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
