package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "calagent/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreateMeeting(ctx context.Context, m Meeting) (Meeting, error) {
	if s == nil || s.db == nil {
		return Meeting{}, ErrDisabled
	}
	if err := validateInterval(m.Start, m.End); err != nil {
		return Meeting{}, err
	}
	if !m.RecurPattern.Valid() {
		return Meeting{}, fmt.Errorf("invalid recurrence pattern %q", m.RecurPattern)
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO meetings(title, description, start_time, end_time, participants, location,
		                      recurring, recur_pattern, recurrence_end, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		m.Title, nullStr(m.Description),
		m.Start.UTC().Format(time.RFC3339Nano), m.End.UTC().Format(time.RFC3339Nano),
		nullStr(strings.Join(m.Participants, ",")), nullStr(m.Location),
		boolInt(m.Recurring), nullStr(string(m.RecurPattern)), nullTime(m.RecurrenceEnd),
		m.CreatedAt.Format(time.RFC3339Nano), m.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Meeting{}, fmt.Errorf("create meeting: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Meeting{}, fmt.Errorf("create meeting: %w", err)
	}
	m.ID = id
	s.log.Debug("meeting stored", logx.Int64("id", id), logx.String("title", m.Title), logx.Time("start", m.Start))
	return m, nil
}

const selectCols = `id, title, description, start_time, end_time, participants, location,
       recurring, recur_pattern, recurrence_end, created_at, updated_at`

func (s *sqliteStore) Meetings(ctx context.Context, from, to time.Time) ([]Meeting, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := `SELECT ` + selectCols + ` FROM meetings`
	var (
		conds []string
		args  []any
	)
	if !from.IsZero() {
		conds = append(conds, `start_time >= ?`)
		args = append(args, from.UTC().Format(time.RFC3339Nano))
	}
	if !to.IsZero() {
		conds = append(conds, `start_time <= ?`)
		args = append(args, to.UTC().Format(time.RFC3339Nano))
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	q += ` ORDER BY start_time ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query meetings: %w", err)
	}
	defer rows.Close()
	return scanMeetings(rows)
}

func (s *sqliteStore) MeetingByID(ctx context.Context, id int64) (Meeting, error) {
	if s == nil || s.db == nil {
		return Meeting{}, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectCols+` FROM meetings WHERE id = ?`, id)
	if err != nil {
		return Meeting{}, fmt.Errorf("query meeting %d: %w", id, err)
	}
	defer rows.Close()
	ms, err := scanMeetings(rows)
	if err != nil {
		return Meeting{}, err
	}
	if len(ms) == 0 {
		return Meeting{}, ErrNotFound
	}
	return ms[0], nil
}

func (s *sqliteStore) UpdateMeeting(ctx context.Context, id int64, p Patch) (Meeting, error) {
	cur, err := s.MeetingByID(ctx, id)
	if err != nil {
		return Meeting{}, err
	}
	next := applyPatch(cur, p)
	if err := validateInterval(next.Start, next.End); err != nil {
		return Meeting{}, err
	}
	if !next.RecurPattern.Valid() {
		return Meeting{}, fmt.Errorf("invalid recurrence pattern %q", next.RecurPattern)
	}
	next.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE meetings SET title=?, description=?, start_time=?, end_time=?, participants=?,
		        location=?, recurring=?, recur_pattern=?, updated_at=?
		 WHERE id=?`,
		next.Title, nullStr(next.Description),
		next.Start.UTC().Format(time.RFC3339Nano), next.End.UTC().Format(time.RFC3339Nano),
		nullStr(strings.Join(next.Participants, ",")), nullStr(next.Location),
		boolInt(next.Recurring), nullStr(string(next.RecurPattern)),
		next.UpdatedAt.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return Meeting{}, fmt.Errorf("update meeting %d: %w", id, err)
	}
	return next, nil
}

func (s *sqliteStore) DeleteMeeting(ctx context.Context, id int64) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM meetings WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete meeting %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) FindOverlapping(ctx context.Context, start, end time.Time, excludeID int64) ([]Meeting, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := `SELECT ` + selectCols + ` FROM meetings WHERE start_time < ? AND end_time > ?`
	args := []any{end.UTC().Format(time.RFC3339Nano), start.UTC().Format(time.RFC3339Nano)}
	if excludeID > 0 {
		q += ` AND id != ?`
		args = append(args, excludeID)
	}
	q += ` ORDER BY start_time ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query overlapping: %w", err)
	}
	defer rows.Close()
	return scanMeetings(rows)
}

func scanMeetings(rows *sql.Rows) ([]Meeting, error) {
	var out []Meeting
	for rows.Next() {
		var (
			m                                    Meeting
			desc, parts, loc, pattern, recurEnd  sql.NullString
			startRaw, endRaw, createdRaw, updRaw string
			recurring                            int
		)
		if err := rows.Scan(&m.ID, &m.Title, &desc, &startRaw, &endRaw, &parts, &loc,
			&recurring, &pattern, &recurEnd, &createdRaw, &updRaw); err != nil {
			return nil, err
		}
		var err error
		if m.Start, err = time.Parse(time.RFC3339Nano, startRaw); err != nil {
			return nil, fmt.Errorf("bad start_time for meeting %d: %w", m.ID, err)
		}
		if m.End, err = time.Parse(time.RFC3339Nano, endRaw); err != nil {
			return nil, fmt.Errorf("bad end_time for meeting %d: %w", m.ID, err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdRaw)
		m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updRaw)
		m.Description = desc.String
		m.Location = loc.String
		if parts.Valid && parts.String != "" {
			m.Participants = strings.Split(parts.String, ",")
		}
		m.Recurring = recurring != 0
		m.RecurPattern = RecurrencePattern(pattern.String)
		if recurEnd.Valid && recurEnd.String != "" {
			m.RecurrenceEnd, _ = time.Parse(time.RFC3339Nano, recurEnd.String)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func applyPatch(m Meeting, p Patch) Meeting {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	if p.Start != nil {
		m.Start = *p.Start
	}
	if p.End != nil {
		m.End = *p.End
	}
	if p.Participants != nil {
		m.Participants = *p.Participants
	}
	if p.Location != nil {
		m.Location = *p.Location
	}
	if p.Recurring != nil {
		m.Recurring = *p.Recurring
	}
	if p.RecurPattern != nil {
		m.RecurPattern = *p.RecurPattern
	}
	return m
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
