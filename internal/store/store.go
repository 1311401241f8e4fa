package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"veriflow/internal/config"
	"veriflow/internal/subject"
	"veriflow/internal/task"
)

// Store persists subject rosters and terminal verification outcomes in
// SQLite. In-flight task state never touches the database; the registry owns
// it and the runner calls RecordOutcome exactly once per task.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "veriflow.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Outcome is one persisted terminal snapshot.
type Outcome struct {
	TaskID         string
	Profile        string
	Status         task.Status
	VerificationID string
	Result         task.Result
	StepIndex      int
	TotalSteps     int
	Logs           []task.LogEntry
	CreatedAt      time.Time
	FinishedAt     time.Time
}

// RecordOutcome persists a terminal task snapshot. Recording the same task
// twice overwrites; recording a non-terminal snapshot is a caller bug.
func (s *Store) RecordOutcome(ctx context.Context, snapshot *task.Task) error {
	if snapshot == nil {
		return errors.New("snapshot is nil")
	}
	if !snapshot.IsTerminal() {
		return fmt.Errorf("task %s is not terminal (%s)", snapshot.ID, snapshot.Status)
	}

	logsJSON, err := json.Marshal(snapshot.Logs)
	if err != nil {
		return fmt.Errorf("marshal logs: %w", err)
	}
	result := task.Result{}
	if snapshot.Result != nil {
		result = *snapshot.Result
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO outcomes (
            task_id, profile, status, verification_id, redirect_url, reward_code,
            reason, detail, step_index, total_steps, logs_json, created_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(task_id) DO UPDATE SET
            status = excluded.status, verification_id = excluded.verification_id,
            redirect_url = excluded.redirect_url, reward_code = excluded.reward_code,
            reason = excluded.reason, detail = excluded.detail,
            step_index = excluded.step_index, total_steps = excluded.total_steps,
            logs_json = excluded.logs_json, finished_at = excluded.finished_at`,
		snapshot.ID,
		snapshot.Profile,
		string(snapshot.Status),
		nullableString(snapshot.VerificationID),
		nullableString(result.RedirectURL),
		nullableString(result.RewardCode),
		nullableString(result.Reason),
		nullableString(result.Detail),
		snapshot.CurrentStepIndex,
		snapshot.TotalSteps,
		string(logsJSON),
		snapshot.CreatedAt.UTC().Format(time.RFC3339Nano),
		snapshot.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// GetOutcome fetches a persisted outcome, or nil when unknown.
func (s *Store) GetOutcome(ctx context.Context, taskID string) (*Outcome, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE task_id = ?`, taskID)
	outcome, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outcome: %w", err)
	}
	return outcome, nil
}

// OutcomeFilter narrows ListOutcomes.
type OutcomeFilter struct {
	Statuses []task.Status
	Profile  string
	Limit    int
}

// ListOutcomes returns persisted outcomes, most recently finished first.
func (s *Store) ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]*Outcome, error) {
	query := `SELECT ` + outcomeColumns + ` FROM outcomes`
	var conds []string
	var args []any
	if len(filter.Statuses) > 0 {
		placeholders := ""
		for i, status := range filter.Statuses {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args = append(args, string(status))
		}
		conds = append(conds, "status IN ("+placeholders+")")
	}
	if filter.Profile != "" {
		conds = append(conds, "profile = ?")
		args = append(args, filter.Profile)
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY finished_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*Outcome
	for rows.Next() {
		outcome, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

// StoredSubject is a roster entry with its usage bookkeeping.
type StoredSubject struct {
	ID        int64
	Profile   string
	Record    subject.Record
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// AddSubject inserts a roster entry for the given profile.
func (s *Store) AddSubject(ctx context.Context, profile string, rec subject.Record) (int64, error) {
	rec = rec.Normalize()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO subjects (
            profile, first_name, last_name, birth_date, email, phone,
            organization_id, organization_name, discharge_date, status_code,
            country, locale, used, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		profile,
		rec.FirstName,
		rec.LastName,
		rec.BirthDate,
		nullableString(rec.Email),
		nullableString(rec.Phone),
		rec.OrganizationID,
		nullableString(rec.OrganizationName),
		nullableString(rec.DischargeDate),
		nullableString(rec.StatusCode),
		nullableString(rec.Country),
		nullableString(rec.Locale),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert subject: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// SubjectFilter narrows QuerySubjects.
type SubjectFilter struct {
	Profile    string
	OnlyUnused bool
	Limit      int
}

// QuerySubjects returns roster entries in insertion order.
func (s *Store) QuerySubjects(ctx context.Context, filter SubjectFilter) ([]*StoredSubject, error) {
	query := `SELECT ` + subjectColumns + ` FROM subjects`
	var conds []string
	var args []any
	if filter.Profile != "" {
		conds = append(conds, "profile = ?")
		args = append(args, filter.Profile)
	}
	if filter.OnlyUnused {
		conds = append(conds, "used = 0")
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var subjects []*StoredSubject
	for rows.Next() {
		stored, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, stored)
	}
	return subjects, rows.Err()
}

// NextUnusedSubject returns the oldest unused roster entry for a profile, or
// nil when the roster is exhausted.
func (s *Store) NextUnusedSubject(ctx context.Context, profile string) (*StoredSubject, error) {
	subjects, err := s.QuerySubjects(ctx, SubjectFilter{Profile: profile, OnlyUnused: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, nil
	}
	return subjects[0], nil
}

// MarkSubjectUsed flags a roster entry so it is never submitted twice.
func (s *Store) MarkSubjectUsed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE subjects SET used = 1, used_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark subject used: %w", err)
	}
	return nil
}

const outcomeColumns = `task_id, profile, status, verification_id, redirect_url, reward_code,
    reason, detail, step_index, total_steps, logs_json, created_at, finished_at`

const subjectColumns = `id, profile, first_name, last_name, birth_date, email, phone,
    organization_id, organization_name, discharge_date, status_code, country, locale,
    used, used_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row rowScanner) (*Outcome, error) {
	var (
		outcome        Outcome
		status         string
		verificationID sql.NullString
		redirectURL    sql.NullString
		rewardCode     sql.NullString
		reason         sql.NullString
		detail         sql.NullString
		logsJSON       sql.NullString
		createdAt      string
		finishedAt     string
	)
	if err := row.Scan(
		&outcome.TaskID,
		&outcome.Profile,
		&status,
		&verificationID,
		&redirectURL,
		&rewardCode,
		&reason,
		&detail,
		&outcome.StepIndex,
		&outcome.TotalSteps,
		&logsJSON,
		&createdAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}

	outcome.Status = task.Status(status)
	outcome.VerificationID = verificationID.String
	outcome.Result = task.Result{
		RedirectURL: redirectURL.String,
		RewardCode:  rewardCode.String,
		Reason:      reason.String,
		Detail:      detail.String,
	}
	if logsJSON.Valid && logsJSON.String != "" {
		if err := json.Unmarshal([]byte(logsJSON.String), &outcome.Logs); err != nil {
			return nil, fmt.Errorf("unmarshal logs: %w", err)
		}
	}
	var err error
	if outcome.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if outcome.FinishedAt, err = parseTimestamp(finishedAt); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func scanSubject(row rowScanner) (*StoredSubject, error) {
	var (
		stored        StoredSubject
		email         sql.NullString
		phone         sql.NullString
		orgID         sql.NullInt64
		orgName       sql.NullString
		dischargeDate sql.NullString
		statusCode    sql.NullString
		country       sql.NullString
		locale        sql.NullString
		used          int
		usedAt        sql.NullString
		createdAt     string
	)
	if err := row.Scan(
		&stored.ID,
		&stored.Profile,
		&stored.Record.FirstName,
		&stored.Record.LastName,
		&stored.Record.BirthDate,
		&email,
		&phone,
		&orgID,
		&orgName,
		&dischargeDate,
		&statusCode,
		&country,
		&locale,
		&used,
		&usedAt,
		&createdAt,
	); err != nil {
		return nil, err
	}

	stored.Record.Email = email.String
	stored.Record.Phone = phone.String
	stored.Record.OrganizationID = orgID.Int64
	stored.Record.OrganizationName = orgName.String
	stored.Record.DischargeDate = dischargeDate.String
	stored.Record.StatusCode = statusCode.String
	stored.Record.Country = country.String
	stored.Record.Locale = locale.String
	stored.Used = used != 0

	if usedAt.Valid && usedAt.String != "" {
		parsed, err := parseTimestamp(usedAt.String)
		if err != nil {
			return nil, err
		}
		stored.UsedAt = &parsed
	}
	var err error
	if stored.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	return &stored, nil
}

func parseTimestamp(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return parsed, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
