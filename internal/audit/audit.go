// Package audit records timeline events injected outside the show clock.
//
// Rehearsal tools can push object and transform keyframes through the API.
// Each injection is written to the audit_logs table with the token subject
// that sent it, so an operator can later tell a scripted cue from a manual one.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the API.
const (
	ActionObjectUpdate    = "object_update"
	ActionTransformUpdate = "transform_update"
)

// Outcomes of an injected event.
const (
	OutcomeApplied = "applied"
	OutcomeMissed  = "missed"
	OutcomeFailed  = "failed"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrShowIDRequired is returned when a repository is created without a show.
var ErrShowIDRequired = errors.New("audit: show id is required")

// Entry is one injected event.
type Entry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Target    string         `json:"target"`
	Subject   string         `json:"subject,omitempty"`
	Source    string         `json:"source"`
	Outcome   string         `json:"outcome"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Action  string
	Target  string
	Subject string
	Limit   int // default 50, max 200
	Offset  int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores audit entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository is a Repository scoped to one show.
type SQLiteRepository struct {
	db     *sql.DB
	showID string
	now    func() time.Time
}

// NewSQLiteRepository creates a repository for showID.
func NewSQLiteRepository(db *sql.DB, showID string) (*SQLiteRepository, error) {
	if strings.TrimSpace(showID) == "" {
		return nil, ErrShowIDRequired
	}
	return &SQLiteRepository{db: db, showID: showID, now: time.Now}, nil
}

// Create inserts e, filling ID, Source, Outcome and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "aud-" + uuid.NewString()[:8]
	}
	if e.Source == "" {
		e.Source = "api"
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeApplied
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	var details *string
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		details = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, show_id, action, target, subject, source, outcome, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, r.showID, e.Action, e.Target, nullable(e.Subject),
		e.Source, e.Outcome, details,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultLimit
	case filter.Limit > maxLimit:
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	conditions := []string{"show_id = ?"}
	args := []any{r.showID}
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.Target != "" {
		conditions = append(conditions, "target = ?")
		args = append(args, filter.Target)
	}
	if filter.Subject != "" {
		conditions = append(conditions, "subject = ?")
		args = append(args, filter.Subject)
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	//nolint:gosec // WHERE is built from fixed column names with ? placeholders
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	//nolint:gosec // WHERE is built from fixed column names with ? placeholders
	query := "SELECT id, action, target, subject, source, outcome, details, created_at FROM audit_logs " +
		where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, filter.Limit)
	for rows.Next() {
		e, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{Entries: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e       Entry
		subject sql.NullString
		details sql.NullString
		created string
	)
	if err := rows.Scan(&e.ID, &e.Action, &e.Target, &subject, &e.Source, &e.Outcome, &details, &created); err != nil {
		return Entry{}, fmt.Errorf("scanning audit entry: %w", err)
	}
	e.Subject = subject.String
	if details.Valid {
		if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
			return Entry{}, fmt.Errorf("decoding audit details for %s: %w", e.ID, err)
		}
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing audit timestamp for %s: %w", e.ID, err)
	}
	e.CreatedAt = t
	return e, nil
}
