package stagedata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-stage/internal/stage"
)

const (
	defaultMissLimit = 50
	maxMissLimit     = 500

	// timeLayout is fixed width so occurred_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Repository stores authored stage data and the miss journal.
type Repository interface {
	ListPropGroups(ctx context.Context) ([]stage.PropGroupSpec, error)
	ReplacePropGroups(ctx context.Context, specs []stage.PropGroupSpec) error

	ListUnits(ctx context.Context) ([]stage.UnitSpec, error)
	ReplaceUnits(ctx context.Context, units []stage.UnitSpec) error

	RecordMiss(ctx context.Context, m stage.Miss) error
	ListMisses(ctx context.Context, limit int) ([]stage.Miss, error)
	PruneMisses(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository using SQLite. Misses are scoped to
// one show id; authored data is shared by the database.
type SQLiteRepository struct {
	db     *sql.DB
	showID string
	now    func() time.Time
}

// NewSQLiteRepository creates a repository recording misses for showID.
func NewSQLiteRepository(db *sql.DB, showID string) (*SQLiteRepository, error) {
	if strings.TrimSpace(showID) == "" {
		return nil, ErrShowIDRequired
	}
	return &SQLiteRepository{db: db, showID: showID, now: time.Now}, nil
}

// ListPropGroups returns the prop groups in authored order.
func (r *SQLiteRepository) ListPropGroups(ctx context.Context) ([]stage.PropGroupSpec, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT props_name, is_character_prop, major_id, minor_id, attach_joints, conditions
		 FROM prop_groups
		 ORDER BY seq, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying prop groups: %w", err)
	}
	defer rows.Close()

	var specs []stage.PropGroupSpec
	for rows.Next() {
		var (
			spec           stage.PropGroupSpec
			isCharacter    int
			jointsJSON     string
			conditionsJSON string
		)
		if err := rows.Scan(&spec.PropsName, &isCharacter, &spec.MajorID, &spec.MinorID, &jointsJSON, &conditionsJSON); err != nil {
			return nil, fmt.Errorf("scanning prop group: %w", err)
		}
		spec.IsCharacterProp = isCharacter != 0
		if err := json.Unmarshal([]byte(jointsJSON), &spec.AttachJoints); err != nil {
			return nil, fmt.Errorf("unmarshalling attach joints of %q: %w", spec.PropsName, err)
		}
		if err := json.Unmarshal([]byte(conditionsJSON), &spec.Conditions); err != nil {
			return nil, fmt.Errorf("unmarshalling conditions of %q: %w", spec.PropsName, err)
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating prop groups: %w", err)
	}
	return specs, nil
}

// ReplacePropGroups swaps the stored prop groups for specs in one
// transaction. Malformed specs are stored as authored; the attacher reports
// them when the scene is built.
func (r *SQLiteRepository) ReplacePropGroups(ctx context.Context, specs []stage.PropGroupSpec) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM prop_groups"); err != nil {
		return fmt.Errorf("clearing prop groups: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO prop_groups (seq, props_name, is_character_prop, major_id, minor_id, attach_joints, conditions)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing prop group insert: %w", err)
	}
	defer stmt.Close()

	for i, spec := range specs {
		joints, err := marshalList(spec.AttachJoints)
		if err != nil {
			return fmt.Errorf("marshalling attach joints of %q: %w", spec.PropsName, err)
		}
		conditions, err := marshalList(spec.Conditions)
		if err != nil {
			return fmt.Errorf("marshalling conditions of %q: %w", spec.PropsName, err)
		}
		if _, err := stmt.ExecContext(ctx,
			i,
			spec.PropsName,
			boolToInt(spec.IsCharacterProp),
			spec.MajorID,
			spec.MinorID,
			joints,
			conditions,
		); err != nil {
			return fmt.Errorf("inserting prop group %q: %w", spec.PropsName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing prop groups: %w", err)
	}
	return nil
}

// ListUnits returns the transform units in authored order.
func (r *SQLiteRepository) ListUnits(ctx context.Context) ([]stage.UnitSpec, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT name, members FROM stage_units ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("querying units: %w", err)
	}
	defer rows.Close()

	var units []stage.UnitSpec
	for rows.Next() {
		var (
			u           stage.UnitSpec
			membersJSON string
		)
		if err := rows.Scan(&u.Name, &membersJSON); err != nil {
			return nil, fmt.Errorf("scanning unit: %w", err)
		}
		if err := json.Unmarshal([]byte(membersJSON), &u.Members); err != nil {
			return nil, fmt.Errorf("unmarshalling members of %q: %w", u.Name, err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating units: %w", err)
	}
	return units, nil
}

// ReplaceUnits swaps the stored units for units in one transaction.
// Duplicate names abort the import with ErrDuplicateUnit.
func (r *SQLiteRepository) ReplaceUnits(ctx context.Context, units []stage.UnitSpec) error {
	seen := make(map[string]bool, len(units))
	for _, u := range units {
		if seen[u.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateUnit, u.Name)
		}
		seen[u.Name] = true
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM stage_units"); err != nil {
		return fmt.Errorf("clearing units: %w", err)
	}
	for i, u := range units {
		members, err := marshalList(u.Members)
		if err != nil {
			return fmt.Errorf("marshalling members of %q: %w", u.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO stage_units (name, seq, members) VALUES (?, ?, ?)",
			u.Name, i, members,
		); err != nil {
			return fmt.Errorf("inserting unit %q: %w", u.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing units: %w", err)
	}
	return nil
}

// RecordMiss appends a miss to the journal.
func (r *SQLiteRepository) RecordMiss(ctx context.Context, m stage.Miss) error {
	searched, err := marshalList(m.Searched)
	if err != nil {
		return fmt.Errorf("marshalling searched names: %w", err)
	}
	at := m.At
	if at.IsZero() {
		at = r.now()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO resolution_misses (show_id, kind, name, detail, searched, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.showID,
		string(m.Kind),
		m.Name,
		m.Detail,
		searched,
		at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting resolution miss: %w", err)
	}
	return nil
}

// ListMisses returns the most recent misses of this show, newest first
// (default 50, max 500).
func (r *SQLiteRepository) ListMisses(ctx context.Context, limit int) ([]stage.Miss, error) {
	if limit <= 0 {
		limit = defaultMissLimit
	}
	if limit > maxMissLimit {
		limit = maxMissLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, name, detail, searched, occurred_at
		 FROM resolution_misses
		 WHERE show_id = ?
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT ?`,
		r.showID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying resolution misses: %w", err)
	}
	defer rows.Close()

	misses := make([]stage.Miss, 0, limit)
	for rows.Next() {
		var (
			m            stage.Miss
			kind         string
			searchedJSON string
			occurredAt   string
		)
		if err := rows.Scan(&kind, &m.Name, &m.Detail, &searchedJSON, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning resolution miss: %w", err)
		}
		m.Kind = stage.MissKind(kind)
		if err := json.Unmarshal([]byte(searchedJSON), &m.Searched); err != nil {
			return nil, fmt.Errorf("unmarshalling searched names: %w", err)
		}
		if len(m.Searched) == 0 {
			m.Searched = nil
		}
		m.At, err = time.Parse(timeLayout, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing miss timestamp %q: %w", occurredAt, err)
		}
		misses = append(misses, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating resolution misses: %w", err)
	}
	return misses, nil
}

// PruneMisses deletes this show's misses older than olderThan.
func (r *SQLiteRepository) PruneMisses(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}
	cutoff := r.now().Add(-olderThan).UTC().Format(timeLayout)

	res, err := r.db.ExecContext(ctx,
		"DELETE FROM resolution_misses WHERE show_id = ? AND occurred_at < ?",
		r.showID, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning resolution misses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned misses: %w", err)
	}
	return n, nil
}

// marshalList encodes a slice as JSON, storing nil as "[]".
func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
