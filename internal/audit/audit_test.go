package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-stage/migrations"
)

func setupTestRepo(t *testing.T, showID string) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	repo, err := NewSQLiteRepository(db.DB, showID)
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	return repo
}

func TestNewSQLiteRepository_RequiresShowID(t *testing.T) {
	if _, err := NewSQLiteRepository(nil, ""); !errors.Is(err, ErrShowIDRequired) {
		t.Errorf("error = %v, want ErrShowIDRequired", err)
	}
}

func TestCreate_FillsDefaults(t *testing.T) {
	repo := setupTestRepo(t, "show-a")

	e := &Entry{Action: ActionObjectUpdate, Target: "stand_mic_set", Subject: "lx-desk"}
	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.ID == "" || e.Source != "api" || e.Outcome != OutcomeApplied || e.CreatedAt.IsZero() {
		t.Errorf("defaults not filled: %+v", e)
	}
}

func TestList_FiltersAndOrders(t *testing.T) {
	repo := setupTestRepo(t, "show-a")
	ctx := context.Background()

	base := time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Action: ActionObjectUpdate, Target: "stage_a", Subject: "lx-desk", CreatedAt: base},
		{Action: ActionTransformUpdate, Target: "truss", Details: map[string]any{"applied": 2.0}, CreatedAt: base.Add(time.Second)},
		{Action: ActionObjectUpdate, Target: "ghost", Outcome: OutcomeMissed, CreatedAt: base.Add(2 * time.Second)},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	other := setupTestRepo(t, "show-b")
	if err := other.Create(ctx, &Entry{Action: ActionObjectUpdate, Target: "stage_a"}); err != nil {
		t.Fatalf("Create(other) error = %v", err)
	}

	tests := []struct {
		name       string
		filter     Filter
		wantTotal  int
		wantFirst  string
		wantLength int
	}{
		{name: "all", filter: Filter{}, wantTotal: 3, wantFirst: "ghost", wantLength: 3},
		{name: "by action", filter: Filter{Action: ActionObjectUpdate}, wantTotal: 2, wantFirst: "ghost", wantLength: 2},
		{name: "by target", filter: Filter{Target: "truss"}, wantTotal: 1, wantFirst: "truss", wantLength: 1},
		{name: "by subject", filter: Filter{Subject: "lx-desk"}, wantTotal: 1, wantFirst: "stage_a", wantLength: 1},
		{name: "paged", filter: Filter{Limit: 1, Offset: 1}, wantTotal: 3, wantFirst: "truss", wantLength: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if len(res.Entries) != tt.wantLength {
				t.Fatalf("len = %d, want %d", len(res.Entries), tt.wantLength)
			}
			if res.Entries[0].Target != tt.wantFirst {
				t.Errorf("first = %q, want %q", res.Entries[0].Target, tt.wantFirst)
			}
		})
	}

	res, err := repo.List(ctx, Filter{Target: "truss"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got := res.Entries[0].Details["applied"]; got != 2.0 {
		t.Errorf("details applied = %v, want 2", got)
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := setupTestRepo(t, "show-a")

	res, err := repo.List(context.Background(), Filter{Limit: 10000, Offset: -4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != maxLimit || res.Offset != 0 {
		t.Errorf("Limit/Offset = %d/%d, want %d/0", res.Limit, res.Offset, maxLimit)
	}
	if res.Entries == nil {
		t.Error("Entries should be an empty slice, not nil")
	}
}
