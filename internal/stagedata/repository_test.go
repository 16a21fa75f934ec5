package stagedata

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-stage/internal/stage"
	"github.com/nerrad567/gray-logic-stage/migrations"
)

// setupTestRepo opens a migrated database in a temp dir.
func setupTestRepo(t *testing.T, showID string) (*SQLiteRepository, *database.DB) {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "stage.db"),
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
	return repo, db
}

func testPropGroups() []stage.PropGroupSpec {
	return []stage.PropGroupSpec{
		{
			PropsName:       "003",
			IsCharacterProp: true,
			MajorID:         1024,
			MinorID:         1,
			AttachJoints:    []string{"Hand_Attach_R", "Wrist_R"},
			Conditions: []stage.Condition{
				{Type: stage.ConditionCharaPosition, Value: 1},
				{Type: stage.ConditionCharaPosition, Value: 3},
			},
		},
		{PropsName: "stand_mic_01", MajorID: 2001},
		{PropsName: "", MajorID: 7},
	}
}

// ─── Construction ───────────────────────────────────────────────

func TestNewSQLiteRepository_RequiresShowID(t *testing.T) {
	if _, err := NewSQLiteRepository(nil, "  "); !errors.Is(err, ErrShowIDRequired) {
		t.Errorf("error = %v, want ErrShowIDRequired", err)
	}
}

// ─── Prop Groups ────────────────────────────────────────────────

func TestPropGroups_ReplaceAndList(t *testing.T) {
	repo, _ := setupTestRepo(t, "show-a")
	ctx := context.Background()

	if err := repo.ReplacePropGroups(ctx, testPropGroups()); err != nil {
		t.Fatalf("ReplacePropGroups() error = %v", err)
	}

	got, err := repo.ListPropGroups(ctx)
	if err != nil {
		t.Fatalf("ListPropGroups() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	first := got[0]
	if first.PropsName != "003" || !first.IsCharacterProp || first.MajorID != 1024 || first.MinorID != 1 {
		t.Errorf("first = %+v", first)
	}
	if len(first.AttachJoints) != 2 || first.AttachJoints[1] != "Wrist_R" {
		t.Errorf("AttachJoints = %v", first.AttachJoints)
	}
	if positions := first.TargetPositions(); len(positions) != 2 || positions[1] != 3 {
		t.Errorf("TargetPositions() = %v", positions)
	}
	if got[2].PropsName != "" {
		t.Errorf("malformed spec should round-trip as authored, got %+v", got[2])
	}
}

func TestPropGroups_ReplaceOverwrites(t *testing.T) {
	repo, _ := setupTestRepo(t, "show-a")
	ctx := context.Background()

	if err := repo.ReplacePropGroups(ctx, testPropGroups()); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if err := repo.ReplacePropGroups(ctx, []stage.PropGroupSpec{{PropsName: "005", MajorID: 1031}}); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	got, err := repo.ListPropGroups(ctx)
	if err != nil {
		t.Fatalf("ListPropGroups() error = %v", err)
	}
	if len(got) != 1 || got[0].PropsName != "005" {
		t.Errorf("got %+v, want only 005", got)
	}
}

// ─── Units ──────────────────────────────────────────────────────

func TestUnits_ReplaceAndList(t *testing.T) {
	repo, _ := setupTestRepo(t, "show-a")
	ctx := context.Background()

	units := []stage.UnitSpec{
		{Name: "truss_b", Members: []string{"light_01", "light_02"}},
		{Name: "truss_a", Members: nil},
	}
	if err := repo.ReplaceUnits(ctx, units); err != nil {
		t.Fatalf("ReplaceUnits() error = %v", err)
	}

	got, err := repo.ListUnits(ctx)
	if err != nil {
		t.Fatalf("ListUnits() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "truss_b" || len(got[0].Members) != 2 {
		t.Errorf("got %+v, want authored order", got)
	}
	if len(got[1].Members) != 0 {
		t.Errorf("empty unit members = %v", got[1].Members)
	}
}

func TestUnits_DuplicateRejected(t *testing.T) {
	repo, _ := setupTestRepo(t, "show-a")
	ctx := context.Background()

	if err := repo.ReplaceUnits(ctx, []stage.UnitSpec{{Name: "keep"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := repo.ReplaceUnits(ctx, []stage.UnitSpec{{Name: "dup"}, {Name: "dup"}})
	if !errors.Is(err, ErrDuplicateUnit) {
		t.Fatalf("error = %v, want ErrDuplicateUnit", err)
	}

	got, _ := repo.ListUnits(ctx)
	if len(got) != 1 || got[0].Name != "keep" {
		t.Errorf("failed import must leave stored units untouched, got %+v", got)
	}
}

// ─── Miss Journal ───────────────────────────────────────────────

func TestMisses_RecordListNewestFirst(t *testing.T) {
	repo, _ := setupTestRepo(t, "show-a")
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 19, 0, 0, 0, time.UTC)

	misses := []stage.Miss{
		{Kind: stage.MissObject, Name: "ghost", Searched: []string{"exact:ghost", "group_suffix:ghost_set"}, At: base},
		{Kind: stage.MissJoint, Name: "003", Detail: "no joint on chara_2", At: base.Add(500 * time.Millisecond)},
		{Kind: stage.MissProp, Name: "005", At: base.Add(time.Second)},
	}
	for _, m := range misses {
		if err := repo.RecordMiss(ctx, m); err != nil {
			t.Fatalf("RecordMiss() error = %v", err)
		}
	}

	got, err := repo.ListMisses(ctx, 0)
	if err != nil {
		t.Fatalf("ListMisses() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Name != "005" || got[1].Name != "003" || got[2].Name != "ghost" {
		t.Errorf("order = %s, %s, %s; want newest first", got[0].Name, got[1].Name, got[2].Name)
	}
	if len(got[2].Searched) != 2 || got[2].Kind != stage.MissObject {
		t.Errorf("ghost = %+v", got[2])
	}
	if got[1].Searched != nil {
		t.Errorf("empty searched should read back nil, got %v", got[1].Searched)
	}
	if !got[1].At.Equal(misses[1].At) {
		t.Errorf("At = %v, want %v", got[1].At, misses[1].At)
	}

	limited, err := repo.ListMisses(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("ListMisses(1) = %d, %v", len(limited), err)
	}
}

func TestMisses_ScopedToShow(t *testing.T) {
	repoA, db := setupTestRepo(t, "show-a")
	repoB, err := NewSQLiteRepository(db.DB, "show-b")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := repoA.RecordMiss(ctx, stage.Miss{Kind: stage.MissObject, Name: "a"}); err != nil {
		t.Fatal(err)
	}

	got, err := repoB.ListMisses(ctx, 10)
	if err != nil {
		t.Fatalf("ListMisses() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("show-b sees %d misses of show-a", len(got))
	}
}

func TestMisses_Prune(t *testing.T) {
	repo, _ := setupTestRepo(t, "show-a")
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	_ = repo.RecordMiss(ctx, stage.Miss{Kind: stage.MissObject, Name: "old", At: now.Add(-48 * time.Hour)})
	_ = repo.RecordMiss(ctx, stage.Miss{Kind: stage.MissObject, Name: "new", At: now.Add(-time.Hour)})

	if _, err := repo.PruneMisses(ctx, 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("PruneMisses(0) error = %v", err)
	}

	n, err := repo.PruneMisses(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneMisses() error = %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	got, _ := repo.ListMisses(ctx, 10)
	if len(got) != 1 || got[0].Name != "new" {
		t.Errorf("remaining = %+v", got)
	}
}

// ─── Import / Load ──────────────────────────────────────────────

func TestImportLoad(t *testing.T) {
	repo, _ := setupTestRepo(t, "show-a")
	ctx := context.Background()

	in := Authored{
		Props: testPropGroups()[:2],
		Units: []stage.UnitSpec{{Name: "truss", Members: []string{"light_01"}}},
	}
	if err := Import(ctx, repo, in); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	out, err := Load(ctx, repo)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(out.Props) != 2 || len(out.Units) != 1 || out.Units[0].Members[0] != "light_01" {
		t.Errorf("Load() = %+v", out)
	}
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	manifest := Authored{
		Props: testPropGroups()[:1],
		Units: []stage.UnitSpec{{Name: "truss", Members: []string{"truss_l"}}},
	}
	edited := Authored{Units: []stage.UnitSpec{{Name: "riser", Members: []string{"riser_01"}}}}

	t.Run("seeds empty store", func(t *testing.T) {
		repo, _ := setupTestRepo(t, "show-a")
		got, err := Sync(ctx, repo, manifest, false)
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if len(got.Props) != 1 || got.Units[0].Name != "truss" {
			t.Errorf("Sync() = %+v", got)
		}
	})

	t.Run("stored data wins", func(t *testing.T) {
		repo, _ := setupTestRepo(t, "show-a")
		if err := Import(ctx, repo, edited); err != nil {
			t.Fatal(err)
		}
		got, err := Sync(ctx, repo, manifest, false)
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if len(got.Props) != 0 || got.Units[0].Name != "riser" {
			t.Errorf("Sync() = %+v, want stored data", got)
		}
	})

	t.Run("replace overwrites", func(t *testing.T) {
		repo, _ := setupTestRepo(t, "show-a")
		if err := Import(ctx, repo, edited); err != nil {
			t.Fatal(err)
		}
		got, err := Sync(ctx, repo, manifest, true)
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if got.Units[0].Name != "truss" {
			t.Errorf("Sync() = %+v, want manifest data", got)
		}
	})

	t.Run("empty manifest and store", func(t *testing.T) {
		repo, _ := setupTestRepo(t, "show-a")
		got, err := Sync(ctx, repo, Authored{}, false)
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if !got.Empty() {
			t.Errorf("Sync() = %+v, want empty", got)
		}
	})
}
