package stagedata

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-stage/internal/stage"
)

// Authored is the stage data the engine needs at startup.
type Authored struct {
	Props []stage.PropGroupSpec `json:"props"`
	Units []stage.UnitSpec      `json:"units"`
}

// Import replaces the stored prop groups and units with a.
func Import(ctx context.Context, repo Repository, a Authored) error {
	if err := repo.ReplacePropGroups(ctx, a.Props); err != nil {
		return fmt.Errorf("importing prop groups: %w", err)
	}
	if err := repo.ReplaceUnits(ctx, a.Units); err != nil {
		return fmt.Errorf("importing units: %w", err)
	}
	return nil
}

// Load reads the stored prop groups and units.
func Load(ctx context.Context, repo Repository) (Authored, error) {
	props, err := repo.ListPropGroups(ctx)
	if err != nil {
		return Authored{}, err
	}
	units, err := repo.ListUnits(ctx)
	if err != nil {
		return Authored{}, err
	}
	return Authored{Props: props, Units: units}, nil
}

// Empty reports whether a carries no prop groups and no units.
func (a Authored) Empty() bool {
	return len(a.Props) == 0 && len(a.Units) == 0
}

// Sync returns the authored data the engine should use.
//
// With replace set, manifest overwrites what is stored. Otherwise the stored
// data wins, and an empty store is seeded from manifest.
func Sync(ctx context.Context, repo Repository, manifest Authored, replace bool) (Authored, error) {
	if replace {
		if err := Import(ctx, repo, manifest); err != nil {
			return Authored{}, err
		}
		return Load(ctx, repo)
	}

	stored, err := Load(ctx, repo)
	if err != nil {
		return Authored{}, err
	}
	if !stored.Empty() || manifest.Empty() {
		return stored, nil
	}
	if err := Import(ctx, repo, manifest); err != nil {
		return Authored{}, err
	}
	return Load(ctx, repo)
}
