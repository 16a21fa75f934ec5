package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-stage/internal/scene"
	"github.com/nerrad567/gray-logic-stage/internal/stage"
	"github.com/nerrad567/gray-logic-stage/internal/stagedata"
	"github.com/nerrad567/gray-logic-stage/internal/timeline"
)

// stageSetup is the assembled scene and engine.
type stageSetup struct {
	scene    *scene.Scene
	engine   *stage.Engine
	timeline *timeline.Data
	authored stagedata.Authored
	attached int
}

// buildStage runs the startup sequence: build the scene, register the stage
// objects, attach character props, load units, build the mapping table and
// hide every timeline object until its first keyframe.
func buildStage(ctx context.Context, cfg *config.Config, repo stagedata.Repository, observer stage.Observer, log *logging.Logger) (*stageSetup, error) {
	manifest, err := scene.LoadManifest(cfg.Stage.Manifest)
	if err != nil {
		return nil, fmt.Errorf("loading stage manifest: %w", err)
	}
	sc := scene.Build(manifest)
	log.Info("scene built",
		"manifest", cfg.Stage.Manifest,
		"characters", len(sc.Rig.Characters()),
		"prefabs", sc.Library.Len(),
	)

	authored, err := stagedata.Sync(ctx, repo, stagedata.Authored{Props: sc.Props, Units: sc.Units}, cfg.Stage.ImportAuthored)
	if err != nil {
		return nil, fmt.Errorf("loading authored stage data: %w", err)
	}
	log.Info("authored stage data loaded",
		"prop_groups", len(authored.Props),
		"units", len(authored.Units),
		"reimported", cfg.Stage.ImportAuthored,
	)

	var tl *timeline.Data
	if cfg.Stage.Timeline != "" {
		tl, err = timeline.Load(cfg.Stage.Timeline)
		if err != nil {
			return nil, fmt.Errorf("loading timeline: %w", err)
		}
		log.Info("timeline loaded", "name", tl.Name, "worksheets", len(tl.Worksheets))
	}

	return assembleStage(sc, authored, tl, cfg, observer, log.Component("stage"))
}

// assembleStage wires an already built scene. Split from buildStage so it can
// run without files or a database.
func assembleStage(sc *scene.Scene, authored stagedata.Authored, tl *timeline.Data, cfg *config.Config, observer stage.Observer, log stage.Logger) (*stageSetup, error) {
	registry := stage.NewRegistry()
	registry.SetLogger(log)
	registry.Populate(sc.Stage)

	engine, err := stage.NewEngine(stage.Deps{
		Registry:  registry,
		Mapping:   stage.NewMappingTable(log, mappingRules(cfg.Mapping)...),
		Rig:       sc.Rig,
		Assets:    sc.Library,
		StageRoot: sc.Stage,
		Options:   engineOptions(cfg.Engine),
		Logger:    log,
		Observer:  observer,
	})
	if err != nil {
		return nil, fmt.Errorf("creating stage engine: %w", err)
	}

	attached := engine.AttachCharacterProps(authored.Props)
	engine.LoadUnits(authored.Units)

	// A nil *timeline.Data must not reach the ObjectLister interface.
	if tl != nil {
		engine.BuildMapping(tl)
		engine.PrepareTimelineObjects(tl)
	}

	return &stageSetup{
		scene:    sc,
		engine:   engine,
		timeline: tl,
		authored: authored,
		attached: len(attached),
	}, nil
}

func engineOptions(cfg config.EngineConfig) stage.Options {
	return stage.Options{
		InvertVisibility: cfg.InvertVisibility,
		HandFanMarker:    cfg.HandFanMarker,
		RightHandJoint:   cfg.RightHandJoint,
		Naming: stage.Naming{
			CloneSuffix:     cfg.CloneSuffix,
			GroupSuffix:     cfg.GroupSuffix,
			GeneratedPrefix: cfg.GeneratedPrefix,
		},
	}
}

// mappingRules converts configured rules. The built-in rules come first
// unless disabled.
func mappingRules(cfg config.MappingConfig) []stage.MappingRule {
	var rules []stage.MappingRule
	if !cfg.DisableDefaults {
		rules = append(rules, stage.DefaultRules()...)
	}
	for _, r := range cfg.Rules {
		rule := stage.PatternRule{RuleName: r.Name, Marker: r.Marker}
		if rule.RuleName == "" {
			rule.RuleName = r.Marker
		}
		for _, t := range r.Targets {
			rule.Targets = append(rule.Targets, stage.MappingTarget{
				MajorID:     t.MajorID,
				PropsName:   t.PropsName,
				Invert:      t.Invert,
				Description: t.Description,
			})
		}
		rules = append(rules, rule)
	}
	if len(rules) == 0 {
		// NewMappingTable falls back to the defaults on an empty list; a
		// marker-less rule matches nothing.
		rules = append(rules, stage.PatternRule{RuleName: "none"})
	}
	return rules
}
