// Gray Logic Stage - timeline-driven stage object engine
//
// This is the main entry point for the Gray Logic Stage service. It loads a
// scene manifest, attaches character props, and applies timeline keyframes
// received over MQTT to the scene:
//   - resolves timeline object names to scene nodes
//   - sets visibility, parenting and local transforms
//   - propagates visibility to secondary character-worn props
//
// Node state is republished on MQTT, pushed to WebSocket clients and recorded
// in InfluxDB. Resolution misses are journaled to SQLite.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-stage/internal/api"
	"github.com/nerrad567/gray-logic-stage/internal/audit"
	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-stage/internal/playback"
	"github.com/nerrad567/gray-logic-stage/internal/stage"
	"github.com/nerrad567/gray-logic-stage/internal/stagedata"
	"github.com/nerrad567/gray-logic-stage/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", getConfigPath(), "path to the configuration file")
	issueToken := flag.String("issue-token", "", "print an API token for `subject` and exit")
	tokenTTL := flag.Duration("token-ttl", api.DefaultTokenTTL, "lifetime of the token printed by -issue-token")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("graystage %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	if *issueToken != "" {
		if err := printToken(*configPath, *issueToken, *tokenTTL); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic Stage",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("show", cfg.Show.ID)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	// ─── Storage ────────────────────────────────────────────────

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	repo, err := stagedata.NewSQLiteRepository(db.DB, cfg.Show.ID)
	if err != nil {
		return fmt.Errorf("creating stage repository: %w", err)
	}
	if days := cfg.Database.MissRetentionDays; days > 0 {
		pruned, pruneErr := repo.PruneMisses(ctx, time.Duration(days)*24*time.Hour)
		if pruneErr != nil {
			log.Warn("pruning miss journal failed", "error", pruneErr)
		} else if pruned > 0 {
			log.Info("miss journal pruned", "removed", pruned, "retention_days", days)
		}
	}

	// ─── Outbound Sinks ─────────────────────────────────────────

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled, timeline events only arrive through the API")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Show.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Interfaces stay nil, not typed-nil, when a sink is disabled.
	telCfg := playback.TelemetryConfig{Broadcaster: hub, Logger: log.Component("telemetry")}
	if mqttClient != nil {
		telCfg.Publisher = mqttClient
	}
	if influxClient != nil {
		telCfg.Recorder = influxClient
	}
	telemetry := playback.NewTelemetry(telCfg)

	// ─── Stage ──────────────────────────────────────────────────

	missLog := stage.NewMissLog(cfg.Engine.MissLogSize)
	journal := stagedata.NewJournal(repo, 0, log.Component("journal"))

	st, err := buildStage(ctx, cfg, repo, stage.Observers{missLog, journal, telemetry}, log)
	if err != nil {
		return err
	}

	dispatcher := playback.NewDispatcher(st.engine, telemetry, playback.Options{
		QueueSize: cfg.Engine.QueueSize,
		Logger:    log.Component("playback"),
	})

	if mqttClient != nil {
		topic := mqtt.Topics{}.AllTimeline()
		//nolint:gosec // QoS validated to 0-2 by config
		if subErr := mqttClient.Subscribe(topic, byte(cfg.MQTT.QoS), dispatcher.HandleMessage); subErr != nil {
			return fmt.Errorf("subscribing to timeline: %w", subErr)
		}
		log.Info("subscribed to timeline events", "topic", topic)
	}

	// ─── Run ────────────────────────────────────────────────────

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return journal.Run(gctx) })
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	var server *api.Server
	if cfg.API.Enabled {
		trail, auditErr := audit.NewSQLiteRepository(db.DB, cfg.Show.ID)
		if auditErr != nil {
			return fmt.Errorf("creating audit repository: %w", auditErr)
		}
		deps := api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log.Component("api"),
			Playback: dispatcher,
			Misses:   missLog,
			Store:    repo,
			Audit:    trail,
			DB:       db.DB,
			Hub:      hub,
			ShowID:   cfg.Show.ID,
			Version:  version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		server, err = api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if startErr := server.Start(gctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
	}

	if hcErr := healthCheck(ctx, db, mqttClient, influxClient); hcErr != nil {
		log.Warn("startup health check failed", "error", hcErr)
	}

	log.Info("stage ready, waiting for timeline events",
		"registered", st.engine.Registry().Len(),
		"props", st.engine.Props().Len(),
		"units", st.engine.Units().Len(),
		"mappings", st.engine.Mapping().Len(),
	)

	runErr := g.Wait()

	log.Info("shutdown signal received, cleaning up")
	if server != nil {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}

	// The dispatcher has stopped, so the engine is no longer in use.
	st.engine.Teardown()

	stats := dispatcher.Stats()
	log.Info("Gray Logic Stage stopped",
		"events", stats.Processed,
		"failed", stats.Failed,
		"misses", missLog.Total(),
		"journaled", journal.Written(),
		"journal_dropped", journal.Dropped(),
	)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYSTAGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYSTAGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the infrastructure connections. Disabled sinks are nil
// and skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// printToken writes a signed API token to stdout.
func printToken(configPath, subject string, ttl time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	token, err := api.IssueToken(cfg.Security.JWT, subject, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
