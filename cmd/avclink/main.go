// AVC Link Core - device connection dashboard backend
//
// This is the main entry point for the AVC Link daemon. It serves the known
// device list, a simulated scan/connect/monitor lifecycle, alerts and
// connection history over HTTP and WebSocket, and optionally mirrors state
// to MQTT and telemetry to InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/avclink-core/migrations"

	"github.com/nerrad567/avclink-core/internal/alert"
	"github.com/nerrad567/avclink-core/internal/api"
	"github.com/nerrad567/avclink-core/internal/connection"
	"github.com/nerrad567/avclink-core/internal/device"
	"github.com/nerrad567/avclink-core/internal/history"
	"github.com/nerrad567/avclink-core/internal/infrastructure/config"
	"github.com/nerrad567/avclink-core/internal/infrastructure/database"
	"github.com/nerrad567/avclink-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/avclink-core/internal/infrastructure/logging"
	"github.com/nerrad567/avclink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/avclink-core/internal/session"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	healthCheckTimeout = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting AVC Link Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(getConfigPath(), log)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	registry, err := buildRegistry(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	alerts := alert.NewService(alert.NewSQLiteRepository(db.DB))
	alerts.SetLogger(log)
	hist := history.NewService(history.NewSQLiteRepository(db.DB))
	hist.SetLogger(log)

	sim := connection.New(registry, connection.Options{
		Seed:            cfg.Simulator.Seed,
		ScanStep:        cfg.Simulator.ScanStep,
		ScanJitter:      cfg.Simulator.ScanJitter,
		ScanTimeout:     cfg.Simulator.ScanTimeout,
		HandshakeDelay:  cfg.Simulator.HandshakeDelay,
		MonitorInterval: cfg.Simulator.MonitorInterval,
		FailureRate:     cfg.Simulator.FailureRate,
	})
	sim.SetLogger(log)
	defer sim.Close()

	mqttClient := connectMQTT(cfg, log)
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	influxClient := connectInfluxDB(cfg, log)
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	hub := api.NewHub(cfg.WebSocket, log)
	sessionDeps := session.Deps{
		Registry:  registry,
		Simulator: sim,
		Alerts:    alerts,
		History:   hist,
		Settings:  device.NewSQLiteSettingsStore(db.DB),
		Hub:       hub,
		Logger:    log,
	}
	apiDeps := api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Registry:  registry,
		Simulator: sim,
		Alerts:    alerts,
		History:   hist,
		Hub:       hub,
		DB:        db.DB,
		Version:   version,
	}
	// Interface fields stay nil unless the client exists.
	if mqttClient != nil {
		sessionDeps.MQTT = mqtt.NewBreakerPublisher(mqttClient, mqtt.BreakerConfig{}, log)
		apiDeps.MQTT = mqttClient
	}
	if influxClient != nil {
		sessionDeps.Telemetry = influxClient
	}

	mgr, err := session.New(sessionDeps)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}
	if mqttClient != nil {
		if subErr := mgr.SubscribeAlerts(mqttClient); subErr != nil {
			log.Warn("alert subscription failed", "error", subErr)
		}
		mgr.PublishState()
	}
	apiDeps.Session = mgr

	pruner, err := history.NewPruner(hist, cfg.History.PruneSchedule, cfg.History.Retention)
	if err != nil {
		return fmt.Errorf("creating history pruner: %w", err)
	}
	pruner.Start(ctx)
	defer pruner.Stop()

	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	healthCheck(ctx, db, mqttClient, influxClient, log)

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// healthCheck logs the state of each backing service once at startup.
// Optional services that are absent are skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) {
	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		log.Error("database health check failed", "error", err)
	} else {
		log.Info("database health check passed")
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(checkCtx); err != nil {
			log.Warn("MQTT health check failed", "error", err)
		} else {
			log.Info("MQTT health check passed")
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(checkCtx); err != nil {
			log.Warn("InfluxDB health check failed", "error", err)
		} else {
			log.Info("InfluxDB health check passed")
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses AVCLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AVCLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads path, falling back to built-in defaults when the file
// does not exist. Any other read or validation error is fatal.
func loadConfig(path string, log *logging.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	switch {
	case err == nil:
		log.Info("configuration loaded", "path", path)
		return cfg, nil
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("config file not found, using defaults", "path", path)
		return config.Default(), nil
	default:
		return nil, fmt.Errorf("loading config: %w", err)
	}
}

func buildRegistry(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (*device.Registry, error) {
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)

	if err := registry.SetManualAddPolicy(device.ManualAddPolicy(cfg.Simulator.ManualAddStatus)); err != nil {
		return nil, fmt.Errorf("configuring device registry: %w", err)
	}
	if err := registry.RefreshCache(ctx); err != nil {
		return nil, fmt.Errorf("loading device registry: %w", err)
	}
	if _, err := registry.ResetConnections(ctx); err != nil {
		return nil, fmt.Errorf("resetting device connections: %w", err)
	}
	if cfg.Simulator.SeedDemoDevices {
		if _, err := registry.SeedDemoDevices(ctx); err != nil {
			return nil, fmt.Errorf("seeding demo devices: %w", err)
		}
	}
	log.Info("device registry initialised", "devices", registry.GetDeviceCount())
	return registry, nil
}

// connectMQTT returns nil when MQTT is disabled or the broker is
// unreachable; the dashboard runs without it.
func connectMQTT(cfg *config.Config, log *logging.Logger) *mqtt.Client {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil
	}
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		log.Warn("MQTT unavailable, continuing without it", "error", err)
		return nil
	}
	client.SetLogger(log)
	client.SetOnConnect(func() { log.Info("MQTT reconnected") })
	client.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client
}

// connectInfluxDB returns nil when InfluxDB is disabled or unreachable.
func connectInfluxDB(cfg *config.Config, log *logging.Logger) *influxdb.Client {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil
	}
	client, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil {
		log.Warn("InfluxDB unavailable, continuing without it", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client
}
