package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/backend"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/config"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/database"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/logger"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/mqtt"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/repository"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/service"

	"go.uber.org/zap"
)

// app holds the collaborators shared by serve and the CLI commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	loc    *time.Location

	client       *backend.Client
	db           *sql.DB
	mqtt         *mqtt.Client
	participants repository.ParticipantsRepository
	directory    repository.UserDirectory
	notifier     service.ChangeNotifier

	auth         service.AuthService
	participantS service.ParticipantService
}

func newApp(ctx context.Context, serviceName string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateBackend(); err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: log,
		loc:    cfg.Location(),
		client: backend.NewClient(cfg.Backend.URL, cfg.Backend.AnonKey, cfg.Backend.Timeout, log),
	}

	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.openNotifier()

	a.auth = service.NewAuthService(a.directory, cfg.SiteURL, log)
	a.participantS = service.NewParticipantService(a.participants, a.notifier, a.loc, log)
	return a, nil
}

// openStorage picks the participant store and user directory of STORAGE_DRIVER.
func (a *app) openStorage(ctx context.Context) error {
	switch a.cfg.StorageDriver {
	case config.StoragePostgres:
		db, err := database.NewPostgresDB(ctx, &a.cfg.Database)
		if err != nil {
			return err
		}
		a.db = db
		if err := repository.EnsureSchema(ctx, db); err != nil {
			return err
		}
		a.participants = repository.NewPostgresParticipantsRepository(db)
		a.directory = repository.NewPostgresUserDirectory(db)
		a.logger.Info("Using postgres participant storage", zap.String("host", a.cfg.Database.Host))
	case config.StorageMemory:
		a.participants = repository.NewMemoryParticipantsRepo()
		a.directory = repository.NewMemoryUserDirectory(nil)
		a.logger.Warn("Using in-memory participant storage, records are lost on exit")
	default:
		a.participants = repository.NewBackendParticipantsRepository(a.client)
		a.directory = a.client
	}
	return nil
}

// openNotifier connects the MQTT change notifier when enabled. A broker that
// cannot be reached only disables notifications.
func (a *app) openNotifier() {
	if !a.cfg.MQTT.Enabled {
		return
	}
	client, err := mqtt.NewClient(&a.cfg.MQTT, a.logger)
	if err != nil {
		a.logger.Warn("MQTT unavailable, participant change events disabled", zap.Error(err))
		return
	}
	a.mqtt = client
	a.notifier = mqtt.NewChangeNotifier(client, a.cfg.MQTT.Topic, a.logger)
}

func (a *app) Close() {
	if a.mqtt != nil {
		a.mqtt.Disconnect()
	}
	if a.db != nil {
		_ = database.Close(a.db)
	}
	_ = a.logger.Sync()
}
