package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/api"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/bootstrap"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/logging"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/metrics"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/store"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

type server interface {
	Start(ctx context.Context, addr string) error
}

var (
	loadConfig   = config.Load
	newLogger    = logging.New
	newStore     = bootstrap.Store
	newWorkflow  = bootstrap.Workflow
	dialTemporal = client.Dial
	newServer    = func(researcher api.Researcher, st store.Store, subscriber api.EventSubscriber, metricsHandler http.Handler, cfg config.Config, logger *zap.Logger) server {
		return api.NewServer(researcher, st, subscriber, metricsHandler, cfg, logger)
	}
	notifyContext = signal.NotifyContext
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, closeStore, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore.Close()
	if err := bootstrap.Ping(ctx, st); err != nil {
		logger.Warn("run history store not reachable at startup", zap.Error(err))
	}

	workflow, closeWorkflow, err := newWorkflow(cfg, logger)
	if err != nil {
		return err
	}
	defer closeWorkflow.Close()

	var temporalClient client.Client
	if cfg.ExecutionMode == bootstrap.ModeTemporal {
		temporalClient, err = dialTemporal(client.Options{
			HostPort:  cfg.TemporalAddress,
			Namespace: cfg.TemporalNamespace,
			Logger:    logging.NewTemporalLogger(logger.Named("temporal")),
		})
		if err != nil {
			return err
		}
		if temporalClient != nil {
			defer temporalClient.Close()
		}
	}
	engine, err := bootstrap.Engine(cfg, workflow, temporalClient)
	if err != nil {
		return err
	}

	m := metrics.New()
	tracker := bootstrap.Tracker(cfg, engine, workflow, st, m, logger)
	broker := events.NewBroker()
	tracker.Recorder.Publisher = broker
	srv := newServer(tracker, st, broker, m.Handler(), cfg, logger)

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	logger.Info("developer tools research api starting",
		zap.String("addr", addr),
		zap.String("execution_mode", cfg.ExecutionMode),
		zap.String("store", cfg.StoreDriver),
	)
	if err := srv.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
