package main

import (
	"log"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/bootstrap"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/history"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/logging"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/workflows"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
)

var (
	loadConfig      = config.Load
	newLogger       = logging.New
	dialTemporal    = client.Dial
	newStore        = bootstrap.Store
	newWorkflow     = bootstrap.Workflow
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
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

	temporalClient, err := dialTemporal(client.Options{
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

	st, closeStore, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore.Close()

	workflow, closeWorkflow, err := newWorkflow(cfg, logger)
	if err != nil {
		return err
	}
	defer closeWorkflow.Close()
	workflow.Observer = history.NewRecorder(st, logger.Named("history"))

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: max(cfg.Concurrency*2, 2),
	})
	w.RegisterWorkflow(workflows.ResearchWorkflow)
	w.RegisterActivity(workflows.NewResearchActivities(workflow))

	logger.Info("research worker started",
		zap.String("task_queue", cfg.TemporalTaskQueue),
		zap.String("store", cfg.StoreDriver),
	)
	if err := w.Run(workerInterrupt()); err != nil {
		return err
	}

	return nil
}
