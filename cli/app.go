package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jupark12/go-plot-queue/analysis"
	"github.com/jupark12/go-plot-queue/archive"
	"github.com/jupark12/go-plot-queue/config"
	"github.com/jupark12/go-plot-queue/dataset"
	"github.com/jupark12/go-plot-queue/events"
	"github.com/jupark12/go-plot-queue/importer"
	"github.com/jupark12/go-plot-queue/ledger"
	"github.com/jupark12/go-plot-queue/queue"
	"github.com/jupark12/go-plot-queue/service"
	"github.com/jupark12/go-plot-queue/store"
	"github.com/jupark12/go-plot-queue/worker"
)

// app is everything a command needs, wired from cfg.
type app struct {
	store     store.Store
	datasets  *dataset.Cache
	ledger    *ledger.Ledger
	queue     *queue.PlotJobQueue
	bus       *events.Bus
	analytics *service.Analytics
	archive   *archive.Postgres
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		return store.NewRedis(ctx, store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
	case config.BackendMemory:
		logger.Warn("using the in-memory store; state is lost on exit")
		return store.NewMemory(cfg.SnapshotPath, logger), nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func newApp(ctx context.Context) (*app, error) {
	s, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	a := &app{
		store:    s,
		datasets: dataset.NewCache(s, cfg.DatasetKey, cfg.DatasetIDField),
		ledger:   ledger.New(s, cfg.JobStatusKey, cfg.JobResultKey),
		queue:    queue.NewPlotJobQueue(s, cfg.JobQueueKey, logger),
		bus:      events.NewBus(s, cfg.JobEventsChannel, logger),
	}

	var fetcher service.Fetcher
	if cfg.CatalogEndpoint != "" {
		catalog, err := importer.NewCatalog(importer.CatalogConfig{
			Endpoint:  cfg.CatalogEndpoint,
			AccessKey: cfg.CatalogAccessKey,
			SecretKey: cfg.CatalogSecretKey,
			UseSSL:    cfg.CatalogUseSSL,
		}, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		fetcher = catalog
	}
	a.analytics = service.NewAnalytics(s, a.datasets, a.ledger, a.queue, fetcher, logger)

	return a, nil
}

// openArchive connects the job archive when DATABASE_URL is set.
func (a *app) openArchive(ctx context.Context) error {
	if cfg.DatabaseURL == "" {
		return nil
	}
	pg, err := archive.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	a.archive = pg
	return nil
}

func (a *app) newWorker(id string) *worker.Worker {
	w := worker.NewWorker(id, a.queue, a.ledger, a.datasets, analysis.Render, logger)
	w.SetNotifier(a.bus.Notify)
	if a.archive != nil {
		w.SetRecorder(a.archive)
	}
	return w
}

func (a *app) Close() error {
	if a.archive != nil {
		a.archive.Close()
	}
	return a.store.Close()
}

// requireSharedStore rejects the memory backend for commands that only make
// sense when another process shares the store.
func requireSharedStore(command string) error {
	if cfg.StoreBackend == config.BackendMemory {
		return errors.New(command + " needs a shared store; use STORE_BACKEND=redis or run plotq serve")
	}
	return nil
}
