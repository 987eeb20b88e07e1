// Package app builds the long-lived harvester services from configuration and
// runs a single harvest.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/acquire"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/api"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/clock/system"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/config"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/extract/pdf"
	collyfetcher "github.com/JakeFAU/sam-opportunity-harvester/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/sam-opportunity-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/hash/sha256"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/id/uuid"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/logging"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/metrics"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/samgov"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/sink"
	filesink "github.com/JakeFAU/sam-opportunity-harvester/internal/sink/file"
	memorysink "github.com/JakeFAU/sam-opportunity-harvester/internal/sink/memory"
	postgressink "github.com/JakeFAU/sam-opportunity-harvester/internal/sink/postgres"
	pubsubsink "github.com/JakeFAU/sam-opportunity-harvester/internal/sink/pubsub"
	gcsstorage "github.com/JakeFAU/sam-opportunity-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/sam-opportunity-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/sam-opportunity-harvester/internal/storage/memory"
)

// App holds the services of one harvester process.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	orchestrator *harvest.Orchestrator
	fanout       *sink.Fanout
	runs         *postgressink.Sink
	memorySink   *memorysink.Sink
	memoryBlobs  *memorystorage.BlobStore
	browser      *headlessfetcher.Downloader

	mu      sync.Mutex
	closers []func() error
	runErr  error
}

// New builds every service named by cfg. It fails fast when a configured
// blob store or sink cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}

	clock := system.New()
	ids := uuid.New()

	endpoints := samgov.Endpoints{
		SearchURL:          cfg.Upstream.SearchURL,
		DetailURL:          cfg.Upstream.DetailURL,
		ResourcesURL:       cfg.Upstream.ResourcesURL,
		DownloadURL:        cfg.Upstream.DownloadURL,
		OpportunityPageURL: cfg.Upstream.OpportunityPageURL,
	}
	client := samgov.NewClient(samgov.Options{
		Endpoints: endpoints,
		UserAgent: cfg.Upstream.UserAgent,
		Timeout:   cfg.RequestTimeout(),
		Retry: samgov.RetryPolicy{
			MaxRetries:  cfg.HTTP.MaxRetries,
			BaseBackoff: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
			MaxBackoff:  time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		},
	}, clock, logging.Component(logger, "samgov"))
	endpoints = client.Endpoints()

	var acquirer harvest.Acquirer
	if cfg.Harvest.DownloadAttachments {
		store, err := a.buildBlobStore(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		strategies, err := a.buildStrategies(endpoints)
		if err != nil {
			a.Close()
			return nil, err
		}
		acquirer = acquire.New(store, sha256.New(), logging.Component(logger, "acquire"), strategies...)
	}

	var extractor harvest.TextExtractor
	if cfg.Harvest.ExtractText {
		extractor = pdf.New(logging.Component(logger, "extract"))
	}

	fanout, err := a.buildSinks(ctx, ids)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.fanout = fanout

	a.orchestrator = harvest.NewOrchestrator(
		cfg.HarvestRun(endpoints.LinkFormat()),
		client,
		client,
		client,
		acquirer,
		extractor,
		fanout,
		clock,
		ids,
		logging.Component(logger, "harvest"),
	)
	return a, nil
}

func (a *App) buildBlobStore(ctx context.Context) (harvest.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		store, closeFn, err := gcsstorage.Open(ctx, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		a.closers = append(a.closers, closeFn)
		a.logger.Info("using gcs attachment storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return store, nil
	case config.StorageLocal:
		store, err := localstorage.New(localstorage.Config{
			BaseDir: a.cfg.Storage.BaseDir,
			Prefix:  a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		a.logger.Info("using local attachment storage", zap.String("base_dir", a.cfg.Storage.BaseDir))
		return store, nil
	default:
		a.logger.Info("using in-memory attachment storage")
		a.memoryBlobs = memorystorage.NewBlobStore()
		return a.memoryBlobs, nil
	}
}

func (a *App) buildStrategies(endpoints samgov.Endpoints) ([]acquire.Strategy, error) {
	userAgent := a.cfg.Upstream.UserAgent
	if userAgent == "" {
		userAgent = samgov.DefaultUserAgent
	}
	headers := samgov.JSONHeaders(userAgent)
	strategies := []acquire.Strategy{
		collyfetcher.New(collyfetcher.Config{
			UserAgent:   userAgent,
			Headers:     headers,
			Timeout:     a.cfg.DownloadTimeout(),
			MaxBodySize: int(a.cfg.HTTP.MaxDownloadBytes),
		}),
	}
	if !a.cfg.Headless.Enabled {
		return append(strategies, headlessfetcher.NewNoop()), nil
	}
	browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       a.cfg.Headless.MaxParallel,
		UserAgent:         userAgent,
		Headers:           headers,
		NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSeconds) * time.Second,
		DownloadTimeout:   time.Duration(a.cfg.Headless.DownloadTimeoutSeconds) * time.Second,
		Settle:            time.Duration(a.cfg.Headless.SettleMs) * time.Millisecond,
		DownloadDir:       a.cfg.Headless.DownloadDir,
		PageURL:           endpoints.OpportunityPage,
	})
	if err != nil {
		a.logger.Warn("browser downloads disabled", zap.Error(err))
		return append(strategies, headlessfetcher.NewNoop()), nil
	}
	a.browser = browser
	a.closers = append(a.closers, func() error {
		browser.Close()
		return nil
	})
	return append(strategies, browser), nil
}

func (a *App) buildSinks(ctx context.Context, ids harvest.IDGenerator) (_ *sink.Fanout, err error) {
	var named []sink.Named
	defer func() {
		if err != nil {
			closeSinks(a.logger, named)
		}
	}()
	for _, backend := range a.cfg.Sink.Backends {
		switch backend {
		case config.SinkFile:
			s, err := filesink.New(a.cfg.Sink.FilePath)
			if err != nil {
				return nil, fmt.Errorf("init file sink: %w", err)
			}
			named = append(named, sink.Named{Name: backend, Sink: s})
		case config.SinkPostgres:
			s, err := postgressink.New(ctx, postgressink.Config{
				DSN:      a.cfg.DB.DSN,
				Table:    a.cfg.DB.Table,
				RunTable: a.cfg.DB.RunTable,
				MaxConns: a.cfg.DB.MaxConns,
			}, ids)
			if err != nil {
				return nil, fmt.Errorf("init postgres sink: %w", err)
			}
			if err := s.EnsureSchema(ctx); err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("init postgres schema: %w", err)
			}
			a.runs = s
			named = append(named, sink.Named{Name: backend, Sink: s})
		case config.SinkPubSub:
			s, err := pubsubsink.New(ctx, pubsubsink.Config{
				ProjectID: a.cfg.PubSub.ProjectID,
				TopicID:   a.cfg.PubSub.TopicName,
			})
			if err != nil {
				return nil, fmt.Errorf("init pubsub sink: %w", err)
			}
			named = append(named, sink.Named{Name: backend, Sink: s})
		case config.SinkMemory:
			a.memorySink = memorysink.New()
			named = append(named, sink.Named{Name: backend, Sink: a.memorySink})
		default:
			return nil, fmt.Errorf("unknown sink backend: %s", backend)
		}
		a.logger.Info("record sink enabled", zap.String("sink", backend))
	}
	fanout, err := sink.NewFanout(logging.Component(a.logger, "sink"), named...)
	if err != nil {
		return nil, fmt.Errorf("init sinks: %w", err)
	}
	a.closers = append(a.closers, fanout.Close)
	return fanout, nil
}

// closeSinks releases sinks built before a later backend failed.
func closeSinks(logger *zap.Logger, named []sink.Named) {
	for i := len(named) - 1; i >= 0; i-- {
		closer, ok := named[i].Sink.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			logger.Warn("error closing sink", zap.String("sink", named[i].Name), zap.Error(err))
		}
	}
}

// Run executes one harvest. When server.port is set the ops server runs
// alongside and stops when the harvest ends.
func (a *App) Run(ctx context.Context) (harvest.RunStats, error) {
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	var wg sync.WaitGroup
	if a.cfg.Server.Port > 0 {
		srv := api.NewServer(a.orchestrator, a.ready, logging.Component(a.logger, "api"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(serverCtx, fmt.Sprintf(":%d", a.cfg.Server.Port)); err != nil {
				a.logger.Error("ops server failed", zap.Error(err))
			}
		}()
	}

	stats, runErr := a.orchestrator.Run(ctx)
	a.mu.Lock()
	a.runErr = runErr
	a.mu.Unlock()

	if a.runs != nil {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := a.runs.RecordRun(recordCtx, stats); err != nil {
			a.logger.Warn("record run summary failed", zap.String("run_id", stats.RunID), zap.Error(err))
		}
		cancel()
	}

	stopServer()
	wg.Wait()
	return stats, runErr
}

func (a *App) ready(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runErr != nil && !errors.Is(a.runErr, context.Canceled) {
		return a.runErr
	}
	return nil
}

// Orchestrator returns the harvest driver.
func (a *App) Orchestrator() *harvest.Orchestrator {
	return a.orchestrator
}

// MemorySink returns the in-memory sink, or nil when it is not configured.
func (a *App) MemorySink() *memorysink.Sink {
	return a.memorySink
}

// MemoryBlobs returns the in-memory blob store, or nil when another backend
// is configured.
func (a *App) MemoryBlobs() *memorystorage.BlobStore {
	return a.memoryBlobs
}

// Close releases every service in reverse order of construction.
func (a *App) Close() {
	a.logger.Info("shutting down harvester services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}
