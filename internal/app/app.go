// Package app wires configuration into the running services shared by the
// server, worker and seeder binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/unclebandit/voiceops-backend/internal/config"
	"github.com/unclebandit/voiceops-backend/internal/controller"
	"github.com/unclebandit/voiceops-backend/internal/db"
	"github.com/unclebandit/voiceops-backend/internal/handler"
	"github.com/unclebandit/voiceops-backend/internal/lock"
	"github.com/unclebandit/voiceops-backend/internal/metrics"
	"github.com/unclebandit/voiceops-backend/internal/provider"
	"github.com/unclebandit/voiceops-backend/internal/queue"
	"github.com/unclebandit/voiceops-backend/internal/service"
	"github.com/unclebandit/voiceops-backend/internal/summarizer"
)

// App holds every long-lived dependency. Close releases them in reverse
// order of acquisition.
type App struct {
	Config   *config.Config
	Log      *zap.Logger
	DB       *sql.DB
	Stores   *service.Stores
	Locks    lock.Locker
	Queue    queue.Queue
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Provider provider.Client

	Campaigns    *service.CampaignService
	Enrollment   *service.EnrollmentService
	Starter      *service.Starter
	Reconciler   *service.Reconciler
	Calls        *service.CallService
	Attention    *service.AttentionService
	Dnc          *service.DncService
	Appointments *service.AppointmentService
	Enricher     *service.Enricher

	closers []func() error
}

// Option adjusts an App before its services are built.
type Option func(*App)

// WithProvider replaces the HTTP voice provider client.
func WithProvider(p provider.Client) Option {
	return func(a *App) { a.Provider = p }
}

// WithLocker replaces the locker chosen from REDIS_URL.
func WithLocker(l lock.Locker) Option {
	return func(a *App) { a.Locks = l }
}

// New connects to the database, applies the schema and builds the services.
// Redis and RabbitMQ are used when their URLs are configured; otherwise
// locks are process-local and enrichment runs on an in-memory queue.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	a := &App{Config: cfg, Log: log}
	for _, opt := range opts {
		opt(a)
	}

	conn, err := db.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.DB = conn
	a.closers = append(a.closers, conn.Close)

	if err := db.Migrate(ctx, conn, cfg.Database.Driver); err != nil {
		a.Close()
		return nil, err
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(conn, cfg.Database.Name),
	)
	a.Metrics = metrics.New(a.Registry)

	if a.Locks == nil {
		if cfg.Redis.URL != "" {
			rl, err := lock.NewRedisFromURL(ctx, cfg.Redis.URL, "voiceops:lock:", log)
			if err != nil {
				a.Close()
				return nil, err
			}
			a.Locks = rl
			a.closers = append(a.closers, rl.Close)
			log.Info("using redis locks")
		} else {
			a.Locks = lock.NewLocal()
		}
	}

	if a.Provider == nil {
		a.Provider = provider.NewHTTPClient(cfg.Provider, log)
	}

	a.Stores = service.NewStores(conn)
	a.build()

	if cfg.AMQP.URL != "" {
		q, err := queue.NewAMQPQueue(cfg.AMQP.URL, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Queue = q
		log.Info("publishing enrichment events to rabbitmq")
	} else {
		q := queue.NewInMemoryQueue(log)
		if err := q.Subscribe(queue.TopicCallEnrichment, a.Enricher.Handle); err != nil {
			a.Close()
			return nil, err
		}
		a.Queue = q
	}
	a.closers = append(a.closers, a.Queue.Close)
	a.Reconciler.Queue = a.Queue

	return a, nil
}

func (a *App) build() {
	cfg, log, stores := a.Config, a.Log, a.Stores

	var sum summarizer.Summarizer = summarizer.Disabled{}
	if cfg.Summarizer.OpenAIAPIKey != "" {
		sum = summarizer.NewOpenAI(cfg.Summarizer.OpenAIAPIKey, cfg.Summarizer.Model, log)
	}

	a.Campaigns = &service.CampaignService{Stores: stores, Provider: a.Provider, Locks: a.Locks, Log: log}
	a.Enrollment = &service.EnrollmentService{Stores: stores, DefaultRegion: cfg.Reconciler.DefaultRegion, Log: log}
	a.Starter = &service.Starter{
		Stores:    stores,
		Provider:  a.Provider,
		Locks:     a.Locks,
		Metrics:   a.Metrics,
		Log:       log,
		BatchSize: cfg.Provider.BatchSize,
		Timeout:   cfg.Provider.HTTPTimeout,
	}
	a.Reconciler = &service.Reconciler{
		Stores:          stores,
		Secret:          cfg.Provider.WebhookSecret,
		ReviewThreshold: cfg.Reconciler.ReviewSentimentThreshold,
		ArchivePath:     cfg.Reconciler.WebhookArchivePath,
		Locks:           a.Locks,
		Metrics:         a.Metrics,
		Log:             log,
	}
	a.Calls = &service.CallService{Stores: stores, Log: log}
	a.Attention = &service.AttentionService{Stores: stores}
	a.Dnc = &service.DncService{Stores: stores, DefaultRegion: cfg.Reconciler.DefaultRegion, Log: log}
	a.Appointments = &service.AppointmentService{Stores: stores}
	a.Enricher = &service.Enricher{
		Stores:     stores,
		Summarizer: sum,
		Metrics:    a.Metrics,
		Log:        log,
		Timeout:    time.Minute,
	}
}

// Worker builds the scheduled-job runner from the worker config.
func (a *App) Worker() *service.Worker {
	w := service.NewWorker(a.Starter, a.Dnc, a.Stores.Webhooks, a.Log)
	if a.Config.Reconciler.DedupMaxEntries > 0 {
		w.DedupKeep = a.Config.Reconciler.DedupMaxEntries
	}
	w.SnapshotPath = a.Config.Worker.DncSnapshotPath
	return w
}

// Schedule maps the worker config onto cron specs.
func (a *App) Schedule() service.Schedule {
	return service.Schedule{
		RetryDispatch: a.Config.Worker.RetryDispatchSpec,
		DedupPrune:    a.Config.Worker.DedupPruneSpec,
		DncSnapshot:   a.Config.Worker.DncSnapshotSpec,
	}
}

// Router serves the webhook receiver, the operator API, health and metrics.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(a.Metrics.Middleware)

	r.Get("/healthz", a.health)
	r.Method(http.MethodGet, "/metrics", a.Metrics.Handler())

	wh := handler.NewWebhookHandler(a.Reconciler, a.Log)
	r.Post("/webhooks/voice/post-call", wh.PostCall)

	controllers := &controller.Controllers{
		Campaigns: &controller.CampaignController{
			CampaignService:   a.Campaigns,
			EnrollmentService: a.Enrollment,
			Starter:           a.Starter,
		},
		Calls:        &controller.CallController{CallService: a.Calls, AttentionService: a.Attention},
		Dnc:          &controller.DncController{DncService: a.Dnc},
		Appointments: &controller.AppointmentController{AppointmentService: a.Appointments},
	}
	controllers.Mount(r)
	return r
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := a.DB.PingContext(ctx); err != nil {
		a.Log.Warn("health check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Close releases everything New acquired.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
