// Command server runs the land registry workflow engine. Wiring only: every
// guard and transition lives in the internal services.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"landregistry/internal/audittrail"
	disputehandler "landregistry/internal/dispute/handler"
	disputeservice "landregistry/internal/dispute/service"
	disputestore "landregistry/internal/dispute/store"
	documenthandler "landregistry/internal/document/handler"
	documentservice "landregistry/internal/document/service"
	documentstore "landregistry/internal/document/store"
	"landregistry/internal/notify"
	paymenthandler "landregistry/internal/payment/handler"
	paymentservice "landregistry/internal/payment/service"
	paymentstore "landregistry/internal/payment/store"
	"landregistry/internal/platform/config"
	"landregistry/internal/platform/httpserver"
	"landregistry/internal/platform/logger"
	"landregistry/internal/platform/metrics"
	"landregistry/internal/platform/middleware"
	platformredis "landregistry/internal/platform/redis"
	propertyhandler "landregistry/internal/property/handler"
	propertyservice "landregistry/internal/property/service"
	propertystore "landregistry/internal/property/store"
	"landregistry/internal/provision"
	transferhandler "landregistry/internal/transfer/handler"
	transferservice "landregistry/internal/transfer/service"
	transferstore "landregistry/internal/transfer/store"
	"landregistry/pkg/platform/audit"
	"landregistry/pkg/platform/audit/outbox"
	auditmem "landregistry/pkg/platform/audit/store/memory"
	auditpg "landregistry/pkg/platform/audit/store/postgres"
	"landregistry/pkg/platform/tx"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence: postgres when DATABASE_URL is set, otherwise in-memory
	// stores behind the same interfaces.
	var (
		db         *sql.DB
		runner     tx.Runner
		auditStore audit.Store

		propStore     propertyservice.Store
		docStore      documentservice.Store
		payStore      paymentservice.Store
		transferStore transferservice.Store
		disputeStore  disputeservice.Store
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		runner = tx.NewSQLRunner(db)
		auditStore = auditpg.New(db)
		propStore = propertystore.NewPostgres(db)
		docStore = documentstore.NewPostgres(db)
		payStore = paymentstore.NewPostgres(db)
		transferStore = transferstore.NewPostgres(db)
		disputeStore = disputestore.NewPostgres(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		runner = tx.NewMemoryRunner()
		auditStore = auditmem.NewInMemoryStore()
		propStore = propertystore.NewInMemory()
		docStore = documentstore.NewInMemory()
		payStore = paymentstore.NewInMemory()
		transferStore = transferstore.NewInMemory()
		disputeStore = disputestore.NewInMemory()
	}

	// Audit writes drain through a background worker so no transition waits
	// on the trail.
	auditWorker := audit.NewWorker(auditStore, 256,
		audit.WithWorkerLogger(log), audit.WithWorkerDropCounter(m))
	go func() { _ = auditWorker.Run(ctx) }()
	auditor := audit.NewEmitter(auditWorker, audit.WithLogger(log), audit.WithDropCounter(m))

	// Notifications are optional: without Redis every publish is a no-op.
	var sink notify.Sink = notify.Noop{}
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sink = notify.NewRedisSink(redisClient.Client,
			notify.WithLogger(log), notify.WithDropCounter(m))
	}

	props := propertyservice.New(propStore, auditor,
		propertyservice.WithNotifier(sink),
		propertyservice.WithMetrics(m),
		propertyservice.WithLogger(log))
	docs := documentservice.New(docStore, props, runner, auditor,
		documentservice.WithNotifier(sink),
		documentservice.WithLogger(log))
	payments := paymentservice.New(payStore, props, runner, auditor,
		paymentservice.WithNotifier(sink),
		paymentservice.WithLogger(log))
	props.BindSubWorkflows(docs, payments)

	transfers := transferservice.New(transferStore, props, runner, auditor,
		transferservice.WithFeeState(payments),
		transferservice.WithNotifier(sink),
		transferservice.WithMetrics(m),
		transferservice.WithLogger(log))
	payments.BindTransfers(transfers)

	disputes := disputeservice.New(disputeStore, props, auditor,
		disputeservice.WithNotifier(sink),
		disputeservice.WithMetrics(m),
		disputeservice.WithLogger(log))

	provisioner := provision.New(cfg.ProvisioningToken, cfg.JWTSigningKey, auditor, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(m))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(middleware.NewJWTValidator(cfg.JWTSigningKey), log))
		propertyhandler.New(props).Register(r)
		documenthandler.New(docs).Register(r)
		paymenthandler.New(payments).Register(r)
		transferhandler.New(transfers).Register(r)
		disputehandler.New(disputes).Register(r)
		provision.NewHandler(provisioner).Register(r)
		audittrail.NewHandler(auditor).Register(r)
	})

	// Ship audit outbox rows to Kafka when both postgres and brokers exist.
	if db != nil && len(cfg.Kafka.Brokers) > 0 {
		producer, err := kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		relay := outbox.New(db, producer, cfg.Kafka.AuditTopic, log)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit outbox relay stopped", "error", err)
			}
		}()
	}

	srv := httpserver.New(cfg.Addr, r)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
