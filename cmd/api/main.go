package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hookline/hookline/internal/api"
	"github.com/hookline/hookline/internal/auth"
	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/deliver"
	"github.com/hookline/hookline/internal/dispatch"
	"github.com/hookline/hookline/internal/fanout"
	"github.com/hookline/hookline/internal/health"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/pipeline"
	"github.com/hookline/hookline/internal/queue"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("hookline-api")

	shutdown, err := tracing.InitTracing(ctx, "hookline-api")
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdown()

	// DB connect + migrate; refuse to start if either fails
	pool, err := store.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()
	if err := store.Migrate(ctx, pool); err != nil {
		logger.Plain().WithError(err).Fatal("db migrate failed")
	}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	// The dispatch queue is NSQ by default; the memory backend runs the
	// whole pipeline inside this binary instead (no crash durability).
	var pub queue.Publisher
	var inproc *pipeline.InProc
	pipeCtx, pipeCancel := context.WithCancel(ctx)
	defer pipeCancel()

	switch cfg.Dispatch.Backend {
	case "memory":
		mode := queue.Block
		if cfg.Dispatch.Mode == "fail" {
			mode = queue.FailFast
		}
		mem := queue.NewMemory(cfg.Dispatch.Capacity, mode, cfg.Dispatch.EnqueueTimeout)
		pub = mem

		stage := fanout.NewStage(store.NewSubscriptionStore(pool), mem, cfg.NSQ.DeliveriesTopic)
		worker := deliver.NewWorker(&http.Client{Timeout: cfg.Worker.HTTPTimeout}, store.NewAttemptLedger(pool))
		inproc = pipeline.NewInProc(mem, stage, worker, cfg.NSQ.EventsTopic, cfg.NSQ.DeliveriesTopic, logger)
		inproc.Start(pipeCtx, cfg.Dispatch.FanoutWorkers, cfg.Dispatch.DeliverWorkers)
	default:
		prod, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
		if err != nil {
			logger.Plain().WithError(err).Fatal("nsq producer creation failed")
		}
		defer prod.Stop()
		pub = prod
	}

	disp := dispatch.New(pub, cfg.NSQ.EventsTopic)
	srv := api.NewServer(
		store.NewSubscriptionStore(pool),
		store.NewOrderStore(pool),
		disp,
		logger,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv.Routes(mux)

	var handler http.Handler = mux
	if cfg.Auth.PublicKeyPEM != "" {
		validator, err := auth.NewJWTValidator(cfg.Auth.PublicKeyPEM, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			logger.Plain().WithError(err).Fatal("jwt validator creation failed")
		}
		handler = validator.HTTPMiddleware(mux)
		logger.Plain().Info("API auth enabled")
	}

	httpSrv := &http.Server{Addr: cfg.HTTPPort, Handler: handler}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("api HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("api HTTP server failed")
		}
	}()

	// Graceful stop: close the HTTP boundary first, then drain the
	// in-process pipeline if one is running
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down api service")
	_ = httpSrv.Shutdown(context.Background())
	if inproc != nil {
		pipeCancel()
		inproc.Wait()
	}
	logger.Plain().Info("api service stopped")
}
