// Package app собирает витринный сервис: конфигурация, хранилища,
// HTTP API, воркер transactional outbox и сервер метрик.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/leduyvuong/ban-hang/internal/checkout"
	"github.com/leduyvuong/ban-hang/internal/currency"
	healthcheck "github.com/leduyvuong/ban-hang/internal/health"
	"github.com/leduyvuong/ban-hang/internal/messaging/kafka"
	storefront "github.com/leduyvuong/ban-hang/internal/service/http"
	"github.com/leduyvuong/ban-hang/internal/service/outbox"
	"github.com/leduyvuong/ban-hang/internal/version"
)

// Run запускает сервис и блокируется до отмены контекста или фатальной
// ошибки HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	// Собственный cancel: фоновые воркеры должны останавливаться и при
	// фатальной ошибке API-сервера, не только по внешнему сигналу.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	converter := currency.NewConverterWithBase(deps.Rates, cfg.App.BaseCurrency)
	metrics := checkout.NewMetrics()
	processor := checkout.NewProcessor(deps.Checkout, converter,
		checkout.WithMetrics(metrics),
		checkout.WithLowStockThreshold(cfg.Checkout.LowStockThreshold),
		checkout.WithLogger(logger.WithField("layer", "checkout")),
	)

	// Kafka producer опционален: без брокеров события копятся в outbox
	// и будут опубликованы после рестарта с настроенной Kafka.
	var kafkaProducer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		} else {
			kafkaProducer = producer
			logger.WithField("brokers", cfg.Kafka.Brokers).Info("kafka producer initialized")
		}
	}

	var workerWG sync.WaitGroup
	if kafkaProducer != nil {
		worker := outbox.NewWorker(deps.Outbox, kafka.NewOutboxPublisher(kafkaProducer, ""),
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithDLQPublisher(kafka.NewDLQPublisher(kafkaProducer)),
			outbox.WithPollInterval(cfg.Outbox.PollInterval),
			outbox.WithBatchSize(cfg.Outbox.BatchSize),
			outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		)
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			worker.Run(ctx)
		}()
	} else {
		logger.Warn("kafka brokers are not configured, outbox events stay pending")
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	deps.RegisterHealthChecks(healthHandler)

	metricsSrv := startMetricsServer(ctx, cfg.App.MetricsAddr, logger, healthHandler)

	handler := storefront.NewHandler(deps.Catalog, deps.Carts, deps.Orders, processor, logger.WithField("layer", "http"))
	apiSrv := &http.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.App.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	shutdown := func() {
		cancel()
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		workerWG.Wait()
		if kafkaProducer != nil {
			if err := kafkaProducer.Close(); err != nil {
				logger.WithError(err).Warn("failed to close kafka producer")
			} else {
				logger.Info("kafka producer closed")
			}
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdown()
		return ctx.Err()
	case err := <-errCh:
		shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
