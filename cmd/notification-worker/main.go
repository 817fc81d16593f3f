// notification-worker потребляет события заказов и остатков из Kafka и
// отправляет уведомления покупателям и продавцам.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/leduyvuong/ban-hang/internal/app"
	"github.com/leduyvuong/ban-hang/internal/domain"
	"github.com/leduyvuong/ban-hang/internal/messaging/kafka"
	"github.com/leduyvuong/ban-hang/internal/service/notification"
	"github.com/leduyvuong/ban-hang/internal/storage/postgres"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	var configDir string
	flag.StringVar(&configDir, "config", "", "directory with base.yaml (optional)")
	flag.Parse()

	cfg, err := app.LoadConfig(configDir)
	if err != nil {
		log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal("kafka brokers are required (BANHANG_KAFKA__BROKERS)")
	}

	logger := log.WithField("component", "notification-worker")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Каталог нужен для повторной проверки остатка перед алертом продавцу;
	// без postgres алерты отправляются по данным события.
	var catalog domain.ProductRepository
	if cfg.Postgres.DSN != "" {
		store, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.WithError(err).Fatal("connect postgres")
		}
		defer store.Close()
		catalog = postgres.NewProductRepository(store)
	}

	dlqProducer, err := kafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.WithError(err).Fatal("create dlq producer")
	}
	defer func() { _ = dlqProducer.Close() }()

	mailer := notification.NewLogMailer(logger.WithField("layer", "mailer"))
	handler := notification.NewHandler(mailer, catalog, logger)

	consumer, err := kafka.NewConsumerWithDLQ(
		cfg.Kafka.Brokers,
		cfg.Kafka.ConsumerGroup,
		[]string{kafka.TopicOrderEvents, kafka.TopicStockEvents},
		handler.Handle,
		dlqProducer,
		3,
	)
	if err != nil {
		log.WithError(err).Fatal("create kafka consumer")
	}

	if err := consumer.Start(ctx); err != nil {
		log.WithError(err).Fatal("start kafka consumer")
	}

	<-ctx.Done()
	logger.Info("получен сигнал остановки")
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("consumer stopped with error")
	}
}
