package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"kindle_digest/internal/collector"
	"kindle_digest/internal/config"
	"kindle_digest/internal/delivery"
	"kindle_digest/internal/feedlist"
	"kindle_digest/internal/packager"
	"kindle_digest/internal/publisher"
	"kindle_digest/internal/service"
	"kindle_digest/internal/source/rss"
	"kindle_digest/internal/storage/file"
	"kindle_digest/internal/storage/postgres"
	"kindle_digest/internal/storage/sqlite"
)

type app struct {
	rounds  *service.RoundService
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	watermarks, err := openWatermarkStore(ctx, cfg.Watermark, logger, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	// An unusable store must stop the process before the first round.
	if _, err := watermarks.Read(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("probe watermark store: %w", err)
	}

	mailer, err := delivery.New(delivery.Config{
		Host:       cfg.SMTP.Host,
		Port:       cfg.SMTP.Port,
		User:       cfg.SMTP.User,
		Password:   cfg.SMTP.Password,
		From:       cfg.SMTP.From,
		To:         cfg.SMTP.To,
		Encryption: cfg.SMTP.Encryption,
		Timeout:    cfg.SMTP.Timeout,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	pub, err := openPublisher(cfg.Notify, logger, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	source := rss.New(rss.Config{
		Timeout:           cfg.Fetch.Timeout,
		UserAgent:         cfg.Fetch.UserAgent,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		MaxAttempts:       cfg.Fetch.Retry.MaxAttempts,
		InitialBackoff:    cfg.Fetch.Retry.InitialBackoff,
		MaxBackoff:        cfg.Fetch.Retry.MaxBackoff,
		FullText:          cfg.Fetch.FullText,
	}, logger)

	pkg := packager.New(packager.Config{
		PandocPath:       cfg.Converter.PandocPath,
		EbookConvertPath: cfg.Converter.EbookConvert(),
		CoverPath:        cfg.Book.CoverPath,
		StylesheetPath:   cfg.Book.StylesheetPath,
		WorkDir:          cfg.Book.WorkDir,
	}, packager.ExecRunner{}, logger)

	loc, err := cfg.Schedule.Location()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.rounds = service.NewRoundService(
		watermarks,
		feedlist.NewFile(cfg.Feeds.Path),
		collector.New(source, cfg.Fetch.Workers, logger),
		pkg,
		mailer,
		pub,
		logger,
		service.RoundConfig{
			Title:                 cfg.Book.Title,
			Lookback:              cfg.Fetch.Lookback(),
			Location:              loc,
			AbortWhenAllFeedsFail: cfg.Fetch.AbortWhenAllFail,
			NotifyTimeout:         cfg.Schedule.NotifyTimeout,
		},
	)
	return a, nil
}

func openWatermarkStore(ctx context.Context, cfg config.WatermarkConfig, logger *slog.Logger, a *app) (service.WatermarkStore, error) {
	switch cfg.Driver {
	case config.WatermarkPostgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		version, _, err := postgres.RunMigrations(db)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to database", "schema_version", version)
		return postgres.NewWatermarkStore(db, cfg.Name), nil

	case config.WatermarkSQLite:
		db, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		logger.Info("opened sqlite watermark store", "path", cfg.Path)
		return sqlite.NewWatermarkStore(db, cfg.Name), nil

	default:
		logger.Info("using file watermark store", "path", cfg.Path)
		return file.NewWatermarkStore(cfg.Path), nil
	}
}

// openPublisher returns a nil Publisher when notifications are disabled.
func openPublisher(cfg config.NotifyConfig, logger *slog.Logger, a *app) (service.Publisher, error) {
	switch cfg.Driver {
	case config.NotifyRabbitMQ:
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rabbitMQ.Close)
		return rabbitMQ, nil

	case config.NotifyKafka:
		k := publisher.NewKafka(publisher.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, logger)
		a.closers = append(a.closers, k.Close)
		return k, nil

	default:
		return nil, nil
	}
}
