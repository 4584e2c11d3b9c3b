package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"connect-service/config"
	"connect-service/controller"
	"connect-service/database"
	"connect-service/event"
	"connect-service/graph"
	"connect-service/logger"
	"connect-service/media"
	"connect-service/messenger"
	"connect-service/middleware"
	"connect-service/profile"
	"connect-service/push"
	"connect-service/router"
	"connect-service/socketio"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	log, err := logger.New(config.Config("LOG_LEVEL"), config.Config("LOG_FORMAT"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect-service:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Fatal("connect-service stopped", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	ctx := context.Background()
	secret := []byte(config.Config("JWT_ACCESS_KEY"))
	if len(secret) == 0 {
		return fmt.Errorf("JWT_ACCESS_KEY is not set")
	}

	db, err := database.PostgresConnect(log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	var profiles profile.Reader = profile.NewGormReader(db)
	rdb, err := database.RedisConnect(ctx, log)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		profiles = profile.NewCachedReader(profiles, rdb, config.Duration("PROFILE_CACHE_TTL", profile.DefaultCacheTTL), log)
	}

	events, closeEvents, err := connectEvents(ctx, log)
	if err != nil {
		return err
	}
	defer closeEvents()

	store, blobs, err := mediaStore(ctx, db)
	if err != nil {
		return err
	}

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry := push.NewRegistry(push.Options{
		BufferSize: config.Int("PUSH_BUFFER", push.DefaultBufferSize),
		Metrics:    push.NewMetrics(metrics),
		Log:        log.Named("push"),
	})

	messages := messenger.NewGormStore(db)
	dispatcher := messenger.NewDispatcher(messenger.Options{
		Store:     messages,
		Publisher: registry,
		Profiles:  profiles,
		Log:       log.Named("messenger"),
	})
	aggregator := messenger.NewAggregator(messages, profiles, log.Named("messenger"))
	negotiator := graph.NewNegotiator(graph.Options{
		Store:         graph.NewGormStore(db),
		Profiles:      profiles,
		Events:        events,
		Log:           log.Named("graph"),
		RequestLimit:  config.Int("CONNECTION_REQUEST_LIMIT", graph.DefaultRequestLimit),
		RequestWindow: config.Duration("CONNECTION_REQUEST_WINDOW", graph.DefaultRequestWindow),
	})

	handler := &controller.Handler{
		Dispatcher: dispatcher,
		Aggregator: aggregator,
		Negotiator: negotiator,
		Registry:   registry,
		Profiles:   profiles,
		Media:      store,
		Blobs:      blobs,
		Heartbeat:  config.Duration("PUSH_HEARTBEAT", controller.DefaultHeartbeat),
		Log:        log.Named("http"),
	}

	rest := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StrictRouting:         true,
		AppName:               "connect-service",
		BodyLimit:             32 << 20,
	})
	rest.Use(cors.New())
	rest.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(metrics, promhttp.HandlerOpts{})))

	limiter := middleware.NewLimiter(config.Float("API_RPS", 5), config.Int("API_BURST", 20))
	defer limiter.Close()

	socket := socketio.Init(rest, secret, config.Bool("SOCKET_DEBUG", false), log.Named("socket"))
	router.Rest(rest, handler, secret, limiter)
	router.Socket(socket, router.SocketDeps{
		Registry:   registry,
		Dispatcher: dispatcher,
		Aggregator: aggregator,
		Log:        log.Named("socket"),
	})

	port := config.Config("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	listenErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("port", port))
		listenErr <- rest.Listen(":" + port)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case s := <-signals:
		log.Info("shutting down", zap.Stringer("signal", s))
	case err := <-listenErr:
		if err != nil {
			return err
		}
	}

	registry.CloseAll()
	socket.Close(nil)
	if err := rest.Shutdown(); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	return nil
}

// connectEvents dials RabbitMQ when it is configured. The returned func
// closes the broker and the event log.
func connectEvents(ctx context.Context, log *zap.Logger) (event.Emitter, func(), error) {
	if config.Config("RABBITMQ_HOST") == "" {
		log.Info("RABBITMQ_HOST not set, domain events disabled")
		return event.Nop{}, func() {}, nil
	}

	var out io.Writer
	var outLog *os.File
	if path := config.Config("EVENT_LOG"); path != "" {
		if config.Bool("EVENT_REPLAY", false) {
			if err := replayEvents(ctx, log, path); err != nil {
				return nil, nil, err
			}
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open event log: %w", err)
		}
		outLog, out = f, f
	}

	mq, err := event.RabbitMQConnect(log.Named("event"), out)
	if err != nil {
		if outLog != nil {
			outLog.Close()
		}
		return nil, nil, err
	}

	return mq, func() {
		if err := mq.Close(); err != nil {
			log.Warn("rabbitmq close", zap.Error(err))
		}
		if outLog != nil {
			outLog.Close()
		}
	}, nil
}

func replayEvents(ctx context.Context, log *zap.Logger, path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	mq, err := event.RabbitMQConnect(log.Named("event"), nil)
	if err != nil {
		return err
	}
	defer mq.Close()

	n, err := mq.Replay(ctx, f)
	if err != nil {
		return err
	}
	log.Info("replayed event log", zap.String("path", path), zap.Int("events", n))
	return nil
}

func mediaStore(ctx context.Context, db *gorm.DB) (media.Store, *media.DatabaseStore, error) {
	switch config.Config("MEDIA_BACKEND") {
	case "s3":
		client, err := media.NewS3Client(ctx, config.Config("AWS_REGION"))
		if err != nil {
			return nil, nil, err
		}
		return media.NewS3Store(client, config.Config("S3_BUCKET_NAME"), config.Config("S3_PUBLIC_BASE_URL")), nil, nil
	case "", "database":
		blobs := media.NewDatabaseStore(db, "/v1/messenger/media")
		return blobs, blobs, nil
	default:
		return nil, nil, fmt.Errorf("unknown MEDIA_BACKEND %q", config.Config("MEDIA_BACKEND"))
	}
}
