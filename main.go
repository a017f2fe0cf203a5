package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-core/internal/config"
	"chat-core/internal/db"
	"chat-core/internal/directory"
	"chat-core/internal/events"
	"chat-core/internal/grpcserver"
	"chat-core/internal/handlers"
	"chat-core/internal/middleware"
	"chat-core/internal/natsbus"
	"chat-core/internal/observability"
	"chat-core/internal/rabbitmq"
	"chat-core/internal/repositories"
	"chat-core/internal/repositories/memory"
	"chat-core/internal/services"
	"chat-core/internal/telemetry"
	"chat-core/internal/ws"
)

type store struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	reads    repositories.ReadTracker
	unread   repositories.UnreadCounter
	users    services.UserDirectory
	ping     func(ctx context.Context) error
	learn    gin.HandlerFunc
	close    func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(os.Stdout, cfg.Logger.Level, cfg.Logger.Format).
		With("service", config.ServiceName, "environment", cfg.Server.Environment)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, config.ServiceName, cfg.Server.Environment, cfg.Tracing.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}

	rabbit := rabbitmq.NewPublisher(cfg.Events.AMQPURL, cfg.Events.AMQPExchange)
	slog.Info("rabbitmq publisher ready", "mode", rabbitmq.PublisherMode(rabbit), "noop_reason", rabbitmq.PublisherNoopReason(rabbit))
	audit := telemetry.NewAuditEmitter(rabbit, cfg.Events.AuditRoutingKey, config.ServiceName, cfg.Server.Environment)

	hub := ws.NewHub()
	sinks := []events.Sink{
		{Name: "ws", Publisher: hub},
		{Name: "rabbitmq", Publisher: rabbit},
	}
	var nats *natsbus.Publisher
	if cfg.Events.NATSURL != "" {
		nats, err = natsbus.Connect(cfg.Events.NATSURL, config.ServiceName, cfg.Events.NATSSubjectPrefix)
		if err != nil {
			slog.Warn("nats disabled", "error", err)
		} else {
			sinks = append(sinks, events.Sink{Name: "nats", Publisher: nats})
		}
	}
	dispatcher := events.NewDispatcher(events.Options{
		QueueSize:      cfg.Events.QueueSize,
		Workers:        cfg.Events.Workers,
		PublishTimeout: cfg.Events.PublishTimeout,
		Logger:         logger,
	}, sinks...)

	policy := services.NewRolePolicy(cfg.Auth.PrivilegedRoles)
	roomService := services.NewRoomService(st.rooms, st.unread, st.users, policy, dispatcher, logger)
	messageService := services.NewMessageService(st.rooms, st.messages, st.reads, st.users, policy, dispatcher, logger)

	verifier := middleware.NewTokenVerifier(cfg.Auth.JWTSecret)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(config.ServiceName))
	router.Use(middleware.RequestID())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", handlers.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", ws.NewHandler(hub, verifier, rabbit).Handle)

	api := router.Group("/")
	api.Use(middleware.AuthMiddleware(verifier), middleware.Timeout(cfg.Server.RequestTimeout))
	if st.learn != nil {
		api.Use(st.learn)
	}
	handlers.RegisterRoutes(api, handlers.NewRoomHandler(roomService, audit), handlers.NewMessageHandler(messageService, audit))
	handlers.RegisterDebugRoutes(api, audit, cfg.Server.DebugRoutes)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpcserver.New()
	grpcServer.Refresh(ctx, "store", st.ping)
	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		slog.Error("failed to listen grpc", "port", cfg.Server.GRPCPort, "error", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("grpc server listening", "port", cfg.Server.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("grpc server error", "error", err)
			stop()
		}
	}()
	go func() {
		slog.Info("http server listening", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				grpcServer.Refresh(ctx, "store", st.ping)
			}
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	grpcServer.Stop()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		slog.Warn("event dispatcher shutdown", "error", err)
	}
	if err := nats.Close(); err != nil {
		slog.Warn("nats close", "error", err)
	}
	if err := rabbit.Close(); err != nil {
		slog.Warn("rabbitmq close", "error", err)
	}
	if err := st.close(); err != nil {
		slog.Warn("store close", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("tracing shutdown", "error", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		mem := memory.New()
		slog.Warn("using in-memory store; data is lost on restart")
		return &store{
			rooms:    mem,
			messages: mem,
			reads:    mem,
			unread:   mem,
			users:    mem,
			ping:     func(context.Context) error { return nil },
			learn:    learnUsers(mem),
			close:    func() error { return nil },
		}, nil
	}

	database, err := db.Connect(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	reads := repositories.NewReadRepo(database, cfg.Store.ReadBatchSize)
	return &store{
		rooms:    repositories.NewRoomRepo(database),
		messages: repositories.NewMessageRepo(database),
		reads:    reads,
		unread:   reads,
		users:    directory.NewUsers(database),
		ping:     pinger(database),
		close:    database.Close,
	}, nil
}

func pinger(database *sqlx.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return database.PingContext(ctx)
	}
}

// learnUsers registers every authenticated caller in the in-memory
// directory, which has no identity projection to read from.
func learnUsers(mem *memory.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, ok := middleware.CurrentUser(c); ok {
			mem.PutUser(user.Summary())
		}
		c.Next()
	}
}
