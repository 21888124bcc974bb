package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/config"
	"github.com/MikeMC777/ordenes-checkout/internal/dedup"
	"github.com/MikeMC777/ordenes-checkout/internal/docs"
	"github.com/MikeMC777/ordenes-checkout/internal/events"
	"github.com/MikeMC777/ordenes-checkout/internal/gateway"
	"github.com/MikeMC777/ordenes-checkout/internal/httpx"
	"github.com/MikeMC777/ordenes-checkout/internal/logging"
	"github.com/MikeMC777/ordenes-checkout/internal/memory"
	"github.com/MikeMC777/ordenes-checkout/internal/metrics"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/postgres"
	"github.com/MikeMC777/ordenes-checkout/internal/user"
)

// @title        Checkout Service API
// @version      1.0
// @description  Orders, stock reservation and payment orchestration over MyFatoorah, Tabby and Tamara.
// @BasePath     /api/v1

// service bundles what the HTTP layer needs.
type service struct {
	orders   *order.Manager
	payments *payment.Orchestrator
	gateways *gateway.Registry
	ready    func(context.Context) error
}

// storage is the persistence backend selected by STORAGE.
type storage struct {
	orders   order.Store
	payments payment.Store
	users    user.Repository
	ping     func(context.Context) error
	close    func()
}

func openStorage(ctx context.Context, cfg config.Config, log *zap.Logger) (*storage, error) {
	if cfg.Storage == "memory" {
		log.Warn("using in-memory storage; data is lost on restart")
		s := memory.New()
		return &storage{
			orders:   memory.OrderStore(s),
			payments: memory.PaymentStore(s),
			users:    s.Users(),
			ping:     func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	}
	pool, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	s := postgres.New(pool)
	return &storage{
		orders:   postgres.OrderStore(s),
		payments: postgres.PaymentStore(s),
		users:    s.Users(),
		ping:     pool.Ping,
		close:    pool.Close,
	}, nil
}

func newPublisher(cfg config.Config, log *zap.Logger) events.Publisher {
	switch {
	case len(cfg.KafkaBrokers) > 0:
		log.Info("publishing events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	case cfg.Storage == "memory":
		return &events.Recorder{}
	default:
		return events.Nop{}
	}
}

func newDedup(ctx context.Context, cfg config.Config, log *zap.Logger) (dedup.Store, func()) {
	if cfg.RedisAddr == "" {
		return dedup.NewMemoryStore(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable; webhook dedup will fail open until it recovers", zap.Error(err))
	}
	return dedup.NewRedisStore(rdb), func() { _ = rdb.Close() }
}

func newRouter(svc service, log *zap.Logger, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(httpx.Metrics(m), httpx.Recovery(log), httpx.RequestID(log), httpx.Logger(log))

	r.GET("/healthz", func(c *gin.Context) {
		if err := svc.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group(docs.SwaggerInfo.BasePath)
	api.GET("/gateways", gatewaysHandler(svc.gateways))
	api.POST("/stock/validate", validateStockHandler(svc.orders))
	api.GET("/payments/methods/:gateway", paymentMethodsHandler(svc.payments))
	api.GET("/payments/callback/:gateway", callbackHandler(svc.payments))
	api.POST("/payments/callback/:gateway", callbackHandler(svc.payments))
	api.POST("/payments/webhook/:gateway", webhookHandler(svc.payments, log))

	auth := api.Group("", httpx.RequireUser())
	auth.GET("/orders", listOrdersHandler(svc.orders))
	auth.POST("/orders", createOrderHandler(svc.orders))
	auth.GET("/orders/:id", getOrderHandler(svc.orders, svc.payments))
	auth.PUT("/orders/:id", updateOrderHandler(svc.orders))
	auth.DELETE("/orders/:id", deleteOrderHandler(svc.orders))
	auth.POST("/orders/:id/cancel", cancelOrderHandler(svc.orders))
	auth.POST("/payments/initiate", initiatePaymentHandler(svc.payments))
	auth.POST("/payments/:id/capture", capturePaymentHandler(svc.orders, svc.payments))
	auth.POST("/payments/:id/refund", refundPaymentHandler(svc.orders, svc.payments))
	return r
}

func main() {
	cfg := config.Load()
	log := logging.MustNew(cfg.ServiceName, cfg.Env, cfg.Payment.Debug)
	defer func() { _ = log.Sync() }()
	cfg.Log(log)

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	m := metrics.New(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("storage init failed", zap.String("storage", cfg.Storage), zap.Error(err))
	}
	defer store.close()

	pub := newPublisher(cfg, log)
	defer func() { _ = pub.Close() }()

	seen, closeDedup := newDedup(ctx, cfg, log)
	defer closeDedup()

	registry := gateway.NewDefaultRegistry(cfg.Payment, gateway.Deps{Log: log, Metrics: m})
	orders := order.NewManager(store.orders, registry,
		order.WithPricing(order.PricingFromConfig(cfg.Pricing)),
		order.WithUsers(store.users),
		order.WithEvents(pub),
		order.WithLogger(log),
		order.WithMetrics(m),
		order.WithDefaultMethod(cfg.Payment.DefaultGateway),
	)
	payments := payment.NewOrchestrator(store.payments, registry, orders,
		payment.WithUsers(store.users),
		payment.WithEvents(pub),
		payment.WithLogger(log),
		payment.WithMetrics(m),
		payment.WithDedup(seen, cfg.WebhookDedupTTL),
	)

	svc := service{orders: orders, payments: payments, gateways: registry, ready: store.ping}
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(svc, log, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv, err := startGRPC(ctx, cfg.GRPCAddr, store.ping, log)
	if err != nil {
		log.Fatal("grpc listen failed", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		log.Info("http server started", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcSrv.GracefulStop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
		return
	}
	log.Info("http server stopped")
}
