package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shop-service/cache"
	"shop-service/config"
	"shop-service/consumers"
	"shop-service/controllers"
	"shop-service/database"
	"shop-service/logging"
	"shop-service/payment/vnpay"
	"shop-service/rabbitmq"
	"shop-service/repository"
	"shop-service/repository/memory"
	"shop-service/repository/mysql"
	"shop-service/routes"
	"shop-service/services"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig()

	logger, err := logging.NewLogger("shop-service", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化存储
	var (
		stores    repository.Stores
		orderOpts = []services.OrderOption{services.WithPaymentCheckDelay(cfg.PaymentCheckDelay)}
	)
	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("using in-memory storage with demo catalog, data is lost on restart")
		store := memory.NewStore()
		store.Seed(time.Now())
		stores = store.Stores()
	default:
		db, err := database.InitDB(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("database initialization failed", zap.Error(err))
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			logger.Fatal("database migration failed", zap.Error(err))
		}
		store := mysql.NewStore(db)
		stores = store.Stores()
		orderOpts = append(orderOpts, services.WithTxManager(store))
	}

	// 初始化 Redis，购物车和请求去重
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}

	// 初始化 RabbitMQ，不可用时订单事件降级为只记日志
	rmq, err := rabbitmq.NewRabbitMQ(cfg, logger)
	if err != nil {
		logger.Warn("rabbitmq unavailable, order events disabled", zap.Error(err))
	} else {
		defer rmq.Close()
		if err := rmq.SetupQueues(); err != nil {
			logger.Fatal("failed to setup rabbitmq queues", zap.Error(err))
		}
		orderOpts = append(orderOpts, services.WithPublisher(rmq))
	}

	gateway, err := vnpay.NewGateway(vnpay.Config{
		MerchantCode: cfg.VNPay.MerchantCode,
		Secret:       cfg.VNPay.Secret,
		GatewayHost:  cfg.VNPay.GatewayHost,
		ReturnURL:    cfg.VNPay.ReturnURL,
		TestMode:     cfg.VNPay.TestMode,
	})
	if err != nil {
		logger.Fatal("vnpay gateway initialization failed", zap.Error(err))
	}

	orderSvc := services.NewOrderService(stores, logger, orderOpts...)
	engine, err := routes.Setup(routes.Handlers{
		Orders:   controllers.NewOrderController(orderSvc, cache.NewRequestDeduper(rdb, 24*time.Hour), logger),
		Vouchers: controllers.NewVoucherController(services.NewVoucherService(stores.Vouchers), logger),
		Payments: controllers.NewPaymentController(services.NewPaymentService(stores.Orders, gateway, logger), cfg.PaymentResultURL, logger),
		Carts:    controllers.NewCartController(services.NewCartService(cache.NewRedisCartStore(rdb), stores.Catalog), logger),
	}, routes.Options{
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("failed to setup routes", zap.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("shop service starting", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.StorageDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if rmq != nil {
		// 启动消息消费者
		consumer := consumers.NewOrderConsumer(orderSvc, cfg, logger)
		g.Go(func() error {
			return consumer.Start(gctx, rmq.Channel)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("shop service stopped with error", zap.Error(err))
		return
	}
	logger.Info("shop service stopped")
}
