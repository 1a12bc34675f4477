package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/handler"
	"marketplace/internal/infra/db"
	"marketplace/internal/infra/events"
	"marketplace/internal/infra/lock"
	"marketplace/internal/infra/logger"
	infraRepo "marketplace/internal/infra/repository"
	"marketplace/internal/scheduler"
	"marketplace/internal/server"
	"marketplace/internal/usecase"
	"marketplace/internal/validator"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func main() {
	//.envは無くてもよい（本番は環境変数）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Prod: cfg.IsProd()})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := scheduler.ValidSpec(cfg.SweepSchedule); err != nil {
		log.Fatal("invalid SWEEP_SCHEDULE", zap.String("spec", cfg.SweepSchedule), zap.Error(err))
	}

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	if err := db.Migrate(gormDB); err != nil {
		log.Fatal("db migrate failed", zap.Error(err))
	}

	txm := infraRepo.NewTxManagerGorm(gormDB)
	clock := &realClock{}

	//掃除の排他（複数インスタンスならRedis）
	var locker usecase.Locker = lock.NewLocalLocker()
	if cfg.RedisAddr != "" {
		rdb := lock.NewRedisClient(cfg.RedisAddr)
		defer func() { _ = rdb.Close() }()
		locker = lock.NewRedisLocker(rdb)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	//注文イベント
	var publisher usecase.EventPublisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, 1024, log)
		publisher = kp
		g.Go(func() error { return kp.Run(gctx) })
	}

	//Usecase生成
	ledger := usecase.NewCapacityLedger(clock, cfg.Location())
	sweeper := usecase.NewSweeperUsecase(txm, ledger, locker, clock, usecase.SweeperConfig{
		AbandonAfter: cfg.DraftAbandonAfter,
		Retention:    usecase.DraftRetention(cfg.DraftRetention),
	}, log)

	cartUC := usecase.NewCartUsecase(txm, ledger, clock)
	orderUC := usecase.NewOrderUsecase(usecase.OrderUsecaseDeps{
		Tx:             txm,
		Ledger:         ledger,
		Sweeper:        sweeper,
		Validator:      validator.NewCheckoutValidator(),
		Events:         publisher,
		Clock:          clock,
		InvoiceDueDays: cfg.InvoiceDueDays,
		Log:            log,
	})
	slotUC := usecase.NewDeliverySlotUsecase(txm, ledger, sweeper, publisher, clock, log)
	adminUC := usecase.NewAdminOrderUsecase(txm, clock)
	revenueUC := usecase.NewProducerRevenueUsecase(txm, clock)

	//Handler生成
	e := server.New(server.Handlers{
		Orders:        handler.NewOrderHandler(orderUC, cartUC),
		Bookings:      handler.NewBookingHandler(cartUC, slotUC),
		DeliverySlots: handler.NewDeliverySlotHandler(slotUC),
		AdminOrders:   handler.NewAdminOrderHandler(adminUC),
		Producer:      handler.NewProducerHandler(revenueUC),
	}, cfg.JWTSecret, log)

	//定期の回収
	sched := scheduler.New(cfg.Location(), log)
	if err := sched.Add(gctx, cfg.SweepSchedule, "sweep_drafts", func(ctx context.Context) error {
		res, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		if res.OrdersSwept > 0 || res.BookingsReleased > 0 {
			log.Info("drafts swept",
				zap.Int("orders", res.OrdersSwept),
				zap.Int("bookings", res.BookingsReleased),
				zap.Int64("quantity", res.QuantityReleased),
				zap.Int("deleted", res.OrdersDeleted),
			)
		}
		return nil
	}); err != nil {
		log.Fatal("schedule sweep failed", zap.Error(err))
	}

	//Server起動
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return server.Start(gctx, e, cfg.Addr(), log) })

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("bye")
}
