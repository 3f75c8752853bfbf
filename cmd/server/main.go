package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/transport-reservation/internal/config"
	"github.com/iliyamo/transport-reservation/internal/database"
	"github.com/iliyamo/transport-reservation/internal/handler"
	"github.com/iliyamo/transport-reservation/internal/middleware"
	"github.com/iliyamo/transport-reservation/internal/queue"
	"github.com/iliyamo/transport-reservation/internal/repository"
	"github.com/iliyamo/transport-reservation/internal/reservation"
	"github.com/iliyamo/transport-reservation/internal/router"
	"github.com/iliyamo/transport-reservation/internal/service"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if cfg.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("database: %v", err)
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting, response cache and sweep lease disabled")
	} else {
		defer rdb.Close()
	}

	events, err := service.NewPublisher(cfg.Events)
	if err != nil {
		log.Fatalf("events: %v", err)
	}
	defer events.Close()

	catalog := repository.NewCatalogRepo(db)
	ledger := repository.NewLedgerRepo(db)
	opts := reservation.Options{HoldTTL: cfg.Reservation.HoldTTL, Events: events}
	allocator := reservation.NewAllocator(catalog, ledger, opts)
	manager := reservation.NewManager(ledger, opts)
	manager.SetSweepBatch(cfg.Reservation.SweepBatch)
	inventory := reservation.NewInventory(catalog, ledger, nil)

	var locker reservation.Locker
	if rdb != nil {
		locker = reservation.NewRedisLocker(rdb)
	}
	sweeper := reservation.NewSweeper(manager, cfg.Reservation.SweepInterval, locker, cfg.Reservation.SweepLockTTL)
	go sweeper.Run(ctx)

	if cfg.Events.Consume {
		if cfg.Events.Broker != config.BrokerRabbitMQ {
			log.Printf("events: audit consumer needs EVENT_BROKER=rabbitmq, not starting")
		} else {
			go func() {
				if err := queue.StartReservationConsumer(ctx, cfg.Events.RabbitURL, cfg.Events.AuditDir); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("events: consumer stopped: %v", err)
				}
			}()
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, db)
	router.RegisterReservations(e, handler.NewReservationHandler(allocator, manager), cfg.JWTSecret, middleware.RateLimit(cfg.RateLimit, rdb))
	router.RegisterCatalog(e, handler.NewCatalogHandler(inventory), middleware.ResponseCache(cfg.Cache, rdb))
	router.RegisterStaff(e, handler.NewStaffHandler(catalog, manager, sweeper), cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
