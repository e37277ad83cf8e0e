package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	glog "github.com/labstack/gommon/log"

	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/database"
	"github.com/iliyamo/clinic-appointments/internal/handler"
	"github.com/iliyamo/clinic-appointments/internal/queue"
	"github.com/iliyamo/clinic-appointments/internal/repository"
	"github.com/iliyamo/clinic-appointments/internal/router"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DSN(), cfg.DBPool)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable: rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}

	// Events are best effort; the API runs without a broker.
	var events service.EventPublisher
	if cfg.EventsEnabled {
		pub, err := queue.NewPublisher(cfg.AMQPURL, queue.Exchange)
		if err != nil {
			log.Printf("events disabled: %v", err)
		} else {
			defer pub.Close()
			events = pub
		}
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	doctors := repository.NewDoctorRepo(db)
	appointments := repository.NewAppointmentRepo(db)

	sessions := service.NewSessionManager(tokens, users, service.SessionConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	accounts := service.NewAccountService(users, sessions, cfg.BcryptCost)
	doctorSvc := service.NewDoctorService(doctors, users)
	ledger := service.NewBookingLedger(appointments, doctors, events, service.BookingRules{
		MaxDuration: cfg.MaxAppointment,
		Slots:       cfg.Slots,
	})
	stats := service.NewStatsService(repository.StatsRepo{Users: users, Doctors: doctors, Appointments: appointments})

	e := echo.New()
	e.HideBanner = true
	if cfg.Env == "prod" {
		e.Logger.SetLevel(glog.INFO)
	} else {
		e.Logger.SetLevel(glog.DEBUG)
	}
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				c.Logger().Errorf("%s %s %d %s: %v", v.Method, v.URI, v.Status, v.Latency, v.Error)
				return nil
			}
			c.Logger().Infof("%s %s %d %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	router.Register(e, router.Deps{
		Verifier:     sessions,
		DB:           db,
		Redis:        rdb,
		RateLimit:    config.LoadRateLimitConfig(),
		Cache:        config.LoadCacheConfig(),
		Auth:         handler.NewAuthHandler(accounts, sessions),
		Users:        handler.NewUserHandler(accounts),
		Doctors:      handler.NewDoctorHandler(doctorSvc, ledger),
		Appointments: handler.NewAppointmentHandler(ledger),
		Admin:        handler.NewAdminHandler(stats),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
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
