package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/openticket/boxoffice/internal/cache"
	"github.com/openticket/boxoffice/internal/config"
	"github.com/openticket/boxoffice/internal/database"
	"github.com/openticket/boxoffice/internal/queue"
	"github.com/openticket/boxoffice/internal/repository"
	"github.com/openticket/boxoffice/internal/router"
	"github.com/openticket/boxoffice/internal/service"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Env == "dev" {
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable; availability hints disabled")
	}
	hints := cache.NewAvailability(rdb, cfg.HintTTL)

	var publisher *queue.Publisher
	if cfg.RabbitURL != "" {
		publisher = queue.NewPublisher(cfg.RabbitURL, log)
	} else {
		log.Warn("RABBITMQ_URL not set; queue integration disabled")
	}

	// The checkout services themselves are consumed as a library by
	// the storefront; this binary runs the background sweeper and the
	// ops endpoints.
	store := repository.NewMySQLStore(db)
	sweeper := service.NewSweeper(store, hints, publisher, cfg.SweepInterval, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweeper.Run(ctx)
	if cfg.RabbitURL != "" {
		go queue.StartSweepConsumer(ctx, cfg.RabbitURL, sweeper.Sweep, log)
	}

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, db)

	go func() {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("ops server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("ops server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("ops server shutdown failed")
	}
}
