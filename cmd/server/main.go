package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"pulse/internal/config"
	"pulse/internal/db"
	"pulse/internal/router"
	"pulse/internal/services"
	"pulse/internal/triggers"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Error in Loading Config: ", err.Error())
	}
	cfg.SetupLogging(os.Stdout)

	// Initialize Database
	handle, err := db.Open(ctx, cfg)
	if err != nil {
		log.Fatal("Error in Opening Store: ", err.Error())
	}
	defer handle.Close()

	svc := services.New(handle.Store, services.Options{
		BatchSize:        cfg.MaxBatchWrites,
		FeedBackfillSize: cfg.FeedBackfillSize,
		InactiveAfter:    cfg.InactiveAfter,
		Ranking:          cfg.Ranking,
		Sender:           newSender(ctx, cfg),
	})

	dedupe, err := newDeduper(cfg)
	if err != nil {
		log.Fatal("Error in Creating Event Dedupe: ", err.Error())
	}
	dispatcher := triggers.NewDispatcher(dedupe)
	triggers.Register(dispatcher, svc)
	if handle.Memory != nil {
		triggers.Attach(handle.Memory, dispatcher)
	}

	if cfg.AMQPURL != "" {
		consumer := triggers.NewAMQPConsumer(cfg.AMQPURL, cfg.AMQPQueue, dispatcher)
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("event consumer stopped", "err", err)
				stop()
			}
		}()
	}

	// Daily score rescan followed by the inactivity sweep
	svc.Ranking.StartScheduledMaintenance(ctx, cfg.ScheduleHour, svc.Inactivity)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	router.RegisterRoutes(r, svc, dispatcher, cfg.AdminJWTSecret)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		slog.Info("pulse server starting", "port", cfg.Port, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error in closing http server gracefully", "err", err)
	}
	// Make sure running handlers finish before the store closes
	dispatcher.Wait()
	slog.Info("pulse server stopped")
}

func newSender(ctx context.Context, cfg *config.Config) services.Sender {
	if !cfg.FCMEnabled {
		return services.LogSender{}
	}
	sender, err := services.NewFCMSender(ctx, cfg.ProjectID)
	if err != nil {
		slog.Error("push messaging unavailable, logging notifications instead", "err", err)
		return services.LogSender{}
	}
	return sender
}

func newDeduper(cfg *config.Config) (triggers.Deduper, error) {
	if cfg.RedisAddr != "" {
		return triggers.NewRedisDeduper(triggers.RedisClient(cfg.RedisAddr, cfg.RedisPassword), cfg.EventDedupeTTL), nil
	}
	return triggers.NewLRUDeduper(10000, cfg.EventDedupeTTL)
}
