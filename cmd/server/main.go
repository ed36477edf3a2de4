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

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mesaflow/api/internal/config"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/notify"
	"github.com/mesaflow/api/internal/router"
	"github.com/mesaflow/api/internal/ws"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	if err := runMigrations(cfg.DatabaseURL); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	queries := database.New(pool)

	var sink notify.Sink = notify.LogSink{}
	if cfg.RabbitMQURL != "" {
		amqpSink, err := notify.NewAMQPSink(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("ERROR: connecting to rabbitmq, falling back to log notifications: %v", err)
		} else {
			defer amqpSink.Close()
			sink = amqpSink
		}
	}

	hub := ws.NewHub()
	go hub.Run()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(cfg, queries, pool, sink, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Println("Server stopped")
}

func runMigrations(databaseURL string) error {
	m, err := migrate.New("file://migrations", databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
