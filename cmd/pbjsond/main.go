package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datahopper/pbjson/internal/httpapi"
	"github.com/datahopper/pbjson/internal/obs"
	"github.com/datahopper/pbjson/internal/protoload"
	"github.com/datahopper/pbjson/internal/store"
)

func main() {
	logger := obs.NewLogger()
	logger.Info().Msg("Starting pbjson transcoding server...")

	// Initialize DB pool if DSN provided
	dsn := os.Getenv("DB_DSN")
	var pool *pgxpool.Pool
	if dsn != "" {
		ctx := context.Background()
		var err error
		pool, err = pgxpool.New(ctx, dsn)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create pgx pool")
		}
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ping database")
		}
		logger.Info().Msg("Connected to PostgreSQL")
	} else {
		logger.Warn().Msg("DB_DSN not set; running without schema persistence")
	}

	var repo *protoload.Repository
	if pool != nil {
		repo = protoload.NewRepository(pool)
	}

	st := store.NewInMemoryStore()
	api := httpapi.NewAPI(st, repo, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router)

	addr := os.Getenv("PBJSON_ADDR")
	if addr == "" {
		addr = ":8088"
	}
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Starting HTTP server...")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if pool != nil {
		pool.Close()
	}
	logger.Info().Msg("Server exited")
}
