package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/logging"
	"faceattend/internal/server"
	"faceattend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		boot.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Dir:        cfg.LogDir,
		Production: cfg.IsProduction(),
	})
	if err != nil {
		logger, _ = logging.New(logging.Options{Level: cfg.LogLevel, Production: cfg.IsProduction()})
		logger.Error().Err(err).Msg("file logging disabled")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}

func run(cfg config.App, logger zerolog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := store.NewConnector(logger, store.Options{
		URI:              cfg.DatabaseURI,
		Database:         cfg.DatabaseName,
		Timeout:          cfg.ConnectTimeout,
		OneCheckInPerDay: cfg.OneCheckInPerDay,
	})
	db.Start(ctx)

	redisClient := store.NewRedis(cfg.RedisAddr)

	var limiter httpmiddleware.Limiter
	switch {
	case cfg.RateLimitPerMin <= 0:
	case redisClient != nil:
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	default:
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	svc := attendance.NewService(db, attendance.Options{
		OneCheckInPerDay: cfg.OneCheckInPerDay,
		Location:         loc,
	})

	r := server.NewRouter(server.Deps{
		Config:  cfg,
		Logger:  logger,
		Service: svc,
		Store:   db,
		Redis:   redisClient,
		Limiter: limiter,
	})

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("0.0.0.0", cfg.Port))
	if err != nil {
		return err
	}

	_, _ = server.Banner{
		Port:    cfg.Port,
		Env:     cfg.Env,
		Engine:  store.Engine(cfg.DatabaseURI),
		DBLocal: cfg.DatabaseIsLocal(),
	}.WriteTo(os.Stdout)
	logger.Info().Str("addr", ln.Addr().String()).Str("env", cfg.Env).Msg("server listening")

	errc := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced shutdown")
	}
	if err := db.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("database close")
	}
	if err := redisClient.Close(); err != nil {
		logger.Warn().Err(err).Msg("redis close")
	}
	logger.Info().Msg("server exited")
	return nil
}
