package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"notegeek/internal/app"
	"notegeek/internal/config"
	"notegeek/internal/export"
	"notegeek/internal/logging"
	"notegeek/internal/search"
	"notegeek/internal/session"
	"notegeek/internal/store"
)

func main() {
	cfg, err := config.Load()
	logger := logging.New(os.Stdout, cfg.Env, cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration invalid")
	}
	ctx := context.Background()

	dataStore, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer dataStore.Close()

	if cfg.MigrateLegacyFolders {
		migrated, err := dataStore.MigrateLegacyFolders(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("legacy folder migration failed")
		}
		if migrated > 0 {
			logger.Info().Int64("notes", migrated).Msg("legacy folders converted to tags")
		}
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, fallbackSearcher(dataStore, logger), dataStore, logger)
	if meiliClient != nil && meiliClient.Healthy() {
		searchService.ReindexInBackground()
	}

	var uploader export.Uploader
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioUploader, err := export.NewMinioUploader(ctx, export.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("object storage setup failed")
		}
		uploader = minioUploader
		logger.Info().Str("bucket", cfg.MinioBucket).Msg("backups enabled")
	}
	exportService := export.NewService(dataStore, uploader)

	var revoker app.Revoker
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		revoker = redisStore
		logger.Info().Msg("using redis for token revocation")
	} else {
		logger.Warn().Msg("REDIS_URL not set; logout will not revoke tokens")
	}

	service := app.New(cfg, dataStore, searchService, exportService, revoker, logger)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("env", cfg.Env).Msg("NoteGeek API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

// fallbackSearcher picks the database's own text search for the backend in use.
func fallbackSearcher(dataStore store.Store, logger zerolog.Logger) search.Searcher {
	switch s := dataStore.(type) {
	case *store.MongoStore:
		return search.NewMongoText(s.Notes())
	case *store.PostgresStore:
		return search.NewPgFTS(s.DB())
	case *store.MemoryStore:
		return search.NewStoreText(s)
	default:
		logger.Warn().Msg("no text search for this store; search needs meilisearch")
		return nil
	}
}
