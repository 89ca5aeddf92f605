package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"quill/api/internal/accesslog"
	"quill/api/internal/app"
	"quill/api/internal/auth"
	"quill/api/internal/config"
	"quill/api/internal/email"
	"quill/api/internal/ratelimit"
	"quill/api/internal/store"
	"quill/api/internal/store/memdb"
)

func main() {
	configPath := flag.String("config", os.Getenv("QUILL_CONFIG"), "path to a TOML config file")
	devMode := flag.Bool("dev", false, "use the in-memory store instead of Postgres")
	logLevel := flag.String("log", "", "log level override (debug, info, warn, error)")
	hashKey := flag.String("hash-key", "", "print the bcrypt hash of the given admin key and exit")
	flag.Parse()

	if *hashKey != "" {
		hash, err := auth.HashKey(*hashKey)
		if err != nil {
			log.Fatalf("[server] failed to hash key: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("[server] failed to load config: %v", err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.ConfigureLogging(); err != nil {
		log.Fatalf("[server] invalid logging config: %v", err)
	}

	ctx := context.Background()

	var (
		dataStore app.DataStore
		db        *sql.DB
	)
	if *devMode {
		log.Warn("[server] -dev: using the in-memory store, data is lost on exit")
		dataStore = memdb.New()
	} else {
		db, err = store.Open(ctx, cfg.DatabaseURL, store.DefaultPool)
		if err != nil {
			log.Fatalf("[server] database connection failed: %v", err)
		}
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatalf("[server] migrations failed: %v", err)
		}
		dataStore = store.NewPostgresStore(db)
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	})
	if !mailer.IsConfigured() {
		log.Info("[server] SMTP not configured, subscription confirmations are disabled")
	}

	opts := app.HTTPOptions{
		CORSOrigins: cfg.CORSOrigins,
		ServiceName: cfg.ServiceName,
		AdminKeys:   auth.NewKeyChecker(cfg.AdminAPIKey, cfg.AdminAPIKeyHash),
	}
	if !opts.AdminKeys.Configured() {
		log.Warn("[server] no admin API key configured, internal routes will answer 503")
	}

	var limiter *ratelimit.RedisLimiter
	if cfg.RedisURL != "" && cfg.RateLimitPerMinute > 0 {
		limiter, err = ratelimit.NewRedisLimiter(cfg.RedisURL, cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			log.Warnf("[server] rate limiting disabled: %v", err)
		} else {
			log.Infof("[server] rate limiting public writes to %d per minute", cfg.RateLimitPerMinute)
			opts.Limiter = limiter
		}
	}

	var sink *accesslog.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		sink = accesslog.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaLogTopic)
		opts.AccessLog = sink
		log.Infof("[server] shipping access logs to topic %s", cfg.KafkaLogTopic)
	}

	service := app.New(dataStore, mailer)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infof("[server] %s listening on %s", cfg.ServiceName, cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[server] failed to start: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("[server] HTTP server shutdown error: %v", err)
	} else {
		log.Info("[server] HTTP server shut down gracefully")
	}

	service.Wait()
	if sink != nil {
		if err := sink.Close(); err != nil {
			log.Warnf("[server] access log writer close: %v", err)
		}
	}
	if limiter != nil {
		_ = limiter.Close()
	}
	if db != nil {
		_ = db.Close()
		log.Info("[server] disconnected from DB")
	}
}
