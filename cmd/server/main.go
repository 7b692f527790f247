// Command server starts the ContactDesk API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"contactdesk/internal/api"
	"contactdesk/internal/auth"
	"contactdesk/internal/mail"
	"contactdesk/internal/media"
	"contactdesk/internal/observability/logging"
	"contactdesk/internal/server"
	"contactdesk/internal/storage"

	"golang.org/x/sync/errgroup"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	baseURL := flag.String("base-url", "", "public base URL used in confirmation links")
	storageDriver := flag.String("storage-driver", "", "datastore driver (memory or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	jwtSecret := flag.String("jwt-secret", "", "HMAC secret used to sign tokens")
	accessTTL := flag.Duration("access-token-ttl", 0, "lifetime of issued access tokens")
	refreshTTL := flag.Duration("refresh-token-ttl", 0, "lifetime of issued refresh tokens")
	emailTTL := flag.Duration("email-token-ttl", 0, "lifetime of email confirmation tokens")
	bcryptCost := flag.Int("bcrypt-cost", 0, "bcrypt work factor for password hashing")
	smtpHost := flag.String("smtp-host", "", "SMTP relay host for confirmation mail")
	smtpPort := flag.Int("smtp-port", 0, "SMTP relay port")
	smtpUsername := flag.String("smtp-username", "", "SMTP relay username")
	smtpPassword := flag.String("smtp-password", "", "SMTP relay password")
	smtpFrom := flag.String("smtp-from", "", "sender address for outbound mail")
	smtpDisplayName := flag.String("smtp-display-name", "", "sender display name for outbound mail")
	s3Region := flag.String("s3-region", "", "object storage region for avatars")
	s3Bucket := flag.String("s3-bucket", "", "object storage bucket for avatars")
	s3AccessKey := flag.String("s3-access-key", "", "object storage access key")
	s3SecretKey := flag.String("s3-secret-key", "", "object storage secret key")
	s3Endpoint := flag.String("s3-endpoint", "", "object storage endpoint for S3-compatible stores")
	s3PublicURL := flag.String("s3-public-url", "", "public base URL for uploaded avatars")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	contactsLimit := flag.Int("rate-contacts-limit", server.DefaultContactsLimit, "maximum contact requests per window for a single account")
	contactsWindow := flag.Duration("rate-contacts-window", server.DefaultContactsWindow, "window for counting contact requests")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed rate limiting")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed rate limiting")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	purgeInterval := flag.Duration("purge-interval", time.Hour, "interval between unconfirmed account sweeps (0 disables)")
	purgeAge := flag.Duration("purge-age", 7*24*time.Hour, "age before an unconfirmed account is purged")
	flag.Parse()

	logger := logging.Init(logging.Config{Level: firstNonEmpty(*logLevel, os.Getenv("CONTACTDESK_LOG_LEVEL"))})
	auditLogger := logging.WithComponent(logger, "audit")

	serverMode := modeValue(*mode, os.Getenv("CONTACTDESK_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("CONTACTDESK_ADDR"))

	secret := firstNonEmpty(*jwtSecret, os.Getenv("CONTACTDESK_JWT_SECRET"))
	if secret == "" {
		logger.Error("jwt secret is required: set --jwt-secret or CONTACTDESK_JWT_SECRET")
		os.Exit(1)
	}
	var tokenOptions []auth.TokenOption
	if ttl := resolveDuration(*accessTTL, "CONTACTDESK_ACCESS_TOKEN_TTL", 0); ttl > 0 {
		tokenOptions = append(tokenOptions, auth.WithAccessTTL(ttl))
	}
	if ttl := resolveDuration(*refreshTTL, "CONTACTDESK_REFRESH_TOKEN_TTL", 0); ttl > 0 {
		tokenOptions = append(tokenOptions, auth.WithRefreshTTL(ttl))
	}
	if ttl := resolveDuration(*emailTTL, "CONTACTDESK_EMAIL_TOKEN_TTL", 0); ttl > 0 {
		tokenOptions = append(tokenOptions, auth.WithEmailTTL(ttl))
	}
	tokens, err := auth.NewTokenManager(secret, tokenOptions...)
	if err != nil {
		logger.Error("failed to configure token manager", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var storageOptions []storage.Option
	if cost := resolveInt(*bcryptCost, "CONTACTDESK_BCRYPT_COST"); cost > 0 {
		storageOptions = append(storageOptions, storage.WithBcryptCost(cost))
	}

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("CONTACTDESK_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionDatastore(driver, postgresDefaultDSN); err != nil {
			logger.Error("production datastore validation failed", "error", err)
			os.Exit(1)
		}
	}

	var store storage.Repository
	switch driver {
	case "memory":
		store = storage.NewMemoryRepository(storageOptions...)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		pgOptions := append([]storage.Option(nil), storageOptions...)
		maxConns := resolveInt(*postgresMaxConns, "CONTACTDESK_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "CONTACTDESK_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "CONTACTDESK_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "CONTACTDESK_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "CONTACTDESK_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "CONTACTDESK_POSTGRES_ACQUIRE_TIMEOUT", 0); acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("CONTACTDESK_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(ctx, postgresDefaultDSN, pgOptions...)
		if err != nil {
			logger.Error("failed to open datastore", "error", err)
			os.Exit(1)
		}
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}

	sender, smtpEnabled, err := configureMailSender(mail.SMTPConfig{
		Host:        firstNonEmpty(*smtpHost, os.Getenv("CONTACTDESK_SMTP_HOST")),
		Port:        resolveInt(*smtpPort, "CONTACTDESK_SMTP_PORT"),
		Username:    firstNonEmpty(*smtpUsername, os.Getenv("CONTACTDESK_SMTP_USERNAME")),
		Password:    firstNonEmpty(*smtpPassword, os.Getenv("CONTACTDESK_SMTP_PASSWORD")),
		From:        firstNonEmpty(*smtpFrom, os.Getenv("CONTACTDESK_SMTP_FROM")),
		DisplayName: firstNonEmpty(*smtpDisplayName, os.Getenv("CONTACTDESK_SMTP_DISPLAY_NAME")),
	})
	if err != nil {
		logger.Error("failed to configure mail sender", "error", err)
		os.Exit(1)
	}
	if !smtpEnabled {
		logger.Warn("no SMTP relay configured, confirmation mail disabled")
	}

	avatars, avatarsEnabled, err := configureMediaStore(ctx, media.S3Config{
		Region:    firstNonEmpty(*s3Region, os.Getenv("CONTACTDESK_S3_REGION")),
		Bucket:    firstNonEmpty(*s3Bucket, os.Getenv("CONTACTDESK_S3_BUCKET")),
		AccessKey: firstNonEmpty(*s3AccessKey, os.Getenv("CONTACTDESK_S3_ACCESS_KEY")),
		SecretKey: firstNonEmpty(*s3SecretKey, os.Getenv("CONTACTDESK_S3_SECRET_KEY")),
		Endpoint:  firstNonEmpty(*s3Endpoint, os.Getenv("CONTACTDESK_S3_ENDPOINT")),
		PublicURL: firstNonEmpty(*s3PublicURL, os.Getenv("CONTACTDESK_S3_PUBLIC_URL")),
	})
	if err != nil {
		logger.Error("failed to configure avatar store", "error", err)
		os.Exit(1)
	}
	if !avatarsEnabled {
		logger.Warn("no object storage configured, avatar uploads disabled")
	}

	handler := api.NewHandler(store, tokens)
	handler.Mail = sender
	handler.Media = avatars
	handler.Logger = logger
	handler.BaseURL = resolveBaseURL(*baseURL, os.Getenv("CONTACTDESK_BASE_URL"), listenAddr)

	rateCfg := server.RateLimitConfig{
		GlobalRPS:      resolveFloat(*globalRPS, "CONTACTDESK_RATE_GLOBAL_RPS"),
		GlobalBurst:    resolveInt(*globalBurst, "CONTACTDESK_RATE_GLOBAL_BURST"),
		LoginLimit:     resolveInt(*loginLimit, "CONTACTDESK_RATE_LOGIN_LIMIT"),
		LoginWindow:    resolveDuration(*loginWindow, "CONTACTDESK_RATE_LOGIN_WINDOW", time.Minute),
		ContactsLimit:  *contactsLimit,
		ContactsWindow: *contactsWindow,
		RedisAddr:      firstNonEmpty(*redisAddr, os.Getenv("CONTACTDESK_RATE_REDIS_ADDR")),
		RedisPassword:  firstNonEmpty(*redisPassword, os.Getenv("CONTACTDESK_RATE_REDIS_PASSWORD")),
		RedisTimeout:   resolveDuration(*redisTimeout, "CONTACTDESK_RATE_REDIS_TIMEOUT", 2*time.Second),
	}

	srv, err := server.New(handler, server.Config{
		Addr:      listenAddr,
		TLS:       server.TLSConfig{CertFile: firstNonEmpty(*tlsCert, os.Getenv("CONTACTDESK_TLS_CERT")), KeyFile: firstNonEmpty(*tlsKey, os.Getenv("CONTACTDESK_TLS_KEY"))},
		RateLimit: rateCfg,
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("CONTACTDESK_CORS_ORIGINS"))),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("ContactDesk API listening", "addr", listenAddr, "mode", serverMode)
		if err := srv.Run(groupCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		interval := resolveDuration(*purgeInterval, "CONTACTDESK_PURGE_INTERVAL", 0)
		age := resolveDuration(*purgeAge, "CONTACTDESK_PURGE_AGE", 0)
		runPurgeWorker(groupCtx, logging.WithComponent(logger, "account-purger"), store, interval, age)
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Close(shutdownCtx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}

	logger.Info("server stopped")
}

func configureMailSender(cfg mail.SMTPConfig) (mail.Sender, bool, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return mail.NoopSender{}, false, nil
	}
	sender, err := mail.NewSMTPSender(cfg)
	if err != nil {
		return nil, false, err
	}
	return sender, true, nil
}

func configureMediaStore(ctx context.Context, cfg media.S3Config) (media.Store, bool, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return media.NoopStore{}, false, nil
	}
	store, err := media.NewS3Store(ctx, cfg)
	if err != nil {
		return nil, false, err
	}
	return store, true, nil
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveBaseURL(flagValue, envValue, listenAddr string) string {
	if base := firstNonEmpty(flagValue, envValue); base != "" {
		return strings.TrimRight(base, "/")
	}
	host := listenAddr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "memory", nil
}

func validateProductionDatastore(driver, resolvedPostgresDSN string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(resolvedPostgresDSN) == "" {
		return fmt.Errorf("postgres storage selected without DSN")
	}
	return nil
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("CONTACTDESK_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}
