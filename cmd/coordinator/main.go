// Command coordinator runs the threshold-signing coordinator's REST API,
// wiring together the session table, scheme engine, policy gate, chain
// adapter and storage layer described in SPEC_FULL.md. Grounded on the
// teacher's cmd/signer/main.go: same zap setup, same signal-driven
// graceful shutdown, adapted from a gRPC server to an http.Server pair
// (API + metrics).
package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/guardianwallet/signer/internal/chain"
	"github.com/guardianwallet/signer/internal/config"
	"github.com/guardianwallet/signer/internal/coordinator"
	"github.com/guardianwallet/signer/internal/httpapi"
	"github.com/guardianwallet/signer/internal/metrics"
	"github.com/guardianwallet/signer/internal/policy"
	"github.com/guardianwallet/signer/internal/scheme"
	"github.com/guardianwallet/signer/internal/session"
	"github.com/guardianwallet/signer/internal/storage"
)

func main() {
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides SIGNER_LOG_LEVEL")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting signer coordinator",
		zap.String("env", cfg.Env),
		zap.String("http_listen", cfg.HTTPListen),
		zap.String("metrics_listen", cfg.MetricsAddr),
	)

	shares, err := buildShareStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize share store", zap.Error(err))
	}

	db, err := sql.Open("postgres", cfg.DB.DSN())
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}

	signers, err := storage.NewPostgresSignerRepo(ctx, db)
	if err != nil {
		logger.Fatal("failed to initialize signer repo", zap.Error(err))
	}
	audit, err := storage.NewPostgresAuditRepo(ctx, db)
	if err != nil {
		logger.Fatal("failed to initialize audit repo", zap.Error(err))
	}

	policyEngine, err := buildPolicyEngine(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize policy engine", zap.Error(err))
	}
	gate := policy.NewGate(audit, policyEngine)

	chainAdapter, err := chain.NewEthClientAdapter(cfg.Chain.RPCURL)
	if err != nil {
		logger.Fatal("failed to dial chain RPC", zap.Error(err))
	}

	engine := scheme.NewTSSEngine(logger)

	sessions := session.New(
		session.WithMaxSize(cfg.Session.MaxConcurrent),
		session.WithTTL(time.Duration(cfg.Session.TTLSeconds)*time.Second),
		session.WithSweepInterval(time.Duration(cfg.Session.SweepSeconds)*time.Second),
		session.WithActiveGauge(metrics.SessionsActive),
	)
	defer sessions.Shutdown()

	coord := coordinator.New(logger, signers, shares, audit, gate, chainAdapter, engine, sessions)

	apiServer := httpapi.NewServer(cfg.HTTPListen, logger, coord)
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsHandler()}

	go func() {
		logger.Info("http api listening", zap.String("addr", cfg.HTTPListen))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http api server failed", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http api shutdown error", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func buildShareStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.ShareStore, error) {
	password, err := resolveSharePassword(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	switch cfg.Shares.Backend {
	case "postgres":
		logger.Info("using postgres share store")
		return storage.NewPostgresShareStore(ctx, cfg.Shares.DatabaseURL, password)
	default:
		logger.Info("using file share store", zap.String("dir", cfg.Shares.FileDir))
		return storage.NewFileShareStore(cfg.Shares.FileDir, password)
	}
}

func resolveSharePassword(ctx context.Context, cfg *config.Config, logger *zap.Logger) (string, error) {
	if cfg.KMS.CiphertextBlobHex == "" {
		logger.Warn("no KMS ciphertext configured, using static share-store password")
		return string(storage.StaticPassword(cfg.Shares.StaticPassword)), nil
	}

	blob, err := hex.DecodeString(cfg.KMS.CiphertextBlobHex)
	if err != nil {
		return "", fmt.Errorf("invalid kms ciphertext hex: %w", err)
	}
	provider, err := storage.NewKMSPasswordProvider(ctx, cfg.KMS.Region, cfg.KMS.LocalEndpoint, blob)
	if err != nil {
		return "", err
	}
	return provider.Password(ctx)
}

func buildPolicyEngine(cfg *config.Config, logger *zap.Logger) (policy.Engine, error) {
	if cfg.Policy.RulesFile != "" {
		logger.Info("loading policy rules file", zap.String("path", cfg.Policy.RulesFile))
		rules, err := policy.LoadRulesFile(cfg.Policy.RulesFile)
		if err != nil {
			return nil, err
		}
		return policy.NewStaticRulesEngine(rules), nil
	}

	maxValue, ok := new(big.Int).SetString(cfg.Policy.LegacyMaxValueWei, 10)
	if !ok {
		logger.Warn("no policy rules configured, defaulting legacy max value to 0 (deny all spends)")
		maxValue = big.NewInt(0)
	}
	return policy.NewLegacyPolicyEngine(maxValue), nil
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
