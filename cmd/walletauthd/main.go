package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/superpool/walletauth/adapters/chain"
	"github.com/superpool/walletauth/adapters/events"
	"github.com/superpool/walletauth/adapters/store"
	"github.com/superpool/walletauth/adapters/tokenizer"
	"github.com/superpool/walletauth/internal/config"
	"github.com/superpool/walletauth/internal/eth"
	"github.com/superpool/walletauth/service"
	transport "github.com/superpool/walletauth/transport/http"
)

func main() {
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	signKey, err := loadSigningKey(cfg.SigningKeyHex)
	if err != nil {
		logger.Fatal("failed to load signing key", zap.Error(err))
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to parse redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: redisClient},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		logger.Fatal("failed to create event publisher", zap.Error(err))
	}

	chains, err := chain.NewRegistry(cfg.ChainRPCURLs)
	if err != nil {
		logger.Fatal("failed to initialize chain providers", zap.Error(err))
	}

	redisStore := store.NewRedisStore(redisClient)
	tok := tokenizer.NewJWTTokenizer(signKey)
	eventPub := events.NewWatermillPublisher(publisher)
	verifier := eth.NewVerifier(chains, logger)

	authService := service.NewAuthService(service.Deps{
		Nonces:      redisStore,
		Users:       redisStore,
		Devices:     redisStore,
		Invalidated: redisStore,
		Tokenizer:   tok,
		Verifier:    verifier,
		EventPub:    eventPub,
		Logger:      logger,
	})
	appCheckService := service.NewAppCheckService(redisStore, tok, logger)

	router := transport.SetupRouter(authService, appCheckService)

	logger.Info("starting server",
		zap.String("environment", cfg.Environment),
		zap.String("addr", cfg.ListenAddr),
	)

	if err := router.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}

func initLogger() (*zap.Logger, error) {
	if os.Getenv("ENVIRONMENT") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// loadSigningKey decodes the configured token signing key, or generates
// an ephemeral one for development when none is configured.
func loadSigningKey(keyHex string) (*ecdsa.PrivateKey, error) {
	if keyHex == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("signing key is not valid hex: %w", err)
	}
	key, err := x509.ParseECPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return key, nil
}
