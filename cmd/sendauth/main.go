package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	nethttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/0xsend/sendauth/adapters/events"
	"github.com/0xsend/sendauth/adapters/execution"
	"github.com/0xsend/sendauth/adapters/store"
	"github.com/0xsend/sendauth/adapters/tokenizer"
	"github.com/0xsend/sendauth/adapters/verifier"
	"github.com/0xsend/sendauth/config"
	"github.com/0xsend/sendauth/internal/retry"
	"github.com/0xsend/sendauth/service"
	"github.com/0xsend/sendauth/transport/http"
	"github.com/0xsend/sendauth/userop"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	signKey, err := loadSigningKey(cfg.SigningKeyHex)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: redisClient},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer publisher.Close()

	accounts := store.NewRedisAccountStore(redisClient)
	credentials := store.NewRedisCredentialStore(redisClient)
	challenges := store.NewRedisChallengeStore(redisClient)
	sessionTokenizer := tokenizer.NewJWTTokenizer(signKey)
	eventPub := events.NewWatermillPublisher(publisher)

	entryPoint := cfg.EntryPointAddress()
	chainID := new(big.Int).SetUint64(cfg.Network.ChainID)
	bundler := execution.NewBundlerClient(cfg.Network.BundlerURL, entryPoint, cfg.RPCTimeout)
	paymaster := execution.NewPaymasterClient(cfg.Network.PaymasterURL, entryPoint, cfg.RPCTimeout)
	chainState := execution.NewChainStateReader(cfg.Network.NodeURL, entryPoint, cfg.RPCTimeout)
	builder := userop.NewBuilder(entryPoint, chainID, gasDefaults())

	authService := service.NewAuthService(
		accounts, credentials, challenges,
		sessionTokenizer, eventPub,
		verifier.NewChainAddressVerifier(),
		verifier.NewPasskeyLoginVerifier(),
		cfg.ChallengeTTL, cfg.SessionTTL,
		logger,
	)
	signerService := service.NewSignerService(
		accounts, credentials, challenges,
		chainState, verifier.NewPasskeyVerifier(),
		builder, eventPub, logger,
	)
	sendService := service.NewSendService(
		bundler, paymaster, builder, eventPub,
		retry.Policy{
			Attempts: cfg.ReceiptAttempts,
			Delay:    cfg.ReceiptDelay,
			Timeout:  cfg.ReceiptTimeout,
		},
		logger,
	)

	handlers := http.NewHandlers(
		authService, signerService, sendService,
		tokenBook(cfg.Network.ChainID),
		cfg.CookieDomain, logger,
	)
	router := http.SetupRouter(handlers, authService)

	server := &nethttp.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	var zapCfg zap.Config
	if cfg.LogFormat == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

// loadSigningKey parses the hex-encoded P-256 scalar, or generates an
// ephemeral key when none is configured.
func loadSigningKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	d, ok := new(big.Int).SetString(hexKey, 16)
	if !ok {
		return nil, fmt.Errorf("signing key is not valid hex")
	}
	curve := elliptic.P256()
	if d.Sign() <= 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, fmt.Errorf("signing key scalar out of range")
	}

	key := &ecdsa.PrivateKey{PublicKey: ecdsa.PublicKey{Curve: curve}, D: d}
	key.PublicKey.X, key.PublicKey.Y = curve.ScalarBaseMult(d.Bytes())
	return key, nil
}

// tokenBook lists the tokens the activity decoder recognizes per chain.
func tokenBook(chainID uint64) userop.TokenBook {
	switch chainID {
	case 8453:
		return userop.TokenBook{
			common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"): {Symbol: "USDC", Decimals: 6},
		}
	case 84532:
		return userop.TokenBook{
			common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"): {Symbol: "USDC", Decimals: 6},
		}
	default:
		return userop.TokenBook{}
	}
}

func gasDefaults() userop.GasDefaults {
	return userop.GasDefaults{
		CallGasLimit:         big.NewInt(300_000),
		VerificationGasLimit: big.NewInt(500_000),
		PreVerificationGas:   big.NewInt(100_000),
		MaxFeePerGas:         big.NewInt(1_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
	}
}
