// Command escrowd starts the offer settlement engine: the HTTP API, the
// websocket event stream, and the expiry sweeper.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/openpleb/escrowd/internal/config"
	"github.com/openpleb/escrowd/internal/fees"
	"github.com/openpleb/escrowd/internal/limiter"
	"github.com/openpleb/escrowd/internal/migrate"
	"github.com/openpleb/escrowd/internal/notify"
	"github.com/openpleb/escrowd/internal/repository/postgres"
	httpserver "github.com/openpleb/escrowd/internal/server/http"
	"github.com/openpleb/escrowd/internal/service"
	"github.com/openpleb/escrowd/internal/sweeper"
	"github.com/openpleb/escrowd/internal/wallet"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and serves until interrupted.
func main() {
	cfgPath := flag.String("config", ".", "directory holding the optional .env file")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.ListenAddr),
		zap.String("currency", cfg.Currency),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// DB pool
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer pool.Close()

	// Repositories
	db := &postgres.DB{Pool: pool}
	offerRepo := postgres.NewOfferRepo(db)
	claimRepo := postgres.NewClaimRepo(db)
	receiptRepo := postgres.NewReceiptRepo(db)
	proofRepo := postgres.NewProofRepo(db)
	quoteRepo := postgres.NewMintQuoteRepo(db)

	lim := limiter.NewPG(pool, time.Duration(cfg.OfferWindowS)*time.Second, cfg.MaxOffersPerWindow)

	// Event fan-out: in-process hub for websockets, AMQP when configured.
	hub := notify.NewHub(logger)
	var notifier notify.Notifier = hub
	if cfg.AMQPURL != "" {
		amqpPub, err := notify.NewAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatal("amqp connect", zap.Error(err))
		}
		defer amqpPub.Close()
		notifier = notify.Multi{hub, amqpPub}
	}

	// Service
	engine := service.NewOffers(service.Deps{
		Offers:   offerRepo,
		Claims:   claimRepo,
		Receipts: receiptRepo,
		Proofs:   proofRepo,
		Quotes:   quoteRepo,
		Wallet:   wallet.NewClient(cfg.WalletURL),
		Notifier: notifier,
		Limiter:  lim,
	}, service.Config{
		Fees: fees.Params{
			PlatformFeeFlatRate:   cfg.PlatformFeeFlatRate,
			PlatformFeePercentage: cfg.PlatformFeePercentage,
			TakerFeeFlatRate:      cfg.TakerFeeFlatRate,
			TakerFeePercentage:    cfg.TakerFeePercentage,
			BondFlatRate:          cfg.BondFlatRate,
			BondPercentage:        cfg.BondPercentage,
			MaxFiatAmount:         cfg.MaxFiatAmount,
		},
		Currency:         cfg.Currency,
		MintURL:          cfg.MintURL,
		CreatedValidForS: cfg.CreatedValidForS,
		FundedValidForS:  cfg.FundedValidForS,
		ClaimValidForS:   cfg.ClaimValidForS,
		ReceiptValidForS: cfg.ReceiptValidForS,
		IssueGraceS:      cfg.IssueGraceS,
	}, logger)

	// Expiry sweeper
	sw := sweeper.New(engine, cfg.SweepIntervalS, logger)
	sw.Start()
	defer sw.Stop()

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpserver.New(engine, hub, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
