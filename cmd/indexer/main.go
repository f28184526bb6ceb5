package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/chainwatch/erc20-indexer/internal/api"
	"github.com/chainwatch/erc20-indexer/internal/chain"
	"github.com/chainwatch/erc20-indexer/internal/config"
	"github.com/chainwatch/erc20-indexer/internal/store"
	"github.com/chainwatch/erc20-indexer/internal/tailer"
)

// tokenDecimals and tokenSymbol describe the single ERC-20 token this
// process indexes; the indexer itself is decimals/symbol agnostic, these
// only annotate the read API response.
const (
	tokenDecimals = 18
	tokenSymbol   = "LOB"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, continuing with process environment")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("indexer exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := chain.Dial(ctx, cfg.EthereumNodeURL)
	if err != nil {
		return fmt.Errorf("dial ethereum node: %w", err)
	}
	defer client.Close()

	db, err := store.NewPostgresStore(cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	token := common.HexToAddress(cfg.EthereumTokenAddress)

	tailerCtx, cancelTailer := context.WithCancel(context.Background())
	defer cancelTailer()

	t := tailer.New(client, db, token, logger)
	tailerDone := make(chan error, 1)
	go func() {
		tailerDone <- t.Run(tailerCtx)
	}()

	handler := api.NewHandler(db, tokenDecimals, tokenSymbol, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.APIPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("api: listening", zap.Uint16("port", cfg.APIPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("api: server failed", zap.Error(err))
		}
	case err := <-tailerDone:
		if err != nil {
			logger.Error("tailer: exited with error", zap.Error(err))
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api: graceful shutdown failed", zap.Error(err))
	}

	// The tailer's context is only cancelled after the HTTP server has
	// finished draining, so in-flight read requests never race a torn
	// down store.
	cancelTailer()
	<-tailerDone

	logger.Info("indexer stopped")
	return nil
}
