// Command facilitator verifies and settles x402 payments for resource servers.
//
// Configuration comes from the environment (or a .env file): RPC_URL and X402_NETWORK
// select the chain, FACILITATOR_SECRET enables bearer-token auth, PORT defaults to 4022.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	x402 "github.com/x402-foundation/botgate"
	"github.com/x402-foundation/botgate/pkg/facilitator"
	"github.com/x402-foundation/botgate/pkg/types"
	"github.com/x402-foundation/botgate/signers/evm"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	if err := run(logger); err != nil {
		logger.Error("facilitator stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	port := os.Getenv("PORT")
	if port == "" {
		port = "4022"
	}

	cfg, err := x402.ConfigFromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := facilitator.New(cfg, facilitator.WithLogger(logger))
	for name, network := range cfg.AllNetworks() {
		if network.RPCURL == "" {
			continue
		}
		dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		client, err := evm.Dial(dialCtx, network.RPCURL, evm.WithReceiptTimeout(cfg.GetReceiptTimeout()))
		cancel()
		if err != nil {
			return err
		}
		defer client.Close()

		if client.ChainID().Int64() != network.ChainID {
			return fmt.Errorf("RPC endpoint for %s serves chain %s, want %d", name, client.ChainID(), network.ChainID)
		}
		f.AddChain(client)
		logger.Info("chain registered", "network", name, "chain_id", network.ChainID)
	}
	if len(f.Supported().Kinds) == 0 {
		return errors.New("no chain configured: set RPC_URL")
	}

	f.OnAfterSettle(func(c facilitator.SettleResultContext) {
		attrs := []any{
			"request_id", facilitator.RequestIDFromContext(c.Ctx),
			"outcome", c.Result.Outcome.String(),
			"duration_ms", c.Duration.Milliseconds(),
		}
		if s := c.Result.Value; s != nil {
			attrs = append(attrs, "payer", s.Payer, "tx_hash", types.Deref(s.TxHash))
		}
		logger.Info("settlement audit", attrs...)
	})

	gin.SetMode(gin.ReleaseMode)
	router := facilitator.NewRouter(f, facilitator.RouterOptions{
		Logger:     logger,
		AuthSecret: cfg.FacilitatorSecret,
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("facilitator listening", "addr", server.Addr, "auth", cfg.FacilitatorSecret != "")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), facilitator.DefaultSettleTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
