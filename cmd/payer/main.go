// Command payer fetches a URL, paying with EVM_PRIVATE_KEY when the server asks for it.
//
//	payer https://api.example.com/api/report
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	x402 "github.com/x402-foundation/botgate"
	"github.com/x402-foundation/botgate/pkg/payer"
	"github.com/x402-foundation/botgate/pkg/types"
	"github.com/x402-foundation/botgate/signers/evm"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: payer <url>")
		os.Exit(2)
	}

	if err := run(logger, os.Args[1]); err != nil {
		logger.Error("payment failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, url string) error {
	privateKey := os.Getenv("EVM_PRIVATE_KEY")
	if privateKey == "" {
		return fmt.Errorf("EVM_PRIVATE_KEY environment variable is required")
	}

	cfg, err := x402.ConfigFromEnv()
	if err != nil {
		return err
	}
	network, ok := cfg.ResolveNetwork(cfg.Network)
	if !ok || network.RPCURL == "" {
		return fmt.Errorf("RPC_URL environment variable is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	signer, err := evm.NewSignerFromPrivateKey(privateKey)
	if err != nil {
		return err
	}

	chain, err := evm.Dial(ctx, network.RPCURL)
	if err != nil {
		return err
	}
	defer chain.Close()

	p := payer.New(cfg, chain, signer, payer.WithLogger(logger))

	balance, err := chain.BalanceOf(ctx, p.Address())
	if err != nil {
		return err
	}
	logger.Info("paying account", "address", p.Address(), "network", network.Name, "balance", evm.FormatUnits(balance, evm.NativeDecimals))

	resp, settlement, err := p.Get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if settlement != nil {
		logger.Info("payment settled",
			"success", settlement.Success,
			"tx_hash", types.Deref(settlement.TxHash),
			"network", types.Deref(settlement.NetworkID),
		)
	}
	logger.Info("response", "status", resp.StatusCode)

	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}
