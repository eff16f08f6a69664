// Command server is a resource server whose /api routes are gated by x402 payments.
//
// X402_MODE selects who pays: "payment" (everyone), "bot" (classified bots) or "ai"
// (known AI crawlers). Routes come from X402_ROUTES_FILE or X402_PRICE.
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

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	x402 "github.com/x402-foundation/botgate"
	x402echo "github.com/x402-foundation/botgate/pkg/echo"
	"github.com/x402-foundation/botgate/pkg/paywall"
	"github.com/x402-foundation/botgate/pkg/types"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	if err := run(logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func parseMode(raw string) (paywall.Mode, error) {
	switch raw {
	case "", "payment":
		return paywall.ModePayment, nil
	case "bot":
		return paywall.ModeBot, nil
	case "ai", "ai-crawler":
		return paywall.ModeAICrawler, nil
	default:
		return 0, fmt.Errorf("unknown X402_MODE %q", raw)
	}
}

func run(logger *slog.Logger) error {
	port := os.Getenv("PORT")
	if port == "" {
		port = "4021"
	}

	cfg, err := x402.ConfigFromEnv()
	if err != nil {
		return err
	}
	if len(cfg.Routes) == 0 {
		cfg.Routes = map[string]x402.RouteConfig{
			"/api/*": {Price: "1000000000000", Description: "Premium API", MimeType: "application/json"},
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	mode, err := parseMode(os.Getenv("X402_MODE"))
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(x402echo.Middleware(paywall.New(cfg,
		paywall.WithMode(mode),
		paywall.WithLogger(logger),
		paywall.WithStrictHeaders(os.Getenv("X402_STRICT_HEADERS") == "true"),
	)))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"network": string(cfg.Network),
			"mode":    mode.String(),
		})
	})

	e.GET("/api/*", func(c echo.Context) error {
		resp := map[string]any{
			"message":   "Premium content",
			"path":      c.Request().URL.Path,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if s, ok := paywall.SettlementFromContext(c.Request().Context()); ok {
			resp["txHash"] = types.Deref(s.TxHash)
		}
		return c.JSON(http.StatusOK, resp)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"port", port,
			"mode", mode.String(),
			"network", cfg.Network,
			"facilitator", cfg.FacilitatorURL,
		)
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
