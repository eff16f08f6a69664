package x402

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"path"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xeipuuv/gojsonschema"
)

// DefaultMaxTimeoutSeconds is the default payment validity window advertised in requirements.
const DefaultMaxTimeoutSeconds = 300

// DefaultReceiptTimeout bounds the wait for a settlement receipt.
const DefaultReceiptTimeout = 60 * time.Second

// DefaultFacilitatorURL is where resource servers look for a facilitator when none is configured.
const DefaultFacilitatorURL = "http://localhost:4022"

// RouteConfig represents the payment configuration for one protected route.
type RouteConfig struct {
	// Price is the amount in atomic units of the native token (e.g. wei).
	Price string `json:"price"`
	// Network overrides Config.Network for this route.
	Network Network `json:"network,omitempty"`
	// PayTo overrides Config.Recipient for this route.
	PayTo string `json:"payTo,omitempty"`

	Description       string          `json:"description,omitempty"`
	MimeType          string          `json:"mimeType,omitempty"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds,omitempty"`
	OutputSchema      json.RawMessage `json:"outputSchema,omitempty"`
}

// GetMaxTimeoutSeconds returns the max timeout seconds, defaulting to DefaultMaxTimeoutSeconds if not set
func (r RouteConfig) GetMaxTimeoutSeconds() int {
	if r.MaxTimeoutSeconds <= 0 {
		return DefaultMaxTimeoutSeconds
	}
	return r.MaxTimeoutSeconds
}

// Config is the process-wide configuration. It is built once at start-up and passed by
// pointer to every component that needs it; nothing in this module reads globals.
type Config struct {
	// Recipient is the default address that receives payments.
	Recipient string `json:"recipient"`
	// Network is the default network for routes that don't name one.
	Network Network `json:"network"`
	// Networks extends or overrides DefaultNetworks.
	Networks map[Network]NetworkConfig `json:"networks,omitempty"`

	// Routes maps a path pattern ("/api/weather", "/api/*", "/files/*.pdf") to its price.
	Routes map[string]RouteConfig `json:"routes"`
	// SkipPaths are never gated, even if a route pattern covers them.
	SkipPaths []string `json:"skipPaths,omitempty"`
	// BotAllowList entries are matched as case-insensitive substrings of the User-Agent.
	BotAllowList []string `json:"botAllowList,omitempty"`

	// ResourceRootURL prefixes the request path in the advertised resource. When empty the
	// resource is derived from the request itself.
	ResourceRootURL string `json:"resourceRootUrl,omitempty"`

	FacilitatorURL    string `json:"facilitatorUrl,omitempty"`
	FacilitatorKeyID  string `json:"-"`
	FacilitatorSecret string `json:"-"`

	// ReceiptTimeout bounds how long settle waits for a receipt.
	ReceiptTimeout time.Duration `json:"-"`
}

// Validate checks the configuration for everything a request would otherwise trip over.
func (c *Config) Validate() error {
	if c.Recipient == "" {
		return ErrMissingRecipient
	}
	if !common.IsHexAddress(c.Recipient) {
		return fmt.Errorf("%w: %s", ErrInvalidRecipient, c.Recipient)
	}
	if _, ok := c.ResolveNetwork(c.Network); !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedNetwork, c.Network)
	}

	for pattern, route := range c.Routes {
		if _, err := path.Match(pattern, "/"); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRoutePattern, pattern, err)
		}
		if route.Price == "" {
			return fmt.Errorf("%w: route %q", ErrMissingPrice, pattern)
		}
		price, ok := new(big.Int).SetString(route.Price, 10)
		if !ok || price.Sign() <= 0 {
			return fmt.Errorf("%w: route %q: %q", ErrInvalidPrice, pattern, route.Price)
		}
		if _, ok := c.ResolveNetwork(route.Network); !ok {
			return fmt.Errorf("%w: route %q: %q", ErrUnsupportedNetwork, pattern, route.Network)
		}
		if route.PayTo != "" && !common.IsHexAddress(route.PayTo) {
			return fmt.Errorf("%w: route %q: %s", ErrInvalidRecipient, pattern, route.PayTo)
		}
		if len(route.OutputSchema) > 0 {
			if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(route.OutputSchema)); err != nil {
				return fmt.Errorf("%w: route %q: %v", ErrInvalidOutputSchema, pattern, err)
			}
		}
	}

	return nil
}

// ResolveNetwork looks a network up by v1 name or by CAIP-2 chain id. An empty network
// resolves to the configured default. Any well-formed eip155 network resolves, even when it
// is not in the table, since it still belongs to the supported namespace.
//
// When several entries share a chain id, the built-in name wins, then the lexically
// smallest one.
func (c *Config) ResolveNetwork(n Network) (NetworkConfig, bool) {
	if n == "" {
		n = c.Network
	}
	if n == "" {
		return NetworkConfig{}, false
	}

	networks := c.AllNetworks()
	if cfg, ok := networks[n]; ok {
		return cfg, true
	}

	if !n.Match(NamespaceEVM + ":*") {
		return NetworkConfig{}, false
	}
	id, ok := n.CAIP2ChainID()
	if !ok {
		return NetworkConfig{}, false
	}

	defaults := DefaultNetworks()
	var (
		best     NetworkConfig
		bestName Network
		found    bool
	)
	for name, cfg := range networks {
		if cfg.ChainID != id {
			continue
		}
		if !found || preferNetwork(name, bestName, defaults) {
			best, bestName, found = cfg, name, true
		}
	}
	if found {
		return best, true
	}
	return NetworkConfig{Name: n, ChainID: id}, true
}

func preferNetwork(name, current Network, defaults map[Network]NetworkConfig) bool {
	_, nameBuiltin := defaults[name]
	_, currentBuiltin := defaults[current]
	if nameBuiltin != currentBuiltin {
		return nameBuiltin
	}
	return name < current
}

// AllNetworks merges DefaultNetworks with the configured overrides.
func (c *Config) AllNetworks() map[Network]NetworkConfig {
	networks := DefaultNetworks()
	for name, cfg := range c.Networks {
		if cfg.Name == "" {
			cfg.Name = name
		}
		networks[name] = cfg
	}
	return networks
}

// RecipientFor returns the payTo address for a route.
func (c *Config) RecipientFor(route RouteConfig) string {
	if route.PayTo != "" {
		return route.PayTo
	}
	return c.Recipient
}

// NetworkFor returns the network a route is priced on.
func (c *Config) NetworkFor(route RouteConfig) Network {
	if route.Network != "" {
		return route.Network
	}
	return c.Network
}

// GetReceiptTimeout returns the receipt timeout, defaulting to DefaultReceiptTimeout if not set
func (c *Config) GetReceiptTimeout() time.Duration {
	if c.ReceiptTimeout <= 0 {
		return DefaultReceiptTimeout
	}
	return c.ReceiptTimeout
}

// LoadRoutes reads a JSON object of route pattern to RouteConfig.
func LoadRoutes(r io.Reader) (map[string]RouteConfig, error) {
	var routes map[string]RouteConfig
	if err := json.NewDecoder(r).Decode(&routes); err != nil {
		return nil, fmt.Errorf("failed to decode routes: %w", err)
	}
	return routes, nil
}

// ConfigFromEnv builds a Config from environment variables. Callers that want .env support
// load it before calling.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{
		Recipient:         os.Getenv("PAY_TO_ADDRESS"),
		Network:           Network(envOr("X402_NETWORK", "base-sepolia")),
		ResourceRootURL:   os.Getenv("RESOURCE_ROOT_URL"),
		FacilitatorURL:    envOr("FACILITATOR_URL", DefaultFacilitatorURL),
		FacilitatorKeyID:  os.Getenv("FACILITATOR_KEY_ID"),
		FacilitatorSecret: os.Getenv("FACILITATOR_SECRET"),
		BotAllowList:      splitList(os.Getenv("BOT_ALLOW_LIST")),
		SkipPaths:         splitList(os.Getenv("SKIP_PATHS")),
	}

	if raw := os.Getenv("RECEIPT_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid RECEIPT_TIMEOUT: %w", err)
		}
		cfg.ReceiptTimeout = d
	}

	if rpcURL := os.Getenv("RPC_URL"); rpcURL != "" {
		network, ok := cfg.ResolveNetwork(cfg.Network)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, cfg.Network)
		}
		network.RPCURL = rpcURL
		cfg.Networks = map[Network]NetworkConfig{network.Name: network}
	}

	switch routesFile := os.Getenv("X402_ROUTES_FILE"); {
	case routesFile != "":
		f, err := os.Open(routesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open routes file: %w", err)
		}
		defer f.Close()

		routes, err := LoadRoutes(f)
		if err != nil {
			return nil, err
		}
		cfg.Routes = routes
	case os.Getenv("X402_PRICE") != "":
		cfg.Routes = map[string]RouteConfig{
			envOr("X402_PROTECTED_PATH", "/api/*"): {
				Price:       os.Getenv("X402_PRICE"),
				Description: os.Getenv("X402_DESCRIPTION"),
				MimeType:    "application/json",
			},
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
