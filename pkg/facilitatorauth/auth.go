// Package facilitatorauth mints and checks the bearer tokens that resource servers present
// to a facilitator.
package facilitatorauth

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/x402-foundation/botgate/pkg/types"
)

const (
	// Issuer is the iss claim of every token minted here.
	Issuer = "botgate"
	// TokenLifetime is how long a minted token stays valid.
	TokenLifetime = 5 * time.Minute
	// CorrelationHeader carries a request id the facilitator can log.
	CorrelationHeader = "Correlation-Context"
)

var (
	ErrMissingCredentials = errors.New("facilitatorauth: missing credentials")
	ErrMissingToken       = errors.New("facilitatorauth: missing bearer token")
)

type action struct {
	key    string
	method string
	path   string
}

var actions = []action{
	{key: "verify", method: "POST", path: "/verify"},
	{key: "settle", method: "POST", path: "/settle"},
	{key: "supported", method: "GET", path: "/supported"},
}

// Audience is the aud claim a token for method and path must carry.
func Audience(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// CreateAuthHeader returns a "Bearer <jwt>" value authorizing one request.
func CreateAuthHeader(keyID, secret, method, path string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   keyID,
		Audience:  jwt.ClaimStrings{Audience(method, path)},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = keyID

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return "Bearer " + signed, nil
}

// CreateCorrelationHeader returns a fresh correlation value.
func CreateCorrelationHeader() string {
	return "request_id=" + uuid.NewString()
}

// CreateAuthHeaders returns a generator of per-action headers for the facilitator at
// baseURL. Empty credentials fall back to FACILITATOR_KEY_ID and FACILITATOR_SECRET.
func CreateAuthHeaders(baseURL, keyID, secret string) func() (map[string]map[string]string, error) {
	return func() (map[string]map[string]string, error) {
		id := keyID
		key := secret

		if id == "" {
			id = os.Getenv("FACILITATOR_KEY_ID")
		}
		if key == "" {
			key = os.Getenv("FACILITATOR_SECRET")
		}

		if id == "" || key == "" {
			return nil, fmt.Errorf("%w: FACILITATOR_KEY_ID and FACILITATOR_SECRET must be set", ErrMissingCredentials)
		}

		prefix := ""
		if u, err := url.Parse(baseURL); err == nil {
			prefix = strings.TrimRight(u.Path, "/")
		}

		correlation := CreateCorrelationHeader()
		headers := make(map[string]map[string]string, len(actions))
		for _, a := range actions {
			token, err := CreateAuthHeader(id, key, a.method, prefix+a.path)
			if err != nil {
				return nil, fmt.Errorf("failed to create %s auth header: %w", a.key, err)
			}
			headers[a.key] = map[string]string{
				"Authorization":   token,
				CorrelationHeader: correlation,
			}
		}
		return headers, nil
	}
}

// CreateFacilitatorConfig creates a client config for an authenticated facilitator.
func CreateFacilitatorConfig(baseURL, keyID, secret string) *types.FacilitatorConfig {
	return &types.FacilitatorConfig{
		URL:               baseURL,
		CreateAuthHeaders: CreateAuthHeaders(baseURL, keyID, secret),
	}
}

// ValidateToken checks an Authorization header value against the shared secret and the
// request it was presented with. It returns the key id the token was minted for.
func ValidateToken(secret, authorization, method, path string) (string, error) {
	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || raw == "" {
		return "", ErrMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience(method, path)),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	return claims.Subject, nil
}
