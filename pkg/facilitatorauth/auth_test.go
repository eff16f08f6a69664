package facilitatorauth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestCreateAuthHeaders(t *testing.T) {
	t.Parallel()

	headers, err := CreateAuthHeaders("https://facilitator.example.com/x402", "key-1", "s3cret")()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for key, route := range map[string]struct{ method, path string }{
		"verify":    {"POST", "/x402/verify"},
		"settle":    {"POST", "/x402/settle"},
		"supported": {"GET", "/x402/supported"},
	} {
		h, ok := headers[key]
		if !ok {
			t.Fatalf("Missing headers for %s", key)
		}
		if !strings.HasPrefix(h[CorrelationHeader], "request_id=") {
			t.Errorf("Unexpected correlation header %q", h[CorrelationHeader])
		}

		subject, err := ValidateToken("s3cret", h["Authorization"], route.method, route.path)
		if err != nil {
			t.Errorf("%s token rejected: %v", key, err)
		}
		if subject != "key-1" {
			t.Errorf("Expected subject key-1, got %q", subject)
		}
	}

	if headers["verify"][CorrelationHeader] != headers["settle"][CorrelationHeader] {
		t.Error("Expected one correlation id per header set")
	}
}

func TestCreateAuthHeadersMissingCredentials(t *testing.T) {
	t.Setenv("FACILITATOR_KEY_ID", "")
	t.Setenv("FACILITATOR_SECRET", "")

	_, err := CreateAuthHeaders("http://localhost:4022", "", "")()
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("Expected ErrMissingCredentials, got %v", err)
	}
}

func TestCreateAuthHeadersFromEnv(t *testing.T) {
	t.Setenv("FACILITATOR_KEY_ID", "env-key")
	t.Setenv("FACILITATOR_SECRET", "env-secret")

	headers, err := CreateAuthHeaders("http://localhost:4022", "", "")()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := ValidateToken("env-secret", headers["verify"]["Authorization"], "POST", "/verify"); err != nil {
		t.Fatalf("Token rejected: %v", err)
	}
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	token, err := CreateAuthHeader("key-1", "s3cret", "POST", "/settle")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    Issuer,
		Audience:  jwt.ClaimStrings{Audience("POST", "/settle")},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	expiredToken, err := expired.SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	tests := []struct {
		name          string
		secret        string
		authorization string
		method        string
		path          string
		wantErr       bool
	}{
		{name: "valid", secret: "s3cret", authorization: token, method: "POST", path: "/settle"},
		{name: "lowercase method", secret: "s3cret", authorization: token, method: "post", path: "/settle"},
		{name: "wrong secret", secret: "other", authorization: token, method: "POST", path: "/settle", wantErr: true},
		{name: "wrong path", secret: "s3cret", authorization: token, method: "POST", path: "/verify", wantErr: true},
		{name: "wrong method", secret: "s3cret", authorization: token, method: "GET", path: "/settle", wantErr: true},
		{name: "no bearer prefix", secret: "s3cret", authorization: strings.TrimPrefix(token, "Bearer "), method: "POST", path: "/settle", wantErr: true},
		{name: "empty", secret: "s3cret", authorization: "", method: "POST", path: "/settle", wantErr: true},
		{name: "expired", secret: "s3cret", authorization: "Bearer " + expiredToken, method: "POST", path: "/settle", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ValidateToken(tt.secret, tt.authorization, tt.method, tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
