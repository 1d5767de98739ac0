package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rynok/market/internal/domain"
)

func TestResolveRoundTrip(t *testing.T) {
	r := NewResolver("test-secret")
	token, err := r.Issue(42, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got := r.Resolve(token); got != 42 {
		t.Fatalf("Resolve = %d, want 42", got)
	}
}

func TestResolveDegradesToAnonymous(t *testing.T) {
	r := NewResolver("test-secret")

	expired, err := r.Issue(42, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	wrongKey, err := NewResolver("other-secret").Issue(42, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"wrong signature", wrongKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Resolve(tc.token); got != domain.Anonymous {
				t.Fatalf("Resolve(%q) = %d, want anonymous", tc.token, got)
			}
		})
	}
}

func TestResolveMissingUserIDClaim(t *testing.T) {
	r := NewResolver("test-secret")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "nobody"})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if got := r.Resolve(signed); got != domain.Anonymous {
		t.Fatalf("Resolve without user_id = %d, want anonymous", got)
	}
}
