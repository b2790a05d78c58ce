package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/justinabrahms/cardchess/internal/api"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"

	issuer = "cardchess"
)

var errInvalidToken = errors.New("invalid token")

type tokenClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
}

// Authenticator issues and verifies HS256 session tokens. The subject is
// the player id.
type Authenticator struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewAuthenticator(secret []byte, accessTTL, refreshTTL time.Duration) *Authenticator {
	return &Authenticator{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue returns a fresh token pair for playerID.
func (a *Authenticator) Issue(playerID string) (api.Credentials, error) {
	access, err := a.sign(playerID, tokenAccess, a.accessTTL)
	if err != nil {
		return api.Credentials{}, err
	}
	refresh, err := a.sign(playerID, tokenRefresh, a.refreshTTL)
	if err != nil {
		return api.Credentials{}, err
	}
	return api.Credentials{AccessToken: access, RefreshToken: refresh, PlayerID: playerID}, nil
}

func (a *Authenticator) sign(playerID, kind string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Kind: kind,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks token and returns its player id.
func (a *Authenticator) Verify(token, kind string) (string, error) {
	var claims tokenClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if claims.Kind != kind || claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

type playerKey struct{}

func playerFrom(ctx context.Context) string {
	id, _ := ctx.Value(playerKey{}).(string)
	return id
}

// Middleware rejects requests without a valid access token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		playerID, err := a.Verify(token, tokenAccess)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "token expired or invalid")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), playerKey{}, playerID)))
	})
}
