/**
 * @description
 * RS256 verification of Cognito user pool tokens. Signing keys are fetched
 * from the pool's JWKS endpoint, cached by kid and refreshed when an unknown
 * kid arrives or the cache TTL lapses.
 *
 * @notes
 * - ID tokens carry the app client in "aud"; access tokens carry it in
 *   "client_id". Both shapes are accepted.
 */
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/goalpath/planner-api/internal/domain"
)

// TokenValidator turns a raw bearer credential into an identity.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*domain.Identity, error)
}

// JWKSConfig controls JWKSVerifier.
type JWKSConfig struct {
	JWKSURL          string
	ExpectedIssuer   string
	ExpectedAudience string
	HTTPClient       *http.Client
	CacheTTL         time.Duration
}

// JWKSVerifier validates Cognito-issued JWTs.
type JWKSVerifier struct {
	jwksURL    string
	issuer     string
	audience   string
	httpClient *http.Client
	cacheTTL   time.Duration

	mu       sync.RWMutex
	expires  time.Time
	keyByKID map[string]*rsa.PublicKey
}

// NewJWKSVerifier builds a verifier for one user pool and app client.
func NewJWKSVerifier(cfg JWKSConfig) *JWKSVerifier {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &JWKSVerifier{
		jwksURL:    strings.TrimSpace(cfg.JWKSURL),
		issuer:     strings.TrimSpace(cfg.ExpectedIssuer),
		audience:   strings.TrimSpace(cfg.ExpectedAudience),
		httpClient: client,
		cacheTTL:   ttl,
		keyByKID:   map[string]*rsa.PublicKey{},
	}
}

// Validate verifies signature, expiry, issuer and audience, then maps the
// Cognito claims onto an identity.
func (v *JWKSVerifier) Validate(ctx context.Context, tokenString string) (*domain.Identity, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}), jwt.WithLeeway(30*time.Second))
	claims := jwt.MapClaims{}

	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || strings.TrimSpace(kid) == "" {
			return nil, errors.New("missing kid in token")
		}
		return v.getPublicKey(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if v.issuer != "" {
		issuer, ok := claims["iss"].(string)
		if !ok || issuer != v.issuer {
			return nil, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
		}
	}

	if v.audience != "" && !v.audienceMatches(claims) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrTokenInvalid)
	}

	sub, ok := claims["sub"].(string)
	if !ok || strings.TrimSpace(sub) == "" {
		return nil, fmt.Errorf("%w: subject claim missing", ErrTokenInvalid)
	}

	username, _ := claims["cognito:username"].(string)
	if username == "" {
		username, _ = claims["username"].(string)
	}
	email, _ := claims["email"].(string)
	role := RoleFromClaims(claims)

	return &domain.Identity{
		UserID:      sub,
		Email:       domain.NormalizeEmail(email),
		Username:    username,
		Role:        role,
		Permissions: PermissionsFor(role),
		Claims:      map[string]any(claims),
	}, nil
}

func (v *JWKSVerifier) audienceMatches(claims jwt.MapClaims) bool {
	if tokenUse, _ := claims["token_use"].(string); tokenUse == "access" {
		clientID, _ := claims["client_id"].(string)
		return clientID == v.audience
	}
	return verifyAudienceClaim(claims["aud"], v.audience)
}

func verifyAudienceClaim(audClaim any, expected string) bool {
	switch aud := audClaim.(type) {
	case string:
		return aud == expected
	case []any:
		for _, item := range aud {
			s, ok := item.(string)
			if ok && s == expected {
				return true
			}
		}
	case []string:
		for _, item := range aud {
			if item == expected {
				return true
			}
		}
	}
	return false
}

func (v *JWKSVerifier) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key := v.getCachedKey(kid); key != nil {
		return key, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	if key := v.getCachedKey(kid); key != nil {
		return key, nil
	}

	return nil, fmt.Errorf("key not found for kid %s", kid)
}

func (v *JWKSVerifier) getCachedKey(kid string) *rsa.PublicKey {
	now := time.Now()

	v.mu.RLock()
	defer v.mu.RUnlock()

	if now.After(v.expires) {
		return nil
	}
	return v.keyByKID[kid]
}

func (v *JWKSVerifier) refreshKeys(ctx context.Context) error {
	if v.jwksURL == "" {
		return errors.New("jwks url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}

	keys := map[string]*rsa.PublicKey{}
	for _, key := range payload.Keys {
		if key.Kid == "" || key.Kty != "RSA" || key.N == "" || key.E == "" {
			continue
		}
		if key.Use != "" && key.Use != "sig" {
			continue
		}
		pub, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		keys[key.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("no usable RSA keys in JWKS")
	}

	v.mu.Lock()
	v.keyByKID = keys
	v.expires = time.Now().Add(v.cacheTTL)
	v.mu.Unlock()

	return nil
}

func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}
	if exp == 0 {
		return nil, errors.New("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp),
	}, nil
}
