package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/callmetrics/callmetrics-api/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrMissingUser   = errors.New("token has no subject")
	ErrJWKSFetch     = errors.New("failed to fetch JWKS")
	ErrNotConfigured = errors.New("no token verification method configured")
)

// Claims represents Supabase JWT claims
type Claims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Role  string `json:"role"`

	jwt.RegisteredClaims
}

// JWK represents a JSON Web Key
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// Service validates Supabase access tokens. ES256 tokens are checked against
// the project JWKS, HS256 tokens against the shared JWT secret.
type Service struct {
	jwksURL       string
	secret        []byte
	httpClient    *http.Client
	keys          map[string]*ecdsa.PublicKey
	keysMutex     sync.RWMutex
	lastFetch     time.Time
	cacheDuration time.Duration
	devEnabled    bool
	devToken      string
}

// NewService creates an auth service from the auth settings. Keys are
// fetched on first use.
func NewService(cfg config.AuthConfig) (*Service, error) {
	if cfg.JWKSURL == "" && cfg.JWTSecret == "" && !(cfg.DevEnabled && cfg.DevToken != "") {
		return nil, ErrNotConfigured
	}

	return &Service{
		jwksURL:       cfg.JWKSURL,
		secret:        []byte(cfg.JWTSecret),
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		keys:          make(map[string]*ecdsa.PublicKey),
		cacheDuration: time.Hour,
		devEnabled:    cfg.DevEnabled,
		devToken:      cfg.DevToken,
	}, nil
}

// fetchJWKS fetches and parses the JWKS from the URL
func (s *Service) fetchJWKS() error {
	resp, err := s.httpClient.Get(s.jwksURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrJWKSFetch, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetch, err)
	}

	keys := make(map[string]*ecdsa.PublicKey)
	for _, jwk := range jwks.Keys {
		if jwk.Kty != "EC" || jwk.Alg != "ES256" {
			continue
		}
		pubKey, err := parseECKey(jwk)
		if err != nil {
			continue
		}
		keys[jwk.Kid] = pubKey
	}

	s.keysMutex.Lock()
	s.keys = keys
	s.lastFetch = time.Now()
	s.keysMutex.Unlock()
	return nil
}

// parseECKey converts a P-256 JWK to an ECDSA public key
func parseECKey(jwk JWK) (*ecdsa.PublicKey, error) {
	xBytes, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode X coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// getPublicKey retrieves a public key by kid, refreshing the JWKS when the
// key is unknown or the cache is stale
func (s *Service) getPublicKey(kid string) (*ecdsa.PublicKey, error) {
	s.keysMutex.RLock()
	key, exists := s.keys[kid]
	stale := time.Since(s.lastFetch) > s.cacheDuration
	s.keysMutex.RUnlock()

	if !exists || stale {
		if err := s.fetchJWKS(); err != nil {
			if exists {
				return key, nil
			}
			return nil, err
		}

		s.keysMutex.RLock()
		key, exists = s.keys[kid]
		s.keysMutex.RUnlock()
	}

	if !exists {
		return nil, fmt.Errorf("key with id %s not found", kid)
	}
	return key, nil
}

func (s *Service) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodECDSA:
		if s.jwksURL == "" {
			return nil, fmt.Errorf("ES256 tokens are not accepted")
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("no kid found in token header")
		}
		return s.getPublicKey(kid)
	case *jwt.SigningMethodHMAC:
		if len(s.secret) == 0 {
			return nil, fmt.Errorf("HS256 tokens are not accepted")
		}
		return s.secret, nil
	}
	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}

// ValidateToken validates an access token and returns its claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if s.devEnabled && s.devToken != "" &&
		subtle.ConstantTimeCompare([]byte(tokenString), []byte(s.devToken)) == 1 {
		return s.DevClaims(), nil
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, s.keyFunc,
		jwt.WithValidMethods([]string{"ES256", "HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Sub == "" {
		return nil, ErrMissingUser
	}
	return claims, nil
}

// DevClaims returns fixed claims for development mode
func (s *Service) DevClaims() *Claims {
	now := time.Now()
	return &Claims{
		Sub:   "dev-user-001",
		Email: "dev@callmetrics.local",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
}
