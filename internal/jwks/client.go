package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kty string `json:"kty"` // Key type
	Kid string `json:"kid"` // Key ID
	Use string `json:"use"` // Public key use
	Alg string `json:"alg"` // Algorithm
	N   string `json:"n"`   // RSA modulus
	E   string `json:"e"`   // RSA public exponent
}

// Client handles JWKS discovery and caching
type Client struct {
	jwksURL    string
	httpClient *http.Client
	cache      *jwksCache
	testMode   bool
}

// jwksCache stores cached JWKS with expiration
type jwksCache struct {
	jwks      *JWKS
	expiresAt time.Time
	mutex     sync.RWMutex
}

// NewClient creates a new JWKS client
func NewClient(jwksURL string) *Client {
	return &Client{
		jwksURL: jwksURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: &jwksCache{},
	}
}

// NewTestClient creates a new JWKS client for testing. It accepts any
// well-formed token without checking its signature, so tests can mint
// tokens with throwaway keys.
func NewTestClient() *Client {
	return &Client{testMode: true}
}

// fetchJWKS fetches the JWKS from the identity provider
func (c *Client) fetchJWKS(ctx context.Context) (*JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS fetch failed with status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	return &jwks, nil
}

// getJWKS retrieves JWKS from cache or fetches fresh if needed
func (c *Client) getJWKS(ctx context.Context) (*JWKS, error) {
	c.cache.mutex.RLock()
	if c.cache.jwks != nil && time.Now().Before(c.cache.expiresAt) {
		jwks := c.cache.jwks
		c.cache.mutex.RUnlock()
		return jwks, nil
	}
	c.cache.mutex.RUnlock()

	// Need to fetch fresh JWKS
	c.cache.mutex.Lock()
	defer c.cache.mutex.Unlock()

	// Double-check after acquiring write lock
	if c.cache.jwks != nil && time.Now().Before(c.cache.expiresAt) {
		return c.cache.jwks, nil
	}

	jwks, err := c.fetchJWKS(ctx)
	if err != nil {
		return nil, err
	}

	c.cache.jwks = jwks
	c.cache.expiresAt = time.Now().Add(5 * time.Minute) // 5-minute cache

	return jwks, nil
}

// getKey retrieves a specific key from the JWKS by kid
func (c *Client) getKey(ctx context.Context, kid string) (*JWK, error) {
	jwks, err := c.getJWKS(ctx)
	if err != nil {
		return nil, err
	}

	for _, key := range jwks.Keys {
		if key.Kid == kid {
			return &key, nil
		}
	}

	return nil, fmt.Errorf("key with kid %s not found", kid)
}

// publicKey builds the RSA public key carried by a JWK.
func publicKey(jwk *JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}

// ValidateJWT validates a JWT using the JWKS
func (c *Client) ValidateJWT(ctx context.Context, tokenString string, expectedIssuer, expectedAudience string) (jwt.MapClaims, error) {
	// If in test mode, use simplified validation
	if c.testMode {
		// Parse the token without verification to get the claims
		parsedToken, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
		if err != nil {
			return nil, fmt.Errorf("failed to parse JWT: %w", err)
		}

		claims, ok := parsedToken.Claims.(jwt.MapClaims)
		if !ok {
			return nil, fmt.Errorf("invalid JWT claims")
		}

		// Verify issuer
		if iss, ok := claims["iss"].(string); !ok || iss != expectedIssuer {
			return nil, fmt.Errorf("invalid issuer")
		}

		// Verify audience
		if aud, ok := claims["aud"].(string); !ok || aud != expectedAudience {
			return nil, fmt.Errorf("invalid audience")
		}

		// Test mode skips the expiration check so canned fixture tokens
		// do not rot.
		return claims, nil
	}

	// Parse the token without verification to get the header
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	// Get the key ID from the header
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("missing or invalid kid in JWT header")
	}

	// Get the key from JWKS
	jwk, err := c.getKey(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	// Verify key type and algorithm
	if jwk.Kty != "RSA" || (jwk.Alg != "" && jwk.Alg != "RS256") {
		return nil, fmt.Errorf("unsupported key type or algorithm")
	}

	pub, err := publicKey(jwk)
	if err != nil {
		return nil, err
	}

	// Verify the token
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return pub, nil
	}

	// Parse and verify the token
	parsedToken, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, keyFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to verify JWT: %w", err)
	}

	if !parsedToken.Valid {
		return nil, fmt.Errorf("invalid JWT")
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid JWT claims")
	}

	// Verify issuer
	if iss, ok := claims["iss"].(string); !ok || iss != expectedIssuer {
		return nil, fmt.Errorf("invalid issuer")
	}

	// Verify audience
	if aud, ok := claims["aud"].(string); !ok || aud != expectedAudience {
		return nil, fmt.Errorf("invalid audience")
	}

	// Verify expiration
	if exp, ok := claims["exp"].(float64); !ok || float64(time.Now().Unix()) > exp {
		return nil, fmt.Errorf("token expired")
	}

	return claims, nil
}

// Principal returns the caller identity carried by validated claims.
// Identity pools put a friendly username on access tokens; the subject
// is the fallback.
func Principal(claims jwt.MapClaims) string {
	if username, ok := claims["username"].(string); ok && username != "" {
		return username
	}
	sub, _ := claims["sub"].(string)
	return sub
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("missing authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("authorization header is not a bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", fmt.Errorf("empty bearer token")
	}
	return token, nil
}
