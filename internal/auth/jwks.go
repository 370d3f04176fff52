package auth

import (
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
	"github.com/hashicorp/go-hclog"
)

// ErrKeysUnavailable is returned when no JWKS can be fetched and no
// stale copy exists.
var ErrKeysUnavailable = errors.New("validation keys unavailable")

const (
	jwksTTL          = time.Hour
	jwksFetchTimeout = 5 * time.Second

	// localFallbackKid is assumed for legacy local tokens without a kid.
	localFallbackKid = "passport-v1"
)

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwksEntry struct {
	doc       jwksDocument
	expiresAt time.Time
}

// JWKSCache fetches and caches signing key sets per URL. Refreshes run
// under a per-URL mutex with a double check inside the lock; a stale
// set is served when the refresh fails.
type JWKSCache struct {
	mu      sync.RWMutex
	entries map[string]*jwksEntry
	locks   map[string]*sync.Mutex

	client *http.Client
	logger hclog.Logger
	now    func() time.Time
}

// NewJWKSCache builds an empty cache.
func NewJWKSCache(logger hclog.Logger) *JWKSCache {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &JWKSCache{
		entries: map[string]*jwksEntry{},
		locks:   map[string]*sync.Mutex{},
		client:  &http.Client{Timeout: jwksFetchTimeout},
		logger:  logger.Named("jwks"),
		now:     time.Now,
	}
}

func (c *JWKSCache) urlLock(url string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[url]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[url] = lock
	}
	return lock
}

func (c *JWKSCache) cached(url string) (*jwksEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[url]
	return entry, ok
}

// Keys returns the key set for a URL, refreshing it when expired.
func (c *JWKSCache) Keys(url string) (jwksDocument, error) {
	if entry, ok := c.cached(url); ok && c.now().Before(entry.expiresAt) {
		return entry.doc, nil
	}

	lock := c.urlLock(url)
	lock.Lock()
	defer lock.Unlock()

	if entry, ok := c.cached(url); ok && c.now().Before(entry.expiresAt) {
		return entry.doc, nil
	}

	doc, err := c.fetch(url)
	if err != nil {
		c.logger.Error("jwks refresh failed", "url", url, "error", err)
		if entry, ok := c.cached(url); ok {
			return entry.doc, nil
		}
		return jwksDocument{}, ErrKeysUnavailable
	}

	c.mu.Lock()
	c.entries[url] = &jwksEntry{doc: doc, expiresAt: c.now().Add(jwksTTL)}
	c.mu.Unlock()
	return doc, nil
}

func (c *JWKSCache) fetch(url string) (jwksDocument, error) {
	resp, err := c.client.Get(url)
	if err != nil {
		return jwksDocument{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return jwksDocument{}, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}
	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return jwksDocument{}, err
	}
	return doc, nil
}

// tokenProvider inspects the unverified token and classifies it.
type tokenProvider struct {
	provider string // "azure" or "local"
	issuer   string
	kid      string
}

func detectProvider(token string) (tokenProvider, error) {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return tokenProvider{}, fmt.Errorf("malformed token: %w", err)
	}

	kid, _ := parsed.Header["kid"].(string)
	issuer := ""
	if claims, ok := parsed.Claims.(jwt.MapClaims); ok {
		issuer, _ = claims["iss"].(string)
	}

	if strings.Contains(issuer, "login.microsoftonline.com") {
		return tokenProvider{provider: "azure", issuer: issuer, kid: kid}, nil
	}
	if kid == "" {
		kid = localFallbackKid
	}
	return tokenProvider{provider: "local", issuer: issuer, kid: kid}, nil
}

// signingKey resolves the RSA public key for the token's kid from the
// right JWKS endpoint.
func (c *JWKSCache) signingKey(tp tokenProvider, azureTenantID, localJWKSURL string) (*rsa.PublicKey, error) {
	url := localJWKSURL
	if tp.provider == "azure" {
		url = fmt.Sprintf("https://login.microsoftonline.com/%s/discovery/v2.0/keys", azureTenantID)
	}

	doc, err := c.Keys(url)
	if err != nil {
		return nil, err
	}

	for _, key := range doc.Keys {
		if key.Kid != "" && key.Kid == tp.kid {
			return rsaKeyFromJWK(key)
		}
		// A single local key without kid serves legacy tokens.
		if tp.provider == "local" && key.Kid == "" && tp.kid == localFallbackKid {
			return rsaKeyFromJWK(key)
		}
	}
	return nil, fmt.Errorf("no signing key for kid %q (provider %s)", tp.kid, tp.provider)
}

func rsaKeyFromJWK(key jwk) (*rsa.PublicKey, error) {
	if key.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", key.Kty)
	}
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, fmt.Errorf("bad modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, fmt.Errorf("bad exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}

// verifyToken checks the RS256 signature and expiry, returning the
// claims and the detected provider.
func (c *JWKSCache) verifyToken(token, azureTenantID, localJWKSURL string) (jwt.MapClaims, string, error) {
	tp, err := detectProvider(token)
	if err != nil {
		return nil, "", err
	}

	key, err := c.signingKey(tp, azureTenantID, localJWKSURL)
	if err != nil {
		return nil, "", err
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, "", fmt.Errorf("token verification failed: %w", err)
	}
	return claims, tp.provider, nil
}
