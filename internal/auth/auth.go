// Package auth resolves bearer tokens to an authorization context. The
// fast path is the shared session cache populated by the identity
// service; the fallback is cryptographic verification against the
// provider's JWKS plus local permission enrichment.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"

	"github.com/uleam-dti/dms/pkg/graph"
	"github.com/uleam-dti/dms/pkg/identity"
	"github.com/uleam-dti/dms/pkg/models"
)

// ErrUnauthorized is returned for missing, expired or unverifiable
// credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Context is the resolved identity and permission surface of a request.
type Context struct {
	UserID        string
	TokenHash     string
	TokenType     string
	TenantID      string
	TeamIDs       []string
	Microservices MicroservicesData
}

// MicroservicesData carries the per-microservice permission grants the
// session cache distributes.
type MicroservicesData struct {
	ByID map[string]models.DMSPermissions `json:"by_id" mapstructure:"by_id"`
}

// session is the cached session payload shape.
type session struct {
	UserID        string            `mapstructure:"user_id"`
	TenantID      string            `mapstructure:"tenant_id"`
	TokenType     string            `mapstructure:"token_type"`
	GUIDMS        string            `mapstructure:"guid_ms"`
	TeamIDs       []string          `mapstructure:"team_ids"`
	Microservices MicroservicesData `mapstructure:"microservices_data"`
	LocalData     struct {
		UserData struct {
			Name       string `mapstructure:"name"`
			Email      string `mapstructure:"email"`
			AzureID    string `mapstructure:"azure_id"`
			FirstLogin bool   `mapstructure:"first_login"`
		} `mapstructure:"user_data"`
	} `mapstructure:"local_data"`

	fromCache bool
}

// GraphStore is the graph surface the authenticator reads and syncs.
type GraphStore interface {
	ReadVertex(ctx context.Context, collection, key string, out any) (bool, error)
	Execute(ctx context.Context, aql string, bindVars map[string]any) error
}

// Config wires the authenticator.
type Config struct {
	Redis          *redis.Client
	Store          GraphStore
	KeyPrefix      string
	AzureTenantID  string
	LocalJWKSURL   string
	MicroserviceID string
	Logger         hclog.Logger
}

// Authenticator turns bearer tokens into Contexts.
type Authenticator struct {
	rdb    *redis.Client
	store  GraphStore
	jwks   *JWKSCache
	prefix string
	tenant string
	jwksU  string
	msID   string
	logger hclog.Logger
}

// New validates the wiring and builds the authenticator.
func New(cfg Config) (*Authenticator, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("graph store is required")
	}
	if cfg.MicroserviceID == "" {
		return nil, fmt.Errorf("microservice id is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &Authenticator{
		rdb:    cfg.Redis,
		store:  cfg.Store,
		jwks:   NewJWKSCache(cfg.Logger),
		prefix: cfg.KeyPrefix,
		tenant: cfg.AzureTenantID,
		jwksU:  cfg.LocalJWKSURL,
		msID:   cfg.MicroserviceID,
		logger: cfg.Logger.Named("auth"),
	}, nil
}

// TokenHash is the cache key derivative of a bearer token.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Authenticate resolves a raw bearer token. Cache first, cryptographic
// fallback second. Sessions sourced from the cache trigger an async
// user sync into the graph.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Context, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty bearer token", ErrUnauthorized)
	}
	hash := TokenHash(token)

	sess, err := a.loadSession(ctx, hash)
	if err != nil {
		a.logger.Warn("session cache unavailable", "error", err)
	}
	if sess == nil {
		sess, err = a.fallbackValidation(ctx, token)
		if err != nil {
			return nil, err
		}
	}

	if sess.TenantID == "" {
		sess.TenantID = "default"
	}
	if sess.TokenType == "" {
		sess.TokenType = "unknown"
	}

	if sess.fromCache {
		go a.syncUser(sess)
	}

	return &Context{
		UserID:        sess.UserID,
		TokenHash:     hash,
		TokenType:     sess.TokenType,
		TenantID:      sess.TenantID,
		TeamIDs:       sess.TeamIDs,
		Microservices: sess.Microservices,
	}, nil
}

// loadSession probes the session cache under every known provider
// prefix in one pipelined batch. First hit wins.
func (a *Authenticator) loadSession(ctx context.Context, tokenHash string) (*session, error) {
	keys := []string{
		a.prefix + "session:local:" + tokenHash,
		a.prefix + "session:azure:" + tokenHash,
		a.prefix + "session:" + tokenHash,
	}

	pipe := a.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	for _, cmd := range cmds {
		raw, err := cmd.Result()
		if err != nil {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			a.logger.Warn("unparseable session payload", "error", err)
			continue
		}
		var sess session
		if err := mapstructure.Decode(payload, &sess); err != nil {
			a.logger.Warn("session decode failed", "error", err)
			continue
		}
		sess.fromCache = true
		return &sess, nil
	}
	return nil, nil
}

// fallbackValidation verifies the token signature and rebuilds a
// minimal session, enriched with the locally cached permissions when
// the user vertex exists.
func (a *Authenticator) fallbackValidation(ctx context.Context, token string) (*session, error) {
	claims, provider, err := a.jwks.verifyToken(token, a.tenant, a.jwksU)
	if err != nil {
		if errors.Is(err, ErrKeysUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, err)
	}

	sess := &session{TokenType: provider}
	switch provider {
	case "azure":
		if oid, _ := claims["oid"].(string); oid != "" {
			sess.UserID = oid
		} else {
			sess.UserID, _ = claims["sub"].(string)
		}
		sess.GUIDMS = sess.UserID
		if tid, _ := claims["tid"].(string); tid != "" {
			sess.TenantID = tid
		} else {
			sess.TenantID = a.tenant
		}
	default:
		sess.UserID = fmt.Sprintf("%v", claims["sub"])
		if tid, _ := claims["tid"].(string); tid != "" {
			sess.TenantID = tid
		} else {
			sess.TenantID = "default"
		}
	}
	if sess.UserID == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}

	a.enrichFromGraph(ctx, sess)
	return sess, nil
}

// enrichFromGraph copies the locally synced permission grants onto a
// fallback session. Absence is not an error: an authenticated user
// without a local record simply has no teams.
func (a *Authenticator) enrichFromGraph(ctx context.Context, sess *session) {
	lookup := sess.GUIDMS
	if lookup == "" {
		lookup = sess.UserID
	}
	key := identity.SanitizeKey(lookup)
	if key == "" {
		return
	}

	var user models.User
	found, err := a.store.ReadVertex(ctx, graph.ColUsers, key, &user)
	if err != nil {
		a.logger.Error("fallback permission lookup failed", "key", key, "error", err)
		return
	}
	if !found || user.DMSPermissions == nil {
		a.logger.Warn("authenticated user has no local record", "key", key)
		return
	}

	perms := user.DMSPermissions
	for team := range perms.Teams {
		sess.TeamIDs = append(sess.TeamIDs, team)
	}
	sess.Microservices = MicroservicesData{
		ByID: map[string]models.DMSPermissions{a.msID: *perms},
	}
}

// syncUser upserts the cached session identity into dms_users. Runs in
// the background; the request never waits on it.
func (a *Authenticator) syncUser(sess *session) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	guid := sess.LocalData.UserData.AzureID
	if guid == "" {
		guid = sess.GUIDMS
	}
	if guid == "" && sess.TokenType == "azure" {
		guid = sess.UserID
	}
	lookup := guid
	if lookup == "" {
		lookup = sess.UserID
	}
	key := identity.SanitizeKey(lookup)
	if key == "" {
		return
	}

	grants := sess.Microservices.ByID[a.msID]
	now := time.Now().UTC().Format(time.RFC3339)
	doc := map[string]any{
		"_key":           key,
		"user_id":        sess.UserID,
		"guid_ms":        guid,
		"name":           sess.LocalData.UserData.Name,
		"email":          sess.LocalData.UserData.Email,
		"last_synced_at": now,
		"tenant_id":      sess.TenantID,
		"dms_permissions": map[string]any{
			"roles":       grants.Roles,
			"permissions": grants.Permissions,
			"teams":       grants.Teams,
		},
	}

	err := a.store.Execute(ctx, `
		UPSERT { _key: @key }
			INSERT MERGE(@doc, { created_at: @now, source: 'session_sync' })
			UPDATE MERGE(OLD, @doc, { updated_at: @now })
		IN `+graph.ColUsers,
		map[string]any{"key": key, "doc": doc, "now": now})
	if err != nil {
		a.logger.Error("user session sync failed", "key", key, "error", err)
	}
}
