// Package identity resolves the people OCR metadata mentions into
// graph users: local cache first, then the external directory, with a
// similarity threshold guarding name-only matches.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/hashicorp/go-hclog"

	"github.com/uleam-dti/dms/pkg/graph"
	"github.com/uleam-dti/dms/pkg/models"
)

// MatchThreshold is the minimum similarity ratio a name-only directory
// candidate needs to be accepted.
const MatchThreshold = 0.75

// SourceManualCreation marks users created by hand during validation.
const SourceManualCreation = "manual_validation_creation"

// GraphStore is the slice of the graph client the resolver uses.
type GraphStore interface {
	QueryOne(ctx context.Context, aql string, bindVars map[string]any, out any) (bool, error)
}

// Input identifies the person to resolve. Any subset of fields may be
// set; an empty input resolves to nothing.
type Input struct {
	DisplayName string
	Email       string
	GUIDMS      string
}

func (in Input) empty() bool {
	return in.DisplayName == "" && in.Email == "" && in.GUIDMS == ""
}

// Resolver finds or caches users. Directory may be nil, in which case
// only the local graph is consulted.
type Resolver struct {
	store       GraphStore
	directory   Directory
	logger      hclog.Logger
	searchLimit int
	similarity  *metrics.Levenshtein
	now         func() time.Time
}

// NewResolver builds a resolver over the graph and an optional
// directory.
func NewResolver(store GraphStore, directory Directory, logger hclog.Logger) *Resolver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Resolver{
		store:       store,
		directory:   directory,
		logger:      logger.Named("identity"),
		searchLimit: 10,
		similarity:  metrics.NewLevenshtein(),
		now:         time.Now,
	}
}

// Resolve looks the person up in order: local exact match, directory
// exact lookup, directory prefix search scored against the input name.
// A nil user with nil error means nobody crossed the threshold.
func (r *Resolver) Resolve(ctx context.Context, in Input) (*models.User, error) {
	if in.empty() {
		return nil, nil
	}

	user, err := r.findLocal(ctx, in)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	if r.directory == nil {
		return nil, nil
	}

	if in.GUIDMS != "" || in.Email != "" {
		user, err = r.resolveExact(ctx, in)
		if err != nil || user != nil {
			return user, err
		}
	}

	return r.resolveBySearch(ctx, in)
}

// CreateUser inserts a manual user vertex and returns its key. The
// first token of the display name becomes the given name, the rest the
// last name.
func (r *Resolver) CreateUser(ctx context.Context, displayName, email string) (string, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return "", fmt.Errorf("display name is required to create a user")
	}

	tokens := strings.Fields(displayName)
	name := tokens[0]
	lastName := ""
	if len(tokens) > 1 {
		lastName = strings.Join(tokens[1:], " ")
	}

	aql := `
		INSERT {
			name: @name,
			last_name: @last_name,
			email: @email,
			type: 'user',
			status: 'active',
			source: @source,
			created_at: DATE_ISO8601(DATE_NOW())
		} IN ` + graph.ColUsers + `
		RETURN NEW._key`

	var key string
	found, err := r.store.QueryOne(ctx, aql, map[string]any{
		"name":      name,
		"last_name": lastName,
		"email":     nullable(email),
		"source":    SourceManualCreation,
	}, &key)
	if err != nil {
		return "", fmt.Errorf("failed to create user %q: %w", displayName, err)
	}
	if !found {
		return "", fmt.Errorf("user insert for %q returned nothing", displayName)
	}
	r.logger.Info("created manual user", "key", key, "name", displayName)
	return key, nil
}

// findLocal tries the cache: guid_ms, lowered email, sanitized key and
// finally a contains match over name/last_name.
func (r *Resolver) findLocal(ctx context.Context, in Input) (*models.User, error) {
	if in.GUIDMS != "" {
		user, found, err := r.queryUser(ctx, `
			FOR u IN `+graph.ColUsers+`
				FILTER u.guid_ms == @guid OR u._key == @key
				LIMIT 1
				RETURN u`,
			map[string]any{"guid": in.GUIDMS, "key": SanitizeKey(in.GUIDMS)})
		if err != nil || found {
			return user, err
		}
	}

	if in.Email != "" {
		user, found, err := r.queryUser(ctx, `
			FOR u IN `+graph.ColUsers+`
				FILTER u.email != null AND LOWER(u.email) == LOWER(@email)
				LIMIT 1
				RETURN u`,
			map[string]any{"email": in.Email})
		if err != nil || found {
			return user, err
		}
	}

	if in.DisplayName != "" {
		user, found, err := r.queryUser(ctx, `
			FOR u IN `+graph.ColUsers+`
				LET full = CONCAT_SEPARATOR(' ', u.name, u.last_name)
				FILTER CONTAINS(LOWER(full), LOWER(@name))
					OR CONTAINS(LOWER(u.name), LOWER(@name))
					OR CONTAINS(LOWER(u.last_name), LOWER(@name))
				LIMIT 1
				RETURN u`,
			map[string]any{"name": in.DisplayName})
		if err != nil || found {
			return user, err
		}
	}

	return nil, nil
}

func (r *Resolver) queryUser(ctx context.Context, aql string, bindVars map[string]any) (*models.User, bool, error) {
	var user models.User
	found, err := r.store.QueryOne(ctx, aql, bindVars, &user)
	if err != nil {
		return nil, false, fmt.Errorf("user lookup failed: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	return &user, true, nil
}

func (r *Resolver) resolveExact(ctx context.Context, in Input) (*models.User, error) {
	idOrPrincipal := in.GUIDMS
	if idOrPrincipal == "" {
		idOrPrincipal = in.Email
	}

	du, err := r.directory.Get(ctx, idOrPrincipal)
	if err != nil {
		r.logger.Warn("directory exact lookup failed", "id", idOrPrincipal, "error", err)
		return nil, nil
	}
	if du == nil {
		return nil, nil
	}
	return r.CacheDirectoryUser(ctx, *du, "graph")
}

func (r *Resolver) resolveBySearch(ctx context.Context, in Input) (*models.User, error) {
	raw := in.DisplayName
	if raw == "" {
		raw = in.Email
	}
	name, email, terms := BuildSearchTerms(raw)
	if in.Email != "" {
		email = in.Email
	}
	if terms.Empty() {
		return nil, nil
	}

	candidates, err := r.directory.Search(ctx, terms, r.searchLimit)
	if err != nil {
		r.logger.Warn("directory search failed", "name", name, "error", err)
		return nil, nil
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if email != "" {
		lowered := strings.ToLower(email)
		for _, c := range candidates {
			if strings.ToLower(c.Mail) == lowered || strings.ToLower(c.UserPrincipalName) == lowered {
				return r.CacheDirectoryUser(ctx, c, "graph")
			}
		}
	}

	if name == "" {
		return nil, nil
	}

	best, score := r.bestCandidate(name, candidates)
	if score < MatchThreshold {
		r.logger.Debug("no directory candidate crossed the threshold",
			"name", name, "best_score", score)
		return nil, nil
	}
	return r.CacheDirectoryUser(ctx, *best, "graph")
}

// bestCandidate scores each candidate's name forms against the input
// and returns the highest scorer.
func (r *Resolver) bestCandidate(name string, candidates []DirectoryUser) (*DirectoryUser, float64) {
	target := strings.ToLower(StripAccents(name))

	var best *DirectoryUser
	bestScore := -1.0
	for i := range candidates {
		c := &candidates[i]
		score := 0.0
		for _, form := range []string{
			c.DisplayName,
			strings.TrimSpace(c.GivenName + " " + c.Surname),
			strings.TrimSpace(c.Surname + " " + c.GivenName),
		} {
			if form == "" {
				continue
			}
			s := strutil.Similarity(target, strings.ToLower(StripAccents(form)), r.similarity)
			if s > score {
				score = s
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore
}

// CacheDirectoryUser upserts a directory record into dms_users,
// linking an existing email-only row to its GUID when needed.
func (r *Resolver) CacheDirectoryUser(ctx context.Context, du DirectoryUser, source string) (*models.User, error) {
	if du.ID == "" {
		return nil, fmt.Errorf("directory user carries no id")
	}
	key := SanitizeKey(du.ID)
	if key == "" {
		return nil, fmt.Errorf("directory id %q sanitizes to an empty key", du.ID)
	}

	name := strings.TrimSpace(du.GivenName)
	if name == "" {
		name = strings.TrimSpace(du.DisplayName)
	}
	if name == "" {
		name = "Desconocido"
	}

	now := r.now().Format(time.RFC3339)
	doc := map[string]any{
		"_key":            key,
		"guid_ms":         du.ID,
		"name":            name,
		"last_name":       strings.TrimSpace(du.Surname),
		"email":           nullable(du.Email()),
		"status":          "active",
		"source":          source,
		"job_title":       nullable(du.JobTitle),
		"department":      nullable(du.Department),
		"company_name":    nullable(du.CompanyName),
		"office_location": nullable(du.OfficeLocation),
		"updated_at":      now,
	}

	aql := `
		UPSERT { _key: @key }
			INSERT MERGE(@doc, { created_at: @now })
			UPDATE @doc
		IN ` + graph.ColUsers + `
		RETURN NEW`

	var user models.User
	found, err := r.store.QueryOne(ctx, aql, map[string]any{
		"key": key,
		"doc": doc,
		"now": now,
	}, &user)
	if err != nil {
		return nil, fmt.Errorf("failed to cache user %q: %w", du.ID, err)
	}
	if !found {
		return nil, fmt.Errorf("user upsert for %q returned nothing", du.ID)
	}
	return &user, nil
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
