package auth

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Well-known permission names the service checks.
const (
	PermDocumentRead    = "dms.document.read"
	PermWorkflowApprove = "dms.workflow.approve"
	PermWorkflowReject  = "dms.workflow.reject"
)

// ScopesFor resolves which team scopes grant the permission. "*" means
// a global grant. The permission KV is the source of truth; when it is
// unreachable the session's in-memory grants serve as fallback.
func (a *Authenticator) ScopesFor(ctx context.Context, permission string, c *Context) ([]string, error) {
	scopes, err := a.scopesFromKV(ctx, permission, c)
	if err == nil {
		return scopes, nil
	}
	a.logger.Warn("permission store unreachable, using session grants",
		"permission", permission, "error", err)
	return a.scopesFromSession(permission, c), nil
}

// scopesFromKV checks the global key first, then set membership per
// team in one pipelined batch. The global key carries no team suffix.
func (a *Authenticator) scopesFromKV(ctx context.Context, permission string, c *Context) ([]string, error) {
	base := fmt.Sprintf("%sperm:%s:%s:%s", a.prefix, c.TenantID, a.msID, c.UserID)

	isGlobal, err := a.rdb.SIsMember(ctx, base, permission).Result()
	if err != nil {
		return nil, err
	}
	if isGlobal {
		return []string{"*"}, nil
	}

	if len(c.TeamIDs) == 0 {
		return []string{}, nil
	}

	pipe := a.rdb.Pipeline()
	cmds := make([]*redis.BoolCmd, len(c.TeamIDs))
	for i, team := range c.TeamIDs {
		key := base
		if team != "global" {
			key = base + ":" + team
		}
		cmds[i] = pipe.SIsMember(ctx, key, permission)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	var allowed []string
	for i, cmd := range cmds {
		ok, err := cmd.Result()
		if err != nil {
			return nil, err
		}
		if ok {
			allowed = append(allowed, c.TeamIDs[i])
		}
	}
	if allowed == nil {
		allowed = []string{}
	}
	return allowed, nil
}

// scopesFromSession consults the grants carried inside the session
// payload. A top-level permission is a global grant.
func (a *Authenticator) scopesFromSession(permission string, c *Context) []string {
	grants, ok := c.Microservices.ByID[a.msID]
	if !ok {
		return []string{}
	}

	for _, p := range grants.Permissions {
		if p == permission {
			return []string{"*"}
		}
	}

	var allowed []string
	for team, data := range grants.Teams {
		for _, p := range data.Permissions {
			if p == permission {
				allowed = append(allowed, team)
				break
			}
		}
	}
	if allowed == nil {
		allowed = []string{}
	}
	return allowed
}
