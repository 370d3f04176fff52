package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/uleam-dti/dms/pkg/identity"
	"github.com/uleam-dti/dms/pkg/models"
)

// EntityStore is the graph surface entity assurance reads.
type EntityStore interface {
	VertexExists(ctx context.Context, collection, key string) (bool, error)
	ReadVertex(ctx context.Context, collection, key string, out any) (bool, error)
}

// Users is the identity surface entity assurance delegates person
// handling to.
type Users interface {
	Resolve(ctx context.Context, in identity.Input) (*models.User, error)
	CreateUser(ctx context.Context, displayName, email string) (string, error)
}

// EntityEnsurer verifies every entity reference in proposed metadata
// before a confirmation is persisted. Users may be created on the fly;
// structural entities must already exist.
type EntityEnsurer struct {
	store  EntityStore
	users  Users
	logger hclog.Logger
}

// NewEntityEnsurer builds the assurance step.
func NewEntityEnsurer(store EntityStore, users Users, logger hclog.Logger) *EntityEnsurer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &EntityEnsurer{store: store, users: users, logger: logger.Named("entities")}
}

// EnsureExist walks the metadata and mutates user references in place
// to their resolved graph identities. Structural references that do not
// exist make the whole call fail.
func (e *EntityEnsurer) EnsureExist(ctx context.Context, metadata map[string]any, schema *models.MetaSchema) error {
	typeByKey := map[string]string{}
	if schema != nil {
		for _, f := range schema.Fields {
			typeByKey[f.FieldKey] = f.EntityTypeKey()
		}
	}

	for key, item := range metadata {
		expectedType := typeByKey[key]

		m, isMap := item.(map[string]any)
		if !isMap {
			// A bare string on a user-typed field resolves (or creates) a
			// person.
			s, isString := item.(string)
			if !models.IsUserType(expectedType) || !isString || strings.TrimSpace(s) == "" {
				continue
			}
			userRef, err := e.ensureUser(ctx, map[string]any{"display_name": strings.TrimSpace(s)})
			if err != nil {
				return fmt.Errorf("field %q: %w", key, err)
			}
			metadata[key] = userRef
			continue
		}

		// Wrapped values point at the inner object; both views share it.
		target := m
		if inner, ok := m["value"].(map[string]any); ok {
			target = inner
		}

		entityID, _ := target["id"].(string)
		name, _ := target["name"].(string)
		if name == "" {
			name, _ = target["display_name"].(string)
		}
		typeStr, _ := target["type"].(string)
		if typeStr == "" {
			typeStr = expectedType
		}

		if models.IsUserType(typeStr) || models.LooksLikeUserPayload(target) {
			if entityID != "" {
				exists, err := e.store.VertexExists(ctx, models.CollectionForType("user"), entityID)
				if err != nil {
					return fmt.Errorf("field %q: %w", key, err)
				}
				if exists {
					continue
				}
				e.logger.Warn("user reference not found, re-resolving", "field", key, "id", entityID)
			}

			userRef, err := e.ensureUser(ctx, target)
			if err != nil {
				return fmt.Errorf("field %q: %w", key, err)
			}
			for k := range target {
				delete(target, k)
			}
			for k, v := range userRef {
				target[k] = v
			}
			continue
		}

		collection := models.CollectionForType(typeStr)
		if collection == "" {
			collection = models.CollectionForType("entity")
		}

		if entityID == "" {
			return fmt.Errorf("el campo %q requiere una entidad existente (id obligatorio)", key)
		}

		var entity models.Entity
		found, err := e.store.ReadVertex(ctx, collection, entityID, &entity)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		if !found {
			return fmt.Errorf("la entidad %q del campo %q no existe en %q", entityID, key, collection)
		}
		if entity.CodeNumeric != nil {
			target["code_numeric"] = entity.CodeNumeric
		}
	}

	return nil
}

// ensureUser resolves a person payload against the identity resolver,
// creating a manual user vertex when nobody matches.
func (e *EntityEnsurer) ensureUser(ctx context.Context, payload map[string]any) (map[string]any, error) {
	display, _ := payload["display_name"].(string)
	if display == "" {
		fn, _ := payload["first_name"].(string)
		ln, _ := payload["last_name"].(string)
		display = strings.TrimSpace(strings.TrimSpace(fn) + " " + strings.TrimSpace(ln))
	}
	email, _ := payload["email"].(string)
	guid, _ := payload["guid_ms"].(string)

	user, err := e.users.Resolve(ctx, identity.Input{
		DisplayName: display,
		Email:       email,
		GUIDMS:      guid,
	})
	if err != nil {
		e.logger.Warn("user resolution failed", "name", display, "error", err)
	}
	if user != nil {
		ref := map[string]any{
			"id":           user.Key,
			"type":         "user",
			"display_name": user.DisplayName(),
		}
		if user.Email != "" {
			ref["email"] = user.Email
		}
		return ref, nil
	}

	if display == "" {
		return nil, fmt.Errorf("la persona no tiene nombre resoluble")
	}

	key, err := e.users.CreateUser(ctx, display, email)
	if err != nil {
		return nil, err
	}
	e.logger.Info("created user during confirmation", "key", key, "name", display)
	return map[string]any{
		"id":           key,
		"type":         "user",
		"display_name": display,
	}, nil
}
