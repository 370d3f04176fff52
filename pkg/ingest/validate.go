package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/uleam-dti/dms/pkg/graph"
	"github.com/uleam-dti/dms/pkg/identity"
	"github.com/uleam-dti/dms/pkg/models"
)

// EntityMatchMinScore is the BM25 floor below which a view hit is
// rejected.
const EntityMatchMinScore = 0.15

var academicPeriodRe = regexp.MustCompile(`\b20\d{2}-[12]\b`)

// GraphStore is the graph surface the validator reads from.
type GraphStore interface {
	QueryOne(ctx context.Context, aql string, bindVars map[string]any, out any) (bool, error)
}

// UserResolver finds people referenced by OCR fields.
type UserResolver interface {
	Resolve(ctx context.Context, in identity.Input) (*models.User, error)
}

// Validator checks extracted OCR fields against the document's schema.
type Validator struct {
	store  GraphStore
	users  UserResolver
	logger hclog.Logger
}

// NewValidator builds the strict OCR validation step.
func NewValidator(store GraphStore, users UserResolver, logger hclog.Logger) *Validator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Validator{store: store, users: users, logger: logger.Named("ocr-validate")}
}

// Validate classifies every OCR item per its schema field and returns
// the wrapped metadata map plus the integrity warnings. Fields without
// a schema definition are dropped.
func (v *Validator) Validate(ctx context.Context, schemaID string, items []OCRItem) (map[string]any, []string) {
	out := make(map[string]any, len(items))
	var warnings []string

	schema := v.loadSchema(ctx, schemaID)
	if schema == nil || len(schema.Fields) == 0 {
		warnings = append(warnings, "No se encontró definición de esquema.")
		return out, warnings
	}

	for _, item := range items {
		field, ok := schema.FieldByKey(item.FieldKey)
		if !ok {
			continue
		}
		label := field.Label
		if label == "" {
			label = field.FieldKey
		}

		switch {
		case field.IsUserField():
			value, valid := v.validateUser(ctx, item.Response)
			out[item.FieldKey] = value
			if !valid {
				warnings = append(warnings, fmt.Sprintf("Campo '%s' no coincide con registros.", label))
			}

		case field.IsEntityField():
			value, valid := v.validateEntity(ctx, item.Response, field.EntityTypeKey())
			out[item.FieldKey] = value
			if !valid {
				warnings = append(warnings, fmt.Sprintf("Campo '%s' no coincide con registros.", label))
			}

		case item.FieldKey == "academic_period":
			out[item.FieldKey] = v.validateAcademicPeriod(item.Response)

		default:
			out[item.FieldKey] = validateText(item.Response)
		}
	}

	return out, warnings
}

func (v *Validator) loadSchema(ctx context.Context, schemaID string) *models.MetaSchema {
	if schemaID == "" {
		return nil
	}
	var schema models.MetaSchema
	found, err := v.store.QueryOne(ctx, `
		FOR s IN `+graph.ColMetaSchemas+`
			FILTER s._key == @key
			LIMIT 1
			RETURN s`,
		map[string]any{"key": schemaID}, &schema)
	if err != nil {
		v.logger.Warn("failed to load schema", "schema_id", schemaID, "error", err)
		return nil
	}
	if !found {
		return nil
	}
	return &schema
}

// validateEntity resolves an OCR string against the entity search view.
type entityHit struct {
	Doc   models.Entity `json:"doc"`
	Score float64       `json:"score"`
}

func (v *Validator) validateEntity(ctx context.Context, raw any, entityType string) (map[string]any, bool) {
	text := strings.TrimSpace(fmt.Sprintf("%v", raw))
	if raw == nil || len(text) < 3 {
		return invalidWrapper(raw, "No se encontró la entidad en el sistema."), false
	}

	var typeFilter any
	if entityType != "" {
		typeFilter = entityType
	}

	var hit entityHit
	found, err := v.store.QueryOne(ctx, `
		FOR e IN `+graph.ViewEntitiesSearch+`
			SEARCH ANALYZER(e.name IN TOKENS(@text, 'text_es'), 'text_es') OR e.code == @text
			FILTER @type == null OR e.type == @type
			SORT BM25(e) DESC
			LIMIT 1
			RETURN { doc: e, score: BM25(e) }`,
		map[string]any{"text": text, "type": typeFilter}, &hit)
	if err != nil {
		v.logger.Warn("entity search failed", "text", text, "error", err)
		return invalidWrapper(raw, "No se encontró la entidad en el sistema."), false
	}
	if !found || hit.Score < EntityMatchMinScore {
		return invalidWrapper(raw, "No se encontró la entidad en el sistema."), false
	}

	return map[string]any{
		"value": map[string]any{
			"id":   hit.Doc.Key,
			"name": hit.Doc.Name,
			"code": hit.Doc.Code,
		},
		"is_valid": true,
		"source":   models.SourceDatabaseMatch,
	}, true
}

func (v *Validator) validateUser(ctx context.Context, raw any) (map[string]any, bool) {
	text := strings.TrimSpace(fmt.Sprintf("%v", raw))
	if raw == nil || text == "" || v.users == nil {
		return invalidWrapper(raw, "No se encontró la persona en usuarios ni en el directorio."), false
	}

	name, email, _ := identity.BuildSearchTerms(text)
	user, err := v.users.Resolve(ctx, identity.Input{DisplayName: name, Email: email})
	if err != nil {
		v.logger.Warn("user resolution failed", "text", text, "error", err)
	}
	if user == nil {
		return invalidWrapper(raw, "No se encontró la persona en usuarios ni en el directorio."), false
	}

	return map[string]any{
		"value": map[string]any{
			"id":        user.Key,
			"name":      strings.TrimSpace(user.Name),
			"last_name": strings.TrimSpace(user.LastName),
			"email":     user.Email,
		},
		"is_valid": true,
		"source":   models.SourceGraphUser,
	}, true
}

func (v *Validator) validateAcademicPeriod(raw any) map[string]any {
	if raw != nil && academicPeriodRe.MatchString(fmt.Sprintf("%v", raw)) {
		return map[string]any{
			"value":    raw,
			"is_valid": true,
			"source":   models.SourceRegexMatch,
		}
	}
	return invalidWrapper(raw, "Formato inválido (Ej: 2025-1)")
}

func validateText(raw any) map[string]any {
	if raw != nil && len(fmt.Sprintf("%v", raw)) > 100 {
		return invalidWrapper(raw, "Texto demasiado largo.")
	}
	return map[string]any{
		"value":    raw,
		"is_valid": true,
		"source":   models.SourceOCRRaw,
	}
}

func invalidWrapper(raw any, message string) map[string]any {
	return map[string]any{
		"value":    raw,
		"is_valid": false,
		"message":  message,
		"source":   models.SourceOCRRaw,
	}
}
