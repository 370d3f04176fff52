package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/uleam-dti/dms/pkg/graph"
	"github.com/uleam-dti/dms/pkg/models"
)

// ActionCreateUser is the only action the quality check may propose.
// Structural entities are never created from metadata.
const ActionCreateUser = "CREATE_USER"

var emailFieldRe = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

// FieldReport is the dry-run verdict for one schema field.
type FieldReport struct {
	FieldKey string   `json:"field_key"`
	Label    string   `json:"label"`
	IsValid  bool     `json:"is_valid"`
	Weight   int      `json:"weight"`
	Warnings []string `json:"warnings"`
	Actions  []string `json:"actions"`
}

// QualityReport is the full dry-run result.
type QualityReport struct {
	Score           float64       `json:"score"`
	IsReady         bool          `json:"is_ready"`
	FieldsReport    []FieldReport `json:"fields_report"`
	SummaryWarnings []string      `json:"summary_warnings"`
}

// QualityStore is the graph surface the checker reads.
type QualityStore interface {
	QueryOne(ctx context.Context, aql string, bindVars map[string]any, out any) (bool, error)
	VertexExists(ctx context.Context, collection, key string) (bool, error)
}

// QualityChecker simulates a confirmation without writing anything.
type QualityChecker struct {
	store  QualityStore
	logger hclog.Logger
}

// NewQualityChecker builds the dry-run validator.
func NewQualityChecker(store QualityStore, logger hclog.Logger) *QualityChecker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &QualityChecker{store: store, logger: logger.Named("quality")}
}

// Check scores the proposed metadata against the document's schema.
// Required fields weigh double. A document without a schema is trivially
// ready.
func (q *QualityChecker) Check(ctx context.Context, docID string, metadata map[string]any) (*QualityReport, error) {
	schema, err := SchemaForDocument(ctx, q.store, docID)
	if err != nil {
		return nil, err
	}
	if schema == nil || len(schema.Fields) == 0 {
		return &QualityReport{
			Score:           100,
			IsReady:         true,
			FieldsReport:    []FieldReport{},
			SummaryWarnings: []string{"Sin esquema definido"},
		}, nil
	}

	report := &QualityReport{FieldsReport: []FieldReport{}, SummaryWarnings: []string{}}
	total, earned := 0, 0

	for _, field := range schema.Fields {
		fr := FieldReport{
			FieldKey: field.FieldKey,
			Label:    field.Label,
			IsValid:  true,
			Weight:   1,
			Warnings: []string{},
			Actions:  []string{},
		}
		if field.IsRequired {
			fr.Weight = 2
		}
		total += fr.Weight

		value := unwrap(metadata[field.FieldKey])
		if isEmptyValue(value) {
			if field.IsRequired {
				fr.IsValid = false
				fr.Warnings = append(fr.Warnings, "Campo obligatorio vacío.")
			}
		} else {
			q.checkDataType(ctx, field, value, &fr)
		}

		if fr.IsValid {
			earned += fr.Weight
		} else {
			report.SummaryWarnings = append(report.SummaryWarnings,
				fmt.Sprintf("%s: %s", fr.Label, strings.Join(fr.Warnings, " ")))
		}
		report.FieldsReport = append(report.FieldsReport, fr)
	}

	if total > 0 {
		report.Score = 100 * float64(earned) / float64(total)
	} else {
		report.Score = 100
	}
	report.IsReady = earned == total
	return report, nil
}

func (q *QualityChecker) checkDataType(ctx context.Context, field models.SchemaField, value any, fr *FieldReport) {
	switch strings.ToLower(field.DataType) {
	case "email":
		s := fmt.Sprintf("%v", value)
		if !emailFieldRe.MatchString(s) {
			fr.IsValid = false
			fr.Warnings = append(fr.Warnings, "Formato de email inválido.")
		}

	case "date":
		s := fmt.Sprintf("%v", value)
		if _, err := time.Parse("2006-01-02", s); err != nil {
			fr.IsValid = false
			fr.Warnings = append(fr.Warnings, "Formato de fecha inválido (YYYY-MM-DD).")
		}

	case "json":
		obj, isObject := value.(map[string]any)
		if !isObject {
			if field.EntityTypeKey() != "" {
				fr.IsValid = false
				fr.Warnings = append(fr.Warnings, "El campo requiere una estructura de entidad, no texto plano.")
			}
			return
		}
		q.checkEntityObject(ctx, obj, field.EntityTypeKey(), fr)
	}
}

// checkEntityObject verifies a referenced entity or user. Missing users
// produce a CREATE_USER action; missing structural entities are plain
// failures.
func (q *QualityChecker) checkEntityObject(ctx context.Context, value map[string]any, entityType string, fr *FieldReport) {
	id, _ := value["id"].(string)
	name, _ := value["name"].(string)
	if name == "" {
		name, _ = value["display_name"].(string)
	}

	collection := models.CollectionForType(entityType)
	isUser := models.IsUserType(entityType)

	if name == "" && id == "" {
		fr.IsValid = false
		fr.Warnings = append(fr.Warnings, "El objeto no tiene nombre ni id.")
		return
	}

	if id != "" {
		if collection == "" {
			return
		}
		exists, err := q.store.VertexExists(ctx, collection, id)
		if err != nil {
			q.logger.Warn("existence check failed", "collection", collection, "id", id, "error", err)
			return
		}
		if !exists {
			fr.IsValid = false
			if isUser {
				fr.Warnings = append(fr.Warnings, "Usuario nuevo. Se creará registro al guardar.")
				fr.Actions = append(fr.Actions, ActionCreateUser)
			} else {
				fr.Warnings = append(fr.Warnings, "ID de entidad no encontrado en base de datos local.")
			}
		}
		return
	}

	if !isUser {
		fr.IsValid = false
		fr.Warnings = append(fr.Warnings,
			fmt.Sprintf("Entidad institucional '%s' sin id. Debe existir previamente.", name))
		return
	}

	fr.Warnings = append(fr.Warnings, fmt.Sprintf("Nuevo usuario detectado: '%s'.", name))
	fr.Actions = append(fr.Actions, ActionCreateUser)
}

// SchemaForDocument resolves the schema linked to a document over the
// usa_esquema edge. Nil when the document has no schema.
func SchemaForDocument(ctx context.Context, store QualityStore, docID string) (*models.MetaSchema, error) {
	var schema models.MetaSchema
	found, err := store.QueryOne(ctx, `
		FOR doc IN `+graph.ColDocuments+`
			FILTER doc._key == @doc_id
			FOR schema IN 1..1 OUTBOUND doc `+graph.EdgeUsaEsquema+`
				LIMIT 1
				RETURN schema`,
		map[string]any{"doc_id": docID}, &schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema for %q: %w", docID, err)
	}
	if !found {
		return nil, nil
	}
	return &schema, nil
}

// unwrap peels a {value: x, ...} wrapper one level.
func unwrap(v any) any {
	if m, ok := v.(map[string]any); ok {
		if inner, has := m["value"]; has {
			if _, nested := inner.(map[string]any); nested {
				return inner
			}
			// Clean objects keep their own shape when the wrapper is the
			// object itself.
			if len(m) > 1 {
				if _, hasID := m["id"]; hasID {
					return m
				}
			}
			return inner
		}
	}
	return v
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	if m, ok := v.(map[string]any); ok {
		return len(m) == 0
	}
	return false
}
