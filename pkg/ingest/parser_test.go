package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
	"task_id": "task-001",
	"timestamp": "2026-02-16 10:30:00",
	"user_id": "fallback-user",
	"document_data": {
		"internal_result": {
			"filename": "practicas.pdf",
			"processing_time": 12.5,
			"metadata": [
				{"fieldKey": "career", "response": "Ingeniería de Software"},
				{"fieldKey": "academic_period", "response": "2026-1"}
			],
			"presigned_urls": {
				"minio_pdfa": "http://minio:9000/a.pdf",
				"minio_text": "http://minio:9000/a.txt"
			}
		},
		"external_document": {
			"user": {"id": "u42", "name": "Carla Mera", "email": "cmera@uleam.edu.ec"},
			"files": [{
				"metadataValues": {"id": "e9", "name": "Ingeniería de Software", "type": "carrera"},
				"metadataSchema": {"id": "sch1", "name": "Prácticas"},
				"requiredDocumentId": "rd1",
				"requiredDocumentName": "Plan de Prácticas",
				"requiredDocumentCode": "PAP-01-002"
			}]
		}
	}
}`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(samplePayload))
	require.NoError(t, err)

	assert.Equal(t, "task-001", p.TaskID)
	assert.Equal(t, "practicas.pdf", p.Filename)
	assert.Equal(t, 12.5, p.ProcessingTime)
	require.Len(t, p.Metadata, 2)
	assert.Equal(t, "career", p.Metadata[0].FieldKey)

	assert.Equal(t, "u42", p.UserID)
	assert.Equal(t, "Carla Mera", p.UserName)

	assert.Equal(t, "e9", p.ContextEntityID())
	assert.Equal(t, "carrera", p.ContextEntityType())
	assert.Equal(t, "sch1", p.SchemaID)
	assert.Equal(t, "PAP-01-002", p.RequiredDocCode)

	// Timestamp is normalized to RFC 3339.
	assert.Contains(t, p.Timestamp, "2026-02-16T10:30:00")
}

func TestParseMissingTaskID(t *testing.T) {
	_, err := Parse([]byte(`{"timestamp": "2026-01-01"}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseFallbacks(t *testing.T) {
	p, err := Parse([]byte(`{"task_id": "t1", "user_id": "u-fallback"}`))
	require.NoError(t, err)

	assert.Equal(t, "u-fallback", p.UserID)
	assert.Equal(t, "Desconocido", p.UserName)
	assert.Empty(t, p.ContextEntityID())
	assert.NotEmpty(t, p.Timestamp)
	assert.NotNil(t, p.PresignedURLs)
}
