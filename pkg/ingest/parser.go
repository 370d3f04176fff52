// Package ingest consumes OCR results from the message bus and turns
// them into staged, validated document vertices with their structural
// edges.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
)

// OCRItem is one extracted field from the OCR engine.
type OCRItem struct {
	FieldKey string `json:"fieldKey"`
	Response any    `json:"response"`
}

// ParsedPayload is the typed view of an ocr.document.processed message.
type ParsedPayload struct {
	TaskID         string
	Timestamp      string
	Filename       string
	ProcessingTime float64
	Metadata       []OCRItem
	PresignedURLs  map[string]string

	ContextValues map[string]any
	SchemaID      string
	SchemaName    string

	UserID    string
	UserName  string
	UserEmail string

	RequiredDocID   string
	RequiredDocName string
	RequiredDocCode string
}

type rawPayload struct {
	TaskID       string `json:"task_id"`
	Timestamp    string `json:"timestamp"`
	UserID       string `json:"user_id"`
	DocumentData struct {
		InternalResult struct {
			Filename       string            `json:"filename"`
			ProcessingTime float64           `json:"processing_time"`
			Metadata       []OCRItem         `json:"metadata"`
			PresignedURLs  map[string]string `json:"presigned_urls"`
		} `json:"internal_result"`
		ExternalDocument struct {
			User struct {
				ID    string `json:"id"`
				Name  string `json:"name"`
				Email string `json:"email"`
			} `json:"user"`
			Files []struct {
				MetadataValues map[string]any `json:"metadataValues"`
				MetadataSchema struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"metadataSchema"`
				RequiredDocumentID   string `json:"requiredDocumentId"`
				RequiredDocumentName string `json:"requiredDocumentName"`
				RequiredDocumentCode string `json:"requiredDocumentCode"`
			} `json:"files"`
		} `json:"external_document"`
	} `json:"document_data"`
}

// Parse decodes a message. A missing task_id is fatal; everything else
// degrades to zero values.
func Parse(value []byte) (*ParsedPayload, error) {
	var raw rawPayload
	if err := json.Unmarshal(value, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ocr payload: %w", err)
	}
	if raw.TaskID == "" {
		return nil, fmt.Errorf("ocr payload carries no task_id")
	}

	p := &ParsedPayload{
		TaskID:         raw.TaskID,
		Timestamp:      normalizeTimestamp(raw.Timestamp),
		Filename:       raw.DocumentData.InternalResult.Filename,
		ProcessingTime: raw.DocumentData.InternalResult.ProcessingTime,
		Metadata:       raw.DocumentData.InternalResult.Metadata,
		PresignedURLs:  raw.DocumentData.InternalResult.PresignedURLs,
		UserID:         raw.DocumentData.ExternalDocument.User.ID,
		UserName:       raw.DocumentData.ExternalDocument.User.Name,
		UserEmail:      raw.DocumentData.ExternalDocument.User.Email,
	}
	if p.PresignedURLs == nil {
		p.PresignedURLs = map[string]string{}
	}
	if p.UserID == "" {
		p.UserID = raw.UserID
	}
	if p.UserName == "" {
		p.UserName = "Desconocido"
	}

	if files := raw.DocumentData.ExternalDocument.Files; len(files) > 0 {
		f := files[0]
		p.ContextValues = f.MetadataValues
		p.SchemaID = f.MetadataSchema.ID
		p.SchemaName = f.MetadataSchema.Name
		p.RequiredDocID = f.RequiredDocumentID
		p.RequiredDocName = f.RequiredDocumentName
		p.RequiredDocCode = f.RequiredDocumentCode
	}
	if p.ContextValues == nil {
		p.ContextValues = map[string]any{}
	}
	return p, nil
}

// ContextEntityID returns the organizational entity the message was
// scanned under, if any.
func (p *ParsedPayload) ContextEntityID() string {
	s, _ := p.ContextValues["id"].(string)
	return s
}

// ContextEntityType returns the declared type of the context entity.
func (p *ParsedPayload) ContextEntityType() string {
	s, _ := p.ContextValues["type"].(string)
	return s
}

// ContextEntityName returns the declared name of the context entity.
func (p *ParsedPayload) ContextEntityName() string {
	s, _ := p.ContextValues["name"].(string)
	return s
}

// normalizeTimestamp parses whatever clock format the OCR engine used
// and re-renders it as RFC 3339. Unparseable values pass through.
func normalizeTimestamp(ts string) string {
	if ts == "" {
		return time.Now().Format(time.RFC3339)
	}
	parsed, err := dateparse.ParseAny(ts)
	if err != nil {
		return ts
	}
	return parsed.Format(time.RFC3339)
}
