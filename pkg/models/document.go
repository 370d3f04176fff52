package models

// Document statuses. A document enters the graph as StatusValidated or
// StatusAttentionRequired and can only leave either state through owner
// confirmation, which is terminal.
const (
	StatusValidated         = "validated"
	StatusAttentionRequired = "attention_required"
	StatusConfirmed         = "confirmed"
)

// Owner is the snapshot of the uploading user captured at ingest time.
type Owner struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Naming holds the hierarchical names derived from the organizational
// graph at ingest time.
type Naming struct {
	DisplayName          string `json:"display_name"`
	NameCode             string `json:"name_code"`
	NameCodeNumeric      string `json:"name_code_numeric"`
	NamePath             string `json:"name_path"`
	CodePath             string `json:"code_path"`
	CodeNumericPath      string `json:"code_numeric_path"`
	TimestampTag         string `json:"timestamp_tag"`
	RequiredDocumentCode string `json:"required_document_code,omitempty"`
}

// Storage records where the document's artifacts live inside the
// bucket. Paths carry the "<bucket>/<object>" form. Empty strings mean
// the artifact was never transferred.
type Storage struct {
	Bucket          string `json:"bucket"`
	PDFPath         string `json:"pdf_path,omitempty"`
	JSONPath        string `json:"json_path,omitempty"`
	TextPath        string `json:"text_path,omitempty"`
	PDFOriginalPath string `json:"pdf_original_path,omitempty"`

	// Set by archive promotion.
	ArchivePrefix string `json:"archive_prefix,omitempty"`
	StorageTier   string `json:"storage_tier,omitempty"`

	// Set when the owner keeps the original PDF as the authoritative
	// copy at confirmation.
	PrimarySource          string `json:"primary_source,omitempty"`
	PDFAConversionRequired bool   `json:"pdfa_conversion_required,omitempty"`
	PDFAConversionStatus   string `json:"pdfa_conversion_status,omitempty"`
}

// ContextSnapshot preserves the entity/schema/required-document names as
// they were when the message arrived, independent of later graph edits.
type ContextSnapshot struct {
	EntityID        string `json:"entity_id"`
	EntityName      string `json:"entity_name"`
	SchemaID        string `json:"schema_id"`
	SchemaName      string `json:"schema_name"`
	RequiredDocID   string `json:"required_doc_id"`
	RequiredDocName string `json:"required_doc_name"`
	RequiredDocCode string `json:"required_doc_code"`
}

// Integrity is the HMAC-signed manifest locking a confirmed document.
type Integrity struct {
	Manifest          Manifest `json:"manifest"`
	ManifestSignature string   `json:"manifest_signature"`
}

// Manifest is canonicalized (sorted keys, compact separators) before
// hashing and signing; field order here does not matter on the wire.
type Manifest struct {
	DocID              string         `json:"doc_id"`
	ConfirmedBy        string         `json:"confirmed_by"`
	ConfirmedAt        string         `json:"confirmed_at"`
	KeepOriginal       bool           `json:"keep_original"`
	SelectedPDFPath    string         `json:"selected_pdf_path"`
	Hashes             ManifestHashes `json:"hashes"`
	SignatureAlgorithm string         `json:"signature_algorithm"`
}

type ManifestHashes struct {
	ValidatedMetadataSHA256 string `json:"validated_metadata_sha256"`
	PDFSHA256               string `json:"pdf_sha256"`
}

// Document is the central artifact vertex. Keyed by the upstream OCR
// task id.
type Document struct {
	Key               string          `json:"_key"`
	Owner             Owner           `json:"owner"`
	Status            string          `json:"status"`
	OriginalFilename  string          `json:"original_filename"`
	ProcessingTime    float64         `json:"processing_time,omitempty"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
	ConfirmedAt       string          `json:"confirmed_at,omitempty"`
	ConfirmedBy       string          `json:"confirmed_by,omitempty"`
	IsPublic          bool            `json:"is_public"`
	KeepOriginal      bool            `json:"keep_original"`
	IsLocked          bool            `json:"is_locked"`
	DisplayName       string          `json:"display_name,omitempty"`
	SnapContextName   string          `json:"snap_context_name,omitempty"`
	Naming            Naming          `json:"naming"`
	Storage           Storage         `json:"storage"`
	ValidatedMetadata map[string]any  `json:"validated_metadata"`
	IntegrityWarnings []string        `json:"integrity_warnings"`
	ContextSnapshot   ContextSnapshot `json:"context_snapshot"`
	Integrity         *Integrity      `json:"integrity,omitempty"`
}
