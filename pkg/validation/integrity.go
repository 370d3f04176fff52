package validation

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/uleam-dti/dms/pkg/models"
)

// SignatureAlgorithm names the manifest MAC on the wire.
const SignatureAlgorithm = "HMAC-SHA256"

// Signer seals confirmed documents with an HMAC over a canonical
// manifest.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner builds a signer for the shared integrity secret.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("integrity secret is required")
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

// WithClock overrides the confirmation clock. Test hook.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Seal builds the signed manifest for a document being confirmed. pdf
// may be nil when no PDF was selected.
func (s *Signer) Seal(docID string, metadata map[string]any, confirmedBy string, keepOriginal bool, selectedPDFPath string, pdf io.Reader) (*models.Integrity, error) {
	metadataHash, err := hashCanonicalJSON(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to hash metadata: %w", err)
	}

	pdfHash := ""
	if pdf != nil {
		pdfHash, err = hashStream(pdf)
		if err != nil {
			return nil, fmt.Errorf("failed to hash pdf: %w", err)
		}
	}

	manifest := models.Manifest{
		DocID:           docID,
		ConfirmedBy:     confirmedBy,
		ConfirmedAt:     s.now().UTC().Format(time.RFC3339),
		KeepOriginal:    keepOriginal,
		SelectedPDFPath: selectedPDFPath,
		Hashes: models.ManifestHashes{
			ValidatedMetadataSHA256: metadataHash,
			PDFSHA256:               pdfHash,
		},
		SignatureAlgorithm: SignatureAlgorithm,
	}

	signature, err := s.sign(manifest)
	if err != nil {
		return nil, err
	}

	return &models.Integrity{
		Manifest:          manifest,
		ManifestSignature: signature,
	}, nil
}

// VerifyResult reports which pieces of a sealed document still match.
type VerifyResult struct {
	SignatureValid    bool `json:"signature_valid"`
	MetadataHashValid bool `json:"metadata_hash_valid"`
	PDFHashValid      bool `json:"pdf_hash_valid"`
	IsValid           bool `json:"is_valid"`
}

// Verify recomputes the hashes and the MAC against the current state of
// the document.
func (s *Signer) Verify(integrity *models.Integrity, metadata map[string]any, pdf io.Reader) (*VerifyResult, error) {
	if integrity == nil {
		return nil, fmt.Errorf("document carries no integrity manifest")
	}

	res := &VerifyResult{}

	signature, err := s.sign(integrity.Manifest)
	if err != nil {
		return nil, err
	}
	res.SignatureValid = hmac.Equal([]byte(signature), []byte(integrity.ManifestSignature))

	metadataHash, err := hashCanonicalJSON(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to hash metadata: %w", err)
	}
	res.MetadataHashValid = metadataHash == integrity.Manifest.Hashes.ValidatedMetadataSHA256

	if pdf != nil {
		pdfHash, err := hashStream(pdf)
		if err != nil {
			return nil, fmt.Errorf("failed to hash pdf: %w", err)
		}
		res.PDFHashValid = pdfHash == integrity.Manifest.Hashes.PDFSHA256
	} else {
		res.PDFHashValid = integrity.Manifest.Hashes.PDFSHA256 == ""
	}

	res.IsValid = res.SignatureValid && res.MetadataHashValid && res.PDFHashValid
	return res, nil
}

func (s *Signer) sign(manifest models.Manifest) (string, error) {
	canonical, err := canonicalJSON(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize manifest: %w", err)
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// canonicalJSON renders a value as compact JSON with sorted object
// keys and raw UTF-8. Structs are passed through a map so their field
// order never leaks into the bytes.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func hashCanonicalJSON(v any) (string, error) {
	canonical, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func hashStream(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
