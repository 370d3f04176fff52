package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner("test-secret")
	require.NoError(t, err)
	return s.WithClock(func() time.Time {
		return time.Date(2026, 2, 16, 22, 29, 8, 0, time.UTC)
	})
}

func TestSealAndVerify(t *testing.T) {
	s := testSigner(t)
	metadata := map[string]any{
		"career": map[string]any{"id": "e9", "name": "Software", "value": "Software"},
		"period": map[string]any{"value": "2026-1"},
	}

	integrity, err := s.Seal("doc1", metadata, "u1", false,
		"documents-storage/archive/x/principal.pdf", strings.NewReader("%PDF-1.7 fake"))
	require.NoError(t, err)

	assert.Equal(t, "doc1", integrity.Manifest.DocID)
	assert.Equal(t, "u1", integrity.Manifest.ConfirmedBy)
	assert.Equal(t, SignatureAlgorithm, integrity.Manifest.SignatureAlgorithm)
	assert.Len(t, integrity.Manifest.Hashes.ValidatedMetadataSHA256, 64)
	assert.Len(t, integrity.Manifest.Hashes.PDFSHA256, 64)
	assert.Len(t, integrity.ManifestSignature, 64)

	res, err := s.Verify(integrity, metadata, strings.NewReader("%PDF-1.7 fake"))
	require.NoError(t, err)
	assert.True(t, res.SignatureValid)
	assert.True(t, res.MetadataHashValid)
	assert.True(t, res.PDFHashValid)
	assert.True(t, res.IsValid)
}

func TestVerifyDetectsTampering(t *testing.T) {
	s := testSigner(t)
	metadata := map[string]any{"period": map[string]any{"value": "2026-1"}}

	integrity, err := s.Seal("doc1", metadata, "u1", false, "p.pdf", strings.NewReader("original"))
	require.NoError(t, err)

	// Metadata changed after sealing.
	res, err := s.Verify(integrity, map[string]any{"period": map[string]any{"value": "2026-2"}},
		strings.NewReader("original"))
	require.NoError(t, err)
	assert.True(t, res.SignatureValid)
	assert.False(t, res.MetadataHashValid)
	assert.False(t, res.IsValid)

	// PDF swapped.
	res, err = s.Verify(integrity, metadata, strings.NewReader("tampered"))
	require.NoError(t, err)
	assert.False(t, res.PDFHashValid)
	assert.False(t, res.IsValid)

	// Signature forged.
	integrity.ManifestSignature = strings.Repeat("0", 64)
	res, err = s.Verify(integrity, metadata, strings.NewReader("original"))
	require.NoError(t, err)
	assert.False(t, res.SignatureValid)
}

func TestCanonicalJSONIsKeyOrderIndependent(t *testing.T) {
	a, err := canonicalJSON(map[string]any{"b": 1, "a": map[string]any{"z": true, "y": "ñandú"}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":"ñandú","z":true},"b":1}`, string(a))
}

func TestSealWithoutPDF(t *testing.T) {
	s := testSigner(t)

	integrity, err := s.Seal("doc1", map[string]any{}, "u1", false, "", nil)
	require.NoError(t, err)
	assert.Empty(t, integrity.Manifest.Hashes.PDFSHA256)

	res, err := s.Verify(integrity, map[string]any{}, nil)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
}
