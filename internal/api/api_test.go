package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uleam-dti/dms/internal/auth"
	"github.com/uleam-dti/dms/pkg/models"
	"github.com/uleam-dti/dms/pkg/search"
	"github.com/uleam-dti/dms/pkg/validation"
)

type fakeAuth struct {
	caller  *auth.Context
	authErr error
	scopes  map[string][]string
}

func (f *fakeAuth) Authenticate(_ context.Context, _ string) (*auth.Context, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.caller, nil
}

func (f *fakeAuth) ScopesFor(_ context.Context, permission string, _ *auth.Context) ([]string, error) {
	return f.scopes[permission], nil
}

type fakeSearcher struct {
	lastParams search.Params
	result     *search.Result
	doc        *search.DocumentHit
	entities   []search.EntityRef
}

func (f *fakeSearcher) Search(_ context.Context, p search.Params) (*search.Result, error) {
	f.lastParams = p
	if f.result != nil {
		return f.result, nil
	}
	return &search.Result{
		Data:       []search.DocumentHit{},
		Pagination: search.Pagination{CurrentPage: p.Page, LastPage: 1, PerPage: p.Limit},
	}, nil
}

func (f *fakeSearcher) GetDocument(_ context.Context, docID string) (*search.DocumentHit, error) {
	if f.doc != nil && f.doc.Key == docID {
		return f.doc, nil
	}
	return nil, nil
}

func (f *fakeSearcher) AvailableEntities(_ context.Context) ([]search.EntityRef, error) {
	return f.entities, nil
}

type fakeFetcher struct {
	download *search.Download
	err      error

	gotPath  string
	gotTeams []string
}

func (f *fakeFetcher) Fetch(_ context.Context, objectPath, _, _ string, readTeams []string) (*search.Download, error) {
	f.gotPath = objectPath
	f.gotTeams = readTeams
	if f.err != nil {
		return nil, f.err
	}
	return f.download, nil
}

type fakeValidator struct {
	report     *validation.QualityReport
	confirmErr error
	confirmed  *models.Document
	verify     *validation.VerifyResult
	verifyErr  error
}

func (f *fakeValidator) QualityCheck(_ context.Context, _ string, _ map[string]any) (*validation.QualityReport, error) {
	if f.report == nil {
		return nil, validation.ErrNotFound
	}
	return f.report, nil
}

func (f *fakeValidator) Confirm(_ context.Context, _, _ string, _ validation.ConfirmRequest) (*models.Document, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return f.confirmed, nil
}

func (f *fakeValidator) VerifyIntegrity(_ context.Context, _, _ string) (*validation.VerifyResult, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verify, nil
}

type fakeGraphStore struct {
	teamEntities []search.TeamEntity
	faculties    []map[string]any
}

func (f *fakeGraphStore) Query(_ context.Context, aql string, _ map[string]any, out any) error {
	var src any
	switch {
	case strings.Contains(aql, "@criteria"):
		src = f.teamEntities
	default:
		src = f.faculties
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeGraphStore) QueryOne(_ context.Context, _ string, _ map[string]any, _ any) (bool, error) {
	return false, nil
}

type testHarness struct {
	auth      *fakeAuth
	searcher  *fakeSearcher
	fetcher   *fakeFetcher
	validator *fakeValidator
	store     *fakeGraphStore
	handler   http.Handler
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		auth: &fakeAuth{
			caller: &auth.Context{UserID: "u1", TenantID: "tenant-1", TeamIDs: []string{"CARR:213"}},
			scopes: map[string][]string{},
		},
		searcher:  &fakeSearcher{},
		fetcher:   &fakeFetcher{},
		validator: &fakeValidator{},
		store:     &fakeGraphStore{},
	}
	h.handler = New(Config{
		Auth:      h.auth,
		Search:    h.searcher,
		Fetcher:   h.fetcher,
		Validator: h.validator,
		Store:     h.store,
	}).Router()
	return h
}

func (h *testHarness) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Authorization", "Bearer token-1")
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestMissingBearerToken(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, false, body["success"])
}

func TestInvalidTokenRejected(t *testing.T) {
	h := newHarness(t)
	h.auth.authErr = auth.ErrUnauthorized

	w := h.do(t, http.MethodGet, "/documents", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestKeySourceDownGets503(t *testing.T) {
	h := newHarness(t)
	h.auth.authErr = auth.ErrKeysUnavailable

	w := h.do(t, http.MethodGet, "/documents", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListDocumentsDefaultStatusGate(t *testing.T) {
	h := newHarness(t)
	h.auth.scopes[auth.PermDocumentRead] = []string{"CARR:213"}
	h.auth.scopes[auth.PermWorkflowApprove] = []string{"FAC:10"}
	h.auth.scopes[auth.PermWorkflowReject] = []string{"CARR:213"}

	w := h.do(t, http.MethodGet, "/documents?page=2&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)

	// No explicit status: the sensitive default applies with the union
	// of the workflow scopes.
	p := h.searcher.lastParams
	assert.Equal(t, "attention_required", p.Status)
	assert.Equal(t, []string{"CARR:213", "FAC:10"}, p.AllowedTeams)
	assert.Equal(t, "u1", p.CurrentUserID)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 5, p.Limit)
}

func TestListDocumentsSensitiveWithoutWorkflowScopes(t *testing.T) {
	h := newHarness(t)
	h.auth.scopes[auth.PermDocumentRead] = []string{"CARR:213"}

	w := h.do(t, http.MethodGet, "/documents?status=attention_required", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, false, body["success"])
}

func TestListDocumentsFilterParams(t *testing.T) {
	h := newHarness(t)
	h.auth.scopes[auth.PermDocumentRead] = []string{"*"}

	target := "/documents?status=confirmed&entity_id=e9&process_id=p1&process_id=p2" +
		"&search=tesis&date_from=2026-01-01&date_to=2026-01-31" +
		`&metadata_filters={"career":"Software"}&fuzziness=2`
	w := h.do(t, http.MethodGet, strings.ReplaceAll(target, " ", "%20"), "")
	require.Equal(t, http.StatusOK, w.Code)

	p := h.searcher.lastParams
	assert.Equal(t, "confirmed", p.Status)
	assert.Equal(t, []string{"*"}, p.AllowedTeams)
	assert.Equal(t, "e9", p.EntityID)
	assert.Equal(t, []string{"p1", "p2"}, p.ProcessIDs)
	assert.Equal(t, "tesis", p.Search)
	assert.Equal(t, map[string]any{"career": "Software"}, p.MetadataFilters)
	assert.Equal(t, 2, p.Fuzziness)
}

func TestListDocumentsBadMetadataFilters(t *testing.T) {
	h := newHarness(t)
	h.auth.scopes[auth.PermDocumentRead] = []string{"*"}

	w := h.do(t, http.MethodGet, "/documents?status=confirmed&metadata_filters=not-json", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDocumentsEnvelope(t *testing.T) {
	h := newHarness(t)
	h.auth.scopes[auth.PermDocumentRead] = []string{"*"}
	h.searcher.result = &search.Result{
		Data: []search.DocumentHit{{Document: models.Document{Key: "task-001"}}},
		Pagination: search.Pagination{
			CurrentPage: 1, LastPage: 3, PerPage: 10, Total: 25, To: 10, HasMorePages: true,
		},
	}

	w := h.do(t, http.MethodGet, "/documents?status=confirmed", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeEnvelope(t, w)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	pagination := data["pagination"].(map[string]any)
	assert.Equal(t, float64(3), pagination["lastPage"])
	assert.Equal(t, true, pagination["hasMorePages"])
	assert.Len(t, data["data"], 1)
}

func TestGetDocument(t *testing.T) {
	h := newHarness(t)
	h.searcher.doc = &search.DocumentHit{Document: models.Document{Key: "task-001"}}

	w := h.do(t, http.MethodGet, "/documents/task-001", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/documents/task-404", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogEntities(t *testing.T) {
	h := newHarness(t)
	h.searcher.entities = []search.EntityRef{{ID: "e9", Name: "Software"}}

	w := h.do(t, http.MethodGet, "/documents/catalogs/entities", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeEnvelope(t, w)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["count"])
}

func TestQualityCheck(t *testing.T) {
	h := newHarness(t)
	h.validator.report = &validation.QualityReport{Score: 83.3, IsReady: true}

	w := h.do(t, http.MethodPost, "/documents/task-001/metadata/quality-check", `{"metadata":{}}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeEnvelope(t, w)
	report := body["data"].(map[string]any)["data"].(map[string]any)
	assert.InDelta(t, 83.3, report["score"], 0.01)
}

func TestQualityCheckMissingDocument(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/documents/task-404/metadata/quality-check", `{"metadata":{}}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfirmErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", validation.ErrNotFound, http.StatusNotFound},
		{"not owner", validation.ErrPermissionDenied, http.StatusForbidden},
		{"locked", validation.ErrLocked, http.StatusBadRequest},
		{"no original pdf", validation.ErrNoOriginalPDF, http.StatusBadRequest},
		{"short display name", validation.ErrInvalidRequest, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.validator.confirmErr = tc.err

			w := h.do(t, http.MethodPatch, "/documents/task-001/metadata/confirm", `{"metadata":{}}`)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestConfirmSuccess(t *testing.T) {
	h := newHarness(t)
	h.validator.confirmed = &models.Document{Key: "task-001", Status: "confirmed"}

	w := h.do(t, http.MethodPatch, "/documents/task-001/metadata/confirm",
		`{"metadata":{"career":{"id":"e9"}},"display_name":"FAC-TDI-PAP-01-002"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeEnvelope(t, w)
	doc := body["data"].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, "confirmed", doc["status"])
}

func TestStorageProxyStream(t *testing.T) {
	h := newHarness(t)
	h.auth.scopes[auth.PermDocumentRead] = []string{"CARR:213"}
	h.fetcher.download = &search.Download{
		Body:        io.NopCloser(strings.NewReader("%PDF-1.7")),
		ContentType: "application/pdf",
		Filename:    "informe.pdf",
	}

	w := h.do(t, http.MethodGet, "/storage/proxy/documentos/archive/informe.pdf", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "inline; filename=informe.pdf", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.7", w.Body.String())
	assert.Equal(t, "documentos/archive/informe.pdf", h.fetcher.gotPath)
	assert.Equal(t, []string{"CARR:213"}, h.fetcher.gotTeams)
}

func TestStorageProxyDenied(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = search.ErrForbidden

	w := h.do(t, http.MethodGet, "/storage/proxy/documentos/archive/informe.pdf", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStorageProxyUnknownObject(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = search.ErrObjectNotFound

	w := h.do(t, http.MethodGet, "/storage/proxy/documentos/ghost.pdf", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMyEntities(t *testing.T) {
	h := newHarness(t)
	h.store.teamEntities = []search.TeamEntity{
		{ID: "e9", Name: "Software", Code: "TDI", Type: "Carrera", TeamID: "CARR:213"},
	}

	w := h.do(t, http.MethodGet, "/me/entities", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeEnvelope(t, w)
	items := body["data"].(map[string]any)["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "CARR:213", items[0].(map[string]any)["teamId"])
}

func TestMyEntitiesNoTeams(t *testing.T) {
	h := newHarness(t)
	h.auth.caller.TeamIDs = nil

	w := h.do(t, http.MethodGet, "/me/entities", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeEnvelope(t, w)
	assert.Empty(t, body["data"].(map[string]any)["data"])
}

func TestCatalogFacultiesPublic(t *testing.T) {
	h := newHarness(t)
	h.store.faculties = []map[string]any{{"id": "e1", "name": "FACCI", "code": "FAC"}}

	// No bearer token: catalog browsing is public.
	req := httptest.NewRequest(http.MethodGet, "/catalog/faculties", nil)
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeEnvelope(t, w)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["count"])
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
