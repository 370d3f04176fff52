package search

import (
	"context"
	"errors"
	"sort"

	"github.com/hashicorp/go-hclog"
)

// ErrForbidden is returned when the caller's scopes do not grant the
// requested view.
var ErrForbidden = errors.New("insufficient permissions")

// DefaultStatus is assumed when the caller does not filter by status:
// the review queue is the primary working view.
const DefaultStatus = "attention_required"

// sensitiveStatuses require workflow scopes instead of plain read.
var sensitiveStatuses = map[string]bool{
	"attention_required": true,
}

// GateInput carries the caller's resolved scope lists into the status
// gate.
type GateInput struct {
	Status       string
	ReadTeams    []string
	ApproveTeams []string
	RejectTeams  []string
}

// ResolveStatusAndTeams applies the status gate: sensitive statuses
// need workflow power (approve or reject), everything else needs read.
// Returns the effective status and the allowed team codes, where "*"
// means unrestricted.
func ResolveStatusAndTeams(in GateInput) (string, []string, error) {
	status := in.Status
	if status == "" {
		status = DefaultStatus
	}

	if sensitiveStatuses[status] {
		if contains(in.ApproveTeams, "*") || contains(in.RejectTeams, "*") {
			return status, []string{"*"}, nil
		}
		teams := unionSorted(in.ApproveTeams, in.RejectTeams)
		if len(teams) == 0 {
			return "", nil, ErrForbidden
		}
		return status, teams, nil
	}

	if contains(in.ReadTeams, "*") {
		return status, []string{"*"}, nil
	}
	if len(in.ReadTeams) == 0 {
		return "", nil, ErrForbidden
	}
	return status, in.ReadTeams, nil
}

// Params is one search request after the status gate.
type Params struct {
	Page  int
	Limit int

	Status        string
	AllowedTeams  []string
	CurrentUserID string

	EntityID           string
	ProcessIDs         []string
	RequiredDocumentID string
	ReferencedEntityID string
	SchemaID           string
	Search             string
	DateFrom           string
	DateTo             string
	OwnerID            string
	MetadataFilters    map[string]any
	Fuzziness          int
}

// Pagination mirrors the envelope the frontend paginator consumes.
type Pagination struct {
	CurrentPage  int  `json:"currentPage"`
	LastPage     int  `json:"lastPage"`
	PerPage      int  `json:"perPage"`
	Total        int  `json:"total"`
	To           int  `json:"to"`
	HasMorePages bool `json:"hasMorePages"`
}

// Result is one page of documents.
type Result struct {
	Data       []DocumentHit `json:"data"`
	Pagination Pagination    `json:"pagination"`
}

// Service composes ABAC resolution, filter building and the repository.
type Service struct {
	store  Store
	repo   *Repository
	logger hclog.Logger
}

// NewService builds the search service.
func NewService(store Store, logger hclog.Logger) *Service {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		store:  store,
		repo:   NewRepository(store, logger),
		logger: logger.Named("search"),
	}
}

// GetDocument loads one document with its relations. Nil when missing.
func (s *Service) GetDocument(ctx context.Context, docID string) (*DocumentHit, error) {
	return s.repo.GetByID(ctx, docID)
}

// AvailableEntities lists the entities that hold documents.
func (s *Service) AvailableEntities(ctx context.Context) ([]EntityRef, error) {
	return s.repo.EntitiesWithDocuments(ctx)
}

// Search runs a gated, filtered, paginated document query. A caller
// whose team codes resolve to no known entity gets an empty page, not
// an error: stale permissions must not leak documents.
func (s *Service) Search(ctx context.Context, p Params) (*Result, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 10
	}

	b := NewBuilder()

	if len(p.AllowedTeams) > 0 && !contains(p.AllowedTeams, "*") {
		keys, err := ResolveTeamKeys(ctx, s.store, p.AllowedTeams)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			s.logger.Debug("no team codes resolved, returning empty page",
				"teams", p.AllowedTeams)
			return emptyResult(p.Page, p.Limit), nil
		}
		b.Security(keys)
	}

	if p.Status != "" {
		b.Status(p.Status)
		if sensitiveStatuses[p.Status] && p.CurrentUserID != "" {
			b.CurrentUser(p.CurrentUserID)
		}
	}
	if p.OwnerID != "" {
		b.Owner(p.OwnerID)
	}
	if p.EntityID != "" {
		b.Entity(p.EntityID)
	}
	if len(p.ProcessIDs) > 0 {
		b.Process(p.ProcessIDs)
	}
	if p.RequiredDocumentID != "" {
		b.RequiredDocument(p.RequiredDocumentID)
	}
	if p.ReferencedEntityID != "" {
		b.ReferencedEntity(p.ReferencedEntityID)
	}
	if p.SchemaID != "" {
		b.Schema(p.SchemaID)
	}
	b.DateRange(p.DateFrom, p.DateTo)
	if len(p.MetadataFilters) > 0 {
		b.Metadata(p.MetadataFilters, p.Fuzziness)
	}

	offset := (p.Page - 1) * p.Limit
	page, err := s.repo.Search(ctx, offset, p.Limit, b, p.Search)
	if err != nil {
		return nil, err
	}

	return &Result{
		Data:       page.Items,
		Pagination: paginate(p.Page, p.Limit, page.Total, len(page.Items)),
	}, nil
}

func paginate(page, limit, total, count int) Pagination {
	lastPage := (total + limit - 1) / limit
	if lastPage < 1 {
		lastPage = 1
	}
	offset := (page - 1) * limit
	return Pagination{
		CurrentPage:  page,
		LastPage:     lastPage,
		PerPage:      limit,
		Total:        total,
		To:           offset + count,
		HasMorePages: page < lastPage,
	}
}

func emptyResult(page, limit int) *Result {
	return &Result{
		Data:       []DocumentHit{},
		Pagination: paginate(page, limit, 0, 0),
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func unionSorted(a, b []string) []string {
	set := map[string]bool{}
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		set[s] = true
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
