// Package naming derives the hierarchical names a document carries from
// the organizational graph: slash-joined paths root to leaf, the
// parent-leaf code combination and the timestamped display name.
package naming

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/uleam-dti/dms/pkg/models"
)

// HierarchyReader walks belongs_to edges upward. The returned chain is
// ordered leaf first (the traversal order the graph store guarantees);
// the builder reverses it.
type HierarchyReader interface {
	OrganizationalChain(ctx context.Context, entityKey string) ([]models.Entity, error)
}

// RequiredDocument is the catalog slot descriptor that, when present,
// extends the code combination.
type RequiredDocument struct {
	ID   string
	Name string
	Code string
}

// Node is one normalized element of the naming chain, kept for
// debugging on the stored record.
type Node struct {
	Key         string `json:"_key"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Code        string `json:"code"`
	CodeNumeric string `json:"code_numeric,omitempty"`
}

// Result carries everything the document record stores under naming,
// plus the debug chain.
type Result struct {
	models.Naming
	PathNodes []Node `json:"path_nodes,omitempty"`
}

// Builder resolves naming for a leaf entity. Now is injectable so tests
// can pin the timestamp tag.
type Builder struct {
	hierarchy HierarchyReader
	logger    hclog.Logger
	now       func() time.Time
}

// New creates a Builder reading from the given hierarchy.
func New(hierarchy HierarchyReader, logger hclog.Logger) *Builder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Builder{hierarchy: hierarchy, logger: logger.Named("naming"), now: time.Now}
}

// WithClock overrides the wall clock. Test hook.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build walks the hierarchy from entityKey and assembles the naming
// record. A missing entity or empty chain falls back to
// "document_<ts>" so ingestion never stalls on naming.
func (b *Builder) Build(ctx context.Context, entityKey string, required *RequiredDocument) Result {
	ts := b.now().Format("20060102_150405")

	fallback := Result{Naming: models.Naming{
		DisplayName:  "document_" + ts,
		TimestampTag: ts,
	}}
	if required != nil {
		fallback.RequiredDocumentCode = strings.TrimSpace(required.Code)
	}

	if entityKey == "" {
		return fallback
	}

	chain, err := b.hierarchy.OrganizationalChain(ctx, entityKey)
	if err != nil {
		b.logger.Warn("hierarchy walk failed, using fallback name", "entity", entityKey, "error", err)
		return fallback
	}
	if len(chain) == 0 {
		return fallback
	}

	// Leaf-first from the traversal; we want root -> leaf.
	nodes := make([]Node, 0, len(chain)+1)
	for i := len(chain) - 1; i >= 0; i-- {
		e := chain[i]
		nodes = append(nodes, Node{
			Key:         e.Key,
			Name:        strings.TrimSpace(e.Name),
			Type:        e.Type,
			Code:        strings.TrimSpace(e.Code),
			CodeNumeric: models.FormatNumeric(e.CodeNumeric),
		})
	}

	hasRequired := false
	if required != nil && (strings.TrimSpace(required.Name) != "" || strings.TrimSpace(required.Code) != "") {
		hasRequired = true
		nodes = append(nodes, Node{
			Key:  required.ID,
			Name: strings.TrimSpace(required.Name),
			Type: "required_document",
			Code: strings.TrimSpace(required.Code),
		})
	}

	namePath := joinNonEmpty(collect(nodes, func(n Node) string { return n.Name }), " / ")
	codePath := joinNonEmpty(collect(nodes, func(n Node) string { return n.Code }), " / ")
	codeNumericPath := joinNonEmpty(collect(nodes, func(n Node) string { return n.CodeNumeric }), " / ")

	leaf := nodes[len(nodes)-1]
	targetName := leaf.Name

	var codeCombo, numCombo string
	if hasRequired {
		// The combo is built over the organizational part of the chain,
		// then extended with the required-document code.
		org := nodes[:len(nodes)-1]
		base := comboFor(org, func(n Node) string { return n.Code })
		codeCombo = joinNonEmpty([]string{base, leaf.Code}, "-")
		numCombo = comboFor(org, func(n Node) string { return n.CodeNumeric })
	} else {
		codeCombo = comboFor(nodes, func(n Node) string { return n.Code })
		numCombo = comboFor(nodes, func(n Node) string { return n.CodeNumeric })
	}

	nameCode := combineWithName(codeCombo, targetName)
	nameCodeNumeric := combineWithName(numCombo, targetName)

	res := Result{
		Naming: models.Naming{
			DisplayName:     strings.TrimSpace(nameCode + " - " + ts),
			NameCode:        nameCode,
			NameCodeNumeric: nameCodeNumeric,
			NamePath:        namePath,
			CodePath:        codePath,
			CodeNumericPath: codeNumericPath,
			TimestampTag:    ts,
		},
		PathNodes: nodes,
	}
	if required != nil {
		res.RequiredDocumentCode = strings.TrimSpace(required.Code)
	}
	return res
}

// comboFor joins the immediate parent's code with the leaf's code, or
// returns the leaf's code alone for a single-level chain.
func comboFor(nodes []Node, code func(Node) string) string {
	if len(nodes) == 0 {
		return ""
	}
	leaf := code(nodes[len(nodes)-1])
	if len(nodes) >= 2 {
		return joinNonEmpty([]string{code(nodes[len(nodes)-2]), leaf}, "-")
	}
	return leaf
}

func combineWithName(combo, name string) string {
	if combo == "" {
		return name
	}
	return strings.Trim(combo+" - "+name, " -")
}

func collect(nodes []Node, f func(Node) string) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, f(n))
	}
	return out
}

func joinNonEmpty(parts []string, sep string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
