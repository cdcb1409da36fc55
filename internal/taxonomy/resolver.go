// Package taxonomy resolves canonical species names against a structured
// knowledge base and yields rank chains, common names and use properties.
package taxonomy

import (
	"context"

	"github.com/sisigoks/plantverse-go/internal/species"
)

// Rank is one step of a taxonomic rank chain, kingdom down to species.
type Rank struct {
	RankName  string `json:"rank_name"`
	TaxonName string `json:"taxon_name"`
}

// Record is the resolved taxonomy for one canonical query. An empty
// EntityID means the knowledge base had no matching entity, which is a
// normal outcome, never inferred from other fields.
type Record struct {
	EntityID    string            `json:"entity_id,omitempty"`
	RankChain   []Rank            `json:"rank_chain,omitempty"`
	CommonNames []string          `json:"common_names,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// Resolved reports whether the knowledge base yielded an entity.
func (r *Record) Resolved() bool {
	return r != nil && r.EntityID != ""
}

// ScientificName returns the most specific taxon name of the rank chain,
// or empty when unresolved.
func (r *Record) ScientificName() string {
	if r == nil || len(r.RankChain) == 0 {
		return ""
	}
	return r.RankChain[0].TaxonName
}

// Resolver maps a canonical query to a taxonomy record. Implementations
// must be safe for concurrent use. A missing entity is reported through an
// unresolved Record, not an error; errors are reserved for service faults.
type Resolver interface {
	Resolve(ctx context.Context, query species.CanonicalQuery) (*Record, error)
}
