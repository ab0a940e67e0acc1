package registry

import (
	"context"
	"fmt"
	"math/rand"
)

// Client is the contract for the canonical registry store. Implementations
// handle transport concerns (retry, backoff, timeouts); callers treat every
// method as a synchronous suspension point.
type Client interface {
	// LookupByID returns the entity with the given id, or ErrNotFound.
	LookupByID(ctx context.Context, id int64) (*EntityRecord, error)

	// LookupByISSN returns all entities carrying the given ISSN in either
	// their issn or eissn field. ISSNs are not unique across a synonym
	// family, so multiple hits are normal.
	LookupByISSN(ctx context.Context, issn string) ([]EntityRecord, error)

	// LookupByName returns entities whose name contains the query,
	// case-insensitively. Callers disambiguate multiple hits.
	LookupByName(ctx context.Context, name string) ([]EntityRecord, error)

	// Synonyms returns the full name family of the entity: its Primary
	// record plus every Synonym pointing at that Primary. The given id may
	// itself be a Synonym.
	Synonyms(ctx context.Context, id int64) ([]EntityRecord, error)

	// CreateEntity stores a new entity and returns it with its assigned
	// id. Without force, a case-insensitive name collision fails with
	// *DuplicateNameError. With force, a colliding name is retried once
	// with a random disambiguating integer suffix.
	CreateEntity(ctx context.Context, e EntityRecord, force bool) (*EntityRecord, error)

	// UpdateEntity applies the given field updates to an entity and
	// returns the updated record. Keys use wire names (issn, eissn, url,
	// parent, vetted).
	UpdateEntity(ctx context.Context, id int64, fields map[string]any) (*EntityRecord, error)

	// LookupPolicies returns all policies of the given kind attached to
	// the entity, including superseded ones.
	LookupPolicies(ctx context.Context, kind PolicyKind, nodeID int64) ([]PolicyRecord, error)

	// CreatePolicy stores a new policy and returns it with its assigned id.
	CreatePolicy(ctx context.Context, p PolicyRecord) (*PolicyRecord, error)

	// UpdatePolicy applies the given field updates to a policy of the
	// given kind and returns the updated record.
	UpdatePolicy(ctx context.Context, kind PolicyKind, policyID int64, fields map[string]any) (*PolicyRecord, error)
}

// ForcedName appends a random disambiguating integer suffix to a name that
// collided on creation.
func ForcedName(name string) string {
	return fmt.Sprintf("%s [%d]", name, 1000+rand.Intn(8999))
}
