// Package match finds existing registry entities for incoming candidate
// descriptions, by ISSN first and name second.
package match

import (
	"fmt"
	"strings"

	"github.com/openaccesstools/oar/internal/normalize"
	"github.com/openaccesstools/oar/internal/registry"
)

// Candidate describes an incoming entity before resolution. Candidates are
// immutable values: each pipeline step takes one in and returns a result
// out, nothing accretes state across calls.
type Candidate struct {
	Name      string
	Type      registry.NodeType
	ISSN      string
	EISSN     string
	Publisher string
	URL       string
	SourceID  int64
}

// NewCandidate builds a Candidate from raw external data. Names are
// cleaned, malformed identifiers are dropped as absent, and unusable URLs
// are discarded. An empty name after cleaning is an input error.
func NewCandidate(name string, typ registry.NodeType, issn, eissn, publisher, url string, sourceID int64) (Candidate, error) {
	clean := strings.TrimSpace(normalize.CleanName(name))
	if clean == "" {
		return Candidate{}, fmt.Errorf("candidate name is empty")
	}
	if !typ.Valid() {
		return Candidate{}, fmt.Errorf("unknown node type %q", typ)
	}
	return Candidate{
		Name:      clean,
		Type:      typ,
		ISSN:      normalize.CleanISSN(issn),
		EISSN:     normalize.CleanISSN(eissn),
		Publisher: strings.TrimSpace(normalize.CleanName(publisher)),
		URL:       normalize.CleanURL(url),
		SourceID:  sourceID,
	}, nil
}

// WithName returns a copy of the candidate under a different name.
func (c Candidate) WithName(name string) Candidate {
	c.Name = name
	return c
}

// TypeSuffix returns the capitalized type decoration for this candidate,
// e.g. " (Journal)".
func (c Candidate) TypeSuffix() string {
	t := strings.ToLower(string(c.Type))
	return " (" + strings.ToUpper(t[:1]) + t[1:] + ")"
}
