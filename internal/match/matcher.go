package match

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/openaccesstools/oar/internal/registry"
)

// Channel identifies which weak key produced a match.
type Channel string

const (
	ChannelISSN Channel = "issn"
	ChannelName Channel = "name"
)

// Result is the outcome of matching a candidate against the registry.
// Record is nil when no acceptable match was found.
type Result struct {
	Record  *registry.EntityRecord
	Channel Channel
}

// Found reports whether a match was accepted.
func (r Result) Found() bool {
	return r.Record != nil
}

// Matcher queries the registry for entities matching a candidate.
type Matcher struct {
	client registry.Client
	sim    Similarity
	log    *zap.Logger
}

// NewMatcher builds a Matcher. A nil similarity falls back to the default
// metric; a nil logger is replaced with a no-op one.
func NewMatcher(client registry.Client, sim Similarity, log *zap.Logger) *Matcher {
	if sim == nil {
		sim = DefaultSimilarity()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{client: client, sim: sim, log: log}
}

// Match tries each match channel in strict precedence order: ISSN, then
// eISSN, then progressively less specific name queries. It never returns a
// match whose type differs from the candidate's.
func (m *Matcher) Match(ctx context.Context, c Candidate) (Result, error) {
	if c.ISSN != "" {
		res, err := m.matchISSN(ctx, c, c.ISSN)
		if err != nil || res.Found() {
			return res, err
		}
	}
	if c.EISSN != "" {
		res, err := m.matchISSN(ctx, c, c.EISSN)
		if err != nil || res.Found() {
			return res, err
		}
	}
	if c.Name != "" {
		return m.matchName(ctx, c)
	}
	return Result{}, nil
}

// matchISSN matches a candidate on one identifier. Multiple hits are
// normal (an ISSN legitimately appears on a Primary and its synonyms); the
// hit with the closest name wins, ties broken by lowest id for
// deterministic reruns.
func (m *Matcher) matchISSN(ctx context.Context, c Candidate, issn string) (Result, error) {
	recs, err := m.client.LookupByISSN(ctx, issn)
	if err != nil {
		return Result{}, fmt.Errorf("looking up issn %s: %w", issn, err)
	}
	if len(recs) == 0 {
		return Result{}, nil
	}

	best := recs[0]
	if len(recs) > 1 {
		bestScore := m.sim.Score(c.Name, best.Name)
		for _, r := range recs[1:] {
			score := m.sim.Score(c.Name, r.Name)
			if score > bestScore || (score == bestScore && r.ID < best.ID) {
				best, bestScore = r, score
			}
		}
		m.log.Debug("issn matched multiple records, using closest name",
			zap.String("issn", issn),
			zap.Int("hits", len(recs)),
			zap.String("closest", best.Name))
	}

	if best.Type != c.Type {
		m.log.Debug("issn match rejected: type mismatch",
			zap.String("issn", issn),
			zap.String("candidate_type", string(c.Type)),
			zap.String("matched_type", string(best.Type)))
		return Result{}, nil
	}
	return Result{Record: &best, Channel: ChannelISSN}, nil
}

// matchName tries progressively less specific query strings: name
// qualified by publisher, name qualified by type, then the bare name.
// Homonyms across publishers are common, so the qualified forms go first.
func (m *Matcher) matchName(ctx context.Context, c Candidate) (Result, error) {
	queries := make([]string, 0, 3)
	if c.Publisher != "" {
		queries = append(queries, fmt.Sprintf("%s (%s)", c.Name, c.Publisher))
	}
	queries = append(queries, c.Name+c.TypeSuffix(), c.Name)

	for _, q := range queries {
		rec, err := m.nameQuery(ctx, c, q)
		if err != nil {
			return Result{}, err
		}
		if rec != nil {
			return Result{Record: rec, Channel: ChannelName}, nil
		}
	}
	return Result{}, nil
}

// nameQuery runs a single name query. Only an exact case-insensitive name
// match is ever accepted: the registry search is substring-based, and a
// lone partial hit is still a different entity, not a match.
func (m *Matcher) nameQuery(ctx context.Context, c Candidate, q string) (*registry.EntityRecord, error) {
	recs, err := m.client.LookupByName(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("looking up name %q: %w", q, err)
	}

	for i := range recs {
		if strings.EqualFold(recs[i].Name, q) {
			if recs[i].Type != c.Type {
				return nil, nil
			}
			return &recs[i], nil
		}
	}
	return nil, nil
}
