// Package engine runs the record pipeline: match, resolve, enrich, then
// reconcile each attached policy against the registry.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openaccesstools/oar/internal/match"
	"github.com/openaccesstools/oar/internal/policy"
	"github.com/openaccesstools/oar/internal/registry"
	"github.com/openaccesstools/oar/internal/resolve"
)

// ImportRecord is one structured input row from an import driver: an
// entity candidate plus the policies stated for it.
type ImportRecord struct {
	Candidate match.Candidate
	OaStatus  *registry.PolicyRecord
	Gold      *registry.PolicyRecord
	Green     []registry.PolicyRecord
}

// PolicyAction summarizes what reconciling one policy did.
type PolicyAction struct {
	Kind    registry.PolicyKind `json:"kind"`
	Created bool                `json:"created"`
	Updated map[string]any      `json:"updated,omitempty"`
}

// RecordResult is the audit record for one processed input row.
type RecordResult struct {
	Name           string          `json:"name"`
	Outcome        resolve.Outcome `json:"outcome"`
	EntityID       int64           `json:"entity_id"`
	PreferredID    int64           `json:"preferred_id"`
	SynonymCreated bool            `json:"synonym_created,omitempty"`
	Enriched       map[string]any  `json:"enriched,omitempty"`
	Policies       []PolicyAction  `json:"policies,omitempty"`
}

// BatchResult aggregates a driver run.
type BatchResult struct {
	Processed        int            `json:"processed"`
	UsedExisting     int            `json:"used_existing"`
	CreatedSynonyms  int            `json:"created_synonyms"`
	CreatedPrimaries int            `json:"created_primaries"`
	PoliciesCreated  int            `json:"policies_created"`
	PoliciesUpdated  int            `json:"policies_updated"`
	Failed           int            `json:"failed"`
	Errors           []string       `json:"errors,omitempty"`
	Results          []RecordResult `json:"results,omitempty"`
}

// Engine wires the matcher, resolver and reconciler over one registry
// client. Records are processed strictly in sequence: an entity created by
// one record must be matchable by the next.
type Engine struct {
	resolver   *resolve.Resolver
	reconciler *policy.Reconciler
	log        *zap.Logger
	force      bool
}

// Options configures an Engine.
type Options struct {
	// Similarity overrides the name-similarity metric used for ISSN
	// multi-hit tie-breaks.
	Similarity match.Similarity
	// Force lets incoming data overwrite conflicting registry values.
	Force bool
}

// New builds an Engine over the given registry client.
func New(client registry.Client, log *zap.Logger, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	matcher := match.NewMatcher(client, opts.Similarity, log)
	return &Engine{
		resolver:   resolve.NewResolver(client, matcher, log),
		reconciler: policy.NewReconciler(client, log),
		log:        log,
		force:      opts.Force,
	}
}

// Process fully resolves one input record: entity resolution, enrichment
// of an existing match, then reconciliation of each attached policy.
// Errors are fatal for this record only.
func (e *Engine) Process(ctx context.Context, rec ImportRecord) (RecordResult, error) {
	res, err := e.resolver.Resolve(ctx, rec.Candidate)
	if err != nil {
		return RecordResult{Name: rec.Candidate.Name}, err
	}

	result := RecordResult{
		Name:        rec.Candidate.Name,
		Outcome:     res.Outcome,
		EntityID:    res.Entity.ID,
		PreferredID: res.PreferredID,
	}

	if res.Outcome == resolve.UsedExisting {
		enriched, err := e.resolver.Enrich(ctx, res.Entity, rec.Candidate, e.force)
		if err != nil {
			return result, err
		}
		result.SynonymCreated = enriched.SynonymCreated
		result.Enriched = enriched.Updated
	}

	for _, p := range e.policies(rec) {
		action, err := e.reconciler.Reconcile(ctx, res.PreferredID, p, e.force)
		if err != nil {
			return result, fmt.Errorf("reconciling %s policy: %w", p.Kind, err)
		}
		result.Policies = append(result.Policies, PolicyAction{
			Kind:    p.Kind,
			Created: action.Created,
			Updated: action.Updated,
		})
	}
	return result, nil
}

// Run processes records in order, logging one decision line per record.
// With keepGoing, a failed record is counted and skipped; otherwise the
// first failure aborts the batch.
func (e *Engine) Run(ctx context.Context, recs []ImportRecord, keepGoing bool) (BatchResult, error) {
	var batch BatchResult
	for _, rec := range recs {
		result, err := e.Process(ctx, rec)
		if err != nil {
			batch.Failed++
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %v", rec.Candidate.Name, err))
			e.log.Error("record failed",
				zap.String("name", rec.Candidate.Name),
				zap.Error(err))
			if !keepGoing {
				return batch, fmt.Errorf("processing %q: %w", rec.Candidate.Name, err)
			}
			continue
		}

		batch.Processed++
		switch result.Outcome {
		case resolve.UsedExisting:
			batch.UsedExisting++
		case resolve.CreatedSynonym:
			batch.CreatedSynonyms++
		case resolve.CreatedPrimary:
			batch.CreatedPrimaries++
		}
		for _, p := range result.Policies {
			if p.Created {
				batch.PoliciesCreated++
			} else if len(p.Updated) > 0 {
				batch.PoliciesUpdated++
			}
		}
		batch.Results = append(batch.Results, result)

		e.log.Info("record processed",
			zap.String("name", result.Name),
			zap.String("decision", string(result.Outcome)),
			zap.Int64("entity", result.EntityID),
			zap.Int64("preferred", result.PreferredID),
			zap.Int("policies", len(result.Policies)))
	}
	return batch, nil
}

// policies collects the record's policy statements in a stable order,
// tagging each with its kind.
func (e *Engine) policies(rec ImportRecord) []registry.PolicyRecord {
	var out []registry.PolicyRecord
	if rec.OaStatus != nil {
		p := *rec.OaStatus
		p.Kind = registry.OaStatusKind
		out = append(out, p)
	}
	if rec.Gold != nil {
		p := *rec.Gold
		p.Kind = registry.GoldKind
		out = append(out, p)
	}
	for _, g := range rec.Green {
		g.Kind = registry.GreenKind
		out = append(out, g)
	}
	return out
}
