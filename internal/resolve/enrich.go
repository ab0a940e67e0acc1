package resolve

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/openaccesstools/oar/internal/match"
	"github.com/openaccesstools/oar/internal/registry"
)

// Enrich back-fills a matched entity with candidate data the registry
// lacks. Enrichment is monotonic: populated fields are never overwritten
// unless force is set. A differing name becomes a new synonym; a differing
// identifier is fatal because it means the match itself is unsound.
func (r *Resolver) Enrich(ctx context.Context, rec *registry.EntityRecord, c match.Candidate, force bool) (EnrichResult, error) {
	result := EnrichResult{Updated: map[string]any{}}
	updates := map[string]any{}

	if c.Name != "" && !strings.EqualFold(rec.Name, c.Name) {
		created, err := r.enrichSynonym(ctx, rec, c)
		if err != nil {
			return result, err
		}
		result.SynonymCreated = created
	}

	if err := checkIdentifier("issn", rec.Name, rec.ISSN, c.ISSN, updates); err != nil {
		return result, err
	}
	if err := checkIdentifier("eissn", rec.Name, rec.EISSN, c.EISSN, updates); err != nil {
		return result, err
	}

	if c.URL != "" && rec.URL != c.URL {
		if rec.URL == "" || force {
			updates["url"] = c.URL
		} else {
			r.warnConflict("url", rec.URL, c.URL)
		}
	}

	if c.Publisher != "" && rec.ParentID == 0 && !strings.EqualFold(rec.Name, c.Publisher) {
		pc := match.Candidate{Name: c.Publisher, Type: registry.Publisher, SourceID: c.SourceID}
		pres, err := r.resolve(ctx, pc, 1)
		if err != nil {
			return result, fmt.Errorf("resolving publisher %q: %w", c.Publisher, err)
		}
		updates["parent"] = pres.PreferredID
	}

	if len(updates) == 0 {
		return result, nil
	}
	if _, err := r.client.UpdateEntity(ctx, rec.ID, updates); err != nil {
		return result, fmt.Errorf("updating entity %d: %w", rec.ID, err)
	}
	result.Updated = updates
	return result, nil
}

// enrichSynonym records the candidate's spelling as a Synonym of the
// matched entity's Primary. An existing synonym with the same name is not
// an error.
func (r *Resolver) enrichSynonym(ctx context.Context, rec *registry.EntityRecord, c match.Candidate) (bool, error) {
	target := rec.PreferredID()
	if target == 0 {
		return false, registry.Contractf("entity %q has no preferred id", rec.Name)
	}
	syn := registry.EntityRecord{
		Name:        c.Name,
		NameStatus:  registry.Synonym,
		Type:        c.Type,
		ISSN:        c.ISSN,
		EISSN:       c.EISSN,
		URL:         c.URL,
		SynonymOfID: target,
		SourceID:    c.SourceID,
	}
	_, err := r.client.CreateEntity(ctx, syn, false)
	if registry.IsDuplicateName(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating synonym %q: %w", c.Name, err)
	}
	r.log.Info("created synonym from enrichment",
		zap.String("name", c.Name), zap.Int64("synonym_of", target))
	return true, nil
}

func (r *Resolver) warnConflict(field, onFile, incoming string) {
	r.log.Warn("registry value differs from external dataset, external value ignored",
		zap.String("field", field),
		zap.String("registry", onFile),
		zap.String("external", incoming))
}

// checkIdentifier stages an identifier back-fill or fails on divergence.
func checkIdentifier(field, name, onFile, incoming string, updates map[string]any) error {
	if incoming == "" {
		return nil
	}
	if onFile == "" {
		updates[field] = incoming
		return nil
	}
	if onFile != incoming {
		return &registry.IdentifierConflictError{
			Field:    field,
			Name:     name,
			OnFile:   onFile,
			Incoming: incoming,
		}
	}
	return nil
}
