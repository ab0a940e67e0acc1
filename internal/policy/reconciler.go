// Package policy reconciles incoming open-access policy statements with
// the policies already on file for an entity.
package policy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openaccesstools/oar/internal/registry"
)

// Result reports what a reconcile call did: created a new policy, or
// staged field updates onto an existing one.
type Result struct {
	Created  bool
	PolicyID int64
	Updated  map[string]any
}

// Reconciler applies idempotent, monotonic policy enrichment: repeated
// imports never duplicate policies and never silently clobber curated
// data.
type Reconciler struct {
	client registry.Client
	log    *zap.Logger
}

// NewReconciler builds a Reconciler. A nil logger is replaced with a
// no-op one.
func NewReconciler(client registry.Client, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{client: client, log: log}
}

// Reconcile matches the incoming policy against the target entity's
// existing policies of the same kind and either creates it or merges
// field-level differences. Policies always attach to Primary entities; a
// Synonym target is redirected to its Primary. Conflicting non-empty
// fields are skipped with a warning unless force is set.
func (r *Reconciler) Reconcile(ctx context.Context, nodeID int64, incoming registry.PolicyRecord, force bool) (Result, error) {
	kind := incoming.Kind
	if !kind.Valid() {
		return Result{}, registry.Contractf("unsupported policy kind %q", kind)
	}

	target, err := r.preferredTarget(ctx, nodeID)
	if err != nil {
		return Result{}, err
	}

	existing, err := r.client.LookupPolicies(ctx, kind, target)
	if err != nil {
		return Result{}, fmt.Errorf("fetching %s policies for %d: %w", kind, target, err)
	}

	var matched *registry.PolicyRecord
	for i := range existing {
		if existing[i].Superseded {
			continue
		}
		if sameIdentity(kind, existing[i], incoming) {
			matched = &existing[i]
			break
		}
	}

	if matched == nil {
		incoming.NodeID = target
		incoming.Superseded = false
		created, err := r.client.CreatePolicy(ctx, incoming)
		if err != nil {
			return Result{}, fmt.Errorf("creating %s policy for %d: %w", kind, target, err)
		}
		r.log.Info("created policy",
			zap.String("kind", string(kind)),
			zap.Int64("node", target),
			zap.Int64("policy", created.ID))
		return Result{Created: true, PolicyID: created.ID, Updated: map[string]any{}}, nil
	}

	updates := map[string]any{}
	for _, f := range comparableFields(kind, incoming, *matched) {
		if f.incomingEmpty() {
			continue
		}
		if f.existingEmpty() {
			updates[f.name] = f.updateValue()
			continue
		}
		if f.equal() {
			continue
		}
		if force {
			updates[f.name] = f.updateValue()
			continue
		}
		r.log.Warn("policy field differs from external dataset, external value ignored",
			zap.String("kind", string(kind)),
			zap.Int64("policy", matched.ID),
			zap.String("field", f.name),
			zap.String("registry", f.display(f.existing)),
			zap.String("external", f.display(f.incoming)))
	}

	if len(updates) > 0 {
		if _, err := r.client.UpdatePolicy(ctx, kind, matched.ID, updates); err != nil {
			return Result{}, fmt.Errorf("updating %s policy %d: %w", kind, matched.ID, err)
		}
		r.log.Info("updated policy",
			zap.String("kind", string(kind)),
			zap.Int64("policy", matched.ID),
			zap.Int("fields", len(updates)))
	}
	return Result{Created: false, PolicyID: matched.ID, Updated: updates}, nil
}

// preferredTarget redirects a Synonym entity to its Primary.
func (r *Reconciler) preferredTarget(ctx context.Context, nodeID int64) (int64, error) {
	rec, err := r.client.LookupByID(ctx, nodeID)
	if err != nil {
		return 0, fmt.Errorf("fetching entity %d: %w", nodeID, err)
	}
	if rec.IsPrimary() {
		return rec.ID, nil
	}
	if rec.SynonymOfID == 0 {
		return 0, registry.Contractf("%q is not a primary name but has no synonym target", rec.Name)
	}
	return rec.SynonymOfID, nil
}
