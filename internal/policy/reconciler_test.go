package policy

import (
	"context"
	"testing"

	"github.com/openaccesstools/oar/internal/registry"
)

func seedPrimary(t *testing.T, client *registry.MemoryClient, name string) *registry.EntityRecord {
	t.Helper()
	rec, err := client.CreateEntity(context.Background(), registry.EntityRecord{
		Name: name, NameStatus: registry.Primary, Type: registry.Journal,
	}, false)
	if err != nil {
		t.Fatalf("seeding %q: %v", name, err)
	}
	return rec
}

func TestReconcileCreatesWhenNoneExists(t *testing.T) {
	client := registry.NewMemoryClient()
	node := seedPrimary(t, client, "Nature")
	r := NewReconciler(client, nil)

	incoming := registry.PolicyRecord{
		Kind: registry.OaStatusKind, SourceID: 1, OaStatus: registry.Hybrid,
	}
	result, err := r.Reconcile(context.Background(), node.ID, incoming, false)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !result.Created {
		t.Fatal("Created = false")
	}

	stored, err := client.LookupPolicies(context.Background(), registry.OaStatusKind, node.ID)
	if err != nil || len(stored) != 1 {
		t.Fatalf("stored = %v, %v", stored, err)
	}
	if stored[0].OaStatus != registry.Hybrid || stored[0].NodeID != node.ID {
		t.Errorf("stored[0] = %+v", stored[0])
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	client := registry.NewMemoryClient()
	node := seedPrimary(t, client, "Nature")
	r := NewReconciler(client, nil)
	ctx := context.Background()

	six := 6
	incoming := registry.PolicyRecord{
		Kind: registry.GreenKind, SourceID: 1,
		Versions: []string{"AM", "VOR"}, Outlets: []string{"INSTITUTIONAL"},
		DepositAllowed: true, EmbargoMonths: &six, Licence: "CC BY",
	}

	first, err := r.Reconcile(ctx, node.ID, incoming, false)
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	if !first.Created {
		t.Fatal("first run did not create")
	}

	second, err := r.Reconcile(ctx, node.ID, incoming, false)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if second.Created || len(second.Updated) != 0 {
		t.Errorf("second run = %+v, want no-op", second)
	}
	if client.PolicyCount() != 1 {
		t.Errorf("PolicyCount = %d, want 1", client.PolicyCount())
	}
}

func TestReconcileGreenIdentityIncludesVersionSet(t *testing.T) {
	client := registry.NewMemoryClient()
	node := seedPrimary(t, client, "Nature")
	r := NewReconciler(client, nil)
	ctx := context.Background()

	am := registry.PolicyRecord{
		Kind: registry.GreenKind, SourceID: 1,
		Versions: []string{"AM"}, Outlets: []string{"INSTITUTIONAL"},
	}
	vor := registry.PolicyRecord{
		Kind: registry.GreenKind, SourceID: 1,
		Versions: []string{"VOR"}, Outlets: []string{"INSTITUTIONAL"},
	}

	if _, err := r.Reconcile(ctx, node.ID, am, false); err != nil {
		t.Fatalf("Reconcile(am): %v", err)
	}
	result, err := r.Reconcile(ctx, node.ID, vor, false)
	if err != nil {
		t.Fatalf("Reconcile(vor): %v", err)
	}
	if !result.Created {
		t.Error("different version set collapsed into the same policy")
	}
	if client.PolicyCount() != 2 {
		t.Errorf("PolicyCount = %d, want 2", client.PolicyCount())
	}
}

func TestReconcileBackfillsEmptyFields(t *testing.T) {
	client := registry.NewMemoryClient()
	node := seedPrimary(t, client, "Nature")
	r := NewReconciler(client, nil)
	ctx := context.Background()

	sparse := registry.PolicyRecord{
		Kind: registry.GoldKind, SourceID: 1, ApcCurrency: "EUR",
	}
	if _, err := r.Reconcile(ctx, node.ID, sparse, false); err != nil {
		t.Fatalf("Reconcile(sparse): %v", err)
	}

	min := 1500.0
	richer := registry.PolicyRecord{
		Kind: registry.GoldKind, SourceID: 1, ApcCurrency: "EUR",
		ApcValueMin: &min, LicenceOptions: []string{"CC BY", "CC BY-NC"},
	}
	result, err := r.Reconcile(ctx, node.ID, richer, false)
	if err != nil {
		t.Fatalf("Reconcile(richer): %v", err)
	}
	if result.Created {
		t.Fatal("second import created a duplicate policy")
	}
	if len(result.Updated) != 2 {
		t.Fatalf("Updated = %v, want apc_value_min and licence_options", result.Updated)
	}

	stored, _ := client.LookupPolicies(ctx, registry.GoldKind, node.ID)
	if len(stored) != 1 {
		t.Fatalf("stored = %v", stored)
	}
	if stored[0].ApcValueMin == nil || *stored[0].ApcValueMin != 1500.0 {
		t.Errorf("ApcValueMin = %v", stored[0].ApcValueMin)
	}
	if len(stored[0].LicenceOptions) != 2 {
		t.Errorf("LicenceOptions = %v", stored[0].LicenceOptions)
	}
}

func TestReconcileBackfillsGreenEmbargo(t *testing.T) {
	client := registry.NewMemoryClient()
	node := seedPrimary(t, client, "Nature")
	r := NewReconciler(client, nil)
	ctx := context.Background()

	bare := registry.PolicyRecord{
		Kind: registry.GreenKind, SourceID: 1,
		Versions: []string{"AM"}, Outlets: []string{"WEBSITE"},
	}
	if _, err := r.Reconcile(ctx, node.ID, bare, false); err != nil {
		t.Fatalf("Reconcile(bare): %v", err)
	}

	six := 6
	withEmbargo := bare
	withEmbargo.EmbargoMonths = &six
	result, err := r.Reconcile(ctx, node.ID, withEmbargo, false)
	if err != nil {
		t.Fatalf("Reconcile(embargo): %v", err)
	}
	if result.Created || len(result.Updated) != 1 {
		t.Fatalf("result = %+v, want embargo_months staged", result)
	}

	stored, _ := client.LookupPolicies(ctx, registry.GreenKind, node.ID)
	if len(stored) != 1 || stored[0].EmbargoMonths == nil || *stored[0].EmbargoMonths != 6 {
		t.Errorf("stored = %+v", stored)
	}
}

func TestReconcileConflictKeptWithoutForce(t *testing.T) {
	client := registry.NewMemoryClient()
	node := seedPrimary(t, client, "Nature")
	r := NewReconciler(client, nil)
	ctx := context.Background()

	first := registry.PolicyRecord{
		Kind: registry.OaStatusKind, SourceID: 1, OaStatus: registry.Hybrid,
	}
	if _, err := r.Reconcile(ctx, node.ID, first, false); err != nil {
		t.Fatalf("Reconcile(first): %v", err)
	}

	conflicting := registry.PolicyRecord{
		Kind: registry.OaStatusKind, SourceID: 1, OaStatus: registry.FullyOA,
	}
	result, err := r.Reconcile(ctx, node.ID, conflicting, false)
	if err != nil {
		t.Fatalf("Reconcile(conflicting): %v", err)
	}
	if len(result.Updated) != 0 {
		t.Errorf("Updated = %v, want conflict ignored", result.Updated)
	}

	stored, _ := client.LookupPolicies(ctx, registry.OaStatusKind, node.ID)
	if stored[0].OaStatus != registry.Hybrid {
		t.Errorf("OaStatus = %s, want registry value kept", stored[0].OaStatus)
	}
}

func TestReconcileConflictOverwrittenWithForce(t *testing.T) {
	client := registry.NewMemoryClient()
	node := seedPrimary(t, client, "Nature")
	r := NewReconciler(client, nil)
	ctx := context.Background()

	first := registry.PolicyRecord{
		Kind: registry.OaStatusKind, SourceID: 1, OaStatus: registry.Hybrid,
	}
	if _, err := r.Reconcile(ctx, node.ID, first, false); err != nil {
		t.Fatalf("Reconcile(first): %v", err)
	}

	conflicting := registry.PolicyRecord{
		Kind: registry.OaStatusKind, SourceID: 1, OaStatus: registry.FullyOA,
	}
	result, err := r.Reconcile(ctx, node.ID, conflicting, true)
	if err != nil {
		t.Fatalf("Reconcile(force): %v", err)
	}
	if len(result.Updated) != 1 {
		t.Fatalf("Updated = %v, want oa_status overwritten", result.Updated)
	}

	stored, _ := client.LookupPolicies(ctx, registry.OaStatusKind, node.ID)
	if stored[0].OaStatus != registry.FullyOA {
		t.Errorf("OaStatus = %s, want forced value", stored[0].OaStatus)
	}
}

func TestReconcileRedirectsSynonymToPrimary(t *testing.T) {
	client := registry.NewMemoryClient()
	primary := seedPrimary(t, client, "Nature Communications")
	synonym, err := client.CreateEntity(context.Background(), registry.EntityRecord{
		Name: "Nat Commun", NameStatus: registry.Synonym,
		Type: registry.Journal, SynonymOfID: primary.ID,
	}, false)
	if err != nil {
		t.Fatalf("seeding synonym: %v", err)
	}
	r := NewReconciler(client, nil)
	ctx := context.Background()

	incoming := registry.PolicyRecord{
		Kind: registry.OaStatusKind, SourceID: 1, OaStatus: registry.FullyOA,
	}
	if _, err := r.Reconcile(ctx, synonym.ID, incoming, false); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	onPrimary, _ := client.LookupPolicies(ctx, registry.OaStatusKind, primary.ID)
	if len(onPrimary) != 1 {
		t.Fatalf("policies on primary = %v", onPrimary)
	}
	onSynonym, _ := client.LookupPolicies(ctx, registry.OaStatusKind, synonym.ID)
	if len(onSynonym) != 0 {
		t.Errorf("policies attached to the synonym: %v", onSynonym)
	}
}

func TestReconcileSkipsSupersededPolicies(t *testing.T) {
	client := registry.NewMemoryClient()
	node := seedPrimary(t, client, "Nature")
	r := NewReconciler(client, nil)
	ctx := context.Background()

	old := registry.PolicyRecord{
		Kind: registry.OaStatusKind, NodeID: node.ID, SourceID: 1,
		OaStatus: registry.Subscription, Superseded: true,
	}
	if _, err := client.CreatePolicy(ctx, old); err != nil {
		t.Fatalf("seeding superseded policy: %v", err)
	}

	incoming := registry.PolicyRecord{
		Kind: registry.OaStatusKind, SourceID: 1, OaStatus: registry.FullyOA,
	}
	result, err := r.Reconcile(ctx, node.ID, incoming, false)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !result.Created {
		t.Error("incoming policy merged into a superseded one")
	}
	if client.PolicyCount() != 2 {
		t.Errorf("PolicyCount = %d, want 2", client.PolicyCount())
	}
}

func TestReconcileRejectsUnknownKind(t *testing.T) {
	client := registry.NewMemoryClient()
	node := seedPrimary(t, client, "Nature")
	r := NewReconciler(client, nil)

	_, err := r.Reconcile(context.Background(), node.ID, registry.PolicyRecord{Kind: "bronze"}, false)
	if err == nil {
		t.Fatal("unknown policy kind accepted")
	}
}
