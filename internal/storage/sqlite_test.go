package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openaccesstools/oar/internal/registry"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestEntity(t *testing.T, db *DB, e registry.EntityRecord) *registry.EntityRecord {
	t.Helper()
	rec, err := db.CreateEntity(context.Background(), e, false)
	if err != nil {
		t.Fatalf("CreateEntity(%q): %v", e.Name, err)
	}
	return rec
}

func TestEntityRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	created := createTestEntity(t, db, registry.EntityRecord{
		Name: "Nature", NameStatus: registry.Primary, Type: registry.Journal,
		ISSN: "0028-0836", EISSN: "1476-4687", URL: "https://nature.com",
		SourceID: 3, Vetted: true,
	})
	if created.ID == 0 {
		t.Fatal("ID not assigned")
	}

	got, err := db.LookupByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("LookupByID: %v", err)
	}
	if got.Name != "Nature" || got.ISSN != "0028-0836" || got.EISSN != "1476-4687" {
		t.Errorf("got = %+v", got)
	}
	if got.URL != "https://nature.com" || got.SourceID != 3 || !got.Vetted {
		t.Errorf("got = %+v", got)
	}
	if got.NameStatus != registry.Primary || got.Type != registry.Journal {
		t.Errorf("got = %+v", got)
	}
}

func TestLookupByIDNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.LookupByID(context.Background(), 999)
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLookupByISSNSearchesBothColumns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	byISSN := createTestEntity(t, db, registry.EntityRecord{
		Name: "Print Journal", NameStatus: registry.Primary, Type: registry.Journal,
		ISSN: "1234-5678",
	})
	byEISSN := createTestEntity(t, db, registry.EntityRecord{
		Name: "Online Journal", NameStatus: registry.Primary, Type: registry.Journal,
		EISSN: "1234-5678",
	})

	recs, err := db.LookupByISSN(ctx, "1234-5678")
	if err != nil {
		t.Fatalf("LookupByISSN: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("recs = %+v, want both columns matched", recs)
	}
	if recs[0].ID != byISSN.ID || recs[1].ID != byEISSN.ID {
		t.Errorf("order = %d, %d, want ascending ids", recs[0].ID, recs[1].ID)
	}

	none, err := db.LookupByISSN(ctx, "0000-0000")
	if err != nil || len(none) != 0 {
		t.Errorf("miss = %v, %v", none, err)
	}
}

func TestLookupByNameSubstringCaseInsensitive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	createTestEntity(t, db, registry.EntityRecord{
		Name: "Nature Communications", NameStatus: registry.Primary, Type: registry.Journal,
	})
	createTestEntity(t, db, registry.EntityRecord{
		Name: "Nature", NameStatus: registry.Primary, Type: registry.Journal,
	})
	createTestEntity(t, db, registry.EntityRecord{
		Name: "Cell", NameStatus: registry.Primary, Type: registry.Journal,
	})

	recs, err := db.LookupByName(ctx, "nature")
	if err != nil {
		t.Fatalf("LookupByName: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("recs = %+v, want the two Nature titles", recs)
	}
}

func TestLookupByNameEscapesWildcards(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	createTestEntity(t, db, registry.EntityRecord{
		Name: "100% Science", NameStatus: registry.Primary, Type: registry.Journal,
	})
	createTestEntity(t, db, registry.EntityRecord{
		Name: "1000 Science", NameStatus: registry.Primary, Type: registry.Journal,
	})

	recs, err := db.LookupByName(ctx, "100% Sci")
	if err != nil {
		t.Fatalf("LookupByName: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "100% Science" {
		t.Errorf("recs = %+v, want the literal percent match only", recs)
	}
}

func TestCreateEntityDuplicateName(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	createTestEntity(t, db, registry.EntityRecord{
		Name: "Nature", NameStatus: registry.Primary, Type: registry.Journal,
	})

	_, err := db.CreateEntity(ctx, registry.EntityRecord{
		Name: "NATURE", NameStatus: registry.Primary, Type: registry.Journal,
	}, false)
	var dup *registry.DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateNameError", err)
	}

	forced, err := db.CreateEntity(ctx, registry.EntityRecord{
		Name: "Nature", NameStatus: registry.Primary, Type: registry.Journal,
	}, true)
	if err != nil {
		t.Fatalf("forced CreateEntity: %v", err)
	}
	if !strings.HasPrefix(forced.Name, "Nature [") {
		t.Errorf("forced name = %q", forced.Name)
	}
}

func TestUpdateEntity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec := createTestEntity(t, db, registry.EntityRecord{
		Name: "Nature", NameStatus: registry.Primary, Type: registry.Journal,
	})

	updated, err := db.UpdateEntity(ctx, rec.ID, map[string]any{
		"issn":   "0028-0836",
		"url":    "https://nature.com",
		"vetted": 1,
	})
	if err != nil {
		t.Fatalf("UpdateEntity: %v", err)
	}
	if updated.ISSN != "0028-0836" || updated.URL != "https://nature.com" || !updated.Vetted {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := db.UpdateEntity(ctx, rec.ID, map[string]any{"bogus": 1}); err == nil {
		t.Error("unknown field accepted")
	}
	if _, err := db.UpdateEntity(ctx, 999, map[string]any{"issn": "1111-1111"}); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("missing id err = %v, want ErrNotFound", err)
	}
}

func TestSynonymsReturnsFullFamily(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	primary := createTestEntity(t, db, registry.EntityRecord{
		Name: "Nature Communications", NameStatus: registry.Primary, Type: registry.Journal,
	})
	createTestEntity(t, db, registry.EntityRecord{
		Name: "Nat Commun", NameStatus: registry.Synonym, Type: registry.Journal,
		SynonymOfID: primary.ID,
	})
	other := createTestEntity(t, db, registry.EntityRecord{
		Name: "Cell", NameStatus: registry.Primary, Type: registry.Journal,
	})

	// Asking from the synonym side resolves to the same family.
	recs, err := db.Synonyms(ctx, primary.ID+1)
	if err != nil {
		t.Fatalf("Synonyms: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("family = %+v", recs)
	}
	for _, r := range recs {
		if r.ID == other.ID {
			t.Errorf("unrelated entity in family: %+v", r)
		}
	}
}

func TestPolicyRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	node := createTestEntity(t, db, registry.EntityRecord{
		Name: "Nature", NameStatus: registry.Primary, Type: registry.Journal,
	})

	six := 6
	created, err := db.CreatePolicy(ctx, registry.PolicyRecord{
		Kind: registry.GreenKind, NodeID: node.ID, SourceID: 3,
		Verbatim: "self-archiving permitted after embargo",
		Outlets:  []string{"INSTITUTIONAL", "SUBJECT"}, Versions: []string{"AM"},
		DepositAllowed: true, EmbargoMonths: &six, Licence: "CC BY-NC",
	})
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("ID not assigned")
	}

	recs, err := db.LookupPolicies(ctx, registry.GreenKind, node.ID)
	if err != nil {
		t.Fatalf("LookupPolicies: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("recs = %+v", recs)
	}
	got := recs[0]
	if got.NodeID != node.ID || got.SourceID != 3 || !got.DepositAllowed {
		t.Errorf("got = %+v", got)
	}
	if len(got.Outlets) != 2 || len(got.Versions) != 1 || got.Versions[0] != "AM" {
		t.Errorf("sets = %v / %v", got.Outlets, got.Versions)
	}
	if got.EmbargoMonths == nil || *got.EmbargoMonths != 6 {
		t.Errorf("EmbargoMonths = %v", got.EmbargoMonths)
	}
	if got.Licence != "CC BY-NC" || got.Verbatim != "self-archiving permitted after embargo" {
		t.Errorf("got = %+v", got)
	}

	// Kind is part of the lookup key.
	none, err := db.LookupPolicies(ctx, registry.GoldKind, node.ID)
	if err != nil || len(none) != 0 {
		t.Errorf("gold policies = %v, %v", none, err)
	}
}

func TestUpdatePolicySetsAndScalars(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	node := createTestEntity(t, db, registry.EntityRecord{
		Name: "Nature", NameStatus: registry.Primary, Type: registry.Journal,
	})
	created, err := db.CreatePolicy(ctx, registry.PolicyRecord{
		Kind: registry.GoldKind, NodeID: node.ID, SourceID: 3, ApcCurrency: "EUR",
	})
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	updated, err := db.UpdatePolicy(ctx, registry.GoldKind, created.ID, map[string]any{
		"apc_value_min":   9750.0,
		"licence_options": []string{"CC BY", "CC BY-NC"},
		"default_licence": "CC BY",
	})
	if err != nil {
		t.Fatalf("UpdatePolicy: %v", err)
	}
	if updated.ApcValueMin == nil || *updated.ApcValueMin != 9750.0 {
		t.Errorf("ApcValueMin = %v", updated.ApcValueMin)
	}
	if len(updated.LicenceOptions) != 2 || updated.DefaultLicence != "CC BY" {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := db.UpdatePolicy(ctx, registry.OaStatusKind, created.ID, map[string]any{
		"oa_status": "HYBRID",
	}); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("wrong kind err = %v, want ErrNotFound", err)
	}
}

func TestCounts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	node := createTestEntity(t, db, registry.EntityRecord{
		Name: "Nature", NameStatus: registry.Primary, Type: registry.Journal,
	})
	if _, err := db.CreatePolicy(ctx, registry.PolicyRecord{
		Kind: registry.OaStatusKind, NodeID: node.ID, OaStatus: registry.Hybrid,
	}); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	entities, err := db.EntityCount()
	if err != nil || entities != 1 {
		t.Errorf("EntityCount = %d, %v", entities, err)
	}
	policies, err := db.PolicyCount()
	if err != nil || policies != 1 {
		t.Errorf("PolicyCount = %d, %v", policies, err)
	}
}
