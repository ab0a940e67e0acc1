package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openaccesstools/oar/internal/registry"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(server.URL, WithToken("test-token"), WithRateLimit(1000))
	return client, server
}

func TestLookupByID(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/nodes/42" || r.Method != http.MethodGet {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token test-token" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(registry.EntityRecord{
			ID: 42, Name: "Nature", NameStatus: registry.Primary, Type: registry.Journal,
		})
	})
	defer server.Close()

	rec, err := client.LookupByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("LookupByID: %v", err)
	}
	if rec.ID != 42 || rec.Name != "Nature" {
		t.Errorf("rec = %+v", rec)
	}
}

func TestLookupByIDNotFound(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer server.Close()

	_, err := client.LookupByID(context.Background(), 999)
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLookupByNameQueryEscaped(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("name"); got != "Ecology & Evolution" {
			t.Errorf("name query = %q", got)
		}
		io.WriteString(w, "[]")
	})
	defer server.Close()

	recs, err := client.LookupByName(context.Background(), "Ecology & Evolution")
	if err != nil {
		t.Fatalf("LookupByName: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("recs = %+v", recs)
	}
}

func TestCreateEntity(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/nodes" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var body registry.EntityRecord
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		if body.Name != "Nature" {
			t.Errorf("body = %+v", body)
		}
		body.ID = 7
		json.NewEncoder(w).Encode(body)
	})
	defer server.Close()

	rec, err := client.CreateEntity(context.Background(), registry.EntityRecord{
		Name: "Nature", NameStatus: registry.Primary, Type: registry.Journal,
	}, false)
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if rec.ID != 7 {
		t.Errorf("rec = %+v", rec)
	}
}

func TestCreateEntityConflict(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"detail": "name already taken"}`)
	})
	defer server.Close()

	_, err := client.CreateEntity(context.Background(), registry.EntityRecord{
		Name: "Nature",
	}, false)
	var dup *registry.DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateNameError", err)
	}
	if dup.Name != "Nature" {
		t.Errorf("dup = %+v", dup)
	}
}

func TestCreateEntityForceFlag(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("force") != "true" {
			t.Errorf("force missing from %s", r.URL.String())
		}
		json.NewEncoder(w).Encode(registry.EntityRecord{ID: 1, Name: "Nature [4821]"})
	})
	defer server.Close()

	rec, err := client.CreateEntity(context.Background(), registry.EntityRecord{Name: "Nature"}, true)
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if rec.Name != "Nature [4821]" {
		t.Errorf("rec = %+v", rec)
	}
}

func TestUpdateEntitySendsPatch(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/nodes/42" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		if fields["issn"] != "0028-0836" {
			t.Errorf("fields = %v", fields)
		}
		json.NewEncoder(w).Encode(registry.EntityRecord{ID: 42, ISSN: "0028-0836"})
	})
	defer server.Close()

	rec, err := client.UpdateEntity(context.Background(), 42, map[string]any{"issn": "0028-0836"})
	if err != nil {
		t.Fatalf("UpdateEntity: %v", err)
	}
	if rec.ISSN != "0028-0836" {
		t.Errorf("rec = %+v", rec)
	}
}

func TestLookupPoliciesPath(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/policies/green" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("node") != "42" {
			t.Errorf("node query = %q", r.URL.Query().Get("node"))
		}
		json.NewEncoder(w).Encode([]registry.PolicyRecord{
			{ID: 1, Kind: registry.GreenKind, NodeID: 42, Versions: []string{"AM"}},
		})
	})
	defer server.Close()

	recs, err := client.LookupPolicies(context.Background(), registry.GreenKind, 42)
	if err != nil {
		t.Fatalf("LookupPolicies: %v", err)
	}
	if len(recs) != 1 || recs[0].NodeID != 42 {
		t.Errorf("recs = %+v", recs)
	}
}

func TestRetryOnServerError(t *testing.T) {
	attempts := 0
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(registry.EntityRecord{ID: 1, Name: "Nature"})
	})
	defer server.Close()

	rec, err := client.LookupByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("LookupByID: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want a retry after the 500", attempts)
	}
	if rec.Name != "Nature" {
		t.Errorf("rec = %+v", rec)
	}
}

func TestAuthErrorNotRetried(t *testing.T) {
	attempts := 0
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer server.Close()

	_, err := client.LookupByID(context.Background(), 1)
	if !IsAuthError(err) {
		t.Fatalf("err = %v, want auth error", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want no retries", attempts)
	}
}

func TestBadRequestCarriesDetail(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"detail": "issn is malformed"}`)
	})
	defer server.Close()

	_, err := client.UpdateEntity(context.Background(), 1, map[string]any{"issn": "bad"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "issn is malformed" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestInvalidResponseBody(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	})
	defer server.Close()

	_, err := client.LookupByID(context.Background(), 1)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("err = %v, want ErrInvalidResponse", err)
	}
}
