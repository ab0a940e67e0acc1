package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryClient is an in-memory Client. It backs unit tests and dry runs,
// and mirrors the store's semantics: case-insensitive name uniqueness on
// create, substring name lookup, ISSN lookup across both identifier fields.
type MemoryClient struct {
	mu       sync.Mutex
	nextID   int64
	entities map[int64]EntityRecord
	policies map[int64]PolicyRecord
}

// NewMemoryClient returns an empty in-memory registry.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		nextID:   1,
		entities: make(map[int64]EntityRecord),
		policies: make(map[int64]PolicyRecord),
	}
}

func (m *MemoryClient) LookupByID(ctx context.Context, id int64) (*EntityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *MemoryClient) LookupByISSN(ctx context.Context, issn string) ([]EntityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EntityRecord
	for _, e := range m.entities {
		if issn != "" && (e.ISSN == issn || e.EISSN == issn) {
			out = append(out, e)
		}
	}
	sortByID(out)
	return out, nil
}

func (m *MemoryClient) LookupByName(ctx context.Context, name string) ([]EntityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(name)
	if q == "" {
		return nil, nil
	}
	var out []EntityRecord
	for _, e := range m.entities {
		if strings.Contains(strings.ToLower(e.Name), q) {
			out = append(out, e)
		}
	}
	sortByID(out)
	return out, nil
}

func (m *MemoryClient) Synonyms(ctx context.Context, id int64) ([]EntityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	preferred := e.PreferredID()
	var out []EntityRecord
	if p, ok := m.entities[preferred]; ok {
		out = append(out, p)
	}
	for _, s := range m.entities {
		if s.SynonymOfID == preferred && s.ID != preferred {
			out = append(out, s)
		}
	}
	sortByID(out)
	return out, nil
}

func (m *MemoryClient) CreateEntity(ctx context.Context, e EntityRecord, force bool) (*EntityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameExists(e.Name) {
		if !force {
			return nil, &DuplicateNameError{Name: e.Name}
		}
		e.Name = ForcedName(e.Name)
		if m.nameExists(e.Name) {
			return nil, &DuplicateNameError{Name: e.Name}
		}
	}
	e.ID = m.nextID
	m.nextID++
	m.entities[e.ID] = e
	out := e
	return &out, nil
}

func (m *MemoryClient) UpdateEntity(ctx context.Context, id int64, fields map[string]any) (*EntityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "name":
			e.Name = v.(string)
		case "issn":
			e.ISSN = v.(string)
		case "eissn":
			e.EISSN = v.(string)
		case "url":
			e.URL = v.(string)
		case "parent":
			e.ParentID = toInt64(v)
		case "source":
			e.SourceID = toInt64(v)
		case "vetted":
			e.Vetted = v.(bool)
		}
	}
	m.entities[id] = e
	out := e
	return &out, nil
}

func (m *MemoryClient) LookupPolicies(ctx context.Context, kind PolicyKind, nodeID int64) ([]PolicyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PolicyRecord
	for _, p := range m.policies {
		if p.Kind == kind && p.NodeID == nodeID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryClient) CreatePolicy(ctx context.Context, p PolicyRecord) (*PolicyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextID
	m.nextID++
	m.policies[p.ID] = p
	out := p
	return &out, nil
}

func (m *MemoryClient) UpdatePolicy(ctx context.Context, kind PolicyKind, policyID int64, fields map[string]any) (*PolicyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[policyID]
	if !ok || p.Kind != kind {
		return nil, ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "oa_status":
			p.OaStatus = OaStatusValue(v.(string))
		case "outlet":
			p.Outlets = toStrings(v)
		case "version":
			p.Versions = toStrings(v)
		case "deposit_allowed":
			p.DepositAllowed = v.(bool)
		case "embargo_months":
			n := int(toInt64(v))
			p.EmbargoMonths = &n
		case "licence":
			p.Licence = v.(string)
		case "apc_currency":
			p.ApcCurrency = v.(string)
		case "apc_value_min":
			f := toFloat64(v)
			p.ApcValueMin = &f
		case "apc_value_max":
			f := toFloat64(v)
			p.ApcValueMax = &f
		case "licence_options":
			p.LicenceOptions = toStrings(v)
		case "default_licence":
			p.DefaultLicence = v.(string)
		case "verbatim":
			p.Verbatim = v.(string)
		case "problematic":
			p.Problematic = v.(bool)
		case "vetted":
			p.Vetted = v.(bool)
		case "superseded":
			p.Superseded = v.(bool)
		}
	}
	m.policies[policyID] = p
	out := p
	return &out, nil
}

// EntityCount returns the number of stored entities.
func (m *MemoryClient) EntityCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entities)
}

// PolicyCount returns the number of stored policies.
func (m *MemoryClient) PolicyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.policies)
}

func (m *MemoryClient) nameExists(name string) bool {
	for _, e := range m.entities {
		if strings.EqualFold(e.Name, name) {
			return true
		}
	}
	return false
}

func sortByID(recs []EntityRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func toStrings(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			out = append(out, e.(string))
		}
		return out
	}
	return nil
}
