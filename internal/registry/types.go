// Package registry defines the domain model and client contract for the
// canonical registry of journals, publishers and conferences.
package registry

// NodeType classifies a registry entity.
type NodeType string

const (
	Journal    NodeType = "JOURNAL"
	Publisher  NodeType = "PUBLISHER"
	Conference NodeType = "CONFERENCE"
)

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case Journal, Publisher, Conference:
		return true
	}
	return false
}

// NameStatus indicates whether an entity record carries the canonical name
// of something or an alternate spelling of it.
type NameStatus string

const (
	Primary NameStatus = "PRIMARY"
	Synonym NameStatus = "SYNONYM"
	// Uncertain marks names awaiting curatorial review. The engine never
	// writes this status; it occurs in pre-existing data.
	Uncertain NameStatus = "UNCERTAIN"
)

// OaStatusValue is the categorical open-access status of an entity.
type OaStatusValue string

const (
	FullyOA      OaStatusValue = "FULLY_OA"
	Hybrid       OaStatusValue = "HYBRID"
	Subscription OaStatusValue = "SUBSCRIPTION"
)

// EntityRecord is a node in the registry: a journal, publisher or
// conference under one particular name.
type EntityRecord struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	NameStatus NameStatus `json:"name_status"`
	Type       NodeType   `json:"type"`
	ISSN       string     `json:"issn,omitempty"`
	EISSN      string     `json:"eissn,omitempty"`
	URL        string     `json:"url,omitempty"`
	// ParentID references the Primary publisher of a journal or
	// conference. Zero means no parent on file.
	ParentID int64 `json:"parent,omitempty"`
	// SynonymOfID references the Primary entity this name is an alternate
	// representation of. Set iff NameStatus is Synonym.
	SynonymOfID int64 `json:"synonym_of,omitempty"`
	SourceID    int64 `json:"source,omitempty"`
	Vetted      bool  `json:"vetted,omitempty"`
}

// PreferredID returns the id of the Primary record for this entity: the
// record itself if Primary, otherwise its synonym target. Indirection is a
// single level; legacy synonym-of-synonym rows resolve to their immediate
// target and are never followed further.
func (e *EntityRecord) PreferredID() int64 {
	if e.NameStatus != Primary && e.SynonymOfID != 0 {
		return e.SynonymOfID
	}
	return e.ID
}

// IsPrimary reports whether this record carries a canonical name.
func (e *EntityRecord) IsPrimary() bool {
	return e.NameStatus == Primary
}

// PolicyKind selects one of the three policy families attached to entities.
type PolicyKind string

const (
	OaStatusKind PolicyKind = "oa_status"
	GreenKind    PolicyKind = "green"
	GoldKind     PolicyKind = "gold"
)

// Valid reports whether k is a known policy kind.
func (k PolicyKind) Valid() bool {
	switch k {
	case OaStatusKind, GreenKind, GoldKind:
		return true
	}
	return false
}

// PolicyRecord is one policy statement attached to a Primary entity. Kind
// determines which of the kind-specific field groups is meaningful.
type PolicyRecord struct {
	ID          int64      `json:"id"`
	Kind        PolicyKind `json:"kind"`
	NodeID      int64      `json:"node"`
	SourceID    int64      `json:"source"`
	Verbatim    string     `json:"verbatim,omitempty"`
	Problematic bool       `json:"problematic,omitempty"`
	Vetted      bool       `json:"vetted,omitempty"`
	Superseded  bool       `json:"superseded,omitempty"`

	// OaStatusKind
	OaStatus OaStatusValue `json:"oa_status,omitempty"`

	// GreenKind. Outlets and Versions are unordered sets and form part of
	// the green identity key.
	Outlets        []string `json:"outlet,omitempty"`
	Versions       []string `json:"version,omitempty"`
	DepositAllowed bool     `json:"deposit_allowed,omitempty"`
	EmbargoMonths  *int     `json:"embargo_months,omitempty"`
	Licence        string   `json:"licence,omitempty"`

	// GoldKind
	ApcCurrency    string   `json:"apc_currency,omitempty"`
	ApcValueMin    *float64 `json:"apc_value_min,omitempty"`
	ApcValueMax    *float64 `json:"apc_value_max,omitempty"`
	LicenceOptions []string `json:"licence_options,omitempty"`
	DefaultLicence string   `json:"default_licence,omitempty"`
}

// Manuscript version tags used in green policies.
const (
	VersionPreprint = "PREPRINT"
	VersionAM       = "AM"
	VersionVoR      = "VOR"
)

// Self-archiving outlet tags used in green policies.
const (
	OutletWebsite        = "WEBSITE"
	OutletInstitutional  = "INSTITUTIONAL"
	OutletSubject        = "SUBJECT"
	OutletCommercial     = "COMMERCIAL"
	OutletPubMedCentral  = "PMC"
	OutletSocialPlatform = "SOCIAL"
)
