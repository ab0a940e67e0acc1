package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openaccesstools/oar/internal/registry"
)

// fieldClass selects how a field is compared during a merge. Numeric
// fields compare after normalizing to float64, set fields compare
// order-independently, stringified fields compare as their string form.
type fieldClass int

const (
	classString fieldClass = iota
	classNumeric
	classSet
	classStringified
	classBool
)

// fieldPair is one field of a policy with the incoming and existing value
// side by side.
type fieldPair struct {
	name     string
	class    fieldClass
	incoming any
	existing any
}

// comparableFields is the single dispatch site mapping a policy kind to
// its mergeable field set. Identity-key fields (green version/outlet) are
// included; they compare equal by construction on a matched policy.
func comparableFields(kind registry.PolicyKind, in, ex registry.PolicyRecord) []fieldPair {
	common := []fieldPair{
		{"verbatim", classString, in.Verbatim, ex.Verbatim},
		{"problematic", classBool, in.Problematic, ex.Problematic},
		{"vetted", classBool, in.Vetted, ex.Vetted},
	}
	switch kind {
	case registry.OaStatusKind:
		return append([]fieldPair{
			{"oa_status", classString, string(in.OaStatus), string(ex.OaStatus)},
		}, common...)
	case registry.GreenKind:
		return append([]fieldPair{
			{"outlet", classSet, in.Outlets, ex.Outlets},
			{"version", classSet, in.Versions, ex.Versions},
			{"deposit_allowed", classBool, in.DepositAllowed, ex.DepositAllowed},
			{"embargo_months", classStringified, in.EmbargoMonths, ex.EmbargoMonths},
			{"licence", classString, in.Licence, ex.Licence},
		}, common...)
	case registry.GoldKind:
		return append([]fieldPair{
			{"apc_currency", classString, in.ApcCurrency, ex.ApcCurrency},
			{"apc_value_min", classNumeric, in.ApcValueMin, ex.ApcValueMin},
			{"apc_value_max", classNumeric, in.ApcValueMax, ex.ApcValueMax},
			{"licence_options", classSet, in.LicenceOptions, ex.LicenceOptions},
			{"default_licence", classString, in.DefaultLicence, ex.DefaultLicence},
		}, common...)
	}
	return nil
}

// sameIdentity reports whether two policies of the given kind are the
// same policy for matching purposes: source alone for oa_status and gold,
// source plus version and outlet sets for green.
func sameIdentity(kind registry.PolicyKind, a, b registry.PolicyRecord) bool {
	if a.SourceID != b.SourceID {
		return false
	}
	if kind != registry.GreenKind {
		return true
	}
	return setsEqual(a.Versions, b.Versions) && setsEqual(a.Outlets, b.Outlets)
}

func (f fieldPair) incomingEmpty() bool { return empty(f.class, f.incoming) }
func (f fieldPair) existingEmpty() bool { return empty(f.class, f.existing) }

func empty(class fieldClass, v any) bool {
	switch class {
	case classString:
		return v.(string) == ""
	case classNumeric:
		return v.(*float64) == nil
	case classSet:
		return len(v.([]string)) == 0
	case classStringified:
		return v.(*int) == nil
	case classBool:
		return !v.(bool)
	}
	return true
}

// equal compares incoming and existing values of one field, both known to
// be non-empty.
func (f fieldPair) equal() bool {
	switch f.class {
	case classString:
		return f.incoming.(string) == f.existing.(string)
	case classNumeric:
		return *f.incoming.(*float64) == *f.existing.(*float64)
	case classSet:
		return setsEqual(f.incoming.([]string), f.existing.([]string))
	case classStringified:
		return fmt.Sprint(*f.incoming.(*int)) == fmt.Sprint(*f.existing.(*int))
	case classBool:
		return f.incoming.(bool) == f.existing.(bool)
	}
	return false
}

// updateValue returns the plain value to stage for an update.
func (f fieldPair) updateValue() any {
	switch f.class {
	case classNumeric:
		return *f.incoming.(*float64)
	case classStringified:
		return *f.incoming.(*int)
	default:
		return f.incoming
	}
}

// display renders a field value for conflict warnings.
func (f fieldPair) display(v any) string {
	switch f.class {
	case classNumeric:
		return fmt.Sprintf("%g", *v.(*float64))
	case classStringified:
		return fmt.Sprint(*v.(*int))
	case classSet:
		s := append([]string(nil), v.([]string)...)
		sort.Strings(s)
		return strings.Join(s, ",")
	default:
		return fmt.Sprint(v)
	}
}

// setsEqual compares two string sets order-independently.
func setsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
