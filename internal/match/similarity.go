package match

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Similarity scores how alike two names are, in [0, 1]. The metric used
// for the ISSN multi-hit tie-break is a policy decision, so it is
// injectable rather than hard-coded.
type Similarity interface {
	Score(a, b string) float64
}

// metricSimilarity adapts a strutil metric, comparing case-insensitively.
type metricSimilarity struct {
	m strutil.StringMetric
}

func (s metricSimilarity) Score(a, b string) float64 {
	return strutil.Similarity(strings.ToLower(a), strings.ToLower(b), s.m)
}

// NewSimilarity returns the named similarity metric. Known names are
// "jaro-winkler", "jaro", "sorensen-dice" and "levenshtein"; anything else
// falls back to the default.
func NewSimilarity(name string) Similarity {
	switch name {
	case "jaro":
		return metricSimilarity{m: metrics.NewJaro()}
	case "sorensen-dice":
		return metricSimilarity{m: metrics.NewSorensenDice()}
	case "levenshtein":
		return metricSimilarity{m: metrics.NewLevenshtein()}
	default:
		return DefaultSimilarity()
	}
}

// DefaultSimilarity returns the default metric: Jaro-Winkler over
// lowercased names. It favors shared prefixes, which suits journal titles
// that diverge in trailing subtitle text.
func DefaultSimilarity() Similarity {
	return metricSimilarity{m: metrics.NewJaroWinkler()}
}
