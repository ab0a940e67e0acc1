// Package normalize cleans and canonicalizes free-text entity names and
// identifiers before matching.
package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the registry's name column limit.
const MaxNameLength = 200

// illegalCharacters maps characters that break registry lookups to safe
// equivalents. The dotted capital I appears in Turkish-language journal
// dumps; zero-width spaces leak in from scraped HTML.
var illegalCharacters = map[string]string{
	"İ": "I", // dotted capital I
	"​": "",  // zero-width space
}

// issnRe matches well-formed ISSNs and eISSNs.
var issnRe = regexp.MustCompile(`^[0-9]{4}-[0-9]{3}[0-9X]$`)

// CleanName returns a registry-safe version of a raw name: illegal
// characters replaced, runs of spaces collapsed, overlong names truncated
// with an ellipsis. Pure function.
func CleanName(raw string) string {
	name := raw
	for k, v := range illegalCharacters {
		name = strings.ReplaceAll(name, k, v)
	}
	for strings.Contains(name, "  ") {
		name = strings.ReplaceAll(name, "  ", " ")
	}
	// Length is in characters, not bytes; a byte cut could split a rune.
	if utf8.RuneCountInString(name) > MaxNameLength {
		runes := []rune(name)
		name = string(runes[:MaxNameLength-3]) + "..."
	}
	return name
}

// ValidISSN reports whether s is a well-formed ISSN (NNNN-NNN[NX]).
func ValidISSN(s string) bool {
	return issnRe.MatchString(s)
}

// CleanISSN returns s if it is a well-formed ISSN and "" otherwise.
// Malformed identifiers are treated as absent rather than fatal.
func CleanISSN(s string) string {
	s = strings.TrimSpace(s)
	if !ValidISSN(s) {
		return ""
	}
	return s
}

// CleanURL drops URLs containing underscores, which the registry's URL
// validation rejects.
func CleanURL(u string) string {
	if strings.Contains(u, "_") {
		return ""
	}
	return u
}

// typeSuffixes are the disambiguation decorations appended to homonym names.
var typeSuffixes = []string{"(journal)", "(publisher)", "(conference)"}

// hasTypeSuffix reports whether the lowercased name carries a type
// disambiguation suffix of its own.
func hasTypeSuffix(lower string) bool {
	for _, s := range typeSuffixes {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// StripTypeSuffix removes type disambiguation decoration from a lowercased
// name for comparison purposes.
func StripTypeSuffix(lower string) string {
	for _, s := range typeSuffixes {
		lower = strings.ReplaceAll(lower, s, "")
	}
	return strings.TrimSpace(lower)
}

// MatchedName normalizes the name of a matched registry record for
// comparison with a candidate name, avoiding false negatives in duplicate
// detection. Type suffixes on the matched name are stripped unless the
// candidate name itself carries one, and an embedded candidate publisher
// decoration is removed unless the candidate name is nothing but the
// publisher name.
func MatchedName(matched, candName, candPublisher string) string {
	candLower := strings.ToLower(candName)
	var mrName string
	if hasTypeSuffix(candLower) {
		mrName = strings.TrimSpace(strings.ToLower(matched))
	} else {
		mrName = StripTypeSuffix(strings.ToLower(matched))
	}

	pub := strings.TrimSpace(candPublisher)
	if pub == "" {
		return mrName
	}
	pubFold := strings.ToLower(ASCIIFold(pub))
	nameFold := strings.ToLower(ASCIIFold(candName))
	embedded := strings.Contains(strings.ToLower(ASCIIFold(mrName)), pubFold)
	decorated := strings.Contains(nameFold, "("+pubFold+")")
	nameIsPublisher := strings.TrimSpace(strings.ReplaceAll(nameFold, pubFold, "")) == ""
	if embedded && (!decorated || nameIsPublisher) {
		mrName = strings.ReplaceAll(mrName, "("+strings.ToLower(pub)+")", "")
		mrName = strings.ReplaceAll(mrName, "("+pubFold+")", "")
		mrName = strings.TrimSpace(mrName)
	}
	return mrName
}
