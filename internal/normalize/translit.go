package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTable handles characters that NFD decomposition alone cannot reduce
// to ASCII: ligatures, crossed and slashed letters, and common
// typographic punctuation found in publisher names.
var foldTable = map[rune]string{
	'ß': "ss", 'ẞ': "SS",
	'æ': "ae", 'Æ': "AE",
	'œ': "oe", 'Œ': "OE",
	'ø': "o", 'Ø': "O",
	'đ': "d", 'Đ': "D",
	'ð': "d", 'Ð': "D",
	'þ': "th", 'Þ': "Th",
	'ł': "l", 'Ł': "L",
	'ħ': "h", 'Ħ': "H",
	'ı': "i",
	'ĸ': "k",
	'ŋ': "ng", 'Ŋ': "NG",
	'ŧ': "t", 'Ŧ': "T",
	'–': "-", '—': "-",
	'‘': "'", '’': "'",
	'“': `"`, '”': `"`,
	'…': "...",
	' ': " ",
}

// asciiStripper removes combining marks left behind by NFD decomposition.
var asciiStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// IsASCII reports whether s contains only ASCII characters.
func IsASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// ASCIIFold transliterates s to an ASCII approximation: accents are
// stripped via Unicode decomposition, ligatures and special letters go
// through the fold table, and anything still outside ASCII is dropped.
func ASCIIFold(s string) string {
	if IsASCII(s) {
		return s
	}
	stripped, _, err := transform.String(asciiStripper, s)
	if err != nil {
		stripped = s
	}
	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		if rep, ok := foldTable[r]; ok {
			b.WriteString(rep)
		}
	}
	return b.String()
}
