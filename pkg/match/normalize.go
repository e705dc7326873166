package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// corporateSuffixes are legal-form tokens dropped during normalization so
// "Acme Inc" and "Acme" compare equal.
var corporateSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "llc": true, "ltd": true,
	"limited": true, "corp": true, "corporation": true, "co": true,
	"company": true, "plc": true, "gmbh": true, "sa": true, "ag": true,
	"nv": true, "bv": true, "sarl": true, "spa": true,
	"holdings": true, "holding": true,
}

// stopwords are low-signal words dropped during normalization.
var stopwords = map[string]bool{
	"the": true, "of": true, "and": true, "for": true, "to": true,
	"in": true, "on": true, "at": true, "by": true, "from": true,
	"with": true, "de": true, "la": true, "le": true, "el": true,
	"da": true, "do": true, "di": true, "du": true, "del": true,
	"des": true, "van": true, "von": true, "y": true, "a": true,
	"an": true,
}

// stripMarks decomposes accented characters and removes the combining
// marks, so "Müller" folds to "Muller".
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize folds a company or office name down to its significant tokens:
// lowercase, accents stripped, "&" spelled out, apostrophes removed, all
// other punctuation treated as whitespace, and corporate suffixes and
// stopwords dropped. Returns "" when nothing significant remains.
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}
	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "’", "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, tok := range fields {
		if corporateSuffixes[tok] || stopwords[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}
