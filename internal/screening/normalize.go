package screening

import (
	"regexp"
	"strings"
)

// Convention selects the case transform used when normalizing names. Each
// list source canonicalizes to the case its upstream data is published in.
type Convention int

const (
	// Lower folds names to lowercase (EU, OpenSanctions).
	Lower Convention = iota
	// Upper folds names to uppercase (OFAC SDN).
	Upper
)

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9\s]`)
var whitespace = regexp.MustCompile(`\s+`)

// westernSuffixes covers the legal-entity forms common in Western European
// and US company names.
var westernSuffixes = []string{
	"inc", "llc", "ltd", "limited", "corp", "corporation",
	"company", "co", "plc", "sa", "ag", "gmbh", "bv",
	"nv", "spa", "srl", "sarl", "ab", "as", "oy", "se",
}

// russianSuffixes covers transliterated Russian corporate forms that show up
// throughout the SDN list, on top of the Western set.
var russianSuffixes = []string{
	"ooo", "oao", "zao", "pao", "ao", "jsc", "pjsc", "ojsc", "cjsc", "gup", "fgup",
}

// Normalizer canonicalizes raw company names into a comparable token form.
// It is deliberately crude: case folding, punctuation stripping, and literal
// tail-suffix removal only. There is no stemming and no transliteration, so
// recall against obfuscated or script-shifted names is limited.
type Normalizer struct {
	convention Convention
	suffixes   map[string]struct{}
}

// NewNormalizer builds a normalizer for the given case convention and legal
// suffix vocabulary.
func NewNormalizer(convention Convention, suffixes []string) *Normalizer {
	set := make(map[string]struct{}, len(suffixes))
	for _, s := range suffixes {
		set[strings.ToLower(s)] = struct{}{}
	}
	return &Normalizer{convention: convention, suffixes: set}
}

// NewWesternNormalizer returns the normalizer used for EU and OpenSanctions
// names: lowercase with Western legal suffixes stripped.
func NewWesternNormalizer() *Normalizer {
	return NewNormalizer(Lower, westernSuffixes)
}

// NewOFACNormalizer returns the normalizer used for OFAC SDN names:
// uppercase, with Russian transliterated corporate suffixes recognized in
// addition to the Western set.
func NewOFACNormalizer() *Normalizer {
	suffixes := make([]string, 0, len(westernSuffixes)+len(russianSuffixes))
	suffixes = append(suffixes, westernSuffixes...)
	suffixes = append(suffixes, russianSuffixes...)
	return NewNormalizer(Upper, suffixes)
}

// Normalize canonicalizes a raw name: case transform, punctuation replaced
// with spaces, legal suffixes stripped repeatedly from the tail, whitespace
// collapsed. Idempotent.
func (n *Normalizer) Normalize(raw string) string {
	name := strings.TrimSpace(raw)
	switch n.convention {
	case Upper:
		name = strings.ToUpper(name)
	default:
		name = strings.ToLower(name)
	}

	name = nonAlnum.ReplaceAllString(name, " ")

	words := strings.Fields(name)
	for len(words) > 0 {
		last := strings.ToLower(words[len(words)-1])
		if _, ok := n.suffixes[last]; !ok {
			break
		}
		words = words[:len(words)-1]
	}

	return whitespace.ReplaceAllString(strings.Join(words, " "), " ")
}
