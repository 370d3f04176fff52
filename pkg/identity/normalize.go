package identity

import (
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`([a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+)`)

	// Form labels the OCR leaves glued to person names.
	labelRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)nombres\s+del\s+tutor\s+instituci[oó]n\s+receptora\s*:\s*`),
		regexp.MustCompile(`(?i)tutor\s+acad[eé]mico\s*:\s*`),
		regexp.MustCompile(`(?i)tutor\s*:\s*`),
		regexp.MustCompile(`(?i)autor\s*\(estudiante\)\s*:\s*`),
		regexp.MustCompile(`(?i)autor\s*:\s*`),
		regexp.MustCompile(`(?i)author\s*:\s*`),
	}

	spacesRe = regexp.MustCompile(`\s+`)

	titlePrefixes = map[string]bool{
		"ing": true, "msc": true, "dr": true, "dra": true, "lic": true,
		"abg": true, "sr": true, "sra": true, "prof": true, "phd": true,
	}

	keyStripRe = regexp.MustCompile(`[^a-z0-9_]`)

	accentReplacer = strings.NewReplacer(
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
		"Á", "A", "É", "E", "Í", "I", "Ó", "O", "Ú", "U", "Ü", "U", "Ñ", "N",
	)
)

// SearchTerms are the prefix-search fragments sent to the directory.
type SearchTerms struct {
	First       string
	First2      string
	Last        string
	LastFirst   string
	FullASCII   string
	EmailPrefix string
}

// Empty reports whether no usable term was extracted.
func (t SearchTerms) Empty() bool {
	return t.First == "" && t.Last == "" && t.FullASCII == "" && t.EmailPrefix == ""
}

// NormalizePerson cleans an OCR-extracted person string: extracts an
// embedded email, strips form labels and academic titles and collapses
// whitespace. Names shorter than 3 characters after cleaning are
// discarded.
func NormalizePerson(raw string) (name, email string) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ""
	}

	if m := emailRe.FindString(s); m != "" {
		email = m
	}

	cleaned := s
	for _, re := range labelRes {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(spacesRe.ReplaceAllString(cleaned, " "))

	tokens := strings.Fields(cleaned)
	for len(tokens) > 0 {
		t := strings.ToLower(strings.TrimRight(tokens[0], "."))
		if !titlePrefixes[t] {
			break
		}
		tokens = tokens[1:]
	}
	cleaned = strings.Join(tokens, " ")

	if len(cleaned) < 3 {
		cleaned = ""
	}
	return cleaned, email
}

// BuildSearchTerms derives directory prefix-search fragments from a raw
// person string.
func BuildSearchTerms(raw string) (name, email string, terms SearchTerms) {
	name, email = NormalizePerson(raw)
	if name == "" && email == "" {
		return "", "", SearchTerms{}
	}

	if name != "" {
		ascii := StripAccents(name)
		tokens := strings.Fields(ascii)
		if len(tokens) > 0 {
			terms.First = tokens[0]
			terms.Last = tokens[len(tokens)-1]
		}
		if len(tokens) >= 2 {
			terms.First2 = tokens[0] + " " + tokens[1]
			terms.LastFirst = tokens[len(tokens)-1] + " " + tokens[0]
		}
		terms.FullASCII = ascii
	}
	if email != "" {
		terms.EmailPrefix = strings.SplitN(email, "@", 2)[0]
	}
	return name, email, terms
}

// StripAccents folds the Spanish accented letters to ASCII.
func StripAccents(s string) string {
	return accentReplacer.Replace(s)
}

// SanitizeKey turns an Azure GUID (or any external id) into a graph
// key: lowercased, hyphens removed, everything outside [a-z0-9_]
// dropped. Empty results are returned as "" and must be rejected by the
// caller.
func SanitizeKey(val string) string {
	k := strings.ToLower(strings.TrimSpace(val))
	k = strings.ReplaceAll(k, "-", "")
	return keyStripRe.ReplaceAllString(k, "")
}
