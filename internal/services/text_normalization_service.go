package services

import (
	"strings"
	"unicode"

	"ridechat/internal/models"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TextNormalizationService undoes common obfuscation before classification.
type TextNormalizationService interface {
	Normalize(text string) *models.NormalizedText
	Similarity(a, b string) float64
}

type textNormalizationService struct{}

func NewTextNormalizationService() TextNormalizationService {
	return &textNormalizationService{}
}

// substitutions is the leetspeak table. Order only matters for reporting.
var substitutions = map[rune]rune{
	'@': 'a',
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'8': 'b',
	'$': 's',
}

// Normalize lowercases, folds diacritics, collapses whitespace, applies the
// substitution table and finally strips anything outside
// [a-z0-9 .,!?;:'-]. Substitution runs before stripping so "@dmin" becomes
// "admin" rather than "dmin".
func (s *textNormalizationService) Normalize(text string) *models.NormalizedText {
	out := strings.ToLower(text)
	out = foldDiacritics(out)
	out = strings.Join(strings.Fields(out), " ")

	replacements := make(map[string]string)
	out = strings.Map(func(r rune) rune {
		if to, ok := substitutions[r]; ok {
			replacements[string(r)] = string(to)
			return to
		}
		return r
	}, out)

	out = strings.Map(func(r rune) rune {
		if isAllowedRune(r) {
			return r
		}
		return -1
	}, out)

	return &models.NormalizedText{
		Original:     text,
		Normalized:   out,
		Replacements: replacements,
	}
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

func isAllowedRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == ' ', r == '.', r == ',', r == '!', r == '?', r == ';', r == ':', r == '\'', r == '-':
		return true
	}
	return false
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes. Two
// empty strings are identical.
func (s *textNormalizationService) Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein keeps a single DP row sized to the shorter input.
func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cur := row[j]
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			row[j] = min3(row[j]+1, row[j-1]+1, prev+cost)
			prev = cur
		}
	}
	return row[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
