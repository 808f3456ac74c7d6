// Package extract turns best-effort raw review fields into domain records.
//
// Unparsable fields never drop a record: each one is replaced with its
// sentinel (rating 0, engagement 0, empty date) and reported as a
// Substitution so the caller can log it.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/qepting91/review-harvester/internal/domain"
)

// Raw holds the strings a driver scraped for one review.
type Raw struct {
	ID         string
	Author     string
	Avatar     string
	Text       string
	Rating     string
	Date       string
	Engagement string
}

// Substitution records a field that was replaced with its sentinel.
type Substitution struct {
	Field  string
	Raw    string
	Reason string
}

func (s Substitution) String() string {
	return fmt.Sprintf("%s=%q: %s", s.Field, s.Raw, s.Reason)
}

var (
	digitsRegex     = regexp.MustCompile(`\d[\d,]*`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
	wordNumbers     = map[string]int{"one": 1, "two": 2, "three": 3, "four": 4, "five": 5}
)

// ParseRating reads the first number in labels like "Rated 4 stars out of
// five". Spelled-out numbers are accepted when no digit is present.
func ParseRating(label string) (int, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return 0, fmt.Errorf("empty rating label")
	}

	if m := digitsRegex.FindString(label); m != "" {
		n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
		if err != nil {
			return 0, err
		}
		if n < domain.MinRating || n > domain.MaxRating {
			return 0, fmt.Errorf("rating %d out of range", n)
		}
		return n, nil
	}

	for _, word := range strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if n, ok := wordNumbers[word]; ok {
			return n, nil
		}
	}
	return 0, fmt.Errorf("no rating in %q", label)
}

// ParseCount reads counts like "1,234 people found this review helpful".
// An empty string is an absent count and yields 0 without error.
func ParseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	m := digitsRegex.FindString(s)
	if m == "" {
		return 0, fmt.Errorf("no count in %q", s)
	}
	return strconv.Atoi(strings.ReplaceAll(m, ",", ""))
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2006-01-02",
	"01/02/2006",
	"January 2006",
}

// NormalizeDate parses the human-readable date forms review sites use and
// formats them as RFC 3339 in UTC.
func NormalizeDate(s string) (string, error) {
	s = whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
	if s == "" {
		return "", fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC().Format(time.RFC3339), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}

// CleanText trims, drops non-printable runes, and collapses inner whitespace.
func CleanText(s string) string {
	var b strings.Builder
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			b.WriteRune(c)
		}
	}
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(b.String()), " ")
}
