/*
 * stream-share is a project to efficiently share the use of an IPTV service.
 * Copyright (C) 2025  Lucas Duport
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package titles

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/grafana/regexp"
	"github.com/mozillazg/go-unidecode"
)

const (
	yearPenaltyPerYear = 0.03
	maxYearPenalty     = 0.3
)

// Articles dropped from token sets unless nothing else is left.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "le": true, "la": true, "les": true,
	"l": true, "un": true, "une": true, "el": true, "los": true, "der": true,
	"die": true, "das": true,
}

var (
	anyYear          = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	seriesSeparators = regexp.MustCompile(`\s+[-–|:/]\s+|:\s+`)
)

// Tokens returns the lowercase, transliterated word set of a normalized
// title, in first-seen order. A title that normalizes to nothing, such as
// "1917", falls back to the words of the raw title.
func Tokens(title string) []string {
	words := foldedWords(Normalize(title))
	if len(words) == 0 {
		words = foldedWords(title)
	}

	seen := make(map[string]bool, len(words))
	var all, kept []string
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		all = append(all, w)
		if !stopWords[w] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return all
	}
	return kept
}

func foldedWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(unidecode.Unidecode(s)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TokenOverlap is |A∩B| / max(|A|,|B|) over the token sets of a and b.
func TokenOverlap(a, b string) float64 {
	return overlap(Tokens(a), Tokens(b))
}

func overlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	shared := 0
	for _, t := range b {
		if set[t] {
			shared++
		}
	}
	return float64(shared) / float64(max(len(a), len(b)))
}

// YearPenalty is 0.03 per year of difference, capped at 0.3. Unknown years
// (zero) cost nothing.
func YearPenalty(hintYear, candidateYear int) float64 {
	if hintYear <= 0 || candidateYear <= 0 {
		return 0
	}
	diff := math.Abs(float64(hintYear - candidateYear))
	return math.Min(diff*yearPenaltyPerYear, maxYearPenalty)
}

// Score combines TokenOverlap and YearPenalty.
func Score(query, candidate string, hintYear, candidateYear int) float64 {
	return TokenOverlap(query, candidate) - YearPenalty(hintYear, candidateYear)
}

// Scorer caches the query tokens when one query is scored against many
// candidates.
type Scorer struct {
	query    []string
	hintYear int
}

// NewScorer prepares a query for repeated scoring.
func NewScorer(query string, hintYear int) *Scorer {
	return &Scorer{query: Tokens(query), hintYear: hintYear}
}

// Score returns the score of candidate against the prepared query.
func (s *Scorer) Score(candidate string, candidateYear int) float64 {
	return overlap(s.query, Tokens(candidate)) - YearPenalty(s.hintYear, candidateYear)
}

// ExtractYear returns the last plausible year in s, or 0.
func ExtractYear(s string) int {
	matches := anyYear.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0
	}
	year, _ := strconv.Atoi(matches[len(matches)-1][1])
	return year
}

// YearFromDate reads the year of an ISO date such as "2003-05-15".
func YearFromDate(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil || year < 1800 {
		return 0
	}
	return year
}

// SeriesTail returns the part of a series title after its last separator,
// dropping franchise or channel prefixes ("Marvel - Loki" -> "Loki").
// It returns "" when the title has no separator.
func SeriesTail(title string) string {
	locs := seriesSeparators.FindAllStringIndex(title, -1)
	if len(locs) == 0 {
		return ""
	}
	tail := strings.TrimSpace(title[locs[len(locs)-1][1]:])
	if Normalize(tail) == "" {
		return ""
	}
	return tail
}
