// Package similarity scores stored records against a query by fingerprint
// distance, character overlap and edit distance.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/nickcecere/fpstore/internal/fingerprint"
)

// Method selects the scoring function used by Rank.
type Method string

const (
	MethodNumeric Method = "numeric"
	MethodText    Method = "text"
	MethodHybrid  Method = "hybrid"
)

// Hybrid weights.
const (
	NumericWeight = 0.7
	TextWeight    = 0.3
)

// DefaultLimit caps Rank when no limit is given.
const DefaultLimit = 10

// ErrUnknownMethod is returned for an unsupported method name.
var ErrUnknownMethod = errors.New("unknown similarity method")

// Methods lists the supported methods.
var Methods = []Method{MethodNumeric, MethodText, MethodHybrid}

// ParseMethod validates a method name. The empty string selects hybrid.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodHybrid, nil
	case MethodNumeric, MethodText, MethodHybrid:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// Numeric compares two fingerprint pairs:
// 1 - min(1, (|Δupper| + |Δlower|) / (2 * largest magnitude)).
func Numeric(a, b fingerprint.Pair) float64 {
	maxMag := math.Max(
		math.Max(math.Abs(a.Upper), math.Abs(a.Lower)),
		math.Max(math.Abs(b.Upper), math.Abs(b.Lower)),
	)
	if maxMag == 0 {
		return 1
	}
	diff := math.Abs(a.Upper-b.Upper) + math.Abs(a.Lower-b.Lower)
	return 1 - math.Min(1, diff/(2*maxMag))
}

// Text is the Jaccard index of the character sets of a and b.
func Text(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	setA := make(map[rune]struct{})
	for _, r := range a {
		setA[r] = struct{}{}
	}
	setB := make(map[rune]struct{})
	for _, r := range b {
		setB[r] = struct{}{}
	}

	inter := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// EditDistance is 1 - levenshtein(a, b) / max(len(a), len(b)), measured in
// characters.
func EditDistance(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein is the unit-cost edit distance, two rows at a time.
func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Hybrid is 0.7 * numeric + 0.3 * mean(text, edit).
func Hybrid(queryText string, queryPair fingerprint.Pair, text string, pair fingerprint.Pair) float64 {
	return NumericWeight*Numeric(queryPair, pair) +
		TextWeight*(Text(queryText, text)+EditDistance(queryText, text))/2
}

// Candidate is something Rank can score.
type Candidate struct {
	ID          string           `json:"id,omitempty"`
	Text        string           `json:"text"`
	Fingerprint fingerprint.Pair `json:"fingerprint"`
	Path        string           `json:"path,omitempty"`
	Source      string           `json:"source,omitempty"`
}

// Result is a scored candidate. The component scores are always filled in,
// whichever method produced Score.
type Result struct {
	Candidate
	Method       Method  `json:"method"`
	Score        float64 `json:"score"`
	NumericScore float64 `json:"numeric_score"`
	TextScore    float64 `json:"text_score"`
	EditScore    float64 `json:"edit_score"`
}

// Options controls Rank.
type Options struct {
	Method    Method
	Threshold float64
	Limit     int
}

// Rank scores candidates against the query, drops scores below the
// threshold and returns the best first, at most Limit of them.
func Rank(queryText string, queryPair fingerprint.Pair, candidates []Candidate, opts Options) ([]Result, error) {
	method, err := ParseMethod(string(opts.Method))
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		r := Result{
			Candidate:    c,
			Method:       method,
			NumericScore: Numeric(queryPair, c.Fingerprint),
			TextScore:    Text(queryText, c.Text),
			EditScore:    EditDistance(queryText, c.Text),
		}
		switch method {
		case MethodNumeric:
			r.Score = r.NumericScore
		case MethodText:
			r.Score = r.TextScore
		default:
			r.Score = NumericWeight*r.NumericScore + TextWeight*(r.TextScore+r.EditScore)/2
		}
		if r.Score < opts.Threshold {
			continue
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
