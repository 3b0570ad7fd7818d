package resolver

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Rung is how a resolution was reached. Lower ladder rungs are stronger.
type Rung int

const (
	RungNone Rung = iota
	RungExact
	RungNormalized
	RungContains
	RungTokens
	RungFirstWord
	RungFuzzy

	RungCached
	RungPassThrough
	RungCode
)

var rungNames = map[Rung]string{
	RungNone:        "none",
	RungExact:       "exact",
	RungNormalized:  "normalized",
	RungContains:    "contains",
	RungTokens:      "tokens",
	RungFirstWord:   "first_word",
	RungFuzzy:       "fuzzy",
	RungCached:      "cached",
	RungPassThrough: "pass_through",
	RungCode:        "code",
}

func (r Rung) String() string {
	if s, ok := rungNames[r]; ok {
		return s
	}
	return "unknown"
}

const (
	DefaultSuggestFloor   = 0.5
	DefaultAutoAccept     = 0.85
	DefaultMaxSuggestions = 5

	minTokenLen       = 3
	minContainmentLen = 3
)

// Entity is a match candidate: an identifier and its name fields.
type Entity struct {
	ID    string
	Names []string
}

// Name is the entity's primary name.
func (e Entity) Name() string {
	if len(e.Names) == 0 {
		return e.ID
	}
	return e.Names[0]
}

// Match is an accepted candidate.
type Match struct {
	Entity Entity
	Rung   Rung
	// Score is 100 for ladder hits and the similarity for fuzzy hits.
	Score float64
	// Duplicates holds other entities that also match exactly.
	Duplicates []Entity
}

// Suggestion is a ranked near-miss. Score is in [0, 100].
type Suggestion struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Matcher ranks entities against free-text terms.
type Matcher struct {
	SuggestFloor   float64
	AutoAccept     float64
	MaxSuggestions int
}

func DefaultMatcher() Matcher {
	return Matcher{
		SuggestFloor:   DefaultSuggestFloor,
		AutoAccept:     DefaultAutoAccept,
		MaxSuggestions: DefaultMaxSuggestions,
	}
}

// NormalizeTerm case-folds and trims; it is the cache key form.
func NormalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var bracketReplacer = strings.NewReplacer("[", "(", "]", ")")

// normalizeName also unifies brackets with parentheses and collapses whitespace.
func normalizeName(s string) string {
	s = bracketReplacer.Replace(NormalizeTerm(s))
	return strings.Join(strings.Fields(s), " ")
}

func significantTokens(s string) []string {
	var out []string
	for _, tok := range strings.Fields(s) {
		if utf8.RuneCountInString(tok) >= minTokenLen {
			out = append(out, tok)
		}
	}
	return out
}

type query struct {
	plain  string
	norm   string
	tokens []string
}

func newQuery(term string) query {
	norm := normalizeName(term)
	return query{plain: NormalizeTerm(term), norm: norm, tokens: significantTokens(norm)}
}

// rung returns the strongest ladder rung name satisfies, up to max.
func (q query) rung(name string, max Rung) Rung {
	if NormalizeTerm(name) == q.plain {
		return RungExact
	}
	n := normalizeName(name)
	if n == "" {
		return RungNone
	}
	if max >= RungNormalized && n == q.norm {
		return RungNormalized
	}
	if max >= RungContains && contains(q.norm, n) {
		return RungContains
	}
	if max >= RungTokens && len(q.tokens) > 0 && allIn(q.tokens, n) {
		return RungTokens
	}
	if max >= RungFirstWord && len(q.tokens) > 0 {
		if nameTokens := significantTokens(n); len(nameTokens) > 0 && nameTokens[0] == q.tokens[0] {
			return RungFirstWord
		}
	}
	return RungNone
}

// contains reports whether term is inside name, or a name of at least
// minContainmentLen runes is inside term.
func contains(term, name string) bool {
	if strings.Contains(name, term) {
		return true
	}
	return utf8.RuneCountInString(name) >= minContainmentLen && strings.Contains(term, name)
}

func allIn(tokens []string, s string) bool {
	for _, t := range tokens {
		if !strings.Contains(s, t) {
			return false
		}
	}
	return true
}

// Match runs the ladder up to max over every entity and returns the entity with
// the strongest rung; ties go to fetch order. Without a ladder hit, the best
// fuzzy candidate is accepted if it reaches AutoAccept.
func (m Matcher) Match(term string, entities []Entity, max Rung) (Match, bool) {
	q := newQuery(term)
	if q.norm == "" {
		return Match{}, false
	}

	var (
		best   Match
		found  bool
		exacts []Entity
	)
	for _, e := range entities {
		r := RungNone
		for _, name := range e.Names {
			if nr := q.rung(name, max); nr != RungNone && (r == RungNone || nr < r) {
				r = nr
			}
		}
		if r == RungNone {
			continue
		}
		if r <= RungNormalized {
			exacts = append(exacts, e)
		}
		if !found || r < best.Rung {
			best = Match{Entity: e, Rung: r, Score: 100}
			found = true
		}
	}

	if found {
		if best.Rung <= RungNormalized {
			for _, e := range exacts {
				if e.ID != best.Entity.ID {
					best.Duplicates = append(best.Duplicates, e)
				}
			}
		}
		return best, true
	}

	ranked := m.rank(q, entities)
	if len(ranked) > 0 && ranked[0].ratio >= m.autoAccept() {
		return Match{Entity: ranked[0].entity, Rung: RungFuzzy, Score: presentScore(ranked[0].ratio)}, true
	}
	return Match{}, false
}

// Suggest ranks entities by similarity to term. Results are at or above the
// floor, sorted by descending score with fetch order breaking ties, and capped.
func (m Matcher) Suggest(term string, entities []Entity) []Suggestion {
	q := newQuery(term)
	if q.norm == "" {
		return nil
	}

	ranked := m.rank(q, entities)
	limit := m.MaxSuggestions
	if limit <= 0 {
		limit = DefaultMaxSuggestions
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]Suggestion, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, Suggestion{ID: c.entity.ID, Name: c.entity.Name(), Score: presentScore(c.ratio)})
	}
	return out
}

type candidate struct {
	entity Entity
	ratio  float64
}

func (m Matcher) rank(q query, entities []Entity) []candidate {
	floor := m.SuggestFloor
	if floor <= 0 {
		floor = DefaultSuggestFloor
	}

	var out []candidate
	for _, e := range entities {
		best := -1.0
		for _, name := range e.Names {
			if r := Similarity(q.norm, normalizeName(name)); r > best {
				best = r
			}
		}
		if best >= floor {
			out = append(out, candidate{entity: e, ratio: best})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ratio > out[j].ratio })
	return out
}

func (m Matcher) autoAccept() float64 {
	if m.AutoAccept <= 0 {
		return DefaultAutoAccept
	}
	return m.AutoAccept
}

// Similarity is 1 - editDistance/maxLen over runes, in [0, 1].
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

func presentScore(ratio float64) float64 {
	s := math.Round(ratio*1000) / 10
	return math.Max(0, math.Min(100, s))
}
