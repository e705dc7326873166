package match

import (
	"sort"
	"strings"

	"officeradar/pkg/model"
)

// MinAccept is the hard acceptance threshold: candidates scoring below it
// are not matches.
const MinAccept = 0.86

// Result describes an accepted company match for an office.
type Result struct {
	CompanyID      int64
	CompanyName    string
	MatchedField   string // office field that matched: name, brand or operator
	MatchedVariant string // raw variant text the office matched against
	Source         string // company_name or alias
	Score          float64
}

// MatchOffice tries the office's name, brand and operator in order and
// returns the best accepted match, or nil when nothing reaches MinAccept.
// Equal scores prefer a company_name variant over an alias.
func (idx *Index) MatchOffice(office *model.Office) *Result {
	candidates := []struct {
		field string
		value string
	}{
		{"name", office.Name},
		{"brand", strVal(office.Brand)},
		{"operator", strVal(office.Operator)},
	}

	seen := make(map[string]bool, len(candidates))
	var best *Result
	for _, cand := range candidates {
		if cand.value == "" {
			continue
		}
		normalized := Normalize(cand.value)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true

		vi, score, ok := idx.matchNormalized(normalized)
		if !ok {
			continue
		}
		v := &idx.variants[vi]
		if best != nil && !better(score, v.source, best.Score, best.Source) {
			continue
		}
		best = &Result{
			CompanyID:      v.companyID,
			CompanyName:    v.companyName,
			MatchedField:   cand.field,
			MatchedVariant: v.raw,
			Source:         v.source,
			Score:          score,
		}
	}
	return best
}

// MatchName matches a single free-form name against the index.
func (idx *Index) MatchName(raw string) *Result {
	return idx.MatchOffice(&model.Office{Name: raw})
}

// FilterOffices returns the offices that matched any known company and the
// count of offices dropped for lacking a match.
func (idx *Index) FilterOffices(offices []model.Office) ([]model.Office, int) {
	matched := make([]model.Office, 0, len(offices))
	for i := range offices {
		if idx.MatchOffice(&offices[i]) != nil {
			matched = append(matched, offices[i])
		}
	}
	return matched, len(offices) - len(matched)
}

// matchNormalized finds the best variant for an already-normalized
// candidate string. Returns the variant index, its score and whether the
// score clears MinAccept.
func (idx *Index) matchNormalized(normalized string) (int, float64, bool) {
	// Exact normalized equality is a perfect match.
	if ids := idx.exactIndex[normalized]; len(ids) > 0 {
		return preferCompanyName(idx, ids), 1.0, true
	}

	tokens := strings.Fields(normalized)
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	shortlist := map[int]bool{}
	for t := range tokenSet {
		for _, vi := range idx.tokenIndex[t] {
			shortlist[vi] = true
		}
	}
	if len(shortlist) == 0 {
		return 0, 0, false
	}
	ordered := make([]int, 0, len(shortlist))
	for vi := range shortlist {
		ordered = append(ordered, vi)
	}
	sort.Ints(ordered)

	bestID, bestScore, found := 0, 0.0, false
	for _, vi := range ordered {
		v := &idx.variants[vi]
		score := scorePair(normalized, tokenSet, v)
		if score < MinAccept {
			continue
		}
		if !found || better(score, v.source, bestScore, idx.variants[bestID].source) {
			bestID, bestScore, found = vi, score, true
		}
	}
	return bestID, bestScore, found
}

// better reports whether (score, source) beats the current best. Higher
// score wins; on a tie, a company_name source beats an alias.
func better(score float64, source string, bestScore float64, bestSource string) bool {
	if score != bestScore {
		return score > bestScore
	}
	return source == "company_name" && bestSource != "company_name"
}

func preferCompanyName(idx *Index, ids []int) int {
	for _, vi := range ids {
		if idx.variants[vi].source == "company_name" {
			return vi
		}
	}
	return ids[0]
}

// scorePair computes the weighted token/edit similarity between a
// normalized candidate and a variant, with containment boosts.
func scorePair(aNorm string, aSet map[string]bool, v *variant) float64 {
	// Two equal single tokens are a perfect match; unequal single tokens
	// get no special treatment, which keeps low-signal names apart.
	if len(aSet) == 1 && len(v.tokens) == 1 {
		if aNorm == v.norm {
			return 1.0
		}
	}

	shared := 0
	for t := range aSet {
		if v.tokenSet[t] {
			shared++
		}
	}
	union := len(aSet) + len(v.tokenSet) - shared
	minTokens := min(len(aSet), len(v.tokenSet))

	var containment, jaccard float64
	if minTokens > 0 {
		containment = float64(shared) / float64(minTokens)
	}
	if union > 0 {
		jaccard = float64(shared) / float64(union)
	}
	editSim := editSimilarity(aNorm, v.norm)

	score := 0.5*containment + 0.2*jaccard + 0.3*editSim

	if phraseContains(aNorm, v.norm) && score < 0.91 {
		score = 0.91
	}
	if containment == 1 && minTokens >= 2 && editSim >= 0.8 && score < 0.90 {
		score = 0.90
	}
	return score
}

// phraseContains reports whether one normalized string contains the other
// as a whole-token phrase, requiring the shorter side to be at least 4
// characters long.
func phraseContains(a, b string) bool {
	shorter, longer := a, b
	if len([]rune(shorter)) > len([]rune(longer)) {
		shorter, longer = longer, shorter
	}
	if len([]rune(shorter)) < 4 {
		return false
	}
	return strings.Contains(" "+longer+" ", " "+shorter+" ")
}

func editSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes edit distance with the two-row dynamic program.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
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

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
