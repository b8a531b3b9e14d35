package services

import "strings"

// repeatSimilarityThreshold is the minimum token Jaccard overlap for two
// finding descriptions to count as the same recurring issue.
const repeatSimilarityThreshold = 0.6

// stopWords are filtered out before comparing finding descriptions, so that
// filler words do not inflate similarity.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {},
	"not": {}, "with": {}, "from": {}, "that": {}, "this": {}, "has": {},
	"have": {}, "had": {}, "been": {}, "its": {}, "but": {}, "all": {},
	"non": {}, "conformance": {},
}

// tokenizeDescription lowercases a finding description and returns the set of
// alphanumeric tokens longer than two characters, minus stop words.
func tokenizeDescription(s string) map[string]struct{} {
	tokens := make(map[string]struct{})

	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})

	for _, f := range fields {
		if len(f) <= 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens[f] = struct{}{}
	}

	return tokens
}

// jaccard returns |a∩b| / |a∪b| for two token sets, 0 when both are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// CountRepeatFindings counts how many of the current audit's finding
// descriptions recur among prior findings. Each current finding counts as a
// repeat at most once, no matter how many prior findings it overlaps with.
func CountRepeatFindings(current, prior []string) int {
	if len(current) == 0 || len(prior) == 0 {
		return 0
	}

	priorTokens := make([]map[string]struct{}, 0, len(prior))
	for _, p := range prior {
		priorTokens = append(priorTokens, tokenizeDescription(p))
	}

	repeats := 0
	for _, c := range current {
		ct := tokenizeDescription(c)
		for _, pt := range priorTokens {
			if jaccard(ct, pt) >= repeatSimilarityThreshold {
				repeats++
				break
			}
		}
	}

	return repeats
}
