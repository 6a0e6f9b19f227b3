package match

// DefaultThreshold is the acceptance score below which a parsed question is
// reported unmatched. Surfaced through config (MATCH_THRESHOLD) so it can be
// tuned against a labelled sample.
const DefaultThreshold = 0.6

// Method records which comparison produced the accepted match.
type Method string

const (
	// MethodPlain matched on the main question text alone.
	MethodPlain Method = "plain"
	// MethodCombined matched on question + sub-question concatenated.
	MethodCombined Method = "combined"
)

// Candidate is one canonical question eligible for matching.
type Candidate struct {
	ID   string
	Name string
}

// Result pairs an input question with its best canonical candidate.
type Result struct {
	CandidateID   string
	CandidateName string
	Score         float64
	Method        Method
}

// Best finds the best-scoring candidate for a question.
//
// The first pass compares the main question text against every candidate. If
// its best score misses the threshold and a sub-question exists, a second
// pass retries with the question and sub-question concatenated; some canonical
// questions embed clarifying sub-text that the spreadsheet splits into a
// separate column, so the combined comparison recovers those at the cost of
// extra false-positive risk — which is why it runs only as a fallback. The
// second pass's best replaces the first only if it scores higher.
//
// The boolean reports whether the final best score meets the threshold.
func Best(question, subQuestion string, candidates []Candidate, threshold float64) (Result, bool) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	best := bestAgainst(question, candidates, MethodPlain)
	if best.Score < threshold && subQuestion != "" {
		combined := bestAgainst(question+" "+subQuestion, candidates, MethodCombined)
		if combined.Score > best.Score {
			best = combined
		}
	}
	return best, best.Score >= threshold
}

func bestAgainst(text string, candidates []Candidate, method Method) Result {
	best := Result{Method: method}
	for _, c := range candidates {
		score := Similarity(text, c.Name)
		if score > best.Score {
			best.CandidateID = c.ID
			best.CandidateName = c.Name
			best.Score = score
		}
	}
	return best
}
