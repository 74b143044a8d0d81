package model

// MatchMethod tells how an archived entity was correlated.
type MatchMethod string

const (
	MatchMethodKey        MatchMethod = "key"
	MatchMethodSimilarity MatchMethod = "similarity"
	MatchMethodBoth       MatchMethod = "both"
)

// Correlation is an archived entity matching an entity of the open
// investigation.
type Correlation struct {
	Match      *ArchivedEntity `json:"match"`
	Score      float64         `json:"score"`      // Combined score from ranking
	Similarity float64         `json:"similarity"` // Cosine similarity, zero for key-only matches
	Method     MatchMethod     `json:"method"`
}
