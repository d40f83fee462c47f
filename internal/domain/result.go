package domain

// QueryResult is one retrieval hit, produced fresh per query and never
// persisted. Score is the raw backend similarity; RerankScore and FinalScore
// are filled in by the fusion scorer.
type QueryResult struct {
	Text        string
	Score       float64
	RerankScore float64
	FinalScore  float64
	Meta        ChunkMeta
	Collection  string
}
