package retrieval

// Chunk is a read-only view of a stored fragment. The pipeline never mutates
// chunks; they are created at ingestion and destroyed only by a store clear.
type Chunk struct {
	ID            string
	Text          string
	Source        string
	SequenceIndex int
	IsStructured  bool
}

// Candidate annotates a chunk with its retrieval-time relevance, normalized
// into [0,1] where higher is more relevant. Candidates live for one query.
type Candidate struct {
	Chunk      Chunk
	Similarity float64
}

// Selection is the ordered, diversified set of candidates chosen for a single
// query. No two entries share a chunk ID.
type Selection []Candidate

// HasStructured reports whether any selected chunk came from tabular data.
func (s Selection) HasStructured() bool {
	for _, c := range s {
		if c.Chunk.IsStructured {
			return true
		}
	}
	return false
}

// IDs returns the chunk IDs in selection order.
func (s Selection) IDs() []string {
	ids := make([]string, len(s))
	for i, c := range s {
		ids[i] = c.Chunk.ID
	}
	return ids
}
