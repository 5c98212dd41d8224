package tm

// Index is an inverted trigram index over candidate source texts.
type Index struct {
	grams    []map[string]struct{}
	postings map[string][]int
}

// NewIndex indexes texts; document ids are slice positions.
func NewIndex(texts []string) *Index {
	ix := &Index{
		grams:    make([]map[string]struct{}, 0, len(texts)),
		postings: make(map[string][]int),
	}
	for _, text := range texts {
		ix.Add(text)
	}
	return ix
}

// Add indexes one more text and returns its document id.
func (ix *Index) Add(text string) int {
	id := len(ix.grams)
	g := Trigrams(text)
	ix.grams = append(ix.grams, g)
	for t := range g {
		ix.postings[t] = append(ix.postings[t], id)
	}
	return id
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int { return len(ix.grams) }

// Search scores every document sharing at least one trigram with query
// and returns the scores of those reaching threshold, keyed by document id.
func (ix *Index) Search(query string, threshold float64) map[int]float64 {
	q := Trigrams(query)
	if len(q) == 0 {
		return nil
	}
	shared := make(map[int]int)
	for t := range q {
		for _, id := range ix.postings[t] {
			shared[id]++
		}
	}
	out := make(map[int]float64)
	for id, n := range shared {
		score := float64(n) / float64(len(q)+len(ix.grams[id])-n)
		if round2(score) >= threshold {
			out[id] = score
		}
	}
	return out
}
