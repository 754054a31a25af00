package textmatch

// Jaccard computes |a∩b| / |a∪b| over token sets. Two empty sets are
// identical by convention (1.0); one empty set yields 0.
func Jaccard(a, b []string) float64 {
	setA := TokenSet(a)
	setB := TokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for t := range setA {
		if setB[t] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// Profile is the text surface of a gene used for dedup comparison.
type Profile struct {
	Name        string
	Trigger     string
	Description string
}

// Weights controls the per-field contribution to the combined similarity.
type Weights struct {
	Name        float64
	Trigger     float64
	Description float64
}

// DefaultWeights matches the dedup policy: trigger text dominates.
var DefaultWeights = Weights{Name: 0.3, Trigger: 0.4, Description: 0.3}

// Similarity computes the weighted Jaccard similarity of two profiles.
// Zero-valued weights fall back to DefaultWeights.
func Similarity(a, b Profile, w Weights) float64 {
	if w.Name == 0 && w.Trigger == 0 && w.Description == 0 {
		w = DefaultWeights
	}
	return w.Name*Jaccard(Tokenize(a.Name), Tokenize(b.Name)) +
		w.Trigger*Jaccard(Tokenize(a.Trigger), Tokenize(b.Trigger)) +
		w.Description*Jaccard(Tokenize(a.Description), Tokenize(b.Description))
}
