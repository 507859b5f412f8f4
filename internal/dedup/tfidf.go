package dedup

import "math"

type vector map[string]float64

// buildVectors computes L2-normalized TF-IDF vectors for each document.
// IDF uses the smoothed form log((1+N)/(1+df)) + 1 so a term present in
// every document still carries weight instead of vanishing.
func buildVectors(docs [][]string) []vector {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc))
		for _, tok := range doc {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for tok, count := range df {
		idf[tok] = math.Log((1+n)/(1+float64(count))) + 1
	}

	out := make([]vector, len(docs))
	for i, doc := range docs {
		if len(doc) == 0 {
			out[i] = nil
			continue
		}
		tf := make(map[string]int, len(doc))
		for _, tok := range doc {
			tf[tok]++
		}
		vec := make(vector, len(tf))
		var norm float64
		for tok, count := range tf {
			w := float64(count) * idf[tok]
			vec[tok] = w
			norm += w * w
		}
		norm = math.Sqrt(norm)
		if norm > 0 {
			for tok := range vec {
				vec[tok] /= norm
			}
		}
		out[i] = vec
	}
	return out
}

func cosine(a, b vector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for tok, w := range a {
		dot += w * b[tok]
	}
	return dot
}
