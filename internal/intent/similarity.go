package intent

// similarityPrefix bounds how much of each scene descriptor is compared.
// Vision output tails are noisy and rarely change the verdict.
const similarityPrefix = 320

// SceneSimilarity returns a 0..1 similarity between two scene descriptors
// using a Dice coefficient over rune bigrams. 1.0 means identical prefixes.
func SceneSimilarity(a, b string) float64 {
	ra := prefixRunes(a, similarityPrefix)
	rb := prefixRunes(b, similarityPrefix)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) < 2 || len(rb) < 2 {
		if string(ra) == string(rb) {
			return 1.0
		}
		return 0.0
	}

	counts := make(map[[2]rune]int, len(ra))
	for i := 0; i+1 < len(ra); i++ {
		counts[[2]rune{ra[i], ra[i+1]}]++
	}
	matches := 0
	for i := 0; i+1 < len(rb); i++ {
		key := [2]rune{rb[i], rb[i+1]}
		if counts[key] > 0 {
			counts[key]--
			matches++
		}
	}
	total := (len(ra) - 1) + (len(rb) - 1)
	return float64(2*matches) / float64(total)
}

func prefixRunes(s string, n int) []rune {
	runes := []rune(s)
	if len(runes) > n {
		runes = runes[:n]
	}
	return runes
}
