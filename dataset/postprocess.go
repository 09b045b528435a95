package dataset

import "strings"

// Detokenize converts a decoded token sequence to text.
// If collateNgrams is positive, adjacent repeated n-grams
// up to that size are collapsed.
func Detokenize(v *Vocabulary, ids []int, collateNgrams int) string {
	words := v.Decode(ids)
	if collateNgrams > 0 {
		words = RemoveAdjacentDuplicateGrams(words, collateNgrams)
	}
	return strings.Join(words, " ")
}

// RemoveAdjacentDuplicateGrams collapses immediately
// repeated word n-grams, for every n from 1 to maxN.
//
// For example, "what is is the the name" becomes
// "what is the name".
// Smaller n-grams are collapsed first.
func RemoveAdjacentDuplicateGrams(words []string, maxN int) []string {
	res := append([]string{}, words...)
	for n := 1; n <= maxN; n++ {
		for k := 0; k < len(res)-n; {
			if k+2*n <= len(res) && equalWords(res[k:k+n], res[k+n:k+2*n]) {
				res = append(res[:k+n], res[k+2*n:]...)
			} else {
				k++
			}
		}
	}
	return res
}

func equalWords(w1, w2 []string) bool {
	for i, w := range w1 {
		if w2[i] != w {
			return false
		}
	}
	return true
}
