// Package ranker computes term scores. Scores only depend on snapshot-wide
// statistics, so the same document scores the same regardless of which
// segment holds it.
package ranker

import (
	"math"
)

const k1 = 1.2

// Stats are the collection statistics one term is scored against.
type Stats struct {
	TotalDocs int64
	DocFreq   int64
}

// IDF is the BM25 inverse document frequency. It is positive for any
// docFreq <= totalDocs.
func IDF(s Stats) float64 {
	numerator := float64(s.TotalDocs) - float64(s.DocFreq) + 0.5
	denominator := float64(s.DocFreq) + 0.5
	return math.Log(1 + numerator/denominator)
}

// TFNorm saturates term frequency. It increases monotonically with tf.
func TFNorm(tf uint32) float64 {
	f := float64(tf)
	return f * (k1 + 1) / (f + k1)
}

// TermScore scores one posting.
func TermScore(tf uint32, s Stats) float64 {
	return IDF(s) * TFNorm(tf)
}

// RangeScore is the constant score of a numeric range match.
const RangeScore = 1.0

// Round trims a score to four decimals so that summation order cannot
// reorder otherwise tied results.
func Round(score float64) float64 {
	return math.Round(score*10000) / 10000
}
