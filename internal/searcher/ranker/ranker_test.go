package ranker

import "testing"

func TestTFNormIsMonotonic(t *testing.T) {
	prev := 0.0
	for tf := uint32(1); tf < 50; tf++ {
		got := TFNorm(tf)
		if got <= prev {
			t.Fatalf("TFNorm(%d)=%f not greater than TFNorm(%d)=%f", tf, got, tf-1, prev)
		}
		prev = got
	}
}

func TestIDFPrefersRareTerms(t *testing.T) {
	rare := IDF(Stats{TotalDocs: 100, DocFreq: 1})
	common := IDF(Stats{TotalDocs: 100, DocFreq: 90})
	if rare <= common {
		t.Errorf("expected rare idf %f > common idf %f", rare, common)
	}
	if all := IDF(Stats{TotalDocs: 3, DocFreq: 3}); all <= 0 {
		t.Errorf("idf must stay positive, got %f", all)
	}
}

func TestTermScore(t *testing.T) {
	s := Stats{TotalDocs: 3, DocFreq: 2}
	if TermScore(2, s) <= TermScore(1, s) {
		t.Error("higher tf must score higher")
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.23456, 1.2346},
		{0.00004, 0},
		{2, 2},
	}
	for _, tt := range tests {
		if got := Round(tt.in); got != tt.want {
			t.Errorf("Round(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
