package capture

import "testing"

func TestCorrectorRewritesMangledTerm(t *testing.T) {
	t.Parallel()

	c := NewCorrector([]string{"hemoglobin", "insulin"})

	got := c.Correct("hastanın hemoglobyn değeri düşük")
	want := "hastanın hemoglobin değeri düşük"
	if got != want {
		t.Errorf("Correct() = %q, want %q", got, want)
	}
}

func TestCorrectorLeavesUnrelatedTokensAlone(t *testing.T) {
	t.Parallel()

	c := NewCorrector([]string{"insulin"})

	in := "merhaba size nasıl yardımcı olabilirim"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct() = %q, want unchanged %q", got, in)
	}
}

func TestCorrectorExactTermIdempotent(t *testing.T) {
	t.Parallel()

	c := NewCorrector([]string{"insulin"})

	in := "insulin dozu arttı"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct() = %q, want unchanged %q", got, in)
	}
}

func TestCorrectorSkipsShortTokens(t *testing.T) {
	t.Parallel()

	// "ve" is two runes; even with an absurdly permissive vocabulary it must
	// never be rewritten.
	c := NewCorrector([]string{"vena"})

	in := "ve sonra"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct() = %q, want unchanged %q", got, in)
	}
}

func TestCorrectorEmptyVocabularyPassesThrough(t *testing.T) {
	t.Parallel()

	c := NewCorrector(nil)

	in := "herhangi bir metin"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct() = %q, want unchanged %q", got, in)
	}
	if got := c.Correct(""); got != "" {
		t.Errorf("Correct(\"\") = %q, want empty", got)
	}
}

func TestCorrectorIgnoresBlankVocabularyEntries(t *testing.T) {
	t.Parallel()

	c := NewCorrector([]string{"  ", "", "hemoglobin"})
	if len(c.vocabulary) != 1 {
		t.Fatalf("vocabulary size = %d, want 1", len(c.vocabulary))
	}
}

func TestCorrectorThresholdBlocksWeakMatches(t *testing.T) {
	t.Parallel()

	// With both thresholds pinned above 1.0 nothing can ever match, so even a
	// near-miss of a vocabulary term survives untouched.
	c := NewCorrector([]string{"hemoglobin"},
		WithPhoneticThreshold(1.1), WithFuzzyThreshold(1.1))

	in := "hemoglobyn düşük"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct() = %q, want unchanged %q", got, in)
	}
}
