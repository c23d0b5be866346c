package textutil_test

import (
	"testing"

	"slidecast/internal/textutil"
)

func TestNormalizeText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  Hello \t\n world  ", "Hello world"},
		{"Cafe\u0301", "Caf\u00e9"},
		{"\u00a0non\u00a0breaking\u00a0", "non breaking"},
	}
	for _, tc := range cases {
		if got := textutil.NormalizeText(tc.in); got != tc.want {
			t.Fatalf("NormalizeText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWordCount(t *testing.T) {
	if got := textutil.WordCount("  one two\nthree "); got != 3 {
		t.Fatalf("WordCount = %d, want 3", got)
	}
	if got := textutil.WordCount(""); got != 0 {
		t.Fatalf("WordCount(empty) = %d, want 0", got)
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := textutil.SanitizeFileName(" Q3: Review/Plan?.pptx "); got != "Q3- Review-Plan.pptx" {
		t.Fatalf("SanitizeFileName = %q", got)
	}
	if got := textutil.SanitizeToken("Quarterly Review!"); got != "quarterly_review" {
		t.Fatalf("SanitizeToken = %q", got)
	}
	if got := textutil.SanitizeToken("   "); got != "unknown" {
		t.Fatalf("SanitizeToken(blank) = %q", got)
	}
}
