package llm

import (
	"strings"
	"testing"
)

func TestParseMode(t *testing.T) {
	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeBrief, false},
		{"brief", ModeBrief, false},
		{"detailed", ModeDetailed, false},
		{"bullets", ModeBullets, false},
		{"verbose", "", true},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseMode(%q) err = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseMode(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestBuildPromptPerMode(t *testing.T) {
	cases := []struct {
		mode Mode
		hint string
	}{
		{ModeBrief, "2-3 sentence"},
		{ModeDetailed, "detailed summary"},
		{ModeBullets, "bullet points"},
	}
	for _, tc := range cases {
		p := buildPrompt("the document", tc.mode)
		if !strings.Contains(p, "the document") {
			t.Errorf("%s prompt drops the document text", tc.mode)
		}
		if !strings.Contains(p, tc.hint) {
			t.Errorf("%s prompt missing %q:\n%s", tc.mode, tc.hint, p)
		}
	}
}

func TestBuildPromptTruncatesLongInput(t *testing.T) {
	long := strings.Repeat("a", maxInputChars+1000)
	p := buildPrompt(long, ModeBrief)
	if len(p) > maxInputChars+500 {
		t.Errorf("prompt length %d, input not truncated", len(p))
	}
}

func TestMaxTokensPerMode(t *testing.T) {
	if maxTokens(ModeBrief) != 150 || maxTokens(ModeDetailed) != 500 || maxTokens(ModeBullets) != 300 {
		t.Errorf("unexpected token caps: %d/%d/%d",
			maxTokens(ModeBrief), maxTokens(ModeDetailed), maxTokens(ModeBullets))
	}
}
