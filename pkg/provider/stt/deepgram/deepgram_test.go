package deepgram

import (
	"strings"
	"testing"

	"github.com/talimhq/talim/pkg/provider/stt"
	"github.com/talimhq/talim/pkg/types"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New with empty apiKey: want error, got nil")
	}
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	p, err := New("key", WithModel("nova-3"), WithLanguage("tr"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.buildURL(stt.StreamConfig{
		SampleRate: 16000,
		Channels:   1,
		Keywords:   []types.KeywordBoost{{Keyword: "Talimix", Boost: 5}},
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	for _, want := range []string{
		"interim_results=true",
		"language=tr",
		"sample_rate=16000",
		"channels=1",
		"keywords=Talimix%3A5",
		"punctuate=true",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("URL missing %q: %s", want, got)
		}
	}
}

func TestBuildURL_ConfigOverridesDefaults(t *testing.T) {
	t.Parallel()

	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.buildURL(stt.StreamConfig{Language: "en-US", SampleRate: 48000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	if !strings.Contains(got, "language=en-US") {
		t.Errorf("URL should carry the config language: %s", got)
	}
	if !strings.Contains(got, "sample_rate=48000") {
		t.Errorf("URL should carry the config sample rate: %s", got)
	}
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		raw       string
		wantOK    bool
		wantFinal bool
		wantText  string
	}{
		{
			name:      "final result",
			raw:       `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"merhaba","confidence":0.98}]}}`,
			wantOK:    true,
			wantFinal: true,
			wantText:  "merhaba",
		},
		{
			name:      "interim result",
			raw:       `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"mer","confidence":0.4}]}}`,
			wantOK:    true,
			wantFinal: false,
			wantText:  "mer",
		},
		{
			name:   "non-result message ignored",
			raw:    `{"type":"Metadata"}`,
			wantOK: false,
		},
		{
			name:   "no alternatives ignored",
			raw:    `{"type":"Results","channel":{"alternatives":[]}}`,
			wantOK: false,
		},
		{
			name:   "malformed JSON ignored",
			raw:    `{"type":`,
			wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, ok := parseResponse([]byte(tc.raw))
			if ok != tc.wantOK {
				t.Fatalf("ok: want %v, got %v", tc.wantOK, ok)
			}
			if !ok {
				return
			}
			if got.IsFinal != tc.wantFinal {
				t.Errorf("IsFinal: want %v, got %v", tc.wantFinal, got.IsFinal)
			}
			if got.Text != tc.wantText {
				t.Errorf("Text: want %q, got %q", tc.wantText, got.Text)
			}
		})
	}
}
