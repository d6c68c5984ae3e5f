package locale

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ironsheep/medscan-mcp/internal/apperr"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Language
	}{
		{"ar", Arabic},
		{"AR", Arabic},
		{"ar-EG", Arabic},
		{"ara", Arabic},
		{"en", English},
		{"en-US", English},
		{"", English},
		{"fr", English},
	}
	for _, tt := range tests {
		if got := Parse(tt.in); got != tt.want {
			t.Errorf("Parse(%q): got %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRecognizerLanguages(t *testing.T) {
	if got := Arabic.RecognizerLanguages(); got[0] != "ara" || got[1] != "eng" {
		t.Errorf("Arabic hints: got %v", got)
	}
	if got := English.RecognizerLanguages(); got[0] != "eng" || got[1] != "ara" {
		t.Errorf("English hints: got %v", got)
	}
}

func TestWhitelist(t *testing.T) {
	en := English.Whitelist()
	if strings.ContainsAny(en, "اب") {
		t.Error("English whitelist should not contain Arabic letters")
	}
	for _, want := range []string{"A", "z", "0", "9", "-", " "} {
		if !strings.Contains(en, want) {
			t.Errorf("English whitelist missing %q", want)
		}
	}
	ar := Arabic.Whitelist()
	if !strings.Contains(ar, "ب") || !strings.Contains(ar, "A") {
		t.Error("Arabic whitelist should contain Arabic and Latin letters")
	}
}

func TestStatusMessages(t *testing.T) {
	for _, l := range []Language{English, Arabic, Language("xx")} {
		if len(l.StatusMessages()) == 0 {
			t.Errorf("no status messages for %q", l)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := fmt.Errorf("capture: %w", apperr.Acquisition(apperr.ReasonCameraPermission, "denied", nil))

	if got := English.ErrorMessage(err); !strings.Contains(got, "Camera access was denied") {
		t.Errorf("English: got %q", got)
	}
	if got := Arabic.ErrorMessage(err); got == English.ErrorMessage(err) {
		t.Error("Arabic message should differ from English")
	}
	if got := English.ErrorMessage(errors.New("other")); got != genericError[English] {
		t.Errorf("generic: got %q", got)
	}
	if got := English.ErrorMessage(nil); got != "" {
		t.Errorf("nil error: got %q", got)
	}
}

func TestNotFound(t *testing.T) {
	if English.NotFound() == "" || Arabic.NotFound() == "" {
		t.Fatal("placeholder text must be defined for both languages")
	}
	if English.NotFound() == Arabic.NotFound() {
		t.Error("placeholders should be language-dependent")
	}
}
