package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ironsheep/medscan-mcp/internal/locale"
)

// Denylist category names used by DefaultHeuristics.
const (
	CategoryUnits       = "units"
	CategoryForms       = "forms"
	CategoryDescriptors = "descriptors"
)

// Terms is one denylist category in both scripts.
type Terms struct {
	Latin  []string `json:"latin"`
	Arabic []string `json:"arabic,omitempty"`
}

// Heuristics is the tunable knowledge behind candidate extraction. It is
// plain data so it can be shipped as JSON and swapped without code changes.
type Heuristics struct {
	// Denylist maps a category (units, forms, ...) to terms that are never
	// medication names. Latin terms always apply; Arabic terms apply when
	// the UI language is Arabic.
	Denylist map[string]Terms `json:"denylist"`

	// DosagePattern matches a normalized line that is only a dosage, e.g. "500 mg".
	DosagePattern string `json:"dosage_pattern"`

	// BrandPattern matches a word shaped like a brand name.
	BrandPattern string `json:"brand_pattern"`

	// PriorityPatterns rank text candidates ahead of the rest.
	PriorityPatterns []string `json:"priority_patterns"`
	PriorityMinRunes int      `json:"priority_min_runes"`

	// Word strategy geometry.
	TopFraction     float64 `json:"top_fraction"`
	LargeWordHeight int     `json:"large_word_height"`

	// Text strategy shape limits.
	MinTokenRunes      int `json:"min_token_runes"`
	ShortLineMaxWords  int `json:"short_line_max_words"`
	ShortLineMinRunes  int `json:"short_line_min_runes"`
	ShortLineMaxRunes  int `json:"short_line_max_runes"`
	ArabicLeadingWords int `json:"arabic_leading_words"`
	FallbackMinRunes   int `json:"fallback_min_runes"`
	FallbackMaxRunes   int `json:"fallback_max_runes"`

	// Candidate length bounds, in runes.
	MinCandidateRunes int `json:"min_candidate_runes"`
	MaxCandidateRunes int `json:"max_candidate_runes"`

	// Caps per strategy.
	WordCap int `json:"word_cap"`
	TextCap int `json:"text_cap"`
}

// DefaultHeuristics returns the built-in heuristics.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		Denylist: map[string]Terms{
			CategoryUnits: {
				Latin:  []string{"mg", "mcg", "ml", "g", "iu", "dose", "doses"},
				Arabic: []string{"ملغ", "مجم", "مغ", "مل", "جرعة"},
			},
			CategoryForms: {
				Latin: []string{
					"tablet", "tablets", "tab", "tabs", "capsule", "capsules", "caps",
					"syrup", "cream", "gel", "injection", "suspension", "ointment",
					"lotion", "drop", "drops", "spray", "sachet", "sachets",
				},
				Arabic: []string{
					"أقراص", "قرص", "كبسولات", "كبسولة", "شراب", "كريم", "جل", "حقن",
					"حقنة", "معلق", "مرهم", "لوشن", "قطرة", "نقط", "بخاخ",
				},
			},
			CategoryDescriptors: {
				Latin: []string{
					"relief", "solution", "hour", "hours", "extra", "film", "coated",
					"oral", "use", "only", "for", "adults", "children", "each", "contains",
				},
				Arabic: []string{"مسكن", "محلول", "ساعة", "ساعات", "للكبار", "للأطفال", "يحتوي", "كل"},
			},
		},
		DosagePattern: `^\p{N}+(?:\s*\p{N}+)*\s*(?:mg|mcg|ml|g|iu|ملغ|مجم|مغ|مل)?$`,
		BrandPattern:  `^\p{Lu}[\p{L}\p{N}-]{2,}$`,
		PriorityPatterns: []string{
			`^\p{Lu}{5,}$`,
			`^\p{Lu}\p{Ll}{4,}$`,
			`^\p{Lu}[\p{L}]+\s\p{Lu}[\p{L}]+$`,
			`^\p{Arabic}{5,}$`,
		},
		PriorityMinRunes:   5,
		TopFraction:        1.0 / 3.0,
		LargeWordHeight:    20,
		MinTokenRunes:      3,
		ShortLineMaxWords:  3,
		ShortLineMinRunes:  4,
		ShortLineMaxRunes:  30,
		ArabicLeadingWords: 4,
		FallbackMinRunes:   4,
		FallbackMaxRunes:   20,
		MinCandidateRunes:  2,
		MaxCandidateRunes:  30,
		WordCap:            5,
		TextCap:            3,
	}
}

// LoadHeuristics reads a JSON heuristics file. Fields missing from the file
// keep their default values; a denylist in the file replaces the default one.
func LoadHeuristics(path string) (Heuristics, error) {
	h := DefaultHeuristics()
	data, err := os.ReadFile(path)
	if err != nil {
		return h, fmt.Errorf("failed to read heuristics: %w", err)
	}
	override := h
	override.Denylist = nil
	if err := json.Unmarshal(data, &override); err != nil {
		return h, fmt.Errorf("failed to parse heuristics %s: %w", path, err)
	}
	if override.Denylist == nil {
		override.Denylist = h.Denylist
	}
	if err := override.Validate(); err != nil {
		return h, fmt.Errorf("invalid heuristics %s: %w", path, err)
	}
	return override, nil
}

// Validate checks limits and pattern syntax.
func (h Heuristics) Validate() error {
	if h.WordCap < 1 || h.TextCap < 1 {
		return fmt.Errorf("caps must be positive (word_cap=%d, text_cap=%d)", h.WordCap, h.TextCap)
	}
	if h.TopFraction <= 0 || h.TopFraction > 1 {
		return fmt.Errorf("top_fraction must be in (0,1], got %v", h.TopFraction)
	}
	if h.MinCandidateRunes < 1 || h.MaxCandidateRunes < h.MinCandidateRunes {
		return fmt.Errorf("invalid candidate length bounds [%d,%d]", h.MinCandidateRunes, h.MaxCandidateRunes)
	}
	if h.ShortLineMinRunes > h.ShortLineMaxRunes {
		return fmt.Errorf("invalid short line bounds [%d,%d]", h.ShortLineMinRunes, h.ShortLineMaxRunes)
	}
	if h.FallbackMinRunes > h.FallbackMaxRunes {
		return fmt.Errorf("invalid fallback bounds [%d,%d]", h.FallbackMinRunes, h.FallbackMaxRunes)
	}
	_, err := h.Compile(locale.English)
	return err
}

// Rules are Heuristics compiled for one UI language.
type Rules struct {
	Heuristics
	Language locale.Language

	denied   map[string]struct{}
	dosage   *regexp.Regexp
	brand    *regexp.Regexp
	priority []*regexp.Regexp
}

// Compile resolves the denylist for lang and compiles all patterns.
func (h Heuristics) Compile(lang locale.Language) (*Rules, error) {
	r := &Rules{
		Heuristics: h,
		Language:   lang,
		denied:     make(map[string]struct{}),
	}
	for _, terms := range h.Denylist {
		for _, t := range terms.Latin {
			r.denied[Fold(t)] = struct{}{}
		}
		if lang.IsArabic() {
			for _, t := range terms.Arabic {
				r.denied[Fold(t)] = struct{}{}
			}
		}
	}

	var err error
	if r.dosage, err = compileOptional(h.DosagePattern); err != nil {
		return nil, fmt.Errorf("dosage_pattern: %w", err)
	}
	if r.brand, err = compileOptional(h.BrandPattern); err != nil {
		return nil, fmt.Errorf("brand_pattern: %w", err)
	}
	for i, p := range h.PriorityPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("priority_patterns[%d]: %w", i, err)
		}
		r.priority = append(r.priority, re)
	}
	return r, nil
}

// MustCompile is Compile for known-good heuristics.
func (h Heuristics) MustCompile(lang locale.Language) *Rules {
	r, err := h.Compile(lang)
	if err != nil {
		panic(err)
	}
	return r
}

func compileOptional(p string) (*regexp.Regexp, error) {
	if p == "" {
		return nil, nil
	}
	return regexp.Compile(p)
}

// Denied reports whether a single word is a denylisted term. Leading digits
// are ignored so "500mg" counts as "mg"; a trailing plural "s" and the Arabic
// definite article are also tried.
func (r *Rules) Denied(word string) bool {
	key := Fold(Normalize(separators.Replace(word)))
	key = strings.TrimLeftFunc(key, isDigit)
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	if r.deniedKey(key) {
		return true
	}
	for _, f := range strings.Fields(key) {
		if r.deniedKey(f) {
			return true
		}
	}
	return false
}

var separators = strings.NewReplacer("-", " ", "/", " ", "_", " ")

func (r *Rules) deniedKey(key string) bool {
	if _, ok := r.denied[key]; ok {
		return true
	}
	if strings.HasSuffix(key, "s") {
		if _, ok := r.denied[strings.TrimSuffix(key, "s")]; ok {
			return true
		}
	}
	if strings.HasPrefix(key, "ال") {
		if _, ok := r.denied[strings.TrimPrefix(key, "ال")]; ok {
			return true
		}
	}
	return false
}

// Dosage reports whether a normalized line is only a dosage expression.
func (r *Rules) Dosage(line string) bool {
	return r.dosage != nil && r.dosage.MatchString(Fold(line))
}

// BrandShaped reports whether word looks like a brand name: capitalized
// letters/digits/hyphen of length three or more, or fully uppercase.
func (r *Rules) BrandShaped(word string) bool {
	if r.brand != nil && r.brand.MatchString(word) {
		return true
	}
	return allUpper(word)
}

// Priority reports whether a candidate ranks ahead of the rest.
func (r *Rules) Priority(candidate string) bool {
	if runeLen(candidate) < r.PriorityMinRunes {
		return false
	}
	for _, re := range r.priority {
		if re.MatchString(candidate) {
			return true
		}
	}
	return false
}
