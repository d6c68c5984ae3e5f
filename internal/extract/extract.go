package extract

import (
	"strings"

	"github.com/ironsheep/medscan-mcp/internal/ocr"
)

// Strategy names which extraction path produced a result.
type Strategy string

const (
	StrategyWords  Strategy = "words"
	StrategyText   Strategy = "text"
	StrategyTokens Strategy = "tokens"
	StrategyNone   Strategy = "none"
)

// Input is everything the recognizer produced for one run.
type Input struct {
	// Text is the concatenated text of all passes.
	Text string

	// Words carry geometry in ProcessedImage coordinates. Empty when the
	// engine gave none.
	Words []ocr.Word

	// ImageHeight is the ProcessedImage height, used for the top-third rule.
	ImageHeight int
}

// Outcome is an ordered, de-duplicated, capped candidate list. Candidates is
// never nil; an empty slice means nothing was found.
type Outcome struct {
	Candidates []string `json:"candidates"`
	Strategy   Strategy `json:"strategy"`
}

// Empty reports whether no candidate was found.
func (o Outcome) Empty() bool { return len(o.Candidates) == 0 }

// Extractor turns recognizer output into medication candidates.
type Extractor interface {
	Extract(in Input) Outcome
}

// Select picks the word-geometry extractor when words are available and the
// plain-text extractor otherwise.
func Select(rules *Rules, in Input) Extractor {
	text := &TextExtractor{Rules: rules}
	if len(in.Words) > 0 && in.ImageHeight > 0 {
		return &WordExtractor{Rules: rules, Fallback: text}
	}
	return text
}

// Extract runs the selected extractor.
func Extract(rules *Rules, in Input) Outcome {
	return Select(rules, in).Extract(in)
}

// WordExtractor ranks words by position and size on the package.
type WordExtractor struct {
	Rules *Rules

	// Fallback runs when no word survives. Nil means an empty outcome.
	Fallback Extractor
}

// Extract drops denylisted words, keeps words in the top part of the image
// that are large or brand-shaped, and returns them in detection order.
func (e *WordExtractor) Extract(in Input) Outcome {
	r := e.Rules
	limit := float64(in.ImageHeight) * r.TopFraction
	c := newCollector()

	for _, w := range in.Words {
		if c.len() >= r.WordCap {
			break
		}
		text := trimWord(w.Text)
		if text == "" || numeric(text) || r.Denied(text) {
			continue
		}
		if n := runeLen(text); n < r.MinCandidateRunes || n > r.MaxCandidateRunes {
			continue
		}
		if float64(w.Box.Y0) >= limit {
			continue
		}
		if w.Box.Height() <= r.LargeWordHeight && !r.BrandShaped(text) {
			continue
		}
		c.add(text)
	}

	if c.len() > 0 {
		return Outcome{Candidates: c.items, Strategy: StrategyWords}
	}
	if e.Fallback != nil {
		return e.Fallback.Extract(in)
	}
	return Outcome{Candidates: []string{}, Strategy: StrategyNone}
}

// TextExtractor works on plain text lines.
type TextExtractor struct {
	Rules *Rules
}

// Extract classifies normalized lines as standalone names or scans their
// words, ranks priority shapes first and caps the result. When nothing
// qualifies it falls back to any token of plausible length.
func (e *TextExtractor) Extract(in Input) Outcome {
	r := e.Rules
	ranked := e.rank(e.lineCandidates(in.Text))
	if len(ranked) > 0 {
		return Outcome{Candidates: capped(ranked, r.TextCap), Strategy: StrategyText}
	}
	if tokens := e.tokens(in.Text); len(tokens) > 0 {
		return Outcome{Candidates: tokens, Strategy: StrategyTokens}
	}
	return Outcome{Candidates: []string{}, Strategy: StrategyNone}
}

func (e *TextExtractor) lineCandidates(text string) []string {
	r := e.Rules
	c := newCollector()
	for _, raw := range strings.Split(text, "\n") {
		line := Normalize(raw)
		if runeLen(line) < r.MinTokenRunes || numeric(line) {
			continue
		}
		words := strings.Fields(line)

		if e.standalone(line, words) {
			c.add(line)
			continue
		}

		for i, w := range words {
			if !e.usableWord(w) {
				continue
			}
			if r.Language.IsArabic() {
				if i < r.ArabicLeadingWords {
					c.add(w)
				}
				continue
			}
			if capitalized(w) {
				c.add(w)
			}
		}
	}
	return c.items
}

// standalone reports whether a whole line reads as a name on its own.
func (e *TextExtractor) standalone(line string, words []string) bool {
	r := e.Rules
	n := runeLen(line)
	if len(words) > r.ShortLineMaxWords || n < r.ShortLineMinRunes || n > r.ShortLineMaxRunes {
		return false
	}
	if r.Dosage(line) {
		return false
	}
	for _, w := range words {
		if r.Denied(w) {
			return false
		}
	}
	return true
}

func (e *TextExtractor) usableWord(w string) bool {
	r := e.Rules
	n := runeLen(w)
	if n < r.MinTokenRunes || n > r.MaxCandidateRunes || numeric(w) {
		return false
	}
	return !r.Denied(w)
}

// rank moves priority-shaped candidates ahead, keeping relative order
// within each group.
func (e *TextExtractor) rank(candidates []string) []string {
	var first, rest []string
	for _, c := range candidates {
		if e.Rules.Priority(c) {
			first = append(first, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(first, rest...)
}

func (e *TextExtractor) tokens(text string) []string {
	r := e.Rules
	c := newCollector()
	for _, tok := range strings.Fields(Normalize(text)) {
		if c.len() >= r.TextCap {
			break
		}
		n := runeLen(tok)
		if n < r.FallbackMinRunes || n > r.FallbackMaxRunes || numeric(tok) || r.Denied(tok) {
			continue
		}
		c.add(tok)
	}
	return c.items
}

func capped(items []string, limit int) []string {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
