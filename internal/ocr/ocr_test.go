package ocr

import (
	"testing"
)

func TestBox(t *testing.T) {
	b := Box{X0: 10, Y0: 20, X1: 50, Y1: 45}
	if b.Height() != 25 {
		t.Errorf("Height: got %d, want 25", b.Height())
	}
	got := b.Offset(5, 100)
	want := Box{X0: 15, Y0: 120, X1: 55, Y1: 145}
	if got != want {
		t.Errorf("Offset: got %+v, want %+v", got, want)
	}
}

func TestJoinText(t *testing.T) {
	passes := []*Pass{
		{Text: "PANADOL\n"},
		nil,
		{Text: "   "},
		{Text: "Extra 500 mg"},
	}
	if got := JoinText(passes); got != "PANADOL\nExtra 500 mg" {
		t.Errorf("JoinText: got %q", got)
	}
	if got := JoinText(nil); got != "" {
		t.Errorf("JoinText(nil): got %q", got)
	}
}

func TestJoinWords(t *testing.T) {
	passes := []*Pass{
		{Words: []Word{{Text: "A"}, {Text: "B"}}},
		nil,
		{Words: []Word{{Text: "C"}}},
	}
	words := JoinWords(passes)
	if len(words) != 3 || words[0].Text != "A" || words[2].Text != "C" {
		t.Errorf("JoinWords: got %+v", words)
	}
}
