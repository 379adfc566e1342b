package db

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateTextKeepsRuneBoundaries(t *testing.T) {
	msg := strings.Repeat("x", 999) + "ошибка сервера"

	got := TruncateText(msg, LastErrorMaxRunes)
	if !utf8.ValidString(got) {
		t.Fatalf("expected valid utf-8, got tail %q", got[len(got)-4:])
	}
	if n := utf8.RuneCountInString(got); n != LastErrorMaxRunes {
		t.Fatalf("expected %d runes, got %d", LastErrorMaxRunes, n)
	}
	if !strings.HasSuffix(got, "о") {
		t.Fatalf("expected cut after first cyrillic rune, got tail %q", got[len(got)-4:])
	}
}

func TestTruncateTextShortAndInvalidInput(t *testing.T) {
	if got := TruncateText("сбой", 10); got != "сбой" {
		t.Fatalf("expected short text untouched, got %q", got)
	}
	if got := TruncateText("bad\xd0", 10); !utf8.ValidString(got) {
		t.Fatalf("expected invalid bytes replaced, got %q", got)
	}
	if got := TruncateText("abc", 0); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}
