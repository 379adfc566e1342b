package db

import "strings"

// LastErrorMaxRunes bounds failure text stored in last_error columns.
const LastErrorMaxRunes = 1000

// TruncateText cuts s to at most maxRunes runes. Invalid UTF-8 sequences are
// replaced first; postgres rejects them in text columns.
func TruncateText(s string, maxRunes int) string {
	s = strings.ToValidUTF8(s, "�")
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}
