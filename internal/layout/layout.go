// Package layout converts text typed in the wrong keyboard layout.
//
// The table pairs the 26 Latin letters with the Cyrillic letters that share
// their keys on a standard ЙЦУКЕН/QWERTY keyboard, so a trigger typed with
// the Russian layout active can still be matched against a Latin trigger and
// the other way round.
package layout

import (
	"strings"
	"unicode"
)

// pairs maps each Cyrillic letter to the Latin letter on the same key.
var pairs = map[rune]rune{
	'ф': 'a', 'и': 'b', 'с': 'c', 'в': 'd', 'у': 'e', 'а': 'f', 'п': 'g',
	'р': 'h', 'ш': 'i', 'о': 'j', 'л': 'k', 'д': 'l', 'ь': 'm', 'т': 'n',
	'щ': 'o', 'з': 'p', 'й': 'q', 'к': 'r', 'ы': 's', 'е': 't', 'г': 'u',
	'м': 'v', 'ц': 'w', 'ч': 'x', 'н': 'y', 'я': 'z',
}

var reverse = func() map[rune]rune {
	m := make(map[rune]rune, len(pairs))
	for cyr, lat := range pairs {
		m[lat] = cyr
	}
	return m
}()

// Convert swaps every mapped letter for its counterpart in the other layout.
// Lookup ignores case and the result always uses the table's lowercase form.
// Runes outside the table are copied unchanged.
func Convert(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		lower := unicode.ToLower(r)
		if out, ok := pairs[lower]; ok {
			b.WriteRune(out)
		} else if out, ok := reverse[lower]; ok {
			b.WriteRune(out)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Mapped reports whether r has a counterpart in the table.
func Mapped(r rune) bool {
	lower := unicode.ToLower(r)
	if _, ok := pairs[lower]; ok {
		return true
	}
	_, ok := reverse[lower]
	return ok
}
