package core

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ImageExtensions are the portrait file extensions the pipeline writes or
// accepts, without the leading dot.
var ImageExtensions = []string{"jpg", "jpeg", "png", "webp", "gif"}

// Slugify turns a display name into a lowercase, dash-separated file stem.
// Accents are folded to their base letters.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFKD.String(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(unicode.ToLower(r))
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// PortraitStem is the file stem of a celebrity portrait. The birth year keeps
// namesakes apart; it is omitted when unknown.
func PortraitStem(name string, birthYear int) string {
	stem := Slugify(name)
	if birthYear <= 0 {
		return stem
	}
	return stem + "-" + strconv.Itoa(birthYear)
}
