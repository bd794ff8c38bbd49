package content

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxPostLength is the platform's post length limit in characters.
const MaxPostLength = 280

// ErrEmptyContent indicates that nothing postable remained after sanitization.
var ErrEmptyContent = errors.New("content.empty")

var (
	inlineMarkers = strings.NewReplacer("*", "", "_", "", "`", "", ">", "", "-", "")
	// Heading, bullet, and ordered-list markers at the start of the line. A marker must be
	// followed by whitespace or end the line, so "#hashtag" survives.
	leadingMarker = regexp.MustCompile(`^(?:[#+]+|\d+[.)])(?:\s+|$)`)
)

// Sanitize turns raw generated text into a postable string.
//
// It takes the first non-blank line, removes emphasis, quote, code, and dash markers
// anywhere in it, removes leading heading and list markers, trims it, and
// hard-cuts it to MaxPostLength characters. The cut is not word-aware.
func Sanitize(raw string) (string, error) {
	line, found := firstNonBlankLine(raw)
	if !found {
		return "", ErrEmptyContent
	}

	cleaned := strings.TrimSpace(inlineMarkers.Replace(line))
	for {
		stripped := strings.TrimSpace(leadingMarker.ReplaceAllString(cleaned, ""))
		if stripped == cleaned {
			break
		}
		cleaned = stripped
	}

	if cleaned == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(cleaned) > MaxPostLength {
		cleaned = string([]rune(cleaned)[:MaxPostLength])
	}
	return cleaned, nil
}

func firstNonBlankLine(raw string) (string, bool) {
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) != "" {
			return line, true
		}
	}
	return "", false
}
