package gene

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const slugMaxLen = 24

// Slugify lowercases a name and collapses runs of non-alphanumeric runes
// into single hyphens, truncating to a bounded length.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
		if b.Len() >= slugMaxLen {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "unnamed"
	}
	return slug
}

// NewID builds a globally unique gene id of the form
// gene-<category>-<slug>-<disambiguator>. The disambiguator combines a
// millisecond timestamp with random entropy so identical names recorded in
// the same instant still get distinct ids.
func NewID(category Category, name string) string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	entropy := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return "gene-" + string(category) + "-" + Slugify(name) + "-" + ts + entropy
}
