// Package naming turns video titles into file names for the public output
// directory.
package naming

import (
	"path"
	"strings"
	"unicode"
)

// SanitizeTitle keeps letters, numbers, spaces, periods and underscores and
// drops everything else. Trailing whitespace is removed.
func SanitizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == ' ' || r == '.' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace)
}

// BaseName returns the sanitized title, or a name derived from jobID when
// nothing usable is left.
func BaseName(title, jobID string) string {
	if s := SanitizeTitle(title); strings.Trim(s, ". ") != "" {
		return s
	}
	id := []rune(SanitizeTitle(jobID))
	if len(id) > 8 {
		id = id[:8]
	}
	if len(id) == 0 {
		return "video"
	}
	return "video_" + string(id)
}

// VideoFilename is the merged output file name.
func VideoFilename(base string) string {
	return base + ".mp4"
}

// AudioFilename is the standalone audio file name for the given extension.
func AudioFilename(base, ext string) string {
	return base + "_audio." + strings.TrimPrefix(ext, ".")
}

// PublicPath joins the public prefix and a file name with forward slashes,
// the form stored in the manifest and served to browsers.
func PublicPath(prefix, file string) string {
	prefix = strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/")
	if prefix == "" {
		return file
	}
	return path.Join(prefix, file)
}
