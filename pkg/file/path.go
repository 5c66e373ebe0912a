package file

import (
	"path/filepath"
	"regexp"
	"strings"
)

func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	lastDot := strings.LastIndex(filename, ".")

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if lastDot <= 0 {
		return filepath.Join(dir, filename+ext)
	}
	return filepath.Join(dir, filename[:lastDot]+ext)
}

// Stem returns the base name without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	if i := strings.LastIndex(base, "."); i > 0 {
		return base[:i]
	}
	return base
}

var (
	unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	nameSeparators  = regexp.MustCompile(`[-\s]+`)
)

// SafeName turns a title into a file name: punctuation is dropped, runs of
// spaces and dashes become one dash, and the result is cut to maxRunes.
func SafeName(title string, maxRunes int) string {
	name := unsafeNameChars.ReplaceAllString(title, "")
	name = nameSeparators.ReplaceAllString(strings.TrimSpace(name), "-")
	if r := []rune(name); maxRunes > 0 && len(r) > maxRunes {
		name = string(r[:maxRunes])
	}
	return strings.Trim(name, "-")
}
