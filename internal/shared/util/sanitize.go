package util

import (
	"errors"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFileNameLength caps the stored name in bytes; longer names keep their
// extension and lose the tail of the stem.
const MaxFileNameLength = 200

var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName makes a client-supplied name safe to embed in a storage
// key. Separators become underscores, control characters are dropped and
// traversal sequences are rejected.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte('_')
		case unicode.IsControl(r) || r == utf8.RuneError:
		default:
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	if s == "" || s == "." {
		return "", ErrInvalidFileName
	}
	return truncateName(s), nil
}

func truncateName(s string) string {
	if len(s) <= MaxFileNameLength {
		return s
	}
	ext := path.Ext(s)
	if len(ext) > 16 {
		ext = ""
	}
	stem := s[:MaxFileNameLength-len(ext)]
	for !utf8.ValidString(stem) {
		stem = stem[:len(stem)-1]
	}
	return stem + ext
}
