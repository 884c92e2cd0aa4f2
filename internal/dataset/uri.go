package dataset

import (
	"path/filepath"
	"strings"

	taberrors "tabula/internal/errors"
)

// PathFromURI resolves a file-scheme URI to a local filesystem path.
// The URI must use the file scheme and must resolve to an absolute path.
// Empty and localhost authorities are accepted, as are DOS forms such as
// file:///C:/data and the legacy bar syntax file:///C|/data.
func PathFromURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, "file:") {
		return "", &taberrors.InvalidFileURIError{URI: uri}
	}
	path := uri[5:]
	if strings.HasPrefix(path, "///") {
		// Remove empty authority
		path = path[2:]
	} else if strings.HasPrefix(path, "//localhost/") {
		// Remove 'localhost' authority
		path = path[11:]
	}
	if strings.HasPrefix(path, "///") ||
		(strings.HasPrefix(path, "/") && (len(path) < 3 || path[2] == ':' || path[2] == '|')) {
		// Remove slash before DOS device/UNC path
		path = path[1:]
	}
	if len(path) >= 2 && path[1] == '|' {
		// Replace bar with colon in DOS drive
		path = path[:1] + ":" + path[2:]
	}
	path = unescapePath(path)
	if !filepath.IsAbs(path) {
		return "", &taberrors.NonAbsoluteURIError{URI: uri}
	}
	return path, nil
}

// unescapePath percent-decodes a URI path. Malformed escapes pass through
// verbatim instead of failing, so a sloppy producer cannot break resolution.
func unescapePath(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, okHi := unhex(s[i+1])
			lo, okLo := unhex(s[i+2])
			if okHi && okLo {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// FileExtension returns the final suffix of the file name, dot included.
// Dotfiles and trailing dots yield an empty suffix, so ".profile" and
// "data." both return "".
func FileExtension(file string) string {
	name := filepath.Base(file)
	i := strings.LastIndex(name, ".")
	if i > 0 && i < len(name)-1 {
		return name[i:]
	}
	return ""
}

// localPath resolves the location a table is opened from. File-scheme URIs
// resolve strictly; anything else is treated as a filesystem path.
func localPath(uri string) (string, error) {
	if strings.HasPrefix(uri, "file:") {
		return PathFromURI(uri)
	}
	return uri, nil
}
