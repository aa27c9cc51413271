package storage

import (
	"mime"
	"path"
	"strings"
)

// DefaultContentType is used when nothing better is known.
const DefaultContentType = "application/octet-stream"

// ResolveContentType picks a media type by precedence: explicit override,
// then the type reported by the backend, then a guess from the file
// extension of name, then DefaultContentType.
func ResolveContentType(override, reported, name string) string {
	if override != "" {
		return override
	}
	if reported != "" {
		return reported
	}
	if guessed := ContentTypeByExtension(name); guessed != "" {
		return guessed
	}
	return DefaultContentType
}

// ContentTypeByExtension guesses a media type from the extension of name.
// It returns "" when the extension is unknown.
func ContentTypeByExtension(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return ""
	}
	return mime.TypeByExtension(ext)
}
